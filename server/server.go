// Package server serves the boxes of a loaded trace over HTTP.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"honnef.co/go/schedbox/color"
	"honnef.co/go/schedbox/histo"
	"honnef.co/go/schedbox/metrics"
	"honnef.co/go/schedbox/sched"
	"honnef.co/go/schedbox/trace"
	"honnef.co/go/schedbox/trace/store"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

type Server struct {
	store  *store.Store
	drawer *sched.Drawer
	bins   int
	engine *gin.Engine
}

// New returns a server for a loaded trace. bins is the number of bins used when a request doesn't specify it.
func New(st *store.Store, d *sched.Drawer, bins int) *Server {
	s := &Server{
		store:  st,
		drawer: d,
		bins:   bins,
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), logRequests)
	s.engine.GET("/boxes", s.boxes)
	s.engine.GET("/tasks", s.tasks)
	s.engine.GET("/variants", s.variants)
	s.engine.GET("/metrics", metrics.Handler())
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		klog.Infof("listening on %s", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return errors.Wrap(err, "serving")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	klog.V(2).Infof("%s %s: %d in %s", c.Request.Method, c.Request.URL, c.Writer.Status(), time.Since(start))
}

type errorResponse struct {
	Error string `json:"error"`
}

func fail(c *gin.Context, code int, err error) {
	c.AbortWithStatusJSON(code, errorResponse{Error: err.Error()})
}

type boxJSON struct {
	sched.Box
	Color string `json:"color"`
}

type boxesResponse struct {
	PID     uint32          `json:"pid"`
	Task    string          `json:"task,omitempty"`
	Min     trace.Timestamp `json:"min"`
	Max     trace.Timestamp `json:"max"`
	BinSize uint64          `json:"bin_size"`
	Bins    int             `json:"bins"`
	Boxes   []boxJSON       `json:"boxes"`
}

func queryUint(c *gin.Context, key string, bits int, def uint64) (uint64, error) {
	s, ok := c.GetQuery(key)
	if !ok || s == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return v, nil
}

func (s *Server) boxes(c *gin.Context) {
	if _, ok := c.GetQuery("pid"); !ok {
		fail(c, http.StatusBadRequest, errors.New("missing pid"))
		return
	}
	pid, err := queryUint(c, "pid", 32, 0)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	bins, err := queryUint(c, "bins", 31, uint64(s.bins))
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if bins > histo.MaxBins {
		fail(c, http.StatusBadRequest, errors.Errorf("bins must be at most %d, got %d", histo.MaxBins, bins))
		return
	}

	entries := s.store.Entries()
	if len(entries) == 0 {
		fail(c, http.StatusNotFound, errors.New("trace has no entries"))
		return
	}
	lo, err := queryUint(c, "min", 64, uint64(entries[0].Timestamp))
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	hi, err := queryUint(c, "max", 64, uint64(entries[len(entries)-1].Timestamp))
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	h := histo.New(entries)
	if !h.SetInRangeBinning(int(bins), trace.Timestamp(lo), trace.Timestamp(hi)) {
		fail(c, http.StatusBadRequest, errors.Errorf("can't divide [%d, %d] into %d bins", lo, hi, bins))
		return
	}

	boxes := s.drawer.Boxes(h, uint32(pid))
	resp := boxesResponse{
		PID:     uint32(pid),
		Min:     h.Min,
		Max:     h.Max,
		BinSize: h.BinSize,
		Bins:    h.NumBins(),
		Boxes:   make([]boxJSON, len(boxes)),
	}
	resp.Task, _ = s.store.TaskName(uint32(pid))
	for i, b := range boxes {
		resp.Boxes[i] = boxJSON{Box: b, Color: color.Hex(b.Color)}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) tasks(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Tasks())
}

func (s *Server) variants(c *gin.Context) {
	names := s.drawer.Variants()
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, names)
}
