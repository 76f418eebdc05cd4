// Package store holds the raw records of a loaded trace and the entries derived from them.
//
// Records are packed into chunks which are kept snappy-compressed in memory. Reading a record decompresses its chunk;
// a small number of decompressed chunks is cached. Locators encode the chunk in their upper 32 bits and the record's
// index within the chunk in the lower 32 bits.
package store

import (
	"cmp"

	"honnef.co/go/schedbox/metrics"
	"honnef.co/go/schedbox/mysync"
	"honnef.co/go/schedbox/trace"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// ErrBadLocator is returned when a locator doesn't identify a record in the store.
var ErrBadLocator = errors.New("malformed record locator")

type Config struct {
	// Number of records per chunk.
	ChunkSize int `yaml:"chunk_size"`
	// Number of decompressed chunks to keep in memory.
	CacheChunks int `yaml:"cache_chunks"`
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:   4096,
		CacheChunks: 16,
	}
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.CacheChunks <= 0 {
		cfg.CacheChunks = def.CacheChunks
	}
	return cfg
}

type chunk struct {
	// Snappy block of the concatenated records.
	data []byte
	// Start offset of each record in the decompressed block, followed by the block's length.
	offsets []uint32
}

// Task is a pid and the last name seen for it.
type Task struct {
	PID  uint32 `json:"pid"`
	Name string `json:"name"`
}

// Store is safe for concurrent use by readers once all records have been appended and flushed.
type Store struct {
	cfg Config
	cat *trace.Catalogue

	chunks         []chunk
	pending        []byte
	pendingOffsets []uint32

	cache *mysync.Mutex[*lruCache[uint32, []byte]]

	entries []trace.Entry
	tasks   map[uint32]string
}

func New(cat *trace.Catalogue, cfg Config) *Store {
	cfg = cfg.withDefaults()
	return &Store{
		cfg:   cfg,
		cat:   cat,
		cache: mysync.NewMutex(newLRU[uint32, []byte](cfg.CacheChunks)),
		tasks: make(map[uint32]string),
	}
}

func (s *Store) Catalogue() *trace.Catalogue { return s.cat }

// Entries returns the entries of the trace, sorted by timestamp. The slice must not be modified.
func (s *Store) Entries() []trace.Entry { return s.entries }

// Append stores a copy of rec and returns its locator. The record can be read once the chunk it belongs to has been
// flushed, either because it filled up or because of a call to Flush.
func (s *Store) Append(rec []byte) trace.Locator {
	idx := len(s.pendingOffsets)
	loc := trace.Locator(uint64(len(s.chunks))<<32 | uint64(idx))
	s.pendingOffsets = append(s.pendingOffsets, uint32(len(s.pending)))
	s.pending = append(s.pending, rec...)
	if len(s.pendingOffsets) >= s.cfg.ChunkSize {
		s.Flush()
	}
	return loc
}

// Flush compresses the pending chunk, if any.
func (s *Store) Flush() {
	if len(s.pendingOffsets) == 0 {
		return
	}
	offsets := append(s.pendingOffsets, uint32(len(s.pending)))
	s.chunks = append(s.chunks, chunk{
		data:    snappy.Encode(nil, s.pending),
		offsets: slices.Clip(offsets),
	})
	s.pending = s.pending[:0]
	s.pendingOffsets = nil
}

// NumRecords returns the number of flushed records.
func (s *Store) NumRecords() int {
	var n int
	for _, c := range s.chunks {
		n += len(c.offsets) - 1
	}
	return n
}

// ReadAt calls fn with the record identified by loc. The record is only valid for the duration of the call and must
// not be modified. Errors returned by fn are passed through.
func (s *Store) ReadAt(loc trace.Locator, fn func(rec []byte) error) error {
	ci, ri := uint32(loc>>32), uint32(loc)
	if int(ci) >= len(s.chunks) {
		return errors.Wrapf(ErrBadLocator, "chunk %d out of range", ci)
	}
	c := &s.chunks[ci]
	if int(ri)+1 >= len(c.offsets) {
		return errors.Wrapf(ErrBadLocator, "record %d out of range in chunk %d", ri, ci)
	}
	data, err := s.chunk(ci)
	if err != nil {
		return err
	}
	start, end := c.offsets[ri], c.offsets[ri+1]
	if end < start || int(end) > len(data) {
		return errors.Wrapf(ErrBadLocator, "record %d in chunk %d has bad bounds", ri, ci)
	}
	metrics.RecordReads.Inc()
	return fn(data[start:end:end])
}

func (s *Store) chunk(ci uint32) ([]byte, error) {
	var (
		data []byte
		ok   bool
	)
	s.cache.Do(func(cache *lruCache[uint32, []byte]) { data, ok = cache.get(ci) })
	if ok {
		metrics.ChunkCacheHits.Inc()
		return data, nil
	}

	metrics.ChunkCacheMisses.Inc()
	data, err := snappy.Decode(nil, s.chunks[ci].data)
	if err != nil {
		return nil, errors.Wrapf(err, "decompressing chunk %d", ci)
	}
	s.cache.Do(func(cache *lruCache[uint32, []byte]) { cache.add(ci, data) })
	return data, nil
}

// RegisterTask records the name of a task. Later registrations replace earlier ones. The idle task is never
// registered.
func (s *Store) RegisterTask(pid uint32, name string) {
	if pid == 0 || name == "" {
		return
	}
	s.tasks[pid] = name
}

func (s *Store) TaskName(pid uint32) (string, bool) {
	name, ok := s.tasks[pid]
	return name, ok
}

// Tasks returns all known tasks, sorted by pid.
func (s *Store) Tasks() []Task {
	out := make([]Task, 0, len(s.tasks))
	for pid, name := range s.tasks {
		out = append(out, Task{PID: pid, Name: name})
	}
	slices.SortFunc(out, func(a, b Task) int { return cmp.Compare(a.PID, b.PID) })
	return out
}
