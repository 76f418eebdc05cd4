package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"honnef.co/go/schedbox/server"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *options) *cobra.Command {
	var (
		tracePath string
		addr      string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the boxes of a trace over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, d, err := opts.loadTrace(tracePath)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = opts.cfg.Server.Addr
			}

			gin.SetMode(gin.ReleaseMode)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(st, d, opts.cfg.Bins).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&tracePath, "trace", "", "trace report, as written by trace-cmd report")
	cmd.Flags().StringVar(&addr, "addr", "", "address to listen on (default from configuration)")
	cmd.MarkFlagRequired("trace")
	return cmd
}
