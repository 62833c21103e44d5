package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dreamware/skvs/internal/server"
	"github.com/dreamware/skvs/internal/status"
)

func newStatusCommand() *cobra.Command {
	var addr string
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show table statistics from the server's status endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				return errors.New("--status-addr is required")
			}
			cmd.SilenceUsage = true

			c := status.NewClient(addr)
			if wait > 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), wait)
				defer cancel()
				if err := c.WaitHealthy(ctx, 100*time.Millisecond); err != nil {
					return err
				}
			}

			info, err := c.Info(cmd.Context())
			if err != nil {
				return err
			}
			return writeInfo(cmd.OutOrStdout(), info)
		},
	}

	cmd.Flags().StringVar(&addr, "status-addr", "", "status endpoint of the server (host:port or URL)")
	cmd.Flags().DurationVar(&wait, "wait", 0, "wait up to this long for the server to become healthy")
	return cmd
}

// writeInfo prints the summary and every non-empty bucket
func writeInfo(w io.Writer, info *server.Info) error {
	ew := &errWriter{w: w}
	ew.printf("addr=%s workers=%d lock-delay=%s connections=%d\n",
		info.Addr, info.Workers, info.LockDelay, info.ActiveConnections)
	ew.printf("keys=%d bytes=%d buckets=%d\n", info.Stats.Keys, info.Stats.Bytes, info.Stats.Buckets)
	for _, b := range info.Buckets {
		if b.Entries == 0 {
			continue
		}
		ew.printf("bucket %d: entries=%d bytes=%d readers=%d writers=%d searches=%d inserts=%d updates=%d deletes=%d\n",
			b.ID, b.Entries, b.Bytes, b.ReadCount, b.WriteCount,
			b.Ops.Searches, b.Ops.Inserts, b.Ops.Updates, b.Ops.Deletes)
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
