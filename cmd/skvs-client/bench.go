package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/skvs/internal/client"
	"github.com/dreamware/skvs/internal/protocol"
)

var benchOps = []string{protocol.CmdPut, protocol.CmdGet, protocol.CmdUpdate, protocol.CmdDel}

type benchOptions struct {
	clients   int
	requests  int
	valueSize int
	timeout   time.Duration
}

func (o benchOptions) validate() error {
	if o.clients < 1 {
		return errors.Errorf("clients must be at least 1, got %d", o.clients)
	}
	if o.requests < 1 {
		return errors.Errorf("requests must be at least 1, got %d", o.requests)
	}
	if o.valueSize < 1 {
		return errors.Errorf("value size must be at least 1, got %d", o.valueSize)
	}
	return nil
}

func newBenchCommand(conn *connOptions) *cobra.Command {
	opts := benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure throughput and latency of a running server",
		Long: "Each client opens its own connection and runs PUT, GET, UPDATE and DEL\n" +
			"on its own keys, so the keys of different clients spread over the buckets.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := conn.address()
			if err != nil {
				return err
			}
			if err := opts.validate(); err != nil {
				return err
			}
			cmd.SilenceUsage = true
			opts.timeout = conn.timeout

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := runBench(ctx, addr, opts)
			if err != nil {
				return err
			}
			return report.write(cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&opts.clients, "clients", "c", 8, "concurrent connections")
	cmd.Flags().IntVarP(&opts.requests, "requests", "n", 1000, "keys per client, each runs one request of every kind")
	cmd.Flags().IntVar(&opts.valueSize, "value-size", 16, "value length in bytes")
	return cmd
}

type latencySummary struct {
	Count int
	Mean  float64 // milliseconds
	P50   float64
	P95   float64
	P99   float64
	Max   float64
}

type benchReport struct {
	Clients  int
	Requests int
	Elapsed  time.Duration
	Ops      map[string]latencySummary
}

// runBench drives addr with opts.clients connections and summarizes the
// per-command latencies.
func runBench(ctx context.Context, addr string, opts benchOptions) (*benchReport, error) {
	runID := uuid.NewString()[:8]
	value := strings.Repeat("v", opts.valueSize)
	samples := make([]map[string][]float64, opts.clients)

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for i := 0; i < opts.clients; i++ {
		id := i
		g.Go(func() error {
			c, err := dial(gctx, addr, opts.timeout)
			if err != nil {
				return err
			}
			defer c.Close()

			own := make(map[string][]float64, len(benchOps))
			for j := 0; j < opts.requests; j++ {
				key := fmt.Sprintf("bench:%s:%d:%d", runID, id, j)
				for _, op := range benchOps {
					t0 := time.Now()
					if err := benchRequest(gctx, c, op, key, value); err != nil {
						return errors.Wrapf(err, "%s %s", op, key)
					}
					own[op] = append(own[op], float64(time.Since(t0))/float64(time.Millisecond))
				}
			}
			samples[id] = own
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &benchReport{
		Clients:  opts.clients,
		Requests: opts.requests,
		Elapsed:  time.Since(start),
		Ops:      make(map[string]latencySummary, len(benchOps)),
	}
	for _, op := range benchOps {
		var all stats.Float64Data
		for _, own := range samples {
			all = append(all, own[op]...)
		}
		summary, err := summarize(all)
		if err != nil {
			return nil, errors.Wrapf(err, "summarize %s", op)
		}
		report.Ops[op] = summary
	}
	return report, nil
}

func benchRequest(ctx context.Context, c *client.Client, op, key, value string) error {
	switch op {
	case protocol.CmdPut:
		return c.Put(ctx, key, value)
	case protocol.CmdGet:
		got, err := c.Get(ctx, key)
		if err == nil && got != value {
			return errors.Errorf("read %q, want %q", got, value)
		}
		return err
	case protocol.CmdUpdate:
		return c.Update(ctx, key, value)
	case protocol.CmdDel:
		return c.Delete(ctx, key)
	}
	return errors.Errorf("unknown bench op %s", op)
}

func summarize(data stats.Float64Data) (latencySummary, error) {
	var s latencySummary
	var err error
	s.Count = data.Len()
	if s.Mean, err = data.Mean(); err != nil {
		return s, err
	}
	if s.P50, err = data.Percentile(50); err != nil {
		return s, err
	}
	if s.P95, err = data.Percentile(95); err != nil {
		return s, err
	}
	if s.P99, err = data.Percentile(99); err != nil {
		return s, err
	}
	if s.Max, err = data.Max(); err != nil {
		return s, err
	}
	return s, nil
}

// TotalOps returns the number of requests issued
func (r *benchReport) TotalOps() int {
	total := 0
	for _, s := range r.Ops {
		total += s.Count
	}
	return total
}

func (r *benchReport) write(w io.Writer) error {
	total := r.TotalOps()
	_, err := fmt.Fprintf(w, "clients=%d keys/client=%d requests=%d elapsed=%s throughput=%.0f ops/s\n",
		r.Clients, r.Requests, total, r.Elapsed.Round(time.Millisecond), float64(total)/r.Elapsed.Seconds())
	if err != nil {
		return err
	}
	for _, op := range benchOps {
		s := r.Ops[op]
		_, err := fmt.Fprintf(w, "%-6s count=%d mean=%.3fms p50=%.3fms p95=%.3fms p99=%.3fms max=%.3fms\n",
			op, s.Count, s.Mean, s.P50, s.P95, s.P99, s.Max)
		if err != nil {
			return err
		}
	}
	return nil
}
