// Package main implements skvs-server, the TCP front end of the skvs
// in-memory key-value store.
//
// The server creates one hash table of --buckets buckets, each guarded by a
// fair reader/writer lock, and serves it to clients through --threads
// workers sharing a single listener. Store contents live in memory only and
// do not survive a restart.
//
// Configuration is layered: built-in defaults, then an optional TOML or YAML
// file (--config), then explicit flags.
//
// Example usage:
//
//	# Start with defaults (port 8080, 4 workers, 1024 buckets)
//	./skvs-server
//
//	# Small table with a visible lock hold time and a status endpoint
//	./skvs-server -p 9000 -t 8 -s 16 -d 1 --status-addr 127.0.0.1:9100
//
//	# Talk to it
//	echo "PUT user:1 alice" | ./skvs-client -p 9000
//
// Exit codes:
//   - 0: Normal shutdown via SIGINT or SIGTERM
//   - 1: Invalid flags or configuration, listen failure, teardown failure
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/dreamware/skvs/internal/config"
	"github.com/dreamware/skvs/internal/engine"
	"github.com/dreamware/skvs/internal/logutil"
	"github.com/dreamware/skvs/internal/server"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

type options struct {
	configPath string
	host       string
	port       int
	threads    int
	buckets    int
	delay      int
	statusAddr string
	dumpOnExit bool
	logLevel   string
	logFile    string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logFatal("skvs-server: %v", err)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "skvs-server",
		Short:         "Concurrent in-memory key-value store server",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := buildConfig(cmd.Flags(), opts)
			if err != nil {
				return err
			}
			// Past this point failures are runtime errors, not usage errors
			cmd.SilenceUsage = true

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	opts.register(cmd.Flags())
	return cmd
}

func (o *options) register(flags *pflag.FlagSet) {
	flags.StringVarP(&o.configPath, "config", "c", "", "TOML or YAML config file")
	flags.StringVar(&o.host, "host", config.DefaultHost, "listen host")
	flags.IntVarP(&o.port, "port", "p", config.DefaultPort, "listen port")
	flags.IntVarP(&o.threads, "threads", "t", config.DefaultWorkers, "number of worker threads")
	flags.IntVarP(&o.buckets, "buckets", "s", config.DefaultBuckets, "number of hash table buckets")
	flags.IntVarP(&o.delay, "delay", "d", 0, "lock hold delay in seconds")
	flags.StringVar(&o.statusAddr, "status-addr", "", "serve /health, /info and /metrics on this address")
	flags.BoolVar(&o.dumpOnExit, "dump-on-exit", false, "log a dump of the table at shutdown")
	flags.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&o.logFile, "log-file", "", "log to this file instead of stderr")
}

// buildConfig layers the config file and the flags that were set explicitly
// over the defaults, then validates the result.
func buildConfig(flags *pflag.FlagSet, opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.Changed("host") {
		cfg.Host = opts.host
	}
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	if flags.Changed("threads") {
		cfg.Workers = opts.threads
	}
	if flags.Changed("buckets") {
		cfg.Buckets = opts.buckets
	}
	if flags.Changed("delay") {
		cfg.LockDelay = time.Duration(opts.delay) * time.Second
	}
	if flags.Changed("status-addr") {
		cfg.StatusAddr = opts.statusAddr
	}
	if flags.Changed("dump-on-exit") {
		cfg.DumpOnExit = opts.dumpOnExit
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = opts.logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run serves cfg until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	logger, err := logutil.New(cfg.Log)
	if err != nil {
		return errors.Wrap(err, "init logger")
	}
	defer logger.Sync()

	eng, err := engine.New(cfg.Buckets, cfg.LockDelay, logger)
	if err != nil {
		return err
	}

	srv := server.New(cfg, eng, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server exited", zap.Error(err))
		return err
	}
	return nil
}
