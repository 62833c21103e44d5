// Package main implements skvs-client, a command line client for skvs-server.
//
// Without -t the client streams standard input to the server one line per
// request and prints each reply on its own line, which makes it suitable
// for scripted use:
//
//	printf 'PUT a 1\nGET a\n' | ./skvs-client -p 8080
//
// With -t it opens an interactive prompt with line editing and history.
// The bench subcommand drives the server with concurrent connections and
// reports throughput and latency percentiles; status prints the table
// statistics published on the server's status endpoint.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dreamware/skvs/internal/client"
	"github.com/dreamware/skvs/internal/config"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

// DefaultHost is the server host used when -i is not given
const DefaultHost = "127.0.0.1"

type connOptions struct {
	host    string
	port    int
	timeout time.Duration // Per-request bound, zero waits for the reply indefinitely
}

func (o *connOptions) register(flags *pflag.FlagSet) {
	flags.StringVarP(&o.host, "host", "i", DefaultHost, "server address or host name")
	flags.IntVarP(&o.port, "port", "p", config.DefaultPort, "server port")
	flags.DurationVar(&o.timeout, "timeout", 0, "give up on a reply after this long (0 waits forever)")
}

func (o *connOptions) address() (string, error) {
	if o.port < 1 || o.port > 65535 {
		return "", errors.Errorf("port %d out of range 1-65535", o.port)
	}
	if o.host == "" {
		return "", errors.New("host must not be empty")
	}
	if o.timeout < 0 {
		return "", errors.Errorf("timeout %s must not be negative", o.timeout)
	}
	return net.JoinHostPort(o.host, strconv.Itoa(o.port)), nil
}

// dial connects to addr. Replies are awaited for as long as the server's
// lock delays take unless --timeout was given.
func dial(ctx context.Context, addr string, timeout time.Duration) (*client.Client, error) {
	c, err := client.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	c.SetTimeout(timeout)
	return c, nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logFatal("skvs-client: %v", err)
	}
}

func newRootCommand() *cobra.Command {
	conn := &connOptions{}
	var interactive bool

	cmd := &cobra.Command{
		Use:           "skvs-client",
		Short:         "Send commands to an skvs server",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := conn.address()
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := dial(ctx, addr, conn.timeout)
			if err != nil {
				return err
			}
			defer c.Close()
			fmt.Fprintf(cmd.ErrOrStderr(), "Connected to %s\n", addr)
			defer fmt.Fprintln(cmd.ErrOrStderr(), "Connection closed.")

			if interactive {
				return runShell(ctx, c, cmd.InOrStdin(), cmd.OutOrStdout())
			}
			_, err = client.Batch(ctx, c, cmd.InOrStdin(), cmd.OutOrStdout())
			return err
		},
	}

	conn.register(cmd.PersistentFlags())
	cmd.Flags().BoolVarP(&interactive, "interactive", "t", false, "interactive mode")
	cmd.AddCommand(newBenchCommand(conn), newStatusCommand())
	return cmd
}

func writeReply(out io.Writer, reply string) error {
	_, err := fmt.Fprintf(out, "Server reply: %s\n", reply)
	return err
}
