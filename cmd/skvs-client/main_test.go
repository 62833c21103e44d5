package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/skvs/internal/client"
	"github.com/dreamware/skvs/internal/config"
	"github.com/dreamware/skvs/internal/engine"
	"github.com/dreamware/skvs/internal/server"
)

// startServer serves a fresh table on a loopback port and returns that port
func startServer(t *testing.T) int {
	t.Helper()
	return startDelayedServer(t, 0)
}

// startDelayedServer is startServer with a bucket lock hold delay
func startDelayedServer(t *testing.T, delay time.Duration) int {
	t.Helper()
	cfg := config.Default()
	cfg.Workers = 8
	cfg.Buckets = 16
	cfg.LockDelay = delay

	eng, err := engine.New(cfg.Buckets, delay, nil)
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.New(cfg, eng, nil).Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().(*net.TCPAddr).Port
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

// TestBatchMode streams stdin to the server and prints each reply
func TestBatchMode(t *testing.T) {
	port := startServer(t)

	out, err := execute(t, "PUT a 1\nGET a\nDEL a\nGET a\n", "-i", "127.0.0.1", "-p", strconv.Itoa(port))
	require.NoError(t, err)
	assert.Equal(t, "OK\n1\nOK\nNOTFOUND\n", out)
}

// TestBatchModeWaitsForSlowReplies runs against a lock delay longer than the
// library's default round trip bound
func TestBatchModeWaitsForSlowReplies(t *testing.T) {
	if testing.Short() {
		t.Skip("slow: waits out a 6s lock delay")
	}
	delay := 6 * time.Second
	require.Greater(t, delay, client.DefaultTimeout)
	port := startDelayedServer(t, delay)

	start := time.Now()
	out, err := execute(t, "PUT a 1\n", "-p", strconv.Itoa(port))
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)
	assert.GreaterOrEqual(t, time.Since(start), delay)
}

func TestTimeoutFlag(t *testing.T) {
	port := startDelayedServer(t, time.Second)

	_, err := execute(t, "PUT a 1\nGET a\n", "-p", strconv.Itoa(port), "--timeout", "100ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")

	_, err = execute(t, "PING\n", "-p", strconv.Itoa(port), "--timeout", "-1s")
	assert.Error(t, err)
}

func TestConnOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    connOptions
		want    string
		wantErr bool
	}{
		{name: "defaults", opts: connOptions{host: DefaultHost, port: 8080}, want: "127.0.0.1:8080"},
		{name: "host name", opts: connOptions{host: "localhost", port: 9000}, want: "localhost:9000"},
		{name: "ipv6", opts: connOptions{host: "::1", port: 9000}, want: "[::1]:9000"},
		{name: "port zero", opts: connOptions{host: DefaultHost, port: 0}, wantErr: true},
		{name: "port too large", opts: connOptions{host: DefaultHost, port: 65536}, wantErr: true},
		{name: "empty host", opts: connOptions{port: 8080}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.address()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInvalidArguments(t *testing.T) {
	_, err := execute(t, "", "-p", "70000")
	assert.Error(t, err)

	_, err = execute(t, "", "bench", "-c", "0")
	assert.Error(t, err)

	// Nothing listening
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	_, err = execute(t, "PING\n", "-p", strconv.Itoa(port))
	assert.Error(t, err)
}

func TestShellLine(t *testing.T) {
	port := startServer(t)
	c, err := client.Dial(context.Background(), fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	tests := []struct {
		line     string
		wantOut  string
		wantDone bool
	}{
		{line: "PUT a 1", wantOut: "Server reply: OK\n"},
		{line: "  get a  ", wantOut: "Server reply: 1\n"},
		{line: "", wantOut: ""},
		{line: "nonsense", wantOut: "Server reply: ERROR\n"},
		{line: "exit", wantDone: true},
		{line: "QUIT", wantDone: true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		done, err := shellLine(ctx, c, tt.line, &out)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.wantDone, done, tt.line)
		assert.Equal(t, tt.wantOut, out.String(), tt.line)
	}
}

func TestBench(t *testing.T) {
	port := startServer(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	report, err := runBench(context.Background(), addr, benchOptions{clients: 4, requests: 20, valueSize: 8})
	require.NoError(t, err)
	assert.Equal(t, 4*20*len(benchOps), report.TotalOps())
	for _, op := range benchOps {
		s := report.Ops[op]
		assert.Equal(t, 80, s.Count, op)
		assert.LessOrEqual(t, s.P50, s.P99, op)
		assert.LessOrEqual(t, s.P99, s.Max, op)
	}

	var out bytes.Buffer
	require.NoError(t, report.write(&out))
	assert.Contains(t, out.String(), "requests=320")
	assert.Contains(t, out.String(), "p99=")

	// Bench keys are deleted again
	c, err := client.Dial(context.Background(), addr)
	require.NoError(t, err)
	defer c.Close()
	n, err := c.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBenchCommand(t *testing.T) {
	port := startServer(t)
	out, err := execute(t, "", "bench", "-p", strconv.Itoa(port), "-c", "2", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "clients=2 keys/client=5 requests=40")
}

func TestMainReportsErrors(t *testing.T) {
	oldArgs := os.Args
	oldFatal := logFatal
	defer func() {
		os.Args = oldArgs
		logFatal = oldFatal
	}()

	var fatalMsg string
	logFatal = func(format string, v ...any) {
		fatalMsg = fmt.Sprintf(format, v...)
	}
	os.Args = []string{"skvs-client", "-p", "0"}

	main()
	assert.Contains(t, fatalMsg, "port 0 out of range")
}

func TestStatusCommand(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = 2
	cfg.Buckets = 4
	cfg.StatusAddr = "127.0.0.1:0"

	eng, err := engine.New(cfg.Buckets, 0, nil)
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := server.New(cfg, eng, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()
	defer func() {
		cancel()
		<-done
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	_, err = execute(t, "PUT a 1\n", "-p", strconv.Itoa(port))
	require.NoError(t, err)

	var statusAddr net.Addr
	require.Eventually(t, func() bool {
		statusAddr = srv.StatusAddr()
		return statusAddr != nil
	}, 2*time.Second, 10*time.Millisecond)

	out, err := execute(t, "", "status", "--status-addr", statusAddr.String(), "--wait", "2s")
	require.NoError(t, err)
	assert.Contains(t, out, "keys=1 bytes=2 buckets=4")
	assert.Contains(t, out, "bucket 1: entries=1") // "a" hashes to 97 % 4

	_, err = execute(t, "", "status")
	assert.Error(t, err)
}
