// Package client is a Go client for the skvs line protocol. A Client owns one
// connection and issues requests one at a time; it is safe for concurrent use
// but requests from different goroutines are serialized.
package client

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dreamware/skvs/internal/protocol"
)

// DefaultTimeout bounds one request round trip when the context has no deadline.
const DefaultTimeout = 5 * time.Second

var (
	// ErrClosed is returned by requests on a closed client
	ErrClosed = errors.New("client closed")

	// ErrInvalidLine is returned when a request contains a line break
	ErrInvalidLine = errors.New("request must be a single line")

	// ErrKeyNotFound mirrors a NOTFOUND reply
	ErrKeyNotFound = errors.New("key not found")

	// ErrDuplicateKey mirrors a DUPLICATE reply
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrServer mirrors an ERROR reply
	ErrServer = errors.New("server rejected request")
)

// Client is a connection to an skvs server
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	r       *bufio.Reader
	w       *bufio.Writer
	closed  bool
	timeout time.Duration
}

// Dial connects to addr ("host:port").
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{
		conn:    conn,
		r:       bufio.NewReader(conn),
		w:       bufio.NewWriter(conn),
		timeout: DefaultTimeout,
	}
}

// SetTimeout changes the round trip bound used when ctx has no deadline.
// Zero disables it.
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// RemoteAddr returns the server address
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Do sends one raw request line and returns the reply without its
// terminator. Protocol replies such as ERROR are returned as-is.
func (c *Client) Do(ctx context.Context, line string) (string, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.ContainsAny(line, "\r\n") {
		return "", ErrInvalidLine
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok && c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return "", errors.Wrap(err, "set deadline")
	}

	// Unblock the round trip when ctx is cancelled
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
	})
	defer stop()

	c.w.WriteString(line)
	c.w.WriteByte('\n')
	if err := c.w.Flush(); err != nil {
		return "", c.ioErr(ctx, err, "send")
	}

	reply, err := c.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && reply == "" {
			return "", errors.Wrap(err, "server closed the connection")
		}
		return "", c.ioErr(ctx, err, "receive")
	}
	return strings.TrimRight(reply, "\r\n"), nil
}

func (c *Client) ioErr(ctx context.Context, err error, op string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, op)
	}
	return errors.Wrap(err, op)
}

// Put stores value under key. It fails with ErrDuplicateKey if key exists.
func (c *Client) Put(ctx context.Context, key, value string) error {
	reply, err := c.Do(ctx, protocol.CmdPut+" "+key+" "+value)
	if err != nil {
		return err
	}
	return replyErr(reply)
}

// Get returns the value stored under key, or ErrKeyNotFound.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	reply, err := c.Do(ctx, protocol.CmdGet+" "+key)
	if err != nil {
		return "", err
	}
	switch reply {
	case protocol.RespNotFound:
		return "", ErrKeyNotFound
	case protocol.RespError:
		return "", ErrServer
	}
	return reply, nil
}

// Update overwrites the value of an existing key
func (c *Client) Update(ctx context.Context, key, value string) error {
	reply, err := c.Do(ctx, protocol.CmdUpdate+" "+key+" "+value)
	if err != nil {
		return err
	}
	return replyErr(reply)
}

// Delete removes key
func (c *Client) Delete(ctx context.Context, key string) error {
	reply, err := c.Do(ctx, protocol.CmdDel+" "+key)
	if err != nil {
		return err
	}
	return replyErr(reply)
}

// Ping checks that the server answers
func (c *Client) Ping(ctx context.Context) error {
	reply, err := c.Do(ctx, protocol.CmdPing)
	if err != nil {
		return err
	}
	if reply != protocol.RespPong {
		return errors.Wrapf(ErrServer, "unexpected reply %q", reply)
	}
	return nil
}

// Size returns the number of entries stored on the server
func (c *Client) Size(ctx context.Context) (int, error) {
	reply, err := c.Do(ctx, protocol.CmdSize)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(reply)
	if err != nil {
		return 0, errors.Wrapf(ErrServer, "unexpected reply %q", reply)
	}
	return n, nil
}

func replyErr(reply string) error {
	switch reply {
	case protocol.RespOK:
		return nil
	case protocol.RespNotFound:
		return ErrKeyNotFound
	case protocol.RespDuplicate:
		return ErrDuplicateKey
	case protocol.RespError:
		return ErrServer
	}
	return errors.Wrapf(ErrServer, "unexpected reply %q", reply)
}

// Close closes the connection. Closing twice is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
