package client

import (
	"bufio"
	"context"
	"io"

	"github.com/pkg/errors"
)

// Batch sends every line read from in and writes each reply, newline
// terminated, to out. It stops at the end of input, on the first I/O error
// or when ctx is cancelled, and returns the number of requests answered.
func Batch(ctx context.Context, c *Client, in io.Reader, out io.Writer) (int, error) {
	scanner := bufio.NewScanner(in)
	w := bufio.NewWriter(out)
	defer w.Flush()

	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		reply, err := c.Do(ctx, scanner.Text())
		if err != nil {
			return n, errors.Wrapf(err, "request %d", n+1)
		}
		n++
		if _, err := w.WriteString(reply + "\n"); err != nil {
			return n, errors.Wrap(err, "write reply")
		}
	}
	if err := scanner.Err(); err != nil {
		return n, errors.Wrap(err, "read input")
	}
	return n, errors.Wrap(w.Flush(), "write reply")
}
