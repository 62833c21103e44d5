package main

import (
	"context"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"

	"github.com/dreamware/skvs/internal/client"
)

const shellPrompt = "skvs> "

// runShell reads commands with line editing until EOF, interrupt or "exit".
func runShell(ctx context.Context, c *client.Client, in io.Reader, out io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          shellPrompt,
		Stdin:           io.NopCloser(in),
		Stdout:          out,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return errors.Wrap(err, "init readline")
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read command")
		}

		done, err := shellLine(ctx, c, line, out)
		if err != nil || done {
			return err
		}
	}
}

// shellLine executes one interactive line. It reports done for "exit" and
// "quit"; blank lines are skipped.
func shellLine(ctx context.Context, c *client.Client, line string, out io.Writer) (bool, error) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return false, nil
	case "exit", "quit":
		return true, nil
	}

	reply, err := c.Do(ctx, line)
	if err != nil {
		return true, err
	}
	return false, writeReply(out, reply)
}
