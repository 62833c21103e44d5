// Package protocol defines the skvs line protocol: one newline-terminated
// command per request, exactly one response line per command.
//
//	PUT <key> <value...>     OK | DUPLICATE
//	GET <key>                <value> | NOTFOUND
//	UPDATE <key> <value...>  OK | NOTFOUND
//	DEL <key>                OK | NOTFOUND
//	PING                     PONG
//	SIZE                     <entries>
//	anything else            ERROR
//
// Command names are case-insensitive and DELETE is accepted for DEL. A value
// is the rest of the line after the key, trimmed, with inner spacing kept.
package protocol

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Command names
const (
	CmdPut    = "PUT"
	CmdGet    = "GET"
	CmdUpdate = "UPDATE"
	CmdDel    = "DEL"
	CmdPing   = "PING"
	CmdSize   = "SIZE"
)

// Response lines
const (
	RespOK        = "OK"
	RespDuplicate = "DUPLICATE"
	RespNotFound  = "NOTFOUND"
	RespError     = "ERROR"
	RespPong      = "PONG"
)

var (
	ErrEmptyCommand   = errors.New("empty command")
	ErrUnknownCommand = errors.New("unknown command")
	ErrWrongArgCount  = errors.New("wrong number of arguments")
)

var aliases = map[string]string{
	"DELETE": CmdDel,
}

// Command is a parsed request line
type Command struct {
	Name  string // Canonical upper-case command name
	Key   string
	Value string // Only set for PUT and UPDATE
}

// String renders the command back into its wire form, without the newline
func (c *Command) String() string {
	switch c.Name {
	case CmdPut, CmdUpdate:
		return c.Name + " " + c.Key + " " + c.Value
	case CmdGet, CmdDel:
		return c.Name + " " + c.Key
	default:
		return c.Name
	}
}

// Parse turns one request line into a Command. Surrounding whitespace,
// including the line terminator, is ignored.
func Parse(line string) (*Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrEmptyCommand
	}

	name, rest := splitToken(line)
	name = strings.ToUpper(name)
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}

	cmd := &Command{Name: name}
	switch name {
	case CmdPut, CmdUpdate:
		key, value := splitToken(rest)
		if key == "" || value == "" {
			return nil, errors.Wrapf(ErrWrongArgCount, "%s needs a key and a value", name)
		}
		cmd.Key, cmd.Value = key, value
	case CmdGet, CmdDel:
		key, extra := splitToken(rest)
		if key == "" || extra != "" {
			return nil, errors.Wrapf(ErrWrongArgCount, "%s needs exactly one key", name)
		}
		cmd.Key = key
	case CmdPing, CmdSize:
		if rest != "" {
			return nil, errors.Wrapf(ErrWrongArgCount, "%s takes no arguments", name)
		}
	default:
		return nil, errors.Wrapf(ErrUnknownCommand, "%q", name)
	}
	return cmd, nil
}

// splitToken returns the first whitespace-delimited token of s and the
// trimmed remainder.
func splitToken(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
