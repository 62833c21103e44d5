// Package engine is the skvs store engine: it owns the hash table, parses
// protocol lines, dispatches them to table operations and renders the
// response line.
package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dreamware/skvs/internal/metrics"
	"github.com/dreamware/skvs/internal/protocol"
	"github.com/dreamware/skvs/internal/storage"
)

// Engine translates protocol commands into table operations. It is safe for
// concurrent use by any number of connection workers.
type Engine struct {
	table  *storage.Table
	store  storage.Store // Commands are dispatched here, normally the table
	logger *zap.Logger
}

// New creates an engine over a fresh table.
func New(buckets int, lockDelay time.Duration, logger *zap.Logger) (*Engine, error) {
	table, err := storage.NewTable(buckets, lockDelay)
	if err != nil {
		return nil, errors.Wrap(err, "init engine")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{table: table, store: table, logger: logger}, nil
}

// Table exposes the underlying table for diagnostics.
func (e *Engine) Table() *storage.Table {
	return e.table
}

// Serve executes one request line and returns the response line without its
// terminator. Malformed or unknown commands yield protocol.RespError; a
// cancelled context rejects the request before the table is touched.
func (e *Engine) Serve(ctx context.Context, line string) string {
	if ctx.Err() != nil {
		return protocol.RespError
	}

	cmd, err := protocol.Parse(line)
	if err != nil {
		e.logger.Debug("rejected command", zap.String("line", line), zap.Error(err))
		metrics.CommandsTotal.WithLabelValues("invalid", protocol.RespError).Inc()
		return protocol.RespError
	}

	start := time.Now()
	resp, result := e.execute(cmd)
	metrics.CommandDuration.WithLabelValues(cmd.Name).Observe(time.Since(start).Seconds())
	metrics.CommandsTotal.WithLabelValues(cmd.Name, result).Inc()
	return resp
}

// execute returns the response line and the result label used for metrics.
func (e *Engine) execute(cmd *protocol.Command) (string, string) {
	switch cmd.Name {
	case protocol.CmdPut:
		err := e.store.Insert(cmd.Key, cmd.Value)
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
			return protocol.RespDuplicate, protocol.RespDuplicate
		case err != nil:
			return e.failed(cmd, err)
		}
		e.mutated()
		return protocol.RespOK, protocol.RespOK

	case protocol.CmdGet:
		value, ok := e.store.Search(cmd.Key)
		if !ok {
			return protocol.RespNotFound, protocol.RespNotFound
		}
		return value, "FOUND"

	case protocol.CmdUpdate:
		err := e.store.Update(cmd.Key, cmd.Value)
		switch {
		case errors.Is(err, storage.ErrKeyNotFound):
			return protocol.RespNotFound, protocol.RespNotFound
		case err != nil:
			return e.failed(cmd, err)
		}
		return protocol.RespOK, protocol.RespOK

	case protocol.CmdDel:
		err := e.store.Delete(cmd.Key)
		switch {
		case errors.Is(err, storage.ErrKeyNotFound):
			return protocol.RespNotFound, protocol.RespNotFound
		case err != nil:
			return e.failed(cmd, err)
		}
		e.mutated()
		return protocol.RespOK, protocol.RespOK

	case protocol.CmdPing:
		return protocol.RespPong, protocol.RespPong

	case protocol.CmdSize:
		return strconv.Itoa(e.store.Len()), protocol.RespOK
	}

	// Parse only returns known commands
	e.logger.Error("unhandled command", zap.String("command", cmd.Name))
	return protocol.RespError, protocol.RespError
}

// failed reports a store error the protocol has no dedicated reply for.
func (e *Engine) failed(cmd *protocol.Command, err error) (string, string) {
	e.logger.Error("command failed", zap.String("command", cmd.Name), zap.String("key", cmd.Key), zap.Error(err))
	return protocol.RespError, protocol.RespError
}

func (e *Engine) mutated() {
	metrics.Entries.Set(float64(e.store.Len()))
}

// Close tears down the table. It fails if any bucket lock is still held.
func (e *Engine) Close() error {
	if err := e.table.Close(); err != nil {
		return errors.Wrap(err, "close engine")
	}
	metrics.Entries.Set(0)
	return nil
}
