package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/dreamware/skvs/internal/server"
	"github.com/dreamware/skvs/internal/shard"
	"github.com/dreamware/skvs/internal/storage"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"127.0.0.1:9100", "http://127.0.0.1:9100/health"},
		{"http://localhost:9100", "http://localhost:9100/health"},
		{"https://status.example:443/", "https://status.example:443/health"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewClient(tt.addr).URL("/health"), tt.addr)
	}
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		assert.NoError(t, NewClient(srv.URL).Health(context.Background()))
	})

	t.Run("unhealthy status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		err := NewClient(srv.URL).Health(context.Background())
		assert.True(t, errors.Is(err, ErrUnhealthy))
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		assert.Error(t, NewClient(addr).Health(context.Background()))
	})
}

func TestWaitHealthy(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		calls := atomic.NewInt32(0)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			// Fails twice before becoming healthy
			if calls.Inc() <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, NewClient(srv.URL).WaitHealthy(ctx, 10*time.Millisecond))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		err := NewClient(srv.URL).WaitHealthy(ctx, 10*time.Millisecond)
		assert.True(t, errors.Is(err, ErrUnhealthy))
	})
}

func TestInfo(t *testing.T) {
	want := server.Info{
		Addr:      "127.0.0.1:8080",
		Workers:   4,
		LockDelay: "0s",
		Stats:     storage.StoreStats{Keys: 1, Bytes: 2, Buckets: 2},
		Buckets: []shard.ShardInfo{
			{ID: 0},
			{ID: 1, Entries: 1, Bytes: 2, Ops: shard.OperationStats{Inserts: 1}},
		},
	}

	t.Run("decodes", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/info", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(want)
		}))
		defer srv.Close()

		got, err := NewClient(srv.URL).Info(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, *got)
	})

	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		_, err := NewClient(srv.URL).Info(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("bad body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer srv.Close()

		_, err := NewClient(strings.TrimPrefix(srv.URL, "http://")).Info(context.Background())
		assert.Error(t, err)
	})
}
