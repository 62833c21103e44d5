package storage

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/dreamware/skvs/internal/rwlock"
	"github.com/dreamware/skvs/internal/shard"
)

var (
	// ErrKeyNotFound is returned when a key doesn't exist in the store
	ErrKeyNotFound = shard.ErrKeyNotFound

	// ErrDuplicateKey is returned by Insert when the key already exists
	ErrDuplicateKey = shard.ErrDuplicateKey

	// ErrInvalidBucketCount is returned when a table is built with no buckets
	ErrInvalidBucketCount = errors.New("bucket count must be positive")

	// ErrInvalidDelay is returned when a table is built with a negative lock delay
	ErrInvalidDelay = errors.New("lock delay must not be negative")
)

// Store defines the key-value operations the engine dispatches to.
// All implementations must be thread-safe for concurrent access.
type Store interface {
	// Insert stores value under key if the key is absent.
	// Returns ErrDuplicateKey and leaves the store unchanged otherwise.
	Insert(key, value string) error

	// Search retrieves the value stored for key
	Search(key string) (string, bool)

	// Update overwrites the value of an existing key.
	// Returns ErrKeyNotFound if the key doesn't exist.
	Update(key, value string) error

	// Delete removes a key-value pair.
	// Returns ErrKeyNotFound if the key doesn't exist.
	Delete(key string) error

	// Len returns the number of entries in the store
	Len() int
}

// StoreStats contains statistics about the store
type StoreStats struct {
	Keys    int `json:"keys"`    // Number of keys
	Bytes   int `json:"bytes"`   // Total size of all keys and values in bytes
	Buckets int `json:"buckets"` // Number of buckets
}

// Table is a fixed-size hash table of independently locked buckets.
// Operations on different buckets run in parallel; operations on the same
// bucket are ordered by that bucket's FairRWLock.
type Table struct {
	shards []*shard.Shard
	total  *atomic.Int64 // Running entry count, shared by all shards
	delay  time.Duration
}

var _ Store = (*Table)(nil)

// NewTable creates a table of buckets buckets, each guarded by its own lock
// with the given hold delay.
func NewTable(buckets int, delay time.Duration) (*Table, error) {
	if buckets <= 0 {
		return nil, errors.Wrapf(ErrInvalidBucketCount, "buckets=%d", buckets)
	}
	if delay < 0 {
		return nil, errors.Wrapf(ErrInvalidDelay, "delay=%s", delay)
	}

	t := &Table{
		shards: make([]*shard.Shard, buckets),
		total:  atomic.NewInt64(0),
		delay:  delay,
	}
	for i := range t.shards {
		t.shards[i] = shard.NewShard(i, t.total, rwlock.New(delay))
	}
	return t, nil
}

// BucketCount returns the fixed number of buckets
func (t *Table) BucketCount() int {
	return len(t.shards)
}

// LockDelay returns the hold delay applied to every bucket lock
func (t *Table) LockDelay() time.Duration {
	return t.delay
}

// Bucket returns the bucket index that owns key
func (t *Table) Bucket(key string) int {
	return shard.Index(key, len(t.shards))
}

func (t *Table) shardFor(key string) *shard.Shard {
	return t.shards[t.Bucket(key)]
}

// Insert stores value under key if the key is absent
func (t *Table) Insert(key, value string) error {
	return t.shardFor(key).Insert(key, value)
}

// Search retrieves the value stored for key
func (t *Table) Search(key string) (string, bool) {
	return t.shardFor(key).Search(key)
}

// Update overwrites the value of an existing key
func (t *Table) Update(key, value string) error {
	return t.shardFor(key).Update(key, value)
}

// Delete removes key from its bucket
func (t *Table) Delete(key string) error {
	return t.shardFor(key).Delete(key)
}

// Len returns the running entry count. Under concurrent mutation the value
// may be transiently stale.
func (t *Table) Len() int {
	return int(t.total.Load())
}

// Snapshot returns per-bucket metadata in bucket order. Each bucket is
// sampled under its own read lock; the snapshot as a whole is not atomic.
func (t *Table) Snapshot() []shard.ShardInfo {
	infos := make([]shard.ShardInfo, 0, len(t.shards))
	for _, s := range t.shards {
		infos = append(infos, s.Info())
	}
	return infos
}

// Stats returns storage statistics aggregated over all buckets
func (t *Table) Stats() StoreStats {
	stats := StoreStats{Buckets: len(t.shards)}
	for _, info := range t.Snapshot() {
		stats.Keys += info.Entries
		stats.Bytes += info.Bytes
	}
	return stats
}

// Dump writes every non-empty bucket with its lock state and entries to w.
// It is a diagnostic read and takes each bucket's read lock in turn.
func (t *Table) Dump(w io.Writer) error {
	ew := &errWriter{w: w}
	ew.printf("[Hash Table Dump]\n")
	ew.printf("Total Entries: %d\n", t.Len())
	for _, s := range t.shards {
		state := s.LockState()
		entries := s.Entries()
		if len(entries) == 0 {
			continue
		}
		ew.printf("Bucket %d: %d entries\n", s.ID, len(entries))
		ew.printf("  Lock State -> Read Count: %d, Write Count: %d\n", state.ReadCount, state.WriteCount)
		for _, e := range entries {
			ew.printf("    Key:   %s\n    Value: %s\n", e.Key, e.Value)
		}
	}
	ew.printf("End of Dump\n")
	return errors.Wrap(ew.err, "dump table")
}

// Close releases every bucket. It stops at the first bucket whose lock is
// still held and returns that error; using the table afterwards panics.
func (t *Table) Close() error {
	for _, s := range t.shards {
		if err := s.Close(); err != nil {
			return errors.Wrap(err, "close table")
		}
	}
	return nil
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
