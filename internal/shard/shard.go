package shard

import (
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/exp/slices"

	"github.com/dreamware/skvs/internal/rwlock"
)

var (
	// ErrKeyNotFound is returned when a key doesn't exist in the shard
	ErrKeyNotFound = errors.New("key not found")

	// ErrDuplicateKey is returned by Insert when the key is already present
	ErrDuplicateKey = errors.New("duplicate key")
)

// Entry is a single key/value pair owned by a shard
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Shard is one bucket of the hash table. It owns the entries whose keys hash
// to its ID and guards them with its own FairRWLock.
type Shard struct {
	ID      int                // Bucket index in [0, N)
	lock    *rwlock.FairRWLock // Guards entries
	entries []Entry            // Owned entry sequence, keys unique
	total   *atomic.Int64      // Table-wide entry counter, shared by all shards
	ops     opCounters
}

// OperationStats tracks operation counts
type OperationStats struct {
	Searches uint64 `json:"searches"` // Number of search operations
	Inserts  uint64 `json:"inserts"`  // Number of successful inserts
	Updates  uint64 `json:"updates"`  // Number of successful updates
	Deletes  uint64 `json:"deletes"`  // Number of successful deletes
}

type opCounters struct {
	searches atomic.Uint64
	inserts  atomic.Uint64
	updates  atomic.Uint64
	deletes  atomic.Uint64
}

// ShardInfo contains metadata about a shard
type ShardInfo struct {
	ID         int            `json:"id"`          // Shard identifier
	Entries    int            `json:"entries"`     // Number of entries
	Bytes      int            `json:"bytes"`       // Total key and value bytes
	ReadCount  int            `json:"read_count"`  // Active readers at snapshot time
	WriteCount int            `json:"write_count"` // Writers holding or queued at snapshot time
	Ops        OperationStats `json:"operations"`
}

// NewShard creates an empty shard guarded by lock. total is the table-wide
// entry counter and may be shared by any number of shards.
func NewShard(id int, total *atomic.Int64, lock *rwlock.FairRWLock) *Shard {
	if total == nil {
		total = atomic.NewInt64(0)
	}
	if lock == nil {
		lock = rwlock.New(0)
	}
	return &Shard{
		ID:    id,
		lock:  lock,
		total: total,
	}
}

// Index maps key to one of n shards. The hash accumulates the key bytes with
// a shift-and-add step; it is deterministic and not collision resistant.
func Index(key string, n int) int {
	if n <= 0 {
		return 0
	}
	var h uint32
	for i := 0; i < len(key); i++ {
		h = (h << 5) + uint32(key[i])
	}
	return int(h % uint32(n))
}

// OwnsKey reports whether key hashes to this shard among numShards shards
func (s *Shard) OwnsKey(key string, numShards int) bool {
	if numShards <= 0 {
		return false
	}
	return Index(key, numShards) == s.ID
}

// Insert adds key with value. An existing key is left untouched and
// ErrDuplicateKey is returned.
func (s *Shard) Insert(key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.find(key) >= 0 {
		return ErrDuplicateKey
	}
	s.entries = append(s.entries, Entry{Key: key, Value: value})
	s.total.Inc()
	s.ops.inserts.Inc()
	return nil
}

// Search returns the value stored for key
func (s *Shard) Search(key string) (string, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	s.ops.searches.Inc()
	i := s.find(key)
	if i < 0 {
		return "", false
	}
	return s.entries[i].Value, true
}

// Update replaces the value of an existing key
func (s *Shard) Update(key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	i := s.find(key)
	if i < 0 {
		return ErrKeyNotFound
	}
	s.entries[i].Value = value
	s.ops.updates.Inc()
	return nil
}

// Delete removes key and decrements the shard and table counters while the
// write lock is still held.
func (s *Shard) Delete(key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	i := s.find(key)
	if i < 0 {
		return ErrKeyNotFound
	}
	s.entries = slices.Delete(s.entries, i, i+1)
	s.total.Dec()
	s.ops.deletes.Inc()
	return nil
}

// Len returns the number of entries in the shard
func (s *Shard) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.entries)
}

// Entries returns a copy of the shard's entries in storage order
func (s *Shard) Entries() []Entry {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return slices.Clone(s.entries)
}

// LockState returns the counters of the shard's lock
func (s *Shard) LockState() rwlock.State {
	return s.lock.State()
}

// Info returns metadata about the shard. Lock counters are sampled before
// the shard's read lock is taken so they reflect other callers only.
func (s *Shard) Info() ShardInfo {
	state := s.lock.State()

	s.lock.RLock()
	entries := len(s.entries)
	size := 0
	for _, e := range s.entries {
		size += len(e.Key) + len(e.Value)
	}
	s.lock.RUnlock()

	return ShardInfo{
		ID:         s.ID,
		Entries:    entries,
		Bytes:      size,
		ReadCount:  state.ReadCount,
		WriteCount: state.WriteCount,
		Ops:        s.GetStats(),
	}
}

// GetStats returns current operation counters
func (s *Shard) GetStats() OperationStats {
	return OperationStats{
		Searches: s.ops.searches.Load(),
		Inserts:  s.ops.inserts.Load(),
		Updates:  s.ops.updates.Load(),
		Deletes:  s.ops.deletes.Load(),
	}
}

// Close drops the entries and retires the lock. It fails if the lock is held.
func (s *Shard) Close() error {
	if err := s.lock.Close(); err != nil {
		return errors.Wrapf(err, "close shard %d", s.ID)
	}
	s.total.Sub(int64(len(s.entries)))
	s.entries = nil
	return nil
}

// find must be called with the lock held
func (s *Shard) find(key string) int {
	return slices.IndexFunc(s.entries, func(e Entry) bool { return e.Key == key })
}
