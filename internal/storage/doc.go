// Package storage provides Table, the sharded in-memory hash table that backs
// the skvs store engine, and the Store interface the engine dispatches to.
//
// # Overview
//
// A Table owns a fixed array of buckets (internal/shard). The bucket count is
// chosen at construction and never changes; there is no rehashing.
//
//	┌─────────────────────────────────────┐
//	│         Engine (dispatcher)         │
//	└─────────────────────────────────────┘
//	                 │  Store interface
//	                 ▼
//	┌─────────────────────────────────────┐
//	│               Table                 │
//	│   key ─► shard.Index ─► bucket i    │
//	│   total entry counter (atomic)      │
//	└─────────────────────────────────────┘
//	    │         │         │
//	    ▼         ▼         ▼
//	┌───────┐ ┌───────┐ ┌───────┐
//	│ Shard │ │ Shard │ │ Shard │  each with its own FairRWLock
//	└───────┘ └───────┘ └───────┘
//
// # Core Operations
//
//   - Insert(key, value) - store if absent, ErrDuplicateKey otherwise
//   - Search(key)        - read-locked lookup
//   - Update(key, value) - overwrite, ErrKeyNotFound if absent
//   - Delete(key)        - remove, ErrKeyNotFound if absent
//   - Len()              - running entry count
//
// Diagnostics:
//   - Snapshot() - per-bucket entry counts, bytes, lock state, op counters
//   - Stats()    - aggregated keys, bytes and bucket count
//   - Dump(w)    - text dump of every non-empty bucket
//
// # Concurrency and Thread Safety
//
// Locking Strategy:
//   - The bucket index is computed without locks (pure function of the key)
//   - Search takes the bucket's read lock, mutations take its write lock
//   - No operation holds more than one bucket lock, there is no table lock
//
// Consistency Guarantees:
//   - All writes to one bucket are totally ordered
//   - Reads observe some serialization of completed writes to that bucket
//   - No ordering across buckets
//   - Len may be transiently stale during concurrent mutation bursts
//
// # Error Handling
//
// ErrKeyNotFound: Key doesn't exist in the table
//   - Returned by Update() and Delete()
//
// ErrDuplicateKey: Key already exists
//   - Returned by Insert(); the stored value is unchanged
//   - Use Update() to overwrite
//
// ErrInvalidBucketCount, ErrInvalidDelay: rejected table geometry
//   - Returned by NewTable()
//
// Close fails with rwlock.ErrLockHeld if a bucket is still in use; that is a
// programming error and callers should treat it as fatal.
//
// # Usage Examples
//
//	table, err := storage.NewTable(1024, 0)
//	if err != nil {
//	    log.Fatalf("Failed to create table: %v", err)
//	}
//	defer table.Close()
//
//	if err := table.Insert("user:123", "alice"); errors.Is(err, storage.ErrDuplicateKey) {
//	    _ = table.Update("user:123", "alice")
//	}
//
//	value, ok := table.Search("user:123")
//
//	_ = table.Dump(os.Stdout)
package storage
