// Package shard implements one bucket of the skvs hash table: a
// self-contained, independently locked partition of the key space.
//
// # Overview
//
// A table of N buckets routes every key to exactly one shard with Index.
// The mapping is fixed for the table's lifetime, so an entry never moves
// between shards and the uniqueness of a key inside its shard implies
// uniqueness across the table.
//
//	┌─────────────────────────────────────┐
//	│               SHARD                 │
//	├─────────────────────────────────────┤
//	│  ID        bucket index in [0, N)   │
//	│  lock      rwlock.FairRWLock        │
//	│  entries   []Entry (owned)          │
//	│  total  ──► table-wide counter      │
//	│  ops       search/insert/... counts │
//	└─────────────────────────────────────┘
//
// # Operations
//
//   - Search takes the read lock and scans the entries
//   - Insert, Update and Delete take the write lock and scan the entries
//   - Insert on an existing key is a no-op returning ErrDuplicateKey
//   - Update and Delete on a missing key return ErrKeyNotFound
//
// A mutation is applied only after the scan has decided its outcome, so a
// failed operation never changes the entry sequence. The table-wide counter
// is adjusted while the write lock is still held; updates from different
// shards are not serialized with each other, so a concurrent reader of the
// counter may observe a transient value.
//
// # Thread Safety
//
// Every exported method is safe for concurrent use. No method holds more
// than one shard's lock, and no lock outlives the call that took it.
package shard
