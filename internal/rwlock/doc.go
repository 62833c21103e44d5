// Package rwlock provides FairRWLock, the reader/writer lock that guards each
// bucket of the skvs hash table.
//
// # Overview
//
// sync.RWMutex would serve most callers, but the store needs two things the
// standard lock does not expose: observable lock state for diagnostics (the
// table dump prints the read and write counts of every bucket) and an
// artificial hold delay that widens race windows in tests and demos.
// FairRWLock is a small state machine guarded by one mutex and two condition
// variables.
//
// # Semantics
//
//	┌──────────────┬─────────────────────────────────────────────┐
//	│ RLock        │ blocks while a writer holds or waits        │
//	│ RUnlock      │ last reader out wakes the writer queue      │
//	│ Lock         │ takes a ticket, blocks until it is served,  │
//	│              │ no reader is active and no writer holds     │
//	│ Unlock       │ serves the next ticket, wakes all readers   │
//	└──────────────┴─────────────────────────────────────────────┘
//
// Writers are preferred: once a writer is queued, new readers wait behind it,
// so a stream of overlapping readers can never starve a writer. Readers that
// were admitted before the writer arrived drain first. Queued writers are
// served in arrival order (ticket FIFO). When the last queued writer releases
// the lock, every waiting reader is admitted together.
//
// # Counters
//
// ReadCount is the number of active readers. WriteCount is the number of
// writers that hold or wait for the lock. The invariants are:
//
//	ReadCount > 0  ⇒ no writer holds the lock
//	writer holds   ⇒ ReadCount == 0
//
// # Hold delay
//
// A lock built with a non-zero delay sleeps at the start of every release,
// before the state changes, so the holder keeps the lock for at least the
// delay. The delay is a testing aid and takes no part in correctness.
//
// # Lifecycle
//
// Close retires the lock. Closing a lock that is held or awaited returns
// ErrLockHeld and leaves the lock usable; acquiring a closed lock or
// releasing a lock that is not held panics, because both are programming
// errors that must not be masked.
//
// # Usage
//
//	lock := rwlock.New(0)
//
//	lock.RLock()
//	v := readSharedState()
//	lock.RUnlock()
//
//	lock.Lock()
//	mutateSharedState()
//	lock.Unlock()
//
//	if err := lock.Close(); err != nil {
//	    log.Fatal(err)
//	}
package rwlock
