package rwlock

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrLockHeld is returned by Close when readers or writers still hold or wait
// for the lock.
var ErrLockHeld = errors.New("rwlock: lock is held")

// State is a point-in-time copy of the lock counters.
type State struct {
	ReadCount  int  // Active readers
	WriteCount int  // Writers holding or queued
	Writing    bool // A writer holds the lock
}

// FairRWLock is a writer-preferring reader/writer lock with FIFO writer
// admission. The zero value is not usable; construct with New.
type FairRWLock struct {
	mu      sync.Mutex
	readers *sync.Cond // Readers wait here while writers hold or queue
	writers *sync.Cond // Writers wait here for their ticket

	readCount  int
	writeCount int
	writing    bool

	// nextTicket is handed to the next arriving writer; serving is the ticket
	// allowed to proceed once readers drain.
	nextTicket uint64
	serving    uint64

	delay  time.Duration
	closed bool
}

// New creates an unlocked FairRWLock. A positive delay is slept at the start
// of every release while the lock is still held.
func New(delay time.Duration) *FairRWLock {
	if delay < 0 {
		delay = 0
	}
	rw := &FairRWLock{delay: delay}
	rw.readers = sync.NewCond(&rw.mu)
	rw.writers = sync.NewCond(&rw.mu)
	return rw
}

// RLock acquires shared access. It blocks while a writer holds the lock or
// is queued for it.
func (rw *FairRWLock) RLock() {
	rw.mu.Lock()
	rw.mustBeOpen()
	for rw.writeCount > 0 {
		rw.readers.Wait()
	}
	rw.readCount++
	rw.mu.Unlock()
}

// RUnlock releases shared access. The last reader out wakes the writer queue.
func (rw *FairRWLock) RUnlock() {
	rw.hold()

	rw.mu.Lock()
	if rw.readCount <= 0 {
		rw.mu.Unlock()
		panic("rwlock: RUnlock of unlocked FairRWLock")
	}
	rw.readCount--
	if rw.readCount == 0 && rw.writeCount > 0 {
		rw.writers.Broadcast()
	}
	rw.mu.Unlock()
}

// Lock acquires exclusive access. The caller is queued behind writers that
// arrived earlier and proceeds once every admitted reader has left.
func (rw *FairRWLock) Lock() {
	rw.mu.Lock()
	rw.mustBeOpen()
	ticket := rw.nextTicket
	rw.nextTicket++
	rw.writeCount++
	for rw.writing || rw.readCount > 0 || ticket != rw.serving {
		rw.writers.Wait()
	}
	rw.writing = true
	rw.mu.Unlock()
}

// Unlock releases exclusive access. The next queued writer, if any, is
// served; every waiting reader is woken and proceeds when no writer remains.
func (rw *FairRWLock) Unlock() {
	rw.hold()

	rw.mu.Lock()
	if !rw.writing {
		rw.mu.Unlock()
		panic("rwlock: Unlock of unlocked FairRWLock")
	}
	rw.writing = false
	rw.writeCount--
	rw.serving++
	// Broadcast on writers: only the holder of the served ticket passes the
	// wait predicate, the rest go back to sleep.
	if rw.writeCount > 0 {
		rw.writers.Broadcast()
	}
	rw.readers.Broadcast()
	rw.mu.Unlock()
}

// State returns a snapshot of the lock counters. The values may be stale by
// the time the caller reads them.
func (rw *FairRWLock) State() State {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return State{
		ReadCount:  rw.readCount,
		WriteCount: rw.writeCount,
		Writing:    rw.writing,
	}
}

// Delay returns the configured hold delay.
func (rw *FairRWLock) Delay() time.Duration {
	return rw.delay
}

// Close retires the lock. It fails with ErrLockHeld if any reader or writer
// holds or waits for the lock; in that case the lock stays usable.
// Closing an already closed lock is a no-op.
func (rw *FairRWLock) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.readCount > 0 || rw.writeCount > 0 {
		return errors.Wrapf(ErrLockHeld, "readers=%d writers=%d", rw.readCount, rw.writeCount)
	}
	rw.closed = true
	return nil
}

func (rw *FairRWLock) hold() {
	if rw.delay > 0 {
		time.Sleep(rw.delay)
	}
}

// mustBeOpen must be called with rw.mu held.
func (rw *FairRWLock) mustBeOpen() {
	if rw.closed {
		rw.mu.Unlock()
		panic("rwlock: use of closed FairRWLock")
	}
}
