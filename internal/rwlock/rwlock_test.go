package rwlock

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitState polls the lock until cond holds or the deadline passes.
func waitState(t *testing.T, lock *FairRWLock, cond func(State) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(lock.State()) },
		2*time.Second, time.Millisecond, "lock never reached expected state")
}

// TestReadersShareLock verifies that many readers hold the lock at once.
func TestReadersShareLock(t *testing.T) {
	lock := New(0)
	const readers = 8

	var entered sync.WaitGroup
	var done sync.WaitGroup
	release := make(chan struct{})

	entered.Add(readers)
	done.Add(readers)
	for i := 0; i < readers; i++ {
		go func() {
			defer done.Done()
			lock.RLock()
			entered.Done()
			<-release
			lock.RUnlock()
		}()
	}

	// Every reader must get in while the others still hold the lock
	allIn := make(chan struct{})
	go func() {
		entered.Wait()
		close(allIn)
	}()
	select {
	case <-allIn:
	case <-time.After(2 * time.Second):
		t.Fatal("readers were not admitted concurrently")
	}

	st := lock.State()
	assert.Equal(t, readers, st.ReadCount)
	assert.Equal(t, 0, st.WriteCount)
	assert.False(t, st.Writing)

	close(release)
	done.Wait()
	assert.Equal(t, State{}, lock.State())
}

// TestWritersAreExclusive verifies mutual exclusion between writers.
func TestWritersAreExclusive(t *testing.T) {
	lock := New(0)
	const workers = 8
	const iterations = 500

	counter := 0
	inside := 0
	overlap := false

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				lock.Lock()
				inside++
				if inside != 1 {
					overlap = true
				}
				counter++
				inside--
				lock.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.False(t, overlap, "two writers were inside the critical section")
	assert.Equal(t, workers*iterations, counter)
	assert.Equal(t, State{}, lock.State())
}

// TestReaderBlocksWhileWriterHolds verifies that readers wait for an active writer.
func TestReaderBlocksWhileWriterHolds(t *testing.T) {
	lock := New(0)
	lock.Lock()

	acquired := make(chan struct{})
	go func() {
		lock.RLock()
		close(acquired)
		lock.RUnlock()
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired the lock while a writer held it")
	case <-time.After(50 * time.Millisecond):
	}

	lock.Unlock()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("reader was not woken after writer released")
	}
}

// TestWriterWaitsForActiveReaders verifies that admitted readers drain before a writer.
func TestWriterWaitsForActiveReaders(t *testing.T) {
	lock := New(0)
	lock.RLock()

	acquired := make(chan struct{})
	go func() {
		lock.Lock()
		close(acquired)
		lock.Unlock()
	}()

	waitState(t, lock, func(s State) bool { return s.WriteCount == 1 })
	select {
	case <-acquired:
		t.Fatal("writer acquired the lock while a reader held it")
	case <-time.After(50 * time.Millisecond):
	}

	lock.RUnlock()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("writer was not woken by the last reader")
	}
}

// TestQueuedWriterBlocksNewReaders verifies writer preference: a reader that
// arrives after a writer has queued waits behind that writer.
func TestQueuedWriterBlocksNewReaders(t *testing.T) {
	lock := New(0)
	lock.RLock() // first reader, admitted before the writer

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		lock.Lock()
		record("writer")
		lock.Unlock()
	}()
	waitState(t, lock, func(s State) bool { return s.WriteCount == 1 })

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		lock.RLock()
		record("reader")
		lock.RUnlock()
	}()

	select {
	case <-readerDone:
		t.Fatal("late reader overtook a queued writer")
	case <-time.After(50 * time.Millisecond):
	}

	lock.RUnlock()
	<-writerDone
	<-readerDone

	assert.Equal(t, []string{"writer", "reader"}, order)
}

// TestWriterNotStarvedByReaders runs overlapping readers in a tight loop so
// the read count never drops to zero on its own. A lock that only checks for
// an active writer would starve the writer forever.
func TestWriterNotStarvedByReaders(t *testing.T) {
	lock := New(0)
	stop := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				lock.RLock()
				time.Sleep(time.Millisecond)
				lock.RUnlock()
			}
		}()
	}
	defer func() {
		close(stop)
		wg.Wait()
	}()

	waitState(t, lock, func(s State) bool { return s.ReadCount > 0 })

	acquired := make(chan time.Duration, 1)
	go func() {
		start := time.Now()
		lock.Lock()
		acquired <- time.Since(start)
		lock.Unlock()
	}()

	select {
	case waited := <-acquired:
		assert.Less(t, waited, time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("writer starved by continuous readers")
	}
}

// TestWritersServedInArrivalOrder verifies FIFO admission of queued writers.
func TestWritersServedInArrivalOrder(t *testing.T) {
	lock := New(0)
	lock.Lock()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			lock.Lock()
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			lock.Unlock()
		}(i)
		// Queue each writer before starting the next one
		want := i + 1
		waitState(t, lock, func(s State) bool { return s.WriteCount == want })
	}

	lock.Unlock()
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, order)
}

// TestHoldDelay verifies that release sleeps for the configured delay.
func TestHoldDelay(t *testing.T) {
	delay := 30 * time.Millisecond
	lock := New(delay)
	assert.Equal(t, delay, lock.Delay())

	lock.Lock()
	start := time.Now()
	lock.Unlock()
	assert.GreaterOrEqual(t, time.Since(start), delay)

	lock.RLock()
	start = time.Now()
	lock.RUnlock()
	assert.GreaterOrEqual(t, time.Since(start), delay)

	assert.Equal(t, time.Duration(0), New(-time.Second).Delay())
}

// TestClose covers the lock lifecycle and programming-error panics.
func TestClose(t *testing.T) {
	t.Run("close held by reader", func(t *testing.T) {
		lock := New(0)
		lock.RLock()
		err := lock.Close()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrLockHeld))

		// Lock stays usable after a failed close
		lock.RUnlock()
		require.NoError(t, lock.Close())
	})

	t.Run("close held by writer", func(t *testing.T) {
		lock := New(0)
		lock.Lock()
		assert.True(t, errors.Is(lock.Close(), ErrLockHeld))
		lock.Unlock()
		assert.NoError(t, lock.Close())
	})

	t.Run("close twice", func(t *testing.T) {
		lock := New(0)
		require.NoError(t, lock.Close())
		assert.NoError(t, lock.Close())
	})

	t.Run("use after close panics", func(t *testing.T) {
		lock := New(0)
		require.NoError(t, lock.Close())
		assert.Panics(t, func() { lock.RLock() })
		assert.Panics(t, func() { lock.Lock() })
	})

	t.Run("unbalanced release panics", func(t *testing.T) {
		lock := New(0)
		assert.Panics(t, func() { lock.RUnlock() })
		assert.Panics(t, func() { lock.Unlock() })
	})
}
