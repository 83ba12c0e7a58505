package latch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquireReleaseSingleKey(t *testing.T) {
	m := NewManager()
	keys := [][]byte{[]byte("k1")}

	m.Acquire(keys, 1)
	m.Release(keys, 1)

	// a second acquire must not block now that it was released
	done := make(chan struct{})
	go func() {
		m.Acquire(keys, 2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire blocked after release")
	}
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	m := NewManager()
	keys := [][]byte{[]byte("shared")}

	m.Acquire(keys, 1)

	acquired := make(chan struct{})
	go func() {
		m.Acquire(keys, 2)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	m.Release(keys, 1)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never unblocked after release")
	}
}

func TestAcquireNoHoldAndWait(t *testing.T) {
	m := NewManager()

	// who=1 holds "b" only.
	m.Acquire([][]byte{[]byte("b")}, 1)

	var aHeldDuringWait int32
	done := make(chan struct{})
	go func() {
		// who=2 wants "a" and "b" in sorted order; it must acquire "a"
		// and then release it before blocking on "b", never holding
		// both "a" and the wait on "b" at once.
		m.Acquire([][]byte{[]byte("a"), []byte("b")}, 2)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	// "a" must be free for a third writer while who=2 waits on "b".
	acquiredA := make(chan struct{})
	go func() {
		m.Acquire([][]byte{[]byte("a")}, 3)
		atomic.StoreInt32(&aHeldDuringWait, 1)
		m.Release([][]byte{[]byte("a")}, 3)
		close(acquiredA)
	}()

	select {
	case <-acquiredA:
	case <-time.After(time.Second):
		t.Fatal("\"a\" was not free while who=2 waited on \"b\" — hold-and-wait occurred")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&aHeldDuringWait))

	m.Release([][]byte{[]byte("b")}, 1)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("who=2 never completed acquisition of a and b")
	}
	m.Release([][]byte{[]byte("a"), []byte("b")}, 2)
}

func TestConcurrentWritersMutuallyExclusive(t *testing.T) {
	m := NewManager()
	keys := [][]byte{[]byte("hot")}

	var counter int32
	var wg sync.WaitGroup
	const n = 50
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(who uint64) {
			defer wg.Done()
			m.Acquire(keys, who)
			v := atomic.AddInt32(&counter, 1)
			assert.Equal(t, int32(1), v) // only one writer at a time
			atomic.AddInt32(&counter, -1)
			m.Release(keys, who)
		}(uint64(i) + 1)
	}
	wg.Wait()
}
