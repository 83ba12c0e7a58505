// Package latch implements the per-region latch manager from spec.md
// §4.3: the sole admission gate between concurrent writers touching the
// same keys. pkg/txn holds a write request's latches from before it
// reads the keys' Write/Lock records until its batch is written;
// conflicts between different timestamps are still decided by those
// MVCC records, not by the latches.
package latch

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/dingodb/dingo-store/pkg/metrics"
)

const shardCount = 256

// Manager grants and releases latches on behalf of writers identified
// by an opaque "who" token (typically a request id).
type Manager struct {
	shards [shardCount]shard
}

type shard struct {
	mu    sync.Mutex
	owned map[uint64]ownerWait // key hash -> current owner + waiters
}

type ownerWait struct {
	hasOwner bool
	owner    uint64
	waiters  []waiter
}

// waiter is a blocked Acquire call's notification channel, tagged with
// who it belongs to so the waking side can hand over ownership
// directly instead of re-running the full tryAcquireAll scan.
type waiter struct {
	who uint64
	ch  chan struct{}
}

// NewManager creates an empty latch manager.
func NewManager() *Manager {
	m := &Manager{}
	for i := range m.shards {
		m.shards[i].owned = make(map[uint64]ownerWait)
	}
	return m
}

func keyHash(key []byte) uint64 {
	h := fnv.New64a()
	h.Write(key)
	return h.Sum64()
}

func (m *Manager) shardFor(h uint64) *shard {
	return &m.shards[h%shardCount]
}

// Acquire blocks until who owns the latch for every key in keys. Keys
// are deduplicated and sorted by hash before acquisition so that two
// concurrent Acquire calls touching an overlapping key set always
// request latches in the same order, and so a writer never holds a
// latch while waiting on another — a failed immediate acquisition
// releases everything already held for this call before blocking on
// the one that was busy, so there is no hold-and-wait.
func (m *Manager) Acquire(keys [][]byte, who uint64) {
	hashes := dedupSortedHashes(keys)
	if len(hashes) == 0 {
		return
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.LatchWaitDuration)

	for {
		held, waitCh := m.tryAcquireAll(hashes, who)
		if waitCh == nil {
			metrics.LatchesHeld.Add(float64(len(hashes)))
			return
		}
		// release whatever we picked up before blocking: no hold-and-wait.
		m.releaseHashes(held, who)
		<-waitCh
	}
}

// tryAcquireAll attempts to grab every hash for who in order. On the
// first busy key it returns the hashes it already grabbed (to be
// released by the caller) and a channel to wait on.
func (m *Manager) tryAcquireAll(hashes []uint64, who uint64) (granted []uint64, waitCh chan struct{}) {
	for i, h := range hashes {
		s := m.shardFor(h)
		s.mu.Lock()
		ow, exists := s.owned[h]
		if !exists || !ow.hasOwner {
			ow.hasOwner = true
			ow.owner = who
			s.owned[h] = ow
			s.mu.Unlock()
			granted = append(granted, h)
			continue
		}
		if ow.owner == who {
			// already ours (reentrant within this call's key set, or a
			// duplicate hash collision); treat as granted.
			s.mu.Unlock()
			granted = append(granted, h)
			continue
		}
		ch := make(chan struct{})
		ow.waiters = append(ow.waiters, waiter{who: who, ch: ch})
		s.owned[h] = ow
		s.mu.Unlock()
		return hashes[:i], ch
	}
	return hashes, nil
}

// Release releases every latch who holds among keys and wakes the
// next waiter, if any, on each.
func (m *Manager) Release(keys [][]byte, who uint64) {
	hashes := dedupSortedHashes(keys)
	m.releaseHashes(hashes, who)
	metrics.LatchesHeld.Add(-float64(len(hashes)))
}

func (m *Manager) releaseHashes(hashes []uint64, who uint64) {
	for _, h := range hashes {
		s := m.shardFor(h)
		s.mu.Lock()
		ow, ok := s.owned[h]
		if !ok || !ow.hasOwner || ow.owner != who {
			s.mu.Unlock()
			continue
		}
		if len(ow.waiters) == 0 {
			delete(s.owned, h)
			s.mu.Unlock()
			continue
		}
		// hand ownership straight to the next waiter before waking it,
		// so it never observes the key as free for someone else to steal.
		next := ow.waiters[0]
		ow.waiters = ow.waiters[1:]
		ow.owner = next.who
		s.owned[h] = ow
		s.mu.Unlock()
		close(next.ch)
	}
}

func dedupSortedHashes(keys [][]byte) []uint64 {
	seen := make(map[uint64]struct{}, len(keys))
	hashes := make([]uint64, 0, len(keys))
	for _, k := range keys {
		h := keyHash(k)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	return hashes
}
