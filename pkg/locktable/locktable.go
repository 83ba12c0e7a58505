// Package locktable implements the memory lock table from spec.md
// §4.4: an in-memory mirror of the durable Lock CF that lets read
// paths detect a conflicting in-flight write without touching storage.
// Unlike pkg/latch, this table never blocks a caller — it only reports
// a conflict for the client to resolve via CheckTxnStatus/ResolveLock.
package locktable

import (
	"sync"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
	"github.com/dingodb/dingo-store/pkg/metrics"
)

// Record mirrors the durable Lock CF record closely enough for
// conflict detection: primary key, start_ts and TTL.
type Record struct {
	PrimaryKey []byte
	StartTS    uint64
	LockTTL    uint64
}

// Table is a region's in-memory lock table, keyed by user key.
type Table struct {
	mu     sync.RWMutex
	locks  map[string]Record
}

// New creates an empty memory lock table.
func New() *Table {
	return &Table{locks: make(map[string]Record)}
}

// Insert records a lock for key, called whenever Prewrite/
// PessimisticLock writes the durable Lock CF record.
func (t *Table) Insert(key []byte, rec Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, existed := t.locks[string(key)]; !existed {
		metrics.MemoryLocksTotal.Inc()
	}
	t.locks[string(key)] = rec
}

// Remove clears key's lock, called whenever Commit/Rollback/
// ResolveLock removes the durable Lock CF record.
func (t *Table) Remove(key []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, existed := t.locks[string(key)]; existed {
		delete(t.locks, string(key))
		metrics.MemoryLocksTotal.Dec()
	}
}

// Check looks up key's lock for a reader at readTS. resolvedLocks
// names start_ts values the caller has already resolved (via
// CheckTxnStatus + ResolveLock) and so should not be reported again.
// Returns nil if there is no conflicting lock.
func (t *Table) Check(key []byte, readTS uint64, resolvedLocks map[uint64]struct{}) *dingoerr.Error {
	t.mu.RLock()
	rec, ok := t.locks[string(key)]
	t.mu.RUnlock()

	if !ok || rec.StartTS > readTS {
		return nil
	}
	if _, resolved := resolvedLocks[rec.StartTS]; resolved {
		return nil
	}

	return dingoerr.Locked(dingoerr.LockInfo{
		PrimaryLock: rec.PrimaryKey,
		LockKey:     key,
		StartTS:     rec.StartTS,
		LockTTL:     rec.LockTTL,
	})
}

// CheckRange runs Check against every currently-locked key inside
// [start, end), for range reads (scans).
func (t *Table) CheckRange(start, end []byte, readTS uint64, resolvedLocks map[uint64]struct{}) *dingoerr.Error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for k, rec := range t.locks {
		key := []byte(k)
		if !inRange(key, start, end) {
			continue
		}
		if rec.StartTS > readTS {
			continue
		}
		if _, resolved := resolvedLocks[rec.StartTS]; resolved {
			continue
		}
		return dingoerr.Locked(dingoerr.LockInfo{
			PrimaryLock: rec.PrimaryKey,
			LockKey:     key,
			StartTS:     rec.StartTS,
			LockTTL:     rec.LockTTL,
		})
	}
	return nil
}

func inRange(key, start, end []byte) bool {
	if string(key) < string(start) {
		return false
	}
	if end != nil && string(key) >= string(end) {
		return false
	}
	return true
}

// Len reports the number of in-flight locks tracked, for tests and
// diagnostics.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.locks)
}
