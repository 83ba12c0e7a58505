// Package gc implements spec.md §4.10's GC safe point: a monotone
// watermark the coordinator publishes, persisted per region, below
// which reads are refused with SafePointExceeded since the Write CF
// versions they would need may already have been collected by
// pkg/txn.Engine.Gc. This package owns deciding when to advance the
// watermark and scheduling the sweep; Engine.Gc itself only knows how
// to sweep one pass at a given safe point.
package gc

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
	"github.com/dingodb/dingo-store/pkg/kvengine"
	"github.com/dingodb/dingo-store/pkg/metrics"
)

// safePointKey is the reserved-prefix internal key spec.md §6 calls
// for ("store_region_meta"-style names), distinct from every
// codec.KeyPrefix a client key can start with.
func safePointKey(regionID uint64) []byte {
	return []byte(fmt.Sprintf("store_gc_safe_point:%d", regionID))
}

// SafePoints tracks the current GC safe point per region, persisting
// each advance into that region's own Data CF under a reserved key so
// a restarted store doesn't regress to zero and risk re-serving reads
// an already-completed Gc pass has invalidated.
type SafePoints struct {
	mu     sync.RWMutex
	values map[uint64]uint64
}

// NewSafePoints creates an empty, all-zero watermark set.
func NewSafePoints() *SafePoints {
	return &SafePoints{values: make(map[uint64]uint64)}
}

// Get returns region id's current safe point, 0 if never advanced.
func (s *SafePoints) Get(regionID uint64) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[regionID]
}

// Advance sets region id's safe point to ts and persists it via kv,
// rejecting any attempt to move it backward: the watermark spec.md
// §4.10 describes is monotone by definition.
func (s *SafePoints) Advance(ctx context.Context, kv kvengine.Adapter, regionID, ts uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.values[regionID]; ts <= cur {
		return nil
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, ts)
	if err := kv.Write(ctx, []kvengine.Op{kvengine.PutOp(kvengine.CFData, safePointKey(regionID), buf)}); err != nil {
		return err
	}

	s.values[regionID] = ts
	metrics.GCSafePoint.WithLabelValues(fmt.Sprintf("%d", regionID)).Set(float64(ts))
	return nil
}

// Load restores region id's safe point from kv, for use at region
// open time before the region serves its first read.
func (s *SafePoints) Load(kv kvengine.Adapter, regionID uint64) error {
	v, found, err := kv.Get(kvengine.CFData, safePointKey(regionID), nil)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if len(v) != 8 {
		return dingoerr.New(dingoerr.CorruptedInternalKey, "malformed safe point record for region %d", regionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[regionID] = binary.BigEndian.Uint64(v)
	return nil
}

// CheckReadTS implements spec.md §4.10's read-admission rule: a read
// at ts below region id's safe point may be missing versions Gc has
// already collected.
func (s *SafePoints) CheckReadTS(regionID, ts uint64) *dingoerr.Error {
	if ts < s.Get(regionID) {
		return dingoerr.New(dingoerr.SafePointExceeded, "region %d: read ts %d below safe point %d", regionID, ts, s.Get(regionID))
	}
	return nil
}
