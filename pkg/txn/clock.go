package txn

import (
	"sync"
	"time"
)

// physicalShift mirrors the TiKV-style timestamp-oracle encoding the
// rest of spec.md assumes when it compares "current_ts" against
// "lock.start_ts.physical + ttl": a ts packs a millisecond-resolution
// physical clock reading into the high bits and a logical counter into
// the low 18 bits, so two ts values issued in the same millisecond
// still order correctly.
const physicalShift = 18

// PhysicalMillis extracts the physical-clock component of ts.
func PhysicalMillis(ts uint64) uint64 {
	return ts >> physicalShift
}

// Clock supplies the current ts for TTL/liveness comparisons. Callers
// outside a test use a PhysicalClock backed by time.Now; tests use a
// fixed or steppable clock so TTL expiry is deterministic.
type Clock interface {
	NowTS() uint64
}

// PhysicalClock issues ts values from the local wall clock: physical
// milliseconds in the high bits, a logical counter in the low bits that
// increments within the same millisecond and resets once it advances,
// so NowTS is always strictly increasing even if called twice in the
// same millisecond. A real deployment's timestamp oracle is external
// and shared across every region/store; the coordinator/meta service
// that would own it is a named non-goal, so each region falls back to
// its own local clock here.
type PhysicalClock struct {
	mu           sync.Mutex
	lastPhysical uint64
	logical      uint64
}

// NewPhysicalClock creates a PhysicalClock reading from time.Now.
func NewPhysicalClock() *PhysicalClock {
	return &PhysicalClock{}
}

func (c *PhysicalClock) NowTS() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	physical := uint64(time.Now().UnixMilli())
	if physical <= c.lastPhysical {
		physical = c.lastPhysical
		c.logical++
	} else {
		c.lastPhysical = physical
		c.logical = 0
	}
	return physical<<physicalShift | c.logical
}
