package gc

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
	"github.com/dingodb/dingo-store/pkg/kvengine"
	"github.com/dingodb/dingo-store/pkg/log"
	"github.com/dingodb/dingo-store/pkg/metrics"
	"github.com/dingodb/dingo-store/pkg/scheduler"
	"github.com/dingodb/dingo-store/pkg/txn"
)

// RegionSource is the subset of pkg/region.Store the sweeper needs:
// enumerate regions, find each one's engine, KV adapter, and
// leadership. pkg/txn has no dependency on pkg/region or pkg/gc, so
// naming *txn.Engine here directly doesn't risk a cycle the way naming
// *region.Store would.
type RegionSource interface {
	RegionIDs() []uint64
	IsLeader(regionID uint64) bool
	Engine(regionID uint64) (*txn.Engine, bool)
	KV(regionID uint64) (kvengine.Adapter, bool)
}

// BackgroundSubmitter is the subset of pkg/scheduler.Scheduler the
// sweeper needs to run each region's sweep off the scheduler's
// low-priority background queue, per spec.md §4.10's "GC task runs in
// the write pool at low priority" (background queue feeds backpressure
// into the write pool, see pkg/scheduler.Scheduler.SubmitWrite).
type BackgroundSubmitter interface {
	SubmitBackground(task scheduler.Task) *dingoerr.Error
}

// Sweeper runs one GC pass across every leader region on an interval,
// sweeping each region up to the safe point a PublishSafePoint caller
// last set for it; the sweep itself never changes a safe point, and a
// region with no safe point yet is skipped. It follows the same
// ticker/stopCh loop shape Reconciler uses for its own periodic pass.
type Sweeper struct {
	source     RegionSource
	background BackgroundSubmitter
	safePoints *SafePoints
	interval   time.Duration

	stopCh chan struct{}
	log    zerolog.Logger
}

// NewSweeper creates a Sweeper that runs every interval against
// source's regions, submitting each region's Gc call through
// background and tracking watermarks in safePoints.
func NewSweeper(source RegionSource, background BackgroundSubmitter, safePoints *SafePoints, interval time.Duration) *Sweeper {
	return &Sweeper{
		source:     source,
		background: background,
		safePoints: safePoints,
		interval:   interval,
		stopCh:     make(chan struct{}),
		log:        log.WithComponent("gc"),
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop ends the sweep loop.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Sweeper) sweepOnce() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.GCCycleDuration)

	for _, id := range s.source.RegionIDs() {
		if !s.source.IsLeader(id) {
			continue
		}
		engine, ok := s.source.Engine(id)
		if !ok {
			continue
		}

		regionID := id
		safePointTS := s.safePoints.Get(regionID)
		if safePointTS == 0 {
			continue
		}

		err := s.background.SubmitBackground(func(ctx context.Context) {
			if err := engine.Gc(ctx, safePointTS); err != nil {
				s.log.Error().Err(err).Uint64("region_id", regionID).Msg("gc sweep failed")
			}
		})
		if err != nil {
			s.log.Warn().Uint64("region_id", regionID).Msg("gc sweep dropped: background queue full")
		}
	}
}

// PublishSafePoint advances regionID's safe point to ts, persisting it
// via the region's own KV adapter — the coordinator-side publication
// spec.md §4.10 describes as an external actor; this package only
// applies the value once told, through whatever calls PublishSafePoint
// (a wire RPC handler in a full deployment).
func (s *Sweeper) PublishSafePoint(ctx context.Context, regionID, ts uint64) error {
	kv, ok := s.source.KV(regionID)
	if !ok {
		return nil
	}
	return s.safePoints.Advance(ctx, kv, regionID, ts)
}
