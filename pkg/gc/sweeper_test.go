package gc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
	"github.com/dingodb/dingo-store/pkg/kvengine"
	"github.com/dingodb/dingo-store/pkg/latch"
	"github.com/dingodb/dingo-store/pkg/locktable"
	"github.com/dingodb/dingo-store/pkg/scheduler"
	"github.com/dingodb/dingo-store/pkg/txn"
)

// fakeRegionSource is a minimal RegionSource backed by one real
// kvengine.Adapter/txn.Engine pair per region id, so Gc calls exercise
// the real engine instead of a mock.
type fakeRegionSource struct {
	mu      sync.Mutex
	leaders map[uint64]bool
	engines map[uint64]*txn.Engine
	kvs     map[uint64]kvengine.Adapter
}

func newFakeRegionSource(t *testing.T, ids ...uint64) *fakeRegionSource {
	t.Helper()
	s := &fakeRegionSource{
		leaders: make(map[uint64]bool),
		engines: make(map[uint64]*txn.Engine),
		kvs:     make(map[uint64]kvengine.Adapter),
	}
	for _, id := range ids {
		kv, err := kvengine.NewBoltAdapter(t.TempDir(), id)
		require.NoError(t, err)
		t.Cleanup(func() { kv.Close() })

		s.kvs[id] = kv
		s.engines[id] = txn.New(kv, latch.NewManager(), locktable.New(), txn.NewPhysicalClock())
		s.leaders[id] = true
	}
	return s
}

func (s *fakeRegionSource) RegionIDs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(s.engines))
	for id := range s.engines {
		ids = append(ids, id)
	}
	return ids
}

func (s *fakeRegionSource) IsLeader(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaders[id]
}

func (s *fakeRegionSource) Engine(id uint64) (*txn.Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.engines[id]
	return e, ok
}

func (s *fakeRegionSource) KV(id uint64) (kvengine.Adapter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kv, ok := s.kvs[id]
	return kv, ok
}

// syncSubmitter runs every submitted task inline, so sweep assertions
// don't need to poll a real scheduler's worker goroutines.
type syncSubmitter struct {
	runs int
	mu   sync.Mutex
}

func (b *syncSubmitter) SubmitBackground(task scheduler.Task) *dingoerr.Error {
	b.mu.Lock()
	b.runs++
	b.mu.Unlock()
	task(context.Background())
	return nil
}

func TestSweeperSweepsOnlyLeaderRegionsWithAPublishedSafePoint(t *testing.T) {
	source := newFakeRegionSource(t, 1, 2)
	source.leaders[2] = false

	sub := &syncSubmitter{}
	sp := NewSafePoints()
	sweeper := NewSweeper(source, sub, sp, time.Hour)

	require.NoError(t, sweeper.PublishSafePoint(context.Background(), 1, 10))
	require.NoError(t, sweeper.PublishSafePoint(context.Background(), 2, 10))

	sweeper.sweepOnce()

	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Equal(t, 1, sub.runs)
}

func TestSweeperSkipsRegionsWithNoSafePointYet(t *testing.T) {
	source := newFakeRegionSource(t, 1)
	sub := &syncSubmitter{}
	sweeper := NewSweeper(source, sub, NewSafePoints(), time.Hour)

	sweeper.sweepOnce()

	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Equal(t, 0, sub.runs)
}

func TestSweeperStartAndStopDoNotPanic(t *testing.T) {
	source := newFakeRegionSource(t, 1)
	sub := &syncSubmitter{}
	sweeper := NewSweeper(source, sub, NewSafePoints(), time.Millisecond)

	sweeper.Start()
	time.Sleep(20 * time.Millisecond)
	sweeper.Stop()
}
