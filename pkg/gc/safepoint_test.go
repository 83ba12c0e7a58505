package gc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
	"github.com/dingodb/dingo-store/pkg/kvengine"
)

func TestSafePointsAdvanceThenGet(t *testing.T) {
	kv, err := kvengine.NewBoltAdapter(t.TempDir(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	sp := NewSafePoints()
	require.NoError(t, sp.Advance(context.Background(), kv, 1, 100))
	assert.Equal(t, uint64(100), sp.Get(1))
}

func TestSafePointsAdvanceRejectsRegression(t *testing.T) {
	kv, err := kvengine.NewBoltAdapter(t.TempDir(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	sp := NewSafePoints()
	require.NoError(t, sp.Advance(context.Background(), kv, 1, 100))
	require.NoError(t, sp.Advance(context.Background(), kv, 1, 50))
	assert.Equal(t, uint64(100), sp.Get(1))
}

func TestSafePointsLoadRestoresPersistedValue(t *testing.T) {
	kv, err := kvengine.NewBoltAdapter(t.TempDir(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	sp := NewSafePoints()
	require.NoError(t, sp.Advance(context.Background(), kv, 7, 42))

	restored := NewSafePoints()
	require.NoError(t, restored.Load(kv, 7))
	assert.Equal(t, uint64(42), restored.Get(7))
}

func TestSafePointsLoadOfUnknownRegionLeavesZero(t *testing.T) {
	kv, err := kvengine.NewBoltAdapter(t.TempDir(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	sp := NewSafePoints()
	require.NoError(t, sp.Load(kv, 9))
	assert.Equal(t, uint64(0), sp.Get(9))
}

func TestCheckReadTSRejectsReadsBelowSafePoint(t *testing.T) {
	kv, err := kvengine.NewBoltAdapter(t.TempDir(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	sp := NewSafePoints()
	require.NoError(t, sp.Advance(context.Background(), kv, 1, 100))

	err2 := sp.CheckReadTS(1, 50)
	require.NotNil(t, err2)
	assert.True(t, dingoerr.Is(err2, dingoerr.SafePointExceeded))

	assert.Nil(t, sp.CheckReadTS(1, 150))
}
