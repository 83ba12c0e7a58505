package locktable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
)

func TestCheckNoLock(t *testing.T) {
	tbl := New()
	err := tbl.Check([]byte("k1"), 100, nil)
	assert.Nil(t, err)
}

func TestCheckConflictingLock(t *testing.T) {
	tbl := New()
	tbl.Insert([]byte("k1"), Record{PrimaryKey: []byte("k1"), StartTS: 50, LockTTL: 1000})

	err := tbl.Check([]byte("k1"), 100, nil)
	require.NotNil(t, err)
	assert.True(t, dingoerr.Is(err, dingoerr.KeyIsLocked))
	assert.Equal(t, uint64(50), err.TxnResult.Locked.StartTS)
}

func TestCheckLockAfterReadTSIsInvisible(t *testing.T) {
	tbl := New()
	tbl.Insert([]byte("k1"), Record{StartTS: 150})

	err := tbl.Check([]byte("k1"), 100, nil)
	assert.Nil(t, err)
}

func TestCheckResolvedLockIsSkipped(t *testing.T) {
	tbl := New()
	tbl.Insert([]byte("k1"), Record{StartTS: 50})

	resolved := map[uint64]struct{}{50: {}}
	err := tbl.Check([]byte("k1"), 100, resolved)
	assert.Nil(t, err)
}

func TestRemoveClearsLock(t *testing.T) {
	tbl := New()
	tbl.Insert([]byte("k1"), Record{StartTS: 50})
	tbl.Remove([]byte("k1"))

	err := tbl.Check([]byte("k1"), 100, nil)
	assert.Nil(t, err)
	assert.Equal(t, 0, tbl.Len())
}

func TestCheckRangeFindsConflictInsideRange(t *testing.T) {
	tbl := New()
	tbl.Insert([]byte("b"), Record{StartTS: 10})

	err := tbl.CheckRange([]byte("a"), []byte("c"), 100, nil)
	require.NotNil(t, err)
	assert.Equal(t, []byte("b"), err.TxnResult.Locked.LockKey)
}

func TestCheckRangeIgnoresOutsideRange(t *testing.T) {
	tbl := New()
	tbl.Insert([]byte("z"), Record{StartTS: 10})

	err := tbl.CheckRange([]byte("a"), []byte("c"), 100, nil)
	assert.Nil(t, err)
}

func TestInsertSameKeyTwiceKeepsOneEntry(t *testing.T) {
	tbl := New()
	tbl.Insert([]byte("k1"), Record{StartTS: 1})
	tbl.Insert([]byte("k1"), Record{StartTS: 2}) // same key again
	assert.Equal(t, 1, tbl.Len())
}
