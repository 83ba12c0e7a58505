package dingoerr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	err := New(RegionNotFound, "region %d missing", 7)
	assert.Equal(t, "RegionNotFound: region 7 missing", err.Error())
}

func TestCodeStringUnknown(t *testing.T) {
	assert.Equal(t, "Code(999)", Code(999).String())
}

func TestTxnResultEmpty(t *testing.T) {
	var r *TxnResult
	assert.True(t, r.Empty())

	r = &TxnResult{}
	assert.True(t, r.Empty())

	r.WriteConflict = &WriteConflictInfo{StartTS: 1}
	assert.False(t, r.Empty())
}

func TestLockedAttachesTxnResult(t *testing.T) {
	err := Locked(LockInfo{StartTS: 42, LockType: "pessimistic"})

	assert.Equal(t, KeyIsLocked, err.Code)
	assert.False(t, err.TxnResult.Empty())
	assert.Equal(t, uint64(42), err.TxnResult.Locked.StartTS)
}

func TestConflictAttachesTxnResult(t *testing.T) {
	err := Conflict(WriteConflictInfo{StartTS: 10, ConflictCommitTS: 20})

	assert.Equal(t, WriteConflict, err.Code)
	assert.Equal(t, uint64(20), err.TxnResult.WriteConflict.ConflictCommitTS)
}

func TestLockNotFoundAttachesTxnResult(t *testing.T) {
	err := LockNotFound(5, []byte("primary"))

	assert.Equal(t, TxnLockNotFound, err.Code)
	assert.Equal(t, uint64(5), err.TxnResult.TxnNotFound.StartTS)
}

func TestIs(t *testing.T) {
	var err error = New(WriteConflict, "conflict")

	assert.True(t, Is(err, WriteConflict))
	assert.False(t, Is(err, KeyIsLocked))
	assert.False(t, Is(assertErr{}, WriteConflict))
}

type assertErr struct{}

func (assertErr) Error() string { return "not a dingoerr.Error" }
