package region

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
)

func TestCheckKeyInRange(t *testing.T) {
	r := New(1, KeyRange{StartKey: []byte("b"), EndKey: []byte("m")}, nil)

	assert.False(t, r.CheckKeyInRange([]byte("a")))
	assert.True(t, r.CheckKeyInRange([]byte("b")))
	assert.True(t, r.CheckKeyInRange([]byte("f")))
	assert.False(t, r.CheckKeyInRange([]byte("m")))
	assert.False(t, r.CheckKeyInRange([]byte("z")))
}

func TestCheckKeyInRangeUnboundedEnd(t *testing.T) {
	r := New(1, KeyRange{StartKey: []byte("b")}, nil)
	assert.True(t, r.CheckKeyInRange([]byte("zzzzzz")))
	assert.False(t, r.CheckKeyInRange([]byte("a")))
}

func TestValidateEpochMatches(t *testing.T) {
	r := New(1, KeyRange{}, nil)
	assert.Nil(t, r.ValidateEpoch(r.Epoch))
}

func TestValidateEpochMismatch(t *testing.T) {
	r := New(1, KeyRange{}, nil)
	err := r.ValidateEpoch(Epoch{Version: r.Epoch.Version + 1, ConfVersion: r.Epoch.ConfVersion})
	assert := assert.New(t)
	assert.NotNil(err)
	assert.True(dingoerr.Is(err, dingoerr.EpochNotMatch))
}

func TestCanWriteRejectsTombstone(t *testing.T) {
	r := New(1, KeyRange{}, nil)
	r.State = StateTombstone
	err := r.CanWrite()
	assert.True(t, dingoerr.Is(err, dingoerr.RegionNotFound))
}

func TestCanWriteRejectsDisableChange(t *testing.T) {
	r := New(1, KeyRange{}, nil)
	r.State = StateNormal
	r.DisableChange = true
	assert.True(t, dingoerr.Is(r.CanWrite(), dingoerr.RegionNotReady))
}

func TestCanWriteRejectsSplittingWithTemporaryDisable(t *testing.T) {
	r := New(1, KeyRange{}, nil)
	r.BeginSplit(true)
	assert.True(t, dingoerr.Is(r.CanWrite(), dingoerr.RegionNotReady))
}

func TestCanWriteAllowsSplittingWithoutTemporaryDisable(t *testing.T) {
	r := New(1, KeyRange{}, nil)
	r.BeginSplit(false)
	assert.Nil(t, r.CanWrite())
}

func TestBeginSplitBumpsEpochVersion(t *testing.T) {
	r := New(1, KeyRange{}, nil)
	before := r.Epoch.Version
	r.BeginSplit(true)
	assert.Equal(t, before+1, r.Epoch.Version)
	assert.Equal(t, StateSplitting, r.State)
}

func TestCompleteSplitNarrowsRangeAndClearsState(t *testing.T) {
	r := New(1, KeyRange{StartKey: []byte("a"), EndKey: []byte("z")}, nil)
	r.BeginSplit(true)
	r.CompleteSplit(KeyRange{StartKey: []byte("a"), EndKey: []byte("m")})

	assert.Equal(t, StateNormal, r.State)
	assert.False(t, r.TemporaryDisableChange)
	assert.Equal(t, []byte("m"), r.Range.EndKey)
}

func TestUpdateAppliedMaxTSIsMonotone(t *testing.T) {
	r := New(1, KeyRange{}, nil)
	r.UpdateAppliedMaxTS(100)
	r.UpdateAppliedMaxTS(50)
	assert.Equal(t, uint64(100), r.RawAppliedMaxTS)
	r.UpdateAppliedMaxTS(200)
	assert.Equal(t, uint64(200), r.RawAppliedMaxTS)
}

func TestHasPeer(t *testing.T) {
	r := New(1, KeyRange{}, []Peer{{ID: 7, StoreID: 1, Addr: "x"}})
	assert.True(t, r.HasPeer(7))
	assert.False(t, r.HasPeer(8))
}
