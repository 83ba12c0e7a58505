// Package region implements spec.md §4.6's region metadata and epoch
// validation on top of pkg/txn's per-region transaction engine, plus the
// Raft state machine (RegionFSM) that replicates mutations to it and the
// Store that bootstraps and tracks one Raft group per region.
package region

import (
	"bytes"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
)

// State is a region's lifecycle state from spec.md §3.
type State int

const (
	StateNew State = iota
	StateNormal
	StateSplitting
	StateMerging
	StateTombstone
	StateDeleting
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateNormal:
		return "Normal"
	case StateSplitting:
		return "Splitting"
	case StateMerging:
		return "Merging"
	case StateTombstone:
		return "Tombstone"
	case StateDeleting:
		return "Deleting"
	case StateDeleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}

// Epoch identifies a region definition's version. Version bumps on every
// range mutation (split/merge); ConfVersion bumps on every peer-set change.
type Epoch struct {
	Version     uint64
	ConfVersion uint64
}

// EngineType names which pkg/kvengine.Adapter implementation backs a
// region's CFs.
type EngineType int

const (
	EngineBolt EngineType = iota
	EngineBadger
)

// KeyRange is a region's half-open served key range.
type KeyRange struct {
	StartKey []byte
	EndKey   []byte // nil/empty EndKey means unbounded
}

// Contains reports whether key falls in [StartKey, EndKey).
func (r KeyRange) Contains(key []byte) bool {
	if bytes.Compare(key, r.StartKey) < 0 {
		return false
	}
	if len(r.EndKey) > 0 && bytes.Compare(key, r.EndKey) >= 0 {
		return false
	}
	return true
}

// Peer is one member of a region's Raft group.
type Peer struct {
	ID      uint64
	StoreID uint64
	Addr    string
}

// Region is the in-memory metadata record from spec.md §3. The engine
// behind Prewrite/Commit/etc lives in pkg/txn.Engine; Region itself only
// tracks routing, lifecycle and epoch state plus the two optional
// secondary index wrappers that mirror the same key-space.
type Region struct {
	ID    uint64
	Epoch Epoch
	Range KeyRange
	Peers []Peer
	State State

	RawEngineType   EngineType
	StoreEngineType EngineType

	VectorIndex   IndexWrapper
	DocumentIndex IndexWrapper

	// DisableChange rejects all new writes outright; TemporaryDisableChange
	// rejects them only while State == StateSplitting or StateMerging, per
	// spec.md §4.6.
	DisableChange          bool
	TemporaryDisableChange bool

	// RawAppliedMaxTS is monotone non-decreasing: the highest ts this
	// region has applied through the Raft log.
	RawAppliedMaxTS uint64
	// TxnAccessMaxTS is the highest ts any txn-engine operation has
	// touched, used to bound safe GC and stream snapshot validity.
	TxnAccessMaxTS uint64
}

// New creates a region in StateNew over the given range.
func New(id uint64, keyRange KeyRange, peers []Peer) *Region {
	return &Region{
		ID:    id,
		Epoch: Epoch{Version: 1, ConfVersion: 1},
		Range: keyRange,
		Peers: peers,
		State: StateNew,
	}
}

// ValidateEpoch implements spec.md §4.6: a request's epoch must match
// this region's current one exactly, on both Version and ConfVersion.
func (r *Region) ValidateEpoch(got Epoch) *dingoerr.Error {
	if got.Version != r.Epoch.Version || got.ConfVersion != r.Epoch.ConfVersion {
		return dingoerr.New(dingoerr.EpochNotMatch,
			"region %d epoch mismatch: have {%d,%d}, got {%d,%d}",
			r.ID, r.Epoch.Version, r.Epoch.ConfVersion, got.Version, got.ConfVersion)
	}
	return nil
}

// CheckKeyInRange reports whether key (already MVCC-encoded, per
// SPEC_FULL.md's key-representation-boundary decision) falls inside this
// region's served range.
func (r *Region) CheckKeyInRange(key []byte) bool {
	return r.Range.Contains(key)
}

// CanWrite implements spec.md §4.6's write-admission rule: a region
// mid-split or mid-merge with disable_change set rejects writes with
// RegionNotReady until the split/merge command commits and clears it.
func (r *Region) CanWrite() *dingoerr.Error {
	if r.State == StateTombstone || r.State == StateDeleting || r.State == StateDeleted {
		return dingoerr.New(dingoerr.RegionNotFound, "region %d is %s", r.ID, r.State)
	}
	if r.DisableChange {
		return dingoerr.New(dingoerr.RegionNotReady, "region %d has writes disabled", r.ID)
	}
	if (r.State == StateSplitting || r.State == StateMerging) && r.TemporaryDisableChange {
		return dingoerr.New(dingoerr.RegionNotReady, "region %d is %s and temporarily disabled", r.ID, r.State)
	}
	return nil
}

// BeginSplit transitions the region into Splitting and bumps Version,
// the bookkeeping spec.md §3/§4.6 requires before a split raft command
// is proposed.
func (r *Region) BeginSplit(temporaryDisable bool) {
	r.State = StateSplitting
	r.TemporaryDisableChange = temporaryDisable
	r.Epoch.Version++
}

// CompleteSplit narrows this region to newRange and clears the split
// flags once the split command has committed.
func (r *Region) CompleteSplit(newRange KeyRange) {
	r.Range = newRange
	r.State = StateNormal
	r.TemporaryDisableChange = false
}

// BeginMerge transitions the region into Merging and bumps Version.
func (r *Region) BeginMerge(temporaryDisable bool) {
	r.State = StateMerging
	r.TemporaryDisableChange = temporaryDisable
	r.Epoch.Version++
}

// CompleteMerge widens this region to mergedRange and clears merge flags.
func (r *Region) CompleteMerge(mergedRange KeyRange) {
	r.Range = mergedRange
	r.State = StateNormal
	r.TemporaryDisableChange = false
}

// UpdateAppliedMaxTS advances RawAppliedMaxTS if ts is newer, preserving
// the monotone-non-decreasing invariant from spec.md §3.
func (r *Region) UpdateAppliedMaxTS(ts uint64) {
	if ts > r.RawAppliedMaxTS {
		r.RawAppliedMaxTS = ts
	}
}

// UpdateTxnAccessMaxTS advances TxnAccessMaxTS if ts is newer.
func (r *Region) UpdateTxnAccessMaxTS(ts uint64) {
	if ts > r.TxnAccessMaxTS {
		r.TxnAccessMaxTS = ts
	}
}

// HasPeer reports whether peerID is one of this region's Peers.
func (r *Region) HasPeer(peerID uint64) bool {
	for _, p := range r.Peers {
		if p.ID == peerID {
			return true
		}
	}
	return false
}
