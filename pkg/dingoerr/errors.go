// Package dingoerr defines the store's client-facing error codes and the
// structured conflict payload ("txn_result") returned alongside them.
//
// These are returned as ordinary values, never panicked or wrapped in
// a generic error interface at the RPC boundary: the client inspects
// Code and TxnResult and follows a fixed resolution protocol rather
// than treating every non-nil error the same way.
package dingoerr

import "fmt"

// Code is a stable error code. The client depends on these values; do
// not renumber or remove one once released.
type Code int

const (
	OK Code = iota
	EpochNotMatch
	RegionNotFound
	RegionNotReady
	NotLeader
	KeyIsLocked
	WriteConflict
	TxnLockNotFound
	TxnRolledBack
	CommitTsExpired
	StreamExpired
	RequestFull
	IllegalParameter
	IndexBuildError
	IndexNotReady
	RangeInvalid
	KeyEmpty
	BatchExceeded
	RequestSizeExceeded
	ClusterReadOnly
	Internal
	EngineIO
	CorruptedInternalKey
	// LockNotExistAndAlreadyCommitted is BatchRollback's refusal case
	// from spec.md §4.5: the transaction already committed, so rolling
	// it back would corrupt the committed history.
	LockNotExistAndAlreadyCommitted
	// SafePointExceeded is returned when a read's ts falls below the
	// region's persisted GC safe point: the versions it would need may
	// already have been collected.
	SafePointExceeded
)

var codeNames = map[Code]string{
	OK:                   "OK",
	EpochNotMatch:        "EpochNotMatch",
	RegionNotFound:       "RegionNotFound",
	RegionNotReady:       "RegionNotReady",
	NotLeader:            "NotLeader",
	KeyIsLocked:          "KeyIsLocked",
	WriteConflict:        "WriteConflict",
	TxnLockNotFound:      "TxnLockNotFound",
	TxnRolledBack:        "TxnRolledBack",
	CommitTsExpired:      "CommitTsExpired",
	StreamExpired:        "StreamExpired",
	RequestFull:          "RequestFull",
	IllegalParameter:     "IllegalParameter",
	IndexBuildError:      "IndexBuildError",
	IndexNotReady:        "IndexNotReady",
	RangeInvalid:         "RangeInvalid",
	KeyEmpty:             "KeyEmpty",
	BatchExceeded:        "BatchExceeded",
	RequestSizeExceeded:  "RequestSizeExceeded",
	ClusterReadOnly:      "ClusterReadOnly",
	Internal:             "Internal",
	EngineIO:             "EngineIO",
	CorruptedInternalKey: "CorruptedInternalKey",
	LockNotExistAndAlreadyCommitted: "LockNotExistAndAlreadyCommitted",
	SafePointExceeded:               "SafePointExceeded",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// LockInfo describes a lock blocking the caller, as surfaced by
// KeyIsLocked and by CheckTxnStatus's Locked variant.
type LockInfo struct {
	PrimaryLock []byte
	LockKey     []byte
	StartTS     uint64
	LockTTL     uint64
	LockType    string // "optimistic", "pessimistic"
}

// WriteConflictInfo describes a percolator write-write conflict.
type WriteConflictInfo struct {
	StartTS         uint64
	ConflictCommitTS uint64
	Key             []byte
	// RetryWithNewForUpdateTS is set on PessimisticLock conflicts: the
	// client should retry with a fresh for_update_ts.
	RetryWithNewForUpdateTS bool
}

// TxnResult carries the structured conflict data that accompanies an
// Error. At most one field is populated for a given response; all are
// pointers so "absent" and "zero value" are distinguishable.
type TxnResult struct {
	Locked          *LockInfo
	WriteConflict   *WriteConflictInfo
	TxnNotFound     *TxnNotFoundInfo
	CommitTSExpired *CommitTSExpiredInfo
}

// TxnNotFoundInfo accompanies TxnLockNotFound: the primary lock the
// caller asked about does not exist and there is no rollback record.
type TxnNotFoundInfo struct {
	StartTS uint64
	PrimaryKey []byte
}

// CommitTSExpiredInfo accompanies CommitTsExpired.
type CommitTSExpiredInfo struct {
	AttemptedCommitTS uint64
	MinCommitTS       uint64
}

// Empty reports whether r carries no conflict variant, i.e. the
// response can be treated as a clean success alongside Code == OK.
func (r *TxnResult) Empty() bool {
	return r == nil || (r.Locked == nil && r.WriteConflict == nil && r.TxnNotFound == nil && r.CommitTSExpired == nil)
}

// Error is the structured error returned across the store's internal
// call chain and serialized into the wire protocol's error envelope.
type Error struct {
	Code    Code
	Message string

	// LeaderLocation and StoreRegionInfo are populated for routing
	// errors (NotLeader, EpochNotMatch) so the client can refresh its
	// cached routing table without a second round trip.
	LeaderLocation  string
	StoreRegionInfo []byte

	TxnResult *TxnResult
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code.String()
}

// New builds an Error with no structured txn_result payload.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithTxnResult attaches a conflict payload to an existing Error.
func (e *Error) WithTxnResult(r *TxnResult) *Error {
	e.TxnResult = r
	return e
}

// Locked builds the KeyIsLocked error for the given lock.
func Locked(lock LockInfo) *Error {
	return New(KeyIsLocked, "key is locked by start_ts=%d", lock.StartTS).
		WithTxnResult(&TxnResult{Locked: &lock})
}

// Conflict builds the WriteConflict error for the given conflict info.
func Conflict(c WriteConflictInfo) *Error {
	return New(WriteConflict, "write conflict: start_ts=%d conflict_commit_ts=%d", c.StartTS, c.ConflictCommitTS).
		WithTxnResult(&TxnResult{WriteConflict: &c})
}

// LockNotFound builds the TxnLockNotFound error.
func LockNotFound(startTS uint64, primaryKey []byte) *Error {
	return New(TxnLockNotFound, "no lock found for start_ts=%d", startTS).
		WithTxnResult(&TxnResult{TxnNotFound: &TxnNotFoundInfo{StartTS: startTS, PrimaryKey: primaryKey}})
}

// Is reports whether err is a *Error carrying the given code, the
// idiomatic check call sites use instead of a type assertion.
func Is(err error, code Code) bool {
	de, ok := err.(*Error)
	return ok && de.Code == code
}
