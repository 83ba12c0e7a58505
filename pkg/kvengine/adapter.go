// Package kvengine defines the KV Adapter contract used by pkg/txn and
// pkg/region, and provides two interchangeable implementations: a
// BoltAdapter (go.etcd.io/bbolt) and a BadgerAdapter (dgraph-io/badger).
// Every key this package sees is already MVCC-encoded by pkg/codec;
// the adapter itself only moves bytes.
package kvengine

import "context"

// CF names one of the three logical column families spec.md §3 defines.
type CF string

const (
	CFData  CF = "data"
	CFLock  CF = "lock"
	CFWrite CF = "write"
)

// Op is one mutation inside a Write batch.
type Op struct {
	CF     CF
	Key    []byte
	Value  []byte // unused when Delete is set
	Delete bool
}

// PutOp builds a put mutation.
func PutOp(cf CF, key, value []byte) Op {
	return Op{CF: cf, Key: key, Value: value}
}

// DeleteOp builds a delete mutation.
func DeleteOp(cf CF, key []byte) Op {
	return Op{CF: cf, Key: key, Delete: true}
}

// Entry is a single key/value pair yielded by a Cursor.
type Entry struct {
	Key   []byte
	Value []byte
}

// Cursor iterates a half-open key range [Start, End) within one CF, in
// ascending key order.
type Cursor interface {
	// Next advances the cursor and reports whether an entry is
	// available; call Entry to read it.
	Next() bool
	Entry() Entry
	Err() error
	Close() error
}

// Snapshot is a consistent, point-in-time read view across all CFs.
// Adapters hand these out from engine-native read transactions (a
// bbolt *Tx opened with View, a badger *Txn opened read-only), so
// "snapshot_ts" in spec.md §4.2 maps onto "which Snapshot you read
// through" rather than a logical timestamp the adapter itself
// understands — MVCC timestamp filtering happens one layer up, via the
// commit-ts suffix pkg/codec bakes into the key itself.
type Snapshot interface {
	Get(cf CF, key []byte) ([]byte, bool, error)
	Iter(cf CF, start, end []byte) (Cursor, error)
	Close() error
}

// Adapter is the KV Adapter contract from spec.md §4.2.
type Adapter interface {
	// Write applies batch atomically across all CFs it touches.
	// Durable once this returns without error; pkg/region only calls
	// Write from within a Raft FSM Apply, so durability here is
	// durability after Raft commit, not before.
	Write(ctx context.Context, batch []Op) error

	// Get reads a single key from the live (most recent) view, or
	// from snap if one is supplied.
	Get(cf CF, key []byte, snap Snapshot) ([]byte, bool, error)

	// Iter opens a cursor over [start, end) in cf, against the live
	// view or against snap if one is supplied.
	Iter(cf CF, start, end []byte, snap Snapshot) (Cursor, error)

	// Snapshot opens a new consistent read view across all CFs.
	Snapshot() (Snapshot, error)

	Close() error
}
