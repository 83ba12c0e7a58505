package txn

import (
	"bytes"
	"encoding/gob"
)

// WriteKind is the kind field of a Write CF record.
type WriteKind int

const (
	WriteKindPut WriteKind = iota
	WriteKindDelete
	WriteKindRollback
	WriteKindLock
)

// WriteRecord is the Write CF record from spec.md §3.
type WriteRecord struct {
	Kind       WriteKind
	StartTS    uint64
	ShortValue []byte // inlined value for small Puts; nil otherwise
}

// LockKind is the kind field of a Lock CF record.
type LockKind int

const (
	LockKindPut LockKind = iota
	LockKindDelete
	LockKindPessimistic
)

// LockRecord is the Lock CF record from spec.md §3.
type LockRecord struct {
	PrimaryKey    []byte
	StartTS       uint64
	ForUpdateTS   uint64
	LockTTL       uint64
	TxnSize       uint64
	Kind          LockKind
	MinCommitTS   uint64
	UseAsyncCommit bool
	Secondaries   [][]byte
	ShortValue    []byte
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func encodeWriteRecord(r WriteRecord) ([]byte, error)  { return encodeGob(r) }
func decodeWriteRecord(data []byte) (WriteRecord, error) {
	var r WriteRecord
	err := decodeGob(data, &r)
	return r, err
}

func encodeLockRecord(r LockRecord) ([]byte, error) { return encodeGob(r) }
func decodeLockRecord(data []byte) (LockRecord, error) {
	var r LockRecord
	err := decodeGob(data, &r)
	return r, err
}
