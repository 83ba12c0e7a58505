// Package codec encodes and decodes the MVCC internal keys the engine
// adapters actually store: a user key plus an inverted timestamp suffix
// so that iterating forward over one user key's range yields commit
// records newest-first.
package codec

import (
	"encoding/binary"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
)

const tsSuffixLen = 8

// lockSentinel is the single-byte suffix marking a Lock CF key; it
// sorts before every inverted timestamp suffix (0x00 < ~ts for any ts)
// so prefix iteration never has to special-case it.
const lockSentinel = 0x00

// invert flips every bit of ts so that encoding it big-endian makes
// larger timestamps sort first: ~(ts1) < ~(ts2) iff ts1 > ts2.
func invert(ts uint64) uint64 {
	return ^ts
}

// EncodeWrite returns the Write CF internal key for userKey at commitTs.
func EncodeWrite(userKey []byte, commitTS uint64) []byte {
	return appendTS(userKey, invert(commitTS))
}

// EncodeData returns the Data CF internal key for userKey at startTs.
func EncodeData(userKey []byte, startTS uint64) []byte {
	return appendTS(userKey, invert(startTS))
}

// EncodeLock returns the Lock CF internal key for userKey: exactly one
// lock record may exist per user key, so no timestamp suffix is needed.
func EncodeLock(userKey []byte) []byte {
	out := make([]byte, len(userKey)+1)
	copy(out, userKey)
	out[len(userKey)] = lockSentinel
	return out
}

func appendTS(userKey []byte, invertedTS uint64) []byte {
	out := make([]byte, len(userKey)+tsSuffixLen)
	copy(out, userKey)
	binary.BigEndian.PutUint64(out[len(userKey):], invertedTS)
	return out
}

// DecodeWrite splits a Write/Data CF internal key back into the user
// key and its (non-inverted) timestamp. Returns CorruptedInternalKey
// if internalKey is shorter than the fixed timestamp suffix.
func DecodeWrite(internalKey []byte) (userKey []byte, ts uint64, err error) {
	if len(internalKey) < tsSuffixLen {
		return nil, 0, dingoerr.New(dingoerr.CorruptedInternalKey,
			"internal key too short: %d bytes", len(internalKey))
	}
	split := len(internalKey) - tsSuffixLen
	userKey = internalKey[:split]
	invertedTS := binary.BigEndian.Uint64(internalKey[split:])
	return userKey, invert(invertedTS), nil
}

// DecodeLock strips the lock sentinel, returning CorruptedInternalKey
// if internalKey does not end in it.
func DecodeLock(internalKey []byte) (userKey []byte, err error) {
	if len(internalKey) < 1 || internalKey[len(internalKey)-1] != lockSentinel {
		return nil, dingoerr.New(dingoerr.CorruptedInternalKey,
			"lock key missing sentinel byte")
	}
	return internalKey[:len(internalKey)-1], nil
}

// Prefix key byte, per spec.md §3: raw/txn x executor/client.
type KeyPrefix byte

const (
	PrefixRawExecutor  KeyPrefix = 0x01
	PrefixRawClient    KeyPrefix = 0x02
	PrefixTxnExecutor  KeyPrefix = 0x03
	PrefixTxnClient    KeyPrefix = 0x04
)

const partitionIDLen = 8

// EncodeUserKey builds the encoded user key: a 1-byte prefix, an
// 8-byte big-endian partition id, then either an arbitrary client key
// or, for indexed rows, an 8-byte big-endian document/vector id.
func EncodeUserKey(prefix KeyPrefix, partitionID uint64, idOrBytes []byte) []byte {
	out := make([]byte, 1+partitionIDLen+len(idOrBytes))
	out[0] = byte(prefix)
	binary.BigEndian.PutUint64(out[1:1+partitionIDLen], partitionID)
	copy(out[1+partitionIDLen:], idOrBytes)
	return out
}

// EncodeIndexedKey is EncodeUserKey specialized for vector/document rows,
// whose id_or_bytes is always an 8-byte big-endian row id.
func EncodeIndexedKey(prefix KeyPrefix, partitionID uint64, rowID int64) []byte {
	idBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(idBytes, uint64(rowID))
	return EncodeUserKey(prefix, partitionID, idBytes)
}

// KeyRangeEnd returns an exclusive upper bound for iterating every
// Write/Data CF internal key derived from userKey: userKey's own
// encoded keys are always exactly len(userKey)+8 bytes, so any key
// sharing the userKey prefix but longer sorts after all of them.
func KeyRangeEnd(userKey []byte) []byte {
	out := make([]byte, len(userKey)+tsSuffixLen+1)
	copy(out, userKey)
	for i := len(userKey); i < len(out); i++ {
		out[i] = 0xFF
	}
	return out
}

// DecodeUserKeyPrefix splits off the prefix byte and partition id,
// returning the remaining id_or_bytes tail.
func DecodeUserKeyPrefix(userKey []byte) (prefix KeyPrefix, partitionID uint64, rest []byte, err error) {
	if len(userKey) < 1+partitionIDLen {
		return 0, 0, nil, dingoerr.New(dingoerr.CorruptedInternalKey,
			"user key too short: %d bytes", len(userKey))
	}
	prefix = KeyPrefix(userKey[0])
	partitionID = binary.BigEndian.Uint64(userKey[1 : 1+partitionIDLen])
	rest = userKey[1+partitionIDLen:]
	return prefix, partitionID, rest, nil
}
