package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
)

func TestEncodeWriteOrdersNewestFirst(t *testing.T) {
	userKey := []byte("row-1")

	older := EncodeWrite(userKey, 100)
	newer := EncodeWrite(userKey, 200)

	// Newest commit_ts must sort before an older one for the same key.
	assert.Equal(t, -1, bytes.Compare(newer, older))
}

func TestEncodeDecodeWriteRoundTrip(t *testing.T) {
	userKey := []byte("row-42")
	internal := EncodeWrite(userKey, 12345)

	gotKey, gotTS, err := DecodeWrite(internal)
	require.NoError(t, err)
	assert.Equal(t, userKey, gotKey)
	assert.Equal(t, uint64(12345), gotTS)
}

func TestEncodeDataUsesStartTS(t *testing.T) {
	userKey := []byte("row-1")
	internal := EncodeData(userKey, 77)

	gotKey, gotTS, err := DecodeWrite(internal)
	require.NoError(t, err)
	assert.Equal(t, userKey, gotKey)
	assert.Equal(t, uint64(77), gotTS)
}

func TestDecodeWriteCorrupted(t *testing.T) {
	_, _, err := DecodeWrite([]byte("short"))
	require.Error(t, err)
	assert.True(t, dingoerr.Is(err, dingoerr.CorruptedInternalKey))
}

func TestEncodeDecodeLockRoundTrip(t *testing.T) {
	userKey := []byte("row-1")
	internal := EncodeLock(userKey)

	gotKey, err := DecodeLock(internal)
	require.NoError(t, err)
	assert.Equal(t, userKey, gotKey)
}

func TestLockSentinelSortsBeforeWriteKeys(t *testing.T) {
	userKey := []byte("row-1")

	lockKey := EncodeLock(userKey)
	writeKey := EncodeWrite(userKey, 1)

	assert.Equal(t, -1, bytes.Compare(lockKey, writeKey))
}

func TestDecodeLockMissingSentinel(t *testing.T) {
	_, err := DecodeLock([]byte{})
	require.Error(t, err)
	assert.True(t, dingoerr.Is(err, dingoerr.CorruptedInternalKey))
}

func TestEncodeDecodeUserKeyRoundTrip(t *testing.T) {
	key := EncodeUserKey(PrefixTxnClient, 3, []byte("abc"))

	prefix, partitionID, rest, err := DecodeUserKeyPrefix(key)
	require.NoError(t, err)
	assert.Equal(t, PrefixTxnClient, prefix)
	assert.Equal(t, uint64(3), partitionID)
	assert.Equal(t, []byte("abc"), rest)
}

func TestKeyRangeEndBoundsAllVersions(t *testing.T) {
	userKey := []byte("row-1")
	end := KeyRangeEnd(userKey)

	for _, ts := range []uint64{0, 1, 12345, ^uint64(0)} {
		internal := EncodeWrite(userKey, ts)
		assert.Equal(t, -1, bytes.Compare(internal, end), "ts=%d should sort before range end", ts)
	}
}

func TestEncodeIndexedKeyUsesEightByteID(t *testing.T) {
	key := EncodeIndexedKey(PrefixTxnClient, 1, 99)

	_, _, rest, err := DecodeUserKeyPrefix(key)
	require.NoError(t, err)
	assert.Len(t, rest, 8)
}
