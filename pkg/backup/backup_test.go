package backup

import (
	"bytes"
	"context"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dingodb/dingo-store/pkg/codec"
	"github.com/dingodb/dingo-store/pkg/kvengine"
)

func seedRegion(t *testing.T, kv kvengine.Adapter, userKey string, commitTS uint64) {
	t.Helper()
	writeKey := codec.EncodeWrite([]byte(userKey), commitTS)
	dataKey := codec.EncodeData([]byte(userKey), commitTS)
	require.NoError(t, kv.Write(context.Background(), []kvengine.Op{
		kvengine.PutOp(kvengine.CFData, dataKey, []byte("value-for-"+userKey)),
		kvengine.PutOp(kvengine.CFWrite, writeKey, []byte("write-record")),
	}))
}

func TestBackupThenRestoreRoundTrip(t *testing.T) {
	src, err := kvengine.NewBoltAdapter(t.TempDir(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	seedRegion(t, src, "a", 10)
	seedRegion(t, src, "b", 20)

	var buf bytes.Buffer
	manifest, err := Backup(context.Background(), src, 1, nil, nil, 100, &buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), manifest.RegionID)
	assert.Equal(t, 4, manifest.EntryCount) // 2 keys x (data + write)

	dst, err := kvengine.NewBoltAdapter(t.TempDir(), 2)
	require.NoError(t, err)
	t.Cleanup(func() { dst.Close() })

	restored, err := Restore(context.Background(), dst, &buf)
	require.NoError(t, err)
	assert.Equal(t, manifest.GenerationID, restored.GenerationID)

	v, found, err := dst.Get(kvengine.CFData, codec.EncodeData([]byte("a"), 10), nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("value-for-a"), v)
}

func TestBackupExcludesWriteRecordsNewerThanBackupTS(t *testing.T) {
	src, err := kvengine.NewBoltAdapter(t.TempDir(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	seedRegion(t, src, "old", 10)
	seedRegion(t, src, "new", 999)

	var buf bytes.Buffer
	manifest, err := Backup(context.Background(), src, 1, nil, nil, 50, &buf)
	require.NoError(t, err)

	// "old"'s write record qualifies, "new"'s doesn't; Data CF has no
	// commit_ts to filter by so both data entries still appear.
	assert.Equal(t, 3, manifest.EntryCount)
}

func TestPeekManifestDoesNotRequireRestore(t *testing.T) {
	src, err := kvengine.NewBoltAdapter(t.TempDir(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	seedRegion(t, src, "a", 10)

	var buf bytes.Buffer
	_, err = Backup(context.Background(), src, 5, nil, nil, 100, &buf)
	require.NoError(t, err)

	manifest, err := PeekManifest(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), manifest.RegionID)
}

func TestRestoreRejectsUnsupportedFormatVersion(t *testing.T) {
	dst, err := kvengine.NewBoltAdapter(t.TempDir(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { dst.Close() })

	var buf bytes.Buffer
	f := file{Manifest: Manifest{FormatVersion: formatVersion + 1}}
	require.NoError(t, gob.NewEncoder(&buf).Encode(f))

	_, err = Restore(context.Background(), dst, &buf)
	assert.Error(t, err)
}
