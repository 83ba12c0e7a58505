package region_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dingodb/dingo-store/pkg/codec"
	"github.com/dingodb/dingo-store/pkg/index"
	"github.com/dingodb/dingo-store/pkg/region"
	"github.com/dingodb/dingo-store/pkg/txn"
)

func TestAttachVectorIndexReceivesCommits(t *testing.T) {
	store := region.NewStore("node-1", "127.0.0.1:0", t.TempDir(), "bolt")
	t.Cleanup(func() { _ = store.Close() })

	_, err := store.CreateRegion(1, region.KeyRange{}, nil)
	require.NoError(t, err)

	flat := index.NewFlat(2, index.MetricL2)
	require.NoError(t, store.AttachVectorIndex(1, flat))

	engine, ok := store.Engine(1)
	require.True(t, ok)

	value, err := index.EncodeVectorPayload(index.VectorPayload{Vector: []float32{1, 2}})
	require.NoError(t, err)

	ctx := context.Background()
	key := codec.EncodeIndexedKey(codec.PrefixTxnClient, 1, 1)
	_, err = engine.Prewrite(ctx, txn.PrewriteRequest{
		Mutations:   []txn.Mutation{{Op: txn.MutationPut, Key: key, Value: value}},
		PrimaryLock: key,
		StartTS:     10,
		LockTTL:     1000,
	})
	require.NoError(t, err)
	_, err = engine.Commit(ctx, txn.CommitRequest{Keys: [][]byte{key}, StartTS: 10, CommitTS: 20})
	require.NoError(t, err)

	require.Equal(t, 1, flat.Count())
}
