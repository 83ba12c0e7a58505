package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dingodb/dingo-store/pkg/codec"
	"github.com/dingodb/dingo-store/pkg/txn"
)

func vecKey(t *testing.T, id int64) []byte {
	t.Helper()
	return codec.EncodeIndexedKey(codec.PrefixTxnClient, 1, id)
}

func putVector(t *testing.T, f *Flat, id int64, vec []float32, scalars map[string]any, commitTS uint64) {
	t.Helper()
	v, err := EncodeVectorPayload(VectorPayload{Vector: vec, ScalarFields: scalars})
	require.NoError(t, err)
	f.OnCommit(vecKey(t, id), txn.WriteKindPut, commitTS-1, commitTS, v)
}

func TestFlatSearchReturnsNearestByL2(t *testing.T) {
	f := NewFlat(2, MetricL2)
	putVector(t, f, 1, []float32{0, 0}, nil, 10)
	putVector(t, f, 2, []float32{1, 0}, nil, 11)
	putVector(t, f, 3, []float32{5, 5}, nil, 12)

	results, err := f.Search(context.Background(), []float32{0, 0}, 2, nil, 100)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, int64(2), results[1].ID)
}

func TestFlatOnCommitDeleteRemovesRow(t *testing.T) {
	f := NewFlat(2, MetricL2)
	putVector(t, f, 1, []float32{0, 0}, nil, 10)
	require.Equal(t, 1, f.Count())

	f.OnCommit(vecKey(t, 1), txn.WriteKindDelete, 10, 20, nil)
	assert.Equal(t, 0, f.Count())
}

func TestFlatUpsertReplacesOldRow(t *testing.T) {
	f := NewFlat(2, MetricL2)
	putVector(t, f, 1, []float32{0, 0}, map[string]any{"tag": "a"}, 10)
	putVector(t, f, 1, []float32{9, 9}, map[string]any{"tag": "b"}, 20)

	require.Equal(t, 1, f.Count())
	assert.Equal(t, 0, f.CountWhere("tag", "a"))
	assert.Equal(t, 1, f.CountWhere("tag", "b"))
}

func TestFlatSearchHonorsFilterDuringTraversal(t *testing.T) {
	f := NewFlat(2, MetricL2)
	putVector(t, f, 1, []float32{0, 0}, map[string]any{"tenant": "x"}, 10)
	putVector(t, f, 2, []float32{0.1, 0}, map[string]any{"tenant": "y"}, 11)

	filter := func(id int64, scalars map[string]any) bool {
		return scalars["tenant"] == "y"
	}
	results, err := f.Search(context.Background(), []float32{0, 0}, 5, filter, 100)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].ID)
}

func TestFlatRangeSearchBoundsByRadius(t *testing.T) {
	f := NewFlat(2, MetricL2)
	putVector(t, f, 1, []float32{0, 0}, nil, 10)
	putVector(t, f, 2, []float32{10, 10}, nil, 11)

	results, err := f.RangeSearch(context.Background(), []float32{0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].ID)
}

func TestFlatRangeSearchInnerProductUsesOneMinusScore(t *testing.T) {
	f := NewFlat(2, MetricInnerProduct)
	putVector(t, f, 1, []float32{1, 0}, nil, 10)

	// identical vector: inner product is 1, distance is 1-1=0, always within any radius >= 0.
	results, err := f.RangeSearch(context.Background(), []float32{1, 0}, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestFlatSaveLoadRoundTrip(t *testing.T) {
	f := NewFlat(2, MetricCosine)
	putVector(t, f, 1, []float32{1, 1}, map[string]any{"k": "v"}, 10)

	path := t.TempDir() + "/flat.snap"
	require.NoError(t, f.Save(path))

	loaded := NewFlat(2, MetricCosine)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 1, loaded.Count())
	assert.Equal(t, 1, loaded.CountWhere("k", "v"))
}

func TestFlatSearchIsSnapshotIsolated(t *testing.T) {
	f := NewFlat(2, MetricL2)
	putVector(t, f, 1, []float32{0, 0}, nil, 100)
	putVector(t, f, 1, []float32{9, 9}, nil, 120)

	oldView, err := f.Search(context.Background(), []float32{0, 0}, 1, nil, 110)
	require.NoError(t, err)
	require.Len(t, oldView, 1)
	assert.Equal(t, float32(0), oldView[0].Score, "read at ts=110 must see the pre-ts=120 vector")

	newView, err := f.Search(context.Background(), []float32{0, 0}, 1, nil, 130)
	require.NoError(t, err)
	require.Len(t, newView, 1)
	assert.NotEqual(t, float32(0), newView[0].Score, "read at ts=130 must see the ts=120 upsert")
}

func TestFlatSearchBeforeFirstCommitSeesNothing(t *testing.T) {
	f := NewFlat(2, MetricL2)
	putVector(t, f, 1, []float32{0, 0}, nil, 100)

	results, err := f.Search(context.Background(), []float32{0, 0}, 1, nil, 50)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFlatSearchAfterDeleteHidesRowFromLaterReadsOnly(t *testing.T) {
	f := NewFlat(2, MetricL2)
	putVector(t, f, 1, []float32{0, 0}, nil, 100)
	f.OnCommit(vecKey(t, 1), txn.WriteKindDelete, 100, 120, nil)

	beforeDelete, err := f.Search(context.Background(), []float32{0, 0}, 1, nil, 110)
	require.NoError(t, err)
	require.Len(t, beforeDelete, 1)

	afterDelete, err := f.Search(context.Background(), []float32{0, 0}, 1, nil, 130)
	require.NoError(t, err)
	assert.Empty(t, afterDelete)
}

func TestFlatNeedToSaveTracksAppliedLag(t *testing.T) {
	f := NewFlat(2, MetricL2)
	putVector(t, f, 1, []float32{0, 0}, nil, 10)
	assert.True(t, f.NeedToSave(5))

	require.NoError(t, f.Save(t.TempDir()+"/flat.snap"))
	assert.False(t, f.NeedToSave(5))
}
