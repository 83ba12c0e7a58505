package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dingodb/dingo-store/pkg/txn"
)

func putDoc(t *testing.T, d *Document, id int64, fields map[string]any, commitTS uint64) {
	t.Helper()
	v, err := EncodeDocumentPayload(DocumentPayload{Fields: fields})
	require.NoError(t, err)
	d.OnCommit(vecKey(t, id), txn.WriteKindPut, commitTS-1, commitTS, v)
}

func TestDocumentSearchTextFindsIndexedField(t *testing.T) {
	d, err := NewDocument()
	require.NoError(t, err)

	putDoc(t, d, 1, map[string]any{"body": "the quick brown fox"}, 10)
	putDoc(t, d, 2, map[string]any{"body": "a slow turtle"}, 11)

	results, err := d.SearchText(context.Background(), "fox", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].ID)
}

func TestDocumentOnCommitDeleteRemovesDoc(t *testing.T) {
	d, err := NewDocument()
	require.NoError(t, err)

	putDoc(t, d, 1, map[string]any{"body": "hello world"}, 10)
	require.Equal(t, 1, d.Count())

	d.OnCommit(vecKey(t, 1), txn.WriteKindDelete, 10, 20, nil)
	assert.Equal(t, 0, d.Count())
}

func TestDocumentSearchRejectsVectorQuery(t *testing.T) {
	d, err := NewDocument()
	require.NoError(t, err)

	_, err = d.Search(context.Background(), []float32{1, 2}, 5, nil, 0)
	assert.Error(t, err)
}

func TestDocumentIsReadyAfterFirstCommit(t *testing.T) {
	d, err := NewDocument()
	require.NoError(t, err)
	assert.False(t, d.IsReady())

	putDoc(t, d, 1, map[string]any{"body": "x"}, 10)
	assert.True(t, d.IsReady())
}
