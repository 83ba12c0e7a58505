// Package index implements spec.md §4.7's secondary vector/document
// index wrapper: a structure that mirrors the same key-space as a
// region's Data CF, kept current by registering against
// pkg/txn.Engine as a txn.CommitHook rather than by its own write path.
//
// Flat is a brute-force vector index supporting L2, inner-product and
// cosine distance. Document wraps a bleve full-text index. Both
// implement pkg/region.IndexWrapper and are driven exclusively through
// OnCommit plus the read-only Search/RangeSearch/introspection calls
// spec.md §4.7 names — there is no direct write path into either.
package index

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/dingodb/dingo-store/pkg/codec"
	"github.com/dingodb/dingo-store/pkg/region"
)

// SearchResult and Filter alias pkg/region's IndexWrapper types so Flat
// and Document can use the unqualified names pkg/region's own doc
// comments use, while still satisfying region.IndexWrapper with the
// exact same type identity.
type SearchResult = region.SearchResult
type Filter = region.Filter

// VectorPayload is the committed value a vector Mutation carries: the
// embedding plus any scalar fields a Filter can consult. The row's id
// lives in the user key itself (codec.EncodeIndexedKey), not here.
type VectorPayload struct {
	Vector       []float32
	ScalarFields map[string]any
}

// DocumentPayload is the committed value a document Mutation carries.
type DocumentPayload struct {
	Fields map[string]any
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeVectorPayload(data []byte) (VectorPayload, error) {
	var p VectorPayload
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p)
	return p, err
}

func decodeDocumentPayload(data []byte) (DocumentPayload, error) {
	var p DocumentPayload
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p)
	return p, err
}

// EncodeVectorPayload gob-encodes p for use as a Mutation's Value.
func EncodeVectorPayload(p VectorPayload) ([]byte, error) { return encodeGob(p) }

// EncodeDocumentPayload gob-encodes p for use as a Mutation's Value.
func EncodeDocumentPayload(p DocumentPayload) ([]byte, error) { return encodeGob(p) }

// rowID extracts the 8-byte big-endian row id spec.md §3 says trails
// every indexed row's encoded user key.
func rowID(key []byte) (int64, bool) {
	_, _, rest, err := codec.DecodeUserKeyPrefix(key)
	if err != nil || len(rest) != 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(rest)), true
}
