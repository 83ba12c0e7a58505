package index

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/dingodb/dingo-store/pkg/region"
	"github.com/dingodb/dingo-store/pkg/txn"
)

// Document is the full-text secondary index from spec.md §4.7, backed
// by an in-memory bleve index. Unlike Flat it has no notion of vector
// distance; SearchText takes a query string and scores by bleve's own
// relevance ranking, while the vector Search and RangeSearch operations
// are unsupported and return an error.
type Document struct {
	mu    sync.RWMutex
	idx   bleve.Index
	state region.IndexState

	lastSaveID uint64
	appliedID  uint64
	count      int
}

// NewDocument creates an empty in-memory Document index using bleve's
// default text mapping.
func NewDocument() (*Document, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Document{idx: idx, state: region.IndexNotReady}, nil
}

func docID(id int64) string { return strconv.FormatInt(id, 10) }

// OnCommit implements txn.CommitHook: a Put indexes (or re-indexes)
// the row's fields, a Delete or Rollback removes it.
func (d *Document) OnCommit(key []byte, kind txn.WriteKind, startTS, commitTS uint64, value []byte) {
	id, ok := rowID(key)
	if !ok {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.appliedID = commitTS

	switch kind {
	case txn.WriteKindDelete, txn.WriteKindRollback:
		if err := d.idx.Delete(docID(id)); err == nil {
			d.count--
		}
	case txn.WriteKindPut:
		if value == nil {
			return
		}
		payload, err := decodeDocumentPayload(value)
		if err != nil {
			d.state = region.IndexBuildError
			return
		}
		if err := d.idx.Index(docID(id), payload.Fields); err != nil {
			d.state = region.IndexBuildError
			return
		}
		d.count++
		if d.state == region.IndexNotReady || d.state == region.IndexRebuilding {
			d.state = region.IndexReady
		}
	}
}

// Search is unsupported: a Document index has no vector embedding to
// search by, so it always returns an error naming SearchText, the
// query-string entry point.
func (d *Document) Search(ctx context.Context, query []float32, topK int, filters Filter, snapshotTS uint64) ([]SearchResult, error) {
	return nil, fmt.Errorf("index: Document does not support vector Search, use SearchText")
}

// SearchText is Document's actual query entry point: a bleve
// query-string search returning up to topK hits ranked by bleve's
// relevance score.
func (d *Document) SearchText(ctx context.Context, queryString string, topK int) ([]SearchResult, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	q := bleve.NewQueryStringQuery(queryString)
	req := bleve.NewSearchRequestOptions(q, topK, 0, false)
	res, err := d.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, SearchResult{ID: id, Score: float32(hit.Score)})
	}
	return out, nil
}

// RangeSearch is unsupported: a text index has no distance metric to
// bound by radius.
func (d *Document) RangeSearch(ctx context.Context, query []float32, radius float32, filters Filter) ([]SearchResult, error) {
	return nil, fmt.Errorf("index: Document does not support RangeSearch")
}

func (d *Document) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.count
}

func (d *Document) MemorySize() int64 {
	n, err := d.idx.DocCount()
	if err != nil {
		return 0
	}
	return int64(n) * 512 // rough per-document estimate; bleve exposes no precise figure in-memory
}

func (d *Document) Dimension() int     { return 0 }
func (d *Document) MetricType() string { return "" }

func (d *Document) State() region.IndexState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}
func (d *Document) IsReady() bool { return d.State() == region.IndexReady }

// Save always returns an error: the in-memory bleve index has no file
// path of its own, and Save writes nothing to path.
func (d *Document) Save(path string) error {
	return fmt.Errorf("index: in-memory Document has no file-backed Save; construct with a persistent bleve path instead")
}

func (d *Document) Load(path string) error {
	return fmt.Errorf("index: in-memory Document has no file-backed Load; construct with a persistent bleve path instead")
}

func (d *Document) NeedToSave(logBehind uint64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.appliedID-d.lastSaveID > logBehind
}

// RebuildFromRange replaces the bleve index with an empty one and sets
// the state to Rebuilding; like Flat, it reads nothing from the Data CF
// and ignores startKey and endKey, so documents come back only through
// later OnCommit calls.
func (d *Document) RebuildFromRange(ctx context.Context, startKey, endKey []byte) error {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.idx = idx
	d.count = 0
	d.state = region.IndexRebuilding
	return nil
}
