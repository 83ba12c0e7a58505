package region

import (
	"context"

	"github.com/dingodb/dingo-store/pkg/txn"
)

// IndexState is the vector/document index wrapper's lifecycle state
// machine from spec.md §4.7: NotReady -> Building -> Ready ->
// (BuildError | Rebuilding -> Ready).
type IndexState int

const (
	IndexNotReady IndexState = iota
	IndexBuilding
	IndexReady
	IndexBuildError
	IndexRebuilding
)

func (s IndexState) String() string {
	switch s {
	case IndexNotReady:
		return "NotReady"
	case IndexBuilding:
		return "Building"
	case IndexReady:
		return "Ready"
	case IndexBuildError:
		return "BuildError"
	case IndexRebuilding:
		return "Rebuilding"
	default:
		return "Unknown"
	}
}

// Filter is a pre-filter predicate consulted while the index traverses
// candidates, per spec.md §4.7: it must be honored without breaking
// top-k traversal, never applied as a post-hoc filter over the
// unfiltered top-k.
type Filter func(id int64, scalarFields map[string]any) bool

// SearchResult is one ranked hit from Search or RangeSearch.
type SearchResult struct {
	ID    int64
	Score float32
}

// IndexWrapper is the secondary vector/document index from spec.md §4.7.
// A Region holds up to two — VectorIndex and DocumentIndex — each
// registered against the region's pkg/txn.Engine as a CommitHook so it
// mirrors the same MVCC timeline the Data CF does, one call per
// committed key, in commit order.
type IndexWrapper interface {
	txn.CommitHook

	Search(ctx context.Context, query []float32, topK int, filters Filter, snapshotTS uint64) ([]SearchResult, error)
	RangeSearch(ctx context.Context, query []float32, radius float32, filters Filter) ([]SearchResult, error)

	Count() int
	MemorySize() int64
	Dimension() int
	MetricType() string

	Save(path string) error
	Load(path string) error
	NeedToSave(logBehind uint64) bool

	// RebuildFromRange resets the index for a rebuild of
	// [startKey, endKey), for use after a split/merge commits or after
	// corruption is detected. The pkg/index implementations only clear
	// their state; nothing in this package replays Data CF rows into
	// them.
	RebuildFromRange(ctx context.Context, startKey, endKey []byte) error

	State() IndexState
	IsReady() bool
}
