package index

import (
	"container/heap"
	"context"
	"encoding/gob"
	"os"
	"sync"

	"github.com/dingodb/dingo-store/pkg/region"
	"github.com/dingodb/dingo-store/pkg/txn"
)

// version is one committed revision of a row: the vector and scalar
// fields it carried as of commitTS, or a tombstone if commitTS deleted
// it. Flat keeps every version per id rather than overwriting in
// place, so Search can answer as of any snapshotTS on the same MVCC
// timeline the Data CF uses, not just the latest commit.
type version struct {
	commitTS     uint64
	deleted      bool
	vector       []float32
	scalarFields map[string]any
}

// Flat is a brute-force vector index: every Search/RangeSearch call
// scans the full row set, which is the correct tradeoff for the region
// sizes spec.md §2 targets and keeps the CommitHook path free of any
// background rebuild thread. It satisfies pkg/region.IndexWrapper.
type Flat struct {
	mu     sync.RWMutex
	metric MetricType
	dim    int

	// rows holds every id's full version history, oldest first. The
	// scalar-field shard and Count/CountWhere/RangeSearch only ever
	// consult the last (current) entry; Search walks back through
	// history to find the version visible at a given snapshotTS.
	//
	// TODO: nothing prunes versions older than the region's GC safe
	// point yet, so history grows without bound under a steady stream
	// of upserts to the same id.
	rows  map[int64][]version
	shard *scalarShard

	state      region.IndexState
	lastSaveID uint64 // appliedID as of the last Save, for NeedToSave
	appliedID  uint64
}

// NewFlat creates an empty Flat index for vectors of the given
// dimension, scored with metric.
func NewFlat(dim int, metric MetricType) *Flat {
	return &Flat{
		metric: metric,
		dim:    dim,
		rows:   make(map[int64][]version),
		shard:  newScalarShard(),
		state:  region.IndexNotReady,
	}
}

// currentVersion returns the most recent entry in an id's history,
// or false if that id has no history or its latest version is a
// tombstone.
func currentVersion(vs []version) (version, bool) {
	if len(vs) == 0 {
		return version{}, false
	}
	last := vs[len(vs)-1]
	if last.deleted {
		return version{}, false
	}
	return last, true
}

// visibleVersion returns the version of an id's history visible to a
// read at snapshotTS: the most recent commit at or before snapshotTS,
// mirroring the Data CF's own MVCC visibility rule so a Search at a
// given snapshotTS agrees with what a Get at the same snapshotTS would
// see. History is appended in commit order, so this walks backward
// from the newest entry.
func visibleVersion(vs []version, snapshotTS uint64) (version, bool) {
	for i := len(vs) - 1; i >= 0; i-- {
		if vs[i].commitTS <= snapshotTS {
			if vs[i].deleted {
				return version{}, false
			}
			return vs[i], true
		}
	}
	return version{}, false
}

// OnCommit implements txn.CommitHook: a Put appends a new version (the
// scalar shard, which only tracks current state, is updated via
// remove-then-add so a reader never observes it under both the old and
// new scalar fields at once under the write lock below); a Delete or
// Rollback appends a tombstone.
func (f *Flat) OnCommit(key []byte, kind txn.WriteKind, startTS, commitTS uint64, value []byte) {
	id, ok := rowID(key)
	if !ok {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.appliedID = commitTS

	if cur, ok := currentVersion(f.rows[id]); ok {
		f.shard.remove(id, cur.scalarFields)
	}

	switch kind {
	case txn.WriteKindDelete, txn.WriteKindRollback:
		f.rows[id] = append(f.rows[id], version{commitTS: commitTS, deleted: true})
	case txn.WriteKindPut:
		if value == nil {
			f.rows[id] = append(f.rows[id], version{commitTS: commitTS, deleted: true})
			return
		}
		payload, err := decodeVectorPayload(value)
		if err != nil || len(payload.Vector) != f.dim {
			f.rows[id] = append(f.rows[id], version{commitTS: commitTS, deleted: true})
			f.state = region.IndexBuildError
			return
		}
		f.rows[id] = append(f.rows[id], version{commitTS: commitTS, vector: payload.Vector, scalarFields: payload.ScalarFields})
		f.shard.index(id, payload.ScalarFields)
		if f.state == region.IndexNotReady || f.state == region.IndexRebuilding {
			f.state = region.IndexReady
		}
	}
}

// Search returns the topK nearest rows to query as of snapshotTS,
// skipping any row filters rejects. filters is applied during
// traversal, before a candidate is considered for the top-k heap, so a
// selective filter narrows the work Search does rather than trimming
// an unfiltered top-k result afterward.
func (f *Flat) Search(ctx context.Context, query []float32, topK int, filters Filter, snapshotTS uint64) ([]SearchResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	h := &resultHeap{}
	heap.Init(h)
	for id, vs := range f.rows {
		v, ok := visibleVersion(vs, snapshotTS)
		if !ok {
			continue
		}
		if filters != nil && !filters(id, v.scalarFields) {
			continue
		}
		s := score(f.metric, query, v.vector)
		if h.Len() < topK {
			heap.Push(h, SearchResult{ID: id, Score: s})
			continue
		}
		if h.Len() > 0 && s > (*h)[0].Score {
			heap.Pop(h)
			heap.Push(h, SearchResult{ID: id, Score: s})
		}
	}

	out := make([]SearchResult, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(SearchResult)
	}
	return out, nil
}

// RangeSearch returns every row whose distance to query is within
// radius, regardless of rank. It has no snapshotTS parameter of its
// own (per pkg/region.IndexWrapper), so it always reads current state.
func (f *Flat) RangeSearch(ctx context.Context, query []float32, radius float32, filters Filter) ([]SearchResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []SearchResult
	for id, vs := range f.rows {
		v, ok := currentVersion(vs)
		if !ok {
			continue
		}
		if filters != nil && !filters(id, v.scalarFields) {
			continue
		}
		d := distance(f.metric, query, v.vector)
		if d <= radius {
			out = append(out, SearchResult{ID: id, Score: score(f.metric, query, v.vector)})
		}
	}
	return out, nil
}

// CountWhere reports how many currently-indexed rows carry
// field == value, answered from the roaring bitmap shard rather than a
// row scan.
func (f *Flat) CountWhere(field string, value any) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	bm, ok := f.shard.candidateBitmap(field, value)
	if !ok {
		return 0
	}
	return int(bm.GetCardinality())
}

func (f *Flat) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, vs := range f.rows {
		if _, ok := currentVersion(vs); ok {
			n++
		}
	}
	return n
}

func (f *Flat) MemorySize() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var versions int64
	for _, vs := range f.rows {
		versions += int64(len(vs))
	}
	return versions * int64(f.dim) * 4
}

func (f *Flat) Dimension() int     { return f.dim }
func (f *Flat) MetricType() string { return f.metric.String() }
func (f *Flat) State() region.IndexState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}
func (f *Flat) IsReady() bool { return f.State() == region.IndexReady }

// flatSnapshotRow is one id's current version, as persisted by Save.
type flatSnapshotRow struct {
	CommitTS     uint64
	Vector       []float32
	ScalarFields map[string]any
}

// flatSnapshot is Flat's gob-serializable form for Save/Load. It
// captures only current state, not full history: a Load'd index can
// answer Search as of any snapshotTS at or after the snapshot's own
// commit timestamps, but not for reads older than what was current
// when Save ran.
type flatSnapshot struct {
	Metric MetricType
	Dim    int
	Rows   map[int64]flatSnapshotRow
}

// Save persists current state to path, grounded on the same
// whole-snapshot-at-a-point approach pkg/region's regionSnapshot uses
// rather than an incremental log, since Flat itself has no WAL.
func (f *Flat) Save(path string) error {
	f.mu.RLock()
	snap := flatSnapshot{Metric: f.metric, Dim: f.dim, Rows: make(map[int64]flatSnapshotRow, len(f.rows))}
	for id, vs := range f.rows {
		if v, ok := currentVersion(vs); ok {
			snap.Rows[id] = flatSnapshotRow{CommitTS: v.commitTS, Vector: v.vector, ScalarFields: v.scalarFields}
		}
	}
	saveID := f.appliedID
	f.mu.RUnlock()

	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	if err := gob.NewEncoder(fh).Encode(snap); err != nil {
		return err
	}

	f.mu.Lock()
	f.lastSaveID = saveID
	f.mu.Unlock()
	return nil
}

// Load replaces the index's contents with path's snapshot.
func (f *Flat) Load(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	var snap flatSnapshot
	if err := gob.NewDecoder(fh).Decode(&snap); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.metric = snap.Metric
	f.dim = snap.Dim
	f.rows = make(map[int64][]version, len(snap.Rows))
	f.shard = newScalarShard()
	for id, r := range snap.Rows {
		f.rows[id] = []version{{commitTS: r.CommitTS, vector: r.Vector, scalarFields: r.ScalarFields}}
		f.shard.index(id, r.ScalarFields)
	}
	f.state = region.IndexReady
	return nil
}

// NeedToSave reports whether the commit_ts of the latest applied commit
// is more than logBehind past the one recorded at the last Save, per
// spec.md §4.7's save-cadence hint.
func (f *Flat) NeedToSave(logBehind uint64) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.appliedID-f.lastSaveID > logBehind
}

// RebuildFromRange clears every row and the scalar shard and sets the
// state to Rebuilding. Flat has no engine handle: it reads nothing from
// the Data CF, startKey and endKey are not used, and rows come back
// only through later OnCommit calls, the first of which sets the state
// to Ready.
func (f *Flat) RebuildFromRange(ctx context.Context, startKey, endKey []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = make(map[int64][]version)
	f.shard = newScalarShard()
	f.state = region.IndexRebuilding
	return nil
}

// resultHeap is a min-heap over Score, so topK's smallest-of-the-best
// sits at index 0 and is what a new candidate displaces.
type resultHeap []SearchResult

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x interface{}) { *h = append(*h, x.(SearchResult)) }
func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
