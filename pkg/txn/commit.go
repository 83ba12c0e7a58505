package txn

import (
	"context"
	"sort"

	"github.com/dingodb/dingo-store/pkg/codec"
	"github.com/dingodb/dingo-store/pkg/dingoerr"
	"github.com/dingodb/dingo-store/pkg/kvengine"
	"github.com/dingodb/dingo-store/pkg/metrics"
)

// CommitRequest is the input to Commit.
type CommitRequest struct {
	Keys     [][]byte
	StartTS  uint64
	CommitTS uint64
}

// CommitResponse carries one result per key, indexed as Keys.
type CommitResponse struct {
	Errors []*dingoerr.Error
}

// Commit implements spec.md §4.5's Commit operation.
func (e *Engine) Commit(ctx context.Context, req CommitRequest) (*CommitResponse, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CommitDuration)

	who := e.nextWho()
	e.latches.Acquire(req.Keys, who)
	defer e.latches.Release(req.Keys, who)

	resp := &CommitResponse{Errors: make([]*dingoerr.Error, len(req.Keys))}
	var batch []kvengine.Op

	for _, ik := range sortByteKeysIndexed(req.Keys) {
		idx, key := ik.idx, ik.key
		lock, hasLock, err := e.getLock(key)
		if err != nil {
			return nil, err
		}

		if hasLock && lock.StartTS == req.StartTS {
			kind := writeKindFromLock(lock.Kind)
			wr := WriteRecord{Kind: kind, StartTS: req.StartTS, ShortValue: lock.ShortValue}
			wb, err := encodeWriteRecord(wr)
			if err != nil {
				return nil, err
			}
			batch = append(batch,
				kvengine.PutOp(kvengine.CFWrite, codec.EncodeWrite(key, req.CommitTS), wb),
				kvengine.DeleteOp(kvengine.CFLock, codec.EncodeLock(key)),
			)
			e.locks.Remove(key)

			// CommitHooks need the actual committed value, not just
			// whatever fit inline in the lock record: a Put whose value
			// exceeded shortValueThreshold left it in the Data CF only.
			notifyValue := lock.ShortValue
			if kind == WriteKindPut && notifyValue == nil {
				v, found, err := e.kv.Get(kvengine.CFData, codec.EncodeData(key, req.StartTS), nil)
				if err != nil {
					return nil, err
				}
				if found {
					notifyValue = v
				}
			}
			e.notifyCommit(key, kind, req.StartTS, req.CommitTS, notifyValue)
			continue
		}

		// no matching lock: either already committed, rolled back, or
		// the client never got Prewrite's confirmation.
		existing, _, found, err := e.findWriteByStartTS(key, req.StartTS)
		if err != nil {
			return nil, err
		}
		if found && existing.Kind == WriteKindRollback {
			resp.Errors[idx] = dingoerr.New(dingoerr.TxnRolledBack, "txn %d already rolled back", req.StartTS)
			continue
		}
		if found {
			// idempotent: this key was already committed by an earlier
			// delivery of the same Commit request.
			continue
		}
		resp.Errors[idx] = dingoerr.LockNotFound(req.StartTS, nil)
	}

	if len(batch) > 0 {
		if err := e.kv.Write(ctx, batch); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

func writeKindFromLock(k LockKind) WriteKind {
	switch k {
	case LockKindDelete:
		return WriteKindDelete
	default:
		return WriteKindPut
	}
}

// sortByteKeysIndexed returns keys in sorted order; Commit's response
// slots stay aligned to the caller's original order via a parallel
// index return when ordering matters, but spec.md doesn't require
// Commit results in request order the way Prewrite's per-mutation
// errors do, so this just sorts by value for deterministic key
// processing order and returns the original index alongside.
func sortByteKeysIndexed(keys [][]byte) []indexedKey {
	out := make([]indexedKey, len(keys))
	for i, k := range keys {
		out[i] = indexedKey{idx: i, key: k}
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].key) < string(out[j].key) })
	return out
}

type indexedKey struct {
	idx int
	key []byte
}
