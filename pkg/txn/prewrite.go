package txn

import (
	"context"

	"github.com/dingodb/dingo-store/pkg/codec"
	"github.com/dingodb/dingo-store/pkg/dingoerr"
	"github.com/dingodb/dingo-store/pkg/kvengine"
	"github.com/dingodb/dingo-store/pkg/locktable"
	"github.com/dingodb/dingo-store/pkg/metrics"
)

// shortValueThreshold is the Data-CF-vs-inline cutoff for Write/Lock
// records: values at or under this size are carried inline, avoiding a
// second Data CF round trip on the common small-value path.
const shortValueThreshold = 256

// PrewriteRequest is the input to Prewrite.
type PrewriteRequest struct {
	Mutations   []Mutation
	PrimaryLock []byte
	StartTS     uint64
	LockTTL     uint64
	TxnSize     uint64

	// ForUpdateTSChecks and PessimisticChecks are parallel to
	// Mutations; both nil means a purely optimistic prewrite.
	ForUpdateTSChecks []uint64
	PessimisticChecks []bool

	// Secondaries lists the transaction's other keys for async commit;
	// nil disables async commit for this transaction.
	Secondaries [][]byte
}

// PrewriteResponse carries one result per mutation, indexed the same
// as the request's Mutations; nil means that key prewrote cleanly.
type PrewriteResponse struct {
	Errors []*dingoerr.Error
}

// Prewrite implements spec.md §4.5's Prewrite operation.
func (e *Engine) Prewrite(ctx context.Context, req PrewriteRequest) (*PrewriteResponse, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PrewriteDuration)

	who := e.nextWho()
	keys := mutationKeys(req.Mutations)
	e.latches.Acquire(keys, who)
	defer e.latches.Release(keys, who)

	resp := &PrewriteResponse{Errors: make([]*dingoerr.Error, len(req.Mutations))}
	var batch []kvengine.Op

	for _, i := range sortedIndices(req.Mutations) {
		m := req.Mutations[i]
		isPessimistic := req.PessimisticChecks != nil && i < len(req.PessimisticChecks) && req.PessimisticChecks[i]

		lock, hasLock, err := e.getLock(m.Key)
		if err != nil {
			return nil, err
		}

		if isPessimistic {
			// the write-conflict check already ran, against ForUpdateTS,
			// when PessimisticLock acquired this key; re-running it here
			// against StartTS would spuriously reject a key whose
			// conflicting write landed between StartTS and ForUpdateTS,
			// which PessimisticLock already cleared the caller for. Only
			// the lock's identity needs re-checking.
			wantForUpdateTS := req.ForUpdateTSChecks[i]
			if !hasLock || lock.Kind != LockKindPessimistic || lock.ForUpdateTS != wantForUpdateTS {
				resp.Errors[i] = dingoerr.New(dingoerr.TxnLockNotFound,
					"pessimistic lock missing or stale for_update_ts on key")
				continue
			}
			// falls through: convert the pessimistic lock into an
			// optimistic one recording the value below.
		} else {
			_, writeTS, hasWrite, err := e.latestWrite(m.Key)
			if err != nil {
				return nil, err
			}
			if hasWrite && writeTS >= req.StartTS {
				metrics.WriteConflictTotal.Inc()
				resp.Errors[i] = dingoerr.Conflict(dingoerr.WriteConflictInfo{
					StartTS: req.StartTS, ConflictCommitTS: writeTS, Key: m.Key,
				})
				continue
			}

			if hasLock && lock.StartTS != req.StartTS {
				metrics.KeyIsLockedTotal.Inc()
				resp.Errors[i] = dingoerr.Locked(dingoerr.LockInfo{
					PrimaryLock: lock.PrimaryKey, LockKey: m.Key, StartTS: lock.StartTS, LockTTL: lock.LockTTL,
				})
				continue
			}
			if hasLock && lock.StartTS == req.StartTS && lock.Kind != LockKindPessimistic {
				// idempotent retry of an already-applied prewrite for this key.
				continue
			}
		}

		newLock := LockRecord{
			PrimaryKey:     req.PrimaryLock,
			StartTS:        req.StartTS,
			LockTTL:        req.LockTTL,
			TxnSize:        req.TxnSize,
			MinCommitTS:    req.StartTS + 1,
			UseAsyncCommit: len(req.Secondaries) > 0,
			Secondaries:    req.Secondaries,
		}

		switch m.Op {
		case MutationPut:
			newLock.Kind = LockKindPut
			if len(m.Value) <= shortValueThreshold {
				newLock.ShortValue = m.Value
			} else {
				batch = append(batch, kvengine.PutOp(kvengine.CFData, codec.EncodeData(m.Key, req.StartTS), m.Value))
			}
		case MutationDelete:
			newLock.Kind = LockKindDelete
		case MutationLock:
			newLock.Kind = LockKindPessimistic
		}

		lockBytes, err := encodeLockRecord(newLock)
		if err != nil {
			return nil, err
		}
		batch = append(batch, kvengine.PutOp(kvengine.CFLock, codec.EncodeLock(m.Key), lockBytes))

		e.locks.Insert(m.Key, locktable.Record{
			PrimaryKey: newLock.PrimaryKey, StartTS: newLock.StartTS, LockTTL: newLock.LockTTL,
		})
	}

	if len(batch) > 0 {
		if err := e.kv.Write(ctx, batch); err != nil {
			return nil, err
		}
	}

	return resp, nil
}
