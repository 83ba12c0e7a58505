package txn

import (
	"context"

	"github.com/dingodb/dingo-store/pkg/codec"
	"github.com/dingodb/dingo-store/pkg/dingoerr"
	"github.com/dingodb/dingo-store/pkg/kvengine"
	"github.com/dingodb/dingo-store/pkg/locktable"
	"github.com/dingodb/dingo-store/pkg/metrics"
)

// PessimisticLockRequest is the input to PessimisticLock.
type PessimisticLockRequest struct {
	Mutations     []Mutation // Op is always MutationLock
	PrimaryLock   []byte
	StartTS       uint64
	ForUpdateTS   uint64
	LockTTL       uint64
	ReturnValues  bool
}

// PessimisticLockResponse carries one result per mutation. Values is
// populated only when ReturnValues was set, one slot per mutation.
type PessimisticLockResponse struct {
	Errors []*dingoerr.Error
	Values [][]byte
}

// PessimisticLock implements spec.md §4.5's PessimisticLock operation.
func (e *Engine) PessimisticLock(ctx context.Context, req PessimisticLockRequest) (*PessimisticLockResponse, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PessimisticLockDuration)

	who := e.nextWho()
	keys := mutationKeys(req.Mutations)
	e.latches.Acquire(keys, who)
	defer e.latches.Release(keys, who)

	resp := &PessimisticLockResponse{
		Errors: make([]*dingoerr.Error, len(req.Mutations)),
		Values: make([][]byte, len(req.Mutations)),
	}
	var batch []kvengine.Op

	for _, i := range sortedIndices(req.Mutations) {
		m := req.Mutations[i]

		_, writeTS, hasWrite, err := e.latestWrite(m.Key)
		if err != nil {
			return nil, err
		}
		if hasWrite && writeTS > req.ForUpdateTS {
			metrics.WriteConflictTotal.Inc()
			resp.Errors[i] = dingoerr.Conflict(dingoerr.WriteConflictInfo{
				StartTS: req.StartTS, ConflictCommitTS: writeTS, Key: m.Key,
				RetryWithNewForUpdateTS: true,
			})
			continue
		}

		lock, hasLock, err := e.getLock(m.Key)
		if err != nil {
			return nil, err
		}

		if hasLock && lock.StartTS != req.StartTS {
			metrics.KeyIsLockedTotal.Inc()
			resp.Errors[i] = dingoerr.Locked(dingoerr.LockInfo{
				PrimaryLock: lock.PrimaryKey, LockKey: m.Key, StartTS: lock.StartTS, LockTTL: lock.LockTTL,
			})
			continue
		}
		if hasLock && lock.StartTS == req.StartTS && lock.ForUpdateTS == req.ForUpdateTS {
			if req.ReturnValues {
				resp.Values[i] = currentValue(e, m.Key)
			}
			continue // idempotent retry
		}

		newLock := LockRecord{
			PrimaryKey:  req.PrimaryLock,
			StartTS:     req.StartTS,
			ForUpdateTS: req.ForUpdateTS,
			LockTTL:     req.LockTTL,
			Kind:        LockKindPessimistic,
		}
		lockBytes, err := encodeLockRecord(newLock)
		if err != nil {
			return nil, err
		}
		batch = append(batch, kvengine.PutOp(kvengine.CFLock, codec.EncodeLock(m.Key), lockBytes))
		e.locks.Insert(m.Key, locktable.Record{
			PrimaryKey: newLock.PrimaryKey, StartTS: newLock.StartTS, LockTTL: newLock.LockTTL,
		})

		if req.ReturnValues {
			resp.Values[i] = currentValue(e, m.Key)
		}
	}

	if len(batch) > 0 {
		if err := e.kv.Write(ctx, batch); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

func currentValue(e *Engine, key []byte) []byte {
	rec, _, found, err := e.latestWrite(key)
	if err != nil || !found || rec.Kind != WriteKindPut {
		return nil
	}
	if rec.ShortValue != nil {
		return rec.ShortValue
	}
	v, found, err := e.kv.Get(kvengine.CFData, codec.EncodeData(key, rec.StartTS), nil)
	if err != nil || !found {
		return nil
	}
	return v
}

// PessimisticRollbackRequest is the input to PessimisticRollback.
type PessimisticRollbackRequest struct {
	Keys    [][]byte
	StartTS uint64
}

// PessimisticRollback implements spec.md §4.5's PessimisticRollback
// operation: it deletes pessimistic-lock records only, never touching
// an optimistic lock or a write record that may already be there.
func (e *Engine) PessimisticRollback(ctx context.Context, req PessimisticRollbackRequest) error {
	who := e.nextWho()
	e.latches.Acquire(req.Keys, who)
	defer e.latches.Release(req.Keys, who)

	var batch []kvengine.Op
	for _, key := range req.Keys {
		lock, hasLock, err := e.getLock(key)
		if err != nil {
			return err
		}
		if !hasLock || lock.Kind != LockKindPessimistic || lock.StartTS != req.StartTS {
			continue
		}
		batch = append(batch, kvengine.DeleteOp(kvengine.CFLock, codec.EncodeLock(key)))
		e.locks.Remove(key)
	}

	if len(batch) == 0 {
		return nil
	}
	return e.kv.Write(ctx, batch)
}
