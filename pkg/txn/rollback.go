package txn

import (
	"context"

	"github.com/dingodb/dingo-store/pkg/codec"
	"github.com/dingodb/dingo-store/pkg/dingoerr"
	"github.com/dingodb/dingo-store/pkg/kvengine"
)

// BatchRollbackRequest is the input to BatchRollback.
type BatchRollbackRequest struct {
	Keys    [][]byte
	StartTS uint64
}

// BatchRollback implements spec.md §4.5's BatchRollback operation.
func (e *Engine) BatchRollback(ctx context.Context, req BatchRollbackRequest) (*CommitResponse, error) {
	who := e.nextWho()
	e.latches.Acquire(req.Keys, who)
	defer e.latches.Release(req.Keys, who)

	resp := &CommitResponse{Errors: make([]*dingoerr.Error, len(req.Keys))}
	var batch []kvengine.Op

	for idx, key := range req.Keys {
		existing, _, found, err := e.findWriteByStartTS(key, req.StartTS)
		if err != nil {
			return nil, err
		}
		if found && existing.Kind != WriteKindRollback {
			resp.Errors[idx] = dingoerr.New(dingoerr.LockNotExistAndAlreadyCommitted,
				"txn %d already committed on this key", req.StartTS)
			continue
		}
		if found {
			continue // already rolled back: idempotent
		}

		wr := WriteRecord{Kind: WriteKindRollback, StartTS: req.StartTS}
		wb, err := encodeWriteRecord(wr)
		if err != nil {
			return nil, err
		}
		batch = append(batch, kvengine.PutOp(kvengine.CFWrite, codec.EncodeWrite(key, req.StartTS), wb))

		lock, hasLock, err := e.getLock(key)
		if err != nil {
			return nil, err
		}
		if hasLock && lock.StartTS == req.StartTS {
			batch = append(batch, kvengine.DeleteOp(kvengine.CFLock, codec.EncodeLock(key)))
			e.locks.Remove(key)
		}
	}

	if len(batch) > 0 {
		if err := e.kv.Write(ctx, batch); err != nil {
			return nil, err
		}
	}
	return resp, nil
}
