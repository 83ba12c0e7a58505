package txn

import (
	"context"

	"github.com/dingodb/dingo-store/pkg/codec"
	"github.com/dingodb/dingo-store/pkg/kvengine"
	"github.com/dingodb/dingo-store/pkg/locktable"
	"github.com/dingodb/dingo-store/pkg/metrics"
)

// TxnStatusKind names CheckTxnStatus's result variant.
type TxnStatusKind int

const (
	StatusLocked TxnStatusKind = iota
	StatusLockNotExist
	StatusCommitted
	StatusRolledBack
)

// TxnStatus is CheckTxnStatus's result.
type TxnStatus struct {
	Kind     TxnStatusKind
	LockTTL  uint64
	CommitTS uint64
}

// CheckTxnStatus implements spec.md §4.5's CheckTxnStatus operation
// against primaryKey's lock.
func (e *Engine) CheckTxnStatus(ctx context.Context, primaryKey []byte, startTS, currentTS uint64) (*TxnStatus, error) {
	who := e.nextWho()
	keys := [][]byte{primaryKey}
	e.latches.Acquire(keys, who)
	defer e.latches.Release(keys, who)

	lock, hasLock, err := e.getLock(primaryKey)
	if err != nil {
		return nil, err
	}

	if hasLock && lock.StartTS == startTS {
		if PhysicalMillis(currentTS) < PhysicalMillis(lock.StartTS)+lock.LockTTL {
			return &TxnStatus{Kind: StatusLocked, LockTTL: lock.LockTTL}, nil
		}

		// expired: protect the primary by writing a rollback record
		// and releasing the lock, same as BatchRollback on this key.
		wr := WriteRecord{Kind: WriteKindRollback, StartTS: startTS}
		wb, err := encodeWriteRecord(wr)
		if err != nil {
			return nil, err
		}
		batch := []kvengine.Op{
			kvengine.PutOp(kvengine.CFWrite, codec.EncodeWrite(primaryKey, startTS), wb),
			kvengine.DeleteOp(kvengine.CFLock, codec.EncodeLock(primaryKey)),
		}
		if err := e.kv.Write(ctx, batch); err != nil {
			return nil, err
		}
		e.locks.Remove(primaryKey)
		return &TxnStatus{Kind: StatusLockNotExist}, nil
	}

	existing, commitTS, found, err := e.findWriteByStartTS(primaryKey, startTS)
	if err != nil {
		return nil, err
	}
	if found && existing.Kind == WriteKindRollback {
		return &TxnStatus{Kind: StatusRolledBack}, nil
	}
	if found {
		return &TxnStatus{Kind: StatusCommitted, CommitTS: commitTS}, nil
	}
	return &TxnStatus{Kind: StatusLockNotExist}, nil
}

// ResolveLockRequest is the input to ResolveLock.
type ResolveLockRequest struct {
	StartTS  uint64
	CommitTS uint64 // 0 means roll back
	// Keys restricts resolution to a subset; nil means "all locks of
	// StartTS in the region", which ResolveLock finds by scanning the
	// Lock CF itself.
	Keys [][]byte
}

// ResolveLock implements spec.md §4.5's ResolveLock operation. An empty
// Keys means "every lock StartTS holds in this region", resolved by
// scanning the Lock CF for it rather than requiring the caller to
// already know the key set.
func (e *Engine) ResolveLock(ctx context.Context, req ResolveLockRequest) error {
	keys := req.Keys
	if len(keys) == 0 {
		scanned, err := e.locksByStartTS(req.StartTS)
		if err != nil {
			return err
		}
		keys = scanned
	}
	metrics.ResolveLockTotal.Add(float64(len(keys)))
	if len(keys) == 0 {
		return nil
	}

	if req.CommitTS == 0 {
		_, err := e.BatchRollback(ctx, BatchRollbackRequest{Keys: keys, StartTS: req.StartTS})
		return err
	}
	_, err := e.Commit(ctx, CommitRequest{Keys: keys, StartTS: req.StartTS, CommitTS: req.CommitTS})
	return err
}

// locksByStartTS scans the entire Lock CF for records belonging to
// startTS, returning their user keys. Used by ResolveLock when the
// caller doesn't already know which keys startTS locked.
func (e *Engine) locksByStartTS(startTS uint64) ([][]byte, error) {
	snap, err := e.kv.Snapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Close()

	cur, err := e.kv.Iter(kvengine.CFLock, nil, nil, snap)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var keys [][]byte
	for cur.Next() {
		entry := cur.Entry()
		rec, derr := decodeLockRecord(entry.Value)
		if derr != nil {
			return nil, derr
		}
		if rec.StartTS != startTS {
			continue
		}
		userKey, derr := codec.DecodeLock(entry.Key)
		if derr != nil {
			return nil, derr
		}
		keys = append(keys, append([]byte(nil), userKey...))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// HeartBeat implements spec.md §4.5's HeartBeat operation: bump the
// primary lock's TTL to max(current, advised); a no-op if the lock is
// gone.
func (e *Engine) HeartBeat(ctx context.Context, primaryKey []byte, startTS, advisedTTL uint64) (uint64, error) {
	who := e.nextWho()
	keys := [][]byte{primaryKey}
	e.latches.Acquire(keys, who)
	defer e.latches.Release(keys, who)

	lock, hasLock, err := e.getLock(primaryKey)
	if err != nil {
		return 0, err
	}
	if !hasLock || lock.StartTS != startTS {
		return 0, nil
	}
	if advisedTTL <= lock.LockTTL {
		return lock.LockTTL, nil
	}

	lock.LockTTL = advisedTTL
	lockBytes, err := encodeLockRecord(lock)
	if err != nil {
		return 0, err
	}
	if err := e.kv.Write(ctx, []kvengine.Op{
		kvengine.PutOp(kvengine.CFLock, codec.EncodeLock(primaryKey), lockBytes),
	}); err != nil {
		return 0, err
	}
	e.locks.Insert(primaryKey, locktable.Record{
		PrimaryKey: lock.PrimaryKey, StartTS: lock.StartTS, LockTTL: lock.LockTTL,
	})
	return advisedTTL, nil
}
