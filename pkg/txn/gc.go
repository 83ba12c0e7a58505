package txn

import (
	"context"

	"github.com/dingodb/dingo-store/pkg/codec"
	"github.com/dingodb/dingo-store/pkg/kvengine"
	"github.com/dingodb/dingo-store/pkg/metrics"
)

// gcYieldEvery bounds how many Write CF records Gc scans before
// checking ctx and yielding, so a long-running sweep never blocks the
// write path for an unbounded stretch.
const gcYieldEvery = 256

// Gc implements spec.md §4.5's Gc operation: iterate the Write CF and
// physically delete records made obsolete by a newer commit for the
// same key once both are older than safePointTS, plus their orphaned
// Data CF entries. pkg/gc owns deciding safePointTS and scheduling
// this call; this method only knows how to sweep one pass.
func (e *Engine) Gc(ctx context.Context, safePointTS uint64) error {
	snap, err := e.kv.Snapshot()
	if err != nil {
		return err
	}
	defer snap.Close()

	cur, err := e.kv.Iter(kvengine.CFWrite, nil, nil, snap)
	if err != nil {
		return err
	}
	defer cur.Close()

	var batch []kvengine.Op
	var prevUserKey []byte
	var sawNewerSurvivor bool
	scanned := 0

	for cur.Next() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		entry := cur.Entry()
		userKey, commitTS, derr := codec.DecodeWrite(entry.Key)
		if derr != nil {
			return derr
		}
		metrics.GCRecordsScanned.Inc()
		scanned++

		if !bytesEqual(userKey, prevUserKey) {
			prevUserKey = append([]byte(nil), userKey...)
			sawNewerSurvivor = false
		}

		if commitTS >= safePointTS {
			// still within the visibility window: kept, but not a
			// survivor, since a reader at safePointTS cannot see it.
			continue
		}

		if !sawNewerSurvivor {
			// the newest record for this key below the safe point: it's
			// the value every reader at safePointTS must still see, so
			// it is kept and becomes the survivor for any older records
			// that follow.
			sawNewerSurvivor = true
			continue
		}

		rec, rerr := decodeWriteRecord(entry.Value)
		if rerr != nil {
			return rerr
		}

		batch = append(batch, kvengine.DeleteOp(kvengine.CFWrite, append([]byte(nil), entry.Key...)))
		if rec.Kind == WriteKindPut && rec.ShortValue == nil {
			batch = append(batch, kvengine.DeleteOp(kvengine.CFData, codec.EncodeData(userKey, rec.StartTS)))
		}
		metrics.GCRecordsRemoved.Inc()

		if scanned%gcYieldEvery == 0 {
			if err := e.flushGc(ctx, &batch); err != nil {
				return err
			}
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}

	return e.flushGc(ctx, &batch)
}

func (e *Engine) flushGc(ctx context.Context, batch *[]kvengine.Op) error {
	if len(*batch) == 0 {
		return nil
	}
	if err := e.kv.Write(ctx, *batch); err != nil {
		return err
	}
	*batch = (*batch)[:0]
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
