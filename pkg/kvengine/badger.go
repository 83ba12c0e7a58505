package kvengine

import (
	"context"
	"errors"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
)

// BadgerAdapter implements Adapter on a single Badger instance per
// region. Badger has one flat keyspace, so each CF gets a one-byte
// prefix ahead of the already MVCC-encoded key.
type BadgerAdapter struct {
	db *badger.DB
}

var cfPrefix = map[CF]byte{
	CFData:  'd',
	CFLock:  'l',
	CFWrite: 'w',
}

func prefixed(cf CF, key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = cfPrefix[cf]
	copy(out[1:], key)
	return out
}

// NewBadgerAdapter opens (creating if absent) the Badger database for
// one region under dir.
func NewBadgerAdapter(dir string) (*BadgerAdapter, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, dingoerr.New(dingoerr.EngineIO, "open badger db %s: %v", dir, err)
	}
	return &BadgerAdapter{db: db}, nil
}

func (a *BadgerAdapter) Close() error {
	return a.db.Close()
}

func (a *BadgerAdapter) Write(ctx context.Context, batch []Op) error {
	err := a.db.Update(func(txn *badger.Txn) error {
		for _, op := range batch {
			key := prefixed(op.CF, op.Key)
			if op.Delete {
				if err := txn.Delete(key); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(key, op.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return dingoerr.New(dingoerr.EngineIO, "badger write batch: %v", err)
	}
	return nil
}

func (a *BadgerAdapter) Get(cf CF, key []byte, snap Snapshot) ([]byte, bool, error) {
	if snap != nil {
		return snap.Get(cf, key)
	}

	var value []byte
	var found bool
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(prefixed(cf, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(v []byte) error {
			value = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, false, dingoerr.New(dingoerr.EngineIO, "badger get: %v", err)
	}
	return value, found, nil
}

func (a *BadgerAdapter) Iter(cf CF, start, end []byte, snap Snapshot) (Cursor, error) {
	if snap != nil {
		return snap.Iter(cf, start, end)
	}
	txn := a.db.NewTransaction(false)
	return newBadgerCursor(txn, true, cf, start, end), nil
}

func (a *BadgerAdapter) Snapshot() (Snapshot, error) {
	txn := a.db.NewTransaction(false)
	return &badgerSnapshot{txn: txn}, nil
}

type badgerSnapshot struct {
	txn *badger.Txn
}

func (s *badgerSnapshot) Get(cf CF, key []byte) ([]byte, bool, error) {
	item, err := s.txn.Get(prefixed(cf, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dingoerr.New(dingoerr.EngineIO, "badger snapshot get: %v", err)
	}
	var value []byte
	err = item.Value(func(v []byte) error {
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, false, dingoerr.New(dingoerr.EngineIO, "badger snapshot value: %v", err)
	}
	return value, true, nil
}

func (s *badgerSnapshot) Iter(cf CF, start, end []byte) (Cursor, error) {
	return newBadgerCursor(s.txn, false, cf, start, end), nil
}

func (s *badgerSnapshot) Close() error {
	s.txn.Discard()
	return nil
}

// badgerCursor adapts a badger.Iterator to Cursor over [start, end)
// within one CF's prefixed keyspace. If ownTxn, Close discards the
// transaction; a snapshot-backed cursor leaves that to the snapshot.
type badgerCursor struct {
	txn   *badger.Txn
	it    *badger.Iterator
	ownTxn bool
	cf    CF
	end   []byte
	first bool
	done  bool
}

func newBadgerCursor(txn *badger.Txn, ownTxn bool, cf CF, start, end []byte) *badgerCursor {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	c := &badgerCursor{txn: txn, it: it, ownTxn: ownTxn, cf: cf, end: end, first: true}
	c.it.Seek(prefixed(cf, start))
	return c
}

func (c *badgerCursor) Next() bool {
	if c.done {
		return false
	}
	if !c.first {
		c.it.Next()
	}
	c.first = false

	if !c.it.ValidForPrefix([]byte{cfPrefix[c.cf]}) {
		c.done = true
		return false
	}

	key := c.it.Item().KeyCopy(nil)[1:] // strip CF prefix byte
	if c.end != nil && keyGE(key, c.end) {
		c.done = true
		return false
	}
	return true
}

func (c *badgerCursor) Entry() Entry {
	item := c.it.Item()
	key := item.KeyCopy(nil)[1:]
	var value []byte
	_ = item.Value(func(v []byte) error {
		value = append([]byte(nil), v...)
		return nil
	})
	return Entry{Key: key, Value: value}
}

func (c *badgerCursor) Err() error {
	return nil
}

func (c *badgerCursor) Close() error {
	c.it.Close()
	if c.ownTxn {
		c.txn.Discard()
	}
	return nil
}
