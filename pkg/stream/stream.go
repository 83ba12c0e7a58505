// Package stream implements spec.md §4.9's stream manager: any scan
// whose requested limit exceeds the server's configured
// stream_message_max_limit_size is forced to stream rather than
// returned in one response. The manager hands the first call a
// stream_id, remembers where that scan left off, and resumes from
// there on the next call carrying the same id — until the stream's TTL
// lapses, after which a resume attempt returns StreamExpired.
package stream

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
	"github.com/dingodb/dingo-store/pkg/metrics"
)

// SnapshotHandle is an opaque read-view a stream holds across resume
// calls — typically a pinned MVCC read timestamp plus the underlying
// pkg/kvengine.Adapter iterator state. Manager never interprets it.
type SnapshotHandle interface {
	Close()
}

// Stream is one open server-side scan: spec.md §4.9's
// {snapshot_handle, last_key, ctx, expiry} tuple. expiry is enforced by
// the registry's own TTL eviction rather than a field checked here.
type Stream struct {
	ID       uint64
	Snapshot SnapshotHandle
	LastKey  []byte
	Ctx      context.Context
}

// Manager allocates and resumes streams, backed by a TTL-expiring LRU
// so a stream nobody resumes in time is evicted and its snapshot
// handle released automatically rather than leaking until some
// separate sweep notices it.
type Manager struct {
	streams *lru.LRU[uint64, *Stream]
	nextID  atomic.Uint64
}

// NewManager creates a Manager holding at most maxStreams concurrently,
// each expiring ttl after its last Open/Resume call.
func NewManager(maxStreams int, ttl time.Duration) *Manager {
	m := &Manager{}
	m.streams = lru.NewLRU[uint64, *Stream](maxStreams, m.onEvict, ttl)
	return m
}

func (m *Manager) onEvict(_ uint64, s *Stream) {
	if s.Snapshot != nil {
		s.Snapshot.Close()
	}
	metrics.StreamsOpen.Dec()
}

// Open allocates a new stream_id for a scan that just started
// streaming, per spec.md §4.9's "allocates stream_id on first call."
func (m *Manager) Open(ctx context.Context, snapshot SnapshotHandle, lastKey []byte) *Stream {
	s := &Stream{
		ID:       m.nextID.Add(1),
		Snapshot: snapshot,
		LastKey:  append([]byte(nil), lastKey...),
		Ctx:      ctx,
	}
	m.streams.Add(s.ID, s)
	metrics.StreamsOpen.Inc()
	return s
}

// Resume returns the stream for id, extending its TTL, or
// StreamExpired if id is unknown or has already expired and been
// evicted.
func (m *Manager) Resume(id uint64) (*Stream, *dingoerr.Error) {
	s, ok := m.streams.Get(id)
	if !ok {
		metrics.StreamExpiredTotal.Inc()
		return nil, dingoerr.New(dingoerr.StreamExpired, "stream %d expired or not found", id)
	}
	// Get alone does not renew an entry's expiry; re-adding does.
	m.streams.Add(id, s)
	return s, nil
}

// Advance records the new last_key a resumed stream's scan reached,
// keeping it alive in the registry (Get in Resume already refreshed
// its TTL; Advance only needs to persist the updated cursor).
func (m *Manager) Advance(id uint64, lastKey []byte) {
	s, ok := m.streams.Peek(id)
	if !ok {
		return
	}
	s.LastKey = append([]byte(nil), lastKey...)
}

// Close ends a stream explicitly — a scan that exhausted its range
// before ever needing a second resume call releases its snapshot
// immediately instead of waiting out the TTL.
func (m *Manager) Close(id uint64) {
	m.streams.Remove(id)
}

// Len reports the number of currently open streams.
func (m *Manager) Len() int {
	return m.streams.Len()
}
