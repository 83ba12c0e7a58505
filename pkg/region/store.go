package region

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
	"github.com/dingodb/dingo-store/pkg/kvengine"
	"github.com/dingodb/dingo-store/pkg/latch"
	"github.com/dingodb/dingo-store/pkg/locktable"
	"github.com/dingodb/dingo-store/pkg/log"
	"github.com/dingodb/dingo-store/pkg/metrics"
	"github.com/dingodb/dingo-store/pkg/txn"
	"github.com/rs/zerolog"
)

// handle bundles one region's full set of live components: the
// metadata/FSM pair Raft drives, the engine the FSM applies commands
// against, and the Raft instance replicating it. One handle per region,
// the multi-raft-group layout spec.md's region-per-range model implies.
type handle struct {
	region *Region
	fsm    *RegionFSM
	engine *txn.Engine
	kv     kvengine.Adapter
	raft   *raft.Raft
}

// Store bootstraps and tracks one Raft group per region on this node,
// mirroring how manager.Manager owns a single Raft group over
// storage.Store — generalized here to many independent groups, one per
// region, each with its own data directory and FSM.
type Store struct {
	mu       sync.RWMutex
	nodeID   string
	bindAddr string
	dataDir  string
	backend  string
	regions  map[uint64]*handle
	log      zerolog.Logger
}

// NewStore creates a Store rooted at dataDir; backend selects the
// pkg/kvengine.Adapter implementation ("bolt" or "badger") every region
// created through it uses.
func NewStore(nodeID, bindAddr, dataDir, backend string) *Store {
	return &Store{
		nodeID:   nodeID,
		bindAddr: bindAddr,
		dataDir:  dataDir,
		backend:  backend,
		regions:  make(map[uint64]*handle),
		log:      log.WithComponent("region"),
	}
}

// CreateRegion opens a region's KV adapter, wires its txn engine, and
// bootstraps a single-node Raft group over its FSM. peers is recorded
// in the region's metadata only: no other node joins the Raft group,
// and Store exposes no way to add voters afterward.
func (s *Store) CreateRegion(id uint64, keyRange KeyRange, peers []Peer) (*Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.regions[id]; exists {
		return nil, dingoerr.New(dingoerr.IllegalParameter, "region %d already exists", id)
	}

	kv, err := kvengine.Open(s.backend, s.dataDir, id)
	if err != nil {
		return nil, err
	}

	latches := latch.NewManager()
	locks := locktable.New()
	clock := txn.NewPhysicalClock()
	engine := txn.New(kv, latches, locks, clock)

	r := New(id, keyRange, peers)
	fsm := NewRegionFSM(r, engine)

	regionDir := filepath.Join(s.dataDir, fmt.Sprintf("region-%d", id))
	if err := os.MkdirAll(regionDir, 0o755); err != nil {
		kv.Close()
		return nil, fmt.Errorf("create region dir: %w", err)
	}

	rf, err := bootstrapRaft(s.nodeID, s.bindAddr, regionDir, fsm)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("bootstrap raft for region %d: %w", id, err)
	}

	r.State = StateNormal
	s.regions[id] = &handle{region: r, fsm: fsm, engine: engine, kv: kv, raft: rf}
	s.log.Info().Uint64("region_id", id).Msg("region created")
	return r, nil
}

// bootstrapRaft stands up a single-node Raft group over fsm, following
// manager.Manager.Bootstrap's TCP-transport + file-snapshot-store +
// BoltDB-log/stable-store construction, generalized to run once per
// region directory instead of once per process.
func bootstrapRaft(nodeID, bindAddr, dataDir string, fsm raft.FSM) (*raft.Raft, error) {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(fmt.Sprintf("%s-%s", nodeID, filepath.Base(dataDir)))

	addr, err := net.ResolveTCPAddr("tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create stable store: %w", err)
	}

	rf, err := raft.NewRaft(config, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft: %w", err)
	}

	future := rf.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: config.LocalID, Address: transport.LocalAddr()}},
	})
	if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
		return nil, fmt.Errorf("bootstrap cluster: %w", err)
	}

	return rf, nil
}

// Region returns region id's current metadata, if it exists on this node.
func (s *Store) Region(id uint64) (*Region, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.regions[id]
	if !ok {
		return nil, false
	}
	return h.region, true
}

// AttachVectorIndex wires idx as region id's vector index: it is set on
// the region's metadata and registered with the region's txn.Engine as
// a CommitHook, so every future commit mirrors into it. pkg/region
// only knows idx through the IndexWrapper contract; the concrete
// pkg/index.Flat (or any other implementation) is constructed by the
// caller, since pkg/index itself depends on pkg/region and importing
// it back here would cycle.
func (s *Store) AttachVectorIndex(id uint64, idx IndexWrapper) error {
	return s.attachIndex(id, idx, false)
}

// AttachDocumentIndex is AttachVectorIndex for the document index slot.
func (s *Store) AttachDocumentIndex(id uint64, idx IndexWrapper) error {
	return s.attachIndex(id, idx, true)
}

func (s *Store) attachIndex(id uint64, idx IndexWrapper, document bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.regions[id]
	if !ok {
		return dingoerr.New(dingoerr.RegionNotFound, "region %d not found", id)
	}

	if document {
		h.region.DocumentIndex = idx
	} else {
		h.region.VectorIndex = idx
	}

	h.engine.RegisterHook(idx)
	return nil
}

// Engine returns region id's transaction engine, if it exists on this
// node — pkg/wire's RPC handlers use this to dispatch client requests
// after epoch validation.
func (s *Store) Engine(id uint64) (*txn.Engine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.regions[id]
	if !ok {
		return nil, false
	}
	return h.engine, true
}

// KV returns region id's raw KV adapter, if it exists on this node —
// pkg/gc's safe-point sweeper persists watermarks through it directly,
// bypassing the txn engine since a safe point isn't versioned data.
func (s *Store) KV(id uint64) (kvengine.Adapter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.regions[id]
	if !ok {
		return nil, false
	}
	return h.kv, true
}

// RegionIDs returns every region id this node currently hosts, for
// callers that need to sweep or poll all of them (pkg/gc's safe-point
// sweeper).
func (s *Store) RegionIDs() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint64, 0, len(s.regions))
	for id := range s.regions {
		ids = append(ids, id)
	}
	return ids
}

// IsLeader reports whether this node currently leads region id's Raft
// group — pkg/gc only runs its sweep on regions this node leads, and
// pkg/wire refuses txn requests for the rest.
func (s *Store) IsLeader(id uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.regions[id]
	if !ok {
		return false
	}
	return h.raft.State() == raft.Leader
}

// Propose replicates cmd through region id's Raft group and returns the
// FSM's result once the entry is applied. Returns NotLeader if this
// node does not currently lead the region's group.
func (s *Store) Propose(cmd Command, timeout time.Duration) (FSMResult, error) {
	s.mu.RLock()
	h, ok := s.regions[cmd.regionID()]
	s.mu.RUnlock()
	if !ok {
		return FSMResult{}, dingoerr.New(dingoerr.RegionNotFound, "region %d not found", cmd.regionID())
	}
	if h.raft.State() != raft.Leader {
		return FSMResult{}, dingoerr.New(dingoerr.NotLeader, "region %d leader is elsewhere", cmd.regionID())
	}

	data, err := cmd.encode()
	if err != nil {
		return FSMResult{}, err
	}

	future := h.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		return FSMResult{}, fmt.Errorf("raft apply: %w", err)
	}
	result, _ := future.Response().(FSMResult)
	return result, nil
}

// RegionSnapshots implements metrics.StatsProvider.
func (s *Store) RegionSnapshots() []metrics.RegionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]metrics.RegionSnapshot, 0, len(s.regions))
	for id, h := range s.regions {
		out = append(out, metrics.RegionSnapshot{
			ID:           id,
			State:        h.region.State.String(),
			EpochVersion: h.region.Epoch.Version,
			IsLeader:     h.raft.State() == raft.Leader,
		})
	}
	return out
}

// Close shuts down every region's Raft instance and KV adapter.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id, h := range s.regions {
		if err := h.raft.Shutdown().Error(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shutdown raft for region %d: %w", id, err)
		}
		if err := h.kv.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close kv for region %d: %w", id, err)
		}
	}
	return firstErr
}
