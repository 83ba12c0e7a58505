package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Region metrics
	RegionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dingo_regions_total",
			Help: "Total number of regions served by this store, by state",
		},
		[]string{"state"},
	)

	RegionEpochVersion = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dingo_region_epoch_version",
			Help: "Current epoch.version for a region",
		},
		[]string{"region_id"},
	)

	EpochMismatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dingo_epoch_mismatch_total",
			Help: "Total number of requests rejected with EpochNotMatch",
		},
		[]string{"region_id"},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dingo_raft_is_leader",
			Help: "Whether this node is the Raft leader for a region (1 = leader, 0 = follower)",
		},
		[]string{"region_id"},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dingo_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry to the region FSM",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Txn engine metrics
	PrewriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dingo_txn_prewrite_duration_seconds",
			Help:    "Time taken to process a Prewrite request",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dingo_txn_commit_duration_seconds",
			Help:    "Time taken to process a Commit request",
			Buckets: prometheus.DefBuckets,
		},
	)

	PessimisticLockDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dingo_txn_pessimistic_lock_duration_seconds",
			Help:    "Time taken to process a PessimisticLock request",
			Buckets: prometheus.DefBuckets,
		},
	)

	WriteConflictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dingo_txn_write_conflict_total",
			Help: "Total number of WriteConflict results returned to clients",
		},
	)

	KeyIsLockedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dingo_txn_key_is_locked_total",
			Help: "Total number of KeyIsLocked results returned to clients",
		},
	)

	ResolveLockTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dingo_txn_resolve_lock_total",
			Help: "Total number of keys resolved via ResolveLock",
		},
	)

	// Latch metrics
	LatchWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dingo_latch_wait_duration_seconds",
			Help:    "Time a writer waited to acquire all of its latches",
			Buckets: prometheus.DefBuckets,
		},
	)

	LatchesHeld = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dingo_latches_held",
			Help: "Number of latches currently held across all regions",
		},
	)

	// Memory lock table metrics
	MemoryLocksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dingo_memory_locks_total",
			Help: "Number of in-flight locks tracked in the memory lock table",
		},
	)

	// Index metrics
	IndexSearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dingo_index_search_duration_seconds",
			Help:    "Time taken to execute a vector/document index search",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"index_type"},
	)

	IndexBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dingo_index_build_duration_seconds",
			Help:    "Time taken to build or rebuild an index",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"index_type"},
	)

	IndexReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dingo_index_ready",
			Help: "Whether an index is ready to serve reads (1 = ready)",
		},
		[]string{"region_id", "index_type"},
	)

	IndexEntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dingo_index_entries_total",
			Help: "Number of entries currently held by an index",
		},
		[]string{"region_id", "index_type"},
	)

	// Scheduler metrics
	SchedulerQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dingo_scheduler_queue_depth",
			Help: "Current queue depth per worker pool/worker",
		},
		[]string{"pool", "worker"},
	)

	SchedulerRequestFullTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dingo_scheduler_request_full_total",
			Help: "Total number of enqueue attempts rejected with RequestFull",
		},
		[]string{"pool"},
	)

	SchedulerTaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dingo_scheduler_task_duration_seconds",
			Help:    "Time a dispatched task spent executing",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pool"},
	)

	// GC metrics
	GCRecordsScanned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dingo_gc_records_scanned_total",
			Help: "Total number of Write CF records scanned by GC",
		},
	)

	GCRecordsRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dingo_gc_records_removed_total",
			Help: "Total number of obsolete records physically removed by GC",
		},
	)

	GCSafePoint = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dingo_gc_safe_point",
			Help: "Current GC safe-point timestamp for a region",
		},
		[]string{"region_id"},
	)

	GCCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dingo_gc_cycle_duration_seconds",
			Help:    "Time taken for one GC cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Stream metrics
	StreamsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dingo_streams_open",
			Help: "Number of server-side scan streams currently open",
		},
	)

	StreamExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dingo_stream_expired_total",
			Help: "Total number of stream resumptions that found an expired stream",
		},
	)

	// Backup metrics
	BackupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dingo_backup_duration_seconds",
			Help:    "Time taken to produce a backup segment for a region",
			Buckets: []float64{0.1, 1, 5, 30, 60, 300, 900},
		},
	)

	RestoreDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dingo_restore_duration_seconds",
			Help:    "Time taken to restore a region from a backup segment",
			Buckets: []float64{0.1, 1, 5, 30, 60, 300, 900},
		},
	)
)

func init() {
	prometheus.MustRegister(
		RegionsTotal,
		RegionEpochVersion,
		EpochMismatchTotal,
		RaftLeader,
		RaftApplyDuration,
		PrewriteDuration,
		CommitDuration,
		PessimisticLockDuration,
		WriteConflictTotal,
		KeyIsLockedTotal,
		ResolveLockTotal,
		LatchWaitDuration,
		LatchesHeld,
		MemoryLocksTotal,
		IndexSearchDuration,
		IndexBuildDuration,
		IndexReady,
		IndexEntriesTotal,
		SchedulerQueueDepth,
		SchedulerRequestFullTotal,
		SchedulerTaskDuration,
		GCRecordsScanned,
		GCRecordsRemoved,
		GCSafePoint,
		GCCycleDuration,
		StreamsOpen,
		StreamExpiredTotal,
		BackupDuration,
		RestoreDuration,
	)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
