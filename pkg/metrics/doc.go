// Package metrics defines and registers the Prometheus metrics exposed by
// a region store process, plus small helpers (Timer, Collector) for filling
// them in.
//
// Histograms and counters in this package (PrewriteDuration,
// WriteConflictTotal, IndexSearchDuration, ...) are updated directly by the
// packages that own the corresponding operation. Gauges that describe
// cluster-wide state (RegionsTotal, RaftLeader, RegionEpochVersion) are
// instead polled periodically by a Collector against a StatsProvider, so
// this package never has to import pkg/region.
//
// Handler returns the promhttp handler for /metrics; HealthHandler,
// ReadyHandler and LivenessHandler serve /health, /ready and /live.
package metrics
