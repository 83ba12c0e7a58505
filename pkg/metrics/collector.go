package metrics

import (
	"strconv"
	"time"
)

// RegionSnapshot is the minimal per-region state the collector needs.
// pkg/region.Store implements StatsProvider by returning these.
type RegionSnapshot struct {
	ID           uint64
	State        string
	EpochVersion uint64
	IsLeader     bool
}

// StatsProvider is implemented by the top-level store so the metrics
// package can poll cluster-wide gauges without importing pkg/region
// (which itself depends on pkg/metrics for histograms).
type StatsProvider interface {
	RegionSnapshots() []RegionSnapshot
}

// Collector periodically polls a StatsProvider and updates the
// corresponding gauges.
type Collector struct {
	provider StatsProvider
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(provider StatsProvider) *Collector {
	return &Collector{
		provider: provider,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	regions := c.provider.RegionSnapshots()

	stateCounts := make(map[string]int)
	for _, r := range regions {
		stateCounts[r.State]++

		idStr := strconv.FormatUint(r.ID, 10)
		RegionEpochVersion.WithLabelValues(idStr).Set(float64(r.EpochVersion))

		leader := 0.0
		if r.IsLeader {
			leader = 1.0
		}
		RaftLeader.WithLabelValues(idStr).Set(leader)
	}

	for state, count := range stateCounts {
		RegionsTotal.WithLabelValues(state).Set(float64(count))
	}
}
