package metrics

import "time"

// Source is the narrow view a Collector needs of an open database. It
// is satisfied structurally by *pkg/strata.DB — metrics deliberately
// does not import that package (or pkg/txn, pkg/mvcc, pkg/run), since
// pkg/txn already imports pkg/metrics for its commit counters and an
// import back the other way would cycle.
type Source interface {
	// RunCounts returns the number of runs in each lifecycle status.
	RunCounts() (map[string]int, error)
	// ChainCount returns the number of distinct typed keys with a
	// version chain in the MVCC store.
	ChainCount() int
	// ShardCount returns the MVCC store's shard count.
	ShardCount() int
	// WALBytesWritten returns the lifetime count of bytes appended to
	// the WAL (0 for an ephemeral database).
	WALBytesWritten() int64
}

// Collector periodically samples a database's Source and publishes the
// result to the package's Prometheus gauges.
type Collector struct {
	source Source
	stopCh chan struct{}

	lastWALBytes int64
}

// NewCollector creates a new metrics collector over source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15-second interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
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
	c.collectRunMetrics()
	c.collectStoreMetrics()
}

func (c *Collector) collectRunMetrics() {
	counts, err := c.source.RunCounts()
	if err != nil {
		return
	}
	for status, n := range counts {
		RunsTotal.WithLabelValues(status).Set(float64(n))
	}
}

func (c *Collector) collectStoreMetrics() {
	MVCCShardCount.Set(float64(c.source.ShardCount()))
	MVCCChainsTotal.Set(float64(c.source.ChainCount()))

	total := c.source.WALBytesWritten()
	if delta := total - c.lastWALBytes; delta > 0 {
		WALBytesWritten.Add(float64(delta))
	}
	c.lastWALBytes = total
}
