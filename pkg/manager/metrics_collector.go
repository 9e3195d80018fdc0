package manager

import (
	"sync"
	"time"

	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/types"
)

// MetricsCollector publishes store and raft gauges and the matching
// component health on a fixed interval
type MetricsCollector struct {
	manager  *Manager
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(mgr *Manager) *MetricsCollector {
	return &MetricsCollector{
		manager:  mgr,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *MetricsCollector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		defer ticker.Stop()

		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *MetricsCollector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *MetricsCollector) collect() {
	c.collectHAConfigMetrics()
	c.collectRaftMetrics()
}

func (c *MetricsCollector) collectHAConfigMetrics() {
	configs, err := c.manager.ListHAConfigs()
	if err != nil {
		metrics.UpdateComponent(metrics.ComponentStore, false, err.Error())
		return
	}
	metrics.UpdateComponent(metrics.ComponentStore, true, "")

	counts := make(map[types.HAState]int, len(types.AllHAStates))
	for _, cfg := range configs {
		counts[cfg.State]++
	}

	// Every state is set so states that emptied drop to zero
	for _, state := range types.AllHAStates {
		metrics.HAConfigsTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

func (c *MetricsCollector) collectRaftMetrics() {
	if c.manager.IsLeader() {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}

	stats := c.manager.GetRaftStats()
	if stats == nil {
		metrics.UpdateComponent(metrics.ComponentRaft, false, "raft not started")
		return
	}

	if lastIndex, ok := stats["last_log_index"].(uint64); ok {
		metrics.RaftLogIndex.Set(float64(lastIndex))
	}
	if appliedIndex, ok := stats["applied_index"].(uint64); ok {
		metrics.RaftAppliedIndex.Set(float64(appliedIndex))
	}
	if peers, ok := stats["peers"].(uint64); ok {
		metrics.RaftPeers.Set(float64(peers))
	}

	if leader, _ := stats["leader"].(string); leader != "" {
		metrics.UpdateComponent(metrics.ComponentRaft, true, "leader "+leader)
	} else {
		metrics.UpdateComponent(metrics.ComponentRaft, false, "no leader")
	}
}
