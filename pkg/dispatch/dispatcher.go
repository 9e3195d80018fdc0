package dispatch

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Kind names one of the HA worker pools
type Kind string

const (
	KindHealthCheck   Kind = "health-check"
	KindActivityCheck Kind = "activity-check"
	KindRecovery      Kind = "recovery"
	KindFence         Kind = "fence"
)

// Kinds lists every pool kind
var Kinds = []Kind{KindHealthCheck, KindActivityCheck, KindRecovery, KindFence}

// PoolSize configures one pool
type PoolSize struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// Config sizes the four HA pools
type Config struct {
	HealthCheck   PoolSize `yaml:"health_check"`
	ActivityCheck PoolSize `yaml:"activity_check"`
	Recovery      PoolSize `yaml:"recovery"`
	Fence         PoolSize `yaml:"fence"`
}

// DefaultConfig returns the default pool sizes
func DefaultConfig() Config {
	return Config{
		HealthCheck:   PoolSize{Workers: 10, QueueSize: 100},
		ActivityCheck: PoolSize{Workers: 5, QueueSize: 50},
		Recovery:      PoolSize{Workers: 5, QueueSize: 50},
		Fence:         PoolSize{Workers: 5, QueueSize: 50},
	}
}

// Size returns the pool size configured for kind
func (c Config) Size(kind Kind) PoolSize {
	switch kind {
	case KindHealthCheck:
		return c.HealthCheck
	case KindActivityCheck:
		return c.ActivityCheck
	case KindRecovery:
		return c.Recovery
	default:
		return c.Fence
	}
}

// Dispatcher routes HA tasks to their pool
type Dispatcher struct {
	pools map[Kind]*Pool
}

// NewDispatcher starts one pool per kind
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{pools: make(map[Kind]*Pool, len(Kinds))}
	for _, kind := range Kinds {
		d.pools[kind] = NewPool(string(kind), cfg.Size(kind))
	}
	return d
}

// Submit hands a task to the pool of the given kind
func (d *Dispatcher) Submit(kind Kind, task Task) (*Future, error) {
	pool, ok := d.pools[kind]
	if !ok {
		if task.Future == nil {
			task.Future = NewFuture()
		}
		err := fmt.Errorf("unknown pool %q", kind)
		task.Future.complete(err)
		return task.Future, err
	}
	return pool.Submit(task)
}

// Stats returns the statistics of every pool in Kinds order
func (d *Dispatcher) Stats() []Stats {
	stats := make([]Stats, 0, len(Kinds))
	for _, kind := range Kinds {
		stats = append(stats, d.pools[kind].Stats())
	}
	return stats
}

// Stop stops all pools in parallel
func (d *Dispatcher) Stop(timeout time.Duration) error {
	var g errgroup.Group
	for _, kind := range Kinds {
		pool := d.pools[kind]
		g.Go(func() error {
			return pool.Stop(timeout)
		})
	}
	return g.Wait()
}
