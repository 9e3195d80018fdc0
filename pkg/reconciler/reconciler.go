package reconciler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// DefaultInterval is the time between two sweeps
const DefaultInterval = 10 * time.Second

// Sweeper evaluates every HA config once
type Sweeper interface {
	Sweep() error
}

// Config configures a Reconciler
type Config struct {
	Interval time.Duration

	// Clock defaults to the real clock
	Clock clock.WithTicker
}

// Reconciler runs the HA sweep on a fixed interval. A sweep always runs to
// completion before the next one is scheduled.
type Reconciler struct {
	sweeper  Sweeper
	interval time.Duration
	clock    clock.WithTicker
	logger   zerolog.Logger

	started  atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewReconciler creates a new reconciler
func NewReconciler(sweeper Sweeper, cfg Config) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	return &Reconciler{
		sweeper:  sweeper,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		logger:   log.WithComponent("reconciler"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop
func (r *Reconciler) Start() {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	r.logger.Info().Dur("interval", r.interval).Msg("Starting HA sweep loop")
	go r.run()
}

// Stop ends the loop and waits for a running sweep to finish
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	if r.started.Load() {
		<-r.doneCh
	}
}

func (r *Reconciler) run() {
	defer close(r.doneCh)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			r.reconcile()
		case <-r.stopCh:
			return
		}
	}
}

// reconcile performs one sweep and reports its outcome as the HA component health
func (r *Reconciler) reconcile() {
	if err := r.sweeper.Sweep(); err != nil {
		r.logger.Error().Err(err).Msg("HA sweep failed")
		metrics.UpdateComponent(metrics.ComponentHA, false, err.Error())
		return
	}
	metrics.UpdateComponent(metrics.ComponentHA, true, "")
}
