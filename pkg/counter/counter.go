package counter

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Future is the handle of an asynchronous task tracked by a counter
type Future interface {
	Done() <-chan struct{}
}

// RecoveryDecision is the outcome of BeginRecovery
type RecoveryDecision int

const (
	// RecoveryStarted means the caller owns the new recovery attempt
	RecoveryStarted RecoveryDecision = iota
	// RecoveryInFlight means an earlier attempt is still running
	RecoveryInFlight
	// RecoveryThresholdExceeded means the attempt ceiling has been reached
	RecoveryThresholdExceeded
)

func (d RecoveryDecision) String() string {
	switch d {
	case RecoveryStarted:
		return "started"
	case RecoveryInFlight:
		return "in-flight"
	case RecoveryThresholdExceeded:
		return "threshold-exceeded"
	default:
		return "unknown"
	}
}

// Counter is the in-memory bookkeeping of one resource under HA management.
// Every method takes the counter's mutex; none of them blocks otherwise.
type Counter struct {
	mu    sync.Mutex
	clock clock.PassiveClock

	activityCheckCount   int
	activityFailureCount int
	recoveryAttemptCount int

	firstFailure      time.Time
	lastActivityCheck time.Time
	degradedSince     time.Time
	recoveringSince   time.Time

	activityStarted  time.Time
	inFlightActivity Future
	inFlightRecovery Future
	inFlightFence    Future
}

// New creates an empty counter
func New(clk clock.PassiveClock) *Counter {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Counter{clock: clk}
}

func running(f Future) bool {
	if f == nil {
		return false
	}
	select {
	case <-f.Done():
		return false
	default:
		return true
	}
}

// CanPerformActivityCheck reports whether the activity check interval has
// elapsed and, if so, stamps the check time. The first call always succeeds.
func (c *Counter) CanPerformActivityCheck(interval time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if !c.lastActivityCheck.IsZero() && now.Sub(c.lastActivityCheck) <= interval {
		return false
	}
	c.lastActivityCheck = now
	return true
}

// IncrActivityCounts records one activity sample
func (c *Counter) IncrActivityCounts(failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activityCheckCount++
	if failed {
		c.activityFailureCount++
	}
}

// ActivityCheckCount returns the number of samples since the last reset
func (c *Counter) ActivityCheckCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activityCheckCount
}

// ActivityFailureRatio returns failed samples over all samples, 0 without samples
func (c *Counter) ActivityFailureRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activityCheckCount == 0 {
		return 0
	}
	return float64(c.activityFailureCount) / float64(c.activityCheckCount)
}

// ResetActivityCounts drops the collected samples
func (c *Counter) ResetActivityCounts() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activityCheckCount = 0
	c.activityFailureCount = 0
}

// MarkDegraded stamps the time the resource entered Degraded; later calls keep the first stamp
func (c *Counter) MarkDegraded() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.degradedSince.IsZero() {
		c.degradedSince = c.clock.Now()
	}
}

// ClearDegraded forgets the Degraded stamp
func (c *Counter) ClearDegraded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.degradedSince = time.Time{}
}

// CanRecheckActivity reports whether the resource has been Degraded longer
// than maxWait. The stamp is restarted so the next recheck waits again.
func (c *Counter) CanRecheckActivity(maxWait time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.degradedSince.IsZero() {
		c.degradedSince = now
		return false
	}
	if now.Sub(c.degradedSince) <= maxWait {
		return false
	}
	c.degradedSince = now
	return true
}

// MarkFirstFailure stamps the first failed health check of a failure streak
func (c *Counter) MarkFirstFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.firstFailure.IsZero() {
		c.firstFailure = c.clock.Now()
	}
}

// ClearFirstFailure ends the failure streak
func (c *Counter) ClearFirstFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.firstFailure = time.Time{}
}

// FirstFailure returns the start of the current failure streak, zero if healthy
func (c *Counter) FirstFailure() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.firstFailure
}

// SuspectSince returns the time activity should be checked from: the start
// of the failure streak, or now when no failure was recorded.
func (c *Counter) SuspectSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.firstFailure.IsZero() {
		return c.clock.Now()
	}
	return c.firstFailure
}

// BeginActivityCheck claims the activity check of a resource in Checking.
// It refuses while an earlier check is running, unless that check started
// more than staleAfter ago and is presumed lost.
func (c *Counter) BeginActivityCheck(f Future, staleAfter time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if running(c.inFlightActivity) && now.Sub(c.activityStarted) <= staleAfter {
		return false
	}
	c.inFlightActivity = f
	c.activityStarted = now
	return true
}

// ActivityCheckInProgress reports whether an activity check task is still running
func (c *Counter) ActivityCheckInProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return running(c.inFlightActivity)
}

// BeginRecovery claims the next recovery attempt. A running attempt wins
// over the ceiling; on RecoveryStarted f becomes the in-flight recovery and
// the attempt is counted.
func (c *Counter) BeginRecovery(f Future, maxAttempts int) RecoveryDecision {
	c.mu.Lock()
	defer c.mu.Unlock()

	if running(c.inFlightRecovery) {
		return RecoveryInFlight
	}
	if c.recoveryAttemptCount >= maxAttempts {
		return RecoveryThresholdExceeded
	}
	c.inFlightRecovery = f
	c.recoveryAttemptCount++
	return RecoveryStarted
}

// RecoveryInProgress reports whether a recovery task is still running
func (c *Counter) RecoveryInProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return running(c.inFlightRecovery)
}

// RecoveryAttempts returns the number of recovery attempts made
func (c *Counter) RecoveryAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recoveryAttemptCount
}

// BeginFence claims the fence operation; false when one is already running
func (c *Counter) BeginFence(f Future) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if running(c.inFlightFence) {
		return false
	}
	c.inFlightFence = f
	return true
}

// CanAttemptFencing reports whether no fence task is running
func (c *Counter) CanAttemptFencing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !running(c.inFlightFence)
}

// MarkRecoveryStarted stamps the start of the post-recovery wait. Repeated
// calls keep the first stamp.
func (c *Counter) MarkRecoveryStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recoveringSince.IsZero() {
		c.recoveringSince = c.clock.Now()
	}
}

// CanExitRecovery reports whether the post-recovery wait has elapsed
func (c *Counter) CanExitRecovery(wait time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recoveringSince.IsZero() {
		return false
	}
	return c.clock.Now().Sub(c.recoveringSince) > wait
}

// MarkRecoveryCompleted closes a recovery cycle and resets its attempts
func (c *Counter) MarkRecoveryCompleted() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recoveringSince = time.Time{}
	c.inFlightRecovery = nil
	c.recoveryAttemptCount = 0
}

// Snapshot is a point-in-time copy of a counter for display
type Snapshot struct {
	ActivityCheckCount   int       `json:"activityCheckCount"`
	ActivityFailureCount int       `json:"activityFailureCount"`
	RecoveryAttemptCount int       `json:"recoveryAttemptCount"`
	FirstFailure         time.Time `json:"firstFailure,omitempty"`
	LastActivityCheck    time.Time `json:"lastActivityCheck,omitempty"`
	DegradedSince        time.Time `json:"degradedSince,omitempty"`
	RecoveringSince      time.Time `json:"recoveringSince,omitempty"`
	ActivityInFlight     bool      `json:"activityInFlight"`
	RecoveryInFlight     bool      `json:"recoveryInFlight"`
	FenceInFlight        bool      `json:"fenceInFlight"`
}

// Snapshot copies the counter fields
func (c *Counter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		ActivityCheckCount:   c.activityCheckCount,
		ActivityFailureCount: c.activityFailureCount,
		RecoveryAttemptCount: c.recoveryAttemptCount,
		FirstFailure:         c.firstFailure,
		LastActivityCheck:    c.lastActivityCheck,
		DegradedSince:        c.degradedSince,
		RecoveringSince:      c.recoveringSince,
		ActivityInFlight:     running(c.inFlightActivity),
		RecoveryInFlight:     running(c.inFlightRecovery),
		FenceInFlight:        running(c.inFlightFence),
	}
}
