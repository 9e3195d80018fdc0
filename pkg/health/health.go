package health

import (
	"context"
	"errors"
	"time"
)

// CheckType represents the type of probe
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
	CheckTypeExec CheckType = "exec"
)

// Result represents the outcome of a probe
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Err converts an unhealthy result into an error
func (r Result) Err() error {
	if r.Healthy {
		return nil
	}
	return errors.New(r.Message)
}

// Checker is the interface that all probes implement
type Checker interface {
	// Check performs the probe and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of probe
	Type() CheckType
}

// Run performs the check and reports a failure as an error. A probe cut off
// by ctx reports the context error so callers can tell timeouts apart.
func Run(ctx context.Context, checker Checker) error {
	result := checker.Check(ctx)
	if result.Healthy {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return result.Err()
}

func failed(start time.Time, message string) Result {
	return Result{
		Healthy:   false,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

func succeeded(start time.Time, message string) Result {
	return Result{
		Healthy:   true,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}
