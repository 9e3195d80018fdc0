package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker probes that a host agent accepts TCP connections. A host is
// reported down only after Attempts consecutive dials fail.
type TCPChecker struct {
	// Address is the agent address (e.g., "10.0.0.5:16509")
	Address string

	// Timeout bounds each dial (default: 5 seconds)
	Timeout time.Duration

	// Attempts is the number of dials before giving up (default: 1)
	Attempts int

	// Backoff is the pause between attempts
	Backoff time.Duration
}

// NewTCPChecker creates a single-attempt TCP checker
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{
		Address:  address,
		Timeout:  5 * time.Second,
		Attempts: 1,
		Backoff:  200 * time.Millisecond,
	}
}

// Check dials the address until one attempt succeeds, the attempts run out
// or ctx is done
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()
	attempts := t.Attempts
	if attempts < 1 {
		attempts = 1
	}

	dialer := &net.Dialer{Timeout: t.Timeout}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := dialer.DialContext(ctx, "tcp", t.Address)
		if err == nil {
			conn.Close()
			return succeeded(start, fmt.Sprintf("agent at %s reachable (attempt %d)", t.Address, i))
		}
		lastErr = err

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return failed(start, fmt.Sprintf("connection failed: %v", ctx.Err()))
		case <-time.After(t.Backoff):
		}
	}
	return failed(start, fmt.Sprintf("connection failed after %d attempt(s): %v", attempts, lastErr))
}

// Type returns the probe type
func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}

// WithTimeout sets the per-dial timeout
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}

// WithAttempts sets how many dials must fail before the agent counts as down
func (t *TCPChecker) WithAttempts(attempts int, backoff time.Duration) *TCPChecker {
	t.Attempts = attempts
	t.Backoff = backoff
	return t
}
