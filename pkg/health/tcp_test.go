package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPChecker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	result := NewTCPChecker(addr).Check(context.Background())
	assert.True(t, result.Healthy, result.Message)

	require.NoError(t, ln.Close())
	result = NewTCPChecker(addr).WithTimeout(200 * time.Millisecond).Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "connection failed after 1 attempt(s)")
	assert.Equal(t, CheckTypeTCP, NewTCPChecker(addr).Type())
}

func TestTCPChecker_Attempts(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	result := NewTCPChecker(addr).
		WithTimeout(100*time.Millisecond).
		WithAttempts(3, 10*time.Millisecond).
		Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "after 3 attempt(s)")
}

func TestTCPChecker_CancelledBetweenAttempts(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	result := NewTCPChecker(addr).WithAttempts(10, time.Second).Check(ctx)
	assert.False(t, result.Healthy)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}
