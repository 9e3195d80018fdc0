package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestTokenManager(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	tm := NewTokenManager(clk)

	jt, err := tm.GenerateToken(time.Hour)
	require.NoError(t, err)
	assert.Len(t, jt.Token, 64)
	assert.Equal(t, clk.Now().Add(time.Hour), jt.ExpiresAt)

	require.NoError(t, tm.ValidateToken(jt.Token))

	// Tokens are single use
	assert.ErrorIs(t, tm.ValidateToken(jt.Token), ErrInvalidToken)
	assert.ErrorIs(t, tm.ValidateToken("bogus"), ErrInvalidToken)
}

func TestTokenManager_Expiry(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	tm := NewTokenManager(clk)

	expired, err := tm.GenerateToken(time.Minute)
	require.NoError(t, err)
	_, err = tm.GenerateToken(time.Hour)
	require.NoError(t, err)

	clk.Step(2 * time.Minute)
	assert.ErrorIs(t, tm.ValidateToken(expired.Token), ErrTokenExpired)

	_, err = tm.GenerateToken(time.Second)
	require.NoError(t, err)
	clk.Step(time.Minute)
	tm.CleanupExpiredTokens()
	assert.Equal(t, 1, tm.Len())
}
