package manager

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

var (
	// ErrInvalidToken is returned for unknown or revoked join tokens
	ErrInvalidToken = errors.New("invalid join token")

	// ErrTokenExpired is returned for join tokens past their expiry
	ErrTokenExpired = errors.New("join token expired")
)

// TokenManager manages the join tokens handed to new management nodes.
// Tokens live in the memory of the leader that issued them.
type TokenManager struct {
	tokens map[string]*JoinToken
	clock  clock.PassiveClock
	mu     sync.RWMutex
}

// JoinToken represents a token for joining the cluster
type JoinToken struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewTokenManager creates a new token manager
func NewTokenManager(clk clock.PassiveClock) *TokenManager {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &TokenManager{
		tokens: make(map[string]*JoinToken),
		clock:  clk,
	}
}

// GenerateToken generates a new join token valid for ttl
func (tm *TokenManager) GenerateToken(ttl time.Duration) (*JoinToken, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return nil, fmt.Errorf("failed to generate random token: %w", err)
	}

	now := tm.clock.Now()
	jt := &JoinToken{
		Token:     hex.EncodeToString(bytes),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	tm.mu.Lock()
	tm.tokens[jt.Token] = jt
	tm.mu.Unlock()

	return jt, nil
}

// ValidateToken checks a join token and drops it once used
func (tm *TokenManager) ValidateToken(token string) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	jt, exists := tm.tokens[token]
	if !exists {
		return ErrInvalidToken
	}
	delete(tm.tokens, token)

	if tm.clock.Now().After(jt.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}

// CleanupExpiredTokens removes expired tokens
func (tm *TokenManager) CleanupExpiredTokens() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := tm.clock.Now()
	for token, jt := range tm.tokens {
		if now.After(jt.ExpiresAt) {
			delete(tm.tokens, token)
		}
	}
}

// Len returns the number of outstanding tokens
func (tm *TokenManager) Len() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.tokens)
}
