package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// TokenPrefix identifies chartpay bearer tokens
	TokenPrefix = "cp_"
	// tokenBytes is the amount of randomness in a token
	tokenBytes = 32
)

// Principal is the authenticated caller behind a token.
type Principal struct {
	UserID string
	Email  string
	Admin  bool
}

// TokenStore issues bearer tokens and resolves them back to principals.
// Tokens are kept by hash and expire after a fixed TTL.
type TokenStore struct {
	tokens *lru.LRU[string, Principal]
}

// NewTokenStore creates a store holding at most size live tokens.
func NewTokenStore(size int, ttl time.Duration) *TokenStore {
	if size <= 0 {
		size = 10000
	}
	return &TokenStore{tokens: lru.NewLRU[string, Principal](size, nil, ttl)}
}

// Issue creates a token for p.
func (s *TokenStore) Issue(p Principal) (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := TokenPrefix + base64.RawURLEncoding.EncodeToString(raw)
	s.tokens.Add(hashToken(token), p)
	return token, nil
}

// Lookup returns the principal for token, if it is live.
func (s *TokenStore) Lookup(token string) (Principal, bool) {
	return s.tokens.Get(hashToken(token))
}

// Revoke forgets token.
func (s *TokenStore) Revoke(token string) {
	s.tokens.Remove(hashToken(token))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
