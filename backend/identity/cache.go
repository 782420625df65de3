package identity

import (
	"sync"
	"time"
)

// TokenCache holds one provider access token and the moment it stops being
// usable. Two callers may both miss and refresh at once; the last Set wins.
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// Get returns the cached token if it is still valid at now.
func (c *TokenCache) Get(now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || !now.Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// Set stores a token. A zero expiresAt is never valid.
func (c *TokenCache) Set(token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiresAt = expiresAt
}

// Clear drops the cached token, e.g. after the provider rejected it.
func (c *TokenCache) Clear() {
	c.Set("", time.Time{})
}
