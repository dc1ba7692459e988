package httpapi

import (
	"net/http"
	"sync"
)

// Credentials is the bearer token presented to the dataset API. It starts
// empty, is set by Init after the caller authenticated and is wiped by
// Teardown. Requests made without a token carry no Authorization header.
type Credentials struct {
	mu    sync.RWMutex
	token string
}

// NewCredentials returns credentials holding token, which may be empty.
func NewCredentials(token string) *Credentials {
	return &Credentials{token: token}
}

// Init replaces the token.
func (c *Credentials) Init(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Teardown forgets the token.
func (c *Credentials) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// Valid reports whether a token is present.
func (c *Credentials) Valid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

func (c *Credentials) apply(req *http.Request) {
	if c == nil {
		return
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
