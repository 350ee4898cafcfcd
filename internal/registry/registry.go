// ABOUTME: Process-wide registry of active runs keyed by session ID
// ABOUTME: Maps session IDs to cancellation tokens for the stop endpoint

package registry

import (
	"errors"
	"sync"

	"github.com/2389/weaver-gateway/internal/engine"
)

// ErrDuplicateSession is returned when a session ID is already streaming.
var ErrDuplicateSession = errors.New("session already has an active run")

// ErrSessionNotRunning is returned when no active run exists for a session.
var ErrSessionNotRunning = errors.New("no active run for session")

// Registry tracks the cancellation token of every in-flight run. One process
// owns all active runs; the registry is the single lookup point for the
// cancellation path.
type Registry struct {
	mu     sync.Mutex
	active map[string]*engine.CancellationToken
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		active: make(map[string]*engine.CancellationToken),
	}
}

// Register claims a session ID for a run. Returns ErrDuplicateSession if the
// session already has an active run; the first registration wins.
func (r *Registry) Register(sessionID string, token *engine.CancellationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[sessionID]; exists {
		return ErrDuplicateSession
	}
	r.active[sessionID] = token
	return nil
}

// Lookup returns the cancellation token for an active run.
func (r *Registry) Lookup(sessionID string) (*engine.CancellationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, exists := r.active[sessionID]
	if !exists {
		return nil, ErrSessionNotRunning
	}
	return token, nil
}

// Unregister releases a session ID. Safe to call for sessions that were
// never registered or were already released.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.active, sessionID)
}

// Len returns the number of active runs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.active)
}

// CancelAll cancels every active run and clears the registry. Used during
// shutdown so no run outlives the process's intent to stop.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, token := range r.active {
		token.Cancel()
		delete(r.active, id)
	}
}
