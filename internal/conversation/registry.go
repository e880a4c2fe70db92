package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/functiomed/voice-agent/pkg/logging"
)

// Registry owns the set of live sessions, keyed by the room/connection
// identifier. It is the only place sessions are created or removed; the
// mutex guards the map, never a whole conversation turn.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	defaultLanguage string
	idleTimeout     time.Duration
	now             func() time.Time
	logger          *logging.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIdleTimeout overrides how long a session may sit idle before sweep
// evicts it.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.idleTimeout = d
		}
	}
}

// WithClock overrides the registry's time source, used by tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

const defaultIdleTimeout = 10 * time.Minute

// NewRegistry creates an empty session registry.
func NewRegistry(defaultLanguage string, logger *logging.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	r := &Registry{
		sessions:        make(map[string]*Session),
		defaultLanguage: defaultLanguage,
		idleTimeout:     defaultIdleTimeout,
		now:             time.Now,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the live session for the id, creating a fresh one at
// the initial state when none exists. An expired or unknown id is never an
// error; the caller simply starts over at idle.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return sess
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok = r.sessions[id]; ok {
		return sess
	}
	sess = newSession(id, r.defaultLanguage, r.now())
	r.sessions[id] = sess
	r.logger.Info("session created", "session_id", id)
	return sess
}

// Get returns the session for the id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Remove retires a session. Safe to call for unknown ids.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		r.logger.Info("session removed", "session_id", id)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle longer than the timeout. A session whose turn
// lock is held is mid-turn and is skipped; it will be revisited on the next
// tick. Returns the number of evicted sessions.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, sess := range r.sessions {
		if !sess.turnMu.TryLock() {
			continue
		}
		// LastActivity is written under the turn lock, so the staleness
		// check must read it there too.
		idle := now.Sub(sess.LastActivity)
		sess.turnMu.Unlock()
		if idle < r.idleTimeout {
			continue
		}
		delete(r.sessions, id)
		evicted++
		r.logger.Info("session expired", "session_id", id, "idle", idle.String())
	}
	return evicted
}

// RunSweeper periodically sweeps idle sessions until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}
