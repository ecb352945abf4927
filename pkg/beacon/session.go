// session.go tracks the activity session events are attributed to.

package beacon

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionConfig controls session rollover.
type SessionConfig struct {
	// IdleTimeout starts a new session when no event was admitted for
	// this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// Session is a snapshot of the current session.
type Session struct {
	ID               string
	StartTime        time.Time
	LastActivityTime time.Time
	EventCount       int
	ErrorCount       int
}

// SessionTracker owns the mutable session state. Only the enricher
// advances it; other callers read snapshots.
type SessionTracker struct {
	mu          sync.Mutex
	current     *Session
	idleTimeout time.Duration
	onStart     []func(Session)
}

// NewSessionTracker creates a tracker. A non-positive timeout falls back
// to 30 minutes.
func NewSessionTracker(cfg SessionConfig) *SessionTracker {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	return &SessionTracker{idleTimeout: cfg.IdleTimeout}
}

// OnStart registers fn to run after a new session begins. fn runs
// outside the tracker's lock.
func (t *SessionTracker) OnStart(fn func(Session)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStart = append(t.onStart, fn)
}

// record advances the session for one admitted event and returns the
// updated snapshot.
func (t *SessionTracker) record(now time.Time, errorLike bool) Session {
	t.mu.Lock()
	started := false
	if t.current == nil || now.Sub(t.current.LastActivityTime) > t.idleTimeout {
		t.current = &Session{ID: uuid.NewString(), StartTime: now}
		started = true
	}
	t.current.LastActivityTime = now
	t.current.EventCount++
	if errorLike {
		t.current.ErrorCount++
	}
	snapshot := *t.current
	hooks := t.onStart
	t.mu.Unlock()

	if started {
		for _, fn := range hooks {
			fn(snapshot)
		}
	}
	return snapshot
}

// Current returns the current session, or false when none has started.
func (t *SessionTracker) Current() (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return Session{}, false
	}
	return *t.current, true
}
