// scope.go holds the tag and user context set by the host application.

package beacon

import (
	"context"
	"maps"
	"sync"
)

// User identifies the person using the host application.
type User struct {
	ID       string
	Email    string
	Username string
}

// Scope is the global context merged into every admitted event.
// Safe for concurrent use.
type Scope struct {
	mu   sync.RWMutex
	tags map[string]string
	user User
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{tags: make(map[string]string)}
}

// SetTag sets or replaces a tag. An empty value removes it.
func (s *Scope) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.tags, key)
		return
	}
	s.tags[key] = value
}

// SetUser replaces the user context.
func (s *Scope) SetUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// snapshot returns copies of the tags and user.
func (s *Scope) snapshot() (map[string]string, User) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.tags), s.user
}

type tagsKey struct{}

// WithTag returns a context carrying an extra tag. Tags attached this way
// override scope tags of the same name for events captured with
// CaptureContext.
func WithTag(ctx context.Context, key, value string) context.Context {
	merged := map[string]string{}
	if existing, ok := ctx.Value(tagsKey{}).(map[string]string); ok {
		maps.Copy(merged, existing)
	}
	merged[key] = value
	return context.WithValue(ctx, tagsKey{}, merged)
}

// TagsFromContext returns the tags attached with WithTag.
func TagsFromContext(ctx context.Context) (map[string]string, bool) {
	tags, ok := ctx.Value(tagsKey{}).(map[string]string)
	if !ok || len(tags) == 0 {
		return nil, false
	}
	return maps.Clone(tags), true
}
