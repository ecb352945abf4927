// session.go implements the Session integration.

package integrations

import "github.com/strongdm/ai-beacon/pkg/beacon"

// Session emits a session event whenever a new session starts. Each
// start is delivered; session events are exempt from deduplication.
type Session struct {
	binding
}

// NewSession creates the Session integration.
func NewSession() *Session {
	return &Session{}
}

func (s *Session) Kind() beacon.IntegrationKind { return beacon.IntegrationSession }

func (s *Session) Setup(c *beacon.Client) error {
	if err := c.ExemptFromDedup(beacon.CategorySession); err != nil {
		return err
	}
	if err := s.bind(c); err != nil {
		return err
	}
	return c.OnSessionStart(s.started)
}

func (s *Session) Teardown() { s.unbind() }

// started runs on the pipeline goroutine; Capture never blocks.
func (s *Session) started(sess beacon.Session) {
	c := s.bound()
	if c == nil {
		return
	}
	c.Capture(beacon.RawEvent{
		Category:  beacon.CategorySession,
		Name:      "session_start",
		Timestamp: sess.StartTime,
		Fields:    map[string]any{"session_started_id": sess.ID},
	})
}
