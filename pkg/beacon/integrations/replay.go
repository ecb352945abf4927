// replay.go implements the SessionReplay integration.

package integrations

import (
	"github.com/strongdm/ai-beacon/pkg/beacon"
)

// SessionReplay turns on the replay recorder and feeds it frames.
type SessionReplay struct {
	binding
	cfg *beacon.ReplayConfig
}

// NewSessionReplay creates the SessionReplay integration. A nil cfg
// keeps the replay section of the client configuration.
func NewSessionReplay(cfg *beacon.ReplayConfig) *SessionReplay {
	return &SessionReplay{cfg: cfg}
}

func (r *SessionReplay) Kind() beacon.IntegrationKind { return beacon.IntegrationSessionReplay }

func (r *SessionReplay) Setup(c *beacon.Client) error {
	if err := c.EnableReplay(r.cfg); err != nil {
		return err
	}
	return r.bind(c)
}

func (r *SessionReplay) Teardown() { r.unbind() }

// Record appends a frame stamped with the client clock.
func (r *SessionReplay) Record(kind string, data map[string]any) {
	if c := r.bound(); c != nil {
		c.RecordFrame(beacon.Frame{Timestamp: c.Clock().Now(), Kind: kind, Data: data})
	}
}

// Trigger starts a manual capture, or joins the one in progress.
func (r *SessionReplay) Trigger() (string, bool) {
	c := r.bound()
	if c == nil {
		return "", false
	}
	return c.TriggerReplay()
}
