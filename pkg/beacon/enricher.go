// enricher.go attaches session, scope and breadcrumb context to admitted
// events and builds their category-namespaced payload.

package beacon

import (
	"maps"
	"strings"

	"github.com/strongdm/ai-beacon/pkg/beacon/clock"
)

// Enricher turns an admitted raw observation into its wire payload. It is
// the only writer of session state.
type Enricher struct {
	clock     clock.Clock
	sessions  *SessionTracker
	crumbs    *BreadcrumbBuffer
	maxCrumbs int
	scope     *Scope
	scrubber  *Scrubber
}

// NewEnricher creates an Enricher. A nil scrubber disables redaction.
func NewEnricher(clk clock.Clock, sessions *SessionTracker, crumbs *BreadcrumbBuffer, maxCrumbs int, scope *Scope, scrubber *Scrubber) *Enricher {
	return &Enricher{
		clock:     clk,
		sessions:  sessions,
		crumbs:    crumbs,
		maxCrumbs: maxCrumbs,
		scope:     scope,
		scrubber:  scrubber,
	}
}

// Enrich advances the session exactly once for ev and fills ev.SessionID
// and ev.Payload. ctxTags override scope tags of the same name.
func (e *Enricher) Enrich(ev *Event, raw RawEvent, ctxTags map[string]string) {
	sess := e.sessions.record(e.clock.Now(), raw.Category.IsErrorLike())
	ev.SessionID = sess.ID

	fields := raw.Fields
	if raw.Category != CategoryReplay {
		// Replay frames are scrubbed when recorded; the encoded capture
		// must reach the wire intact.
		fields = e.scrubFields(fields)
	}
	payload := make(map[string]any, len(fields)+8)
	for k, v := range fields {
		if _, reserved := commonFields[k]; reserved {
			continue
		}
		payload[k] = v
	}

	switch raw.Category {
	case CategoryError, CategoryCrash:
		putString(payload, "error_type", raw.ErrorType)
		putString(payload, "error_message", e.scrubMessage(raw.Message))
		putString(payload, "error_stack", e.scrubStack(raw.Stack))
		payload["error_fatal"] = raw.Fatal
	case CategoryHTTPError:
		putString(payload, "http_method", strings.ToUpper(raw.Method))
		putString(payload, "http_url", e.scrubURL(raw.URL))
		payload["http_status"] = int64(raw.Status)
		putString(payload, "error_message", e.scrubMessage(raw.Message))
	case CategoryResourceError:
		putString(payload, "resource_url", e.scrubURL(raw.URL))
		putString(payload, "resource_type", raw.ResourceType)
	case CategoryResourceTiming:
		putString(payload, "resource_url", e.scrubURL(raw.URL))
		putString(payload, "resource_type", raw.ResourceType)
		payload["perf_value"] = raw.Value
		putString(payload, "perf_unit", raw.Unit)
	case CategoryWebVital:
		putString(payload, "vital_name", raw.Name)
		payload["vital_value"] = raw.Value
		putString(payload, "vital_unit", raw.Unit)
	case CategoryPerformance, CategoryMetric:
		putString(payload, "perf_name", raw.Name)
		payload["perf_value"] = raw.Value
		putString(payload, "perf_unit", raw.Unit)
	case CategorySession:
		payload["session_start"] = sess.StartTime.UnixMilli()
		payload["session_event_count"] = int64(sess.EventCount)
		payload["session_error_count"] = int64(sess.ErrorCount)
	case CategoryBreadcrumb:
		putString(payload, "breadcrumb_message", e.scrubMessage(raw.Message))
	}

	tags, user := e.scope.snapshot()
	if tags == nil {
		tags = make(map[string]string, len(ctxTags))
	}
	maps.Copy(tags, ctxTags)
	if len(tags) > 0 {
		wire := make(map[string]any, len(tags))
		for k, v := range tags {
			wire[k] = v
		}
		payload["tags"] = wire
	}
	putString(payload, "user_id", user.ID)
	putString(payload, "user_email", user.Email)
	putString(payload, "user_username", user.Username)

	if carriesBreadcrumbs(raw.Category) && e.maxCrumbs > 0 {
		if recent := e.crumbs.Recent(e.maxCrumbs); len(recent) > 0 {
			payload["breadcrumbs"] = e.scrubCrumbs(breadcrumbsToWire(recent))
		}
	}

	ev.Payload = payload
}

// carriesBreadcrumbs excludes categories that are themselves activity
// records or SDK bookkeeping.
func carriesBreadcrumbs(c Category) bool {
	switch c {
	case CategoryBreadcrumb, CategoryReplay, CategoryDedupCorrection:
		return false
	}
	return true
}

func putString(payload map[string]any, key, value string) {
	if value != "" {
		payload[key] = value
	}
}

func (e *Enricher) scrubMessage(s string) string {
	if e.scrubber == nil {
		return s
	}
	return e.scrubber.ScrubMessage(s)
}

func (e *Enricher) scrubStack(s string) string {
	if e.scrubber == nil {
		return s
	}
	return e.scrubber.ScrubStack(s)
}

func (e *Enricher) scrubURL(s string) string {
	if e.scrubber == nil {
		return s
	}
	return e.scrubber.ScrubURL(s)
}

func (e *Enricher) scrubFields(fields map[string]any) map[string]any {
	if e.scrubber == nil {
		return fields
	}
	return e.scrubber.ScrubFields(fields)
}

func (e *Enricher) scrubCrumbs(crumbs []any) []any {
	if e.scrubber == nil {
		return crumbs
	}
	out := make([]any, len(crumbs))
	for i, c := range crumbs {
		m := c.(map[string]any)
		if msg, ok := m["message"].(string); ok {
			m["message"] = e.scrubber.ScrubMessage(msg)
		}
		if data, ok := m["data"].(map[string]any); ok {
			m["data"] = e.scrubber.ScrubFields(data)
		}
		out[i] = m
	}
	return out
}
