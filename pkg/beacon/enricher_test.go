package beacon

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/ai-beacon/pkg/beacon/clock"
)

type enricherFixture struct {
	clock    *clock.FakeClock
	sessions *SessionTracker
	crumbs   *BreadcrumbBuffer
	scope    *Scope
	enricher *Enricher
}

func newEnricherFixture(scrubber *Scrubber) *enricherFixture {
	f := &enricherFixture{
		clock:    clock.NewFake(testEpoch),
		sessions: NewSessionTracker(SessionConfig{IdleTimeout: time.Minute}),
		crumbs:   NewBreadcrumbBuffer(5),
		scope:    NewScope(),
	}
	f.enricher = NewEnricher(f.clock, f.sessions, f.crumbs, 3, f.scope, scrubber)
	return f
}

func (f *enricherFixture) enrich(raw RawEvent, tags map[string]string) *Event {
	ev := &Event{Category: raw.Category, Name: raw.Name}
	f.enricher.Enrich(ev, raw, tags)
	return ev
}

func TestEnricher_CategoryFields(t *testing.T) {
	f := newEnricherFixture(nil)

	tests := []struct {
		name string
		raw  RawEvent
		want map[string]any
	}{
		{
			name: "error",
			raw:  RawEvent{Category: CategoryError, ErrorType: "TypeError", Message: "boom", Stack: "at x (a.js:1:1)"},
			want: map[string]any{"error_type": "TypeError", "error_message": "boom", "error_stack": "at x (a.js:1:1)", "error_fatal": false},
		},
		{
			name: "http",
			raw:  RawEvent{Category: CategoryHTTPError, Method: "post", URL: "https://api.example.com/v1/orders", Status: 502},
			want: map[string]any{"http_method": "POST", "http_url": "https://api.example.com/v1/orders", "http_status": int64(502)},
		},
		{
			name: "resource error",
			raw:  RawEvent{Category: CategoryResourceError, URL: "https://cdn.example.com/app.js", ResourceType: "script"},
			want: map[string]any{"resource_url": "https://cdn.example.com/app.js", "resource_type": "script"},
		},
		{
			name: "web vital",
			raw:  RawEvent{Category: CategoryWebVital, Name: "LCP", Value: 2500, Unit: "ms"},
			want: map[string]any{"vital_name": "LCP", "vital_value": 2500.0, "vital_unit": "ms"},
		},
		{
			name: "performance",
			raw:  RawEvent{Category: CategoryPerformance, Name: "db.query", Value: 12.5, Unit: "ms"},
			want: map[string]any{"perf_name": "db.query", "perf_value": 12.5, "perf_unit": "ms"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := f.enrich(tt.raw, nil)
			for k, v := range tt.want {
				assert.Equal(t, v, ev.Payload[k], k)
			}
		})
	}
}

func TestEnricher_SessionTouchedOncePerEvent(t *testing.T) {
	f := newEnricherFixture(nil)

	a := f.enrich(RawEvent{Category: CategoryError, Message: "a"}, nil)
	b := f.enrich(RawEvent{Category: CategoryCustom, Name: "b"}, nil)
	assert.Equal(t, a.SessionID, b.SessionID)

	sess, ok := f.sessions.Current()
	require.True(t, ok)
	assert.Equal(t, 2, sess.EventCount)
	assert.Equal(t, 1, sess.ErrorCount)

	s := f.enrich(RawEvent{Category: CategorySession}, nil)
	assert.Equal(t, int64(3), s.Payload["session_event_count"])
	assert.Equal(t, int64(1), s.Payload["session_error_count"])
	assert.Equal(t, testEpoch.UnixMilli(), s.Payload["session_start"])
}

func TestEnricher_IdleTimeoutStartsNewSession(t *testing.T) {
	f := newEnricherFixture(nil)
	var started []string
	f.sessions.OnStart(func(s Session) { started = append(started, s.ID) })

	first := f.enrich(RawEvent{Category: CategoryCustom}, nil)
	f.clock.Advance(30 * time.Second)
	same := f.enrich(RawEvent{Category: CategoryCustom}, nil)
	f.clock.Advance(61 * time.Second)
	next := f.enrich(RawEvent{Category: CategoryCustom}, nil)

	assert.Equal(t, first.SessionID, same.SessionID)
	assert.NotEqual(t, first.SessionID, next.SessionID)
	assert.Equal(t, []string{first.SessionID, next.SessionID}, started)
}

func TestEnricher_TagsUserAndContextPrecedence(t *testing.T) {
	f := newEnricherFixture(nil)
	f.scope.SetTag("env", "prod")
	f.scope.SetTag("page", "home")
	f.scope.SetUser(User{ID: "42", Email: "a@example.com"})

	ev := f.enrich(RawEvent{Category: CategoryCustom}, map[string]string{"page": "checkout"})
	assert.Equal(t, map[string]any{"env": "prod", "page": "checkout"}, ev.Payload["tags"])
	assert.Equal(t, "42", ev.Payload["user_id"])
	assert.Equal(t, "a@example.com", ev.Payload["user_email"])

	f.scope.SetTag("env", "")
	ev = f.enrich(RawEvent{Category: CategoryCustom}, nil)
	assert.Equal(t, map[string]any{"page": "home"}, ev.Payload["tags"])
}

func TestEnricher_Breadcrumbs(t *testing.T) {
	f := newEnricherFixture(nil)
	for i := range 7 {
		f.crumbs.Add(Breadcrumb{Timestamp: testEpoch, Category: "nav", Message: fmt.Sprintf("step %d", i)})
	}
	assert.Equal(t, 5, f.crumbs.Len())

	ev := f.enrich(RawEvent{Category: CategoryError, Message: "boom"}, nil)
	crumbs, ok := ev.Payload["breadcrumbs"].([]any)
	require.True(t, ok)
	require.Len(t, crumbs, 3)
	assert.Equal(t, "step 4", crumbs[0].(map[string]any)["message"])
	assert.Equal(t, "step 6", crumbs[2].(map[string]any)["message"])

	crumb := f.enrich(RawEvent{Category: CategoryBreadcrumb, Message: "click"}, nil)
	assert.NotContains(t, crumb.Payload, "breadcrumbs")
	assert.Equal(t, "click", crumb.Payload["breadcrumb_message"])
}

func TestEnricher_ScrubsAndSkipsReservedFields(t *testing.T) {
	f := newEnricherFixture(NewScrubber(DefaultScrubberConfig()))

	ev := f.enrich(RawEvent{
		Category: CategoryHTTPError,
		Method:   "GET",
		URL:      "https://user:pw@api.example.com/x?token=abc&page=2",
		Status:   500,
		Message:  "failed with api_key=sk_live_123",
		Fields: map[string]any{
			"http_request_id": "r-1",
			"auth_header":     "Bearer xyz",
			"event_id":        "spoofed",
		},
	}, nil)

	url, _ := ev.Payload["http_url"].(string)
	assert.NotContains(t, url, "pw@")
	assert.NotContains(t, url, "token=abc")
	assert.Contains(t, url, "api.example.com/x?page=2")
	assert.NotContains(t, ev.Payload["error_message"], "sk_live_123")
	assert.Equal(t, "r-1", ev.Payload["http_request_id"])
	assert.Equal(t, "[REDACTED]", ev.Payload["auth_header"])
	assert.NotContains(t, ev.Payload, "event_id")
}

func TestEnricher_ReplayFieldsPassThrough(t *testing.T) {
	f := newEnricherFixture(NewScrubber(DefaultScrubberConfig()))
	long := make([]byte, 4096)
	for i := range long {
		long[i] = 'A'
	}

	ev := f.enrich(RawEvent{
		Category: CategoryReplay,
		Fields:   map[string]any{"replay_data": string(long)},
	}, nil)
	assert.Equal(t, string(long), ev.Payload["replay_data"])
	assert.NotContains(t, ev.Payload, "breadcrumbs")
}

func TestScope_ContextTags(t *testing.T) {
	_, ok := TagsFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithTag(context.Background(), "a", "1")
	child := WithTag(ctx, "b", "2")

	tags, ok := TagsFromContext(child)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, tags)

	parent, _ := TagsFromContext(ctx)
	assert.Equal(t, map[string]string{"a": "1"}, parent, "parent context is unchanged")
}

func TestBreadcrumbBuffer_Ring(t *testing.T) {
	b := NewBreadcrumbBuffer(3)
	for i := range 5 {
		b.Add(Breadcrumb{Message: fmt.Sprint(i)})
	}
	var msgs []string
	for _, c := range b.Recent(-1) {
		msgs = append(msgs, c.Message)
	}
	assert.Equal(t, []string{"2", "3", "4"}, msgs)
	assert.Len(t, b.Recent(2), 2)
	assert.Equal(t, "4", b.Recent(1)[0].Message)
}
