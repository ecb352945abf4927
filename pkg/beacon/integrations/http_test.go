package integrations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("hello"))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, client *http.Client, url string) {
	t.Helper()
	resp, err := client.Get(url)
	if err == nil {
		resp.Body.Close()
	}
}

func TestHTTPError_ReportsFailedRequests(t *testing.T) {
	srv := newUpstream(t)
	h := NewHTTPError()
	c, _, sender := newClient(t, beacon.DefaultConfig(), h)
	client := &http.Client{Transport: h.RoundTripper(nil)}

	get(t, client, srv.URL+"/ok")
	get(t, client, srv.URL+"/missing")
	get(t, client, srv.URL+"/fail")
	flush(t, c)

	records := sender.recordsOf(beacon.CategoryHTTPError)
	require.Len(t, records, 1, "only responses at or above 500 are reported")
	r := records[0]
	assert.Equal(t, "GET", r.Fields["http_method"])
	assert.Equal(t, int64(http.StatusServiceUnavailable), r.Fields["http_status"])
	assert.Equal(t, srv.URL+"/fail", r.Fields["http_url"])
	assert.Contains(t, r.Fields, "http_duration_ms")

	crumbs, ok := r.Fields["breadcrumbs"].([]any)
	require.True(t, ok)
	require.Len(t, crumbs, 3)
	last := crumbs[2].(map[string]any)
	assert.Equal(t, "http", last["category"])
	assert.Equal(t, "error", last["level"])
	assert.Equal(t, "503", last["data"].(map[string]any)["status_code"])
	assert.Equal(t, "info", crumbs[0].(map[string]any)["level"])
}

func TestHTTPError_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/gone"
	srv.Close()

	h := NewHTTPError(WithoutHTTPBreadcrumbs())
	c, _, sender := newClient(t, beacon.DefaultConfig(), h)
	get(t, &http.Client{Transport: h.RoundTripper(nil)}, url)
	flush(t, c)

	records := sender.recordsOf(beacon.CategoryHTTPError)
	require.Len(t, records, 1)
	assert.Equal(t, int64(0), records[0].Fields["http_status"])
	assert.NotEmpty(t, records[0].Fields["error_message"])
	assert.NotContains(t, records[0].Fields, "breadcrumbs")
}

func TestHTTPError_SkipsDSNAndPrefixes(t *testing.T) {
	srv := newUpstream(t)
	cfg := beacon.DefaultConfig()
	cfg.DSN = srv.URL + "/ingest"

	h := NewHTTPError(WithSkipURLs(srv.URL+"/health"), WithFailedStatus(400))
	c, _, sender := newClient(t, cfg, h)
	client := &http.Client{Transport: h.RoundTripper(nil)}

	get(t, client, srv.URL+"/ingest")
	get(t, client, srv.URL+"/health")
	get(t, client, srv.URL+"/missing")
	flush(t, c)

	records := sender.recordsOf(beacon.CategoryHTTPError)
	require.Len(t, records, 1)
	assert.True(t, strings.HasSuffix(records[0].Fields["http_url"].(string), "/missing"))
}

func TestResourceTiming_ReportsEveryRequest(t *testing.T) {
	srv := newUpstream(t)
	rt := NewResourceTiming()
	c, _, sender := newClient(t, beacon.DefaultConfig(), rt)
	client := &http.Client{Transport: rt.RoundTripper(nil)}

	get(t, client, srv.URL+"/ok")
	get(t, client, srv.URL+"/ok")
	flush(t, c)

	records := sender.recordsOf(beacon.CategoryResourceTiming)
	require.Len(t, records, 2, "resource timing is exempt from deduplication")
	r := records[0]
	assert.Equal(t, "fetch", r.Fields["resource_type"])
	assert.Equal(t, "ms", r.Fields["perf_unit"])
	assert.Equal(t, int64(200), r.Fields["timing_status"])
	assert.Equal(t, int64(5), r.Fields["timing_transfer_size"])
	assert.Equal(t, "GET "+strings.TrimPrefix(srv.URL, "http://")+"/ok", r.EventName)
	assert.Equal(t, beacon.TierAuxiliary, r.Tier)
}

func TestResourceError_Report(t *testing.T) {
	re := NewResourceError()
	c, _, sender := newClient(t, beacon.DefaultConfig(), re)

	re.Report(context.Background(), "https://cdn.example.com/app.js?v=3", "script", assert.AnError)
	flush(t, c)

	records := sender.recordsOf(beacon.CategoryResourceError)
	require.Len(t, records, 1)
	assert.Equal(t, "script", records[0].Fields["resource_type"])
	assert.Equal(t, assert.AnError.Error(), records[0].Fields["resource_error"])
	assert.Contains(t, records[0].Fields["resource_url"], "cdn.example.com/app.js")
}
