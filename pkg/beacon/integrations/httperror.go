// httperror.go implements the HTTPError integration: an
// http.RoundTripper that reports failed outgoing requests and leaves a
// breadcrumb for every request.

package integrations

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

// DefaultFailedStatus is the lowest status reported as an HTTP error.
const DefaultFailedStatus = 500

// HTTPErrorOption configures the HTTPError integration.
type HTTPErrorOption func(*HTTPError)

// WithFailedStatus reports responses with status >= min.
func WithFailedStatus(min int) HTTPErrorOption {
	return func(h *HTTPError) {
		h.minStatus = min
	}
}

// WithSkipURLs ignores requests whose URL starts with any prefix.
func WithSkipURLs(prefixes ...string) HTTPErrorOption {
	return func(h *HTTPError) {
		h.skip = append(h.skip, prefixes...)
	}
}

// WithoutHTTPBreadcrumbs stops recording a breadcrumb per request.
func WithoutHTTPBreadcrumbs() HTTPErrorOption {
	return func(h *HTTPError) {
		h.breadcrumbs = false
	}
}

// HTTPError reports network failures and error responses of outgoing
// requests as http_error events. Requests to the client's own DSN are
// never reported.
type HTTPError struct {
	binding
	minStatus   int
	skip        []string
	breadcrumbs bool
}

// NewHTTPError creates the HTTPError integration.
func NewHTTPError(opts ...HTTPErrorOption) *HTTPError {
	h := &HTTPError{minStatus: DefaultFailedStatus, breadcrumbs: true}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPError) Kind() beacon.IntegrationKind { return beacon.IntegrationHTTPError }

func (h *HTTPError) Setup(c *beacon.Client) error {
	if dsn := c.Config().DSN; dsn != "" {
		h.skip = append(h.skip, dsn)
	}
	return h.bind(c)
}

func (h *HTTPError) Teardown() { h.unbind() }

// RoundTripper wraps next, or http.DefaultTransport when nil.
func (h *HTTPError) RoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &httpErrorTransport{owner: h, next: next}
}

// skipped reports whether u starts with any of prefixes.
func skipped(prefixes []string, u string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(u, prefix) {
			return true
		}
	}
	return false
}

type httpErrorTransport struct {
	owner *HTTPError
	next  http.RoundTripper
}

func (t *httpErrorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c := t.owner.bound()
	u := req.URL.String()
	if c == nil || skipped(t.owner.skip, u) {
		return t.next.RoundTrip(req)
	}

	start := c.Clock().Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := c.Clock().Now().Sub(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	failed := err != nil || status >= t.owner.minStatus

	if t.owner.breadcrumbs {
		level := "info"
		if failed {
			level = "error"
		}
		data := map[string]string{"method": req.Method, "url": u}
		if status != 0 {
			data["status_code"] = strconv.Itoa(status)
		}
		c.AddBreadcrumb(beacon.Breadcrumb{
			Category: "http",
			Message:  req.Method + " " + u,
			Level:    level,
			Data:     data,
		})
	}

	if failed {
		raw := beacon.RawEvent{
			Category: beacon.CategoryHTTPError,
			Method:   req.Method,
			URL:      u,
			Status:   status,
			Fields:   map[string]any{"http_duration_ms": float64(elapsed.Microseconds()) / 1000},
		}
		if err != nil {
			raw.Message = err.Error()
		} else {
			raw.Message = fmt.Sprintf("%s %s responded %d", req.Method, req.URL.Redacted(), status)
		}
		c.CaptureContext(req.Context(), raw)
	}
	return resp, err
}
