// resourcetiming.go implements the ResourceTiming integration: an
// http.RoundTripper that reports per-request timing phases.

package integrations

import (
	"crypto/tls"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

// ResourceTiming reports one resource_timing event per outgoing request
// with the total duration and, when available, the DNS, connect, TLS
// and time-to-first-byte phases in milliseconds. Every request is
// delivered; resource timing events are exempt from deduplication.
type ResourceTiming struct {
	binding
	skip []string
}

// NewResourceTiming creates the ResourceTiming integration. Requests
// whose URL starts with a skip prefix are not measured.
func NewResourceTiming(skip ...string) *ResourceTiming {
	return &ResourceTiming{skip: skip}
}

func (r *ResourceTiming) Kind() beacon.IntegrationKind { return beacon.IntegrationResourceTiming }

func (r *ResourceTiming) Setup(c *beacon.Client) error {
	if err := c.ExemptFromDedup(beacon.CategoryResourceTiming); err != nil {
		return err
	}
	if dsn := c.Config().DSN; dsn != "" {
		r.skip = append(r.skip, dsn)
	}
	return r.bind(c)
}

func (r *ResourceTiming) Teardown() { r.unbind() }

// RoundTripper wraps next, or http.DefaultTransport when nil.
func (r *ResourceTiming) RoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &timingTransport{owner: r, next: next}
}

type timingTransport struct {
	owner *ResourceTiming
	next  http.RoundTripper
}

// phases collects httptrace timestamps; callbacks may run on other
// goroutines.
type phases struct {
	mu           sync.Mutex
	now          func() time.Time
	dnsStart     time.Time
	dnsDone      time.Time
	connectStart time.Time
	connectDone  time.Time
	tlsStart     time.Time
	tlsDone      time.Time
	firstByte    time.Time
	reused       bool
}

func (p *phases) mark(at *time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	*at = p.now()
}

func (p *phases) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			p.mu.Lock()
			p.reused = info.Reused
			p.mu.Unlock()
		},
		DNSStart:             func(httptrace.DNSStartInfo) { p.mark(&p.dnsStart) },
		DNSDone:              func(httptrace.DNSDoneInfo) { p.mark(&p.dnsDone) },
		ConnectStart:         func(string, string) { p.mark(&p.connectStart) },
		ConnectDone:          func(string, string, error) { p.mark(&p.connectDone) },
		TLSHandshakeStart:    func() { p.mark(&p.tlsStart) },
		TLSHandshakeDone:     func(tls.ConnectionState, error) { p.mark(&p.tlsDone) },
		GotFirstResponseByte: func() { p.mark(&p.firstByte) },
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (p *phases) fields(start time.Time) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := map[string]any{"timing_reused_conn": p.reused}
	span := func(key string, from, to time.Time) {
		if !from.IsZero() && !to.IsZero() {
			out[key] = millis(to.Sub(from))
		}
	}
	span("timing_dns_ms", p.dnsStart, p.dnsDone)
	span("timing_connect_ms", p.connectStart, p.connectDone)
	span("timing_tls_ms", p.tlsStart, p.tlsDone)
	span("timing_ttfb_ms", start, p.firstByte)
	return out
}

func (t *timingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c := t.owner.bound()
	u := req.URL.String()
	if c == nil || skipped(t.owner.skip, u) {
		return t.next.RoundTrip(req)
	}

	p := &phases{now: c.Clock().Now}
	start := c.Clock().Now()
	traced := req.WithContext(httptrace.WithClientTrace(req.Context(), p.trace()))
	resp, err := t.next.RoundTrip(traced)
	elapsed := c.Clock().Now().Sub(start)

	fields := p.fields(start)
	if resp != nil {
		fields["timing_status"] = int64(resp.StatusCode)
		if resp.ContentLength >= 0 {
			fields["timing_transfer_size"] = resp.ContentLength
		}
	}
	if err != nil {
		fields["timing_failed"] = true
	}
	c.CaptureContext(req.Context(), beacon.RawEvent{
		Category:     beacon.CategoryResourceTiming,
		Name:         req.Method + " " + req.URL.Host + req.URL.Path,
		URL:          u,
		ResourceType: "fetch",
		Value:        millis(elapsed),
		Unit:         "ms",
		Fields:       fields,
	})
	return resp, err
}
