// Package httpsender posts batches to the ingestion endpoint as a JSON
// array of flat records.
package httpsender

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/klauspost/compress/gzip"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

// AppIDHeader carries the application id on every request.
const AppIDHeader = "X-Beacon-App-Id"

// maxErrorBody bounds how much of a failed response is kept.
const maxErrorBody = 512

// Option configures the HTTP sender.
type Option func(*Sender)

// WithGzip compresses request bodies.
func WithGzip(enabled bool) Option {
	return func(s *Sender) {
		s.gzip = enabled
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) {
		s.client = c
	}
}

// Sender posts batches to a DSN. It holds no per-batch state and is
// safe for concurrent use.
type Sender struct {
	dsn    string
	appID  string
	gzip   bool
	client *http.Client
}

// New creates a sender for dsn. The client bounds every send with the
// configured send timeout, so the default http.Client has none.
func New(dsn, appID string, opts ...Option) *Sender {
	s := &Sender{
		dsn:    dsn,
		appID:  appID,
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DSN returns the endpoint batches are posted to.
func (s *Sender) DSN() string {
	return s.dsn
}

// Send posts the batch. Network errors are wrapped with
// beacon.ErrTransport; non-2xx responses return *beacon.StatusError.
func (s *Sender) Send(ctx context.Context, batch beacon.Batch) error {
	body := batch.JSON()
	encoding := ""
	if s.gzip {
		compressed, err := compress(body)
		if err != nil {
			return fmt.Errorf("%w: gzip: %w", beacon.ErrTransport, err)
		}
		body, encoding = compressed, "gzip"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.dsn, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", beacon.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	if s.appID != "" {
		req.Header.Set(AppIDHeader, s.appID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", beacon.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &beacon.StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Close releases idle connections.
func (s *Sender) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
