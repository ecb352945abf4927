package httpsender

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

func testBatch() beacon.Batch {
	records := []beacon.Record{
		{
			EventID:         "evt-1",
			EventType:       beacon.CategoryError,
			Timestamp:       1700000000000,
			AppID:           "shop",
			Fingerprint:     "fp",
			Tier:            beacon.TierCritical,
			SamplingRate:    1,
			SamplingSampled: true,
			DedupCount:      3,
			Fields:          map[string]any{"error_message": "boom", "error_fatal": false},
		},
		{
			EventID:         "evt-2",
			EventType:       beacon.CategoryWebVital,
			Timestamp:       1700000000001,
			Fingerprint:     "fp2",
			Tier:            beacon.TierNormal,
			SamplingRate:    0.5,
			SamplingSampled: true,
			DedupCount:      1,
			Fields:          map[string]any{"vital_value": 2500.0},
		},
	}
	b, dropped := beacon.NewBatch(beacon.TierCritical, records, 0)
	if len(dropped) > 0 {
		panic(dropped[0])
	}
	return b
}

type captured struct {
	header http.Header
	body   []byte
}

func newServer(t *testing.T, status int, got chan<- captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body io.Reader = r.Body
		if r.Header.Get("Content-Encoding") == "gzip" {
			zr, err := gzip.NewReader(r.Body)
			if !assert.NoError(t, err) {
				return
			}
			body = zr
		}
		data, err := io.ReadAll(body)
		assert.NoError(t, err)
		got <- captured{header: r.Header.Clone(), body: data}
		w.WriteHeader(status)
		_, _ = w.Write([]byte("  upstream says no  "))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSender_PostsJSONArray(t *testing.T) {
	got := make(chan captured, 1)
	srv := newServer(t, http.StatusAccepted, got)
	sender := New(srv.URL, "shop")

	require.NoError(t, sender.Send(context.Background(), testBatch()))

	req := <-got
	assert.Equal(t, "application/json", req.header.Get("Content-Type"))
	assert.Equal(t, "shop", req.header.Get(AppIDHeader))
	assert.Empty(t, req.header.Get("Content-Encoding"))

	records, err := beacon.DecodeBatch(req.body)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 3, records[0].DedupCount)
	assert.Equal(t, false, records[0].Fields["error_fatal"])
	assert.Equal(t, 2500.0, records[1].Fields["vital_value"])
}

func TestSender_Gzip(t *testing.T) {
	got := make(chan captured, 1)
	srv := newServer(t, http.StatusOK, got)
	sender := New(srv.URL, "shop", WithGzip(true))

	require.NoError(t, sender.Send(context.Background(), testBatch()))

	req := <-got
	assert.Equal(t, "gzip", req.header.Get("Content-Encoding"))
	records, err := beacon.DecodeBatch(req.body)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSender_Non2xxIsStatusError(t *testing.T) {
	got := make(chan captured, 1)
	srv := newServer(t, http.StatusServiceUnavailable, got)
	sender := New(srv.URL, "shop")

	err := sender.Send(context.Background(), testBatch())
	<-got

	var statusErr *beacon.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "upstream says no", statusErr.Body)
	assert.ErrorIs(t, err, beacon.ErrTransport)
}

func TestSender_NetworkErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url, "shop").Send(context.Background(), testBatch())
	assert.ErrorIs(t, err, beacon.ErrTransport)
}

func TestSender_HonorsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := New(srv.URL, "shop").Send(ctx, testBatch())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.ErrorIs(t, err, beacon.ErrTransport)
}

func TestSender_DSN(t *testing.T) {
	s := New("https://ingest.example.com/v1/events", "shop")
	assert.Equal(t, "https://ingest.example.com/v1/events", s.DSN())
	assert.NoError(t, s.Close())
}
