// Package stderr provides a sender that prints batches to stderr in a
// human-readable format. Useful for development and debugging.
package stderr

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

// Option configures the stderr sender.
type Option func(*config)

type config struct {
	verbose bool
	out     io.Writer
}

// WithVerbose prints every payload field, including stacks.
func WithVerbose() Option {
	return func(c *config) {
		c.verbose = true
	}
}

// WithWriter redirects output, mainly for tests.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		c.out = w
	}
}

// stderrSender writes records to stderr in human-readable format.
type stderrSender struct {
	mu      sync.Mutex
	verbose bool
	out     io.Writer
}

// New creates a sender that writes to stderr.
func New(opts ...Option) beacon.Sender {
	cfg := &config{out: os.Stderr}
	for _, opt := range opts {
		opt(cfg)
	}
	return &stderrSender{
		verbose: cfg.verbose,
		out:     cfg.out,
	}
}

// Send prints one block per record.
func (s *stderrSender) Send(ctx context.Context, batch beacon.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range batch.Records {
		s.writeRecord(r)
	}
	return nil
}

func (s *stderrSender) writeRecord(r beacon.Record) {
	// Format: [BEACON] <timestamp> <TIER> <event_type> <event_name> (x<dedup_count>)
	timestamp := r.Time().UTC().Format("2006-01-02T15:04:05.000Z07:00")

	parts := []string{fmt.Sprintf("[BEACON] %s %s %s", timestamp, strings.ToUpper(string(r.Tier)), r.EventType)}
	if r.EventName != "" {
		parts = append(parts, r.EventName)
	}
	if r.DedupCount > 1 {
		parts = append(parts, fmt.Sprintf("(x%d)", r.DedupCount))
	}
	fmt.Fprintln(s.out, strings.Join(parts, " "))

	if msg, ok := r.Fields["error_message"].(string); ok && msg != "" {
		fmt.Fprintf(s.out, "        Message: %s\n", msg)
	}
	fmt.Fprintf(s.out, "        Fingerprint: %s\n", r.Fingerprint)
	if r.SessionID != "" {
		fmt.Fprintf(s.out, "        Session: %s\n", r.SessionID)
	}
	if r.ReplayID != "" {
		fmt.Fprintf(s.out, "        Replay: %s\n", r.ReplayID)
	}

	if !s.verbose {
		return
	}
	if stack, ok := r.Fields["error_stack"].(string); ok && stack != "" {
		fmt.Fprintf(s.out, "        Stack trace:\n")
		for _, line := range strings.Split(stack, "\n") {
			fmt.Fprintf(s.out, "          %s\n", line)
		}
	}
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		if k == "error_message" || k == "error_stack" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(s.out, "        %s: %v\n", k, r.Fields[k])
	}
}

// Close is a no-op for the stderr sender.
func (s *stderrSender) Close() error {
	return nil
}
