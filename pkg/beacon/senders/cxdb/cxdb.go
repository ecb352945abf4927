// Package cxdb provides a sender that persists error-like records to
// cxdb as SystemMessage items, one cxdb context per session.
package cxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/strongdm/ai-beacon/pkg/beacon"
	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"
	cxdtypes "github.com/strongdm/ai-cxdb/clients/go/types"
)

// CXDBClient is the minimal interface for cxdb client operations.
// The real *cxdb.Client satisfies this interface.
type CXDBClient interface {
	CreateContext(ctx context.Context, baseTurnID uint64) (*cxdbclient.ContextHead, error)
	AppendTurn(ctx context.Context, req *cxdbclient.AppendRequest) (*cxdbclient.AppendResult, error)
}

// Option configures the cxdb sender.
type Option func(*config)

type config struct {
	labels      []string
	clientTag   string
	maxContexts int
}

// WithLabels sets the labels attached to each new context.
func WithLabels(labels []string) Option {
	return func(c *config) {
		c.labels = labels
	}
}

// WithClientTag sets the client tag attached to each new context.
func WithClientTag(tag string) Option {
	return func(c *config) {
		c.clientTag = tag
	}
}

// WithMaxContexts bounds how many session to context mappings are kept.
func WithMaxContexts(n int) Option {
	return func(c *config) {
		c.maxContexts = n
	}
}

// noSession keys records that carry no session id.
const noSession = ""

// cxdbSender writes error-like records to cxdb.
type cxdbSender struct {
	client    CXDBClient
	labels    []string
	clientTag string

	mu       sync.Mutex
	contexts *lru.Cache[string, uint64]
}

// New creates a sender that writes to cxdb. Records whose category is
// not error-like are skipped.
func New(client CXDBClient, opts ...Option) (beacon.Sender, error) {
	cfg := &config{
		labels:      []string{"beacon", "error"},
		clientTag:   "beacon",
		maxContexts: 1024,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	contexts, err := lru.New[string, uint64](cfg.maxContexts)
	if err != nil {
		return nil, fmt.Errorf("cxdb: context cache: %w", err)
	}
	return &cxdbSender{
		client:    client,
		labels:    cfg.labels,
		clientTag: cfg.clientTag,
		contexts:  contexts,
	}, nil
}

// Send appends one turn per error-like record. A failed record does not
// stop the rest of the batch; the joined error fails the batch, and the
// event id idempotency key makes the retry safe.
func (s *cxdbSender) Send(ctx context.Context, batch beacon.Batch) error {
	var errs []error
	for _, r := range batch.Records {
		if !r.EventType.IsErrorLike() {
			continue
		}
		if err := s.write(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", r.EventID, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: cxdb: %w", beacon.ErrTransport, err)
	}
	return nil
}

func (s *cxdbSender) write(ctx context.Context, r beacon.Record) error {
	contextID, created, err := s.contextFor(ctx, r.SessionID)
	if err != nil {
		return err
	}

	item, err := s.buildConversationItem(r, created)
	if err != nil {
		return err
	}
	payload, err := cxdbclient.EncodeMsgpack(item)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req := &cxdbclient.AppendRequest{
		ContextID:      contextID,
		ParentTurnID:   0,
		TypeID:         cxdtypes.TypeIDConversationItem,
		TypeVersion:    cxdtypes.TypeVersionConversationItem,
		Payload:        payload,
		IdempotencyKey: r.EventID,
	}
	if _, err := s.client.AppendTurn(ctx, req); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// contextFor returns the context for a session, creating it on first
// use. created reports whether this call made it.
func (s *cxdbSender) contextFor(ctx context.Context, sessionID string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.contexts.Get(sessionID); ok {
		return id, false, nil
	}
	head, err := s.client.CreateContext(ctx, 0)
	if err != nil {
		return 0, false, fmt.Errorf("create context: %w", err)
	}
	s.contexts.Add(sessionID, head.ContextID)
	return head.ContextID, true, nil
}

// buildConversationItem creates a canonical ConversationItem from a record.
func (s *cxdbSender) buildConversationItem(r beacon.Record, first bool) (*cxdtypes.ConversationItem, error) {
	content, err := r.MarshalJSON()
	if err != nil {
		return nil, err
	}

	item := &cxdtypes.ConversationItem{
		ItemType:  cxdtypes.ItemTypeSystem,
		Status:    cxdtypes.ItemStatusComplete,
		Timestamp: r.Timestamp,
		ID:        r.EventID,
		System: &cxdtypes.SystemMessage{
			Kind:    cxdtypes.SystemKindError,
			Title:   title(r),
			Content: string(content),
		},
	}

	// cxdb expects context metadata on the first turn.
	if first {
		labels := s.labels
		if r.SessionID == noSession {
			labels = append(append([]string(nil), labels...), "unlinked")
		}
		item.ContextMetadata = &cxdtypes.ContextMetadata{
			Labels:    labels,
			ClientTag: s.clientTag,
		}
	}
	return item, nil
}

// title builds "error_type: truncated_message".
func title(r beacon.Record) string {
	kind, _ := r.Fields["error_type"].(string)
	if kind == "" {
		kind = string(r.EventType)
	}
	out := kind
	if msg, _ := r.Fields["error_message"].(string); msg != "" {
		const maxMsgLen = 80
		if len(msg) > maxMsgLen {
			msg = msg[:maxMsgLen] + "..."
		}
		out = kind + ": " + msg
	}
	if len(out) > 100 {
		out = out[:97] + "..."
	}
	return out
}

// Close is a no-op; the cxdb client is owned by the caller.
func (s *cxdbSender) Close() error {
	return nil
}
