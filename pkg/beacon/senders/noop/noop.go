// Package noop provides a sender that discards every batch.
// Useful for testing and for disabling delivery.
package noop

import (
	"context"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

// noopSender discards all batches.
type noopSender struct{}

// New creates a sender that discards all batches.
func New() beacon.Sender {
	return noopSender{}
}

// Send discards the batch and returns nil.
func (noopSender) Send(ctx context.Context, batch beacon.Batch) error {
	return nil
}

// Close is a no-op and returns nil.
func (noopSender) Close() error {
	return nil
}
