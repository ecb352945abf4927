// Package multi provides a sender that fans batches out to several
// senders. Every sender receives every batch; errors are aggregated.
package multi

import (
	"context"
	"errors"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

// multiSender fans out to multiple senders.
type multiSender struct {
	senders []beacon.Sender
}

// New creates a sender that writes to multiple senders.
// Errors are aggregated via errors.Join, so the batch counts as failed
// (and goes offline) when any destination fails.
func New(senders ...beacon.Sender) beacon.Sender {
	return &multiSender{
		senders: senders,
	}
}

// Send delivers the batch to all senders, even after a failure.
func (s *multiSender) Send(ctx context.Context, batch beacon.Batch) error {
	var errs []error
	for _, sender := range s.senders {
		if err := sender.Send(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close calls Close on all senders, collecting any errors.
func (s *multiSender) Close() error {
	var errs []error
	for _, sender := range s.senders {
		if err := sender.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
