// sender.go defines the Sender interface for batch destinations and the
// Batch they receive.

package beacon

import (
	"context"
	"fmt"
)

// Sender delivers batches to a destination.
// Implementations must be safe for concurrent use.
type Sender interface {
	// Send delivers one batch. Any error counts as a delivery failure
	// and routes the batch to the offline store. Send must honor ctx.
	Send(ctx context.Context, batch Batch) error

	// Close releases resources held by the sender.
	Close() error
}

// Batch is an ordered group of records from one tier, already validated
// for encoding.
type Batch struct {
	Tier    Tier
	Records []Record

	encoded [][]byte
}

// NewBatch encodes every record once. Records that fail to encode or
// whose encoding exceeds maxBytes (when positive) are left out; one
// ErrSerialization-wrapped error is returned per dropped record.
func NewBatch(tier Tier, records []Record, maxBytes int) (Batch, []error) {
	b := Batch{Tier: tier}
	var dropped []error
	for _, r := range records {
		enc, err := r.MarshalJSON()
		if err != nil {
			dropped = append(dropped, fmt.Errorf("%w: event %s: %w", ErrSerialization, r.EventID, err))
			continue
		}
		if maxBytes > 0 && len(enc) > maxBytes {
			dropped = append(dropped, fmt.Errorf("%w: event %s is %d bytes, limit %d", ErrSerialization, r.EventID, len(enc), maxBytes))
			continue
		}
		b.Records = append(b.Records, r)
		b.encoded = append(b.encoded, enc)
	}
	return b, dropped
}

// Len returns the number of records.
func (b Batch) Len() int {
	return len(b.Records)
}

// JSON returns the batch as a JSON array, the HTTP request body.
func (b Batch) JSON() []byte {
	return joinArray(b.encodedRecords())
}

// EncodedRecords returns each record's JSON encoding, in order.
func (b Batch) EncodedRecords() [][]byte {
	return b.encodedRecords()
}

func (b Batch) encodedRecords() [][]byte {
	if len(b.encoded) == len(b.Records) {
		return b.encoded
	}
	// Batches built by hand have no cached encodings.
	out := make([][]byte, 0, len(b.Records))
	for _, r := range b.Records {
		enc, err := r.MarshalJSON()
		if err != nil {
			continue
		}
		out = append(out, enc)
	}
	return out
}

// newest returns a batch holding only the last n records.
func (b Batch) newest(n int) Batch {
	if n >= len(b.Records) {
		return b
	}
	if n < 0 {
		n = 0
	}
	out := Batch{Tier: b.Tier, Records: b.Records[len(b.Records)-n:]}
	if len(b.encoded) == len(b.Records) {
		out.encoded = b.encoded[len(b.encoded)-n:]
	}
	return out
}
