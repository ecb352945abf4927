// Package kafka provides a sender that writes each record to a Kafka
// topic, keyed by fingerprint so duplicates of one issue share a
// partition.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

// Writer is the subset of *kafka.Writer the sender uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter builds a writer for topic on brokers.
func NewWriter(brokers []string, topic string) (*kafka.Writer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, fmt.Errorf("kafka: brokers and topic are required")
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}, nil
}

// Sender writes batches through a Writer.
type Sender struct {
	writer Writer
	appID  string
}

// New creates a sender. Close closes the writer.
func New(w Writer, appID string) *Sender {
	return &Sender{writer: w, appID: appID}
}

// Send writes one message per record in a single call, so the writer
// can batch them.
func (s *Sender) Send(ctx context.Context, batch beacon.Batch) error {
	encoded := batch.EncodedRecords()
	if len(encoded) == 0 {
		return nil
	}
	if len(encoded) != len(batch.Records) {
		return fmt.Errorf("%w: kafka: batch holds unencodable records", beacon.ErrSerialization)
	}
	msgs := make([]kafka.Message, len(encoded))
	for i, value := range encoded {
		r := batch.Records[i]
		msgs[i] = kafka.Message{
			Key:   []byte(r.Fingerprint),
			Value: value,
			Time:  r.Time(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(r.EventType)},
				{Key: "tier", Value: []byte(batch.Tier)},
				{Key: "app_id", Value: []byte(s.appID)},
			},
		}
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("%w: kafka: %w", beacon.ErrTransport, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *Sender) Close() error {
	return s.writer.Close()
}
