// errors.go defines the failure taxonomy and discard reasons.

package beacon

import (
	"errors"
	"fmt"
)

var (
	// ErrCapture marks a failure inside an instrumentation hook.
	ErrCapture = errors.New("beacon: capture failed")

	// ErrTransport marks a failed delivery: network error, timeout or a
	// non-2xx response.
	ErrTransport = errors.New("beacon: transport failed")

	// ErrQueueOverflow marks data evicted from a bounded queue.
	ErrQueueOverflow = errors.New("beacon: queue overflow")

	// ErrSerialization marks a record that cannot be encoded or exceeds
	// the size limit.
	ErrSerialization = errors.New("beacon: serialization failed")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("beacon: client closed")
)

// StatusError reports a non-2xx response from the ingestion endpoint.
// It matches ErrTransport with errors.Is.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("beacon: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("beacon: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrTransport
}

// DiscardReason labels why data was dropped. It is used as the reason
// attribute on the dropped-events counter and in logs.
type DiscardReason string

const (
	ReasonQueueOverflow  DiscardReason = "queue_overflow"
	ReasonSampleRate     DiscardReason = "sample_rate"
	ReasonNetworkError   DiscardReason = "network_error"
	ReasonSendError      DiscardReason = "send_error"
	ReasonInternalError  DiscardReason = "internal_sdk_error"
	ReasonSerialization  DiscardReason = "serialization"
	ReasonRetryExhausted DiscardReason = "retry_exhausted"
	ReasonBufferOverflow DiscardReason = "buffer_overflow"
)
