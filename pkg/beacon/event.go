// event.go defines raw observations and the events the pipeline emits.

package beacon

import (
	"sync"
	"time"
)

// Category names the kind of observation an event describes. It
// becomes the event_type wire field.
type Category string

const (
	CategoryError           Category = "error"
	CategoryCrash           Category = "crash"
	CategoryHTTPError       Category = "http_error"
	CategoryResourceError   Category = "resource_error"
	CategoryWebVital        Category = "web_vital"
	CategoryPerformance     Category = "performance"
	CategoryResourceTiming  Category = "resource_timing"
	CategoryMetric          Category = "metric"
	CategorySession         Category = "session"
	CategoryBreadcrumb      Category = "breadcrumb"
	CategoryReplay          Category = "replay"
	CategoryCustom          Category = "custom"
	CategoryDedupCorrection Category = "dedup_correction"
)

// IsErrorLike reports whether events of this category count toward a
// session's error total.
func (c Category) IsErrorLike() bool {
	switch c {
	case CategoryError, CategoryCrash, CategoryHTTPError, CategoryResourceError:
		return true
	}
	return false
}

// RawEvent is an observation pushed by a signal producer. Only the
// fields relevant to its category need to be set.
type RawEvent struct {
	// ID optionally identifies the logical occurrence. Producers that
	// may resubmit the same occurrence set it so deterministic sampling
	// makes the same decision every time.
	ID string

	Category  Category
	Name      string
	Timestamp time.Time

	// Error details.
	ErrorType string
	Message   string
	Stack     string
	Fatal     bool

	// HTTP and resource details.
	URL          string
	Method       string
	Status       int
	ResourceType string

	// Value carries the measurement for performance, vital and timing
	// observations.
	Value float64
	Unit  string

	// ReplayID links the observation to a session replay capture.
	ReplayID string

	// Fields holds extra category-namespaced fields copied verbatim
	// into the payload (for example "vital_rating" or "perf_entry").
	Fields map[string]any
}

// Event is an admitted, enriched observation on its way to delivery.
type Event struct {
	ID          string
	Category    Category
	Name        string
	Timestamp   time.Time
	Fingerprint string

	// Tier, Sampled and SamplingRate are assigned once, before the event
	// reaches a tier queue.
	Tier         Tier
	Sampled      bool
	SamplingRate float64

	SessionID string
	ReplayID  string

	// Payload holds the category-namespaced wire fields.
	Payload map[string]any

	dedup *dedupCounter
}

// DedupCount returns the number of occurrences folded into this event.
func (e *Event) DedupCount() int {
	if e.dedup == nil {
		return 1
	}
	return e.dedup.value()
}

// dedupCounter is shared between a queued event and the deduplicator
// entry that produced it. Once sealed for send the count is frozen and
// later duplicates must be reported through a correction event.
type dedupCounter struct {
	mu     sync.Mutex
	count  int
	sealed bool
}

func newDedupCounter() *dedupCounter {
	return &dedupCounter{count: 1}
}

// add folds one more occurrence into the count. It returns false when
// the counter is already sealed.
func (d *dedupCounter) add() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sealed {
		return false
	}
	d.count++
	return true
}

// seal freezes the counter and returns the final count.
func (d *dedupCounter) seal() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sealed = true
	return d.count
}

func (d *dedupCounter) value() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}
