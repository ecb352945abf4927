// breadcrumbs.go keeps a bounded trail of recent host activity.

package beacon

import (
	"sync"
	"time"
)

// Breadcrumb is a lightweight record of recent host activity.
type Breadcrumb struct {
	Timestamp time.Time
	Category  string
	Message   string
	Level     string
	Data      map[string]string
}

// BreadcrumbBuffer is a bounded ring of breadcrumbs; the oldest entry is
// overwritten once it is full.
type BreadcrumbBuffer struct {
	mu       sync.Mutex
	records  []Breadcrumb
	maxSize  int
	writeIdx int
}

// NewBreadcrumbBuffer creates a ring holding at most maxSize entries.
// A non-positive size falls back to 20.
func NewBreadcrumbBuffer(maxSize int) *BreadcrumbBuffer {
	if maxSize <= 0 {
		maxSize = 20
	}
	return &BreadcrumbBuffer{maxSize: maxSize}
}

// Add appends a breadcrumb, overwriting the oldest when full.
func (b *BreadcrumbBuffer) Add(crumb Breadcrumb) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, crumb)
		return
	}
	b.records[b.writeIdx] = crumb
	b.writeIdx = (b.writeIdx + 1) % b.maxSize
}

// Recent returns up to n breadcrumbs, oldest first.
func (b *BreadcrumbBuffer) Recent(n int) []Breadcrumb {
	b.mu.Lock()
	defer b.mu.Unlock()

	ordered := make([]Breadcrumb, 0, len(b.records))
	ordered = append(ordered, b.records[b.writeIdx:]...)
	ordered = append(ordered, b.records[:b.writeIdx]...)
	if n >= 0 && n < len(ordered) {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}

// Len returns the number of stored breadcrumbs.
func (b *BreadcrumbBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// breadcrumbsToWire converts breadcrumbs to payload values.
func breadcrumbsToWire(crumbs []Breadcrumb) []any {
	out := make([]any, 0, len(crumbs))
	for _, c := range crumbs {
		item := map[string]any{
			"timestamp": c.Timestamp.UnixMilli(),
			"category":  c.Category,
			"message":   c.Message,
		}
		if c.Level != "" {
			item["level"] = c.Level
		}
		if len(c.Data) > 0 {
			data := make(map[string]any, len(c.Data))
			for k, v := range c.Data {
				data[k] = v
			}
			item["data"] = data
		}
		out = append(out, item)
	}
	return out
}
