// dedup.go suppresses repeated fingerprints inside a sliding time window.

package beacon

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DedupConfig controls the deduplicator.
type DedupConfig struct {
	// MaxCacheSize bounds the number of fingerprints tracked at once.
	// The least recently seen fingerprint is evicted first; its
	// accounting is lost, which is an accepted approximation.
	MaxCacheSize int `mapstructure:"max_cache_size"`

	// TimeWindow is how long after the first occurrence later
	// occurrences are folded into it instead of being delivered.
	TimeWindow time.Duration `mapstructure:"time_window"`
}

// dedupEntry is the deduplicator's record for one fingerprint.
type dedupEntry struct {
	fingerprint string
	first       *Event
	count       int
	windowStart time.Time

	// unsent counts occurrences that arrived after first was sealed
	// for delivery.
	unsent int
}

// Correction reports occurrences that could not be folded into an
// already-delivered event before its window closed.
type Correction struct {
	Original *Event
	Total    int
	Delta    int
}

// Deduplicator tracks recent fingerprints. It is safe for concurrent
// use; the pipeline goroutine and the sweep task share it.
type Deduplicator struct {
	mu          sync.Mutex
	cache       *lru.Cache[string, *dedupEntry]
	window      time.Duration
	corrections []Correction
}

// NewDeduplicator creates a Deduplicator. Non-positive settings fall
// back to 100 entries and a 5s window.
func NewDeduplicator(cfg DedupConfig) *Deduplicator {
	if cfg.MaxCacheSize <= 0 {
		cfg.MaxCacheSize = 100
	}
	if cfg.TimeWindow <= 0 {
		cfg.TimeWindow = 5 * time.Second
	}
	d := &Deduplicator{window: cfg.TimeWindow}
	// NewWithEvict only fails for a non-positive size.
	d.cache, _ = lru.NewWithEvict(cfg.MaxCacheSize, d.onEvict)
	return d
}

// onEvict runs inside cache mutations, which only happen while d.mu is
// held.
func (d *Deduplicator) onEvict(_ string, e *dedupEntry) {
	if e.first == nil || e.unsent == 0 {
		return
	}
	d.corrections = append(d.corrections, Correction{
		Original: e.first,
		Total:    e.count,
		Delta:    e.unsent,
	})
}

// Admit records one occurrence of fingerprint at now. It returns true
// when the occurrence is a duplicate inside an open window and must be
// suppressed. A first occurrence opens a window; the caller attaches the
// event it emits with Attach.
func (d *Deduplicator) Admit(fingerprint string, now time.Time) (suppressed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.cache.Get(fingerprint); ok {
		if now.Sub(e.windowStart) < d.window {
			e.count++
			if e.first != nil && !e.first.dedup.add() {
				e.unsent++
			}
			return true
		}
		d.cache.Remove(fingerprint)
	}

	d.cache.Add(fingerprint, &dedupEntry{
		fingerprint: fingerprint,
		count:       1,
		windowStart: now,
	})
	return false
}

// Attach binds the emitted first occurrence to its open window so
// later duplicates can update its count. Events whose window has
// already been evicted keep a count of one.
func (d *Deduplicator) Attach(fingerprint string, event *Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if event.dedup == nil {
		event.dedup = newDedupCounter()
	}
	if e, ok := d.cache.Peek(fingerprint); ok && e.first == nil {
		e.first = event
		// Duplicates that arrived between Admit and Attach.
		for i := 1; i < e.count; i++ {
			event.dedup.add()
		}
	}
}

// Sweep closes every window that has expired by now.
func (d *Deduplicator) Sweep(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, key := range d.cache.Keys() {
		if e, ok := d.cache.Peek(key); ok && now.Sub(e.windowStart) >= d.window {
			d.cache.Remove(key)
		}
	}
}

// CloseAll closes every open window, oldest first, turning unsent
// duplicates into corrections.
func (d *Deduplicator) CloseAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, key := range d.cache.Keys() {
		d.cache.Remove(key)
	}
}

// TakeCorrections returns and clears the pending corrections.
func (d *Deduplicator) TakeCorrections() []Correction {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.corrections
	d.corrections = nil
	return out
}

// Len returns the number of tracked fingerprints.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cache.Len()
}
