// offline.go holds batches that failed delivery until they can be
// resent.

package beacon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/strongdm/ai-beacon/pkg/beacon/clock"
)

// OfflineRecord is a failed batch waiting for redelivery.
type OfflineRecord struct {
	Batch      Batch
	EnqueuedAt time.Time
	Attempts   int
}

// OfflinePersister snapshots the offline store so it survives restarts.
type OfflinePersister interface {
	// Save replaces the stored snapshot.
	Save(records []OfflineRecord) error
	// Load returns the last snapshot, oldest first.
	Load() ([]OfflineRecord, error)
}

// OfflineStore is a FIFO of failed batches bounded by the total number
// of events it holds. When full, the oldest data is evicted; the newest
// is always kept.
type OfflineStore struct {
	clock       clock.Clock
	logger      *zap.Logger
	metrics     *pipelineMetrics
	persister   OfflinePersister
	capacity    int
	maxAttempts int

	mu       sync.Mutex
	records  []*OfflineRecord
	events   int
	draining bool
}

// newOfflineStore creates a store holding at most capacity events.
// maxAttempts of zero retries forever.
func newOfflineStore(clk clock.Clock, logger *zap.Logger, metrics *pipelineMetrics, capacity, maxAttempts int, persister OfflinePersister) *OfflineStore {
	return &OfflineStore{
		clock:       clk,
		logger:      logger,
		metrics:     metrics,
		persister:   persister,
		capacity:    capacity,
		maxAttempts: maxAttempts,
	}
}

// restore loads the persisted snapshot, applying the capacity bound.
func (s *OfflineStore) restore() error {
	if s.persister == nil {
		return nil
	}
	loaded, err := s.persister.Load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range loaded {
		rec := loaded[i]
		if rec.Batch.Len() == 0 {
			continue
		}
		s.records = append(s.records, &rec)
		s.events += rec.Batch.Len()
		s.metrics.offlineDelta(rec.Batch.Len())
	}
	s.evictLocked()
	if len(s.records) > 0 {
		s.logger.Info("restored offline batches",
			zap.Int("batches", len(s.records)),
			zap.Int("events", s.events))
	}
	return nil
}

// Enqueue appends a failed batch, evicting the oldest events if the
// store would exceed its capacity.
func (s *OfflineStore) Enqueue(batch Batch) {
	if batch.Len() == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, &OfflineRecord{
		Batch:      batch,
		EnqueuedAt: s.clock.Now(),
	})
	s.events += batch.Len()
	s.metrics.offlineDelta(batch.Len())
	s.evictLocked()
	s.saveLocked()
}

func (s *OfflineStore) evictLocked() {
	evicted := 0
	for s.events > s.capacity && len(s.records) > 0 {
		front := s.records[0]
		excess := s.events - s.capacity
		if excess >= front.Batch.Len() {
			s.records[0] = nil
			s.records = s.records[1:]
			s.events -= front.Batch.Len()
			evicted += front.Batch.Len()
			continue
		}
		front.Batch = front.Batch.newest(front.Batch.Len() - excess)
		s.events -= excess
		evicted += excess
	}
	if evicted > 0 {
		s.metrics.offlineDelta(-evicted)
		s.metrics.eventsDropped(ReasonQueueOverflow, evicted)
		s.logger.Warn("offline store full, evicted oldest events",
			zap.Error(ErrQueueOverflow),
			zap.Int("evicted", evicted),
			zap.Int("capacity", s.capacity))
	}
}

// DrainAttempt resends stored batches oldest first. Each success removes
// its record. The first failure increments that record's attempts and
// ends the attempt; the record stays at the front for the next one.
// Concurrent calls return immediately.
func (s *OfflineStore) DrainAttempt(ctx context.Context, send func(context.Context, Batch) error) (sent int, err error) {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return 0, nil
	}
	s.draining = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.draining = false
		s.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		s.mu.Lock()
		if len(s.records) == 0 {
			s.mu.Unlock()
			return sent, nil
		}
		rec := s.records[0]
		batch := rec.Batch
		s.mu.Unlock()

		sendErr := send(ctx, batch)

		s.mu.Lock()
		if sendErr != nil {
			rec.Attempts++
			s.logger.Debug("offline resend failed",
				zap.String("tier", string(batch.Tier)),
				zap.Int("batch_size", batch.Len()),
				zap.Int("attempts", rec.Attempts),
				zap.Error(sendErr))
			if s.maxAttempts > 0 && rec.Attempts >= s.maxAttempts {
				if s.removeLocked(rec) {
					s.metrics.eventsDropped(ReasonRetryExhausted, rec.Batch.Len())
					s.logger.Warn("dropping offline batch after max retry attempts",
						zap.String("tier", string(batch.Tier)),
						zap.Int("batch_size", rec.Batch.Len()),
						zap.Int("attempts", rec.Attempts))
				}
			}
			s.saveLocked()
			s.mu.Unlock()
			return sent, sendErr
		}

		// The record may have been trimmed or evicted while sending; the
		// events that were sent are gone either way.
		if s.removeLocked(rec) {
			sent += batch.Len()
		}
		s.saveLocked()
		s.mu.Unlock()
	}
}

func (s *OfflineStore) removeLocked(rec *OfflineRecord) bool {
	for i, r := range s.records {
		if r == rec {
			s.records = append(s.records[:i], s.records[i+1:]...)
			s.events -= rec.Batch.Len()
			s.metrics.offlineDelta(-rec.Batch.Len())
			return true
		}
	}
	return false
}

func (s *OfflineStore) saveLocked() {
	if s.persister == nil {
		return
	}
	snapshot := make([]OfflineRecord, len(s.records))
	for i, r := range s.records {
		snapshot[i] = *r
	}
	if err := s.persister.Save(snapshot); err != nil {
		s.logger.Warn("failed to persist offline store", zap.Error(err))
	}
}

// Len returns the number of stored batches.
func (s *OfflineStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Events returns the number of stored events.
func (s *OfflineStore) Events() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// Snapshot returns a copy of the stored records, oldest first.
func (s *OfflineStore) Snapshot() []OfflineRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OfflineRecord, len(s.records))
	for i, r := range s.records {
		out[i] = *r
	}
	return out
}
