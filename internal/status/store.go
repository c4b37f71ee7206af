// Package status holds the short-lived job status cache shared by the
// invoker, the status query service and the stream broker.
package status

import (
	"context"
	"errors"
	"sync"
	"time"

	"intake-pipeline/backend/pkg/models"
)

var (
	// ErrNotFound is returned by Update when no live entry exists for the job.
	ErrNotFound = errors.New("status entry not found")
	// ErrTerminal is returned by Update when the entry already reached success or failed.
	ErrTerminal = errors.New("status entry is terminal")
)

// Store is the narrow contract every status consumer depends on.
type Store interface {
	// Put overwrites the entry for jobID and resets its TTL.
	Put(jobID string, st models.PipelineStatus)
	// Get returns the live entry for jobID. Expired entries are reported absent.
	Get(jobID string) (models.PipelineStatus, bool)
	// Remove drops the entry for jobID.
	Remove(jobID string)
	// Update mutates a live, non-terminal entry in place and resets its TTL.
	Update(jobID string, fn func(*models.PipelineStatus)) error
}

// MemoryStore is a mutex-guarded map with per-entry expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.PipelineStatus
	ttl     time.Duration
	now     func() time.Time
}

type Option func(*MemoryStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates a store whose entries live for ttl after their last write.
func NewMemoryStore(ttl time.Duration, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]models.PipelineStatus),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *MemoryStore) Put(jobID string, st models.PipelineStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.JobID = jobID
	st.ExpiresAt = s.now().Add(s.ttl)
	s.entries[jobID] = st
}

func (s *MemoryStore) Get(jobID string) (models.PipelineStatus, bool) {
	s.mu.RLock()
	st, ok := s.entries[jobID]
	s.mu.RUnlock()

	if !ok {
		return models.PipelineStatus{}, false
	}
	if !s.now().Before(st.ExpiresAt) {
		s.evict(jobID, st.ExpiresAt)
		return models.PipelineStatus{}, false
	}
	return st, true
}

func (s *MemoryStore) Remove(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, jobID)
}

// Update applies fn to a copy of the current entry. Progress never moves
// backwards while the job stays in processing.
func (s *MemoryStore) Update(jobID string, fn func(*models.PipelineStatus)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[jobID]
	if !ok || !s.now().Before(cur.ExpiresAt) {
		delete(s.entries, jobID)
		return ErrNotFound
	}
	if cur.Status.IsTerminal() {
		return ErrTerminal
	}

	next := cur
	fn(&next)

	if next.Status == models.StatusProcessing && cur.Status == models.StatusProcessing &&
		next.Progress < cur.Progress {
		next.Progress = cur.Progress
	}
	next.Progress = clamp(next.Progress)
	next.JobID = jobID
	next.ExpiresAt = s.now().Add(s.ttl)
	s.entries[jobID] = next
	return nil
}

// Len reports the number of entries, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep evicts every expired entry and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, st := range s.entries {
		if !now.Before(st.ExpiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps on every interval until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// evict removes jobID only if it still holds the expired value we observed,
// so a concurrent Put is never lost.
func (s *MemoryStore) evict(jobID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[jobID]; ok && cur.ExpiresAt.Equal(expiresAt) {
		delete(s.entries, jobID)
	}
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
