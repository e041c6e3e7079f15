package conversions

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	job       Job
	expiresAt time.Time
}

// MemoryStatusStore is a process-local StatusStore with expiry.
type MemoryStatusStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryStatusStore returns a store whose entries expire after ttl.
func NewMemoryStatusStore(ttl time.Duration) *MemoryStatusStore {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &MemoryStatusStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryStatusStore) Put(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
		}
	}
	s.entries[job.ID] = memoryEntry{job: job, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStatusStore) Get(_ context.Context, jobID string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[jobID]
	if !ok || s.now().After(e.expiresAt) {
		return Job{}, ErrJobNotFound
	}
	return e.job, nil
}

var _ StatusStore = (*MemoryStatusStore)(nil)
