package jobstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/novahealth/nova/pkg/transcript"
)

// MemoryStore is an in-process Store used when no database DSN is
// configured. Jobs are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]*Job)}
}

// Create implements [Store].
func (s *MemoryStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	j := *job
	j.CreatedAt = now
	j.UpdatedAt = now
	s.jobs[j.ID] = &j

	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

// Get implements [Store]. The returned job is a copy; mutating it does not
// affect the stored state.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

// MarkProcessing implements [Store].
func (s *MemoryStore) MarkProcessing(_ context.Context, id uuid.UUID) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusProcessing
	})
}

// Complete implements [Store].
func (s *MemoryStore) Complete(_ context.Context, id uuid.UUID, result *transcript.Result, decisions []*transcript.Decision) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.Result = result
		j.Decisions = decisions
		j.Error = ""
	})
}

// Fail implements [Store].
func (s *MemoryStore) Fail(_ context.Context, id uuid.UUID, cause string) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = cause
	})
}

// List implements [Store].
func (s *MemoryStore) List(_ context.Context, limit int) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) update(id uuid.UUID, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	fn(j)
	j.UpdatedAt = time.Now().UTC()
	return nil
}
