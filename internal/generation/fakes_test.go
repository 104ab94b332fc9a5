package generation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-ads/wizard/internal/models"
	"github.com/aura-ads/wizard/pkg/queue"
)

type memStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.GenerationJob
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[uuid.UUID]*models.GenerationJob)}
}

func (s *memStore) Create(_ context.Context, job *models.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.Status = models.JobQueued
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) update(id uuid.UUID, fn func(j *models.GenerationJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	fn(j)
	return nil
}

func (s *memStore) MarkRunning(_ context.Context, id uuid.UUID, attempts int) error {
	return s.update(id, func(j *models.GenerationJob) {
		j.Status = models.JobRunning
		j.Attempts = attempts
	})
}

func (s *memStore) Complete(_ context.Context, id uuid.UUID, result []byte, archiveKey string) error {
	return s.update(id, func(j *models.GenerationJob) {
		j.Status = models.JobCompleted
		j.Result = append([]byte(nil), result...)
		j.ArchiveKey = archiveKey
	})
}

func (s *memStore) Fail(_ context.Context, id uuid.UUID, reason string) error {
	return s.update(id, func(j *models.GenerationJob) {
		j.Status = models.JobFailed
		j.Error = reason
	})
}

type stubQueue struct {
	mu         sync.Mutex
	enqueued   []queue.GenerationPayload
	enqueueErr error
}

func (q *stubQueue) EnqueueGeneration(_ context.Context, p queue.GenerationPayload) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, p)
	return nil
}

type fakePresigner struct{}

func (fakePresigner) GeneratePresignedDownloadURL(_ context.Context, key string) (string, error) {
	return "https://archive.test/" + key + "?sig=1", nil
}
