package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-ads/wizard/internal/generation"
	"github.com/aura-ads/wizard/internal/models"
	"github.com/aura-ads/wizard/internal/realtime"
	"github.com/aura-ads/wizard/pkg/queue"
	"github.com/aura-ads/wizard/pkg/storage"
)

type memStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.GenerationJob
}

func (s *memStore) Create(_ context.Context, job *models.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs == nil {
		s.jobs = make(map[uuid.UUID]*models.GenerationJob)
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.Status = models.JobQueued
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, generation.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) update(id uuid.UUID, fn func(j *models.GenerationJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return generation.ErrJobNotFound
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

type stubGenerator struct {
	raw []byte
	err error
}

func (g stubGenerator) GenerateStructure(context.Context, models.GenerationRequest) ([]byte, error) {
	return g.raw, g.err
}

type stubQueue struct {
	retried      int
	deadLetterAt int
	retryErr     error
}

func (q *stubQueue) Dequeue(context.Context) (*queue.Job, error) { return nil, nil }

func (q *stubQueue) Retry(_ context.Context, job *queue.Job) (bool, error) {
	q.retried++
	if q.retryErr != nil {
		return false, q.retryErr
	}
	job.Attempt++
	return q.deadLetterAt > 0 && job.Attempt >= q.deadLetterAt, nil
}

type recordingPublisher struct {
	events []realtime.GenerationEvent
}

func (p *recordingPublisher) PublishGeneration(_ context.Context, ev realtime.GenerationEvent) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type memArchive struct {
	objects map[string][]byte
}

func (a *memArchive) ArchiveJSON(_ context.Context, key string, raw []byte) error {
	if a.objects == nil {
		a.objects = make(map[string][]byte)
	}
	a.objects[key] = raw
	return nil
}

const generatedSale = `{
	"campaign_name": "Sale",
	"budget_recommendation": 25,
	"ad_groups": [{
		"name": "Shoes",
		"assets": {
			"headlines": ["Running Shoes On Sale", "  Free Shipping  ", "", "Shop The Biggest Shoe Sale Of The Entire Year Now"],
			"descriptions": ["Find your next pair of running shoes today.", "Order now and save up to 50 percent."]
		}
	}]
}`

func seedJob(t *testing.T, store *memStore, userID uuid.UUID) (*models.GenerationJob, *queue.Job) {
	t.Helper()
	gj := &models.GenerationJob{UserID: userID, Request: models.GenerationRequest{
		LandingPageURL: "https://shop.example.com",
		Keywords:       []string{"running shoes"},
		Language:       "en",
	}}
	require.NoError(t, store.Create(context.Background(), gj))
	job, err := queue.NewJob(queue.JobTypeGeneration, queue.GenerationPayload{JobID: gj.ID, UserID: userID})
	require.NoError(t, err)
	return gj, job
}

func TestProcessCompletesJob(t *testing.T) {
	store := &memStore{}
	pub := &recordingPublisher{}
	archive := &memArchive{}
	p := NewGenerationProcessor(store, stubGenerator{raw: []byte(generatedSale)}, &stubQueue{}, pub, archive, nil)
	userID := uuid.New()
	gj, job := seedJob(t, store, userID)

	require.NoError(t, p.Process(context.Background(), job))

	got, err := store.GetByID(context.Background(), gj.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, storage.ArchiveKey(userID.String(), gj.ID.String()), got.ArchiveKey)
	assert.Equal(t, []byte(generatedSale), archive.objects[got.ArchiveKey])

	var cs models.CampaignStructure
	require.NoError(t, json.Unmarshal(got.Result, &cs))
	assert.Equal(t, "Sale", cs.CampaignName)
	require.NotNil(t, cs.Language)
	assert.Equal(t, "en", *cs.Language)
	heads := cs.AdGroups[0].Assets.Headlines
	require.Len(t, heads, 3)
	assert.Equal(t, "Free Shipping", heads[1])
	assert.LessOrEqual(t, models.DisplayWidth(heads[2]), models.MaxHeadlineWidth)

	assert.Equal(t, []string{
		realtime.EventGenerationProgress,
		realtime.EventGenerationProgress,
		realtime.EventGenerationProgress,
		realtime.EventStructureReady,
	}, pub.types())
	assert.Equal(t, 10, pub.events[0].Progress)
	assert.Equal(t, 70, pub.events[1].Progress)
	assert.Equal(t, 90, pub.events[2].Progress)
	assert.Equal(t, userID, pub.events[3].UserID)
	assert.JSONEq(t, string(got.Result), string(pub.events[3].Structure))
}

func TestProcessWithoutArchiver(t *testing.T) {
	store := &memStore{}
	p := NewGenerationProcessor(store, stubGenerator{raw: []byte(generatedSale)}, &stubQueue{}, &recordingPublisher{}, nil, nil)
	gj, job := seedJob(t, store, uuid.New())

	require.NoError(t, p.Process(context.Background(), job))
	got, _ := store.GetByID(context.Background(), gj.ID)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Empty(t, got.ArchiveKey)
}

func TestProcessSkipsFinishedJob(t *testing.T) {
	store := &memStore{}
	pub := &recordingPublisher{}
	p := NewGenerationProcessor(store, stubGenerator{err: errors.New("must not be called")}, &stubQueue{}, pub, nil, nil)
	gj, job := seedJob(t, store, uuid.New())
	require.NoError(t, store.Complete(context.Background(), gj.ID, []byte(`{}`), ""))

	require.NoError(t, p.Process(context.Background(), job))
	assert.Empty(t, pub.types())
}

func TestTransientFailureIsRetried(t *testing.T) {
	store := &memStore{}
	pub := &recordingPublisher{}
	q := &stubQueue{deadLetterAt: queue.MaxRetries}
	p := NewGenerationProcessor(store, stubGenerator{err: errors.New("gemini status 503")}, q, pub, nil, nil)
	gj, job := seedJob(t, store, uuid.New())

	err := p.Process(context.Background(), job)
	require.Error(t, err)
	assert.False(t, p.HandleFailure(context.Background(), job, err))
	assert.Equal(t, 1, q.retried)

	got, _ := store.GetByID(context.Background(), gj.ID)
	assert.Equal(t, models.JobRunning, got.Status)
	assert.NotContains(t, pub.types(), realtime.EventGenerationFailed)
}

func TestExhaustedRetriesFailJob(t *testing.T) {
	store := &memStore{}
	pub := &recordingPublisher{}
	q := &stubQueue{deadLetterAt: queue.MaxRetries}
	p := NewGenerationProcessor(store, stubGenerator{raw: []byte("not json")}, q, pub, nil, nil)
	gj, job := seedJob(t, store, uuid.New())
	job.Attempt = queue.MaxRetries - 1

	err := p.Process(context.Background(), job)
	require.Error(t, err)
	assert.True(t, p.HandleFailure(context.Background(), job, err))

	got, _ := store.GetByID(context.Background(), gj.ID)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.True(t, strings.HasPrefix(got.Error, "decode structure"))
	types := pub.types()
	assert.Equal(t, realtime.EventGenerationFailed, types[len(types)-1])
	assert.Equal(t, gj.ID, pub.events[len(pub.events)-1].JobID)
}

func TestRequeueFailureFailsJob(t *testing.T) {
	store := &memStore{}
	pub := &recordingPublisher{}
	q := &stubQueue{retryErr: errors.New("redis down")}
	p := NewGenerationProcessor(store, stubGenerator{err: errors.New("gemini status 503")}, q, pub, nil, nil)
	userID := uuid.New()
	gj, job := seedJob(t, store, userID)

	err := p.Process(context.Background(), job)
	require.Error(t, err)
	assert.True(t, p.HandleFailure(context.Background(), job, err))
	assert.Equal(t, 1, q.retried)

	got, _ := store.GetByID(context.Background(), gj.ID)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Contains(t, got.Error, "gemini status 503")
	assert.Contains(t, got.Error, "redis down")

	last := pub.events[len(pub.events)-1]
	assert.Equal(t, realtime.EventGenerationFailed, last.Type)
	assert.Equal(t, userID, last.UserID)
	assert.Equal(t, gj.ID, last.JobID)
}

func TestUnusableStructureFailsWithoutRetry(t *testing.T) {
	store := &memStore{}
	pub := &recordingPublisher{}
	q := &stubQueue{}
	p := NewGenerationProcessor(store, stubGenerator{raw: []byte(`{"campaign_name":"Sale","ad_groups":[]}`)}, q, pub, nil, nil)
	gj, job := seedJob(t, store, uuid.New())

	err := p.Process(context.Background(), job)
	require.ErrorIs(t, err, generation.ErrUnusableStructure)
	assert.True(t, p.HandleFailure(context.Background(), job, err))
	assert.Zero(t, q.retried)

	got, _ := store.GetByID(context.Background(), gj.ID)
	assert.Equal(t, models.JobFailed, got.Status)
}

func TestProcessRejectsUnknownJob(t *testing.T) {
	p := NewGenerationProcessor(&memStore{}, stubGenerator{}, &stubQueue{}, &recordingPublisher{}, nil, nil)

	err := p.Process(context.Background(), &queue.Job{Type: "recording_upload"})
	assert.ErrorIs(t, err, ErrPermanent)

	job, err := queue.NewJob(queue.JobTypeGeneration, queue.GenerationPayload{JobID: uuid.New(), UserID: uuid.New()})
	require.NoError(t, err)
	assert.ErrorIs(t, p.Process(context.Background(), job), ErrPermanent)
}

func TestRunStopsOnCancel(t *testing.T) {
	p := NewGenerationProcessor(&memStore{}, stubGenerator{}, &stubQueue{}, &recordingPublisher{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	<-done
}
