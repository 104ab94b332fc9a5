package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-ads/wizard/internal/generation"
	"github.com/aura-ads/wizard/internal/models"
	"github.com/aura-ads/wizard/internal/realtime"
	"github.com/aura-ads/wizard/pkg/queue"
	"github.com/aura-ads/wizard/pkg/storage"
)

// ErrPermanent marks failures that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

// Progress milestones published while a job runs.
const (
	progressStarted   = 10
	progressGenerated = 70
	progressValidated = 90
)

// JobQueue is the worker side of the job queue.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (deadLettered bool, err error)
}

// Publisher sends generation events to API servers.
type Publisher interface {
	PublishGeneration(ctx context.Context, ev realtime.GenerationEvent) error
}

// Archiver stores raw generator output.
type Archiver interface {
	ArchiveJSON(ctx context.Context, key string, raw []byte) error
}

// GenerationProcessor runs generation jobs: call the generator, archive the raw answer,
// auto-correct and validate the structure, store it and announce it.
type GenerationProcessor struct {
	store     generation.JobStore
	generator generation.Generator
	queue     JobQueue
	publisher Publisher
	archiver  Archiver
	backoff   time.Duration
	logger    *zap.Logger
}

// NewGenerationProcessor creates a generation processor. archiver may be nil to skip archiving.
func NewGenerationProcessor(store generation.JobStore, generator generation.Generator, q JobQueue, publisher Publisher, archiver Archiver, logger *zap.Logger) *GenerationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationProcessor{
		store:     store,
		generator: generator,
		queue:     q,
		publisher: publisher,
		archiver:  archiver,
		backoff:   queue.RetryBackoff,
		logger:    logger,
	}
}

// Process executes one generation job.
func (p *GenerationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeGeneration {
		return fmt.Errorf("%w: unknown job type %s", ErrPermanent, job.Type)
	}
	var payload queue.GenerationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: unmarshal payload: %v", ErrPermanent, err)
	}

	gj, err := p.store.GetByID(ctx, payload.JobID)
	if errors.Is(err, generation.ErrJobNotFound) {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	if err != nil {
		return err
	}
	if gj.Status == models.JobCompleted || gj.Status == models.JobFailed {
		p.logger.Info("generation job already finished", zap.String("generation_id", gj.ID.String()), zap.String("status", string(gj.Status)))
		return nil
	}
	log := p.logger.With(zap.String("generation_id", gj.ID.String()), zap.String("user_id", gj.UserID.String()))

	if err := p.store.MarkRunning(ctx, gj.ID, job.Attempt+1); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	p.progress(ctx, gj, progressStarted)

	raw, err := p.generator.GenerateStructure(ctx, gj.Request)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	archiveKey := ""
	if p.archiver != nil {
		key := storage.ArchiveKey(gj.UserID.String(), gj.ID.String())
		if err := p.archiver.ArchiveJSON(ctx, key, raw); err != nil {
			log.Warn("archive raw generation failed", zap.Error(err))
		} else {
			archiveKey = key
		}
	}
	p.progress(ctx, gj, progressGenerated)

	var cs models.CampaignStructure
	if err := json.Unmarshal(raw, &cs); err != nil {
		return fmt.Errorf("decode structure: %w", err)
	}
	if cs.Language == nil && gj.Request.Language != "" {
		lang := gj.Request.Language
		cs.Language = &lang
	}
	warnings, err := generation.Normalize(&cs)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		log.Warn("generated assets need review", zap.String("issue", w))
	}
	if err := cs.Validate(); err != nil {
		return err
	}
	p.progress(ctx, gj, progressValidated)

	result, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("marshal structure: %w", err)
	}
	if err := p.store.Complete(ctx, gj.ID, result, archiveKey); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if err := p.publisher.PublishGeneration(ctx, realtime.GenerationEvent{
		Type:      realtime.EventStructureReady,
		UserID:    gj.UserID,
		JobID:     gj.ID,
		Structure: result,
	}); err != nil {
		log.Error("publish structure_ready failed", zap.Error(err))
	}
	log.Info("generation completed", zap.Int("ad_groups", len(cs.AdGroups)), zap.Int("warnings", len(warnings)))
	return nil
}

func (p *GenerationProcessor) progress(ctx context.Context, gj *models.GenerationJob, pct int) {
	err := p.publisher.PublishGeneration(ctx, realtime.GenerationEvent{
		Type:     realtime.EventGenerationProgress,
		UserID:   gj.UserID,
		JobID:    gj.ID,
		Progress: pct,
	})
	if err != nil {
		p.logger.Warn("publish progress failed", zap.Error(err), zap.String("generation_id", gj.ID.String()))
	}
}

// HandleFailure retries a failed job, or marks it failed and announces it when retrying is
// pointless, exhausted or impossible because the job could not be requeued. It reports
// whether the job reached a terminal state.
func (p *GenerationProcessor) HandleFailure(ctx context.Context, job *queue.Job, cause error) bool {
	terminal := errors.Is(cause, ErrPermanent) || errors.Is(cause, generation.ErrUnusableStructure) || errors.Is(cause, models.ErrInvalidStructure)
	if !terminal {
		deadLettered, err := p.queue.Retry(ctx, job)
		if err != nil {
			// the job left the queue on dequeue; nobody would pick it up again
			p.logger.Error("retry enqueue failed", zap.Error(err), zap.String("job_id", job.ID))
			cause = fmt.Errorf("%w (requeue failed: %v)", cause, err)
		} else if !deadLettered {
			return false
		}
	}

	var payload queue.GenerationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return true
	}
	if err := p.store.Fail(ctx, payload.JobID, cause.Error()); err != nil && !errors.Is(err, generation.ErrJobNotFound) {
		p.logger.Error("mark job failed", zap.Error(err), zap.String("generation_id", payload.JobID.String()))
	}
	if err := p.publisher.PublishGeneration(ctx, realtime.GenerationEvent{
		Type:   realtime.EventGenerationFailed,
		UserID: payload.UserID,
		JobID:  payload.JobID,
		Error:  cause.Error(),
	}); err != nil {
		p.logger.Error("publish generation_failed failed", zap.Error(err))
	}
	return true
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *GenerationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("generation worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if !p.HandleFailure(ctx, job, err) {
				p.sleep(ctx)
			}
		}
	}
}

func (p *GenerationProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
