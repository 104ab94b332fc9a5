package generation

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/aura-ads/wizard/internal/models"
	"github.com/aura-ads/wizard/internal/realtime"
	"github.com/aura-ads/wizard/internal/wizard"
)

// Subscriber delivers generation events published by workers.
type Subscriber interface {
	SubscribeGeneration(ctx context.Context, handler func(realtime.GenerationEvent)) (cancel func(), err error)
}

// Listener applies worker events to the users' wizard states on an API server.
type Listener struct {
	registry *wizard.Registry
	logger   *zap.Logger
}

// NewListener creates a listener over registry.
func NewListener(registry *wizard.Registry, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{registry: registry, logger: logger}
}

// Start subscribes to generation events until ctx is done.
func (l *Listener) Start(ctx context.Context, sub Subscriber) (cancel func(), err error) {
	return sub.SubscribeGeneration(ctx, l.Handle)
}

// Handle applies one event to the user's draft. Events for users without a draft on
// this server, or for a generation the draft no longer waits for, are ignored.
func (l *Listener) Handle(ev realtime.GenerationEvent) {
	log := l.logger.With(zap.String("user_id", ev.UserID.String()), zap.String("generation_id", ev.JobID.String()))
	state, ok := l.registry.Lookup(ev.UserID)
	if !ok {
		log.Debug("no draft for generation event", zap.String("type", ev.Type))
		return
	}

	var err error
	switch ev.Type {
	case realtime.EventGenerationProgress:
		err = state.ApplyGenerationProgress(ev.JobID, ev.Progress)
	case realtime.EventStructureReady:
		var cs models.CampaignStructure
		if derr := json.Unmarshal(ev.Structure, &cs); derr != nil {
			log.Error("decode generated structure", zap.Error(derr))
			err = state.AbortGeneration(ev.JobID)
			break
		}
		err = state.FinishGeneration(ev.JobID, &cs)
		if err == nil {
			log.Info("generated structure loaded", zap.Int("ad_groups", len(cs.AdGroups)))
		}
	case realtime.EventGenerationFailed:
		log.Warn("generation failed", zap.String("error", ev.Error))
		err = state.AbortGeneration(ev.JobID)
	default:
		log.Warn("unknown generation event", zap.String("type", ev.Type))
		return
	}

	switch {
	case errors.Is(err, wizard.ErrStaleGeneration):
		log.Info("ignoring event of inactive generation", zap.String("type", ev.Type))
	case err != nil:
		log.Error("generated structure rejected", zap.Error(err))
	}
}
