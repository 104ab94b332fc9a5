package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// GenerationChannel carries generation events from workers to API servers.
	GenerationChannel = "wizard:generation"
	publishTimeout    = 5 * time.Second
)

// Generation event types.
const (
	EventGenerationProgress = "generation_progress"
	EventStructureReady     = "structure_ready"
	EventGenerationFailed   = "generation_failed"
)

// GenerationEvent is published on GenerationChannel.
type GenerationEvent struct {
	Type      string          `json:"type"`
	UserID    uuid.UUID       `json:"user_id"`
	JobID     uuid.UUID       `json:"job_id"`
	Progress  int             `json:"progress,omitempty"`
	Structure json.RawMessage `json:"structure,omitempty"`
	Error     string          `json:"error,omitempty"`
	At        int64           `json:"at"`
}

// RedisPubSub bridges generation events over Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for generation events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// PublishGeneration publishes ev on GenerationChannel, stamping At when unset.
func (r *RedisPubSub) PublishGeneration(ctx context.Context, ev GenerationEvent) error {
	if ev.At == 0 {
		ev.At = time.Now().Unix()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal generation event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, GenerationChannel, body).Err()
}

// SubscribeGeneration calls handler for every event on GenerationChannel until ctx is
// done or cancel is called. Malformed messages are skipped.
func (r *RedisPubSub) SubscribeGeneration(ctx context.Context, handler func(GenerationEvent)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := r.client.Subscribe(ctx, GenerationChannel)
	if _, err = pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev GenerationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.logger.Warn("invalid generation event", zap.Error(err))
					continue
				}
				handler(ev)
			}
		}
	}()
	return cancelCtx, nil
}
