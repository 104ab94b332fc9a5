package wizard

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier pushes a state event to a user's connected clients.
type Notifier interface {
	SendToUser(userID uuid.UUID, event string, seq uint64, payload interface{})
}

// Registry holds one wizard State per user (thread-safe).
type Registry struct {
	mu       sync.RWMutex
	states   map[uuid.UUID]*State
	cancels  map[uuid.UUID]func()
	defaults Defaults
	notifier Notifier
	logger   *zap.Logger
}

// NewRegistry creates a registry. notifier may be nil.
func NewRegistry(defaults Defaults, notifier Notifier, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		states:   make(map[uuid.UUID]*State),
		cancels:  make(map[uuid.UUID]func()),
		defaults: defaults,
		notifier: notifier,
		logger:   logger,
	}
}

// Get returns the user's state, creating a fresh one on first use.
func (reg *Registry) Get(userID uuid.UUID) *State {
	reg.mu.RLock()
	s := reg.states[userID]
	reg.mu.RUnlock()
	if s != nil {
		return s
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if s = reg.states[userID]; s != nil {
		return s
	}
	s = NewState(reg.defaults, reg.logger.With(zap.String("user_id", userID.String())))
	if reg.notifier != nil {
		notifier := reg.notifier
		reg.cancels[userID] = s.Subscribe(func(ev Event) {
			notifier.SendToUser(userID, string(ev.Type), ev.Seq, ev.Draft)
		})
	}
	reg.states[userID] = s
	reg.logger.Debug("wizard state created", zap.String("user_id", userID.String()))
	return s
}

// Lookup returns the user's state without creating one.
func (reg *Registry) Lookup(userID uuid.UUID) (*State, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	s, ok := reg.states[userID]
	return s, ok
}

// Discard drops the user's state and detaches its notifier.
func (reg *Registry) Discard(userID uuid.UUID) {
	reg.mu.Lock()
	cancel := reg.cancels[userID]
	delete(reg.cancels, userID)
	delete(reg.states, userID)
	reg.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Len returns the number of live drafts.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.states)
}
