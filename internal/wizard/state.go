package wizard

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-ads/wizard/config"
	"github.com/aura-ads/wizard/internal/models"
)

// Errors returned by State mutations. A failed mutation leaves the draft unchanged
// and emits no event.
var (
	ErrAdGroupNotFound      = errors.New("ad group not found")
	ErrAssetNotFound        = errors.New("asset not found")
	ErrInvalidReviewState   = errors.New("invalid review state")
	ErrNegativeBudget       = errors.New("budget must not be negative")
	ErrGenerationInProgress = errors.New("generation already in progress")
	// ErrStaleGeneration is returned for results of a generation that is no longer active.
	ErrStaleGeneration = errors.New("generation is not active")
)

// revisions numbers events across all states so that a sequence never restarts,
// even when a user's state is discarded and recreated.
var revisions atomic.Uint64

// Defaults are the values a draft is reset to.
type Defaults struct {
	Language  string
	Locations []string
	Objective string
}

// DefaultsFromConfig maps the wizard config section to Defaults.
func DefaultsFromConfig(c config.WizardConfig) Defaults {
	return Defaults{Language: c.DefaultLanguage, Locations: c.DefaultLocations, Objective: c.DefaultObjective}
}

// Draft is the in-progress campaign held by a State.
type Draft struct {
	CampaignName       string            `json:"campaign_name"`
	Budget             float64           `json:"budget"`
	Language           string            `json:"language"`
	TargetLocations    []string          `json:"target_locations"`
	Objective          string            `json:"objective"`
	AdGroups           []*models.AdGroup `json:"ad_groups"`
	IsGenerating       bool              `json:"is_generating"`
	GenerationProgress int               `json:"generation_progress"`
}

func (d *Draft) clone() Draft {
	c := *d
	c.TargetLocations = append([]string{}, d.TargetLocations...)
	c.AdGroups = make([]*models.AdGroup, len(d.AdGroups))
	for i, g := range d.AdGroups {
		c.AdGroups[i] = g.Clone()
	}
	return c
}

func (d *Draft) adGroup(id string) (*models.AdGroup, int) {
	for i, g := range d.AdGroups {
		if g.ID == id {
			return g, i
		}
	}
	return nil, -1
}

// SettingsPatch carries campaign-level edits. Nil fields are left unchanged.
type SettingsPatch struct {
	CampaignName    *string  `json:"campaign_name"`
	Budget          *float64 `json:"budget"`
	Language        *string  `json:"language"`
	TargetLocations []string `json:"target_locations"`
	Objective       *string  `json:"objective"`
}

// AssetPatch carries edits to a single asset. An empty Pinned string unpins.
type AssetPatch struct {
	Text   *string             `json:"text"`
	State  *models.ReviewState `json:"state"`
	Pinned *string             `json:"pinned"`
}

type subscription struct {
	id int
	fn Observer
}

// State holds one user's wizard draft and notifies observers after every change.
type State struct {
	mu        sync.Mutex
	emitMu    sync.Mutex
	draft     Draft
	seq       uint64
	pending   []Event
	active    uuid.UUID
	defaults  Defaults
	observers []subscription
	nextID    int
	logger    *zap.Logger
}

// NewState creates a state initialised to defaults.
func NewState(defaults Defaults, logger *zap.Logger) *State {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &State{defaults: defaults, logger: logger}
	s.draft = s.initial()
	return s
}

func (s *State) initial() Draft {
	return Draft{
		Language:        s.defaults.Language,
		TargetLocations: append([]string{}, s.defaults.Locations...),
		Objective:       s.defaults.Objective,
		AdGroups:        []*models.AdGroup{},
	}
}

// Subscribe registers an observer. Observers run synchronously in subscription order
// and receive events in mutation order. They may read the state but must not mutate it
// or modify the event's draft. The returned func removes the observer.
func (s *State) Subscribe(fn Observer) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers = append(s.observers, subscription{id: id, fn: fn})
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.observers {
			if sub.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// mutate applies fn under the lock and, when it succeeds, emits one event with the new snapshot.
// Events are queued under mu and drained under emitMu, so observers see them in the
// order the mutations were applied and no goroutine waits for emitMu while holding mu.
// mutate returns only after its own event has been delivered.
func (s *State) mutate(typ EventType, fn func(d *Draft) error) error {
	s.mu.Lock()
	if err := fn(&s.draft); err != nil {
		s.mu.Unlock()
		return err
	}
	s.seq = revisions.Add(1)
	s.pending = append(s.pending, Event{Type: typ, Seq: s.seq, Draft: s.draft.clone()})
	s.mu.Unlock()

	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	observers := append([]subscription(nil), s.observers...)
	s.mu.Unlock()

	for _, ev := range batch {
		for _, sub := range observers {
			sub.fn(ev)
		}
	}
	return nil
}

// Snapshot returns a deep copy of the current draft.
func (s *State) Snapshot() Draft {
	d, _ := s.Versioned()
	return d
}

// Versioned returns a deep copy of the current draft and the Seq of the last event
// emitted for it (0 before the first change).
func (s *State) Versioned() (Draft, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.clone(), s.seq
}

// ActiveGeneration returns the id of the generation job the draft is waiting for.
func (s *State) ActiveGeneration() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.active != uuid.Nil
}

// AdGroup returns a copy of the ad group with the given id.
func (s *State) AdGroup(id string) (*models.AdGroup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, _ := s.draft.adGroup(id)
	if g == nil {
		return nil, false
	}
	return g.Clone(), true
}

// Reset restores every field to its default.
func (s *State) Reset() {
	_ = s.mutate(EventReset, func(d *Draft) error {
		*d = s.initial()
		s.active = uuid.Nil
		return nil
	})
}

// AddAdGroup appends an empty ad group and returns it. The returned group is live
// state; concurrent callers should edit it through UpdateAdGroup.
func (s *State) AddAdGroup(name string) *models.AdGroup {
	g := models.NewAdGroup(models.AdGroupInput{Name: name})
	_ = s.mutate(EventAdGroupAdded, func(d *Draft) error {
		d.AdGroups = append(d.AdGroups, g)
		return nil
	})
	return g
}

// UpdateAdGroup runs fn on the ad group with the given id under the state lock.
func (s *State) UpdateAdGroup(id string, fn func(g *models.AdGroup)) error {
	return s.mutate(EventAdGroupUpdated, func(d *Draft) error {
		g, _ := d.adGroup(id)
		if g == nil {
			return ErrAdGroupNotFound
		}
		fn(g)
		return nil
	})
}

// RemoveAdGroup drops the ad group with the given id together with its assets.
func (s *State) RemoveAdGroup(id string) error {
	return s.mutate(EventAdGroupRemoved, func(d *Draft) error {
		_, i := d.adGroup(id)
		if i < 0 {
			return ErrAdGroupNotFound
		}
		d.AdGroups = append(d.AdGroups[:i], d.AdGroups[i+1:]...)
		return nil
	})
}

// LoadFromStructure replaces the draft's ad groups and campaign name from a generated
// structure. Budget, language and target locations change only when present in cs,
// zero values included.
// An invalid structure is rejected with a *models.StructureError and the draft is untouched.
func (s *State) LoadFromStructure(cs *models.CampaignStructure) error {
	if err := cs.Validate(); err != nil {
		return err
	}
	groups := buildGroups(cs)
	err := s.mutate(EventStructureLoaded, func(d *Draft) error {
		apply(d, cs, groups)
		return nil
	})
	s.logger.Debug("structure loaded", zap.String("campaign_name", cs.CampaignName), zap.Int("ad_groups", len(groups)))
	return err
}

// CompleteGeneration loads a generated structure and clears the generating flag in one step.
// When cs is invalid the flag is still cleared and the validation error is returned.
// Generated assets carry their content hash.
func (s *State) CompleteGeneration(cs *models.CampaignStructure) error {
	return s.finish(uuid.Nil, cs)
}

// FinishGeneration is CompleteGeneration for the result of job jobID. It returns
// ErrStaleGeneration and leaves the draft alone unless jobID is the active generation.
func (s *State) FinishGeneration(jobID uuid.UUID, cs *models.CampaignStructure) error {
	return s.finish(jobID, cs)
}

// finish applies cs; a nil jobID skips the active-job check.
func (s *State) finish(jobID uuid.UUID, cs *models.CampaignStructure) error {
	verr := cs.Validate()
	var groups []*models.AdGroup
	if verr == nil {
		groups = buildGroups(cs)
		for _, g := range groups {
			g.StampHashes()
		}
	}
	typ := EventStructureLoaded
	if verr != nil {
		typ = EventGenerationUpdated
	}
	err := s.mutate(typ, func(d *Draft) error {
		if jobID != uuid.Nil && jobID != s.active {
			return ErrStaleGeneration
		}
		if verr == nil {
			apply(d, cs, groups)
			d.GenerationProgress = 100
		}
		d.IsGenerating = false
		s.active = uuid.Nil
		return nil
	})
	if err != nil {
		return err
	}
	return verr
}

func buildGroups(cs *models.CampaignStructure) []*models.AdGroup {
	inputs := cs.AdGroupInputs()
	groups := make([]*models.AdGroup, 0, len(inputs))
	for _, in := range inputs {
		groups = append(groups, models.NewAdGroup(in))
	}
	return groups
}

func apply(d *Draft, cs *models.CampaignStructure, groups []*models.AdGroup) {
	d.CampaignName = cs.CampaignName
	if cs.BudgetRecommendation != nil {
		d.Budget = *cs.BudgetRecommendation
	}
	if cs.Language != nil {
		d.Language = *cs.Language
	}
	if cs.TargetLocations != nil {
		d.TargetLocations = append([]string{}, cs.TargetLocations...)
	}
	d.AdGroups = groups
}

// UpdateSettings applies a partial edit of the campaign-level settings.
func (s *State) UpdateSettings(p SettingsPatch) error {
	if p.Budget != nil && *p.Budget < 0 {
		return ErrNegativeBudget
	}
	return s.mutate(EventSettingsUpdated, func(d *Draft) error {
		if p.CampaignName != nil {
			d.CampaignName = *p.CampaignName
		}
		if p.Budget != nil {
			d.Budget = *p.Budget
		}
		if p.Language != nil {
			d.Language = *p.Language
		}
		if p.TargetLocations != nil {
			d.TargetLocations = append([]string{}, p.TargetLocations...)
		}
		if p.Objective != nil {
			d.Objective = *p.Objective
		}
		return nil
	})
}

// UpdateAsset edits one asset of one ad group in place.
func (s *State) UpdateAsset(groupID, assetID string, p AssetPatch) error {
	if p.State != nil && !p.State.Valid() {
		return ErrInvalidReviewState
	}
	return s.mutate(EventAssetUpdated, func(d *Draft) error {
		g, _ := d.adGroup(groupID)
		if g == nil {
			return ErrAdGroupNotFound
		}
		a, ok := g.Asset(assetID)
		if !ok {
			return ErrAssetNotFound
		}
		if p.Text != nil {
			a.Text = *p.Text
		}
		if p.State != nil {
			a.State = *p.State
		}
		if p.Pinned != nil {
			a.Pin(*p.Pinned)
		}
		return nil
	})
}

// BeginGeneration marks the draft as generating with zero progress and makes jobID the
// active generation. Only events of the active generation are applied afterwards.
func (s *State) BeginGeneration(jobID uuid.UUID) error {
	return s.mutate(EventGenerationUpdated, func(d *Draft) error {
		if d.IsGenerating {
			return ErrGenerationInProgress
		}
		d.IsGenerating = true
		d.GenerationProgress = 0
		s.active = jobID
		return nil
	})
}

// SetGenerating sets the generating flag. Clearing it also forgets the active generation.
func (s *State) SetGenerating(on bool) {
	_ = s.mutate(EventGenerationUpdated, func(d *Draft) error {
		d.IsGenerating = on
		if !on {
			s.active = uuid.Nil
		}
		return nil
	})
}

// AbortGeneration clears the generating flag after job jobID failed.
func (s *State) AbortGeneration(jobID uuid.UUID) error {
	return s.mutate(EventGenerationUpdated, func(d *Draft) error {
		if jobID != s.active {
			return ErrStaleGeneration
		}
		d.IsGenerating = false
		s.active = uuid.Nil
		return nil
	})
}

// ApplyGenerationProgress is SetGenerationProgress for job jobID.
func (s *State) ApplyGenerationProgress(jobID uuid.UUID, p int) error {
	p = clampProgress(p)
	return s.mutate(EventGenerationUpdated, func(d *Draft) error {
		if jobID != s.active {
			return ErrStaleGeneration
		}
		d.GenerationProgress = p
		return nil
	})
}

// SetGenerationProgress records progress, clamped to 0..100.
func (s *State) SetGenerationProgress(p int) {
	p = clampProgress(p)
	_ = s.mutate(EventGenerationUpdated, func(d *Draft) error {
		d.GenerationProgress = p
		return nil
	})
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
