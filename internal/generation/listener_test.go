package generation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-ads/wizard/internal/realtime"
	"github.com/aura-ads/wizard/internal/wizard"
)

type loopbackBus struct {
	handler func(realtime.GenerationEvent)
}

func (b *loopbackBus) SubscribeGeneration(_ context.Context, h func(realtime.GenerationEvent)) (func(), error) {
	b.handler = h
	return func() { b.handler = nil }, nil
}

func (b *loopbackBus) publish(ev realtime.GenerationEvent) {
	if b.handler != nil {
		b.handler(ev)
	}
}

const readySale = `{
	"campaign_name": "Sale",
	"budget_recommendation": 25,
	"language": "en",
	"ad_groups": [{
		"name": "Shoes",
		"assets": {
			"headlines": ["Running Shoes On Sale", "Free Shipping", "Shop Now"],
			"descriptions": ["Find your next pair of running shoes today.", "Order now and save."]
		}
	}]
}`

func TestListenerAppliesProgressAndStructure(t *testing.T) {
	reg := wizard.NewRegistry(wizard.Defaults{Language: "de"}, nil, nil)
	userID, jobID := uuid.New(), uuid.New()
	state := reg.Get(userID)
	require.NoError(t, state.BeginGeneration(jobID))

	bus := &loopbackBus{}
	cancel, err := NewListener(reg, nil).Start(context.Background(), bus)
	require.NoError(t, err)

	bus.publish(realtime.GenerationEvent{Type: realtime.EventGenerationProgress, UserID: userID, JobID: jobID, Progress: 10})
	assert.Equal(t, 10, state.Snapshot().GenerationProgress)
	assert.True(t, state.Snapshot().IsGenerating)

	bus.publish(realtime.GenerationEvent{Type: realtime.EventStructureReady, UserID: userID, JobID: jobID, Structure: []byte(readySale)})

	draft := state.Snapshot()
	assert.False(t, draft.IsGenerating)
	assert.Equal(t, 100, draft.GenerationProgress)
	assert.Equal(t, "Sale", draft.CampaignName)
	assert.Equal(t, 25.0, draft.Budget)
	assert.Equal(t, "en", draft.Language)
	require.Len(t, draft.AdGroups, 1)
	assert.Len(t, draft.AdGroups[0].Headlines, 3)
	assert.Len(t, draft.AdGroups[0].Descriptions, 2)
	assert.NotEmpty(t, draft.AdGroups[0].Headlines[0].Hash)

	cancel()
	require.NoError(t, state.BeginGeneration(jobID))
	bus.publish(realtime.GenerationEvent{Type: realtime.EventGenerationProgress, UserID: userID, JobID: jobID, Progress: 5})
	assert.Zero(t, state.Snapshot().GenerationProgress)
}

func TestListenerProgressEvent(t *testing.T) {
	reg := wizard.NewRegistry(wizard.Defaults{}, nil, nil)
	userID, jobID := uuid.New(), uuid.New()
	require.NoError(t, reg.Get(userID).BeginGeneration(jobID))
	l := NewListener(reg, nil)

	l.Handle(realtime.GenerationEvent{Type: realtime.EventGenerationProgress, UserID: userID, JobID: jobID, Progress: 70})
	assert.Equal(t, 70, reg.Get(userID).Snapshot().GenerationProgress)
}

func TestListenerSkipsUnknownUsers(t *testing.T) {
	reg := wizard.NewRegistry(wizard.Defaults{}, nil, nil)
	l := NewListener(reg, nil)
	stranger := uuid.New()

	l.Handle(realtime.GenerationEvent{Type: realtime.EventGenerationProgress, UserID: stranger, JobID: uuid.New(), Progress: 70})
	l.Handle(realtime.GenerationEvent{Type: realtime.EventGenerationFailed, UserID: stranger, JobID: uuid.New()})
	l.Handle(realtime.GenerationEvent{Type: realtime.EventStructureReady, UserID: stranger, JobID: uuid.New(), Structure: []byte(readySale)})

	_, ok := reg.Lookup(stranger)
	assert.False(t, ok)
	assert.Zero(t, reg.Len())
}

func TestListenerIgnoresResultOfResetDraft(t *testing.T) {
	reg := wizard.NewRegistry(wizard.Defaults{}, nil, nil)
	userID, oldJob, newJob := uuid.New(), uuid.New(), uuid.New()
	state := reg.Get(userID)
	require.NoError(t, state.BeginGeneration(oldJob))
	state.Reset()
	require.NoError(t, state.BeginGeneration(newJob))
	l := NewListener(reg, nil)

	l.Handle(realtime.GenerationEvent{Type: realtime.EventGenerationProgress, UserID: userID, JobID: oldJob, Progress: 90})
	l.Handle(realtime.GenerationEvent{Type: realtime.EventStructureReady, UserID: userID, JobID: oldJob, Structure: []byte(readySale)})
	l.Handle(realtime.GenerationEvent{Type: realtime.EventGenerationFailed, UserID: userID, JobID: oldJob, Error: "late"})

	draft := state.Snapshot()
	assert.True(t, draft.IsGenerating)
	assert.Zero(t, draft.GenerationProgress)
	assert.Empty(t, draft.CampaignName)
	assert.Empty(t, draft.AdGroups)
	active, ok := state.ActiveGeneration()
	require.True(t, ok)
	assert.Equal(t, newJob, active)

	l.Handle(realtime.GenerationEvent{Type: realtime.EventStructureReady, UserID: userID, JobID: newJob, Structure: []byte(readySale)})
	assert.Equal(t, "Sale", state.Snapshot().CampaignName)
}

func TestListenerFailureClearsFlag(t *testing.T) {
	reg := wizard.NewRegistry(wizard.Defaults{}, nil, nil)
	userID, jobID := uuid.New(), uuid.New()
	state := reg.Get(userID)
	require.NoError(t, state.BeginGeneration(jobID))

	NewListener(reg, nil).Handle(realtime.GenerationEvent{Type: realtime.EventGenerationFailed, UserID: userID, JobID: jobID, Error: "quota"})
	assert.False(t, state.Snapshot().IsGenerating)
}

func TestListenerRejectsBrokenStructure(t *testing.T) {
	reg := wizard.NewRegistry(wizard.Defaults{}, nil, nil)
	userID := uuid.New()
	state := reg.Get(userID)
	state.AddAdGroup("Keep")
	l := NewListener(reg, nil)

	for _, structure := range []string{`{"ad_groups":[]}`, `not json`} {
		jobID := uuid.New()
		require.NoError(t, state.BeginGeneration(jobID))
		l.Handle(realtime.GenerationEvent{
			Type:      realtime.EventStructureReady,
			UserID:    userID,
			JobID:     jobID,
			Structure: []byte(structure),
		})
		draft := state.Snapshot()
		assert.False(t, draft.IsGenerating, structure)
		require.Len(t, draft.AdGroups, 1)
		assert.Equal(t, "Keep", draft.AdGroups[0].Name)
	}
}
