package wizard

// EventType names the change that produced an Event.
type EventType string

const (
	EventReset             EventType = "wizard_reset"
	EventAdGroupAdded      EventType = "ad_group_added"
	EventAdGroupUpdated    EventType = "ad_group_updated"
	EventAdGroupRemoved    EventType = "ad_group_removed"
	EventStructureLoaded   EventType = "structure_loaded"
	EventSettingsUpdated   EventType = "settings_updated"
	EventAssetUpdated      EventType = "asset_updated"
	EventGenerationUpdated EventType = "generation_updated"
)

// Event is delivered to observers after a successful mutation. Seq grows with every
// mutation of a state; a receiver holding a higher Seq already has a newer draft.
type Event struct {
	Type  EventType `json:"type"`
	Seq   uint64    `json:"seq"`
	Draft Draft     `json:"draft"`
}

// Observer receives state change events.
type Observer func(Event)
