package models

import "github.com/google/uuid"

// AssetType tags the creative kind of an asset. Only TEXT is produced today.
type AssetType string

// AssetTypeText is the default asset type.
const AssetTypeText AssetType = "TEXT"

// ReviewState is the per-asset review decision made in the wizard.
type ReviewState string

const (
	ReviewNeutral  ReviewState = "neutral"
	ReviewSelected ReviewState = "selected"
	ReviewRejected ReviewState = "rejected"
)

// Valid reports whether s is one of the known review states.
func (s ReviewState) Valid() bool {
	switch s {
	case ReviewNeutral, ReviewSelected, ReviewRejected:
		return true
	}
	return false
}

// Asset is one piece of ad creative text (a headline or a description).
type Asset struct {
	ID     string      `json:"id"`
	Text   string      `json:"text"`
	Type   AssetType   `json:"type"`
	Pinned *string     `json:"pinned"` // slot label such as HEADLINE_1, nil when unpinned
	Hash   string      `json:"hash"`
	State  ReviewState `json:"state"`
}

// AssetInput is a partial asset. Empty fields take their defaults in NewAsset.
type AssetInput struct {
	ID     string      `json:"id,omitempty"`
	Text   string      `json:"text,omitempty"`
	Type   AssetType   `json:"type,omitempty"`
	Pinned string      `json:"pinned,omitempty"`
	Hash   string      `json:"hash,omitempty"`
	State  ReviewState `json:"state,omitempty"`
}

// NewAsset builds an asset from a partial input. Type and pin values are not checked.
func NewAsset(in AssetInput) Asset {
	a := Asset{
		ID:    in.ID,
		Text:  in.Text,
		Type:  in.Type,
		Hash:  in.Hash,
		State: in.State,
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Type == "" {
		a.Type = AssetTypeText
	}
	if in.Pinned != "" {
		pin := in.Pinned
		a.Pinned = &pin
	}
	if a.State == "" {
		a.State = ReviewNeutral
	}
	return a
}

// Pin sets or clears (empty slot) the asset's pinned slot.
func (a *Asset) Pin(slot string) {
	if slot == "" {
		a.Pinned = nil
		return
	}
	a.Pinned = &slot
}

func (a Asset) clone() Asset {
	if a.Pinned != nil {
		pin := *a.Pinned
		a.Pinned = &pin
	}
	return a
}
