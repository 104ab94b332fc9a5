package models

import "github.com/google/uuid"

// AdGroup is a named grouping of headline and description assets.
// Slice order is presentation order.
type AdGroup struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Headlines    []Asset `json:"headlines"`
	Descriptions []Asset `json:"descriptions"`
}

// AdGroupInput is a partial ad group used for construction and hydration.
type AdGroupInput struct {
	ID           string       `json:"id,omitempty"`
	Name         string       `json:"name,omitempty"`
	Headlines    []AssetInput `json:"headlines,omitempty"`
	Descriptions []AssetInput `json:"descriptions,omitempty"`
}

// NewAdGroup builds an ad group, constructing a fresh asset for every input entry.
func NewAdGroup(in AdGroupInput) *AdGroup {
	g := &AdGroup{
		ID:           in.ID,
		Name:         in.Name,
		Headlines:    buildAssets(in.Headlines),
		Descriptions: buildAssets(in.Descriptions),
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return g
}

func buildAssets(in []AssetInput) []Asset {
	out := make([]Asset, 0, len(in))
	for _, a := range in {
		out = append(out, NewAsset(a))
	}
	return out
}

// Asset returns a pointer to the headline or description with the given id.
func (g *AdGroup) Asset(id string) (*Asset, bool) {
	for i := range g.Headlines {
		if g.Headlines[i].ID == id {
			return &g.Headlines[i], true
		}
	}
	for i := range g.Descriptions {
		if g.Descriptions[i].ID == id {
			return &g.Descriptions[i], true
		}
	}
	return nil, false
}

// Issues runs the RSA checks over the group's asset texts. Rejected assets are skipped.
func (g *AdGroup) Issues() []string {
	return ValidateRSA(texts(g.Headlines), texts(g.Descriptions))
}

func texts(assets []Asset) []string {
	out := make([]string, 0, len(assets))
	for _, a := range assets {
		if a.State == ReviewRejected {
			continue
		}
		out = append(out, a.Text)
	}
	return out
}

// Clone returns a deep copy of the group.
func (g *AdGroup) Clone() *AdGroup {
	c := &AdGroup{
		ID:           g.ID,
		Name:         g.Name,
		Headlines:    make([]Asset, len(g.Headlines)),
		Descriptions: make([]Asset, len(g.Descriptions)),
	}
	for i, a := range g.Headlines {
		c.Headlines[i] = a.clone()
	}
	for i, a := range g.Descriptions {
		c.Descriptions[i] = a.clone()
	}
	return c
}
