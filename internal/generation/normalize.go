package generation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aura-ads/wizard/internal/models"
)

// ErrUnusableStructure means nothing usable was left after auto-correction. Retrying
// the same answer cannot help, so the job fails right away.
var ErrUnusableStructure = errors.New("generated structure has no usable assets")

// Normalize auto-corrects a generated structure in place: texts are trimmed and cut to
// the RSA display widths, empty texts and repeats (same AssetHash) are dropped and lists
// are capped at the RSA maxima.
// It fails when an ad group is left without headlines or descriptions. The returned
// warnings are the RSA issues that remain (e.g. too few headlines).
func Normalize(cs *models.CampaignStructure) ([]string, error) {
	if len(cs.AdGroups) == 0 {
		return nil, fmt.Errorf("%w: no ad groups", ErrUnusableStructure)
	}
	var warnings []string
	for i := range cs.AdGroups {
		g := &cs.AdGroups[i]
		if g.Assets == nil {
			return nil, fmt.Errorf("%w: ad group %d has no assets", ErrUnusableStructure, i+1)
		}
		var dupH, dupD int
		g.Assets.Headlines, dupH = clean(g.Assets.Headlines, models.MaxHeadlineWidth, models.MaxHeadlines)
		g.Assets.Descriptions, dupD = clean(g.Assets.Descriptions, models.MaxDescriptionWidth, models.MaxDescriptions)
		if dupH > 0 {
			warnings = append(warnings, fmt.Sprintf("ad group %q: dropped %d duplicate headlines", g.Name, dupH))
		}
		if dupD > 0 {
			warnings = append(warnings, fmt.Sprintf("ad group %q: dropped %d duplicate descriptions", g.Name, dupD))
		}
		if len(g.Assets.Headlines) == 0 || len(g.Assets.Descriptions) == 0 {
			return nil, fmt.Errorf("%w: ad group %q is empty after correction", ErrUnusableStructure, g.Name)
		}
		for _, issue := range models.ValidateRSA(g.Assets.Headlines, g.Assets.Descriptions) {
			warnings = append(warnings, fmt.Sprintf("ad group %q: %s", g.Name, issue))
		}
	}
	return warnings, nil
}

// clean returns the corrected texts and how many were dropped as duplicates.
func clean(texts []string, maxWidth, maxItems int) ([]string, int) {
	out := make([]string, 0, len(texts))
	seen := make(map[string]bool, len(texts))
	dups := 0
	for _, t := range texts {
		t = models.TruncateToWidth(strings.TrimSpace(t), maxWidth)
		if t == "" {
			continue
		}
		h := models.AssetHash(models.AssetTypeText, t)
		if seen[h] {
			dups++
			continue
		}
		seen[h] = true
		out = append(out, t)
		if len(out) == maxItems {
			break
		}
	}
	return out, dups
}
