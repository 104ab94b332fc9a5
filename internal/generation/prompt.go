package generation

import (
	"fmt"
	"strings"

	"github.com/aura-ads/wizard/internal/models"
)

const systemInstruction = `You are a senior Google Ads copywriter. You write Responsive Search Ad assets that respect
the character limits exactly, avoid repeated phrasing across headlines and never use exclamation marks in headlines.`

// BuildPrompt renders the chain-of-thought prompt for a generation request.
func BuildPrompt(req models.GenerationRequest) string {
	voice := req.BrandVoice
	if voice == "" {
		voice = "professional"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Landing page: %s\n", req.LandingPageURL)
	fmt.Fprintf(&b, "Target keywords: %s\n", strings.Join(req.Keywords, ", "))
	fmt.Fprintf(&b, "Brand voice: %s\n", voice)
	fmt.Fprintf(&b, "Language (ISO 639-1): %s\n\n", req.Language)
	b.WriteString("Think step by step:\n")
	b.WriteString("1. Identify the offer, audience and unique selling points of the landing page.\n")
	b.WriteString("2. Cluster the keywords into 1 to 5 thematic ad groups.\n")
	fmt.Fprintf(&b, "3. For each ad group write %d to %d headlines of at most %d characters and %d to %d descriptions of at most %d characters.\n",
		models.MinHeadlines, models.MaxHeadlines, models.MaxHeadlineWidth,
		models.MinDescriptions, models.MaxDescriptions, models.MaxDescriptionWidth)
	b.WriteString("4. Mix benefit, feature, call-to-action and keyword-insertion headlines.\n")
	b.WriteString("5. Propose a campaign name, a daily budget recommendation in EUR and target locations.\n")
	b.WriteString("All ad text must be written in the requested language. Respond with JSON only.")
	return b.String()
}

// ResponseSchema is the structured-output schema for a CampaignStructure, in the
// OpenAPI subset accepted by Gemini.
func ResponseSchema() map[string]interface{} {
	str := map[string]interface{}{"type": "STRING"}
	strArray := func(min, max int, maxLen int) map[string]interface{} {
		return map[string]interface{}{
			"type":     "ARRAY",
			"items":    map[string]interface{}{"type": "STRING", "maxLength": maxLen},
			"minItems": min,
			"maxItems": max,
		}
	}
	return map[string]interface{}{
		"type": "OBJECT",
		"properties": map[string]interface{}{
			"campaign_name":         str,
			"budget_recommendation": map[string]interface{}{"type": "NUMBER"},
			"language":              str,
			"target_locations":      map[string]interface{}{"type": "ARRAY", "items": str},
			"ad_groups": map[string]interface{}{
				"type": "ARRAY",
				"items": map[string]interface{}{
					"type": "OBJECT",
					"properties": map[string]interface{}{
						"name": str,
						"assets": map[string]interface{}{
							"type": "OBJECT",
							"properties": map[string]interface{}{
								"headlines":    strArray(models.MinHeadlines, models.MaxHeadlines, models.MaxHeadlineWidth),
								"descriptions": strArray(models.MinDescriptions, models.MaxDescriptions, models.MaxDescriptionWidth),
							},
							"required": []string{"headlines", "descriptions"},
						},
					},
					"required": []string{"name", "assets"},
				},
			},
		},
		"required": []string{"campaign_name", "ad_groups"},
	}
}
