package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidStructure is wrapped by every StructureError.
var ErrInvalidStructure = errors.New("invalid campaign structure")

// CampaignStructure is the payload produced by structure generation and consumed by the wizard.
// Pointer and nil-slice fields are optional: nil means the field was absent.
type CampaignStructure struct {
	CampaignName         string             `json:"campaign_name" validate:"required"`
	BudgetRecommendation *float64           `json:"budget_recommendation,omitempty" validate:"omitempty,gte=0"`
	Language             *string            `json:"language,omitempty"`
	TargetLocations      []string           `json:"target_locations,omitempty"`
	AdGroups             []StructureAdGroup `json:"ad_groups" validate:"required,dive"`
}

// StructureAdGroup is one generated ad group.
type StructureAdGroup struct {
	Name   string           `json:"name"`
	Assets *StructureAssets `json:"assets" validate:"required"`
}

// StructureAssets holds the raw texts of a generated ad group.
type StructureAssets struct {
	Headlines    []string `json:"headlines" validate:"required"`
	Descriptions []string `json:"descriptions" validate:"required"`
}

// FieldIssue names one failing field by its JSON path.
type FieldIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// StructureError lists every field that failed validation.
type StructureError struct {
	Issues []FieldIssue
}

func (e *StructureError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.Field+" "+is.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidStructure, strings.Join(parts, "; "))
}

func (e *StructureError) Unwrap() error { return ErrInvalidStructure }

var structureValidator = newStructureValidator()

func newStructureValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks required fields and value ranges. It returns a *StructureError on failure.
func (cs *CampaignStructure) Validate() error {
	if cs == nil {
		return &StructureError{Issues: []FieldIssue{{Field: "campaign_structure", Reason: "is required"}}}
	}
	err := structureValidator.Struct(cs)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate campaign structure: %w", err)
	}
	out := &StructureError{Issues: make([]FieldIssue, 0, len(verrs))}
	for _, fe := range verrs {
		out.Issues = append(out.Issues, FieldIssue{Field: fieldPath(fe.Namespace()), Reason: reason(fe)})
	}
	return out
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be >= " + fe.Param()
	}
	return "failed " + fe.Tag()
}

// AdGroupInputs converts the generated groups into ad group inputs with TEXT assets.
func (cs *CampaignStructure) AdGroupInputs() []AdGroupInput {
	out := make([]AdGroupInput, 0, len(cs.AdGroups))
	for _, g := range cs.AdGroups {
		in := AdGroupInput{Name: g.Name}
		if g.Assets != nil {
			in.Headlines = textInputs(g.Assets.Headlines)
			in.Descriptions = textInputs(g.Assets.Descriptions)
		}
		out = append(out, in)
	}
	return out
}

func textInputs(texts []string) []AssetInput {
	out := make([]AssetInput, 0, len(texts))
	for _, t := range texts {
		out = append(out, AssetInput{Text: t, Type: AssetTypeText})
	}
	return out
}
