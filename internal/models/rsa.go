package models

import (
	"fmt"
	"strings"

	"golang.org/x/text/width"
)

// Responsive Search Ad limits, in display-width units.
const (
	MaxHeadlineWidth    = 30
	MaxDescriptionWidth = 90
	MinHeadlines        = 3
	MaxHeadlines        = 15
	MinDescriptions     = 2
	MaxDescriptions     = 4
)

func runeWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	}
	return 1
}

// DisplayWidth counts East Asian wide and fullwidth runes as 2 units, everything else as 1.
func DisplayWidth(s string) int {
	n := 0
	for _, r := range s {
		n += runeWidth(r)
	}
	return n
}

// TruncateToWidth returns the longest prefix of s that fits in max units, without trailing spaces.
func TruncateToWidth(s string, max int) string {
	if DisplayWidth(s) <= max {
		return s
	}
	n := 0
	for i, r := range s {
		w := runeWidth(r)
		if n+w > max {
			return strings.TrimSpace(s[:i])
		}
		n += w
	}
	return s
}

// ValidateHeadline returns the problems with a single headline.
func ValidateHeadline(h string) []string {
	if h == "" {
		return []string{"headline cannot be empty"}
	}
	if w := DisplayWidth(h); w > MaxHeadlineWidth {
		return []string{fmt.Sprintf("headline exceeds %d characters (actual: %d)", MaxHeadlineWidth, w)}
	}
	return nil
}

// ValidateDescription returns the problems with a single description.
func ValidateDescription(d string) []string {
	if d == "" {
		return []string{"description cannot be empty"}
	}
	if w := DisplayWidth(d); w > MaxDescriptionWidth {
		return []string{fmt.Sprintf("description exceeds %d characters (actual: %d)", MaxDescriptionWidth, w)}
	}
	return nil
}

// ValidateRSA checks asset counts and every individual asset. Positions in messages are 1-based.
func ValidateRSA(headlines, descriptions []string) []string {
	var errs []string
	if len(headlines) < MinHeadlines {
		errs = append(errs, fmt.Sprintf("minimum %d headlines required (got %d)", MinHeadlines, len(headlines)))
	}
	if len(headlines) > MaxHeadlines {
		errs = append(errs, fmt.Sprintf("maximum %d headlines allowed (got %d)", MaxHeadlines, len(headlines)))
	}
	if len(descriptions) < MinDescriptions {
		errs = append(errs, fmt.Sprintf("minimum %d descriptions required (got %d)", MinDescriptions, len(descriptions)))
	}
	if len(descriptions) > MaxDescriptions {
		errs = append(errs, fmt.Sprintf("maximum %d descriptions allowed (got %d)", MaxDescriptions, len(descriptions)))
	}
	for i, h := range headlines {
		for _, e := range ValidateHeadline(h) {
			errs = append(errs, fmt.Sprintf("headline %d: %s", i+1, e))
		}
	}
	for i, d := range descriptions {
		for _, e := range ValidateDescription(d) {
			errs = append(errs, fmt.Sprintf("description %d: %s", i+1, e))
		}
	}
	return errs
}
