package ocrclient

import (
	"fmt"
	"unicode"

	"github.com/MeKo-Tech/ocrbench/internal/ocrapi"
	"github.com/samber/lo"
)

// Filter selects which predictions reach the matcher.
type Filter string

const (
	FilterNone    Filter = "none"
	FilterNumeric Filter = "numeric"
)

// ParseFilter validates a configured filter name. The empty string means none.
func ParseFilter(name string) (Filter, error) {
	switch Filter(name) {
	case "", FilterNone:
		return FilterNone, nil
	case FilterNumeric:
		return FilterNumeric, nil
	default:
		return "", fmt.Errorf("unknown filter %q (want none or numeric)", name)
	}
}

// Apply returns the predictions kept by f, in their original order.
func (f Filter) Apply(preds []ocrapi.Prediction) []ocrapi.Prediction {
	if f != FilterNumeric {
		return preds
	}
	return lo.Filter(preds, func(p ocrapi.Prediction, _ int) bool {
		return IsNumeric(p.Text)
	})
}

// IsNumeric reports whether s is non-empty and made only of decimal digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
