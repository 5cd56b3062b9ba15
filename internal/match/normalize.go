package match

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalizer names a text canonicalization applied before comparison.
type Normalizer string

const (
	// NormalizeNone compares texts byte for byte.
	NormalizeNone Normalizer = "none"
	// NormalizeNFKC folds compatibility forms such as full-width digits.
	NormalizeNFKC Normalizer = "nfkc"
	// NormalizeNFKCCaseFold additionally folds case and trims surrounding space.
	NormalizeNFKCCaseFold Normalizer = "nfkc_casefold"
)

// Normalizers lists the accepted names.
var Normalizers = []Normalizer{NormalizeNone, NormalizeNFKC, NormalizeNFKCCaseFold}

// ParseNormalizer validates a configured name. The empty string means none.
func ParseNormalizer(name string) (Normalizer, error) {
	if name == "" {
		return NormalizeNone, nil
	}
	for _, n := range Normalizers {
		if string(n) == strings.ToLower(name) {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown normalizer %q (want one of %v)", name, Normalizers)
}

// Func returns the transformation for n. Unknown values behave like none.
func (n Normalizer) Func() func(string) string {
	switch n {
	case NormalizeNFKC:
		return norm.NFKC.String
	case NormalizeNFKCCaseFold:
		fold := cases.Fold()
		return func(s string) string {
			// cases.Caser is stateful; String resets it on every call.
			return strings.TrimSpace(fold.String(norm.NFKC.String(s)))
		}
	default:
		return func(s string) string { return s }
	}
}
