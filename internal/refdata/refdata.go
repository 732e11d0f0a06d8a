// Package refdata loads the versioned reference tables the ingestion and
// matching paths share: salvage keywords, variant-family whitelists and
// known makes. The tables ship embedded and can be overridden by an
// external file so they update without redeploying workers.
package refdata

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

//go:embed refdata.json
var embedded []byte

// Set is one version of the reference tables.
type Set struct {
	Version int `json:"version"`

	// SalvageKeywords mark a listing as excluded when any appears in its
	// raw variant or description text.
	SalvageKeywords []string `json:"salvage_keywords"`

	// VariantFamilies maps a family name to the variant tokens that
	// belong to it, e.g. "SR" -> ["SR", "SR5"].
	VariantFamilies map[string][]string `json:"variant_families"`

	// Makes is the whitelist of makes worth matching at all.
	Makes []string `json:"makes"`

	// variantToFamily is the inverted lookup, built once at load.
	variantToFamily map[string]string
}

// Load returns the reference set at path, or the embedded defaults when
// path is empty.
func Load(path string) (*Set, error) {
	data := embedded
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read reference data %s: %w", path, err)
		}
		data = b
	}

	var s Set
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse reference data: %w", err)
	}
	if s.Version < 1 {
		return nil, fmt.Errorf("reference data missing version")
	}

	s.variantToFamily = make(map[string]string)
	for family, variants := range s.VariantFamilies {
		for _, v := range variants {
			s.variantToFamily[canon(v)] = strings.ToUpper(strings.TrimSpace(family))
		}
	}
	return &s, nil
}

func canon(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SalvageReason scans free text for salvage keywords and returns the first
// hit. Matching is case-insensitive.
func (s *Set) SalvageReason(text string) (string, bool) {
	t := strings.ToUpper(text)
	for _, kw := range s.SalvageKeywords {
		if strings.Contains(t, strings.ToUpper(kw)) {
			return strings.ToLower(kw), true
		}
	}
	return "", false
}

// FamilyFor returns the variant family a normalized variant belongs to.
func (s *Set) FamilyFor(variant string) (string, bool) {
	family, ok := s.variantToFamily[canon(variant)]
	return family, ok
}

// KnownMake reports whether the make is on the whitelist. An empty
// whitelist admits everything.
func (s *Set) KnownMake(make string) bool {
	if len(s.Makes) == 0 {
		return true
	}
	for _, m := range s.Makes {
		if canon(m) == canon(make) {
			return true
		}
	}
	return false
}
