package review

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SPECIES LEDGER
// =============================================================================
// Species lists on confirmed records are replaced wholesale on every save,
// never diffed row by row. These helpers normalise the incoming list and
// compare lists for the amended-properties marker.

var hundred = decimal.NewFromInt(100)

// NormalizeFellingSpecies trims and upper-cases species codes and drops
// repeats, keeping the first occurrence.
func NormalizeFellingSpecies(in []FellingSpecies) ([]FellingSpecies, error) {
	out := make([]FellingSpecies, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		code := normalizeCode(s.Species)
		if code == "" {
			return nil, invalid("species", "felling species code is empty")
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, FellingSpecies{Species: code})
	}
	return out, nil
}

// NormalizeRestockingSpecies normalises codes and checks percentages.
// Each percentage must be within (0, 100] and the total may not exceed 100.
func NormalizeRestockingSpecies(in []RestockingSpecies) ([]RestockingSpecies, error) {
	out := make([]RestockingSpecies, 0, len(in))
	seen := make(map[string]bool, len(in))
	total := decimal.Zero
	for _, s := range in {
		code := normalizeCode(s.Species)
		if code == "" {
			return nil, invalid("species", "restocking species code is empty")
		}
		if seen[code] {
			return nil, invalid("species", "restocking species %s listed twice", code)
		}
		if !s.Percentage.IsPositive() || s.Percentage.GreaterThan(hundred) {
			return nil, invalid("species", "percentage for %s must be between 0 and 100", code)
		}
		seen[code] = true
		total = total.Add(s.Percentage)
		out = append(out, RestockingSpecies{Species: code, Percentage: s.Percentage})
	}
	if total.GreaterThan(hundred) {
		return nil, invalid("species", "restocking species percentages total %s", total)
	}
	return out, nil
}

// FellingSpeciesEqual compares two species lists as sets of normalised
// codes, so " ok" and "OK" are the same species.
func FellingSpeciesEqual(a, b []FellingSpecies) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[normalizeCode(s.Species)] = true
	}
	for _, s := range b {
		if !set[normalizeCode(s.Species)] {
			return false
		}
	}
	return true
}

// RestockingSpeciesEqual compares two species lists as sets of
// (normalised code, percentage).
func RestockingSpeciesEqual(a, b []RestockingSpecies) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]decimal.Decimal, len(a))
	for _, s := range a {
		set[normalizeCode(s.Species)] = s.Percentage
	}
	for _, s := range b {
		pct, ok := set[normalizeCode(s.Species)]
		if !ok || !pct.Equal(s.Percentage) {
			return false
		}
	}
	return true
}

func normalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func cloneFellingSpecies(in []FellingSpecies) []FellingSpecies {
	if in == nil {
		return nil
	}
	return append([]FellingSpecies(nil), in...)
}

func cloneRestockingSpecies(in []RestockingSpecies) []RestockingSpecies {
	if in == nil {
		return nil
	}
	return append([]RestockingSpecies(nil), in...)
}
