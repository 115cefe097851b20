package review

import (
	"sort"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortCompartments orders compartments by compartment number, numerically
// aware ("1" < "2" < "10"), then by sub-compartment name. The sort is stable.
func SortCompartments(compartments []Compartment) {
	// A Collator is not safe for concurrent use; one per call.
	col := collate.New(language.English, collate.Numeric)
	sort.SliceStable(compartments, func(i, j int) bool {
		a, b := compartments[i], compartments[j]
		if c := col.CompareString(a.CompartmentNumber, b.CompartmentNumber); c != 0 {
			return c < 0
		}
		return col.CompareString(a.SubCompartmentName, b.SubCompartmentName) < 0
	})
}

// groupByCompartment attaches details to their compartments. Compartment
// order is the display order; detail order is the persisted order.
func groupByCompartment(compartments []Compartment, details []ConfirmedFellingDetail) []CompartmentDetails {
	sorted := append([]Compartment(nil), compartments...)
	SortCompartments(sorted)

	byCompartment := make(map[uuid.UUID][]ConfirmedFellingDetail, len(sorted))
	for _, d := range details {
		byCompartment[d.CompartmentID] = append(byCompartment[d.CompartmentID], d)
	}

	out := make([]CompartmentDetails, 0, len(sorted))
	for _, c := range sorted {
		out = append(out, CompartmentDetails{Compartment: c, Felling: byCompartment[c.ID]})
	}
	return out
}

func indexCompartments(compartments []Compartment) map[uuid.UUID]Compartment {
	idx := make(map[uuid.UUID]Compartment, len(compartments))
	for _, c := range compartments {
		idx[c.ID] = c
	}
	return idx
}
