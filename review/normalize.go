package review

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// NORMALIZATION - applied to every confirmed record before it is written
// =============================================================================

// normalizeFelling applies the mechanical rules that hold regardless of input:
//
//   - Thinning: IsRestocking and NoRestockingReason are cleared, restocking dropped
//   - IsRestocking == true: NoRestockingReason is cleared
//   - IsRestocking == false: restocking dropped
//   - restocking children with proposal type None are dropped
func normalizeFelling(d *ConfirmedFellingDetail) {
	if !d.OperationType.AllowsRestocking() {
		d.IsRestocking = nil
		d.NoRestockingReason = nil
		d.Restocking = nil
		return
	}
	if d.IsRestocking != nil {
		if *d.IsRestocking {
			d.NoRestockingReason = nil
		} else {
			d.Restocking = nil
		}
	}
	d.Restocking = withoutNoneProposals(d.Restocking)
}

func withoutNoneProposals(in []ConfirmedRestockingDetail) []ConfirmedRestockingDetail {
	if len(in) == 0 {
		return in
	}
	out := make([]ConfirmedRestockingDetail, 0, len(in))
	for _, r := range in {
		if r.ProposalType == ProposalNone || r.ProposalType == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// deriveRestockingCompartment sets the restocked compartment. Alternative-area
// proposals restock their own alternative compartment; everything else
// restocks where the felling happened.
func deriveRestockingCompartment(r *ConfirmedRestockingDetail, felling Compartment, compartments map[uuid.UUID]Compartment) error {
	if !r.ProposalType.IsAlternativeArea() {
		r.CompartmentID = felling.ID
		r.CompartmentNumber = felling.CompartmentNumber
		r.AlternativeCompartmentID = nil
		return nil
	}
	if r.AlternativeCompartmentID == nil || *r.AlternativeCompartmentID == uuid.Nil {
		return invalid("AlternativeCompartmentID", "required for restocking proposal %s", r.ProposalType)
	}
	alt, ok := compartments[*r.AlternativeCompartmentID]
	if !ok {
		return notFound("compartment", *r.AlternativeCompartmentID)
	}
	r.CompartmentID = alt.ID
	r.CompartmentNumber = alt.CompartmentNumber
	return nil
}

// =============================================================================
// VALIDATION - rules a reviewer save must satisfy after normalization
// =============================================================================

func validateFelling(d *ConfirmedFellingDetail, compartment Compartment) error {
	if !d.OperationType.Valid() || d.OperationType == OperationNone {
		return invalid("OperationType", "unknown felling operation %q", d.OperationType)
	}
	if !d.AreaToBeFelled.IsPositive() {
		return invalid("AreaToBeFelled", "must be greater than zero")
	}
	if compartment.ConfirmedTotalHectares.IsPositive() && d.AreaToBeFelled.GreaterThan(compartment.ConfirmedTotalHectares) {
		return invalid("AreaToBeFelled", "%s ha exceeds compartment %s area of %s ha",
			d.AreaToBeFelled, compartment.DisplayName(), compartment.ConfirmedTotalHectares)
	}
	if d.NumberOfTrees != nil && *d.NumberOfTrees < 0 {
		return invalid("NumberOfTrees", "must not be negative")
	}
	if d.EstimatedTotalFellingVolume.IsNegative() {
		return invalid("EstimatedTotalFellingVolume", "must not be negative")
	}
	if isTrue(d.IsTreeMarkingUsed) && blank(d.TreeMarking) {
		return invalid("TreeMarking", "required when tree marking is used")
	}
	if isTrue(d.IsPartOfTreePreservationOrder) && blank(d.TreePreservationOrderReference) {
		return invalid("TreePreservationOrderReference", "required for trees under a preservation order")
	}
	if isTrue(d.IsWithinConservationArea) && blank(d.ConservationAreaReference) {
		return invalid("ConservationAreaReference", "required within a conservation area")
	}
	if d.IsRestocking != nil && !*d.IsRestocking && blank(d.NoRestockingReason) {
		return invalid("NoRestockingReason", "required when the felled area will not be restocked")
	}
	// Restocking children are validated one by one as they are prepared.
	return nil
}

func validateRestocking(r *ConfirmedRestockingDetail) error {
	if !r.ProposalType.Valid() {
		return invalid("RestockingProposal", "unknown restocking proposal %q", r.ProposalType)
	}
	if r.Area.IsNegative() {
		return invalid("RestockingArea", "must not be negative")
	}
	if r.RestockingDensity.IsNegative() {
		return invalid("RestockingDensity", "must not be negative")
	}
	if !percentage(r.PercentOpenSpace) {
		return invalid("PercentOpenSpace", "must be between 0 and 100")
	}
	if !percentage(r.PercentNaturalRegeneration) {
		return invalid("PercentNaturalRegeneration", "must be between 0 and 100")
	}
	if r.NumberOfTrees != nil && *r.NumberOfTrees < 0 {
		return invalid("RestockingNumberOfTrees", "must not be negative")
	}
	return nil
}

func percentage(p decimal.NullDecimal) bool {
	if !p.Valid {
		return true
	}
	return !p.Decimal.IsNegative() && !p.Decimal.GreaterThan(hundred)
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// =============================================================================
// PROPOSED -> CONFIRMED
// =============================================================================

// confirmedFromProposed copies a proposed detail into a confirmed one with
// identical scalars and species and an empty amended marker. Restocking
// children whose proposal type is None are not copied.
func confirmedFromProposed(p ProposedFellingDetail, compartments map[uuid.UUID]Compartment) (ConfirmedFellingDetail, error) {
	felling, ok := compartments[p.CompartmentID]
	if !ok {
		return ConfirmedFellingDetail{}, notFound("compartment", p.CompartmentID)
	}

	d := ConfirmedFellingDetail{
		CompartmentID: p.CompartmentID,
		Origin:        Imported{ProposedID: p.ID},
		FellingFacts:  p.FellingFacts,
		Species:       cloneFellingSpecies(p.Species),
	}
	for _, pr := range p.Restocking {
		r := ConfirmedRestockingDetail{
			Origin:          Imported{ProposedID: pr.ID},
			RestockingFacts: pr.RestockingFacts,
			Species:         cloneRestockingSpecies(pr.Species),
		}
		if pr.ProposalType.IsAlternativeArea() {
			alt := pr.CompartmentID
			r.AlternativeCompartmentID = &alt
		}
		if err := deriveRestockingCompartment(&r, felling, compartments); err != nil {
			return ConfirmedFellingDetail{}, err
		}
		d.Restocking = append(d.Restocking, r)
	}
	normalizeFelling(&d)
	return d, nil
}
