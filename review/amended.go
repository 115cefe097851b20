/*
amended.go - Amended-properties marker

PURPOSE:
  Records which fields a reviewer changed relative to the imported proposal.
  The marker is a sorted set of field identifiers, computed once per save by
  comparing the incoming record with the previously persisted one.

RULES:
  - Import: marker is empty
  - Save:   marker = previous marker ∪ diff(previous, next)
  - Revert: marker is cleared

The marker is independent of whatever screen triggered the save.
*/
package review

import (
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Field identifies one amendable property of a confirmed record.
type Field string

const (
	FieldOperationType                  Field = "OperationType"
	FieldAreaToBeFelled                 Field = "AreaToBeFelled"
	FieldNumberOfTrees                  Field = "NumberOfTrees"
	FieldIsTreeMarkingUsed              Field = "IsTreeMarkingUsed"
	FieldTreeMarking                    Field = "TreeMarking"
	FieldIsPartOfTreePreservationOrder  Field = "IsPartOfTreePreservationOrder"
	FieldTreePreservationOrderReference Field = "TreePreservationOrderReference"
	FieldIsWithinConservationArea       Field = "IsWithinConservationArea"
	FieldConservationAreaReference      Field = "ConservationAreaReference"
	FieldEstimatedTotalFellingVolume    Field = "EstimatedTotalFellingVolume"
	FieldIsRestocking                   Field = "IsRestocking"
	FieldNoRestockingReason             Field = "NoRestockingReason"
	FieldFellingSpecies                 Field = "FellingSpecies"
	FieldRestocking                     Field = "Restocking"

	FieldProposalType               Field = "RestockingProposal"
	FieldRestockingCompartment      Field = "RestockingCompartment"
	FieldRestockingArea             Field = "RestockingArea"
	FieldRestockingDensity          Field = "RestockingDensity"
	FieldPercentOpenSpace           Field = "PercentOpenSpace"
	FieldPercentNaturalRegeneration Field = "PercentNaturalRegeneration"
	FieldRestockingNumberOfTrees    Field = "RestockingNumberOfTrees"
	FieldRestockingSpecies          Field = "RestockingSpecies"
)

// AmendedProperties is a sorted, duplicate-free set of amended fields.
// The zero value is the empty marker.
type AmendedProperties []Field

// Has reports whether f has been amended.
func (a AmendedProperties) Has(f Field) bool {
	_, found := slices.BinarySearch(a, f)
	return found
}

// IsEmpty reports whether nothing has been amended.
func (a AmendedProperties) IsEmpty() bool { return len(a) == 0 }

// With returns the union of a and fields. a is not modified.
func (a AmendedProperties) With(fields ...Field) AmendedProperties {
	if len(fields) == 0 {
		return a
	}
	out := make(AmendedProperties, 0, len(a)+len(fields))
	out = append(out, a...)
	out = append(out, fields...)
	slices.Sort(out)
	return slices.Compact(out)
}

// =============================================================================
// DIFF
// =============================================================================

// DiffFelling returns the fields that differ between prev and next.
// Restocking children are diffed separately; here only a change to which
// children exist is reported, as FieldRestocking.
func DiffFelling(prev, next ConfirmedFellingDetail) []Field {
	var out []Field
	p, n := prev.FellingFacts, next.FellingFacts

	if p.OperationType != n.OperationType {
		out = append(out, FieldOperationType)
	}
	if !p.AreaToBeFelled.Equal(n.AreaToBeFelled) {
		out = append(out, FieldAreaToBeFelled)
	}
	if !eqPtr(p.NumberOfTrees, n.NumberOfTrees) {
		out = append(out, FieldNumberOfTrees)
	}
	if !eqPtr(p.IsTreeMarkingUsed, n.IsTreeMarkingUsed) {
		out = append(out, FieldIsTreeMarkingUsed)
	}
	if !eqPtr(p.TreeMarking, n.TreeMarking) {
		out = append(out, FieldTreeMarking)
	}
	if !eqPtr(p.IsPartOfTreePreservationOrder, n.IsPartOfTreePreservationOrder) {
		out = append(out, FieldIsPartOfTreePreservationOrder)
	}
	if !eqPtr(p.TreePreservationOrderReference, n.TreePreservationOrderReference) {
		out = append(out, FieldTreePreservationOrderReference)
	}
	if !eqPtr(p.IsWithinConservationArea, n.IsWithinConservationArea) {
		out = append(out, FieldIsWithinConservationArea)
	}
	if !eqPtr(p.ConservationAreaReference, n.ConservationAreaReference) {
		out = append(out, FieldConservationAreaReference)
	}
	if !p.EstimatedTotalFellingVolume.Equal(n.EstimatedTotalFellingVolume) {
		out = append(out, FieldEstimatedTotalFellingVolume)
	}
	if !eqPtr(p.IsRestocking, n.IsRestocking) {
		out = append(out, FieldIsRestocking)
	}
	if !eqPtr(p.NoRestockingReason, n.NoRestockingReason) {
		out = append(out, FieldNoRestockingReason)
	}
	if !FellingSpeciesEqual(prev.Species, next.Species) {
		out = append(out, FieldFellingSpecies)
	}
	if restockingSetChanged(prev.Restocking, next.Restocking) {
		out = append(out, FieldRestocking)
	}
	return out
}

// restockingSetChanged reports whether next adds or drops a child relative
// to prev. A child not yet persisted has the nil id and counts as added.
func restockingSetChanged(prev, next []ConfirmedRestockingDetail) bool {
	if len(prev) != len(next) {
		return true
	}
	ids := make(map[uuid.UUID]bool, len(prev))
	for _, r := range prev {
		ids[r.ID] = true
	}
	for _, r := range next {
		if r.ID == uuid.Nil || !ids[r.ID] {
			return true
		}
	}
	return false
}

// DiffRestocking returns the fields that differ between prev and next.
func DiffRestocking(prev, next ConfirmedRestockingDetail) []Field {
	var out []Field
	p, n := prev.RestockingFacts, next.RestockingFacts

	if p.ProposalType != n.ProposalType {
		out = append(out, FieldProposalType)
	}
	if prev.CompartmentID != next.CompartmentID {
		out = append(out, FieldRestockingCompartment)
	}
	if !p.Area.Equal(n.Area) {
		out = append(out, FieldRestockingArea)
	}
	if !p.RestockingDensity.Equal(n.RestockingDensity) {
		out = append(out, FieldRestockingDensity)
	}
	if !eqNullDecimal(p.PercentOpenSpace, n.PercentOpenSpace) {
		out = append(out, FieldPercentOpenSpace)
	}
	if !eqNullDecimal(p.PercentNaturalRegeneration, n.PercentNaturalRegeneration) {
		out = append(out, FieldPercentNaturalRegeneration)
	}
	if !eqPtr(p.NumberOfTrees, n.NumberOfTrees) {
		out = append(out, FieldRestockingNumberOfTrees)
	}
	if !RestockingSpeciesEqual(prev.Species, next.Species) {
		out = append(out, FieldRestockingSpecies)
	}
	return out
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func eqNullDecimal(a, b decimal.NullDecimal) bool {
	if !a.Valid || !b.Valid {
		return a.Valid == b.Valid
	}
	return a.Decimal.Equal(b.Decimal)
}
