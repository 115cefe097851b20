/*
Package review provides the woodland officer review engine for felling licence applications.

PURPOSE:
  An applicant submits a PROPOSED felling and restocking plan. During the
  woodland officer review that plan is imported into a CONFIRMED working copy
  which reviewers amend compartment by compartment, and species by species.
  The confirmed copy, the review-completion flags and the audit trail are
  kept consistent through one transaction per operation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Compartment: a physical subdivision of the property under licence
  - FellingFacts / RestockingFacts: the scalar facts shared by proposed and confirmed records
  - Origin: Imported (linked to a proposed detail) or ReviewerAdded
  - ConfirmedFellingDetail / ConfirmedRestockingDetail: the mutable working copy

DESIGN PRINCIPLES:
  1. The proposed plan is read-only; only confirmed records are mutated
  2. Precision: areas, volumes and percentages use decimal.Decimal
  3. Revert eligibility is carried by the Origin type, not by a nullable id
  4. Amended properties are a set of field names computed by diffing on save

SEE ALSO:
  - engine.go: Reconciliation engine (import, amend, revert, delete)
  - tracker.go: Review state tracker (section completion)
  - amended.go: Field-by-field diff
*/
package review

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENUMERATIONS
// =============================================================================

// FellingOperationType is the kind of felling proposed for a compartment.
type FellingOperationType string

const (
	OperationNone                   FellingOperationType = "None"
	OperationClearFelling           FellingOperationType = "ClearFelling"
	OperationFellingOfCoppice       FellingOperationType = "FellingOfCoppice"
	OperationFellingIndividualTrees FellingOperationType = "FellingIndividualTrees"
	OperationRegenerationFelling    FellingOperationType = "RegenerationFelling"
	OperationThinning               FellingOperationType = "Thinning"
)

var operationTypes = map[FellingOperationType]bool{
	OperationNone:                   true,
	OperationClearFelling:           true,
	OperationFellingOfCoppice:       true,
	OperationFellingIndividualTrees: true,
	OperationRegenerationFelling:    true,
	OperationThinning:               true,
}

// Valid reports whether t is a known operation type.
func (t FellingOperationType) Valid() bool { return operationTypes[t] }

// AllowsRestocking reports whether the operation produces restockable area.
// Thinning leaves the canopy in place, so restocking never applies.
func (t FellingOperationType) AllowsRestocking() bool { return t != OperationThinning }

// RestockingProposalType is how the felled area (or an alternative area) will be restocked.
type RestockingProposalType string

const (
	ProposalNone                                RestockingProposalType = "None"
	ProposalCreateDesignedOpenGround            RestockingProposalType = "CreateDesignedOpenGround"
	ProposalDoNotIntendToRestock                RestockingProposalType = "DoNotIntendToRestock"
	ProposalPlantAnAlternativeArea              RestockingProposalType = "PlantAnAlternativeArea"
	ProposalNaturallyRegenerateAlternativeArea  RestockingProposalType = "NaturallyRegenerateAlternativeArea"
	ProposalPlantAnAlternativeAreaWithTrees     RestockingProposalType = "PlantAnAlternativeAreaWithIndividualTrees"
	ProposalReplantTheFelledArea                RestockingProposalType = "ReplantTheFelledArea"
	ProposalRestockByNaturalRegeneration        RestockingProposalType = "RestockByNaturalRegeneration"
	ProposalRestockWithCoppiceRegrowth          RestockingProposalType = "RestockWithCoppiceRegrowth"
	ProposalRestockWithIndividualTrees          RestockingProposalType = "RestockWithIndividualTrees"
)

var proposalTypes = map[RestockingProposalType]bool{
	ProposalNone:                               true,
	ProposalCreateDesignedOpenGround:           true,
	ProposalDoNotIntendToRestock:               true,
	ProposalPlantAnAlternativeArea:             true,
	ProposalNaturallyRegenerateAlternativeArea: true,
	ProposalPlantAnAlternativeAreaWithTrees:    true,
	ProposalReplantTheFelledArea:               true,
	ProposalRestockByNaturalRegeneration:       true,
	ProposalRestockWithCoppiceRegrowth:         true,
	ProposalRestockWithIndividualTrees:         true,
}

// Valid reports whether p is a known proposal type.
func (p RestockingProposalType) Valid() bool { return proposalTypes[p] }

// IsAlternativeArea reports whether restocking happens on a compartment
// other than the one being felled.
func (p RestockingProposalType) IsAlternativeArea() bool {
	return p == ProposalPlantAnAlternativeArea || p == ProposalPlantAnAlternativeAreaWithTrees
}

// =============================================================================
// COMPARTMENT
// =============================================================================

// Compartment is a physical subdivision of the property under licence.
type Compartment struct {
	ID                     uuid.UUID
	CompartmentNumber      string
	SubCompartmentName     string
	Designation            string
	TotalHectares          decimal.Decimal
	ConfirmedTotalHectares decimal.Decimal
}

// DisplayName renders "1a" style names used in messages.
func (c Compartment) DisplayName() string {
	return c.CompartmentNumber + c.SubCompartmentName
}

// =============================================================================
// ORIGIN - Imported vs reviewer-added
// =============================================================================

// Origin records where a confirmed record came from. It is either Imported
// (copied from a proposed record, and therefore revertible) or ReviewerAdded.
type Origin interface {
	isOrigin()
}

// Imported marks a confirmed record copied from the proposed plan.
type Imported struct {
	ProposedID uuid.UUID
}

// ReviewerAdded marks a confirmed record created during review.
type ReviewerAdded struct{}

func (Imported) isOrigin()      {}
func (ReviewerAdded) isOrigin() {}

// ProposedIDOf returns the proposed record id for imported origins.
// A nil origin is treated as ReviewerAdded.
func ProposedIDOf(o Origin) (uuid.UUID, bool) {
	if imp, ok := o.(Imported); ok {
		return imp.ProposedID, true
	}
	return uuid.Nil, false
}

// OriginFromProposedID maps a nullable back-reference onto an Origin.
func OriginFromProposedID(id *uuid.UUID) Origin {
	if id == nil || *id == uuid.Nil {
		return ReviewerAdded{}
	}
	return Imported{ProposedID: *id}
}

// =============================================================================
// SPECIES
// =============================================================================

// FellingSpecies is one species selected for a felling operation.
type FellingSpecies struct {
	Species string
}

// RestockingSpecies is one species selected for restocking, with its share.
type RestockingSpecies struct {
	Species    string
	Percentage decimal.Decimal
}

// =============================================================================
// FELLING / RESTOCKING FACTS - shared by proposed and confirmed records
// =============================================================================

// FellingFacts are the scalar fields of a felling operation.
type FellingFacts struct {
	OperationType                  FellingOperationType
	AreaToBeFelled                 decimal.Decimal
	NumberOfTrees                  *int
	IsTreeMarkingUsed              *bool
	TreeMarking                    *string
	IsPartOfTreePreservationOrder  *bool
	TreePreservationOrderReference *string
	IsWithinConservationArea       *bool
	ConservationAreaReference      *string
	EstimatedTotalFellingVolume    decimal.Decimal
	IsRestocking                   *bool
	NoRestockingReason             *string
}

// RestockingFacts are the scalar fields of a restocking proposal.
type RestockingFacts struct {
	ProposalType               RestockingProposalType
	Area                       decimal.Decimal
	RestockingDensity          decimal.Decimal
	PercentOpenSpace           decimal.NullDecimal
	PercentNaturalRegeneration decimal.NullDecimal
	NumberOfTrees              *int
}

// =============================================================================
// PROPOSED PLAN (read-only)
// =============================================================================

// ProposedFellingDetail is one felling operation in the applicant's submitted plan.
type ProposedFellingDetail struct {
	ID            uuid.UUID
	CompartmentID uuid.UUID
	FellingFacts
	Species    []FellingSpecies
	Restocking []ProposedRestockingDetail
}

// ProposedRestockingDetail is one restocking proposal in the submitted plan.
// CompartmentID is the compartment the applicant proposed to restock.
type ProposedRestockingDetail struct {
	ID            uuid.UUID
	CompartmentID uuid.UUID
	RestockingFacts
	Species []RestockingSpecies
}

// =============================================================================
// CONFIRMED WORKING COPY
// =============================================================================

// ConfirmedFellingDetail is one felling operation confirmed for a compartment.
// ID is uuid.Nil until the record is persisted.
type ConfirmedFellingDetail struct {
	ID            uuid.UUID
	CompartmentID uuid.UUID
	Origin        Origin
	FellingFacts
	Amended    AmendedProperties
	Species    []FellingSpecies
	Restocking []ConfirmedRestockingDetail
}

// IsNew reports whether the detail has not been persisted yet.
func (d ConfirmedFellingDetail) IsNew() bool { return d.ID == uuid.Nil }

// RestockingByID returns the index of a restocking child, or -1.
func (d ConfirmedFellingDetail) RestockingByID(id uuid.UUID) int {
	for i := range d.Restocking {
		if d.Restocking[i].ID == id {
			return i
		}
	}
	return -1
}

// ConfirmedRestockingDetail is one restocking proposal tied to a felling detail.
//
// CompartmentID is the compartment being restocked. It is derived on every
// save: alternative-area proposals restock AlternativeCompartmentID, every
// other proposal type restocks the felling compartment.
type ConfirmedRestockingDetail struct {
	ID                       uuid.UUID
	FellingDetailID          uuid.UUID
	Origin                   Origin
	CompartmentID            uuid.UUID
	CompartmentNumber        string
	AlternativeCompartmentID *uuid.UUID
	RestockingFacts
	Amended AmendedProperties
	Species []RestockingSpecies
}

// CompartmentDetails groups the confirmed felling details of one compartment.
type CompartmentDetails struct {
	Compartment Compartment
	Felling     []ConfirmedFellingDetail
}

// CompartmentChanges is the full replacement set of felling details for one compartment.
type CompartmentChanges struct {
	CompartmentID uuid.UUID
	Felling       []ConfirmedFellingDetail
}

// ImportOptions controls ImportProposedToConfirmed.
type ImportOptions struct {
	// Reimport clears any existing confirmed property detail first.
	Reimport bool
}

func (d ConfirmedFellingDetail) String() string {
	return fmt.Sprintf("felling %s (%s, %s ha)", d.ID, d.OperationType, d.AreaToBeFelled)
}
