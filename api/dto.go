/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the review domain model from the external API contract:
  - Origin becomes a nullable proposed_*_id
  - Amended properties become a list of field names
  - Decimals travel as strings so hectares never lose precision

NAMING CONVENTION:
  - *DTO: Response types returned to clients (some are also accepted as input)
  - *Request: Request body types from clients

TYPES:
  Confirmed plan:
    CompartmentDetailsDTO, CompartmentDTO, FellingDTO, RestockingDTO,
    RestockingSpeciesDTO, SaveChangesRequest, ImportRequest

  Review state:
    ReviewStateDTO, SectionRequest, PriorityOpenHabitatRequest,
    TreeHealthRequest, DesignationsDTO, Pw14ChecksDTO, ConditionalStatusDTO,
    CompleteReviewRequest, CompletionDTO

  Audit:
    AuditEventDTO

VALIDATION:
  Validation is done by the review engine, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - review/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forestry/woodland-review/review"
)

// =============================================================================
// CONFIRMED FELLING AND RESTOCKING
// =============================================================================

// CompartmentDetailsDTO is one compartment with its confirmed felling.
type CompartmentDetailsDTO struct {
	Compartment CompartmentDTO `json:"compartment"`
	Felling     []FellingDTO   `json:"felling"`
}

// CompartmentDTO represents a confirmed compartment.
type CompartmentDTO struct {
	ID                     uuid.UUID       `json:"id"`
	CompartmentNumber      string          `json:"compartment_number"`
	SubCompartmentName     string          `json:"sub_compartment_name,omitempty"`
	DisplayName            string          `json:"display_name"`
	Designation            string          `json:"designation,omitempty"`
	TotalHectares          decimal.Decimal `json:"total_hectares"`
	ConfirmedTotalHectares decimal.Decimal `json:"confirmed_total_hectares"`
}

// FellingDTO is a confirmed felling detail. It is also the request body for
// adding or amending a single felling detail.
type FellingDTO struct {
	ID                             uuid.UUID       `json:"id"`
	CompartmentID                  uuid.UUID       `json:"compartment_id"`
	ProposedFellingDetailsID       *uuid.UUID      `json:"proposed_felling_details_id"`
	OperationType                  string          `json:"operation_type"`
	AreaToBeFelled                 decimal.Decimal `json:"area_to_be_felled"`
	NumberOfTrees                  *int            `json:"number_of_trees"`
	IsTreeMarkingUsed              *bool           `json:"is_tree_marking_used"`
	TreeMarking                    *string         `json:"tree_marking"`
	IsPartOfTreePreservationOrder  *bool           `json:"is_part_of_tree_preservation_order"`
	TreePreservationOrderReference *string         `json:"tree_preservation_order_reference"`
	IsWithinConservationArea       *bool           `json:"is_within_conservation_area"`
	ConservationAreaReference      *string         `json:"conservation_area_reference"`
	EstimatedTotalFellingVolume    decimal.Decimal `json:"estimated_total_felling_volume"`
	IsRestocking                   *bool           `json:"is_restocking"`
	NoRestockingReason             *string         `json:"no_restocking_reason"`
	AmendedProperties              []string        `json:"amended_properties"`
	Species                        []string        `json:"species"`
	Restocking                     []RestockingDTO `json:"restocking"`
}

// RestockingDTO is a confirmed restocking detail. It is also the request body
// for saving a single restocking detail.
type RestockingDTO struct {
	ID                          uuid.UUID              `json:"id"`
	FellingDetailID             uuid.UUID              `json:"felling_detail_id"`
	ProposedRestockingDetailsID *uuid.UUID             `json:"proposed_restocking_details_id"`
	CompartmentID               uuid.UUID              `json:"compartment_id"`
	CompartmentNumber           string                 `json:"compartment_number,omitempty"`
	AlternativeCompartmentID    *uuid.UUID             `json:"alternative_compartment_id"`
	ProposalType                string                 `json:"proposal_type"`
	Area                        decimal.Decimal        `json:"area"`
	RestockingDensity           decimal.Decimal        `json:"restocking_density"`
	PercentOpenSpace            decimal.NullDecimal    `json:"percent_open_space"`
	PercentNaturalRegeneration  decimal.NullDecimal    `json:"percent_natural_regeneration"`
	NumberOfTrees               *int                   `json:"number_of_trees"`
	AmendedProperties           []string               `json:"amended_properties"`
	Species                     []RestockingSpeciesDTO `json:"species"`
}

// RestockingSpeciesDTO is one species share of a restocking detail.
type RestockingSpeciesDTO struct {
	Species    string          `json:"species"`
	Percentage decimal.Decimal `json:"percentage"`
}

// ImportRequest is the optional body of the import endpoint.
type ImportRequest struct {
	Reimport bool `json:"reimport"`
}

// SaveChangesRequest replaces the felling of each listed compartment.
type SaveChangesRequest struct {
	Compartments []CompartmentChangesDTO `json:"compartments"`
}

// CompartmentChangesDTO is the full felling set for one compartment.
type CompartmentChangesDTO struct {
	CompartmentID uuid.UUID    `json:"compartment_id"`
	Felling       []FellingDTO `json:"felling"`
}

// CreatedDTO returns the id of a newly created record.
type CreatedDTO struct {
	ID uuid.UUID `json:"id"`
}

// =============================================================================
// REVIEW STATE
// =============================================================================

// ReviewStateDTO represents the woodland officer review state.
type ReviewStateDTO struct {
	ApplicationID                           uuid.UUID            `json:"application_id"`
	ConfirmedFellingAndRestockingComplete   bool                 `json:"confirmed_felling_and_restocking_complete"`
	DesignationsComplete                    *bool                `json:"designations_complete"`
	IsPriorityOpenHabitat                   *bool                `json:"is_priority_open_habitat"`
	PriorityOpenHabitatComplete             *bool                `json:"priority_open_habitat_complete"`
	TreeHealthCheckComplete                 *bool                `json:"tree_health_check_complete"`
	Pw14Checks                              Pw14ChecksDTO        `json:"pw14_checks"`
	Conditional                             ConditionalStatusDTO `json:"conditional"`
	IncompleteSections                      []string             `json:"incomplete_sections"`
	WoodlandOfficerReviewComplete           bool                 `json:"woodland_officer_review_complete"`
	CompletedAt                             *time.Time           `json:"completed_at,omitempty"`
	RecommendedLicenceDuration              int                  `json:"recommended_licence_duration,omitempty"`
	RecommendationForDecisionPublicRegister *bool                `json:"recommendation_for_decision_public_register"`
	LastUpdatedBy                           *uuid.UUID           `json:"last_updated_by,omitempty"`
	LastUpdatedAt                           *time.Time           `json:"last_updated_at,omitempty"`
}

// SectionRequest marks a section complete or incomplete.
type SectionRequest struct {
	Complete bool `json:"complete"`
}

// PriorityOpenHabitatRequest records the priority open habitat answer.
type PriorityOpenHabitatRequest struct {
	IsPriorityOpenHabitat bool `json:"is_priority_open_habitat"`
	Complete              bool `json:"complete"`
}

// TreeHealthRequest records the tree health check.
type TreeHealthRequest struct {
	Confirmed bool `json:"confirmed"`
}

// DesignationsDTO represents the designations of one compartment.
type DesignationsDTO struct {
	CompartmentID    uuid.UUID `json:"compartment_id"`
	Sssi             bool      `json:"sssi"`
	Sac              bool      `json:"sac"`
	Spa              bool      `json:"spa"`
	Ramsar           bool      `json:"ramsar"`
	Sbi              bool      `json:"sbi"`
	Other            bool      `json:"other"`
	OtherDesignation *string   `json:"other_designation"`
	None             bool      `json:"none"`
	PawsPercentage   *int      `json:"paws_percentage"`
}

// Pw14ChecksDTO represents the PW14 checklist.
type Pw14ChecksDTO struct {
	LandInformationSearchChecked       *bool `json:"land_information_search_checked"`
	AreProposalsUkfsCompliant          *bool `json:"are_proposals_ukfs_compliant"`
	TpoOrCaDeclared                    *bool `json:"tpo_or_ca_declared"`
	IsApplicationValid                 *bool `json:"is_application_valid"`
	EiaThresholdExceeded               *bool `json:"eia_threshold_exceeded"`
	EiaTrackerCompleted                *bool `json:"eia_tracker_completed"`
	EiaChecklistDone                   *bool `json:"eia_checklist_done"`
	LocalAuthorityConsulted            *bool `json:"local_authority_consulted"`
	InterestDeclared                   *bool `json:"interest_declared"`
	InterestDeclarationCompleted       *bool `json:"interest_declaration_completed"`
	ComplianceRecommendationsEnacted   *bool `json:"compliance_recommendations_enacted"`
	MapAccuracyConfirmed               *bool `json:"map_accuracy_confirmed"`
	EpsLicenceConsidered               *bool `json:"eps_licence_considered"`
	Stage1HabitatRegulationsAssessment *bool `json:"stage1_habitat_regulations_assessment"`
	Complete                           bool  `json:"complete"`
}

// ConditionalStatusDTO represents the conditional licence decision.
type ConditionalStatusDTO struct {
	IsConditional             *bool      `json:"is_conditional"`
	ConditionsToApplicantDate *time.Time `json:"conditions_to_applicant_date"`
}

// CompleteReviewRequest completes the woodland officer review.
type CompleteReviewRequest struct {
	RecommendedLicenceDuration              int        `json:"recommended_licence_duration"`
	RecommendationForDecisionPublicRegister *bool      `json:"recommendation_for_decision_public_register"`
	CompletedAt                             *time.Time `json:"completed_at"`
}

// CompletionDTO reports a completed review.
type CompletionDTO struct {
	CompletedAt       time.Time `json:"completed_at"`
	NotificationsSent int       `json:"notifications_sent"`
	NotificationError string    `json:"notification_error,omitempty"`
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditEventDTO represents one audit event.
type AuditEventDTO struct {
	ID         uuid.UUID      `json:"id"`
	Type       string         `json:"type"`
	EntityID   uuid.UUID      `json:"entity_id"`
	UserID     uuid.UUID      `json:"user_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Source     string         `json:"source"`
	Payload    map[string]any `json:"payload"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toCompartmentDetailsDTOs(groups []review.CompartmentDetails) []CompartmentDetailsDTO {
	out := make([]CompartmentDetailsDTO, len(groups))
	for i, g := range groups {
		c := g.Compartment
		out[i] = CompartmentDetailsDTO{
			Compartment: CompartmentDTO{
				ID:                     c.ID,
				CompartmentNumber:      c.CompartmentNumber,
				SubCompartmentName:     c.SubCompartmentName,
				DisplayName:            c.DisplayName(),
				Designation:            c.Designation,
				TotalHectares:          c.TotalHectares,
				ConfirmedTotalHectares: c.ConfirmedTotalHectares,
			},
			Felling: make([]FellingDTO, len(g.Felling)),
		}
		for j, f := range g.Felling {
			out[i].Felling[j] = toFellingDTO(f)
		}
	}
	return out
}

func toFellingDTO(f review.ConfirmedFellingDetail) FellingDTO {
	dto := FellingDTO{
		ID:                             f.ID,
		CompartmentID:                  f.CompartmentID,
		ProposedFellingDetailsID:       proposedID(f.Origin),
		OperationType:                  string(f.OperationType),
		AreaToBeFelled:                 f.AreaToBeFelled,
		NumberOfTrees:                  f.NumberOfTrees,
		IsTreeMarkingUsed:              f.IsTreeMarkingUsed,
		TreeMarking:                    f.TreeMarking,
		IsPartOfTreePreservationOrder:  f.IsPartOfTreePreservationOrder,
		TreePreservationOrderReference: f.TreePreservationOrderReference,
		IsWithinConservationArea:       f.IsWithinConservationArea,
		ConservationAreaReference:      f.ConservationAreaReference,
		EstimatedTotalFellingVolume:    f.EstimatedTotalFellingVolume,
		IsRestocking:                   f.IsRestocking,
		NoRestockingReason:             f.NoRestockingReason,
		AmendedProperties:              fieldNames(f.Amended),
		Species:                        make([]string, len(f.Species)),
		Restocking:                     make([]RestockingDTO, len(f.Restocking)),
	}
	for i, s := range f.Species {
		dto.Species[i] = s.Species
	}
	for i, r := range f.Restocking {
		dto.Restocking[i] = toRestockingDTO(r)
	}
	return dto
}

func toRestockingDTO(r review.ConfirmedRestockingDetail) RestockingDTO {
	dto := RestockingDTO{
		ID:                          r.ID,
		FellingDetailID:             r.FellingDetailID,
		ProposedRestockingDetailsID: proposedID(r.Origin),
		CompartmentID:               r.CompartmentID,
		CompartmentNumber:           r.CompartmentNumber,
		AlternativeCompartmentID:    r.AlternativeCompartmentID,
		ProposalType:                string(r.ProposalType),
		Area:                        r.Area,
		RestockingDensity:           r.RestockingDensity,
		PercentOpenSpace:            r.PercentOpenSpace,
		PercentNaturalRegeneration:  r.PercentNaturalRegeneration,
		NumberOfTrees:               r.NumberOfTrees,
		AmendedProperties:           fieldNames(r.Amended),
		Species:                     make([]RestockingSpeciesDTO, len(r.Species)),
	}
	for i, s := range r.Species {
		dto.Species[i] = RestockingSpeciesDTO{Species: s.Species, Percentage: s.Percentage}
	}
	return dto
}

// fromFellingDTO maps a request body onto a detail. Origin and amended
// properties are owned by the engine and ignored here.
func fromFellingDTO(dto FellingDTO) (review.ConfirmedFellingDetail, []review.FellingSpecies) {
	f := review.ConfirmedFellingDetail{
		ID:            dto.ID,
		CompartmentID: dto.CompartmentID,
		FellingFacts: review.FellingFacts{
			OperationType:                  review.FellingOperationType(dto.OperationType),
			AreaToBeFelled:                 dto.AreaToBeFelled,
			NumberOfTrees:                  dto.NumberOfTrees,
			IsTreeMarkingUsed:              dto.IsTreeMarkingUsed,
			TreeMarking:                    dto.TreeMarking,
			IsPartOfTreePreservationOrder:  dto.IsPartOfTreePreservationOrder,
			TreePreservationOrderReference: dto.TreePreservationOrderReference,
			IsWithinConservationArea:       dto.IsWithinConservationArea,
			ConservationAreaReference:      dto.ConservationAreaReference,
			EstimatedTotalFellingVolume:    dto.EstimatedTotalFellingVolume,
			IsRestocking:                   dto.IsRestocking,
			NoRestockingReason:             dto.NoRestockingReason,
		},
	}
	species := make([]review.FellingSpecies, len(dto.Species))
	for i, s := range dto.Species {
		species[i] = review.FellingSpecies{Species: s}
	}
	for _, r := range dto.Restocking {
		rd, rs := fromRestockingDTO(r)
		rd.Species = rs
		f.Restocking = append(f.Restocking, rd)
	}
	return f, species
}

func fromRestockingDTO(dto RestockingDTO) (review.ConfirmedRestockingDetail, []review.RestockingSpecies) {
	r := review.ConfirmedRestockingDetail{
		ID:                       dto.ID,
		FellingDetailID:          dto.FellingDetailID,
		AlternativeCompartmentID: dto.AlternativeCompartmentID,
		RestockingFacts: review.RestockingFacts{
			ProposalType:               review.RestockingProposalType(dto.ProposalType),
			Area:                       dto.Area,
			RestockingDensity:          dto.RestockingDensity,
			PercentOpenSpace:           dto.PercentOpenSpace,
			PercentNaturalRegeneration: dto.PercentNaturalRegeneration,
			NumberOfTrees:              dto.NumberOfTrees,
		},
	}
	species := make([]review.RestockingSpecies, len(dto.Species))
	for i, s := range dto.Species {
		species[i] = review.RestockingSpecies{Species: s.Species, Percentage: s.Percentage}
	}
	return r, species
}

func toReviewStateDTO(s *review.WoodlandOfficerReviewState) ReviewStateDTO {
	dto := ReviewStateDTO{
		ApplicationID:                           s.ApplicationID,
		ConfirmedFellingAndRestockingComplete:   s.ConfirmedFellingAndRestockingComplete,
		DesignationsComplete:                    s.DesignationsComplete,
		IsPriorityOpenHabitat:                   s.IsPriorityOpenHabitat,
		PriorityOpenHabitatComplete:             s.PriorityOpenHabitatComplete,
		TreeHealthCheckComplete:                 s.TreeHealthCheckComplete,
		Pw14Checks:                              Pw14ChecksDTO(s.Pw14Checks),
		Conditional:                             ConditionalStatusDTO(s.Conditional),
		IncompleteSections:                      []string{},
		WoodlandOfficerReviewComplete:           s.WoodlandOfficerReviewComplete,
		CompletedAt:                             s.CompletedAt,
		RecommendedLicenceDuration:              int(s.RecommendedLicenceDuration),
		RecommendationForDecisionPublicRegister: s.RecommendationForDecisionPublicRegister,
	}
	for _, section := range s.IncompleteSections() {
		dto.IncompleteSections = append(dto.IncompleteSections, string(section))
	}
	if s.LastUpdatedBy != uuid.Nil {
		by, at := s.LastUpdatedBy, s.LastUpdatedAt
		dto.LastUpdatedBy, dto.LastUpdatedAt = &by, &at
	}
	return dto
}

func toAuditEventDTOs(events []review.AuditEvent) []AuditEventDTO {
	out := make([]AuditEventDTO, len(events))
	for i, e := range events {
		out[i] = AuditEventDTO{
			ID:         e.ID,
			Type:       string(e.Type),
			EntityID:   e.EntityID,
			UserID:     e.UserID,
			OccurredAt: e.OccurredAt,
			Source:     e.Source,
			Payload:    e.Payload,
		}
	}
	return out
}

func proposedID(o review.Origin) *uuid.UUID {
	if id, ok := review.ProposedIDOf(o); ok {
		return &id
	}
	return nil
}

func fieldNames(a review.AmendedProperties) []string {
	out := make([]string, len(a))
	for i, f := range a {
		out[i] = string(f)
	}
	return out
}
