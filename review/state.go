/*
state.go - Woodland officer review state

PURPOSE:
  One WoodlandOfficerReviewState per application. Each review section has
  its own completion flag; the overall WoodlandOfficerReviewComplete gate can
  only be set once every section is complete.

  Flags are written exclusively by Tracker operations. Nothing else in the
  module assigns a completion flag.

SECTIONS:
  ConfirmedFellingAndRestocking  confirmed plan has been reviewed
  Designations                   compartment designations reviewed
  PriorityOpenHabitat            priority open habitat question answered
  TreeHealth                     tree health check confirmed
  Pw14Checks                     PW14 checklist complete
  Conditions                     conditional status decided (and sent, if conditional)
*/
package review

import (
	"time"

	"github.com/google/uuid"
)

// Section names one review section.
type Section string

const (
	SectionConfirmedFellingAndRestocking Section = "ConfirmedFellingAndRestocking"
	SectionDesignations                  Section = "Designations"
	SectionPriorityOpenHabitat           Section = "PriorityOpenHabitat"
	SectionTreeHealth                    Section = "TreeHealth"
	SectionPw14Checks                    Section = "Pw14Checks"
	SectionConditions                    Section = "Conditions"
	SectionOverall                       Section = "WoodlandOfficerReview"
)

// AllSections lists the sections the overall gate depends on, in display order.
var AllSections = []Section{
	SectionConfirmedFellingAndRestocking,
	SectionDesignations,
	SectionPriorityOpenHabitat,
	SectionTreeHealth,
	SectionPw14Checks,
	SectionConditions,
}

// RecommendedLicenceDuration is the woodland officer's recommended licence length in years.
type RecommendedLicenceDuration int

const (
	LicenceDurationNone RecommendedLicenceDuration = 0
	LicenceDurationMin  RecommendedLicenceDuration = 1
	LicenceDurationMax  RecommendedLicenceDuration = 10
)

// Pw14Checks is the PW14 checklist. Complete may only be set once every
// required answer is present.
type Pw14Checks struct {
	LandInformationSearchChecked       *bool
	AreProposalsUkfsCompliant          *bool
	TpoOrCaDeclared                    *bool
	IsApplicationValid                 *bool
	EiaThresholdExceeded               *bool
	EiaTrackerCompleted                *bool
	EiaChecklistDone                   *bool
	LocalAuthorityConsulted            *bool
	InterestDeclared                   *bool
	InterestDeclarationCompleted       *bool
	ComplianceRecommendationsEnacted   *bool
	MapAccuracyConfirmed               *bool
	EpsLicenceConsidered               *bool
	Stage1HabitatRegulationsAssessment *bool
	Complete                           bool
}

// ConditionalStatus records whether the licence will carry conditions and,
// if so, when the conditions were sent to the applicant.
type ConditionalStatus struct {
	IsConditional             *bool
	ConditionsToApplicantDate *time.Time
}

// CompartmentDesignations records the designations reviewed for one compartment.
type CompartmentDesignations struct {
	CompartmentID    uuid.UUID
	Sssi             bool
	Sac              bool
	Spa              bool
	Ramsar           bool
	Sbi              bool
	Other            bool
	OtherDesignation *string
	None             bool
	PawsPercentage   *int
}

// WoodlandOfficerReviewState is the review-completion state of one application.
type WoodlandOfficerReviewState struct {
	ApplicationID uuid.UUID

	ConfirmedFellingAndRestockingComplete bool
	DesignationsComplete                  *bool
	IsPriorityOpenHabitat                 *bool
	PriorityOpenHabitatComplete           *bool
	TreeHealthCheckComplete               *bool
	Pw14Checks                            Pw14Checks
	Conditional                           ConditionalStatus

	WoodlandOfficerReviewComplete           bool
	CompletedAt                             *time.Time
	RecommendedLicenceDuration              RecommendedLicenceDuration
	RecommendationForDecisionPublicRegister *bool

	LastUpdatedBy uuid.UUID
	LastUpdatedAt time.Time
}

// NewReviewState returns the initial state for an application.
func NewReviewState(applicationID uuid.UUID) *WoodlandOfficerReviewState {
	return &WoodlandOfficerReviewState{ApplicationID: applicationID}
}

// SectionComplete reports the completion of one section.
func (s *WoodlandOfficerReviewState) SectionComplete(section Section) bool {
	switch section {
	case SectionConfirmedFellingAndRestocking:
		return s.ConfirmedFellingAndRestockingComplete
	case SectionDesignations:
		return isTrue(s.DesignationsComplete)
	case SectionPriorityOpenHabitat:
		return isTrue(s.PriorityOpenHabitatComplete)
	case SectionTreeHealth:
		return isTrue(s.TreeHealthCheckComplete)
	case SectionPw14Checks:
		return s.Pw14Checks.Complete
	case SectionConditions:
		return s.Conditional.decided()
	case SectionOverall:
		return s.WoodlandOfficerReviewComplete
	}
	return false
}

// IncompleteSections lists the sections still open, in display order.
func (s *WoodlandOfficerReviewState) IncompleteSections() []Section {
	var open []Section
	for _, section := range AllSections {
		if !s.SectionComplete(section) {
			open = append(open, section)
		}
	}
	return open
}

// AllSectionsComplete is the precondition of the overall completion gate.
func (s *WoodlandOfficerReviewState) AllSectionsComplete() bool {
	return len(s.IncompleteSections()) == 0
}

func (c ConditionalStatus) decided() bool {
	if c.IsConditional == nil {
		return false
	}
	return !*c.IsConditional || c.ConditionsToApplicantDate != nil
}

func (p Pw14Checks) missingAnswers() []string {
	required := []struct {
		name  string
		value *bool
	}{
		{"LandInformationSearchChecked", p.LandInformationSearchChecked},
		{"AreProposalsUkfsCompliant", p.AreProposalsUkfsCompliant},
		{"TpoOrCaDeclared", p.TpoOrCaDeclared},
		{"IsApplicationValid", p.IsApplicationValid},
		{"EiaThresholdExceeded", p.EiaThresholdExceeded},
		{"LocalAuthorityConsulted", p.LocalAuthorityConsulted},
		{"InterestDeclared", p.InterestDeclared},
		{"ComplianceRecommendationsEnacted", p.ComplianceRecommendationsEnacted},
		{"MapAccuracyConfirmed", p.MapAccuracyConfirmed},
		{"EpsLicenceConsidered", p.EpsLicenceConsidered},
		{"Stage1HabitatRegulationsAssessment", p.Stage1HabitatRegulationsAssessment},
	}
	var missing []string
	for _, r := range required {
		if r.value == nil {
			missing = append(missing, r.name)
		}
	}
	if isTrue(p.EiaThresholdExceeded) {
		if p.EiaTrackerCompleted == nil {
			missing = append(missing, "EiaTrackerCompleted")
		}
		if p.EiaChecklistDone == nil {
			missing = append(missing, "EiaChecklistDone")
		}
	}
	if isTrue(p.InterestDeclared) && p.InterestDeclarationCompleted == nil {
		missing = append(missing, "InterestDeclarationCompleted")
	}
	return missing
}

func isTrue(b *bool) bool { return b != nil && *b }

func boolPtr(b bool) *bool { return &b }
