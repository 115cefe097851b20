/*
collaborators.go - Interfaces consumed by the engine

PURPOSE:
  External collaborators the engine depends on but does not own:

  ProposedPlanSource  read-only submitted plan (compartments + proposed details)
  ApplicationContext  application summary, woodland owner, FC area config
  AuditSink           fire-and-forget audit publication
  Notifier            outbound notification transport
  UserDirectory       user-account lookup for notifications

  ApplicationContext replaces an inherited workflow base type: each
  operation gets exactly the capability it needs through injection.
*/
package review

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// PROPOSED PLAN
// =============================================================================

// ProposedPlanSource reads the applicant's submitted plan. It never mutates.
type ProposedPlanSource interface {
	GetSubmittedCompartments(ctx context.Context, applicationID uuid.UUID) ([]Compartment, error)
	GetProposedFellingAndRestocking(ctx context.Context, applicationID uuid.UUID) ([]ProposedFellingDetail, error)
}

// =============================================================================
// APPLICATION CONTEXT
// =============================================================================

// ApplicationSummary is the subset of the application the review needs.
type ApplicationSummary struct {
	ID                     uuid.UUID
	Reference              string
	PropertyName           string
	Status                 string
	ApplicantID            uuid.UUID
	WoodlandOwnerID        uuid.UUID
	AssignedFieldManagerID *uuid.UUID
	FcAreaCode             string
}

// WoodlandOwner is the owner of the property under licence.
type WoodlandOwner struct {
	ID               uuid.UUID
	ContactName      string
	ContactEmail     string
	OrganisationName string
}

// FcArea is the Forestry Commission area administering an application.
type FcArea struct {
	Code         string
	Name         string
	AdminHubName string
	AdminHubAddr string
}

// ApplicationContext provides summary retrieval, owner lookup and FC area config.
// Missing applications match ErrNotFound.
type ApplicationContext interface {
	GetApplicationSummary(ctx context.Context, applicationID uuid.UUID) (*ApplicationSummary, error)
	GetWoodlandOwner(ctx context.Context, applicationID uuid.UUID) (*WoodlandOwner, error)
	GetFcArea(ctx context.Context, applicationID uuid.UUID) (*FcArea, error)
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditEventType names an audit event. Every operation has a success and a
// failure variant.
type AuditEventType string

const (
	AuditImportProposedDetails            AuditEventType = "ImportProposedFellingAndRestocking"
	AuditImportProposedDetailsFailure     AuditEventType = "ImportProposedFellingAndRestockingFailure"
	AuditUpdateConfirmedDetails           AuditEventType = "UpdateConfirmedFellingAndRestocking"
	AuditUpdateConfirmedDetailsFailure    AuditEventType = "UpdateConfirmedFellingAndRestockingFailure"
	AuditUpdateConfirmedFelling           AuditEventType = "UpdateConfirmedFellingDetails"
	AuditUpdateConfirmedFellingFailure    AuditEventType = "UpdateConfirmedFellingDetailsFailure"
	AuditAddConfirmedFelling              AuditEventType = "AddConfirmedFellingDetails"
	AuditAddConfirmedFellingFailure       AuditEventType = "AddConfirmedFellingDetailsFailure"
	AuditRevertConfirmedFelling           AuditEventType = "RevertConfirmedFellingDetailAmendments"
	AuditRevertConfirmedFellingFailure    AuditEventType = "RevertConfirmedFellingDetailAmendmentsFailure"
	AuditDeleteConfirmedFelling           AuditEventType = "DeleteConfirmedFellingDetails"
	AuditDeleteConfirmedFellingFailure    AuditEventType = "DeleteConfirmedFellingDetailsFailure"
	AuditUpdateConfirmedRestocking        AuditEventType = "UpdateConfirmedRestockingDetails"
	AuditUpdateConfirmedRestockingFailure AuditEventType = "UpdateConfirmedRestockingDetailsFailure"
	AuditResetConfirmedDetails            AuditEventType = "ResetConfirmedFellingAndRestocking"
	AuditResetConfirmedDetailsFailure     AuditEventType = "ResetConfirmedFellingAndRestockingFailure"

	AuditUpdateWoodlandOfficerReview        AuditEventType = "UpdateWoodlandOfficerReview"
	AuditUpdateWoodlandOfficerReviewFailure AuditEventType = "UpdateWoodlandOfficerReviewFailure"
	AuditUpdateDesignations                 AuditEventType = "UpdateDesignations"
	AuditUpdateDesignationsFailure          AuditEventType = "UpdateDesignationsFailure"
	AuditUpdatePw14Checks                   AuditEventType = "UpdatePw14Checks"
	AuditUpdatePw14ChecksFailure            AuditEventType = "UpdatePw14ChecksFailure"
	AuditUpdateConditionalStatus            AuditEventType = "UpdateConditionalStatus"
	AuditUpdateConditionalStatusFailure     AuditEventType = "UpdateConditionalStatusFailure"
	AuditCompleteWoodlandOfficerReview      AuditEventType = "WoodlandOfficerReviewComplete"
	AuditCompleteWoodlandOfficerReviewFail  AuditEventType = "WoodlandOfficerReviewCompleteFailure"
)

// AuditEvent is one published audit record.
type AuditEvent struct {
	ID         uuid.UUID
	Type       AuditEventType
	EntityID   uuid.UUID
	UserID     uuid.UUID
	OccurredAt time.Time
	Source     string
	Payload    map[string]any
}

// AuditSink publishes audit events. Publication is fire-and-forget from the
// engine's perspective: a sink error is logged and never fails the operation.
type AuditSink interface {
	Publish(ctx context.Context, event AuditEvent) error
}

// AuditFilter selects events from an AuditLog.
type AuditFilter struct {
	EntityID *uuid.UUID
	UserID   *uuid.UUID
	Types    []AuditEventType
	From     *time.Time
	To       *time.Time
	Limit    int
}

// AuditLog is an AuditSink that can be queried. Append-only.
type AuditLog interface {
	AuditSink
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// =============================================================================
// NOTIFICATION
// =============================================================================

// NotificationType names an outbound notification template.
type NotificationType string

const (
	NotifyFieldManagerOfReviewCompletion NotificationType = "InformFieldManagerOfWoodlandOfficerReviewCompletion"
	NotifyApplicantOfReviewCompletion    NotificationType = "InformApplicantOfWoodlandOfficerReviewCompletion"
)

// Recipient is the addressee of a notification.
type Recipient struct {
	UserID uuid.UUID
	Name   string
	Email  string
}

// ReviewCompletionModel is the template model for completion notifications.
type ReviewCompletionModel struct {
	ApplicationReference       string
	PropertyName               string
	ApplicantName              string
	ApplicantEmail             string
	CompletedByName            string
	CompletedAt                time.Time
	RecommendedLicenceDuration RecommendedLicenceDuration
	PublicRegisterRecommended  *bool
	AdminHubName               string
	AdminHubAddress            string
}

// Notifier sends one notification. Only the review-completion transition uses it.
type Notifier interface {
	SendNotification(ctx context.Context, model any, notificationType NotificationType, recipient Recipient) error
}

// =============================================================================
// USER DIRECTORY
// =============================================================================

// UserAccount is an internal or external user.
type UserAccount struct {
	ID       uuid.UUID
	FullName string
	Email    string
	Role     string
}

// UserDirectory resolves user accounts. Missing users match ErrNotFound.
type UserDirectory interface {
	GetUserAccount(ctx context.Context, userID uuid.UUID) (*UserAccount, error)
}
