package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// OVERALL COMPLETION - terminal transition of the woodland officer review
// =============================================================================

// CompletionRequest carries the recommendations recorded on completion.
type CompletionRequest struct {
	RecommendedLicenceDuration              RecommendedLicenceDuration
	RecommendationForDecisionPublicRegister *bool

	// CompletedAt defaults to the tracker's clock.
	CompletedAt time.Time
}

// CompletionOutcome reports the committed completion and the notification step.
// NotificationErr matches ErrNotification; the review data is committed regardless.
type CompletionOutcome struct {
	CompletedAt       time.Time
	NotificationsSent int
	NotificationErr   error
}

// CompleteWoodlandOfficerReview stamps the review complete once every section
// is complete, then notifies the field manager and the applicant.
//
// Notification happens after commit: a failed send is reported on the outcome
// and never undoes the completion.
func (t *Tracker) CompleteWoodlandOfficerReview(ctx context.Context, applicationID, userID uuid.UUID, req CompletionRequest) (CompletionOutcome, error) {
	op := operation{
		name:    "CompleteWoodlandOfficerReview",
		success: AuditCompleteWoodlandOfficerReview,
		failure: AuditCompleteWoodlandOfficerReviewFail,
		appID:   applicationID,
		userID:  userID,
		section: SectionOverall,
	}
	completedAt := req.CompletedAt
	if completedAt.IsZero() {
		completedAt = t.now()
	}
	completedAt = completedAt.UTC()

	payload := map[string]any{
		"recommendedLicenceDuration": int(req.RecommendedLicenceDuration),
		"completedAt":                completedAt,
	}
	if req.RecommendationForDecisionPublicRegister != nil {
		payload["publicRegister"] = *req.RecommendationForDecisionPublicRegister
	}

	var (
		summary *ApplicationSummary
		state   *WoodlandOfficerReviewState
	)
	load := func(ctx context.Context) error {
		var err error
		summary, err = t.requireApplication(ctx, applicationID)
		return err
	}
	err := t.run(ctx, op, payload, load, func(tx Transaction) error {
		if err := validateCompletion(req); err != nil {
			return err
		}
		var err error
		state, err = t.openState(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		if open := state.IncompleteSections(); len(open) > 0 {
			return fmt.Errorf("%w: %v", ErrSectionsIncomplete, open)
		}
		state.WoodlandOfficerReviewComplete = true
		state.CompletedAt = &completedAt
		state.RecommendedLicenceDuration = req.RecommendedLicenceDuration
		state.RecommendationForDecisionPublicRegister = req.RecommendationForDecisionPublicRegister
		t.stamp(state, userID)
		return tx.SaveReviewState(ctx, state)
	})
	if err != nil {
		return CompletionOutcome{}, err
	}

	outcome := CompletionOutcome{CompletedAt: completedAt}
	outcome.NotificationsSent, outcome.NotificationErr = t.notifyCompletion(ctx, summary, state, userID)
	if outcome.NotificationErr != nil {
		outcome.NotificationErr = &OperationError{
			Op:            op.name,
			Kind:          ErrNotification,
			ApplicationID: applicationID,
			Section:       SectionOverall,
			Err:           outcome.NotificationErr,
		}
		t.logger.Warn("review completed but notification failed",
			"application_id", applicationID,
			"sent", outcome.NotificationsSent,
			"error", outcome.NotificationErr,
		)
	}
	return outcome, nil
}

func validateCompletion(req CompletionRequest) error {
	d := req.RecommendedLicenceDuration
	if d < LicenceDurationMin || d > LicenceDurationMax {
		return invalid("RecommendedLicenceDuration", "must be between %d and %d years", LicenceDurationMin, LicenceDurationMax)
	}
	if req.RecommendationForDecisionPublicRegister == nil {
		return invalid("RecommendationForDecisionPublicRegister", "must be answered")
	}
	return nil
}

// notifyCompletion sends both completion notifications and returns how many
// were sent. User lookup failures count as notification failures.
func (t *Tracker) notifyCompletion(ctx context.Context, summary *ApplicationSummary, state *WoodlandOfficerReviewState, userID uuid.UUID) (int, error) {
	model, err := t.completionModel(ctx, summary, state, userID)
	if err != nil {
		return 0, err
	}

	var (
		sent int
		errs []error
	)
	send := func(notificationType NotificationType, recipientID uuid.UUID) {
		user, err := t.users.GetUserAccount(ctx, recipientID)
		if err == nil && user == nil {
			err = notFound("user account", recipientID)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notificationType, err))
			return
		}
		recipient := Recipient{UserID: user.ID, Name: user.FullName, Email: user.Email}
		if err := t.notifier.SendNotification(ctx, model, notificationType, recipient); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notificationType, err))
			return
		}
		sent++
	}

	if summary.AssignedFieldManagerID != nil {
		send(NotifyFieldManagerOfReviewCompletion, *summary.AssignedFieldManagerID)
	} else {
		errs = append(errs, fmt.Errorf("%s: no field manager assigned", NotifyFieldManagerOfReviewCompletion))
	}
	send(NotifyApplicantOfReviewCompletion, summary.ApplicantID)

	return sent, errors.Join(errs...)
}

func (t *Tracker) completionModel(ctx context.Context, summary *ApplicationSummary, state *WoodlandOfficerReviewState, userID uuid.UUID) (ReviewCompletionModel, error) {
	model := ReviewCompletionModel{
		ApplicationReference:       summary.Reference,
		PropertyName:               summary.PropertyName,
		RecommendedLicenceDuration: state.RecommendedLicenceDuration,
		PublicRegisterRecommended:  state.RecommendationForDecisionPublicRegister,
	}
	if state.CompletedAt != nil {
		model.CompletedAt = *state.CompletedAt
	}

	applicant, err := t.users.GetUserAccount(ctx, summary.ApplicantID)
	if err != nil {
		return model, fmt.Errorf("applicant: %w", err)
	}
	if applicant != nil {
		model.ApplicantName = applicant.FullName
		model.ApplicantEmail = applicant.Email
	}
	performer, err := t.users.GetUserAccount(ctx, userID)
	if err != nil {
		return model, fmt.Errorf("completing user: %w", err)
	}
	if performer != nil {
		model.CompletedByName = performer.FullName
	}
	area, err := t.apps.GetFcArea(ctx, summary.ID)
	if err != nil {
		return model, fmt.Errorf("fc area: %w", err)
	}
	if area != nil {
		model.AdminHubName = area.AdminHubName
		model.AdminHubAddress = area.AdminHubAddr
	}
	return model, nil
}
