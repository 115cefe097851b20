/*
tracker.go - Review State Tracker

PURPOSE:
  The only writer of WoodlandOfficerReviewState. Each review section has a
  named operation; no section is ever completed as a side effect of another.

  The Reconciliation Engine does not call the public operations below (that
  would open a second transaction). It calls the unexported helpers with its
  own Transaction so the detail mutation and the flag write commit together.

OPERATIONS:
  HandleConfirmedFellingAndRestockingChanges  felling & restocking section
  CompletePriorityOpenHabitat                 priority open habitat section
  ConfirmTreeHealthCheck                      tree health section
  UpdateCompartmentDesignations               one compartment's designations
  UpdateApplicationCompartmentDesignationsCompleted
  UpdatePw14Checks                            PW14 checklist
  UpdateConditionalStatus                     conditions section
  CompleteWoodlandOfficerReview               terminal gate (completion.go)

SEE ALSO:
  - state.go: WoodlandOfficerReviewState and section rules
  - completion.go: overall completion and notifications
*/
package review

import (
	"context"

	"github.com/google/uuid"
)

// Tracker owns the woodland officer review state machine.
type Tracker struct {
	runner
	notifier Notifier
	users    UserDirectory
}

// NewTracker creates a tracker. Store, Apps, Audit, Notifier and Users are required.
func NewTracker(d Deps) *Tracker {
	if d.Notifier == nil {
		panic("review: Deps.Notifier is required")
	}
	if d.Users == nil {
		panic("review: Deps.Users is required")
	}
	return &Tracker{
		runner:   newRunner(d),
		notifier: d.Notifier,
		users:    d.Users,
	}
}

// =============================================================================
// SECTION OPERATIONS
// =============================================================================

// HandleConfirmedFellingAndRestockingChanges sets the felling and restocking
// section flag. Marking it complete requires at least one confirmed detail.
func (t *Tracker) HandleConfirmedFellingAndRestockingChanges(ctx context.Context, applicationID, userID uuid.UUID, complete bool) error {
	op := t.sectionOp("HandleConfirmedFellingAndRestockingChanges", SectionConfirmedFellingAndRestocking, applicationID, userID)
	payload := map[string]any{"complete": complete}
	return t.updateSection(ctx, op, payload, func(tx Transaction, state *WoodlandOfficerReviewState) error {
		return t.setFellingAndRestocking(ctx, tx, state, complete)
	})
}

// CompletePriorityOpenHabitat records the priority open habitat answer and
// the section's completion.
func (t *Tracker) CompletePriorityOpenHabitat(ctx context.Context, applicationID, userID uuid.UUID, isPriorityOpenHabitat, complete bool) error {
	op := t.sectionOp("CompletePriorityOpenHabitat", SectionPriorityOpenHabitat, applicationID, userID)
	payload := map[string]any{"isPriorityOpenHabitat": isPriorityOpenHabitat, "complete": complete}
	return t.updateSection(ctx, op, payload, func(_ Transaction, state *WoodlandOfficerReviewState) error {
		state.IsPriorityOpenHabitat = boolPtr(isPriorityOpenHabitat)
		state.PriorityOpenHabitatComplete = boolPtr(complete)
		return nil
	})
}

// ConfirmTreeHealthCheck records whether the tree health check has been confirmed.
func (t *Tracker) ConfirmTreeHealthCheck(ctx context.Context, applicationID, userID uuid.UUID, confirmed bool) error {
	op := t.sectionOp("ConfirmTreeHealthCheck", SectionTreeHealth, applicationID, userID)
	payload := map[string]any{"confirmed": confirmed}
	return t.updateSection(ctx, op, payload, func(_ Transaction, state *WoodlandOfficerReviewState) error {
		state.TreeHealthCheckComplete = boolPtr(confirmed)
		return nil
	})
}

// UpdateCompartmentDesignations records the designations of one confirmed
// compartment. The designations section is reopened.
func (t *Tracker) UpdateCompartmentDesignations(ctx context.Context, applicationID, userID uuid.UUID, d CompartmentDesignations) error {
	op := t.sectionOp("UpdateCompartmentDesignations", SectionDesignations, applicationID, userID)
	op.success, op.failure = AuditUpdateDesignations, AuditUpdateDesignationsFailure
	payload := map[string]any{"compartmentId": d.CompartmentID.String()}
	return t.updateSection(ctx, op, payload, func(tx Transaction, state *WoodlandOfficerReviewState) error {
		if err := validateDesignations(&d); err != nil {
			return err
		}
		compartments, err := tx.ListConfirmedCompartments(ctx, applicationID)
		if err != nil {
			return err
		}
		if _, ok := indexCompartments(compartments)[d.CompartmentID]; !ok {
			return notFound("compartment", d.CompartmentID)
		}
		if err := tx.SaveCompartmentDesignations(ctx, applicationID, d); err != nil {
			return err
		}
		state.DesignationsComplete = boolPtr(false)
		return nil
	})
}

// UpdateApplicationCompartmentDesignationsCompleted sets the designations
// section flag. Completing it requires a designations record for every
// confirmed compartment.
func (t *Tracker) UpdateApplicationCompartmentDesignationsCompleted(ctx context.Context, applicationID, userID uuid.UUID, complete bool) error {
	op := t.sectionOp("UpdateApplicationCompartmentDesignationsCompleted", SectionDesignations, applicationID, userID)
	op.success, op.failure = AuditUpdateDesignations, AuditUpdateDesignationsFailure
	payload := map[string]any{"complete": complete}
	return t.updateSection(ctx, op, payload, func(tx Transaction, state *WoodlandOfficerReviewState) error {
		if complete {
			if err := t.requireAllDesignations(ctx, tx, applicationID); err != nil {
				return err
			}
		}
		state.DesignationsComplete = boolPtr(complete)
		return nil
	})
}

// UpdatePw14Checks replaces the PW14 checklist. Complete is rejected while
// required answers are missing.
func (t *Tracker) UpdatePw14Checks(ctx context.Context, applicationID, userID uuid.UUID, checks Pw14Checks) error {
	op := t.sectionOp("UpdatePw14Checks", SectionPw14Checks, applicationID, userID)
	op.success, op.failure = AuditUpdatePw14Checks, AuditUpdatePw14ChecksFailure
	payload := map[string]any{"complete": checks.Complete}
	return t.updateSection(ctx, op, payload, func(_ Transaction, state *WoodlandOfficerReviewState) error {
		if checks.Complete {
			if missing := checks.missingAnswers(); len(missing) > 0 {
				return invalid("Pw14Checks", "unanswered: %v", missing)
			}
		}
		state.Pw14Checks = checks
		return nil
	})
}

// UpdateConditionalStatus records whether the licence is conditional and
// when conditions were sent. A non-conditional licence carries no date.
func (t *Tracker) UpdateConditionalStatus(ctx context.Context, applicationID, userID uuid.UUID, status ConditionalStatus) error {
	op := t.sectionOp("UpdateConditionalStatus", SectionConditions, applicationID, userID)
	op.success, op.failure = AuditUpdateConditionalStatus, AuditUpdateConditionalStatusFailure
	payload := map[string]any{}
	if status.IsConditional != nil {
		payload["isConditional"] = *status.IsConditional
	}
	return t.updateSection(ctx, op, payload, func(_ Transaction, state *WoodlandOfficerReviewState) error {
		if status.IsConditional == nil {
			return invalid("IsConditional", "must be answered")
		}
		if !*status.IsConditional {
			status.ConditionsToApplicantDate = nil
		}
		state.Conditional = status
		return nil
	})
}

// GetReviewState returns the review state, or a fresh state if none exists.
func (t *Tracker) GetReviewState(ctx context.Context, applicationID uuid.UUID) (*WoodlandOfficerReviewState, error) {
	op := operation{name: "GetReviewState", appID: applicationID}
	if _, err := t.requireApplication(ctx, applicationID); err != nil {
		return nil, t.wrap(op, err)
	}
	state, err := t.store.GetReviewState(ctx, applicationID)
	if err != nil {
		return nil, t.wrap(op, err)
	}
	if state == nil {
		state = NewReviewState(applicationID)
	}
	return state, nil
}

// =============================================================================
// HELPERS SHARED WITH THE ENGINE
// =============================================================================

// openState loads the state for writing inside tx. A completed review is locked.
func (t *Tracker) openState(ctx context.Context, tx Transaction, applicationID uuid.UUID) (*WoodlandOfficerReviewState, error) {
	state, err := tx.GetReviewState(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return NewReviewState(applicationID), nil
	}
	if state.WoodlandOfficerReviewComplete {
		return nil, ErrReviewComplete
	}
	return state, nil
}

// saveFellingAndRestocking is the engine's integration point: it writes the
// felling and restocking flag inside the caller's transaction.
func (t *Tracker) saveFellingAndRestocking(ctx context.Context, tx Transaction, state *WoodlandOfficerReviewState, userID uuid.UUID, complete bool) error {
	if err := t.setFellingAndRestocking(ctx, tx, state, complete); err != nil {
		return err
	}
	t.stamp(state, userID)
	return tx.SaveReviewState(ctx, state)
}

// reset replaces the state with a fresh one, clearing every flag and the lock.
func (t *Tracker) reset(ctx context.Context, tx Transaction, applicationID, userID uuid.UUID) error {
	if err := tx.DeleteReviewState(ctx, applicationID); err != nil {
		return err
	}
	state := NewReviewState(applicationID)
	t.stamp(state, userID)
	return tx.SaveReviewState(ctx, state)
}

func (t *Tracker) setFellingAndRestocking(ctx context.Context, tx Transaction, state *WoodlandOfficerReviewState, complete bool) error {
	if complete {
		details, err := tx.ListConfirmedFellingDetails(ctx, state.ApplicationID)
		if err != nil {
			return err
		}
		if len(details) == 0 {
			return ErrNoConfirmedDetails
		}
	}
	state.ConfirmedFellingAndRestockingComplete = complete
	return nil
}

func (t *Tracker) requireAllDesignations(ctx context.Context, tx Transaction, applicationID uuid.UUID) error {
	compartments, err := tx.ListConfirmedCompartments(ctx, applicationID)
	if err != nil {
		return err
	}
	recorded, err := tx.ListCompartmentDesignations(ctx, applicationID)
	if err != nil {
		return err
	}
	have := make(map[uuid.UUID]bool, len(recorded))
	for _, d := range recorded {
		have[d.CompartmentID] = true
	}
	SortCompartments(compartments)
	for _, c := range compartments {
		if !have[c.ID] {
			return invalid("Designations", "compartment %s has no designations recorded", c.DisplayName())
		}
	}
	return nil
}

func (t *Tracker) updateSection(
	ctx context.Context,
	op operation,
	payload map[string]any,
	mutate func(tx Transaction, state *WoodlandOfficerReviewState) error,
) error {
	load := func(ctx context.Context) error {
		_, err := t.requireApplication(ctx, op.appID)
		return err
	}
	return t.run(ctx, op, payload, load, func(tx Transaction) error {
		state, err := t.openState(ctx, tx, op.appID)
		if err != nil {
			return err
		}
		if err := mutate(tx, state); err != nil {
			return err
		}
		t.stamp(state, op.userID)
		return tx.SaveReviewState(ctx, state)
	})
}

func (t *Tracker) sectionOp(name string, section Section, applicationID, userID uuid.UUID) operation {
	return operation{
		name:    name,
		success: AuditUpdateWoodlandOfficerReview,
		failure: AuditUpdateWoodlandOfficerReviewFailure,
		appID:   applicationID,
		userID:  userID,
		section: section,
	}
}

func validateDesignations(d *CompartmentDesignations) error {
	if d.CompartmentID == uuid.Nil {
		return invalid("CompartmentID", "required")
	}
	designated := d.Sssi || d.Sac || d.Spa || d.Ramsar || d.Sbi || d.Other
	if d.None && designated {
		return invalid("None", "cannot be combined with other designations")
	}
	if d.Other && blank(d.OtherDesignation) {
		return invalid("OtherDesignation", "required when other is selected")
	}
	if !d.Other {
		d.OtherDesignation = nil
	}
	if d.PawsPercentage != nil && (*d.PawsPercentage < 0 || *d.PawsPercentage > 100) {
		return invalid("PawsPercentage", "must be between 0 and 100")
	}
	return nil
}
