/*
engine.go - Confirmed Felling & Restocking Reconciliation Engine

PURPOSE:
  Imports the applicant's proposed plan into the confirmed working copy and
  applies every reviewer mutation to it: amend, add, revert, delete and
  restocking amend.

  Every mutation:
    1. reads collaborators (application, proposed plan) outside the transaction
    2. opens exactly one transaction
    3. normalises, validates and writes the confirmed records
    4. reopens the felling and restocking section through the Tracker, in the
       same transaction
    5. commits, then publishes one success audit event
  Any failure in 2-5 rolls back everything and publishes one failure event.

NORMALISATION (on every write):
  - Thinning clears IsRestocking, NoRestockingReason and restocking
  - Restocking with proposal type None is dropped
  - Restocking compartment is derived from the proposal type
  - Species lists are replaced wholesale

SEE ALSO:
  - normalize.go: normalisation and validation rules
  - amended.go: amended-properties diff
  - tracker.go: section completion
*/
package review

import (
	"context"

	"github.com/google/uuid"
)

// Engine reconciles confirmed felling and restocking details.
type Engine struct {
	runner
	proposed ProposedPlanSource
	tracker  *Tracker
}

// NewEngine creates an engine. Store, Proposed, Apps, Audit and tracker are required.
func NewEngine(d Deps, tracker *Tracker) *Engine {
	if d.Proposed == nil {
		panic("review: Deps.Proposed is required")
	}
	if tracker == nil {
		panic("review: tracker is required")
	}
	return &Engine{
		runner:   newRunner(d),
		proposed: d.Proposed,
		tracker:  tracker,
	}
}

// =============================================================================
// IMPORT
// =============================================================================

// ImportProposedToConfirmed copies the submitted compartments and every
// proposed felling detail into the confirmed working copy. Without
// opts.Reimport it fails with ErrConfirmedDetailsExist if anything has
// already been confirmed.
func (e *Engine) ImportProposedToConfirmed(ctx context.Context, applicationID, userID uuid.UUID, opts ImportOptions) error {
	op := e.detailOp("ImportProposedToConfirmed", AuditImportProposedDetails, AuditImportProposedDetailsFailure, applicationID, userID)
	payload := map[string]any{"reimport": opts.Reimport}

	var (
		submitted []Compartment
		proposed  []ProposedFellingDetail
	)
	load := func(ctx context.Context) error {
		if _, err := e.requireApplication(ctx, applicationID); err != nil {
			return err
		}
		var err error
		if submitted, err = e.proposed.GetSubmittedCompartments(ctx, applicationID); err != nil {
			return err
		}
		proposed, err = e.proposed.GetProposedFellingAndRestocking(ctx, applicationID)
		return err
	}

	return e.run(ctx, op, payload, load, func(tx Transaction) error {
		state, err := e.tracker.openState(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		existing, err := tx.ListConfirmedFellingDetails(ctx, applicationID)
		if err != nil {
			return err
		}
		if len(existing) > 0 && !opts.Reimport {
			return ErrConfirmedDetailsExist
		}
		if opts.Reimport {
			if err := tx.DeleteConfirmedPropertyDetail(ctx, applicationID); err != nil {
				return err
			}
		}

		compartments := make([]Compartment, len(submitted))
		for i, c := range submitted {
			if c.ConfirmedTotalHectares.IsZero() {
				c.ConfirmedTotalHectares = c.TotalHectares
			}
			compartments[i] = c
		}
		if err := tx.SaveConfirmedCompartments(ctx, applicationID, compartments); err != nil {
			return err
		}

		idx := indexCompartments(compartments)
		restocking := 0
		for _, p := range proposed {
			detail, err := confirmedFromProposed(p, idx)
			if err != nil {
				return err
			}
			if err := tx.InsertConfirmedFellingDetail(ctx, applicationID, &detail); err != nil {
				return err
			}
			restocking += len(detail.Restocking)
		}
		payload["compartments"] = len(compartments)
		payload["fellingDetails"] = len(proposed)
		payload["restockingDetails"] = restocking

		return e.tracker.saveFellingAndRestocking(ctx, tx, state, userID, false)
	})
}

// =============================================================================
// AMEND / ADD
// =============================================================================

// SaveChangesToConfirmedFellingAndRestocking replaces the confirmed felling
// details of each supplied compartment. Details with an id are updated,
// details without one are added, and existing details omitted from a
// supplied compartment are deleted. Either every compartment is applied or
// none is.
func (e *Engine) SaveChangesToConfirmedFellingAndRestocking(ctx context.Context, applicationID, userID uuid.UUID, changes []CompartmentChanges) error {
	op := e.detailOp("SaveChangesToConfirmedFellingAndRestocking", AuditUpdateConfirmedDetails, AuditUpdateConfirmedDetailsFailure, applicationID, userID)
	payload := map[string]any{"compartments": len(changes)}

	return e.run(ctx, op, payload, e.loadApplication(applicationID), func(tx Transaction) error {
		state, err := e.tracker.openState(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		compartments, err := tx.ListConfirmedCompartments(ctx, applicationID)
		if err != nil {
			return err
		}
		existing, err := tx.ListConfirmedFellingDetails(ctx, applicationID)
		if err != nil {
			return err
		}
		idx := indexCompartments(compartments)
		byID := make(map[uuid.UUID]ConfirmedFellingDetail, len(existing))
		for _, d := range existing {
			byID[d.ID] = d
		}

		var inserted, updated, deleted int
		seen := make(map[uuid.UUID]bool, len(changes))
		for _, change := range changes {
			if seen[change.CompartmentID] {
				return invalid("CompartmentID", "compartment %s supplied more than once", change.CompartmentID)
			}
			seen[change.CompartmentID] = true

			compartment, ok := idx[change.CompartmentID]
			if !ok {
				return notFound("compartment", change.CompartmentID)
			}

			keep := make(map[uuid.UUID]bool, len(change.Felling))
			for _, in := range change.Felling {
				if in.IsNew() {
					next, err := prepareFelling(in, in.Species, nil, compartment, idx)
					if err != nil {
						return err
					}
					if err := tx.InsertConfirmedFellingDetail(ctx, applicationID, &next); err != nil {
						return err
					}
					inserted++
					continue
				}
				prev, ok := byID[in.ID]
				if !ok || prev.CompartmentID != compartment.ID {
					return notFound("confirmed felling detail", in.ID)
				}
				if keep[in.ID] {
					return invalid("ID", "felling detail %s supplied more than once", in.ID)
				}
				keep[in.ID] = true
				next, err := prepareFelling(in, in.Species, &prev, compartment, idx)
				if err != nil {
					return err
				}
				if err := tx.UpdateConfirmedFellingDetail(ctx, applicationID, &next); err != nil {
					return err
				}
				updated++
			}

			for _, d := range existing {
				if d.CompartmentID != compartment.ID || keep[d.ID] {
					continue
				}
				if err := tx.DeleteConfirmedFellingDetail(ctx, applicationID, d.ID); err != nil {
					return err
				}
				deleted++
			}
		}
		payload["inserted"] = inserted
		payload["updated"] = updated
		payload["deleted"] = deleted

		return e.tracker.saveFellingAndRestocking(ctx, tx, state, userID, false)
	})
}

// SaveChangesToConfirmedFellingDetails amends one existing felling detail.
// Its restocking children are kept unless normalisation removes them.
func (e *Engine) SaveChangesToConfirmedFellingDetails(ctx context.Context, applicationID, userID uuid.UUID, detail ConfirmedFellingDetail, species []FellingSpecies) error {
	op := e.detailOp("SaveChangesToConfirmedFellingDetails", AuditUpdateConfirmedFelling, AuditUpdateConfirmedFellingFailure, applicationID, userID)
	op.detailID = detail.ID

	return e.run(ctx, op, nil, e.loadApplication(applicationID), func(tx Transaction) error {
		if detail.IsNew() {
			return invalid("ID", "required when amending a felling detail")
		}
		state, err := e.tracker.openState(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		prev, err := tx.GetConfirmedFellingDetail(ctx, applicationID, detail.ID)
		if err != nil {
			return err
		}
		compartments, err := tx.ListConfirmedCompartments(ctx, applicationID)
		if err != nil {
			return err
		}
		idx := indexCompartments(compartments)
		compartment, ok := idx[prev.CompartmentID]
		if !ok {
			return notFound("compartment", prev.CompartmentID)
		}

		in := detail
		in.Restocking = prev.Restocking
		next, err := prepareFelling(in, species, prev, compartment, idx)
		if err != nil {
			return err
		}
		if err := tx.UpdateConfirmedFellingDetail(ctx, applicationID, &next); err != nil {
			return err
		}
		return e.tracker.saveFellingAndRestocking(ctx, tx, state, userID, false)
	})
}

// AddNewConfirmedFellingDetails adds a reviewer-created felling detail to a
// confirmed compartment and returns its id.
func (e *Engine) AddNewConfirmedFellingDetails(ctx context.Context, applicationID, userID, compartmentID uuid.UUID, detail ConfirmedFellingDetail, species []FellingSpecies) (uuid.UUID, error) {
	op := e.detailOp("AddNewConfirmedFellingDetails", AuditAddConfirmedFelling, AuditAddConfirmedFellingFailure, applicationID, userID)
	payload := map[string]any{"compartmentId": compartmentID.String()}

	var id uuid.UUID
	err := e.run(ctx, op, payload, e.loadApplication(applicationID), func(tx Transaction) error {
		state, err := e.tracker.openState(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		compartments, err := tx.ListConfirmedCompartments(ctx, applicationID)
		if err != nil {
			return err
		}
		idx := indexCompartments(compartments)
		compartment, ok := idx[compartmentID]
		if !ok {
			return notFound("compartment", compartmentID)
		}

		in := detail
		in.ID = uuid.Nil
		next, err := prepareFelling(in, species, nil, compartment, idx)
		if err != nil {
			return err
		}
		if err := tx.InsertConfirmedFellingDetail(ctx, applicationID, &next); err != nil {
			return err
		}
		id = next.ID
		payload["newDetailId"] = id.String()
		return e.tracker.saveFellingAndRestocking(ctx, tx, state, userID, false)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// =============================================================================
// REVERT
// =============================================================================

// RevertConfirmedFellingDetailAmendments re-copies the proposed felling detail
// over the confirmed detail imported from it and clears the amended marker.
func (e *Engine) RevertConfirmedFellingDetailAmendments(ctx context.Context, applicationID, userID, proposedFellingDetailsID uuid.UUID) error {
	op := e.detailOp("RevertConfirmedFellingDetailAmendments", AuditRevertConfirmedFelling, AuditRevertConfirmedFellingFailure, applicationID, userID)
	payload := map[string]any{"proposedFellingDetailsId": proposedFellingDetailsID.String()}

	var proposed []ProposedFellingDetail
	load := e.loadProposed(applicationID, &proposed)

	return e.run(ctx, op, payload, load, func(tx Transaction) error {
		source, err := findProposed(proposed, proposedFellingDetailsID)
		if err != nil {
			return err
		}
		details, err := tx.ListConfirmedFellingDetails(ctx, applicationID)
		if err != nil {
			return err
		}
		for i := range details {
			if pid, ok := ProposedIDOf(details[i].Origin); ok && pid == proposedFellingDetailsID {
				payload["detailId"] = details[i].ID.String()
				return e.revert(ctx, tx, applicationID, userID, &details[i], source)
			}
		}
		return notFound("confirmed felling detail for proposed felling detail", proposedFellingDetailsID)
	})
}

// RevertConfirmedFellingDetail reverts a confirmed detail by its own id.
// A reviewer-added detail has nothing to revert to and fails with ErrNotImported.
func (e *Engine) RevertConfirmedFellingDetail(ctx context.Context, applicationID, userID, detailID uuid.UUID) error {
	op := e.detailOp("RevertConfirmedFellingDetail", AuditRevertConfirmedFelling, AuditRevertConfirmedFellingFailure, applicationID, userID)
	op.detailID = detailID

	var proposed []ProposedFellingDetail
	load := e.loadProposed(applicationID, &proposed)

	return e.run(ctx, op, nil, load, func(tx Transaction) error {
		detail, err := tx.GetConfirmedFellingDetail(ctx, applicationID, detailID)
		if err != nil {
			return err
		}
		pid, ok := ProposedIDOf(detail.Origin)
		if !ok {
			return ErrNotImported
		}
		source, err := findProposed(proposed, pid)
		if err != nil {
			return err
		}
		return e.revert(ctx, tx, applicationID, userID, detail, source)
	})
}

func (e *Engine) revert(ctx context.Context, tx Transaction, applicationID, userID uuid.UUID, current *ConfirmedFellingDetail, source ProposedFellingDetail) error {
	state, err := e.tracker.openState(ctx, tx, applicationID)
	if err != nil {
		return err
	}
	compartments, err := tx.ListConfirmedCompartments(ctx, applicationID)
	if err != nil {
		return err
	}
	next, err := confirmedFromProposed(source, indexCompartments(compartments))
	if err != nil {
		return err
	}
	next.ID = current.ID

	// Children that came from the same proposed restocking keep their ids.
	for i := range next.Restocking {
		r := &next.Restocking[i]
		r.FellingDetailID = current.ID
		pid, _ := ProposedIDOf(r.Origin)
		for _, old := range current.Restocking {
			if oid, ok := ProposedIDOf(old.Origin); ok && oid == pid {
				r.ID = old.ID
				break
			}
		}
	}
	if err := tx.UpdateConfirmedFellingDetail(ctx, applicationID, &next); err != nil {
		return err
	}
	return e.tracker.saveFellingAndRestocking(ctx, tx, state, userID, false)
}

// =============================================================================
// DELETE / RESET
// =============================================================================

// DeleteConfirmedFellingDetail deletes a confirmed felling detail with its
// restocking children and species.
func (e *Engine) DeleteConfirmedFellingDetail(ctx context.Context, applicationID, userID, detailID uuid.UUID) error {
	op := e.detailOp("DeleteConfirmedFellingDetail", AuditDeleteConfirmedFelling, AuditDeleteConfirmedFellingFailure, applicationID, userID)
	op.detailID = detailID

	return e.run(ctx, op, nil, e.loadApplication(applicationID), func(tx Transaction) error {
		state, err := e.tracker.openState(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		if _, err := tx.GetConfirmedFellingDetail(ctx, applicationID, detailID); err != nil {
			return err
		}
		if err := tx.DeleteConfirmedFellingDetail(ctx, applicationID, detailID); err != nil {
			return err
		}
		return e.tracker.saveFellingAndRestocking(ctx, tx, state, userID, false)
	})
}

// ResetConfirmedFellingAndRestocking clears the confirmed property detail and
// every review-state flag, as on resubmission. It also lifts the review lock.
func (e *Engine) ResetConfirmedFellingAndRestocking(ctx context.Context, applicationID, userID uuid.UUID) error {
	op := e.detailOp("ResetConfirmedFellingAndRestocking", AuditResetConfirmedDetails, AuditResetConfirmedDetailsFailure, applicationID, userID)

	return e.run(ctx, op, nil, e.loadApplication(applicationID), func(tx Transaction) error {
		if err := tx.DeleteConfirmedPropertyDetail(ctx, applicationID); err != nil {
			return err
		}
		return e.tracker.reset(ctx, tx, applicationID, userID)
	})
}

// =============================================================================
// RESTOCKING
// =============================================================================

// SaveChangesToConfirmedRestockingDetails amends, adds or removes one
// restocking detail of the felling detail named by FellingDetailID.
//
// A restocking detail with proposal type None means no restocking: an
// existing child with that id is removed, and nothing is written otherwise.
func (e *Engine) SaveChangesToConfirmedRestockingDetails(ctx context.Context, applicationID, userID uuid.UUID, restocking ConfirmedRestockingDetail, species []RestockingSpecies) error {
	op := e.detailOp("SaveChangesToConfirmedRestockingDetails", AuditUpdateConfirmedRestocking, AuditUpdateConfirmedRestockingFailure, applicationID, userID)
	op.detailID = restocking.FellingDetailID
	payload := map[string]any{"proposalType": string(restocking.ProposalType)}
	if restocking.ID != uuid.Nil {
		payload["restockingDetailId"] = restocking.ID.String()
	}

	return e.run(ctx, op, payload, e.loadApplication(applicationID), func(tx Transaction) error {
		if restocking.FellingDetailID == uuid.Nil {
			return invalid("FellingDetailID", "required when saving a restocking detail")
		}
		state, err := e.tracker.openState(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		parent, err := tx.GetConfirmedFellingDetail(ctx, applicationID, restocking.FellingDetailID)
		if err != nil {
			return err
		}
		pos := -1
		if restocking.ID != uuid.Nil {
			if pos = parent.RestockingByID(restocking.ID); pos < 0 {
				return notFound("confirmed restocking detail", restocking.ID)
			}
		}

		next := *parent
		next.Restocking = append([]ConfirmedRestockingDetail(nil), parent.Restocking...)

		if restocking.ProposalType == ProposalNone || restocking.ProposalType == "" {
			if pos < 0 {
				return e.tracker.saveFellingAndRestocking(ctx, tx, state, userID, false)
			}
			next.Restocking = append(next.Restocking[:pos], next.Restocking[pos+1:]...)
			markRestockingSet(parent, &next)
			if err := tx.UpdateConfirmedFellingDetail(ctx, applicationID, &next); err != nil {
				return err
			}
			return e.tracker.saveFellingAndRestocking(ctx, tx, state, userID, false)
		}

		if !parent.OperationType.AllowsRestocking() {
			return invalid("RestockingProposal", "%s does not restock", parent.OperationType)
		}
		if parent.IsRestocking != nil && !*parent.IsRestocking {
			return invalid("RestockingProposal", "felling detail %s is not restocked", parent.ID)
		}

		compartments, err := tx.ListConfirmedCompartments(ctx, applicationID)
		if err != nil {
			return err
		}
		idx := indexCompartments(compartments)
		felling, ok := idx[parent.CompartmentID]
		if !ok {
			return notFound("compartment", parent.CompartmentID)
		}

		var prev *ConfirmedRestockingDetail
		if pos >= 0 {
			prev = &parent.Restocking[pos]
		}
		child, err := prepareRestocking(restocking, species, prev, felling, idx)
		if err != nil {
			return err
		}
		child.FellingDetailID = parent.ID
		if pos >= 0 {
			next.Restocking[pos] = child
		} else {
			next.Restocking = append(next.Restocking, child)
			markRestockingSet(parent, &next)
		}
		if err := tx.UpdateConfirmedFellingDetail(ctx, applicationID, &next); err != nil {
			return err
		}
		return e.tracker.saveFellingAndRestocking(ctx, tx, state, userID, false)
	})
}

// =============================================================================
// READ
// =============================================================================

// GetConfirmedFellingAndRestocking lists the confirmed details grouped by
// compartment, compartments in numeric-aware order.
func (e *Engine) GetConfirmedFellingAndRestocking(ctx context.Context, applicationID uuid.UUID) ([]CompartmentDetails, error) {
	op := operation{name: "GetConfirmedFellingAndRestocking", appID: applicationID}
	if _, err := e.requireApplication(ctx, applicationID); err != nil {
		return nil, e.wrap(op, err)
	}
	compartments, err := e.store.ListConfirmedCompartments(ctx, applicationID)
	if err != nil {
		return nil, e.wrap(op, err)
	}
	details, err := e.store.ListConfirmedFellingDetails(ctx, applicationID)
	if err != nil {
		return nil, e.wrap(op, err)
	}
	return groupByCompartment(compartments, details), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) detailOp(name string, success, failure AuditEventType, applicationID, userID uuid.UUID) operation {
	return operation{
		name:    name,
		success: success,
		failure: failure,
		appID:   applicationID,
		userID:  userID,
		section: SectionConfirmedFellingAndRestocking,
	}
}

func (e *Engine) loadApplication(applicationID uuid.UUID) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := e.requireApplication(ctx, applicationID)
		return err
	}
}

func (e *Engine) loadProposed(applicationID uuid.UUID, into *[]ProposedFellingDetail) func(context.Context) error {
	return func(ctx context.Context) error {
		if _, err := e.requireApplication(ctx, applicationID); err != nil {
			return err
		}
		var err error
		*into, err = e.proposed.GetProposedFellingAndRestocking(ctx, applicationID)
		return err
	}
}

func findProposed(proposed []ProposedFellingDetail, id uuid.UUID) (ProposedFellingDetail, error) {
	for _, p := range proposed {
		if p.ID == id {
			return p, nil
		}
	}
	return ProposedFellingDetail{}, notFound("proposed felling detail", id)
}

// prepareFelling turns reviewer input into the record to persist. prev is
// nil for a new detail.
func prepareFelling(in ConfirmedFellingDetail, species []FellingSpecies, prev *ConfirmedFellingDetail, compartment Compartment, idx map[uuid.UUID]Compartment) (ConfirmedFellingDetail, error) {
	next := in
	next.CompartmentID = compartment.ID

	normalized, err := NormalizeFellingSpecies(species)
	if err != nil {
		return ConfirmedFellingDetail{}, err
	}
	next.Species = normalized
	normalizeFelling(&next)

	if prev == nil {
		next.ID = uuid.Nil
		next.Origin = ReviewerAdded{}
		next.Amended = nil
	} else {
		next.ID = prev.ID
		next.Origin = prev.Origin
		next.Amended = prev.Amended
	}

	children := make([]ConfirmedRestockingDetail, 0, len(next.Restocking))
	for _, r := range next.Restocking {
		var prevChild *ConfirmedRestockingDetail
		if r.ID != uuid.Nil {
			if prev == nil {
				return ConfirmedFellingDetail{}, notFound("confirmed restocking detail", r.ID)
			}
			pos := prev.RestockingByID(r.ID)
			if pos < 0 {
				return ConfirmedFellingDetail{}, notFound("confirmed restocking detail", r.ID)
			}
			prevChild = &prev.Restocking[pos]
		}
		var child ConfirmedRestockingDetail
		if prevChild != nil && untouchedRestocking(r, *prevChild) {
			// Kept as stored; only the derived compartment may move.
			child = *prevChild
			err = deriveRestockingCompartment(&child, compartment, idx)
		} else {
			child, err = prepareRestocking(r, r.Species, prevChild, compartment, idx)
		}
		if err != nil {
			return ConfirmedFellingDetail{}, err
		}
		child.FellingDetailID = next.ID
		children = append(children, child)
	}
	if len(children) == 0 {
		children = nil
	}
	next.Restocking = children

	if err := validateFelling(&next, compartment); err != nil {
		return ConfirmedFellingDetail{}, err
	}
	if prev != nil {
		if _, imported := prev.Origin.(Imported); imported {
			next.Amended = prev.Amended.With(DiffFelling(*prev, next)...)
		}
	}
	return next, nil
}

// markRestockingSet records on an imported parent that restocking children
// were added or removed.
func markRestockingSet(prev, next *ConfirmedFellingDetail) {
	if _, imported := prev.Origin.(Imported); !imported {
		return
	}
	if restockingSetChanged(prev.Restocking, next.Restocking) {
		next.Amended = next.Amended.With(FieldRestocking)
	}
}

// untouchedRestocking reports whether in carries the same answers as the
// stored prev. The compartment is derived and not compared.
func untouchedRestocking(in, prev ConfirmedRestockingDetail) bool {
	if in.ProposalType.IsAlternativeArea() && !eqPtr(in.AlternativeCompartmentID, prev.AlternativeCompartmentID) {
		return false
	}
	in.CompartmentID = prev.CompartmentID
	return len(DiffRestocking(prev, in)) == 0
}

// prepareRestocking turns reviewer input into the restocking record to
// persist. prev is nil for a new restocking detail.
func prepareRestocking(in ConfirmedRestockingDetail, species []RestockingSpecies, prev *ConfirmedRestockingDetail, felling Compartment, idx map[uuid.UUID]Compartment) (ConfirmedRestockingDetail, error) {
	next := in
	normalized, err := NormalizeRestockingSpecies(species)
	if err != nil {
		return ConfirmedRestockingDetail{}, err
	}
	next.Species = normalized
	if err := deriveRestockingCompartment(&next, felling, idx); err != nil {
		return ConfirmedRestockingDetail{}, err
	}
	if err := validateRestocking(&next); err != nil {
		return ConfirmedRestockingDetail{}, err
	}

	if prev == nil {
		next.ID = uuid.Nil
		next.Origin = ReviewerAdded{}
		next.Amended = nil
		return next, nil
	}
	next.ID = prev.ID
	next.Origin = prev.Origin
	next.Amended = prev.Amended
	if _, imported := prev.Origin.(Imported); imported {
		next.Amended = prev.Amended.With(DiffRestocking(*prev, next)...)
	}
	return next, nil
}
