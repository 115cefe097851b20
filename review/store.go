/*
store.go - Persistence interfaces for the confirmed working copy

PURPOSE:
  Defines the interface between the review engine and the database.
  Reads go straight to the Store; every write goes through a Transaction
  obtained from BeginTransaction. There is no other mutation gateway.

KEY INTERFACES:
  Reader:      Confirmed details, compartments, designations, review state
  Repository:  Reader + writes, only reachable through a Transaction
  Transaction: Repository + Commit/Rollback
  Store:       Reader + BeginTransaction (the unit of work)

TRANSACTION CONTRACT:
  - One operation opens exactly one transaction
  - Transactions are never nested; helpers that need to write take the
    caller's Transaction instead of opening their own
  - Rollback after Commit is a no-op, so `defer tx.Rollback()` is safe
  - While a transaction is open, reads for that operation go through it

IMPLEMENTATIONS:
  - store/sqlite: SQLite, migrations via golang-migrate
  - review/store: in-memory, snapshot + restore on rollback

SEE ALSO:
  - unitofwork.go: inTransaction helper used by every operation
  - collaborators.go: Proposed plan, application context, audit, notification
*/
package review

import (
	"context"

	"github.com/google/uuid"
)

// =============================================================================
// READER
// =============================================================================

// Reader is the read side of the confirmed property detail.
type Reader interface {
	// ListConfirmedCompartments returns the confirmed compartments of an application.
	ListConfirmedCompartments(ctx context.Context, applicationID uuid.UUID) ([]Compartment, error)

	// ListConfirmedFellingDetails returns every confirmed felling detail in persisted order,
	// with species and restocking children loaded.
	ListConfirmedFellingDetails(ctx context.Context, applicationID uuid.UUID) ([]ConfirmedFellingDetail, error)

	// GetConfirmedFellingDetail returns one detail. Missing details match ErrNotFound.
	GetConfirmedFellingDetail(ctx context.Context, applicationID, detailID uuid.UUID) (*ConfirmedFellingDetail, error)

	// ListCompartmentDesignations returns the recorded designations per compartment.
	ListCompartmentDesignations(ctx context.Context, applicationID uuid.UUID) ([]CompartmentDesignations, error)

	// GetReviewState returns the review state, or nil if none has been recorded.
	GetReviewState(ctx context.Context, applicationID uuid.UUID) (*WoodlandOfficerReviewState, error)
}

// =============================================================================
// REPOSITORY - writes, only inside a Transaction
// =============================================================================

// Repository is the write side. It is only reachable through a Transaction.
type Repository interface {
	Reader

	// SaveConfirmedCompartments upserts confirmed compartments.
	SaveConfirmedCompartments(ctx context.Context, applicationID uuid.UUID, compartments []Compartment) error

	// InsertConfirmedFellingDetail persists a new detail with its children.
	// Nil ids on the detail and its restocking children are assigned.
	InsertConfirmedFellingDetail(ctx context.Context, applicationID uuid.UUID, detail *ConfirmedFellingDetail) error

	// UpdateConfirmedFellingDetail overwrites the scalars of an existing detail
	// and fully replaces its species and restocking children.
	UpdateConfirmedFellingDetail(ctx context.Context, applicationID uuid.UUID, detail *ConfirmedFellingDetail) error

	// DeleteConfirmedFellingDetail deletes a detail, cascading to restocking and species.
	DeleteConfirmedFellingDetail(ctx context.Context, applicationID, detailID uuid.UUID) error

	// DeleteConfirmedPropertyDetail deletes every confirmed compartment, detail and designation.
	DeleteConfirmedPropertyDetail(ctx context.Context, applicationID uuid.UUID) error

	// SaveCompartmentDesignations upserts the designations of one compartment.
	SaveCompartmentDesignations(ctx context.Context, applicationID uuid.UUID, d CompartmentDesignations) error

	// SaveReviewState upserts the review state.
	SaveReviewState(ctx context.Context, state *WoodlandOfficerReviewState) error

	// DeleteReviewState removes the review state row.
	DeleteReviewState(ctx context.Context, applicationID uuid.UUID) error
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// Transaction is an open unit of work.
type Transaction interface {
	Repository

	// Commit makes every write visible. After Commit the transaction is finished.
	Commit() error

	// Rollback discards every write. Rollback after Commit is a no-op.
	Rollback() error
}

// Store is the sole mutation gateway: reads directly, writes via BeginTransaction.
type Store interface {
	Reader

	// BeginTransaction opens a transaction bound to ctx.
	BeginTransaction(ctx context.Context) (Transaction, error)
}
