/*
unitofwork.go - Transactional scope and audit discipline

PURPOSE:
  Every public mutation runs through runner.run:

    ┌──────────┐   ┌───────────────────────────────┐   ┌──────────────┐
    │  load    │──▶│ BeginTransaction              │──▶│ audit        │
    │ (no tx)  │   │   apply(tx)                   │   │ success XOR  │
    │          │   │   ctx still live? ──▶ Commit  │   │ failure      │
    └──────────┘   │   error/panic    ──▶ Rollback │   └──────────────┘
                   └───────────────────────────────┘

  load reads collaborators that may share a connection with the store
  (application context, proposed plan). It runs before the transaction so
  nothing inside apply reads around the transaction.

GUARANTEES:
  - Exactly one transaction per operation, never nested
  - Cancellation before Commit rolls back; Commit is the point of no return
  - Panics inside load/apply become ErrUnexpected, after rollback
  - Exactly one audit event: success after Commit, failure after Rollback
*/
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Deps are the collaborators shared by Engine and Tracker.
type Deps struct {
	Store    Store
	Proposed ProposedPlanSource
	Apps     ApplicationContext
	Audit    AuditSink
	Notifier Notifier
	Users    UserDirectory
	Logger   *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// Source is recorded on every audit event.
	Source string
}

// operation describes one audited public call.
type operation struct {
	name     string
	success  AuditEventType
	failure  AuditEventType
	appID    uuid.UUID
	userID   uuid.UUID
	detailID uuid.UUID
	section  Section
}

type runner struct {
	store  Store
	apps   ApplicationContext
	audit  AuditSink
	logger *slog.Logger
	now    func() time.Time
	source string
}

func newRunner(d Deps) runner {
	if d.Store == nil {
		panic("review: Deps.Store is required")
	}
	if d.Apps == nil {
		panic("review: Deps.Apps is required")
	}
	if d.Audit == nil {
		panic("review: Deps.Audit is required")
	}
	r := runner{
		store:  d.Store,
		apps:   d.Apps,
		audit:  d.Audit,
		logger: d.Logger,
		now:    d.Now,
		source: d.Source,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.source == "" {
		r.source = "woodland-officer-review"
	}
	return r
}

// run executes load (outside any transaction) then apply (inside exactly one),
// and publishes exactly one audit event. payload may be filled in by load/apply.
func (r *runner) run(
	ctx context.Context,
	op operation,
	payload map[string]any,
	load func(ctx context.Context) error,
	apply func(tx Transaction) error,
) error {
	if payload == nil {
		payload = map[string]any{}
	}
	err := ctx.Err()
	if err == nil && load != nil {
		err = safely(func() error { return load(ctx) })
	}
	if err == nil {
		err = r.inTransaction(ctx, apply)
	}
	if err != nil {
		return r.fail(ctx, op, payload, err)
	}
	r.publish(ctx, op, op.success, payload)
	return nil
}

// inTransaction runs fn inside one transaction. An error, a panic or a
// cancelled context rolls back.
func (r *runner) inTransaction(ctx context.Context, fn func(tx Transaction) error) (err error) {
	tx, err := r.store.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p}
		}
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		// A driver that aborts the transaction on cancel reports its own
		// error from the next write; the cancellation is the cause.
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return fmt.Errorf("%w: %w", ctxErr, err)
		}
		return err
	}
	// Cancellation before commit must leave nothing behind.
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func (r *runner) fail(ctx context.Context, op operation, payload map[string]any, cause error) error {
	opErr := &OperationError{
		Op:            op.name,
		Kind:          classify(cause),
		ApplicationID: op.appID,
		DetailID:      op.detailID,
		Section:       op.section,
		Err:           cause,
	}
	r.logger.Error("operation failed",
		"op", op.name,
		"kind", opErr.Kind.Error(),
		"application_id", op.appID,
		"detail_id", op.detailID,
		"section", op.section,
		"error", cause,
	)
	failurePayload := maps.Clone(payload)
	failurePayload["error"] = cause.Error()
	r.publish(ctx, op, op.failure, failurePayload)
	return opErr
}

// publish is fire-and-forget. A cancelled caller context does not stop the
// audit record from being written.
func (r *runner) publish(ctx context.Context, op operation, eventType AuditEventType, payload map[string]any) {
	p := maps.Clone(payload)
	p["operation"] = op.name
	if op.detailID != uuid.Nil {
		p["detailId"] = op.detailID.String()
	}
	if op.section != "" {
		p["section"] = string(op.section)
	}
	event := AuditEvent{
		ID:         uuid.New(),
		Type:       eventType,
		EntityID:   op.appID,
		UserID:     op.userID,
		OccurredAt: r.now().UTC(),
		Source:     r.source,
		Payload:    p,
	}
	if err := r.audit.Publish(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Warn("audit publish failed", "event", eventType, "application_id", op.appID, "error", err)
	}
}

// wrap converts a read failure into an *OperationError without auditing it.
func (r *runner) wrap(op operation, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{
		Op:            op.name,
		Kind:          classify(err),
		ApplicationID: op.appID,
		DetailID:      op.detailID,
		Section:       op.section,
		Err:           err,
	}
}

func (r *runner) stamp(state *WoodlandOfficerReviewState, userID uuid.UUID) {
	state.LastUpdatedBy = userID
	state.LastUpdatedAt = r.now().UTC()
}

// requireApplication fails with ErrNotFound for unknown applications.
func (r *runner) requireApplication(ctx context.Context, applicationID uuid.UUID) (*ApplicationSummary, error) {
	summary, err := r.apps.GetApplicationSummary(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, notFound("application", applicationID)
	}
	return summary, nil
}

func safely(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p}
		}
	}()
	return fn()
}
