// Package store provides an in-memory review.Store and in-memory collaborators.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/forestry/woodland-review/review"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements review.Store, review.ProposedPlanSource,
// review.ApplicationContext, review.UserDirectory and review.AuditLog.
//
// Confirmed data is guarded by mu. An open transaction holds the write lock
// until Commit or Rollback, so transactions are serialised. Plan, application
// and audit data have their own locks and stay readable while a transaction
// is open.
type Memory struct {
	mu   sync.RWMutex
	data tables

	refMu     sync.RWMutex
	apps      map[uuid.UUID]review.ApplicationSummary
	owners    map[uuid.UUID]review.WoodlandOwner
	areas     map[string]review.FcArea
	users     map[uuid.UUID]review.UserAccount
	submitted map[uuid.UUID][]review.Compartment
	proposed  map[uuid.UUID][]review.ProposedFellingDetail

	auditMu sync.RWMutex
	events  []review.AuditEvent
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		data:      newTables(),
		apps:      make(map[uuid.UUID]review.ApplicationSummary),
		owners:    make(map[uuid.UUID]review.WoodlandOwner),
		areas:     make(map[string]review.FcArea),
		users:     make(map[uuid.UUID]review.UserAccount),
		submitted: make(map[uuid.UUID][]review.Compartment),
		proposed:  make(map[uuid.UUID][]review.ProposedFellingDetail),
	}
}

// =============================================================================
// READER
// =============================================================================

func (m *Memory) ListConfirmedCompartments(_ context.Context, applicationID uuid.UUID) ([]review.Compartment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listCompartments(applicationID), nil
}

func (m *Memory) ListConfirmedFellingDetails(_ context.Context, applicationID uuid.UUID) ([]review.ConfirmedFellingDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listDetails(applicationID), nil
}

func (m *Memory) GetConfirmedFellingDetail(_ context.Context, applicationID, detailID uuid.UUID) (*review.ConfirmedFellingDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getDetail(applicationID, detailID)
}

func (m *Memory) ListCompartmentDesignations(_ context.Context, applicationID uuid.UUID) ([]review.CompartmentDesignations, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listDesignations(applicationID), nil
}

func (m *Memory) GetReviewState(_ context.Context, applicationID uuid.UUID) (*review.WoodlandOfficerReviewState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getState(applicationID), nil
}

// =============================================================================
// TRANSACTIONS - snapshot + restore
// =============================================================================

// BeginTransaction takes the write lock and snapshots the confirmed data.
func (m *Memory) BeginTransaction(ctx context.Context) (review.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	return &memoryTx{parent: m, snapshot: m.data.clone()}, nil
}

type memoryTx struct {
	parent   *Memory
	snapshot tables
	done     bool
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return fmt.Errorf("transaction already finished")
	}
	tx.done = true
	tx.parent.mu.Unlock()
	return nil
}

func (tx *memoryTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.parent.data = tx.snapshot
	tx.parent.mu.Unlock()
	return nil
}

func (tx *memoryTx) check() error {
	if tx.done {
		return fmt.Errorf("transaction already finished")
	}
	return nil
}

func (tx *memoryTx) ListConfirmedCompartments(_ context.Context, applicationID uuid.UUID) ([]review.Compartment, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	return tx.parent.data.listCompartments(applicationID), nil
}

func (tx *memoryTx) ListConfirmedFellingDetails(_ context.Context, applicationID uuid.UUID) ([]review.ConfirmedFellingDetail, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	return tx.parent.data.listDetails(applicationID), nil
}

func (tx *memoryTx) GetConfirmedFellingDetail(_ context.Context, applicationID, detailID uuid.UUID) (*review.ConfirmedFellingDetail, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	return tx.parent.data.getDetail(applicationID, detailID)
}

func (tx *memoryTx) ListCompartmentDesignations(_ context.Context, applicationID uuid.UUID) ([]review.CompartmentDesignations, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	return tx.parent.data.listDesignations(applicationID), nil
}

func (tx *memoryTx) GetReviewState(_ context.Context, applicationID uuid.UUID) (*review.WoodlandOfficerReviewState, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	return tx.parent.data.getState(applicationID), nil
}

func (tx *memoryTx) SaveConfirmedCompartments(_ context.Context, applicationID uuid.UUID, compartments []review.Compartment) error {
	if err := tx.check(); err != nil {
		return err
	}
	tx.parent.data.saveCompartments(applicationID, compartments)
	return nil
}

func (tx *memoryTx) InsertConfirmedFellingDetail(_ context.Context, applicationID uuid.UUID, detail *review.ConfirmedFellingDetail) error {
	if err := tx.check(); err != nil {
		return err
	}
	return tx.parent.data.insertDetail(applicationID, detail)
}

func (tx *memoryTx) UpdateConfirmedFellingDetail(_ context.Context, applicationID uuid.UUID, detail *review.ConfirmedFellingDetail) error {
	if err := tx.check(); err != nil {
		return err
	}
	return tx.parent.data.updateDetail(applicationID, detail)
}

func (tx *memoryTx) DeleteConfirmedFellingDetail(_ context.Context, applicationID, detailID uuid.UUID) error {
	if err := tx.check(); err != nil {
		return err
	}
	return tx.parent.data.deleteDetail(applicationID, detailID)
}

func (tx *memoryTx) DeleteConfirmedPropertyDetail(_ context.Context, applicationID uuid.UUID) error {
	if err := tx.check(); err != nil {
		return err
	}
	delete(tx.parent.data.compartments, applicationID)
	delete(tx.parent.data.details, applicationID)
	delete(tx.parent.data.designations, applicationID)
	return nil
}

func (tx *memoryTx) SaveCompartmentDesignations(_ context.Context, applicationID uuid.UUID, d review.CompartmentDesignations) error {
	if err := tx.check(); err != nil {
		return err
	}
	byCompartment := tx.parent.data.designations[applicationID]
	if byCompartment == nil {
		byCompartment = make(map[uuid.UUID]review.CompartmentDesignations)
		tx.parent.data.designations[applicationID] = byCompartment
	}
	byCompartment[d.CompartmentID] = d
	return nil
}

func (tx *memoryTx) SaveReviewState(_ context.Context, state *review.WoodlandOfficerReviewState) error {
	if err := tx.check(); err != nil {
		return err
	}
	tx.parent.data.states[state.ApplicationID] = *state
	return nil
}

func (tx *memoryTx) DeleteReviewState(_ context.Context, applicationID uuid.UUID) error {
	if err := tx.check(); err != nil {
		return err
	}
	delete(tx.parent.data.states, applicationID)
	return nil
}

// =============================================================================
// TABLES
// =============================================================================

type tables struct {
	compartments map[uuid.UUID][]review.Compartment
	details      map[uuid.UUID][]review.ConfirmedFellingDetail
	designations map[uuid.UUID]map[uuid.UUID]review.CompartmentDesignations
	states       map[uuid.UUID]review.WoodlandOfficerReviewState
}

func newTables() tables {
	return tables{
		compartments: make(map[uuid.UUID][]review.Compartment),
		details:      make(map[uuid.UUID][]review.ConfirmedFellingDetail),
		designations: make(map[uuid.UUID]map[uuid.UUID]review.CompartmentDesignations),
		states:       make(map[uuid.UUID]review.WoodlandOfficerReviewState),
	}
}

func (t tables) clone() tables {
	c := newTables()
	for k, v := range t.compartments {
		c.compartments[k] = slices.Clone(v)
	}
	for k, v := range t.details {
		details := make([]review.ConfirmedFellingDetail, len(v))
		for i := range v {
			details[i] = cloneDetail(v[i])
		}
		c.details[k] = details
	}
	for k, v := range t.designations {
		inner := make(map[uuid.UUID]review.CompartmentDesignations, len(v))
		for ck, cv := range v {
			inner[ck] = cv
		}
		c.designations[k] = inner
	}
	for k, v := range t.states {
		c.states[k] = v
	}
	return c
}

func (t tables) listCompartments(applicationID uuid.UUID) []review.Compartment {
	return slices.Clone(t.compartments[applicationID])
}

func (t tables) listDetails(applicationID uuid.UUID) []review.ConfirmedFellingDetail {
	src := t.details[applicationID]
	out := make([]review.ConfirmedFellingDetail, len(src))
	for i := range src {
		out[i] = cloneDetail(src[i])
	}
	return out
}

func (t tables) getDetail(applicationID, detailID uuid.UUID) (*review.ConfirmedFellingDetail, error) {
	for _, d := range t.details[applicationID] {
		if d.ID == detailID {
			c := cloneDetail(d)
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: confirmed felling detail %s", review.ErrNotFound, detailID)
}

func (t tables) listDesignations(applicationID uuid.UUID) []review.CompartmentDesignations {
	var out []review.CompartmentDesignations
	for _, c := range t.compartments[applicationID] {
		if d, ok := t.designations[applicationID][c.ID]; ok {
			out = append(out, d)
		}
	}
	return out
}

func (t tables) getState(applicationID uuid.UUID) *review.WoodlandOfficerReviewState {
	s, ok := t.states[applicationID]
	if !ok {
		return nil
	}
	return &s
}

func (t tables) saveCompartments(applicationID uuid.UUID, compartments []review.Compartment) {
	existing := t.compartments[applicationID]
	for _, c := range compartments {
		i := slices.IndexFunc(existing, func(e review.Compartment) bool { return e.ID == c.ID })
		if i >= 0 {
			existing[i] = c
		} else {
			existing = append(existing, c)
		}
	}
	t.compartments[applicationID] = existing
}

func (t tables) insertDetail(applicationID uuid.UUID, detail *review.ConfirmedFellingDetail) error {
	if detail.ID == uuid.Nil {
		detail.ID = uuid.New()
	}
	for _, d := range t.details[applicationID] {
		if d.ID == detail.ID {
			return fmt.Errorf("confirmed felling detail %s already exists", detail.ID)
		}
	}
	assignChildIDs(detail)
	t.details[applicationID] = append(t.details[applicationID], cloneDetail(*detail))
	return nil
}

func (t tables) updateDetail(applicationID uuid.UUID, detail *review.ConfirmedFellingDetail) error {
	details := t.details[applicationID]
	for i := range details {
		if details[i].ID == detail.ID {
			assignChildIDs(detail)
			details[i] = cloneDetail(*detail)
			return nil
		}
	}
	return fmt.Errorf("%w: confirmed felling detail %s", review.ErrNotFound, detail.ID)
}

func (t tables) deleteDetail(applicationID, detailID uuid.UUID) error {
	details := t.details[applicationID]
	i := slices.IndexFunc(details, func(d review.ConfirmedFellingDetail) bool { return d.ID == detailID })
	if i < 0 {
		return fmt.Errorf("%w: confirmed felling detail %s", review.ErrNotFound, detailID)
	}
	t.details[applicationID] = slices.Delete(details, i, i+1)
	return nil
}

func assignChildIDs(detail *review.ConfirmedFellingDetail) {
	for i := range detail.Restocking {
		r := &detail.Restocking[i]
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		r.FellingDetailID = detail.ID
	}
}

// cloneDetail copies every slice so stored records never alias caller memory.
func cloneDetail(d review.ConfirmedFellingDetail) review.ConfirmedFellingDetail {
	d.Amended = slices.Clone(d.Amended)
	d.Species = slices.Clone(d.Species)
	if d.Restocking != nil {
		children := make([]review.ConfirmedRestockingDetail, len(d.Restocking))
		for i, r := range d.Restocking {
			r.Amended = slices.Clone(r.Amended)
			r.Species = slices.Clone(r.Species)
			children[i] = r
		}
		d.Restocking = children
	}
	return d
}

// =============================================================================
// PROPOSED PLAN + APPLICATION CONTEXT + USERS
// =============================================================================

// SeedApplication registers an application with its owner and FC area.
func (m *Memory) SeedApplication(app review.ApplicationSummary, owner *review.WoodlandOwner, area *review.FcArea) {
	m.refMu.Lock()
	defer m.refMu.Unlock()
	m.apps[app.ID] = app
	if owner != nil {
		m.owners[app.ID] = *owner
	}
	if area != nil {
		m.areas[area.Code] = *area
	}
}

// SetProposedPlan replaces the submitted plan of an application.
func (m *Memory) SetProposedPlan(applicationID uuid.UUID, compartments []review.Compartment, details []review.ProposedFellingDetail) {
	m.refMu.Lock()
	defer m.refMu.Unlock()
	m.submitted[applicationID] = slices.Clone(compartments)
	m.proposed[applicationID] = slices.Clone(details)
}

// AddUser registers a user account.
func (m *Memory) AddUser(u review.UserAccount) {
	m.refMu.Lock()
	defer m.refMu.Unlock()
	m.users[u.ID] = u
}

func (m *Memory) GetSubmittedCompartments(_ context.Context, applicationID uuid.UUID) ([]review.Compartment, error) {
	m.refMu.RLock()
	defer m.refMu.RUnlock()
	return slices.Clone(m.submitted[applicationID]), nil
}

func (m *Memory) GetProposedFellingAndRestocking(_ context.Context, applicationID uuid.UUID) ([]review.ProposedFellingDetail, error) {
	m.refMu.RLock()
	defer m.refMu.RUnlock()
	src := m.proposed[applicationID]
	out := make([]review.ProposedFellingDetail, len(src))
	for i, p := range src {
		p.Species = slices.Clone(p.Species)
		p.Restocking = slices.Clone(p.Restocking)
		out[i] = p
	}
	return out, nil
}

func (m *Memory) GetApplicationSummary(_ context.Context, applicationID uuid.UUID) (*review.ApplicationSummary, error) {
	m.refMu.RLock()
	defer m.refMu.RUnlock()
	app, ok := m.apps[applicationID]
	if !ok {
		return nil, fmt.Errorf("%w: application %s", review.ErrNotFound, applicationID)
	}
	return &app, nil
}

func (m *Memory) GetWoodlandOwner(_ context.Context, applicationID uuid.UUID) (*review.WoodlandOwner, error) {
	m.refMu.RLock()
	defer m.refMu.RUnlock()
	owner, ok := m.owners[applicationID]
	if !ok {
		return nil, fmt.Errorf("%w: woodland owner for application %s", review.ErrNotFound, applicationID)
	}
	return &owner, nil
}

func (m *Memory) GetFcArea(_ context.Context, applicationID uuid.UUID) (*review.FcArea, error) {
	m.refMu.RLock()
	defer m.refMu.RUnlock()
	app, ok := m.apps[applicationID]
	if !ok {
		return nil, fmt.Errorf("%w: application %s", review.ErrNotFound, applicationID)
	}
	area, ok := m.areas[app.FcAreaCode]
	if !ok {
		return nil, nil
	}
	return &area, nil
}

func (m *Memory) GetUserAccount(_ context.Context, userID uuid.UUID) (*review.UserAccount, error) {
	m.refMu.RLock()
	defer m.refMu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user account %s", review.ErrNotFound, userID)
	}
	return &u, nil
}

// =============================================================================
// AUDIT LOG - append-only
// =============================================================================

func (m *Memory) Publish(_ context.Context, event review.AuditEvent) error {
	m.auditMu.Lock()
	defer m.auditMu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *Memory) Query(_ context.Context, filter review.AuditFilter) ([]review.AuditEvent, error) {
	m.auditMu.RLock()
	defer m.auditMu.RUnlock()

	var out []review.AuditEvent
	for _, e := range m.events {
		if !matches(filter, e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func matches(f review.AuditFilter, e review.AuditEvent) bool {
	if f.EntityID != nil && e.EntityID != *f.EntityID {
		return false
	}
	if f.UserID != nil && e.UserID != *f.UserID {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, e.Type) {
		return false
	}
	if f.From != nil && e.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.OccurredAt.Before(*f.To) {
		return false
	}
	return true
}

var _ interface {
	review.Store
	review.ProposedPlanSource
	review.ApplicationContext
	review.UserDirectory
	review.AuditLog
} = (*Memory)(nil)

var _ review.Transaction = (*memoryTx)(nil)
