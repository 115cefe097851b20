package review_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/forestry/woodland-review/logger"
	"github.com/forestry/woodland-review/review"
	"github.com/forestry/woodland-review/review/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testNow = time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)

// testApp is one seeded application with a three-compartment plan:
//
//	"2"  5 ha  clear felling 2.5 ha, replant the felled area 2.5 ha
//	"10" 8 ha  thinning 3 ha
//	"1"  4 ha  regeneration felling 1 ha, plant an alternative area ("10") 1 ha
//
// Compartments are submitted out of order on purpose.
type testApp struct {
	ctx      context.Context
	mem      *store.Memory
	engine   *review.Engine
	tracker  *review.Tracker
	notifier *recordingNotifier

	appID       uuid.UUID
	applicantID uuid.UUID
	managerID   uuid.UUID
	officerID   uuid.UUID

	c2, c10, c1 review.Compartment

	clearFelling review.ProposedFellingDetail
	thinning     review.ProposedFellingDetail
	regeneration review.ProposedFellingDetail
}

type option func(*review.Deps)

// withStore wraps the memory store, e.g. with a fault injector.
func withStore(wrap func(review.Store) review.Store) option {
	return func(d *review.Deps) { d.Store = wrap(d.Store) }
}

func newTestApp(t *testing.T, opts ...option) *testApp {
	t.Helper()

	a := &testApp{
		ctx:         context.Background(),
		mem:         store.NewMemory(),
		notifier:    &recordingNotifier{},
		appID:       uuid.New(),
		applicantID: uuid.New(),
		managerID:   uuid.New(),
		officerID:   uuid.New(),
	}

	a.c2 = review.Compartment{ID: uuid.New(), CompartmentNumber: "2", TotalHectares: ha("5")}
	a.c10 = review.Compartment{ID: uuid.New(), CompartmentNumber: "10", TotalHectares: ha("8")}
	a.c1 = review.Compartment{ID: uuid.New(), CompartmentNumber: "1", TotalHectares: ha("4")}

	a.clearFelling = review.ProposedFellingDetail{
		ID:            uuid.New(),
		CompartmentID: a.c2.ID,
		FellingFacts: review.FellingFacts{
			OperationType:               review.OperationClearFelling,
			AreaToBeFelled:              ha("2.5"),
			NumberOfTrees:               intPtr(400),
			EstimatedTotalFellingVolume: ha("120"),
			IsRestocking:                boolPtr(true),
		},
		Species: []review.FellingSpecies{{Species: "SP"}, {Species: "OK"}},
		Restocking: []review.ProposedRestockingDetail{{
			ID:            uuid.New(),
			CompartmentID: a.c2.ID,
			RestockingFacts: review.RestockingFacts{
				ProposalType:      review.ProposalReplantTheFelledArea,
				Area:              ha("2.5"),
				RestockingDensity: ha("1600"),
			},
			Species: []review.RestockingSpecies{{Species: "OK", Percentage: ha("60")}, {Species: "BE", Percentage: ha("40")}},
		}},
	}
	a.thinning = review.ProposedFellingDetail{
		ID:            uuid.New(),
		CompartmentID: a.c10.ID,
		FellingFacts: review.FellingFacts{
			OperationType:  review.OperationThinning,
			AreaToBeFelled: ha("3"),
		},
		Species: []review.FellingSpecies{{Species: "SS"}},
	}
	a.regeneration = review.ProposedFellingDetail{
		ID:            uuid.New(),
		CompartmentID: a.c1.ID,
		FellingFacts: review.FellingFacts{
			OperationType:  review.OperationRegenerationFelling,
			AreaToBeFelled: ha("1"),
			IsRestocking:   boolPtr(true),
		},
		Species: []review.FellingSpecies{{Species: "BI"}},
		Restocking: []review.ProposedRestockingDetail{{
			ID:            uuid.New(),
			CompartmentID: a.c10.ID,
			RestockingFacts: review.RestockingFacts{
				ProposalType:      review.ProposalPlantAnAlternativeArea,
				Area:              ha("1"),
				RestockingDensity: ha("1100"),
			},
		}},
	}

	manager := a.managerID
	a.mem.SeedApplication(review.ApplicationSummary{
		ID:                     a.appID,
		Reference:              "FLO-2026-0042",
		PropertyName:           "Hollins Wood",
		Status:                 "WoodlandOfficerReview",
		ApplicantID:            a.applicantID,
		WoodlandOwnerID:        uuid.New(),
		AssignedFieldManagerID: &manager,
		FcAreaCode:             "NW",
	}, &review.WoodlandOwner{ContactName: "J. Owner", ContactEmail: "owner@example.com"},
		&review.FcArea{Code: "NW", Name: "North West", AdminHubName: "Penrith", AdminHubAddr: "Penrith CA11"})
	a.mem.AddUser(review.UserAccount{ID: a.applicantID, FullName: "Applicant", Email: "applicant@example.com", Role: "Applicant"})
	a.mem.AddUser(review.UserAccount{ID: a.managerID, FullName: "Field Manager", Email: "fm@example.com", Role: "FieldManager"})
	a.mem.AddUser(review.UserAccount{ID: a.officerID, FullName: "Woodland Officer", Email: "wo@example.com", Role: "WoodlandOfficer"})
	a.proposePlan()

	deps := review.Deps{
		Store:    a.mem,
		Proposed: a.mem,
		Apps:     a.mem,
		Audit:    a.mem,
		Notifier: a.notifier,
		Users:    a.mem,
		Logger:   logger.Discard(),
		Now:      func() time.Time { return testNow },
		Source:   "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}
	a.tracker = review.NewTracker(deps)
	a.engine = review.NewEngine(deps, a.tracker)
	return a
}

// proposePlan replaces the proposed plan with the fixture's current details,
// for tests that adjust a proposal before importing it.
func (a *testApp) proposePlan() {
	a.mem.SetProposedPlan(a.appID,
		[]review.Compartment{a.c2, a.c10, a.c1},
		[]review.ProposedFellingDetail{a.clearFelling, a.thinning, a.regeneration})
}

func (a *testApp) importPlan(t *testing.T) {
	t.Helper()
	require.NoError(t, a.engine.ImportProposedToConfirmed(a.ctx, a.appID, a.officerID, review.ImportOptions{}))
}

// detailFor returns the confirmed detail imported from a proposed detail.
func (a *testApp) detailFor(t *testing.T, proposedID uuid.UUID) review.ConfirmedFellingDetail {
	t.Helper()
	details, err := a.mem.ListConfirmedFellingDetails(a.ctx, a.appID)
	require.NoError(t, err)
	for _, d := range details {
		if pid, ok := review.ProposedIDOf(d.Origin); ok && pid == proposedID {
			return d
		}
	}
	t.Fatalf("no confirmed detail for proposed detail %s", proposedID)
	return review.ConfirmedFellingDetail{}
}

func (a *testApp) reload(t *testing.T, detailID uuid.UUID) *review.ConfirmedFellingDetail {
	t.Helper()
	d, err := a.mem.GetConfirmedFellingDetail(a.ctx, a.appID, detailID)
	require.NoError(t, err)
	return d
}

func (a *testApp) state(t *testing.T) *review.WoodlandOfficerReviewState {
	t.Helper()
	s, err := a.tracker.GetReviewState(a.ctx, a.appID)
	require.NoError(t, err)
	return s
}

func (a *testApp) events(t *testing.T) []review.AuditEvent {
	t.Helper()
	events, err := a.mem.Query(a.ctx, review.AuditFilter{EntityID: &a.appID})
	require.NoError(t, err)
	return events
}

func (a *testApp) countDetails(t *testing.T) (felling, restocking int) {
	t.Helper()
	details, err := a.mem.ListConfirmedFellingDetails(a.ctx, a.appID)
	require.NoError(t, err)
	for _, d := range details {
		restocking += len(d.Restocking)
	}
	return len(details), restocking
}

// completeAllSections answers every section so the review can be completed.
func (a *testApp) completeAllSections(t *testing.T) {
	t.Helper()
	ctx, app, user := a.ctx, a.appID, a.officerID
	require.NoError(t, a.tracker.HandleConfirmedFellingAndRestockingChanges(ctx, app, user, true))
	for _, c := range []review.Compartment{a.c1, a.c2, a.c10} {
		require.NoError(t, a.tracker.UpdateCompartmentDesignations(ctx, app, user, review.CompartmentDesignations{CompartmentID: c.ID, None: true}))
	}
	require.NoError(t, a.tracker.UpdateApplicationCompartmentDesignationsCompleted(ctx, app, user, true))
	require.NoError(t, a.tracker.CompletePriorityOpenHabitat(ctx, app, user, false, true))
	require.NoError(t, a.tracker.ConfirmTreeHealthCheck(ctx, app, user, true))
	require.NoError(t, a.tracker.UpdatePw14Checks(ctx, app, user, answeredPw14()))
	require.NoError(t, a.tracker.UpdateConditionalStatus(ctx, app, user, review.ConditionalStatus{IsConditional: boolPtr(false)}))
}

func answeredPw14() review.Pw14Checks {
	yes, no := boolPtr(true), boolPtr(false)
	return review.Pw14Checks{
		LandInformationSearchChecked:       yes,
		AreProposalsUkfsCompliant:          yes,
		TpoOrCaDeclared:                    no,
		IsApplicationValid:                 yes,
		EiaThresholdExceeded:               no,
		LocalAuthorityConsulted:            yes,
		InterestDeclared:                   no,
		ComplianceRecommendationsEnacted:   yes,
		MapAccuracyConfirmed:               yes,
		EpsLicenceConsidered:               yes,
		Stage1HabitatRegulationsAssessment: yes,
		Complete:                           true,
	}
}

func ha(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func intPtr(n int) *int       { return &n }
func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

// =============================================================================
// TEST DOUBLES
// =============================================================================

type sentNotification struct {
	Type      review.NotificationType
	Recipient review.Recipient
	Model     review.ReviewCompletionModel
}

// recordingNotifier records sends; fail makes every send of a type fail.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	fail map[review.NotificationType]error
}

func (n *recordingNotifier) SendNotification(_ context.Context, model any, notificationType review.NotificationType, recipient review.Recipient) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.fail[notificationType]; err != nil {
		return err
	}
	m, _ := model.(review.ReviewCompletionModel)
	n.sent = append(n.sent, sentNotification{Type: notificationType, Recipient: recipient, Model: m})
	return nil
}

var errInjected = errors.New("injected store failure")

// faultyStore fails the review-state write of every transaction while armed,
// so the detail write that precedes it must be rolled back.
type faultyStore struct {
	review.Store
	mu    sync.Mutex
	armed bool
}

func (s *faultyStore) arm(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = on
}

func (s *faultyStore) isArmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

func (s *faultyStore) BeginTransaction(ctx context.Context) (review.Transaction, error) {
	tx, err := s.Store.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Transaction: tx, store: s}, nil
}

type faultyTx struct {
	review.Transaction
	store *faultyStore
}

func (tx *faultyTx) SaveReviewState(ctx context.Context, state *review.WoodlandOfficerReviewState) error {
	if tx.store.isArmed() {
		return errInjected
	}
	return tx.Transaction.SaveReviewState(ctx, state)
}

// panickingStore panics inside the transaction while armed.
type panickingStore struct {
	review.Store
	armed bool
}

func (s *panickingStore) BeginTransaction(ctx context.Context) (review.Transaction, error) {
	tx, err := s.Store.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	return &panickingTx{Transaction: tx, store: s}, nil
}

type panickingTx struct {
	review.Transaction
	store *panickingStore
}

func (tx *panickingTx) SaveReviewState(ctx context.Context, state *review.WoodlandOfficerReviewState) error {
	if tx.store.armed {
		panic("state writer exploded")
	}
	return tx.Transaction.SaveReviewState(ctx, state)
}

// cancellingStore cancels the caller's context right after a detail write,
// before the transaction reaches the review-state write.
type cancellingStore struct {
	review.Store
	cancel context.CancelFunc
}

func (s *cancellingStore) BeginTransaction(ctx context.Context) (review.Transaction, error) {
	tx, err := s.Store.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	return &cancellingTx{Transaction: tx, store: s}, nil
}

type cancellingTx struct {
	review.Transaction
	store *cancellingStore
}

func (tx *cancellingTx) UpdateConfirmedFellingDetail(ctx context.Context, applicationID uuid.UUID, detail *review.ConfirmedFellingDetail) error {
	err := tx.Transaction.UpdateConfirmedFellingDetail(ctx, applicationID, detail)
	if tx.store.cancel != nil {
		tx.store.cancel()
	}
	return err
}

// eventsOfType counts the recorded audit events of one type.
func eventsOfType(events []review.AuditEvent, eventType review.AuditEventType) int {
	n := 0
	for _, e := range events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}
