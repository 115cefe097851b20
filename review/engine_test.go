package review_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestry/woodland-review/review"
)

// =============================================================================
// IMPORT
// =============================================================================

func TestImport_ClearFelling_CopiesAreaAndRestockingCompartment(t *testing.T) {
	// GIVEN: Compartment "2" with one clear felling of 2.5 ha and one
	//        "replant the felled area" restocking of 2.5 ha
	// WHEN: The proposed plan is imported
	// THEN: The confirmed detail has 2.5 ha and its restocking is on compartment "2"
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	assert.True(t, d.AreaToBeFelled.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, a.c2.ID, d.CompartmentID)
	require.Len(t, d.Restocking, 1)
	r := d.Restocking[0]
	assert.True(t, r.Area.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, a.c2.ID, r.CompartmentID)
	assert.Equal(t, "2", r.CompartmentNumber)
	assert.Nil(t, r.AlternativeCompartmentID)
	assert.True(t, d.Amended.IsEmpty())
	assert.True(t, r.Amended.IsEmpty())
}

func TestImport_RoundTrip_CountsAndScalarsMatch(t *testing.T) {
	// GIVEN: 3 proposed felling details with 2 restocking details in total
	// WHEN: Importing then listing
	// THEN: Exactly 3 felling and 2 restocking details with matching scalars and species
	a := newTestApp(t)
	a.importPlan(t)

	groups, err := a.engine.GetConfirmedFellingAndRestocking(a.ctx, a.appID)
	require.NoError(t, err)

	var felling, restocking int
	for _, g := range groups {
		felling += len(g.Felling)
		for _, f := range g.Felling {
			restocking += len(f.Restocking)
		}
	}
	assert.Equal(t, 3, felling)
	assert.Equal(t, 2, restocking)

	for _, p := range []review.ProposedFellingDetail{a.clearFelling, a.thinning, a.regeneration} {
		d := a.detailFor(t, p.ID)
		assert.Equal(t, p.OperationType, d.OperationType)
		assert.True(t, p.AreaToBeFelled.Equal(d.AreaToBeFelled))
		assert.True(t, review.FellingSpeciesEqual(p.Species, d.Species), "species of %s", p.OperationType)
		require.Len(t, d.Restocking, len(p.Restocking))
		for i, pr := range p.Restocking {
			cr := d.Restocking[i]
			pid, ok := review.ProposedIDOf(cr.Origin)
			require.True(t, ok)
			assert.Equal(t, pr.ID, pid)
			assert.Equal(t, pr.ProposalType, cr.ProposalType)
			assert.True(t, pr.Area.Equal(cr.Area))
			assert.True(t, review.RestockingSpeciesEqual(pr.Species, cr.Species))
		}
	}
}

func TestImport_CopiesCompartmentsWithConfirmedArea(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	compartments, err := a.mem.ListConfirmedCompartments(a.ctx, a.appID)
	require.NoError(t, err)
	require.Len(t, compartments, 3)
	for _, c := range compartments {
		assert.True(t, c.ConfirmedTotalHectares.Equal(c.TotalHectares), "compartment %s", c.DisplayName())
	}
}

func TestImport_AlternativeArea_RestocksAlternativeCompartment(t *testing.T) {
	// GIVEN: Regeneration felling in "1" restocked by planting compartment "10"
	// WHEN: Imported
	// THEN: The restocking compartment is "10", not the felling compartment
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.regeneration.ID)
	require.Len(t, d.Restocking, 1)
	r := d.Restocking[0]
	require.NotNil(t, r.AlternativeCompartmentID)
	assert.Equal(t, a.c10.ID, *r.AlternativeCompartmentID)
	assert.Equal(t, a.c10.ID, r.CompartmentID)
	assert.Equal(t, "10", r.CompartmentNumber)
}

func TestImport_Twice_WithoutReimport_Fails(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	err := a.engine.ImportProposedToConfirmed(a.ctx, a.appID, a.officerID, review.ImportOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, review.ErrConfirmedDetailsExist)
	assert.True(t, review.IsValidation(err))

	felling, restocking := a.countDetails(t)
	assert.Equal(t, 3, felling, "first import must be untouched")
	assert.Equal(t, 2, restocking)
}

func TestImport_Reimport_ReplacesAmendments(t *testing.T) {
	// GIVEN: An imported plan with one amended and one reviewer-added detail
	// WHEN: Reimporting
	// THEN: The confirmed copy matches the proposed plan again
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	d.AreaToBeFelled = ha("2")
	require.NoError(t, a.engine.SaveChangesToConfirmedFellingDetails(a.ctx, a.appID, a.officerID, d, d.Species))
	_, err := a.engine.AddNewConfirmedFellingDetails(a.ctx, a.appID, a.officerID, a.c1.ID, review.ConfirmedFellingDetail{
		FellingFacts: review.FellingFacts{OperationType: review.OperationFellingIndividualTrees, AreaToBeFelled: ha("0.5"), IsRestocking: boolPtr(false), NoRestockingReason: strPtr("road widening")},
	}, []review.FellingSpecies{{Species: "AH"}})
	require.NoError(t, err)

	err = a.engine.ImportProposedToConfirmed(a.ctx, a.appID, a.officerID, review.ImportOptions{Reimport: true})
	require.NoError(t, err)

	felling, restocking := a.countDetails(t)
	assert.Equal(t, 3, felling)
	assert.Equal(t, 2, restocking)
	again := a.detailFor(t, a.clearFelling.ID)
	assert.True(t, again.AreaToBeFelled.Equal(ha("2.5")))
	assert.True(t, again.Amended.IsEmpty())
}

func TestImport_ReopensFellingAndRestockingSection(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	s := a.state(t)
	assert.False(t, s.ConfirmedFellingAndRestockingComplete)
	assert.Equal(t, a.officerID, s.LastUpdatedBy)
	assert.Equal(t, testNow, s.LastUpdatedAt)
}

func TestImport_UnknownApplication_NotFound(t *testing.T) {
	a := newTestApp(t)

	err := a.engine.ImportProposedToConfirmed(a.ctx, uuid.New(), a.officerID, review.ImportOptions{})
	require.Error(t, err)
	assert.True(t, review.IsNotFound(err))

	var opErr *review.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "ImportProposedToConfirmed", opErr.Op)
	assert.Equal(t, review.SectionConfirmedFellingAndRestocking, opErr.Section)
}

// =============================================================================
// ORDERING
// =============================================================================

func TestGetConfirmed_OrdersCompartmentsNumerically(t *testing.T) {
	// GIVEN: Compartments submitted as "2", "10", "1"
	// WHEN: Listing confirmed details
	// THEN: They come back as "1", "2", "10"
	a := newTestApp(t)
	a.importPlan(t)

	groups, err := a.engine.GetConfirmedFellingAndRestocking(a.ctx, a.appID)
	require.NoError(t, err)

	var numbers []string
	for _, g := range groups {
		numbers = append(numbers, g.Compartment.CompartmentNumber)
	}
	assert.Equal(t, []string{"1", "2", "10"}, numbers)
}

func TestSortCompartments_SubCompartmentBreaksTies(t *testing.T) {
	compartments := []review.Compartment{
		{CompartmentNumber: "3", SubCompartmentName: "b"},
		{CompartmentNumber: "12", SubCompartmentName: "a"},
		{CompartmentNumber: "3", SubCompartmentName: "a"},
		{CompartmentNumber: "1"},
	}
	review.SortCompartments(compartments)

	var names []string
	for _, c := range compartments {
		names = append(names, c.DisplayName())
	}
	assert.Equal(t, []string{"1", "3a", "3b", "12a"}, names)
}

// =============================================================================
// AMEND
// =============================================================================

func TestSaveFelling_ComputesAmendedProperties(t *testing.T) {
	// GIVEN: An imported clear felling
	// WHEN: The reviewer changes the area and the species
	// THEN: Exactly those two fields are marked amended, and the marks accumulate
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	d.AreaToBeFelled = ha("2")
	require.NoError(t, a.engine.SaveChangesToConfirmedFellingDetails(a.ctx, a.appID, a.officerID, d,
		[]review.FellingSpecies{{Species: "sp"}, {Species: "BE"}}))

	got := a.reload(t, d.ID)
	assert.Equal(t, review.AmendedProperties{review.FieldAreaToBeFelled, review.FieldFellingSpecies}, got.Amended)
	assert.Len(t, got.Restocking, 1, "restocking children are kept")

	got.NumberOfTrees = intPtr(350)
	require.NoError(t, a.engine.SaveChangesToConfirmedFellingDetails(a.ctx, a.appID, a.officerID, *got, got.Species))
	again := a.reload(t, d.ID)
	assert.True(t, again.Amended.Has(review.FieldAreaToBeFelled))
	assert.True(t, again.Amended.Has(review.FieldNumberOfTrees))
}

func TestSaveFelling_NoChange_NoAmendedProperties(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	require.NoError(t, a.engine.SaveChangesToConfirmedFellingDetails(a.ctx, a.appID, a.officerID, d, d.Species))

	assert.True(t, a.reload(t, d.ID).Amended.IsEmpty())
}

func TestSaveFelling_NoChange_LowerCaseProposedSpecies(t *testing.T) {
	// GIVEN: A proposal whose species codes are lower case or padded
	// WHEN: The imported detail and its restocking are saved unchanged
	// THEN: Neither species field is marked as amended
	a := newTestApp(t)
	a.clearFelling.Species = []review.FellingSpecies{{Species: "sp"}, {Species: " ok "}}
	a.clearFelling.Restocking[0].Species = []review.RestockingSpecies{{Species: "ok", Percentage: ha("60")}, {Species: "be ", Percentage: ha("40")}}
	a.proposePlan()
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	assert.Equal(t, a.clearFelling.Species, d.Species, "imported as proposed")
	require.NoError(t, a.engine.SaveChangesToConfirmedFellingDetails(a.ctx, a.appID, a.officerID, d, d.Species))

	got := a.reload(t, d.ID)
	assert.True(t, got.Amended.IsEmpty())
	assert.Equal(t, []review.FellingSpecies{{Species: "SP"}, {Species: "OK"}}, got.Species)

	child := got.Restocking[0]
	require.NoError(t, a.engine.SaveChangesToConfirmedRestockingDetails(a.ctx, a.appID, a.officerID, child, child.Species))
	got = a.reload(t, d.ID)
	assert.True(t, got.Restocking[0].Amended.IsEmpty())
	assert.True(t, got.Amended.IsEmpty())

	// WHEN: A species is really dropped
	// THEN: It is marked
	require.NoError(t, a.engine.SaveChangesToConfirmedFellingDetails(a.ctx, a.appID, a.officerID, *got, []review.FellingSpecies{{Species: "sp"}}))
	assert.Equal(t, review.AmendedProperties{review.FieldFellingSpecies}, a.reload(t, d.ID).Amended)
}

func TestSaveFelling_UntouchedImportedRestocking_NotRevalidated(t *testing.T) {
	// GIVEN: An imported restocking child whose species a reviewer could not
	//        save as they stand (OK at 0%)
	// WHEN: Only the parent's number of trees is amended
	// THEN: The save succeeds and the child is kept exactly as imported
	a := newTestApp(t)
	a.clearFelling.Restocking[0].Species = []review.RestockingSpecies{{Species: "OK", Percentage: ha("0")}}
	a.proposePlan()
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	d.NumberOfTrees = intPtr(450)
	require.NoError(t, a.engine.SaveChangesToConfirmedFellingDetails(a.ctx, a.appID, a.officerID, d, d.Species))

	got := a.reload(t, d.ID)
	assert.Equal(t, review.AmendedProperties{review.FieldNumberOfTrees}, got.Amended)
	require.Len(t, got.Restocking, 1)
	assert.Equal(t, d.Restocking[0].ID, got.Restocking[0].ID)
	assert.True(t, got.Restocking[0].Amended.IsEmpty())
	require.Len(t, got.Restocking[0].Species, 1)
	assert.True(t, got.Restocking[0].Species[0].Percentage.IsZero())

	// WHEN: The same amend goes through the per-compartment save
	// THEN: It succeeds too
	got.EstimatedTotalFellingVolume = ha("110")
	require.NoError(t, a.engine.SaveChangesToConfirmedFellingAndRestocking(a.ctx, a.appID, a.officerID, []review.CompartmentChanges{
		{CompartmentID: a.c2.ID, Felling: []review.ConfirmedFellingDetail{*got}},
	}))

	// WHEN: The child itself is saved with those species
	// THEN: It is validated like any reviewer input
	child := a.reload(t, d.ID).Restocking[0]
	err := a.engine.SaveChangesToConfirmedRestockingDetails(a.ctx, a.appID, a.officerID, child, child.Species)
	require.Error(t, err)
	assert.True(t, review.IsValidation(err))
}

func TestSaveFelling_SpeciesNormalized(t *testing.T) {
	// GIVEN: Species with whitespace, lower case and a repeat
	// THEN: Codes are trimmed, upper-cased and de-duplicated in first-seen order
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.thinning.ID)
	species := []review.FellingSpecies{{Species: " ss "}, {Species: "NS"}, {Species: "SS"}}
	require.NoError(t, a.engine.SaveChangesToConfirmedFellingDetails(a.ctx, a.appID, a.officerID, d, species))

	assert.Equal(t, []review.FellingSpecies{{Species: "SS"}, {Species: "NS"}}, a.reload(t, d.ID).Species)
}

func TestSaveFelling_ToThinning_ClearsRestocking(t *testing.T) {
	// GIVEN: A restocked clear felling
	// WHEN: The operation is changed to thinning with restocking answers still set
	// THEN: IsRestocking, NoRestockingReason and every restocking child are gone
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	d.OperationType = review.OperationThinning
	d.NoRestockingReason = strPtr("left over")
	require.NoError(t, a.engine.SaveChangesToConfirmedFellingDetails(a.ctx, a.appID, a.officerID, d, d.Species))

	got := a.reload(t, d.ID)
	assert.Nil(t, got.IsRestocking)
	assert.Nil(t, got.NoRestockingReason)
	assert.Empty(t, got.Restocking)
	assert.True(t, got.Amended.Has(review.FieldOperationType))
	assert.True(t, got.Amended.Has(review.FieldIsRestocking))
	assert.True(t, got.Amended.Has(review.FieldRestocking))
}

func TestSaveFelling_NotRestocking_RequiresReason(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	d.IsRestocking = boolPtr(false)
	err := a.engine.SaveChangesToConfirmedFellingDetails(a.ctx, a.appID, a.officerID, d, d.Species)
	require.Error(t, err)
	assert.True(t, review.IsValidation(err))

	var ve *review.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "NoRestockingReason", ve.Field)
	assert.Len(t, a.reload(t, d.ID).Restocking, 1, "failed save leaves the detail unchanged")
}

func TestSaveFelling_NotRestocking_DropsChildren(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	d.IsRestocking = boolPtr(false)
	d.NoRestockingReason = strPtr("converting to open habitat")
	require.NoError(t, a.engine.SaveChangesToConfirmedFellingDetails(a.ctx, a.appID, a.officerID, d, d.Species))

	got := a.reload(t, d.ID)
	assert.Empty(t, got.Restocking)
	assert.Equal(t, "converting to open habitat", *got.NoRestockingReason)
	assert.True(t, got.Amended.Has(review.FieldRestocking))
}

func TestSaveFelling_AreaExceedsCompartment_Invalid(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	d.AreaToBeFelled = ha("5.01")
	err := a.engine.SaveChangesToConfirmedFellingDetails(a.ctx, a.appID, a.officerID, d, d.Species)
	assert.True(t, review.IsValidation(err))
}

func TestSaveFelling_UnknownDetail_NotFound(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	d := review.ConfirmedFellingDetail{ID: uuid.New()}
	err := a.engine.SaveChangesToConfirmedFellingDetails(a.ctx, a.appID, a.officerID, d, nil)
	require.Error(t, err)
	assert.True(t, review.IsNotFound(err))

	var opErr *review.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, d.ID, opErr.DetailID)
}

func TestAddFelling_ReviewerAdded(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	id, err := a.engine.AddNewConfirmedFellingDetails(a.ctx, a.appID, a.officerID, a.c1.ID, review.ConfirmedFellingDetail{
		FellingFacts: review.FellingFacts{
			OperationType:  review.OperationFellingOfCoppice,
			AreaToBeFelled: ha("0.75"),
			IsRestocking:   boolPtr(true),
		},
		Restocking: []review.ConfirmedRestockingDetail{{
			RestockingFacts: review.RestockingFacts{ProposalType: review.ProposalRestockWithCoppiceRegrowth, Area: ha("0.75")},
		}},
	}, []review.FellingSpecies{{Species: "hz"}})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	got := a.reload(t, id)
	assert.Equal(t, review.ReviewerAdded{}, got.Origin)
	assert.Equal(t, a.c1.ID, got.CompartmentID)
	assert.Equal(t, []review.FellingSpecies{{Species: "HZ"}}, got.Species)
	require.Len(t, got.Restocking, 1)
	assert.Equal(t, a.c1.ID, got.Restocking[0].CompartmentID)
	assert.Equal(t, id, got.Restocking[0].FellingDetailID)
	assert.True(t, got.Amended.IsEmpty())
}

func TestAddFelling_UnknownCompartment_NotFound(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	_, err := a.engine.AddNewConfirmedFellingDetails(a.ctx, a.appID, a.officerID, uuid.New(), review.ConfirmedFellingDetail{
		FellingFacts: review.FellingFacts{OperationType: review.OperationThinning, AreaToBeFelled: ha("1")},
	}, nil)
	assert.True(t, review.IsNotFound(err))
}

// =============================================================================
// SAVE PER COMPARTMENT
// =============================================================================

func TestSaveChanges_InsertsUpdatesAndDeletes(t *testing.T) {
	// GIVEN: Compartment "2" holds the imported clear felling
	// WHEN: Saving compartment "2" with the amended clear felling plus a new detail,
	//       and compartment "10" with an empty set
	// THEN: "2" has two details, the thinning in "10" is deleted, "1" is untouched
	a := newTestApp(t)
	a.importPlan(t)

	existing := a.detailFor(t, a.clearFelling.ID)
	existing.EstimatedTotalFellingVolume = ha("100")
	added := review.ConfirmedFellingDetail{
		FellingFacts: review.FellingFacts{OperationType: review.OperationThinning, AreaToBeFelled: ha("1")},
		Species:      []review.FellingSpecies{{Species: "LP"}},
	}
	err := a.engine.SaveChangesToConfirmedFellingAndRestocking(a.ctx, a.appID, a.officerID, []review.CompartmentChanges{
		{CompartmentID: a.c2.ID, Felling: []review.ConfirmedFellingDetail{existing, added}},
		{CompartmentID: a.c10.ID},
	})
	require.NoError(t, err)

	groups, err := a.engine.GetConfirmedFellingAndRestocking(a.ctx, a.appID)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Len(t, groups[0].Felling, 1, "compartment 1")
	assert.Len(t, groups[1].Felling, 2, "compartment 2")
	assert.Empty(t, groups[2].Felling, "compartment 10")

	assert.True(t, a.reload(t, existing.ID).Amended.Has(review.FieldEstimatedTotalFellingVolume))
}

func TestSaveChanges_OmittedRestockingChild_MarksParent(t *testing.T) {
	// GIVEN: The imported clear felling with one restocking child
	// WHEN: It is saved per compartment without that child
	// THEN: The child is gone and the parent's marker records the removal
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	d.Restocking = nil
	require.NoError(t, a.engine.SaveChangesToConfirmedFellingAndRestocking(a.ctx, a.appID, a.officerID, []review.CompartmentChanges{
		{CompartmentID: a.c2.ID, Felling: []review.ConfirmedFellingDetail{d}},
	}))

	got := a.reload(t, d.ID)
	assert.Empty(t, got.Restocking)
	assert.Equal(t, review.AmendedProperties{review.FieldRestocking}, got.Amended)
}

func TestSaveChanges_AllOrNothing(t *testing.T) {
	// GIVEN: Two compartments, the second with an invalid detail
	// WHEN: Saving both
	// THEN: Nothing from the first compartment is persisted either
	a := newTestApp(t)
	a.importPlan(t)

	good := a.detailFor(t, a.clearFelling.ID)
	good.AreaToBeFelled = ha("1")
	bad := a.detailFor(t, a.thinning.ID)
	bad.AreaToBeFelled = decimal.Zero

	err := a.engine.SaveChangesToConfirmedFellingAndRestocking(a.ctx, a.appID, a.officerID, []review.CompartmentChanges{
		{CompartmentID: a.c2.ID, Felling: []review.ConfirmedFellingDetail{good}},
		{CompartmentID: a.c10.ID, Felling: []review.ConfirmedFellingDetail{bad}},
	})
	require.Error(t, err)
	assert.True(t, review.IsValidation(err))

	assert.True(t, a.reload(t, good.ID).AreaToBeFelled.Equal(ha("2.5")))
}

func TestSaveChanges_DetailFromOtherCompartment_NotFound(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	foreign := a.detailFor(t, a.thinning.ID)
	err := a.engine.SaveChangesToConfirmedFellingAndRestocking(a.ctx, a.appID, a.officerID, []review.CompartmentChanges{
		{CompartmentID: a.c2.ID, Felling: []review.ConfirmedFellingDetail{foreign}},
	})
	assert.True(t, review.IsNotFound(err))
}

func TestSaveChanges_DuplicateCompartment_Invalid(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	err := a.engine.SaveChangesToConfirmedFellingAndRestocking(a.ctx, a.appID, a.officerID, []review.CompartmentChanges{
		{CompartmentID: a.c2.ID}, {CompartmentID: a.c2.ID},
	})
	assert.True(t, review.IsValidation(err))
}

// =============================================================================
// RESTOCKING
// =============================================================================

func TestSaveRestocking_NoneTwice_NoRows(t *testing.T) {
	// GIVEN: A felling detail with no restocking children
	// WHEN: Saving a restocking detail with proposal type None twice
	// THEN: Both calls succeed and no restocking rows exist
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.regeneration.ID)
	d.Restocking = nil
	require.NoError(t, a.engine.SaveChangesToConfirmedFellingAndRestocking(a.ctx, a.appID, a.officerID, []review.CompartmentChanges{
		{CompartmentID: a.c1.ID, Felling: []review.ConfirmedFellingDetail{d}},
	}))
	require.Empty(t, a.reload(t, d.ID).Restocking)

	none := review.ConfirmedRestockingDetail{
		FellingDetailID: d.ID,
		RestockingFacts: review.RestockingFacts{ProposalType: review.ProposalNone},
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, a.engine.SaveChangesToConfirmedRestockingDetails(a.ctx, a.appID, a.officerID, none, nil))
		assert.Empty(t, a.reload(t, d.ID).Restocking, "after save %d", i+1)
	}
}

func TestSaveRestocking_NoneRemovesExistingChild(t *testing.T) {
	// GIVEN: The imported clear felling with one imported restocking child
	// WHEN: The child is saved with proposal type None
	// THEN: It is removed and the parent is marked; a revert brings it back
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	child := d.Restocking[0]
	child.ProposalType = review.ProposalNone
	require.NoError(t, a.engine.SaveChangesToConfirmedRestockingDetails(a.ctx, a.appID, a.officerID, child, nil))

	got := a.reload(t, d.ID)
	assert.Empty(t, got.Restocking)
	assert.Equal(t, review.AmendedProperties{review.FieldRestocking}, got.Amended)

	require.NoError(t, a.engine.RevertConfirmedFellingDetail(a.ctx, a.appID, a.officerID, d.ID))
	got = a.reload(t, d.ID)
	assert.Len(t, got.Restocking, 1)
	assert.True(t, got.Amended.IsEmpty())
}

func TestSaveRestocking_ReviewerAddedParent_NotMarked(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	id, err := a.engine.AddNewConfirmedFellingDetails(a.ctx, a.appID, a.officerID, a.c1.ID, review.ConfirmedFellingDetail{
		FellingFacts: review.FellingFacts{OperationType: review.OperationFellingOfCoppice, AreaToBeFelled: ha("0.5"), IsRestocking: boolPtr(true)},
		Restocking: []review.ConfirmedRestockingDetail{{
			RestockingFacts: review.RestockingFacts{ProposalType: review.ProposalRestockWithCoppiceRegrowth, Area: ha("0.5")},
		}},
	}, []review.FellingSpecies{{Species: "HZ"}})
	require.NoError(t, err)

	child := a.reload(t, id).Restocking[0]
	child.ProposalType = review.ProposalNone
	require.NoError(t, a.engine.SaveChangesToConfirmedRestockingDetails(a.ctx, a.appID, a.officerID, child, nil))

	got := a.reload(t, id)
	assert.Empty(t, got.Restocking)
	assert.True(t, got.Amended.IsEmpty())
}

func TestSaveRestocking_AlternativeAreaDerivation(t *testing.T) {
	// GIVEN: The replant restocking of the clear felling in "2"
	// WHEN: Changed to "plant an alternative area" on "1", then to
	//       "restock by natural regeneration" with the alternative still set
	// THEN: First the compartment is "1", then it falls back to "2"
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	child := d.Restocking[0]
	alt := a.c1.ID
	child.ProposalType = review.ProposalPlantAnAlternativeAreaWithTrees
	child.AlternativeCompartmentID = &alt
	require.NoError(t, a.engine.SaveChangesToConfirmedRestockingDetails(a.ctx, a.appID, a.officerID, child, child.Species))

	got := a.reload(t, d.ID).Restocking[0]
	assert.Equal(t, a.c1.ID, got.CompartmentID)
	assert.Equal(t, child.ID, got.ID)
	assert.True(t, got.Amended.Has(review.FieldProposalType))
	assert.True(t, got.Amended.Has(review.FieldRestockingCompartment))

	got.ProposalType = review.ProposalRestockByNaturalRegeneration
	require.NoError(t, a.engine.SaveChangesToConfirmedRestockingDetails(a.ctx, a.appID, a.officerID, got, got.Species))

	again := a.reload(t, d.ID).Restocking[0]
	assert.Equal(t, a.c2.ID, again.CompartmentID)
	assert.Nil(t, again.AlternativeCompartmentID)
}

func TestSaveRestocking_AlternativeAreaWithoutCompartment_Invalid(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	child := d.Restocking[0]
	child.ProposalType = review.ProposalPlantAnAlternativeArea
	child.AlternativeCompartmentID = nil
	err := a.engine.SaveChangesToConfirmedRestockingDetails(a.ctx, a.appID, a.officerID, child, child.Species)
	assert.True(t, review.IsValidation(err))
}

func TestSaveRestocking_AddsNewChild(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	err := a.engine.SaveChangesToConfirmedRestockingDetails(a.ctx, a.appID, a.officerID, review.ConfirmedRestockingDetail{
		FellingDetailID: d.ID,
		RestockingFacts: review.RestockingFacts{
			ProposalType:     review.ProposalCreateDesignedOpenGround,
			Area:             ha("0.3"),
			PercentOpenSpace: decimal.NewNullDecimal(ha("100")),
		},
	}, nil)
	require.NoError(t, err)

	got := a.reload(t, d.ID)
	require.Len(t, got.Restocking, 2)
	added := got.Restocking[1]
	assert.Equal(t, review.ReviewerAdded{}, added.Origin)
	assert.Equal(t, a.c2.ID, added.CompartmentID)
	assert.Equal(t, review.AmendedProperties{review.FieldRestocking}, got.Amended)
}

func TestSaveRestocking_OnThinning_Invalid(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.thinning.ID)
	err := a.engine.SaveChangesToConfirmedRestockingDetails(a.ctx, a.appID, a.officerID, review.ConfirmedRestockingDetail{
		FellingDetailID: d.ID,
		RestockingFacts: review.RestockingFacts{ProposalType: review.ProposalReplantTheFelledArea, Area: ha("1")},
	}, nil)
	assert.True(t, review.IsValidation(err))
	assert.Empty(t, a.reload(t, d.ID).Restocking)
}

func TestSaveRestocking_SpeciesOver100Percent_Invalid(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	child := d.Restocking[0]
	species := []review.RestockingSpecies{{Species: "OK", Percentage: ha("70")}, {Species: "BE", Percentage: ha("40")}}
	err := a.engine.SaveChangesToConfirmedRestockingDetails(a.ctx, a.appID, a.officerID, child, species)
	assert.True(t, review.IsValidation(err))
}

// =============================================================================
// REVERT
// =============================================================================

func TestRevert_RestoresProposedValues(t *testing.T) {
	// GIVEN: An amended imported detail with its restocking amended too
	// WHEN: Reverting by proposed detail id
	// THEN: Scalars, species and restocking match the proposal, the marker is empty
	//       and the restocking child keeps its id
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	childID := d.Restocking[0].ID
	d.AreaToBeFelled = ha("1.5")
	d.Restocking[0].Area = ha("1.5")
	require.NoError(t, a.engine.SaveChangesToConfirmedFellingAndRestocking(a.ctx, a.appID, a.officerID, []review.CompartmentChanges{
		{CompartmentID: a.c2.ID, Felling: []review.ConfirmedFellingDetail{d}},
	}))
	require.False(t, a.reload(t, d.ID).Amended.IsEmpty())

	require.NoError(t, a.engine.RevertConfirmedFellingDetailAmendments(a.ctx, a.appID, a.officerID, a.clearFelling.ID))

	got := a.reload(t, d.ID)
	assert.True(t, got.AreaToBeFelled.Equal(ha("2.5")))
	assert.True(t, got.Amended.IsEmpty())
	assert.True(t, review.FellingSpeciesEqual(a.clearFelling.Species, got.Species))
	require.Len(t, got.Restocking, 1)
	assert.True(t, got.Restocking[0].Area.Equal(ha("2.5")))
	assert.True(t, got.Restocking[0].Amended.IsEmpty())
	assert.Equal(t, childID, got.Restocking[0].ID)
}

func TestRevert_ByDetailID(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.thinning.ID)
	d.AreaToBeFelled = ha("7")
	require.NoError(t, a.engine.SaveChangesToConfirmedFellingDetails(a.ctx, a.appID, a.officerID, d, d.Species))

	require.NoError(t, a.engine.RevertConfirmedFellingDetail(a.ctx, a.appID, a.officerID, d.ID))
	assert.True(t, a.reload(t, d.ID).AreaToBeFelled.Equal(ha("3")))
}

func TestRevert_ReviewerAdded_ValidationFailureAndUnchanged(t *testing.T) {
	// GIVEN: A reviewer-added detail (no proposed detail behind it)
	// WHEN: Reverting it
	// THEN: ErrNotImported and the record is unchanged
	a := newTestApp(t)
	a.importPlan(t)

	id, err := a.engine.AddNewConfirmedFellingDetails(a.ctx, a.appID, a.officerID, a.c10.ID, review.ConfirmedFellingDetail{
		FellingFacts: review.FellingFacts{OperationType: review.OperationThinning, AreaToBeFelled: ha("2")},
	}, []review.FellingSpecies{{Species: "DF"}})
	require.NoError(t, err)
	before := a.reload(t, id)

	err = a.engine.RevertConfirmedFellingDetail(a.ctx, a.appID, a.officerID, id)
	require.Error(t, err)
	assert.ErrorIs(t, err, review.ErrNotImported)
	assert.True(t, review.IsValidation(err))
	assert.Equal(t, before, a.reload(t, id))
}

func TestRevert_UnknownProposed_NotFound(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	err := a.engine.RevertConfirmedFellingDetailAmendments(a.ctx, a.appID, a.officerID, uuid.New())
	assert.True(t, review.IsNotFound(err))
}

// =============================================================================
// DELETE / RESET
// =============================================================================

func TestDelete_CascadesRestocking(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	require.NoError(t, a.engine.DeleteConfirmedFellingDetail(a.ctx, a.appID, a.officerID, d.ID))

	_, err := a.mem.GetConfirmedFellingDetail(a.ctx, a.appID, d.ID)
	assert.True(t, errors.Is(err, review.ErrNotFound))
	felling, restocking := a.countDetails(t)
	assert.Equal(t, 2, felling)
	assert.Equal(t, 1, restocking)
}

func TestDelete_Unknown_NotFound(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	err := a.engine.DeleteConfirmedFellingDetail(a.ctx, a.appID, a.officerID, uuid.New())
	assert.True(t, review.IsNotFound(err))
}

func TestReset_ClearsDetailsAndState(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)
	require.NoError(t, a.tracker.ConfirmTreeHealthCheck(a.ctx, a.appID, a.officerID, true))

	require.NoError(t, a.engine.ResetConfirmedFellingAndRestocking(a.ctx, a.appID, a.officerID))

	felling, _ := a.countDetails(t)
	assert.Zero(t, felling)
	compartments, err := a.mem.ListConfirmedCompartments(a.ctx, a.appID)
	require.NoError(t, err)
	assert.Empty(t, compartments)
	assert.Nil(t, a.state(t).TreeHealthCheckComplete)

	// A fresh import is allowed again without Reimport.
	a.importPlan(t)
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

func TestAtomicity_StateWriteFailure_RollsBackDetailWrite(t *testing.T) {
	// GIVEN: A store whose review-state write fails
	// WHEN: Running every amend/add/delete/revert operation
	// THEN: Each call fails with ErrPersistence and no detail change is observable
	var faulty *faultyStore
	a := newTestApp(t, withStore(func(s review.Store) review.Store {
		faulty = &faultyStore{Store: s}
		return faulty
	}))
	a.importPlan(t)

	d := a.detailFor(t, a.clearFelling.ID)
	before, err := a.engine.GetConfirmedFellingAndRestocking(a.ctx, a.appID)
	require.NoError(t, err)

	faulty.arm(true)
	amended := d
	amended.AreaToBeFelled = ha("1")
	child := d.Restocking[0]
	child.Area = ha("1")

	ops := map[string]func() error{
		"amend": func() error {
			return a.engine.SaveChangesToConfirmedFellingDetails(a.ctx, a.appID, a.officerID, amended, amended.Species)
		},
		"save compartment": func() error {
			return a.engine.SaveChangesToConfirmedFellingAndRestocking(a.ctx, a.appID, a.officerID,
				[]review.CompartmentChanges{{CompartmentID: a.c2.ID, Felling: []review.ConfirmedFellingDetail{amended}}})
		},
		"add": func() error {
			_, err := a.engine.AddNewConfirmedFellingDetails(a.ctx, a.appID, a.officerID, a.c1.ID, review.ConfirmedFellingDetail{
				FellingFacts: review.FellingFacts{OperationType: review.OperationThinning, AreaToBeFelled: ha("1")},
			}, nil)
			return err
		},
		"delete": func() error {
			return a.engine.DeleteConfirmedFellingDetail(a.ctx, a.appID, a.officerID, d.ID)
		},
		"revert": func() error {
			return a.engine.RevertConfirmedFellingDetail(a.ctx, a.appID, a.officerID, d.ID)
		},
		"restocking": func() error {
			return a.engine.SaveChangesToConfirmedRestockingDetails(a.ctx, a.appID, a.officerID, child, child.Species)
		},
		"reimport": func() error {
			return a.engine.ImportProposedToConfirmed(a.ctx, a.appID, a.officerID, review.ImportOptions{Reimport: true})
		},
		"reset": func() error {
			return a.engine.ResetConfirmedFellingAndRestocking(a.ctx, a.appID, a.officerID)
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			require.Error(t, err)
			assert.ErrorIs(t, err, review.ErrPersistence)
			assert.ErrorIs(t, err, errInjected)

			after, err := a.engine.GetConfirmedFellingAndRestocking(a.ctx, a.appID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestPanicInsideTransaction_BecomesUnexpectedFailure(t *testing.T) {
	var ps *panickingStore
	a := newTestApp(t, withStore(func(s review.Store) review.Store {
		ps = &panickingStore{Store: s}
		return ps
	}))
	a.importPlan(t)
	d := a.detailFor(t, a.clearFelling.ID)

	ps.armed = true
	err := a.engine.DeleteConfirmedFellingDetail(a.ctx, a.appID, a.officerID, d.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, review.ErrUnexpected)

	ps.armed = false
	assert.Equal(t, d.ID, a.reload(t, d.ID).ID, "rolled back")

	events := a.events(t)
	assert.Equal(t, review.AuditDeleteConfirmedFellingFailure, events[len(events)-1].Type)
}

func TestCancelledContext_NoWriteButFailureAudited(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)
	d := a.detailFor(t, a.clearFelling.ID)

	ctx, cancel := context.WithCancel(a.ctx)
	cancel()
	err := a.engine.DeleteConfirmedFellingDetail(ctx, a.appID, a.officerID, d.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, review.ErrUnexpected)
	assert.Equal(t, d.ID, a.reload(t, d.ID).ID)

	events := a.events(t)
	assert.Equal(t, review.AuditDeleteConfirmedFellingFailure, events[len(events)-1].Type)
}

func TestCancelledMidTransaction_RollsBackAndAuditsOnce(t *testing.T) {
	// GIVEN: A store that cancels the caller's context right after the detail
	//        write, before the review state is written
	// WHEN: An amend runs under that context
	// THEN: The detail write is rolled back, the failure is unexpected and
	//       exactly one failure event is recorded
	var cs *cancellingStore
	a := newTestApp(t, withStore(func(s review.Store) review.Store {
		cs = &cancellingStore{Store: s}
		return cs
	}))
	a.importPlan(t)
	d := a.detailFor(t, a.clearFelling.ID)
	before := len(a.events(t))

	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()
	cs.cancel = cancel

	d.AreaToBeFelled = ha("1")
	err := a.engine.SaveChangesToConfirmedFellingDetails(ctx, a.appID, a.officerID, d, d.Species)
	require.Error(t, err)
	assert.ErrorIs(t, err, review.ErrUnexpected)
	assert.ErrorIs(t, err, context.Canceled)

	got := a.reload(t, d.ID)
	assert.True(t, got.AreaToBeFelled.Equal(ha("2.5")))
	assert.True(t, got.Amended.IsEmpty())

	events := a.events(t)[before:]
	require.Len(t, events, 1)
	assert.Equal(t, review.AuditUpdateConfirmedFellingFailure, events[0].Type)
	assert.Contains(t, events[0].Payload["error"], "canceled")
	assert.Zero(t, eventsOfType(a.events(t), review.AuditUpdateConfirmedFelling))
}

func TestAudit_ExactlyOneEventPerCall(t *testing.T) {
	// GIVEN: A fresh application
	// WHEN: A successful import, a failed import and a failed revert
	// THEN: One event per call, success or failure, in order
	a := newTestApp(t)
	a.importPlan(t)
	_ = a.engine.ImportProposedToConfirmed(a.ctx, a.appID, a.officerID, review.ImportOptions{})
	_ = a.engine.RevertConfirmedFellingDetailAmendments(a.ctx, a.appID, a.officerID, uuid.New())

	events := a.events(t)
	require.Len(t, events, 3)
	assert.Equal(t, review.AuditImportProposedDetails, events[0].Type)
	assert.Equal(t, review.AuditImportProposedDetailsFailure, events[1].Type)
	assert.Equal(t, review.AuditRevertConfirmedFellingFailure, events[2].Type)

	assert.Equal(t, a.officerID, events[0].UserID)
	assert.Equal(t, testNow, events[0].OccurredAt)
	assert.Equal(t, "test", events[0].Source)
	assert.Equal(t, 3, events[0].Payload["fellingDetails"])
	assert.Equal(t, 2, events[0].Payload["restockingDetails"])
	assert.Contains(t, events[1].Payload["error"], "already exist")
}

func TestReads_DoNotAudit(t *testing.T) {
	a := newTestApp(t)
	a.importPlan(t)

	_, err := a.engine.GetConfirmedFellingAndRestocking(a.ctx, a.appID)
	require.NoError(t, err)
	_, err = a.tracker.GetReviewState(a.ctx, a.appID)
	require.NoError(t, err)

	assert.Len(t, a.events(t), 1)
}
