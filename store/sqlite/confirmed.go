package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/forestry/woodland-review/review"
)

// =============================================================================
// COLUMN SETS - shared by proposed and confirmed tables
// =============================================================================

const fellingColumns = `operation_type, area_to_be_felled, number_of_trees,
	is_tree_marking_used, tree_marking, is_part_of_tpo, tpo_reference,
	is_within_conservation_area, conservation_area_reference,
	estimated_total_felling_volume, is_restocking, no_restocking_reason`

const restockingColumns = `proposal_type, area, restocking_density,
	percent_open_space, percent_natural_regeneration, number_of_trees`

func fellingArgs(f review.FellingFacts) []any {
	return []any{
		string(f.OperationType), f.AreaToBeFelled, f.NumberOfTrees,
		f.IsTreeMarkingUsed, f.TreeMarking, f.IsPartOfTreePreservationOrder, f.TreePreservationOrderReference,
		f.IsWithinConservationArea, f.ConservationAreaReference,
		f.EstimatedTotalFellingVolume, f.IsRestocking, f.NoRestockingReason,
	}
}

func fellingDest(f *review.FellingFacts) []any {
	return []any{
		&f.OperationType, &f.AreaToBeFelled, &f.NumberOfTrees,
		&f.IsTreeMarkingUsed, &f.TreeMarking, &f.IsPartOfTreePreservationOrder, &f.TreePreservationOrderReference,
		&f.IsWithinConservationArea, &f.ConservationAreaReference,
		&f.EstimatedTotalFellingVolume, &f.IsRestocking, &f.NoRestockingReason,
	}
}

func restockingArgs(r review.RestockingFacts) []any {
	return []any{
		string(r.ProposalType), r.Area, r.RestockingDensity,
		r.PercentOpenSpace, r.PercentNaturalRegeneration, r.NumberOfTrees,
	}
}

func restockingDest(r *review.RestockingFacts) []any {
	return []any{
		&r.ProposalType, &r.Area, &r.RestockingDensity,
		&r.PercentOpenSpace, &r.PercentNaturalRegeneration, &r.NumberOfTrees,
	}
}

// =============================================================================
// READER
// =============================================================================

type reader struct {
	q querier
}

func (r reader) ListConfirmedCompartments(ctx context.Context, applicationID uuid.UUID) ([]review.Compartment, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, compartment_number, sub_compartment_name, designation, total_hectares, confirmed_total_hectares
		FROM confirmed_compartments WHERE application_id = ? ORDER BY seq`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []review.Compartment
	for rows.Next() {
		var c review.Compartment
		if err := rows.Scan(&c.ID, &c.CompartmentNumber, &c.SubCompartmentName, &c.Designation, &c.TotalHectares, &c.ConfirmedTotalHectares); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r reader) ListConfirmedFellingDetails(ctx context.Context, applicationID uuid.UUID) ([]review.ConfirmedFellingDetail, error) {
	return r.queryDetails(ctx, `WHERE application_id = ?`, applicationID)
}

func (r reader) GetConfirmedFellingDetail(ctx context.Context, applicationID, detailID uuid.UUID) (*review.ConfirmedFellingDetail, error) {
	details, err := r.queryDetails(ctx, `WHERE application_id = ? AND id = ?`, applicationID, detailID)
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, fmt.Errorf("%w: confirmed felling detail %s", review.ErrNotFound, detailID)
	}
	return &details[0], nil
}

// queryDetails loads felling details in persisted order, then their species
// and restocking children. Rows are drained before the child queries run:
// the connection is shared.
func (r reader) queryDetails(ctx context.Context, where string, args ...any) ([]review.ConfirmedFellingDetail, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, compartment_id, proposed_felling_details_id, `+fellingColumns+`, amended_properties
		FROM confirmed_felling_details `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, err
	}

	var details []review.ConfirmedFellingDetail
	for rows.Next() {
		var (
			d          review.ConfirmedFellingDetail
			proposedID uuid.NullUUID
			amended    string
		)
		dest := append([]any{&d.ID, &d.CompartmentID, &proposedID}, fellingDest(&d.FellingFacts)...)
		dest = append(dest, &amended)
		if err := rows.Scan(dest...); err != nil {
			rows.Close()
			return nil, err
		}
		d.Origin = originOf(proposedID)
		if err := json.Unmarshal([]byte(amended), &d.Amended); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode amended properties of %s: %w", d.ID, err)
		}
		details = append(details, d)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range details {
		if details[i].Species, err = r.fellingSpecies(ctx, details[i].ID); err != nil {
			return nil, err
		}
		if details[i].Restocking, err = r.restocking(ctx, details[i].ID); err != nil {
			return nil, err
		}
	}
	return details, nil
}

func (r reader) fellingSpecies(ctx context.Context, detailID uuid.UUID) ([]review.FellingSpecies, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT species FROM confirmed_felling_species WHERE felling_detail_id = ? ORDER BY seq`, detailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []review.FellingSpecies
	for rows.Next() {
		var s review.FellingSpecies
		if err := rows.Scan(&s.Species); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r reader) restocking(ctx context.Context, detailID uuid.UUID) ([]review.ConfirmedRestockingDetail, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, felling_detail_id, proposed_restocking_details_id, compartment_id, compartment_number,
			alternative_compartment_id, `+restockingColumns+`, amended_properties
		FROM confirmed_restocking_details WHERE felling_detail_id = ? ORDER BY seq`, detailID)
	if err != nil {
		return nil, err
	}

	var out []review.ConfirmedRestockingDetail
	for rows.Next() {
		var (
			rd          review.ConfirmedRestockingDetail
			proposedID  uuid.NullUUID
			alternative uuid.NullUUID
			amended     string
		)
		dest := []any{&rd.ID, &rd.FellingDetailID, &proposedID, &rd.CompartmentID, &rd.CompartmentNumber, &alternative}
		dest = append(dest, restockingDest(&rd.RestockingFacts)...)
		dest = append(dest, &amended)
		if err := rows.Scan(dest...); err != nil {
			rows.Close()
			return nil, err
		}
		rd.Origin = originOf(proposedID)
		if alternative.Valid {
			id := alternative.UUID
			rd.AlternativeCompartmentID = &id
		}
		if err := json.Unmarshal([]byte(amended), &rd.Amended); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode amended properties of %s: %w", rd.ID, err)
		}
		out = append(out, rd)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Species, err = r.restockingSpecies(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r reader) restockingSpecies(ctx context.Context, restockingID uuid.UUID) ([]review.RestockingSpecies, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT species, percentage FROM confirmed_restocking_species
		WHERE restocking_detail_id = ? ORDER BY seq`, restockingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []review.RestockingSpecies
	for rows.Next() {
		var s review.RestockingSpecies
		if err := rows.Scan(&s.Species, &s.Percentage); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r reader) ListCompartmentDesignations(ctx context.Context, applicationID uuid.UUID) ([]review.CompartmentDesignations, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT d.compartment_id, d.sssi, d.sac, d.spa, d.ramsar, d.sbi, d.other, d.other_designation,
			d.none_designated, d.paws_percentage
		FROM compartment_designations d
		JOIN confirmed_compartments c ON c.id = d.compartment_id
		WHERE d.application_id = ? ORDER BY c.seq`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []review.CompartmentDesignations
	for rows.Next() {
		var d review.CompartmentDesignations
		if err := rows.Scan(&d.CompartmentID, &d.Sssi, &d.Sac, &d.Spa, &d.Ramsar, &d.Sbi, &d.Other,
			&d.OtherDesignation, &d.None, &d.PawsPercentage); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r reader) GetReviewState(ctx context.Context, applicationID uuid.UUID) (*review.WoodlandOfficerReviewState, error) {
	var (
		s        review.WoodlandOfficerReviewState
		pw14     string
		duration int
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT application_id, confirmed_felling_and_restocking_complete, designations_complete,
			is_priority_open_habitat, priority_open_habitat_complete, tree_health_check_complete,
			pw14_checks, is_conditional, conditions_to_applicant_date,
			woodland_officer_review_complete, completed_at, recommended_licence_duration,
			recommendation_for_decision_public_register, last_updated_by, last_updated_at
		FROM woodland_officer_reviews WHERE application_id = ?`, applicationID,
	).Scan(&s.ApplicationID, &s.ConfirmedFellingAndRestockingComplete, &s.DesignationsComplete,
		&s.IsPriorityOpenHabitat, &s.PriorityOpenHabitatComplete, &s.TreeHealthCheckComplete,
		&pw14, &s.Conditional.IsConditional, &s.Conditional.ConditionsToApplicantDate,
		&s.WoodlandOfficerReviewComplete, &s.CompletedAt, &duration,
		&s.RecommendationForDecisionPublicRegister, &s.LastUpdatedBy, &s.LastUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pw14), &s.Pw14Checks); err != nil {
		return nil, fmt.Errorf("decode pw14 checks: %w", err)
	}
	s.RecommendedLicenceDuration = review.RecommendedLicenceDuration(duration)
	return &s, nil
}

func originOf(proposedID uuid.NullUUID) review.Origin {
	if !proposedID.Valid {
		return review.ReviewerAdded{}
	}
	return review.OriginFromProposedID(&proposedID.UUID)
}

func proposedIDArg(o review.Origin) uuid.NullUUID {
	id, ok := review.ProposedIDOf(o)
	return uuid.NullUUID{UUID: id, Valid: ok}
}

// =============================================================================
// WRITER - only reachable through Tx
// =============================================================================

type writer struct {
	reader
}

func (w writer) SaveConfirmedCompartments(ctx context.Context, applicationID uuid.UUID, compartments []review.Compartment) error {
	for _, c := range compartments {
		_, err := w.q.ExecContext(ctx, `
			INSERT INTO confirmed_compartments
				(id, application_id, compartment_number, sub_compartment_name, designation, total_hectares, confirmed_total_hectares)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				compartment_number = excluded.compartment_number,
				sub_compartment_name = excluded.sub_compartment_name,
				designation = excluded.designation,
				total_hectares = excluded.total_hectares,
				confirmed_total_hectares = excluded.confirmed_total_hectares`,
			c.ID, applicationID, c.CompartmentNumber, c.SubCompartmentName, c.Designation, c.TotalHectares, c.ConfirmedTotalHectares)
		if err != nil {
			return fmt.Errorf("save compartment %s: %w", c.DisplayName(), err)
		}
	}
	return nil
}

func (w writer) InsertConfirmedFellingDetail(ctx context.Context, applicationID uuid.UUID, d *review.ConfirmedFellingDetail) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	amended, err := json.Marshal(nonNilFields(d.Amended))
	if err != nil {
		return err
	}
	args := append([]any{d.ID, applicationID, d.CompartmentID, proposedIDArg(d.Origin)}, fellingArgs(d.FellingFacts)...)
	args = append(args, string(amended))
	if _, err := w.q.ExecContext(ctx, `
		INSERT INTO confirmed_felling_details
			(id, application_id, compartment_id, proposed_felling_details_id, `+fellingColumns+`, amended_properties)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
		return fmt.Errorf("insert felling detail: %w", err)
	}
	return w.writeChildren(ctx, d)
}

func (w writer) UpdateConfirmedFellingDetail(ctx context.Context, applicationID uuid.UUID, d *review.ConfirmedFellingDetail) error {
	amended, err := json.Marshal(nonNilFields(d.Amended))
	if err != nil {
		return err
	}
	args := append([]any{d.CompartmentID, proposedIDArg(d.Origin)}, fellingArgs(d.FellingFacts)...)
	args = append(args, string(amended), applicationID, d.ID)
	res, err := w.q.ExecContext(ctx, `
		UPDATE confirmed_felling_details SET
			compartment_id = ?, proposed_felling_details_id = ?,
			operation_type = ?, area_to_be_felled = ?, number_of_trees = ?,
			is_tree_marking_used = ?, tree_marking = ?, is_part_of_tpo = ?, tpo_reference = ?,
			is_within_conservation_area = ?, conservation_area_reference = ?,
			estimated_total_felling_volume = ?, is_restocking = ?, no_restocking_reason = ?,
			amended_properties = ?
		WHERE application_id = ? AND id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update felling detail: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: confirmed felling detail %s", review.ErrNotFound, d.ID)
	}

	// Species and restocking are replaced wholesale.
	if _, err := w.q.ExecContext(ctx, `DELETE FROM confirmed_felling_species WHERE felling_detail_id = ?`, d.ID); err != nil {
		return err
	}
	if _, err := w.q.ExecContext(ctx, `DELETE FROM confirmed_restocking_details WHERE felling_detail_id = ?`, d.ID); err != nil {
		return err
	}
	return w.writeChildren(ctx, d)
}

func (w writer) writeChildren(ctx context.Context, d *review.ConfirmedFellingDetail) error {
	for i, s := range d.Species {
		if _, err := w.q.ExecContext(ctx, `
			INSERT INTO confirmed_felling_species (felling_detail_id, seq, species) VALUES (?, ?, ?)`,
			d.ID, i, s.Species); err != nil {
			return fmt.Errorf("insert felling species %s: %w", s.Species, err)
		}
	}
	for i := range d.Restocking {
		rd := &d.Restocking[i]
		if rd.ID == uuid.Nil {
			rd.ID = uuid.New()
		}
		rd.FellingDetailID = d.ID
		if err := w.insertRestocking(ctx, rd); err != nil {
			return err
		}
	}
	return nil
}

func (w writer) insertRestocking(ctx context.Context, rd *review.ConfirmedRestockingDetail) error {
	amended, err := json.Marshal(nonNilFields(rd.Amended))
	if err != nil {
		return err
	}
	var alternative uuid.NullUUID
	if rd.AlternativeCompartmentID != nil {
		alternative = uuid.NullUUID{UUID: *rd.AlternativeCompartmentID, Valid: true}
	}
	args := []any{rd.ID, rd.FellingDetailID, proposedIDArg(rd.Origin), rd.CompartmentID, rd.CompartmentNumber, alternative}
	args = append(args, restockingArgs(rd.RestockingFacts)...)
	args = append(args, string(amended))
	if _, err := w.q.ExecContext(ctx, `
		INSERT INTO confirmed_restocking_details
			(id, felling_detail_id, proposed_restocking_details_id, compartment_id, compartment_number,
			 alternative_compartment_id, `+restockingColumns+`, amended_properties)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
		return fmt.Errorf("insert restocking detail: %w", err)
	}
	for i, s := range rd.Species {
		if _, err := w.q.ExecContext(ctx, `
			INSERT INTO confirmed_restocking_species (restocking_detail_id, seq, species, percentage)
			VALUES (?, ?, ?, ?)`, rd.ID, i, s.Species, s.Percentage); err != nil {
			return fmt.Errorf("insert restocking species %s: %w", s.Species, err)
		}
	}
	return nil
}

func (w writer) DeleteConfirmedFellingDetail(ctx context.Context, applicationID, detailID uuid.UUID) error {
	res, err := w.q.ExecContext(ctx, `
		DELETE FROM confirmed_felling_details WHERE application_id = ? AND id = ?`, applicationID, detailID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: confirmed felling detail %s", review.ErrNotFound, detailID)
	}
	return nil
}

func (w writer) DeleteConfirmedPropertyDetail(ctx context.Context, applicationID uuid.UUID) error {
	for _, stmt := range []string{
		`DELETE FROM compartment_designations WHERE application_id = ?`,
		`DELETE FROM confirmed_felling_details WHERE application_id = ?`,
		`DELETE FROM confirmed_compartments WHERE application_id = ?`,
	} {
		if _, err := w.q.ExecContext(ctx, stmt, applicationID); err != nil {
			return err
		}
	}
	return nil
}

func (w writer) SaveCompartmentDesignations(ctx context.Context, applicationID uuid.UUID, d review.CompartmentDesignations) error {
	_, err := w.q.ExecContext(ctx, `
		INSERT INTO compartment_designations
			(compartment_id, application_id, sssi, sac, spa, ramsar, sbi, other, other_designation, none_designated, paws_percentage)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(compartment_id) DO UPDATE SET
			sssi = excluded.sssi, sac = excluded.sac, spa = excluded.spa, ramsar = excluded.ramsar,
			sbi = excluded.sbi, other = excluded.other, other_designation = excluded.other_designation,
			none_designated = excluded.none_designated, paws_percentage = excluded.paws_percentage`,
		d.CompartmentID, applicationID, d.Sssi, d.Sac, d.Spa, d.Ramsar, d.Sbi, d.Other, d.OtherDesignation, d.None, d.PawsPercentage)
	return err
}

func (w writer) SaveReviewState(ctx context.Context, s *review.WoodlandOfficerReviewState) error {
	pw14, err := json.Marshal(s.Pw14Checks)
	if err != nil {
		return err
	}
	_, err = w.q.ExecContext(ctx, `
		INSERT INTO woodland_officer_reviews (
			application_id, confirmed_felling_and_restocking_complete, designations_complete,
			is_priority_open_habitat, priority_open_habitat_complete, tree_health_check_complete,
			pw14_checks, is_conditional, conditions_to_applicant_date,
			woodland_officer_review_complete, completed_at, recommended_licence_duration,
			recommendation_for_decision_public_register, last_updated_by, last_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(application_id) DO UPDATE SET
			confirmed_felling_and_restocking_complete = excluded.confirmed_felling_and_restocking_complete,
			designations_complete = excluded.designations_complete,
			is_priority_open_habitat = excluded.is_priority_open_habitat,
			priority_open_habitat_complete = excluded.priority_open_habitat_complete,
			tree_health_check_complete = excluded.tree_health_check_complete,
			pw14_checks = excluded.pw14_checks,
			is_conditional = excluded.is_conditional,
			conditions_to_applicant_date = excluded.conditions_to_applicant_date,
			woodland_officer_review_complete = excluded.woodland_officer_review_complete,
			completed_at = excluded.completed_at,
			recommended_licence_duration = excluded.recommended_licence_duration,
			recommendation_for_decision_public_register = excluded.recommendation_for_decision_public_register,
			last_updated_by = excluded.last_updated_by,
			last_updated_at = excluded.last_updated_at`,
		s.ApplicationID, s.ConfirmedFellingAndRestockingComplete, s.DesignationsComplete,
		s.IsPriorityOpenHabitat, s.PriorityOpenHabitatComplete, s.TreeHealthCheckComplete,
		string(pw14), s.Conditional.IsConditional, s.Conditional.ConditionsToApplicantDate,
		s.WoodlandOfficerReviewComplete, s.CompletedAt, int(s.RecommendedLicenceDuration),
		s.RecommendationForDecisionPublicRegister, s.LastUpdatedBy, s.LastUpdatedAt)
	return err
}

func (w writer) DeleteReviewState(ctx context.Context, applicationID uuid.UUID) error {
	_, err := w.q.ExecContext(ctx, `DELETE FROM woodland_officer_reviews WHERE application_id = ?`, applicationID)
	return err
}

func nonNilFields(a review.AmendedProperties) review.AmendedProperties {
	if a == nil {
		return review.AmendedProperties{}
	}
	return a
}
