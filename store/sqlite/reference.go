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
// APPLICATION CONTEXT
// =============================================================================

func (s *Store) GetApplicationSummary(ctx context.Context, applicationID uuid.UUID) (*review.ApplicationSummary, error) {
	var (
		a            review.ApplicationSummary
		fieldManager uuid.NullUUID
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, reference, property_name, status, applicant_id, woodland_owner_id, assigned_field_manager_id, fc_area_code
		FROM applications WHERE id = ?`, applicationID,
	).Scan(&a.ID, &a.Reference, &a.PropertyName, &a.Status, &a.ApplicantID, &a.WoodlandOwnerID, &fieldManager, &a.FcAreaCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: application %s", review.ErrNotFound, applicationID)
	}
	if err != nil {
		return nil, err
	}
	if fieldManager.Valid {
		id := fieldManager.UUID
		a.AssignedFieldManagerID = &id
	}
	return &a, nil
}

func (s *Store) GetWoodlandOwner(ctx context.Context, applicationID uuid.UUID) (*review.WoodlandOwner, error) {
	var o review.WoodlandOwner
	err := s.db.QueryRowContext(ctx, `
		SELECT o.id, o.contact_name, o.contact_email, o.organisation_name
		FROM woodland_owners o JOIN applications a ON a.woodland_owner_id = o.id
		WHERE a.id = ?`, applicationID,
	).Scan(&o.ID, &o.ContactName, &o.ContactEmail, &o.OrganisationName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: woodland owner for application %s", review.ErrNotFound, applicationID)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetFcArea returns nil when the application's area has no configuration.
func (s *Store) GetFcArea(ctx context.Context, applicationID uuid.UUID) (*review.FcArea, error) {
	var f review.FcArea
	err := s.db.QueryRowContext(ctx, `
		SELECT f.code, f.name, f.admin_hub_name, f.admin_hub_address
		FROM fc_areas f JOIN applications a ON a.fc_area_code = f.code
		WHERE a.id = ?`, applicationID,
	).Scan(&f.Code, &f.Name, &f.AdminHubName, &f.AdminHubAddr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListApplicationIDs returns every application, oldest reference first.
func (s *Store) ListApplicationIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM applications ORDER BY reference`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// USER DIRECTORY
// =============================================================================

func (s *Store) GetUserAccount(ctx context.Context, userID uuid.UUID) (*review.UserAccount, error) {
	var u review.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, role FROM user_accounts WHERE id = ?`, userID,
	).Scan(&u.ID, &u.FullName, &u.Email, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user account %s", review.ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// =============================================================================
// PROPOSED PLAN (read-only to the engine)
// =============================================================================

func (s *Store) GetSubmittedCompartments(ctx context.Context, applicationID uuid.UUID) ([]review.Compartment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, compartment_number, sub_compartment_name, designation, total_hectares
		FROM submitted_compartments WHERE application_id = ? ORDER BY seq`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []review.Compartment
	for rows.Next() {
		var c review.Compartment
		if err := rows.Scan(&c.ID, &c.CompartmentNumber, &c.SubCompartmentName, &c.Designation, &c.TotalHectares); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetProposedFellingAndRestocking(ctx context.Context, applicationID uuid.UUID) ([]review.ProposedFellingDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, compartment_id, `+fellingColumns+`, species
		FROM proposed_felling_details WHERE application_id = ? ORDER BY seq`, applicationID)
	if err != nil {
		return nil, err
	}

	var details []review.ProposedFellingDetail
	for rows.Next() {
		var (
			p       review.ProposedFellingDetail
			species string
		)
		dest := append([]any{&p.ID, &p.CompartmentID}, fellingDest(&p.FellingFacts)...)
		dest = append(dest, &species)
		if err := rows.Scan(dest...); err != nil {
			rows.Close()
			return nil, err
		}
		if err := json.Unmarshal([]byte(species), &p.Species); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode species of proposed felling %s: %w", p.ID, err)
		}
		details = append(details, p)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range details {
		if details[i].Restocking, err = s.proposedRestocking(ctx, details[i].ID); err != nil {
			return nil, err
		}
	}
	return details, nil
}

func (s *Store) proposedRestocking(ctx context.Context, fellingID uuid.UUID) ([]review.ProposedRestockingDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, compartment_id, `+restockingColumns+`, species
		FROM proposed_restocking_details WHERE felling_detail_id = ? ORDER BY seq`, fellingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []review.ProposedRestockingDetail
	for rows.Next() {
		var (
			r       review.ProposedRestockingDetail
			species string
		)
		dest := append([]any{&r.ID, &r.CompartmentID}, restockingDest(&r.RestockingFacts)...)
		dest = append(dest, &species)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(species), &r.Species); err != nil {
			return nil, fmt.Errorf("decode species of proposed restocking %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// SEEDING - used by the seed command and tests
// =============================================================================

// SeedApplication upserts an application with its owner and FC area.
func (s *Store) SeedApplication(ctx context.Context, app review.ApplicationSummary, owner *review.WoodlandOwner, area *review.FcArea) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if area != nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO fc_areas (code, name, admin_hub_name, admin_hub_address) VALUES (?, ?, ?, ?)
				ON CONFLICT(code) DO UPDATE SET name = excluded.name,
					admin_hub_name = excluded.admin_hub_name, admin_hub_address = excluded.admin_hub_address`,
				area.Code, area.Name, area.AdminHubName, area.AdminHubAddr); err != nil {
				return fmt.Errorf("save fc area: %w", err)
			}
		}
		if owner != nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO woodland_owners (id, contact_name, contact_email, organisation_name) VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET contact_name = excluded.contact_name,
					contact_email = excluded.contact_email, organisation_name = excluded.organisation_name`,
				owner.ID, owner.ContactName, owner.ContactEmail, owner.OrganisationName); err != nil {
				return fmt.Errorf("save woodland owner: %w", err)
			}
		}
		var fieldManager uuid.NullUUID
		if app.AssignedFieldManagerID != nil {
			fieldManager = uuid.NullUUID{UUID: *app.AssignedFieldManagerID, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO applications
				(id, reference, property_name, status, applicant_id, woodland_owner_id, assigned_field_manager_id, fc_area_code)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET reference = excluded.reference, property_name = excluded.property_name,
				status = excluded.status, applicant_id = excluded.applicant_id,
				woodland_owner_id = excluded.woodland_owner_id,
				assigned_field_manager_id = excluded.assigned_field_manager_id,
				fc_area_code = excluded.fc_area_code`,
			app.ID, app.Reference, app.PropertyName, app.Status, app.ApplicantID, app.WoodlandOwnerID, fieldManager, app.FcAreaCode)
		if err != nil {
			return fmt.Errorf("save application: %w", err)
		}
		return nil
	})
}

// SaveUserAccount upserts a user account.
func (s *Store) SaveUserAccount(ctx context.Context, u review.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_accounts (id, full_name, email, role) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET full_name = excluded.full_name, email = excluded.email, role = excluded.role`,
		u.ID, u.FullName, u.Email, u.Role)
	return err
}

// SaveProposedPlan replaces the submitted plan of an application.
func (s *Store) SaveProposedPlan(ctx context.Context, applicationID uuid.UUID, compartments []review.Compartment, details []review.ProposedFellingDetail) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM proposed_felling_details WHERE application_id = ?`, applicationID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM submitted_compartments WHERE application_id = ?`, applicationID); err != nil {
			return err
		}
		for _, c := range compartments {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO submitted_compartments
					(id, application_id, compartment_number, sub_compartment_name, designation, total_hectares)
				VALUES (?, ?, ?, ?, ?, ?)`,
				c.ID, applicationID, c.CompartmentNumber, c.SubCompartmentName, c.Designation, c.TotalHectares); err != nil {
				return fmt.Errorf("save submitted compartment %s: %w", c.DisplayName(), err)
			}
		}
		for _, p := range details {
			if err := insertProposed(ctx, tx, applicationID, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertProposed(ctx context.Context, tx *sql.Tx, applicationID uuid.UUID, p review.ProposedFellingDetail) error {
	species, err := json.Marshal(nonNil(p.Species))
	if err != nil {
		return err
	}
	args := append([]any{p.ID, applicationID, p.CompartmentID}, fellingArgs(p.FellingFacts)...)
	args = append(args, string(species))
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO proposed_felling_details (id, application_id, compartment_id, `+fellingColumns+`, species)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
		return fmt.Errorf("save proposed felling %s: %w", p.ID, err)
	}
	for _, r := range p.Restocking {
		species, err := json.Marshal(nonNil(r.Species))
		if err != nil {
			return err
		}
		args := append([]any{r.ID, p.ID, r.CompartmentID}, restockingArgs(r.RestockingFacts)...)
		args = append(args, string(species))
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO proposed_restocking_details (id, felling_detail_id, compartment_id, `+restockingColumns+`, species)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
			return fmt.Errorf("save proposed restocking %s: %w", r.ID, err)
		}
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
