package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forestry/woodland-review/review"
)

// =============================================================================
// AUDIT LOG - append-only
// =============================================================================

// Publish appends one audit event. Events are never updated or deleted.
func (s *Store) Publish(ctx context.Context, e review.AuditEvent) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, event_type, entity_id, user_id, occurred_at, source, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.EntityID, e.UserID, e.OccurredAt.UTC(), e.Source, string(payload))
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Query returns events matching the filter in publication order.
func (s *Store) Query(ctx context.Context, f review.AuditFilter) ([]review.AuditEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.EntityID != nil {
		where = append(where, "entity_id = ?")
		args = append(args, *f.EntityID)
	}
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if len(f.Types) > 0 {
		marks := make([]string, len(f.Types))
		for i, t := range f.Types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "event_type IN ("+strings.Join(marks, ", ")+")")
	}
	if f.From != nil {
		where = append(where, "occurred_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "occurred_at < ?")
		args = append(args, f.To.UTC())
	}

	query := `SELECT id, event_type, entity_id, user_id, occurred_at, source, payload FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []review.AuditEvent
	for rows.Next() {
		var (
			e       review.AuditEvent
			payload string
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.EntityID, &e.UserID, &e.OccurredAt, &e.Source, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode audit payload %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
