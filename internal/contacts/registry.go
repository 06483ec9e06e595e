package contacts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Registry resolves contacts by (campaign, normalized phone) and tracks which
// triggers have already fired for each contact. The fired set is append-only.
type Registry struct {
	pool rowQuerier
}

func NewRegistry(pool rowQuerier) *Registry {
	if pool == nil {
		return nil
	}
	return &Registry{pool: pool}
}

// ResolveOrCreate returns the contact id for (campaignID, phone), creating
// the row if absent. The upsert resolves concurrent creates for the same key
// to a single row; the no-op DO UPDATE makes RETURNING yield the id on both
// paths.
func (r *Registry) ResolveOrCreate(ctx context.Context, campaignID uuid.UUID, phone string) (uuid.UUID, error) {
	query := `
		INSERT INTO contacts (id, campaign_id, phone)
		VALUES ($1, $2, $3)
		ON CONFLICT (campaign_id, phone)
		DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id
	`
	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, query, uuid.New(), campaignID, phone).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("contacts: resolve or create: %w", err)
	}
	return id, nil
}

// FiredTriggers returns the trigger ids already fired for the contact.
func (r *Registry) FiredTriggers(ctx context.Context, contactID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT trigger_id FROM contact_fired_triggers WHERE contact_id = $1`
	rows, err := r.pool.Query(ctx, query, contactID)
	if err != nil {
		return nil, fmt.Errorf("contacts: fired triggers: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("contacts: scan fired trigger: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contacts: iterate fired triggers: %w", err)
	}
	return out, nil
}

// MarkFired records that triggerID has fired for the contact. Idempotent:
// concurrent or repeated marks converge to a single row.
func (r *Registry) MarkFired(ctx context.Context, contactID, triggerID uuid.UUID) error {
	query := `
		INSERT INTO contact_fired_triggers (contact_id, trigger_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, contactID, triggerID); err != nil {
		return fmt.Errorf("contacts: mark fired: %w", err)
	}
	return nil
}
