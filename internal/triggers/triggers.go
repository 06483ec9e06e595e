package triggers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Trigger is a configured intent-to-message rule. Lower priority fires first
// when the caller chooses to serialize multiple matches.
type Trigger struct {
	ID                uuid.UUID
	CampaignID        uuid.UUID
	IntentDescription string
	MessageBody       string
	Priority          int
	Active            bool
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads trigger configuration from Postgres. Triggers are mutated by
// administrators only; this store is read-only.
type Store struct {
	pool rowQuerier
}

func NewStore(pool rowQuerier) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

// ActiveTriggers returns the campaign's active triggers ordered by ascending priority.
func (s *Store) ActiveTriggers(ctx context.Context, campaignID uuid.UUID) ([]Trigger, error) {
	query := `
		SELECT id, campaign_id, intent_description, message_body, priority, active
		FROM triggers
		WHERE campaign_id = $1 AND active = true
		ORDER BY priority ASC
	`
	rows, err := s.pool.Query(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("triggers: list active: %w", err)
	}
	defer rows.Close()

	var out []Trigger
	for rows.Next() {
		var t Trigger
		if err := rows.Scan(&t.ID, &t.CampaignID, &t.IntentDescription, &t.MessageBody, &t.Priority, &t.Active); err != nil {
			return nil, fmt.Errorf("triggers: scan: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("triggers: iterate: %w", err)
	}
	return out, nil
}

// Remaining filters candidates down to those not already in fired.
func Remaining(candidates []Trigger, fired []uuid.UUID) []Trigger {
	seen := make(map[uuid.UUID]struct{}, len(fired))
	for _, id := range fired {
		seen[id] = struct{}{}
	}
	var out []Trigger
	for _, t := range candidates {
		if _, ok := seen[t.ID]; !ok {
			out = append(out, t)
		}
	}
	return out
}
