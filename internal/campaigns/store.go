package campaigns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no campaign matches the webhook key.
var ErrNotFound = errors.New("campaigns: not found")

// Campaign is an inbound campaign's routing and messaging configuration.
// Administrators mutate campaigns elsewhere; this core only reads them.
type Campaign struct {
	ID              uuid.UUID         `json:"id"`
	Name            string            `json:"name"`
	Active          bool              `json:"active"`
	WebhookKey      string            `json:"webhook_key"`
	SMSFromNumber   string            `json:"sms_from_number"`
	SMSAPIKey       string            `json:"sms_api_key,omitempty"`
	SMSProfileID    string            `json:"sms_profile_id,omitempty"`
	ExtractionHints map[string]string `json:"extraction_hints,omitempty"`
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads campaign configuration from Postgres.
type Store struct {
	pool rowQuerier
}

func NewStore(pool rowQuerier) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

// ByWebhookKey resolves a campaign by its opaque webhook routing key.
func (s *Store) ByWebhookKey(ctx context.Context, key string) (Campaign, error) {
	query := `
		SELECT id, name, active, webhook_key,
			COALESCE(sms_from_number, ''),
			COALESCE(sms_api_key, ''),
			COALESCE(sms_profile_id, ''),
			COALESCE(extraction_hints, '{}'::jsonb)
		FROM campaigns
		WHERE webhook_key = $1
	`
	var c Campaign
	var hints []byte
	err := s.pool.QueryRow(ctx, query, key).Scan(
		&c.ID, &c.Name, &c.Active, &c.WebhookKey,
		&c.SMSFromNumber, &c.SMSAPIKey, &c.SMSProfileID, &hints,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, fmt.Errorf("campaigns: by webhook key: %w", err)
	}
	if len(hints) > 0 {
		if err := json.Unmarshal(hints, &c.ExtractionHints); err != nil {
			return Campaign{}, fmt.Errorf("campaigns: decode extraction hints: %w", err)
		}
	}
	return c, nil
}
