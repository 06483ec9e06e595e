package interactions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultDedupWindow is how long an identical payload counts as a retransmission.
const DefaultDedupWindow = 5 * time.Minute

// Record is one normalized inbound communication event. Created exactly once
// per unique (campaign, payload hash) within the dedup window; after creation
// only the SMS-sent flag and the processing-error note may change.
type Record struct {
	ID              uuid.UUID
	CampaignID      uuid.UUID
	ContactID       *uuid.UUID
	SourceType      string
	SourcePlatform  string
	RawPayload      []byte
	PayloadHash     string
	CallStatus      string
	Transcript      string
	Summary         string
	ExtractedData   []byte
	SMSSent         bool
	ProcessingError string
	CreatedAt       time.Time
}

// HashPayload computes the dedup key for a raw webhook body.
func HashPayload(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists interactions in Postgres.
type Store struct {
	pool rowQuerier
}

func NewStore(pool rowQuerier) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

// FindRecentByHash returns the id of an interaction for (campaignID, hash)
// created within the window, or uuid.Nil when none exists. This is a
// best-effort window check, not a lock; see the concurrency notes in DESIGN.md.
func (s *Store) FindRecentByHash(ctx context.Context, campaignID uuid.UUID, hash string, window time.Duration) (uuid.UUID, error) {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	query := `
		SELECT id FROM interactions
		WHERE campaign_id = $1 AND payload_hash = $2 AND created_at > now() - $3::interval
		ORDER BY created_at DESC
		LIMIT 1
	`
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, query, campaignID, hash, window.String()).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, nil
		}
		return uuid.Nil, fmt.Errorf("interactions: find recent by hash: %w", err)
	}
	return id, nil
}

// Insert creates the interaction row and returns its id.
func (s *Store) Insert(ctx context.Context, rec Record) (uuid.UUID, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	query := `
		INSERT INTO interactions (
			id, campaign_id, contact_id, source_type, source_platform,
			raw_payload, payload_hash, call_status, transcript, summary,
			extracted_data, sms_sent, processing_error
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id
	`
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, query,
		rec.ID, rec.CampaignID, rec.ContactID, rec.SourceType, rec.SourcePlatform,
		rec.RawPayload, rec.PayloadHash, rec.CallStatus, rec.Transcript, rec.Summary,
		rec.ExtractedData, rec.SMSSent, rec.ProcessingError,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("interactions: insert: %w", err)
	}
	return id, nil
}

// MarkSMSSent flags the interaction as having dispatched at least one SMS.
func (s *Store) MarkSMSSent(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE interactions SET sms_sent = true WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("interactions: mark sms sent: %w", err)
	}
	return nil
}

// MarkError records a processing failure on an already-created interaction.
func (s *Store) MarkError(ctx context.Context, id uuid.UUID, msg string) error {
	query := `UPDATE interactions SET processing_error = $2 WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, id, msg); err != nil {
		return fmt.Errorf("interactions: mark error: %w", err)
	}
	return nil
}
