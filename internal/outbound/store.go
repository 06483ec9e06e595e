package outbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrCallLogNotFound means the provider call id belongs to no known call.
	ErrCallLogNotFound = errors.New("outbound: call log not found")
	// ErrContactNotFound means the outbound contact row is missing.
	ErrContactNotFound = errors.New("outbound: contact not found")
	// ErrCampaignNotFound means the outbound campaign row is missing.
	ErrCampaignNotFound = errors.New("outbound: campaign not found")
)

// Campaign is an outbound calling campaign and its runtime configuration.
type Campaign struct {
	ID             uuid.UUID
	Name           string
	Status         CampaignStatus
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ConcurrencyCap int
	MaxRetries     int
	RetryDelay     time.Duration
	SMSFromNumber  string
	SMSAPIKey      string
	SMSProfileID   string

	ContactsCalled   int
	ContactsAnswered int
	ContactsFailed   int
}

// Contact is one phone number enrolled in an outbound campaign.
type Contact struct {
	ID            uuid.UUID
	CampaignID    uuid.UUID
	Phone         string
	Status        ContactStatus
	AttemptCount  int
	NextAttemptAt *time.Time
	LastResult    CallResult
}

// CallLog is one placed call, keyed by the provider's call id so terminal
// status callbacks can be matched back to the contact they belong to.
type CallLog struct {
	ID              uuid.UUID
	ContactID       uuid.UUID
	ProviderCallID  string
	Result          CallResult
	DurationSeconds int
	Transcript      string
	RecordingURL    string
	Summary         string
	SMSSent         bool
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists outbound campaigns, contacts and call logs in Postgres.
type Store struct {
	pool rowQuerier
}

func NewStore(pool rowQuerier) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

// CampaignByID loads one outbound campaign. A NULL max_retries scans as -1 and
// a NULL retry_delay_seconds as 0; the result handler substitutes its defaults
// for both.
func (s *Store) CampaignByID(ctx context.Context, id uuid.UUID) (Campaign, error) {
	query := `
		SELECT id, name, status, started_at, completed_at,
		       concurrency_cap, COALESCE(max_retries, -1), COALESCE(retry_delay_seconds, 0),
		       COALESCE(sms_from_number, ''), COALESCE(sms_api_key, ''), COALESCE(sms_profile_id, ''),
		       contacts_called, contacts_answered, contacts_failed
		FROM outbound_campaigns
		WHERE id = $1
	`
	var c Campaign
	var retryDelaySeconds int
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Status, &c.StartedAt, &c.CompletedAt,
		&c.ConcurrencyCap, &c.MaxRetries, &retryDelaySeconds,
		&c.SMSFromNumber, &c.SMSAPIKey, &c.SMSProfileID,
		&c.ContactsCalled, &c.ContactsAnswered, &c.ContactsFailed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, ErrCampaignNotFound
		}
		return Campaign{}, fmt.Errorf("outbound: campaign by id: %w", err)
	}
	c.RetryDelay = time.Duration(retryDelaySeconds) * time.Second
	return c, nil
}

// CampaignIDByWebhookKey resolves a callback URL's key to the campaign it was
// issued for. Unknown keys return ErrCampaignNotFound.
func (s *Store) CampaignIDByWebhookKey(ctx context.Context, key string) (uuid.UUID, error) {
	query := `SELECT id FROM outbound_campaigns WHERE webhook_key = $1`
	var id uuid.UUID
	if err := s.pool.QueryRow(ctx, query, key).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrCampaignNotFound
		}
		return uuid.Nil, fmt.Errorf("outbound: campaign by webhook key: %w", err)
	}
	return id, nil
}

// ContactByID loads one outbound contact.
func (s *Store) ContactByID(ctx context.Context, id uuid.UUID) (Contact, error) {
	query := `
		SELECT id, campaign_id, phone, status, attempt_count, next_attempt_at, COALESCE(last_result, '')
		FROM outbound_contacts
		WHERE id = $1
	`
	var c Contact
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.CampaignID, &c.Phone, &c.Status, &c.AttemptCount, &c.NextAttemptAt, &c.LastResult,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrContactNotFound
		}
		return Contact{}, fmt.Errorf("outbound: contact by id: %w", err)
	}
	return c, nil
}

// FindCallLogByProviderID matches a provider callback to the call it reports
// on. Unknown ids return ErrCallLogNotFound so callers can ack and stop.
func (s *Store) FindCallLogByProviderID(ctx context.Context, providerCallID string) (CallLog, error) {
	query := `
		SELECT id, contact_id, provider_call_id, COALESCE(result, ''),
		       duration_seconds, COALESCE(transcript, ''), COALESCE(recording_url, ''),
		       COALESCE(summary, ''), sms_sent
		FROM outbound_call_logs
		WHERE provider_call_id = $1
	`
	var cl CallLog
	err := s.pool.QueryRow(ctx, query, providerCallID).Scan(
		&cl.ID, &cl.ContactID, &cl.ProviderCallID, &cl.Result,
		&cl.DurationSeconds, &cl.Transcript, &cl.RecordingURL,
		&cl.Summary, &cl.SMSSent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CallLog{}, ErrCallLogNotFound
		}
		return CallLog{}, fmt.Errorf("outbound: find call log: %w", err)
	}
	return cl, nil
}

// UpdateCallLog records the terminal outcome and any artifacts on the call row.
func (s *Store) UpdateCallLog(ctx context.Context, cl CallLog) error {
	query := `
		UPDATE outbound_call_logs
		SET result = $2, duration_seconds = $3, transcript = $4,
		    recording_url = $5, summary = $6, ended_at = now()
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query,
		cl.ID, cl.Result, cl.DurationSeconds, cl.Transcript, cl.RecordingURL, cl.Summary,
	); err != nil {
		return fmt.Errorf("outbound: update call log: %w", err)
	}
	return nil
}

// MarkCallLogSMSSent flags the call as having dispatched at least one SMS.
func (s *Store) MarkCallLogSMSSent(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE outbound_call_logs SET sms_sent = true WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("outbound: mark call log sms sent: %w", err)
	}
	return nil
}

// UpdateContactResult moves the contact to a terminal or re-queued state after
// a finished call attempt. nextAttemptAt is nil unless the contact re-queues.
func (s *Store) UpdateContactResult(ctx context.Context, contactID uuid.UUID, status ContactStatus, result CallResult, nextAttemptAt *time.Time) error {
	query := `
		UPDATE outbound_contacts
		SET status = $2, last_result = $3, next_attempt_at = $4, updated_at = now()
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, contactID, status, result, nextAttemptAt); err != nil {
		return fmt.Errorf("outbound: update contact result: %w", err)
	}
	return nil
}

// IncrementCampaignCounters bumps the campaign's aggregate counters in a
// single atomic statement so concurrent callbacks never lose an increment.
func (s *Store) IncrementCampaignCounters(ctx context.Context, campaignID uuid.UUID, called, answered, failed int) error {
	query := `
		UPDATE outbound_campaigns
		SET contacts_called = contacts_called + $2,
		    contacts_answered = contacts_answered + $3,
		    contacts_failed = contacts_failed + $4
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, campaignID, called, answered, failed); err != nil {
		return fmt.Errorf("outbound: increment counters: %w", err)
	}
	return nil
}

// CountActionable returns how many of the campaign's contacts still need work:
// anything not in a terminal status, including calls in flight and re-queued
// retries.
func (s *Store) CountActionable(ctx context.Context, campaignID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM outbound_contacts
		WHERE campaign_id = $1
		  AND status NOT IN ('completed', 'failed', 'dnc', 'skipped')
	`
	var n int
	if err := s.pool.QueryRow(ctx, query, campaignID).Scan(&n); err != nil {
		return 0, fmt.Errorf("outbound: count actionable: %w", err)
	}
	return n, nil
}

// CompleteCampaign marks a running campaign completed. The status guard in the
// WHERE clause makes completion exactly-once under concurrent callbacks: only
// the caller whose UPDATE touches a row observes the transition.
func (s *Store) CompleteCampaign(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	query := `
		UPDATE outbound_campaigns
		SET status = 'completed', completed_at = now()
		WHERE id = $1 AND status = 'running'
	`
	tag, err := s.pool.Exec(ctx, query, campaignID)
	if err != nil {
		return false, fmt.Errorf("outbound: complete campaign: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// TransitionCampaign applies a validated lifecycle change. Entering running
// stamps started_at if it was never set, so pause/resume keeps the original
// start time.
func (s *Store) TransitionCampaign(ctx context.Context, campaignID uuid.UUID, to CampaignStatus) error {
	current, err := s.CampaignByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if err := ValidateTransition(current.Status, to); err != nil {
		return err
	}

	query := `
		UPDATE outbound_campaigns
		SET status = $2,
		    started_at = CASE WHEN $2 = 'running' THEN COALESCE(started_at, now()) ELSE started_at END
		WHERE id = $1 AND status = $3
	`
	tag, err := s.pool.Exec(ctx, query, campaignID, to, current.Status)
	if err != nil {
		return fmt.Errorf("outbound: transition campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Lost a race with a concurrent transition; the status we validated
		// against is gone.
		return &InvalidTransitionError{From: current.Status, To: to}
	}
	return nil
}

// FiredTriggers returns the trigger ids already fired for an outbound contact.
func (s *Store) FiredTriggers(ctx context.Context, contactID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT trigger_id FROM outbound_contact_fired_triggers WHERE contact_id = $1`
	rows, err := s.pool.Query(ctx, query, contactID)
	if err != nil {
		return nil, fmt.Errorf("outbound: fired triggers: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("outbound: scan fired trigger: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbound: iterate fired triggers: %w", err)
	}
	return out, nil
}

// MarkFired records that triggerID has fired for the outbound contact.
// Idempotent under concurrent or repeated marks.
func (s *Store) MarkFired(ctx context.Context, contactID, triggerID uuid.UUID) error {
	query := `
		INSERT INTO outbound_contact_fired_triggers (contact_id, trigger_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, query, contactID, triggerID); err != nil {
		return fmt.Errorf("outbound: mark fired: %w", err)
	}
	return nil
}
