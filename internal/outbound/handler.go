package outbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leadline-hq/leadline/internal/classify"
	"github.com/leadline-hq/leadline/internal/sms"
	"github.com/leadline-hq/leadline/internal/triggers"
	"github.com/leadline-hq/leadline/pkg/logging"
)

// CallEvent is a provider callback reporting that a placed call reached a
// terminal state. CampaignID, when set, is the campaign the callback URL's
// webhook key resolved to; the handler drops events whose call belongs to a
// different campaign.
type CallEvent struct {
	CampaignID      uuid.UUID
	ProviderCallID  string
	ProviderStatus  string
	DurationSeconds int
	Transcript      string
	RecordingURL    string
	Summary         string
}

// CallOutcome reports what the handler did with one callback.
type CallOutcome struct {
	Received          bool          `json:"received"`
	Recognized        bool          `json:"recognized"`
	Result            CallResult    `json:"result,omitempty"`
	ContactStatus     ContactStatus `json:"contact_status,omitempty"`
	TriggersFired     int           `json:"triggers_fired,omitempty"`
	CampaignCompleted bool          `json:"campaign_completed,omitempty"`
}

type resultStore interface {
	FindCallLogByProviderID(ctx context.Context, providerCallID string) (CallLog, error)
	UpdateCallLog(ctx context.Context, cl CallLog) error
	MarkCallLogSMSSent(ctx context.Context, id uuid.UUID) error
	ContactByID(ctx context.Context, id uuid.UUID) (Contact, error)
	CampaignByID(ctx context.Context, id uuid.UUID) (Campaign, error)
	UpdateContactResult(ctx context.Context, contactID uuid.UUID, status ContactStatus, result CallResult, nextAttemptAt *time.Time) error
	IncrementCampaignCounters(ctx context.Context, campaignID uuid.UUID, called, answered, failed int) error
	FiredTriggers(ctx context.Context, contactID uuid.UUID) ([]uuid.UUID, error)
	MarkFired(ctx context.Context, contactID, triggerID uuid.UUID) error
}

type triggerSource interface {
	ActiveTriggers(ctx context.Context, campaignID uuid.UUID) ([]triggers.Trigger, error)
}

type triggerEvaluator interface {
	Evaluate(ctx context.Context, text string, candidates []triggers.Trigger) ([]uuid.UUID, error)
}

type smsSender interface {
	Send(ctx context.Context, msg sms.Message) (string, error)
}

type transcriptSummarizer interface {
	Classify(ctx context.Context, payload map[string]any, hints map[string]string) (classify.Analysis, error)
}

type completionChecker interface {
	Check(ctx context.Context, campaignID uuid.UUID) (bool, error)
}

// ResultHandlerConfig wires the handler's collaborators. DefaultMaxRetries and
// DefaultRetryDelay back campaigns whose rows carry no retry policy of their own.
type ResultHandlerConfig struct {
	Store             resultStore
	Triggers          triggerSource
	Evaluator         triggerEvaluator
	Sender            smsSender
	Summarizer        transcriptSummarizer
	Completion        completionChecker
	DefaultMaxRetries int
	DefaultRetryDelay time.Duration
	Logger            *logging.Logger
	Now               func() time.Time
}

// ResultHandler turns terminal call callbacks into contact state changes,
// campaign counters, follow-up SMS and campaign completion.
type ResultHandler struct {
	store             resultStore
	triggers          triggerSource
	evaluator         triggerEvaluator
	sender            smsSender
	summarizer        transcriptSummarizer
	completion        completionChecker
	defaultMaxRetries int
	defaultRetryDelay time.Duration
	logger            *logging.Logger
	now               func() time.Time
}

func NewResultHandler(cfg ResultHandlerConfig) *ResultHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ResultHandler{
		store:             cfg.Store,
		triggers:          cfg.Triggers,
		evaluator:         cfg.Evaluator,
		sender:            cfg.Sender,
		summarizer:        cfg.Summarizer,
		completion:        cfg.Completion,
		defaultMaxRetries: cfg.DefaultMaxRetries,
		defaultRetryDelay: cfg.DefaultRetryDelay,
		logger:            cfg.Logger,
		now:               cfg.Now,
	}
}

// HandleCallResult processes one call-result callback. Callbacks for calls this system
// never placed are acknowledged and dropped; everything else flows through the
// contact state machine.
func (h *ResultHandler) HandleCallResult(ctx context.Context, event CallEvent) (CallOutcome, error) {
	callLog, err := h.store.FindCallLogByProviderID(ctx, event.ProviderCallID)
	if err != nil {
		if errors.Is(err, ErrCallLogNotFound) {
			h.logger.Warn("callback for unknown call, acknowledging",
				"provider_call_id", event.ProviderCallID)
			return CallOutcome{Received: true}, nil
		}
		return CallOutcome{}, err
	}

	result := MapCallResult(event.ProviderStatus)

	contact, err := h.store.ContactByID(ctx, callLog.ContactID)
	if err != nil {
		return CallOutcome{}, err
	}
	if event.CampaignID != uuid.Nil && contact.CampaignID != event.CampaignID {
		// The callback arrived on another campaign's key. Acknowledge so the
		// provider stops retrying, but touch nothing.
		h.logger.Warn("callback key does not match the call's campaign, dropping",
			"provider_call_id", event.ProviderCallID,
			"key_campaign_id", event.CampaignID,
			"call_campaign_id", contact.CampaignID)
		return CallOutcome{Received: true}, nil
	}
	campaign, err := h.store.CampaignByID(ctx, contact.CampaignID)
	if err != nil {
		return CallOutcome{}, err
	}

	summary := event.Summary
	if summary == "" && event.Transcript != "" && h.summarizer != nil {
		// Best-effort: a summarizer outage never blocks the state machine.
		analysis, serr := h.summarizer.Classify(ctx, map[string]any{
			"transcript":  event.Transcript,
			"call_status": event.ProviderStatus,
		}, nil)
		if serr != nil {
			h.logger.Warn("transcript summarization failed",
				"call_log_id", callLog.ID, "error", serr)
		} else {
			summary = analysis.Extracted.Summary
		}
	}

	callLog.Result = result
	callLog.DurationSeconds = event.DurationSeconds
	callLog.Transcript = event.Transcript
	callLog.RecordingURL = event.RecordingURL
	callLog.Summary = summary
	if err := h.store.UpdateCallLog(ctx, callLog); err != nil {
		return CallOutcome{}, err
	}

	// Campaigns without their own retry policy fall back to the service-wide
	// defaults (MaxRetries < 0 means the row had none).
	maxRetries := campaign.MaxRetries
	if maxRetries < 0 {
		maxRetries = h.defaultMaxRetries
	}
	retryDelay := campaign.RetryDelay
	if retryDelay <= 0 {
		retryDelay = h.defaultRetryDelay
	}
	status, nextAttempt := NextContactState(result, contact.AttemptCount, maxRetries, retryDelay, h.now())
	if err := h.store.UpdateContactResult(ctx, contact.ID, status, result, nextAttempt); err != nil {
		return CallOutcome{}, err
	}

	answered, failed := 0, 0
	if result == ResultAnswered {
		answered = 1
	}
	if status == ContactFailed {
		failed = 1
	}
	if err := h.store.IncrementCampaignCounters(ctx, campaign.ID, 1, answered, failed); err != nil {
		// Counters are advisory; the contact state already moved.
		h.logger.Error("failed to bump campaign counters",
			"campaign_id", campaign.ID, "error", err)
	}

	outcome := CallOutcome{
		Received:      true,
		Recognized:    true,
		Result:        result,
		ContactStatus: status,
	}

	if result == ResultAnswered && event.Transcript != "" {
		fired, err := h.fireTriggers(ctx, campaign, contact, callLog.ID, event.Transcript)
		if err != nil {
			h.logger.Error("outbound trigger processing failed",
				"call_log_id", callLog.ID, "error", err)
		} else {
			outcome.TriggersFired = fired
		}
	}

	if IsTerminalContactStatus(status) && h.completion != nil && campaign.Status == CampaignRunning {
		completed, err := h.completion.Check(ctx, campaign.ID)
		if err != nil {
			h.logger.Error("completion check failed", "campaign_id", campaign.ID, "error", err)
		} else {
			outcome.CampaignCompleted = completed
		}
	}
	return outcome, nil
}

// fireTriggers mirrors the inbound pipeline's dispatch loop, scoped to the
// outbound contact's own fired set. Send-then-mark, same as inbound.
func (h *ResultHandler) fireTriggers(ctx context.Context, campaign Campaign, contact Contact, callLogID uuid.UUID, transcript string) (int, error) {
	if h.triggers == nil || h.evaluator == nil || h.sender == nil {
		return 0, nil
	}
	candidates, err := h.triggers.ActiveTriggers(ctx, campaign.ID)
	if err != nil {
		return 0, fmt.Errorf("outbound: active triggers: %w", err)
	}
	fired, err := h.store.FiredTriggers(ctx, contact.ID)
	if err != nil {
		return 0, err
	}
	remaining := triggers.Remaining(candidates, fired)
	if len(remaining) == 0 {
		return 0, nil
	}

	matched, err := h.evaluator.Evaluate(ctx, transcript, remaining)
	if err != nil {
		return 0, fmt.Errorf("outbound: evaluate triggers: %w", err)
	}
	if len(matched) == 0 {
		return 0, nil
	}

	byID := make(map[uuid.UUID]triggers.Trigger, len(remaining))
	for _, t := range remaining {
		byID[t.ID] = t
	}

	sent := 0
	for _, triggerID := range matched {
		trigger, ok := byID[triggerID]
		if !ok {
			continue
		}
		if campaign.SMSFromNumber == "" {
			h.logger.Debug("campaign has no sms origin number, skipping dispatch",
				"campaign_id", campaign.ID, "trigger_id", triggerID)
			continue
		}
		_, sendErr := h.sender.Send(ctx, sms.Message{
			From:            campaign.SMSFromNumber,
			To:              contact.Phone,
			Body:            trigger.MessageBody,
			CallLogID:       callLogID,
			TriggerID:       triggerID,
			ContactID:       contact.ID,
			APIKeyOverride:  campaign.SMSAPIKey,
			ProfileOverride: campaign.SMSProfileID,
		})
		if sendErr != nil {
			h.logger.Error("sms dispatch failed", "trigger_id", triggerID,
				"contact_id", contact.ID, "error", sendErr)
			continue
		}
		if err := h.store.MarkFired(ctx, contact.ID, triggerID); err != nil {
			return sent, err
		}
		sent++
	}
	if sent > 0 {
		if err := h.store.MarkCallLogSMSSent(ctx, callLogID); err != nil {
			h.logger.Error("failed to flag call log sms_sent", "call_log_id", callLogID, "error", err)
		}
	}
	return sent, nil
}
