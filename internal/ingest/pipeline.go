package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leadline-hq/leadline/internal/campaigns"
	"github.com/leadline-hq/leadline/internal/classify"
	"github.com/leadline-hq/leadline/internal/interactions"
	"github.com/leadline-hq/leadline/internal/phone"
	"github.com/leadline-hq/leadline/internal/sms"
	"github.com/leadline-hq/leadline/internal/triggers"
	"github.com/leadline-hq/leadline/pkg/logging"
)

var (
	// ErrMalformedPayload rejects bodies that do not parse as a JSON object.
	ErrMalformedPayload = errors.New("ingest: malformed payload")
	// ErrCampaignInactive rejects deliveries for campaigns that stopped accepting.
	ErrCampaignInactive = errors.New("ingest: campaign not accepting events")
)

// maxLoggedBody caps how much of a failing raw body lands in the error log.
const maxLoggedBody = 2048

type campaignResolver interface {
	ByWebhookKey(ctx context.Context, key string) (campaigns.Campaign, error)
}

type triggerSource interface {
	ActiveTriggers(ctx context.Context, campaignID uuid.UUID) ([]triggers.Trigger, error)
}

type contactRegistry interface {
	ResolveOrCreate(ctx context.Context, campaignID uuid.UUID, phone string) (uuid.UUID, error)
	FiredTriggers(ctx context.Context, contactID uuid.UUID) ([]uuid.UUID, error)
	MarkFired(ctx context.Context, contactID, triggerID uuid.UUID) error
}

type interactionStore interface {
	FindRecentByHash(ctx context.Context, campaignID uuid.UUID, hash string, window time.Duration) (uuid.UUID, error)
	Insert(ctx context.Context, rec interactions.Record) (uuid.UUID, error)
	MarkSMSSent(ctx context.Context, id uuid.UUID) error
	MarkError(ctx context.Context, id uuid.UUID, msg string) error
}

type payloadClassifier interface {
	Classify(ctx context.Context, payload map[string]any, hints map[string]string) (classify.Analysis, error)
}

type triggerEvaluator interface {
	Evaluate(ctx context.Context, text string, candidates []triggers.Trigger) ([]uuid.UUID, error)
}

type smsSender interface {
	Send(ctx context.Context, msg sms.Message) (string, error)
}

type dedupeCache interface {
	Seen(ctx context.Context, campaignID uuid.UUID, hash string) bool
	Remember(ctx context.Context, campaignID uuid.UUID, hash string)
}

// Result is what the webhook endpoint reports back to the sender.
type Result struct {
	Received         bool      `json:"received"`
	Duplicate        bool      `json:"duplicate,omitempty"`
	ProcessingFailed bool      `json:"processing_failed,omitempty"`
	InteractionID    uuid.UUID `json:"interaction_id,omitempty"`
	SourceType       string    `json:"source_type,omitempty"`
	SourcePlatform   string    `json:"source_platform,omitempty"`
	TriggersFired    int       `json:"triggers_fired,omitempty"`
}

// Config wires the pipeline's collaborators.
type Config struct {
	Campaigns    campaignResolver
	Triggers     triggerSource
	Contacts     contactRegistry
	Interactions interactionStore
	Classifier   payloadClassifier
	Evaluator    triggerEvaluator
	Sender       smsSender
	Dedupe       dedupeCache
	DedupWindow  time.Duration
	Logger       *logging.Logger
}

// Pipeline processes one inbound webhook delivery end to end: dedup, contact
// resolution, classification, trigger evaluation, SMS dispatch and fired-set
// bookkeeping, all synchronously within the request.
type Pipeline struct {
	campaigns    campaignResolver
	triggers     triggerSource
	contacts     contactRegistry
	interactions interactionStore
	classifier   payloadClassifier
	evaluator    triggerEvaluator
	sender       smsSender
	dedupe       dedupeCache
	dedupWindow  time.Duration
	logger       *logging.Logger
}

func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = interactions.DefaultDedupWindow
	}
	return &Pipeline{
		campaigns:    cfg.Campaigns,
		triggers:     cfg.Triggers,
		contacts:     cfg.Contacts,
		interactions: cfg.Interactions,
		classifier:   cfg.Classifier,
		evaluator:    cfg.Evaluator,
		sender:       cfg.Sender,
		dedupe:       cfg.Dedupe,
		dedupWindow:  cfg.DedupWindow,
		logger:       cfg.Logger,
	}
}

// Process runs one delivery through the pipeline. It returns an error only
// for the reject cases (malformed body, unknown campaign, inactive campaign);
// every other failure is absorbed into a Received result so the sender never
// has a reason to retry-storm.
func (p *Pipeline) Process(ctx context.Context, webhookKey string, rawBody []byte) (Result, error) {
	var payload map[string]any
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	campaign, err := p.campaigns.ByWebhookKey(ctx, webhookKey)
	if err != nil {
		if errors.Is(err, campaigns.ErrNotFound) {
			return Result{}, err
		}
		// Can't even resolve the campaign; still acknowledge to quiet the sender.
		p.logFailure("campaign lookup failed", err, rawBody)
		return Result{Received: true, ProcessingFailed: true}, nil
	}
	if !campaign.Active {
		return Result{}, ErrCampaignInactive
	}

	hash := interactions.HashPayload(rawBody)
	if p.dedupe != nil && p.dedupe.Seen(ctx, campaign.ID, hash) {
		return Result{Received: true, Duplicate: true}, nil
	}
	existing, err := p.interactions.FindRecentByHash(ctx, campaign.ID, hash, p.dedupWindow)
	if err != nil {
		p.logFailure("dedup lookup failed", err, rawBody)
		return Result{Received: true, ProcessingFailed: true}, nil
	}
	if existing != uuid.Nil {
		if p.dedupe != nil {
			p.dedupe.Remember(ctx, campaign.ID, hash)
		}
		return Result{Received: true, Duplicate: true, InteractionID: existing}, nil
	}

	result, err := p.processNew(ctx, campaign, payload, rawBody, hash)
	if err != nil {
		p.logFailure("inbound processing failed", err, rawBody)
		return Result{Received: true, ProcessingFailed: true}, nil
	}
	return result, nil
}

func (p *Pipeline) processNew(ctx context.Context, campaign campaigns.Campaign, payload map[string]any, rawBody []byte, hash string) (Result, error) {
	// Classification is best-effort: a classifier outage degrades to a bare
	// interaction rather than losing the event.
	var analysis classify.Analysis
	var classifyErr string
	if p.classifier != nil {
		a, err := p.classifier.Classify(ctx, payload, campaign.ExtractionHints)
		if err != nil {
			var cerr *classify.ClassificationError
			if !errors.As(err, &cerr) {
				return Result{}, fmt.Errorf("classify: %w", err)
			}
			p.logger.Warn("classification failed, continuing with empty analysis",
				"campaign_id", campaign.ID, "error", err)
			classifyErr = err.Error()
		} else {
			analysis = a
		}
	}

	var contactID *uuid.UUID
	var contactPhone string
	if analysis.Extracted.PhoneNumber != "" {
		if normalized, err := phone.Normalize(analysis.Extracted.PhoneNumber); err == nil {
			id, err := p.contacts.ResolveOrCreate(ctx, campaign.ID, normalized)
			if err != nil {
				return Result{}, err
			}
			contactID = &id
			contactPhone = normalized
		} else {
			p.logger.Debug("extracted phone did not normalize",
				"campaign_id", campaign.ID, "error", err)
		}
	}

	var extractedJSON []byte
	if p.classifier != nil && classifyErr == "" {
		if data, err := json.Marshal(analysis.Extracted); err == nil {
			extractedJSON = data
		}
	}
	interactionID, err := p.interactions.Insert(ctx, interactions.Record{
		CampaignID:      campaign.ID,
		ContactID:       contactID,
		SourceType:      analysis.SourceType,
		SourcePlatform:  analysis.SourcePlatform,
		RawPayload:      rawBody,
		PayloadHash:     hash,
		CallStatus:      analysis.CallStatus,
		Transcript:      analysis.Transcript,
		Summary:         analysis.Extracted.Summary,
		ExtractedData:   extractedJSON,
		ProcessingError: classifyErr,
	})
	if err != nil {
		return Result{}, err
	}
	// The cache key goes in only now that the row exists, so a cache hit can
	// never outlive a delivery that failed to persist.
	if p.dedupe != nil {
		p.dedupe.Remember(ctx, campaign.ID, hash)
	}

	result := Result{
		Received:       true,
		InteractionID:  interactionID,
		SourceType:     analysis.SourceType,
		SourcePlatform: analysis.SourcePlatform,
	}

	if contactID != nil && analysis.Text() != "" {
		fired, err := p.fireTriggers(ctx, campaign, *contactID, contactPhone, analysis.Text(), interactionID)
		if err != nil {
			// Triggers failing after the interaction is durable is recoverable:
			// note it on the row and acknowledge.
			p.logger.Error("trigger processing failed", "interaction_id", interactionID, "error", err)
			if markErr := p.interactions.MarkError(ctx, interactionID, err.Error()); markErr != nil {
				p.logger.Error("failed to record processing error", "interaction_id", interactionID, "error", markErr)
			}
			result.ProcessingFailed = true
			return result, nil
		}
		result.TriggersFired = fired
	}
	return result, nil
}

// fireTriggers evaluates the contact's remaining triggers and dispatches one
// SMS per match, marking each fired only after its send succeeds. Send-then-
// mark means a crash between the two can cause a duplicate send on redelivery,
// never a silently skipped notification.
func (p *Pipeline) fireTriggers(ctx context.Context, campaign campaigns.Campaign, contactID uuid.UUID, contactPhone, text string, interactionID uuid.UUID) (int, error) {
	candidates, err := p.triggers.ActiveTriggers(ctx, campaign.ID)
	if err != nil {
		return 0, err
	}
	fired, err := p.contacts.FiredTriggers(ctx, contactID)
	if err != nil {
		return 0, err
	}
	remaining := triggers.Remaining(candidates, fired)
	if len(remaining) == 0 {
		return 0, nil
	}

	matched, err := p.evaluator.Evaluate(ctx, text, remaining)
	if err != nil {
		return 0, err
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
			// No origin number configured for this campaign; nothing to send.
			p.logger.Debug("campaign has no sms origin number, skipping dispatch",
				"campaign_id", campaign.ID, "trigger_id", triggerID)
			continue
		}
		_, sendErr := p.sender.Send(ctx, sms.Message{
			From:            campaign.SMSFromNumber,
			To:              contactPhone,
			Body:            trigger.MessageBody,
			InteractionID:   interactionID,
			TriggerID:       triggerID,
			ContactID:       contactID,
			APIKeyOverride:  campaign.SMSAPIKey,
			ProfileOverride: campaign.SMSProfileID,
		})
		if sendErr != nil {
			// A failed send leaves the trigger unfired so a later delivery
			// can retry it; it never unwinds the persisted interaction.
			p.logger.Error("sms dispatch failed", "trigger_id", triggerID,
				"contact_id", contactID, "error", sendErr)
			continue
		}
		if err := p.contacts.MarkFired(ctx, contactID, triggerID); err != nil {
			return sent, err
		}
		sent++
	}
	if sent > 0 {
		if err := p.interactions.MarkSMSSent(ctx, interactionID); err != nil {
			p.logger.Error("failed to flag interaction sms_sent", "interaction_id", interactionID, "error", err)
		}
	}
	return sent, nil
}

func (p *Pipeline) logFailure(msg string, err error, rawBody []byte) {
	body := rawBody
	if len(body) > maxLoggedBody {
		body = body[:maxLoggedBody]
	}
	p.logger.Error(msg, "error", err, "raw_body", string(body))
}
