package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leadline-hq/leadline/internal/observability/metrics"
	"github.com/leadline-hq/leadline/internal/outbound"
	"github.com/leadline-hq/leadline/pkg/logging"
)

type callResultProcessor interface {
	HandleCallResult(ctx context.Context, event outbound.CallEvent) (outbound.CallOutcome, error)
}

type campaignKeyResolver interface {
	CampaignIDByWebhookKey(ctx context.Context, key string) (uuid.UUID, error)
}

// CallResultHandler receives terminal call-status callbacks from the voice
// provider and feeds them to the outbound state machine.
type CallResultHandler struct {
	results callResultProcessor
	keys    campaignKeyResolver
	metrics *metrics.PipelineMetrics
	logger  *logging.Logger
}

// CallResultConfig wires the handler's collaborators. Keys, when set, pins
// each callback to the campaign its webhook key was issued for; callbacks on
// unknown keys are acknowledged and dropped.
type CallResultConfig struct {
	Results callResultProcessor
	Keys    campaignKeyResolver
	Metrics *metrics.PipelineMetrics
	Logger  *logging.Logger
}

func NewCallResultHandler(cfg CallResultConfig) *CallResultHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &CallResultHandler{
		results: cfg.Results,
		keys:    cfg.Keys,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

type callResultPayload struct {
	CallID          string `json:"call_id"`
	ProviderCallID  string `json:"provider_call_id"`
	Status          string `json:"status"`
	DurationSeconds int    `json:"duration_seconds"`
	Transcript      string `json:"transcript"`
	RecordingURL    string `json:"recording_url"`
	Summary         string `json:"summary"`
}

// Handle processes POST /webhooks/calls/{webhookKey}. The provider drops
// callbacks on non-2xx, so every outcome is acknowledged with a 200; failures
// are logged and surface through metrics instead of status codes.
func (h *CallResultHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	webhookKey := chi.URLParam(r, "webhookKey")

	ack := func() {
		h.metrics.ObserveWebhookLatency("calls", time.Since(start).Seconds())
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("unreadable call result body", "webhook_key", webhookKey, "error", err)
		ack()
		return
	}

	var payload callResultPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("malformed call result payload", "webhook_key", webhookKey, "error", err)
		ack()
		return
	}
	providerCallID := payload.ProviderCallID
	if providerCallID == "" {
		providerCallID = payload.CallID
	}
	if providerCallID == "" {
		h.logger.Warn("call result without a call id", "webhook_key", webhookKey)
		ack()
		return
	}

	var campaignID uuid.UUID
	if h.keys != nil {
		campaignID, err = h.keys.CampaignIDByWebhookKey(r.Context(), webhookKey)
		if err != nil {
			if errors.Is(err, outbound.ErrCampaignNotFound) {
				h.logger.Warn("call result on unknown webhook key", "webhook_key", webhookKey)
				ack()
				return
			}
			// Resolver outage: log and process unpinned rather than drop the
			// terminal event.
			h.logger.Error("webhook key lookup failed", "webhook_key", webhookKey, "error", err)
			campaignID = uuid.Nil
		}
	}

	outcome, err := h.results.HandleCallResult(r.Context(), outbound.CallEvent{
		CampaignID:      campaignID,
		ProviderCallID:  providerCallID,
		ProviderStatus:  payload.Status,
		DurationSeconds: payload.DurationSeconds,
		Transcript:      payload.Transcript,
		RecordingURL:    payload.RecordingURL,
		Summary:         payload.Summary,
	})
	if err != nil {
		h.logger.Error("call result processing failed",
			"provider_call_id", providerCallID, "error", err)
		ack()
		return
	}
	if outcome.Recognized {
		h.metrics.ObserveCallResult(string(outcome.Result))
	}
	ack()
}
