package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leadline-hq/leadline/internal/campaigns"
	"github.com/leadline-hq/leadline/internal/ingest"
	"github.com/leadline-hq/leadline/internal/observability/metrics"
	"github.com/leadline-hq/leadline/pkg/logging"
)

// maxWebhookBody caps how much of an inbound delivery we read. Providers send
// transcripts, so the limit is generous.
const maxWebhookBody = 1 << 20

type inboundProcessor interface {
	Process(ctx context.Context, webhookKey string, rawBody []byte) (ingest.Result, error)
}

// InboundWebhookHandler receives webhook deliveries from call platforms, web
// forms and chatbots and runs them through the ingestion pipeline.
type InboundWebhookHandler struct {
	pipeline inboundProcessor
	metrics  *metrics.PipelineMetrics
	logger   *logging.Logger
}

// InboundWebhookConfig wires the handler's collaborators.
type InboundWebhookConfig struct {
	Pipeline inboundProcessor
	Metrics  *metrics.PipelineMetrics
	Logger   *logging.Logger
}

func NewInboundWebhookHandler(cfg InboundWebhookConfig) *InboundWebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &InboundWebhookHandler{
		pipeline: cfg.Pipeline,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// Handle processes POST /webhooks/inbound/{webhookKey}. Only unparseable
// bodies, unknown campaigns and inactive campaigns are rejected; everything
// else returns 200 so senders have no reason to retry-storm.
func (h *InboundWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	webhookKey := chi.URLParam(r, "webhookKey")
	if webhookKey == "" {
		http.Error(w, "missing webhook key", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.pipeline.Process(r.Context(), webhookKey, body)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrMalformedPayload):
			h.metrics.ObserveInbound("malformed")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
		case errors.Is(err, campaigns.ErrNotFound):
			h.metrics.ObserveInbound("unknown_campaign")
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown campaign"})
		case errors.Is(err, ingest.ErrCampaignInactive):
			h.metrics.ObserveInbound("inactive_campaign")
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "campaign not accepting events"})
		default:
			// Process absorbs everything else; an unexpected error here still
			// gets a 200 to keep the sender quiet.
			h.logger.Error("inbound webhook processing error", "error", err)
			h.metrics.ObserveInbound("error")
			writeJSON(w, http.StatusOK, ingest.Result{Received: true, ProcessingFailed: true})
		}
		h.metrics.ObserveWebhookLatency("inbound", time.Since(start).Seconds())
		return
	}

	switch {
	case result.Duplicate:
		h.metrics.ObserveInbound("duplicate")
	case result.ProcessingFailed:
		h.metrics.ObserveInbound("degraded")
	default:
		h.metrics.ObserveInbound("processed")
	}
	h.metrics.ObserveWebhookLatency("inbound", time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
