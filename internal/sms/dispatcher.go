package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/leadline-hq/leadline/pkg/logging"
)

var dispatchTracer = otel.Tracer("leadline.internal.sms.dispatcher")

const defaultBaseURL = "https://api.telnyx.com"

// DispatchError reports a failed send attempt.
type DispatchError struct {
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sms: dispatch failed: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("sms: dispatch failed: %v", e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Message is one SMS to dispatch, with correlation ids for the record that
// caused it. Override fields replace the dispatcher's default credentials
// for campaigns that bring their own gateway account.
type Message struct {
	From string
	To   string
	Body string

	InteractionID uuid.UUID
	CallLogID     uuid.UUID
	TriggerID     uuid.UUID
	ContactID     uuid.UUID

	APIKeyOverride  string
	ProfileOverride string
}

// Dispatcher posts single messages to the Telnyx V2 API. One attempt per
// call; retry policy, if any, belongs to the caller.
type Dispatcher struct {
	apiKey     string
	profileID  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewDispatcher(apiKey, profileID string, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		apiKey:    apiKey,
		profileID: profileID,
		baseURL:   defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// WithBaseURL points the dispatcher at a different gateway host. Used in tests.
func (d *Dispatcher) WithBaseURL(u string) *Dispatcher {
	d.baseURL = strings.TrimRight(u, "/")
	return d
}

// Send dispatches one message and returns the provider message id.
func (d *Dispatcher) Send(ctx context.Context, msg Message) (string, error) {
	apiKey := msg.APIKeyOverride
	if apiKey == "" {
		apiKey = d.apiKey
	}
	profileID := msg.ProfileOverride
	if profileID == "" {
		profileID = d.profileID
	}
	if apiKey == "" {
		return "", &DispatchError{Err: errors.New("api key missing")}
	}
	if msg.To == "" || msg.From == "" {
		return "", &DispatchError{Err: errors.New("from and to required")}
	}
	if strings.TrimSpace(msg.Body) == "" {
		return "", &DispatchError{Err: errors.New("body required")}
	}

	ctx, span := dispatchTracer.Start(ctx, "sms.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("leadline.to", msg.To),
		attribute.String("leadline.from", msg.From),
		attribute.String("leadline.trigger_id", msg.TriggerID.String()),
	)

	payload := map[string]any{
		"from": msg.From,
		"to":   msg.To,
		"text": msg.Body,
	}
	if profileID != "" {
		payload["messaging_profile_id"] = profileID
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", &DispatchError{Err: fmt.Errorf("marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v2/messages", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &DispatchError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", &DispatchError{Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		sendErr := &DispatchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("gateway rejected send")}
		span.RecordError(sendErr)
		d.logger.Error("sms send failed", "status", resp.StatusCode, "to", msg.To, "trigger_id", msg.TriggerID)
		return "", sendErr
	}

	var parsed struct {
		Data struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if len(respBody) > 0 {
		_ = json.Unmarshal(respBody, &parsed)
	}
	d.logger.Info("sms sent", "to", msg.To, "from", msg.From, "provider_message_id", parsed.Data.ID)
	return parsed.Data.ID, nil
}
