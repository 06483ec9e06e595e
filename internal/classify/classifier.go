package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/leadline-hq/leadline/internal/llm"
	"github.com/leadline-hq/leadline/pkg/logging"
)

// Source types an inbound payload can classify to.
const (
	SourcePhone   = "phone"
	SourceSMS     = "sms"
	SourceWebForm = "web_form"
	SourceChatbot = "chatbot"
)

// Canonical call statuses.
const (
	CallCompleted = "completed"
	CallNoAnswer  = "no_answer"
	CallFailed    = "failed"
	CallBusy      = "busy"
	CallCanceled  = "canceled"
)

// ExtractedData holds the structured fields the model pulled out of a payload.
// Absent fields stay empty; the classifier never fabricates values.
type ExtractedData struct {
	CallerName    string            `json:"caller_name,omitempty"`
	PhoneNumber   string            `json:"phone_number,omitempty"`
	Email         string            `json:"email,omitempty"`
	PrimaryIntent string            `json:"primary_intent,omitempty"`
	Outcome       string            `json:"outcome,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	CustomFields  map[string]string `json:"custom_fields,omitempty"`
}

// Analysis is the normalized result of classifying one raw payload.
type Analysis struct {
	SourceType          string        `json:"source_type,omitempty"`
	SourcePlatform      string        `json:"source_platform,omitempty"`
	Extracted           ExtractedData `json:"extracted_data"`
	Transcript          string        `json:"transcript,omitempty"`
	TranscriptFormatted string        `json:"transcript_formatted,omitempty"`
	RecordingURL        string        `json:"recording_url,omitempty"`
	CallStatus          string        `json:"call_status,omitempty"`
	DurationSeconds     int           `json:"duration_seconds,omitempty"`
}

// Text returns the best text available for intent evaluation: the transcript
// when present, otherwise the model's summary.
func (a Analysis) Text() string {
	if strings.TrimSpace(a.Transcript) != "" {
		return a.Transcript
	}
	return a.Extracted.Summary
}

// ClassificationError wraps a failure from the model or a malformed response.
type ClassificationError struct {
	Stage string
	Err   error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify: %s: %v", e.Stage, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

const classifyPrompt = `You are analyzing a raw webhook payload from a communication platform.
Identify the source and extract structured data. Respond with JSON only, using exactly this shape
and omitting any field you cannot determine from the payload (never guess or invent values):

{
  "source_type": "phone" | "sms" | "web_form" | "chatbot",
  "source_platform": "<free-text platform label>",
  "extracted_data": {
    "caller_name": "", "phone_number": "", "email": "",
    "primary_intent": "", "outcome": "", "summary": "",
    "custom_fields": {}
  },
  "transcript": "",
  "transcript_formatted": "",
  "recording_url": "",
  "call_status": "completed" | "no_answer" | "failed" | "busy" | "canceled",
  "duration_seconds": 0
}`

// Classifier turns heterogeneous webhook payloads into an Analysis via the LLM.
type Classifier struct {
	client llm.Client
	model  string
	logger *logging.Logger
}

func NewClassifier(client llm.Client, model string, logger *logging.Logger) *Classifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &Classifier{client: client, model: model, logger: logger}
}

// Classify analyzes a raw payload, optionally guided by per-campaign
// extraction hints (field name -> description). A best-effort Analysis is
// returned even when only part of the response parses; a nil client or a
// model failure yields a *ClassificationError.
func (c *Classifier) Classify(ctx context.Context, payload map[string]any, hints map[string]string) (Analysis, error) {
	if c.client == nil {
		return Analysis{}, &ClassificationError{Stage: "client", Err: fmt.Errorf("no llm client configured")}
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return Analysis{}, &ClassificationError{Stage: "encode payload", Err: err}
	}

	var b strings.Builder
	b.WriteString(classifyPrompt)
	if len(hints) > 0 {
		b.WriteString("\n\nCampaign-specific fields to extract into custom_fields:\n")
		keys := make([]string, 0, len(hints))
		for k := range hints {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, hints[k])
		}
	}
	b.WriteString("\n\nPayload:\n")
	b.Write(payloadJSON)

	resp, err := c.client.Complete(ctx, llm.Request{
		Model:     c.model,
		Messages:  []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: b.String()}},
		MaxTokens: 1024,
	})
	if err != nil {
		return Analysis{}, &ClassificationError{Stage: "complete", Err: err}
	}

	content := llm.ExtractJSON(resp.Text)
	if content == "" {
		return Analysis{}, &ClassificationError{Stage: "parse", Err: fmt.Errorf("no JSON object in response")}
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return Analysis{}, &ClassificationError{Stage: "parse", Err: err}
	}

	analysis.SourceType = normalizeSourceType(analysis.SourceType)
	analysis.CallStatus = normalizeCallStatus(analysis.CallStatus)
	return analysis, nil
}

func normalizeSourceType(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case SourcePhone, "call", "voice":
		return SourcePhone
	case SourceSMS, "text":
		return SourceSMS
	case SourceWebForm, "form", "webform":
		return SourceWebForm
	case SourceChatbot, "chat", "bot":
		return SourceChatbot
	default:
		return ""
	}
}

func normalizeCallStatus(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case CallCompleted, "answered", "ended":
		return CallCompleted
	case CallNoAnswer, "noanswer", "no-answer", "unanswered":
		return CallNoAnswer
	case CallFailed, "error":
		return CallFailed
	case CallBusy:
		return CallBusy
	case CallCanceled, "cancelled":
		return CallCanceled
	default:
		return ""
	}
}
