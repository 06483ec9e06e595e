package triggers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/leadline-hq/leadline/internal/llm"
	"github.com/leadline-hq/leadline/pkg/logging"
)

const evaluatorPrompt = `You decide which configured intents a caller clearly expressed.

Conversation:
%s

Candidate intents:
%s

Rules:
- Match an intent ONLY when the conversation unambiguously expresses it.
- When in doubt, do not match. Ambiguity means no match.
- Multiple intents may match; an empty list is a valid answer.

Respond with JSON only: {"matched_trigger_ids": ["<id>", ...]}`

// Evaluator matches conversation text against candidate triggers using the
// LLM. Matching is conservative: a trigger fires only on unambiguous intent.
type Evaluator struct {
	client llm.Client
	model  string
	logger *logging.Logger
}

func NewEvaluator(client llm.Client, model string, logger *logging.Logger) *Evaluator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Evaluator{client: client, model: model, logger: logger}
}

// Evaluate returns the subset of candidate trigger ids whose intent the text
// clearly expresses, ordered by ascending candidate priority. Empty text or
// an empty candidate set short-circuits without calling the model.
func (e *Evaluator) Evaluate(ctx context.Context, text string, candidates []Trigger) ([]uuid.UUID, error) {
	text = strings.TrimSpace(text)
	if text == "" || len(candidates) == 0 {
		return nil, nil
	}
	if e.client == nil {
		return nil, nil
	}

	var list strings.Builder
	for _, t := range candidates {
		fmt.Fprintf(&list, "- id=%s intent=%q\n", t.ID, t.IntentDescription)
	}

	resp, err := e.client.Complete(ctx, llm.Request{
		Model:     e.model,
		Messages:  []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: fmt.Sprintf(evaluatorPrompt, text, list.String())}},
		MaxTokens: 256,
	})
	if err != nil {
		return nil, fmt.Errorf("triggers: evaluate: %w", err)
	}

	content := llm.ExtractJSON(resp.Text)
	if content == "" {
		// No parseable answer is treated as no match, not a failure.
		e.logger.Warn("trigger evaluator returned no JSON", "response", resp.Text)
		return nil, nil
	}
	var result struct {
		MatchedTriggerIDs []string `json:"matched_trigger_ids"`
	}
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		e.logger.Warn("trigger evaluator returned malformed JSON", "error", err)
		return nil, nil
	}

	matched := make(map[uuid.UUID]struct{}, len(result.MatchedTriggerIDs))
	for _, raw := range result.MatchedTriggerIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		matched[id] = struct{}{}
	}

	// Keep candidate order (ascending priority) and drop ids the model invented.
	var out []uuid.UUID
	for _, t := range candidates {
		if _, ok := matched[t.ID]; ok {
			out = append(out, t.ID)
		}
	}
	return out, nil
}
