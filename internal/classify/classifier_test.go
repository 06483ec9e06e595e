package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leadline-hq/leadline/internal/llm"
)

type stubLLM struct {
	resp    llm.Response
	err     error
	lastReq llm.Request
}

func (s *stubLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	s.lastReq = req
	return s.resp, s.err
}

func TestClassifyParsesResponse(t *testing.T) {
	stub := &stubLLM{resp: llm.Response{Text: "```json\n" + `{
		"source_type": "PHONE",
		"source_platform": "retell",
		"extracted_data": {"caller_name": "Ana", "phone_number": "+15551234567", "summary": "wants a callback"},
		"transcript": "please call me back",
		"call_status": "answered",
		"duration_seconds": 42
	}` + "\n```"}}
	c := NewClassifier(stub, "", nil)

	analysis, err := c.Classify(context.Background(), map[string]any{"event": "call.ended"}, nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if analysis.SourceType != SourcePhone {
		t.Fatalf("source type = %q", analysis.SourceType)
	}
	if analysis.CallStatus != CallCompleted {
		t.Fatalf("call status = %q, want completed", analysis.CallStatus)
	}
	if analysis.Extracted.PhoneNumber != "+15551234567" {
		t.Fatalf("phone = %q", analysis.Extracted.PhoneNumber)
	}
	if analysis.DurationSeconds != 42 {
		t.Fatalf("duration = %d", analysis.DurationSeconds)
	}
	if analysis.Text() != "please call me back" {
		t.Fatalf("text = %q", analysis.Text())
	}
}

func TestClassifyIncludesHints(t *testing.T) {
	stub := &stubLLM{resp: llm.Response{Text: `{"source_type":"web_form"}`}}
	c := NewClassifier(stub, "", nil)

	_, err := c.Classify(context.Background(), map[string]any{"name": "Bob"}, map[string]string{
		"budget": "the prospect's stated budget",
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	prompt := stub.lastReq.Messages[0].Content
	if !strings.Contains(prompt, "budget: the prospect's stated budget") {
		t.Fatalf("hints missing from prompt:\n%s", prompt)
	}
}

func TestClassifyModelFailure(t *testing.T) {
	stub := &stubLLM{err: errors.New("rate limited")}
	c := NewClassifier(stub, "", nil)

	_, err := c.Classify(context.Background(), map[string]any{}, nil)
	var cerr *ClassificationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ClassificationError, got %v", err)
	}
}

func TestClassifyGarbageResponse(t *testing.T) {
	stub := &stubLLM{resp: llm.Response{Text: "I could not determine anything."}}
	c := NewClassifier(stub, "", nil)

	_, err := c.Classify(context.Background(), map[string]any{}, nil)
	var cerr *ClassificationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ClassificationError, got %v", err)
	}
}

func TestClassifyNilClient(t *testing.T) {
	c := NewClassifier(nil, "", nil)
	_, err := c.Classify(context.Background(), map[string]any{}, nil)
	var cerr *ClassificationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ClassificationError, got %v", err)
	}
}

func TestTextFallsBackToSummary(t *testing.T) {
	a := Analysis{Extracted: ExtractedData{Summary: "asked about pricing"}}
	if a.Text() != "asked about pricing" {
		t.Fatalf("text = %q", a.Text())
	}
}
