package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/leadline-hq/leadline/internal/outbound"
)

type stubResults struct {
	outcome  outbound.CallOutcome
	err      error
	gotEvent outbound.CallEvent
	called   bool
}

func (s *stubResults) HandleCallResult(_ context.Context, event outbound.CallEvent) (outbound.CallOutcome, error) {
	s.called = true
	s.gotEvent = event
	return s.outcome, s.err
}

func postCallResult(t *testing.T, h *CallResultHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := withWebhookKey(httptest.NewRequest(http.MethodPost, "/webhooks/calls/wh_abc", strings.NewReader(body)), "wh_abc")
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func assertAcked(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["received"] {
		t.Fatal("expected received=true")
	}
}

func TestCallResultProcessed(t *testing.T) {
	results := &stubResults{outcome: outbound.CallOutcome{
		Received:   true,
		Recognized: true,
		Result:     outbound.ResultAnswered,
	}}
	h := NewCallResultHandler(CallResultConfig{Results: results})

	rec := postCallResult(t, h, `{
		"provider_call_id": "call_1",
		"status": "answered",
		"duration_seconds": 42,
		"transcript": "hello"
	}`)
	assertAcked(t, rec)

	if results.gotEvent.ProviderCallID != "call_1" {
		t.Fatalf("provider call id = %q", results.gotEvent.ProviderCallID)
	}
	if results.gotEvent.DurationSeconds != 42 {
		t.Fatalf("duration = %d", results.gotEvent.DurationSeconds)
	}
}

func TestCallResultFallsBackToCallID(t *testing.T) {
	results := &stubResults{}
	h := NewCallResultHandler(CallResultConfig{Results: results})

	rec := postCallResult(t, h, `{"call_id": "call_legacy", "status": "busy"}`)
	assertAcked(t, rec)

	if results.gotEvent.ProviderCallID != "call_legacy" {
		t.Fatalf("provider call id = %q", results.gotEvent.ProviderCallID)
	}
}

func TestCallResultMalformedBodyStillAcked(t *testing.T) {
	results := &stubResults{}
	h := NewCallResultHandler(CallResultConfig{Results: results})

	rec := postCallResult(t, h, `not json at all`)
	assertAcked(t, rec)
	if results.called {
		t.Fatal("handler should not run on malformed body")
	}
}

func TestCallResultMissingCallIDStillAcked(t *testing.T) {
	results := &stubResults{}
	h := NewCallResultHandler(CallResultConfig{Results: results})

	rec := postCallResult(t, h, `{"status": "answered"}`)
	assertAcked(t, rec)
	if results.called {
		t.Fatal("handler should not run without a call id")
	}
}

func TestCallResultProcessingErrorStillAcked(t *testing.T) {
	results := &stubResults{err: errors.New("db down")}
	h := NewCallResultHandler(CallResultConfig{Results: results})

	rec := postCallResult(t, h, `{"provider_call_id": "call_2", "status": "failed"}`)
	assertAcked(t, rec)
}

type stubKeys struct {
	campaignID uuid.UUID
	err        error
	gotKey     string
}

func (s *stubKeys) CampaignIDByWebhookKey(_ context.Context, key string) (uuid.UUID, error) {
	s.gotKey = key
	return s.campaignID, s.err
}

func TestCallResultUnknownKeyAckedAndDropped(t *testing.T) {
	results := &stubResults{}
	keys := &stubKeys{err: outbound.ErrCampaignNotFound}
	h := NewCallResultHandler(CallResultConfig{Results: results, Keys: keys})

	rec := postCallResult(t, h, `{"provider_call_id": "call_3", "status": "answered"}`)
	assertAcked(t, rec)
	if keys.gotKey != "wh_abc" {
		t.Fatalf("resolved key = %q", keys.gotKey)
	}
	if results.called {
		t.Fatal("handler should not run for an unknown webhook key")
	}
}

func TestCallResultKnownKeyPinsCampaign(t *testing.T) {
	campaignID := uuid.New()
	results := &stubResults{}
	h := NewCallResultHandler(CallResultConfig{Results: results, Keys: &stubKeys{campaignID: campaignID}})

	rec := postCallResult(t, h, `{"provider_call_id": "call_4", "status": "busy"}`)
	assertAcked(t, rec)
	if results.gotEvent.CampaignID != campaignID {
		t.Fatalf("campaign id = %s, want %s", results.gotEvent.CampaignID, campaignID)
	}
}

func TestCallResultKeyLookupFailureProcessesUnpinned(t *testing.T) {
	results := &stubResults{}
	h := NewCallResultHandler(CallResultConfig{Results: results, Keys: &stubKeys{err: errors.New("db down")}})

	rec := postCallResult(t, h, `{"provider_call_id": "call_5", "status": "failed"}`)
	assertAcked(t, rec)
	if !results.called {
		t.Fatal("resolver outage must not drop the event")
	}
	if results.gotEvent.CampaignID != uuid.Nil {
		t.Fatal("event must be unpinned when the resolver fails")
	}
}
