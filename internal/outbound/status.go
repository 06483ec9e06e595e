package outbound

import (
	"fmt"
	"strings"
	"time"
)

// CampaignStatus is the outbound campaign lifecycle state.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// campaignTransitions is the allowed transition table. completed is terminal.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:     {CampaignScheduled},
	CampaignScheduled: {CampaignRunning},
	CampaignRunning:   {CampaignPaused, CampaignCompleted, CampaignCancelled},
	CampaignPaused:    {CampaignRunning, CampaignCancelled},
	CampaignCancelled: {CampaignDraft},
	CampaignCompleted: {},
}

// InvalidTransitionError reports a campaign status change outside the table.
type InvalidTransitionError struct {
	From CampaignStatus
	To   CampaignStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("outbound: invalid campaign transition %s -> %s", e.From, e.To)
}

// ValidateTransition returns an *InvalidTransitionError unless from -> to is allowed.
func ValidateTransition(from, to CampaignStatus) error {
	for _, allowed := range campaignTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to}
}

// ContactStatus is the per-contact lifecycle state within an outbound campaign.
type ContactStatus string

const (
	ContactQueued    ContactStatus = "queued"
	ContactCalling   ContactStatus = "calling"
	ContactCompleted ContactStatus = "completed"
	ContactNoAnswer  ContactStatus = "no_answer"
	ContactBusy      ContactStatus = "busy"
	ContactVoicemail ContactStatus = "voicemail"
	ContactFailed    ContactStatus = "failed"
	ContactDNC       ContactStatus = "dnc"
	ContactSkipped   ContactStatus = "skipped"
)

// IsTerminalContactStatus reports whether a contact needs no further attempts.
func IsTerminalContactStatus(s ContactStatus) bool {
	switch s {
	case ContactCompleted, ContactFailed, ContactDNC, ContactSkipped:
		return true
	}
	return false
}

// CallResult is the canonical, provider-agnostic call outcome.
type CallResult string

const (
	ResultAnswered  CallResult = "answered"
	ResultNoAnswer  CallResult = "no_answer"
	ResultBusy      CallResult = "busy"
	ResultVoicemail CallResult = "voicemail"
	ResultFailed    CallResult = "failed"
)

// MapCallResult converts a provider call status into a canonical result.
// Total: unknown provider statuses map to failed so no call outcome is ever
// silently dropped.
func MapCallResult(providerStatus string) CallResult {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "answered", "completed", "human_answered", "human":
		return ResultAnswered
	case "no_answer", "no-answer", "noanswer", "unanswered", "timeout":
		return ResultNoAnswer
	case "busy", "user_busy":
		return ResultBusy
	case "voicemail", "machine", "answering_machine", "machine_detected":
		return ResultVoicemail
	default:
		return ResultFailed
	}
}

// NextContactState computes the contact's next status after a terminal call
// event. attemptCount counts the attempt that just finished. An answered call
// always completes the contact. Any other result re-queues while attempts
// remain (maxRetries retries on top of the first attempt), else fails.
func NextContactState(result CallResult, attemptCount, maxRetries int, retryDelay time.Duration, now time.Time) (ContactStatus, *time.Time) {
	if result == ResultAnswered {
		return ContactCompleted, nil
	}
	if attemptCount < maxRetries+1 {
		next := now.Add(retryDelay)
		return ContactQueued, &next
	}
	return ContactFailed, nil
}
