package outbound

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignTransitionTable(t *testing.T) {
	allowed := []struct{ from, to CampaignStatus }{
		{CampaignDraft, CampaignScheduled},
		{CampaignScheduled, CampaignRunning},
		{CampaignRunning, CampaignPaused},
		{CampaignRunning, CampaignCompleted},
		{CampaignRunning, CampaignCancelled},
		{CampaignPaused, CampaignRunning},
		{CampaignPaused, CampaignCancelled},
		{CampaignCancelled, CampaignDraft},
	}
	for _, tc := range allowed {
		assert.NoError(t, ValidateTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to CampaignStatus }{
		{CampaignDraft, CampaignRunning},
		{CampaignScheduled, CampaignPaused},
		{CampaignCompleted, CampaignRunning},
		{CampaignCompleted, CampaignDraft},
		{CampaignCancelled, CampaignRunning},
		{CampaignPaused, CampaignCompleted},
		{CampaignRunning, CampaignRunning},
	}
	for _, tc := range denied {
		err := ValidateTransition(tc.from, tc.to)
		var ite *InvalidTransitionError
		require.ErrorAs(t, err, &ite, "%s -> %s", tc.from, tc.to)
		assert.Equal(t, tc.from, ite.From)
		assert.Equal(t, tc.to, ite.To)
	}
}

func TestMapCallResultKnownStatuses(t *testing.T) {
	cases := map[string]CallResult{
		"answered":          ResultAnswered,
		"completed":         ResultAnswered,
		"Human_Answered":    ResultAnswered,
		"no_answer":         ResultNoAnswer,
		"no-answer":         ResultNoAnswer,
		"timeout":           ResultNoAnswer,
		"busy":              ResultBusy,
		"user_busy":         ResultBusy,
		"voicemail":         ResultVoicemail,
		"machine_detected":  ResultVoicemail,
		"answering_machine": ResultVoicemail,
		"failed":            ResultFailed,
		"error":             ResultFailed,
	}
	for in, want := range cases {
		assert.Equal(t, want, MapCallResult(in), "status %q", in)
	}
}

func TestMapCallResultUnknownIsFailed(t *testing.T) {
	assert.Equal(t, ResultFailed, MapCallResult("weird_status"))
	assert.Equal(t, ResultFailed, MapCallResult(""))
}

func TestNextContactStateAnsweredAlwaysCompletes(t *testing.T) {
	status, next := NextContactState(ResultAnswered, 5, 0, time.Hour, time.Now())
	assert.Equal(t, ContactCompleted, status)
	assert.Nil(t, next)
}

func TestNextContactStateRequeuesUntilRetryBound(t *testing.T) {
	now := time.Now()
	delay := 4 * time.Hour
	maxRetries := 2

	// Attempts 1 and 2 re-queue, attempt 3 (= maxRetries+1) is terminal.
	for attempt := 1; attempt <= maxRetries; attempt++ {
		status, next := NextContactState(ResultNoAnswer, attempt, maxRetries, delay, now)
		assert.Equal(t, ContactQueued, status, "attempt %d", attempt)
		require.NotNil(t, next)
		assert.Equal(t, now.Add(delay), *next)
	}
	status, next := NextContactState(ResultNoAnswer, maxRetries+1, maxRetries, delay, now)
	assert.Equal(t, ContactFailed, status)
	assert.Nil(t, next)
}

func TestNextContactStateNoRetriesFailsImmediately(t *testing.T) {
	status, _ := NextContactState(ResultBusy, 1, 0, time.Hour, time.Now())
	assert.Equal(t, ContactFailed, status)
}

func TestTerminalContactStatuses(t *testing.T) {
	for _, s := range []ContactStatus{ContactCompleted, ContactFailed, ContactDNC, ContactSkipped} {
		assert.True(t, IsTerminalContactStatus(s), string(s))
	}
	for _, s := range []ContactStatus{ContactQueued, ContactCalling, ContactNoAnswer, ContactBusy, ContactVoicemail} {
		assert.False(t, IsTerminalContactStatus(s), string(s))
	}
}

func TestInvalidTransitionErrorMessage(t *testing.T) {
	err := ValidateTransition(CampaignCompleted, CampaignRunning)
	var ite *InvalidTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Contains(t, ite.Error(), "completed -> running")
}
