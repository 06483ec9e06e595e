package outbound

import (
	"context"

	"github.com/google/uuid"

	"github.com/leadline-hq/leadline/pkg/logging"
)

type completionStore interface {
	CountActionable(ctx context.Context, campaignID uuid.UUID) (int, error)
	CompleteCampaign(ctx context.Context, campaignID uuid.UUID) (bool, error)
}

// CompletionMonitor closes out a running campaign once no contact needs
// further attempts. The guarded UPDATE in the store makes the transition
// exactly-once even when concurrent callbacks race through Check.
type CompletionMonitor struct {
	store  completionStore
	logger *logging.Logger
}

func NewCompletionMonitor(store completionStore, logger *logging.Logger) *CompletionMonitor {
	if logger == nil {
		logger = logging.Default()
	}
	return &CompletionMonitor{store: store, logger: logger}
}

// Check reports whether this call completed the campaign. A false return
// means either work remains or another caller won the completion race.
func (m *CompletionMonitor) Check(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	remaining, err := m.store.CountActionable(ctx, campaignID)
	if err != nil {
		return false, err
	}
	if remaining > 0 {
		return false, nil
	}
	won, err := m.store.CompleteCampaign(ctx, campaignID)
	if err != nil {
		return false, err
	}
	if won {
		m.logger.Info("outbound campaign completed", "campaign_id", campaignID)
	}
	return won, nil
}
