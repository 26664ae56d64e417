package monitor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/pkg/logging"
)

type AffiliatesRepository interface {
	GetPendingAffiliatesAfter(ctx context.Context, lastID int64) ([]data.Affiliate, error)
}

type AffiliateHandler interface {
	HandlePending(ctx context.Context, aff data.Affiliate) error
}

// AffiliatesMonitor walks pending withdrawal requests by an ID watermark,
// so a request already announced is never announced again even while it
// stays Pending waiting for an operator.
type AffiliatesMonitor struct {
	repo    AffiliatesRepository
	handler AffiliateHandler
	logger  *logging.ZapLogger

	mux    sync.Mutex
	lastID int64
}

func NewAffiliatesMonitor(repo AffiliatesRepository, handler AffiliateHandler, logger *logging.ZapLogger) *AffiliatesMonitor {
	return &AffiliatesMonitor{repo: repo, handler: handler, logger: logger}
}

func (m *AffiliatesMonitor) Name() string { return "affiliates" }

func (m *AffiliatesMonitor) Tick(ctx context.Context) error {
	m.mux.Lock()
	defer m.mux.Unlock()

	pending, err := m.repo.GetPendingAffiliatesAfter(ctx, m.lastID)
	if err != nil {
		return fmt.Errorf("failed to select pending affiliates: %w", err)
	}
	for _, aff := range pending {
		if err := m.handler.HandlePending(ctx, aff); err != nil {
			m.logger.ErrorCtx(ctx, "affiliate handling failed",
				zap.Int64("affiliateID", aff.ID), zap.Error(err))
		}
		if aff.ID > m.lastID {
			m.lastID = aff.ID
		}
	}
	return nil
}
