package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/pkg/logging"
)

type LedgerRepository interface {
	GetUserByEmail(ctx context.Context, email string) (data.User, error)
	SetUserBalance(ctx context.Context, email string, value decimal.Decimal) error
}

// Ledger applies additive deltas to user balances. The read-modify-write
// runs under a single process-wide mutex so adjustments from different
// polling loops cannot interleave.
type Ledger struct {
	repo   LedgerRepository
	mux    sync.Mutex
	logger *logging.ZapLogger
}

func NewLedger(repo LedgerRepository, logger *logging.ZapLogger) *Ledger {
	return &Ledger{
		repo:   repo,
		logger: logger,
	}
}

func (l *Ledger) Adjust(ctx context.Context, email string, delta decimal.Decimal) error {
	l.mux.Lock()
	defer l.mux.Unlock()

	user, err := l.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to read balance of %s: %w", email, err)
	}
	newBalance := user.BalanceUSD.Add(delta)
	if err := l.repo.SetUserBalance(ctx, email, newBalance); err != nil {
		return fmt.Errorf("failed to write balance of %s: %w", email, err)
	}
	l.logger.InfoCtx(ctx, "balance adjusted",
		zap.String("email", email),
		zap.String("delta", delta.String()),
		zap.String("balance", newBalance.String()),
	)
	return nil
}
