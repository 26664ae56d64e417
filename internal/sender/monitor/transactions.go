package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/internal/sender/telegram"
	"github.com/K2-bot/sender/pkg/logging"
	"github.com/K2-bot/sender/pkg/threadsafe"
)

type TransactionsRepository interface {
	GetPendingTransactions(ctx context.Context) ([]data.Transaction, error)
	SetTransactionStatus(ctx context.Context, id int64, status data.TransactionStatus) error
	GetStuckTransactions(ctx context.Context, olderThan time.Time) ([]data.Transaction, error)
}

type TransactionVerifier interface {
	Verify(ctx context.Context, tx data.Transaction) error
}

type Alerter interface {
	TrySend(ctx context.Context, chatID int64, text string, mode telegram.ParseMode)
}

// TransactionsMonitor claims pending top-up transactions and runs them
// through verification. The claim (Pending to Checking) happens before any
// slow work so a concurrent trigger never verifies the same transaction
// twice. Transactions stuck in Checking past the threshold are alerted
// once and left for an operator.
type TransactionsMonitor struct {
	repo       TransactionsRepository
	verifier   TransactionVerifier
	alerter    Alerter
	alertChat  int64
	stuckAfter time.Duration
	alerted    *threadsafe.HashSet[int64]
	logger     *logging.ZapLogger
}

func NewTransactionsMonitor(
	repo TransactionsRepository,
	verifier TransactionVerifier,
	alerter Alerter,
	alertChat int64,
	stuckAfter time.Duration,
	logger *logging.ZapLogger,
) *TransactionsMonitor {
	if stuckAfter <= 0 {
		stuckAfter = 10 * time.Minute
	}
	return &TransactionsMonitor{
		repo:       repo,
		verifier:   verifier,
		alerter:    alerter,
		alertChat:  alertChat,
		stuckAfter: stuckAfter,
		alerted:    threadsafe.NewHashSet[int64](),
		logger:     logger,
	}
}

func (m *TransactionsMonitor) Name() string { return "transactions" }

func (m *TransactionsMonitor) Tick(ctx context.Context) error {
	transactions, err := m.repo.GetPendingTransactions(ctx)
	if err != nil {
		return fmt.Errorf("failed to select pending transactions: %w", err)
	}
	for _, tx := range transactions {
		if err := m.repo.SetTransactionStatus(ctx, tx.ID, data.TransactionChecking); err != nil {
			m.logger.ErrorCtx(ctx, "transaction claim failed",
				zap.Int64("transactionID", tx.ID), zap.Error(err))
			continue
		}
		if err := m.verifier.Verify(ctx, tx); err != nil {
			m.logger.ErrorCtx(ctx, "transaction verification failed",
				zap.Int64("transactionID", tx.ID), zap.Error(err))
		}
	}
	m.alertStuck(ctx)
	return nil
}

func (m *TransactionsMonitor) alertStuck(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.stuckAfter)
	stuck, err := m.repo.GetStuckTransactions(ctx, cutoff)
	if err != nil {
		m.logger.ErrorCtx(ctx, "stuck transaction scan failed", zap.Error(err))
		return
	}
	for _, tx := range stuck {
		if !m.alerted.Add(tx.ID) {
			continue
		}
		m.alerter.TrySend(ctx, m.alertChat, fmt.Sprintf(
			"⚠️ Transaction %d (%s) has been stuck in Checking since %s",
			tx.ID, tx.Email, tx.UpdatedAt.UTC().Format(time.RFC3339),
		), telegram.ModePlain)
	}
}
