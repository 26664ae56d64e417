package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/internal/sender/telegram"
	"github.com/K2-bot/sender/pkg/logging"
)

type TransactionManager interface {
	DoWithTransaction(ctx context.Context, f func(ctx context.Context) error) error
}

type TopUpRepository interface {
	GetTransaction(ctx context.Context, id int64) (data.Transaction, error)
	SetTransactionStatus(ctx context.Context, id int64, status data.TransactionStatus) error
	FindUnusedVerification(ctx context.Context, method string, amount decimal.Decimal, transactionID string) (data.PaymentVerification, error)
	FindUnusedVerificationByRef(ctx context.Context, transactionID string) (data.PaymentVerification, error)
	MarkVerificationUsed(ctx context.Context, id int64) error
	MarkVerificationUsedByRef(ctx context.Context, transactionID string) error
}

// TopUp verifies user top-up transactions against payment verification
// records and credits balances for the ones that match.
type TopUp struct {
	repo      TopUpRepository
	txManager TransactionManager
	ledger    BalanceAdjuster
	notifier  Notifier
	chats     Chats
	usdToMMK  decimal.Decimal
	logger    *logging.ZapLogger
}

func NewTopUp(
	repo TopUpRepository,
	txManager TransactionManager,
	ledger BalanceAdjuster,
	notifier Notifier,
	chats Chats,
	usdToMMK decimal.Decimal,
	logger *logging.ZapLogger,
) *TopUp {
	return &TopUp{
		repo:      repo,
		txManager: txManager,
		ledger:    ledger,
		notifier:  notifier,
		chats:     chats,
		usdToMMK:  usdToMMK,
		logger:    logger,
	}
}

// Verify processes one transaction already claimed as Checking. A matching
// unused verification leads to an automatic credit; otherwise the
// transaction is parked as Unverified for an operator decision.
func (s *TopUp) Verify(ctx context.Context, tx data.Transaction) error {
	vp, err := s.repo.FindUnusedVerification(ctx, tx.Method, tx.Amount, tx.TransactionID)
	switch {
	case errors.Is(err, data.ErrVerificationNotFound):
		if err := s.repo.SetTransactionStatus(ctx, tx.ID, data.TransactionUnverified); err != nil {
			return err
		}
		s.notifier.TrySend(ctx, s.chats.Ops, s.formatUnverified(tx), telegram.ModeHTML)
		return nil
	case err != nil:
		return err
	}

	// The credit, the verification consumption and the acceptance move
	// together or not at all.
	err = s.txManager.DoWithTransaction(ctx, func(ctx context.Context) error {
		if err := s.ledger.Adjust(ctx, tx.Email, tx.Amount); err != nil {
			return err
		}
		if err := s.repo.MarkVerificationUsed(ctx, vp.ID); err != nil {
			return err
		}
		return s.repo.SetTransactionStatus(ctx, tx.ID, data.TransactionAccepted)
	})
	if err != nil {
		return fmt.Errorf("top-up of transaction %d failed: %w", tx.ID, err)
	}
	s.notifier.TrySend(ctx, s.chats.Ops, fmt.Sprintf(
		"✅ <b>Auto Top-up Completed</b>\n\n"+
			"👤 User = %s\n"+
			"💳 Method = %s\n"+
			"💰 Amount USD = %s\n"+
			"🇲🇲 Amount MMK = %s\n"+
			"🧾 Transaction ID = %s",
		telegram.EscapeHTML(tx.Email),
		telegram.EscapeHTML(tx.Method),
		telegram.EscapeHTML(money(tx.Amount)),
		telegram.EscapeHTML(mmk(tx.Amount, s.usdToMMK)),
		telegram.EscapeHTML(tx.TransactionID),
	), telegram.ModeHTML)
	return nil
}

// Approve is the operator override for an unverified transaction.
func (s *TopUp) Approve(ctx context.Context, txID int64) error {
	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	err = s.txManager.DoWithTransaction(ctx, func(ctx context.Context) error {
		if err := s.ledger.Adjust(ctx, tx.Email, tx.Amount); err != nil {
			return err
		}
		if err := s.repo.SetTransactionStatus(ctx, tx.ID, data.TransactionAccepted); err != nil {
			return err
		}
		return s.repo.MarkVerificationUsedByRef(ctx, tx.TransactionID)
	})
	if err != nil {
		return fmt.Errorf("approve of transaction %d failed: %w", txID, err)
	}
	s.notifier.TrySend(ctx, s.chats.Ops,
		fmt.Sprintf("✅ Transaction %d approved by admin", txID), telegram.ModePlain)
	return nil
}

func (s *TopUp) Reject(ctx context.Context, txID int64) error {
	if err := s.repo.SetTransactionStatus(ctx, txID, data.TransactionFailed); err != nil {
		return err
	}
	s.notifier.TrySend(ctx, s.chats.Ops,
		fmt.Sprintf("❌ Transaction %d rejected by admin", txID), telegram.ModePlain)
	return nil
}

// ConsumeVerification manually marks a verification record as used.
func (s *TopUp) ConsumeVerification(ctx context.Context, transactionID string) error {
	vp, err := s.repo.FindUnusedVerificationByRef(ctx, transactionID)
	if err != nil {
		return err
	}
	if err := s.repo.MarkVerificationUsed(ctx, vp.ID); err != nil {
		return err
	}
	s.notifier.TrySend(ctx, s.chats.Ops,
		fmt.Sprintf("✅ Payment verification %s marked as USED by admin", transactionID), telegram.ModePlain)
	return nil
}

func (s *TopUp) formatUnverified(tx data.Transaction) string {
	return fmt.Sprintf(
		"🆕 <b>New Unverified Transaction</b>\n\n"+
			"🆔 ID = %d\n"+
			"📧 Email = %s\n"+
			"💳 Method = %s\n"+
			"💵 Amount USD = %s\n\n"+
			"🇲🇲 Amount MMK = %s\n"+
			"🧾 Transaction ID = %s\n\n"+
			"🛠 <b>Admin Commands:</b>\n"+
			"/Yes %d\n"+
			"/No %d",
		tx.ID,
		telegram.EscapeHTML(tx.Email),
		telegram.EscapeHTML(tx.Method),
		telegram.EscapeHTML(money(tx.Amount)),
		telegram.EscapeHTML(mmk(tx.Amount, s.usdToMMK)),
		telegram.EscapeHTML(tx.TransactionID),
		tx.ID, tx.ID,
	)
}
