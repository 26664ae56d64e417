package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/internal/sender/telegram"
	"github.com/K2-bot/sender/pkg/logging"
)

type AffiliateRepository interface {
	GetAffiliate(ctx context.Context, id int64) (data.Affiliate, error)
	SetAffiliateStatus(ctx context.Context, id int64, status data.AffiliateStatus) error
}

// Affiliates handles referral withdrawal requests. A "topup" payout is
// credited straight back to the user's balance; every other payout method
// needs an operator to send the money and confirm.
type Affiliates struct {
	repo     AffiliateRepository
	ledger   BalanceAdjuster
	notifier Notifier
	chats    Chats
	usdToMMK decimal.Decimal
	logger   *logging.ZapLogger
}

func NewAffiliates(
	repo AffiliateRepository,
	ledger BalanceAdjuster,
	notifier Notifier,
	chats Chats,
	usdToMMK decimal.Decimal,
	logger *logging.ZapLogger,
) *Affiliates {
	return &Affiliates{
		repo:     repo,
		ledger:   ledger,
		notifier: notifier,
		chats:    chats,
		usdToMMK: usdToMMK,
		logger:   logger,
	}
}

// HandlePending processes one newly discovered withdrawal request.
func (s *Affiliates) HandlePending(ctx context.Context, aff data.Affiliate) error {
	if strings.EqualFold(aff.Method, "topup") {
		if err := s.ledger.Adjust(ctx, aff.Email, aff.Amount); err != nil {
			return fmt.Errorf("affiliate %d topup credit failed: %w", aff.ID, err)
		}
		if err := s.repo.SetAffiliateStatus(ctx, aff.ID, data.AffiliateAccepted); err != nil {
			return err
		}
		s.notifier.TrySend(ctx, s.chats.Ops, fmt.Sprintf(
			"✅ <b>Affiliate Withdrawal Auto Top-up</b>\n\n"+
				"👤 User = %s\n"+
				"💰 Amount USD = %s\n"+
				"🇲🇲 Amount MMK = %s",
			telegram.EscapeHTML(aff.Email),
			money(aff.Amount),
			mmk(aff.Amount, s.usdToMMK),
		), telegram.ModeHTML)
		return nil
	}

	s.notifier.TrySend(ctx, s.chats.Ops, fmt.Sprintf(
		"🆕 <b>New Affiliate Withdrawal Request</b>\n\n"+
			"🆔 ID = %d\n"+
			"📧 Email = %s\n"+
			"👤 Name = %s\n"+
			"📱 Phone = %s\n"+
			"💳 Method = %s\n"+
			"💵 Amount USD = %s\n"+
			"🇲🇲 Amount MMK = %s\n\n"+
			"🛠 <b>Admin Commands:</b>\n"+
			"/Accept %d\n"+
			"/Failed %d",
		aff.ID,
		telegram.EscapeHTML(aff.Email),
		telegram.EscapeHTML(aff.Name),
		telegram.EscapeHTML(aff.PhoneID),
		telegram.EscapeHTML(aff.Method),
		money(aff.Amount),
		mmk(aff.Amount, s.usdToMMK),
		aff.ID, aff.ID,
	), telegram.ModeHTML)
	return nil
}

// Accept confirms that the payout was sent.
func (s *Affiliates) Accept(ctx context.Context, id int64) error {
	if _, err := s.repo.GetAffiliate(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SetAffiliateStatus(ctx, id, data.AffiliateAccepted); err != nil {
		return err
	}
	s.notifier.TrySend(ctx, s.chats.Ops,
		fmt.Sprintf("✅ Affiliate withdrawal %d marked as paid", id), telegram.ModePlain)
	return nil
}

// Fail rejects the payout request.
func (s *Affiliates) Fail(ctx context.Context, id int64) error {
	if _, err := s.repo.GetAffiliate(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SetAffiliateStatus(ctx, id, data.AffiliateFailed); err != nil {
		return err
	}
	s.notifier.TrySend(ctx, s.chats.Ops,
		fmt.Sprintf("❌ Affiliate withdrawal %d marked as failed", id), telegram.ModePlain)
	return nil
}
