package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/internal/sender/supplier"
	"github.com/K2-bot/sender/internal/sender/telegram"
	"github.com/K2-bot/sender/pkg/logging"
)

type RatesRepository interface {
	GetServicesBySource(ctx context.Context, source string) ([]data.Service, error)
	SetServiceBuyPrice(ctx context.Context, id int64, price decimal.Decimal) error
}

type SupplierCatalog interface {
	GetServices(ctx context.Context) ([]supplier.ServiceRate, error)
}

// Rates keeps stored buy prices in sync with the supplier price list and
// reports every drift it corrects.
type Rates struct {
	repo     RatesRepository
	catalog  SupplierCatalog
	notifier Notifier
	chats    Chats
	logger   *logging.ZapLogger
}

func NewRates(repo RatesRepository, catalog SupplierCatalog, notifier Notifier, chats Chats, logger *logging.ZapLogger) *Rates {
	return &Rates{repo: repo, catalog: catalog, notifier: notifier, chats: chats, logger: logger}
}

// Check compares every stored smmgen service against the supplier's current
// rate and updates the ones that moved.
func (s *Rates) Check(ctx context.Context) error {
	stored, err := s.repo.GetServicesBySource(ctx, data.SupplierSMMGen)
	if err != nil {
		return fmt.Errorf("loading services failed: %w", err)
	}
	remote, err := s.catalog.GetServices(ctx)
	if err != nil {
		return fmt.Errorf("loading supplier price list failed: %w", err)
	}

	rates := make(map[string]decimal.Decimal, len(remote))
	for _, r := range remote {
		rate, err := r.Rate.Decimal()
		if err != nil {
			s.logger.WarnCtx(ctx, "unparseable supplier rate",
				zap.String("service", string(r.Service)), zap.Error(err))
			continue
		}
		rates[string(r.Service)] = rate
	}

	var changed int
	for _, svc := range stored {
		rate, ok := rates[svc.SupplierServiceID]
		if !ok {
			s.logger.WarnCtx(ctx, "service missing from supplier price list",
				zap.String("service", svc.Name),
				zap.String("supplierServiceID", svc.SupplierServiceID))
			continue
		}
		if rate.Equal(svc.BuyPrice) {
			continue
		}
		if err := s.repo.SetServiceBuyPrice(ctx, svc.ID, rate); err != nil {
			s.logger.ErrorCtx(ctx, "buy price update failed",
				zap.Int64("serviceID", svc.ID), zap.Error(err))
			continue
		}
		changed++
		s.notifier.TrySend(ctx, s.chats.Supplier, fmt.Sprintf(
			"💱 <b>Rate Changed</b>\n\n"+
				"🛒 Service = %s\n"+
				"📦 Supplier ID = %s\n"+
				"⬅️ Old rate = %s\n"+
				"➡️ New rate = %s",
			telegram.EscapeHTML(svc.Name),
			telegram.EscapeHTML(svc.SupplierServiceID),
			money(svc.BuyPrice),
			money(rate),
		), telegram.ModeHTML)
	}

	s.logger.InfoCtx(ctx, "rate check finished",
		zap.Int("checked", len(stored)), zap.Int("changed", changed))
	return nil
}
