// Package service holds the reconciliation core: the balance ledger, the
// order dispatcher, the status reconciler and the operations built on top
// of them (top-ups, affiliates, support, reports).
package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/K2-bot/sender/internal/sender/telegram"
)

// Notifier delivers operator-facing messages. Delivery is best-effort and
// must never block a financial state transition.
type Notifier interface {
	TrySend(ctx context.Context, chatID int64, text string, mode telegram.ParseMode)
}

// Chats names the operator destinations used across the service layer.
type Chats struct {
	Ops      int64
	Supplier int64
	Manual   int64
	News     int64
	Report   int64
}

// Money rounds a USD amount the way operator messages show it.
func money(v decimal.Decimal) string {
	return v.StringFixed(4)
}

func mmk(usd decimal.Decimal, rate decimal.Decimal) string {
	return usd.Mul(rate).StringFixed(0)
}
