package monitor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/pkg/logging"
	"github.com/K2-bot/sender/pkg/threadsafe"
)

type PendingOrdersRepository interface {
	GetPendingOrders(ctx context.Context) ([]data.Order, error)
}

type OrderDispatcher interface {
	Dispatch(ctx context.Context, order data.Order) error
}

// OrdersMonitor hands every pending order to the dispatcher. The in-flight
// set keeps a manual trigger from racing the periodic loop over the same
// order.
type OrdersMonitor struct {
	repo       PendingOrdersRepository
	dispatcher OrderDispatcher
	inFlight   *threadsafe.HashSet[int64]
	logger     *logging.ZapLogger
}

func NewOrdersMonitor(repo PendingOrdersRepository, dispatcher OrderDispatcher, logger *logging.ZapLogger) *OrdersMonitor {
	return &OrdersMonitor{
		repo:       repo,
		dispatcher: dispatcher,
		inFlight:   threadsafe.NewHashSet[int64](),
		logger:     logger,
	}
}

func (m *OrdersMonitor) Name() string { return "orders" }

func (m *OrdersMonitor) Tick(ctx context.Context) error {
	orders, err := m.repo.GetPendingOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to select pending orders: %w", err)
	}
	for _, order := range orders {
		if !m.inFlight.Add(order.ID) {
			continue
		}
		err := m.dispatcher.Dispatch(ctx, order)
		m.inFlight.Remove(order.ID)
		if err != nil {
			m.logger.ErrorCtx(ctx, "order dispatch failed",
				zap.Int64("orderID", order.ID), zap.Error(err))
		}
	}
	return nil
}
