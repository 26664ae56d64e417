package service

import (
	"context"
	"fmt"
	"time"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/pkg/logging"
)

type OrdersRepository interface {
	GetOrder(ctx context.Context, id int64) (data.Order, error)
	SetOrderStatus(ctx context.Context, id int64, status data.OrderStatus) error
	SetOrderCompleted(ctx context.Context, id int64, completedAt time.Time) error
}

// Orders exposes the manual order transitions operators can drive directly;
// they run through the same reconciler as supplier-reported changes.
type Orders struct {
	repo       OrdersRepository
	reconciler TransitionApplier
	logger     *logging.ZapLogger
}

func NewOrders(repo OrdersRepository, reconciler TransitionApplier, logger *logging.ZapLogger) *Orders {
	return &Orders{
		repo:       repo,
		reconciler: reconciler,
		logger:     logger,
	}
}

func (s *Orders) MarkCompleted(ctx context.Context, orderID int64) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.repo.SetOrderCompleted(ctx, orderID, time.Now().UTC()); err != nil {
		return err
	}
	if err := s.reconciler.Apply(ctx, order, order.Status, data.OrderCompleted); err != nil {
		return fmt.Errorf("order %d marked completed, reconcile failed: %w", orderID, err)
	}
	return nil
}

func (s *Orders) MarkCanceled(ctx context.Context, orderID int64) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.repo.SetOrderStatus(ctx, orderID, data.OrderCanceled); err != nil {
		return err
	}
	if err := s.reconciler.Apply(ctx, order, order.Status, data.OrderCanceled); err != nil {
		return fmt.Errorf("order %d marked canceled, reconcile failed: %w", orderID, err)
	}
	return nil
}
