package monitor

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

type DispatchedOrdersRepository interface {
	GetDispatchedOrders(ctx context.Context, supplier string) ([]data.Order, error)
	SetOrderSupplierState(ctx context.Context, id int64, remain, startCount int64, buyCharge decimal.Decimal, status data.OrderStatus) error
}

type SupplierStatusAPI interface {
	GetOrderStatus(ctx context.Context, supplierOrderID string) (supplier.OrderStatus, error)
}

type TransitionApplier interface {
	Apply(ctx context.Context, order data.Order, oldStatus, newStatus data.OrderStatus) error
}

// SupplierStatusMonitor polls the supplier for every dispatched order and
// folds the reported state back into the store. Financial effects only run
// when the status actually changed.
type SupplierStatusMonitor struct {
	repo       DispatchedOrdersRepository
	api        SupplierStatusAPI
	reconciler TransitionApplier
	alerter    Alerter
	statusChat int64
	logger     *logging.ZapLogger
}

func NewSupplierStatusMonitor(
	repo DispatchedOrdersRepository,
	api SupplierStatusAPI,
	reconciler TransitionApplier,
	alerter Alerter,
	statusChat int64,
	logger *logging.ZapLogger,
) *SupplierStatusMonitor {
	return &SupplierStatusMonitor{
		repo:       repo,
		api:        api,
		reconciler: reconciler,
		alerter:    alerter,
		statusChat: statusChat,
		logger:     logger,
	}
}

func (m *SupplierStatusMonitor) Name() string { return "supplier-status" }

func (m *SupplierStatusMonitor) Tick(ctx context.Context) error {
	orders, err := m.repo.GetDispatchedOrders(ctx, data.SupplierSMMGen)
	if err != nil {
		return fmt.Errorf("failed to select dispatched orders: %w", err)
	}
	for _, order := range orders {
		if err := m.syncOrder(ctx, order); err != nil {
			m.logger.ErrorCtx(ctx, "supplier state sync failed",
				zap.Int64("orderID", order.ID),
				zap.String("supplierOrderID", order.SupplierOrderID),
				zap.Error(err))
		}
	}
	return nil
}

func (m *SupplierStatusMonitor) syncOrder(ctx context.Context, order data.Order) error {
	remote, err := m.api.GetOrderStatus(ctx, order.SupplierOrderID)
	if err != nil {
		return fmt.Errorf("failed to fetch supplier status: %w", err)
	}

	remain := order.Remain
	if remote.Remains != nil {
		remain, err = remote.Remains.Int64()
		if err != nil {
			return fmt.Errorf("bad remains value: %w", err)
		}
	}
	startCount := order.StartCount
	if remote.StartCount != nil {
		startCount, err = remote.StartCount.Int64()
		if err != nil {
			return fmt.Errorf("bad start count value: %w", err)
		}
	}
	buyCharge := order.BuyCharge
	if remote.Charge != nil {
		buyCharge, err = remote.Charge.Decimal()
		if err != nil {
			return fmt.Errorf("bad charge value: %w", err)
		}
	}

	// The supplier may answer with counters only. An absent status keeps
	// the stored one instead of blanking it.
	newStatus := order.Status
	if remote.Status != "" {
		newStatus = data.OrderStatus(remote.Status)
	}
	if err := m.repo.SetOrderSupplierState(ctx, order.ID, remain, startCount, buyCharge, newStatus); err != nil {
		return fmt.Errorf("failed to store supplier state: %w", err)
	}
	if order.Status.EqualFold(newStatus) {
		return nil
	}

	m.alerter.TrySend(ctx, m.statusChat, fmt.Sprintf(
		"🔁 Order #%d Status Changed\nOld: %s\nNew: %s",
		order.ID, order.Status, newStatus,
	), telegram.ModePlain)

	updated := order
	updated.Remain = remain
	updated.StartCount = startCount
	updated.BuyCharge = buyCharge
	if err := m.reconciler.Apply(ctx, updated, order.Status, newStatus); err != nil {
		return fmt.Errorf("failed to apply transition: %w", err)
	}
	return nil
}
