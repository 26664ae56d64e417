package dbrepository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/K2-bot/sender/internal/sender/data"
)

//go:embed sql/select_pending_orders.sql
var selectPendingOrdersQuery string

func (db *DBRepository) GetPendingOrders(ctx context.Context) ([]data.Order, error) {
	rows, err := db.storage.Query(ctx, selectPendingOrdersQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending orders: %w", err)
	}
	return collectRows(rows, scanOrder)
}

//go:embed sql/select_order.sql
var selectOrderQuery string

func (db *DBRepository) GetOrder(ctx context.Context, id int64) (data.Order, error) {
	rows, err := db.storage.Query(ctx, selectOrderQuery, id)
	if err != nil {
		return data.Order{}, fmt.Errorf("failed to select order: %w", err)
	}
	orders, err := collectRows(rows, scanOrder)
	if err != nil {
		return data.Order{}, err
	}
	if len(orders) == 0 {
		return data.Order{}, data.ErrOrderNotFound
	}
	return orders[0], nil
}

//go:embed sql/select_dispatched_orders.sql
var selectDispatchedOrdersQuery string

// GetDispatchedOrders returns supplier orders that carry a real supplier
// reference and are still in flight. Orders stamped with the failed-dispatch
// sentinel are never polled.
func (db *DBRepository) GetDispatchedOrders(ctx context.Context, supplier string) ([]data.Order, error) {
	rows, err := db.storage.Query(ctx, selectDispatchedOrdersQuery, supplier, data.FailedDispatchRef)
	if err != nil {
		return nil, fmt.Errorf("failed to select dispatched orders: %w", err)
	}
	return collectRows(rows, scanOrder)
}

//go:embed sql/update_order_dispatched.sql
var updateOrderDispatchedQuery string

func (db *DBRepository) SetOrderDispatched(ctx context.Context, id int64, supplierOrderID string) error {
	return db.execOrderUpdate(ctx, updateOrderDispatchedQuery, id, supplierOrderID)
}

//go:embed sql/update_order_status.sql
var updateOrderStatusQuery string

func (db *DBRepository) SetOrderStatus(ctx context.Context, id int64, status data.OrderStatus) error {
	return db.execOrderUpdate(ctx, updateOrderStatusQuery, id, string(status))
}

//go:embed sql/update_order_completed.sql
var updateOrderCompletedQuery string

func (db *DBRepository) SetOrderCompleted(ctx context.Context, id int64, completedAt time.Time) error {
	return db.execOrderUpdate(ctx, updateOrderCompletedQuery, id, completedAt)
}

//go:embed sql/update_order_failed_dispatch.sql
var updateOrderFailedDispatchQuery string

// SetOrderFailedDispatch cancels an order whose dispatch to the supplier
// failed and stamps the sentinel supplier reference so the dispatcher never
// resubmits it.
func (db *DBRepository) SetOrderFailedDispatch(ctx context.Context, id int64) error {
	return db.execOrderUpdate(ctx, updateOrderFailedDispatchQuery, id, data.FailedDispatchRef)
}

//go:embed sql/update_order_refunded.sql
var updateOrderRefundedQuery string

func (db *DBRepository) SetOrderRefunded(ctx context.Context, id int64, refund decimal.Decimal) error {
	return db.execOrderUpdate(ctx, updateOrderRefundedQuery, id, refund)
}

//go:embed sql/update_order_supplier_state.sql
var updateOrderSupplierStateQuery string

func (db *DBRepository) SetOrderSupplierState(
	ctx context.Context,
	id int64,
	remain int64,
	startCount int64,
	buyCharge decimal.Decimal,
	status data.OrderStatus,
) error {
	return db.execOrderUpdate(ctx, updateOrderSupplierStateQuery, id, remain, startCount, buyCharge, string(status))
}

func (db *DBRepository) execOrderUpdate(ctx context.Context, query string, id int64, args ...any) error {
	tag, err := db.storage.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return data.ErrOrderNotFound
	}
	return nil
}

func scanOrder(rows pgx.Rows) (data.Order, error) {
	var order data.Order
	var supplierOrderID *string
	var refund *decimal.Decimal
	err := rows.Scan(
		&order.ID,
		&order.Email,
		&order.ServiceName,
		&order.Link,
		&order.Quantity,
		&order.Remain,
		&order.StartCount,
		&order.SupplierName,
		&order.SupplierServiceID,
		&supplierOrderID,
		&order.SellCharge,
		&order.BuyCharge,
		&order.Status,
		&refund,
		&order.CreatedAt,
		&order.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return data.Order{}, data.ErrOrderNotFound
		}
		return data.Order{}, fmt.Errorf("failed to scan order: %w", err)
	}
	if supplierOrderID != nil {
		order.SupplierOrderID = *supplierOrderID
	}
	if refund != nil {
		order.RefundAmount = *refund
	}
	return order, nil
}
