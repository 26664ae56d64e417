package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/internal/sender/telegram"
	"github.com/K2-bot/sender/pkg/logging"
)

type DispatcherRepository interface {
	SetOrderDispatched(ctx context.Context, id int64, supplierOrderID string) error
	SetOrderStatus(ctx context.Context, id int64, status data.OrderStatus) error
	SetOrderFailedDispatch(ctx context.Context, id int64) error
}

type SupplierAPI interface {
	PlaceOrder(ctx context.Context, order data.Order) (string, error)
}

type TransitionApplier interface {
	Apply(ctx context.Context, order data.Order, oldStatus, newStatus data.OrderStatus) error
}

// Dispatcher routes pending orders to their supplier: automated suppliers
// get an API call, manual-fulfillment partners get an operator notification.
type Dispatcher struct {
	repo       DispatcherRepository
	supplier   SupplierAPI
	reconciler TransitionApplier
	notifier   Notifier
	chats      Chats
	usdToMMK   decimal.Decimal
	logger     *logging.ZapLogger
}

func NewDispatcher(
	repo DispatcherRepository,
	supplier SupplierAPI,
	reconciler TransitionApplier,
	notifier Notifier,
	chats Chats,
	usdToMMK decimal.Decimal,
	logger *logging.ZapLogger,
) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		supplier:   supplier,
		reconciler: reconciler,
		notifier:   notifier,
		chats:      chats,
		usdToMMK:   usdToMMK,
		logger:     logger,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, order data.Order) error {
	switch order.SupplierName {
	case data.SupplierSMMGen:
		return d.dispatchAutomated(ctx, order)
	default:
		return d.dispatchManual(ctx, order)
	}
}

func (d *Dispatcher) dispatchAutomated(ctx context.Context, order data.Order) error {
	// A present supplier reference means the order was already submitted;
	// resubmitting would double the delivery.
	if order.SupplierOrderID != "" {
		return nil
	}
	ref, err := d.supplier.PlaceOrder(ctx, order)
	if err != nil {
		return d.failDispatch(ctx, order, err)
	}
	if err := d.repo.SetOrderDispatched(ctx, order.ID, ref); err != nil {
		return fmt.Errorf("failed to persist dispatch of order %d: %w", order.ID, err)
	}
	d.notifier.TrySend(ctx, d.chats.Supplier, fmt.Sprintf(
		"🚀 New Order Sent to Supplier\n\n"+
			"🆔 %d\n"+
			"📦 Service: %s\n"+
			"🔢 Quantity: %d\n"+
			"🔗 Link: %s\n"+
			"💰 Sell Charge (USD): %s\n"+
			"💵 Sell Charge (MMK): %s\n"+
			"📧 Email: %s\n"+
			"🧾 Supplier Order ID: %s\n"+
			"✅ Status: Processing",
		order.ID, order.ServiceName, order.Quantity, order.Link,
		money(order.SellCharge), mmk(order.SellCharge, d.usdToMMK),
		order.Email, ref,
	), telegram.ModePlain)
	return nil
}

// failDispatch records a failed submission: the order is canceled with the
// sentinel supplier reference, and the reconciler runs the Pending→Canceled
// transition so downstream accounting stays consistent.
func (d *Dispatcher) failDispatch(ctx context.Context, order data.Order, cause error) error {
	d.logger.ErrorCtx(ctx, "supplier dispatch failed",
		zap.Int64("orderID", order.ID),
		zap.Error(cause),
	)
	if err := d.repo.SetOrderFailedDispatch(ctx, order.ID); err != nil {
		return fmt.Errorf("failed to cancel order %d after dispatch error: %w", order.ID, err)
	}
	if err := d.reconciler.Apply(ctx, order, order.Status, data.OrderCanceled); err != nil {
		d.logger.ErrorCtx(ctx, "reconcile of failed dispatch failed",
			zap.Int64("orderID", order.ID),
			zap.Error(err),
		)
	}
	d.notifier.TrySend(ctx, d.chats.Supplier, fmt.Sprintf(
		"❌ Supplier API Request Failed\nID: %d\nEmail: %s\nError: %v",
		order.ID, order.Email, cause,
	), telegram.ModePlain)
	return nil
}

func (d *Dispatcher) dispatchManual(ctx context.Context, order data.Order) error {
	d.notifier.TrySend(ctx, d.chats.Manual, fmt.Sprintf(
		"⚡️ New Order to %s\n\n"+
			"🆔 %d\n"+
			"📧 Email: %s\n"+
			"📦 Service: %s\n"+
			"🔢 Quantity: %d\n"+
			"🔗 Link: %s\n"+
			"⏳ Remain: %d\n"+
			"💰 Sell Charge (USD): %s\n"+
			"💵 Sell Charge (MMK): %s\n"+
			"🏷 Supplier: %s\n"+
			"🕒 Created: %s",
		order.SupplierName, order.ID, order.Email, order.ServiceName,
		order.Quantity, order.Link, order.Remain,
		money(order.SellCharge), mmk(order.SellCharge, d.usdToMMK),
		order.SupplierName, order.CreatedAt.Format("2006-01-02 15:04:05"),
	), telegram.ModePlain)
	if err := d.repo.SetOrderStatus(ctx, order.ID, data.OrderProcessing); err != nil {
		return fmt.Errorf("failed to mark order %d processing: %w", order.ID, err)
	}
	return nil
}
