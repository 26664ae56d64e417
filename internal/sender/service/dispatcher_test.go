package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/K2-bot/sender/internal/sender/data"
)

type dispatcherRepoStub struct {
	dispatched map[int64]string
	statuses   map[int64]data.OrderStatus
	failed     map[int64]bool
}

func newDispatcherRepoStub() *dispatcherRepoStub {
	return &dispatcherRepoStub{
		dispatched: make(map[int64]string),
		statuses:   make(map[int64]data.OrderStatus),
		failed:     make(map[int64]bool),
	}
}

func (s *dispatcherRepoStub) SetOrderDispatched(_ context.Context, id int64, supplierOrderID string) error {
	s.dispatched[id] = supplierOrderID
	return nil
}

func (s *dispatcherRepoStub) SetOrderStatus(_ context.Context, id int64, status data.OrderStatus) error {
	s.statuses[id] = status
	return nil
}

func (s *dispatcherRepoStub) SetOrderFailedDispatch(_ context.Context, id int64) error {
	s.failed[id] = true
	return nil
}

type supplierStub struct {
	ref    string
	err    error
	placed []data.Order
}

func (s *supplierStub) PlaceOrder(_ context.Context, order data.Order) (string, error) {
	s.placed = append(s.placed, order)
	if s.err != nil {
		return "", s.err
	}
	return s.ref, nil
}

type applierStub struct {
	applied []struct {
		order    data.Order
		old, new data.OrderStatus
	}
}

func (a *applierStub) Apply(_ context.Context, order data.Order, oldStatus, newStatus data.OrderStatus) error {
	a.applied = append(a.applied, struct {
		order    data.Order
		old, new data.OrderStatus
	}{order, oldStatus, newStatus})
	return nil
}

func newTestDispatcher(t *testing.T, api *supplierStub) (*Dispatcher, *dispatcherRepoStub, *applierStub, *notifierStub) {
	t.Helper()
	repo := newDispatcherRepoStub()
	applier := &applierStub{}
	notifier := &notifierStub{}
	d := NewDispatcher(repo, api, applier, notifier, Chats{}, decimal.NewFromInt(4500), testLogger(t))
	return d, repo, applier, notifier
}

func TestDispatchAutomatedSuccess(t *testing.T) {
	api := &supplierStub{ref: "98765"}
	d, repo, _, notifier := newTestDispatcher(t, api)

	order := data.Order{
		ID:           21,
		SupplierName: data.SupplierSMMGen,
		SellCharge:   decimal.NewFromInt(3),
	}
	err := d.Dispatch(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, "98765", repo.dispatched[21])
	assert.Len(t, api.placed, 1)
	assert.NotEmpty(t, notifier.messages)
}

func TestDispatchSkipsAlreadySubmitted(t *testing.T) {
	api := &supplierStub{ref: "98765"}
	d, repo, _, _ := newTestDispatcher(t, api)

	order := data.Order{
		ID:              22,
		SupplierName:    data.SupplierSMMGen,
		SupplierOrderID: "55555",
	}
	err := d.Dispatch(context.Background(), order)
	require.NoError(t, err)

	assert.Empty(t, api.placed)
	assert.Empty(t, repo.dispatched)
}

func TestDispatchFailureCancelsOrder(t *testing.T) {
	api := &supplierStub{err: errors.New("supplier unavailable")}
	d, repo, applier, notifier := newTestDispatcher(t, api)

	order := data.Order{
		ID:           23,
		SupplierName: data.SupplierSMMGen,
		Status:       data.OrderPending,
	}
	// a dispatch failure is handled, not propagated, so the polling loop
	// moves on to the next order
	err := d.Dispatch(context.Background(), order)
	require.NoError(t, err)

	assert.True(t, repo.failed[23])
	require.Len(t, applier.applied, 1)
	assert.Equal(t, data.OrderPending, applier.applied[0].old)
	assert.Equal(t, data.OrderCanceled, applier.applied[0].new)
	assert.NotEmpty(t, notifier.messages)
}

func TestDispatchManualSupplier(t *testing.T) {
	api := &supplierStub{}
	d, repo, _, notifier := newTestDispatcher(t, api)

	order := data.Order{
		ID:           24,
		SupplierName: data.SupplierK2Boost,
	}
	err := d.Dispatch(context.Background(), order)
	require.NoError(t, err)

	assert.Empty(t, api.placed)
	assert.Equal(t, data.OrderProcessing, repo.statuses[24])
	assert.NotEmpty(t, notifier.messages)
}
