package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/internal/sender/supplier"
	"github.com/K2-bot/sender/internal/sender/telegram"
	"github.com/K2-bot/sender/pkg/logging"
)

func testLogger(t *testing.T) *logging.ZapLogger {
	t.Helper()
	logger, err := logging.NewZapLogger(zapcore.ErrorLevel)
	require.NoError(t, err)
	return logger
}

type pendingOrdersStub struct {
	orders []data.Order
}

func (s *pendingOrdersStub) GetPendingOrders(_ context.Context) ([]data.Order, error) {
	return s.orders, nil
}

type dispatcherSpy struct {
	dispatched []int64
}

func (d *dispatcherSpy) Dispatch(_ context.Context, order data.Order) error {
	d.dispatched = append(d.dispatched, order.ID)
	return nil
}

func TestOrdersMonitorDispatchesAllPending(t *testing.T) {
	repo := &pendingOrdersStub{orders: []data.Order{{ID: 1}, {ID: 2}, {ID: 3}}}
	spy := &dispatcherSpy{}
	m := NewOrdersMonitor(repo, spy, testLogger(t))

	require.NoError(t, m.Tick(context.Background()))

	assert.Equal(t, []int64{1, 2, 3}, spy.dispatched)
}

func TestOrdersMonitorSkipsInFlight(t *testing.T) {
	repo := &pendingOrdersStub{orders: []data.Order{{ID: 1}, {ID: 2}}}
	spy := &dispatcherSpy{}
	m := NewOrdersMonitor(repo, spy, testLogger(t))

	m.inFlight.Add(1)
	require.NoError(t, m.Tick(context.Background()))

	assert.Equal(t, []int64{2}, spy.dispatched)
}

type affiliatesRepoStub struct {
	pending  []data.Affiliate
	lastSeen []int64
}

func (s *affiliatesRepoStub) GetPendingAffiliatesAfter(_ context.Context, lastID int64) ([]data.Affiliate, error) {
	s.lastSeen = append(s.lastSeen, lastID)
	var out []data.Affiliate
	for _, aff := range s.pending {
		if aff.ID > lastID {
			out = append(out, aff)
		}
	}
	return out, nil
}

type affiliateHandlerSpy struct {
	handled []int64
}

func (h *affiliateHandlerSpy) HandlePending(_ context.Context, aff data.Affiliate) error {
	h.handled = append(h.handled, aff.ID)
	return nil
}

func TestAffiliatesMonitorWatermark(t *testing.T) {
	repo := &affiliatesRepoStub{pending: []data.Affiliate{{ID: 4}, {ID: 7}}}
	spy := &affiliateHandlerSpy{}
	m := NewAffiliatesMonitor(repo, spy, testLogger(t))

	require.NoError(t, m.Tick(context.Background()))
	// second pass must not re-announce requests still sitting Pending
	require.NoError(t, m.Tick(context.Background()))

	assert.Equal(t, []int64{4, 7}, spy.handled)
	assert.Equal(t, []int64{0, 7}, repo.lastSeen)
}

type ticketsRepoStub struct {
	tickets []data.SupportTicket
}

func (s *ticketsRepoStub) GetPendingTickets(_ context.Context) ([]data.SupportTicket, error) {
	return s.tickets, nil
}

type announcerSpy struct {
	announced []int64
}

func (a *announcerSpy) Announce(_ context.Context, ticket data.SupportTicket) {
	a.announced = append(a.announced, ticket.ID)
}

func TestSupportMonitorWatermark(t *testing.T) {
	repo := &ticketsRepoStub{}
	spy := &announcerSpy{}
	m := NewSupportMonitor(repo, spy, testLogger(t))
	m.lastSeen = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	repo.tickets = []data.SupportTicket{
		{ID: 1, CreatedAt: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)},
		{ID: 2, CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
		{ID: 3, CreatedAt: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, m.Tick(context.Background()))
	require.NoError(t, m.Tick(context.Background()))

	assert.Equal(t, []int64{2, 3}, spy.announced)
}

type transactionsRepoStub struct {
	pending  []data.Transaction
	stuck    []data.Transaction
	statuses map[int64]data.TransactionStatus
}

func (s *transactionsRepoStub) GetPendingTransactions(_ context.Context) ([]data.Transaction, error) {
	return s.pending, nil
}

func (s *transactionsRepoStub) SetTransactionStatus(_ context.Context, id int64, status data.TransactionStatus) error {
	s.statuses[id] = status
	return nil
}

func (s *transactionsRepoStub) GetStuckTransactions(_ context.Context, _ time.Time) ([]data.Transaction, error) {
	return s.stuck, nil
}

type verifierSpy struct {
	verified []int64
}

func (v *verifierSpy) Verify(_ context.Context, tx data.Transaction) error {
	v.verified = append(v.verified, tx.ID)
	return nil
}

type alerterSpy struct {
	messages []string
}

func (a *alerterSpy) TrySend(_ context.Context, _ int64, text string, _ telegram.ParseMode) {
	a.messages = append(a.messages, text)
}

type supplierStateCall struct {
	id         int64
	remain     int64
	startCount int64
	buyCharge  decimal.Decimal
	status     data.OrderStatus
}

type dispatchedOrdersStub struct {
	orders []data.Order
	calls  []supplierStateCall
}

func (s *dispatchedOrdersStub) GetDispatchedOrders(_ context.Context, _ string) ([]data.Order, error) {
	return s.orders, nil
}

func (s *dispatchedOrdersStub) SetOrderSupplierState(
	_ context.Context, id int64, remain, startCount int64, buyCharge decimal.Decimal, status data.OrderStatus,
) error {
	s.calls = append(s.calls, supplierStateCall{id, remain, startCount, buyCharge, status})
	return nil
}

type supplierStatusStub struct {
	status supplier.OrderStatus
}

func (s *supplierStatusStub) GetOrderStatus(_ context.Context, _ string) (supplier.OrderStatus, error) {
	return s.status, nil
}

type transitionCall struct {
	oldStatus data.OrderStatus
	newStatus data.OrderStatus
}

type reconcilerSpy struct {
	applied []transitionCall
}

func (r *reconcilerSpy) Apply(_ context.Context, _ data.Order, oldStatus, newStatus data.OrderStatus) error {
	r.applied = append(r.applied, transitionCall{oldStatus, newStatus})
	return nil
}

func supplierNum(s string) *supplier.Number {
	n := supplier.Number(s)
	return &n
}

func TestSupplierStatusMonitorKeepsStatusWhenOmitted(t *testing.T) {
	repo := &dispatchedOrdersStub{orders: []data.Order{
		{ID: 7, SupplierOrderID: "9001", Status: data.OrderProcessing, Remain: 500},
	}}
	api := &supplierStatusStub{status: supplier.OrderStatus{Remains: supplierNum("120")}}
	reconciler := &reconcilerSpy{}
	alerter := &alerterSpy{}
	m := NewSupplierStatusMonitor(repo, api, reconciler, alerter, 0, testLogger(t))

	require.NoError(t, m.Tick(context.Background()))

	require.Len(t, repo.calls, 1)
	assert.Equal(t, data.OrderProcessing, repo.calls[0].status)
	assert.Equal(t, int64(120), repo.calls[0].remain)
	assert.Empty(t, reconciler.applied)
	assert.Empty(t, alerter.messages)
}

func TestSupplierStatusMonitorAnnouncesStatusChange(t *testing.T) {
	repo := &dispatchedOrdersStub{orders: []data.Order{
		{ID: 7, SupplierOrderID: "9001", Status: data.OrderProcessing},
	}}
	api := &supplierStatusStub{status: supplier.OrderStatus{Status: "In progress"}}
	reconciler := &reconcilerSpy{}
	alerter := &alerterSpy{}
	m := NewSupplierStatusMonitor(repo, api, reconciler, alerter, 0, testLogger(t))

	require.NoError(t, m.Tick(context.Background()))

	require.Len(t, alerter.messages, 1)
	assert.Contains(t, alerter.messages[0], "Order #7 Status Changed")
	assert.Contains(t, alerter.messages[0], "Old: Processing")
	assert.Contains(t, alerter.messages[0], "New: In progress")
	assert.Equal(t, []transitionCall{{data.OrderProcessing, data.OrderStatus("In progress")}}, reconciler.applied)
}

func TestSupplierStatusMonitorSilentWhenStatusUnchanged(t *testing.T) {
	repo := &dispatchedOrdersStub{orders: []data.Order{
		{ID: 7, SupplierOrderID: "9001", Status: data.OrderProcessing},
	}}
	api := &supplierStatusStub{status: supplier.OrderStatus{Status: "processing", Remains: supplierNum("80")}}
	reconciler := &reconcilerSpy{}
	alerter := &alerterSpy{}
	m := NewSupplierStatusMonitor(repo, api, reconciler, alerter, 0, testLogger(t))

	require.NoError(t, m.Tick(context.Background()))

	require.Len(t, repo.calls, 1)
	assert.Equal(t, int64(80), repo.calls[0].remain)
	assert.Empty(t, reconciler.applied)
	assert.Empty(t, alerter.messages)
}

func TestTransactionsMonitorClaimsBeforeVerifying(t *testing.T) {
	repo := &transactionsRepoStub{
		pending:  []data.Transaction{{ID: 41}, {ID: 42}},
		statuses: make(map[int64]data.TransactionStatus),
	}
	verifier := &verifierSpy{}
	alerter := &alerterSpy{}
	m := NewTransactionsMonitor(repo, verifier, alerter, 0, time.Minute, testLogger(t))

	require.NoError(t, m.Tick(context.Background()))

	assert.Equal(t, data.TransactionChecking, repo.statuses[41])
	assert.Equal(t, data.TransactionChecking, repo.statuses[42])
	assert.Equal(t, []int64{41, 42}, verifier.verified)
}

func TestTransactionsMonitorAlertsStuckOnce(t *testing.T) {
	repo := &transactionsRepoStub{
		stuck:    []data.Transaction{{ID: 43, Email: "u@example.com"}},
		statuses: make(map[int64]data.TransactionStatus),
	}
	alerter := &alerterSpy{}
	m := NewTransactionsMonitor(repo, &verifierSpy{}, alerter, 0, time.Minute, testLogger(t))

	require.NoError(t, m.Tick(context.Background()))
	require.NoError(t, m.Tick(context.Background()))

	assert.Len(t, alerter.messages, 1)
}
