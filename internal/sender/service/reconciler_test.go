package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/internal/sender/telegram"
	"github.com/K2-bot/sender/pkg/logging"
)

type reconcilerRepoStub struct {
	services     map[string]data.Service
	usersByEmail map[string]data.User
	usersByID    map[int64]data.User
	soldDelta    map[int64]int64
	withdrawable map[int64]decimal.Decimal
	refunds      map[int64]decimal.Decimal
}

func newReconcilerRepoStub() *reconcilerRepoStub {
	return &reconcilerRepoStub{
		services:     make(map[string]data.Service),
		usersByEmail: make(map[string]data.User),
		usersByID:    make(map[int64]data.User),
		soldDelta:    make(map[int64]int64),
		withdrawable: make(map[int64]decimal.Decimal),
		refunds:      make(map[int64]decimal.Decimal),
	}
}

func (s *reconcilerRepoStub) GetServiceByName(_ context.Context, name string) (data.Service, error) {
	svc, ok := s.services[name]
	if !ok {
		return data.Service{}, data.ErrServiceNotFound
	}
	return svc, nil
}

func (s *reconcilerRepoStub) AddServiceSoldQty(_ context.Context, serviceID int64, delta int64) error {
	s.soldDelta[serviceID] += delta
	return nil
}

func (s *reconcilerRepoStub) GetUserByEmail(_ context.Context, email string) (data.User, error) {
	user, ok := s.usersByEmail[email]
	if !ok {
		return data.User{}, data.ErrUserNotFound
	}
	return user, nil
}

func (s *reconcilerRepoStub) GetUserByID(_ context.Context, id int64) (data.User, error) {
	user, ok := s.usersByID[id]
	if !ok {
		return data.User{}, data.ErrUserNotFound
	}
	return user, nil
}

func (s *reconcilerRepoStub) SetUserTotalSpend(_ context.Context, email string, value decimal.Decimal) error {
	user := s.usersByEmail[email]
	user.TotalSpend = value
	s.usersByEmail[email] = user
	return nil
}

func (s *reconcilerRepoStub) SetUserWithdrawable(_ context.Context, userID int64, value decimal.Decimal) error {
	s.withdrawable[userID] = value
	return nil
}

func (s *reconcilerRepoStub) SetOrderRefunded(_ context.Context, orderID int64, refund decimal.Decimal) error {
	s.refunds[orderID] = refund
	return nil
}

type ledgerStub struct {
	adjustments map[string]decimal.Decimal
}

func newLedgerStub() *ledgerStub {
	return &ledgerStub{adjustments: make(map[string]decimal.Decimal)}
}

func (l *ledgerStub) Adjust(_ context.Context, email string, delta decimal.Decimal) error {
	l.adjustments[email] = l.adjustments[email].Add(delta)
	return nil
}

type notifierStub struct {
	messages []string
}

func (n *notifierStub) TrySend(_ context.Context, _ int64, text string, _ telegram.ParseMode) {
	n.messages = append(n.messages, text)
}

func testLogger(t *testing.T) *logging.ZapLogger {
	t.Helper()
	logger, err := logging.NewZapLogger(zapcore.ErrorLevel)
	require.NoError(t, err)
	return logger
}

func newTestReconciler(t *testing.T) (*Reconciler, *reconcilerRepoStub, *ledgerStub, *notifierStub) {
	t.Helper()
	repo := newReconcilerRepoStub()
	ledger := newLedgerStub()
	notifier := &notifierStub{}
	rec := NewReconciler(repo, ledger, notifier, Chats{}, testLogger(t))
	return rec, repo, ledger, notifier
}

func TestReconcilerCompleted(t *testing.T) {
	rec, repo, ledger, _ := newTestReconciler(t)

	repo.services["TG Members"] = data.Service{ID: 7, Name: "TG Members"}
	repo.usersByEmail["u@example.com"] = data.User{
		ID:         1,
		Email:      "u@example.com",
		TotalSpend: decimal.NewFromInt(50),
		RefOwnerID: 2,
	}
	repo.usersByID[2] = data.User{ID: 2, WithdrawableBalance: decimal.NewFromInt(1)}

	order := data.Order{
		ID:          11,
		Email:       "u@example.com",
		ServiceName: "TG Members",
		Quantity:    1000,
		SellCharge:  decimal.NewFromInt(5),
	}
	err := rec.Apply(context.Background(), order, data.OrderProcessing, data.OrderCompleted)
	require.NoError(t, err)

	assert.EqualValues(t, 1000, repo.soldDelta[7])
	assert.True(t, repo.usersByEmail["u@example.com"].TotalSpend.Equal(decimal.NewFromInt(55)),
		"total spend should grow by the sell charge")
	// 4% of $5 on top of the owner's existing $1
	assert.True(t, repo.withdrawable[2].Equal(decimal.RequireFromString("1.2")))
	// 1% loyalty bonus, spend is above the threshold
	assert.True(t, ledger.adjustments["u@example.com"].Equal(decimal.RequireFromString("0.05")))
}

func TestReconcilerCompletedNoLoyaltyBelowThreshold(t *testing.T) {
	rec, repo, ledger, _ := newTestReconciler(t)

	repo.services["Likes"] = data.Service{ID: 3, Name: "Likes"}
	repo.usersByEmail["new@example.com"] = data.User{
		ID:         1,
		Email:      "new@example.com",
		TotalSpend: decimal.NewFromInt(2),
	}

	order := data.Order{
		ID:          12,
		Email:       "new@example.com",
		ServiceName: "Likes",
		Quantity:    100,
		SellCharge:  decimal.NewFromInt(1),
	}
	err := rec.Apply(context.Background(), order, data.OrderPending, data.OrderCompleted)
	require.NoError(t, err)

	assert.True(t, ledger.adjustments["new@example.com"].IsZero())
}

func TestReconcilerRefundAfterCompleted(t *testing.T) {
	rec, repo, ledger, _ := newTestReconciler(t)

	repo.services["Views"] = data.Service{ID: 4, Name: "Views"}
	repo.usersByEmail["u@example.com"] = data.User{
		ID:         1,
		Email:      "u@example.com",
		TotalSpend: decimal.NewFromInt(100),
	}

	order := data.Order{
		ID:          13,
		Email:       "u@example.com",
		ServiceName: "Views",
		Quantity:    1000,
		Remain:      400,
		SellCharge:  decimal.NewFromInt(10),
	}
	err := rec.Apply(context.Background(), order, data.OrderCompleted, data.OrderPartial)
	require.NoError(t, err)

	// 400 of 1000 undelivered: refund 40% of $10
	refund := decimal.NewFromInt(4)
	assert.EqualValues(t, -1000, repo.soldDelta[4])
	assert.True(t, ledger.adjustments["u@example.com"].Equal(refund))
	assert.True(t, repo.refunds[13].Equal(refund))
	assert.True(t, repo.usersByEmail["u@example.com"].TotalSpend.Equal(decimal.NewFromInt(96)))
}

func TestReconcilerRefundFullWhenNothingRemains(t *testing.T) {
	rec, repo, ledger, _ := newTestReconciler(t)

	repo.services["Views"] = data.Service{ID: 4, Name: "Views"}
	repo.usersByEmail["u@example.com"] = data.User{
		ID:         1,
		Email:      "u@example.com",
		TotalSpend: decimal.NewFromInt(3),
	}

	order := data.Order{
		ID:          14,
		Email:       "u@example.com",
		ServiceName: "Views",
		Quantity:    500,
		Remain:      0,
		SellCharge:  decimal.NewFromInt(8),
	}
	err := rec.Apply(context.Background(), order, data.OrderCompleted, data.OrderRefunded)
	require.NoError(t, err)

	assert.True(t, ledger.adjustments["u@example.com"].Equal(decimal.NewFromInt(8)))
	// spend clamps at zero instead of going negative
	assert.True(t, repo.usersByEmail["u@example.com"].TotalSpend.IsZero())
}

func TestReconcilerClosedBeforeCompleted(t *testing.T) {
	rec, repo, ledger, _ := newTestReconciler(t)

	repo.services["Subs"] = data.Service{ID: 5, Name: "Subs"}
	repo.usersByEmail["u@example.com"] = data.User{
		ID:         1,
		Email:      "u@example.com",
		TotalSpend: decimal.NewFromInt(20),
	}

	order := data.Order{
		ID:          15,
		Email:       "u@example.com",
		ServiceName: "Subs",
		Quantity:    1000,
		Remain:      250,
		SellCharge:  decimal.NewFromInt(4),
	}
	err := rec.Apply(context.Background(), order, data.OrderProcessing, data.OrderPartial)
	require.NoError(t, err)

	refund := decimal.NewFromInt(1)
	spendAdded := decimal.NewFromInt(3)

	assert.EqualValues(t, 750, repo.soldDelta[5])
	assert.True(t, ledger.adjustments["u@example.com"].Equal(refund))
	assert.True(t, repo.refunds[15].Equal(refund))
	assert.True(t, repo.usersByEmail["u@example.com"].TotalSpend.Equal(decimal.NewFromInt(23)))
	// what the user keeps paying plus what comes back equals the original charge
	assert.True(t, spendAdded.Add(refund).Equal(order.SellCharge))
}

func TestReconcilerSameStatusIsNoOp(t *testing.T) {
	rec, repo, ledger, notifier := newTestReconciler(t)

	repo.services["Subs"] = data.Service{ID: 5, Name: "Subs"}

	order := data.Order{ID: 16, ServiceName: "Subs", Quantity: 10, SellCharge: decimal.NewFromInt(1)}
	err := rec.Apply(context.Background(), order, data.OrderCompleted, data.OrderCompleted)
	require.NoError(t, err)

	assert.Empty(t, repo.soldDelta)
	assert.Empty(t, ledger.adjustments)
	assert.Empty(t, notifier.messages)
}

func TestReconcilerNormalizesStatusSpelling(t *testing.T) {
	rec, repo, _, _ := newTestReconciler(t)

	repo.services["Subs"] = data.Service{ID: 5, Name: "Subs"}
	repo.usersByEmail["u@example.com"] = data.User{ID: 1, Email: "u@example.com"}

	order := data.Order{
		ID:          17,
		Email:       "u@example.com",
		ServiceName: "Subs",
		Quantity:    100,
		Remain:      100,
		SellCharge:  decimal.NewFromInt(2),
	}
	err := rec.Apply(context.Background(), order, data.OrderProcessing, data.OrderStatus("CANCELLED"))
	require.NoError(t, err)

	assert.True(t, repo.refunds[17].Equal(decimal.NewFromInt(2)))
}

func TestReconcilerMissingServiceAborts(t *testing.T) {
	rec, repo, ledger, _ := newTestReconciler(t)

	order := data.Order{ID: 18, ServiceName: "Ghost", Quantity: 10, SellCharge: decimal.NewFromInt(1)}
	err := rec.Apply(context.Background(), order, data.OrderProcessing, data.OrderCompleted)
	require.Error(t, err)

	assert.Empty(t, repo.soldDelta)
	assert.Empty(t, ledger.adjustments)
}

func TestReconcilerMissingUserStillCountsSales(t *testing.T) {
	rec, repo, _, _ := newTestReconciler(t)

	repo.services["Subs"] = data.Service{ID: 5, Name: "Subs"}

	order := data.Order{
		ID:          19,
		Email:       "gone@example.com",
		ServiceName: "Subs",
		Quantity:    100,
		SellCharge:  decimal.NewFromInt(2),
	}
	err := rec.Apply(context.Background(), order, data.OrderProcessing, data.OrderCompleted)
	require.NoError(t, err)

	assert.EqualValues(t, 100, repo.soldDelta[5])
}
