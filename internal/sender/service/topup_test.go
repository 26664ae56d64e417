package service

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/K2-bot/sender/internal/sender/data"
)

type txManagerStub struct {
	calls int
}

func (m *txManagerStub) DoWithTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	m.calls++
	return f(ctx)
}

type topupRepoStub struct {
	transactions  map[int64]data.Transaction
	verifications []data.PaymentVerification
	statuses      map[int64]data.TransactionStatus
	usedIDs       []int64
	usedRefs      []string
}

func newTopupRepoStub() *topupRepoStub {
	return &topupRepoStub{
		transactions: make(map[int64]data.Transaction),
		statuses:     make(map[int64]data.TransactionStatus),
	}
}

func (s *topupRepoStub) GetTransaction(_ context.Context, id int64) (data.Transaction, error) {
	tx, ok := s.transactions[id]
	if !ok {
		return data.Transaction{}, data.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *topupRepoStub) SetTransactionStatus(_ context.Context, id int64, status data.TransactionStatus) error {
	s.statuses[id] = status
	return nil
}

func (s *topupRepoStub) FindUnusedVerification(
	_ context.Context, method string, amount decimal.Decimal, transactionID string,
) (data.PaymentVerification, error) {
	for _, vp := range s.verifications {
		if vp.Status == data.VerificationUnused &&
			vp.Method == method &&
			vp.AmountUSD.Equal(amount) &&
			vp.TransactionID == transactionID {
			return vp, nil
		}
	}
	return data.PaymentVerification{}, data.ErrVerificationNotFound
}

func (s *topupRepoStub) FindUnusedVerificationByRef(_ context.Context, transactionID string) (data.PaymentVerification, error) {
	for _, vp := range s.verifications {
		if vp.Status == data.VerificationUnused && vp.TransactionID == transactionID {
			return vp, nil
		}
	}
	return data.PaymentVerification{}, data.ErrVerificationNotFound
}

func (s *topupRepoStub) MarkVerificationUsed(_ context.Context, id int64) error {
	s.usedIDs = append(s.usedIDs, id)
	return nil
}

func (s *topupRepoStub) MarkVerificationUsedByRef(_ context.Context, transactionID string) error {
	s.usedRefs = append(s.usedRefs, transactionID)
	return nil
}

func newTestTopUp(t *testing.T) (*TopUp, *topupRepoStub, *ledgerStub, *txManagerStub, *notifierStub) {
	t.Helper()
	repo := newTopupRepoStub()
	ledger := newLedgerStub()
	manager := &txManagerStub{}
	notifier := &notifierStub{}
	topup := NewTopUp(repo, manager, ledger, notifier, Chats{}, decimal.NewFromInt(4500), testLogger(t))
	return topup, repo, ledger, manager, notifier
}

func TestTopUpVerifyMatch(t *testing.T) {
	topup, repo, ledger, manager, notifier := newTestTopUp(t)

	repo.verifications = []data.PaymentVerification{{
		ID:            5,
		Method:        "KPay",
		AmountUSD:     decimal.NewFromInt(20),
		TransactionID: "ref-1",
		Status:        data.VerificationUnused,
	}}
	tx := data.Transaction{
		ID:            31,
		Email:         "u@example.com",
		Method:        "KPay",
		Amount:        decimal.NewFromInt(20),
		TransactionID: "ref-1",
	}
	require.NoError(t, topup.Verify(context.Background(), tx))

	assert.True(t, ledger.adjustments["u@example.com"].Equal(decimal.NewFromInt(20)))
	assert.Equal(t, []int64{5}, repo.usedIDs)
	assert.Equal(t, data.TransactionAccepted, repo.statuses[31])
	assert.Equal(t, 1, manager.calls)
	assert.NotEmpty(t, notifier.messages)
}

func TestTopUpVerifyNoMatch(t *testing.T) {
	topup, repo, ledger, _, notifier := newTestTopUp(t)

	tx := data.Transaction{
		ID:            32,
		Email:         "u@example.com",
		Method:        "Wave",
		Amount:        decimal.NewFromInt(7),
		TransactionID: "ref-2",
	}
	require.NoError(t, topup.Verify(context.Background(), tx))

	assert.Equal(t, data.TransactionUnverified, repo.statuses[32])
	assert.Empty(t, ledger.adjustments)
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "/Yes 32")
	assert.Contains(t, notifier.messages[0], "/No 32")
}

func TestTopUpApprove(t *testing.T) {
	topup, repo, ledger, _, _ := newTestTopUp(t)

	repo.transactions[33] = data.Transaction{
		ID:            33,
		Email:         "u@example.com",
		Amount:        decimal.NewFromInt(15),
		TransactionID: "ref-3",
		Status:        data.TransactionUnverified,
	}
	require.NoError(t, topup.Approve(context.Background(), 33))

	assert.True(t, ledger.adjustments["u@example.com"].Equal(decimal.NewFromInt(15)))
	assert.Equal(t, data.TransactionAccepted, repo.statuses[33])
	assert.Equal(t, []string{"ref-3"}, repo.usedRefs)
}

func TestTopUpApproveUnknownTransaction(t *testing.T) {
	topup, _, ledger, _, _ := newTestTopUp(t)

	err := topup.Approve(context.Background(), 999)
	require.ErrorIs(t, err, data.ErrTransactionNotFound)
	assert.Empty(t, ledger.adjustments)
}

func TestTopUpReject(t *testing.T) {
	topup, repo, ledger, _, _ := newTestTopUp(t)

	require.NoError(t, topup.Reject(context.Background(), 34))

	assert.Equal(t, data.TransactionFailed, repo.statuses[34])
	assert.Empty(t, ledger.adjustments)
}

func TestTopUpConsumeVerification(t *testing.T) {
	topup, repo, _, _, notifier := newTestTopUp(t)

	repo.verifications = []data.PaymentVerification{{
		ID:            9,
		TransactionID: "ref-9",
		Status:        data.VerificationUnused,
	}}
	require.NoError(t, topup.ConsumeVerification(context.Background(), "ref-9"))

	assert.Equal(t, []int64{9}, repo.usedIDs)
	require.Len(t, notifier.messages, 1)
	assert.True(t, strings.Contains(notifier.messages[0], "ref-9"))
}

func TestTopUpConsumeVerificationMissing(t *testing.T) {
	topup, _, _, _, _ := newTestTopUp(t)

	err := topup.ConsumeVerification(context.Background(), "ghost")
	require.ErrorIs(t, err, data.ErrVerificationNotFound)
}
