package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/K2-bot/sender/internal/sender/data"
)

type reportRepoStub struct {
	services []data.Service
	balances decimal.Decimal
	resetIDs []int64
}

func (s *reportRepoStub) GetSoldServices(_ context.Context) ([]data.Service, error) {
	return s.services, nil
}

func (s *reportRepoStub) ResetServiceSoldQty(_ context.Context, id int64) error {
	s.resetIDs = append(s.resetIDs, id)
	return nil
}

func (s *reportRepoStub) SumUserBalances(_ context.Context) (decimal.Decimal, error) {
	return s.balances, nil
}

type documentsStub struct {
	names    []string
	contents [][]byte
}

func (d *documentsStub) SendDocument(_ context.Context, _ int64, filename string, contents []byte) error {
	d.names = append(d.names, filename)
	d.contents = append(d.contents, contents)
	return nil
}

func TestReportRun(t *testing.T) {
	repo := &reportRepoStub{
		services: []data.Service{
			{ID: 1, Name: "TG Members", SellPrice: decimal.NewFromInt(5), BuyPrice: decimal.NewFromInt(3), PerQuantity: 1000, TotalSoldQty: 2000},
			{ID: 2, Name: "IG Likes", SellPrice: decimal.NewFromInt(2), BuyPrice: decimal.NewFromInt(1), PerQuantity: 100, TotalSoldQty: 300},
		},
		balances: decimal.NewFromInt(77),
	}
	notifier := &notifierStub{}
	documents := &documentsStub{}
	report := NewReport(repo, notifier, documents, Chats{}, decimal.NewFromInt(4500), 1000, testLogger(t))

	require.NoError(t, report.Run(context.Background()))

	// (5-3)/1000*2000 = 4, (2-1)/100*300 = 3
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "Total profit USD = 7.0000")
	assert.Contains(t, notifier.messages[0], "User balances held = 77.0000")
	assert.ElementsMatch(t, []int64{1, 2}, repo.resetIDs)

	require.Len(t, documents.contents, 1)
	csv := string(documents.contents[0])
	assert.Contains(t, csv, "TG Members")
	assert.Contains(t, csv, "4.0000")
	assert.Contains(t, documents.names[0], "report-")
}

func TestReportDefaultPerQuantity(t *testing.T) {
	repo := &reportRepoStub{
		services: []data.Service{
			{ID: 3, Name: "Views", SellPrice: decimal.NewFromInt(10), BuyPrice: decimal.NewFromInt(6), TotalSoldQty: 500},
		},
	}
	notifier := &notifierStub{}
	report := NewReport(repo, notifier, &documentsStub{}, Chats{}, decimal.NewFromInt(4500), 200, testLogger(t))

	require.NoError(t, report.Run(context.Background()))

	// per-quantity falls back to the configured 200: (10-6)/200*500 = 10
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "Total profit USD = 10.0000")
}

func TestReportNoSales(t *testing.T) {
	repo := &reportRepoStub{}
	notifier := &notifierStub{}
	documents := &documentsStub{}
	report := NewReport(repo, notifier, documents, Chats{}, decimal.NewFromInt(4500), 0, testLogger(t))

	require.NoError(t, report.Run(context.Background()))

	assert.Empty(t, repo.resetIDs)
	assert.Empty(t, documents.contents)
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "no sales")
}
