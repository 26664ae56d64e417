package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/internal/sender/telegram"
	"github.com/K2-bot/sender/pkg/logging"
	"go.uber.org/zap"
)

type ReportRepository interface {
	GetSoldServices(ctx context.Context) ([]data.Service, error)
	ResetServiceSoldQty(ctx context.Context, id int64) error
	SumUserBalances(ctx context.Context) (decimal.Decimal, error)
}

type DocumentSender interface {
	SendDocument(ctx context.Context, chatID int64, filename string, contents []byte) error
}

// Report builds the daily profit summary from sold-quantity counters and
// resets them afterwards.
type Report struct {
	repo        ReportRepository
	notifier    Notifier
	documents   DocumentSender
	chats       Chats
	usdToMMK    decimal.Decimal
	defaultPerQ int64
	logger      *logging.ZapLogger
}

func NewReport(
	repo ReportRepository,
	notifier Notifier,
	documents DocumentSender,
	chats Chats,
	usdToMMK decimal.Decimal,
	defaultPerQuantity int64,
	logger *logging.ZapLogger,
) *Report {
	if defaultPerQuantity <= 0 {
		defaultPerQuantity = 1000
	}
	return &Report{
		repo:        repo,
		notifier:    notifier,
		documents:   documents,
		chats:       chats,
		usdToMMK:    usdToMMK,
		defaultPerQ: defaultPerQuantity,
		logger:      logger,
	}
}

type reportLine struct {
	Service data.Service
	Profit  decimal.Decimal
}

// Run produces the report for everything sold since the previous run,
// publishes the summary and a CSV attachment, and zeroes the counters.
func (s *Report) Run(ctx context.Context) error {
	services, err := s.repo.GetSoldServices(ctx)
	if err != nil {
		return fmt.Errorf("loading sold services failed: %w", err)
	}
	if len(services) == 0 {
		s.notifier.TrySend(ctx, s.chats.Report, "📊 Daily Report: no sales recorded", telegram.ModePlain)
		return nil
	}

	lines := make([]reportLine, 0, len(services))
	totalProfit := decimal.Zero
	var totalQty int64
	for _, svc := range services {
		profit := s.profitOf(svc)
		lines = append(lines, reportLine{Service: svc, Profit: profit})
		totalProfit = totalProfit.Add(profit)
		totalQty += svc.TotalSoldQty
	}

	balances, err := s.repo.SumUserBalances(ctx)
	if err != nil {
		return fmt.Errorf("summing user balances failed: %w", err)
	}

	if doc, err := s.buildCSV(lines, totalProfit, balances); err != nil {
		s.logger.ErrorCtx(ctx, "report CSV build failed", zap.Error(err))
	} else {
		name := fmt.Sprintf("report-%s.csv", time.Now().UTC().Format("2006-01-02"))
		if err := s.documents.SendDocument(ctx, s.chats.Report, name, doc); err != nil {
			s.logger.ErrorCtx(ctx, "report CSV send failed", zap.Error(err))
		}
	}

	s.notifier.TrySend(ctx, s.chats.Report, s.summary(lines, totalQty, totalProfit, balances), telegram.ModeHTML)

	for _, line := range lines {
		if err := s.repo.ResetServiceSoldQty(ctx, line.Service.ID); err != nil {
			s.logger.ErrorCtx(ctx, "sold counter reset failed",
				zap.Int64("serviceID", line.Service.ID), zap.Error(err))
		}
	}
	return nil
}

// profitOf computes margin for one service over the reported period. Prices
// are per PerQuantity units, so the margin is scaled down before applying
// the sold quantity.
func (s *Report) profitOf(svc data.Service) decimal.Decimal {
	perQ := svc.PerQuantity
	if perQ <= 0 {
		perQ = s.defaultPerQ
	}
	margin := svc.SellPrice.Sub(svc.BuyPrice).Div(decimal.NewFromInt(perQ))
	return margin.Mul(decimal.NewFromInt(svc.TotalSoldQty))
}

func (s *Report) summary(lines []reportLine, totalQty int64, totalProfit, balances decimal.Decimal) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "📊 <b>Daily Profit Report</b>\n\n")
	for _, line := range lines {
		fmt.Fprintf(&b, "• %s: qty %d, profit $%s\n",
			telegram.EscapeHTML(line.Service.Name), line.Service.TotalSoldQty, money(line.Profit))
	}
	fmt.Fprintf(&b, "\n🧮 Total quantity = %d\n", totalQty)
	fmt.Fprintf(&b, "💰 Total profit USD = %s\n", money(totalProfit))
	fmt.Fprintf(&b, "🇲🇲 Total profit MMK = %s\n", mmk(totalProfit, s.usdToMMK))
	fmt.Fprintf(&b, "🏦 User balances held = %s", money(balances))
	return b.String()
}

func (s *Report) buildCSV(lines []reportLine, totalProfit, balances decimal.Decimal) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"service", "source", "sold_qty", "buy_price", "sell_price", "profit_usd"}); err != nil {
		return nil, err
	}
	for _, line := range lines {
		record := []string{
			line.Service.Name,
			line.Service.Source,
			strconv.FormatInt(line.Service.TotalSoldQty, 10),
			money(line.Service.BuyPrice),
			money(line.Service.SellPrice),
			money(line.Profit),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	if err := w.Write([]string{"total", "", "", "", "", money(totalProfit)}); err != nil {
		return nil, err
	}
	if err := w.Write([]string{"user_balances", "", "", "", "", money(balances)}); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
