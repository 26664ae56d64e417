package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config collects everything the process needs from the environment. A
// local .env file is loaded first when present, then real environment
// variables win.
type Config struct {
	DatabaseURI string

	TelegramToken   string
	TelegramBaseURL string
	OpsChatID       int64
	NewsChatID      int64
	SupplierChatID  int64
	ManualChatID    int64
	ReportChatID    int64
	AdminChatIDs    []int64

	SupplierAPIKey  string
	SupplierBaseURL string
	SupplierRetries int

	USDToMMK           decimal.Decimal
	ReportPerQuantity  int64
	ReportSchedule     string
	RateCheckSchedule  string
	StuckCheckingAfter time.Duration

	OrdersPeriod       time.Duration
	SupplierPeriod     time.Duration
	TransactionsPeriod time.Duration
	AffiliatesPeriod   time.Duration
	SupportPeriod      time.Duration
	CommandPollTimeout time.Duration

	RunAddress      string
	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("TELEGRAM_BASE_URL", "https://api.telegram.org")
	v.SetDefault("SMMGEN_URL", "https://smmgen.com/api/v2")
	v.SetDefault("SMMGEN_RETRIES", 3)
	v.SetDefault("USD_TO_MMK", "4500")
	v.SetDefault("REPORT_PER_QUANTITY_DEFAULT", 1000)
	v.SetDefault("REPORT_SCHEDULE", "0 8 * * *")
	v.SetDefault("RATE_CHECK_SCHEDULE", "30 8 * * *")
	v.SetDefault("STUCK_CHECKING_AFTER", "10m")
	v.SetDefault("ORDERS_PERIOD", "3s")
	v.SetDefault("SUPPLIER_PERIOD", "60s")
	v.SetDefault("TRANSACTIONS_PERIOD", "5s")
	v.SetDefault("AFFILIATES_PERIOD", "15s")
	v.SetDefault("SUPPORT_PERIOD", "15s")
	v.SetDefault("COMMAND_POLL_TIMEOUT", "30s")
	v.SetDefault("RUN_ADDRESS", "localhost:8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	cfg := &Config{
		DatabaseURI:        v.GetString("DATABASE_URI"),
		TelegramToken:      v.GetString("TELEGRAM_TOKEN"),
		TelegramBaseURL:    v.GetString("TELEGRAM_BASE_URL"),
		OpsChatID:          v.GetInt64("GROUP_ID"),
		NewsChatID:         v.GetInt64("NEWS_GROUP_ID"),
		SupplierChatID:     v.GetInt64("SUPPLIER_GROUP_ID"),
		ManualChatID:       v.GetInt64("K2BOOST_GROUP_ID"),
		ReportChatID:       v.GetInt64("REPORT_GROUP_ID"),
		SupplierAPIKey:     v.GetString("SMMGEN_API_KEY"),
		SupplierBaseURL:    v.GetString("SMMGEN_URL"),
		SupplierRetries:    v.GetInt("SMMGEN_RETRIES"),
		ReportPerQuantity:  v.GetInt64("REPORT_PER_QUANTITY_DEFAULT"),
		ReportSchedule:     v.GetString("REPORT_SCHEDULE"),
		RateCheckSchedule:  v.GetString("RATE_CHECK_SCHEDULE"),
		StuckCheckingAfter: v.GetDuration("STUCK_CHECKING_AFTER"),
		OrdersPeriod:       v.GetDuration("ORDERS_PERIOD"),
		SupplierPeriod:     v.GetDuration("SUPPLIER_PERIOD"),
		TransactionsPeriod: v.GetDuration("TRANSACTIONS_PERIOD"),
		AffiliatesPeriod:   v.GetDuration("AFFILIATES_PERIOD"),
		SupportPeriod:      v.GetDuration("SUPPORT_PERIOD"),
		CommandPollTimeout: v.GetDuration("COMMAND_POLL_TIMEOUT"),
		RunAddress:         v.GetString("RUN_ADDRESS"),
		ShutdownTimeout:    v.GetDuration("SHUTDOWN_TIMEOUT"),
	}

	rate, err := decimal.NewFromString(v.GetString("USD_TO_MMK"))
	if err != nil {
		return nil, fmt.Errorf("invalid USD_TO_MMK value: %w", err)
	}
	cfg.USDToMMK = rate

	cfg.AdminChatIDs, err = parseChatIDs(v.GetString("ADMIN_CHAT_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_CHAT_IDS value: %w", err)
	}

	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("DATABASE_URI is required")
	}
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if cfg.SupplierAPIKey == "" {
		return nil, fmt.Errorf("SMMGEN_API_KEY is required")
	}

	return cfg, nil
}

func parseChatIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
