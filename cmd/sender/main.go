package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/K2-bot/sender/cmd/sender/config"
	"github.com/K2-bot/sender/internal/sender"
	"github.com/K2-bot/sender/internal/sender/commands"
	"github.com/K2-bot/sender/internal/sender/data/database"
	"github.com/K2-bot/sender/internal/sender/data/dbrepository"
	"github.com/K2-bot/sender/internal/sender/monitor"
	"github.com/K2-bot/sender/internal/sender/service"
	"github.com/K2-bot/sender/internal/sender/supplier"
	"github.com/K2-bot/sender/internal/sender/telegram"
	"github.com/K2-bot/sender/pkg/logging"
	"github.com/K2-bot/sender/pkg/pgxstorage"
	"github.com/K2-bot/sender/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewZapLogger(zapcore.InfoLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	dbFactory := database.NewPgxDatabaseFactory(
		database.Config{
			ConnectionString: cfg.DatabaseURI,
		},
	)
	storage, err := pgxstorage.New(dbFactory, retry.Exponential{
		Base:        500 * time.Millisecond,
		MaxAttempts: 5,
	})
	if err != nil {
		log.Fatal(err)
	}
	repository := dbrepository.New(storage, logger)
	transactionManager := pgxstorage.NewTransactionsManager(storage)

	tg := telegram.NewClient(telegram.Config{
		Token:   cfg.TelegramToken,
		BaseURL: cfg.TelegramBaseURL,
	}, logger)

	smmgen := supplier.NewClient(supplier.Config{
		APIKey:  cfg.SupplierAPIKey,
		BaseURL: cfg.SupplierBaseURL,
		Retries: cfg.SupplierRetries,
	}, logger)

	chats := service.Chats{
		Ops:      cfg.OpsChatID,
		Supplier: cfg.SupplierChatID,
		Manual:   cfg.ManualChatID,
		News:     cfg.NewsChatID,
		Report:   cfg.ReportChatID,
	}

	ledger := service.NewLedger(repository, logger)
	reconciler := service.NewReconciler(repository, ledger, tg, chats, logger)
	dispatcher := service.NewDispatcher(repository, smmgen, reconciler, tg, chats, cfg.USDToMMK, logger)
	orders := service.NewOrders(repository, reconciler, logger)
	topup := service.NewTopUp(repository, transactionManager, ledger, tg, chats, cfg.USDToMMK, logger)
	affiliates := service.NewAffiliates(repository, ledger, tg, chats, cfg.USDToMMK, logger)
	support := service.NewSupport(repository, tg, chats, logger)
	report := service.NewReport(repository, tg, tg, chats, cfg.USDToMMK, cfg.ReportPerQuantity, logger)
	rates := service.NewRates(repository, smmgen, tg, chats, logger)

	loops := []*monitor.Loop{
		monitor.NewLoop(monitor.NewOrdersMonitor(repository, dispatcher, logger), cfg.OrdersPeriod, logger),
		monitor.NewLoop(monitor.NewSupplierStatusMonitor(repository, smmgen, reconciler, tg, cfg.SupplierChatID, logger), cfg.SupplierPeriod, logger),
		monitor.NewLoop(monitor.NewTransactionsMonitor(repository, topup, tg, cfg.OpsChatID, cfg.StuckCheckingAfter, logger), cfg.TransactionsPeriod, logger),
		monitor.NewLoop(monitor.NewAffiliatesMonitor(repository, affiliates, logger), cfg.AffiliatesPeriod, logger),
		monitor.NewLoop(monitor.NewSupportMonitor(repository, support, logger), cfg.SupportPeriod, logger),
	}

	router := commands.NewRouter(commands.Config{
		PollTimeout:  cfg.CommandPollTimeout,
		AdminChatIDs: cfg.AdminChatIDs,
	}, tg, tg, orders, topup, affiliates, support, report, logger)

	scheduler := sender.NewScheduler(sender.SchedulerConfig{
		ReportSchedule:    cfg.ReportSchedule,
		RateCheckSchedule: cfg.RateCheckSchedule,
	}, report, rates, logger)

	server := sender.NewServer(sender.ServerConfig{
		Address:         cfg.RunAddress,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, loops, logger)

	rootCtx, cancelCtx := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer cancelCtx()

	if err := run(rootCtx, cfg, server, loops, router, scheduler, logger); err != nil {
		logger.ErrorCtx(rootCtx, "shutdown with error", zap.Error(err))
	} else {
		logger.InfoCtx(rootCtx, "shutdown gracefully")
	}
}

func run(
	rootCtx context.Context,
	cfg *config.Config,
	server *sender.Server,
	loops []*monitor.Loop,
	router *commands.Router,
	scheduler *sender.Scheduler,
	logger *logging.ZapLogger,
) error {
	g, ctx := errgroup.WithContext(rootCtx)

	context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+5*time.Second)
		defer cancel()

		<-shutdownCtx.Done()
		log.Fatal("failed to gracefully shutdown")
	})

	scheduler.Start()

	for _, loop := range loops {
		loop := loop
		g.Go(func() error {
			loop.Run()
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			loop.Stop()
			return nil
		})
	}

	g.Go(func() error {
		router.Run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		router.Stop()
		return nil
	})

	g.Go(func() error {
		if err := server.Run(); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer logger.InfoCtx(ctx, "shutting down server")
		<-ctx.Done()
		<-scheduler.Stop().Done()
		if err := server.Shutdown(); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("goroutine error occured: %w", err)
	}

	return nil
}
