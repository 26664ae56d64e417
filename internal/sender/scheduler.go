package sender

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/K2-bot/sender/pkg/logging"
)

type SchedulerConfig struct {
	ReportSchedule    string
	RateCheckSchedule string
}

type ReportJob interface {
	Run(ctx context.Context) error
}

type RateCheckJob interface {
	Check(ctx context.Context) error
}

// Scheduler runs the daily profit report and the supplier rate check on
// UTC cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	cfg    SchedulerConfig
	report ReportJob
	rates  RateCheckJob
	logger *logging.ZapLogger
}

func NewScheduler(cfg SchedulerConfig, report ReportJob, rates RateCheckJob, logger *logging.ZapLogger) *Scheduler {
	if cfg.ReportSchedule == "" {
		cfg.ReportSchedule = "0 8 * * *"
	}
	if cfg.RateCheckSchedule == "" {
		cfg.RateCheckSchedule = "30 8 * * *"
	}
	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Scheduler{
		cron:   c,
		cfg:    cfg,
		report: report,
		rates:  rates,
		logger: logger,
	}
}

func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.cfg.ReportSchedule, func() {
		ctx := context.Background()
		if err := s.report.Run(ctx); err != nil {
			s.logger.ErrorCtx(ctx, "scheduled report failed", zap.Error(err))
		}
	}); err != nil {
		s.logger.ErrorCtx(context.Background(), "failed to schedule report job", zap.Error(err))
	}

	if _, err := s.cron.AddFunc(s.cfg.RateCheckSchedule, func() {
		ctx := context.Background()
		if err := s.rates.Check(ctx); err != nil {
			s.logger.ErrorCtx(ctx, "scheduled rate check failed", zap.Error(err))
		}
	}); err != nil {
		s.logger.ErrorCtx(context.Background(), "failed to schedule rate check job", zap.Error(err))
	}

	s.cron.Start()
}

func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
