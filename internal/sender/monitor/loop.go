package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/K2-bot/sender/pkg/logging"
)

// Ticker is one unit of periodic work. A Tick processes everything
// currently eligible and returns; the loop owns the cadence.
type Ticker interface {
	Name() string
	Tick(ctx context.Context) error
}

// Loop drives a Ticker on a fixed period until Stop is called. A failed
// tick is logged and the loop keeps going.
type Loop struct {
	ticker Ticker
	period time.Duration
	logger *logging.ZapLogger
	done   chan struct{}
}

func NewLoop(ticker Ticker, period time.Duration, logger *logging.ZapLogger) *Loop {
	return &Loop{
		ticker: ticker,
		period: period,
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (l *Loop) Name() string {
	return l.ticker.Name()
}

func (l *Loop) Run() {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			if err := l.ticker.Tick(context.Background()); err != nil {
				l.logger.ErrorCtx(context.Background(), "tick failed",
					zap.String("loop", l.ticker.Name()), zap.Error(err))
			}
		}
	}
}

func (l *Loop) Stop() {
	close(l.done)
}

// TickNow runs one iteration outside the schedule, for manual triggers.
func (l *Loop) TickNow(ctx context.Context) error {
	return l.ticker.Tick(ctx)
}
