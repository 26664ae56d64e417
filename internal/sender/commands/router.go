package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/internal/sender/telegram"
	"github.com/K2-bot/sender/pkg/logging"
)

type UpdatesSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

type Replier interface {
	TrySend(ctx context.Context, chatID int64, text string, mode telegram.ParseMode)
}

type OrderOverrides interface {
	MarkCompleted(ctx context.Context, orderID int64) error
	MarkCanceled(ctx context.Context, orderID int64) error
}

type TopUpOverrides interface {
	Approve(ctx context.Context, txID int64) error
	Reject(ctx context.Context, txID int64) error
	ConsumeVerification(ctx context.Context, transactionID string) error
}

type AffiliateOverrides interface {
	Accept(ctx context.Context, id int64) error
	Fail(ctx context.Context, id int64) error
}

type SupportOverrides interface {
	Answer(ctx context.Context, id int64, reply string) error
	Close(ctx context.Context, id int64) error
}

type ReportRunner interface {
	Run(ctx context.Context) error
}

type Config struct {
	PollTimeout  time.Duration
	AdminChatIDs []int64
}

// Router long-polls Telegram for operator commands and dispatches them to
// the owning service. Only messages from the configured admin chats are
// honored.
type Router struct {
	source     UpdatesSource
	replier    Replier
	orders     OrderOverrides
	topup      TopUpOverrides
	affiliates AffiliateOverrides
	support    SupportOverrides
	report     ReportRunner
	allowed    map[int64]struct{}
	timeout    time.Duration
	logger     *logging.ZapLogger
	done       chan struct{}
}

func NewRouter(
	cfg Config,
	source UpdatesSource,
	replier Replier,
	orders OrderOverrides,
	topup TopUpOverrides,
	affiliates AffiliateOverrides,
	support SupportOverrides,
	report ReportRunner,
	logger *logging.ZapLogger,
) *Router {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	allowed := make(map[int64]struct{}, len(cfg.AdminChatIDs))
	for _, id := range cfg.AdminChatIDs {
		allowed[id] = struct{}{}
	}
	return &Router{
		source:     source,
		replier:    replier,
		orders:     orders,
		topup:      topup,
		affiliates: affiliates,
		support:    support,
		report:     report,
		allowed:    allowed,
		timeout:    cfg.PollTimeout,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

func (r *Router) Run(ctx context.Context) {
	var offset int64
	for {
		select {
		case <-r.done:
			return
		case <-ctx.Done():
			return
		default:
		}
		updates, err := r.source.GetUpdates(ctx, offset, r.timeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.logger.ErrorCtx(ctx, "polling updates failed", zap.Error(err))
			select {
			case <-time.After(5 * time.Second):
			case <-r.done:
				return
			case <-ctx.Done():
				return
			}
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			r.handleUpdate(ctx, update)
		}
	}
}

func (r *Router) Stop() {
	close(r.done)
}

func (r *Router) handleUpdate(ctx context.Context, update telegram.Update) {
	msg := update.Message
	if msg == nil || !strings.HasPrefix(msg.Text, "/") {
		return
	}
	if _, ok := r.allowed[msg.Chat.ID]; !ok {
		return
	}
	name, args := parseCommand(msg.Text)
	if err := r.dispatch(ctx, name, args); err != nil {
		r.replier.TrySend(ctx, msg.Chat.ID, fmt.Sprintf("❌ %s failed: %s", name, describeError(err)), telegram.ModePlain)
		return
	}
	r.replier.TrySend(ctx, msg.Chat.ID, fmt.Sprintf("✅ %s done", name), telegram.ModePlain)
}

var errUsage = errors.New("missing or invalid argument")

func (r *Router) dispatch(ctx context.Context, name string, args []string) error {
	switch name {
	case "/D":
		id, err := argID(args)
		if err != nil {
			return err
		}
		return r.orders.MarkCompleted(ctx, id)
	case "/F":
		id, err := argID(args)
		if err != nil {
			return err
		}
		return r.orders.MarkCanceled(ctx, id)
	case "/Yes":
		id, err := argID(args)
		if err != nil {
			return err
		}
		return r.topup.Approve(ctx, id)
	case "/No":
		id, err := argID(args)
		if err != nil {
			return err
		}
		return r.topup.Reject(ctx, id)
	case "/Use":
		if len(args) == 0 {
			return errUsage
		}
		return r.topup.ConsumeVerification(ctx, args[0])
	case "/Accept":
		id, err := argID(args)
		if err != nil {
			return err
		}
		return r.affiliates.Accept(ctx, id)
	case "/Failed":
		id, err := argID(args)
		if err != nil {
			return err
		}
		return r.affiliates.Fail(ctx, id)
	case "/Answer":
		id, err := argID(args)
		if err != nil {
			return err
		}
		if len(args) < 2 {
			return errUsage
		}
		return r.support.Answer(ctx, id, strings.Join(args[1:], " "))
	case "/Close":
		id, err := argID(args)
		if err != nil {
			return err
		}
		return r.support.Close(ctx, id)
	case "/Calculate":
		return r.report.Run(ctx)
	default:
		return fmt.Errorf("unknown command %s", name)
	}
}

// parseCommand splits "/Answer@SomeBot 12 text" into "/Answer" and
// ["12", "text"].
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	name, _, _ := strings.Cut(fields[0], "@")
	return name, fields[1:]
}

func argID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, errUsage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, errUsage
	}
	return id, nil
}

func describeError(err error) string {
	switch {
	case errors.Is(err, errUsage):
		return "missing or invalid argument"
	case errors.Is(err, data.ErrOrderNotFound),
		errors.Is(err, data.ErrTransactionNotFound),
		errors.Is(err, data.ErrAffiliateNotFound),
		errors.Is(err, data.ErrVerificationNotFound),
		errors.Is(err, data.ErrTicketNotFound):
		return "record not found"
	default:
		return err.Error()
	}
}
