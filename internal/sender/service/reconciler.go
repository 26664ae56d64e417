package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/internal/sender/telegram"
	"github.com/K2-bot/sender/pkg/logging"
)

type ReconcilerRepository interface {
	GetServiceByName(ctx context.Context, name string) (data.Service, error)
	AddServiceSoldQty(ctx context.Context, serviceID int64, delta int64) error
	GetUserByEmail(ctx context.Context, email string) (data.User, error)
	GetUserByID(ctx context.Context, id int64) (data.User, error)
	SetUserTotalSpend(ctx context.Context, email string, value decimal.Decimal) error
	SetUserWithdrawable(ctx context.Context, userID int64, value decimal.Decimal) error
	SetOrderRefunded(ctx context.Context, orderID int64, refund decimal.Decimal) error
}

type BalanceAdjuster interface {
	Adjust(ctx context.Context, email string, delta decimal.Decimal) error
}

var (
	referralRate     = decimal.New(4, -2) // owner gets 4% of the transition amount
	loyaltyRate      = decimal.New(1, -2) // user gets 1% back above the spend threshold
	loyaltyThreshold = decimal.NewFromInt(10)
)

// Reconciler maps an observed order status transition to its financial side
// effects: sold-quantity counters, total spend, refunds, referral and
// loyalty payouts. Re-invoking it with equal old and new status is a no-op,
// which is what makes at-least-once polling safe.
type Reconciler struct {
	repo     ReconcilerRepository
	ledger   BalanceAdjuster
	notifier Notifier
	chats    Chats
	logger   *logging.ZapLogger
}

func NewReconciler(
	repo ReconcilerRepository,
	ledger BalanceAdjuster,
	notifier Notifier,
	chats Chats,
	logger *logging.ZapLogger,
) *Reconciler {
	return &Reconciler{
		repo:     repo,
		ledger:   ledger,
		notifier: notifier,
		chats:    chats,
		logger:   logger,
	}
}

func (r *Reconciler) Apply(ctx context.Context, order data.Order, oldStatus, newStatus data.OrderStatus) error {
	// A missing service row is a data-integrity problem: abort the whole
	// transition before any write, retries cannot fix it.
	svc, err := r.repo.GetServiceByName(ctx, order.ServiceName)
	if err != nil {
		return fmt.Errorf("cannot resolve service %q for order %d: %w", order.ServiceName, order.ID, err)
	}

	switch {
	case newStatus.EqualFold(data.OrderCompleted) && !oldStatus.EqualFold(data.OrderCompleted):
		return r.applyCompleted(ctx, order, svc, newStatus)
	case oldStatus.EqualFold(data.OrderCompleted) && isPartialOrCanceled(newStatus):
		return r.applyRefundAfterCompleted(ctx, order, svc, newStatus)
	case isPartialOrCanceled(newStatus) && !oldStatus.EqualFold(data.OrderCompleted) && !isPartialOrCanceled(oldStatus):
		return r.applyClosedBeforeCompleted(ctx, order, svc, newStatus)
	default:
		// Repeated statuses and all unrecognized pairs change nothing.
		return nil
	}
}

func (r *Reconciler) applyCompleted(ctx context.Context, order data.Order, svc data.Service, newStatus data.OrderStatus) error {
	if err := r.repo.AddServiceSoldQty(ctx, svc.ID, order.Quantity); err != nil {
		return err
	}
	if order.Email != "" && order.SellCharge.IsPositive() {
		user, err := r.repo.GetUserByEmail(ctx, order.Email)
		if err != nil {
			r.logger.WarnCtx(ctx, "spend not recorded, user missing",
				zap.String("email", order.Email),
				zap.Int64("orderID", order.ID),
				zap.Error(err),
			)
		} else if err := r.repo.SetUserTotalSpend(ctx, order.Email, user.TotalSpend.Add(order.SellCharge)); err != nil {
			return err
		}
	}
	r.payReferralAndBonus(ctx, order, order.SellCharge, true)
	r.notifyTransition(ctx, "✅ Completed Order", order, newStatus, transitionNote{
		doneQty: order.Quantity,
		spend:   order.SellCharge,
	})
	return nil
}

func (r *Reconciler) applyRefundAfterCompleted(ctx context.Context, order data.Order, svc data.Service, newStatus data.OrderStatus) error {
	if err := r.repo.AddServiceSoldQty(ctx, svc.ID, -order.Quantity); err != nil {
		return err
	}
	if order.Email == "" || order.Quantity == 0 || !order.SellCharge.IsPositive() {
		return nil
	}
	refund := order.SellCharge
	if order.Remain > 0 {
		refund = order.SellCharge.
			Mul(decimal.NewFromInt(order.Remain)).
			Div(decimal.NewFromInt(order.Quantity))
	}
	user, err := r.repo.GetUserByEmail(ctx, order.Email)
	if err != nil {
		return fmt.Errorf("refund aborted for order %d: %w", order.ID, err)
	}
	newSpend := user.TotalSpend.Sub(refund)
	if newSpend.IsNegative() {
		newSpend = decimal.Zero
	}
	if err := r.repo.SetUserTotalSpend(ctx, order.Email, newSpend); err != nil {
		return err
	}
	if err := r.ledger.Adjust(ctx, order.Email, refund); err != nil {
		return fmt.Errorf("refund credit failed for order %d: %w", order.ID, err)
	}
	if err := r.repo.SetOrderRefunded(ctx, order.ID, refund); err != nil {
		return err
	}
	r.payReferralAndBonus(ctx, order, refund, false)
	r.notifyTransition(ctx, "♻️ Completed → Refunded", order, newStatus, transitionNote{
		refund: refund,
	})
	r.notifier.TrySend(ctx, r.chats.Ops,
		fmt.Sprintf("🔁 Refunded $%s to %s for order %d (remain %d)",
			money(refund), order.Email, order.ID, order.Remain),
		telegram.ModePlain)
	return nil
}

func (r *Reconciler) applyClosedBeforeCompleted(ctx context.Context, order data.Order, svc data.Service, newStatus data.OrderStatus) error {
	doneQty := order.Quantity - order.Remain
	if doneQty < 0 {
		doneQty = 0
	}
	if err := r.repo.AddServiceSoldQty(ctx, svc.ID, doneQty); err != nil {
		return err
	}
	if order.Quantity <= 0 || !order.SellCharge.IsPositive() {
		return nil
	}
	refund := order.SellCharge.
		Div(decimal.NewFromInt(order.Quantity)).
		Mul(decimal.NewFromInt(order.Remain))
	spendAdded := order.SellCharge.Sub(refund)
	user, err := r.repo.GetUserByEmail(ctx, order.Email)
	if err != nil {
		return fmt.Errorf("refund aborted for order %d: %w", order.ID, err)
	}
	if err := r.repo.SetUserTotalSpend(ctx, order.Email, user.TotalSpend.Add(spendAdded)); err != nil {
		return err
	}
	if err := r.ledger.Adjust(ctx, order.Email, refund); err != nil {
		return fmt.Errorf("refund credit failed for order %d: %w", order.ID, err)
	}
	if err := r.repo.SetOrderRefunded(ctx, order.ID, refund); err != nil {
		return err
	}
	r.notifyTransition(ctx, "💸 Partial/Canceled Order", order, newStatus, transitionNote{
		doneQty: doneQty,
		refund:  refund,
		spend:   spendAdded,
	})
	r.notifier.TrySend(ctx, r.chats.Ops,
		fmt.Sprintf("💸 %s refunded $%s for %s (remain %d)",
			order.Email, money(refund), order.ServiceName, order.Remain),
		telegram.ModePlain)
	return nil
}

// payReferralAndBonus credits (or, on reversal, debits) the referral owner
// and the loyalty bonus. Both effects are best-effort: a failure here is
// logged and never undoes the primary transition.
func (r *Reconciler) payReferralAndBonus(ctx context.Context, order data.Order, amount decimal.Decimal, add bool) {
	user, err := r.repo.GetUserByEmail(ctx, order.Email)
	if err != nil {
		r.logger.WarnCtx(ctx, "referral step skipped",
			zap.String("email", order.Email),
			zap.Int64("orderID", order.ID),
			zap.Error(err),
		)
		return
	}
	if user.RefOwnerID != 0 {
		delta := amount.Mul(referralRate)
		if !add {
			delta = delta.Neg()
		}
		owner, err := r.repo.GetUserByID(ctx, user.RefOwnerID)
		if err != nil {
			r.logger.WarnCtx(ctx, "referral owner missing",
				zap.Int64("refOwnerID", user.RefOwnerID),
				zap.Error(err),
			)
		} else if err := r.repo.SetUserWithdrawable(ctx, owner.ID, owner.WithdrawableBalance.Add(delta)); err != nil {
			r.logger.ErrorCtx(ctx, "referral payout failed",
				zap.Int64("refOwnerID", owner.ID),
				zap.Error(err),
			)
		} else {
			r.notifier.TrySend(ctx, r.chats.Ops,
				fmt.Sprintf("💰 Referral owner reward %s: $%s for owner %d",
					addedOrDeducted(add), money(delta.Abs()), owner.ID),
				telegram.ModePlain)
		}
	}
	if user.TotalSpend.GreaterThan(loyaltyThreshold) {
		bonus := amount.Mul(loyaltyRate)
		if !add {
			bonus = bonus.Neg()
		}
		if err := r.ledger.Adjust(ctx, order.Email, bonus); err != nil {
			r.logger.ErrorCtx(ctx, "loyalty bonus failed",
				zap.String("email", order.Email),
				zap.Error(err),
			)
		} else {
			r.notifier.TrySend(ctx, r.chats.Ops,
				fmt.Sprintf("🎁 User bonus %s: $%s for %s",
					addedOrDeducted(add), money(bonus.Abs()), order.Email),
				telegram.ModePlain)
		}
	}
}

type transitionNote struct {
	doneQty int64
	refund  decimal.Decimal
	spend   decimal.Decimal
}

func (r *Reconciler) notifyTransition(
	ctx context.Context,
	title string,
	order data.Order,
	newStatus data.OrderStatus,
	note transitionNote,
) {
	msg := fmt.Sprintf(
		"📦 %s\n"+
			"🧾 Order ID: %d\n"+
			"🧩 Service: %s\n"+
			"👤 User: %s\n"+
			"📊 Quantity: %d\n"+
			"⏳ Remain: %d\n"+
			"✅ Done Qty: %d\n"+
			"💰 Amount: $%s\n"+
			"💸 Refund: $%s\n"+
			"📈 Spend Added: $%s\n"+
			"🔄 New Status: %s\n"+
			"🕒 Time: %s",
		title, order.ID, order.ServiceName, order.Email,
		order.Quantity, order.Remain, note.doneQty,
		money(order.SellCharge), money(note.refund), money(note.spend),
		newStatus, time.Now().UTC().Format("2006-01-02 15:04:05"),
	)
	r.notifier.TrySend(ctx, r.chats.Supplier, msg, telegram.ModePlain)
}

func isPartialOrCanceled(s data.OrderStatus) bool {
	return s.EqualFold(data.OrderPartial) || s.EqualFold(data.OrderCanceled)
}

func addedOrDeducted(add bool) string {
	if add {
		return "added"
	}
	return "deducted"
}
