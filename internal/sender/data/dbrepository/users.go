package dbrepository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/K2-bot/sender/internal/sender/data"
)

//go:embed sql/select_user_by_email.sql
var selectUserByEmailQuery string

func (db *DBRepository) GetUserByEmail(ctx context.Context, email string) (data.User, error) {
	return db.queryUser(ctx, selectUserByEmailQuery, email)
}

//go:embed sql/select_user_by_id.sql
var selectUserByIDQuery string

func (db *DBRepository) GetUserByID(ctx context.Context, id int64) (data.User, error) {
	return db.queryUser(ctx, selectUserByIDQuery, id)
}

//go:embed sql/update_user_balance.sql
var updateUserBalanceQuery string

func (db *DBRepository) SetUserBalance(ctx context.Context, email string, value decimal.Decimal) error {
	tag, err := db.storage.Exec(ctx, updateUserBalanceQuery, email, value)
	if err != nil {
		return fmt.Errorf("failed to update user balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return data.ErrUserNotFound
	}
	return nil
}

//go:embed sql/update_user_total_spend.sql
var updateUserTotalSpendQuery string

func (db *DBRepository) SetUserTotalSpend(ctx context.Context, email string, value decimal.Decimal) error {
	tag, err := db.storage.Exec(ctx, updateUserTotalSpendQuery, email, value)
	if err != nil {
		return fmt.Errorf("failed to update total spend: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return data.ErrUserNotFound
	}
	return nil
}

//go:embed sql/update_user_withdrawable.sql
var updateUserWithdrawableQuery string

func (db *DBRepository) SetUserWithdrawable(ctx context.Context, id int64, value decimal.Decimal) error {
	tag, err := db.storage.Exec(ctx, updateUserWithdrawableQuery, id, value)
	if err != nil {
		return fmt.Errorf("failed to update withdrawable balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return data.ErrUserNotFound
	}
	return nil
}

//go:embed sql/select_balances_sum.sql
var selectBalancesSumQuery string

func (db *DBRepository) SumUserBalances(ctx context.Context) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := db.storage.QueryValue(ctx, selectBalancesSumQuery, nil, []any{&sum})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum user balances: %w", err)
	}
	return sum, nil
}

func (db *DBRepository) queryUser(ctx context.Context, query string, arg any) (data.User, error) {
	var user data.User
	var refOwner *int64
	err := db.storage.QueryValue(ctx, query, []any{arg}, []any{
		&user.ID,
		&user.Email,
		&user.BalanceUSD,
		&user.TotalSpend,
		&refOwner,
		&user.WithdrawableBalance,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return data.User{}, data.ErrUserNotFound
		}
		return data.User{}, fmt.Errorf("failed to select user: %w", err)
	}
	if refOwner != nil {
		user.RefOwnerID = *refOwner
	}
	return user, nil
}
