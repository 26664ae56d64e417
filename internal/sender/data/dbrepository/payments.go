package dbrepository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/K2-bot/sender/internal/sender/data"
)

//go:embed sql/select_unused_verification.sql
var selectUnusedVerificationQuery string

// FindUnusedVerification looks up an unconsumed payment verification
// matching a top-up by method, amount and transaction reference.
func (db *DBRepository) FindUnusedVerification(
	ctx context.Context,
	method string,
	amount decimal.Decimal,
	transactionID string,
) (data.PaymentVerification, error) {
	return db.queryVerification(ctx, selectUnusedVerificationQuery, method, amount, transactionID)
}

//go:embed sql/select_unused_verification_by_ref.sql
var selectUnusedVerificationByRefQuery string

func (db *DBRepository) FindUnusedVerificationByRef(
	ctx context.Context,
	transactionID string,
) (data.PaymentVerification, error) {
	return db.queryVerification(ctx, selectUnusedVerificationByRefQuery, transactionID)
}

//go:embed sql/update_verification_used.sql
var updateVerificationUsedQuery string

// MarkVerificationUsed consumes a verification. The status predicate in the
// query makes the unused -> used transition happen at most once.
func (db *DBRepository) MarkVerificationUsed(ctx context.Context, id int64) error {
	tag, err := db.storage.Exec(ctx, updateVerificationUsedQuery, id)
	if err != nil {
		return fmt.Errorf("failed to mark verification used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return data.ErrVerificationNotFound
	}
	return nil
}

//go:embed sql/update_verification_used_by_ref.sql
var updateVerificationUsedByRefQuery string

func (db *DBRepository) MarkVerificationUsedByRef(ctx context.Context, transactionID string) error {
	_, err := db.storage.Exec(ctx, updateVerificationUsedByRefQuery, transactionID)
	if err != nil {
		return fmt.Errorf("failed to mark verification used: %w", err)
	}
	return nil
}

//go:embed sql/select_pending_transactions.sql
var selectPendingTransactionsQuery string

func (db *DBRepository) GetPendingTransactions(ctx context.Context) ([]data.Transaction, error) {
	rows, err := db.storage.Query(ctx, selectPendingTransactionsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending transactions: %w", err)
	}
	return collectRows(rows, scanTransaction)
}

//go:embed sql/select_transaction.sql
var selectTransactionQuery string

func (db *DBRepository) GetTransaction(ctx context.Context, id int64) (data.Transaction, error) {
	rows, err := db.storage.Query(ctx, selectTransactionQuery, id)
	if err != nil {
		return data.Transaction{}, fmt.Errorf("failed to select transaction: %w", err)
	}
	txs, err := collectRows(rows, scanTransaction)
	if err != nil {
		return data.Transaction{}, err
	}
	if len(txs) == 0 {
		return data.Transaction{}, data.ErrTransactionNotFound
	}
	return txs[0], nil
}

//go:embed sql/update_transaction_status.sql
var updateTransactionStatusQuery string

func (db *DBRepository) SetTransactionStatus(ctx context.Context, id int64, status data.TransactionStatus) error {
	tag, err := db.storage.Exec(ctx, updateTransactionStatusQuery, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return data.ErrTransactionNotFound
	}
	return nil
}

//go:embed sql/select_stuck_transactions.sql
var selectStuckTransactionsQuery string

// GetStuckTransactions returns transactions claimed as Checking before
// olderThan; these need operator attention rather than silent reprocessing.
func (db *DBRepository) GetStuckTransactions(ctx context.Context, olderThan time.Time) ([]data.Transaction, error) {
	rows, err := db.storage.Query(ctx, selectStuckTransactionsQuery, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to select stuck transactions: %w", err)
	}
	return collectRows(rows, scanTransaction)
}

func (db *DBRepository) queryVerification(ctx context.Context, query string, args ...any) (data.PaymentVerification, error) {
	var vp data.PaymentVerification
	err := db.storage.QueryValue(ctx, query, args, []any{
		&vp.ID,
		&vp.Method,
		&vp.AmountUSD,
		&vp.TransactionID,
		&vp.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return data.PaymentVerification{}, data.ErrVerificationNotFound
		}
		return data.PaymentVerification{}, fmt.Errorf("failed to select verification: %w", err)
	}
	return vp, nil
}

func scanTransaction(rows pgx.Rows) (data.Transaction, error) {
	var tx data.Transaction
	err := rows.Scan(
		&tx.ID,
		&tx.Email,
		&tx.Method,
		&tx.Amount,
		&tx.TransactionID,
		&tx.Status,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return data.Transaction{}, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return tx, nil
}
