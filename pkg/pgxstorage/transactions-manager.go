package pgxstorage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type TransactionsManager struct {
	storage *DBStorage
}

func NewTransactionsManager(storage *DBStorage) *TransactionsManager {
	return &TransactionsManager{
		storage: storage,
	}
}

// DoWithTransaction runs f inside a transaction carried by the context; any
// DBStorage call made with that context joins it.
func (tm *TransactionsManager) DoWithTransaction(
	ctx context.Context,
	f func(ctx context.Context) error,
) error {
	ctxWithTransaction, tx, err := tm.storage.withTransaction(ctx)
	if err != nil {
		return err
	}
	if err := f(ctxWithTransaction); err != nil {
		return rollback(tx, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return rollback(tx, fmt.Errorf("transaction commit failed: %w", err))
	}
	return nil
}

func rollback(tx pgx.Tx, cause error) error {
	if rollbackErr := tx.Rollback(context.Background()); rollbackErr != nil {
		return fmt.Errorf("transaction rollback failed: %w, rollback caused by %w", rollbackErr, cause)
	}
	return cause
}
