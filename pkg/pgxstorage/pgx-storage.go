package pgxstorage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/K2-bot/sender/pkg/retry"
)

type contextKey int

const (
	transactionKey contextKey = iota
)

var errNoTransaction = errors.New("no transaction")

type DBFactory interface {
	Create() (*pgxpool.Pool, error)
}

// DBStorage executes queries either on the pool or on a transaction carried
// by the context. Pool-level calls run under the resilient executor:
// connection-class failures are retried with exponential backoff before the
// last error surfaces. Statements inside a transaction are never retried
// individually; the whole transaction is the retry unit there.
type DBStorage struct {
	pool    *pgxpool.Pool
	backoff retry.Backoff
}

func New(dbFactory DBFactory, backoff retry.Backoff) (*DBStorage, error) {
	db, err := dbFactory.Create()
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	return &DBStorage{
		pool:    db,
		backoff: backoff,
	}, nil
}

func (s *DBStorage) Close() {
	s.pool.Close()
}

func (s *DBStorage) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	tx, err := getTransaction(ctx)
	if err != nil {
		switch {
		case errors.Is(err, errNoTransaction):
			return retry.Do(ctx, s.backoff, func(ctx context.Context) (pgconn.CommandTag, error) {
				tag, err := s.pool.Exec(ctx, query, args...)
				return tag, classify(err)
			})
		default:
			return pgconn.CommandTag{}, err
		}
	}
	return tx.Exec(ctx, query, args...) //nolint:wrapcheck // unnecessary
}

func (s *DBStorage) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	tx, err := getTransaction(ctx)
	if err != nil {
		switch {
		case errors.Is(err, errNoTransaction):
			return retry.Do(ctx, s.backoff, func(ctx context.Context) (pgx.Rows, error) {
				rows, err := s.pool.Query(ctx, query, args...)
				return rows, classify(err)
			})
		default:
			return nil, err
		}
	}
	return tx.Query(ctx, query, args...) //nolint:wrapcheck // unnecessary
}

// QueryValue runs a single-row query and scans the row into dest.
func (s *DBStorage) QueryValue(ctx context.Context, query string, args []any, dest []any) error {
	tx, err := getTransaction(ctx)
	if err != nil {
		switch {
		case errors.Is(err, errNoTransaction):
			return retry.Run(ctx, s.backoff, func(ctx context.Context) error {
				return classify(s.pool.QueryRow(ctx, query, args...).Scan(dest...))
			})
		default:
			return err
		}
	}
	return tx.QueryRow(ctx, query, args...).Scan(dest...) //nolint:wrapcheck // unnecessary
}

func (s *DBStorage) withTransaction(ctx context.Context) (context.Context, pgx.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, nil, fmt.Errorf("transaction begin failed: %w", classify(err))
	}
	ctxWithTransaction := context.WithValue(ctx, transactionKey, tx)
	return ctxWithTransaction, tx, nil
}

func getTransaction(ctx context.Context) (pgx.Tx, error) {
	txVal := ctx.Value(transactionKey)
	if txVal == nil {
		return nil, errNoTransaction
	}
	tx, ok := txVal.(pgx.Tx)
	if !ok {
		return nil, errors.New("invalid transaction type")
	}
	return tx, nil
}

// classify marks connection-level pgx failures as transient. Row-level
// results (pgx.ErrNoRows) and constraint violations pass through fatal.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return retry.Transient(err)
	}
	return err
}
