package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"stays/entity"
)

type TxOptions struct {
	Isolation sql.IsolationLevel

	// LockTimeout limits how long a single statement waits for a row lock.
	LockTimeout time.Duration
	// Timeout limits the whole transaction, including the commit.
	Timeout time.Duration
}

// UpdateInTx runs fn in a transaction that is committed when fn returns nil and rolled back
// otherwise. Lock waits and timeouts are reported as entity.ErrTransactionTimeout, serialization
// failures and deadlocks as entity.ErrTransientTx.
func UpdateInTx(
	ctx context.Context,
	db *sqlx.DB,
	opts TxOptions,
	fn func(ctx context.Context, tx *sqlx.Tx) error,
) (err error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: opts.Isolation})
	if err != nil {
		return classifyTxError(ctx, fmt.Errorf("could not begin transaction: %w", err))
	}

	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				err = errors.Join(err, rollbackErr)
			}
			err = classifyTxError(ctx, err)
			return
		}

		if commitErr := tx.Commit(); commitErr != nil {
			err = classifyTxError(ctx, fmt.Errorf("could not commit transaction: %w", commitErr))
		}
	}()

	if opts.LockTimeout > 0 {
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", opts.LockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("could not set lock timeout: %w", err)
		}
	}
	if opts.Timeout > 0 {
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", opts.Timeout.Milliseconds())); err != nil {
			return fmt.Errorf("could not set statement timeout: %w", err)
		}
	}

	return fn(ctx, tx)
}

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
	pqQueryCanceled        = "57014"
	pqUniqueViolation      = "23505"
)

func classifyTxError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure, pqDeadlockDetected:
			return fmt.Errorf("%w: %w", entity.ErrTransientTx, err)
		case pqLockNotAvailable, pqQueryCanceled:
			return fmt.Errorf("%w: %w", entity.ErrTransactionTimeout, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		(errors.Is(ctx.Err(), context.DeadlineExceeded) && errors.Is(err, sql.ErrTxDone)) {
		return fmt.Errorf("%w: %w", entity.ErrTransactionTimeout, err)
	}

	return err
}

func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
