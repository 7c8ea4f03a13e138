package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TxFunc defines a transaction function. ctx carries the transaction, so
// repositories that resolve their session through DB.WithContext join it.
type TxFunc = func(ctx context.Context) error

// Transaction executes fn within a database transaction
func (db *DB) Transaction(ctx context.Context, fn TxFunc) error {
	return db.TransactionWithOptions(ctx, nil, fn)
}

// TransactionWithOptions executes fn within a database transaction with custom options
func (db *DB) TransactionWithOptions(ctx context.Context, opts *sql.TxOptions, fn TxFunc) error {
	if _, ok := TransactionFromContext(ctx); ok {
		// already inside a transaction; join it
		return fn(ctx)
	}

	var txOpts []*sql.TxOptions
	if opts != nil {
		txOpts = append(txOpts, opts)
	}

	return db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fn(ContextWithTransaction(ctx, tx)); err != nil {
			db.logger.WithContext(ctx).Debug("transaction rolled back", zap.Error(err))
			return err
		}
		return nil
	}, txOpts...)
}

// Savepoint runs fn inside a savepoint of the transaction carried by ctx.
// When fn fails the work done by fn is rolled back but the enclosing
// transaction stays usable; the error is returned to the caller.
func (db *DB) Savepoint(ctx context.Context, name string, fn TxFunc) error {
	tx, ok := TransactionFromContext(ctx)
	if !ok {
		return errors.New("savepoint requires an active transaction")
	}

	if err := tx.SavePoint(name).Error; err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	if err := fn(ctx); err != nil {
		if rbErr := tx.RollbackTo(name).Error; rbErr != nil {
			return fmt.Errorf("failed to rollback to savepoint: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	return nil
}

// ExecuteWithRetry runs fn in a transaction, retrying serialization failures and deadlocks
func (db *DB) ExecuteWithRetry(ctx context.Context, maxRetries int, fn TxFunc) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			db.logger.WithContext(ctx).Warn("retrying transaction",
				zap.Int("attempt", i+1),
				zap.Int("max_retries", maxRetries),
				zap.Error(lastErr),
			)
		}

		err := db.Transaction(ctx, fn)
		if err == nil {
			return nil
		}

		lastErr = err
		if !IsRetryableError(err) {
			return err
		}
	}

	return fmt.Errorf("transaction failed after %d retries: %w", maxRetries, lastErr)
}

// IsDuplicateKeyError reports whether err is a unique constraint violation
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

// IsForeignKeyError reports whether err is a foreign key violation
func IsForeignKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}

	msg := err.Error()
	return strings.Contains(msg, "FOREIGN KEY constraint failed") ||
		strings.Contains(msg, "violates foreign key constraint")
}

// IsRetryableError reports serialization failures, deadlocks and busy sqlite handles
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}

	return strings.Contains(err.Error(), "database is locked")
}

// TransactionKey is the context key for storing transaction
type TransactionKey struct{}

// ContextWithTransaction adds transaction to context
func ContextWithTransaction(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, TransactionKey{}, tx)
}

// TransactionFromContext extracts transaction from context
func TransactionFromContext(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(TransactionKey{}).(*gorm.DB)
	return tx, ok
}
