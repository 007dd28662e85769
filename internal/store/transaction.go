package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type txKey struct{}

// txState is the open transaction carried by a context.
type txState struct {
	id   int64
	db   *gorm.DB
	done bool
}

// InTransaction runs fn with a context bound to one transaction. The
// transaction is committed when fn succeeds and rolled back otherwise. When ctx
// already carries a transaction fn joins it and the outer caller decides.
func InTransaction(ctx context.Context, s Store, fn func(ctx context.Context) error) error {
	if current(ctx) != nil {
		return fn(ctx)
	}

	txCtx, err := s.NewTransactionContext(ctx)
	if err != nil {
		return err
	}

	if err := fn(txCtx); err != nil {
		if _, rerr := Rollback(txCtx); rerr != nil {
			return fmt.Errorf("%w (rollback failed: %s)", err, rerr)
		}
		return err
	}

	_, err = Commit(txCtx)
	return err
}

func Commit(ctx context.Context) (context.Context, error) {
	return finish(ctx, "commit", (*gorm.DB).Commit)
}

func Rollback(ctx context.Context) (context.Context, error) {
	return finish(ctx, "rollback", (*gorm.DB).Rollback)
}

// FromContext returns the transaction handle bound to ctx, or nil.
func FromContext(ctx context.Context) *gorm.DB {
	if t := current(ctx); t != nil {
		return t.db
	}
	return nil
}

func current(ctx context.Context) *txState {
	t, ok := ctx.Value(txKey{}).(*txState)
	if !ok || t == nil || t.done {
		return nil
	}
	return t
}

func newTransactionContext(ctx context.Context, db *gorm.DB) (context.Context, error) {
	if current(ctx) != nil {
		return ctx, nil
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return ctx, fmt.Errorf("beginning transaction: %w", tx.Error)
	}

	t := &txState{db: tx}
	// txid_current only exists on postgres and is used to correlate logs.
	if db.Dialector.Name() == "postgres" {
		tx.Raw("select txid_current()").Scan(&t.id)
	}
	return context.WithValue(ctx, txKey{}, t), nil
}

func finish(ctx context.Context, op string, end func(*gorm.DB) *gorm.DB) (context.Context, error) {
	t := current(ctx)
	if t == nil {
		return ctx, nil
	}
	t.done = true
	parent := context.WithValue(ctx, txKey{}, (*txState)(nil))

	logger := zap.S().Named("store")
	if err := end(t.db).Error; err != nil {
		logger.Errorw("transaction "+op+" failed", "tx", t.id, "error", err)
		return parent, fmt.Errorf("%s transaction: %w", op, err)
	}
	logger.Debugw("transaction "+op, "tx", t.id)
	return parent, nil
}
