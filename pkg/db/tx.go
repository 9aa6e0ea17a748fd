package db

import "context"

// TransactionFunc runs inside a transaction. Stores must use the ctx it receives so
// their reads and writes join the transaction.
type TransactionFunc func(ctx context.Context) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

// NoopTransactionManager runs fn directly, for stores whose single operations are already atomic.
type NoopTransactionManager struct{}

func (NoopTransactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	return fn(ctx)
}
