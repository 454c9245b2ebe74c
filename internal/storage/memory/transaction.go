package memory

import (
	"context"
	"sync"
)

type journalKey struct{}

// journal collects the undo steps of writes made inside a transaction.
type journal struct {
	mu   sync.Mutex
	undo []func()
}

func (j *journal) rollback() {
	j.mu.Lock()
	steps := j.undo
	j.undo = nil
	j.mu.Unlock()

	for i := len(steps) - 1; i >= 0; i-- {
		steps[i]()
	}
}

// onRollback registers undo with the transaction in ctx. Outside a
// transaction writes are final and undo is dropped.
func onRollback(ctx context.Context, undo func()) {
	j, ok := ctx.Value(journalKey{}).(*journal)
	if !ok {
		return
	}
	j.mu.Lock()
	j.undo = append(j.undo, undo)
	j.mu.Unlock()
}

// TransactionManager gives the in-memory stores all-or-nothing writes:
// when fn fails or panics, every write it made through a store is undone
// in reverse order. Nested calls join the outer transaction.
type TransactionManager struct{}

func (TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}

	j := &journal{}
	defer func() {
		if r := recover(); r != nil {
			j.rollback()
			panic(r)
		}
	}()

	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		j.rollback()
		return err
	}
	return nil
}
