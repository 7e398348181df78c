// ABOUTME: Immutable batch of message store operations and its transactional apply
// ABOUTME: One transaction per batch; any failing operation rolls back the whole batch

package messageops

import (
	"context"
	"fmt"
	"slices"

	"github.com/2389/comm-core/internal/store"
)

// Batch is an ordered, immutable list of operations.
type Batch struct {
	ops []Operation
}

// NewBatch copies ops into a batch. The order is the apply order.
func NewBatch(ops ...Operation) Batch {
	return Batch{ops: slices.Clone(ops)}
}

// Len returns the number of operations.
func (b Batch) Len() int {
	return len(b.ops)
}

// Operations returns a copy of the operations in apply order.
func (b Batch) Operations() []Operation {
	return slices.Clone(b.ops)
}

// TxBeginner opens store transactions.
type TxBeginner interface {
	BeginTx(ctx context.Context) (store.Tx, error)
}

// ApplyBatch applies every operation inside one transaction and commits only
// if all succeed. On any failure the transaction is rolled back and a single
// error describing the failing operation is returned. An empty batch is a
// no-op and opens no transaction.
func ApplyBatch(ctx context.Context, s TxBeginner, b Batch) error {
	if b.Len() == 0 {
		return nil
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin message store batch: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback message store batch: %v", cause, rollbackErr)
		}
		return cause
	}

	for i, op := range b.ops {
		if err := op.Apply(ctx, tx); err != nil {
			return rollbackWith(fmt.Errorf("applying %s operation %d: %w", op.Kind(), i, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit message store batch: %w", err)
	}
	return nil
}
