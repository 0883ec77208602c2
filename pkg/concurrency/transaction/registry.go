package transaction

import (
	"fmt"
	"slices"
	"sync"

	"classdb/pkg/concurrency/lock"
	"classdb/pkg/primitives"
)

// TransactionRegistry manages all active transaction contexts and releases
// their class locks when they end.
type TransactionRegistry struct {
	contexts map[primitives.TxID]*TransactionContext
	locks    *lock.LockManager
	mutex    sync.RWMutex
}

// NewTransactionRegistry creates a new transaction registry
func NewTransactionRegistry(locks *lock.LockManager) *TransactionRegistry {
	return &TransactionRegistry{
		contexts: make(map[primitives.TxID]*TransactionContext),
		locks:    locks,
	}
}

// Begin creates a new transaction context and registers it
func (tr *TransactionRegistry) Begin() *TransactionContext {
	ctx := NewTransactionContext(NewTransactionID())
	ctx.onEnd = tr.end

	tr.mutex.Lock()
	tr.contexts[ctx.ID] = ctx
	tr.mutex.Unlock()

	return ctx
}

// end releases the locks of a finished transaction and unregisters it.
func (tr *TransactionRegistry) end(ctx *TransactionContext) {
	if tr.locks != nil {
		tr.locks.ReleaseAll(ctx.ID)
	}
	tr.Remove(ctx.ID)
}

// Get retrieves a transaction context by ID
func (tr *TransactionRegistry) Get(tid primitives.TxID) (*TransactionContext, error) {
	tr.mutex.RLock()
	defer tr.mutex.RUnlock()

	ctx, exists := tr.contexts[tid]
	if !exists {
		return nil, fmt.Errorf("transaction %d not found", tid)
	}
	return ctx, nil
}

// Remove removes a transaction context from the registry
func (tr *TransactionRegistry) Remove(tid primitives.TxID) {
	tr.mutex.Lock()
	defer tr.mutex.Unlock()
	delete(tr.contexts, tid)
}

// GetActive returns all active transaction contexts ordered by id
func (tr *TransactionRegistry) GetActive() []*TransactionContext {
	tr.mutex.RLock()
	defer tr.mutex.RUnlock()

	active := make([]*TransactionContext, 0)
	for _, ctx := range tr.contexts {
		if ctx.IsActive() {
			active = append(active, ctx)
		}
	}
	slices.SortFunc(active, func(a, b *TransactionContext) int { return int(a.ID) - int(b.ID) })
	return active
}

// Count returns the number of registered transactions
func (tr *TransactionRegistry) Count() int {
	tr.mutex.RLock()
	defer tr.mutex.RUnlock()
	return len(tr.contexts)
}
