package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"classdb/pkg/logging"
	"classdb/pkg/primitives"
)

const (
	baseRetryDelay = time.Millisecond
	maxRetryDelay  = 50 * time.Millisecond
)

// LockManager manages class-level locks for schema changes and queries.
// It provides deadlock detection and lock upgrades, and bounds every wait by
// the caller's context or, failing that, by the manager's default timeout.
type LockManager struct {
	waits     *WaitForGraph
	lockTable *LockTable
	timeout   time.Duration
	mutex     sync.Mutex
}

// NewLockManager creates a lock manager. A zero timeout lets requests wait
// until their context is done.
func NewLockManager(timeout time.Duration) *LockManager {
	return &LockManager{
		waits:     NewWaitForGraph(),
		lockTable: NewLockTable(),
		timeout:   timeout,
	}
}

// Acquire takes a lock on class for tid, blocking until it is granted.
//
// Parameters:
//   - ctx: bounds the wait; when it has no deadline the manager timeout applies
//   - tid: the requesting transaction
//   - class: name of the class to lock
//   - lockType: SharedLock for reads, ExclusiveLock for schema changes
//
// Returns:
//   - error: nil once the lock is held, ErrDeadlock if waiting would deadlock,
//     ErrTimeout if the context ends first
func (lm *LockManager) Acquire(ctx context.Context, tid primitives.TxID, class string, lockType LockType) error {
	lm.mutex.Lock()
	if lm.lockTable.HasSufficientLock(tid, class, lockType) {
		lm.mutex.Unlock()
		return nil
	}
	lm.mutex.Unlock()

	if _, ok := ctx.Deadline(); !ok && lm.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, lm.timeout)
		defer cancel()
	}
	return lm.attemptToAcquireLock(ctx, tid, class, lockType)
}

// attemptToAcquireLock retries the grant with exponential backoff. Every
// failed attempt refreshes the wait-for edges of tid and checks them for a
// cycle before sleeping.
func (lm *LockManager) attemptToAcquireLock(ctx context.Context, tid primitives.TxID, class string, lockType LockType) error {
	for attempt := 0; ; attempt++ {
		lm.mutex.Lock()
		if lm.lockTable.CanGrant(tid, class, lockType) {
			lm.lockTable.Grant(tid, class, lockType)
			lm.waits.RemoveWaiter(tid)
			lm.mutex.Unlock()
			return nil
		}

		for _, holder := range lm.lockTable.Blockers(tid, class, lockType) {
			lm.waits.AddEdge(tid, holder)
		}
		if cycle := lm.waits.CycleThrough(tid); cycle != nil {
			lm.waits.RemoveWaiter(tid)
			lm.mutex.Unlock()
			logging.WithTx(tid).Warn("deadlock on class lock", "class", class, "mode", lockType.String(), "cycle", cycle)
			return fmt.Errorf("%w: transaction %d waiting for %s lock on %q", ErrDeadlock, tid, lockType, class)
		}
		lm.mutex.Unlock()

		select {
		case <-ctx.Done():
			lm.mutex.Lock()
			lm.waits.RemoveWaiter(tid)
			lm.mutex.Unlock()
			return fmt.Errorf("%w: transaction %d waiting for %s lock on %q: %v", ErrTimeout, tid, lockType, class, ctx.Err())
		case <-time.After(calculateRetryDelay(attempt)):
		}
	}
}

// calculateRetryDelay doubles the delay every five attempts up to maxRetryDelay.
func calculateRetryDelay(attempt int) time.Duration {
	exponentialFactor := min(attempt/5, 6)
	return min(baseRetryDelay*time.Duration(1<<uint(exponentialFactor)), maxRetryDelay) // #nosec G115
}

// Held returns the mode tid holds class in.
func (lm *LockManager) Held(tid primitives.TxID, class string) (LockType, bool) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.lockTable.Held(tid, class)
}

// IsLocked reports whether any transaction holds a lock on class.
func (lm *LockManager) IsLocked(class string) bool {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.lockTable.IsLocked(class)
}

// ReleaseAll releases every lock held by tid. It is called when the
// transaction commits or aborts; waiters pick the locks up on their next retry.
func (lm *LockManager) ReleaseAll(tid primitives.TxID) []string {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	released := lm.lockTable.ReleaseAll(tid)
	lm.waits.RemoveTransaction(tid)
	return released
}
