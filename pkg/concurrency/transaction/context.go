package transaction

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/juju/errors"

	"classdb/pkg/logging"
	"classdb/pkg/primitives"
)

// TransactionStatus represents the current state of a transaction
type TransactionStatus int

const (
	TxActive TransactionStatus = iota
	TxCommitting
	TxAborting
	TxCommitted
	TxAborted
)

func (ts TransactionStatus) String() string {
	switch ts {
	case TxActive:
		return "ACTIVE"
	case TxCommitting:
		return "COMMITTING"
	case TxAborting:
		return "ABORTING"
	case TxCommitted:
		return "COMMITTED"
	case TxAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

const (
	ErrNotActive         = errors.ConstError("transaction is not active")
	ErrSavepointNotFound = errors.ConstError("savepoint not found")
)

type savepoint struct {
	name       string
	undoMark   int
	commitMark int
}

type TransactionStats struct {
	UndoEntries   int
	CommitHooks   int
	Savepoints    int
	PartialAborts int
}

// TransactionContext encapsulates all state for a single transaction: its
// status, the undo log that restores in-memory state on rollback, savepoints
// into that log, and the work deferred until commit.
type TransactionContext struct {
	ID primitives.TxID

	status    TransactionStatus
	startTime time.Time
	endTime   time.Time
	abortErr  error
	mutex     sync.Mutex

	undo       []func()
	onCommit   []func() error
	savepoints []savepoint

	partialAborts int
	onEnd         func(*TransactionContext)
}

func NewTransactionContext(tid primitives.TxID) *TransactionContext {
	return &TransactionContext{
		ID:        tid,
		status:    TxActive,
		startTime: time.Now(),
	}
}

// TxID returns the transaction identifier.
func (tc *TransactionContext) TxID() primitives.TxID {
	return tc.ID
}

// IsActive returns true if the transaction is still active
func (tc *TransactionContext) IsActive() bool {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	return tc.status == TxActive
}

// GetStatus returns the current status
func (tc *TransactionContext) GetStatus() TransactionStatus {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	return tc.status
}

// AbortReason returns the error that unilaterally aborted the transaction.
func (tc *TransactionContext) AbortReason() error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	return tc.abortErr
}

// OnRollback registers fn to undo an in-memory change. Undo functions run in
// reverse registration order when the transaction or an enclosing savepoint
// is rolled back.
func (tc *TransactionContext) OnRollback(fn func()) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	tc.undo = append(tc.undo, fn)
}

// OnCommit registers fn to run when the transaction commits. Destructive
// storage operations are deferred this way so a rollback never has to
// resurrect them.
func (tc *TransactionContext) OnCommit(fn func() error) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	tc.onCommit = append(tc.onCommit, fn)
}

// Savepoint marks the current position of the undo log under name.
func (tc *TransactionContext) Savepoint(name string) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.status != TxActive {
		return fmt.Errorf("%w: savepoint %q in %s transaction %d", ErrNotActive, name, tc.status, tc.ID)
	}
	tc.savepoints = append(tc.savepoints, savepoint{
		name:       name,
		undoMark:   len(tc.undo),
		commitMark: len(tc.onCommit),
	})
	return nil
}

// AbortToSavepoint undoes every change made after the named savepoint and
// forgets the commit work registered since. The savepoint itself survives.
func (tc *TransactionContext) AbortToSavepoint(name string) error {
	tc.mutex.Lock()
	if tc.status != TxActive {
		tc.mutex.Unlock()
		return fmt.Errorf("%w: rollback to %q in %s transaction %d", ErrNotActive, name, tc.status, tc.ID)
	}
	i := len(tc.savepoints) - 1
	for i >= 0 && tc.savepoints[i].name != name {
		i--
	}
	if i < 0 {
		tc.mutex.Unlock()
		return fmt.Errorf("%w: %q", ErrSavepointNotFound, name)
	}
	sp := tc.savepoints[i]
	pending := slices.Clone(tc.undo[sp.undoMark:])
	tc.undo = tc.undo[:sp.undoMark]
	tc.onCommit = tc.onCommit[:sp.commitMark]
	tc.savepoints = tc.savepoints[:i+1]
	tc.partialAborts++
	tc.mutex.Unlock()

	runUndo(pending)
	logging.WithTx(tc.ID).Info("rolled back to savepoint", "savepoint", name, "undone", len(pending))
	return nil
}

// UnilateralAbort rolls back the whole transaction because of reason. The
// transaction cannot be used afterwards.
func (tc *TransactionContext) UnilateralAbort(reason error) {
	tc.mutex.Lock()
	if tc.status != TxActive {
		tc.mutex.Unlock()
		return
	}
	tc.status = TxAborting
	tc.abortErr = reason
	tc.mutex.Unlock()

	logging.WithTx(tc.ID).Warn("transaction aborted", "error", reason)
	tc.rollback()
}

// Abort rolls back the whole transaction at the client's request.
func (tc *TransactionContext) Abort() error {
	tc.mutex.Lock()
	if tc.status != TxActive {
		status := tc.status
		tc.mutex.Unlock()
		return fmt.Errorf("%w: abort of %s transaction %d", ErrNotActive, status, tc.ID)
	}
	tc.status = TxAborting
	tc.mutex.Unlock()

	tc.rollback()
	return nil
}

func (tc *TransactionContext) rollback() {
	tc.mutex.Lock()
	pending := tc.undo
	tc.undo = nil
	tc.onCommit = nil
	tc.savepoints = nil
	tc.mutex.Unlock()

	runUndo(pending)
	tc.finish(TxAborted)
}

// Commit runs the deferred commit work in registration order. A failing hook
// is logged and does not stop the others; the first failure is returned.
func (tc *TransactionContext) Commit() error {
	tc.mutex.Lock()
	if tc.status != TxActive {
		status := tc.status
		tc.mutex.Unlock()
		return fmt.Errorf("%w: commit of %s transaction %d", ErrNotActive, status, tc.ID)
	}
	tc.status = TxCommitting
	hooks := tc.onCommit
	tc.onCommit = nil
	tc.undo = nil
	tc.savepoints = nil
	tc.mutex.Unlock()

	var firstErr error
	for _, hook := range hooks {
		if err := hook(); err != nil {
			logging.WithTx(tc.ID).Error("commit hook failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	tc.finish(TxCommitted)
	return firstErr
}

func (tc *TransactionContext) finish(status TransactionStatus) {
	tc.mutex.Lock()
	tc.status = status
	tc.endTime = time.Now()
	onEnd := tc.onEnd
	tc.mutex.Unlock()

	if onEnd != nil {
		onEnd(tc)
	}
}

func runUndo(entries []func()) {
	for i := len(entries) - 1; i >= 0; i-- {
		entries[i]()
	}
}

// GetStatistics returns a snapshot of transaction statistics
func (tc *TransactionContext) GetStatistics() TransactionStats {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	return TransactionStats{
		UndoEntries:   len(tc.undo),
		CommitHooks:   len(tc.onCommit),
		Savepoints:    len(tc.savepoints),
		PartialAborts: tc.partialAborts,
	}
}

// Duration returns how long the transaction has been running
func (tc *TransactionContext) Duration() time.Duration {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	endTime := tc.endTime
	if endTime.IsZero() {
		endTime = time.Now()
	}
	return endTime.Sub(tc.startTime)
}

// String returns a string representation of the transaction context
func (tc *TransactionContext) String() string {
	stats := tc.GetStatistics()
	return fmt.Sprintf("Transaction %d [Status=%s, Duration=%v, Undo=%d, Savepoints=%d]",
		tc.ID, tc.GetStatus(), tc.Duration(), stats.UndoEntries, stats.Savepoints)
}
