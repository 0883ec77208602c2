package transaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdb/pkg/concurrency/lock"
)

type txTest struct {
	registry *TransactionRegistry
	locks    *lock.LockManager
	tx       *TransactionContext
}

func setupTest(t *testing.T) *txTest {
	t.Helper()
	locks := lock.NewLockManager(time.Second)
	registry := NewTransactionRegistry(locks)
	return &txTest{registry: registry, locks: locks, tx: registry.Begin()}
}

func TestAbortToSavepointUndoesLaterChanges(t *testing.T) {
	s := setupTest(t)
	var log []string

	s.tx.OnRollback(func() { log = append(log, "undo-1") })
	require.NoError(t, s.tx.Savepoint("sp"))
	s.tx.OnRollback(func() { log = append(log, "undo-2") })
	s.tx.OnRollback(func() { log = append(log, "undo-3") })
	s.tx.OnCommit(func() error { log = append(log, "commit-late"); return nil })

	require.NoError(t, s.tx.AbortToSavepoint("sp"))
	assert.Equal(t, []string{"undo-3", "undo-2"}, log)
	assert.True(t, s.tx.IsActive())

	log = nil
	require.NoError(t, s.tx.Commit())
	assert.Empty(t, log, "commit work registered after the savepoint is discarded")
	assert.Equal(t, TxCommitted, s.tx.GetStatus())
}

func TestAbortToUnknownSavepoint(t *testing.T) {
	s := setupTest(t)
	err := s.tx.AbortToSavepoint("missing")
	assert.True(t, errors.Is(err, ErrSavepointNotFound))
}

func TestNestedSavepointsWithSameName(t *testing.T) {
	s := setupTest(t)
	undone := 0

	require.NoError(t, s.tx.Savepoint("sp"))
	s.tx.OnRollback(func() { undone++ })
	require.NoError(t, s.tx.Savepoint("sp"))
	s.tx.OnRollback(func() { undone++ })

	require.NoError(t, s.tx.AbortToSavepoint("sp"))
	assert.Equal(t, 1, undone, "rolls back to the most recent savepoint of that name")
	assert.Equal(t, 1, s.tx.GetStatistics().PartialAborts)
}

func TestUnilateralAbortRunsAllUndo(t *testing.T) {
	s := setupTest(t)
	var log []int
	for i := range 3 {
		s.tx.OnRollback(func() { log = append(log, i) })
	}
	s.tx.OnCommit(func() error { t.Fatal("commit hook must not run"); return nil })

	reason := errors.New("flush failed")
	s.tx.UnilateralAbort(reason)

	assert.Equal(t, []int{2, 1, 0}, log)
	assert.Equal(t, TxAborted, s.tx.GetStatus())
	assert.Same(t, reason, s.tx.AbortReason())
	assert.True(t, errors.Is(s.tx.Commit(), ErrNotActive))
	assert.True(t, errors.Is(s.tx.Savepoint("x"), ErrNotActive))
}

func TestCommitRunsHooksInOrder(t *testing.T) {
	s := setupTest(t)
	var log []string
	hookErr := errors.New("boom")

	s.tx.OnCommit(func() error { log = append(log, "a"); return hookErr })
	s.tx.OnCommit(func() error { log = append(log, "b"); return nil })

	err := s.tx.Commit()
	assert.Same(t, hookErr, err)
	assert.Equal(t, []string{"a", "b"}, log)
}

func TestRegistryReleasesLocksOnEnd(t *testing.T) {
	s := setupTest(t)
	require.NoError(t, s.locks.Acquire(context.Background(), s.tx.ID, "Shape", lock.ExclusiveLock))
	assert.Equal(t, 1, s.registry.Count())

	require.NoError(t, s.tx.Abort())
	assert.False(t, s.locks.IsLocked("Shape"))
	assert.Equal(t, 0, s.registry.Count())

	_, err := s.registry.Get(s.tx.ID)
	assert.Error(t, err)
}

func TestRegistryActive(t *testing.T) {
	s := setupTest(t)
	other := s.registry.Begin()
	assert.Len(t, s.registry.GetActive(), 2)
	assert.NotEqual(t, s.tx.ID, other.ID)

	require.NoError(t, other.Commit())
	active := s.registry.GetActive()
	require.Len(t, active, 1)
	assert.Equal(t, s.tx.ID, active[0].ID)
}
