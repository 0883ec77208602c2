package lock

import (
	"time"

	"github.com/juju/errors"

	"classdb/pkg/primitives"
)

// LockType is the mode a class lock is held in.
type LockType int

const (
	SharedLock LockType = iota
	ExclusiveLock
)

func (l LockType) String() string {
	if l == ExclusiveLock {
		return "exclusive"
	}
	return "shared"
}

const (
	// ErrDeadlock is returned when waiting for a lock would close a cycle in
	// the wait-for graph.
	ErrDeadlock = errors.ConstError("deadlock detected")

	// ErrTimeout is returned when the context ends before the lock is granted.
	ErrTimeout = errors.ConstError("lock wait timed out")
)

// Lock is one granted lock on a class.
type Lock struct {
	TID       primitives.TxID
	LockType  LockType
	GrantTime time.Time
}

func NewLock(tid primitives.TxID, lockType LockType) *Lock {
	return &Lock{
		TID:       tid,
		LockType:  lockType,
		GrantTime: time.Now(),
	}
}
