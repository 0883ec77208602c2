package lock

import (
	"slices"

	"classdb/pkg/primitives"
)

// LockTable maps classes to granted locks and transactions to the classes
// they hold.
type LockTable struct {
	classLocks       map[string][]*Lock
	transactionLocks map[primitives.TxID]map[string]LockType
}

func NewLockTable() *LockTable {
	return &LockTable{
		classLocks:       make(map[string][]*Lock),
		transactionLocks: make(map[primitives.TxID]map[string]LockType),
	}
}

// HasSufficientLock checks if the transaction already holds a lock on the
// class at least as strong as reqLockType.
func (lt *LockTable) HasSufficientLock(tid primitives.TxID, class string, reqLockType LockType) bool {
	held, ok := lt.transactionLocks[tid][class]
	if !ok {
		return false
	}
	return held == ExclusiveLock || reqLockType == SharedLock
}

// Held returns the mode tid holds class in.
func (lt *LockTable) Held(tid primitives.TxID, class string) (LockType, bool) {
	held, ok := lt.transactionLocks[tid][class]
	return held, ok
}

func (lt *LockTable) ClassLocks(class string) []*Lock {
	return lt.classLocks[class]
}

// CanGrant reports whether tid can take class in lockType without waiting.
// Locks tid already holds never conflict, which also covers upgrades.
func (lt *LockTable) CanGrant(tid primitives.TxID, class string, lockType LockType) bool {
	return !slices.ContainsFunc(lt.classLocks[class], func(l *Lock) bool {
		if l.TID == tid {
			return false
		}
		return lockType == ExclusiveLock || l.LockType == ExclusiveLock
	})
}

// Grant records the lock, upgrading an existing shared lock of tid in place.
func (lt *LockTable) Grant(tid primitives.TxID, class string, lockType LockType) {
	if lt.transactionLocks[tid] == nil {
		lt.transactionLocks[tid] = make(map[string]LockType)
	}
	if _, held := lt.transactionLocks[tid][class]; held {
		for _, l := range lt.classLocks[class] {
			if l.TID == tid {
				l.LockType = max(l.LockType, lockType)
			}
		}
		lt.transactionLocks[tid][class] = max(lt.transactionLocks[tid][class], lockType)
		return
	}
	lt.classLocks[class] = append(lt.classLocks[class], NewLock(tid, lockType))
	lt.transactionLocks[tid][class] = lockType
}

// Blockers returns the transactions whose locks keep tid from taking class.
func (lt *LockTable) Blockers(tid primitives.TxID, class string, lockType LockType) []primitives.TxID {
	var out []primitives.TxID
	for _, l := range lt.classLocks[class] {
		if l.TID != tid && (lockType == ExclusiveLock || l.LockType == ExclusiveLock) {
			out = append(out, l.TID)
		}
	}
	return out
}

// ReleaseAll drops every lock of tid and returns the classes it held.
func (lt *LockTable) ReleaseAll(tid primitives.TxID) []string {
	held := lt.transactionLocks[tid]
	classes := make([]string, 0, len(held))
	for class := range held {
		classes = append(classes, class)
		remaining := slices.DeleteFunc(slices.Clone(lt.classLocks[class]), func(l *Lock) bool {
			return l.TID == tid
		})
		updateOrDelete(lt.classLocks, class, remaining)
	}
	delete(lt.transactionLocks, tid)
	slices.Sort(classes)
	return classes
}

// IsLocked reports whether any transaction holds a lock on class.
func (lt *LockTable) IsLocked(class string) bool {
	return len(lt.classLocks[class]) > 0
}
