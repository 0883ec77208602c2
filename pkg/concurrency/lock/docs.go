// Package lock implements class-level Two-Phase Locking for classdb.
//
// # Overview
//
// A transaction acquires the locks it needs while it runs and releases them
// all at once on commit or abort. Readers take [SharedLock] on a class; a
// schema change takes [ExclusiveLock] on the class it edits and on every
// superclass and subclass it touches. A shared lock is upgraded in place when
// its holder is the only transaction on the class.
//
// # Acquisition
//
// [LockManager.Acquire] grants the lock immediately when no other transaction
// holds a conflicting one. Otherwise it records wait-for edges from the
// requester to every conflicting holder in the [WaitForGraph], looks for a
// wait cycle through the requester, and sleeps with exponential backoff before retrying. A
// cycle fails the request with [ErrDeadlock]; an expired context fails it with
// [ErrTimeout]. In both cases the caller is expected to abort its transaction.
//
// # Ordering
//
// Schema changes lock superclasses in inheritance order before any subclass,
// and subclasses top-down. Changers of overlapping hierarchies therefore
// request locks in a compatible order; the deadlock check covers the rest.
package lock
