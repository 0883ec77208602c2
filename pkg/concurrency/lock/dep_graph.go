package lock

import (
	"slices"

	"classdb/pkg/primitives"
)

// WaitForGraph records which transactions wait for class locks held by which
// others. An edge waiter → holder exists while waiter is blocked on a lock
// holder owns. The graph is guarded by the lock manager's mutex.
type WaitForGraph struct {
	waitsFor map[primitives.TxID][]primitives.TxID
}

// NewWaitForGraph returns an empty graph.
func NewWaitForGraph() *WaitForGraph {
	return &WaitForGraph{waitsFor: make(map[primitives.TxID][]primitives.TxID)}
}

// AddEdge records that waiter is blocked by holder.
func (g *WaitForGraph) AddEdge(waiter, holder primitives.TxID) {
	if waiter == holder || slices.Contains(g.waitsFor[waiter], holder) {
		return
	}
	g.waitsFor[waiter] = append(g.waitsFor[waiter], holder)
}

// RemoveWaiter forgets what waiter is blocked by. Edges pointing at waiter
// stay: it may still hold locks others are queued on.
func (g *WaitForGraph) RemoveWaiter(waiter primitives.TxID) {
	delete(g.waitsFor, waiter)
}

// RemoveTransaction drops tid from both ends of every edge. Called once the
// transaction has released its locks.
func (g *WaitForGraph) RemoveTransaction(tid primitives.TxID) {
	delete(g.waitsFor, tid)
	for waiter, holders := range g.waitsFor {
		holders = slices.DeleteFunc(holders, func(h primitives.TxID) bool { return h == tid })
		if len(holders) == 0 {
			delete(g.waitsFor, waiter)
			continue
		}
		g.waitsFor[waiter] = holders
	}
}

// CycleThrough returns a wait cycle starting and ending at tid, or nil. A
// request only adds edges out of its own transaction, so any deadlock it
// creates passes through it.
func (g *WaitForGraph) CycleThrough(tid primitives.TxID) []primitives.TxID {
	type frame struct {
		tx   primitives.TxID
		next int
	}
	visited := map[primitives.TxID]bool{tid: true}
	stack := []frame{{tx: tid}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		holders := g.waitsFor[top.tx]
		if top.next == len(holders) {
			stack = stack[:len(stack)-1]
			continue
		}
		h := holders[top.next]
		top.next++

		if h == tid {
			path := make([]primitives.TxID, 0, len(stack)+1)
			for _, f := range stack {
				path = append(path, f.tx)
			}
			return append(path, tid)
		}
		if !visited[h] {
			visited[h] = true
			stack = append(stack, frame{tx: h})
		}
	}
	return nil
}

// Waiters returns the blocked transactions in ascending order.
func (g *WaitForGraph) Waiters() []primitives.TxID {
	waiters := make([]primitives.TxID, 0, len(g.waitsFor))
	for tid := range g.waitsFor {
		waiters = append(waiters, tid)
	}
	slices.Sort(waiters)
	return waiters
}
