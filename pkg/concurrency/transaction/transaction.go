package transaction

import (
	"sync/atomic"

	"classdb/pkg/primitives"
)

var transactionCounter atomic.Uint64

// NewTransactionID returns a fresh, process-unique transaction id.
func NewTransactionID() primitives.TxID {
	return primitives.TxID(transactionCounter.Add(1))
}
