package logging

import (
	"log/slog"

	"classdb/pkg/primitives"
)

// WithTx creates a logger with transaction context.
func WithTx(txID primitives.TxID) *slog.Logger {
	return GetLogger().With("tx_id", uint64(txID))
}

// WithClass creates a logger with class context.
// Use this for flattening and catalog operations on one class.
//
// Example:
//
//	log := logging.WithClass("Shape")
//	log.Debug("flattened", "attributes", len(flat.Attributes))
func WithClass(className string) *slog.Logger {
	return GetLogger().With("class", className)
}

// WithClassTx creates a logger with both transaction and class context.
func WithClassTx(txID primitives.TxID, className string) *slog.Logger {
	return GetLogger().With("tx_id", uint64(txID), "class", className)
}

// WithBTree creates a logger with B-tree context.
func WithBTree(id primitives.BTreeID) *slog.Logger {
	return GetLogger().With("btree", uint64(id))
}

// WithComponent creates a logger with component/subsystem context.
//
// Example:
//
//	log := logging.WithComponent("hierarchy")
//	log.Info("update installed", "classes", n)
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithError creates a logger with error context.
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
