// Package logging provides the process-wide structured logger of the schema engine.
//
// The package wraps [log/slog] and exposes a single global logger instance
// that is initialized once and then retrieved via GetLogger. Catalog, flattening,
// index allocation and hierarchy updates all log through this package so that
// level and destination are controlled from one place.
//
// # Initialisation
//
//	if err := logging.Init(logging.Config{Level: logging.LevelDebug, Format: "json"}); err != nil {
//	    log.Fatal(err)
//	}
//
// InitDefault writes INFO-level text logs to stderr.
//
// # Context helpers
//
//	log := logging.WithClass("Shape")        // adds class field
//	log := logging.WithClassTx(tx, "Shape")  // adds tx_id and class fields
//	log := logging.WithBTree(id)             // adds btree field
package logging
