package catalogmanager

import (
	"sync"
	"sync/atomic"

	"classdb/pkg/catalog/classcache"
	"classdb/pkg/catalog/schema"
	"classdb/pkg/concurrency/transaction"
	"classdb/pkg/primitives"
	"classdb/pkg/trigger"
)

const component = "catalog"

// TxContext is the transaction catalog changes are recorded in. Every change
// registers its undo with it.
type TxContext = *transaction.TransactionContext

// CatalogManager holds the committed class definitions and the templates
// attached to them.
//
// The CatalogManager is organized across multiple files:
//   - catalog_manager.go: Core struct and constructor
//   - class_queries.go: Lookups used by flattening and index allocation
//   - templates.go: Attaching and detaching templates
//   - class_lifecycle.go: Installing, removing and patching classes
//
// Every mutation registers its undo action on the transaction, so a
// rollback restores the catalog exactly.
type CatalogManager struct {
	mutex    sync.RWMutex
	classes  map[string]*schema.Class
	reserved map[string]*schema.Template
	nextID   primitives.ClassID

	cache    *classcache.ClassCache
	triggers *trigger.Manager
	version  atomic.Int64
	maxReprs int
}

// NewCatalogManager creates an empty catalog.
//
// Parameters:
//   - triggers: Manager releasing trigger caches of replaced definitions
//   - maxReprs: Bound on the number of representations per class
func NewCatalogManager(triggers *trigger.Manager, maxReprs int) *CatalogManager {
	return &CatalogManager{
		classes:  make(map[string]*schema.Class),
		reserved: make(map[string]*schema.Template),
		nextID:   1,
		cache:    classcache.NewClassCache(0),
		triggers: triggers,
		maxReprs: maxReprs,
	}
}

// Version returns the schema version, bumped by every install and removal.
func (cm *CatalogManager) Version() int64 {
	return cm.version.Load()
}

// CacheStats exposes the lookup cache counters.
func (cm *CatalogManager) CacheStats() classcache.Stats {
	return cm.cache.Stats()
}
