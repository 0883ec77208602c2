package database

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"classdb/pkg/catalog/catalogmanager"
	"classdb/pkg/catalog/hierarchy"
	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
	"classdb/pkg/concurrency/lock"
	"classdb/pkg/concurrency/transaction"
	"classdb/pkg/config"
	"classdb/pkg/dberror"
	"classdb/pkg/indexmanager"
	"classdb/pkg/logging"
	"classdb/pkg/primitives"
	"classdb/pkg/storage/btree"
	"classdb/pkg/storage/heap"
	"classdb/pkg/trigger"
)

// EditFunc mutates a template before it is applied.
type EditFunc func(tpl *schema.Template) error

// Database represents the main database engine that coordinates all components
type Database struct {
	catalogMgr *catalogmanager.CatalogManager
	driver     *hierarchy.Driver
	store      *btree.Store
	heap       *heap.Heap
	locks      *lock.LockManager
	txRegistry *transaction.TransactionRegistry
	formatter  *ResultFormatter

	name   string
	params config.Parameters

	mutex sync.RWMutex
	stats *DatabaseStats
}

// DatabaseStats tracks performance metrics
type DatabaseStats struct {
	StatementsExecuted int64
	TransactionsCount  int64
	ErrorCount         int64
	mutex              sync.RWMutex
}

// QueryResult represents the result of a statement
type QueryResult struct {
	Success      bool
	Columns      []string
	Rows         [][]string
	RowsAffected int
	Message      string
	Error        error
}

// DatabaseInfo contains database metadata
type DatabaseInfo struct {
	Name               string
	Classes            []string
	ClassCount         int
	SchemaVersion      int64
	BTrees             int
	StatementsExecuted int64
	TransactionsCount  int64
	ErrorCount         int64
}

// NewDatabase wires the catalog, the schema driver and the in-memory
// storage collaborators.
func NewDatabase(name string, params config.Parameters) (*Database, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	triggers := trigger.NewManager()
	locks := lock.NewLockManager(params.LockTimeout)
	store := btree.NewStore(params.BTreeDegree)
	instances := heap.NewHeap()
	catalogMgr := catalogmanager.NewCatalogManager(triggers, params.MaxRepresentations)
	indexes := indexmanager.NewIndexManager(store, instances, catalogMgr)

	db := &Database{
		catalogMgr: catalogMgr,
		driver:     hierarchy.NewDriver(catalogMgr, locks, instances, indexes, triggers, params),
		store:      store,
		heap:       instances,
		locks:      locks,
		txRegistry: transaction.NewTransactionRegistry(locks),
		formatter:  NewResultFormatter(),
		name:       name,
		params:     params,
		stats:      &DatabaseStats{},
	}
	logging.WithComponent("database").Info("database opened", "name", name,
		"max_representations", params.MaxRepresentations, "auto_resolve", params.AutoResolve)
	return db, nil
}

// BeginTransaction starts a new transaction
func (db *Database) BeginTransaction() *transaction.TransactionContext {
	db.stats.mutex.Lock()
	db.stats.TransactionsCount++
	db.stats.mutex.Unlock()
	return db.txRegistry.Begin()
}

// CommitTransaction commits a transaction
func (db *Database) CommitTransaction(tx *transaction.TransactionContext) error {
	return tx.Commit()
}

// AbortTransaction rolls a transaction back
func (db *Database) AbortTransaction(tx *transaction.TransactionContext) error {
	return tx.Abort()
}

// RunInTransaction runs fn in a fresh transaction, committing on success and
// rolling back on failure.
func (db *Database) RunInTransaction(fn func(tx *transaction.TransactionContext) error) (err error) {
	tx := db.BeginTransaction()
	defer db.cleanupTransaction(tx, &err)

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (db *Database) cleanupTransaction(tx *transaction.TransactionContext, err *error) {
	if *err == nil {
		db.recordSuccess()
		return
	}
	db.recordError()
	if tx.IsActive() {
		if abortErr := tx.Abort(); abortErr != nil {
			logging.WithTx(tx.TxID()).Error("failed to abort transaction", "error", abortErr)
		}
	}
}

// CreateClass defines a new class. edit fills in the template; the class is
// created only if edit and the schema change both succeed.
func (db *Database) CreateClass(ctx context.Context, tx *transaction.TransactionContext, name string, kind schema.ClassKind, edit EditFunc) (QueryResult, error) {
	tpl, err := db.driver.Create(ctx, tx, name, kind)
	if err != nil {
		return QueryResult{}, err
	}
	if err := db.apply(ctx, tx, tpl, edit); err != nil {
		return QueryResult{}, err
	}
	class, _ := db.catalogMgr.Class(name)
	return db.formatter.FormatDDL("created", class), nil
}

// AlterClass edits an existing class and every class inheriting from it.
func (db *Database) AlterClass(ctx context.Context, tx *transaction.TransactionContext, name string, edit EditFunc) (QueryResult, error) {
	tpl, err := db.driver.Edit(ctx, tx, name)
	if err != nil {
		return QueryResult{}, err
	}
	if err := db.apply(ctx, tx, tpl, edit); err != nil {
		return QueryResult{}, err
	}
	class, _ := db.catalogMgr.Class(name)
	return db.formatter.FormatDDL("altered", class), nil
}

// apply runs edit and installs the template. The template is discarded on
// any error, so the statement can simply be retried.
func (db *Database) apply(ctx context.Context, tx *transaction.TransactionContext, tpl *schema.Template, edit EditFunc) error {
	if edit != nil {
		if err := edit(tpl); err != nil {
			db.driver.Abort(tpl)
			return err
		}
	}
	if err := db.driver.Apply(ctx, tx, tpl); err != nil {
		db.driver.Abort(tpl)
		return err
	}
	return nil
}

// DropClass removes a class.
func (db *Database) DropClass(ctx context.Context, tx *transaction.TransactionContext, name string) (QueryResult, error) {
	class, _ := db.catalogMgr.Class(name)
	if err := db.driver.Drop(ctx, tx, name); err != nil {
		return QueryResult{}, err
	}
	return db.formatter.FormatDDL("dropped", class), nil
}

// Insert stores a new instance of class. values are keyed by attribute name.
// The instance's keys are added to every constraint tree of the class.
func (db *Database) Insert(ctx context.Context, tx *transaction.TransactionContext, name string, values map[string]any) (QueryResult, error) {
	if err := db.locks.Acquire(ctx, tx.TxID(), name, lock.SharedLock); err != nil {
		return QueryResult{}, schemaerrors.Resource(schemaerrors.LockTimeout, "database", "locking class %q: %v", name, err)
	}
	class, ok := db.catalogMgr.Class(name)
	if !ok {
		return QueryResult{}, schemaerrors.Definition(schemaerrors.ClassNotFound, "database", "class %q does not exist", name)
	}
	if class.Kind == schema.KindView {
		return QueryResult{}, dberror.New(dberror.ErrCategoryUser, "VIEW_INSERT", fmt.Sprintf("cannot insert into view %q", name))
	}

	byID, err := bindValues(class, values)
	if err != nil {
		return QueryResult{}, err
	}

	oid := db.heap.Insert(name, class.Repr, byID)
	tx.OnRollback(func() { _ = db.heap.Delete(name, oid) })

	for _, c := range class.Constraints {
		if !c.BTree.IsAllocated() || c.Kind == schema.ConstraintForeignKey {
			continue
		}
		row := btree.Row{OID: oid, Key: keyOf(c, byID)}
		if err := db.store.Insert(c.BTree, name, row); err != nil {
			return QueryResult{}, dberror.Wrap(err, "CONSTRAINT_VIOLATION", "insert", "database").
				WithDetail("constraint %q of class %q", c.Name, name)
		}
		id := c.BTree
		tx.OnRollback(func() { _ = db.store.DeleteRow(id, name, row) })
	}
	return db.formatter.FormatInsert(name, oid), nil
}

func bindValues(class *schema.Class, values map[string]any) (map[primitives.AttrID]any, error) {
	byID := make(map[primitives.AttrID]any, len(values))
	for attrName, v := range values {
		a := class.Attribute(attrName)
		if a == nil {
			return nil, schemaerrors.Definition(schemaerrors.MemberNotFound, "database",
				"class %q has no attribute %q", class.Name, attrName)
		}
		byID[a.ID] = v
	}
	for _, a := range class.Attributes {
		if _, ok := byID[a.ID]; !ok && a.Default != "" {
			byID[a.ID] = a.Default
		}
		if a.NotNull && byID[a.ID] == nil {
			return nil, dberror.New(dberror.ErrCategoryUser, "NOT_NULL_VIOLATION",
				fmt.Sprintf("attribute %q of class %q may not be null", a.Name, class.Name))
		}
	}
	return byID, nil
}

func keyOf(c *schema.Constraint, values map[primitives.AttrID]any) btree.Key {
	key := make(btree.Key, len(c.Attributes))
	for i, ca := range c.Attributes {
		key[i] = values[ca.ID]
	}
	return key
}

// Class returns the committed definition of a class.
func (db *Database) Class(name string) (*schema.Class, bool) {
	return db.catalogMgr.Class(name)
}

// DescribeClass returns the attributes of a class as rows.
func (db *Database) DescribeClass(name string) (QueryResult, error) {
	class, ok := db.catalogMgr.Class(name)
	if !ok {
		return QueryResult{}, schemaerrors.Definition(schemaerrors.ClassNotFound, "database", "class %q does not exist", name)
	}
	return db.formatter.FormatClass(class), nil
}

// GetClasses returns the names of all classes, sorted.
func (db *Database) GetClasses() []string {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.catalogMgr.Names()
}

// Count returns the number of instances of a class.
func (db *Database) Count(name string) int {
	return db.heap.Count(name)
}

// BTreeLen returns the number of rows in the tree behind a constraint.
func (db *Database) BTreeLen(class, constraint string) int {
	c, ok := db.catalogMgr.Class(class)
	if !ok {
		return 0
	}
	if k := c.Constraint(constraint); k != nil {
		return db.store.Len(k.BTree)
	}
	return 0
}

// GetStatistics returns current database statistics
func (db *Database) GetStatistics() DatabaseInfo {
	db.stats.mutex.RLock()
	defer db.stats.mutex.RUnlock()

	classes := db.GetClasses()
	return DatabaseInfo{
		Name:               db.name,
		Classes:            classes,
		ClassCount:         len(classes),
		SchemaVersion:      db.catalogMgr.Version(),
		BTrees:             len(db.store.IDs()),
		StatementsExecuted: db.stats.StatementsExecuted,
		TransactionsCount:  db.stats.TransactionsCount,
		ErrorCount:         db.stats.ErrorCount,
	}
}

// CheckOwnership verifies that every allocated tree has exactly one owner.
func (db *Database) CheckOwnership() error {
	for id, owners := range indexmanager.Owners(db.catalogMgr.Definitions()) {
		if len(owners) != 1 {
			slices.Sort(owners)
			return fmt.Errorf("%s is owned by %v", id, owners)
		}
	}
	return nil
}

// recordError updates error statistics
func (db *Database) recordError() {
	db.stats.mutex.Lock()
	db.stats.ErrorCount++
	db.stats.mutex.Unlock()
}

// recordSuccess updates success statistics
func (db *Database) recordSuccess() {
	db.stats.mutex.Lock()
	db.stats.StatementsExecuted++
	db.stats.mutex.Unlock()
}
