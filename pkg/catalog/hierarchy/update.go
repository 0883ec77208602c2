package hierarchy

import (
	"context"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"classdb/pkg/catalog/flatten"
	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
	"classdb/pkg/dberror"
	"classdb/pkg/indexmanager"
	"classdb/pkg/logging"
)

// member is one class taking part in an update.
type member struct {
	tpl      *schema.Template
	current  *schema.Class
	needsNew bool
	// attached is set for subclass templates the update created itself.
	attached bool
}

// update is one run of the state machine.
type update struct {
	d     *Driver
	ctx   context.Context
	tx    TxContext
	tpl   *schema.Template
	state State
	subs  []*member
	log   *slog.Logger
}

func (u *update) enter(s State) {
	from := u.state
	u.state = s
	u.log.Debug("hierarchy update state", "from", from.String(), "to", s.String())
	if u.d.onTransition != nil {
		u.d.onTransition(u.tpl.Name, from, s)
	}
}

// Apply installs tpl and re-flattens every class inheriting from it.
//
// Definition and capacity errors leave the catalog untouched and tpl open
// for more editing. Severe errors raised while installing roll tx back to a
// savepoint taken before the first change when the error allows it, and
// abort tx otherwise.
func (d *Driver) Apply(ctx context.Context, tx TxContext, tpl *schema.Template) error {
	u := &update{
		d:   d,
		ctx: ctx,
		tx:  tx,
		tpl: tpl,
		log: logging.WithClassTx(tx.TxID(), tpl.Name),
	}
	if err := u.run(); err != nil {
		if u.state != Aborted {
			u.enter(Aborted)
		}
		return err
	}
	return nil
}

func (u *update) run() error {
	if err := u.lockSupers(); err != nil {
		return u.fail(err)
	}
	u.enter(SupersLocked)

	descendants := u.descendants()
	if err := u.checkCycle(descendants); err != nil {
		return u.fail(err)
	}

	flat, err := u.d.flattener.Flatten(u.tpl)
	if err != nil {
		return u.fail(err)
	}
	u.tpl.Flat = flat
	u.enter(Flattened)

	order, err := u.lockSubclasses(descendants)
	if err != nil {
		return u.fail(err)
	}
	u.enter(SubsLocked)

	if err := u.flattenSubclasses(order); err != nil {
		return u.fail(err)
	}
	u.enter(SubsFlattened)

	members, err := u.prepare()
	if err != nil {
		return u.fail(err)
	}
	if err := u.install(members); err != nil {
		return err
	}
	u.enter(Installed)
	u.log.Info("schema change installed", "subclasses", len(u.subs), "version", u.d.catalog.Version())
	return nil
}

// lockSupers write-locks the superclasses being added or removed, in
// inheritance order.
func (u *update) lockSupers() error {
	var before []string
	if u.tpl.Current != nil {
		before = u.tpl.Current.Supers
	}
	var changed []string
	for _, s := range u.tpl.Supers {
		if !slices.Contains(before, s) {
			changed = append(changed, s)
		}
	}
	for _, s := range before {
		if !slices.Contains(u.tpl.Supers, s) {
			changed = append(changed, s)
		}
	}
	for _, s := range changed {
		if err := u.d.lock(u.ctx, u.tx, s); err != nil {
			return err
		}
	}
	return nil
}

// flattenSubclasses flattens every subclass in dependency order. Each flat
// is published on its template so deeper subclasses inherit from it.
func (u *update) flattenSubclasses(order []string) error {
	for _, name := range order {
		tpl, attached, err := u.subclassTemplate(name)
		if err != nil {
			return err
		}
		m := &member{tpl: tpl, attached: attached}
		u.subs = append(u.subs, m)

		flat, err := u.d.flattener.Flatten(tpl)
		if err != nil {
			return err
		}
		tpl.Flat = flat
		u.log.Debug("subclass flattened", "subclass", name, "attributes", len(flat.Attributes))
	}
	return nil
}

// subclassTemplate returns the live template of a subclass, or attaches a
// fresh one seeded with its committed definition.
func (u *update) subclassTemplate(name string) (*schema.Template, bool, error) {
	if tpl, ok := u.d.catalog.Template(name); ok {
		return tpl, false, nil
	}
	class, ok := u.d.catalog.Class(name)
	if !ok {
		return nil, false, schemaerrors.Definition(schemaerrors.ClassNotFound, component,
			"subclass %q of %q does not exist", name, u.tpl.Name)
	}
	tpl := schema.EditTemplate(class)
	if err := u.d.catalog.Attach(tpl); err != nil {
		return nil, false, err
	}
	return tpl, true, nil
}

// prepare runs the storage-order builder over the edited class and then
// every subclass, and checks the representation bound, before anything is
// changed.
func (u *update) prepare() ([]*member, error) {
	members := append([]*member{{tpl: u.tpl}}, u.subs...)
	for _, m := range members {
		name := m.tpl.Name
		if c, ok := u.d.catalog.Class(name); ok {
			m.current = c
		}
		needsNew, err := u.d.order.Build(m.current, m.tpl.Flat)
		if err != nil {
			return nil, err
		}
		m.needsNew = needsNew
		if err := u.d.catalog.CheckRepresentations(name, needsNew); err != nil {
			return nil, err
		}
	}
	return members, nil
}

// install swaps in every flat, supers before subs.
func (u *update) install(members []*member) error {
	sp := "schema-" + uuid.NewString()
	if err := u.tx.Savepoint(sp); err != nil {
		return u.fail(schemaerrors.Severe(schemaerrors.InstallFailed, err, component,
			"class %q: taking savepoint", u.tpl.Name))
	}

	session := u.d.indexes.NewSession()
	for _, m := range members {
		if err := u.installOne(session, m); err != nil {
			return u.severe(sp, err)
		}
	}
	return nil
}

func (u *update) installOne(session *indexmanager.Session, m *member) error {
	name := m.tpl.Name
	flat := m.tpl.Flat
	flatten.FixupDomains(flat, name)

	if m.current != nil && m.needsNew && u.d.heap.HasInstances(name) {
		if err := u.d.heap.FlushAllInstances(name); err != nil {
			return schemaerrors.Severe(schemaerrors.InstallFailed, err, component,
				"class %q: flushing instances", name)
		}
	}
	if err := session.Install(u.ctx, u.tx, m.current, flat); err != nil {
		return err
	}
	if _, err := u.d.catalog.Install(u.tx, flat, m.needsNew); err != nil {
		return schemaerrors.Severe(schemaerrors.InstallFailed, err, component,
			"class %q: installing definition", name)
	}
	return nil
}

// fail ends an update that changed nothing. Subclass templates created by
// the update are dropped; the edited template stays open.
func (u *update) fail(err error) error {
	u.releaseSubclasses()
	u.tpl.Flat = nil
	u.enter(Aborted)
	u.log.Debug("schema change rejected", "error", err)
	return err
}

func (u *update) releaseSubclasses() {
	for _, m := range u.subs {
		m.tpl.Flat = nil
		if m.attached {
			u.d.catalog.Detach(m.tpl)
		}
	}
	u.subs = nil
}

// severe rolls back after a failure during install. A uniqueness violation
// only undoes the work since the savepoint and leaves tpl open; anything
// else aborts the transaction and discards tpl.
func (u *update) severe(sp string, err error) error {
	logging.WithError(err).Warn("schema change failed during install",
		"class", u.tpl.Name, "tx", u.tx.TxID(), "rollback", dberror.RollbackOf(err).String())

	if dberror.RollbackOf(err) == dberror.RollbackSavepoint {
		if rbErr := u.tx.AbortToSavepoint(sp); rbErr == nil {
			u.releaseSubclasses()
			u.tpl.Flat = nil
			if attachErr := u.d.catalog.Attach(u.tpl); attachErr != nil {
				u.log.Warn("template could not be reattached", "error", attachErr)
			}
			u.enter(Aborted)
			return err
		}
	}

	u.tx.UnilateralAbort(err)
	u.releaseSubclasses()
	u.d.Abort(u.tpl)
	u.enter(Aborted)
	return err
}
