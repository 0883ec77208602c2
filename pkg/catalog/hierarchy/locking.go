package hierarchy

import (
	"github.com/juju/collections/set"

	"classdb/pkg/catalog/schemaerrors"
)

// supersOf returns the superclasses of class as the update sees them: the
// pending list when the class has a template, the committed one otherwise.
func (d *Driver) supersOf(class string) []string {
	if supers, ok := d.catalog.PendingSupers(class); ok {
		return supers
	}
	return d.catalog.Supers(class)
}

// ancestors returns the transitive closure of supers.
func (d *Driver) ancestors(supers []string) set.Strings {
	seen := set.NewStrings()
	work := append([]string(nil), supers...)
	for len(work) > 0 {
		name := work[len(work)-1]
		work = work[:len(work)-1]
		if seen.Contains(name) {
			continue
		}
		seen.Add(name)
		work = append(work, d.supersOf(name)...)
	}
	return seen
}

// descendants returns the committed subclass closure of the edited class.
// A class being created has none.
func (u *update) descendants() set.Strings {
	if u.tpl.Current == nil {
		return set.NewStrings()
	}
	return set.NewStrings(u.d.catalog.Subclasses(u.tpl.Name)...)
}

// checkCycle rejects an edit whose new superclass closure reaches the class
// itself or one of its subclasses. It runs before the template is flattened
// and before any subclass is locked.
func (u *update) checkCycle(descendants set.Strings) error {
	above := u.d.ancestors(u.tpl.Supers)
	if above.Contains(u.tpl.Name) {
		return schemaerrors.Definition(schemaerrors.InheritanceCycle, component,
			"class %q would inherit from itself", u.tpl.Name)
	}
	if both := above.Intersection(descendants); !both.IsEmpty() {
		return schemaerrors.Definition(schemaerrors.InheritanceCycle, component,
			"class %q would inherit from its subclasses %v", u.tpl.Name, both.SortedValues())
	}
	return nil
}

// lockSubclasses write-locks descendants top-down and returns them in that
// order.
func (u *update) lockSubclasses(descendants set.Strings) ([]string, error) {
	order := u.d.topDown(descendants)
	for _, name := range order {
		if err := u.d.lock(u.ctx, u.tx, name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// topDown orders classes so that each comes after all of its superclasses
// within the set. Ties are broken by name.
func (d *Driver) topDown(classes set.Strings) []string {
	pending := make(map[string]int, classes.Size())
	children := make(map[string][]string)
	for _, name := range classes.SortedValues() {
		for _, s := range d.supersOf(name) {
			if classes.Contains(s) {
				pending[name]++
				children[s] = append(children[s], name)
			}
		}
	}

	ready := set.NewStrings()
	for _, name := range classes.Values() {
		if pending[name] == 0 {
			ready.Add(name)
		}
	}
	order := make([]string, 0, classes.Size())
	for !ready.IsEmpty() {
		name := ready.SortedValues()[0]
		ready.Remove(name)
		order = append(order, name)
		for _, child := range children[name] {
			pending[child]--
			if pending[child] == 0 {
				ready.Add(child)
			}
		}
	}
	return order
}
