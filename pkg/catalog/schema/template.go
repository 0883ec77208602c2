package schema

import (
	"slices"

	"classdb/pkg/catalog/domain"
	"classdb/pkg/catalog/schemaerrors"
	"classdb/pkg/primitives"
	"classdb/pkg/trigger"
)

const component = "schema"

// Template is a mutable, uncommitted edit of one class. It only holds what the
// class defines itself; inherited members are recomputed by flattening.
//
// Definition errors returned by the edit methods leave the template unchanged
// and open for further editing.
type Template struct {
	Name        string
	Kind        ClassKind
	PartitionOf string
	// Current is the committed class being edited, nil when creating.
	Current *Class

	Supers           []string
	Attributes       []*Attribute
	SharedAttributes []*Attribute
	ClassAttributes  []*Attribute
	Methods          []*Method
	ClassMethods     []*Method
	Resolutions      []Resolution
	MethodFiles      []MethodFile
	QuerySpecs       []QuerySpec
	Constraints      []*Constraint
	Triggers         *trigger.SchemaCache

	// Flat is the result of the last flattening pass.
	Flat *Flat

	order int
}

// NewTemplate returns an empty template for a class that does not exist yet.
func NewTemplate(name string, kind ClassKind) *Template {
	return &Template{Name: name, Kind: kind}
}

// EditTemplate returns a template seeded with the local definition of class.
func EditTemplate(class *Class) *Template {
	t := &Template{
		Name:        class.Name,
		Kind:        class.Kind,
		PartitionOf: class.PartitionOf,
		Current:     class,
		Supers:      slices.Clone(class.Supers),
		Resolutions: slices.Clone(class.Resolutions),
		QuerySpecs:  slices.Clone(class.QuerySpecs),
		Triggers:    class.Triggers.Local(class.Name),
	}
	t.Attributes = t.localAttributes(class.Attributes)
	t.SharedAttributes = t.localAttributes(class.SharedAttributes)
	t.ClassAttributes = t.localAttributes(class.ClassAttributes)
	t.Methods = t.localMethods(class.Methods)
	t.ClassMethods = t.localMethods(class.ClassMethods)

	for _, mf := range class.MethodFiles {
		if mf.Origin == class.Name {
			t.MethodFiles = append(t.MethodFiles, mf)
		}
	}
	for _, c := range class.Constraints {
		if c.Origin == class.Name {
			t.Constraints = append(t.Constraints, c.Clone())
		}
	}
	return t
}

func (t *Template) localAttributes(attrs []*Attribute) []*Attribute {
	var out []*Attribute
	for _, a := range attrs {
		if a.Origin != t.Name {
			continue
		}
		c := a.Clone()
		c.Order = t.nextOrder()
		out = append(out, c)
	}
	return out
}

func (t *Template) localMethods(methods []*Method) []*Method {
	var out []*Method
	for _, m := range methods {
		if m.Origin != t.Name {
			continue
		}
		c := m.Clone()
		c.Order = t.nextOrder()
		out = append(out, c)
	}
	return out
}

func (t *Template) nextOrder() int {
	t.order++
	return t.order
}

// IsNew reports whether the template creates a class.
func (t *Template) IsNew() bool {
	return t.Current == nil
}

// LocalAttributes returns the local attribute list of namespace ns.
func (t *Template) LocalAttributes(ns Namespace) []*Attribute {
	switch ns {
	case NamespaceAttribute:
		return t.Attributes
	case NamespaceShared:
		return t.SharedAttributes
	case NamespaceClassAttribute:
		return t.ClassAttributes
	default:
		return nil
	}
}

// LocalMethods returns the local method list of namespace ns.
func (t *Template) LocalMethods(ns Namespace) []*Method {
	switch ns {
	case NamespaceMethod:
		return t.Methods
	case NamespaceClassMethod:
		return t.ClassMethods
	default:
		return nil
	}
}

func (t *Template) attributeList(ns Namespace) *[]*Attribute {
	switch ns {
	case NamespaceAttribute:
		return &t.Attributes
	case NamespaceShared:
		return &t.SharedAttributes
	case NamespaceClassAttribute:
		return &t.ClassAttributes
	default:
		return nil
	}
}

func (t *Template) methodList(ns Namespace) *[]*Method {
	switch ns {
	case NamespaceMethod:
		return &t.Methods
	case NamespaceClassMethod:
		return &t.ClassMethods
	default:
		return nil
	}
}

// HasLocal reports whether the template defines name itself in scope.
func (t *Template) HasLocal(scope Scope, name string) bool {
	_, ok := t.localNamespace(scope, name)
	return ok
}

func (t *Template) localNamespace(scope Scope, name string) (Namespace, bool) {
	for _, ns := range scope.Namespaces() {
		if ns.IsMethod() {
			if findMethod(t.LocalMethods(ns), name) != nil {
				return ns, true
			}
			continue
		}
		if findAttribute(t.LocalAttributes(ns), name) != nil {
			return ns, true
		}
	}
	return 0, false
}

func (t *Template) checkNewName(ns Namespace, name string) error {
	existing, ok := t.localNamespace(ns.Scope(), name)
	if !ok {
		return nil
	}
	if existing.IsMethod() != ns.IsMethod() {
		return schemaerrors.Definition(schemaerrors.AttributeMethodOverlap, component,
			"%s %q of class %q already names a %s", ns, name, t.Name, existing)
	}
	return schemaerrors.Definition(schemaerrors.DuplicateName, component,
		"class %q already defines %s %q", t.Name, existing, name)
}

// notLocal builds the error for a member the template does not define: either
// it is inherited or it does not exist at all.
func (t *Template) notLocal(scope Scope, name string) error {
	if t.Current != nil && HasMember(t.Current, scope, name) {
		return schemaerrors.Definition(schemaerrors.InheritedMember, component,
			"%q is inherited by class %q and cannot be changed there", name, t.Name)
	}
	return schemaerrors.Definition(schemaerrors.MemberNotFound, component,
		"class %q has no member %q", t.Name, name)
}

// AddAttribute declares a new local attribute.
func (t *Template) AddAttribute(ns Namespace, name string, d *domain.Domain) (*Attribute, error) {
	list := t.attributeList(ns)
	if list == nil {
		return nil, schemaerrors.Definition(schemaerrors.AttributeMethodOverlap, component,
			"%s is not an attribute namespace", ns)
	}
	if t.Kind == KindPartition {
		return nil, schemaerrors.Definition(schemaerrors.PartitionMismatch, component,
			"partition %q cannot define attributes", t.Name)
	}
	if err := t.checkNewName(ns, name); err != nil {
		return nil, err
	}
	a := &Attribute{
		ID:        primitives.InvalidAttrID,
		OriginID:  primitives.InvalidAttrID,
		Name:      name,
		Namespace: ns,
		Domain:    d.Clone(),
		Origin:    t.Name,
		Order:     t.nextOrder(),
	}
	*list = append(*list, a)
	return a, nil
}

func (t *Template) findLocalAttribute(name string) (*[]*Attribute, int) {
	for _, ns := range []Namespace{NamespaceAttribute, NamespaceShared, NamespaceClassAttribute} {
		list := t.attributeList(ns)
		if i := slices.IndexFunc(*list, func(a *Attribute) bool { return a.Name == name }); i >= 0 {
			return list, i
		}
	}
	return nil, -1
}

// DropAttribute removes a local attribute together with the local constraints
// that cover it.
func (t *Template) DropAttribute(name string) error {
	list, i := t.findLocalAttribute(name)
	if list == nil {
		return t.notLocal(ScopeInstance, name)
	}
	dropped := (*list)[i]
	*list = slices.Delete(*list, i, i+1)
	if dropped.Namespace == NamespaceAttribute {
		t.Constraints = slices.DeleteFunc(t.Constraints, func(c *Constraint) bool {
			return slices.Contains(c.AttributeNames(), name)
		})
	}
	return nil
}

// RenameAttribute renames a local attribute. The attribute keeps its id, so
// inheriting classes keep theirs too.
func (t *Template) RenameAttribute(oldName, newName string) error {
	list, i := t.findLocalAttribute(oldName)
	if list == nil {
		return t.notLocal(ScopeInstance, oldName)
	}
	a := (*list)[i]
	if err := t.checkNewName(a.Namespace, newName); err != nil {
		return err
	}
	a.Name = newName
	for _, c := range t.Constraints {
		for j := range c.Attributes {
			if c.Attributes[j].Name == oldName {
				c.Attributes[j].Name = newName
			}
		}
	}
	return nil
}

// ChangeDomain retypes a local attribute.
func (t *Template) ChangeDomain(name string, d *domain.Domain) error {
	list, i := t.findLocalAttribute(name)
	if list == nil {
		return t.notLocal(ScopeInstance, name)
	}
	(*list)[i].Domain = d.Clone()
	return nil
}

// SetNotNull marks a local attribute as mandatory or optional.
func (t *Template) SetNotNull(name string, notNull bool) error {
	list, i := t.findLocalAttribute(name)
	if list == nil {
		return t.notLocal(ScopeInstance, name)
	}
	(*list)[i].NotNull = notNull
	return nil
}

// AddMethod declares a new local method.
func (t *Template) AddMethod(ns Namespace, name string, sig Signature, function string) (*Method, error) {
	list := t.methodList(ns)
	if list == nil {
		return nil, schemaerrors.Definition(schemaerrors.AttributeMethodOverlap, component,
			"%s is not a method namespace", ns)
	}
	if err := t.checkNewName(ns, name); err != nil {
		return nil, err
	}
	if function == "" {
		function = t.Name + "_" + name
	}
	m := &Method{
		ID:        primitives.InvalidAttrID,
		Name:      name,
		Namespace: ns,
		Origin:    t.Name,
		Signature: sig.Clone(),
		Function:  function,
		Order:     t.nextOrder(),
	}
	*list = append(*list, m)
	return m, nil
}

func (t *Template) findLocalMethod(name string) (*[]*Method, int) {
	for _, ns := range []Namespace{NamespaceMethod, NamespaceClassMethod} {
		list := t.methodList(ns)
		if i := slices.IndexFunc(*list, func(m *Method) bool { return m.Name == name }); i >= 0 {
			return list, i
		}
	}
	return nil, -1
}

// DropMethod removes a local method.
func (t *Template) DropMethod(name string) error {
	list, i := t.findLocalMethod(name)
	if list == nil {
		return t.notLocal(ScopeInstance, name)
	}
	*list = slices.Delete(*list, i, i+1)
	return nil
}

// RenameMethod renames a local method.
func (t *Template) RenameMethod(oldName, newName string) error {
	list, i := t.findLocalMethod(oldName)
	if list == nil {
		return t.notLocal(ScopeInstance, oldName)
	}
	m := (*list)[i]
	if err := t.checkNewName(m.Namespace, newName); err != nil {
		return err
	}
	m.Name = newName
	return nil
}

// AddSuperclass appends name to the superclass list.
func (t *Template) AddSuperclass(name string) error {
	if name == t.Name {
		return schemaerrors.Definition(schemaerrors.InheritanceCycle, component,
			"class %q cannot inherit from itself", name)
	}
	if slices.Contains(t.Supers, name) {
		return schemaerrors.Definition(schemaerrors.DuplicateName, component,
			"%q is already a superclass of %q", name, t.Name)
	}
	t.Supers = append(t.Supers, name)
	return nil
}

// DropSuperclass removes name from the superclass list.
func (t *Template) DropSuperclass(name string) error {
	i := slices.Index(t.Supers, name)
	if i < 0 {
		return schemaerrors.Definition(schemaerrors.SuperclassNotFound, component,
			"%q is not a superclass of %q", name, t.Name)
	}
	t.Supers = slices.Delete(t.Supers, i, i+1)
	return nil
}

// AddResolution records an explicit choice for an inherited name.
func (t *Template) AddResolution(r Resolution) error {
	for _, cur := range t.Resolutions {
		if cur.Scope != r.Scope {
			continue
		}
		if cur == r {
			return schemaerrors.Definition(schemaerrors.DuplicateName, component,
				"resolution for %q from %q already exists", r.Name, r.Source)
		}
		if cur.Name == r.Name && cur.Alias == "" && r.Alias == "" {
			return schemaerrors.Definition(schemaerrors.ResolutionConflict, component,
				"%q is already resolved to %q", r.Name, cur.Source)
		}
		if r.Alias != "" && cur.Alias == r.Alias {
			return schemaerrors.Definition(schemaerrors.AliasConflict, component,
				"alias %q is already used for %q of %q", r.Alias, cur.Name, cur.Source)
		}
	}
	t.Resolutions = append(t.Resolutions, r)
	return nil
}

// DropResolution removes every resolution of name in scope.
func (t *Template) DropResolution(name string, scope Scope) error {
	n := len(t.Resolutions)
	t.Resolutions = slices.DeleteFunc(t.Resolutions, func(r Resolution) bool {
		return r.Name == name && r.Scope == scope
	})
	if len(t.Resolutions) == n {
		return schemaerrors.Definition(schemaerrors.MemberNotFound, component,
			"no resolution for %q", name)
	}
	return nil
}

// AddConstraint declares a constraint. Attribute names are checked against
// the flattened definition, since they may name inherited attributes.
func (t *Template) AddConstraint(name string, kind ConstraintKind, attrs []ConstraintAttr, fk *ForeignKeyInfo) (*Constraint, error) {
	if t.Kind == KindView {
		return nil, schemaerrors.Definition(schemaerrors.ViewConstraint, component,
			"view %q cannot have constraint %q", t.Name, name)
	}
	if len(attrs) == 0 {
		return nil, schemaerrors.Definition(schemaerrors.ConstraintAttribute, component,
			"constraint %q has no attributes", name)
	}
	if FindConstraint(t.Constraints, name) != nil {
		return nil, schemaerrors.Definition(schemaerrors.ConstraintExists, component,
			"class %q already has constraint %q", t.Name, name)
	}
	if kind == ConstraintPrimaryKey && PrimaryKey(t.Constraints) != nil {
		return nil, schemaerrors.Definition(schemaerrors.ConstraintExists, component,
			"class %q already has a primary key", t.Name)
	}
	if (kind == ConstraintForeignKey) != (fk != nil) {
		return nil, schemaerrors.Definition(schemaerrors.ForeignKeyTarget, component,
			"constraint %q: referenced key given for a %s", name, kind)
	}
	c := &Constraint{
		Name:       name,
		Kind:       kind,
		Attributes: slices.Clone(attrs),
		Origin:     t.Name,
		Owner:      t.Name,
	}
	for i := range c.Attributes {
		c.Attributes[i].ID = primitives.InvalidAttrID
	}
	if fk != nil {
		ref := *fk
		c.ForeignKey = &ref
	}
	t.Constraints = append(t.Constraints, c)
	return c, nil
}

// DropConstraint removes a local constraint.
func (t *Template) DropConstraint(name string) error {
	i := slices.IndexFunc(t.Constraints, func(c *Constraint) bool { return c.Name == name })
	if i < 0 {
		if t.Current != nil && t.Current.Constraint(name) != nil {
			return schemaerrors.Definition(schemaerrors.InheritedMember, component,
				"constraint %q is inherited by %q", name, t.Name)
		}
		return schemaerrors.Definition(schemaerrors.ConstraintNotFound, component,
			"class %q has no constraint %q", t.Name, name)
	}
	t.Constraints = slices.Delete(t.Constraints, i, i+1)
	return nil
}

// AddReference records that a foreign key refers to the local key constraint.
func (t *Template) AddReference(constraint string, ref ForeignRef) error {
	c := FindConstraint(t.Constraints, constraint)
	if c == nil {
		return schemaerrors.Definition(schemaerrors.ConstraintNotFound, component,
			"class %q has no constraint %q", t.Name, constraint)
	}
	c.References = slices.DeleteFunc(c.References, func(r ForeignRef) bool {
		return r.Class == ref.Class && r.Constraint == ref.Constraint
	})
	c.References = append(c.References, ref)
	return nil
}

// DropReference forgets the reverse reference of foreign key fk of class.
func (t *Template) DropReference(constraint, class, fk string) error {
	c := FindConstraint(t.Constraints, constraint)
	if c == nil {
		return schemaerrors.Definition(schemaerrors.ConstraintNotFound, component,
			"class %q has no constraint %q", t.Name, constraint)
	}
	c.References = slices.DeleteFunc(c.References, func(r ForeignRef) bool {
		return r.Class == class && r.Constraint == fk
	})
	return nil
}

// AddMethodFile adds an object file implementing methods of the class.
func (t *Template) AddMethodFile(name string) error {
	if slices.ContainsFunc(t.MethodFiles, func(mf MethodFile) bool { return mf.Name == name }) {
		return schemaerrors.Definition(schemaerrors.DuplicateName, component,
			"method file %q already listed", name)
	}
	t.MethodFiles = append(t.MethodFiles, MethodFile{Name: name, Origin: t.Name})
	return nil
}

// DropMethodFile removes a local method file.
func (t *Template) DropMethodFile(name string) error {
	i := slices.IndexFunc(t.MethodFiles, func(mf MethodFile) bool { return mf.Name == name })
	if i < 0 {
		return schemaerrors.Definition(schemaerrors.MemberNotFound, component,
			"method file %q not listed", name)
	}
	t.MethodFiles = slices.Delete(t.MethodFiles, i, i+1)
	return nil
}

// AddQuerySpec appends a query to a view definition.
func (t *Template) AddQuerySpec(text string) error {
	if t.Kind != KindView {
		return schemaerrors.Definition(schemaerrors.MemberNotFound, component,
			"%q is not a view", t.Name)
	}
	t.QuerySpecs = append(t.QuerySpecs, QuerySpec{Text: text})
	return nil
}

// AddTrigger binds a trigger to an event of the class.
func (t *Template) AddTrigger(event, name string) {
	if t.Triggers == nil {
		t.Triggers = &trigger.SchemaCache{}
	}
	t.Triggers.Entries = append(t.Triggers.Entries, trigger.Entry{Event: event, Trigger: name, Origin: t.Name})
}
