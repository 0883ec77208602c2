// Package script runs schema statements written as YAML documents against a
// database. A script is a list of statements; each statement names exactly one
// of create, alter, drop or insert. All statements of a script run in one
// transaction unless the script asks for one transaction per statement.
package script

import (
	"context"
	"os"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"classdb/pkg/catalog/schema"
	"classdb/pkg/concurrency/transaction"
	"classdb/pkg/database"
	"classdb/pkg/logging"
)

// Script is a parsed statement list.
type Script struct {
	// PerStatement commits after every statement instead of once at the end.
	PerStatement bool        `yaml:"per_statement"`
	Statements   []Statement `yaml:"statements"`
}

// Statement is one schema or data statement.
type Statement struct {
	Create string `yaml:"create,omitempty"`
	Alter  string `yaml:"alter,omitempty"`
	Drop   string `yaml:"drop,omitempty"`
	Insert string `yaml:"insert,omitempty"`

	// Kind is the class kind of a create: class, view or partition.
	Kind string `yaml:"kind,omitempty"`

	AddSupers   []string        `yaml:"add_supers,omitempty"`
	DropSupers  []string        `yaml:"drop_supers,omitempty"`
	Attributes  []AttributeDef  `yaml:"attributes,omitempty"`
	DropMembers []string        `yaml:"drop_attributes,omitempty"`
	Renames     []Rename        `yaml:"rename_attributes,omitempty"`
	Domains     []AttributeDef  `yaml:"change_domains,omitempty"`
	Methods     []MethodDef     `yaml:"methods,omitempty"`
	Resolutions []ResolutionDef `yaml:"resolutions,omitempty"`
	Constraints []ConstraintDef `yaml:"constraints,omitempty"`
	DropKeys    []string        `yaml:"drop_constraints,omitempty"`
	MethodFiles []string        `yaml:"method_files,omitempty"`
	Query       string          `yaml:"query,omitempty"`

	Values map[string]any `yaml:"values,omitempty"`
}

// AttributeDef declares an attribute.
type AttributeDef struct {
	Name    string `yaml:"name"`
	Domain  string `yaml:"domain"`
	Scope   string `yaml:"scope,omitempty"`
	NotNull bool   `yaml:"not_null,omitempty"`
	Default string `yaml:"default,omitempty"`
}

// Rename renames a local attribute.
type Rename struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// MethodDef declares a method.
type MethodDef struct {
	Name     string   `yaml:"name"`
	Returns  string   `yaml:"returns,omitempty"`
	Args     []string `yaml:"args,omitempty"`
	Function string   `yaml:"function,omitempty"`
	Class    bool     `yaml:"class,omitempty"`
}

// ResolutionDef picks the superclass a conflicting name is inherited from,
// optionally keeping the other definition under an alias.
type ResolutionDef struct {
	Name   string `yaml:"name"`
	Source string `yaml:"from"`
	Alias  string `yaml:"as,omitempty"`
	Class  bool   `yaml:"class,omitempty"`
}

// ConstraintDef declares a constraint or index.
type ConstraintDef struct {
	Name       string   `yaml:"name"`
	Kind       string   `yaml:"kind"`
	Attributes []string `yaml:"attributes"`
	Descending []bool   `yaml:"descending,omitempty"`
	References *struct {
		Class      string `yaml:"class"`
		Constraint string `yaml:"constraint"`
		OnDelete   string `yaml:"on_delete,omitempty"`
		OnUpdate   string `yaml:"on_update,omitempty"`
	} `yaml:"references,omitempty"`
}

// Parse decodes a script.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Annotate(err, "decoding script")
	}
	for i, st := range s.Statements {
		if err := st.validate(); err != nil {
			return nil, errors.Annotatef(err, "statement %d", i+1)
		}
	}
	return &s, nil
}

// Load reads and parses a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "reading script %s", path)
	}
	return Parse(data)
}

func (st Statement) validate() error {
	n := 0
	for _, target := range []string{st.Create, st.Alter, st.Drop, st.Insert} {
		if target != "" {
			n++
		}
	}
	if n != 1 {
		return errors.NotValidf("statement naming %d targets", n)
	}
	return nil
}

// Verb returns the statement kind and its target class.
func (st Statement) Verb() (string, string) {
	switch {
	case st.Create != "":
		return "create", st.Create
	case st.Alter != "":
		return "alter", st.Alter
	case st.Drop != "":
		return "drop", st.Drop
	default:
		return "insert", st.Insert
	}
}

// Run executes the script against db and returns one result per executed
// statement. Execution stops at the first failing statement; its transaction
// is rolled back.
func (s *Script) Run(ctx context.Context, db *database.Database) ([]database.QueryResult, error) {
	log := logging.WithComponent("script")
	var results []database.QueryResult

	exec := func(tx *transaction.TransactionContext, i int) error {
		st := s.Statements[i]
		verb, class := st.Verb()
		res, err := st.exec(ctx, db, tx)
		if err != nil {
			return errors.Annotatef(err, "statement %d (%s %s)", i+1, verb, class)
		}
		log.Debug("statement executed", "index", i+1, "verb", verb, "class", class)
		results = append(results, res)
		return nil
	}

	if s.PerStatement {
		for i := range s.Statements {
			if err := db.RunInTransaction(func(tx *transaction.TransactionContext) error {
				return exec(tx, i)
			}); err != nil {
				return results, err
			}
		}
		return results, nil
	}

	err := db.RunInTransaction(func(tx *transaction.TransactionContext) error {
		for i := range s.Statements {
			if err := exec(tx, i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (st Statement) exec(ctx context.Context, db *database.Database, tx *transaction.TransactionContext) (database.QueryResult, error) {
	switch verb, class := st.Verb(); verb {
	case "create":
		kind, err := parseClassKind(st.Kind)
		if err != nil {
			return database.QueryResult{}, err
		}
		return db.CreateClass(ctx, tx, class, kind, st.edit)
	case "alter":
		return db.AlterClass(ctx, tx, class, st.edit)
	case "drop":
		return db.DropClass(ctx, tx, class)
	default:
		return db.Insert(ctx, tx, class, st.Values)
	}
}

// edit applies the statement's clauses to a template in a fixed order:
// inheritance first, so later clauses see the new superclasses.
func (st Statement) edit(tpl *schema.Template) error {
	for _, name := range st.DropSupers {
		if err := tpl.DropSuperclass(name); err != nil {
			return err
		}
	}
	for _, name := range st.AddSupers {
		if err := tpl.AddSuperclass(name); err != nil {
			return err
		}
	}
	for _, name := range st.DropKeys {
		if err := tpl.DropConstraint(name); err != nil {
			return err
		}
	}
	for _, name := range st.DropMembers {
		if err := tpl.DropAttribute(name); err != nil {
			return err
		}
	}
	for _, r := range st.Renames {
		if err := tpl.RenameAttribute(r.From, r.To); err != nil {
			return err
		}
	}
	for _, a := range st.Domains {
		d, err := ParseDomain(a.Domain, tpl.Name)
		if err != nil {
			return err
		}
		if err := tpl.ChangeDomain(a.Name, d); err != nil {
			return err
		}
	}
	for _, a := range st.Attributes {
		if err := addAttribute(tpl, a); err != nil {
			return err
		}
	}
	for _, m := range st.Methods {
		if err := addMethod(tpl, m); err != nil {
			return err
		}
	}
	for _, r := range st.Resolutions {
		scope := schema.ScopeInstance
		if r.Class {
			scope = schema.ScopeClass
		}
		if err := tpl.AddResolution(schema.Resolution{Name: r.Name, Scope: scope, Source: r.Source, Alias: r.Alias}); err != nil {
			return err
		}
	}
	for _, c := range st.Constraints {
		if err := addConstraint(tpl, c); err != nil {
			return err
		}
	}
	for _, f := range st.MethodFiles {
		if err := tpl.AddMethodFile(f); err != nil {
			return err
		}
	}
	if st.Query != "" {
		return tpl.AddQuerySpec(st.Query)
	}
	return nil
}

func addAttribute(tpl *schema.Template, def AttributeDef) error {
	ns, err := parseAttributeScope(def.Scope)
	if err != nil {
		return err
	}
	d, err := ParseDomain(def.Domain, tpl.Name)
	if err != nil {
		return err
	}
	a, err := tpl.AddAttribute(ns, def.Name, d)
	if err != nil {
		return err
	}
	a.NotNull = def.NotNull
	a.Default = def.Default
	return nil
}

func addMethod(tpl *schema.Template, def MethodDef) error {
	ns := schema.NamespaceMethod
	if def.Class {
		ns = schema.NamespaceClassMethod
	}
	var sig schema.Signature
	if def.Returns != "" {
		d, err := ParseDomain(def.Returns, tpl.Name)
		if err != nil {
			return err
		}
		sig.Return = d
	}
	for _, arg := range def.Args {
		d, err := ParseDomain(arg, tpl.Name)
		if err != nil {
			return err
		}
		sig.Args = append(sig.Args, d)
	}
	_, err := tpl.AddMethod(ns, def.Name, sig, def.Function)
	return err
}

func addConstraint(tpl *schema.Template, def ConstraintDef) error {
	kind, err := parseConstraintKind(def.Kind)
	if err != nil {
		return err
	}
	attrs := make([]schema.ConstraintAttr, len(def.Attributes))
	for i, name := range def.Attributes {
		attrs[i].Name = name
		if i < len(def.Descending) {
			attrs[i].Descending = def.Descending[i]
		}
	}
	var fk *schema.ForeignKeyInfo
	if ref := def.References; ref != nil {
		fk = &schema.ForeignKeyInfo{RefClass: ref.Class, RefConstraint: ref.Constraint}
		if fk.OnDelete, err = parseAction(ref.OnDelete); err != nil {
			return err
		}
		if fk.OnUpdate, err = parseAction(ref.OnUpdate); err != nil {
			return err
		}
	}
	_, err = tpl.AddConstraint(def.Name, kind, attrs, fk)
	return err
}

func parseClassKind(s string) (schema.ClassKind, error) {
	switch s {
	case "", "class":
		return schema.KindOrdinary, nil
	case "view":
		return schema.KindView, nil
	case "partition":
		return schema.KindPartition, nil
	}
	return 0, errors.NotValidf("class kind %q", s)
}

func parseAttributeScope(s string) (schema.Namespace, error) {
	switch s {
	case "", "instance":
		return schema.NamespaceAttribute, nil
	case "shared":
		return schema.NamespaceShared, nil
	case "class":
		return schema.NamespaceClassAttribute, nil
	}
	return 0, errors.NotValidf("attribute scope %q", s)
}

func parseConstraintKind(s string) (schema.ConstraintKind, error) {
	switch s {
	case "unique":
		return schema.ConstraintUnique, nil
	case "reverse_unique":
		return schema.ConstraintReverseUnique, nil
	case "primary_key":
		return schema.ConstraintPrimaryKey, nil
	case "foreign_key":
		return schema.ConstraintForeignKey, nil
	case "index":
		return schema.ConstraintIndex, nil
	case "reverse_index":
		return schema.ConstraintReverseIndex, nil
	}
	return 0, errors.NotValidf("constraint kind %q", s)
}

func parseAction(s string) (schema.Action, error) {
	switch s {
	case "", "restrict":
		return schema.ActionRestrict, nil
	case "cascade":
		return schema.ActionCascade, nil
	case "set_null":
		return schema.ActionSetNull, nil
	case "no_action":
		return schema.ActionNoAction, nil
	}
	return 0, errors.NotValidf("referential action %q", s)
}
