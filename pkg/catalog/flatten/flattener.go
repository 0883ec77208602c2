// Package flatten reduces a class template to its fully resolved definition:
// every member it defines or inherits, with inheritance conflicts resolved,
// merged method files, trigger caches and constraints.
package flatten

import (
	"slices"

	"classdb/pkg/catalog/domain"
	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
	"classdb/pkg/config"
	"classdb/pkg/logging"
	"classdb/pkg/trigger"
)

const component = "flatten"

// Catalog is the read side of the class catalog used while flattening.
type Catalog interface {
	domain.Lineage

	// Class returns the committed class called name.
	Class(name string) (*schema.Class, bool)
}

// TriggerMerger combines trigger schema caches without interpreting them.
type TriggerMerger interface {
	MergeSchemaCache(dst, src *trigger.SchemaCache) *trigger.SchemaCache
	DeleteSchemaCache(c *trigger.SchemaCache)
}

// Flattener turns templates into flattened definitions.
type Flattener struct {
	catalog       Catalog
	triggers      TriggerMerger
	cmp           *domain.Comparator
	resolver      *Resolver
	maxAttributes int
}

// NewFlattener creates a flattener reading superclasses from catalog.
func NewFlattener(catalog Catalog, triggers TriggerMerger, params config.Parameters) *Flattener {
	cmp := domain.NewComparator(catalog)
	return &Flattener{
		catalog:       catalog,
		triggers:      triggers,
		cmp:           cmp,
		resolver:      NewResolver(cmp, params.AutoResolve),
		maxAttributes: params.MaxAttributes,
	}
}

// Comparator returns the domain comparator used for resolution.
func (f *Flattener) Comparator() *domain.Comparator {
	return f.cmp
}

func (f *Flattener) definition(name string) (schema.Definition, error) {
	class, ok := f.catalog.Class(name)
	if !ok {
		return nil, schemaerrors.Definition(schemaerrors.SuperclassNotFound, component,
			"superclass %q does not exist", name)
	}
	return schema.EffectiveDefinition(class), nil
}

// Flatten computes the flattened definition of tpl. The template is never
// modified; resolutions chosen by auto-resolve are recorded on the flat only
// and reach the class when it is installed.
func (f *Flattener) Flatten(tpl *schema.Template) (*schema.Flat, error) {
	log := logging.WithClass(tpl.Name)

	if err := f.checkSupers(tpl); err != nil {
		return nil, err
	}
	resolutions, err := f.filterResolutions(tpl)
	if err != nil {
		return nil, err
	}

	flat := &schema.Flat{
		Name:        tpl.Name,
		Kind:        tpl.Kind,
		PartitionOf: tpl.PartitionOf,
		Supers:      slices.Clone(tpl.Supers),
		QuerySpecs:  slices.Clone(tpl.QuerySpecs),
	}

	var added []schema.Resolution
	for _, scope := range []schema.Scope{schema.ScopeInstance, schema.ScopeClass} {
		auto, err := f.flattenScope(tpl, flat, scope, resolutions)
		if err != nil {
			return nil, err
		}
		added = append(added, auto...)
	}
	if f.maxAttributes > 0 && flat.AttributeCount() > f.maxAttributes {
		return nil, schemaerrors.Capacity(schemaerrors.TooManyAttributes, component,
			"class %q would have %d attributes, the limit is %d", tpl.Name, flat.AttributeCount(), f.maxAttributes)
	}

	flat.MethodFiles, err = f.mergeMethodFiles(tpl)
	if err != nil {
		return nil, err
	}
	flat.Triggers, err = f.mergeTriggers(tpl)
	if err != nil {
		return nil, err
	}
	if err := f.mergeConstraints(tpl, flat); err != nil {
		return nil, err
	}

	flat.Resolutions = append(resolutions, added...)
	for _, r := range added {
		log.Warn("inheritance conflict resolved automatically", "name", r.Name, "source", r.Source)
	}

	log.Debug("template flattened",
		"attributes", len(flat.Attributes),
		"methods", len(flat.Methods),
		"constraints", len(flat.Constraints))
	return flat, nil
}

func (f *Flattener) checkSupers(tpl *schema.Template) error {
	for _, s := range tpl.Supers {
		if s == tpl.Name {
			return schemaerrors.Definition(schemaerrors.InheritanceCycle, component,
				"class %q cannot inherit from itself", s)
		}
		if _, ok := f.catalog.Class(s); !ok {
			return schemaerrors.Definition(schemaerrors.SuperclassNotFound, component,
				"superclass %q of %q does not exist", s, tpl.Name)
		}
	}
	if tpl.Kind == schema.KindPartition {
		if tpl.PartitionOf == "" || !slices.Equal(tpl.Supers, []string{tpl.PartitionOf}) {
			return schemaerrors.Definition(schemaerrors.PartitionMismatch, component,
				"partition %q must inherit from exactly its parent %q", tpl.Name, tpl.PartitionOf)
		}
		if len(tpl.Attributes)+len(tpl.SharedAttributes)+len(tpl.ClassAttributes) > 0 {
			return schemaerrors.Definition(schemaerrors.PartitionMismatch, component,
				"partition %q cannot define attributes", tpl.Name)
		}
	}
	return nil
}

// flattenScope resolves every name of scope and appends the winners to flat
// in order of first appearance.
func (f *Flattener) flattenScope(tpl *schema.Template, flat *schema.Flat, scope schema.Scope, resolutions []schema.Resolution) ([]schema.Resolution, error) {
	cands, err := f.buildCandidates(tpl, scope, resolutions)
	if err != nil {
		return nil, err
	}
	names, groups := groupByName(cands)

	var auto []schema.Resolution
	orders := make(map[schema.Namespace]int)
	for _, name := range names {
		out, err := f.resolver.Resolve(tpl.Name, groups[name])
		if err != nil {
			return nil, err
		}
		w := out.Winner
		if w == nil {
			continue
		}
		if out.AutoResolution != nil {
			auto = append(auto, *out.AutoResolution)
		}
		order := orders[w.Namespace]
		orders[w.Namespace]++
		if w.Namespace.IsMethod() {
			flat.AppendMethod(w.toMethod(order))
		} else {
			flat.AppendAttribute(w.toAttribute(order))
		}
	}
	return auto, nil
}

// filterResolutions drops resolutions that no longer mean anything: the name
// is now defined locally, the source is no longer a superclass, or the source
// has no such member. A meaningless resolution that the committed class
// already carried has simply gone stale and is dropped quietly; one that was
// added in this edit is reported, since it most likely names the wrong thing.
func (f *Flattener) filterResolutions(tpl *schema.Template) ([]schema.Resolution, error) {
	var kept []schema.Resolution
	for _, r := range tpl.Resolutions {
		reason, err := f.invalidResolution(tpl, r)
		if err != nil {
			return nil, err
		}
		if reason == "" {
			kept = append(kept, r)
			continue
		}
		if tpl.Current != nil && slices.Contains(tpl.Current.Resolutions, r) {
			logging.WithClass(tpl.Name).Debug("stale resolution dropped",
				"name", r.Name, "source", r.Source, "reason", reason)
			continue
		}
		return nil, schemaerrors.Definition(schemaerrors.InvalidResolution, component,
			"class %q: resolution of %q from %q: %s", tpl.Name, r.Name, r.Source, reason)
	}
	return kept, nil
}

func (f *Flattener) invalidResolution(tpl *schema.Template, r schema.Resolution) (string, error) {
	if tpl.HasLocal(r.Scope, r.Name) {
		return "name is defined locally", nil
	}
	if !slices.Contains(tpl.Supers, r.Source) {
		return "source is not a superclass", nil
	}
	def, err := f.definition(r.Source)
	if err != nil {
		return "", err
	}
	if !schema.HasMember(def, r.Scope, r.Name) {
		return "source has no such member", nil
	}
	return "", nil
}

// mergeMethodFiles lists the local method files followed by the inherited
// ones not already named, each tagged with the class that declared it.
func (f *Flattener) mergeMethodFiles(tpl *schema.Template) ([]schema.MethodFile, error) {
	files := slices.Clone(tpl.MethodFiles)
	for _, super := range tpl.Supers {
		def, err := f.definition(super)
		if err != nil {
			return nil, err
		}
		for _, mf := range def.MethodFileList() {
			if !slices.ContainsFunc(files, func(x schema.MethodFile) bool { return x.Name == mf.Name }) {
				files = append(files, mf)
			}
		}
	}
	return files, nil
}

// mergeTriggers combines the local trigger cache with those of every superclass.
func (f *Flattener) mergeTriggers(tpl *schema.Template) (*trigger.SchemaCache, error) {
	merged := tpl.Triggers.Clone()
	for _, super := range tpl.Supers {
		def, err := f.definition(super)
		if err != nil {
			return nil, err
		}
		if def.TriggerCache() != nil {
			merged = f.triggers.MergeSchemaCache(merged, def.TriggerCache())
		}
	}
	return merged, nil
}

// FixupDomains turns placeholder domains referring to the class being
// created into ordinary object domains once the class exists.
func FixupDomains(flat *schema.Flat, class string) {
	for _, attrs := range [][]*schema.Attribute{flat.Attributes, flat.SharedAttributes, flat.ClassAttributes} {
		for _, a := range attrs {
			fixDomain(a.Domain, class)
		}
	}
	for _, methods := range [][]*schema.Method{flat.Methods, flat.ClassMethods} {
		for _, m := range methods {
			fixDomain(m.Signature.Return, class)
			for _, arg := range m.Signature.Args {
				fixDomain(arg, class)
			}
		}
	}
}

func fixDomain(d *domain.Domain, class string) {
	if d == nil {
		return
	}
	if d.Placeholder && d.Class == class {
		d.Placeholder = false
	}
	for _, e := range d.Elements {
		fixDomain(e, class)
	}
}
