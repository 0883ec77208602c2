package catalogmanager

import (
	"classdb/pkg/catalog/schema"
	"classdb/pkg/catalog/schemaerrors"
)

// Attach binds tpl to its class. A class has at most one live template; a
// template for a new class reserves the name until it is installed or
// detached.
func (cm *CatalogManager) Attach(tpl *schema.Template) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if tpl.IsNew() {
		if _, ok := cm.classes[tpl.Name]; ok {
			return schemaerrors.Definition(schemaerrors.ClassExists, component, "class %q already exists", tpl.Name)
		}
		if other, ok := cm.reserved[tpl.Name]; ok && other != tpl {
			return schemaerrors.Definition(schemaerrors.TemplateInUse, component, "class %q is already being created", tpl.Name)
		}
		cm.reserved[tpl.Name] = tpl
		return nil
	}

	c, ok := cm.classes[tpl.Name]
	if !ok {
		return schemaerrors.Definition(schemaerrors.ClassNotFound, component, "class %q does not exist", tpl.Name)
	}
	if c.Template != nil && c.Template != tpl {
		return schemaerrors.Definition(schemaerrors.TemplateInUse, component, "class %q is already being edited", tpl.Name)
	}
	c.Template = tpl
	return nil
}

// Detach unbinds tpl from its class. It is a no-op if tpl is not attached.
func (cm *CatalogManager) Detach(tpl *schema.Template) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.detachLocked(tpl)
}

func (cm *CatalogManager) detachLocked(tpl *schema.Template) {
	if cm.reserved[tpl.Name] == tpl {
		delete(cm.reserved, tpl.Name)
	}
	if c, ok := cm.classes[tpl.Name]; ok && c.Template == tpl {
		c.Template = nil
	}
}

// Template returns the live template of class, if any.
func (cm *CatalogManager) Template(class string) (*schema.Template, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	tpl := cm.templateLocked(class)
	return tpl, tpl != nil
}

func (cm *CatalogManager) templateLocked(class string) *schema.Template {
	if c, ok := cm.classes[class]; ok {
		return c.Template
	}
	return cm.reserved[class]
}
