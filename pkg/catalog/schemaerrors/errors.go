// Package schemaerrors is the error taxonomy of schema changes. Every error the
// engine returns wraps one of the sentinels below, so callers can test the kind
// with errors.Is and read the category and rollback scope from the DBError.
package schemaerrors

import (
	"fmt"

	"github.com/juju/errors"

	"classdb/pkg/dberror"
)

// Definition errors: caller-correctable, the template stays open.
const (
	ClassNotFound          = errors.ConstError("class not found")
	ClassExists            = errors.ConstError("class already exists")
	TemplateInUse          = errors.ConstError("class already has a pending template")
	DuplicateName          = errors.ConstError("duplicate member name")
	MemberNotFound         = errors.ConstError("member not found")
	InheritedMember        = errors.ConstError("member is inherited")
	AttributeMethodOverlap = errors.ConstError("name denotes both an attribute and a method")
	AliasConflict          = errors.ConstError("alias conflict")
	IncompatibleDomains    = errors.ConstError("incompatible domains")
	AliasDomain            = errors.ConstError("alias domain is more specific than its substitute")
	ResolutionConflict     = errors.ConstError("unresolved inheritance conflict")
	InvalidResolution      = errors.ConstError("resolution does not name an inherited component")
	InheritanceCycle       = errors.ConstError("inheritance cycle")
	SuperclassNotFound     = errors.ConstError("superclass not found")
	ConstraintAttribute    = errors.ConstError("constraint references an unknown attribute")
	ConstraintExists       = errors.ConstError("constraint already exists")
	ConstraintNotFound     = errors.ConstError("constraint not found")
	ForeignKeyTarget       = errors.ConstError("foreign key does not reference a primary key")
	ViewConstraint         = errors.ConstError("views cannot carry constraints")
	PartitionMismatch      = errors.ConstError("partition does not match its parent")
	TooManyAttributes      = errors.ConstError("too many attributes")
	ClassHasSubclasses     = errors.ConstError("class still has subclasses")
)

// Resource and capacity errors: the operation fails cleanly.
const (
	OutOfMemory              = errors.ConstError("out of memory")
	RepresentationsExhausted = errors.ConstError("representation count exhausted")
	LockTimeout              = errors.ConstError("lock wait timed out")
)

// Severe errors: raised while installing, the transaction must be rolled back.
const (
	UniqueViolation        = errors.ConstError("unique constraint violated by existing data")
	InstallFailed          = errors.ConstError("failed to install schema change")
	ConstraintOwnerMissing = errors.ConstError("inherited constraint has no allocated owner")
)

func newError(category dberror.ErrorCategory, sentinel errors.ConstError, component, format string, args ...any) *dberror.DBError {
	err := dberror.New(category, codeOf(sentinel), string(sentinel)).WithCause(sentinel)
	err.Component = component
	if format != "" {
		err.Detail = fmt.Sprintf(format, args...)
	}
	return err
}

// Definition returns a caller-correctable error.
func Definition(sentinel errors.ConstError, component, format string, args ...any) *dberror.DBError {
	return newError(dberror.ErrCategoryUser, sentinel, component, format, args...)
}

// Capacity returns an error for an exhausted catalog limit.
func Capacity(sentinel errors.ConstError, component, format string, args ...any) *dberror.DBError {
	return newError(dberror.ErrCategoryCapacity, sentinel, component, format, args...)
}

// Resource returns a transient error.
func Resource(sentinel errors.ConstError, component, format string, args ...any) *dberror.DBError {
	return newError(dberror.ErrCategoryTransient, sentinel, component, format, args...)
}

// Severe returns an error raised while installing. The rollback scope is
// RollbackSavepoint for uniqueness violations and RollbackTransaction otherwise;
// the caller performs the rollback and the error records what was done.
func Severe(sentinel errors.ConstError, cause error, component, format string, args ...any) *dberror.DBError {
	err := newError(dberror.ErrCategoryData, sentinel, component, format, args...)
	err.Rollback = dberror.RollbackTransaction
	if sentinel == UniqueViolation {
		err.Rollback = dberror.RollbackSavepoint
	}
	if cause != nil {
		err.Cause = &severeCause{sentinel: sentinel, cause: cause}
	}
	return err
}

// IsSevere reports whether err requires a rollback.
func IsSevere(err error) bool {
	return dberror.RollbackOf(err) != dberror.RollbackNone
}

// severeCause keeps both the sentinel and the collaborator error reachable
// through errors.Is.
type severeCause struct {
	sentinel errors.ConstError
	cause    error
}

func (s *severeCause) Error() string { return fmt.Sprintf("%s: %v", s.sentinel, s.cause) }

func (s *severeCause) Unwrap() []error { return []error{s.sentinel, s.cause} }

var codes = map[errors.ConstError]string{
	ClassNotFound:            "CLASS_NOT_FOUND",
	ClassExists:              "CLASS_EXISTS",
	TemplateInUse:            "TEMPLATE_IN_USE",
	DuplicateName:            "DUPLICATE_NAME",
	MemberNotFound:           "MEMBER_NOT_FOUND",
	InheritedMember:          "INHERITED_MEMBER",
	AttributeMethodOverlap:   "ATTRIBUTE_METHOD_OVERLAP",
	AliasConflict:            "ALIAS_CONFLICT",
	IncompatibleDomains:      "INCOMPATIBLE_DOMAINS",
	AliasDomain:              "ALIAS_DOMAIN",
	ResolutionConflict:       "RESOLUTION_CONFLICT",
	InvalidResolution:        "INVALID_RESOLUTION",
	InheritanceCycle:         "INHERITANCE_CYCLE",
	SuperclassNotFound:       "SUPERCLASS_NOT_FOUND",
	ConstraintAttribute:      "CONSTRAINT_ATTRIBUTE",
	ConstraintExists:         "CONSTRAINT_EXISTS",
	ConstraintNotFound:       "CONSTRAINT_NOT_FOUND",
	ForeignKeyTarget:         "FOREIGN_KEY_TARGET",
	ViewConstraint:           "VIEW_CONSTRAINT",
	PartitionMismatch:        "PARTITION_MISMATCH",
	TooManyAttributes:        "TOO_MANY_ATTRIBUTES",
	ClassHasSubclasses:       "CLASS_HAS_SUBCLASSES",
	OutOfMemory:              "OUT_OF_MEMORY",
	RepresentationsExhausted: "REPRESENTATIONS_EXHAUSTED",
	LockTimeout:              "LOCK_TIMEOUT",
	UniqueViolation:          "UNIQUE_VIOLATION",
	InstallFailed:            "INSTALL_FAILED",
	ConstraintOwnerMissing:   "CONSTRAINT_OWNER_MISSING",
}

func codeOf(sentinel errors.ConstError) string {
	if code, ok := codes[sentinel]; ok {
		return code
	}
	return "SCHEMA_ERROR"
}
