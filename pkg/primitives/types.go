package primitives

import "math"

// ClassID identifies a committed class in the catalog. It plays the role of the
// class object identifier; it is assigned once when the class is first installed
// and never reused.
type ClassID uint64

// AttrID identifies an attribute (instance, shared or class) or a method inside
// one class. Identifiers are allocated from a per-class, monotonically
// increasing counter and survive renames.
type AttrID int32

// BTreeID identifies a B-tree allocated by the storage layer for a constraint.
// A single B-tree may be shared by every class of an inheritance family.
type BTreeID uint64

// ReprID identifies one on-disk record layout (representation) of a class.
type ReprID int32

// OID identifies one instance stored in a class heap.
type OID uint64

// TxID identifies a transaction.
type TxID uint64

// Sentinel values for invalid/unset identifiers
const (
	// InvalidClassID is the identifier of a class that has not been installed yet.
	InvalidClassID ClassID = 0

	// InvalidAttrID marks an attribute whose identifier was cleared during
	// flattening and still has to be assigned by the storage order builder.
	InvalidAttrID AttrID = 0

	// NullBTreeID marks a constraint whose B-tree has not been allocated yet.
	NullBTreeID BTreeID = 0

	InvalidReprID ReprID = -1

	InvalidOID OID = 0

	MaxAttrID AttrID = math.MaxInt32
)
