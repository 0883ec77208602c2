package primitives

import "fmt"

// IsValid reports whether the class has been installed.
func (c ClassID) IsValid() bool {
	return c != InvalidClassID
}

// String returns a string representation of the ClassID.
func (c ClassID) String() string {
	return fmt.Sprintf("ClassID(%d)", c)
}

// IsAssigned reports whether the attribute carries an identifier.
func (a AttrID) IsAssigned() bool {
	return a != InvalidAttrID
}

// IsAllocated reports whether the B-tree identifier points at real storage.
func (b BTreeID) IsAllocated() bool {
	return b != NullBTreeID
}

// String returns a string representation of the BTreeID.
func (b BTreeID) String() string {
	if b == NullBTreeID {
		return "BTreeID(null)"
	}
	return fmt.Sprintf("BTreeID(%d)", b)
}

// String returns a string representation of the OID.
func (o OID) String() string {
	return fmt.Sprintf("OID(%d)", o)
}
