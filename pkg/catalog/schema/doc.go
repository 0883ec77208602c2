// Package schema is the data model of the class catalog.
//
// A Class is the committed, queryable definition. A Template is a mutable,
// in-progress edit of exactly one class; it is reduced to a Flat (the fully
// resolved definition including every inherited member) before anything is
// installed. Class and Flat both satisfy Definition, which is how subclass
// flattening sees a superclass edited in the same transaction before commit.
package schema
