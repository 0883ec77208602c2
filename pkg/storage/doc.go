// Package storage groups the in-memory stores the schema engine installs
// class definitions against.
//
// # Sub-packages
//
//   - [classdb/pkg/storage/btree] keeps one ordered key tree per constraint
//     or index. Rows are tagged with the class they belong to, so a unique
//     key inherited by a whole class family lives in a single tree.
//   - [classdb/pkg/storage/heap] keeps the instances of each class together
//     with the representation they were written under, and rewrites them to
//     the newest representation on request.
package storage
