// Package schema declares tabular entities and validates untrusted frames
// against them.
//
// A Table is an ordered list of typed Columns plus a storage kind, a primary
// key, unique fields and optional cross-field Invariants. Validate turns a
// frame.Frame into an immutable Dataset or returns a *ValidationError listing
// every failure case it found.
//
// Validation rules:
//   - Columns missing from the input fail unless marked Optional.
//   - Input columns the table does not declare are dropped.
//   - Values are coerced to the column type only when the conversion is lossless.
//   - All cells are checked before the error is returned.
//   - Invariants run once over the dataset, after every column check passed.
//
// Types form a closed set. A backend maps them to column types by implementing
// Mapper, which has one method per type.
package schema
