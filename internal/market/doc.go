// Package market orchestrates fetch, validate, store and record for each
// market data operation.
//
// Every operation follows the same sequence:
//
//	fetch -> container.New -> Upsert -> registry entry
//
// Validation errors are returned untouched. An error status from the store
// becomes an *OperationError. Registry failures are always returned.
package market
