package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound matches loads against a table that does not exist.
var ErrNotFound = errors.New("table not found")

// NotFoundError is returned by Load when the table does not exist.
type NotFoundError struct {
	Table string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("load %s: %s", e.Table, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ProvisionError is returned when a table, its trigger or its partitioning
// cannot be created. It is fatal for the calling operation.
type ProvisionError struct {
	Table string
	Err   error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision %s: %v", e.Table, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}
