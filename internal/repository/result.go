package repository

// Status is the outcome of a write.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// SaveResult reports a bulk insert. Write failures are reported here rather
// than as errors.
type SaveResult struct {
	Status       Status
	Message      string
	RowsAffected int64
}

// OK reports whether the save succeeded.
func (r SaveResult) OK() bool { return r.Status == StatusSuccess }

// UpsertResult reports an upsert. RowsInserted + RowsUpdated always equals the
// number of rows written; both are zero on error.
type UpsertResult struct {
	Status       Status
	Message      string
	RowsInserted int64
	RowsUpdated  int64

	// Exact is false when the split between inserts and updates was
	// estimated from the updated_at audit column.
	Exact bool
}

// OK reports whether the upsert succeeded.
func (r UpsertResult) OK() bool { return r.Status == StatusSuccess }

func saveError(msg string) SaveResult {
	return SaveResult{Status: StatusError, Message: msg}
}

func upsertError(msg string) UpsertResult {
	return UpsertResult{Status: StatusError, Message: msg}
}
