package app

// TrackedOperation journals a CLI invocation that may mutate the ledger.
// Operations are created in memory with ID=0. Only ledger-mutating commands
// persist them (giving them an auto-increment ID from the store), and that
// ID doubles as the backup version.
type TrackedOperation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string // "success" or "error"
}

// NewTrackedOperation creates a new in-memory operation record.
func NewTrackedOperation(operation, parameters string) *TrackedOperation {
	return &TrackedOperation{
		Operation:  operation,
		Parameters: parameters,
		Status:     "success",
	}
}

// Persisted returns true if this operation has been saved to the store.
func (op *TrackedOperation) Persisted() bool {
	return op.ID != 0
}
