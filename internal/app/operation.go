package app

import "fmt"

// Operation names, as recorded in the log and the run history.
const (
	OpBackup       = "backup"
	OpFullRestore  = "full-restore"
	OpBrowse       = "browse-files"
	OpListArchives = "list-archives"
	OpPut          = "put"
	OpHistory      = "history"
)

// mutating lists the operations that write to the run history. Only these
// upload a catalog snapshot when the app closes.
var mutating = map[string]bool{
	OpBackup:       true,
	OpFullRestore:  true,
	OpBrowse:       true,
	OpPut:          true,
	OpListArchives: false,
	OpHistory:      false,
}

// Operation tracks the CLI command an App was created for.
type Operation struct {
	Name     string
	Mutating bool
	Status   string // "success" or "error"
}

// NewOperation looks up a known operation by name.
func NewOperation(name string) (*Operation, error) {
	m, ok := mutating[name]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", name)
	}
	return &Operation{Name: name, Mutating: m, Status: "success"}, nil
}

// Fail marks the operation as failed when err is non-nil and returns err.
func (op *Operation) Fail(err error) error {
	if err != nil {
		op.Status = "error"
	}
	return err
}
