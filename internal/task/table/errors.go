package table

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateTask   = errors.New("task already registered")
	ErrTaskNotFound    = errors.New("task not found")
	ErrInvalidInterval = errors.New("task interval must be > 0")
	ErrNilFunc         = errors.New("task func is nil")
)

// Operation names carried by Error.
const (
	OpAdd            = "add"
	OpRemove         = "remove"
	OpChangeInterval = "change interval"
	OpChangeTaskID   = "change task id"
	OpInterval       = "get interval"
	OpReplace        = "replace"
)

// Numeric error codes, stable across releases so operators can grep for them.
const (
	CodeChangeTaskID    = -10
	CodeIntervalQuery   = -10
	CodeChangeInterval  = -11
	CodeRemove          = -12
	CodeDuplicate       = -13
	CodeInvalidInterval = -14
	CodeNilFunc         = -15
	CodeReplace         = -16
)

// Error is returned by every failing table operation.
// Match the kind with errors.Is(err, ErrTaskNotFound) and friends.
type Error struct {
	Op   string
	ID   int
	Code int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s task %d: %v", e.Op, e.ID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Code extracts the numeric code from a table error, or 0 if err is not one.
func Code(err error) int {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return 0
}

func notFound(op string, id, code int) error {
	return &Error{Op: op, ID: id, Code: code, Err: ErrTaskNotFound}
}
