package google

import (
	"errors"
	"fmt"

	"loyaltybot/internal/metrics"
)

var (
	// ErrRemote matches every failure talking to the spreadsheet.
	ErrRemote = errors.New("remote sheet error")

	ErrColumnNotFound = errors.New("column not found")
	ErrSheetNotFound  = errors.New("worksheet not found")
	ErrRowNotFound    = errors.New("row not found")
)

// RemoteError carries the failed operation. errors.Is matches both ErrRemote and the cause.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("sheets %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() []error {
	return []error{ErrRemote, e.Err}
}

func remoteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	metrics.IncSheetError(op)
	return &RemoteError{Op: op, Err: err}
}
