package bigcty

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (wrapped) by the package.
var (
	ErrNotFound       = errors.New("prefix not found")
	ErrFormat         = errors.New("malformed country file")
	ErrMalformedStore = errors.New("malformed store document")
	ErrRetrieval      = errors.New("release retrieval failed")
)

// FormatError reports a primary entity line that could not be parsed.
// A FormatError aborts the whole document parse.
type FormatError struct {
	Line int    // 1-based line number
	Text string // the offending line, after trimming
	Err  error  // underlying cause (field count, strconv error)
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Text)
}

// Unwrap exposes both ErrFormat and the underlying cause to errors.Is / errors.As.
func (e *FormatError) Unwrap() []error { return []error{ErrFormat, e.Err} }

// RetrievalError reports a failure of the release source during an update.
type RetrievalError struct {
	Op  string // "latest release", "fetch release" or "wait for update"
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() []error { return []error{ErrRetrieval, e.Err} }
