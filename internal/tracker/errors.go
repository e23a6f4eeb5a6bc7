package tracker

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that a lookup matched nothing: a barcode with no
// catalog entry, a variant absent from the browse cache, or a ledger
// operation on a variant that was never added.
var ErrNotFound = errors.New("not found")

// TransientError classifies a network failure (timeout, connectivity,
// remote 5xx) that the caller may retry. Retrying is always a distinct,
// explicit invocation; nothing in this package retries automatically.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
