package forecast

import (
	"fmt"
)

// ErrorKind classifies a prediction failure
type ErrorKind string

const (
	// KindInvalidDate is an unparseable reference date
	KindInvalidDate ErrorKind = "INVALID_DATE"
	// KindInvalidInput is a request missing a field the active schema needs
	KindInvalidInput ErrorKind = "INVALID_INPUT"
	// KindProductNotFound is a product without any historical record
	KindProductNotFound ErrorKind = "PRODUCT_NOT_FOUND"
	// KindUnknownCategory is an entity absent from the training-time encoding
	KindUnknownCategory ErrorKind = "UNKNOWN_CATEGORY"
	// KindSchemaMismatch is an assembled vector that does not fit the model
	KindSchemaMismatch ErrorKind = "SCHEMA_MISMATCH"
	// KindDataUnavailable is a failed or timed out historical lookup
	KindDataUnavailable ErrorKind = "DATA_UNAVAILABLE"
	// KindModelInvocation is a failure raised by the model function itself
	KindModelInvocation ErrorKind = "MODEL_INVOCATION"
)

// NoIndex marks an error that does not belong to a batch element
const NoIndex = -1

// Error is the error type returned by every forecast operation.
// Two errors match under errors.Is when their kinds are equal, so callers can
// test against the Err* sentinels below.
type Error struct {
	Kind   ErrorKind
	Detail string
	// Index is the batch element that failed, NoIndex for single requests
	Index int
	Err   error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Index != NoIndex {
		msg = fmt.Sprintf("element %d: %s", e.Index, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a forecast error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// AtIndex returns a copy of the error attributed to batch element i
func (e *Error) AtIndex(i int) *Error {
	cp := *e
	cp.Index = i
	return &cp
}

// Sentinels for errors.Is
var (
	ErrInvalidDate     = &Error{Kind: KindInvalidDate, Index: NoIndex}
	ErrInvalidInput    = &Error{Kind: KindInvalidInput, Index: NoIndex}
	ErrProductNotFound = &Error{Kind: KindProductNotFound, Index: NoIndex}
	ErrUnknownCategory = &Error{Kind: KindUnknownCategory, Index: NoIndex}
	ErrSchemaMismatch  = &Error{Kind: KindSchemaMismatch, Index: NoIndex}
	ErrDataUnavailable = &Error{Kind: KindDataUnavailable, Index: NoIndex}
	ErrModelInvocation = &Error{Kind: KindModelInvocation, Index: NoIndex}
)

// NewError creates a forecast error of the given kind
func NewError(kind ErrorKind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, Index: NoIndex}
}

// WrapError creates a forecast error of the given kind around cause
func WrapError(kind ErrorKind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Index: NoIndex, Err: cause}
}

// InvalidDate reports the offending date value
func InvalidDate(value string) *Error {
	return NewError(KindInvalidDate, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", value))
}

// ProductNotFound reports a product id without history
func ProductNotFound(productID int64) *Error {
	return NewError(KindProductNotFound, fmt.Sprintf("no historical record for product %d", productID))
}

// UnknownCategory reports an entity name missing from the training encoding
func UnknownCategory(entity, name string) *Error {
	return NewError(KindUnknownCategory, fmt.Sprintf("%s %q was not present in training data", entity, name))
}

// SchemaMismatch reports a vector that does not match the model input
func SchemaMismatch(detail string) *Error {
	return NewError(KindSchemaMismatch, detail)
}
