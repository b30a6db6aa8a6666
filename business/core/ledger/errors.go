package ledger

import (
	"errors"
	"fmt"
)

// Set of error variables a Storer implementation is expected to return so the
// engine can tell the interesting failures apart from the unexpected ones.
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadySpent = errors.New("output already spent")
	ErrTxExists     = errors.New("transaction id already exists")
	ErrOutputExists = errors.New("output already exists")
)

// Kind classifies a ledger error so callers can map it to the right
// client-facing response without parsing messages.
type Kind int

// Set of error kinds the engine reports.
const (
	KindUnknown Kind = iota
	KindStructural
	KindSequencing
	KindIdentity
	KindConservation
	KindReferential
	KindConflict
	KindRange
)

// String implements the stringer interface.
func (k Kind) String() string {
	switch k {
	case KindStructural:
		return "structural"
	case KindSequencing:
		return "sequencing"
	case KindIdentity:
		return "identity"
	case KindConservation:
		return "conservation"
	case KindReferential:
		return "referential"
	case KindConflict:
		return "conflict"
	case KindRange:
		return "range"
	}
	return "unknown"
}

// Error represents a failure of one of the ledger's admission or rollback
// rules. The Kind is the contract; the message is for humans.
type Error struct {
	Kind Kind
	Err  error
}

// NewError constructs a ledger error with the specified kind.
func NewError(kind Kind, format string, args ...any) error {
	return &Error{
		Kind: kind,
		Err:  fmt.Errorf(format, args...),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// GetKind extracts the kind from the specified error. Errors that did not
// originate from a ledger rule report KindUnknown.
func GetKind(err error) Kind {
	var le *Error
	if !errors.As(err, &le) {
		return KindUnknown
	}
	return le.Kind
}
