package counter

import (
	"context"

	"github.com/pkg/errors"
)

// Kind classifies a failure for the request boundary.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidRequest
	KindMethodNotAllowed
	KindStoreCorruption
	KindStoreUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindMethodNotAllowed:
		return "method_not_allowed"
	case KindStoreCorruption:
		return "store_corruption"
	case KindStoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// Error is a classified counter failure. Message is safe to show to clients,
// Err keeps the underlying cause for logging.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

var ErrNameRequired = &Error{Kind: KindInvalidRequest, Message: "Counter name is required"}

var ErrOverflow = &Error{Kind: KindInvalidRequest, Message: "counter overflow"}

var ErrMethodNotAllowed = &Error{Kind: KindMethodNotAllowed, Message: "method not allowed"}

// ErrCorruptValue is returned by storages that detect a non-integer value themselves.
var ErrCorruptValue = errors.New("stored value is not an integer")

func invalidRequest(err error) *Error {
	return &Error{Kind: KindInvalidRequest, Message: err.Error(), Err: err}
}

// InvalidRequest classifies a client-caused failure, err's message is surfaced.
func InvalidRequest(err error) error {
	return invalidRequest(err)
}

func corrupted(name string, err error) *Error {
	return &Error{
		Kind:    KindStoreCorruption,
		Message: "stored counter value is not an integer",
		Err:     errors.Wrapf(err, "counter %q", name),
	}
}

func unavailable(op string, err error) *Error {
	return &Error{
		Kind:    KindStoreUnavailable,
		Message: "counter store unavailable",
		Err:     errors.Wrap(err, op),
	}
}

// KindOf returns the classification of err, KindUnknown for anything unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindStoreUnavailable
	}
	return KindUnknown
}
