// Package errs defines the step error taxonomy. Every way apply() can
// fail maps to exactly one Kind; the host converts a Kind into whatever
// user-facing response it needs. Adapted from the structured ErrorCode
// pattern used across the retrieval pack (tradSys's internal/common/errors),
// stripped of its runtime.Caller/time.Now metadata: a pure step function
// must not let wall-clock time or a stack frame leak into anything it
// returns.
package errs

import "fmt"

// Kind is one of the seven taxonomy members from the error handling
// design. It is the only thing a host needs to branch on.
type Kind string

const (
	MalformedAction     Kind = "MALFORMED_ACTION"
	DuplicateOrderID    Kind = "DUPLICATE_ORDER_ID"
	UnknownOrder        Kind = "UNKNOWN_ORDER"
	Unauthorized        Kind = "UNAUTHORIZED"
	InsufficientBalance Kind = "INSUFFICIENT_BALANCE"
	ArithmeticOverflow  Kind = "ARITHMETIC_OVERFLOW"
	NoLiquidity         Kind = "NO_LIQUIDITY"
)

// Error is the concrete error type returned by every layer of the core.
// It carries a Kind for programmatic matching and a human message for
// logs; Cause chains to whatever underlying error (if any) triggered it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether the first *Error found in err's Unwrap chain
// (starting with err itself) has the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
