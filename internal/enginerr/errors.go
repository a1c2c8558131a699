// Package enginerr defines the closed set of error kinds every core
// component returns. Nothing in the engine panics or throws across a
// component boundary; callers inspect Kind and decide whether to log,
// retry next cycle, or abort start-up.
package enginerr

import "fmt"

// Kind is the closed set of error categories from the error-handling design.
type Kind string

const (
	// KindConfig covers missing presets, invalid leverage, unknown strategy.
	// Fatal at Start.
	KindConfig Kind = "config"
	// KindAuth covers auth not ready or test connection failed. Aborts
	// Start; never retried automatically.
	KindAuth Kind = "auth"
	// KindData covers insufficient candles or NaN indicator inputs.
	// Per-symbol: log and skip that pair for this cycle.
	KindData Kind = "data"
	// KindRetryable covers network/timeout/5xx from the exchange. The
	// calling operation is skipped this cycle; next cycle retries. No
	// counter update.
	KindRetryable Kind = "retryable"
	// KindExecution covers an order that failed after admission. Locks are
	// released, overtrading counters are not mutated.
	KindExecution Kind = "execution"
	// KindFatalState covers an invariant violation (e.g. a position both
	// tracked and reported closed). New trades are refused until human
	// inspection; the engine keeps running.
	KindFatalState Kind = "fatal_state"
)

// Error is the structured error value every component returns instead of an
// ad-hoc error string. GateRejection is deliberately not a Kind here: it is
// not an error at all, just a structured reason (see tradegate.RejectReason).
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

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind, unwrapping through
// standard wrapping so callers can write enginerr.Is(err, enginerr.KindData).
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if asErr, ok := err.(*Error); ok {
			e = asErr
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
