package domain

import "errors"

// ─── Error Taxonomy ─────────────────────────────────────────────────────────
// Kinds, not type names — callers classify with errors.Is against these
// sentinels, or against Kind() below when the error carries extra context.

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidStatus   = errors.New("invalid status transition")
	ErrValidation      = errors.New("validation failed")
	ErrTransient       = errors.New("transient failure")
	ErrTimeout         = errors.New("timeout")
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrNoGroundStation = errors.New("no ground station available")
	ErrParse           = errors.New("parse error")
	ErrAlreadyExists   = errors.New("already exists")
	ErrException       = errors.New("unhandled exception")
)

// Kind identifies which taxonomy bucket an error belongs to. It mirrors the
// sentinel set above so callers that need to serialize an error (over the
// WebSocket channel layer, for instance) can carry a stable string tag
// instead of matching on Go error values.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindInvalidStatus   Kind = "invalid_status"
	KindValidation      Kind = "validation"
	KindTransient       Kind = "transient"
	KindTimeout         Kind = "timeout"
	KindCircuitOpen     Kind = "circuit_open"
	KindNoGroundStation Kind = "no_ground_station"
	KindParseError      Kind = "parse_error"
	KindAlreadyExists   Kind = "already_exists"
	KindException       Kind = "exception"
)

func (k Kind) String() string { return string(k) }

// Error is a classified, caller-visible failure: the {err, {kind, details}}
// shape spec.md §7 requires from every caller-visible operation. Internal
// asynchronous failures are logged with structured metadata instead of
// returned as an Error.
type Error struct {
	Kind    Kind
	Message string
	Err     error // wrapped cause, may be nil
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// sentinelForKind maps a Kind back to its package-level sentinel so that
// errors.Is(err, domain.ErrTimeout) keeps working against a *domain.Error
// built with KindTimeout.
var sentinelForKind = map[Kind]error{
	KindNotFound:        ErrNotFound,
	KindInvalidStatus:   ErrInvalidStatus,
	KindValidation:      ErrValidation,
	KindTransient:       ErrTransient,
	KindTimeout:         ErrTimeout,
	KindCircuitOpen:     ErrCircuitOpen,
	KindNoGroundStation: ErrNoGroundStation,
	KindParseError:      ErrParse,
	KindAlreadyExists:   ErrAlreadyExists,
	KindException:       ErrException,
}

// Is lets errors.Is(myErr, domain.ErrTimeout) succeed against a *domain.Error
// carrying KindTimeout, without requiring every caller to match on Kind.
func (e *Error) Is(target error) bool {
	return sentinelForKind[e.Kind] == target
}
