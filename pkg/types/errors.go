package types

import "fmt"

// Kind is the closed error taxonomy from spec.md §7. Every fault
// surfaced by Strata's core carries exactly one Kind.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindAlreadyExists       Kind = "already_exists"
	KindWrongType           Kind = "wrong_type"
	KindInvalidInput        Kind = "invalid_input"
	KindVersionConflict     Kind = "version_conflict"
	KindConflict            Kind = "conflict"
	KindRunClosed           Kind = "run_closed"
	KindDimensionMismatch   Kind = "dimension_mismatch"
	KindConstraintViolation Kind = "constraint_violation"
	KindTransactionError    Kind = "transaction_error"
	KindIoError             Kind = "io_error"
	KindInternalError       Kind = "internal_error"
)

// Error is the single error type returned by every Strata core
// operation. It carries the entity the failure is about (when
// applicable), a human message, and the wrapped cause so errors.Is /
// errors.As keep working through the wrapper.
type Error struct {
	Kind    Kind
	Ref     *EntityRef
	Message string
	cause   error

	// Expected/Actual are populated for KindVersionConflict.
	Expected *Version
	Actual   *Version
}

func (e *Error) Error() string {
	ref := ""
	if e.Ref != nil {
		ref = " " + e.Ref.String()
	}
	if e.cause != nil {
		return fmt.Sprintf("%s%s: %s: %v", e.Kind, ref, e.Message, e.cause)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s%s: %s", e.Kind, ref, e.Message)
	}
	return fmt.Sprintf("%s%s", e.Kind, ref)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, ref *EntityRef, message string) *Error {
	return &Error{Kind: kind, Ref: ref, Message: message}
}

// Wrap builds an *Error around an existing error, preserving it for
// errors.Unwrap/errors.Is chains.
func Wrap(kind Kind, ref *EntityRef, cause error) *Error {
	return &Error{Kind: kind, Ref: ref, cause: cause}
}

// VersionConflict builds the specific error carried on OCC validation
// failure, attaching the snapshot-observed and actual head versions so
// the caller can decide whether to retry.
func VersionConflict(ref *EntityRef, expected, actual Version) *Error {
	return &Error{
		Kind:     KindVersionConflict,
		Ref:      ref,
		Message:  "version conflict",
		Expected: &expected,
		Actual:   &actual,
	}
}

// IsKind reports whether the first *Error found along err's Unwrap
// chain has kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	for err != nil {
		if as, ok := err.(*Error); ok {
			e = as
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == k
}
