package canon

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings.
type Kind string

const (
	// KindEncoding covers values that have no canonical byte form: non-finite
	// floats, unsupported types, invalid UTF-8 and keys that collide after
	// coercion to strings.
	KindEncoding Kind = "Encoding"
	// KindDomainPrefix is returned when a domain prefix is requested on a
	// contract that forbids one.
	KindDomainPrefix Kind = "DomainPrefix"
	KindInternal     Kind = "Internal"
)

// Error is the package's structured error type.
//
// RuleID is a stable identifier (e.g., CANON-ENC-001) naming the violated rule.
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func wrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// NewEncodingError builds an Encoding error for callers that enforce extra
// rules at their own hashing boundary.
func NewEncodingError(ruleID, msg string, cause error) error {
	return wrapError(KindEncoding, ruleID, msg, cause)
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
