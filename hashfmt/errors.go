package hashfmt

import "errors"

// Kind is a stable category for programmatic error handling.
type Kind string

const KindFormat Kind = "Format"

// Error reports a hash string that is not in the expected wire form.
//
// RuleID is stable (HASH-FMT-0xx); Message is for humans.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Input   string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func formatError(ruleID, msg, input string) error {
	return &Error{Kind: KindFormat, RuleID: ruleID, Message: msg, Input: input}
}

// NewFormatError lets packages that parse richer hash strings (for example
// version-tagged hashes) report failures in the same taxonomy.
func NewFormatError(ruleID, msg, input string) error {
	return formatError(ruleID, msg, input)
}

// IsFormatError reports whether err is (or wraps) a hash format error.
func IsFormatError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindFormat
}

// RuleID returns the stable RuleID for a format error, or "".
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
