// Package apperr classifies failures so transports can map them without
// knowing which component raised them.
package apperr

import "errors"

// Kind is the failure class of an Error.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "invalid_request"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "state_conflict"
	case KindStorage:
		return "storage_error"
	default:
		return "internal_error"
	}
}

// Error is a classified failure. Two Errors match under errors.Is when their
// Kind and Code are equal, so copies made by WithParam still match the
// sentinel they came from.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Param   string
	Err     error
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(code, message, param string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Param: param}
}

// Storage wraps a driver failure raised while performing op.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Code: "storage_error", Message: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// WithParam returns a copy naming the offending input field.
func (e *Error) WithParam(param string) *Error {
	cp := *e
	cp.Param = param
	return &cp
}

// WithMessage returns a copy carrying a more specific message.
func (e *Error) WithMessage(message string) *Error {
	cp := *e
	cp.Message = message
	return &cp
}

// KindOf reports the Kind of the first Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
