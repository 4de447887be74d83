package courier

import (
	"errors"
)

// Kind classifies a courier failure.
type Kind int

const (
	// KindInvalidArgument reports a missing value passed to a Builder method.
	KindInvalidArgument Kind = iota + 1
	// KindValidationFailed reports a violated cross-field invariant at Build time.
	KindValidationFailed
	// KindInvalidAddress reports an address that failed syntax validation or
	// was refused by the remote side.
	KindInvalidAddress
	// KindTemplate reports a template renderer failure.
	KindTemplate
	// KindTransport reports a delivery failure unrelated to address validity.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindValidationFailed:
		return "validation_failed"
	case KindInvalidAddress:
		return "invalid_address"
	case KindTemplate:
		return "template"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Cause narrows a dispatch failure down to what went wrong in delivery.
type Cause int

const (
	CauseNone Cause = iota
	// CauseProtocol is a negative reply from the mail server or API.
	CauseProtocol
	// CauseSend is any other delivery failure, such as a refused connection.
	CauseSend
	// CauseAddressRejected is an address refused by the remote side.
	CauseAddressRejected
	// CauseEncoding is a failure to serialise the message or read an attachment.
	CauseEncoding
	// CauseRuntime is an unexpected failure, including recovered panics.
	CauseRuntime
)

func (c Cause) String() string {
	switch c {
	case CauseProtocol:
		return "protocol"
	case CauseSend:
		return "send"
	case CauseAddressRejected:
		return "address_rejected"
	case CauseEncoding:
		return "encoding"
	case CauseRuntime:
		return "runtime"
	default:
		return "none"
	}
}

// Numeric status codes reported by Error.Status.
const (
	StatusDefault         = 900
	StatusProtocol        = 901
	StatusSend            = 902
	StatusAddressRejected = 903
	StatusEncoding        = 904
	StatusRuntime         = 905
)

// Error is the error type returned by Builder.Build and Dispatcher.Send.
type Error struct {
	Kind Kind
	// Field names the offending message field, when there is one:
	// "sender", "recipient", "cc", "bcc" or "replyTo" for address errors.
	Field string
	Cause Cause
	// Message is the human-readable description. For template failures it is
	// the renderer's message unchanged.
	Message string
	// Err is the underlying error, if any.
	Err error
}

// Sentinels for matching an Error by kind with errors.Is.
var (
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrValidationFailed = &Error{Kind: KindValidationFailed, Message: "validation failed"}
	ErrInvalidAddress   = &Error{Kind: KindInvalidAddress, Message: "invalid address"}
	ErrTemplate         = &Error{Kind: KindTemplate, Message: "template failure"}
	ErrTransport        = &Error{Kind: KindTransport, Message: "transport failure"}
)

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t == sentinel(e.Kind)
}

// Status returns the numeric status code of the failure: the cause's code
// for dispatch failures, StatusRuntime for template failures and
// StatusDefault otherwise.
func (e *Error) Status() int {
	if e.Kind == KindTemplate {
		return StatusRuntime
	}
	switch e.Cause {
	case CauseProtocol:
		return StatusProtocol
	case CauseSend:
		return StatusSend
	case CauseAddressRejected:
		return StatusAddressRejected
	case CauseEncoding:
		return StatusEncoding
	case CauseRuntime:
		return StatusRuntime
	default:
		return StatusDefault
	}
}

func sentinel(k Kind) *Error {
	switch k {
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindValidationFailed:
		return ErrValidationFailed
	case KindInvalidAddress:
		return ErrInvalidAddress
	case KindTemplate:
		return ErrTemplate
	case KindTransport:
		return ErrTransport
	default:
		return nil
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0 when err
// carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func invalidArgument(field, message string) *Error {
	return &Error{Kind: KindInvalidArgument, Field: field, Message: message}
}

func validationFailed(message string) *Error {
	return &Error{Kind: KindValidationFailed, Message: message}
}

func invalidAddress(field string) *Error {
	return &Error{Kind: KindInvalidAddress, Field: field, Message: field + " email is invalid"}
}
