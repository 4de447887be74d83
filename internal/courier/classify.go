package courier

import (
	"errors"
	"strings"

	"github.com/shineum/courier/internal/email"
	"github.com/shineum/courier/internal/transport"
)

// classify maps a transport failure onto the error taxonomy. Remote address
// rejections are recognised by sentinel or by an "invalid address" reason,
// which also matches servers answering "Invalid Addresses".
func classify(err error) *Error {
	switch {
	case errors.Is(err, transport.ErrAddressRejected),
		strings.Contains(strings.ToLower(err.Error()), "invalid address"):
		return &Error{
			Kind:    KindInvalidAddress,
			Cause:   CauseAddressRejected,
			Message: "invalid email address",
			Err:     err,
		}
	case errors.Is(err, email.ErrEncoding):
		return transportError(CauseEncoding, err)
	case errors.Is(err, transport.ErrProtocol):
		return transportError(CauseProtocol, err)
	default:
		return transportError(CauseSend, err)
	}
}

func transportError(cause Cause, err error) *Error {
	return &Error{
		Kind:    KindTransport,
		Cause:   cause,
		Message: "mail not sent: " + err.Error(),
		Err:     err,
	}
}
