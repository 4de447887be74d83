package courier

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("sending welcome mail: %w", invalidAddress("cc"))

	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.NotErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrValidationFailed)
	assert.Equal(t, KindInvalidAddress, KindOf(err))
	assert.Equal(t, "cc email is invalid", invalidAddress("cc").Error())
}

func TestError_UnwrapsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := transportError(CauseSend, cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, "mail not sent: connection refused", err.Error())
}

func TestError_Status(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  *Error
		want int
	}{
		{invalidArgument("sender", "sender must not be empty"), StatusDefault},
		{validationFailed("subject is required"), StatusDefault},
		{invalidAddress("recipient"), StatusDefault},
		{&Error{Kind: KindTemplate, Message: "boom"}, StatusRuntime},
		{&Error{Kind: KindTransport, Cause: CauseProtocol}, StatusProtocol},
		{&Error{Kind: KindTransport, Cause: CauseSend}, StatusSend},
		{&Error{Kind: KindInvalidAddress, Cause: CauseAddressRejected}, StatusAddressRejected},
		{&Error{Kind: KindTransport, Cause: CauseEncoding}, StatusEncoding},
		{&Error{Kind: KindTransport, Cause: CauseRuntime}, StatusRuntime},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Status(), "%s/%s", tt.err.Kind, tt.err.Cause)
	}
}

func TestKindOf_NonCourierError(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(0), KindOf(nil))
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "invalid_argument", KindInvalidArgument.String())
	assert.Equal(t, "template", KindTemplate.String())
	assert.Equal(t, "unknown", Kind(42).String())
	assert.Equal(t, "address_rejected", CauseAddressRejected.String())
	assert.Equal(t, "none", CauseNone.String())
}
