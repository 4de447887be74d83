// Package transport defines the interface for mail delivery backends.
package transport

import (
	"context"
	"errors"

	"github.com/shineum/courier/internal/email"
)

var (
	// ErrAddressRejected marks a failure where the remote side refused one
	// of the message addresses.
	ErrAddressRejected = errors.New("address rejected")

	// ErrProtocol marks a failure reported by the remote side through its
	// protocol (an SMTP reply, an API error response) rather than a
	// connectivity problem.
	ErrProtocol = errors.New("protocol failure")
)

// Transport is the interface that mail delivery backends must implement.
// Implementations acquire whatever connection they need per Send call and
// must be safe for concurrent use.
type Transport interface {
	// Send makes exactly one delivery attempt for the message.
	// It returns an error if the delivery fails; implementations never retry.
	Send(ctx context.Context, msg *email.Email) error

	// Name returns the human-readable name of this transport.
	Name() string
}
