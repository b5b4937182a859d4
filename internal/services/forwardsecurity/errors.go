package forwardsecurity

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyEncapsulated is returned when MakeMessage is handed an envelope.
	ErrAlreadyEncapsulated = errors.New("forwardsecurity: message is already an envelope")
	// ErrSessionExists is returned when creating a session that is already stored.
	ErrSessionExists = errors.New("forwardsecurity: session already exists")
	// ErrNotEnvelope is returned when ProcessEnvelopeMessage gets a plain message.
	ErrNotEnvelope = errors.New("forwardsecurity: not an envelope message")
)

// BadMessageError reports an incoming message that could not be used. The
// engine has already answered the peer where the protocol requires it, so the
// caller only has to drop the message.
type BadMessageError struct {
	Reason string
	Err    error
}

func (e *BadMessageError) Error() string {
	if e.Err == nil {
		return "forwardsecurity: bad message: " + e.Reason
	}
	return fmt.Sprintf("forwardsecurity: bad message: %s: %v", e.Reason, e.Err)
}

func (e *BadMessageError) Unwrap() error { return e.Err }

func badMessage(reason string, err error) error {
	return &BadMessageError{Reason: reason, Err: err}
}
