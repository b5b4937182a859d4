package app

import (
	"context"
	"errors"

	"fscore/internal/crypto"
	"fscore/internal/domain"
	"fscore/internal/services/directory"
	fs "fscore/internal/services/forwardsecurity"
	"fscore/internal/services/identity"
	"fscore/internal/services/message"
	"fscore/internal/services/session"
	"fscore/internal/store"
)

// ErrNoRelay is returned by commands that need a relay when none is configured.
var ErrNoRelay = errors.New("no relay configured, use --relay")

// App is the unlocked dependency graph. Directory, Outbox and Messages are
// nil without a relay.
type App struct {
	Local      *identity.Local
	Sessions   *store.SessionStore
	Contacts   domain.ContactStore
	Inbox      domain.InboxStore
	Relay      domain.RelayClient
	Engine     *fs.Engine
	Outbox     *message.Outbox
	Directory  *directory.Service
	Messages   *message.Service
	SessionSvc *session.Service

	wrapper *crypto.DeviceKeyWrapper
}

// RequireRelay fails with ErrNoRelay when the relay-backed services are missing.
func (a *App) RequireRelay() error {
	if a.Relay == nil {
		return ErrNoRelay
	}
	return nil
}

// Close releases the session store and wipes key material.
func (a *App) Close() error {
	err := a.Sessions.Close()
	a.wrapper.Close()
	a.Local.Close()
	return err
}

// discardSender stands in for the outbox when no relay is configured.
type discardSender struct{}

func (discardSender) Send(context.Context, domain.Message) error    { return ErrNoRelay }
func (discardSender) SendNow(context.Context, domain.Message) error { return ErrNoRelay }
