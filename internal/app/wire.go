package app

import (
	"fmt"
	"net/http"
	"os"

	"fscore/internal/crypto"
	"fscore/internal/domain"
	"fscore/internal/relay"
	"fscore/internal/services/directory"
	fs "fscore/internal/services/forwardsecurity"
	"fscore/internal/services/identity"
	"fscore/internal/services/message"
	"fscore/internal/services/session"
	"fscore/internal/store"
)

// Wire bundles the stores and clients that need no passphrase.
type Wire struct {
	Config   *Config
	Identity *identity.Service
	Devices  domain.DeviceKeyStore
	Contacts domain.ContactStore
	Inbox    domain.InboxStore
	Relay    domain.RelayClient
	HTTP     *http.Client
}

// NewWire constructs the locked part of the dependency graph from cfg, which
// must have passed FixupAndValidate.
func NewWire(cfg *Config) (*Wire, error) {
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, err
	}

	// Ensure an HTTP client is available for outbound calls
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	var rc domain.RelayClient
	if cfg.RelayURL != "" {
		rc = relay.NewHTTP(cfg.RelayURL, httpClient)
	}

	return &Wire{
		Config:   cfg,
		Identity: identity.New(store.NewIdentityFileStore(cfg.Home)),
		Devices:  store.NewDeviceKeyFileStore(cfg.Home),
		Contacts: store.NewContactFileStore(cfg.Home),
		Inbox:    store.NewInboxFileStore(cfg.Home),
		Relay:    rc,
		HTTP:     httpClient,
	}, nil
}

// Unlock decrypts the identity and device key and builds the services.
func (w *Wire) Unlock(passphrase string) (*App, error) {
	local, err := w.Identity.Unlock(passphrase)
	if err != nil {
		return nil, err
	}
	deviceKey, err := w.Devices.LoadOrCreateDeviceKey(passphrase)
	if err != nil {
		local.Close()
		return nil, err
	}
	wrapper, err := crypto.NewDeviceKeyWrapper(deviceKey)
	crypto.Wipe(deviceKey)
	if err != nil {
		local.Close()
		return nil, err
	}
	sessions, err := OpenSessionStore(w.Config.Store, wrapper)
	if err != nil {
		wrapper.Close()
		local.Close()
		return nil, err
	}

	fsCfg := w.Config.ForwardSecrecy
	features := domain.FeatureMask(0)
	opts := []fs.Option{fs.WithVersions(fsCfg.Versions())}
	if fsCfg.Disabled {
		opts = append(opts, fs.WithDisabled())
	} else {
		features |= domain.FeatureForwardSecrecy
	}

	a := &App{
		Local:    local,
		Sessions: sessions,
		Contacts: w.Contacts,
		Inbox:    w.Inbox,
		Relay:    w.Relay,
		wrapper:  wrapper,
	}
	// Without a relay sessions can still be listed; anything the engine tries
	// to send fails with ErrNoRelay.
	var sender domain.MessageSender = discardSender{}
	var refresher domain.FeatureMaskRefresher
	var flusher session.Flusher
	if w.Relay != nil {
		a.Outbox = message.NewOutbox(w.Relay)
		a.Directory = directory.New(local, features, w.Contacts, w.Relay)
		sender, refresher, flusher = a.Outbox, a.Directory, a.Outbox
	}
	a.Engine = fs.New(local, sessions, sender, refresher, opts...)
	if w.Relay != nil {
		a.Messages = message.New(local.Identity(), a.Engine, a.Outbox, w.Contacts, a.Directory, w.Inbox, w.Relay)
	}
	a.SessionSvc = session.New(local.Identity(), sessions, a.Engine, flusher)
	return a, nil
}

// OpenSessionStore opens the configured session backend.
func OpenSessionStore(cfg *Store, w domain.KeyWrapper) (*store.SessionStore, error) {
	switch cfg.Backend {
	case BackendSQLite:
		return store.OpenSQLiteSessionStore(cfg.Path, w)
	case BackendBolt:
		return store.OpenBoltSessionStore(cfg.Path, w)
	}
	return nil, fmt.Errorf("unknown session store backend %q", cfg.Backend)
}
