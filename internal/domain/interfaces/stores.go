package interfaces

import (
	domaintypes "fscore/internal/domain/types"
	"fscore/internal/protocol/dhsession"
)

// IdentityStore persists your long-term identity keys.
type IdentityStore interface {
	SaveIdentity(passphrase string, keys domaintypes.IdentityKeys) error
	LoadIdentity(passphrase string) (domaintypes.IdentityKeys, error)
}

// DeviceKeyStore keeps the random key that wraps session secrets at rest.
type DeviceKeyStore interface {
	// LoadOrCreateDeviceKey returns the device key, generating it on first use.
	LoadOrCreateDeviceKey(passphrase string) ([]byte, error)
}

// KeyWrapper encrypts key material before it touches disk.
type KeyWrapper interface {
	Wrap(plaintext []byte) ([]byte, error)
	Unwrap(wrapped []byte) ([]byte, error)
}

// ContactStore persists what we know about peers.
type ContactStore interface {
	SaveContact(c domaintypes.Contact) error
	LoadContact(id domaintypes.Identity) (domaintypes.Contact, bool, error)
	ListContacts() ([]domaintypes.Contact, error)
}

// InboxStore durably keeps received plaintexts.
type InboxStore interface {
	// SaveMessage is idempotent on (From, ID).
	SaveMessage(m domaintypes.DecryptedMessage) error
	ListMessages() ([]domaintypes.DecryptedMessage, error)
}

// SessionStore persists forward secrecy sessions keyed by
// (my identity, peer identity, session id).
//
// The Update methods only ever move ratchets forward: a stored ratchet is
// replaced only when the new counter is at least the stored one, a 4DH
// ratchet is never removed and a discarded 2DH ratchet never comes back.
// Concurrent send and receive paths therefore never undo each other.
type SessionStore interface {
	// StoreSession inserts s or replaces its ratchets; meta fields of an
	// existing row only move forward, as with UpdateSessionMeta.
	StoreSession(s *dhsession.Session) error
	LoadSession(my, peer domaintypes.Identity, id domaintypes.SessionID) (*dhsession.Session, bool, error)
	LoadBestSession(my, peer domaintypes.Identity) (*dhsession.Session, bool, error)
	ListSessions(my, peer domaintypes.Identity) ([]*dhsession.Session, error)

	UpdateMyRatchets(s *dhsession.Session) error
	UpdatePeerRatchets(s *dhsession.Session) error
	// UpdateSessionMeta writes NewSessionCommitted, LastOutgoingMessage and Versions.
	UpdateSessionMeta(s *dhsession.Session) error

	DeleteSession(my, peer domaintypes.Identity, id domaintypes.SessionID) (bool, error)
	DeleteAllSessions(my, peer domaintypes.Identity) (int, error)
	// DeleteAllSessionsExcept keeps keep; with fourDHOnly set, sessions
	// without a 4DH ratchet survive as well.
	DeleteAllSessionsExcept(my, peer domaintypes.Identity, keep domaintypes.SessionID, fourDHOnly bool) (int, error)

	Close() error
}
