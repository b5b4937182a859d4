package interfaces

import (
	"context"

	domaintypes "fscore/internal/domain/types"
)

// LocalIdentity is an unlocked identity. The private key stays inside it.
type LocalIdentity interface {
	Identity() domaintypes.Identity
	PublicKey() domaintypes.X25519Public
	SharedSecret(pub domaintypes.X25519Public) ([32]byte, error)
}

// IdentityService creates, retrieves, and inspects your identity keys.
type IdentityService interface {
	GenerateIdentity(id domaintypes.Identity, passphrase string) (domaintypes.Fingerprint, error)
	LoadIdentity(passphrase string) (domaintypes.IdentityKeys, error)
	FingerprintIdentity(passphrase string) (domaintypes.Fingerprint, error)
}

// DirectoryService publishes our contact entry and looks up peers.
type DirectoryService interface {
	Register(ctx context.Context) error
	AddContact(ctx context.Context, id domaintypes.Identity) (domaintypes.Contact, error)
	FeatureMaskRefresher
}

// MessageService sends and receives messages through the forward secrecy engine.
type MessageService interface {
	SendMessage(
		ctx context.Context,
		to domaintypes.Identity,
		msgType domaintypes.MessageType,
		body []byte,
	) (domaintypes.MessageID, error)
	ReceiveMessages(ctx context.Context, limit int) ([]domaintypes.DecryptedMessage, error)
}

// SessionService inspects and resets forward secrecy sessions.
type SessionService interface {
	ListSessions(peer domaintypes.Identity) ([]domaintypes.SessionInfo, error)
	ResetSessions(ctx context.Context, peer domaintypes.Identity) (int, error)
}
