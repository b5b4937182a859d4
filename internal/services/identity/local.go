package identity

import (
	"fscore/internal/crypto"
	"fscore/internal/domain"
)

// Local is the unlocked identity. The private key never leaves it.
type Local struct {
	id   domain.Identity
	pub  domain.X25519Public
	priv domain.X25519Private
}

// NewLocal takes ownership of keys.
func NewLocal(keys domain.IdentityKeys) *Local {
	return &Local{id: keys.Identity, pub: keys.XPub, priv: keys.XPriv}
}

func (l *Local) Identity() domain.Identity { return l.id }

func (l *Local) PublicKey() domain.X25519Public { return l.pub }

// SharedSecret is the raw X25519 secret between our identity key and pub.
func (l *Local) SharedSecret(pub domain.X25519Public) ([32]byte, error) {
	return crypto.DH(l.priv, pub)
}

// Contact describes us the way peers store us.
func (l *Local) Contact(features domain.FeatureMask) domain.Contact {
	return domain.Contact{Identity: l.id, PublicKey: l.pub, FeatureMask: features}
}

// Close wipes the private key.
func (l *Local) Close() { crypto.WipeKey((*[32]byte)(&l.priv)) }

var _ domain.LocalIdentity = (*Local)(nil)
