package identity

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/sirupsen/logrus"

	"fscore/internal/crypto"
	"fscore/internal/domain"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
	// identityLength is the fixed length of an identity string.
	identityLength = 8
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
	// ErrInvalidIdentity is returned for identity strings that are not 8 upper-case letters or digits.
	ErrInvalidIdentity = errors.New("identity must be 8 upper-case letters or digits")
)

// Service manages identity key creation and access using a backing store.
type Service struct {
	store domain.IdentityStore
}

// New returns an identity service backed by the given store.
func New(s domain.IdentityStore) *Service { return &Service{store: s} }

// GenerateIdentity creates a new X25519 identity named id, saves it encrypted
// with the passphrase, and returns a short fingerprint of the public key.
func (s *Service) GenerateIdentity(id domain.Identity, passphrase string) (domain.Fingerprint, error) {
	if err := ValidateIdentity(id); err != nil {
		return "", err
	}
	if !isSecurePassphrase(passphrase) {
		return "", ErrWeakPassphrase
	}

	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return "", err
	}
	keys := domain.IdentityKeys{Identity: id, XPub: pub, XPriv: priv}
	if err := s.store.SaveIdentity(passphrase, keys); err != nil {
		return "", err
	}
	crypto.WipeKey((*[32]byte)(&keys.XPriv))

	fp := crypto.Fingerprint(pub)
	logrus.WithFields(logrus.Fields{
		"function":    "GenerateIdentity",
		"identity":    id.String(),
		"fingerprint": fp.String(),
	}).Info("Generated identity")
	return fp, nil
}

// LoadIdentity decrypts and returns the local identity.
func (s *Service) LoadIdentity(passphrase string) (domain.IdentityKeys, error) {
	return s.store.LoadIdentity(passphrase)
}

// FingerprintIdentity returns a short fingerprint of the local X25519 public key.
func (s *Service) FingerprintIdentity(passphrase string) (domain.Fingerprint, error) {
	keys, err := s.store.LoadIdentity(passphrase)
	if err != nil {
		return "", err
	}
	crypto.WipeKey((*[32]byte)(&keys.XPriv))
	return crypto.Fingerprint(keys.XPub), nil
}

// Unlock loads the identity and returns it as a LocalIdentity.
func (s *Service) Unlock(passphrase string) (*Local, error) {
	keys, err := s.store.LoadIdentity(passphrase)
	if err != nil {
		return nil, err
	}
	return NewLocal(keys), nil
}

// ValidateIdentity checks the identity naming policy.
func ValidateIdentity(id domain.Identity) error {
	if len(id) != identityLength {
		return ErrInvalidIdentity
	}
	for _, r := range id {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return ErrInvalidIdentity
		}
	}
	return nil
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
