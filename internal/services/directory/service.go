package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"fscore/internal/domain"
)

var (
	// ErrIdentityMismatch is returned when the relay answers with a different identity.
	ErrIdentityMismatch = errors.New("directory returned a different identity")
	// ErrKeyChanged is returned when a known contact's public key differs from the directory.
	ErrKeyChanged = errors.New("contact public key changed")
	// ErrSelfContact is returned when adding our own identity.
	ErrSelfContact = errors.New("cannot add yourself as a contact")
)

// Service publishes our entry and resolves peers.
type Service struct {
	me       domain.LocalIdentity
	features domain.FeatureMask
	contacts domain.ContactStore
	relay    domain.RelayClient
}

// New returns a directory service advertising features for me.
func New(
	me domain.LocalIdentity,
	features domain.FeatureMask,
	contacts domain.ContactStore,
	relay domain.RelayClient,
) *Service {
	return &Service{me: me, features: features, contacts: contacts, relay: relay}
}

// Register publishes our identity, public key and feature mask.
func (s *Service) Register(ctx context.Context) error {
	c := domain.Contact{Identity: s.me.Identity(), PublicKey: s.me.PublicKey(), FeatureMask: s.features}
	if err := s.relay.PublishContact(ctx, c); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"function": "Register",
		"identity": c.Identity.String(),
		"features": fmt.Sprintf("%#x", uint64(c.FeatureMask)),
	}).Info("Published contact entry")
	return nil
}

// AddContact looks id up on the relay and stores it. A contact whose key is
// already known must not change.
func (s *Service) AddContact(ctx context.Context, id domain.Identity) (domain.Contact, error) {
	if id == s.me.Identity() {
		return domain.Contact{}, ErrSelfContact
	}
	c, err := s.fetch(ctx, id)
	if err != nil {
		return domain.Contact{}, err
	}
	if err := s.contacts.SaveContact(c); err != nil {
		return domain.Contact{}, err
	}
	logrus.WithFields(logrus.Fields{
		"function": "AddContact",
		"identity": id.String(),
	}).Info("Added contact")
	return c, nil
}

// RefreshFeatureMask re-reads id's advertised features and stores them.
func (s *Service) RefreshFeatureMask(ctx context.Context, id domain.Identity) (domain.FeatureMask, error) {
	c, err := s.fetch(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.contacts.SaveContact(c); err != nil {
		return 0, err
	}
	logrus.WithFields(logrus.Fields{
		"function":        "RefreshFeatureMask",
		"identity":        id.String(),
		"forward_secrecy": c.SupportsForwardSecrecy(),
	}).Debug("Refreshed feature mask")
	return c.FeatureMask, nil
}

// fetch returns the directory entry for id, checked against what we know.
func (s *Service) fetch(ctx context.Context, id domain.Identity) (domain.Contact, error) {
	c, err := s.relay.FetchContact(ctx, id)
	if err != nil {
		return domain.Contact{}, err
	}
	if c.Identity != id {
		return domain.Contact{}, fmt.Errorf("%w: asked for %s, got %s", ErrIdentityMismatch, id, c.Identity)
	}
	known, found, err := s.contacts.LoadContact(id)
	if err != nil {
		return domain.Contact{}, err
	}
	if found && known.PublicKey != c.PublicKey {
		return domain.Contact{}, fmt.Errorf("%w: %s", ErrKeyChanged, id)
	}
	return c, nil
}

// Compile-time assertion that Service implements domain.DirectoryService.
var _ domain.DirectoryService = (*Service)(nil)
