package message

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"fscore/internal/domain"
	fs "fscore/internal/services/forwardsecurity"
)

var (
	// ErrUnknownContact is returned when sending to someone not in the contact store.
	ErrUnknownContact = errors.New("unknown contact; run add-contact first")
	// ErrEmptyBody is returned for text messages without content.
	ErrEmptyBody = errors.New("message body is empty")
)

// Service sends and receives messages over the relay.
//
// High-level flow:
//   - Send: the engine turns the message into one or more transport messages
//     (an Init while the session is new, then the message itself, sealed or
//     not). They are posted in order and the engine is told once they left.
//   - Receive: fetch messages, let the engine open envelopes, store each
//     plaintext in the inbox, only then commit the peer ratchet, and finally
//     ack what was handled.
type Service struct {
	me        domain.Identity
	engine    *fs.Engine
	outbox    *Outbox
	contacts  domain.ContactStore
	directory domain.DirectoryService
	inbox     domain.InboxStore
	relay     domain.RelayClient
	now       func() time.Time
}

// New constructs a Message Service. directory may be nil, in which case
// messages from unknown senders stay queued.
func New(
	me domain.Identity,
	engine *fs.Engine,
	outbox *Outbox,
	contacts domain.ContactStore,
	directory domain.DirectoryService,
	inbox domain.InboxStore,
	relay domain.RelayClient,
) *Service {
	return &Service{
		me:        me,
		engine:    engine,
		outbox:    outbox,
		contacts:  contacts,
		directory: directory,
		inbox:     inbox,
		relay:     relay,
		now:       time.Now,
	}
}

// SendMessage sends body to the contact to and returns the new message id.
func (s *Service) SendMessage(
	ctx context.Context,
	to domain.Identity,
	msgType domain.MessageType,
	body []byte,
) (domain.MessageID, error) {
	var id domain.MessageID
	if msgType == domain.MessageTypeText && len(body) == 0 {
		return id, ErrEmptyBody
	}
	contact, found, err := s.contacts.LoadContact(to)
	if err != nil {
		return id, err
	}
	if !found {
		return id, ErrUnknownContact
	}
	if _, err := rand.Read(id[:]); err != nil {
		return id, err
	}

	enc, err := s.engine.MakeMessage(ctx, contact, domain.Message{
		Type:  msgType,
		From:  s.me,
		To:    to,
		ID:    id,
		Date:  s.now(),
		Flags: domain.FlagPushNotification,
		Body:  body,
	})
	if err != nil {
		return id, err
	}

	// Rejects and Terminates queued earlier go first.
	if err := s.outbox.Flush(ctx); err != nil {
		return id, err
	}
	for _, m := range enc.Messages {
		if err := s.relay.SendMessage(ctx, m); err != nil {
			return id, fmt.Errorf("send %s: %w", m.ID, err)
		}
	}
	if err := enc.Commit(); err != nil {
		return id, fmt.Errorf("commit: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function":       "SendMessage",
		"to":             to.String(),
		"id":             id.String(),
		"type":           msgType.String(),
		"parts":          len(enc.Messages),
		"forward_secure": enc.Encapsulated(),
	}).Debug("Sent message")
	return id, nil
}

// ReceiveMessages fetches up to limit pending messages and returns the ones
// that carried something to show.
//
// Messages are handled in order. Dropped envelopes count as handled; a store
// or transport failure stops processing and leaves the rest queued. Only the
// handled prefix is acked.
func (s *Service) ReceiveMessages(ctx context.Context, limit int) ([]domain.DecryptedMessage, error) {
	msgs, err := s.relay.FetchMessages(ctx, s.me, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DecryptedMessage, 0, len(msgs))
	processed := 0

	for i, m := range msgs {
		dm, err := s.receiveOne(ctx, m)
		if err != nil {
			if flushErr := s.finish(ctx, processed); flushErr != nil {
				return out, errors.Join(err, flushErr)
			}
			return out, err
		}
		if dm != nil {
			out = append(out, *dm)
		}
		processed = i + 1
	}
	return out, s.finish(ctx, processed)
}

func (s *Service) finish(ctx context.Context, processed int) error {
	if err := s.outbox.Flush(ctx); err != nil {
		return err
	}
	if processed == 0 {
		return nil
	}
	if err := s.relay.AckMessages(ctx, s.me, processed); err != nil {
		return fmt.Errorf("ack %d messages: %w", processed, err)
	}
	return nil
}

// receiveOne handles a single transport message. A nil result with a nil
// error means the message was consumed without producing anything to show.
func (s *Service) receiveOne(ctx context.Context, m domain.Message) (*domain.DecryptedMessage, error) {
	contact, err := s.contactFor(ctx, m.From)
	if err != nil {
		return nil, err
	}

	if m.Type != domain.MessageTypeForwardSecurityEnvelope {
		dm := decrypted(m, false)
		if err := s.inbox.SaveMessage(dm); err != nil {
			return nil, err
		}
		return &dm, nil
	}

	res, err := s.engine.ProcessEnvelopeMessage(ctx, contact, m)
	var bad *fs.BadMessageError
	if errors.As(err, &bad) {
		logrus.WithFields(logrus.Fields{
			"function": "receiveOne",
			"from":     m.From.String(),
			"id":       m.ID.String(),
			"error":    err.Error(),
		}).Warn("Dropping message")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var dm *domain.DecryptedMessage
	if res.Message != nil {
		d := decrypted(*res.Message, true)
		if err := s.inbox.SaveMessage(d); err != nil {
			return nil, err
		}
		dm = &d
	}
	// The plaintext is safe on disk, the ratchet may move on.
	if err := res.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return dm, nil
}

func (s *Service) contactFor(ctx context.Context, id domain.Identity) (domain.Contact, error) {
	c, found, err := s.contacts.LoadContact(id)
	if err != nil || found {
		return c, err
	}
	if s.directory == nil {
		return domain.Contact{}, fmt.Errorf("%w: %s", ErrUnknownContact, id)
	}
	return s.directory.AddContact(ctx, id)
}

func decrypted(m domain.Message, forwardSecure bool) domain.DecryptedMessage {
	return domain.DecryptedMessage{
		From:          m.From,
		To:            m.To,
		ID:            m.ID,
		Type:          m.Type,
		Plaintext:     m.Body,
		Timestamp:     m.Date.Unix(),
		ForwardSecure: forwardSecure,
	}
}

// Compile-time assertion that Service implements domain.MessageService.
var _ domain.MessageService = (*Service)(nil)
