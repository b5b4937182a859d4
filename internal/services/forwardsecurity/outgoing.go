package forwardsecurity

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"fscore/internal/crypto"
	"fscore/internal/domain"
	"fscore/internal/instrument"
	"fscore/internal/protocol/dhsession"
	"fscore/internal/protocol/envelope"
)

// Encapsulation is the outcome of MakeMessage. Messages must be sent in order;
// the last one carries the caller's message, wrapped or not.
type Encapsulation struct {
	Messages []domain.Message

	engine  *Engine
	session *dhsession.Session
	// encapsulated is set when at least one data message was sealed.
	encapsulated bool
}

// Encapsulated reports whether anything was sealed in a session.
func (c *Encapsulation) Encapsulated() bool { return c.encapsulated }

// Commit records that Messages were handed to the transport: the Init no
// longer needs to be repeated and the keepalive timer restarts. Call it once
// sending succeeded. It is a no-op when no session was involved.
func (c *Encapsulation) Commit() error {
	if c.session == nil {
		return nil
	}
	c.session.NewSessionCommitted = true
	if c.encapsulated {
		c.session.LastOutgoingMessage = c.engine.now()
	}
	return c.engine.store.UpdateSessionMeta(c.session)
}

// MakeMessage prepares inner for delivery to contact.
//
// Our ratchet is turned and persisted for every sealed message before
// MakeMessage returns, so the keys in the result are never handed out again.
func (e *Engine) MakeMessage(ctx context.Context, contact domain.Contact, inner domain.Message) (*Encapsulation, error) {
	if inner.Type == domain.MessageTypeForwardSecurityEnvelope {
		return nil, ErrAlreadyEncapsulated
	}
	if !e.enabled || !contact.SupportsForwardSecrecy() {
		return &Encapsulation{Messages: []domain.Message{inner}, engine: e}, nil
	}

	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	session, created, err := e.bestOrNewSession(contact)
	if err != nil {
		return nil, err
	}
	session.Versions = session.Versions.Refresh(e.versions)
	out := &Encapsulation{engine: e, session: session}

	if !session.NewSessionCommitted {
		initMsg, err := e.envelopeMessage(contact.Identity, &envelope.Envelope{
			SessionID: session.ID,
			Content: &envelope.Init{
				SupportedVersion:   e.versions,
				EphemeralPublicKey: session.MyEphemeralPublicKey,
			},
		})
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, initMsg)
	}

	if !dhsession.Eligible(inner.Type, session.Versions.OutgoingApplied) {
		if !created && e.now().Sub(session.LastOutgoingMessage) > keepAliveInterval {
			id, err := newMessageID()
			if err != nil {
				return nil, err
			}
			empty, err := e.encapsulate(session, domain.Message{
				Type: domain.MessageTypeEmpty,
				From: inner.From,
				To:   inner.To,
				ID:   id,
				Date: e.now(),
			})
			if err != nil {
				return nil, err
			}
			out.Messages = append(out.Messages, empty)
			out.encapsulated = true
		}
		logrus.WithFields(logrus.Fields{
			"function": "MakeMessage",
			"peer":     contact.Identity.String(),
			"session":  session.ID.String(),
			"type":     inner.Type.String(),
			"applied":  session.Versions.OutgoingApplied.String(),
		}).Debug("Message type not eligible at applied version, sending unwrapped")
		out.Messages = append(out.Messages, inner)
		return out, nil
	}

	wrapped, err := e.encapsulate(session, inner)
	if err != nil {
		return nil, err
	}
	out.Messages = append(out.Messages, wrapped)
	out.encapsulated = true
	return out, nil
}

func (e *Engine) bestOrNewSession(contact domain.Contact) (*dhsession.Session, bool, error) {
	my := e.identity.Identity()
	session, found, err := e.store.LoadBestSession(my, contact.Identity)
	if err != nil {
		return nil, false, fmt.Errorf("load best session: %w", err)
	}
	if found {
		return session, false, nil
	}

	session, err = dhsession.NewInitiatorSession(e.identity, contact, e.versions)
	if err != nil {
		return nil, false, fmt.Errorf("new initiator session: %w", err)
	}
	if _, exists, err := e.store.LoadSession(my, contact.Identity, session.ID); err != nil {
		return nil, false, err
	} else if exists {
		return nil, false, ErrSessionExists
	}
	if err := e.store.StoreSession(session); err != nil {
		return nil, false, fmt.Errorf("store session: %w", err)
	}

	instrument.SessionCreated("initiator")
	logrus.WithFields(logrus.Fields{
		"function": "bestOrNewSession",
		"peer":     contact.Identity.String(),
		"session":  session.ID.String(),
	}).Info("Created initiator session")
	e.events.emit(SessionCreated{PeerIdentity: contact.Identity, SessionID: session.ID, Initiator: true})
	return session, true, nil
}

// advanceAndPersist hands out the current key of our outgoing ratchet after
// the turned ratchet has reached the store. The caller must wipe key.
func (e *Engine) advanceAndPersist(session *dhsession.Session) (key [32]byte, counter uint64, dh domain.DHType, err error) {
	r, dh := session.OutgoingRatchet()
	if r == nil {
		return key, 0, dh, fmt.Errorf("%w: no outgoing ratchet in state %s", dhsession.ErrIllegalState, session.State.Name())
	}
	key = r.EncryptionKey()
	counter = r.Counter()
	r.Turn()
	if err := e.store.UpdateMyRatchets(session); err != nil {
		crypto.WipeKey(&key)
		return [32]byte{}, 0, dh, fmt.Errorf("persist ratchet: %w", err)
	}
	return key, counter, dh, nil
}

// encapsulate seals inner into a data message, copying its routing metadata.
func (e *Engine) encapsulate(session *dhsession.Session, inner domain.Message) (domain.Message, error) {
	key, counter, dh, err := e.advanceAndPersist(session)
	if err != nil {
		return domain.Message{}, err
	}
	plaintext := make([]byte, 0, 1+len(inner.Body))
	plaintext = append(plaintext, byte(inner.Type))
	plaintext = append(plaintext, inner.Body...)
	ciphertext := crypto.SealSingleUse(key, plaintext)
	crypto.WipeKey(&key)
	crypto.Wipe(plaintext)

	body, err := envelope.Marshal(&envelope.Envelope{
		SessionID: session.ID,
		Content: &envelope.DataMessage{
			DHType:         dh,
			Counter:        counter,
			OfferedVersion: session.Versions.OutgoingOffered,
			AppliedVersion: session.Versions.OutgoingApplied,
			GroupIdentity:  inner.Group,
			Ciphertext:     ciphertext,
		},
	})
	if err != nil {
		return domain.Message{}, err
	}

	instrument.MessageEncapsulated(dh.String())
	logrus.WithFields(logrus.Fields{
		"function": "encapsulate",
		"peer":     session.PeerIdentity.String(),
		"session":  session.ID.String(),
		"dh_type":  dh.String(),
		"counter":  counter,
	}).Debug("Encapsulated message")

	out := inner
	out.Type = domain.MessageTypeForwardSecurityEnvelope
	out.Body = body
	return out, nil
}
