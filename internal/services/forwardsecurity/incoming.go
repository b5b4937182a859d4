package forwardsecurity

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"fscore/internal/crypto"
	"fscore/internal/domain"
	"fscore/internal/instrument"
	"fscore/internal/protocol/dhsession"
	"fscore/internal/protocol/envelope"
)

// Result is the outcome of ProcessEnvelopeMessage.
type Result struct {
	// Message is the decapsulated message, nil when there is nothing to
	// deliver (control envelopes and empty keepalives).
	Message *domain.Message
	// MessagesSkipped counts peer messages that never arrived before this one.
	MessagesSkipped uint64

	commit func() error
}

// Commit persists the advanced peer ratchet. Call it only after Message has
// been stored durably; until then a crash leaves the message decryptable.
func (r *Result) Commit() error {
	if r == nil || r.commit == nil {
		return nil
	}
	return r.commit()
}

// ProcessEnvelopeMessage handles one incoming forward secrecy envelope from
// contact. A *BadMessageError means the message must be dropped; any reply
// the protocol requires has already been sent.
func (e *Engine) ProcessEnvelopeMessage(ctx context.Context, contact domain.Contact, msg domain.Message) (*Result, error) {
	if msg.Type != domain.MessageTypeForwardSecurityEnvelope {
		return nil, ErrNotEnvelope
	}
	env, err := envelope.Unmarshal(msg.Body)
	if err != nil {
		return nil, badMessage("decode envelope", err)
	}
	kind := env.Content.Kind()
	instrument.EnvelopeProcessed(kind.String())
	logrus.WithFields(logrus.Fields{
		"function": "ProcessEnvelopeMessage",
		"peer":     contact.Identity.String(),
		"session":  env.SessionID.String(),
		"kind":     kind.String(),
	}).Debug("Processing envelope")

	switch c := env.Content.(type) {
	case *envelope.Init:
		return &Result{}, e.processInit(ctx, contact, env.SessionID, c)
	case *envelope.Accept:
		return &Result{}, e.processAccept(ctx, contact, env.SessionID, c)
	case *envelope.Reject:
		return &Result{}, e.processReject(ctx, contact, env.SessionID, c)
	case *envelope.Terminate:
		return &Result{}, e.processTerminate(ctx, contact, env.SessionID, c)
	case *envelope.DataMessage:
		return e.processData(ctx, contact, msg, env.SessionID, c)
	}
	return nil, badMessage("unhandled envelope", envelope.ErrUnknownEnvelope)
}

func (e *Engine) processInit(ctx context.Context, contact domain.Contact, id domain.SessionID, in *envelope.Init) error {
	my, peer := e.identity.Identity(), contact.Identity
	if _, found, err := e.store.LoadSession(my, peer, id); err != nil {
		return err
	} else if found {
		logrus.WithFields(logrus.Fields{
			"function": "processInit",
			"peer":     peer.String(),
			"session":  id.String(),
		}).Debug("Ignoring duplicate init")
		return nil
	}

	if !e.enabled {
		return e.sendTerminate(ctx, peer, id, envelope.TerminateDisabledByLocal)
	}

	// The peer lost its sessions. 2DH sessions of ours may still be waiting
	// for an Accept that crossed this Init, so they stay.
	if _, err := e.store.DeleteAllSessionsExcept(my, peer, id, true); err != nil {
		return fmt.Errorf("delete superseded sessions: %w", err)
	}

	if !contact.SupportsForwardSecrecy() {
		mask, ok := e.refreshFeatures(ctx, peer)
		if !ok || !mask.Has(domain.FeatureForwardSecrecy) {
			return e.sendTerminate(ctx, peer, id, envelope.TerminateDisabledByRemote)
		}
		contact.FeatureMask = mask
	}

	session, err := dhsession.NewResponderSession(id, e.identity, contact, in.EphemeralPublicKey, in.SupportedVersion, e.versions)
	if err != nil {
		if terr := e.sendTerminate(ctx, peer, id, envelope.TerminateReset); terr != nil {
			return terr
		}
		return badMessage("init", err)
	}
	// Our Accept goes out right below, nothing left to commit.
	session.NewSessionCommitted = true
	if err := e.store.StoreSession(session); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	accept, err := e.envelopeMessage(peer, &envelope.Envelope{
		SessionID: id,
		Content: &envelope.Accept{
			SupportedVersion:   e.versions,
			EphemeralPublicKey: session.MyEphemeralPublicKey,
		},
	})
	if err == nil {
		err = e.sender.SendNow(ctx, accept)
	}
	if err != nil {
		// The Init stays unacked and comes back; it must not find this session
		// or the peer never gets an Accept.
		if _, derr := e.store.DeleteSession(my, peer, id); derr != nil {
			return errors.Join(fmt.Errorf("send accept: %w", err), derr)
		}
		return fmt.Errorf("send accept: %w", err)
	}
	instrument.SessionCreated("responder")
	e.events.emit(SessionCreated{PeerIdentity: peer, SessionID: id})
	logrus.WithFields(logrus.Fields{
		"function": "processInit",
		"peer":     peer.String(),
		"session":  id.String(),
		"versions": session.Versions.String(),
	}).Info("Created responder session")
	return nil
}

func (e *Engine) processAccept(ctx context.Context, contact domain.Contact, id domain.SessionID, accept *envelope.Accept) error {
	my, peer := e.identity.Identity(), contact.Identity
	session, found, err := e.store.LoadSession(my, peer, id)
	if err != nil {
		return err
	}
	if !found {
		if err := e.sendTerminate(ctx, peer, id, envelope.TerminateUnknownSession); err != nil {
			return err
		}
		e.events.emit(AcceptForUnknownSession{PeerIdentity: peer, SessionID: id})
		return nil
	}

	if err := session.ProcessAccept(e.identity, contact, accept.EphemeralPublicKey, accept.SupportedVersion, e.versions); err != nil {
		if terr := e.sendTerminate(ctx, peer, id, envelope.TerminateReset); terr != nil {
			return terr
		}
		if _, derr := e.store.DeleteSession(my, peer, id); derr != nil {
			return derr
		}
		session.Terminate()
		e.events.emit(SessionTerminated{PeerIdentity: peer, SessionID: id, Cause: envelope.TerminateReset, Known: true, Local: true})
		return badMessage("accept", err)
	}
	if err := e.store.StoreSession(session); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "processAccept",
		"peer":     peer.String(),
		"session":  id.String(),
		"versions": session.Versions.String(),
	}).Info("Session established")
	e.events.emit(SessionEstablished{PeerIdentity: peer, SessionID: id})
	return nil
}

func (e *Engine) processReject(ctx context.Context, contact domain.Contact, id domain.SessionID, reject *envelope.Reject) error {
	peer := contact.Identity
	known, err := e.store.DeleteSession(e.identity.Identity(), peer, id)
	if err != nil {
		return err
	}
	e.refreshFeatures(ctx, peer)
	logrus.WithFields(logrus.Fields{
		"function": "processReject",
		"peer":     peer.String(),
		"session":  id.String(),
		"message":  reject.RejectedMessageID.String(),
		"cause":    reject.Cause.String(),
		"known":    known,
	}).Warn("Peer rejected message")
	e.events.emit(SessionRejected{
		PeerIdentity:      peer,
		SessionID:         id,
		RejectedMessageID: reject.RejectedMessageID,
		Cause:             reject.Cause,
		Known:             known,
	})
	return nil
}

func (e *Engine) processTerminate(ctx context.Context, contact domain.Contact, id domain.SessionID, term *envelope.Terminate) error {
	peer := contact.Identity
	known, err := e.store.DeleteSession(e.identity.Identity(), peer, id)
	if err != nil {
		return err
	}
	e.refreshFeatures(ctx, peer)
	logrus.WithFields(logrus.Fields{
		"function": "processTerminate",
		"peer":     peer.String(),
		"session":  id.String(),
		"cause":    term.Cause.String(),
		"known":    known,
	}).Info("Peer terminated session")
	e.events.emit(SessionTerminated{PeerIdentity: peer, SessionID: id, Cause: term.Cause, Known: known})
	return nil
}

func (e *Engine) processData(
	ctx context.Context,
	contact domain.Contact,
	msg domain.Message,
	id domain.SessionID,
	data *envelope.DataMessage,
) (*Result, error) {
	my, peer := e.identity.Identity(), contact.Identity

	if !e.enabled {
		if err := e.sendReject(ctx, peer, id, msg.ID, data.GroupIdentity, envelope.RejectDisabledByLocal); err != nil {
			return nil, err
		}
		if _, err := e.store.DeleteSession(my, peer, id); err != nil {
			return nil, err
		}
		return nil, badMessage("forward secrecy disabled", nil)
	}

	session, found, err := e.store.LoadSession(my, peer, id)
	if err != nil {
		return nil, err
	}
	if !found {
		if err := e.sendReject(ctx, peer, id, msg.ID, data.GroupIdentity, envelope.RejectUnknownSession); err != nil {
			return nil, err
		}
		return nil, badMessage("unknown session", nil)
	}

	next, err := session.Versions.ProcessIncoming(data.DHType, data.OfferedVersion, data.AppliedVersion)
	if err != nil {
		return nil, e.dropSession(ctx, session, msg.ID, data, "versions", err)
	}
	r := session.PeerRatchet(data.DHType)
	if r == nil {
		return nil, e.dropSession(ctx, session, msg.ID, data,
			fmt.Sprintf("no %s ratchet in state %s", data.DHType, session.State.Name()), nil)
	}
	skipped, err := r.TurnUntil(data.Counter)
	if err != nil {
		return nil, e.dropSession(ctx, session, msg.ID, data, "ratchet", err)
	}
	key := r.EncryptionKey()
	plaintext, err := crypto.OpenSingleUse(key, data.Ciphertext)
	crypto.WipeKey(&key)
	if err != nil {
		return nil, e.dropSession(ctx, session, msg.ID, data, "decrypt", err)
	}
	r.Turn()

	if skipped > 0 {
		instrument.MessagesSkipped(skipped)
		logrus.WithFields(logrus.Fields{
			"function": "processData",
			"peer":     peer.String(),
			"session":  id.String(),
			"skipped":  skipped,
		}).Info("Messages skipped")
		e.events.emit(MessagesSkipped{PeerIdentity: peer, SessionID: id, Count: skipped})
	}

	if data.DHType == domain.DHTypeFourDH {
		if err := e.settleFourDH(session); err != nil {
			return nil, err
		}
	}
	session.Versions = next

	res := &Result{
		MessagesSkipped: skipped,
		commit: func() error {
			if err := e.store.UpdatePeerRatchets(session); err != nil {
				return err
			}
			return e.store.UpdateSessionMeta(session)
		},
	}

	if len(plaintext) == 0 {
		logrus.WithFields(logrus.Fields{
			"function": "processData",
			"peer":     peer.String(),
			"session":  id.String(),
		}).Warn("Dropping encapsulated message without type")
		return res, nil
	}
	switch t := domain.MessageType(plaintext[0]); t {
	case domain.MessageTypeEmpty:
		return res, nil
	case domain.MessageTypeForwardSecurityEnvelope:
		logrus.WithFields(logrus.Fields{
			"function": "processData",
			"peer":     peer.String(),
			"session":  id.String(),
		}).Warn("Dropping nested envelope")
		return res, nil
	default:
		inner := msg
		inner.Type = t
		inner.Body = plaintext[1:]
		inner.Group = data.GroupIdentity
		res.Message = &inner
	}
	return res, nil
}

// settleFourDH runs after the first 4DH message in a session: the peer will
// not use 2DH again, and if this is the best session the others are obsolete.
func (e *Engine) settleFourDH(session *dhsession.Session) error {
	if _, ok := session.State.(*dhsession.Responder2DH4DH); ok {
		session.DiscardPeerRatchet2DH()
		logrus.WithFields(logrus.Fields{
			"function": "settleFourDH",
			"peer":     session.PeerIdentity.String(),
			"session":  session.ID.String(),
		}).Info("Session established")
		e.events.emit(SessionEstablished{PeerIdentity: session.PeerIdentity, SessionID: session.ID})
	}

	all, err := e.store.ListSessions(session.MyIdentity, session.PeerIdentity)
	if err != nil {
		return err
	}
	if best := dhsession.Best(all); best == nil || best.ID != session.ID {
		return nil
	}
	n, err := e.store.DeleteAllSessionsExcept(session.MyIdentity, session.PeerIdentity, session.ID, false)
	if err != nil {
		return err
	}
	if n > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "settleFourDH",
			"peer":     session.PeerIdentity.String(),
			"session":  session.ID.String(),
			"deleted":  n,
		}).Debug("Deleted superseded sessions")
	}
	return nil
}

// dropSession answers a data message that does not fit its session with
// Reject(STATE_MISMATCH) and deletes the session.
func (e *Engine) dropSession(
	ctx context.Context,
	session *dhsession.Session,
	rejected domain.MessageID,
	data *envelope.DataMessage,
	reason string,
	cause error,
) error {
	peer := session.PeerIdentity
	if err := e.sendReject(ctx, peer, session.ID, rejected, data.GroupIdentity, envelope.RejectStateMismatch); err != nil {
		return err
	}
	if _, err := e.store.DeleteSession(session.MyIdentity, peer, session.ID); err != nil {
		return err
	}
	session.Terminate()
	e.events.emit(IllegalSessionState{PeerIdentity: peer, SessionID: session.ID, Reason: reason})
	return badMessage(reason, cause)
}
