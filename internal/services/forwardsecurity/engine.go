package forwardsecurity

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fscore/internal/domain"
	"fscore/internal/instrument"
	"fscore/internal/protocol/dhsession"
	"fscore/internal/protocol/envelope"
)

// keepAliveInterval is how long a session may stay silent before an empty
// message is sent ahead of a message that cannot be encapsulated.
const keepAliveInterval = 24 * time.Hour

// Engine runs the forward secrecy protocol for one local identity.
type Engine struct {
	identity domain.LocalIdentity
	store    domain.SessionStore
	sender   domain.MessageSender
	features domain.FeatureMaskRefresher

	versions domain.VersionRange
	enabled  bool
	now      func() time.Time

	// sendMu serializes MakeMessage so two sends never read the same
	// ratchet state.
	sendMu sync.Mutex
	events eventHub
}

// Option configures an Engine.
type Option func(*Engine)

// WithVersions overrides the locally supported version range.
func WithVersions(r domain.VersionRange) Option {
	return func(e *Engine) { e.versions = r }
}

// WithDisabled turns forward secrecy off locally: nothing is encapsulated and
// incoming Init and data messages are answered with DISABLED_BY_LOCAL.
func WithDisabled() Option {
	return func(e *Engine) { e.enabled = false }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New returns an engine for identity.
func New(
	identity domain.LocalIdentity,
	store domain.SessionStore,
	sender domain.MessageSender,
	features domain.FeatureMaskRefresher,
	opts ...Option,
) *Engine {
	e := &Engine{
		identity: identity,
		store:    store,
		sender:   sender,
		features: features,
		versions: dhsession.SupportedVersions,
		enabled:  true,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers fn for lifecycle events until cancel is called.
func (e *Engine) Subscribe(fn func(Event)) (cancel func()) { return e.events.subscribe(fn) }

// Enabled reports whether forward secrecy is switched on locally.
func (e *Engine) Enabled() bool { return e.enabled }

// SupportedVersions is the local version range.
func (e *Engine) SupportedVersions() domain.VersionRange { return e.versions }

// TerminateAllSessions sends Terminate(cause) for every session with peer and
// deletes them. It returns how many sessions were terminated.
func (e *Engine) TerminateAllSessions(ctx context.Context, peer domain.Identity, cause envelope.TerminateCause) (int, error) {
	my := e.identity.Identity()
	sessions, err := e.store.ListSessions(my, peer)
	if err != nil {
		return 0, err
	}
	for _, s := range sessions {
		if err := e.sendTerminate(ctx, peer, s.ID, cause); err != nil {
			return 0, err
		}
	}
	n, err := e.store.DeleteAllSessions(my, peer)
	if err != nil {
		return 0, err
	}
	for _, s := range sessions {
		e.events.emit(SessionTerminated{PeerIdentity: peer, SessionID: s.ID, Cause: cause, Known: true, Local: true})
	}
	logrus.WithFields(logrus.Fields{
		"function": "TerminateAllSessions",
		"peer":     peer.String(),
		"count":    n,
		"cause":    cause.String(),
	}).Info("Terminated all sessions with peer")
	return n, nil
}

func newMessageID() (domain.MessageID, error) {
	var id domain.MessageID
	_, err := rand.Read(id[:])
	return id, err
}

// envelopeMessage wraps env into a transport message addressed to peer.
func (e *Engine) envelopeMessage(peer domain.Identity, env *envelope.Envelope) (domain.Message, error) {
	body, err := envelope.Marshal(env)
	if err != nil {
		return domain.Message{}, err
	}
	id, err := newMessageID()
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		Type: domain.MessageTypeForwardSecurityEnvelope,
		From: e.identity.Identity(),
		To:   peer,
		ID:   id,
		Date: e.now(),
		Body: body,
	}, nil
}

func (e *Engine) sendTerminate(ctx context.Context, peer domain.Identity, id domain.SessionID, cause envelope.TerminateCause) error {
	msg, err := e.envelopeMessage(peer, &envelope.Envelope{SessionID: id, Content: &envelope.Terminate{Cause: cause}})
	if err != nil {
		return err
	}
	if err := e.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send terminate: %w", err)
	}
	instrument.TerminateSent(cause.String())
	logrus.WithFields(logrus.Fields{
		"function": "sendTerminate",
		"peer":     peer.String(),
		"session":  id.String(),
		"cause":    cause.String(),
	}).Warn("Sent terminate")
	return nil
}

func (e *Engine) sendReject(
	ctx context.Context,
	peer domain.Identity,
	id domain.SessionID,
	rejected domain.MessageID,
	group *domain.GroupIdentity,
	cause envelope.RejectCause,
) error {
	msg, err := e.envelopeMessage(peer, &envelope.Envelope{
		SessionID: id,
		Content:   &envelope.Reject{RejectedMessageID: rejected, Cause: cause, GroupIdentity: group},
	})
	if err != nil {
		return err
	}
	if err := e.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send reject: %w", err)
	}
	instrument.RejectSent(cause.String())
	logrus.WithFields(logrus.Fields{
		"function": "sendReject",
		"peer":     peer.String(),
		"session":  id.String(),
		"message":  rejected.String(),
		"cause":    cause.String(),
	}).Warn("Sent reject")
	return nil
}

// refreshFeatures re-reads the peer's feature mask. Failures only get logged:
// the next Reject or Terminate will try again.
func (e *Engine) refreshFeatures(ctx context.Context, peer domain.Identity) (domain.FeatureMask, bool) {
	if e.features == nil {
		return 0, false
	}
	mask, err := e.features.RefreshFeatureMask(ctx, peer)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "refreshFeatures",
			"peer":     peer.String(),
			"error":    err.Error(),
		}).Warn("Failed to refresh feature mask")
		return 0, false
	}
	return mask, true
}
