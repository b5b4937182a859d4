package session

import (
	"context"

	"github.com/sirupsen/logrus"

	"fscore/internal/domain"
	"fscore/internal/protocol/dhsession"
	"fscore/internal/protocol/envelope"
	fs "fscore/internal/services/forwardsecurity"
)

// Flusher delivers control messages the engine queued.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Service reports on stored sessions and tears them down on request.
type Service struct {
	me      domain.Identity
	store   domain.SessionStore
	engine  *fs.Engine
	flusher Flusher
}

// New constructs a Session Service.
func New(me domain.Identity, store domain.SessionStore, engine *fs.Engine, flusher Flusher) *Service {
	return &Service{me: me, store: store, engine: engine, flusher: flusher}
}

// ListSessions describes every session with peer, best first.
func (s *Service) ListSessions(peer domain.Identity) ([]domain.SessionInfo, error) {
	sessions, err := s.store.ListSessions(s.me, peer)
	if err != nil {
		return nil, err
	}
	best := dhsession.Best(sessions)
	out := make([]domain.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		info := Describe(sess)
		info.Best = sess == best
		if info.Best {
			out = append([]domain.SessionInfo{info}, out...)
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// ResetSessions terminates every session with peer; the next message starts
// a fresh one.
func (s *Service) ResetSessions(ctx context.Context, peer domain.Identity) (int, error) {
	n, err := s.engine.TerminateAllSessions(ctx, peer, envelope.TerminateReset)
	if err != nil {
		return 0, err
	}
	if s.flusher != nil {
		if err := s.flusher.Flush(ctx); err != nil {
			return n, err
		}
	}
	logrus.WithFields(logrus.Fields{
		"function": "ResetSessions",
		"peer":     peer.String(),
		"count":    n,
	}).Info("Reset sessions")
	return n, nil
}

// Describe returns a view of sess without key material.
func Describe(sess *dhsession.Session) domain.SessionInfo {
	info := domain.SessionInfo{
		ID:                  sess.ID,
		Peer:                sess.PeerIdentity,
		State:               sess.State.Name(),
		OutgoingOffered:     sess.Versions.OutgoingOffered,
		OutgoingApplied:     sess.Versions.OutgoingApplied,
		IncomingAppliedMin:  sess.Versions.IncomingAppliedMin,
		NewSessionCommitted: sess.NewSessionCommitted,
		LastOutgoingMessage: sess.LastOutgoingMessage,
	}
	if r, dh := sess.OutgoingRatchet(); r != nil {
		info.MyDHType = dh
		info.MyCounter = r.Counter()
	}
	if r := sess.PeerRatchet2DH(); r != nil {
		info.PeerCounter2DH = r.Counter()
	}
	if r := sess.PeerRatchet4DH(); r != nil {
		info.PeerCounter4DH = r.Counter()
	}
	return info
}

// Compile-time assertion that Service implements domain.SessionService.
var _ domain.SessionService = (*Service)(nil)
