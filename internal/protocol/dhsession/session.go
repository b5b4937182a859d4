package dhsession

import (
	"errors"
	"fmt"
	"time"

	"fscore/internal/crypto"
	domaintypes "fscore/internal/domain/types"
	"fscore/internal/protocol/ratchet"
)

// ErrMissingEphemeralPrivateKey is returned by ProcessAccept when the session
// is not waiting for an Accept.
var ErrMissingEphemeralPrivateKey = errors.New("dhsession: missing ephemeral private key")

// Session is one DH session between MyIdentity and PeerIdentity.
type Session struct {
	ID                   domaintypes.SessionID
	MyIdentity           domaintypes.Identity
	PeerIdentity         domaintypes.Identity
	MyEphemeralPublicKey domaintypes.X25519Public
	State                State
	Versions             Versions
	// NewSessionCommitted is set once the Init for this session has been handed
	// to the transport.
	NewSessionCommitted bool
	// LastOutgoingMessage is zero until something was sent in this session.
	LastOutgoingMessage time.Time
}

// NewInitiatorSession starts a session towards peer. Only our own 2DH ratchet
// exists until the peer accepts.
func NewInitiatorSession(me StaticKey, peer domaintypes.Contact, local domaintypes.VersionRange) (*Session, error) {
	id, err := domaintypes.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, fmt.Errorf("ephemeral key: %w", err)
	}
	d, err := initiator2DH(me, ephPriv, peer.PublicKey)
	if err != nil {
		crypto.WipeKey((*[32]byte)(&ephPriv))
		return nil, err
	}
	defer d.wipe()

	return &Session{
		ID:                   id,
		MyIdentity:           me.Identity(),
		PeerIdentity:         peer.Identity,
		MyEphemeralPublicKey: ephPub,
		State: &Initiator2DH{
			MyRatchet2DH:          ratchet.New(1, root2DH(me.Identity(), d)),
			MyEphemeralPrivateKey: ephPriv,
		},
		Versions: initiatorVersions(local),
	}, nil
}

// NewResponderSession answers the peer's Init. All four DH values are known at
// once, so the ephemeral private key is discarded before returning.
func NewResponderSession(
	id domaintypes.SessionID,
	me StaticKey,
	peer domaintypes.Contact,
	peerEphemeral domaintypes.X25519Public,
	peerRange, local domaintypes.VersionRange,
) (*Session, error) {
	negotiated, err := Negotiate(local, peerRange)
	if err != nil {
		return nil, err
	}
	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, fmt.Errorf("ephemeral key: %w", err)
	}
	defer crypto.WipeKey((*[32]byte)(&ephPriv))

	d, err := responder4DH(me, ephPriv, peer.PublicKey, peerEphemeral)
	if err != nil {
		return nil, err
	}
	defer d.wipe()

	peerK, myK := roots4DH(peer.Identity, me.Identity(), d)
	return &Session{
		ID:                   id,
		MyIdentity:           me.Identity(),
		PeerIdentity:         peer.Identity,
		MyEphemeralPublicKey: ephPub,
		State: &Responder2DH4DH{
			PeerRatchet2DH: ratchet.New(1, root2DH(peer.Identity, d)),
			MyRatchet4DH:   ratchet.New(1, myK),
			PeerRatchet4DH: ratchet.New(1, peerK),
		},
		Versions: negotiatedVersions(local, negotiated),
	}, nil
}

// ProcessAccept completes the initiator side of the handshake.
func (s *Session) ProcessAccept(
	me StaticKey,
	peer domaintypes.Contact,
	peerEphemeral domaintypes.X25519Public,
	peerRange, local domaintypes.VersionRange,
) error {
	st, ok := s.State.(*Initiator2DH)
	if !ok {
		return ErrMissingEphemeralPrivateKey
	}
	negotiated, err := Negotiate(local, peerRange)
	if err != nil {
		return err
	}
	d, err := initiator4DH(me, st.MyEphemeralPrivateKey, peer.PublicKey, peerEphemeral)
	if err != nil {
		return err
	}
	defer d.wipe()

	myK, peerK := roots4DH(me.Identity(), peer.Identity, d)
	crypto.WipeKey((*[32]byte)(&st.MyEphemeralPrivateKey))
	st.MyRatchet2DH.Wipe()

	s.State = &Established4DH{
		MyRatchet4DH:   ratchet.New(1, myK),
		PeerRatchet4DH: ratchet.New(1, peerK),
	}
	s.Versions = negotiatedVersions(local, negotiated)
	return nil
}

// DiscardPeerRatchet2DH is called once the peer has switched to 4DH.
func (s *Session) DiscardPeerRatchet2DH() {
	if st, ok := s.State.(*Responder2DH4DH); ok {
		st.PeerRatchet2DH.Wipe()
		s.State = &Established4DH{MyRatchet4DH: st.MyRatchet4DH, PeerRatchet4DH: st.PeerRatchet4DH}
	}
}

// Terminate wipes all key material.
func (s *Session) Terminate() {
	for _, r := range []*ratchet.KDFRatchet{s.MyRatchet2DH(), s.MyRatchet4DH(), s.PeerRatchet2DH(), s.PeerRatchet4DH()} {
		r.Wipe()
	}
	if st, ok := s.State.(*Initiator2DH); ok {
		crypto.WipeKey((*[32]byte)(&st.MyEphemeralPrivateKey))
	}
	s.State = &Terminated{}
}

func (s *Session) MyRatchet2DH() *ratchet.KDFRatchet {
	if st, ok := s.State.(*Initiator2DH); ok {
		return st.MyRatchet2DH
	}
	return nil
}

func (s *Session) MyRatchet4DH() *ratchet.KDFRatchet {
	switch st := s.State.(type) {
	case *Responder2DH4DH:
		return st.MyRatchet4DH
	case *Established4DH:
		return st.MyRatchet4DH
	}
	return nil
}

func (s *Session) PeerRatchet2DH() *ratchet.KDFRatchet {
	if st, ok := s.State.(*Responder2DH4DH); ok {
		return st.PeerRatchet2DH
	}
	return nil
}

func (s *Session) PeerRatchet4DH() *ratchet.KDFRatchet {
	switch st := s.State.(type) {
	case *Responder2DH4DH:
		return st.PeerRatchet4DH
	case *Established4DH:
		return st.PeerRatchet4DH
	}
	return nil
}

// MyEphemeralPrivateKey is non-nil only while waiting for an Accept.
func (s *Session) MyEphemeralPrivateKey() *domaintypes.X25519Private {
	if st, ok := s.State.(*Initiator2DH); ok {
		k := st.MyEphemeralPrivateKey
		return &k
	}
	return nil
}

// PeerRatchet returns the receiving ratchet for dh, or nil.
func (s *Session) PeerRatchet(dh domaintypes.DHType) *ratchet.KDFRatchet {
	if dh == domaintypes.DHTypeFourDH {
		return s.PeerRatchet4DH()
	}
	return s.PeerRatchet2DH()
}

// OutgoingRatchet returns the ratchet to encrypt with: 4DH when available.
func (s *Session) OutgoingRatchet() (*ratchet.KDFRatchet, domaintypes.DHType) {
	if r := s.MyRatchet4DH(); r != nil {
		return r, domaintypes.DHTypeFourDH
	}
	return s.MyRatchet2DH(), domaintypes.DHTypeTwoDH
}

// HasFourDH reports whether our 4DH ratchet exists.
func (s *Session) HasFourDH() bool { return s.MyRatchet4DH() != nil }

// Clone deep-copies the session including its ratchets.
func (s *Session) Clone() *Session {
	c := *s
	c.State = cloneState(s.State)
	return &c
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s<->%s, %s, %s)", s.ID, s.MyIdentity, s.PeerIdentity, s.State.Name(), s.Versions)
}

// Best picks the authoritative session: one holding a 4DH ratchet wins, ties go
// to the smallest id. Returns nil for an empty slice.
func Best(sessions []*Session) *Session {
	var best *Session
	for _, s := range sessions {
		switch {
		case best == nil:
			best = s
		case s.HasFourDH() != best.HasFourDH():
			if s.HasFourDH() {
				best = s
			}
		case s.ID.Less(best.ID):
			best = s
		}
	}
	return best
}
