package dhsession

import (
	"errors"

	domaintypes "fscore/internal/domain/types"
	"fscore/internal/protocol/ratchet"
)

// ErrIllegalState is returned for ratchet combinations no session can be in.
var ErrIllegalState = errors.New("dhsession: illegal ratchet combination")

// State is one of Initiator2DH, Responder2DH4DH, Established4DH or Terminated.
type State interface {
	Name() string
	isState()
}

// Initiator2DH: Init sent, Accept not yet received.
type Initiator2DH struct {
	MyRatchet2DH          *ratchet.KDFRatchet
	MyEphemeralPrivateKey domaintypes.X25519Private
}

// Responder2DH4DH: Init received and Accept sent. The initiator may still
// deliver 2DH messages sent before it saw our Accept.
type Responder2DH4DH struct {
	PeerRatchet2DH *ratchet.KDFRatchet
	MyRatchet4DH   *ratchet.KDFRatchet
	PeerRatchet4DH *ratchet.KDFRatchet
}

// Established4DH: both sides use 4DH only.
type Established4DH struct {
	MyRatchet4DH   *ratchet.KDFRatchet
	PeerRatchet4DH *ratchet.KDFRatchet
}

// Terminated sessions hold no key material.
type Terminated struct{}

func (Initiator2DH) Name() string    { return "L20" }
func (Responder2DH4DH) Name() string { return "R24" }
func (Established4DH) Name() string  { return "RL44" }
func (Terminated) Name() string      { return "terminated" }

func (Initiator2DH) isState()    {}
func (Responder2DH4DH) isState() {}
func (Established4DH) isState()  {}
func (Terminated) isState()      {}

// StateFromRatchets maps persisted ratchet slots back onto a State.
func StateFromRatchets(
	ephemeralPrivateKey *domaintypes.X25519Private,
	my2DH, my4DH, peer2DH, peer4DH *ratchet.KDFRatchet,
) (State, error) {
	switch {
	case my2DH != nil && ephemeralPrivateKey != nil &&
		my4DH == nil && peer2DH == nil && peer4DH == nil:
		return &Initiator2DH{MyRatchet2DH: my2DH, MyEphemeralPrivateKey: *ephemeralPrivateKey}, nil
	case ephemeralPrivateKey != nil || my2DH != nil:
		return nil, ErrIllegalState
	case my4DH == nil || peer4DH == nil:
		return nil, ErrIllegalState
	case peer2DH != nil:
		return &Responder2DH4DH{PeerRatchet2DH: peer2DH, MyRatchet4DH: my4DH, PeerRatchet4DH: peer4DH}, nil
	default:
		return &Established4DH{MyRatchet4DH: my4DH, PeerRatchet4DH: peer4DH}, nil
	}
}

func cloneState(s State) State {
	switch st := s.(type) {
	case *Initiator2DH:
		return &Initiator2DH{MyRatchet2DH: st.MyRatchet2DH.Clone(), MyEphemeralPrivateKey: st.MyEphemeralPrivateKey}
	case *Responder2DH4DH:
		return &Responder2DH4DH{
			PeerRatchet2DH: st.PeerRatchet2DH.Clone(),
			MyRatchet4DH:   st.MyRatchet4DH.Clone(),
			PeerRatchet4DH: st.PeerRatchet4DH.Clone(),
		}
	case *Established4DH:
		return &Established4DH{MyRatchet4DH: st.MyRatchet4DH.Clone(), PeerRatchet4DH: st.PeerRatchet4DH.Clone()}
	}
	return &Terminated{}
}
