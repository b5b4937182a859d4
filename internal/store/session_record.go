package store

import (
	"errors"
	"fmt"
	"time"

	"fscore/internal/crypto"
	"fscore/internal/domain"
	domaintypes "fscore/internal/domain/types"
	"fscore/internal/protocol/dhsession"
	"fscore/internal/protocol/ratchet"
)

// errCorruptSession marks a row that can never be loaded again: a key failed
// to unwrap or the ratchet slots form no legal state. Callers delete it.
var errCorruptSession = errors.New("store: corrupt session")

// sessionRecordVersion is bumped whenever sessionRecord changes shape.
const sessionRecordVersion = 1

// ratchetRecord is one persisted ratchet with its chain key wrapped.
type ratchetRecord struct {
	Counter  uint64 `cbor:"1,keyasint"`
	ChainKey []byte `cbor:"2,keyasint"`
}

// sessionRecord is the backend-neutral persisted form of a session.
type sessionRecord struct {
	V                     int                 `cbor:"0,keyasint"`
	MyIdentity            domain.Identity     `cbor:"1,keyasint"`
	PeerIdentity          domain.Identity     `cbor:"2,keyasint"`
	SessionID             domain.SessionID    `cbor:"3,keyasint"`
	MyEphemeralPrivateKey []byte              `cbor:"4,keyasint,omitempty"`
	MyEphemeralPublicKey  domain.X25519Public `cbor:"5,keyasint"`
	MyRatchet2DH          *ratchetRecord      `cbor:"6,keyasint,omitempty"`
	MyRatchet4DH          *ratchetRecord      `cbor:"7,keyasint,omitempty"`
	PeerRatchet2DH        *ratchetRecord      `cbor:"8,keyasint,omitempty"`
	PeerRatchet4DH        *ratchetRecord      `cbor:"9,keyasint,omitempty"`
	Versions              dhsession.Versions  `cbor:"10,keyasint"`
	NewSessionCommitted   bool                `cbor:"11,keyasint"`
	LastOutgoingMessage   int64               `cbor:"12,keyasint,omitempty"`

	// corrupt is set for a row the backend could not decode. Only the key
	// fields are valid then.
	corrupt error
}

// corruptRecord stands in for an undecodable row so it can be deleted.
func corruptRecord(my, peer domain.Identity, id domain.SessionID, cause error) *sessionRecord {
	return &sessionRecord{
		MyIdentity:   my,
		PeerIdentity: peer,
		SessionID:    id,
		corrupt:      fmt.Errorf("%w: %v", errCorruptSession, cause),
	}
}

func wrapRatchet(w domain.KeyWrapper, r *ratchet.KDFRatchet) (*ratchetRecord, error) {
	if r == nil {
		return nil, nil
	}
	ck := r.ChainKey()
	defer crypto.WipeKey(&ck)
	wrapped, err := w.Wrap(ck[:])
	if err != nil {
		return nil, err
	}
	return &ratchetRecord{Counter: r.Counter(), ChainKey: wrapped}, nil
}

func unwrapRatchet(w domain.KeyWrapper, rec *ratchetRecord) (*ratchet.KDFRatchet, error) {
	if rec == nil {
		return nil, nil
	}
	ck, err := w.Unwrap(rec.ChainKey)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(ck)
	if len(ck) != 32 {
		return nil, fmt.Errorf("chain key length %d", len(ck))
	}
	return ratchet.New(rec.Counter, [32]byte(ck)), nil
}

// newSessionRecord wraps every secret of s.
func newSessionRecord(w domain.KeyWrapper, s *dhsession.Session) (*sessionRecord, error) {
	rec := &sessionRecord{
		V:                    sessionRecordVersion,
		MyIdentity:           s.MyIdentity,
		PeerIdentity:         s.PeerIdentity,
		SessionID:            s.ID,
		MyEphemeralPublicKey: s.MyEphemeralPublicKey,
		Versions:             s.Versions,
		NewSessionCommitted:  s.NewSessionCommitted,
	}
	if !s.LastOutgoingMessage.IsZero() {
		rec.LastOutgoingMessage = s.LastOutgoingMessage.UnixMilli()
	}
	if eph := s.MyEphemeralPrivateKey(); eph != nil {
		wrapped, err := w.Wrap(eph[:])
		crypto.WipeKey((*[32]byte)(eph))
		if err != nil {
			return nil, fmt.Errorf("wrap ephemeral key: %w", err)
		}
		rec.MyEphemeralPrivateKey = wrapped
	}

	var err error
	if rec.MyRatchet2DH, err = wrapRatchet(w, s.MyRatchet2DH()); err != nil {
		return nil, fmt.Errorf("wrap ratchet: %w", err)
	}
	if rec.MyRatchet4DH, err = wrapRatchet(w, s.MyRatchet4DH()); err != nil {
		return nil, fmt.Errorf("wrap ratchet: %w", err)
	}
	if rec.PeerRatchet2DH, err = wrapRatchet(w, s.PeerRatchet2DH()); err != nil {
		return nil, fmt.Errorf("wrap ratchet: %w", err)
	}
	if rec.PeerRatchet4DH, err = wrapRatchet(w, s.PeerRatchet4DH()); err != nil {
		return nil, fmt.Errorf("wrap ratchet: %w", err)
	}
	return rec, nil
}

// session unwraps rec. Any failure is reported as errCorruptSession.
func (rec *sessionRecord) session(w domain.KeyWrapper) (*dhsession.Session, error) {
	if rec.corrupt != nil {
		return nil, rec.corrupt
	}
	var eph *domain.X25519Private
	if rec.MyEphemeralPrivateKey != nil {
		raw, err := w.Unwrap(rec.MyEphemeralPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: ephemeral key: %v", errCorruptSession, err)
		}
		k, err := domaintypes.X25519PrivateFromBytes(raw)
		crypto.Wipe(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errCorruptSession, err)
		}
		eph = &k
	}

	var slots [4]*ratchet.KDFRatchet
	for i, r := range []*ratchetRecord{rec.MyRatchet2DH, rec.MyRatchet4DH, rec.PeerRatchet2DH, rec.PeerRatchet4DH} {
		unwrapped, err := unwrapRatchet(w, r)
		if err != nil {
			return nil, fmt.Errorf("%w: ratchet: %v", errCorruptSession, err)
		}
		slots[i] = unwrapped
	}
	state, err := dhsession.StateFromRatchets(eph, slots[0], slots[1], slots[2], slots[3])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptSession, err)
	}

	s := &dhsession.Session{
		ID:                   rec.SessionID,
		MyIdentity:           rec.MyIdentity,
		PeerIdentity:         rec.PeerIdentity,
		MyEphemeralPublicKey: rec.MyEphemeralPublicKey,
		State:                state,
		Versions:             rec.Versions,
		NewSessionCommitted:  rec.NewSessionCommitted,
	}
	if rec.LastOutgoingMessage != 0 {
		s.LastOutgoingMessage = time.UnixMilli(rec.LastOutgoingMessage)
	}
	return s, nil
}

// mayReplace4DH: a 4DH ratchet is never dropped and never moves back.
func mayReplace4DH(stored, next *ratchetRecord) bool {
	if next == nil {
		return stored == nil
	}
	return stored == nil || stored.Counter <= next.Counter
}

// mayReplace2DH: a 2DH ratchet may be discarded but never recreated or moved back.
func mayReplace2DH(stored, next *ratchetRecord) bool {
	if next == nil {
		return true
	}
	return stored != nil && stored.Counter <= next.Counter
}

// mergeMyRatchets copies my side of next into stored if that moves forward.
func mergeMyRatchets(stored, next *sessionRecord) bool {
	if !mayReplace2DH(stored.MyRatchet2DH, next.MyRatchet2DH) ||
		!mayReplace4DH(stored.MyRatchet4DH, next.MyRatchet4DH) {
		return false
	}
	stored.MyRatchet2DH = next.MyRatchet2DH
	stored.MyRatchet4DH = next.MyRatchet4DH
	stored.MyEphemeralPrivateKey = next.MyEphemeralPrivateKey
	return true
}

// mergePeerRatchets is the peer-side counterpart of mergeMyRatchets.
func mergePeerRatchets(stored, next *sessionRecord) bool {
	if !mayReplace2DH(stored.PeerRatchet2DH, next.PeerRatchet2DH) ||
		!mayReplace4DH(stored.PeerRatchet4DH, next.PeerRatchet4DH) {
		return false
	}
	stored.PeerRatchet2DH = next.PeerRatchet2DH
	stored.PeerRatchet4DH = next.PeerRatchet4DH
	return true
}

// mergeMeta only ever sets flags and raises versions and timestamps.
func mergeMeta(stored, next *sessionRecord) {
	stored.NewSessionCommitted = stored.NewSessionCommitted || next.NewSessionCommitted
	stored.LastOutgoingMessage = max(stored.LastOutgoingMessage, next.LastOutgoingMessage)
	stored.Versions.OutgoingOffered = max(stored.Versions.OutgoingOffered, next.Versions.OutgoingOffered)
	stored.Versions.OutgoingApplied = max(stored.Versions.OutgoingApplied, next.Versions.OutgoingApplied)
	stored.Versions.IncomingAppliedMin = max(stored.Versions.IncomingAppliedMin, next.Versions.IncomingAppliedMin)
}
