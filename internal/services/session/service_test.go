package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fscore/internal/domain"
	"fscore/internal/protocol/dhsession"
	"fscore/internal/protocol/ratchet"
	"fscore/internal/services/session"
)

func TestDescribe(t *testing.T) {
	s := &dhsession.Session{
		ID:           domain.SessionID{1},
		MyIdentity:   "ALICE001",
		PeerIdentity: "BOB00001",
		State: &dhsession.Responder2DH4DH{
			PeerRatchet2DH: ratchet.New(3, [32]byte{1}),
			MyRatchet4DH:   ratchet.New(5, [32]byte{2}),
			PeerRatchet4DH: ratchet.New(7, [32]byte{3}),
		},
		Versions: dhsession.Versions{
			OutgoingOffered:    domain.Version1_2,
			OutgoingApplied:    domain.Version1_1,
			IncomingAppliedMin: domain.Version1_0,
		},
		NewSessionCommitted: true,
	}

	info := session.Describe(s)
	assert.Equal(t, "R24", info.State)
	assert.Equal(t, domain.DHTypeFourDH, info.MyDHType)
	assert.Equal(t, uint64(5), info.MyCounter)
	assert.Equal(t, uint64(3), info.PeerCounter2DH)
	assert.Equal(t, uint64(7), info.PeerCounter4DH)
	assert.Equal(t, domain.Version1_1, info.OutgoingApplied)
	assert.True(t, info.NewSessionCommitted)
	assert.False(t, info.Best)
}
