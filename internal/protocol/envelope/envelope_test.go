package envelope_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	domaintypes "fscore/internal/domain/types"
	"fscore/internal/protocol/envelope"
)

func sessionID() domaintypes.SessionID {
	return domaintypes.SessionID{0xde, 0xad, 0xbe, 0xef, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
}

func key(fill byte) domaintypes.X25519Public {
	var k domaintypes.X25519Public
	for i := range k {
		k[i] = fill
	}
	return k
}

func TestRoundTrip_AllVariants(t *testing.T) {
	group := &domaintypes.GroupIdentity{CreatorIdentity: "CREATOR1", GroupID: 0x0102030405060708}
	tests := []struct {
		name    string
		content envelope.Content
	}{
		{"init", &envelope.Init{SupportedVersion: domaintypes.VersionRange{Min: domaintypes.Version1_0, Max: domaintypes.Version1_2}, EphemeralPublicKey: key(0x11)}},
		{"accept", &envelope.Accept{SupportedVersion: domaintypes.VersionRange{Min: domaintypes.Version1_0, Max: domaintypes.Version1_1}, EphemeralPublicKey: key(0x22)}},
		{"reject", &envelope.Reject{RejectedMessageID: domaintypes.MessageID{1, 2, 3, 4, 5, 6, 7, 8}, Cause: envelope.RejectStateMismatch}},
		{"reject in group", &envelope.Reject{RejectedMessageID: domaintypes.MessageID{8}, Cause: envelope.RejectUnknownSession, GroupIdentity: group}},
		{"data 2dh", &envelope.DataMessage{DHType: domaintypes.DHTypeTwoDH, Counter: 1, OfferedVersion: domaintypes.Version1_2, AppliedVersion: domaintypes.Version1_0, Ciphertext: []byte("sealed")}},
		{"data 4dh in group", &envelope.DataMessage{DHType: domaintypes.DHTypeFourDH, Counter: 1 << 40, OfferedVersion: domaintypes.Version1_2, AppliedVersion: domaintypes.Version1_2, GroupIdentity: group, Ciphertext: []byte{0, 1, 2}}},
		{"terminate", &envelope.Terminate{Cause: envelope.TerminateDisabledByRemote}},
		{"terminate default cause", &envelope.Terminate{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := &envelope.Envelope{SessionID: sessionID(), Content: tc.content}
			b, err := envelope.Marshal(in)
			require.NoError(t, err)
			out, err := envelope.Unmarshal(b)
			require.NoError(t, err)
			assert.Equal(t, in, out)
		})
	}
}

// rawEnvelope builds an envelope around a hand-encoded content field.
func rawEnvelope(kind envelope.Kind, inner []byte) []byte {
	id := sessionID()
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, id[:])
	b = protowire.AppendTag(b, protowire.Number(kind), protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func TestUnmarshal_ShortPublicKey(t *testing.T) {
	inner := protowire.AppendTag(nil, 2, protowire.BytesType)
	inner = protowire.AppendBytes(inner, make([]byte, 31))

	_, err := envelope.Unmarshal(rawEnvelope(envelope.KindInit, inner))
	assert.ErrorIs(t, err, envelope.ErrInvalidPublicKeyLength)
	_, err = envelope.Unmarshal(rawEnvelope(envelope.KindAccept, inner))
	assert.ErrorIs(t, err, envelope.ErrInvalidPublicKeyLength)
}

func TestUnmarshal_BadMessageIDLength(t *testing.T) {
	inner := protowire.AppendTag(nil, 1, protowire.BytesType)
	inner = protowire.AppendBytes(inner, make([]byte, 7))
	_, err := envelope.Unmarshal(rawEnvelope(envelope.KindReject, inner))
	assert.ErrorIs(t, err, envelope.ErrInvalidMessageIDLength)
}

func TestUnmarshal_UnknownContent(t *testing.T) {
	id := sessionID()
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, id[:])

	_, err := envelope.Unmarshal(b)
	assert.ErrorIs(t, err, envelope.ErrUnknownEnvelope)

	b = protowire.AppendTag(b, 9, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte{1, 2, 3})
	_, err = envelope.Unmarshal(b)
	assert.ErrorIs(t, err, envelope.ErrUnknownEnvelope)
}

func TestUnmarshal_Garbage(t *testing.T) {
	_, err := envelope.Unmarshal([]byte{0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, envelope.ErrMalformed)

	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte{1, 2, 3})
	_, err = envelope.Unmarshal(b)
	assert.ErrorIs(t, err, envelope.ErrInvalidSessionIDLength)
}

func TestUnmarshal_InvalidDHType(t *testing.T) {
	inner := protowire.AppendTag(nil, 1, protowire.VarintType)
	inner = protowire.AppendVarint(inner, 7)
	_, err := envelope.Unmarshal(rawEnvelope(envelope.KindEncapsulated, inner))
	assert.ErrorIs(t, err, envelope.ErrInvalidDHType)
}

func TestMarshal_RejectsEmptyContent(t *testing.T) {
	_, err := envelope.Marshal(&envelope.Envelope{SessionID: sessionID()})
	assert.ErrorIs(t, err, envelope.ErrUnknownEnvelope)
}
