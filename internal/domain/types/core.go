package types

import (
	"encoding/hex"
	"fmt"
)

// Identity is the public identity string of a messaging account (e.g. "ECHOECHO").
type Identity string

// String returns the string form of the identity.
func (id Identity) String() string { return string(id) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// MessageIDSize is the length of a transport message id.
const MessageIDSize = 8

// MessageID identifies a single transport message.
type MessageID [MessageIDSize]byte

// String returns the hex form of the message id.
func (id MessageID) String() string { return hex.EncodeToString(id[:]) }

// MarshalText encodes the id as hex.
func (id MessageID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText decodes the hex form.
func (id *MessageID) UnmarshalText(b []byte) error {
	raw, err := hex.DecodeString(string(b))
	if err != nil {
		return err
	}
	v, err := MessageIDFromBytes(raw)
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// MessageIDFromBytes copies b into a MessageID.
func MessageIDFromBytes(b []byte) (MessageID, error) {
	var id MessageID
	if len(b) != MessageIDSize {
		return id, fmt.Errorf("message id: want %d bytes, got %d", MessageIDSize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// FeatureMask advertises optional protocol features supported by a contact.
type FeatureMask uint64

const (
	FeatureAudio          FeatureMask = 1 << 0
	FeatureGroupCalls     FeatureMask = 1 << 1
	FeatureFile           FeatureMask = 1 << 2
	FeatureForwardSecrecy FeatureMask = 1 << 7
)

// Has reports whether all bits of f are set in m.
func (m FeatureMask) Has(f FeatureMask) bool { return m&f == f }
