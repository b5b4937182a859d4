package types

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// SessionIDSize is the length of a forward secrecy session id.
const SessionIDSize = 16

// SessionID identifies one DH session between two identities.
type SessionID [SessionIDSize]byte

// NewSessionID returns a fresh random session id.
func NewSessionID() (SessionID, error) {
	var id SessionID
	if _, err := rand.Read(id[:]); err != nil {
		return id, err
	}
	return id, nil
}

// SessionIDFromBytes validates the length of b and copies it into a SessionID.
func SessionIDFromBytes(b []byte) (SessionID, error) {
	var id SessionID
	if len(b) != SessionIDSize {
		return id, fmt.Errorf("session id: want %d bytes, got %d", SessionIDSize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// ParseSessionID decodes the hex form produced by String.
func ParseSessionID(s string) (SessionID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return SessionID{}, err
	}
	return SessionIDFromBytes(b)
}

// Compare orders session ids byte-wise.
func (id SessionID) Compare(other SessionID) int { return bytes.Compare(id[:], other[:]) }

// Less reports whether id sorts before other.
func (id SessionID) Less(other SessionID) bool { return id.Compare(other) < 0 }

func (id SessionID) String() string { return hex.EncodeToString(id[:]) }

// MarshalText encodes the id as hex.
func (id SessionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText decodes the hex form.
func (id *SessionID) UnmarshalText(b []byte) error {
	v, err := ParseSessionID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// Version is a forward secrecy protocol version, major in the high byte.
type Version uint32

const (
	VersionUnspecified Version = 0
	Version1_0         Version = 0x0100
	Version1_1         Version = 0x0101
	Version1_2         Version = 0x0102
)

func (v Version) String() string {
	if v == VersionUnspecified {
		return "unspecified"
	}
	return fmt.Sprintf("%d.%d", v>>8, v&0xff)
}

// Known reports whether v is a version this implementation understands.
func (v Version) Known() bool {
	switch v {
	case Version1_0, Version1_1, Version1_2:
		return true
	}
	return false
}

// VersionRange is an inclusive range of supported versions.
type VersionRange struct {
	Min Version
	Max Version
}

func (r VersionRange) String() string { return fmt.Sprintf("[%s, %s]", r.Min, r.Max) }

// Contains reports whether v lies within r.
func (r VersionRange) Contains(v Version) bool { return v >= r.Min && v <= r.Max }

// Valid reports whether the range is non-empty and starts at a specified version.
func (r VersionRange) Valid() bool { return r.Min != VersionUnspecified && r.Min <= r.Max }

// DHType tells which ratchet a data message was encrypted with.
type DHType int

const (
	DHTypeTwoDH  DHType = 1
	DHTypeFourDH DHType = 2
)

func (t DHType) String() string {
	switch t {
	case DHTypeTwoDH:
		return "2DH"
	case DHTypeFourDH:
		return "4DH"
	}
	return "unknown"
}

// SessionInfo is a secret-free view of a stored session.
type SessionInfo struct {
	ID                  SessionID `json:"id"`
	Peer                Identity  `json:"peer"`
	State               string    `json:"state"`
	Best                bool      `json:"best"`
	MyDHType            DHType    `json:"my_dh_type"`
	MyCounter           uint64    `json:"my_counter"`
	PeerCounter2DH      uint64    `json:"peer_counter_2dh,omitempty"`
	PeerCounter4DH      uint64    `json:"peer_counter_4dh,omitempty"`
	OutgoingOffered     Version   `json:"outgoing_offered"`
	OutgoingApplied     Version   `json:"outgoing_applied"`
	IncomingAppliedMin  Version   `json:"incoming_applied_min"`
	NewSessionCommitted bool      `json:"new_session_committed"`
	LastOutgoingMessage time.Time `json:"last_outgoing_message,omitempty"`
}
