package types

import "fmt"

// KeySize is the length of X25519 keys and of all symmetric keys in the protocol.
const KeySize = 32

// X25519Public is a Curve25519 public key.
type X25519Public [KeySize]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [KeySize]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// X25519PublicFromBytes validates the length of b and copies it into a key.
func X25519PublicFromBytes(b []byte) (X25519Public, error) {
	var out X25519Public
	if len(b) != KeySize {
		return out, fmt.Errorf("X25519 public: want %d bytes, got %d", KeySize, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// X25519PrivateFromBytes validates the length of b and copies it into a key.
func X25519PrivateFromBytes(b []byte) (X25519Private, error) {
	var out X25519Private
	if len(b) != KeySize {
		return out, fmt.Errorf("X25519 private: want %d bytes, got %d", KeySize, len(b))
	}
	copy(out[:], b)
	return out, nil
}
