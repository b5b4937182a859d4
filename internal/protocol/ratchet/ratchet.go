package ratchet

import (
	"errors"

	"fscore/internal/crypto"
)

const (
	// MaxCounterIncrement bounds how far a single TurnUntil may advance.
	MaxCounterIncrement = 10000

	chainKeySalt      = "kdf-ck"
	encryptionKeySalt = "kdf-aek"
)

var (
	ErrCannotGoBackwards = errors.New("ratchet: cannot turn backwards")
	ErrTooFarAhead       = errors.New("ratchet: target counter too far ahead")
)

// KDFRatchet is a one-way chain of message keys.
type KDFRatchet struct {
	counter  uint64
	chainKey [32]byte
}

// New returns a ratchet at counter holding chainKey.
func New(counter uint64, chainKey [32]byte) *KDFRatchet {
	return &KDFRatchet{counter: counter, chainKey: chainKey}
}

// Counter is the number of the message whose key EncryptionKey currently yields.
func (r *KDFRatchet) Counter() uint64 { return r.counter }

// ChainKey returns a copy of the current chain key for persistence.
func (r *KDFRatchet) ChainKey() [32]byte { return r.chainKey }

// Turn advances the chain by exactly one step.
func (r *KDFRatchet) Turn() {
	next := crypto.KDF(chainKeySalt, r.chainKey[:])
	crypto.WipeKey(&r.chainKey)
	r.chainKey = next
	r.counter++
}

// TurnUntil advances the chain to target and returns the number of turns taken.
func (r *KDFRatchet) TurnUntil(target uint64) (uint64, error) {
	if target == r.counter {
		return 0, nil
	}
	if target < r.counter {
		return 0, ErrCannotGoBackwards
	}
	if target-r.counter > MaxCounterIncrement {
		return 0, ErrTooFarAhead
	}
	var n uint64
	for r.counter < target {
		r.Turn()
		n++
	}
	return n, nil
}

// EncryptionKey derives the single-use key for the message at Counter.
func (r *KDFRatchet) EncryptionKey() [32]byte {
	return crypto.KDF(encryptionKeySalt, r.chainKey[:])
}

// Clone returns an independent copy.
func (r *KDFRatchet) Clone() *KDFRatchet {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Wipe erases the chain key. The ratchet must not be used afterwards.
func (r *KDFRatchet) Wipe() {
	if r == nil {
		return
	}
	crypto.WipeKey(&r.chainKey)
}
