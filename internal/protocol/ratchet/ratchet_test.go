package ratchet_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fscore/internal/protocol/ratchet"
)

// randomChainKey returns a fresh random 32-byte chain key.
func randomChainKey(t *testing.T) [32]byte {
	t.Helper()
	var k [32]byte
	_, err := rand.Read(k[:])
	require.NoError(t, err)
	return k
}

func TestTurn_IsOneWayAndCounts(t *testing.T) {
	for i := 0; i < 32; i++ {
		k := randomChainKey(t)
		r := ratchet.New(1, k)

		ek := r.EncryptionKey()
		assert.NotEqual(t, k, ek, "encryption key must differ from chain key")

		r.Turn()
		assert.Equal(t, uint64(2), r.Counter())
		assert.NotEqual(t, k, r.ChainKey())
		assert.NotEqual(t, ek, r.EncryptionKey())
	}
}

func TestTurnUntil_Bounds(t *testing.T) {
	r := ratchet.New(5, randomChainKey(t))

	n, err := r.TurnUntil(5)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = r.TurnUntil(5)
	require.NoError(t, err)
	assert.Zero(t, n, "turning to the current counter is idempotent")

	_, err = r.TurnUntil(4)
	assert.ErrorIs(t, err, ratchet.ErrCannotGoBackwards)

	_, err = r.TurnUntil(5 + ratchet.MaxCounterIncrement + 1)
	assert.ErrorIs(t, err, ratchet.ErrTooFarAhead)
	assert.Equal(t, uint64(5), r.Counter(), "failed turns must not move the ratchet")

	n, err = r.TurnUntil(5 + ratchet.MaxCounterIncrement)
	require.NoError(t, err)
	assert.Equal(t, uint64(ratchet.MaxCounterIncrement), n)
}

func TestTurnUntil_MatchesRepeatedTurn(t *testing.T) {
	k := randomChainKey(t)
	a := ratchet.New(1, k)
	b := ratchet.New(1, k)

	for i := 0; i < 7; i++ {
		a.Turn()
	}
	n, err := b.TurnUntil(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)
	assert.Equal(t, a.ChainKey(), b.ChainKey())
	assert.Equal(t, a.EncryptionKey(), b.EncryptionKey())
}

func TestEncryptionKey_Separation(t *testing.T) {
	k := randomChainKey(t)
	r := ratchet.New(1, k)
	before := r.EncryptionKey()

	// Mutating the chain key externally yields an unrelated encryption key.
	mutated := k
	mutated[0] ^= 0x01
	other := ratchet.New(1, mutated)
	assert.NotEqual(t, before, other.EncryptionKey())

	// Knowing a message key does not give the chain key.
	assert.False(t, bytes.Equal(before[:], k[:]))
	r.Turn()
	assert.NotEqual(t, before, r.EncryptionKey())
	assert.NotEqual(t, before, r.ChainKey())
}

func TestClone_IsIndependent(t *testing.T) {
	r := ratchet.New(3, randomChainKey(t))
	c := r.Clone()
	c.Turn()
	assert.Equal(t, uint64(3), r.Counter())
	assert.Equal(t, uint64(4), c.Counter())

	var nilRatchet *ratchet.KDFRatchet
	assert.Nil(t, nilRatchet.Clone())
}
