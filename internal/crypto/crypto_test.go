package crypto_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fscore/internal/crypto"
)

func TestDH_Symmetric(t *testing.T) {
	aPriv, aPub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	bPriv, bPub, err := crypto.GenerateX25519()
	require.NoError(t, err)

	ab, err := crypto.DH(aPriv, bPub)
	require.NoError(t, err)
	ba, err := crypto.DH(bPriv, aPub)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
}

func TestDH_RejectsLowOrderPoint(t *testing.T) {
	priv, _, err := crypto.GenerateX25519()
	require.NoError(t, err)

	var zero [32]byte
	_, err = crypto.DH(priv, zero)
	assert.Error(t, err)
}

func TestKDF_SaltSeparatesOutputs(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)

	ck := crypto.KDF("kdf-ck", key)
	aek := crypto.KDF("kdf-aek", key)
	assert.NotEqual(t, ck, aek)
	assert.Equal(t, ck, crypto.KDF("kdf-ck", key), "derivation must be deterministic")
	assert.NotEqual(t, key, ck[:])
}

func TestKDF_AcceptsSixtyFourByteKey(t *testing.T) {
	key := bytes.Repeat([]byte{0x22}, 64)
	assert.NotPanics(t, func() { crypto.KDF("ke-2dh-ECHOECHO", key) })
}

func TestSealSingleUse_RoundTrip(t *testing.T) {
	var key [32]byte
	key[0] = 7

	ct := crypto.SealSingleUse(key, []byte("hello"))
	assert.Len(t, ct, len("hello")+crypto.SecretboxOverhead)

	pt, err := crypto.OpenSingleUse(key, ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pt)

	key[0] = 8
	_, err = crypto.OpenSingleUse(key, ct)
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

func TestDeviceKeyWrapper(t *testing.T) {
	w, err := crypto.NewDeviceKeyWrapper(bytes.Repeat([]byte{0x33}, 32))
	require.NoError(t, err)

	secret := []byte("chain key material")
	a, err := w.Wrap(secret)
	require.NoError(t, err)
	b, err := w.Wrap(secret)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "random nonces must differ")

	got, err := w.Unwrap(a)
	require.NoError(t, err)
	assert.Equal(t, secret, got)

	a[len(a)-1] ^= 0xff
	_, err = w.Unwrap(a)
	assert.ErrorIs(t, err, crypto.ErrUnwrapFailed)

	other, err := crypto.NewDeviceKeyWrapper(bytes.Repeat([]byte{0x44}, 32))
	require.NoError(t, err)
	_, err = other.Unwrap(b)
	assert.ErrorIs(t, err, crypto.ErrUnwrapFailed)

	_, err = crypto.NewDeviceKeyWrapper([]byte("short"))
	assert.Error(t, err)
}

func TestFingerprint_Stable(t *testing.T) {
	_, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	fp := crypto.Fingerprint(pub)
	assert.Len(t, fp.String(), 20)
	assert.Equal(t, fp, crypto.Fingerprint(pub))
}
