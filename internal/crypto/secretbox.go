package crypto

import (
	"errors"

	"golang.org/x/crypto/nacl/secretbox"
)

// SecretboxOverhead is the authenticator length added by SealSingleUse.
const SecretboxOverhead = secretbox.Overhead

// ErrDecryptionFailed is returned when a ciphertext does not authenticate.
var ErrDecryptionFailed = errors.New("crypto: decryption failed")

// zeroNonce is only safe because every ratchet key seals exactly one message.
var zeroNonce [24]byte

// SealSingleUse encrypts plaintext with XSalsa20-Poly1305 under key and an all-zero nonce.
// key must never be used for a second message.
func SealSingleUse(key [32]byte, plaintext []byte) []byte {
	return secretbox.Seal(nil, plaintext, &zeroNonce, &key)
}

// OpenSingleUse reverses SealSingleUse.
func OpenSingleUse(key [32]byte, ciphertext []byte) ([]byte, error) {
	out, ok := secretbox.Open(nil, ciphertext, &zeroNonce, &key)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return out, nil
}
