package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const wrapFormatVersion = 1

// ErrUnwrapFailed means wrapped key material is corrupt or was sealed under another device key.
var ErrUnwrapFailed = errors.New("crypto: unwrap failed")

// DeviceKeyWrapper seals key material at rest under a device-local key.
//
// Output layout: version(1) || nonce(24) || XChaCha20-Poly1305 ciphertext.
type DeviceKeyWrapper struct {
	key [chacha20poly1305.KeySize]byte
}

// NewDeviceKeyWrapper returns a wrapper bound to deviceKey.
func NewDeviceKeyWrapper(deviceKey []byte) (*DeviceKeyWrapper, error) {
	if len(deviceKey) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("device key: want %d bytes, got %d", chacha20poly1305.KeySize, len(deviceKey))
	}
	w := &DeviceKeyWrapper{}
	copy(w.key[:], deviceKey)
	return w, nil
}

// Wrap encrypts secret under the device key with a random nonce.
func (w *DeviceKeyWrapper) Wrap(secret []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(w.key[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(secret)+aead.Overhead())
	out[0] = wrapFormatVersion
	nonce := out[1:]
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(out, nonce, secret, out[:1]), nil
}

// Unwrap reverses Wrap. Any failure is reported as ErrUnwrapFailed.
func (w *DeviceKeyWrapper) Unwrap(wrapped []byte) ([]byte, error) {
	if len(wrapped) < 1+chacha20poly1305.NonceSizeX || wrapped[0] != wrapFormatVersion {
		return nil, ErrUnwrapFailed
	}
	aead, err := chacha20poly1305.NewX(w.key[:])
	if err != nil {
		return nil, err
	}
	nonce := wrapped[1 : 1+chacha20poly1305.NonceSizeX]
	pt, err := aead.Open(nil, nonce, wrapped[1+chacha20poly1305.NonceSizeX:], wrapped[:1])
	if err != nil {
		return nil, ErrUnwrapFailed
	}
	return pt, nil
}

// Close wipes the device key.
func (w *DeviceKeyWrapper) Close() {
	Wipe(w.key[:])
}
