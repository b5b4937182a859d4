package store

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// passphraseBlobVersion is the on-disk format of passphrase-sealed files.
const passphraseBlobVersion = 2

// ErrWrongPassphrase means the passphrase is incorrect or the file was modified.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted file")

// scryptParams are the key derivation cost parameters stored next to the ciphertext.
type scryptParams struct {
	N int `json:"scrypt_N"`
	R int `json:"scrypt_r"`
	P int `json:"scrypt_p"`
}

func defaultScryptParams() scryptParams { return scryptParams{N: 1 << 15, R: 8, P: 1} }

// passphraseBlob is the JSON structure of a passphrase-sealed file.
type passphraseBlob struct {
	V       int    `json:"v"`
	Purpose string `json:"purpose"`
	Salt    []byte `json:"salt"`
	scryptParams
	Cipher []byte `json:"cipher"`
}

// sealWithPassphrase encrypts raw under a scrypt key. purpose is bound as
// associated data so an identity file cannot be swapped in for a device key.
func sealWithPassphrase(passphrase, purpose string, raw []byte, params scryptParams) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	aead, err := passphraseAEAD(passphrase, salt[:], params)
	if err != nil {
		return nil, err
	}
	// Zero nonce: the key is unique per salt and seals once.
	var nonce [chacha20poly1305.NonceSize]byte
	ct := aead.Seal(nil, nonce[:], raw, blobAD(purpose, salt[:]))

	return json.Marshal(passphraseBlob{
		V:            passphraseBlobVersion,
		Purpose:      purpose,
		Salt:         salt[:],
		scryptParams: params,
		Cipher:       ct,
	})
}

// openWithPassphrase reverses sealWithPassphrase.
func openWithPassphrase(passphrase, purpose string, b []byte) ([]byte, error) {
	var bl passphraseBlob
	if err := json.Unmarshal(b, &bl); err != nil {
		return nil, err
	}
	if bl.V != passphraseBlobVersion {
		return nil, fmt.Errorf("unsupported file version %d", bl.V)
	}
	if bl.Purpose != purpose {
		return nil, fmt.Errorf("file holds %q, want %q", bl.Purpose, purpose)
	}
	aead, err := passphraseAEAD(passphrase, bl.Salt, bl.scryptParams)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], bl.Cipher, blobAD(purpose, bl.Salt))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

func passphraseAEAD(passphrase string, salt []byte, p scryptParams) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, p.N, p.R, p.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return chacha20poly1305.New(key)
}

func blobAD(purpose string, salt []byte) []byte {
	return append([]byte(purpose+"|"), salt...)
}
