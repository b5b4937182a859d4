package crypto

import (
	"golang.org/x/crypto/blake2b"
)

// kdfPersonal separates every derivation of this protocol from other BLAKE2b uses.
const kdfPersonal = "3ma-e2e"

// KDF derives a 32-byte key from key under the given salt using keyed BLAKE2b-256.
//
// key must be at most 64 bytes long.
func KDF(salt string, key []byte) [32]byte {
	h, err := blake2b.New256(key)
	if err != nil {
		// Only reachable with a key longer than blake2b.Size.
		panic("crypto: kdf key too long")
	}
	h.Write([]byte(kdfPersonal))
	h.Write([]byte(salt))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Hash512 returns the unkeyed BLAKE2b-512 digest of data.
func Hash512(data []byte) [64]byte {
	return blake2b.Sum512(data)
}
