// Package crypto exposes the primitives used by the forward secrecy engine.
//
// Contents
//
//   - X25519 key generation and Diffie–Hellman (GenerateX25519, DH)
//   - BLAKE2b keyed derivation with domain-separating salts (KDF, Hash512)
//   - XSalsa20-Poly1305 sealing under single-use keys (SealSingleUse, OpenSingleUse)
//   - At-rest wrapping of secret key material under a device key (DeviceKeyWrapper)
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// All functions return fixed-size array types defined in internal/domain to
// avoid accidental reallocations. Callers should treat returned secrets as
// sensitive and rely on Wipe when practical to reduce lifetime in memory.
package crypto
