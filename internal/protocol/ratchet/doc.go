// Package ratchet implements the symmetric KDF chain used by forward secrecy sessions.
//
// A chain starts from a 32-byte root key with counter 1. Each Turn replaces the
// chain key with KDF("kdf-ck", chainKey) and increments the counter; the key for
// the message at the current counter is KDF("kdf-aek", chainKey). Because the
// salts differ, a leaked message key reveals neither the chain key nor any other
// message key, and earlier chain keys cannot be recomputed from later ones.
//
// Concurrency: KDFRatchet is NOT safe for concurrent use. Sessions hand out
// copies (Clone) to the send and receive paths, and the session store decides
// which copy wins by comparing counters.
package ratchet
