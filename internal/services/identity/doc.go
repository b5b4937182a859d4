// Package identity manages creation, encryption and loading of the local identity.
//
// It enforces passphrase and identity naming policy, generates the X25519
// identity key pair, persists it via the domain.IdentityStore and unlocks it
// into a Local that performs static-static key agreement for the engine.
package identity
