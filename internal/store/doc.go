// Package store provides persistence for fscore.
//
// Forward secrecy sessions live in SessionStore, backed either by SQLite
// (OpenSQLiteSessionStore, schema evolved by numbered reversible migrations)
// or by bbolt (OpenBoltSessionStore, CBOR records). Chain keys and ephemeral
// private keys are wrapped with the device key before they are written; a row
// whose secrets no longer unwrap is deleted on load.
//
// Small local state is kept in files under the configured home directory:
//   - Identity keys, sealed under the passphrase (IdentityFileStore)
//   - The device key, sealed under the passphrase (DeviceKeyFileStore)
//   - Contacts as JSON (ContactFileStore)
//   - Received messages as CBOR (InboxFileStore)
//
// All methods are safe for concurrent use.
package store
