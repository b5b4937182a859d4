// Package app wires application dependencies for the CLI.
//
// Config is read from TOML and validated by FixupAndValidate. NewWire builds
// everything that works without the passphrase (identity file, contacts,
// inbox, relay client). Unlock decrypts the identity and device key and
// returns an App holding the session store, the forward secrecy engine and
// the services built on it.
package app
