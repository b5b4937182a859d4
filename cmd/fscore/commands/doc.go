// Package commands defines the fscore CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init          Create the local identity and device key
//   - fingerprint   Print the identity fingerprint
//   - register      Publish your contact entry to a relay
//   - add-contact   Fetch a peer's contact entry from the relay
//   - send          Send a message, forward secure when both sides support it
//   - recv          Fetch and decrypt queued messages
//   - sessions      List forward secrecy sessions with a peer
//   - reset         Terminate all sessions with a peer
//   - migrate       Move the SQLite session schema to a given version
//
// # Implementation
//
// The root command loads the TOML config (if any), applies flag overrides and
// builds the passphrase-free part of the dependency graph before any
// subcommand runs. Subcommands that touch keys unlock the rest with -p.
package commands
