// Package relay provides the store-and-forward relay used by fscore: an HTTP
// implementation of the domain.RelayClient interface and the in-memory
// Server behind cmd/relay.
//
// The relay keeps a directory of published contacts (identity, public key,
// feature mask) and one mailbox per identity. It never sees plaintext or
// private keys; forward secrecy envelopes pass through as opaque bodies.
//
// Supported operations include:
//   - Publishing our contact entry.
//   - Fetching a peer's contact entry.
//   - Sending a message to a peer's mailbox.
//   - Fetching pending messages for an identity.
//   - Acknowledging received messages.
//
// All requests are JSON over HTTP and accept a context for cancellation and
// deadlines. Non-2xx statuses are returned as errors with the HTTP method,
// path, and status text to aid diagnostics.
package relay
