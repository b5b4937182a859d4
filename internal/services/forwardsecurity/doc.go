// Package forwardsecurity is the forward secrecy protocol engine.
//
// It sits between the message service and the transport. Outgoing messages go
// through MakeMessage, which picks or creates the session with the receiver,
// emits an Init while the session is new, and seals the message under the
// next key of our ratchet. Incoming envelopes go through
// ProcessEnvelopeMessage, which drives the session state machine:
//
//	no session --Init sent--> L20 --Accept received--> RL44
//	no session --Init received, Accept sent--> R24 --first 4DH message--> RL44
//	any state --Reject/Terminate/protocol violation--> deleted
//
// # Ordering
//
// Our ratchet is advanced and persisted before the ciphertext leaves
// MakeMessage, so a retried send never reuses a key. The peer ratchet is only
// persisted by Result.Commit, which the caller invokes after the decrypted
// message has been stored durably.
//
// # Concurrency
//
// Send and receive paths each load their own copy of a session and persist
// through the store's narrow, forward-only updates, so they never wait on each
// other. Outgoing messages are serialized among themselves.
// Event callbacks run synchronously on the goroutine that raised the event.
package forwardsecurity
