// Package message sends and receives messages through the forward secrecy
// engine and the relay.
//
// The Outbox is the engine's transport: control envelopes the engine queues
// (Reject, Terminate) are flushed ahead of the next outgoing message, while an
// Accept goes straight to the relay.
package message
