// Package main runs the in-memory HTTP relay used by fscore during development
// and tests. It publishes contact entries and queues messages for recipients
// until they fetch them. Forward secrecy envelopes travel as opaque bodies.
//
// HTTP API
//
//	POST /directory
//	    Publish a contact entry (identity, X25519 public key, feature mask).
//
//	GET /directory/{id}
//	    Return the contact entry for {id}, or 404.
//
//	POST /msg/{id}
//	    Enqueue a message destined to {id}. If its date is zero, the server
//	    fills in the current time.
//
//	GET /msg/{id}?limit=N
//	    Return up to N queued messages for {id}. Without a limit, or with one
//	    greater than the queue length, all queued messages are returned.
//
//	POST /msg/{id}/ack { "count": N }
//	    Drop the first N queued messages for {id}. If N exceeds the queue
//	    length, the queue is cleared.
//
//	GET /metrics
//	    Prometheus metrics (disable with --metrics=false).
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Responses are JSON. Non-2xx statuses carry a short error message.
//   - An access log records method, path, remote, status, bytes and duration
//     for each request.
//   - The default listen address is :8080.
//
// The relay never sees plaintext or private keys; it only stores message
// bodies and public contact entries.
package main
