// Package domain re-exports the plain types (identities, messages, session
// records) and the contracts (stores, relay, sender) shared across the app.
// It holds no behaviour of its own.
package domain
