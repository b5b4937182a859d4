// Package session lets users inspect and reset forward secrecy sessions.
package session
