// Package directory publishes our contact entry on the relay and keeps the
// local contact store in sync with what peers advertise.
package directory
