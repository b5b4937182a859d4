package forwardsecurity

import (
	"sync"

	"fscore/internal/domain"
	"fscore/internal/protocol/envelope"
)

// Event is one of the session lifecycle events below.
type Event interface {
	Peer() domain.Identity
	isEvent()
}

// SessionCreated: a session was created, by us (Initiator) or for a peer's Init.
type SessionCreated struct {
	PeerIdentity domain.Identity
	SessionID    domain.SessionID
	Initiator    bool
}

// SessionEstablished: both sides now use 4DH.
type SessionEstablished struct {
	PeerIdentity domain.Identity
	SessionID    domain.SessionID
}

// SessionRejected: the peer rejected one of our messages. Known is false if we
// had no such session any more.
type SessionRejected struct {
	PeerIdentity      domain.Identity
	SessionID         domain.SessionID
	RejectedMessageID domain.MessageID
	Cause             envelope.RejectCause
	Known             bool
}

// SessionTerminated: a session ended. Local is set when we tore it down
// ourselves; Known is false if the peer terminated a session we did not have.
type SessionTerminated struct {
	PeerIdentity domain.Identity
	SessionID    domain.SessionID
	Cause        envelope.TerminateCause
	Known        bool
	Local        bool
}

// AcceptForUnknownSession: the peer accepted a session we no longer have.
type AcceptForUnknownSession struct {
	PeerIdentity domain.Identity
	SessionID    domain.SessionID
}

// MessagesSkipped: Count messages of the peer never arrived.
type MessagesSkipped struct {
	PeerIdentity domain.Identity
	SessionID    domain.SessionID
	Count        uint64
}

// IllegalSessionState: an incoming message did not fit the session and the
// session was dropped.
type IllegalSessionState struct {
	PeerIdentity domain.Identity
	SessionID    domain.SessionID
	Reason       string
}

func (e SessionCreated) Peer() domain.Identity          { return e.PeerIdentity }
func (e SessionEstablished) Peer() domain.Identity      { return e.PeerIdentity }
func (e SessionRejected) Peer() domain.Identity         { return e.PeerIdentity }
func (e SessionTerminated) Peer() domain.Identity       { return e.PeerIdentity }
func (e AcceptForUnknownSession) Peer() domain.Identity { return e.PeerIdentity }
func (e MessagesSkipped) Peer() domain.Identity         { return e.PeerIdentity }
func (e IllegalSessionState) Peer() domain.Identity     { return e.PeerIdentity }

func (SessionCreated) isEvent()          {}
func (SessionEstablished) isEvent()      {}
func (SessionRejected) isEvent()         {}
func (SessionTerminated) isEvent()       {}
func (AcceptForUnknownSession) isEvent() {}
func (MessagesSkipped) isEvent()         {}
func (IllegalSessionState) isEvent()     {}

// eventHub fans events out to subscribers.
type eventHub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func (h *eventHub) subscribe(fn func(Event)) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func(Event))
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *eventHub) emit(ev Event) {
	h.mu.RLock()
	fns := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}
