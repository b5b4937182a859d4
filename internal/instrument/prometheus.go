// Package instrument holds the Prometheus metrics of the engine and the relay.
//
// Counters are always updated; they are only exported once Init has
// registered them and Handler is mounted somewhere.
package instrument

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sessionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fscore_sessions_created_total",
			Help: "Number of forward secrecy sessions created",
		},
		[]string{"role"},
	)
	envelopesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fscore_envelopes_processed_total",
			Help: "Number of incoming forward secrecy envelopes",
		},
		[]string{"kind"},
	)
	messagesEncapsulated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fscore_messages_encapsulated_total",
			Help: "Number of outgoing messages sealed under a ratchet",
		},
		[]string{"dh_type"},
	)
	rejectsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fscore_rejects_sent_total",
			Help: "Number of Reject envelopes sent",
		},
		[]string{"cause"},
	)
	terminatesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fscore_terminates_sent_total",
			Help: "Number of Terminate envelopes sent",
		},
		[]string{"cause"},
	)
	messagesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fscore_messages_skipped_total",
			Help: "Number of peer ratchet steps skipped for messages that never arrived",
		},
	)
	relayMessagesQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fscore_relay_messages_queued",
			Help: "Number of messages waiting in relay mailboxes",
		},
	)
	relayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fscore_relay_requests_total",
			Help: "Number of relay HTTP requests",
		},
		[]string{"route"},
	)

	initOnce sync.Once
)

// Init registers all metrics with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(sessionsCreated)
		prometheus.MustRegister(envelopesProcessed)
		prometheus.MustRegister(messagesEncapsulated)
		prometheus.MustRegister(rejectsSent)
		prometheus.MustRegister(terminatesSent)
		prometheus.MustRegister(messagesSkipped)
		prometheus.MustRegister(relayMessagesQueued)
		prometheus.MustRegister(relayRequests)
	})
}

// Handler serves the registered metrics.
func Handler() http.Handler { return promhttp.Handler() }

// SessionCreated counts a new session; role is "initiator" or "responder".
func SessionCreated(role string) { sessionsCreated.With(prometheus.Labels{"role": role}).Inc() }

// EnvelopeProcessed counts an incoming envelope by content kind.
func EnvelopeProcessed(kind string) {
	envelopesProcessed.With(prometheus.Labels{"kind": kind}).Inc()
}

// MessageEncapsulated counts an outgoing data message.
func MessageEncapsulated(dhType string) {
	messagesEncapsulated.With(prometheus.Labels{"dh_type": dhType}).Inc()
}

// RejectSent counts a Reject by cause.
func RejectSent(cause string) { rejectsSent.With(prometheus.Labels{"cause": cause}).Inc() }

// TerminateSent counts a Terminate by cause.
func TerminateSent(cause string) { terminatesSent.With(prometheus.Labels{"cause": cause}).Inc() }

// MessagesSkipped adds n skipped ratchet steps.
func MessagesSkipped(n uint64) { messagesSkipped.Add(float64(n)) }

// RelayQueueSize sets the number of queued relay messages.
func RelayQueueSize(n int) { relayMessagesQueued.Set(float64(n)) }

// RelayRequest counts a relay request by route.
func RelayRequest(route string) { relayRequests.With(prometheus.Labels{"route": route}).Inc() }
