package instrument

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(rejectsSent.WithLabelValues("STATE_MISMATCH"))
	RejectSent("STATE_MISMATCH")
	assert.Equal(t, before+1, testutil.ToFloat64(rejectsSent.WithLabelValues("STATE_MISMATCH")))

	before = testutil.ToFloat64(messagesSkipped)
	MessagesSkipped(3)
	assert.Equal(t, before+3, testutil.ToFloat64(messagesSkipped))

	RelayQueueSize(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(relayMessagesQueued))
}
