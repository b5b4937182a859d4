package message_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fscore/internal/domain"
	"fscore/internal/services/message"
)

// flakyRelay records sent messages and fails while down is set.
type flakyRelay struct {
	domain.RelayClient
	sent []domain.Message
	down bool
}

func (r *flakyRelay) SendMessage(_ context.Context, m domain.Message) error {
	if r.down {
		return errors.New("relay unavailable")
	}
	r.sent = append(r.sent, m)
	return nil
}

func TestOutbox_FlushKeepsOrderAndRetries(t *testing.T) {
	r := &flakyRelay{}
	o := message.NewOutbox(r)
	ctx := context.Background()

	require.NoError(t, o.Send(ctx, domain.Message{ID: domain.MessageID{1}}))
	require.NoError(t, o.Send(ctx, domain.Message{ID: domain.MessageID{2}}))
	assert.Equal(t, 2, o.Len())
	assert.Empty(t, r.sent, "Send only queues")

	require.NoError(t, o.SendNow(ctx, domain.Message{ID: domain.MessageID{9}}))
	require.Len(t, r.sent, 1)

	r.down = true
	require.Error(t, o.Flush(ctx))
	assert.Equal(t, 2, o.Len())

	r.down = false
	require.NoError(t, o.Flush(ctx))
	assert.Zero(t, o.Len())
	require.Len(t, r.sent, 3)
	assert.Equal(t, domain.MessageID{1}, r.sent[1].ID)
	assert.Equal(t, domain.MessageID{2}, r.sent[2].ID)
}
