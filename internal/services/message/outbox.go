package message

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"fscore/internal/domain"
)

// Outbox implements domain.MessageSender on top of the relay.
type Outbox struct {
	relay domain.RelayClient

	mu    sync.Mutex
	queue []domain.Message
}

// NewOutbox returns an empty outbox delivering through relay.
func NewOutbox(relay domain.RelayClient) *Outbox { return &Outbox{relay: relay} }

// Send queues m until the next Flush.
func (o *Outbox) Send(_ context.Context, m domain.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, m)
	return nil
}

// SendNow bypasses the queue.
func (o *Outbox) SendNow(ctx context.Context, m domain.Message) error {
	return o.relay.SendMessage(ctx, m)
}

// Flush delivers queued messages in order. Messages that could not be sent
// stay queued.
func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.queue) > 0 {
		if err := o.relay.SendMessage(ctx, o.queue[0]); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Flush",
				"pending":  len(o.queue),
				"error":    err.Error(),
			}).Warn("Failed to flush outbox")
			return fmt.Errorf("flush outbox: %w", err)
		}
		o.queue = o.queue[1:]
	}
	return nil
}

// Len is the number of queued messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

var _ domain.MessageSender = (*Outbox)(nil)
