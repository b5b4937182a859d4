package interfaces

import (
	"context"

	domaintypes "fscore/internal/domain/types"
)

// RelayClient is how we talk to the relay server, all with context.
type RelayClient interface {
	PublishContact(ctx context.Context, c domaintypes.Contact) error
	FetchContact(ctx context.Context, id domaintypes.Identity) (domaintypes.Contact, error)

	SendMessage(ctx context.Context, msg domaintypes.Message) error
	FetchMessages(ctx context.Context, id domaintypes.Identity, limit int) ([]domaintypes.Message, error)
	AckMessages(ctx context.Context, id domaintypes.Identity, count int) error
}

// MessageSender is the engine's view of the outgoing transport.
type MessageSender interface {
	// Send queues msg behind anything already waiting.
	Send(ctx context.Context, msg domaintypes.Message) error
	// SendNow delivers msg immediately, ahead of the queue.
	SendNow(ctx context.Context, msg domaintypes.Message) error
}

// FeatureMaskRefresher re-reads a contact's advertised features.
type FeatureMaskRefresher interface {
	RefreshFeatureMask(ctx context.Context, id domaintypes.Identity) (domaintypes.FeatureMask, error)
}
