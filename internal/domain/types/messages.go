package types

import "time"

// MessageType is the single leading type byte of a message body.
type MessageType byte

const (
	MessageTypeText                    MessageType = 0x01
	MessageTypeLocation                MessageType = 0x10
	MessageTypeFile                    MessageType = 0x17
	MessageTypeGroupText               MessageType = 0x41
	MessageTypeDeliveryReceipt         MessageType = 0x80
	MessageTypeTypingIndicator         MessageType = 0x90
	MessageTypeForwardSecurityEnvelope MessageType = 0xa0
	MessageTypeEmpty                   MessageType = 0xfc
)

var messageTypeNames = map[MessageType]string{
	MessageTypeText:                    "text",
	MessageTypeLocation:                "location",
	MessageTypeFile:                    "file",
	MessageTypeGroupText:               "group-text",
	MessageTypeDeliveryReceipt:         "delivery-receipt",
	MessageTypeTypingIndicator:         "typing-indicator",
	MessageTypeForwardSecurityEnvelope: "fs-envelope",
	MessageTypeEmpty:                   "empty",
}

func (t MessageType) String() string {
	if n, ok := messageTypeNames[t]; ok {
		return n
	}
	return "unknown"
}

// MessageFlags are transport hints copied verbatim between inner and outer messages.
type MessageFlags byte

const (
	FlagPushNotification MessageFlags = 0x01
	FlagNoServerQueuing  MessageFlags = 0x02
	FlagNoServerAck      MessageFlags = 0x04
	FlagGroup            MessageFlags = 0x10
	FlagShortLived       MessageFlags = 0x20
)

// GroupIdentity names a group by its creator and a creator-chosen id.
type GroupIdentity struct {
	CreatorIdentity Identity `json:"creator_identity"`
	GroupID         uint64   `json:"group_id"`
}

// Message is a transport message: routing metadata plus a typed body.
type Message struct {
	Type  MessageType    `json:"type"`
	From  Identity       `json:"from"`
	To    Identity       `json:"to"`
	ID    MessageID      `json:"id"`
	Date  time.Time      `json:"date"`
	Flags MessageFlags   `json:"flags"`
	Group *GroupIdentity `json:"group,omitempty"`
	Body  []byte         `json:"body"`
}

// DecryptedMessage is what the message service stores in the inbox.
type DecryptedMessage struct {
	From      Identity    `json:"from"`
	To        Identity    `json:"to"`
	ID        MessageID   `json:"id"`
	Type      MessageType `json:"type"`
	Plaintext []byte      `json:"plaintext"`
	Timestamp int64       `json:"timestamp"`
	// ForwardSecure is true if the message arrived inside an FS envelope.
	ForwardSecure bool `json:"forward_secure"`
}
