package domain

import (
	interfaces "fscore/internal/domain/interfaces"
	types "fscore/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Identity         = types.Identity
	Fingerprint      = types.Fingerprint
	IdentityKeys     = types.IdentityKeys
	Contact          = types.Contact
	FeatureMask      = types.FeatureMask
	Message          = types.Message
	MessageID        = types.MessageID
	MessageType      = types.MessageType
	MessageFlags     = types.MessageFlags
	GroupIdentity    = types.GroupIdentity
	DecryptedMessage = types.DecryptedMessage
	SessionID        = types.SessionID
	SessionInfo      = types.SessionInfo
	Version          = types.Version
	VersionRange     = types.VersionRange
	DHType           = types.DHType
	X25519Public     = types.X25519Public
	X25519Private    = types.X25519Private
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	LocalIdentity        = interfaces.LocalIdentity
	IdentityService      = interfaces.IdentityService
	DirectoryService     = interfaces.DirectoryService
	MessageService       = interfaces.MessageService
	SessionService       = interfaces.SessionService
	RelayClient          = interfaces.RelayClient
	MessageSender        = interfaces.MessageSender
	FeatureMaskRefresher = interfaces.FeatureMaskRefresher
	IdentityStore        = interfaces.IdentityStore
	DeviceKeyStore       = interfaces.DeviceKeyStore
	KeyWrapper           = interfaces.KeyWrapper
	ContactStore         = interfaces.ContactStore
	InboxStore           = interfaces.InboxStore
	SessionStore         = interfaces.SessionStore
)

// Constants re-exported for callers that only import domain.
const (
	MessageTypeText                    = types.MessageTypeText
	MessageTypeLocation                = types.MessageTypeLocation
	MessageTypeFile                    = types.MessageTypeFile
	MessageTypeGroupText               = types.MessageTypeGroupText
	MessageTypeDeliveryReceipt         = types.MessageTypeDeliveryReceipt
	MessageTypeTypingIndicator         = types.MessageTypeTypingIndicator
	MessageTypeForwardSecurityEnvelope = types.MessageTypeForwardSecurityEnvelope
	MessageTypeEmpty                   = types.MessageTypeEmpty

	FeatureForwardSecrecy = types.FeatureForwardSecrecy

	FlagPushNotification = types.FlagPushNotification

	DHTypeTwoDH  = types.DHTypeTwoDH
	DHTypeFourDH = types.DHTypeFourDH

	VersionUnspecified = types.VersionUnspecified
	Version1_0         = types.Version1_0
	Version1_1         = types.Version1_1
	Version1_2         = types.Version1_2
)
