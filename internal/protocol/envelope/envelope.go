package envelope

import (
	domaintypes "fscore/internal/domain/types"
)

// Envelope is one forward secrecy protocol message.
type Envelope struct {
	SessionID domaintypes.SessionID
	Content   Content
}

// Content is Init, Accept, Reject, DataMessage or Terminate.
type Content interface {
	Kind() Kind
	isContent()
}

// Kind names a content variant; values are the envelope field numbers.
type Kind int

const (
	KindInit         Kind = 2
	KindAccept       Kind = 3
	KindReject       Kind = 4
	KindEncapsulated Kind = 5
	KindTerminate    Kind = 6
)

func (k Kind) String() string {
	switch k {
	case KindInit:
		return "init"
	case KindAccept:
		return "accept"
	case KindReject:
		return "reject"
	case KindEncapsulated:
		return "encapsulated"
	case KindTerminate:
		return "terminate"
	}
	return "unknown"
}

// Init opens a session. Fields: supported_version=1, fssk=2.
type Init struct {
	SupportedVersion   domaintypes.VersionRange
	EphemeralPublicKey domaintypes.X25519Public
}

// Accept answers an Init. Fields: supported_version=1, fssk=2.
type Accept struct {
	SupportedVersion   domaintypes.VersionRange
	EphemeralPublicKey domaintypes.X25519Public
}

// Reject tells the sender that one of its data messages could not be
// processed. Fields: rejected_message_id=1, cause=2, group_identity=3.
type Reject struct {
	RejectedMessageID domaintypes.MessageID
	Cause             RejectCause
	GroupIdentity     *domaintypes.GroupIdentity
}

// DataMessage carries one encrypted message. Fields: dh_type=1, counter=2,
// message=3, offered_version=4, applied_version=5, group_identity=6.
type DataMessage struct {
	DHType         domaintypes.DHType
	Counter        uint64
	OfferedVersion domaintypes.Version
	AppliedVersion domaintypes.Version
	GroupIdentity  *domaintypes.GroupIdentity
	Ciphertext     []byte
}

// Terminate tears a session down. Fields: cause=1.
type Terminate struct {
	Cause TerminateCause
}

func (*Init) Kind() Kind        { return KindInit }
func (*Accept) Kind() Kind      { return KindAccept }
func (*Reject) Kind() Kind      { return KindReject }
func (*DataMessage) Kind() Kind { return KindEncapsulated }
func (*Terminate) Kind() Kind   { return KindTerminate }

func (*Init) isContent()        {}
func (*Accept) isContent()      {}
func (*Reject) isContent()      {}
func (*DataMessage) isContent() {}
func (*Terminate) isContent()   {}

// RejectCause explains a Reject.
type RejectCause int32

const (
	RejectUnknownSession  RejectCause = 0
	RejectStateMismatch   RejectCause = 1
	RejectDisabledByLocal RejectCause = 2
)

func (c RejectCause) String() string {
	switch c {
	case RejectUnknownSession:
		return "UNKNOWN_SESSION"
	case RejectStateMismatch:
		return "STATE_MISMATCH"
	case RejectDisabledByLocal:
		return "DISABLED_BY_LOCAL"
	}
	return "UNRECOGNIZED"
}

// TerminateCause explains a Terminate.
type TerminateCause int32

const (
	TerminateUnknownSession   TerminateCause = 0
	TerminateReset            TerminateCause = 1
	TerminateDisabledByLocal  TerminateCause = 2
	TerminateDisabledByRemote TerminateCause = 3
)

func (c TerminateCause) String() string {
	switch c {
	case TerminateUnknownSession:
		return "UNKNOWN_SESSION"
	case TerminateReset:
		return "RESET"
	case TerminateDisabledByLocal:
		return "DISABLED_BY_LOCAL"
	case TerminateDisabledByRemote:
		return "DISABLED_BY_REMOTE"
	}
	return "UNRECOGNIZED"
}
