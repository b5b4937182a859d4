package dhsession

import (
	"errors"
	"fmt"

	domaintypes "fscore/internal/domain/types"
)

var (
	ErrInvalidVersionRange = errors.New("dhsession: invalid version range")
	ErrNoCommonVersion     = errors.New("dhsession: no common version")
	ErrVersionDowngrade    = errors.New("dhsession: applied version below negotiated minimum")
	ErrVersionNotOffered   = errors.New("dhsession: applied version was never offered")
	ErrVersionInconsistent = errors.New("dhsession: offered version below applied version")
)

// SupportedVersions is the range this implementation speaks.
var SupportedVersions = domaintypes.VersionRange{Min: domaintypes.Version1_0, Max: domaintypes.Version1_2}

// Versions tracks what we announce, what we encrypt with and what we accept.
type Versions struct {
	OutgoingOffered    domaintypes.Version
	OutgoingApplied    domaintypes.Version
	IncomingAppliedMin domaintypes.Version
}

func (v Versions) String() string {
	return fmt.Sprintf("offered=%s applied=%s min-incoming=%s",
		v.OutgoingOffered, v.OutgoingApplied, v.IncomingAppliedMin)
}

// initiatorVersions holds until the Accept reveals the responder's range;
// 2DH traffic is always at 1.0.
func initiatorVersions(local domaintypes.VersionRange) Versions {
	return Versions{
		OutgoingOffered:    local.Max,
		OutgoingApplied:    domaintypes.Version1_0,
		IncomingAppliedMin: domaintypes.Version1_0,
	}
}

func negotiatedVersions(local domaintypes.VersionRange, negotiated domaintypes.Version) Versions {
	return Versions{
		OutgoingOffered:    local.Max,
		OutgoingApplied:    negotiated,
		IncomingAppliedMin: negotiated,
	}
}

// Negotiate returns the highest version in both ranges.
func Negotiate(local, peer domaintypes.VersionRange) (domaintypes.Version, error) {
	if !peer.Valid() {
		return domaintypes.VersionUnspecified, ErrInvalidVersionRange
	}
	lo := max(local.Min, peer.Min)
	hi := min(local.Max, peer.Max)
	if lo > hi {
		return domaintypes.VersionUnspecified, fmt.Errorf("%w: local %s, peer %s", ErrNoCommonVersion, local, peer)
	}
	return hi, nil
}

// ProcessIncoming validates the versions carried by an incoming data message
// and returns the versions to keep once the message is committed.
func (v Versions) ProcessIncoming(dh domaintypes.DHType, offered, applied domaintypes.Version) (Versions, error) {
	if applied == domaintypes.VersionUnspecified {
		applied = domaintypes.Version1_0
	}
	if offered == domaintypes.VersionUnspecified {
		offered = applied
	}
	if offered < applied {
		return v, fmt.Errorf("%w: offered %s, applied %s", ErrVersionInconsistent, offered, applied)
	}
	if applied > v.OutgoingOffered {
		return v, fmt.Errorf("%w: applied %s, offered %s", ErrVersionNotOffered, applied, v.OutgoingOffered)
	}
	// 2DH messages predate negotiation and never move it.
	if dh == domaintypes.DHTypeTwoDH {
		return v, nil
	}
	if applied < v.IncomingAppliedMin {
		return v, fmt.Errorf("%w: applied %s, minimum %s", ErrVersionDowngrade, applied, v.IncomingAppliedMin)
	}
	if offered < v.OutgoingApplied {
		return v, fmt.Errorf("%w: peer offers %s, we apply %s", ErrVersionDowngrade, offered, v.OutgoingApplied)
	}

	next := v
	if offered > next.OutgoingApplied {
		next.OutgoingApplied = min(offered, next.OutgoingOffered)
	}
	if applied > next.IncomingAppliedMin {
		next.IncomingAppliedMin = applied
	}
	return next, nil
}

// Refresh raises the offered version after a local upgrade.
func (v Versions) Refresh(local domaintypes.VersionRange) Versions {
	if local.Max > v.OutgoingOffered {
		v.OutgoingOffered = local.Max
	}
	return v
}

var minimumVersions = map[domaintypes.MessageType]domaintypes.Version{
	domaintypes.MessageTypeText:            domaintypes.Version1_0,
	domaintypes.MessageTypeLocation:        domaintypes.Version1_0,
	domaintypes.MessageTypeFile:            domaintypes.Version1_0,
	domaintypes.MessageTypeEmpty:           domaintypes.Version1_0,
	domaintypes.MessageTypeDeliveryReceipt: domaintypes.Version1_1,
	domaintypes.MessageTypeTypingIndicator: domaintypes.Version1_1,
	domaintypes.MessageTypeGroupText:       domaintypes.Version1_2,
}

// MinimumVersion returns the lowest applied version at which t may be
// encapsulated. ok is false for types that are never encapsulated.
func MinimumVersion(t domaintypes.MessageType) (v domaintypes.Version, ok bool) {
	v, ok = minimumVersions[t]
	return v, ok
}

// Eligible reports whether t may be encapsulated at the applied version.
func Eligible(t domaintypes.MessageType, applied domaintypes.Version) bool {
	v, ok := MinimumVersion(t)
	return ok && applied >= v
}
