package envelope

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	domaintypes "fscore/internal/domain/types"
)

var (
	ErrMalformed              = errors.New("envelope: malformed")
	ErrUnknownEnvelope        = errors.New("envelope: unknown content")
	ErrInvalidSessionIDLength = errors.New("envelope: invalid session id length")
	ErrInvalidPublicKeyLength = errors.New("envelope: invalid public key length")
	ErrInvalidMessageIDLength = errors.New("envelope: invalid message id length")
	ErrInvalidDHType          = errors.New("envelope: invalid dh type")
)

// Wire values of the DHType enum.
const (
	wireTwoDH  = 0
	wireFourDH = 1
)

// Marshal encodes e.
func Marshal(e *Envelope) ([]byte, error) {
	var (
		inner []byte
		err   error
	)
	switch c := e.Content.(type) {
	case *Init:
		inner = appendKeyExchange(nil, c.SupportedVersion, c.EphemeralPublicKey)
	case *Accept:
		inner = appendKeyExchange(nil, c.SupportedVersion, c.EphemeralPublicKey)
	case *Reject:
		inner = appendReject(nil, c)
	case *DataMessage:
		inner, err = appendDataMessage(nil, c)
	case *Terminate:
		if c.Cause != 0 {
			inner = protowire.AppendTag(inner, 1, protowire.VarintType)
			inner = protowire.AppendVarint(inner, uint64(c.Cause))
		}
	default:
		return nil, ErrUnknownEnvelope
	}
	if err != nil {
		return nil, err
	}

	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, e.SessionID[:])
	b = protowire.AppendTag(b, protowire.Number(e.Content.Kind()), protowire.BytesType)
	b = protowire.AppendBytes(b, inner)
	return b, nil
}

// Unmarshal decodes an envelope. A missing or unknown content variant is an
// error, as are fixed-length fields of the wrong size.
func Unmarshal(b []byte) (*Envelope, error) {
	var (
		e       Envelope
		haveID  bool
		content Content
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num < 1 || num > protowire.Number(KindTerminate) {
			return 0, nil
		}
		v, n, err := consumeBytes(typ, b)
		if err != nil {
			return 0, err
		}
		switch num {
		case 1:
			if len(v) != domaintypes.SessionIDSize {
				return 0, fmt.Errorf("%w: %d", ErrInvalidSessionIDLength, len(v))
			}
			copy(e.SessionID[:], v)
			haveID = true
		case protowire.Number(KindInit):
			r, k, err := parseKeyExchange(v)
			if err != nil {
				return 0, fmt.Errorf("init: %w", err)
			}
			content = &Init{SupportedVersion: r, EphemeralPublicKey: k}
		case protowire.Number(KindAccept):
			r, k, err := parseKeyExchange(v)
			if err != nil {
				return 0, fmt.Errorf("accept: %w", err)
			}
			content = &Accept{SupportedVersion: r, EphemeralPublicKey: k}
		case protowire.Number(KindReject):
			if content, err = parseReject(v); err != nil {
				return 0, fmt.Errorf("reject: %w", err)
			}
		case protowire.Number(KindEncapsulated):
			if content, err = parseDataMessage(v); err != nil {
				return 0, fmt.Errorf("encapsulated: %w", err)
			}
		case protowire.Number(KindTerminate):
			if content, err = parseTerminate(v); err != nil {
				return 0, fmt.Errorf("terminate: %w", err)
			}
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	if !haveID {
		return nil, fmt.Errorf("%w: missing", ErrInvalidSessionIDLength)
	}
	if content == nil {
		return nil, ErrUnknownEnvelope
	}
	e.Content = content
	return &e, nil
}

func appendVersionRange(b []byte, r domaintypes.VersionRange) []byte {
	var inner []byte
	if r.Min != 0 {
		inner = protowire.AppendTag(inner, 1, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(r.Min))
	}
	if r.Max != 0 {
		inner = protowire.AppendTag(inner, 2, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(r.Max))
	}
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func appendKeyExchange(b []byte, r domaintypes.VersionRange, key domaintypes.X25519Public) []byte {
	b = appendVersionRange(b, r)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	return protowire.AppendBytes(b, key[:])
}

func appendGroupIdentity(b []byte, num protowire.Number, g *domaintypes.GroupIdentity) []byte {
	if g == nil {
		return b
	}
	var inner []byte
	inner = protowire.AppendTag(inner, 1, protowire.BytesType)
	inner = protowire.AppendString(inner, g.CreatorIdentity.String())
	inner = protowire.AppendTag(inner, 2, protowire.Fixed64Type)
	inner = protowire.AppendFixed64(inner, g.GroupID)
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func appendReject(b []byte, r *Reject) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, r.RejectedMessageID[:])
	if r.Cause != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Cause))
	}
	return appendGroupIdentity(b, 3, r.GroupIdentity)
}

func appendDataMessage(b []byte, m *DataMessage) ([]byte, error) {
	var dh uint64
	switch m.DHType {
	case domaintypes.DHTypeTwoDH:
		dh = wireTwoDH
	case domaintypes.DHTypeFourDH:
		dh = wireFourDH
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidDHType, m.DHType)
	}
	if dh != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, dh)
	}
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Counter)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Ciphertext)
	if m.OfferedVersion != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.OfferedVersion))
	}
	if m.AppliedVersion != 0 {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.AppliedVersion))
	}
	return appendGroupIdentity(b, 6, m.GroupIdentity), nil
}

func parseVersionRange(b []byte) (domaintypes.VersionRange, error) {
	var r domaintypes.VersionRange
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 && num != 2 {
			return 0, nil
		}
		v, n, err := consumeVarint(typ, b)
		if err != nil {
			return 0, err
		}
		if num == 1 {
			r.Min = domaintypes.Version(v)
		} else {
			r.Max = domaintypes.Version(v)
		}
		return n, nil
	})
	return r, err
}

func parseKeyExchange(b []byte) (domaintypes.VersionRange, domaintypes.X25519Public, error) {
	var (
		r   domaintypes.VersionRange
		key []byte
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			r, err = parseVersionRange(v)
			return n, err
		case 2:
			v, n, err := consumeBytes(typ, b)
			key = v
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return r, domaintypes.X25519Public{}, err
	}
	pub, err := domaintypes.X25519PublicFromBytes(key)
	if err != nil {
		return r, pub, fmt.Errorf("%w: %d", ErrInvalidPublicKeyLength, len(key))
	}
	return r, pub, nil
}

func parseGroupIdentity(b []byte) (*domaintypes.GroupIdentity, error) {
	var g domaintypes.GroupIdentity
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			g.CreatorIdentity = domaintypes.Identity(v)
			return n, err
		case 2:
			if typ != protowire.Fixed64Type {
				return 0, fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, num, typ)
			}
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return 0, wireErr(n)
			}
			g.GroupID = v
			return n, nil
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func parseReject(b []byte) (*Reject, error) {
	var (
		r     Reject
		msgID []byte
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			msgID = v
			return n, err
		case 2:
			v, n, err := consumeVarint(typ, b)
			r.Cause = RejectCause(v)
			return n, err
		case 3:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			r.GroupIdentity, err = parseGroupIdentity(v)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	id, err := domaintypes.MessageIDFromBytes(msgID)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMessageIDLength, len(msgID))
	}
	r.RejectedMessageID = id
	return &r, nil
}

func parseDataMessage(b []byte) (*DataMessage, error) {
	m := DataMessage{DHType: domaintypes.DHTypeTwoDH}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			switch v {
			case wireTwoDH:
				m.DHType = domaintypes.DHTypeTwoDH
			case wireFourDH:
				m.DHType = domaintypes.DHTypeFourDH
			default:
				return 0, fmt.Errorf("%w: %d", ErrInvalidDHType, v)
			}
			return n, nil
		case 2:
			v, n, err := consumeVarint(typ, b)
			m.Counter = v
			return n, err
		case 3:
			v, n, err := consumeBytes(typ, b)
			m.Ciphertext = append([]byte(nil), v...)
			return n, err
		case 4:
			v, n, err := consumeVarint(typ, b)
			m.OfferedVersion = domaintypes.Version(v)
			return n, err
		case 5:
			v, n, err := consumeVarint(typ, b)
			m.AppliedVersion = domaintypes.Version(v)
			return n, err
		case 6:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			m.GroupIdentity, err = parseGroupIdentity(v)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func parseTerminate(b []byte) (*Terminate, error) {
	var t Terminate
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		v, n, err := consumeVarint(typ, b)
		t.Cause = TerminateCause(v)
		return n, err
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// walk calls fn for every field in b. fn returns how many value bytes it
// consumed, or 0 to have the field skipped.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wireErr(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return wireErr(m)
			}
		}
		b = b[m:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("%w: expected varint, got wire type %d", ErrMalformed, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, wireErr(n)
	}
	return v, n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("%w: expected bytes, got wire type %d", ErrMalformed, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, wireErr(n)
	}
	return v, n, nil
}

func wireErr(n int) error {
	return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
}
