package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"causalkv/internal/clock"
	"causalkv/internal/protocol"
	"causalkv/internal/storage"
)

var (
	// ErrUnknownKind is returned for a frame whose kind is not a known message.
	ErrUnknownKind = errors.New("wire: unknown message kind")
	// ErrTruncated is returned for a frame that ends mid-field.
	ErrTruncated = errors.New("wire: truncated frame")
)

type kind uint64

const (
	kindPut kind = iota + 1
	kindGet
	kindDelete
	kindPutOk
	kindGetOk
	kindDeleteOk
	kindPutSync
	kindDeleteSync
)

const (
	fieldKind      protowire.Number = 1
	fieldRequestID protowire.Number = 2
	fieldKey       protowire.Number = 3
	fieldValue     protowire.Number = 4
	fieldVersion   protowire.Number = 5
	fieldContext   protowire.Number = 6

	fieldCounter protowire.Number = 1
	fieldReplica protowire.Number = 2
)

// Marshal encodes msg.
func Marshal(msg protocol.Msg) ([]byte, error) {
	return AppendMsg(nil, msg)
}

// AppendMsg appends the encoding of msg to b.
func AppendMsg(b []byte, msg protocol.Msg) ([]byte, error) {
	switch m := msg.(type) {
	case protocol.Put:
		b = appendKind(b, kindPut)
		b = appendRequestID(b, m.RequestID)
		b = appendString(b, fieldKey, m.Key)
		b = appendString(b, fieldValue, m.Value)
	case protocol.Get:
		b = appendKind(b, kindGet)
		b = appendRequestID(b, m.RequestID)
		b = appendString(b, fieldKey, m.Key)
	case protocol.Delete:
		b = appendKind(b, kindDelete)
		b = appendRequestID(b, m.RequestID)
		b = appendString(b, fieldKey, m.Key)
	case protocol.PutOk:
		b = appendKind(b, kindPutOk)
		b = appendRequestID(b, m.RequestID)
	case protocol.GetOk:
		b = appendKind(b, kindGetOk)
		b = appendRequestID(b, m.RequestID)
		b = appendString(b, fieldValue, m.Value)
	case protocol.DeleteOk:
		b = appendKind(b, kindDeleteOk)
		b = appendRequestID(b, m.RequestID)
	case protocol.PutSync:
		b = appendKind(b, kindPutSync)
		b = AppendContext(b, m.Context)
		b = appendVersion(b, fieldVersion, m.Version)
		b = appendString(b, fieldKey, m.Key)
		b = appendString(b, fieldValue, m.Value)
	case protocol.DeleteSync:
		b = appendKind(b, kindDeleteSync)
		b = AppendContext(b, m.Context)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}
	return b, nil
}

func appendKind(b []byte, k kind) []byte {
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(k))
}

func appendRequestID(b []byte, id protocol.RequestID) []byte {
	b = protowire.AppendTag(b, fieldRequestID, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(id))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVersion(b []byte, num protowire.Number, v clock.Version) []byte {
	var inner []byte
	inner = protowire.AppendTag(inner, fieldCounter, protowire.VarintType)
	inner = protowire.AppendVarint(inner, v.Counter)
	inner = protowire.AppendTag(inner, fieldReplica, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(v.Replica))

	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

// AppendContext appends every Version of ctx as a repeated context field.
func AppendContext(b []byte, ctx clock.Context) []byte {
	for _, v := range ctx {
		b = appendVersion(b, fieldContext, v)
	}
	return b
}

// AppendEntries appends a canonical encoding of a snapshot. Each entry is
// written as a version, key and value field triple.
func AppendEntries(b []byte, entries []storage.Entry) []byte {
	b = protowire.AppendVarint(b, uint64(len(entries)))
	for _, e := range entries {
		b = appendVersion(b, fieldVersion, e.Version)
		b = appendString(b, fieldKey, e.Key)
		b = appendString(b, fieldValue, e.Value)
	}
	return b
}

// frame accumulates decoded fields before they are turned into a Msg.
type frame struct {
	kind      kind
	requestID protocol.RequestID
	key       string
	value     string
	version   clock.Version
	context   clock.Context
}

// Unmarshal decodes a message produced by Marshal. Unknown fields are
// skipped.
func Unmarshal(b []byte) (protocol.Msg, error) {
	var f frame
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: tag: %v", ErrTruncated, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: kind: %v", ErrTruncated, protowire.ParseError(n))
			}
			f.kind = kind(x)
			b = b[n:]
		case num == fieldRequestID && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: request id: %v", ErrTruncated, protowire.ParseError(n))
			}
			f.requestID = protocol.RequestID(x)
			b = b[n:]
		case (num == fieldKey || num == fieldValue) && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrTruncated, num, protowire.ParseError(n))
			}
			if num == fieldKey {
				f.key = s
			} else {
				f.value = s
			}
			b = b[n:]
		case (num == fieldVersion || num == fieldContext) && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrTruncated, num, protowire.ParseError(n))
			}
			v, err := consumeVersion(raw)
			if err != nil {
				return nil, err
			}
			if num == fieldVersion {
				f.version = v
			} else {
				f.context = f.context.Add(v)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrTruncated, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return f.msg()
}

func consumeVersion(b []byte) (clock.Version, error) {
	var v clock.Version
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return v, fmt.Errorf("%w: version tag: %v", ErrTruncated, protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return v, fmt.Errorf("%w: version field %d: %v", ErrTruncated, num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		x, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return v, fmt.Errorf("%w: version field %d: %v", ErrTruncated, num, protowire.ParseError(n))
		}
		switch num {
		case fieldCounter:
			v.Counter = x
		case fieldReplica:
			v.Replica = int(x)
		}
		b = b[n:]
	}
	return v, nil
}

func (f frame) msg() (protocol.Msg, error) {
	switch f.kind {
	case kindPut:
		return protocol.Put{RequestID: f.requestID, Key: f.key, Value: f.value}, nil
	case kindGet:
		return protocol.Get{RequestID: f.requestID, Key: f.key}, nil
	case kindDelete:
		return protocol.Delete{RequestID: f.requestID, Key: f.key}, nil
	case kindPutOk:
		return protocol.PutOk{RequestID: f.requestID}, nil
	case kindGetOk:
		return protocol.GetOk{RequestID: f.requestID, Value: f.value}, nil
	case kindDeleteOk:
		return protocol.DeleteOk{RequestID: f.requestID}, nil
	case kindPutSync:
		return protocol.PutSync{Context: f.context, Version: f.version, Key: f.key, Value: f.value}, nil
	case kindDeleteSync:
		return protocol.DeleteSync{Context: f.context}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, f.kind)
}
