package wire

import (
	"fmt"

	"causalkv/internal/protocol"
)

// CodecName is the content-subtype under which Codec is used.
const CodecName = "causalkv"

// Frame is the payload of every gRPC call between causalkv processes.
// An empty Frame (nil Msg) encodes to zero bytes.
type Frame struct {
	Msg protocol.Msg
}

// Codec implements gRPC's encoding.Codec over Frames.
type Codec struct{}

// Marshal encodes a *Frame.
func (Codec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*Frame)
	if !ok {
		return nil, fmt.Errorf("wire: cannot marshal %T", v)
	}
	if f.Msg == nil {
		return []byte{}, nil
	}
	return Marshal(f.Msg)
}

// Unmarshal decodes data into a *Frame.
func (Codec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*Frame)
	if !ok {
		return fmt.Errorf("wire: cannot unmarshal into %T", v)
	}
	if len(data) == 0 {
		f.Msg = nil
		return nil
	}
	msg, err := Unmarshal(data)
	if err != nil {
		return err
	}
	f.Msg = msg
	return nil
}

// Name returns CodecName.
func (Codec) Name() string {
	return CodecName
}
