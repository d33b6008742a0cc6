package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
)

// ErrUnknownMessageType is returned by PeekType when the payload has no
// type field, or an empty one.
var ErrUnknownMessageType = errors.New("protocol: unknown message type")

// bufferPool amortises allocation across the high message volume a busy
// room generates; each Marshal call borrows a buffer and returns a copy.
var bufferPool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

// Marshal serializes a message to its wire JSON form.
func Marshal(v any) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	enc := json.NewEncoder(buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// Unmarshal deserializes wire JSON into v.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Envelope peeks the "type" discriminator of an inbound client message
// without committing to a concrete payload type.
type Envelope struct {
	Type string `json:"type"`
}

// PeekType reports the message type name carried in a raw inbound payload.
func PeekType(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	if env.Type == "" {
		return "", ErrUnknownMessageType
	}
	return env.Type, nil
}
