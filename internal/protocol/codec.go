package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns envelopes into websocket frames and back.
type Codec interface {
	Name() string
	// Binary reports whether frames are sent as binary rather than text.
	Binary() bool
	Marshal(e *Envelope) ([]byte, error)
	Unmarshal(data []byte, e *Envelope) error
}

// Codec names accepted in the ?codec= query parameter.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

// CodecByName returns the codec registered under name. An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSON, nil
	case CodecMsgpack:
		return Msgpack, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecJSON }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Marshal(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}

func (jsonCodec) Unmarshal(data []byte, e *Envelope) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return fmt.Errorf("%w: not a json object", ErrMalformed)
	}
	if err := json.Unmarshal(data, e); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return CodecMsgpack }
func (msgpackCodec) Binary() bool { return true }

func (msgpackCodec) Marshal(e *Envelope) ([]byte, error) {
	return msgpack.Marshal(e)
}

func (msgpackCodec) Unmarshal(data []byte, e *Envelope) error {
	if err := msgpack.Unmarshal(data, e); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Decode unmarshals data with c and validates the result.
func Decode(c Codec, data []byte) (*Envelope, error) {
	var e Envelope
	if err := c.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
