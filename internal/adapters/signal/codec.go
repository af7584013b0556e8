package signal

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

func init() {
	msgpack.Register(json.RawMessage(nil), encodeParams, decodeParams)
}

// encodeParams writes opaque JSON params as the equivalent msgpack value so
// binary clients see maps, not a blob of JSON text.
func encodeParams(enc *msgpack.Encoder, v reflect.Value) error {
	raw := v.Bytes()
	if len(raw) == 0 {
		return enc.EncodeNil()
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var val any
	if err := dec.Decode(&val); err != nil {
		return err
	}
	return enc.Encode(plainNumbers(val))
}

// decodeParams reads any msgpack value back into JSON params.
func decodeParams(dec *msgpack.Decoder, v reflect.Value) error {
	val, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	if val == nil {
		v.SetBytes(nil)
		return nil
	}
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	v.SetBytes(b)
	return nil
}

// plainNumbers turns json.Number into int64 or float64.
func plainNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = plainNumbers(e)
		}
	case []any:
		for i, e := range t {
			t[i] = plainNumbers(e)
		}
	}
	return v
}

// Codec encodes envelopes for one websocket frame type. Both codecs use the
// json struct tags so field names match on the wire.
type Codec interface {
	FrameType() int
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) FrameType() int                     { return websocket.TextMessage }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type msgpackCodec struct{}

func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetOmitEmpty(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

// codecFor picks the codec matching an inbound frame type.
func codecFor(frameType int) (Codec, bool) {
	switch frameType {
	case websocket.TextMessage:
		return JSON, true
	case websocket.BinaryMessage:
		return Msgpack, true
	}
	return nil, false
}

// envelope is the inbound request frame. Data is decoded lazily with the
// codec the frame arrived in.
type envelope struct {
	Type string   `json:"type"`
	ID   uint64   `json:"id"`
	Data rawValue `json:"data"`
}

// rawValue keeps the undecoded data field for either codec.
type rawValue struct {
	json json.RawMessage
	mp   msgpack.RawMessage
}

func (r *rawValue) UnmarshalJSON(b []byte) error {
	r.json = append(json.RawMessage(nil), b...)
	return nil
}

func (r *rawValue) DecodeMsgpack(dec *msgpack.Decoder) error {
	raw, err := dec.DecodeRaw()
	if err != nil {
		return err
	}
	r.mp = raw
	return nil
}

func (r rawValue) empty() bool {
	switch {
	case len(r.json) > 0:
		return string(r.json) == "null"
	case len(r.mp) > 0:
		return len(r.mp) == 1 && r.mp[0] == 0xc0
	}
	return true
}

// decode fills v from the data field. A missing data field leaves v zero.
func (r rawValue) decode(c Codec, v any) error {
	if r.empty() {
		return nil
	}
	if len(r.json) > 0 {
		return json.Unmarshal(r.json, v)
	}
	return c.Unmarshal(r.mp, v)
}
