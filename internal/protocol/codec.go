package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts messages to and from websocket frames.
type Codec interface {
	Name() string
	FrameType() int
	Encode(msg *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
}

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// JSON is the default codec, sent as text frames. Browsers speak this one.
var JSON Codec = jsonCodec{}

// Msgpack sends messages as binary frames. Payload bytes travel as a
// msgpack bin value and are never re-encoded.
var Msgpack Codec = msgpackCodec{}

// CodecByName resolves a codec from its name; empty means JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSON, nil
	case CodecMsgpack:
		return Msgpack, nil
	default:
		return nil, fmt.Errorf("unsupported codec %q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string   { return CodecJSON }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode json message: %w", err)
	}
	return &msg, nil
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string   { return CodecMsgpack }
func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) Encode(msg *Message) ([]byte, error) {
	return msgpack.Marshal(msg)
}

func (msgpackCodec) Decode(data []byte) (*Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode msgpack message: %w", err)
	}
	return &msg, nil
}

// WriteMessage encodes msg with c and writes it as a single frame.
func WriteMessage(conn *websocket.Conn, c Codec, msg *Message) error {
	data, err := c.Encode(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(c.FrameType(), data)
}

// ReadMessage reads one frame and decodes it with c.
func ReadMessage(conn *websocket.Conn, c Codec) (*Message, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return c.Decode(data)
}
