package signaling

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Websocket subprotocols a client may offer to pick the frame encoding.
const (
	SubprotocolJSON    = "warpcall.json"
	SubprotocolMsgpack = "warpcall.msgpack"
)

// Subprotocols lists what the server accepts, in preference order.
var Subprotocols = []string{SubprotocolJSON, SubprotocolMsgpack}

// Codec turns a Message into a websocket frame and back.
type Codec interface {
	// FrameType is websocket.TextMessage or websocket.BinaryMessage.
	FrameType() int
	Marshal(msg *Message) ([]byte, error)
	Unmarshal(data []byte, msg *Message) error
}

type jsonCodec struct{}

func (jsonCodec) FrameType() int                            { return websocket.TextMessage }
func (jsonCodec) Marshal(msg *Message) ([]byte, error)      { return json.Marshal(msg) }
func (jsonCodec) Unmarshal(data []byte, msg *Message) error { return json.Unmarshal(data, msg) }

type msgpackCodec struct{}

func (msgpackCodec) FrameType() int                            { return websocket.BinaryMessage }
func (msgpackCodec) Marshal(msg *Message) ([]byte, error)      { return msgpack.Marshal(msg) }
func (msgpackCodec) Unmarshal(data []byte, msg *Message) error { return msgpack.Unmarshal(data, msg) }

var (
	JSONCodec    Codec = jsonCodec{}
	MsgpackCodec Codec = msgpackCodec{}
)

// CodecFor returns the codec for a negotiated subprotocol. An empty or unknown
// subprotocol falls back to JSON so plain browser sockets keep working.
func CodecFor(subprotocol string) Codec {
	if subprotocol == SubprotocolMsgpack {
		return MsgpackCodec
	}
	return JSONCodec
}
