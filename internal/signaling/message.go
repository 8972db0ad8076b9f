package signaling

import (
	"encoding/json"
	"fmt"
)

// MessageType names every C2S (client to server) and S2C (server to client)
// signaling message.
type MessageType string

// Client to server.
const (
	MessageTypeJoin      MessageType = "join"
	MessageTypeLeave     MessageType = "leave"
	MessageTypeCall      MessageType = "call"
	MessageTypeAnswer    MessageType = "answer"
	MessageTypeCandidate MessageType = "candidate"
	MessageTypeHangup    MessageType = "hangup"
)

// Server to client. Candidate messages travel in both directions.
const (
	MessageTypeWelcome      MessageType = "welcome"
	MessageTypeJoined       MessageType = "joined"
	MessageTypePeerJoined   MessageType = "peer-joined"
	MessageTypePeerLeft     MessageType = "peer-left"
	MessageTypeIncomingCall MessageType = "incoming-call"
	MessageTypeCallAnswered MessageType = "call-answered"
	MessageTypeCallEnded    MessageType = "call-ended"
	MessageTypeError        MessageType = "error"
)

// Message is the flat envelope for every websocket frame. Only the fields
// relevant to Type are set.
//
// Offer, Answer and Candidate are opaque JSON documents produced by the media
// stack (RTCSessionDescriptionInit / RTCIceCandidateInit). The relay passes
// them through byte for byte.
type Message struct {
	Type MessageType `json:"type" msgpack:"type"`

	Room     string   `json:"room,omitempty" msgpack:"room,omitempty"`
	Identity string   `json:"identity,omitempty" msgpack:"identity,omitempty"`
	ID       string   `json:"id,omitempty" msgpack:"id,omitempty"`
	Peers    []string `json:"peers,omitempty" msgpack:"peers,omitempty"`

	To   string `json:"to,omitempty" msgpack:"to,omitempty"`
	From string `json:"from,omitempty" msgpack:"from,omitempty"`

	Offer     json.RawMessage `json:"offer,omitempty" msgpack:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty" msgpack:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty" msgpack:"candidate,omitempty"`

	Code    string `json:"code,omitempty" msgpack:"code,omitempty"`
	Message string `json:"message,omitempty" msgpack:"message,omitempty"`
}

// Validate checks that an inbound client message carries the fields its type
// requires. Server-originated types are rejected.
func (m *Message) Validate() error {
	switch m.Type {
	case MessageTypeJoin:
		if m.Room == "" {
			return fmt.Errorf("join message missing room")
		}
	case MessageTypeLeave:
	case MessageTypeCall:
		if m.To == "" {
			return fmt.Errorf("call message missing to")
		}
		if err := validBlob("offer", m.Offer); err != nil {
			return err
		}
	case MessageTypeAnswer:
		if m.To == "" {
			return fmt.Errorf("answer message missing to")
		}
		if err := validBlob("answer", m.Answer); err != nil {
			return err
		}
	case MessageTypeCandidate:
		if m.To == "" {
			return fmt.Errorf("candidate message missing to")
		}
		if err := validBlob("candidate", m.Candidate); err != nil {
			return err
		}
	case MessageTypeHangup:
		if m.To == "" {
			return fmt.Errorf("hangup message missing to")
		}
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}

// validBlob rejects payloads that would not survive re-encoding as JSON, which
// matters when a msgpack sender is relayed to a JSON receiver.
func validBlob(field string, b json.RawMessage) error {
	if len(b) == 0 {
		return fmt.Errorf("%s missing", field)
	}
	if !json.Valid(b) {
		return fmt.Errorf("%s is not a JSON document", field)
	}
	return nil
}

// ErrorMessage builds the S2C error frame for err. to names the peer the
// failed operation targeted, if any.
func ErrorMessage(err error, to string) *Message {
	return &Message{
		Type:    MessageTypeError,
		Code:    CodeOf(err),
		Message: err.Error(),
		To:      to,
	}
}
