package signaling

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(capacity int) *Hub {
	return NewHub(Options{
		RoomCapacity: capacity,
		SendBuffer:   32,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// newTestClient registers a socketless client and consumes its welcome.
func newTestClient(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := &Client{
		hub:   h,
		codec: JSONCodec,
		log:   h.log,
		send:  make(chan *Message, h.opts.SendBuffer),
	}
	h.Connect(c)
	welcome := next(t, c)
	require.Equal(t, MessageTypeWelcome, welcome.Type)
	require.Equal(t, c.ID, welcome.ID)
	return c
}

func next(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for message to %s", c.ID)
		return nil
	}
}

func requireQuiet(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message to %s: %+v", c.ID, msg)
	default:
	}
}

func joinRoom(t *testing.T, h *Hub, c *Client, room, identity string) *Message {
	t.Helper()
	h.Handle(c, &Message{Type: MessageTypeJoin, Room: room, Identity: identity})
	return next(t, c)
}

var (
	offer1  = json.RawMessage(`{"type":"offer","sdp":"v=0 o1"}`)
	answer1 = json.RawMessage(`{"type":"answer","sdp":"v=0 a1"}`)
)

func TestHub_JoinCallAnswerScenario(t *testing.T) {
	h := newTestHub(2)
	x := newTestClient(t, h)
	y := newTestClient(t, h)

	joined := joinRoom(t, h, x, "r1", "x@example.com")
	assert.Equal(t, MessageTypeJoined, joined.Type)
	assert.Equal(t, "r1", joined.Room)
	assert.Equal(t, x.ID, joined.ID)
	assert.Empty(t, joined.Peers)
	assert.Empty(t, h.Directory.PeersOf(x.ID))

	joined = joinRoom(t, h, y, "r1", "y@example.com")
	assert.Equal(t, MessageTypeJoined, joined.Type)
	assert.Equal(t, []string{x.ID}, joined.Peers)

	peerJoined := next(t, x)
	assert.Equal(t, MessageTypePeerJoined, peerJoined.Type)
	assert.Equal(t, y.ID, peerJoined.ID)
	assert.Equal(t, "y@example.com", peerJoined.Identity)

	h.Handle(x, &Message{Type: MessageTypeCall, To: y.ID, Offer: offer1})
	incoming := next(t, y)
	assert.Equal(t, MessageTypeIncomingCall, incoming.Type)
	assert.Equal(t, x.ID, incoming.From)
	assert.JSONEq(t, string(offer1), string(incoming.Offer))
	requireQuiet(t, x)

	h.Handle(y, &Message{Type: MessageTypeAnswer, To: x.ID, Answer: answer1})
	answered := next(t, x)
	assert.Equal(t, MessageTypeCallAnswered, answered.Type)
	assert.Equal(t, y.ID, answered.From)
	assert.JSONEq(t, string(answer1), string(answered.Answer))
	requireQuiet(t, y)
}

func TestHub_CallUnknownPeer(t *testing.T) {
	h := newTestHub(2)
	x := newTestClient(t, h)
	joinRoom(t, h, x, "r1", "x")

	h.Handle(x, &Message{Type: MessageTypeCall, To: "z", Offer: offer1})
	reply := next(t, x)
	assert.Equal(t, MessageTypeError, reply.Type)
	assert.Equal(t, CodePeerUnreachable, reply.Code)
	assert.Equal(t, "z", reply.To)

	room, ok := h.Directory.RoomOf(x.ID)
	require.True(t, ok)
	assert.Equal(t, "r1", room)
}

func TestHub_CallPeerInOtherRoomIsUnreachable(t *testing.T) {
	h := newTestHub(2)
	x := newTestClient(t, h)
	z := newTestClient(t, h)
	joinRoom(t, h, x, "r1", "x")
	joinRoom(t, h, z, "r2", "z")

	h.Handle(x, &Message{Type: MessageTypeCall, To: z.ID, Offer: offer1})
	assert.Equal(t, CodePeerUnreachable, next(t, x).Code)
	requireQuiet(t, z)
}

func TestHub_JoinWhileInRoom(t *testing.T) {
	h := newTestHub(2)
	x := newTestClient(t, h)
	joinRoom(t, h, x, "r1", "x")

	reply := joinRoom(t, h, x, "r2", "x")
	assert.Equal(t, MessageTypeError, reply.Type)
	assert.Equal(t, CodeAlreadyInRoom, reply.Code)

	// Same room again just repeats the joined frame.
	reply = joinRoom(t, h, x, "r1", "x")
	assert.Equal(t, MessageTypeJoined, reply.Type)
}

func TestHub_RoomFull(t *testing.T) {
	h := newTestHub(2)
	a := newTestClient(t, h)
	b := newTestClient(t, h)
	c := newTestClient(t, h)

	joinRoom(t, h, a, "r1", "a")
	joinRoom(t, h, b, "r1", "b")
	next(t, a) // peer-joined

	reply := joinRoom(t, h, c, "r1", "c")
	assert.Equal(t, CodeRoomFull, reply.Code)
	requireQuiet(t, a)
	requireQuiet(t, b)
}

func TestHub_DisconnectMidNegotiationNotifiesPeer(t *testing.T) {
	h := newTestHub(2)
	x := newTestClient(t, h)
	y := newTestClient(t, h)
	joinRoom(t, h, x, "r1", "x")
	joinRoom(t, h, y, "r1", "y")
	next(t, x)

	h.Handle(x, &Message{Type: MessageTypeCall, To: y.ID, Offer: offer1})
	next(t, y)

	h.Disconnect(x)
	left := next(t, y)
	assert.Equal(t, MessageTypePeerLeft, left.Type)
	assert.Equal(t, x.ID, left.ID)
	requireQuiet(t, y)

	_, ok := h.Registry.Lookup(x.ID)
	assert.False(t, ok)
	assert.Empty(t, h.Directory.PeersOf(y.ID))
	assert.False(t, h.inCall(x.ID, y.ID))

	// Second disconnect is a no-op.
	h.Disconnect(x)
	requireQuiet(t, y)
}

func TestHub_LeaveThenRejoinElsewhere(t *testing.T) {
	h := newTestHub(2)
	x := newTestClient(t, h)
	y := newTestClient(t, h)
	joinRoom(t, h, x, "r1", "x")
	joinRoom(t, h, y, "r1", "y")
	next(t, x)

	h.Handle(x, &Message{Type: MessageTypeLeave})
	assert.Equal(t, MessageTypePeerLeft, next(t, y).Type)

	reply := joinRoom(t, h, x, "r2", "x")
	assert.Equal(t, MessageTypeJoined, reply.Type)
	assert.Equal(t, 2, h.Directory.Len())
}

// drain empties c's queue without blocking.
func drain(c *Client) []*Message {
	var out []*Message
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHub_ConcurrentJoinAndLeaveKeepRosterConsistent(t *testing.T) {
	for i := range 5000 {
		h := newTestHub(2)
		x := newTestClient(t, h)
		y := newTestClient(t, h)
		joinRoom(t, h, x, "r", "x")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Handle(y, &Message{Type: MessageTypeJoin, Room: "r", Identity: "y"})
		}()
		go func() {
			defer wg.Done()
			h.Handle(x, &Message{Type: MessageTypeLeave})
		}()
		wg.Wait()

		// Replay y's queue the way a client tracks its roster.
		roster := map[string]bool{}
		for _, msg := range drain(y) {
			switch msg.Type {
			case MessageTypeJoined:
				for _, id := range msg.Peers {
					roster[id] = true
				}
			case MessageTypePeerJoined:
				roster[msg.ID] = true
			case MessageTypePeerLeft:
				delete(roster, msg.ID)
			}
		}
		require.Empty(t, roster, "run %d: y still lists a peer that left", i)
		require.Equal(t, []string{y.ID}, h.Directory.Snapshot()[0].Participants)
	}
}

func TestHub_NotInRoom(t *testing.T) {
	h := newTestHub(2)
	x := newTestClient(t, h)
	y := newTestClient(t, h)
	joinRoom(t, h, y, "r1", "y")

	h.Handle(x, &Message{Type: MessageTypeCall, To: y.ID, Offer: offer1})
	reply := next(t, x)
	assert.Equal(t, CodeNotInRoom, reply.Code)
	assert.Equal(t, y.ID, reply.To)

	h.Handle(x, &Message{Type: MessageTypeCandidate, To: y.ID, Candidate: json.RawMessage(`{"candidate":"c"}`)})
	assert.Equal(t, CodeNotInRoom, next(t, x).Code)

	h.Handle(x, &Message{Type: MessageTypeLeave})
	assert.Equal(t, CodeNotInRoom, next(t, x).Code)
	requireQuiet(t, y)
}

func TestHub_AnswerWithoutCall(t *testing.T) {
	h := newTestHub(2)
	x := newTestClient(t, h)
	y := newTestClient(t, h)
	joinRoom(t, h, x, "r1", "x")
	joinRoom(t, h, y, "r1", "y")
	next(t, x)

	h.Handle(y, &Message{Type: MessageTypeAnswer, To: x.ID, Answer: answer1})
	assert.Equal(t, CodeInvalidTransition, next(t, y).Code)
	requireQuiet(t, x)

	h.Handle(y, &Message{Type: MessageTypeAnswer, To: "gone", Answer: answer1})
	assert.Equal(t, CodePeerUnreachable, next(t, y).Code)
}

func TestHub_SecondAnswerRejected(t *testing.T) {
	h := newTestHub(2)
	x := newTestClient(t, h)
	y := newTestClient(t, h)
	joinRoom(t, h, x, "r1", "x")
	joinRoom(t, h, y, "r1", "y")
	next(t, x)

	h.Handle(x, &Message{Type: MessageTypeCall, To: y.ID, Offer: offer1})
	next(t, y)
	h.Handle(y, &Message{Type: MessageTypeAnswer, To: x.ID, Answer: answer1})
	next(t, x)

	h.Handle(y, &Message{Type: MessageTypeAnswer, To: x.ID, Answer: answer1})
	assert.Equal(t, CodeInvalidTransition, next(t, y).Code)
	requireQuiet(t, x)
}

func TestHub_CandidatesRelayedInOrder(t *testing.T) {
	h := newTestHub(2)
	x := newTestClient(t, h)
	y := newTestClient(t, h)
	joinRoom(t, h, x, "r1", "x")
	joinRoom(t, h, y, "r1", "y")
	next(t, x)

	for i := 0; i < 5; i++ {
		cand := json.RawMessage(`{"candidate":"c` + string(rune('0'+i)) + `"}`)
		h.Handle(x, &Message{Type: MessageTypeCandidate, To: y.ID, Candidate: cand})
	}
	for i := 0; i < 5; i++ {
		msg := next(t, y)
		require.Equal(t, MessageTypeCandidate, msg.Type)
		assert.Equal(t, x.ID, msg.From)
		assert.JSONEq(t, `{"candidate":"c`+string(rune('0'+i))+`"}`, string(msg.Candidate))
	}
}

func TestHub_HangupEndsCall(t *testing.T) {
	h := newTestHub(2)
	x := newTestClient(t, h)
	y := newTestClient(t, h)
	joinRoom(t, h, x, "r1", "x")
	joinRoom(t, h, y, "r1", "y")
	next(t, x)

	h.Handle(x, &Message{Type: MessageTypeHangup, To: y.ID})
	assert.Equal(t, CodeInvalidTransition, next(t, x).Code)

	h.Handle(x, &Message{Type: MessageTypeCall, To: y.ID, Offer: offer1})
	next(t, y)
	h.Handle(y, &Message{Type: MessageTypeHangup, To: x.ID})
	ended := next(t, x)
	assert.Equal(t, MessageTypeCallEnded, ended.Type)
	assert.Equal(t, y.ID, ended.From)
	assert.False(t, h.inCall(x.ID, y.ID))
}

func TestHub_InvalidMessage(t *testing.T) {
	h := newTestHub(2)
	x := newTestClient(t, h)

	h.Handle(x, &Message{Type: MessageTypeCall, To: "y", Offer: json.RawMessage(`not json`)})
	assert.Equal(t, CodeBadMessage, next(t, x).Code)

	h.Handle(x, &Message{Type: MessageTypeIncomingCall})
	assert.Equal(t, CodeBadMessage, next(t, x).Code)
}

func TestHub_SlowConsumerIsClosed(t *testing.T) {
	h := NewHub(Options{
		SendBuffer: 1,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	c := &Client{hub: h, codec: JSONCodec, log: h.log, send: make(chan *Message, 1)}
	h.Connect(c) // welcome fills the queue

	assert.False(t, c.Send(&Message{Type: MessageTypePeerLeft}))
	assert.False(t, c.Send(&Message{Type: MessageTypePeerLeft}))

	msg, ok := <-c.send
	require.True(t, ok)
	assert.Equal(t, MessageTypeWelcome, msg.Type)
	_, ok = <-c.send
	assert.False(t, ok, "queue should be closed")
}
