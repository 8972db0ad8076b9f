package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

func newTestServer(t *testing.T, capacity int) (*Server, *httptest.Server) {
	t.Helper()
	cfg := &config.ServerConfig{
		ListenAddr:      "127.0.0.1:0",
		RoomCapacity:    capacity,
		SendBuffer:      64,
		MaxMessageBytes: 64 * 1024,
	}
	s := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

type wsPeer struct {
	t     *testing.T
	conn  *websocket.Conn
	codec signaling.Codec
	id    string
}

func dialPeer(t *testing.T, ts *httptest.Server, subprotocol string) *wsPeer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	dialer := websocket.Dialer{Subprotocols: []string{subprotocol}}
	conn, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Equal(t, subprotocol, conn.Subprotocol())

	p := &wsPeer{t: t, conn: conn, codec: signaling.CodecFor(conn.Subprotocol())}
	welcome := p.read()
	require.Equal(t, signaling.MessageTypeWelcome, welcome.Type)
	p.id = welcome.ID
	return p
}

func (p *wsPeer) send(msg *signaling.Message) {
	p.t.Helper()
	data, err := p.codec.Marshal(msg)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteMessage(p.codec.FrameType(), data))
}

func (p *wsPeer) read() *signaling.Message {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	frameType, data, err := p.conn.ReadMessage()
	require.NoError(p.t, err)
	require.Equal(p.t, p.codec.FrameType(), frameType)

	var msg signaling.Message
	require.NoError(p.t, p.codec.Unmarshal(data, &msg))
	return &msg
}

func (p *wsPeer) join(room, identity string) *signaling.Message {
	p.t.Helper()
	p.send(&signaling.Message{Type: signaling.MessageTypeJoin, Room: room, Identity: identity})
	joined := p.read()
	require.Equal(p.t, signaling.MessageTypeJoined, joined.Type, "got %+v", joined)
	return joined
}

var (
	offer     = json.RawMessage(`{"type":"offer","sdp":"v=0 offer"}`)
	answer    = json.RawMessage(`{"type":"answer","sdp":"v=0 answer"}`)
	candidate = json.RawMessage(`{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0"}`)
)

func TestServer_CallFlow(t *testing.T) {
	_, ts := newTestServer(t, 2)
	x := dialPeer(t, ts, signaling.SubprotocolJSON)
	y := dialPeer(t, ts, signaling.SubprotocolJSON)

	joined := x.join("R", "x@example.com")
	assert.Empty(t, joined.Peers)

	joined = y.join("R", "y@example.com")
	assert.Equal(t, []string{x.id}, joined.Peers)

	pj := x.read()
	assert.Equal(t, signaling.MessageTypePeerJoined, pj.Type)
	assert.Equal(t, y.id, pj.ID)
	assert.Equal(t, "y@example.com", pj.Identity)

	y.send(&signaling.Message{Type: signaling.MessageTypeCall, To: x.id, Offer: offer})
	in := x.read()
	assert.Equal(t, signaling.MessageTypeIncomingCall, in.Type)
	assert.Equal(t, y.id, in.From)
	assert.JSONEq(t, string(offer), string(in.Offer))

	x.send(&signaling.Message{Type: signaling.MessageTypeAnswer, To: y.id, Answer: answer})
	ans := y.read()
	assert.Equal(t, signaling.MessageTypeCallAnswered, ans.Type)
	assert.Equal(t, x.id, ans.From)
	assert.JSONEq(t, string(answer), string(ans.Answer))

	y.send(&signaling.Message{Type: signaling.MessageTypeCandidate, To: x.id, Candidate: candidate})
	c := x.read()
	assert.Equal(t, signaling.MessageTypeCandidate, c.Type)
	assert.Equal(t, y.id, c.From)
	assert.JSONEq(t, string(candidate), string(c.Candidate))
}

func TestServer_DisconnectMidNegotiation(t *testing.T) {
	s, ts := newTestServer(t, 2)
	x := dialPeer(t, ts, signaling.SubprotocolJSON)
	y := dialPeer(t, ts, signaling.SubprotocolJSON)
	x.join("R", "x")
	y.join("R", "y")
	x.read() // peer-joined

	x.send(&signaling.Message{Type: signaling.MessageTypeCall, To: y.id, Offer: offer})
	require.Equal(t, signaling.MessageTypeIncomingCall, y.read().Type)

	require.NoError(t, x.conn.Close())

	left := y.read()
	assert.Equal(t, signaling.MessageTypePeerLeft, left.Type)
	assert.Equal(t, x.id, left.ID)

	require.Eventually(t, func() bool { return s.Hub.Registry.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{y.id}, s.Hub.Directory.Snapshot()[0].Participants)

	y.send(&signaling.Message{Type: signaling.MessageTypeAnswer, To: x.id, Answer: answer})
	e := y.read()
	assert.Equal(t, signaling.MessageTypeError, e.Type)
	assert.Equal(t, signaling.CodePeerUnreachable, e.Code)
}

func TestServer_MixedCodecs(t *testing.T) {
	_, ts := newTestServer(t, 2)
	x := dialPeer(t, ts, signaling.SubprotocolMsgpack)
	y := dialPeer(t, ts, signaling.SubprotocolJSON)
	x.join("R", "x")
	y.join("R", "y")
	x.read()

	x.send(&signaling.Message{Type: signaling.MessageTypeCall, To: y.id, Offer: offer})
	in := y.read()
	assert.Equal(t, signaling.MessageTypeIncomingCall, in.Type)
	assert.JSONEq(t, string(offer), string(in.Offer))

	y.send(&signaling.Message{Type: signaling.MessageTypeAnswer, To: x.id, Answer: answer})
	ans := x.read()
	assert.Equal(t, signaling.MessageTypeCallAnswered, ans.Type)
	assert.JSONEq(t, string(answer), string(ans.Answer))
}

func TestServer_RoomFull(t *testing.T) {
	_, ts := newTestServer(t, 2)
	x := dialPeer(t, ts, signaling.SubprotocolJSON)
	y := dialPeer(t, ts, signaling.SubprotocolJSON)
	z := dialPeer(t, ts, signaling.SubprotocolJSON)
	x.join("R", "x")
	y.join("R", "y")

	z.send(&signaling.Message{Type: signaling.MessageTypeJoin, Room: "R", Identity: "z"})
	e := z.read()
	assert.Equal(t, signaling.MessageTypeError, e.Type)
	assert.Equal(t, signaling.CodeRoomFull, e.Code)
}

func TestServer_HTTPEndpoints(t *testing.T) {
	_, ts := newTestServer(t, 2)
	x := dialPeer(t, ts, signaling.SubprotocolJSON)
	x.join("lobby", "x@example.com")

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")

	resp, err = http.Get(ts.URL + "/rooms")
	require.NoError(t, err)
	var rooms RoomsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	resp.Body.Close()
	assert.Equal(t, 2, rooms.Capacity)
	assert.Equal(t, 1, rooms.Connections)
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, "lobby", rooms.Rooms[0].ID)
	assert.Equal(t, []ParticipantInfo{{ID: x.id, Identity: "x@example.com"}}, rooms.Rooms[0].Participants)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "warpcall_connections 1")
	assert.Contains(t, string(body), `warpcall_messages_received_total{type="join"} 1`)
}

func TestServer_ServeShutsDown(t *testing.T) {
	s, _ := newTestServer(t, 2)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_, _, err = conn.ReadMessage() // welcome
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "expected the socket to be closed")
}
