package signaling

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BioHazard786/Warpcall/internal/metrics"
)

// Options tunes a Hub. Zero values fall back to defaults.
type Options struct {
	// RoomCapacity caps participants per room; zero means unlimited.
	RoomCapacity int

	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int

	// MaxMessageBytes is the largest inbound frame accepted.
	MaxMessageBytes int64

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

const (
	DefaultSendBuffer      = 256
	DefaultMaxMessageBytes = 64 * 1024 // enough for SDP with many codecs
)

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New(prometheus.NewRegistry())
	}
	return o
}

// call is a relay-side record of caller having offered to callee.
type call struct {
	caller, callee string
}

// Hub is the signaling relay. It resolves addresses through the Registry and
// Directory and forwards negotiation payloads without looking inside them.
//
// Handle is called from each client's read goroutine, so messages from one
// client are processed in order while different clients run concurrently.
type Hub struct {
	Registry  *Registry
	Directory *Directory

	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics

	// membership serializes room changes with the notifications they
	// cause, so every participant sees joins and leaves in one order.
	membership sync.Mutex

	mu    sync.Mutex
	calls map[call]bool // value: answered
}

// NewHub creates a new Hub instance.
func NewHub(opts Options) *Hub {
	opts = opts.withDefaults()
	return &Hub{
		Registry:  NewRegistry(),
		Directory: NewDirectory(opts.RoomCapacity),
		opts:      opts,
		log:       opts.Logger.With("component", "hub"),
		metrics:   opts.Metrics,
		calls:     make(map[call]bool),
	}
}

// MaxMessageBytes is the inbound frame limit clients should enforce.
func (h *Hub) MaxMessageBytes() int64 {
	return h.opts.MaxMessageBytes
}

// Connect registers c and greets it with its connection id.
func (h *Hub) Connect(c *Client) string {
	id := h.Registry.Register(c)
	h.metrics.Connected()
	h.log.Info("client registered", "conn", id)
	c.Send(&Message{Type: MessageTypeWelcome, ID: id})
	return id
}

// Disconnect tears down everything c owned. Calling it again is a no-op.
func (h *Hub) Disconnect(c *Client) {
	if _, ok := h.Registry.Unregister(c.ID); !ok {
		return
	}
	h.metrics.Disconnected()
	h.leave(c)
	c.Close()
	h.log.Info("client unregistered", "conn", c.ID)
}

// Handle processes one inbound message from c.
func (h *Hub) Handle(c *Client, msg *Message) {
	if err := msg.Validate(); err != nil {
		h.reply(c, WrapError("validate", ErrBadMessage, err.Error()), "")
		return
	}
	h.metrics.ReceivedMsg(string(msg.Type))
	h.log.Debug("message received", "conn", c.ID, "type", msg.Type, "to", msg.To)

	switch msg.Type {
	case MessageTypeJoin:
		h.join(c, msg)
	case MessageTypeLeave:
		if _, ok := h.Directory.RoomOf(c.ID); !ok {
			h.reply(c, NewError("leave", ErrNotInRoom), "")
			return
		}
		h.leave(c)
	case MessageTypeCall:
		h.call(c, msg)
	case MessageTypeAnswer:
		h.answer(c, msg)
	case MessageTypeCandidate:
		h.candidate(c, msg)
	case MessageTypeHangup:
		h.hangup(c, msg)
	}
}

func (h *Hub) join(c *Client, msg *Message) {
	h.membership.Lock()
	defer h.membership.Unlock()

	if current, ok := h.Directory.RoomOf(c.ID); ok && current == msg.Room {
		c.Send(&Message{Type: MessageTypeJoined, Room: msg.Room, ID: c.ID, Peers: h.Directory.PeersOf(c.ID)})
		return
	}

	existing, err := h.Directory.Join(msg.Room, c.ID)
	if err != nil {
		h.log.Info("join rejected", "conn", c.ID, "room", msg.Room, "err", err)
		h.reply(c, err, "")
		return
	}
	c.setIdentity(msg.Identity)
	h.metrics.SetRooms(h.Directory.Len())
	h.log.Info("client joined room", "conn", c.ID, "room", msg.Room, "peers", len(existing))

	c.Send(&Message{Type: MessageTypeJoined, Room: msg.Room, ID: c.ID, Peers: existing})
	for _, id := range existing {
		h.deliver(id, &Message{Type: MessageTypePeerJoined, Identity: msg.Identity, ID: c.ID})
	}
}

// leave removes c from its room and ends every call it is part of.
func (h *Hub) leave(c *Client) {
	h.membership.Lock()
	defer h.membership.Unlock()

	roomID, remaining := h.Directory.Leave(c.ID)
	partners := h.dropCalls(c.ID)
	if roomID == "" && len(partners) == 0 {
		return
	}
	h.metrics.SetRooms(h.Directory.Len())
	if roomID != "" {
		h.log.Info("client left room", "conn", c.ID, "room", roomID, "remaining", len(remaining))
	}

	notified := make(map[string]bool, len(remaining))
	for _, id := range remaining {
		notified[id] = true
		h.deliver(id, &Message{Type: MessageTypePeerLeft, ID: c.ID})
	}
	for _, id := range partners {
		if !notified[id] {
			h.deliver(id, &Message{Type: MessageTypePeerLeft, ID: c.ID})
		}
	}
}

func (h *Hub) call(c *Client, msg *Message) {
	if _, ok := h.Directory.RoomOf(c.ID); !ok {
		h.reply(c, NewError("call", ErrNotInRoom), msg.To)
		return
	}
	if !h.Directory.ArePeers(c.ID, msg.To) {
		h.reply(c, WrapError("call", ErrPeerUnreachable, msg.To), msg.To)
		return
	}

	h.mu.Lock()
	h.calls[call{caller: c.ID, callee: msg.To}] = false
	h.mu.Unlock()

	if !h.deliver(msg.To, &Message{Type: MessageTypeIncomingCall, From: c.ID, Offer: msg.Offer}) {
		h.mu.Lock()
		delete(h.calls, call{caller: c.ID, callee: msg.To})
		h.mu.Unlock()
		h.reply(c, WrapError("call", ErrPeerUnreachable, msg.To), msg.To)
	}
}

func (h *Hub) answer(c *Client, msg *Message) {
	key := call{caller: msg.To, callee: c.ID}

	h.mu.Lock()
	answered, ok := h.calls[key]
	if ok && !answered {
		h.calls[key] = true
	}
	h.mu.Unlock()

	if !ok {
		if _, live := h.Registry.Lookup(msg.To); !live {
			h.reply(c, WrapError("answer", ErrPeerUnreachable, msg.To), msg.To)
			return
		}
		h.reply(c, WrapError("answer", ErrInvalidTransition, "no call from "+msg.To), msg.To)
		return
	}
	if answered {
		h.reply(c, WrapError("answer", ErrInvalidTransition, "call already answered"), msg.To)
		return
	}

	if !h.deliver(msg.To, &Message{Type: MessageTypeCallAnswered, From: c.ID, Answer: msg.Answer}) {
		h.reply(c, WrapError("answer", ErrPeerUnreachable, msg.To), msg.To)
	}
}

func (h *Hub) candidate(c *Client, msg *Message) {
	if _, ok := h.Directory.RoomOf(c.ID); !ok && !h.inCall(c.ID, msg.To) {
		h.reply(c, NewError("candidate", ErrNotInRoom), msg.To)
		return
	}
	if !h.Directory.ArePeers(c.ID, msg.To) && !h.inCall(c.ID, msg.To) {
		h.reply(c, WrapError("candidate", ErrPeerUnreachable, msg.To), msg.To)
		return
	}
	if !h.deliver(msg.To, &Message{Type: MessageTypeCandidate, From: c.ID, Candidate: msg.Candidate}) {
		h.reply(c, WrapError("candidate", ErrPeerUnreachable, msg.To), msg.To)
	}
}

func (h *Hub) hangup(c *Client, msg *Message) {
	h.mu.Lock()
	a := call{caller: c.ID, callee: msg.To}
	b := call{caller: msg.To, callee: c.ID}
	_, okA := h.calls[a]
	_, okB := h.calls[b]
	delete(h.calls, a)
	delete(h.calls, b)
	h.mu.Unlock()

	if !okA && !okB {
		h.reply(c, WrapError("hangup", ErrInvalidTransition, "no call with "+msg.To), msg.To)
		return
	}
	h.deliver(msg.To, &Message{Type: MessageTypeCallEnded, From: c.ID})
}

func (h *Hub) inCall(a, b string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ab := h.calls[call{caller: a, callee: b}]
	_, ba := h.calls[call{caller: b, callee: a}]
	return ab || ba
}

// dropCalls forgets every call involving id and returns the partners.
func (h *Hub) dropCalls(id string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var partners []string
	for k := range h.calls {
		switch id {
		case k.caller:
			partners = append(partners, k.callee)
		case k.callee:
			partners = append(partners, k.caller)
		default:
			continue
		}
		delete(h.calls, k)
	}
	return partners
}

// deliver queues msg for the connection id. It reports false if id has no
// live connection.
func (h *Hub) deliver(id string, msg *Message) bool {
	target, ok := h.Registry.Lookup(id)
	if !ok {
		return false
	}
	if !target.Send(msg) {
		return false
	}
	h.metrics.RelayedMsg(string(msg.Type))
	return true
}

func (h *Hub) reply(c *Client, err error, to string) {
	msg := ErrorMessage(err, to)
	h.metrics.ErrorSent(msg.Code)
	h.log.Debug("replying with error", "conn", c.ID, "code", msg.Code, "err", err)
	c.Send(msg)
}

// Shutdown closes every connection. Each client's read pump then runs the
// usual disconnect cleanup.
func (h *Hub) Shutdown() {
	clients := h.Registry.Clients()
	for _, c := range clients {
		c.Close()
	}
	h.log.Info("hub shut down", "connections", len(clients))
}

func (h *Hub) Logger() *slog.Logger {
	return h.log
}
