package call

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/negotiation"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// ErrDisconnected is returned by Run when the relay connection drops.
var ErrDisconnected = errors.New("disconnected from signaling server")

// Options configures an Agent.
type Options struct {
	Room     string
	Identity string

	// AutoCall calls every participant already in the room on join.
	AutoCall bool

	// AutoAnswer accepts incoming calls as soon as the offer is applied.
	AutoAnswer bool

	NewEngine EngineFactory
	Logger    *slog.Logger
}

// PeerStatus is one room participant as seen by the agent.
type PeerStatus struct {
	ID       string
	Identity string
	State    negotiation.State
	Err      error
}

// Status is a snapshot published after every change.
type Status struct {
	LocalID string
	Room    string
	Joined  bool
	Peers   []PeerStatus
	Err     error
}

type peer struct {
	id       string
	identity string

	session negotiation.Session
	engine  Engine

	// held keeps local candidates gathered before the offer went out.
	held []json.RawMessage
	// early keeps remote candidates that arrived while no call was open,
	// in arrival order, for the next incoming call.
	early []json.RawMessage
	// transportUp records a connected report that arrived before the
	// session could accept it.
	transportUp bool
	// acceptWanted is set when Accept came before the offer was applied.
	acceptWanted bool
	answering    bool
	err          error
}

// Agent runs every call of one signaling connection on a single goroutine.
// Engine callbacks and finished media operations re-enter through actions, so
// sessions are never touched concurrently.
type Agent struct {
	sig  Signaler
	opts Options
	log  *slog.Logger

	actions chan func()
	updates chan Status
	done    chan struct{}
	ctx     context.Context

	localID string
	room    string
	joined  bool
	lastErr error
	order   []string
	peers   map[string]*peer
}

// NewAgent creates an agent speaking through sig.
func NewAgent(sig Signaler, opts Options) *Agent {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Agent{
		sig:     sig,
		opts:    opts,
		log:     log.With("component", "agent", "room", opts.Room),
		actions: make(chan func(), 64),
		updates: make(chan Status, 1),
		done:    make(chan struct{}),
		ctx:     context.Background(),
		peers:   make(map[string]*peer),
	}
}

// Updates delivers the latest Status. Intermediate snapshots may be skipped;
// the channel is closed when Run returns.
func (a *Agent) Updates() <-chan Status {
	return a.updates
}

// Call starts a call to the participant id.
func (a *Agent) Call(id string) {
	a.post(func() { a.startCall(id) })
}

// Accept answers the pending incoming call from id.
func (a *Agent) Accept(id string) {
	a.post(func() { a.startAnswer(id) })
}

// Hangup ends the call with id.
func (a *Agent) Hangup(id string) {
	a.post(func() {
		if p := a.peers[id]; p != nil && p.engine != nil {
			a.step(p, p.engine, negotiation.Event{Kind: negotiation.Close})
		}
	})
}

func (a *Agent) post(fn func()) bool {
	select {
	case a.actions <- fn:
		return true
	case <-a.done:
		return false
	}
}

// Run joins the room and serves signaling until ctx ends or the connection
// drops. On ctx cancellation every live call is hung up and Run returns nil.
// A rejected join is returned as the server's error.
func (a *Agent) Run(ctx context.Context) error {
	defer close(a.updates)
	defer close(a.done)
	a.ctx = ctx

	join := &signaling.Message{Type: signaling.MessageTypeJoin, Room: a.opts.Room, Identity: a.opts.Identity}
	if err := a.sig.Send(join); err != nil {
		return err
	}

	incoming := a.sig.Incoming()
	for {
		select {
		case <-ctx.Done():
			a.endAll(negotiation.Close)
			return nil

		case msg, ok := <-incoming:
			if !ok {
				a.endAll(negotiation.PeerLeft)
				return ErrDisconnected
			}
			if err := a.handle(msg); err != nil {
				a.endAll(negotiation.Close)
				return err
			}

		case fn := <-a.actions:
			fn()
		}
	}
}

func (a *Agent) handle(msg *signaling.Message) error {
	switch msg.Type {
	case signaling.MessageTypeWelcome:
		a.localID = msg.ID

	case signaling.MessageTypeJoined:
		a.localID, a.room, a.joined = msg.ID, msg.Room, true
		a.log.Info("joined room", "id", msg.ID, "peers", len(msg.Peers))
		for _, id := range msg.Peers {
			a.addPeer(id, "")
		}
		if a.opts.AutoCall {
			for _, id := range msg.Peers {
				a.startCall(id)
			}
		}

	case signaling.MessageTypePeerJoined:
		a.log.Info("peer joined", "peer", msg.ID, "identity", msg.Identity)
		a.addPeer(msg.ID, msg.Identity)

	case signaling.MessageTypePeerLeft:
		a.log.Info("peer left", "peer", msg.ID)
		if p := a.peers[msg.ID]; p != nil {
			if p.engine != nil {
				a.step(p, p.engine, negotiation.Event{Kind: negotiation.PeerLeft})
			}
			a.removePeer(msg.ID)
		}

	case signaling.MessageTypeIncomingCall:
		a.incomingCall(msg.From, msg.Offer)

	case signaling.MessageTypeCallAnswered:
		a.remoteEvent(msg.From, negotiation.Event{Kind: negotiation.CallAnswered, Description: msg.Answer})

	case signaling.MessageTypeCandidate:
		a.remoteEvent(msg.From, negotiation.Event{Kind: negotiation.RemoteCandidate, Candidate: msg.Candidate})

	case signaling.MessageTypeCallEnded:
		a.log.Info("call ended by peer", "peer", msg.From)
		a.remoteEvent(msg.From, negotiation.Event{Kind: negotiation.PeerLeft})

	case signaling.MessageTypeError:
		return a.serverError(msg)

	default:
		a.log.Debug("ignoring message", "type", msg.Type)
	}

	a.publish()
	return nil
}

func (a *Agent) serverError(msg *signaling.Message) error {
	err := signaling.ErrorFromCode(msg.Code, msg.Message)
	a.log.Warn("server error", "code", msg.Code, "to", msg.To, "err", err)

	if !a.joined && (errors.Is(err, signaling.ErrRoomFull) || errors.Is(err, signaling.ErrAlreadyInRoom)) {
		return err
	}

	if p := a.peers[msg.To]; p != nil && p.engine != nil {
		p.err = err
		if errors.Is(err, signaling.ErrPeerUnreachable) {
			a.step(p, p.engine, negotiation.Event{Kind: negotiation.PeerUnreachable, Err: err})
		}
	} else {
		a.lastErr = err
	}
	a.publish()
	return nil
}

func (a *Agent) addPeer(id, identity string) *peer {
	if p, ok := a.peers[id]; ok {
		if identity != "" {
			p.identity = identity
		}
		return p
	}
	p := &peer{id: id, identity: identity}
	a.peers[id] = p
	a.order = append(a.order, id)
	return p
}

func (a *Agent) removePeer(id string) {
	delete(a.peers, id)
	for i, v := range a.order {
		if v == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// newSession replaces any finished call with id by a fresh Idle session and
// engine.
func (a *Agent) newSession(p *peer) (Engine, bool) {
	if p.engine != nil && !p.session.State.Terminal() {
		a.log.Warn("call already in progress", "peer", p.id, "state", p.session.State)
		return nil, false
	}

	eng, err := a.opts.NewEngine(p.id)
	if err != nil {
		a.log.Error("create media engine", "peer", p.id, "err", err)
		p.err = err
		return nil, false
	}

	p.session = negotiation.New(a.localID, p.id)
	p.engine = eng
	p.held, p.transportUp, p.acceptWanted, p.answering, p.err = nil, false, false, false, nil

	eng.OnLocalCandidate(func(c json.RawMessage) {
		a.post(func() { a.localCandidate(p, eng, c) })
	})
	eng.OnConnected(func() {
		a.post(func() { a.step(p, eng, negotiation.Event{Kind: negotiation.TransportConnected}) })
	})
	eng.OnFailed(func(err error) {
		a.post(func() { a.step(p, eng, negotiation.Event{Kind: negotiation.NegotiationError, Err: err}) })
	})
	return eng, true
}

func (a *Agent) startCall(id string) {
	p := a.peers[id]
	if p == nil {
		a.log.Warn("call to unknown peer", "peer", id)
		return
	}
	eng, ok := a.newSession(p)
	if !ok {
		a.publish()
		return
	}
	p.early = nil

	go func() {
		offer, err := eng.CreateOffer(a.ctx)
		a.post(func() {
			if err != nil {
				a.step(p, eng, negotiation.Event{Kind: negotiation.NegotiationError, Err: err})
				return
			}
			a.step(p, eng, negotiation.Event{Kind: negotiation.Initiate, Description: offer})
		})
	}()
	a.publish()
}

func (a *Agent) incomingCall(from string, offer json.RawMessage) {
	p := a.addPeer(from, "")
	if p.engine != nil && !p.session.State.Terminal() {
		// Glare or a duplicate offer; the state machine rejects it.
		a.step(p, p.engine, negotiation.Event{Kind: negotiation.IncomingCall, Description: offer})
		return
	}
	eng, ok := a.newSession(p)
	if !ok {
		return
	}
	a.log.Info("incoming call", "peer", from)
	a.step(p, eng, negotiation.Event{Kind: negotiation.IncomingCall, Description: offer})

	early := p.early
	p.early = nil
	for _, c := range early {
		a.step(p, eng, negotiation.Event{Kind: negotiation.RemoteCandidate, Candidate: c})
	}
}

func (a *Agent) startAnswer(id string) {
	p := a.peers[id]
	if p == nil || p.engine == nil {
		a.log.Warn("no call to accept", "peer", id)
		return
	}
	if p.answering {
		return
	}
	if p.session.State != negotiation.OfferReceived {
		a.log.Warn("no call to accept", "peer", id, "state", p.session.State)
		return
	}
	if !p.session.RemoteApplied {
		p.acceptWanted = true
		return
	}
	p.answering = true

	eng := p.engine
	go func() {
		answer, err := eng.CreateAnswer(a.ctx)
		a.post(func() {
			if err != nil {
				a.step(p, eng, negotiation.Event{Kind: negotiation.NegotiationError, Err: err})
				return
			}
			a.step(p, eng, negotiation.Event{Kind: negotiation.Accept, Description: answer})
		})
	}()
}

func (a *Agent) remoteEvent(from string, ev negotiation.Event) {
	p := a.peers[from]
	if p != nil && ev.Kind == negotiation.RemoteCandidate &&
		(p.engine == nil || p.session.State.Terminal()) {
		p.early = append(p.early, ev.Candidate)
		return
	}
	if p == nil || p.engine == nil {
		a.log.Debug("no session for remote event", "peer", from, "event", ev.Kind)
		return
	}
	a.step(p, p.engine, ev)
}

func (a *Agent) localCandidate(p *peer, eng Engine, c json.RawMessage) {
	if p.engine != eng {
		return
	}
	if p.session.State == negotiation.Idle {
		p.held = append(p.held, c)
		return
	}
	a.step(p, eng, negotiation.Event{Kind: negotiation.LocalCandidate, Candidate: c})
}

// step feeds ev to p's session if eng is still p's engine, then carries out
// the resulting output.
func (a *Agent) step(p *peer, eng Engine, ev negotiation.Event) {
	if p.engine != eng {
		return
	}

	prev := p.session
	next, out, err := negotiation.Step(prev, ev)
	if err != nil {
		if ev.Kind == negotiation.TransportConnected && !prev.State.Terminal() {
			p.transportUp = true
			return
		}
		a.log.Debug("dropping event", "peer", p.id, "err", err)
		return
	}
	p.session = next
	if ev.Err != nil {
		p.err = ev.Err
	}

	a.apply(p, eng, out)

	if next.State != prev.State {
		a.log.Info("call state", "peer", p.id, "from", prev.State, "to", next.State)
	}

	switch {
	case next.State.Terminal():
		if !prev.State.Terminal() {
			a.closeEngine(p)
		}

	case ev.Kind == negotiation.Initiate:
		held := p.held
		p.held = nil
		for _, c := range held {
			a.step(p, eng, negotiation.Event{Kind: negotiation.LocalCandidate, Candidate: c})
		}

	case ev.Kind == negotiation.RemoteApplied && next.State == negotiation.OfferReceived:
		if a.opts.AutoAnswer || p.acceptWanted {
			a.startAnswer(p.id)
		}
	}

	if p.transportUp && next.RemoteApplied &&
		(next.State == negotiation.AnswerSent || next.State == negotiation.AnswerReceived) {
		p.transportUp = false
		a.step(p, eng, negotiation.Event{Kind: negotiation.TransportConnected})
		return
	}

	a.publish()
}

// apply carries out a transition's side effects in order: remote
// description, candidates, outbound frames.
func (a *Agent) apply(p *peer, eng Engine, out negotiation.Output) {
	if out.SetRemote != nil {
		desc := out.SetRemote
		go func() {
			err := eng.SetRemoteDescription(a.ctx, desc)
			a.post(func() {
				if err != nil {
					a.step(p, eng, negotiation.Event{Kind: negotiation.NegotiationError, Err: err})
					return
				}
				a.step(p, eng, negotiation.Event{Kind: negotiation.RemoteApplied})
			})
		}()
	}

	for _, c := range out.Apply {
		if err := eng.AddICECandidate(c); err != nil {
			a.log.Warn("apply remote candidate", "peer", p.id, "err", err)
		}
	}

	for _, msg := range out.Send {
		if err := a.sig.Send(msg); err != nil {
			a.log.Warn("send failed", "peer", p.id, "type", msg.Type, "err", err)
		}
	}
}

func (a *Agent) closeEngine(p *peer) {
	if err := p.engine.Close(); err != nil {
		a.log.Debug("close media engine", "peer", p.id, "err", err)
	}
}

// endAll moves every live session to a terminal state with kind (Close sends
// hangups, PeerLeft does not).
func (a *Agent) endAll(kind negotiation.EventKind) {
	for _, id := range a.order {
		p := a.peers[id]
		if p.engine != nil && !p.session.State.Terminal() {
			a.step(p, p.engine, negotiation.Event{Kind: kind})
		}
	}
}

func (a *Agent) publish() {
	st := Status{
		LocalID: a.localID,
		Room:    a.room,
		Joined:  a.joined,
		Err:     a.lastErr,
		Peers:   make([]PeerStatus, 0, len(a.order)),
	}
	for _, id := range a.order {
		p := a.peers[id]
		st.Peers = append(st.Peers, PeerStatus{
			ID:       p.id,
			Identity: p.identity,
			State:    p.session.State,
			Err:      p.err,
		})
	}

	// Single producer: keep only the newest snapshot.
	select {
	case a.updates <- st:
	default:
		select {
		case <-a.updates:
		default:
		}
		a.updates <- st
	}
}
