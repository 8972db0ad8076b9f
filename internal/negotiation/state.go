// Package negotiation implements the per-peer offer/answer state machine.
//
// Transitions are pure: Step takes a Session and an Event and returns the next
// Session plus the Output the caller must carry out (frames to send to the
// relay, a remote description to apply, candidates to apply). The package does
// no I/O, so it can be driven by a websocket adapter or by a test script.
package negotiation

// State is the progress of one call with one remote peer.
type State int

const (
	Idle State = iota
	OfferSent
	OfferReceived
	AnswerSent
	AnswerReceived
	Connected
	Closed
	Failed
)

var stateNames = [...]string{
	Idle:           "idle",
	OfferSent:      "offer-sent",
	OfferReceived:  "offer-received",
	AnswerSent:     "answer-sent",
	AnswerReceived: "answer-received",
	Connected:      "connected",
	Closed:         "closed",
	Failed:         "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Closed || s == Failed
}

// EventKind identifies what happened.
type EventKind int

const (
	// Initiate: local side created an offer (caller path).
	Initiate EventKind = iota
	// IncomingCall: remote offer arrived (callee path).
	IncomingCall
	// RemoteApplied: the media engine finished applying the remote description.
	RemoteApplied
	// Accept: local side created an answer to the applied offer.
	Accept
	// CallAnswered: remote answer arrived.
	CallAnswered
	// TransportConnected: the media transport reports connectivity.
	TransportConnected
	// LocalCandidate: the media engine gathered a candidate.
	LocalCandidate
	// RemoteCandidate: the peer sent a candidate.
	RemoteCandidate
	// PeerLeft: the relay reports the peer gone or the call ended remotely.
	PeerLeft
	// Close: local side ends the call.
	Close
	// NegotiationError: the media engine failed.
	NegotiationError
	// PeerUnreachable: the relay could not deliver to the peer.
	PeerUnreachable
)

var eventNames = [...]string{
	Initiate:           "initiate",
	IncomingCall:       "incoming-call",
	RemoteApplied:      "remote-applied",
	Accept:             "accept",
	CallAnswered:       "call-answered",
	TransportConnected: "transport-connected",
	LocalCandidate:     "local-candidate",
	RemoteCandidate:    "remote-candidate",
	PeerLeft:           "peer-left",
	Close:              "close",
	NegotiationError:   "negotiation-error",
	PeerUnreachable:    "peer-unreachable",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[k]
}
