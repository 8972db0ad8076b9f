package negotiation

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// Session is one negotiation between the local connection and one remote
// peer. It is a value: Step returns a new Session rather than mutating.
type Session struct {
	LocalID  string
	RemoteID string
	State    State

	// RemoteApplied is set once the media engine has applied the remote
	// offer or answer.
	RemoteApplied bool

	// Pending holds remote candidates that arrived before the remote
	// description was applied, in arrival order.
	Pending []json.RawMessage
}

// New returns an Idle session between local and remote.
func New(localID, remoteID string) Session {
	return Session{LocalID: localID, RemoteID: remoteID, State: Idle}
}

// Event is an input to Step.
type Event struct {
	Kind EventKind

	// Description is the offer or answer for Initiate, IncomingCall, Accept
	// and CallAnswered.
	Description json.RawMessage

	// Candidate is set for LocalCandidate and RemoteCandidate.
	Candidate json.RawMessage

	// Err describes NegotiationError and PeerUnreachable.
	Err error
}

// Output lists the side effects a transition asks for, to be carried out in
// this order: apply SetRemote, apply Apply candidates, send Send frames.
type Output struct {
	Send      []*signaling.Message
	SetRemote json.RawMessage
	Apply     []json.RawMessage
}

// TransitionError reports an event the current state does not accept. It
// unwraps to signaling.ErrInvalidTransition.
type TransitionError struct {
	State State
	Event EventKind
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v in state %v: %v", e.Event, e.State, signaling.ErrInvalidTransition)
}

func (e *TransitionError) Unwrap() error {
	return signaling.ErrInvalidTransition
}

// Step applies ev to s. On error the returned session equals s and the output
// is empty; the event should be logged and dropped.
func Step(s Session, ev Event) (Session, Output, error) {
	var out Output

	if s.State.Terminal() {
		if ev.Kind == Close || ev.Kind == PeerLeft {
			return s, out, nil
		}
		return s, out, &TransitionError{State: s.State, Event: ev.Kind}
	}

	next := s
	switch ev.Kind {
	case Initiate:
		if s.State != Idle {
			return s, out, &TransitionError{State: s.State, Event: ev.Kind}
		}
		next.State = OfferSent
		out.Send = append(out.Send, &signaling.Message{
			Type:  signaling.MessageTypeCall,
			To:    s.RemoteID,
			Offer: ev.Description,
		})

	case IncomingCall:
		if s.State != Idle {
			return s, out, &TransitionError{State: s.State, Event: ev.Kind}
		}
		next.State = OfferReceived
		out.SetRemote = ev.Description

	case CallAnswered:
		if s.State != OfferSent {
			return s, out, &TransitionError{State: s.State, Event: ev.Kind}
		}
		next.State = AnswerReceived
		out.SetRemote = ev.Description

	case RemoteApplied:
		if s.RemoteApplied || (s.State != OfferReceived && s.State != AnswerReceived) {
			return s, out, &TransitionError{State: s.State, Event: ev.Kind}
		}
		next.RemoteApplied = true
		out.Apply = s.Pending
		next.Pending = nil

	case Accept:
		if s.State != OfferReceived || !s.RemoteApplied {
			return s, out, &TransitionError{State: s.State, Event: ev.Kind}
		}
		next.State = AnswerSent
		out.Send = append(out.Send, &signaling.Message{
			Type:   signaling.MessageTypeAnswer,
			To:     s.RemoteID,
			Answer: ev.Description,
		})

	case TransportConnected:
		if !s.RemoteApplied || (s.State != AnswerSent && s.State != AnswerReceived) {
			return s, out, &TransitionError{State: s.State, Event: ev.Kind}
		}
		next.State = Connected

	case LocalCandidate:
		out.Send = append(out.Send, &signaling.Message{
			Type:      signaling.MessageTypeCandidate,
			To:        s.RemoteID,
			Candidate: ev.Candidate,
		})

	case RemoteCandidate:
		if s.RemoteApplied {
			out.Apply = []json.RawMessage{ev.Candidate}
		} else {
			// Clip so earlier Session values never share the backing array.
			next.Pending = append(slices.Clip(s.Pending), ev.Candidate)
		}

	case PeerLeft:
		next.State = Closed
		next.Pending = nil

	case Close:
		if s.State != Idle {
			out.Send = append(out.Send, &signaling.Message{
				Type: signaling.MessageTypeHangup,
				To:   s.RemoteID,
			})
		}
		next.State = Closed
		next.Pending = nil

	case NegotiationError, PeerUnreachable:
		next.State = Failed
		next.Pending = nil

	default:
		return s, out, &TransitionError{State: s.State, Event: ev.Kind}
	}

	return next, out, nil
}
