package webrtc

import (
	"encoding/json"
	"fmt"

	pion "github.com/pion/webrtc/v4"
)

// sdp mirrors RTCSessionDescriptionInit.
type sdp struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func (s sdp) toPion() (pion.SessionDescription, error) {
	var t pion.SDPType
	switch s.Type {
	case "offer":
		t = pion.SDPTypeOffer
	case "answer":
		t = pion.SDPTypeAnswer
	default:
		return pion.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", s.Type)
	}
	if s.SDP == "" {
		return pion.SessionDescription{}, fmt.Errorf("empty %s sdp", s.Type)
	}
	return pion.SessionDescription{Type: t, SDP: s.SDP}, nil
}

func encodeDescription(desc pion.SessionDescription) (json.RawMessage, error) {
	return json.Marshal(sdp{Type: desc.Type.String(), SDP: desc.SDP})
}

func decodeDescription(raw json.RawMessage) (pion.SessionDescription, error) {
	var s sdp
	if err := json.Unmarshal(raw, &s); err != nil {
		return pion.SessionDescription{}, fmt.Errorf("parse session description: %w", err)
	}
	return s.toPion()
}

func decodeCandidate(raw json.RawMessage) (pion.ICECandidateInit, error) {
	var init pion.ICECandidateInit
	if err := json.Unmarshal(raw, &init); err != nil {
		return pion.ICECandidateInit{}, fmt.Errorf("parse ICE candidate: %w", err)
	}
	if init.Candidate == "" {
		return pion.ICECandidateInit{}, fmt.Errorf("parse ICE candidate: empty candidate")
	}
	return init, nil
}
