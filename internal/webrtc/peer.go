package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/internal/config"
)

// Peer wraps a pion PeerConnection carrying one audio and one video track.
// Descriptions and candidates cross its API as the JSON documents browsers
// exchange (RTCSessionDescriptionInit, RTCIceCandidateInit).
type Peer struct {
	pc    *pion.PeerConnection
	log   *slog.Logger
	Audio *pion.TrackLocalStaticSample
	Video *pion.TrackLocalStaticSample

	mu          sync.Mutex
	onCandidate func(json.RawMessage)
	onConnected func()
	onFailed    func(error)
}

// NewPeer builds a PeerConnection from cfg's ICE settings and attaches local
// audio/video tracks so offers and answers carry both media sections.
func NewPeer(cfg *config.Config, log *slog.Logger) (*Peer, error) {
	return NewPeerWithAPI(nil, cfg, log)
}

// NewPeerWithAPI is NewPeer on a caller-supplied API, e.g. one bound to a
// virtual network. A nil api uses pion's defaults.
func NewPeerWithAPI(api *pion.API, cfg *config.Config, log *slog.Logger) (*Peer, error) {
	pc, err := newPeerConnection(api, cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	p := &Peer{pc: pc, log: log}

	p.Audio, err = pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}, "audio", "warpcall")
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	p.Video, err = pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8}, "video", "warpcall")
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create video track: %w", err)
	}
	for _, track := range []pion.TrackLocal{p.Audio, p.Video} {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
	}

	p.setupHandlers()
	return p, nil
}

// NewAPI returns an API with the default codecs registered and se applied.
func NewAPI(se pion.SettingEngine) (*pion.API, error) {
	media := &pion.MediaEngine{}
	if err := media.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	return pion.NewAPI(pion.WithSettingEngine(se), pion.WithMediaEngine(media)), nil
}

// iceConfiguration lists STUN and, when configured, TURN servers. The relay
// policy applies only when TURN servers are set.
func iceConfiguration(cfg *config.Config) pion.Configuration {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

func newPeerConnection(api *pion.API, cfg *config.Config) (*pion.PeerConnection, error) {
	pcConfig := iceConfiguration(cfg)

	var pc *pion.PeerConnection
	var err error
	if api != nil {
		pc, err = api.NewPeerConnection(pcConfig)
	} else {
		pc, err = pion.NewPeerConnection(pcConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return pc, nil
}

func (p *Peer) setupHandlers() {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			p.log.Error("encode local candidate", "err", err)
			return
		}
		p.mu.Lock()
		fn := p.onCandidate
		p.mu.Unlock()
		if fn != nil {
			fn(data)
		}
	})

	p.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		p.log.Debug("peer connection state", "state", state.String())

		p.mu.Lock()
		connected, failed := p.onConnected, p.onFailed
		p.mu.Unlock()

		switch state {
		case pion.PeerConnectionStateConnected:
			if connected != nil {
				connected()
			}
		case pion.PeerConnectionStateFailed:
			if failed != nil {
				failed(fmt.Errorf("peer connection failed"))
			}
		}
	})

	p.pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		p.log.Info("remote track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
	})
}

// OnLocalCandidate registers fn for candidates in gathering order.
func (p *Peer) OnLocalCandidate(fn func(json.RawMessage)) {
	p.mu.Lock()
	p.onCandidate = fn
	p.mu.Unlock()
}

// OnConnected registers fn for the transport reaching connected.
func (p *Peer) OnConnected(fn func()) {
	p.mu.Lock()
	p.onConnected = fn
	p.mu.Unlock()
}

// OnFailed registers fn for the transport failing.
func (p *Peer) OnFailed(fn func(error)) {
	p.mu.Lock()
	p.onFailed = fn
	p.mu.Unlock()
}

// CreateOffer creates an offer, sets it locally and returns it.
func (p *Peer) CreateOffer(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return encodeDescription(*p.pc.LocalDescription())
}

// CreateAnswer answers the applied remote offer and sets the answer locally.
func (p *Peer) CreateAnswer(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return encodeDescription(*p.pc.LocalDescription())
}

// SetRemoteDescription applies a remote offer or answer.
func (p *Peer) SetRemoteDescription(ctx context.Context, raw json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	desc, err := decodeDescription(raw)
	if err != nil {
		return err
	}
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// AddICECandidate applies one remote candidate.
func (p *Peer) AddICECandidate(raw json.RawMessage) error {
	init, err := decodeCandidate(raw)
	if err != nil {
		return err
	}
	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

func (p *Peer) Close() error {
	return p.pc.Close()
}
