// Package call drives calls from the dialing side: a websocket signaling
// client, and an Agent that runs one negotiation session per remote peer and
// carries out what each transition asks for on a media engine.
package call

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/BioHazard786/Warpcall/internal/webrtc"
)

// Engine is the media side of one call. Descriptions and candidates are the
// opaque JSON documents the relay forwards.
type Engine interface {
	OnLocalCandidate(fn func(json.RawMessage))
	OnConnected(fn func())
	OnFailed(fn func(error))

	CreateOffer(ctx context.Context) (json.RawMessage, error)
	CreateAnswer(ctx context.Context) (json.RawMessage, error)
	SetRemoteDescription(ctx context.Context, desc json.RawMessage) error
	AddICECandidate(candidate json.RawMessage) error
	Close() error
}

// EngineFactory creates the engine for a call with remoteID.
type EngineFactory func(remoteID string) (Engine, error)

// PeerEngines returns a factory building pion peers from cfg.
func PeerEngines(cfg *config.Config, log *slog.Logger) EngineFactory {
	return func(remoteID string) (Engine, error) {
		return webrtc.NewPeer(cfg, log.With("peer", remoteID))
	}
}

// Signaler is the agent's view of the relay connection.
type Signaler interface {
	Send(msg *signaling.Message) error
	Incoming() <-chan *signaling.Message
}

var _ Engine = (*webrtc.Peer)(nil)
var _ Signaler = (*Client)(nil)
