package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/dns"
)

// ConnectionContext bundles one signaling connection and the agent on it.
type ConnectionContext struct {
	Client *call.Client
	Agent  *call.Agent
	Config *config.Config
}

func NewConnectionContext(ctx context.Context, cfg *config.Config, opts call.Options) (*ConnectionContext, error) {
	client, err := call.Dial(ctx, cfg.ServerURL, call.DialOptions{
		Msgpack:  cfg.Msgpack,
		Resolver: dns.NewResolver(),
		Logger:   slog.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to server: %w", err)
	}

	opts.Identity = cfg.Identity
	opts.NewEngine = call.PeerEngines(cfg, slog.Default())
	opts.Logger = slog.Default()

	return &ConnectionContext{
		Client: client,
		Agent:  call.NewAgent(client, opts),
		Config: cfg,
	}, nil
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
