package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// ServerConfig holds the signaling server's configuration.
type ServerConfig struct {
	ListenAddr      string `env:"WARPCALL_ADDR" envDefault:":8080"`
	RoomCapacity    int    `env:"WARPCALL_ROOM_CAPACITY" envDefault:"2"`
	SendBuffer      int    `env:"WARPCALL_SEND_BUFFER" envDefault:"256"`
	MaxMessageBytes int64  `env:"WARPCALL_MAX_MESSAGE_BYTES" envDefault:"65536"`
}

// ServerOptions carries flag overrides. Nil fields were not set on the
// command line.
type ServerOptions struct {
	ListenAddr   *string
	RoomCapacity *int
}

// LoadServer parses the environment and then applies flag overrides.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	return loadServer(env.Options{}, opts)
}

func loadServer(envOpts env.Options, opts ServerOptions) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := env.ParseWithOptions(cfg, envOpts); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if opts.ListenAddr != nil {
		cfg.ListenAddr = *opts.ListenAddr
	}
	if opts.RoomCapacity != nil {
		cfg.RoomCapacity = *opts.RoomCapacity
	}

	if cfg.RoomCapacity < 0 {
		return nil, fmt.Errorf("room capacity must be >= 0 (0 means unlimited), got %d", cfg.RoomCapacity)
	}
	if cfg.SendBuffer <= 0 {
		return nil, fmt.Errorf("send buffer must be positive, got %d", cfg.SendBuffer)
	}
	if cfg.MaxMessageBytes < 1024 {
		return nil, fmt.Errorf("max message bytes must be at least 1024, got %d", cfg.MaxMessageBytes)
	}
	return cfg, nil
}
