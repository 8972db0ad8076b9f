package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Default client configuration values
const (
	DefaultServerURL = "ws://localhost:8080/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
)

// Config holds the calling client's configuration
type Config struct {
	// ServerURL is the signaling websocket endpoint
	ServerURL string

	// Identity is announced to peers on join
	Identity string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN candidates
	ForceRelay bool

	// Msgpack selects the binary signaling codec
	Msgpack bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	ServerURL  string
	Identity   string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	Msgpack    bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	return load(os.LookupEnv, opts)
}

func load(lookup func(string) (string, bool), opts Options) (*Config, error) {
	pick := func(flag, env, fallback string) string {
		if flag != "" {
			return flag
		}
		if v, ok := lookup(env); ok && v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		ServerURL:  pick(opts.ServerURL, "WARPCALL_SERVER", DefaultServerURL),
		Identity:   pick(opts.Identity, "WARPCALL_IDENTITY", defaultIdentity(lookup)),
		STUNServer: pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer: pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:   pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:   pick(opts.TURNPass, "TURN_PASSWORD", ""),
		ForceRelay: opts.ForceRelay,
		Msgpack:    opts.Msgpack,
	}

	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("server URL must use ws:// or wss://, got %q", cfg.ServerURL)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

func defaultIdentity(lookup func(string) (string, bool)) string {
	if u, ok := lookup("USER"); ok && u != "" {
		return u
	}
	return "anonymous"
}

// HTTPBaseURL maps the websocket endpoint to the server's HTTP origin.
func (c *Config) HTTPBaseURL() string {
	base := strings.TrimSuffix(c.ServerURL, "/ws")
	base = strings.Replace(base, "wss://", "https://", 1)
	return strings.Replace(base, "ws://", "http://", 1)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured. A bare host expands
// to the usual UDP, TCP and TLS endpoints.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.Contains(c.TURNServer, "?") || strings.Count(c.TURNServer, ":") > 1 {
		return []string{c.TURNServer}
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turns:"), "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
