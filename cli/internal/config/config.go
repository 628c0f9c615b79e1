package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BioHazard786/warpcall/internal/protocol"
)

// Default configuration values
const (
	DefaultDomain        = "localhost:8080"
	DefaultSTUN          = "stun:stun.l.google.com:19302"
	DefaultTURN          = "" // Optional, empty by default
	DefaultAnswerTimeout = 30 * time.Second
)

// Config holds application configuration
type Config struct {
	// Domain is the relay's host[:port]
	Domain string

	// Insecure selects ws:// and http:// instead of wss:// and https://
	Insecure bool

	// WebSocketURL is constructed from domain and codec
	WebSocketURL string

	// Codec is the envelope encoding negotiated with the relay
	Codec string

	// Name is the display name announced after joining, empty keeps the id
	Name string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN candidates
	ForceRelay bool

	// AnswerTimeout bounds how long an offer waits for its answer
	AnswerTimeout time.Duration
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain        string
	Insecure      bool
	Codec         string
	Name          string
	STUNServer    string
	TURNServer    string
	TURNUser      string
	TURNPass      string
	ForceRelay    bool
	AnswerTimeout time.Duration
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	return load(opts, os.Getenv)
}

func load(opts Options, getenv func(string) string) (*Config, error) {
	pick := func(flag, env, def string) string {
		if flag != "" {
			return flag
		}
		if v := getenv(env); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Domain:     pick(opts.Domain, "DOMAIN", DefaultDomain),
		Codec:      pick(opts.Codec, "WARPCALL_CODEC", protocol.CodecJSON),
		Name:       strings.TrimSpace(pick(opts.Name, "WARPCALL_NAME", "")),
		STUNServer: pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer: pick(opts.TURNServer, "TURN_SERVER", DefaultTURN),
		TURNUser:   pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:   pick(opts.TURNPass, "TURN_PASSWORD", ""),
		ForceRelay: opts.ForceRelay,
		Insecure:   opts.Insecure,
	}

	if !cfg.Insecure {
		insecure, err := envBool(getenv, "WARPCALL_INSECURE")
		if err != nil {
			return nil, err
		}
		cfg.Insecure = insecure
	}

	cfg.AnswerTimeout = opts.AnswerTimeout
	if cfg.AnswerTimeout == 0 {
		if raw := getenv("WARPCALL_ANSWER_TIMEOUT"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid WARPCALL_ANSWER_TIMEOUT %q: %w", raw, err)
			}
			cfg.AnswerTimeout = d
		}
	}
	if cfg.AnswerTimeout <= 0 {
		cfg.AnswerTimeout = DefaultAnswerTimeout
	}

	if _, err := protocol.CodecByName(cfg.Codec); err != nil {
		return nil, err
	}
	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	// Construct WebSocket URL
	u := url.URL{Scheme: "wss", Host: cfg.Domain, Path: "/ws"}
	if cfg.Insecure {
		u.Scheme = "ws"
	}
	if cfg.Codec != protocol.CodecJSON {
		u.RawQuery = url.Values{"codec": {cfg.Codec}}.Encode()
	}
	cfg.WebSocketURL = u.String()

	return cfg, nil
}

func envBool(getenv func(string) string, key string) (bool, error) {
	raw := getenv(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

// GetRoomLink returns the shareable URL for a room ID
func (c *Config) GetRoomLink(roomID protocol.RoomID) string {
	scheme := "https"
	if c.Insecure {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/r/%s", scheme, c.Domain, roomID)
}

// ParseRoom accepts a bare room ID or a room link and returns the room ID.
func ParseRoom(arg string) (protocol.RoomID, error) {
	arg = strings.TrimSpace(arg)
	if strings.Contains(arg, "/") {
		u, err := url.Parse(arg)
		if err != nil {
			return "", fmt.Errorf("invalid room link: %w", err)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		arg = parts[len(parts)-1]
	}

	id := protocol.NormalizeRoomID(arg)
	if !protocol.ValidRoomID(id) {
		return "", fmt.Errorf("invalid room ID %q: want %d characters from A-Z and 0-9", arg, protocol.RoomIDLength)
	}
	return id, nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
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
