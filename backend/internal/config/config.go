package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Default configuration values
const (
	DefaultAddr       = ":8080"
	DefaultReadLimit  = 64 * 1024
	DefaultSendBuffer = 256
)

// Config holds the relay's configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// ReadLimit caps a single inbound frame in bytes.
	ReadLimit int64

	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int

	// AllowedOrigins restricts websocket upgrades by Origin header. Empty
	// allows every origin.
	AllowedOrigins []string
}

// Load reads configuration with the following priority:
// 1. command line flags - highest priority
// 2. environment variables (a .env file in the working directory is loaded first)
// 3. hardcoded defaults - lowest priority
//
// Usage and flag errors are printed to stderr. -h returns flag.ErrHelp.
func Load(args []string) (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()
	return load(args, os.Getenv, os.Stderr)
}

func load(args []string, getenv func(string) string, usage io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("warpcall-relay", flag.ContinueOnError)
	fs.SetOutput(usage)
	addr := fs.String("addr", "", "listen address (env ADDR or PORT)")
	readLimit := fs.Int64("read-limit", 0, "max inbound frame size in bytes (env READ_LIMIT)")
	sendBuffer := fs.Int("send-buffer", 0, "per-connection outbound queue length (env SEND_BUFFER)")
	origins := fs.String("allowed-origins", "", "comma separated list of allowed origins (env ALLOWED_ORIGINS)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Listen address: flag > ADDR > PORT > default
	cfg.Addr = *addr
	if cfg.Addr == "" {
		cfg.Addr = getenv("ADDR")
	}
	if cfg.Addr == "" {
		if port := getenv("PORT"); port != "" {
			cfg.Addr = ":" + port
		}
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	cfg.ReadLimit = *readLimit
	if cfg.ReadLimit == 0 {
		v, err := envInt(getenv, "READ_LIMIT", DefaultReadLimit)
		if err != nil {
			return nil, err
		}
		cfg.ReadLimit = int64(v)
	}

	cfg.SendBuffer = *sendBuffer
	if cfg.SendBuffer == 0 {
		v, err := envInt(getenv, "SEND_BUFFER", DefaultSendBuffer)
		if err != nil {
			return nil, err
		}
		cfg.SendBuffer = v
	}

	list := *origins
	if list == "" {
		list = getenv("ALLOWED_ORIGINS")
	}
	cfg.AllowedOrigins = splitList(list)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ReadLimit <= 0 {
		return fmt.Errorf("read limit must be positive, got %d", c.ReadLimit)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send buffer must be positive, got %d", c.SendBuffer)
	}
	return nil
}

func envInt(getenv func(string) string, key string, def int) (int, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
