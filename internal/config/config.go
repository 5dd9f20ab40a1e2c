// Package config loads the YAML configuration shared by the relay and peer
// commands.
package config

import (
	"bytes"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/cubesync/internal/core/interaction"
	"github.com/zeusync/cubesync/internal/core/observability/log"
	"github.com/zeusync/cubesync/internal/core/transport/websocket"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Peer struct {
	// ID names this replica in causal stamps. Empty means a random uuid.
	ID   string `yaml:"id"`
	Room string `yaml:"room"`
}

type Relay struct {
	URL               string           `yaml:"url"`
	Listen            string           `yaml:"listen"`
	ReconnectInterval time.Duration    `yaml:"reconnect_interval"`
	ShutdownTimeout   time.Duration    `yaml:"shutdown_timeout"`
	DedupeSize        int              `yaml:"dedupe_size"`
	Connection        websocket.Config `yaml:",inline"`
}

type Log struct {
	Level    string   `yaml:"level"`
	Encoding string   `yaml:"encoding"`
	Outputs  []string `yaml:"outputs,omitempty"`
}

type Metrics struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	Peer        Peer               `yaml:"peer"`
	Relay       Relay              `yaml:"relay"`
	Interaction interaction.Config `yaml:"interaction"`
	Log         Log                `yaml:"log"`
	Metrics     Metrics            `yaml:"metrics"`
}

func Default() *Config {
	return &Config{
		Peer: Peer{Room: websocket.DefaultRoom},
		Relay: Relay{
			URL:               "ws://127.0.0.1:8080/ws",
			Listen:            ":8080",
			ReconnectInterval: 2 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			DedupeSize:        1024,
			Connection:        websocket.DefaultConfig(),
		},
		Interaction: interaction.DefaultConfig(),
		Log:         Log{Level: "info", Encoding: "json"},
		Metrics:     Metrics{Enabled: true},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Decode parses YAML over the defaults and validates the result. Unknown keys
// are rejected.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(ErrInvalidConfig, "decode: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Interaction.Validate(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "interaction: %v", err)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "log: %v", err)
	}
	switch c.Log.Encoding {
	case "json", "console":
	default:
		return errors.Wrapf(ErrInvalidConfig, "log: unknown encoding %q", c.Log.Encoding)
	}

	u, err := url.Parse(c.Relay.URL)
	if err != nil {
		return errors.Wrapf(ErrInvalidConfig, "relay url: %v", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.Wrapf(ErrInvalidConfig, "relay url %q must use ws or wss", c.Relay.URL)
	}
	if c.Relay.ReconnectInterval <= 0 {
		return errors.Wrap(ErrInvalidConfig, "relay reconnect_interval must be positive")
	}
	if c.Relay.DedupeSize <= 0 {
		return errors.Wrap(ErrInvalidConfig, "relay dedupe_size must be positive")
	}
	if c.Relay.Connection.MaxMessageSize < 0 {
		return errors.Wrap(ErrInvalidConfig, "relay max_message_size must not be negative")
	}
	if c.Relay.Connection.ReadTimeout < 0 || c.Relay.Connection.WriteTimeout < 0 {
		return errors.Wrap(ErrInvalidConfig, "relay timeouts must not be negative")
	}
	if c.Peer.Room == "" {
		c.Peer.Room = websocket.DefaultRoom
	}
	return nil
}

// LogConfig converts the log section for log.NewWithConfig.
func (c *Config) LogConfig() log.Config {
	level, _ := log.ParseLevel(c.Log.Level)
	return log.Config{Level: level, Encoding: c.Log.Encoding, Outputs: c.Log.Outputs}
}
