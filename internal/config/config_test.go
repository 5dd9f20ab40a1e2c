package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/cubesync/internal/core/observability/log"
)

func TestDefaultIsValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "r3f-yjs-demo", cfg.Peer.Room)
	assert.Equal(t, 8.0, cfg.Interaction.Bounds.MaxX)
	assert.Equal(t, -5.0, cfg.Interaction.Bounds.MinY)
	assert.False(t, cfg.Interaction.AutoSpin.Enabled)
	assert.InDelta(t, 0.17453292519943295, cfg.Interaction.RotationStep, 1e-15)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cubesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
peer:
  id: alice
  room: lab
relay:
  url: wss://relay.example.com/ws
  reconnect_interval: 500ms
  max_message_size: 4096
interaction:
  bounds: {min_x: -2, max_x: 2, min_y: -1, max_y: 1}
  auto_spin:
    enabled: true
    rate: [0, 1, 0]
    interval: 10ms
log:
  level: debug
  encoding: console
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Peer.ID)
	assert.Equal(t, "lab", cfg.Peer.Room)
	assert.Equal(t, "wss://relay.example.com/ws", cfg.Relay.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Relay.ReconnectInterval)
	assert.Equal(t, int64(4096), cfg.Relay.Connection.MaxMessageSize)
	assert.Equal(t, 10*time.Second, cfg.Relay.Connection.WriteTimeout, "untouched keys keep defaults")
	assert.Equal(t, 2.0, cfg.Interaction.Bounds.MaxX)
	assert.True(t, cfg.Interaction.AutoSpin.Enabled)
	assert.Equal(t, []float64{0, 1, 0}, cfg.Interaction.AutoSpin.Rate)

	lc := cfg.LogConfig()
	assert.Equal(t, log.LevelDebug, lc.Level)
	assert.Equal(t, "console", lc.Encoding)
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "peer: {nickname: bob}",
		"bad level":         "log: {level: loud}",
		"bad encoding":      "log: {encoding: xml}",
		"http url":          "relay: {url: http://127.0.0.1:8080/ws}",
		"zero reconnect":    "relay: {reconnect_interval: 0s}",
		"inverted bounds":   "interaction: {bounds: {min_x: 3, max_x: -3, min_y: -5, max_y: 5}}",
		"negative step":     "interaction: {rotation_step: -1}",
		"bad spin rate":     "interaction: {auto_spin: {enabled: true, rate: [1, 2]}}",
		"negative max size": "relay: {max_message_size: -1}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(doc))
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestDecodeEmptyDocument(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default().Relay.URL, cfg.Relay.URL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
