package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cubesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("peer: {id: file-id, room: from-file}\nlog: {level: warn}\n"), 0o600))

	opts := &options{}
	root := newRootCmd(opts)
	peer, _, err := root.Find([]string{"peer"})
	require.NoError(t, err)
	require.NoError(t, peer.ParseFlags([]string{
		"--config", path,
		"--room", "lab",
		"--url", "ws://relay:9000/ws",
		"--spin",
	}))
	require.NoError(t, opts.load(peer))

	assert.Equal(t, "file-id", opts.cfg.Peer.ID, "unset flags keep file values")
	assert.Equal(t, "lab", opts.cfg.Peer.Room)
	assert.Equal(t, "ws://relay:9000/ws", opts.cfg.Relay.URL)
	assert.True(t, opts.cfg.Interaction.AutoSpin.Enabled)
	assert.Equal(t, "warn", opts.cfg.Log.Level)
}

func TestInvalidOverrideIsRejected(t *testing.T) {
	opts := &options{}
	root := newRootCmd(opts)
	relay, _, err := root.Find([]string{"relay"})
	require.NoError(t, err)
	require.NoError(t, relay.ParseFlags([]string{"--log-level", "loud"}))
	require.Error(t, opts.load(relay))
}
