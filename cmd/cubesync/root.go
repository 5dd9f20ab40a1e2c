package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/cubesync/internal/config"
	"github.com/zeusync/cubesync/internal/core/geom"
	"github.com/zeusync/cubesync/internal/core/observability/log"
	"github.com/zeusync/cubesync/internal/core/transform"
	"github.com/zeusync/cubesync/internal/injector"
)

type options struct {
	configFile string
	cfg        *config.Config

	logLevel string
	peerID   string
	room     string
	relayURL string
	listen   string
	autoSpin bool
	position []float64
	rotation []float64
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "cubesync",
		Short:         "Collaborative 3D transform sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "load configuration from a YAML file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")
	root.PersistentFlags().StringVar(&opts.room, "room", "", "override peer.room")

	root.AddCommand(newRelayCmd(opts), newPeerCmd(opts))
	return root
}

// load reads the config file and applies the flags the user set explicitly.
func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("room") {
		cfg.Peer.Room = o.room
	}
	if flags.Changed("id") {
		cfg.Peer.ID = o.peerID
	}
	if flags.Changed("url") {
		cfg.Relay.URL = o.relayURL
	}
	if flags.Changed("listen") {
		cfg.Relay.Listen = o.listen
	}
	if flags.Changed("spin") {
		cfg.Interaction.AutoSpin.Enabled = o.autoSpin
	}
	if err = cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

func newRelayCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the websocket relay peers replicate through",
		RunE: func(cmd *cobra.Command, _ []string) error {
			relay, cleanup, err := injector.InitializeRelay(opts.cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			return relay.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", "", "override relay.listen")
	return cmd
}

func newPeerCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Join a room as a headless peer and log the shared transform",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPeer(cmd.Context(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.peerID, "id", "", "override peer.id")
	flags.StringVar(&opts.relayURL, "url", "", "override relay.url")
	flags.BoolVar(&opts.autoSpin, "spin", false, "override interaction.auto_spin.enabled")
	flags.Float64SliceVar(&opts.position, "position", nil, "write this position once connected, as x,y,z")
	flags.Float64SliceVar(&opts.rotation, "rotation", nil, "write this Euler XYZ rotation once connected, as x,y,z")
	return cmd
}

func runPeer(ctx context.Context, opts *options) error {
	s, cleanup, err := injector.InitializeSession(opts.cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	logger := log.Provide().With(log.Component("peer"), log.String("peer", s.ID()))
	sub := s.Store().Subscribe(func(c transform.Change) {
		if c.Origin != transform.OriginRemote {
			return
		}
		logger.Info("transform changed",
			log.String("key", c.Key.String()),
			log.Floats("value", c.Value.Slice()),
			log.String("by", c.Stamp.Peer),
		)
	})
	defer func() { _ = s.Store().Unsubscribe(sub) }()

	writes := map[transform.Key][]float64{
		transform.KeyPosition: opts.position,
		transform.KeyRotation: opts.rotation,
	}
	for _, key := range transform.Keys {
		values := writes[key]
		if values == nil {
			continue
		}
		v, err := geom.TripleFromSlice(values)
		if err != nil {
			return errors.Wrapf(err, "--%s", key)
		}
		if err = s.Store().Set(key, v); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(gctx) })
	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				snap := s.Store().Snapshot()
				logger.Info("state",
					log.Bool("connected", s.Connected()),
					log.Floats("position", snap.Position.Slice()),
					log.Floats("rotation", snap.Rotation.Slice()),
					log.Uint64("digest", s.Store().Digest()),
				)
			}
		}
	})
	return g.Wait()
}
