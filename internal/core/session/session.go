// Package session owns everything one collaborating peer needs: its causal
// clock, the transform replica, the replicator and the interaction controller.
// Nothing here is global; a session is created once and torn down by Close.
package session

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/cubesync/internal/config"
	"github.com/zeusync/cubesync/internal/core/clock"
	"github.com/zeusync/cubesync/internal/core/interaction"
	"github.com/zeusync/cubesync/internal/core/observability/log"
	"github.com/zeusync/cubesync/internal/core/replication"
	"github.com/zeusync/cubesync/internal/core/transform"
	"github.com/zeusync/cubesync/internal/core/transport/websocket"
)

var ErrClosed = errors.New("session is closed")

// Dialer opens a transport to the rest of the room.
type Dialer func(ctx context.Context) (replication.Transport, error)

type Option func(*Session)

// WithClock replaces the wall clock used for stamps, reconnect waits and auto spin.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.wall = c }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dial = d }
}

// WithCamera sets the camera rotations are relative to.
func WithCamera(c interaction.Camera) Option {
	return func(s *Session) { s.camera = c }
}

// WithControls sets the camera controls disabled during drags.
func WithControls(c interaction.CameraControls) Option {
	return func(s *Session) { s.controls = c }
}

// DefaultFieldOfView is the vertical field of view of the scene camera, 50 degrees.
const DefaultFieldOfView = 50 * math.Pi / 180

// DefaultCamera looks at the origin from (4, 4, 6), the scene's initial view.
func DefaultCamera() interaction.Camera {
	cam, _ := interaction.NewLookAtCamera(mgl64.Vec3{4, 4, 6}, mgl64.Vec3{}, mgl64.Vec3{0, 1, 0})
	return cam
}

type Session struct {
	id     string
	room   string
	cfg    *config.Config
	logger log.Log

	wall     clockwork.Clock
	dial     Dialer
	camera   interaction.Camera
	controls interaction.CameraControls

	clock      *clock.Clock
	store      *transform.Store
	replicator *replication.Replicator
	controller *interaction.Controller

	connected int32
	closed    int32
	closeOnce sync.Once

	mu   sync.Mutex
	stop context.CancelFunc
}

func New(cfg *config.Config, logger log.Log, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Session{
		id:   cfg.Peer.ID,
		room: cfg.Peer.Room,
		cfg:  cfg,
		wall: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.camera == nil {
		s.camera = DefaultCamera()
	}
	if s.dial == nil {
		s.dial = func(ctx context.Context) (replication.Transport, error) {
			return websocket.Dial(ctx, cfg.Relay.URL, s.room, cfg.Relay.Connection)
		}
	}
	s.logger = logger.With(log.Component("session"), log.String("peer", s.id), log.String("room", s.room))

	s.clock = clock.New(s.id, s.wall)
	s.store = transform.New(s.clock,
		transform.WithBounds(cfg.Interaction.Bounds),
		transform.WithLogger(logger),
	)
	repl, err := replication.New(s.store, replication.Config{DedupeSize: cfg.Relay.DedupeSize}, logger)
	if err != nil {
		s.store.Close()
		return nil, err
	}
	s.replicator = repl
	s.controller = interaction.NewController(s.store, s.camera, s.controls, cfg.Interaction, logger)

	s.logger.Info("session created")
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Room() string {
	return s.room
}

func (s *Session) Store() *transform.Store {
	return s.store
}

func (s *Session) Controller() *interaction.Controller {
	return s.controller
}

func (s *Session) Replicator() *replication.Replicator {
	return s.replicator
}

// Connected reports whether a replication link is currently up.
func (s *Session) Connected() bool {
	return atomic.LoadInt32(&s.connected) == 1
}

// Run keeps the session connected until ctx is done or Close is called. A
// lost or refused link is retried every reconnect interval; local writes keep
// applying meanwhile. Auto spin runs alongside when enabled.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if atomic.LoadInt32(&s.closed) == 1 {
		s.mu.Unlock()
		return ErrClosed
	}
	s.stop = cancel
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.controller.RunAutoSpin(gctx, s.wall)
	})
	g.Go(func() error {
		return s.replicate(gctx)
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Session) replicate(ctx context.Context) error {
	interval := s.cfg.Relay.ReconnectInterval
	for attempt := 1; ; attempt++ {
		t, err := s.dial(ctx)
		if err == nil {
			atomic.StoreInt32(&s.connected, 1)
			s.logger.Info("connected", log.Int("attempt", attempt))
			attempt = 0
			err = s.replicator.Run(ctx, t)
			atomic.StoreInt32(&s.connected, 0)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if atomic.LoadInt32(&s.closed) == 1 {
			return ErrClosed
		}
		s.logger.Warn("replication link unavailable, retrying",
			log.Error(err),
			log.Duration("in", interval),
			log.Int("pending", s.replicator.Pending()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wall.After(interval):
		}
	}
}

// Close stops Run, detaches the replicator, ends any drag and closes the
// store. Later writes fail with transform.ErrClosed.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		atomic.StoreInt32(&s.closed, 1)
		if s.stop != nil {
			s.stop()
		}
		s.mu.Unlock()

		s.controller.PointerUp()
		err = s.replicator.Close()
		s.store.Close()
		s.logger.Info("session closed")
	})
	return err
}
