// Package server hosts the websocket relay peers replicate through.
//
// The relay does not interpret frames. Every text or binary frame a member
// sends is forwarded to every other member of the same room.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/cubesync/internal/core/metrics"
	"github.com/zeusync/cubesync/internal/core/observability/log"
	"github.com/zeusync/cubesync/internal/core/transport/websocket"
)

// Config holds relay settings.
type Config struct {
	ListenAddr      string
	DefaultRoom     string
	ShutdownTimeout time.Duration
	Connection      websocket.Config
	// Metrics mounts the Prometheus handler at /metrics.
	Metrics bool
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8080",
		DefaultRoom:     websocket.DefaultRoom,
		ShutdownTimeout: 5 * time.Second,
		Connection:      websocket.DefaultConfig(),
		Metrics:         true,
	}
}

type room struct {
	name    string
	mu      sync.RWMutex
	members map[string]*websocket.Connection
}

func (r *room) others(id string) []*websocket.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*websocket.Connection, 0, len(r.members))
	for mid, m := range r.members {
		if mid != id {
			out = append(out, m)
		}
	}
	return out
}

// Relay fans frames out to the members of a room.
type Relay struct {
	config   Config
	logger   log.Log
	upgrader gws.Upgrader

	mu    sync.Mutex
	rooms map[string]*room

	server  *http.Server
	running int32

	// ctx outlives individual requests; it ends when the relay shuts down.
	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup
}

func NewRelay(config Config, logger log.Log) *Relay {
	if config.DefaultRoom == "" {
		config.DefaultRoom = websocket.DefaultRoom
	}
	if logger == nil {
		logger = log.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		config: config,
		logger: logger.With(log.Component("relay")),
		upgrader: gws.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Peers are browsers and headless clients from any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		rooms:  make(map[string]*room),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler serves /ws, /healthz and, when enabled, /metrics.
func (s *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.config.Metrics {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Relay) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return errors.Wrapf(ErrListenerFailed, "%s: %v", s.config.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Relay) Serve(ctx context.Context, ln net.Listener) error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("relay listening", log.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting connections, closes every member and waits for
// their handlers to return.
func (s *Relay) Shutdown(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}
	s.logger.Info("relay stopping")

	// Hijacked websockets are not tracked by http.Server.
	s.cancel()
	s.mu.Lock()
	for _, r := range s.rooms {
		r.mu.RLock()
		for _, m := range r.members {
			_ = m.CloseWithReason("relay shutting down")
		}
		r.mu.RUnlock()
	}
	s.mu.Unlock()

	err := s.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	if err != nil {
		return errors.Wrap(err, "failed to shutdown relay")
	}
	s.logger.Info("relay stopped")
	return nil
}

// Members reports how many peers are connected to room.
func (s *Relay) Members(name string) int {
	s.mu.Lock()
	r, ok := s.rooms[name]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (s *Relay) join(name string, conn *websocket.Connection) *room {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[name]
	if !ok {
		r = &room{name: name, members: make(map[string]*websocket.Connection)}
		s.rooms[name] = r
		roomsActive.Inc()
	}
	r.mu.Lock()
	r.members[conn.ID()] = conn
	r.mu.Unlock()
	membersActive.Inc()
	return r
}

func (s *Relay) leave(r *room, conn *websocket.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.mu.Lock()
	delete(r.members, conn.ID())
	empty := len(r.members) == 0
	r.mu.Unlock()
	membersActive.Dec()
	if empty && s.rooms[r.name] == r {
		delete(s.rooms, r.name)
		roomsActive.Dec()
	}
}

func (s *Relay) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

func (s *Relay) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	name := r.URL.Query().Get("room")
	if name == "" {
		name = s.config.DefaultRoom
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		upgradeErrors.Inc()
		s.logger.Warn("websocket upgrade failed", log.Error(err))
		return
	}
	conn := websocket.NewConnection(ws, s.config.Connection)

	s.conns.Add(1)
	defer s.conns.Done()

	rm := s.join(name, conn)
	logger := s.logger.With(
		log.String("room", name),
		log.String("member", conn.ID()),
		log.String("remote_addr", conn.RemoteAddr()),
	)
	logger.Info("member joined")
	defer func() {
		s.leave(rm, conn)
		_ = conn.Close()
		logger.Info("member left")
	}()

	for {
		data, err := conn.Receive(s.ctx)
		if err != nil {
			logger.Debug("read loop ended", log.Error(err))
			return
		}
		framesReceived.Inc()
		s.forward(rm, conn.ID(), data, logger)
	}
}

func (s *Relay) forward(r *room, from string, data []byte, logger log.Log) {
	for _, m := range r.others(from) {
		if err := m.Send(s.ctx, data); err != nil {
			forwardErrors.Inc()
			logger.Warn("dropping member after failed write",
				log.String("to", m.ID()),
				log.Error(err),
			)
			// Its own handler removes it from the room.
			_ = m.Close()
			continue
		}
		framesForwarded.Inc()
	}
}
