// Package websocket carries replication frames over a gorilla websocket.
package websocket

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/cubesync/internal/core/replication"
)

var _ replication.Transport = (*Connection)(nil)

// DefaultRoom is the room joined when none is given.
const DefaultRoom = "r3f-yjs-demo"

// Config holds per-connection limits.
type Config struct {
	// ReadTimeout is how long the peer may stay silent. Pongs count as activity.
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// PingInterval must be shorter than ReadTimeout. Zero derives it from ReadTimeout.
	PingInterval     time.Duration `yaml:"ping_interval"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	MaxMessageSize   int64         `yaml:"max_message_size"`
}

func DefaultConfig() Config {
	return Config{
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   64 * 1024,
	}
}

func (c Config) pingInterval() time.Duration {
	if c.PingInterval > 0 {
		return c.PingInterval
	}
	return c.ReadTimeout * 9 / 10
}

// Connection is one websocket link. Send may be called concurrently with
// Receive; writes are serialized internally.
type Connection struct {
	id     string
	conn   *websocket.Conn
	config Config

	closed       int32
	done         chan struct{}
	lastActivity int64

	bytesSent     uint64
	bytesReceived uint64

	writeMu sync.Mutex
}

// Dial connects to the relay at rawURL and joins room.
func Dial(ctx context.Context, rawURL, room string, cfg Config) (*Connection, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse relay url %q", rawURL)
	}
	if room == "" {
		room = DefaultRoom
	}
	q := u.Query()
	q.Set("room", room)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", u.Redacted())
	}
	return NewConnection(conn, cfg), nil
}

// NewConnection wraps an established websocket and starts its keepalive.
func NewConnection(conn *websocket.Conn, cfg Config) *Connection {
	c := &Connection{
		id:           uuid.NewString(),
		conn:         conn,
		config:       cfg,
		done:         make(chan struct{}),
		lastActivity: time.Now().Unix(),
	}
	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	if cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		conn.SetPongHandler(func(string) error {
			c.touch()
			return conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		})
		go c.keepAlive(cfg.pingInterval())
	}
	return c
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Send writes one frame.
func (c *Connection) Send(ctx context.Context, data []byte) error {
	if c.IsClosed() {
		return replication.ErrTransportClosed
	}
	if c.config.MaxMessageSize > 0 && int64(len(data)) > c.config.MaxMessageSize {
		return errors.Errorf("message size %d exceeds limit %d", len(data), c.config.MaxMessageSize)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(c.writeDeadline(ctx))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if c.IsClosed() {
			return replication.ErrTransportClosed
		}
		return errors.Wrap(err, "failed to write message")
	}

	atomic.AddUint64(&c.bytesSent, uint64(len(data)))
	c.touch()
	return nil
}

func (c *Connection) writeDeadline(ctx context.Context) time.Time {
	var deadline time.Time
	if c.config.WriteTimeout > 0 {
		deadline = time.Now().Add(c.config.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

// Receive blocks for the next text or binary frame. Control frames are
// handled by the underlying connection.
func (c *Connection) Receive(ctx context.Context) ([]byte, error) {
	if c.IsClosed() {
		return nil, replication.ErrTransportClosed
	}

	// Cancelling ctx interrupts the blocked read by expiring its deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if c.IsClosed() {
				return nil, replication.ErrTransportClosed
			}
			return nil, errors.Wrap(err, "failed to read message")
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		atomic.AddUint64(&c.bytesReceived, uint64(len(data)))
		c.touch()
		if c.config.ReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}
		return data, nil
	}
}

func (c *Connection) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, c.controlDeadline())
			c.writeMu.Unlock()
			if err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

func (c *Connection) controlDeadline() time.Time {
	if c.config.WriteTimeout > 0 {
		return time.Now().Add(c.config.WriteTimeout)
	}
	return time.Now().Add(time.Second)
}

func (c *Connection) touch() {
	atomic.StoreInt64(&c.lastActivity, time.Now().Unix())
}

func (c *Connection) LastActivity() time.Time {
	return time.Unix(atomic.LoadInt64(&c.lastActivity), 0)
}

func (c *Connection) BytesSent() uint64 {
	return atomic.LoadUint64(&c.bytesSent)
}

func (c *Connection) BytesReceived() uint64 {
	return atomic.LoadUint64(&c.bytesReceived)
}

func (c *Connection) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// Close sends a close frame and releases the socket. It is idempotent.
func (c *Connection) Close() error {
	return c.CloseWithReason("connection closed")
}

func (c *Connection) CloseWithReason(reason string) error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	close(c.done)

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, c.controlDeadline())
	c.writeMu.Unlock()

	return c.conn.Close()
}
