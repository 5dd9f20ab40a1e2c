package replication

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrTransportUnavailable means the link to the other peers is down. Local
	// writes keep applying and are sent once a link is up again.
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrTransportClosed      = errors.New("transport is closed")
	ErrMalformedMessage     = errors.New("malformed message")
)

// Transport moves opaque frames between this peer and the rest of the room.
// Send is only called from one goroutine at a time.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

type pipeEnd struct {
	in     <-chan []byte
	out    chan<- []byte
	closed chan struct{}
	once   *sync.Once
}

// NewPipe returns two connected in-memory transports. Closing either end closes both.
func NewPipe(buffer int) (Transport, Transport) {
	ab := make(chan []byte, buffer)
	ba := make(chan []byte, buffer)
	closed := make(chan struct{})
	once := &sync.Once{}
	return &pipeEnd{in: ba, out: ab, closed: closed, once: once},
		&pipeEnd{in: ab, out: ba, closed: closed, once: once}
}

func (p *pipeEnd) Send(ctx context.Context, data []byte) error {
	frame := make([]byte, len(data))
	copy(frame, data)

	select {
	case <-p.closed:
		return ErrTransportClosed
	default:
	}
	select {
	case p.out <- frame:
		return nil
	case <-p.closed:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-p.in:
		return data, nil
	case <-p.closed:
		return nil, ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
