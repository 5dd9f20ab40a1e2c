// Package notify is an in-process, typed change notifier.
//
// Key characteristics:
//   - Synchronous delivery: Publish calls handlers in the caller goroutine.
//   - Disposable handles: Subscribe returns a Subscription that can be cancelled
//     directly or through Notifier.Unsubscribe.
//   - No delivery after cancel: a handler whose subscription was cancelled is
//     never invoked by a Publish that starts after Cancel returned.
//   - Handlers must not block; they may subscribe, unsubscribe or publish again.
//   - A panicking handler is logged and skipped; the others still run.
package notify

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/zeusync/cubesync/internal/core/observability/log"
)

// Handler is a callback invoked per published value.
type Handler[T any] func(T)

// Subscription is a registered handler.
type Subscription interface {
	// ID is a unique identifier for this subscription.
	ID() string
	// IsActive reports whether this subscription is still registered.
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}

type subscription[T any] struct {
	id      string
	seq     uint64
	handler Handler[T]
	active  atomic.Bool
	cancel  func()
	once    sync.Once
}

func (s *subscription[T]) ID() string     { return s.id }
func (s *subscription[T]) IsActive() bool { return s.active.Load() }
func (s *subscription[T]) Cancel() error {
	s.once.Do(func() {
		s.active.Store(false)
		if s.cancel != nil {
			s.cancel()
		}
	})
	return nil
}

// Metrics counts deliveries.
type Metrics struct {
	Published         uint64
	DeliveredHandlers uint64
	PanickedHandlers  uint64
	SubscribersActive uint64
}

type options struct {
	logger log.Log
}

// Option configures a Notifier.
type Option func(*options)

// WithLogger sets where handler panics are reported.
func WithLogger(l log.Log) Option {
	return func(o *options) { o.logger = l }
}

// Notifier is safe for concurrent use.
type Notifier[T any] struct {
	mu       sync.RWMutex
	handlers map[string]*subscription[T]
	seq      uint64
	logger   log.Log

	published atomic.Uint64
	delivered atomic.Uint64
	panicked  atomic.Uint64
}

func New[T any](opts ...Option) *Notifier[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNop()
	}
	return &Notifier[T]{
		handlers: make(map[string]*subscription[T]),
		logger:   o.logger,
	}
}

// Subscribe registers handler and returns its handle.
func (n *Notifier[T]) Subscribe(handler Handler[T]) Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.seq++
	id := uuid.NewString()
	s := &subscription[T]{id: id, seq: n.seq, handler: handler}
	s.active.Store(true)
	s.cancel = func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.handlers, id)
	}
	n.handlers[id] = s
	return s
}

// Unsubscribe cancels sub. It is safe to call with nil.
func (n *Notifier[T]) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Cancel()
}

// Publish delivers value to every active handler in subscription order and
// returns how many handlers completed.
func (n *Notifier[T]) Publish(value T) int {
	n.mu.RLock()
	subs := make([]*subscription[T], 0, len(n.handlers))
	for _, s := range n.handlers {
		subs = append(subs, s)
	}
	n.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })

	delivered := 0
	for _, s := range subs {
		if !s.active.Load() {
			continue
		}
		if n.call(s, value) {
			delivered++
		}
	}

	n.published.Add(1)
	n.delivered.Add(uint64(delivered))
	return delivered
}

func (n *Notifier[T]) call(s *subscription[T], value T) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n.panicked.Add(1)
			n.logger.Error("subscriber panicked",
				log.String("subscription", s.id),
				log.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	s.handler(value)
	return true
}

// Len returns the number of registered handlers.
func (n *Notifier[T]) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.handlers)
}

// Close cancels every subscription.
func (n *Notifier[T]) Close() {
	n.mu.Lock()
	subs := make([]*subscription[T], 0, len(n.handlers))
	for _, s := range n.handlers {
		subs = append(subs, s)
	}
	n.mu.Unlock()

	for _, s := range subs {
		_ = s.Cancel()
	}
}

func (n *Notifier[T]) GetMetrics() Metrics {
	return Metrics{
		Published:         n.published.Load(),
		DeliveredHandlers: n.delivered.Load(),
		PanickedHandlers:  n.panicked.Load(),
		SubscribersActive: uint64(n.Len()),
	}
}
