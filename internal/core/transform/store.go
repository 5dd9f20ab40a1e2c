// Package transform holds the shared transform of the collaborative object as
// two last-writer-wins registers, position and rotation.
//
// Every register is replaced as a whole triple. When two peers write the same
// key concurrently the write with the larger causal stamp wins everywhere and
// the other is dropped entirely, even if the two writes touched different
// components.
package transform

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/zeusync/cubesync/internal/core/clock"
	"github.com/zeusync/cubesync/internal/core/events/notify"
	"github.com/zeusync/cubesync/internal/core/geom"
	"github.com/zeusync/cubesync/internal/core/observability/log"
)

// Option configures a Store.
type Option func(*Store)

// WithBounds overrides DefaultBounds.
func WithBounds(b Bounds) Option {
	return func(s *Store) { s.bounds = b }
}

// WithLogger sets the logger.
func WithLogger(l log.Log) Option {
	return func(s *Store) { s.logger = l }
}

// Store is the local replica of the shared transform. It is safe for
// concurrent use from the interaction path and the replication callback.
type Store struct {
	clock  *clock.Clock
	bounds Bounds
	logger log.Log

	mu      sync.RWMutex
	entries map[Key]Entry
	closed  bool

	notifier *notify.Notifier[Change]

	// pending holds accepted changes in apply order until a drainer delivers them.
	pendingMu sync.Mutex
	pending   []Change
	draining  bool
}

// New creates an empty replica whose writes are stamped by clk.
func New(clk *clock.Clock, opts ...Option) *Store {
	s := &Store{
		clock:    clk,
		bounds:   DefaultBounds(),
		logger:   log.NewNop(),
		entries:  make(map[Key]Entry, len(Keys)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(log.Component("transform"), log.String("peer", clk.Peer()))
	s.notifier = notify.New[Change](notify.WithLogger(s.logger))
	return s
}

// Peer is the id of the local peer.
func (s *Store) Peer() string {
	return s.clock.Peer()
}

func (s *Store) Bounds() Bounds {
	return s.bounds
}

// Get returns the current local value of key, or the zero triple if it was never written.
func (s *Store) Get(key Key) (geom.Triple, error) {
	if !key.Valid() {
		return geom.Zero, errors.Wrapf(ErrUnknownKey, "get %q", key)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key].Value, nil
}

func (s *Store) Position() geom.Triple {
	v, _ := s.Get(KeyPosition)
	return v
}

func (s *Store) Rotation() geom.Triple {
	v, _ := s.Get(KeyRotation)
	return v
}

// Snapshot reads both registers under one lock.
func (s *Store) Snapshot() Transform {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Transform{
		Position: s.entries[KeyPosition].Value,
		Rotation: s.entries[KeyRotation].Value,
	}
}

// Entries returns a copy of every written register with its stamp.
func (s *Store) Entries() map[Key]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Key]Entry, len(s.entries))
	for k, e := range s.entries {
		out[k] = e
	}
	return out
}

// Set replaces the value of key. Positions are clamped to the store bounds.
// The write is visible to Get before Set returns and is delivered to every
// subscriber, the replication layer included.
func (s *Store) Set(key Key, value geom.Triple) error {
	if !key.Valid() {
		rejectedLocal.Inc()
		return errors.Wrapf(ErrUnknownKey, "set %q", key)
	}
	if err := value.Validate(); err != nil {
		rejectedLocal.Inc()
		return errors.Wrapf(err, "set %s", key)
	}
	if key == KeyPosition {
		value = s.bounds.Clamp(value)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prev := s.entries[key]
	stamp := s.clock.Now()
	s.entries[key] = Entry{Value: value, Stamp: stamp}
	s.enqueue(Change{Key: key, Value: value, Previous: prev.Value, Stamp: stamp, Origin: OriginLocal})
	s.mu.Unlock()

	localWrites.Inc()
	s.drain()
	return nil
}

// ApplyRemote merges a register value received from another peer. The value
// replaces the local one only if its stamp orders after the local stamp;
// otherwise it is discarded whole. It reports whether the value was applied.
func (s *Store) ApplyRemote(key Key, entry Entry) (bool, error) {
	if !key.Valid() {
		rejectedRemote.Inc()
		return false, errors.Wrapf(ErrUnknownKey, "apply %q", key)
	}
	if err := entry.Value.Validate(); err != nil {
		rejectedRemote.Inc()
		return false, errors.Wrapf(err, "apply %s", key)
	}

	s.clock.Observe(entry.Stamp)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	current := s.entries[key]
	if !entry.Stamp.After(current.Stamp) {
		s.mu.Unlock()
		if entry.Stamp != current.Stamp {
			remoteDiscarded.Inc()
			s.logger.Debug("remote write lost",
				log.String("key", key.String()),
				log.String("remote_stamp", entry.Stamp.String()),
				log.String("local_stamp", current.Stamp.String()),
			)
		}
		return false, nil
	}
	s.entries[key] = entry
	s.enqueue(Change{Key: key, Value: entry.Value, Previous: current.Value, Stamp: entry.Stamp, Origin: OriginRemote})
	s.mu.Unlock()

	remoteApplied.Inc()
	s.drain()
	return true, nil
}

// Subscribe registers handler for every accepted change, local or remote.
// Changes reach a given handler in the order they were applied.
func (s *Store) Subscribe(handler func(Change)) notify.Subscription {
	return s.notifier.Subscribe(handler)
}

// Unsubscribe stops deliveries to sub. No change applied after it returns reaches the handler.
func (s *Store) Unsubscribe(sub notify.Subscription) error {
	return s.notifier.Unsubscribe(sub)
}

// Digest hashes every register value and stamp. Replicas holding the same
// state produce the same digest.
func (s *Store) Digest() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := xxhash.New()
	var buf [8]byte
	for _, k := range Keys {
		e := s.entries[k]
		_, _ = h.WriteString(string(k))
		for _, c := range e.Value {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(c))
			_, _ = h.Write(buf[:])
		}
		binary.LittleEndian.PutUint64(buf[:], uint64(e.Stamp.Wall))
		_, _ = h.Write(buf[:])
		binary.LittleEndian.PutUint32(buf[:4], e.Stamp.Logical)
		_, _ = h.Write(buf[:4])
		_, _ = h.WriteString(e.Stamp.Peer)
	}
	return h.Sum64()
}

// Close ends the session: subscriptions are cancelled and further writes fail.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.notifier.Close()
}

// enqueue must be called with s.mu held so the queue order matches apply order.
func (s *Store) enqueue(c Change) {
	s.pendingMu.Lock()
	s.pending = append(s.pending, c)
	s.pendingMu.Unlock()
}

// drain delivers queued changes. Only one goroutine drains at a time; a
// handler that writes to the store re-enters here and returns at once, its
// change being picked up by the outer loop.
func (s *Store) drain() {
	s.pendingMu.Lock()
	if s.draining {
		s.pendingMu.Unlock()
		return
	}
	s.draining = true

	var batch []Change
	finished := false
	// A handler that exits the goroutine leaves the rest of its batch queued
	// for the next drain.
	defer func() {
		if finished {
			return
		}
		s.pendingMu.Lock()
		s.pending = append(batch, s.pending...)
		s.draining = false
		s.pendingMu.Unlock()
	}()

	for len(s.pending) > 0 {
		batch = s.pending
		s.pending = nil
		s.pendingMu.Unlock()

		for len(batch) > 0 {
			c := batch[0]
			batch = batch[1:]
			s.notifier.Publish(c)
		}

		s.pendingMu.Lock()
	}
	s.draining = false
	finished = true
	s.pendingMu.Unlock()
}
