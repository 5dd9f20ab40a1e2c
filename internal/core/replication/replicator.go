// Package replication keeps transform replicas of a room in sync.
//
// Each peer sends its local writes as update envelopes and merges what it
// receives into its store through ApplyRemote, where last-writer-wins by causal
// stamp decides. On every (re)connect a peer sends its full snapshot and asks
// the others for theirs, so writes made while disconnected are not lost.
package replication

import (
	"context"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/cubesync/internal/core/events/notify"
	"github.com/zeusync/cubesync/internal/core/observability/log"
	"github.com/zeusync/cubesync/internal/core/transform"
)

// Config tunes a Replicator.
type Config struct {
	// DedupeSize is how many envelope ids are remembered to drop repeats.
	DedupeSize int
}

func DefaultConfig() Config {
	return Config{DedupeSize: 1024}
}

// Replicator forwards local writes of a store and merges remote ones into it.
type Replicator struct {
	store  *transform.Store
	codec  Codec
	logger log.Log
	peer   string

	seen *lru.Cache[string, struct{}]
	sub  notify.Subscription

	mu               sync.Mutex
	pending          map[transform.Key]transform.Entry
	snapshotRequired bool
	wake             chan struct{}
}

// New attaches a replicator to store. From now on every local write of the
// store is queued for the peers.
func New(store *transform.Store, cfg Config, logger log.Log) (*Replicator, error) {
	if cfg.DedupeSize <= 0 {
		cfg.DedupeSize = DefaultConfig().DedupeSize
	}
	seen, err := lru.New[string, struct{}](cfg.DedupeSize)
	if err != nil {
		return nil, errors.Wrap(err, "dedupe cache")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	r := &Replicator{
		store:   store,
		codec:   JSONCodec{},
		logger:  logger.With(log.Component("replication"), log.String("peer", store.Peer())),
		peer:    store.Peer(),
		seen:    seen,
		pending: make(map[transform.Key]transform.Entry, len(transform.Keys)),
		wake:    make(chan struct{}, 1),
	}
	r.sub = store.Subscribe(r.onChange)
	return r, nil
}

// Close detaches from the store.
func (r *Replicator) Close() error {
	return r.store.Unsubscribe(r.sub)
}

// Pending returns how many registers wait to be sent.
func (r *Replicator) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Replicator) onChange(c transform.Change) {
	if c.Origin != transform.OriginLocal {
		return
	}
	r.mu.Lock()
	r.queueLocked(c.Key, transform.Entry{Value: c.Value, Stamp: c.Stamp})
	r.mu.Unlock()
	r.signal()
}

// queueLocked keeps only the newest entry per key.
func (r *Replicator) queueLocked(key transform.Key, e transform.Entry) {
	if cur, ok := r.pending[key]; ok && !e.Stamp.After(cur.Stamp) {
		return
	}
	r.pending[key] = e
	pendingUpdates.Set(float64(len(r.pending)))
}

func (r *Replicator) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Replicator) takePending() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return nil
	}
	updates := make([]Update, 0, len(r.pending))
	for _, k := range transform.Keys {
		if e, ok := r.pending[k]; ok {
			updates = append(updates, updateFrom(k, e))
		}
	}
	clear(r.pending)
	pendingUpdates.Set(0)
	return updates
}

func (r *Replicator) requeue(updates []Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range updates {
		e, err := u.Entry()
		if err != nil {
			continue
		}
		r.queueLocked(u.Key, e)
	}
}

func (r *Replicator) snapshot() []Update {
	entries := r.store.Entries()
	updates := make([]Update, 0, len(entries))
	for _, k := range transform.Keys {
		if e, ok := entries[k]; ok {
			updates = append(updates, updateFrom(k, e))
		}
	}
	return updates
}

func (r *Replicator) envelope(typ MessageType, updates []Update) *Envelope {
	return &Envelope{Type: typ, ID: uuid.NewString(), Origin: r.peer, Updates: updates}
}

func (r *Replicator) send(ctx context.Context, t Transport, env *Envelope) error {
	data, err := r.codec.Encode(env)
	if err != nil {
		return err
	}
	if err = t.Send(ctx, data); err != nil {
		return err
	}
	envelopes.WithLabelValues("out", string(env.Type)).Inc()
	envelopeBytesOut.Observe(float64(len(data)))
	return nil
}

// Run exchanges envelopes over t until ctx is done or the transport fails. It
// closes t before returning. A transport failure is reported as
// ErrTransportUnavailable; unsent writes stay queued for the next Run. Run
// returns transform.ErrClosed once the store is closed.
func (r *Replicator) Run(ctx context.Context, t Transport) error {
	defer func() { _ = t.Close() }()

	// The snapshot supersedes anything queued while disconnected.
	_ = r.takePending()
	if err := r.send(ctx, t, r.envelope(MessageSnapshot, r.snapshot())); err != nil {
		return r.runError(ctx, err)
	}
	if err := r.send(ctx, t, r.envelope(MessageSyncRequest, nil)); err != nil {
		return r.runError(ctx, err)
	}
	r.logger.Info("replication link up")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.sendLoop(gctx, t) })
	g.Go(func() error { return r.receiveLoop(gctx, t) })
	g.Go(func() error {
		<-gctx.Done()
		return t.Close()
	})

	err := g.Wait()
	r.logger.Info("replication link down", log.Error(err))
	return r.runError(ctx, err)
}

func (r *Replicator) runError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil || errors.Is(err, transform.ErrClosed) {
		return err
	}
	return errors.Wrapf(ErrTransportUnavailable, "%v", err)
}

func (r *Replicator) sendLoop(ctx context.Context, t Transport) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.wake:
		}

		r.mu.Lock()
		wantSnapshot := r.snapshotRequired
		r.snapshotRequired = false
		r.mu.Unlock()

		if wantSnapshot {
			if err := r.send(ctx, t, r.envelope(MessageSnapshot, r.snapshot())); err != nil {
				r.mu.Lock()
				r.snapshotRequired = true
				r.mu.Unlock()
				return err
			}
		}

		updates := r.takePending()
		if len(updates) == 0 {
			continue
		}
		if err := r.send(ctx, t, r.envelope(MessageUpdate, updates)); err != nil {
			r.requeue(updates)
			return err
		}
	}
}

func (r *Replicator) receiveLoop(ctx context.Context, t Transport) error {
	for {
		data, err := t.Receive(ctx)
		if err != nil {
			return err
		}
		if err = r.Deliver(data); err != nil {
			if errors.Is(err, transform.ErrClosed) {
				return err
			}
			r.logger.Warn("dropping inbound envelope", log.Error(err))
		}
	}
}

// Deliver merges one inbound frame into the store. It is the inbound side of
// the replication layer and may run concurrently with local writes.
func (r *Replicator) Deliver(data []byte) error {
	envelopeBytesIn.Observe(float64(len(data)))
	env, err := r.codec.Decode(data)
	if err != nil {
		malformedEnvelope.Inc()
		return err
	}
	if env.Origin == r.peer {
		return nil
	}
	if seen, _ := r.seen.ContainsOrAdd(env.ID, struct{}{}); seen {
		duplicates.Inc()
		return nil
	}
	envelopes.WithLabelValues("in", string(env.Type)).Inc()

	switch env.Type {
	case MessageSyncRequest:
		r.mu.Lock()
		r.snapshotRequired = true
		r.mu.Unlock()
		r.signal()
		return nil
	case MessageUpdate, MessageSnapshot:
		return r.apply(env)
	default:
		return errors.Wrapf(ErrMalformedMessage, "unknown type %q", env.Type)
	}
}

func (r *Replicator) apply(env *Envelope) error {
	var errs []error
	for _, u := range env.Updates {
		entry, err := u.Entry()
		if err != nil {
			malformedUpdate.Inc()
			errs = append(errs, err)
			continue
		}
		applied, err := r.store.ApplyRemote(u.Key, entry)
		if err != nil {
			if errors.Is(err, transform.ErrClosed) {
				return err
			}
			malformedUpdate.Inc()
			errs = append(errs, err)
			continue
		}
		r.logger.Debug("remote update",
			log.String("key", u.Key.String()),
			log.String("origin", env.Origin),
			log.Bool("applied", applied),
		)
	}
	if len(errs) > 0 {
		return errors.Wrapf(ErrMalformedMessage, "%d invalid updates from %s: %v", len(errs), env.Origin, errs[0])
	}
	return nil
}
