package replication

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/zeusync/cubesync/internal/core/clock"
	"github.com/zeusync/cubesync/internal/core/geom"
	"github.com/zeusync/cubesync/internal/core/transform"
)

// MessageType routes an envelope.
type MessageType string

const (
	// MessageUpdate carries local writes.
	MessageUpdate MessageType = "update"
	// MessageSyncRequest asks every peer for its snapshot.
	MessageSyncRequest MessageType = "sync_request"
	// MessageSnapshot carries every register the sender holds.
	MessageSnapshot MessageType = "snapshot"
)

// Update is one register value on the wire.
type Update struct {
	Key   transform.Key `json:"key"`
	Value []float64     `json:"value"`
	Stamp clock.Stamp   `json:"stamp"`
}

// Entry validates the update and converts it for the store.
func (u Update) Entry() (transform.Entry, error) {
	if !u.Key.Valid() {
		return transform.Entry{}, errors.Wrapf(transform.ErrUnknownKey, "%q", u.Key)
	}
	v, err := geom.TripleFromSlice(u.Value)
	if err != nil {
		return transform.Entry{}, errors.Wrapf(err, "key %s", u.Key)
	}
	return transform.Entry{Value: v, Stamp: u.Stamp}, nil
}

func updateFrom(key transform.Key, e transform.Entry) Update {
	return Update{Key: key, Value: e.Value.Slice(), Stamp: e.Stamp}
}

// Envelope is the unit exchanged between peers.
type Envelope struct {
	Type    MessageType `json:"type"`
	ID      string      `json:"id"`
	Origin  string      `json:"origin"`
	Updates []Update    `json:"updates,omitempty"`
}

func (e *Envelope) Validate() error {
	switch e.Type {
	case MessageUpdate, MessageSnapshot, MessageSyncRequest:
	default:
		return errors.Wrapf(ErrMalformedMessage, "unknown type %q", e.Type)
	}
	if e.ID == "" {
		return errors.Wrap(ErrMalformedMessage, "missing id")
	}
	if e.Origin == "" {
		return errors.Wrap(ErrMalformedMessage, "missing origin")
	}
	return nil
}

// Codec converts envelopes to and from bytes.
type Codec interface {
	Encode(env *Envelope) ([]byte, error)
	Decode(data []byte) (*Envelope, error)
}

// JSONCodec implements Codec using JSON.
type JSONCodec struct{}

func (JSONCodec) Encode(env *Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "encode envelope")
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrapf(ErrMalformedMessage, "decode envelope: %v", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}
