package transform

import (
	"github.com/pkg/errors"

	"github.com/zeusync/cubesync/internal/core/clock"
	"github.com/zeusync/cubesync/internal/core/geom"
)

var (
	ErrInvalidValue = geom.ErrInvalidValue
	ErrUnknownKey   = errors.New("unknown transform key")
	ErrClosed       = errors.New("transform store is closed")
)

// Key names one of the replicated registers.
type Key string

const (
	KeyPosition Key = "position"
	KeyRotation Key = "rotation"
)

// Keys lists every register of the shared transform.
var Keys = []Key{KeyPosition, KeyRotation}

func (k Key) Valid() bool {
	return k == KeyPosition || k == KeyRotation
}

func (k Key) String() string {
	return string(k)
}

// Transform is a consistent read of both registers.
type Transform struct {
	Position geom.Triple
	Rotation geom.Triple
}

// Entry is the content of a last-writer-wins register.
type Entry struct {
	Value geom.Triple
	Stamp clock.Stamp
}

// Origin tells subscribers where an accepted change came from.
type Origin uint8

const (
	OriginLocal Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// Change is delivered to subscribers once per accepted write.
type Change struct {
	Key      Key
	Value    geom.Triple
	Previous geom.Triple
	Stamp    clock.Stamp
	Origin   Origin
}

// Bounds limits position x and y. Z is depth and never clamped.
type Bounds struct {
	MinX float64 `yaml:"min_x"`
	MaxX float64 `yaml:"max_x"`
	MinY float64 `yaml:"min_y"`
	MaxY float64 `yaml:"max_y"`
}

// DefaultBounds keeps the object inside the visible stage.
func DefaultBounds() Bounds {
	return Bounds{MinX: -8, MaxX: 8, MinY: -5, MaxY: 5}
}

// Clamp returns p with x and y limited to the bounds.
func (b Bounds) Clamp(p geom.Triple) geom.Triple {
	return geom.Triple{clamp(p[0], b.MinX, b.MaxX), clamp(p[1], b.MinY, b.MaxY), p[2]}
}

func (b Bounds) Validate() error {
	if b.MinX > b.MaxX || b.MinY > b.MaxY {
		return errors.Errorf("invalid bounds x[%v,%v] y[%v,%v]", b.MinX, b.MaxX, b.MinY, b.MaxY)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
