package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidValue is returned for non-finite or wrong-arity triples.
	ErrInvalidValue = errors.New("invalid value")
	// ErrDegenerate is returned for zero-length directions and normals.
	ErrDegenerate = errors.New("degenerate vector")
)

// Triple is an ordered group of exactly three numbers: a position in world
// coordinates or Euler XYZ angles in radians.
type Triple [3]float64

// Zero is the value of a never-written key.
var Zero = Triple{}

// TripleFromSlice converts a decoded slice, rejecting anything but three finite numbers.
func TripleFromSlice(values []float64) (Triple, error) {
	if len(values) != 3 {
		return Zero, errors.Wrapf(ErrInvalidValue, "expected 3 components, got %d", len(values))
	}
	t := Triple{values[0], values[1], values[2]}
	if err := t.Validate(); err != nil {
		return Zero, err
	}
	return t, nil
}

// FromVec3 converts an mgl64 vector.
func FromVec3(v mgl64.Vec3) Triple {
	return Triple{v[0], v[1], v[2]}
}

func (t Triple) X() float64 { return t[0] }
func (t Triple) Y() float64 { return t[1] }
func (t Triple) Z() float64 { return t[2] }

// Vec3 converts to an mgl64 vector.
func (t Triple) Vec3() mgl64.Vec3 {
	return mgl64.Vec3{t[0], t[1], t[2]}
}

// Slice returns a copy suitable for encoding.
func (t Triple) Slice() []float64 {
	return []float64{t[0], t[1], t[2]}
}

// Validate reports ErrInvalidValue if any component is NaN or infinite.
func (t Triple) Validate() error {
	for i, c := range t {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return errors.Wrapf(ErrInvalidValue, "component %d is %v", i, c)
		}
	}
	return nil
}

// ApproxEqual compares componentwise within tolerance.
func (t Triple) ApproxEqual(o Triple, tolerance float64) bool {
	for i := range t {
		if math.Abs(t[i]-o[i]) > tolerance {
			return false
		}
	}
	return true
}

// ValidateVec3 applies the Triple finiteness check to a vector.
func ValidateVec3(v mgl64.Vec3) error {
	return FromVec3(v).Validate()
}
