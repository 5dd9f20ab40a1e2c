package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// Epsilon bounds |n·d| below which a ray counts as parallel to a plane.
const Epsilon = 1e-6

// Ray is a half line with a unit direction.
type Ray struct {
	Origin    mgl64.Vec3
	Direction mgl64.Vec3
}

// NewRay validates both vectors and normalizes the direction.
func NewRay(origin, direction mgl64.Vec3) (Ray, error) {
	if err := ValidateVec3(origin); err != nil {
		return Ray{}, errors.Wrap(err, "ray origin")
	}
	dir, err := normalize(direction)
	if err != nil {
		return Ray{}, errors.Wrap(err, "ray direction")
	}
	return Ray{Origin: origin, Direction: dir}, nil
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float64) mgl64.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// Plane is the set of points p with Normal·(p - Point) = 0.
type Plane struct {
	Normal mgl64.Vec3
	Point  mgl64.Vec3
}

// NewPlane builds a plane through point with the given normal, normalized.
func NewPlane(normal, point mgl64.Vec3) (Plane, error) {
	if err := ValidateVec3(point); err != nil {
		return Plane{}, errors.Wrap(err, "plane point")
	}
	n, err := normalize(normal)
	if err != nil {
		return Plane{}, errors.Wrap(err, "plane normal")
	}
	return Plane{Normal: n, Point: point}, nil
}

// IntersectPlane returns the point where r crosses p. It reports false when the
// ray is within Epsilon of parallel to the plane or the crossing lies behind
// the ray origin.
func (r Ray) IntersectPlane(p Plane) (mgl64.Vec3, bool) {
	denom := p.Normal.Dot(r.Direction)
	if math.Abs(denom) < Epsilon {
		return mgl64.Vec3{}, false
	}
	t := p.Normal.Dot(p.Point.Sub(r.Origin)) / denom
	if t < 0 {
		return mgl64.Vec3{}, false
	}
	hit := r.At(t)
	if ValidateVec3(hit) != nil {
		return mgl64.Vec3{}, false
	}
	return hit, true
}

func normalize(v mgl64.Vec3) (mgl64.Vec3, error) {
	if err := ValidateVec3(v); err != nil {
		return mgl64.Vec3{}, err
	}
	l := v.Len()
	if l < Epsilon {
		return mgl64.Vec3{}, ErrDegenerate
	}
	return v.Mul(1 / l), nil
}

// Normalize returns v scaled to unit length, or ErrDegenerate for near-zero vectors.
func Normalize(v mgl64.Vec3) (mgl64.Vec3, error) {
	return normalize(v)
}
