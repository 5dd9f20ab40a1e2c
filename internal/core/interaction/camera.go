package interaction

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/zeusync/cubesync/internal/core/geom"
)

// Camera is the camera provider. It is queried on demand and never cached.
type Camera interface {
	// Forward is the current look direction in world space.
	Forward() mgl64.Vec3
	// Orientation rotates camera space into world space.
	Orientation() mgl64.Quat
}

// CameraControls is the orbit/pan controller that must be disabled while the
// object is being dragged.
type CameraControls interface {
	SetEnabled(enabled bool)
}

// LookAtCamera is a camera at Eye looking at Target. Cameras look down their
// local -Z axis with +Y up.
type LookAtCamera struct {
	Eye    mgl64.Vec3
	Target mgl64.Vec3
	Up     mgl64.Vec3
}

var _ Camera = LookAtCamera{}

// NewLookAtCamera validates that the view direction is well defined.
func NewLookAtCamera(eye, target, up mgl64.Vec3) (LookAtCamera, error) {
	c := LookAtCamera{Eye: eye, Target: target, Up: up}
	if _, _, _, err := c.basis(); err != nil {
		return LookAtCamera{}, err
	}
	return c, nil
}

func (c LookAtCamera) Forward() mgl64.Vec3 {
	f, _, _, err := c.basis()
	if err != nil {
		return mgl64.Vec3{0, 0, -1}
	}
	return f
}

func (c LookAtCamera) Orientation() mgl64.Quat {
	f, u, r, err := c.basis()
	if err != nil {
		return mgl64.QuatIdent()
	}
	back := f.Mul(-1)
	m := mgl64.Mat4{
		r[0], r[1], r[2], 0,
		u[0], u[1], u[2], 0,
		back[0], back[1], back[2], 0,
		0, 0, 0, 1,
	}
	return mgl64.Mat4ToQuat(m).Normalize()
}

// basis returns orthonormal forward, up and right vectors.
func (c LookAtCamera) basis() (forward, up, right mgl64.Vec3, err error) {
	forward, err = geom.Normalize(c.Target.Sub(c.Eye))
	if err != nil {
		return forward, up, right, errors.Wrap(err, "camera forward")
	}
	worldUp := c.Up
	if worldUp == (mgl64.Vec3{}) {
		worldUp = geom.AxisY
	}
	right, err = geom.Normalize(forward.Cross(worldUp))
	if err != nil {
		return forward, up, right, errors.Wrap(err, "camera up is parallel to forward")
	}
	up = right.Cross(forward)
	return forward, up, right, nil
}

// Ray builds a pointer ray through normalized device coordinates (x, y in
// [-1, 1]) for a perspective camera with vertical field of view fovY (radians)
// and the given aspect ratio.
func (c LookAtCamera) Ray(ndcX, ndcY, fovY, aspect float64) (geom.Ray, error) {
	f, u, r, err := c.basis()
	if err != nil {
		return geom.Ray{}, err
	}
	h := math.Tan(fovY / 2)
	dir := f.Add(r.Mul(ndcX * h * aspect)).Add(u.Mul(ndcY * h))
	return geom.NewRay(c.Eye, dir)
}
