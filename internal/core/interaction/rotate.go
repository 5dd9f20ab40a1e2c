package interaction

import (
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/zeusync/cubesync/internal/core/geom"
)

// Axis selects a camera-relative rotation axis.
type Axis uint8

const (
	AxisCameraRight Axis = iota
	AxisCameraUp
	AxisCameraForward
)

var ErrUnknownAxis = errors.New("unknown rotation axis")

func (a Axis) String() string {
	switch a {
	case AxisCameraRight:
		return "right"
	case AxisCameraUp:
		return "up"
	case AxisCameraForward:
		return "forward"
	default:
		return "unknown"
	}
}

// ParseAxis accepts "right", "up" or "forward".
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "right", "camera-right":
		return AxisCameraRight, nil
	case "up", "camera-up":
		return AxisCameraUp, nil
	case "forward", "camera-forward":
		return AxisCameraForward, nil
	default:
		return 0, errors.Wrapf(ErrUnknownAxis, "%q", s)
	}
}

// WorldAxis resolves a camera-relative axis into a unit world vector.
func WorldAxis(axis Axis, cam Camera) (mgl64.Vec3, error) {
	forward, err := geom.Normalize(cam.Forward())
	if err != nil {
		return mgl64.Vec3{}, errors.Wrap(err, "camera forward")
	}
	if axis == AxisCameraForward {
		return forward, nil
	}
	up, err := geom.Normalize(cam.Orientation().Normalize().Rotate(geom.AxisY))
	if err != nil {
		return mgl64.Vec3{}, errors.Wrap(err, "camera up")
	}
	switch axis {
	case AxisCameraUp:
		return up, nil
	case AxisCameraRight:
		right, err := geom.Normalize(forward.Cross(up))
		if err != nil {
			return mgl64.Vec3{}, errors.Wrap(err, "camera right")
		}
		return right, nil
	default:
		return mgl64.Vec3{}, errors.Wrapf(ErrUnknownAxis, "%d", axis)
	}
}

// Rotate turns the object by angle radians around a camera-relative axis. The
// step is applied in world space (qStep * qCurrent), so the same command always
// tilts the object the same way on screen whatever its current orientation.
func Rotate(current geom.Triple, axis Axis, angle float64, cam Camera) (geom.Triple, error) {
	if err := current.Validate(); err != nil {
		return geom.Zero, errors.Wrap(err, "rotation")
	}
	if err := (geom.Triple{angle, 0, 0}).Validate(); err != nil {
		return geom.Zero, errors.Wrap(err, "rotation angle")
	}
	worldAxis, err := WorldAxis(axis, cam)
	if err != nil {
		return geom.Zero, err
	}

	qCurrent := geom.EulerToQuat(current)
	qStep := mgl64.QuatRotate(angle, worldAxis)
	qNext := qStep.Mul(qCurrent).Normalize()

	return geom.QuatToEuler(qNext), nil
}
