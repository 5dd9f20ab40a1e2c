package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	AxisX = mgl64.Vec3{1, 0, 0}
	AxisY = mgl64.Vec3{0, 1, 0}
	AxisZ = mgl64.Vec3{0, 0, 1}
)

// gimbalThreshold matches the cutoff used by common engines when extracting
// XYZ angles near |sin y| = 1.
const gimbalThreshold = 0.9999999

// EulerToQuat converts XYZ Euler angles (rotate about X, then Y, then Z in the
// intrinsic frame, matrix Rx·Ry·Rz) into a unit quaternion.
func EulerToQuat(e Triple) mgl64.Quat {
	qx := mgl64.QuatRotate(e[0], AxisX)
	qy := mgl64.QuatRotate(e[1], AxisY)
	qz := mgl64.QuatRotate(e[2], AxisZ)
	return qx.Mul(qy).Mul(qz).Normalize()
}

// QuatToEuler converts a quaternion back into XYZ Euler angles.
func QuatToEuler(q mgl64.Quat) Triple {
	m := q.Normalize().Mat4()

	m11, m12, m13 := m.At(0, 0), m.At(0, 1), m.At(0, 2)
	m22, m23 := m.At(1, 1), m.At(1, 2)
	m32, m33 := m.At(2, 1), m.At(2, 2)

	var x, y, z float64
	y = math.Asin(mgl64.Clamp(m13, -1, 1))
	if math.Abs(m13) < gimbalThreshold {
		x = math.Atan2(-m23, m33)
		z = math.Atan2(-m12, m11)
	} else {
		x = math.Atan2(m32, m22)
		z = 0
	}
	return Triple{x, y, z}
}
