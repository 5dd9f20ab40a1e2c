package geom

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertVecNear compares vectors with an absolute tolerance per component.
func assertVecNear(t *testing.T, want, got mgl64.Vec3, delta float64, msgAndArgs ...any) bool {
	t.Helper()
	return assert.InDeltaSlice(t, want[:], got[:], delta, msgAndArgs...)
}

func TestTripleValidate(t *testing.T) {
	require.NoError(t, Triple{1, -2, 3}.Validate())

	for _, bad := range []Triple{
		{math.NaN(), 0, 0},
		{0, math.Inf(1), 0},
		{0, 0, math.Inf(-1)},
	} {
		require.ErrorIs(t, bad.Validate(), ErrInvalidValue)
	}
}

func TestTripleFromSlice(t *testing.T) {
	tr, err := TripleFromSlice([]float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, Triple{1, 2, 3}, tr)

	_, err = TripleFromSlice([]float64{1, 2})
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = TripleFromSlice([]float64{1, 2, 3, 4})
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = TripleFromSlice([]float64{1, math.NaN(), 3})
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestRayIntersectPlane(t *testing.T) {
	plane, err := NewPlane(mgl64.Vec3{0, 0, -1}, mgl64.Vec3{0, 0, 0})
	require.NoError(t, err)

	t.Run("hit", func(t *testing.T) {
		ray, err := NewRay(mgl64.Vec3{1, 1, 5}, mgl64.Vec3{0, 0, -3})
		require.NoError(t, err)
		hit, ok := ray.IntersectPlane(plane)
		require.True(t, ok)
		assertVecNear(t, mgl64.Vec3{1, 1, 0}, hit, 1e-12)
	})

	t.Run("oblique hit", func(t *testing.T) {
		ray, err := NewRay(mgl64.Vec3{0, 0, 4}, mgl64.Vec3{1, 0, -1})
		require.NoError(t, err)
		hit, ok := ray.IntersectPlane(plane)
		require.True(t, ok)
		assertVecNear(t, mgl64.Vec3{4, 0, 0}, hit, 1e-9)
	})

	t.Run("parallel", func(t *testing.T) {
		ray, err := NewRay(mgl64.Vec3{0, 0, 5}, mgl64.Vec3{1, 0, 0})
		require.NoError(t, err)
		_, ok := ray.IntersectPlane(plane)
		assert.False(t, ok)
	})

	t.Run("nearly parallel", func(t *testing.T) {
		ray, err := NewRay(mgl64.Vec3{0, 0, 5}, mgl64.Vec3{1, 0, -1e-9})
		require.NoError(t, err)
		_, ok := ray.IntersectPlane(plane)
		assert.False(t, ok)
	})

	t.Run("behind origin", func(t *testing.T) {
		ray, err := NewRay(mgl64.Vec3{0, 0, 5}, mgl64.Vec3{0, 0, 1})
		require.NoError(t, err)
		_, ok := ray.IntersectPlane(plane)
		assert.False(t, ok)
	})
}

func TestNewRayRejectsDegenerate(t *testing.T) {
	_, err := NewRay(mgl64.Vec3{}, mgl64.Vec3{})
	require.ErrorIs(t, err, ErrDegenerate)

	_, err = NewRay(mgl64.Vec3{math.NaN(), 0, 0}, mgl64.Vec3{0, 0, 1})
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = NewPlane(mgl64.Vec3{}, mgl64.Vec3{})
	require.ErrorIs(t, err, ErrDegenerate)
}

func TestEulerRoundTrip(t *testing.T) {
	for _, e := range []Triple{
		{0, 0, 0},
		{0.3, -0.4, 1.1},
		{-2.5, 0.7, -0.2},
		{math.Pi / 4, 0, 0},
	} {
		got := QuatToEuler(EulerToQuat(e))
		assert.Truef(t, got.ApproxEqual(e, 1e-9), "want %v got %v", e, got)
	}
}

func TestEulerSingleAxis(t *testing.T) {
	q := mgl64.QuatRotate(math.Pi/4, AxisY)
	got := QuatToEuler(q)
	assert.True(t, got.ApproxEqual(Triple{0, math.Pi / 4, 0}, 1e-9), "got %v", got)

	// XYZ order: X applied first in the intrinsic frame.
	v := EulerToQuat(Triple{math.Pi / 2, 0, 0}).Rotate(mgl64.Vec3{0, 1, 0})
	assertVecNear(t, mgl64.Vec3{0, 0, 1}, v, 1e-9, "got %v", v)
}
