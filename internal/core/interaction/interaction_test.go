package interaction

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/cubesync/internal/core/clock"
	"github.com/zeusync/cubesync/internal/core/geom"
	"github.com/zeusync/cubesync/internal/core/transform"
)

// rayThrough returns a ray travelling along -Z that hits the z=0 plane at p.
func rayThrough(t *testing.T, x, y float64) geom.Ray {
	t.Helper()
	r, err := geom.NewRay(mgl64.Vec3{x, y, 10}, mgl64.Vec3{0, 0, -1})
	require.NoError(t, err)
	return r
}

func frontCamera(t *testing.T) LookAtCamera {
	t.Helper()
	cam, err := NewLookAtCamera(mgl64.Vec3{0, 0, 10}, mgl64.Vec3{0, 0, 0}, geom.AxisY)
	require.NoError(t, err)
	return cam
}

// assertVecNear compares vectors with an absolute tolerance per component.
func assertVecNear(t *testing.T, want, got mgl64.Vec3, delta float64, msgAndArgs ...any) bool {
	t.Helper()
	return assert.InDeltaSlice(t, want[:], got[:], delta, msgAndArgs...)
}

type recordingControls struct {
	states []bool
}

func (r *recordingControls) SetEnabled(enabled bool) {
	r.states = append(r.states, enabled)
}

func TestDragDeterminism(t *testing.T) {
	d := NewDragProjector(transform.DefaultBounds())
	require.NoError(t, d.Start(geom.Triple{0, 0, 0}, mgl64.Vec3{0, 0, -1}, rayThrough(t, 1, 1)))
	require.True(t, d.Active())
	assertVecNear(t, mgl64.Vec3{-1, -1, 0}, d.Offset(), 1e-12)

	got, ok := d.Move(rayThrough(t, 2, 1))
	require.True(t, ok)
	assert.True(t, got.ApproxEqual(geom.Triple{1, 0, 0}, 1e-12), "got %v", got)
}

func TestDragClampsXYOnly(t *testing.T) {
	d := NewDragProjector(transform.DefaultBounds())
	require.NoError(t, d.Start(geom.Triple{0, 0, -3}, mgl64.Vec3{0, 0, -1}, rayThrough(t, 0, 0)))

	got, ok := d.Move(rayThrough(t, 50, -50))
	require.True(t, ok)
	assert.True(t, got.ApproxEqual(geom.Triple{8, -5, -3}, 1e-12), "got %v", got)
}

func TestDragKeepsDepthUnderObliqueCamera(t *testing.T) {
	cam, err := NewLookAtCamera(mgl64.Vec3{4, 4, 6}, mgl64.Vec3{0, 0, 0}, geom.AxisY)
	require.NoError(t, err)

	start := geom.Triple{1, 0.5, -1}
	down, err := geom.NewRay(cam.Eye, start.Vec3().Sub(cam.Eye))
	require.NoError(t, err)

	d := NewDragProjector(transform.DefaultBounds())
	require.NoError(t, d.Start(start, cam.Forward(), down))
	assertVecNear(t, mgl64.Vec3{}, d.Offset(), 1e-9, "ray through the object has no offset")

	move, err := cam.Ray(0.2, -0.1, math.Pi/3.6, 16.0/9.0)
	require.NoError(t, err)
	got, ok := d.Move(move)
	require.True(t, ok)

	// The new position stays on the plane through the start point facing the camera.
	dist := cam.Forward().Dot(got.Vec3().Sub(start.Vec3()))
	assert.InDelta(t, 0, dist, 1e-9)
}

func TestDragNoIntersection(t *testing.T) {
	d := NewDragProjector(transform.DefaultBounds())
	parallel, err := geom.NewRay(mgl64.Vec3{0, 0, 10}, mgl64.Vec3{1, 0, 0})
	require.NoError(t, err)

	require.NoError(t, d.Start(geom.Triple{2, 2, 0}, mgl64.Vec3{0, 0, -1}, parallel))
	assert.Equal(t, mgl64.Vec3{}, d.Offset(), "missed start ray gives zero offset")

	_, ok := d.Move(parallel)
	assert.False(t, ok)
	assert.True(t, d.Active(), "a miss leaves the drag running")

	got, ok := d.Move(rayThrough(t, 3, 3))
	require.True(t, ok)
	assert.True(t, got.ApproxEqual(geom.Triple{3, 3, 0}, 1e-12))
}

func TestDragEnd(t *testing.T) {
	d := NewDragProjector(transform.DefaultBounds())
	_, ok := d.Move(rayThrough(t, 1, 1))
	assert.False(t, ok, "no drag started")

	require.NoError(t, d.Start(geom.Triple{}, mgl64.Vec3{0, 0, -1}, rayThrough(t, 1, 1)))
	d.End()
	assert.False(t, d.Active())
	_, ok = d.Move(rayThrough(t, 2, 2))
	assert.False(t, ok)
}

func TestDragStartRejectsInvalid(t *testing.T) {
	d := NewDragProjector(transform.DefaultBounds())
	err := d.Start(geom.Triple{math.NaN(), 0, 0}, mgl64.Vec3{0, 0, -1}, rayThrough(t, 0, 0))
	require.ErrorIs(t, err, geom.ErrInvalidValue)

	err = d.Start(geom.Triple{}, mgl64.Vec3{}, rayThrough(t, 0, 0))
	require.ErrorIs(t, err, geom.ErrDegenerate)

	err = d.Start(geom.Triple{}, mgl64.Vec3{0, 0, -1}, geom.Ray{Origin: mgl64.Vec3{}, Direction: mgl64.Vec3{}})
	require.ErrorIs(t, err, geom.ErrDegenerate)
	assert.False(t, d.Active())
}

func TestWorldAxisFrontCamera(t *testing.T) {
	cam := frontCamera(t)
	for axis, want := range map[Axis]mgl64.Vec3{
		AxisCameraRight:   {1, 0, 0},
		AxisCameraUp:      {0, 1, 0},
		AxisCameraForward: {0, 0, -1},
	} {
		got, err := WorldAxis(axis, cam)
		require.NoError(t, err)
		assertVecNear(t, want, got, 1e-9, "%s: got %v", axis, got)
	}
}

func TestWorldAxisFollowsCamera(t *testing.T) {
	// Camera on the +X axis looking back at the origin: its right is -Z.
	cam, err := NewLookAtCamera(mgl64.Vec3{10, 0, 0}, mgl64.Vec3{}, geom.AxisY)
	require.NoError(t, err)

	right, err := WorldAxis(AxisCameraRight, cam)
	require.NoError(t, err)
	assertVecNear(t, mgl64.Vec3{0, 0, -1}, right, 1e-9, "got %v", right)

	up, err := WorldAxis(AxisCameraUp, cam)
	require.NoError(t, err)
	assertVecNear(t, mgl64.Vec3{0, 1, 0}, up, 1e-9, "got %v", up)
}

func TestRotateAroundCameraAxes(t *testing.T) {
	cam := frontCamera(t)

	got, err := Rotate(geom.Triple{}, AxisCameraUp, math.Pi/4, cam)
	require.NoError(t, err)
	assert.True(t, got.ApproxEqual(geom.Triple{0, math.Pi / 4, 0}, 1e-9), "got %v", got)

	got, err = Rotate(geom.Triple{}, AxisCameraRight, math.Pi/4, cam)
	require.NoError(t, err)
	assert.True(t, got.ApproxEqual(geom.Triple{math.Pi / 4, 0, 0}, 1e-9), "got %v", got)

	// Forward is -Z, so a positive turn about it is a negative Z rotation.
	got, err = Rotate(geom.Triple{}, AxisCameraForward, math.Pi/4, cam)
	require.NoError(t, err)
	assert.True(t, got.ApproxEqual(geom.Triple{0, 0, -math.Pi / 4}, 1e-9), "got %v", got)
}

func TestRotateInverse(t *testing.T) {
	cams := []LookAtCamera{frontCamera(t)}
	oblique, err := NewLookAtCamera(mgl64.Vec3{4, 4, 6}, mgl64.Vec3{}, geom.AxisY)
	require.NoError(t, err)
	cams = append(cams, oblique)

	step := math.Pi / 18
	for _, cam := range cams {
		for _, axis := range []Axis{AxisCameraRight, AxisCameraUp, AxisCameraForward} {
			for _, r := range []geom.Triple{{0, 0, 0}, {0.3, -0.4, 1.1}, {-1.2, 0.9, 2.5}} {
				there, err := Rotate(r, axis, step, cam)
				require.NoError(t, err)
				back, err := Rotate(there, axis, -step, cam)
				require.NoError(t, err)
				assert.Truef(t, back.ApproxEqual(r, 1e-6), "axis %s from %v got %v", axis, r, back)
			}
		}
	}
}

func TestRotateAppliesStepInWorldSpace(t *testing.T) {
	cam, err := NewLookAtCamera(mgl64.Vec3{4, 4, 6}, mgl64.Vec3{}, geom.AxisY)
	require.NoError(t, err)
	worldAxis, err := WorldAxis(AxisCameraRight, cam)
	require.NoError(t, err)
	step := mgl64.QuatRotate(0.2, worldAxis)

	for _, r := range []geom.Triple{{0, 0, 0}, {0.5, 0.1, -0.7}, {1.0, -0.6, 0.3}} {
		next, err := Rotate(r, AxisCameraRight, 0.2, cam)
		require.NoError(t, err)

		// qNext * qCurrent^-1 is the same world rotation whatever the start.
		delta := geom.EulerToQuat(next).Mul(geom.EulerToQuat(r).Inverse())
		point := mgl64.Vec3{0.3, -0.2, 0.9}
		assertVecNear(t, step.Rotate(point), delta.Rotate(point), 1e-9, "from %v", r)
	}
}

func TestRotateRejectsInvalid(t *testing.T) {
	cam := frontCamera(t)
	_, err := Rotate(geom.Triple{math.NaN(), 0, 0}, AxisCameraUp, 0.1, cam)
	require.ErrorIs(t, err, geom.ErrInvalidValue)
	_, err = Rotate(geom.Triple{}, AxisCameraUp, math.Inf(1), cam)
	require.ErrorIs(t, err, geom.ErrInvalidValue)
	_, err = Rotate(geom.Triple{}, Axis(9), 0.1, cam)
	require.ErrorIs(t, err, ErrUnknownAxis)
}

func TestParseAxis(t *testing.T) {
	a, err := ParseAxis("Up")
	require.NoError(t, err)
	assert.Equal(t, AxisCameraUp, a)
	_, err = ParseAxis("sideways")
	require.ErrorIs(t, err, ErrUnknownAxis)
}

func TestCapabilityLock(t *testing.T) {
	controls := &recordingControls{}
	l := NewCapabilityLock(controls.SetEnabled)

	r1 := l.Acquire()
	r2 := l.Acquire()
	assert.True(t, l.Held())
	r1()
	r1()
	assert.True(t, l.Held())
	r2()
	assert.False(t, l.Held())
	assert.Equal(t, []bool{false, true}, controls.states)
}

func newControllerStore(t *testing.T) *transform.Store {
	t.Helper()
	return transform.New(clock.New("local", clockwork.NewFakeClockAt(time.Unix(10, 0))))
}

func TestControllerDrag(t *testing.T) {
	store := newControllerStore(t)
	controls := &recordingControls{}
	c := NewController(store, frontCamera(t), controls, DefaultConfig(), nil)

	require.NoError(t, c.PointerDown(rayThrough(t, 1, 1)))
	assert.True(t, c.Dragging())
	assert.Equal(t, []bool{false}, controls.states, "orbit disabled during drag")

	wrote, err := c.PointerMove(rayThrough(t, 2, 1))
	require.NoError(t, err)
	require.True(t, wrote)
	assert.True(t, store.Position().ApproxEqual(geom.Triple{1, 0, 0}, 1e-9), "got %v", store.Position())

	c.PointerUp()
	assert.False(t, c.Dragging())
	assert.Equal(t, []bool{false, true}, controls.states)

	wrote, err = c.PointerMove(rayThrough(t, 5, 5))
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.True(t, store.Position().ApproxEqual(geom.Triple{1, 0, 0}, 1e-9))

	// A second PointerUp must not re-signal.
	c.PointerUp()
	assert.Equal(t, []bool{false, true}, controls.states)
}

func TestControllerRotateStep(t *testing.T) {
	store := newControllerStore(t)
	c := NewController(store, frontCamera(t), nil, DefaultConfig(), nil)

	_, err := c.RotateStep(AxisCameraUp, 1)
	require.NoError(t, err)
	assert.True(t, store.Rotation().ApproxEqual(geom.Triple{0, math.Pi / 18, 0}, 1e-9))

	_, err = c.RotateStep(AxisCameraUp, -1)
	require.NoError(t, err)
	assert.True(t, store.Rotation().ApproxEqual(geom.Triple{}, 1e-9))
}

func TestControllerSubscribersMayCallBack(t *testing.T) {
	store := newControllerStore(t)
	cfg := DefaultConfig()
	cfg.AutoSpin.Enabled = true
	c := NewController(store, frontCamera(t), nil, cfg, nil)

	var seen []bool
	store.Subscribe(func(transform.Change) {
		seen = append(seen, c.Dragging())
	})

	done := make(chan error, 1)
	go func() {
		if err := c.PointerDown(rayThrough(t, 0, 0)); err != nil {
			done <- err
			return
		}
		if _, err := c.PointerMove(rayThrough(t, 1, 0)); err != nil {
			done <- err
			return
		}
		c.PointerUp()
		if _, err := c.RotateStep(AxisCameraUp, 1); err != nil {
			done <- err
			return
		}
		_, err := c.Tick(time.Second)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("controller blocked while a subscriber called back into it")
	}
	assert.Equal(t, []bool{true, false, false}, seen)
}

func TestControllerTick(t *testing.T) {
	store := newControllerStore(t)
	cfg := DefaultConfig()

	c := NewController(store, frontCamera(t), nil, cfg, nil)
	wrote, err := c.Tick(time.Second)
	require.NoError(t, err)
	assert.False(t, wrote, "auto spin disabled by default")

	cfg.AutoSpin.Enabled = true
	c = NewController(store, frontCamera(t), nil, cfg, nil)
	wrote, err = c.Tick(2 * time.Second)
	require.NoError(t, err)
	require.True(t, wrote)
	assert.True(t, store.Rotation().ApproxEqual(geom.Triple{0.6, 1.0, 0}, 1e-12))

	require.NoError(t, c.PointerDown(rayThrough(t, 0, 0)))
	wrote, err = c.Tick(time.Second)
	require.NoError(t, err)
	assert.False(t, wrote, "no spin while dragging")
}

func TestRunAutoSpin(t *testing.T) {
	store := newControllerStore(t)
	cfg := DefaultConfig()
	cfg.AutoSpin.Enabled = true
	cfg.AutoSpin.Interval = 100 * time.Millisecond
	c := NewController(store, frontCamera(t), nil, cfg, nil)

	fake := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.RunAutoSpin(ctx, fake) }()

	require.Eventually(t, func() bool {
		fake.Advance(100 * time.Millisecond)
		return store.Rotation()[1] > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.RotationStep = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.AutoSpin.Enabled = true
	cfg.AutoSpin.Rate = []float64{1, 2}
	require.ErrorIs(t, cfg.Validate(), geom.ErrInvalidValue)
}
