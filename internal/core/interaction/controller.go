package interaction

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/zeusync/cubesync/internal/core/geom"
	"github.com/zeusync/cubesync/internal/core/observability/log"
	"github.com/zeusync/cubesync/internal/core/transform"
)

// DefaultRotationStep is the angle of one rotation command, 10 degrees.
const DefaultRotationStep = math.Pi / 18

// Store is the part of the transform store the controller writes through.
type Store interface {
	Get(key transform.Key) (geom.Triple, error)
	Set(key transform.Key, value geom.Triple) error
}

// AutoSpinConfig makes an idle object rotate continuously.
type AutoSpinConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Rate     []float64     `yaml:"rate"` // radians per second around X, Y, Z
	Interval time.Duration `yaml:"interval"`
}

type Config struct {
	Bounds       transform.Bounds `yaml:"bounds"`
	RotationStep float64          `yaml:"rotation_step"`
	AutoSpin     AutoSpinConfig   `yaml:"auto_spin"`
}

func DefaultConfig() Config {
	return Config{
		Bounds:       transform.DefaultBounds(),
		RotationStep: DefaultRotationStep,
		AutoSpin: AutoSpinConfig{
			Enabled:  false,
			Rate:     []float64{0.3, 0.5, 0},
			Interval: 16 * time.Millisecond,
		},
	}
}

func (c Config) Validate() error {
	if err := c.Bounds.Validate(); err != nil {
		return err
	}
	if math.IsNaN(c.RotationStep) || math.IsInf(c.RotationStep, 0) || c.RotationStep <= 0 {
		return errors.Errorf("rotation step must be a positive number, got %v", c.RotationStep)
	}
	if c.AutoSpin.Enabled {
		if _, err := geom.TripleFromSlice(c.AutoSpin.Rate); err != nil {
			return errors.Wrap(err, "auto spin rate")
		}
		if c.AutoSpin.Interval <= 0 {
			return errors.New("auto spin interval must be positive")
		}
	}
	return nil
}

// Controller turns pointer and rotation commands into store writes. It holds
// the drag state of one local user and is safe for concurrent use. Store
// writes happen outside mu, so subscribers may call back into the controller.
type Controller struct {
	store  Store
	camera Camera
	cfg    Config
	logger log.Log

	lock *CapabilityLock

	mu      sync.Mutex
	drag    *DragProjector
	release func()
}

// NewController wires a controller. controls may be nil when no camera
// controller needs to be disabled during drags.
func NewController(store Store, camera Camera, controls CameraControls, cfg Config, logger log.Log) *Controller {
	if logger == nil {
		logger = log.NewNop()
	}
	var signal func(bool)
	if controls != nil {
		signal = controls.SetEnabled
	}
	return &Controller{
		store:  store,
		camera: camera,
		cfg:    cfg,
		logger: logger.With(log.Component("interaction")),
		lock:   NewCapabilityLock(signal),
		drag:   NewDragProjector(cfg.Bounds),
	}
}

// Dragging reports whether a drag is in progress.
func (c *Controller) Dragging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drag.Active()
}

// PointerDown starts a drag at the object's current position and disables the
// camera controls until PointerUp.
func (c *Controller) PointerDown(pointer geom.Ray) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	position, err := c.store.Get(transform.KeyPosition)
	if err != nil {
		return err
	}
	if err = c.drag.Start(position, c.camera.Forward(), pointer); err != nil {
		return err
	}
	if c.release == nil {
		c.release = c.lock.Acquire()
	}
	c.logger.Debug("drag started", log.Floats("position", position.Slice()))
	return nil
}

// PointerMove writes the dragged position. It reports whether a write happened.
func (c *Controller) PointerMove(pointer geom.Ray) (bool, error) {
	c.mu.Lock()
	next, ok := c.drag.Move(pointer)
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := c.store.Set(transform.KeyPosition, next); err != nil {
		return false, err
	}
	return true, nil
}

// PointerUp ends the drag and re-enables camera controls. Pointer-out and
// capture loss map here too; calling it with no drag is a no-op.
func (c *Controller) PointerUp() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drag.Active() {
		c.logger.Debug("drag ended")
	}
	c.drag.End()
	if c.release != nil {
		c.release()
		c.release = nil
	}
}

// Rotate turns the stored rotation by angle around a camera-relative axis.
func (c *Controller) Rotate(axis Axis, angle float64) (geom.Triple, error) {
	current, err := c.store.Get(transform.KeyRotation)
	if err != nil {
		return geom.Zero, err
	}
	next, err := Rotate(current, axis, angle, c.camera)
	if err != nil {
		return geom.Zero, err
	}
	if err = c.store.Set(transform.KeyRotation, next); err != nil {
		return geom.Zero, err
	}
	return next, nil
}

// RotateStep applies one configured step; direction is the sign of the step.
func (c *Controller) RotateStep(axis Axis, direction int) (geom.Triple, error) {
	switch {
	case direction > 0:
		return c.Rotate(axis, c.cfg.RotationStep)
	case direction < 0:
		return c.Rotate(axis, -c.cfg.RotationStep)
	default:
		return c.store.Get(transform.KeyRotation)
	}
}

// Tick advances the idle spin by delta. It does nothing while dragging or when
// auto spin is disabled, and reports whether it wrote.
func (c *Controller) Tick(delta time.Duration) (bool, error) {
	if !c.cfg.AutoSpin.Enabled || delta <= 0 {
		return false, nil
	}
	rate, err := geom.TripleFromSlice(c.cfg.AutoSpin.Rate)
	if err != nil {
		return false, err
	}

	if c.Dragging() {
		return false, nil
	}

	current, err := c.store.Get(transform.KeyRotation)
	if err != nil {
		return false, err
	}
	dt := delta.Seconds()
	next := geom.Triple{current[0] + rate[0]*dt, current[1] + rate[1]*dt, current[2] + rate[2]*dt}
	if err = c.store.Set(transform.KeyRotation, next); err != nil {
		return false, err
	}
	return true, nil
}
