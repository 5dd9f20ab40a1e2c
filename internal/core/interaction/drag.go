package interaction

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/zeusync/cubesync/internal/core/geom"
	"github.com/zeusync/cubesync/internal/core/transform"
)

// DragProjector maps pointer rays onto a plane facing the camera at the
// object's depth, so the object stays under the cursor for any camera distance
// or angle. The plane and offset are fixed when the drag starts.
//
// A DragProjector belongs to one interaction path and is not safe for
// concurrent use; Controller serializes access to it.
type DragProjector struct {
	bounds transform.Bounds

	active bool
	plane  geom.Plane
	offset mgl64.Vec3
}

func NewDragProjector(bounds transform.Bounds) *DragProjector {
	return &DragProjector{bounds: bounds}
}

// Start begins a drag of an object at objectPosition. If the pointer ray misses
// the drag plane the offset is zero.
func (d *DragProjector) Start(objectPosition geom.Triple, cameraForward mgl64.Vec3, pointer geom.Ray) error {
	if err := objectPosition.Validate(); err != nil {
		return errors.Wrap(err, "drag start position")
	}
	if err := validateRay(pointer); err != nil {
		return errors.Wrap(err, "drag start pointer")
	}
	plane, err := geom.NewPlane(cameraForward, objectPosition.Vec3())
	if err != nil {
		return errors.Wrap(err, "drag plane")
	}

	d.plane = plane
	d.offset = mgl64.Vec3{}
	if hit, ok := pointer.IntersectPlane(plane); ok {
		d.offset = objectPosition.Vec3().Sub(hit)
	}
	d.active = true
	return nil
}

// Move returns the clamped position under pointer. It reports false when no
// drag is active or the ray does not meet the drag plane; the caller keeps the
// current position in that case.
func (d *DragProjector) Move(pointer geom.Ray) (geom.Triple, bool) {
	if !d.active || validateRay(pointer) != nil {
		return geom.Zero, false
	}
	hit, ok := pointer.IntersectPlane(d.plane)
	if !ok {
		return geom.Zero, false
	}
	return d.bounds.Clamp(geom.FromVec3(hit.Add(d.offset))), true
}

// End clears the drag state.
func (d *DragProjector) End() {
	d.active = false
	d.plane = geom.Plane{}
	d.offset = mgl64.Vec3{}
}

func (d *DragProjector) Active() bool {
	return d.active
}

// Offset is the object position minus the initial hit point.
func (d *DragProjector) Offset() mgl64.Vec3 {
	return d.offset
}

// Plane is the drag plane of the active drag.
func (d *DragProjector) Plane() geom.Plane {
	return d.plane
}

func validateRay(r geom.Ray) error {
	if err := geom.ValidateVec3(r.Origin); err != nil {
		return err
	}
	if _, err := geom.Normalize(r.Direction); err != nil {
		return err
	}
	return nil
}
