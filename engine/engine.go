// Package engine is the boundary between the body registry and a physics
// implementation. Everything the registry needs from a solver goes through
// the Engine interface, keyed by generational handles.
package engine

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrUnknownHandle     = errors.New("engine: unknown handle")
	ErrMalformedGeometry = errors.New("engine: malformed geometry")
	ErrInvalidOption     = errors.New("engine: invalid option")
)

// Engine is a rigid-body simulation. Implementations are not safe for
// concurrent use.
type Engine interface {
	CreateBody(m mgl32.Mat4, opts BodyOptions) (Handle, error)
	UpdateBody(h Handle, opts BodyOptions) error
	DestroyBody(h Handle) error

	// AttachShapes builds one or more shapes from geom and returns a handle
	// for the group.
	AttachShapes(body Handle, geom Geometry, opts ShapeOptions) (Handle, error)
	DetachShapes(group Handle) error

	AddConstraint(body, target Handle, opts ConstraintOptions) (Handle, error)
	RemoveConstraint(h Handle) error

	// Step advances the world by dt seconds.
	Step(dt float64)

	Transform(h Handle) (mgl32.Mat4, error)
	SetTransform(h Handle, m mgl32.Mat4) error
	// Velocities returns linear and angular speed magnitudes.
	Velocities(h Handle) (linear, angular float32, err error)
	SetLinearVelocity(h Handle, v mgl32.Vec3) error
	SetAngularVelocity(h Handle, v mgl32.Vec3) error
	ApplyForce(h Handle, force, offset mgl32.Vec3) error
	ApplyImpulse(h Handle, impulse, offset mgl32.Vec3) error
	Activate(h Handle) error

	// Collisions appends the bodies touching h during the last step to dst.
	Collisions(h Handle, dst []Handle) []Handle

	DebugDraw(sink LineSink)
}

// LineSink receives debug line segments.
type LineSink interface {
	DrawLine(from, to, color mgl32.Vec3)
}
