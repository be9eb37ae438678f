package engine

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// BodyType decides which side is authoritative for a body's transform.
type BodyType int

const (
	BodyDynamic BodyType = iota
	BodyKinematic
	BodyStatic
)

func (t BodyType) String() string {
	switch t {
	case BodyDynamic:
		return "dynamic"
	case BodyKinematic:
		return "kinematic"
	case BodyStatic:
		return "static"
	default:
		return "unknown"
	}
}

// ParseBodyType maps a config name to a BodyType. Empty means dynamic.
func ParseBodyType(s string) (BodyType, error) {
	switch s {
	case "", "dynamic":
		return BodyDynamic, nil
	case "kinematic":
		return BodyKinematic, nil
	case "static":
		return BodyStatic, nil
	default:
		return BodyDynamic, fmt.Errorf("%w: body type %q", ErrInvalidOption, s)
	}
}

// BodyOptions configures a body. Nil fields keep their current value on
// update and take the default on create.
type BodyOptions struct {
	Type             *BodyType
	Mass             *float64
	Friction         *float64
	Restitution      *float64
	LinearDamping    *float64
	AngularDamping   *float64
	Gravity          *mgl32.Vec3
	CollisionGroup   *uint32
	CollisionMask    *uint32
	DisableCollision *bool
}

const (
	DefaultMass           = 1.0
	DefaultFriction       = 0.5
	DefaultCollisionGroup = 1
	DefaultCollisionMask  = 0xFFFFFFFF
)

// TypeOr returns the configured type or def.
func (o BodyOptions) TypeOr(def BodyType) BodyType {
	if o.Type == nil {
		return def
	}
	return *o.Type
}

// Merge overlays the non-nil fields of u onto o.
func (o BodyOptions) Merge(u BodyOptions) BodyOptions {
	if u.Type != nil {
		o.Type = u.Type
	}
	if u.Mass != nil {
		o.Mass = u.Mass
	}
	if u.Friction != nil {
		o.Friction = u.Friction
	}
	if u.Restitution != nil {
		o.Restitution = u.Restitution
	}
	if u.LinearDamping != nil {
		o.LinearDamping = u.LinearDamping
	}
	if u.AngularDamping != nil {
		o.AngularDamping = u.AngularDamping
	}
	if u.Gravity != nil {
		o.Gravity = u.Gravity
	}
	if u.CollisionGroup != nil {
		o.CollisionGroup = u.CollisionGroup
	}
	if u.CollisionMask != nil {
		o.CollisionMask = u.CollisionMask
	}
	if u.DisableCollision != nil {
		o.DisableCollision = u.DisableCollision
	}
	return o
}

// Validate rejects values no engine can honour.
func (o BodyOptions) Validate() error {
	if o.Mass != nil && *o.Mass < 0 {
		return fmt.Errorf("%w: negative mass %v", ErrInvalidOption, *o.Mass)
	}
	if o.Type != nil && (*o.Type < BodyDynamic || *o.Type > BodyStatic) {
		return fmt.Errorf("%w: body type %d", ErrInvalidOption, *o.Type)
	}
	for name, v := range map[string]*float64{"linear damping": o.LinearDamping, "angular damping": o.AngularDamping} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%w: %s %v outside [0,1]", ErrInvalidOption, name, *v)
		}
	}
	return nil
}

// Ptr returns a pointer to v, for filling option structs.
func Ptr[T any](v T) *T {
	return &v
}

// ShapeType names how geometry becomes collision shapes.
type ShapeType string

const (
	ShapeBox      ShapeType = "box"
	ShapeSphere   ShapeType = "sphere"
	ShapeCylinder ShapeType = "cylinder"
	ShapeCapsule  ShapeType = "capsule"
	ShapeCone     ShapeType = "cone"
	ShapeHull     ShapeType = "hull"
	ShapeMesh     ShapeType = "mesh"
)

func ParseShapeType(s string) (ShapeType, error) {
	switch t := ShapeType(s); t {
	case ShapeBox, ShapeSphere, ShapeCylinder, ShapeCapsule, ShapeCone, ShapeHull, ShapeMesh:
		return t, nil
	case "":
		return ShapeBox, nil
	default:
		return "", fmt.Errorf("%w: shape type %q", ErrInvalidOption, s)
	}
}

// ShapeOptions configures a shape group. Zero dimensions are fitted to the
// geometry bounds.
type ShapeOptions struct {
	Type        ShapeType
	HalfExtents mgl32.Vec3
	Radius      float32
	Height      float32
	Offset      mgl32.Vec3
	Margin      float32
}

// Geometry is the vertex data a shape group is built from. Vertices are xyz
// triples; Indexes, when present, list triangles. Matrix maps geometry space
// into body space; the zero matrix means identity.
type Geometry struct {
	Vertices []float32
	Indexes  []int
	Matrix   mgl32.Mat4
}

// Points returns the vertices transformed into body space.
func (g Geometry) Points() []mgl32.Vec3 {
	m := g.Matrix
	if m == (mgl32.Mat4{}) {
		m = mgl32.Ident4()
	}
	pts := make([]mgl32.Vec3, 0, len(g.Vertices)/3)
	for i := 0; i+2 < len(g.Vertices); i += 3 {
		v := mgl32.Vec3{g.Vertices[i], g.Vertices[i+1], g.Vertices[i+2]}
		pts = append(pts, mgl32.TransformCoordinate(v, m))
	}
	return pts
}

// Bounds returns the axis-aligned box around the body-space vertices.
func (g Geometry) Bounds() (lo, hi mgl32.Vec3, ok bool) {
	pts := g.Points()
	if len(pts) == 0 {
		return lo, hi, false
	}
	lo, hi = pts[0], pts[0]
	for _, p := range pts[1:] {
		for i := 0; i < 3; i++ {
			if p[i] < lo[i] {
				lo[i] = p[i]
			}
			if p[i] > hi[i] {
				hi[i] = p[i]
			}
		}
	}
	return lo, hi, true
}

// ConstraintType selects the joint built between two bodies.
type ConstraintType string

const (
	ConstraintLock         ConstraintType = "lock"
	ConstraintFixed        ConstraintType = "fixed"
	ConstraintSpring       ConstraintType = "spring"
	ConstraintSlider       ConstraintType = "slider"
	ConstraintHinge        ConstraintType = "hinge"
	ConstraintConeTwist    ConstraintType = "coneTwist"
	ConstraintPointToPoint ConstraintType = "pointToPoint"
)

// ParseConstraintType maps a config name to a ConstraintType. Empty means
// lock.
func ParseConstraintType(s string) (ConstraintType, error) {
	switch t := ConstraintType(s); t {
	case "":
		return ConstraintLock, nil
	case ConstraintLock, ConstraintFixed, ConstraintSpring, ConstraintSlider,
		ConstraintHinge, ConstraintConeTwist, ConstraintPointToPoint:
		return t, nil
	default:
		return "", fmt.Errorf("%w: constraint type %q", ErrInvalidOption, s)
	}
}

// ConstraintOptions configures a joint. Pivot is local to the first body,
// TargetPivot to the second. Axis is the slide direction in the target's
// space. Min and Max are slider travel or cone-twist angle limits.
type ConstraintOptions struct {
	Type              ConstraintType
	Pivot             mgl32.Vec3
	TargetPivot       mgl32.Vec3
	Axis              mgl32.Vec3
	RestLength        float64
	Stiffness         float64
	Damping           float64
	Min, Max          float64
	MaxForce          float64
	DisableCollisions bool
}
