package chipmunk

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/jakecoffman/cp"
	"github.com/milk9111/physsync/common"
	"github.com/milk9111/physsync/engine"
)

// CreateBody adds a body posed by m. Static bodies are kinematic bodies that
// are never given a velocity, so their shapes move with SetTransform.
func (w *World) CreateBody(m mgl32.Mat4, opts engine.BodyOptions) (engine.Handle, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}
	typ := opts.TypeOr(engine.BodyDynamic)

	var body *cp.Body
	if typ == engine.BodyDynamic {
		mass := massOf(opts)
		body = cp.NewBody(mass, cp.MomentForBox(mass, 1, 1))
	} else {
		body = cp.NewKinematicBody()
	}

	pose := common.PoseFromMatrix(m)
	body.SetPosition(cp.Vector{X: pose.X, Y: pose.Y})
	body.SetAngle(pose.Angle)
	w.space.AddBody(body)

	info := &bodyInfo{body: body, typ: typ, opts: opts, frame: m}
	w.applyDynamics(info)
	h := w.bodies.Insert(info)
	w.handles[body] = h
	return h, nil
}

// UpdateBody merges opts into the body's configuration and wakes it.
func (w *World) UpdateBody(h engine.Handle, opts engine.BodyOptions) error {
	info, err := w.body(h)
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	info.opts = info.opts.Merge(opts)

	typ := info.opts.TypeOr(engine.BodyDynamic)
	retyped := typ != info.typ
	if retyped {
		info.typ = typ
		if typ == engine.BodyDynamic {
			info.body.SetType(cp.BODY_DYNAMIC)
		} else {
			info.body.SetType(cp.BODY_KINEMATIC)
			info.body.SetVelocity(0, 0)
			info.body.SetAngularVelocity(0)
		}
	}
	w.applyDynamics(info)
	if retyped {
		for _, ch := range info.joints {
			if c, ok := w.constraints.Get(ch); ok {
				w.refreshConstraint(c)
			}
		}
	}
	for _, gh := range info.groups {
		if g, ok := w.groups.Get(gh); ok {
			for _, shape := range g.shapes {
				applyMaterial(shape, info.opts)
			}
		}
	}
	info.body.Activate()
	return nil
}

// DestroyBody removes the body together with its shapes and every
// constraint touching it.
func (w *World) DestroyBody(h engine.Handle) error {
	info, err := w.body(h)
	if err != nil {
		return err
	}
	for _, ch := range append([]engine.Handle(nil), info.joints...) {
		_ = w.RemoveConstraint(ch)
	}
	for _, gh := range append([]engine.Handle(nil), info.groups...) {
		_ = w.DetachShapes(gh)
	}
	w.space.RemoveBody(info.body)
	delete(w.handles, info.body)
	delete(w.contacts, info.body)
	w.bodies.Remove(h)
	return nil
}

func massOf(opts engine.BodyOptions) float64 {
	if opts.Mass == nil || *opts.Mass <= 0 {
		return engine.DefaultMass
	}
	return *opts.Mass
}

// applyDynamics pushes mass, moment and the velocity integrator for dynamic
// bodies.
func (w *World) applyDynamics(info *bodyInfo) {
	if info.typ != engine.BodyDynamic {
		return
	}
	body := info.body
	mass := massOf(info.opts)
	body.SetMass(mass)
	body.SetMoment(w.momentOf(info, mass))

	opts := info.opts
	if opts.Gravity == nil && opts.LinearDamping == nil && opts.AngularDamping == nil {
		body.SetVelocityUpdateFunc(cp.BodyUpdateVelocity)
		return
	}
	linear, angular := 0.0, 0.0
	if opts.LinearDamping != nil {
		linear = *opts.LinearDamping
	}
	if opts.AngularDamping != nil {
		angular = *opts.AngularDamping
	}
	override := opts.Gravity
	body.SetVelocityUpdateFunc(func(body *cp.Body, gravity cp.Vector, damping float64, dt float64) {
		if override != nil {
			gravity = cp.Vector{X: float64(override[0]), Y: float64(override[1])}
		}
		cp.BodyUpdateVelocity(body, gravity, damping, dt)
		if linear > 0 {
			body.SetVelocityVector(body.Velocity().Mult(math.Pow(1-linear, dt)))
		}
		if angular > 0 {
			body.SetAngularVelocity(body.AngularVelocity() * math.Pow(1-angular, dt))
		}
	})
}

// momentOf spreads mass evenly over the body's shapes. A body without shapes
// gets the moment of a unit box so the solver never sees zero.
func (w *World) momentOf(info *bodyInfo, mass float64) float64 {
	var unit float64
	n := 0
	for _, gh := range info.groups {
		g, ok := w.groups.Get(gh)
		if !ok {
			continue
		}
		for _, um := range g.unitMoments {
			unit += um
			n++
		}
	}
	if n == 0 || unit <= 0 || math.IsNaN(unit) || math.IsInf(unit, 0) {
		return cp.MomentForBox(mass, 1, 1)
	}
	return unit * mass / float64(n)
}

func (w *World) Transform(h engine.Handle) (mgl32.Mat4, error) {
	info, err := w.body(h)
	if err != nil {
		return mgl32.Mat4{}, err
	}
	pos := info.body.Position()
	return common.ComposeMatrix(common.Pose{X: pos.X, Y: pos.Y, Angle: info.body.Angle()}, info.frame), nil
}

func (w *World) SetTransform(h engine.Handle, m mgl32.Mat4) error {
	info, err := w.body(h)
	if err != nil {
		return err
	}
	pose := common.PoseFromMatrix(m)
	info.body.SetPosition(cp.Vector{X: pose.X, Y: pose.Y})
	info.body.SetAngle(pose.Angle)
	info.frame = m
	return nil
}

func (w *World) Velocities(h engine.Handle) (float32, float32, error) {
	info, err := w.body(h)
	if err != nil {
		return 0, 0, err
	}
	return float32(info.body.Velocity().Length()), float32(math.Abs(info.body.AngularVelocity())), nil
}

func (w *World) SetLinearVelocity(h engine.Handle, v mgl32.Vec3) error {
	info, err := w.body(h)
	if err != nil {
		return err
	}
	info.body.SetVelocity(float64(v[0]), float64(v[1]))
	return nil
}

// SetAngularVelocity uses the Z component; rotation in the plane is about Z.
func (w *World) SetAngularVelocity(h engine.Handle, v mgl32.Vec3) error {
	info, err := w.body(h)
	if err != nil {
		return err
	}
	info.body.SetAngularVelocity(float64(v[2]))
	return nil
}

// ApplyForce pushes at offset, given in body space.
func (w *World) ApplyForce(h engine.Handle, force, offset mgl32.Vec3) error {
	info, err := w.dynamicBody(h)
	if err != nil {
		return err
	}
	info.body.ApplyForceAtLocalPoint(vec(force), vec(offset))
	return nil
}

// ApplyImpulse kicks at offset, given in body space.
func (w *World) ApplyImpulse(h engine.Handle, impulse, offset mgl32.Vec3) error {
	info, err := w.dynamicBody(h)
	if err != nil {
		return err
	}
	info.body.ApplyImpulseAtWorldPoint(vec(impulse), info.body.LocalToWorld(vec(offset)))
	return nil
}

func (w *World) Activate(h engine.Handle) error {
	info, err := w.body(h)
	if err != nil {
		return err
	}
	info.body.Activate()
	return nil
}

func (w *World) dynamicBody(h engine.Handle) (*bodyInfo, error) {
	info, err := w.body(h)
	if err != nil {
		return nil, err
	}
	if info.typ != engine.BodyDynamic {
		return nil, fmt.Errorf("%w: %s body %v cannot take forces", engine.ErrInvalidOption, info.typ, h)
	}
	return info, nil
}

func vec(v mgl32.Vec3) cp.Vector {
	return cp.Vector{X: float64(v[0]), Y: float64(v[1])}
}
