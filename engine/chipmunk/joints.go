package chipmunk

import (
	"fmt"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/physsync/engine"
)

const (
	defaultSpringStiffness = 100.0
	defaultSpringDamping   = 10.0
	defaultSliderTravel    = 1e4
)

// AddConstraint joins body and target. One engine constraint may need
// several cp constraints; they are added and removed together. While neither
// body is dynamic the parts stay out of the space.
func (w *World) AddConstraint(bh, th engine.Handle, opts engine.ConstraintOptions) (engine.Handle, error) {
	if bh == th {
		return 0, fmt.Errorf("%w: constraint joins body %v to itself", engine.ErrInvalidOption, bh)
	}
	a, err := w.body(bh)
	if err != nil {
		return 0, err
	}
	b, err := w.body(th)
	if err != nil {
		return 0, err
	}
	typ := opts.Type
	if typ == "" {
		typ = engine.ConstraintLock
	}

	pivotA, pivotB := vec(opts.Pivot), vec(opts.TargetPivot)
	var parts []*cp.Constraint
	switch typ {
	case engine.ConstraintLock, engine.ConstraintFixed:
		pivot := cp.NewPivotJoint(a.body, b.body, a.body.LocalToWorld(pivotA))
		gear := cp.NewGearJoint(a.body, b.body, b.body.Angle()-a.body.Angle(), 1)
		parts = append(parts, pivot, gear)
	case engine.ConstraintSpring:
		rest := opts.RestLength
		if rest <= 0 {
			rest = a.body.LocalToWorld(pivotA).Distance(b.body.LocalToWorld(pivotB))
		}
		stiffness, damping := opts.Stiffness, opts.Damping
		if stiffness <= 0 {
			stiffness = defaultSpringStiffness
		}
		if damping <= 0 {
			damping = defaultSpringDamping
		}
		parts = append(parts, cp.NewDampedSpring(a.body, b.body, pivotA, pivotB, rest, stiffness, damping))
	case engine.ConstraintSlider:
		axis := vec(opts.Axis)
		if axis.LengthSq() == 0 {
			axis = cp.Vector{X: 1}
		}
		axis = axis.Normalize()
		lo, hi := opts.Min, opts.Max
		if lo >= hi {
			lo, hi = -defaultSliderTravel, defaultSliderTravel
		}
		grooveA := pivotB.Add(axis.Mult(lo))
		grooveB := pivotB.Add(axis.Mult(hi))
		parts = append(parts, cp.NewGrooveJoint(b.body, a.body, grooveA, grooveB, pivotA))
	case engine.ConstraintHinge:
		parts = append(parts, cp.NewPivotJoint2(a.body, b.body, pivotA, pivotB))
	case engine.ConstraintConeTwist:
		parts = append(parts, cp.NewPivotJoint2(a.body, b.body, pivotA, pivotB))
		if opts.Min < opts.Max {
			parts = append(parts, cp.NewRotaryLimitJoint(a.body, b.body, opts.Min, opts.Max))
		}
	case engine.ConstraintPointToPoint:
		parts = append(parts, cp.NewPinJoint(a.body, b.body, pivotA, pivotB))
	default:
		return 0, fmt.Errorf("%w: constraint type %q", engine.ErrInvalidOption, typ)
	}

	for _, c := range parts {
		if opts.MaxForce > 0 {
			c.SetMaxForce(opts.MaxForce)
		}
		if opts.DisableCollisions {
			c.SetCollideBodies(false)
		}
	}

	info := &constraintInfo{body: bh, target: th, parts: parts}
	ch := w.constraints.Insert(info)
	a.joints = append(a.joints, ch)
	b.joints = append(b.joints, ch)
	w.refreshConstraint(info)
	return ch, nil
}

func (w *World) RemoveConstraint(ch engine.Handle) error {
	info, ok := w.constraints.Remove(ch)
	if !ok {
		return fmt.Errorf("%w: constraint %v", engine.ErrUnknownHandle, ch)
	}
	if info.active {
		for _, c := range info.parts {
			w.space.RemoveConstraint(c)
		}
	}
	for _, bh := range []engine.Handle{info.body, info.target} {
		if b, ok := w.bodies.Get(bh); ok {
			b.joints = removeHandle(b.joints, ch)
		}
	}
	return nil
}

// ConstraintActive reports whether the constraint is in the solver.
func (w *World) ConstraintActive(ch engine.Handle) bool {
	info, ok := w.constraints.Get(ch)
	return ok && info.active
}

// refreshConstraint keeps a constraint in the space only while one of its
// bodies is dynamic. With infinite mass on both ends the solver divides by
// zero.
func (w *World) refreshConstraint(info *constraintInfo) {
	want := w.isDynamic(info.body) || w.isDynamic(info.target)
	if want == info.active {
		return
	}
	for _, c := range info.parts {
		if want {
			w.space.AddConstraint(c)
		} else {
			w.space.RemoveConstraint(c)
		}
	}
	info.active = want
}

func (w *World) isDynamic(h engine.Handle) bool {
	info, ok := w.bodies.Get(h)
	return ok && info.typ == engine.BodyDynamic
}
