// Package chipmunk implements engine.Engine on top of the cp port of
// Chipmunk2D. Bodies live in the XY plane; the Z row of a transform is
// carried through untouched.
package chipmunk

import (
	"fmt"
	"log"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/jakecoffman/cp"
	"github.com/milk9111/physsync/engine"
)

const collisionTypeBody cp.CollisionType = 1

// Options configures the space.
type Options struct {
	Gravity            mgl32.Vec3
	Iterations         int
	Damping            float64
	FixedTimeStep      float64
	MaxSubSteps        int
	SleepTimeThreshold float64
}

// DefaultOptions matches a 60Hz fixed step with downward gravity.
func DefaultOptions() Options {
	return Options{
		Gravity:       mgl32.Vec3{0, -9.8, 0},
		Iterations:    10,
		Damping:       1,
		FixedTimeStep: 1.0 / 60.0,
		MaxSubSteps:   4,
	}
}

// World owns a cp.Space and every object added to it.
type World struct {
	space *cp.Space
	opts  Options
	accum float64

	bodies      engine.Table[*bodyInfo]
	groups      engine.Table[*groupInfo]
	constraints engine.Table[*constraintInfo]

	handles  map[*cp.Body]engine.Handle
	contacts map[*cp.Body][]*cp.Body

	logger *log.Logger
}

type bodyInfo struct {
	body   *cp.Body
	typ    engine.BodyType
	opts   engine.BodyOptions
	groups []engine.Handle
	joints []engine.Handle
	// z and scale of the last transform written from outside.
	frame mgl32.Mat4
}

type groupInfo struct {
	body   engine.Handle
	shapes []*cp.Shape
	// moment contribution of each shape per unit mass.
	unitMoments []float64
}

type constraintInfo struct {
	body, target engine.Handle
	parts        []*cp.Constraint
	// active is set while parts are in the space.
	active bool
}

var _ engine.Engine = (*World)(nil)

// New creates an empty world.
func New(opts Options) *World {
	if opts.Iterations <= 0 {
		opts.Iterations = 10
	}
	if opts.Damping <= 0 {
		opts.Damping = 1
	}
	if opts.MaxSubSteps <= 0 {
		opts.MaxSubSteps = 1
	}

	space := cp.NewSpace()
	space.Iterations = uint(opts.Iterations)
	space.SetGravity(cp.Vector{X: float64(opts.Gravity[0]), Y: float64(opts.Gravity[1])})
	space.SetDamping(opts.Damping)
	if opts.SleepTimeThreshold > 0 {
		space.SleepTimeThreshold = opts.SleepTimeThreshold
	}

	w := &World{
		space:    space,
		opts:     opts,
		handles:  make(map[*cp.Body]engine.Handle),
		contacts: make(map[*cp.Body][]*cp.Body),
		logger:   log.Default(),
	}
	w.setupHandlers()
	return w
}

// SetLogger replaces the logger used for absorbed failures.
func (w *World) SetLogger(l *log.Logger) {
	if l != nil {
		w.logger = l
	}
}

// Space returns the underlying cp space.
func (w *World) Space() *cp.Space {
	if w == nil {
		return nil
	}
	return w.space
}

func (w *World) setupHandlers() {
	handler := w.space.NewCollisionHandler(collisionTypeBody, collisionTypeBody)
	handler.UserData = w
	handler.PreSolveFunc = func(arb *cp.Arbiter, space *cp.Space, userData interface{}) bool {
		world, ok := userData.(*World)
		if !ok || world == nil {
			return true
		}
		shapeA, shapeB := arb.Shapes()
		if shapeA == nil || shapeB == nil {
			return true
		}
		world.recordContact(shapeA.Body(), shapeB.Body())
		world.recordContact(shapeB.Body(), shapeA.Body())
		return true
	}
}

func (w *World) recordContact(a, b *cp.Body) {
	if a == nil || b == nil || a == b {
		return
	}
	for _, seen := range w.contacts[a] {
		if seen == b {
			return
		}
	}
	w.contacts[a] = append(w.contacts[a], b)
}

// Step advances the space in fixed increments. Leftover time carries to the
// next call; increments beyond MaxSubSteps are dropped.
func (w *World) Step(dt float64) {
	if w == nil || dt <= 0 {
		return
	}
	fixed := w.opts.FixedTimeStep
	if fixed <= 0 {
		w.clearContacts()
		w.space.Step(dt)
		return
	}

	w.accum += dt
	steps := int(w.accum / fixed)
	if steps == 0 {
		return
	}
	w.accum -= float64(steps) * fixed
	if steps > w.opts.MaxSubSteps {
		steps = w.opts.MaxSubSteps
	}

	w.clearContacts()
	for i := 0; i < steps; i++ {
		w.space.Step(fixed)
	}
}

func (w *World) clearContacts() {
	for k := range w.contacts {
		delete(w.contacts, k)
	}
}

// Collisions appends the bodies that touched h during the last step that
// ran.
func (w *World) Collisions(h engine.Handle, dst []engine.Handle) []engine.Handle {
	info, ok := w.bodies.Get(h)
	if !ok {
		return dst
	}
	for _, other := range w.contacts[info.body] {
		if oh, ok := w.handles[other]; ok {
			dst = append(dst, oh)
		}
	}
	return dst
}

func (w *World) body(h engine.Handle) (*bodyInfo, error) {
	info, ok := w.bodies.Get(h)
	if !ok {
		return nil, fmt.Errorf("%w: body %v", engine.ErrUnknownHandle, h)
	}
	return info, nil
}
