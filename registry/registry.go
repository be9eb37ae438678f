// Package registry owns every simulated object, the slot each body occupies
// in the shared buffer, and the reverse map from engine handles to slots.
package registry

import (
	"errors"
	"fmt"
	"log"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/milk9111/physsync/buffer"
	"github.com/milk9111/physsync/common"
	"github.com/milk9111/physsync/engine"
	"github.com/milk9111/physsync/slot"
)

var (
	ErrCapacityExceeded    = errors.New("registry: capacity exceeded")
	ErrDuplicateBody       = errors.New("registry: body already exists")
	ErrDuplicateShapeGroup = errors.New("registry: shape group already exists")
	ErrDuplicateConstraint = errors.New("registry: constraint already exists")
	ErrUnknownBody         = errors.New("registry: unknown body")
	ErrUnknownShapeGroup   = errors.New("registry: unknown shape group")
	ErrUnknownConstraint   = errors.New("registry: unknown constraint")
)

// Body is a live simulated body.
type Body struct {
	ID          string
	Slot        int
	Matrix      mgl32.Mat4
	Type        engine.BodyType
	Handle      engine.Handle
	Groups      []string
	Constraints []string
}

// ShapeGroup is a set of shapes attached to one body.
type ShapeGroup struct {
	ID     string
	BodyID string
	Handle engine.Handle
}

// Constraint joins two bodies.
type Constraint struct {
	ID       string
	BodyID   string
	TargetID string
	Handle   engine.Handle
}

type Option func(*Registry)

func WithLogger(l *log.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// Registry is not safe for concurrent use; the simulation goroutine owns it.
type Registry struct {
	eng   engine.Engine
	slots *slot.Allocator

	bodies       map[string]*Body
	groups       map[string]*ShapeGroup
	constraints  map[string]*Constraint
	bySlot       []*Body
	handleToSlot map[engine.Handle]int

	partners []engine.Handle
	hits     []int32

	logger *log.Logger
}

// New creates a registry with capacity body slots backed by eng.
func New(eng engine.Engine, capacity int, opts ...Option) *Registry {
	if capacity < 0 {
		capacity = 0
	}
	r := &Registry{
		eng:          eng,
		slots:        slot.New(capacity),
		bodies:       make(map[string]*Body),
		groups:       make(map[string]*ShapeGroup),
		constraints:  make(map[string]*Constraint),
		bySlot:       make([]*Body, capacity),
		handleToSlot: make(map[engine.Handle]int),
		hits:         make([]int32, 0, buffer.MaxCollisions),
		logger:       log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Engine() engine.Engine {
	return r.eng
}

// AddBody creates a body in a fresh slot. When buf is non-nil the initial
// transform is written to the slot so the consumer sees it before the first
// sync.
func (r *Registry) AddBody(buf *buffer.Buffer, id string, m mgl32.Mat4, opts engine.BodyOptions) (int, error) {
	if _, ok := r.bodies[id]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateBody, id)
	}
	s, ok := r.slots.Allocate()
	if !ok {
		return 0, fmt.Errorf("%w: %d bodies live", ErrCapacityExceeded, r.slots.Live())
	}
	h, err := r.eng.CreateBody(m, opts)
	if err != nil {
		_ = r.slots.Release(s)
		return 0, fmt.Errorf("registry: create body %s: %w", id, err)
	}

	b := &Body{
		ID:     id,
		Slot:   s,
		Matrix: m,
		Type:   opts.TypeOr(engine.BodyDynamic),
		Handle: h,
	}
	r.bodies[id] = b
	r.bySlot[s] = b
	r.handleToSlot[h] = s

	if buf != nil && s < buf.Capacity() {
		buf.SetMatrix(s, m)
		buf.SetSpeeds(s, 0, 0)
		buf.SetCollisions(s, nil)
	}
	return s, nil
}

// UpdateBody applies a partial configuration change and wakes the body.
func (r *Registry) UpdateBody(id string, opts engine.BodyOptions) error {
	b, err := r.body(id)
	if err != nil {
		return err
	}
	if err := r.eng.UpdateBody(b.Handle, opts); err != nil {
		return fmt.Errorf("registry: update body %s: %w", id, err)
	}
	if opts.Type != nil {
		b.Type = *opts.Type
	}
	return r.eng.Activate(b.Handle)
}

// RemoveBody destroys the body and everything attached to it, then frees
// its slot.
func (r *Registry) RemoveBody(id string) error {
	b, err := r.body(id)
	if err != nil {
		return err
	}
	for _, cid := range append([]string(nil), b.Constraints...) {
		if err := r.RemoveConstraint(cid); err != nil {
			r.logger.Printf("Registry: remove constraint %s of body %s: %v", cid, id, err)
		}
	}
	for _, gid := range append([]string(nil), b.Groups...) {
		if err := r.RemoveShapeGroup(id, gid); err != nil {
			r.logger.Printf("Registry: remove shape group %s of body %s: %v", gid, id, err)
		}
	}
	if err := r.eng.DestroyBody(b.Handle); err != nil {
		r.logger.Printf("Registry: destroy body %s: %v", id, err)
	}

	delete(r.handleToSlot, b.Handle)
	delete(r.bodies, id)
	r.bySlot[b.Slot] = nil
	if err := r.slots.Release(b.Slot); err != nil {
		return fmt.Errorf("registry: release slot %d: %w", b.Slot, err)
	}
	return nil
}

// AddShapeGroup builds shapes from geom on the body. ErrUnknownBody means
// the caller should retry once the body exists.
func (r *Registry) AddShapeGroup(bodyID, groupID string, geom engine.Geometry, opts engine.ShapeOptions) error {
	b, err := r.body(bodyID)
	if err != nil {
		return err
	}
	if _, ok := r.groups[groupID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateShapeGroup, groupID)
	}
	h, err := r.eng.AttachShapes(b.Handle, geom, opts)
	if err != nil {
		return fmt.Errorf("registry: shape group %s: %w", groupID, err)
	}
	r.groups[groupID] = &ShapeGroup{ID: groupID, BodyID: bodyID, Handle: h}
	b.Groups = append(b.Groups, groupID)
	return nil
}

// RemoveShapeGroup detaches the group. The group must belong to bodyID.
func (r *Registry) RemoveShapeGroup(bodyID, groupID string) error {
	b, err := r.body(bodyID)
	if err != nil {
		return err
	}
	g, ok := r.groups[groupID]
	if !ok || g.BodyID != bodyID {
		return fmt.Errorf("%w: %s on body %s", ErrUnknownShapeGroup, groupID, bodyID)
	}
	if err := r.eng.DetachShapes(g.Handle); err != nil {
		r.logger.Printf("Registry: detach shape group %s: %v", groupID, err)
	}
	delete(r.groups, groupID)
	b.Groups = removeID(b.Groups, groupID)
	return nil
}

// AddConstraint joins two distinct existing bodies. ErrUnknownBody means
// the caller should retry once both exist.
func (r *Registry) AddConstraint(id, bodyID, targetID string, opts engine.ConstraintOptions) error {
	if _, ok := r.constraints[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateConstraint, id)
	}
	if bodyID == targetID {
		return fmt.Errorf("%w: constraint %s joins body %s to itself", engine.ErrInvalidOption, id, bodyID)
	}
	b, err := r.body(bodyID)
	if err != nil {
		return err
	}
	t, err := r.body(targetID)
	if err != nil {
		return err
	}
	if opts.Type == "" {
		opts.Type = engine.ConstraintLock
	}
	h, err := r.eng.AddConstraint(b.Handle, t.Handle, opts)
	if err != nil {
		return fmt.Errorf("registry: constraint %s: %w", id, err)
	}
	r.constraints[id] = &Constraint{ID: id, BodyID: bodyID, TargetID: targetID, Handle: h}
	b.Constraints = append(b.Constraints, id)
	t.Constraints = append(t.Constraints, id)
	return nil
}

func (r *Registry) RemoveConstraint(id string) error {
	c, ok := r.constraints[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConstraint, id)
	}
	if err := r.eng.RemoveConstraint(c.Handle); err != nil {
		r.logger.Printf("Registry: remove constraint %s: %v", id, err)
	}
	delete(r.constraints, id)
	for _, bid := range []string{c.BodyID, c.TargetID} {
		if b, ok := r.bodies[bid]; ok {
			b.Constraints = removeID(b.Constraints, id)
		}
	}
	return nil
}

// ResetBody moves the body to the transform currently in its buffer slot and
// stops it.
func (r *Registry) ResetBody(buf *buffer.Buffer, id string) error {
	b, err := r.body(id)
	if err != nil {
		return err
	}
	m := b.Matrix
	if buf != nil && b.Slot < buf.Capacity() {
		if in := buf.Matrix(b.Slot); usable(in) {
			m = in
		}
	}
	if err := r.eng.SetTransform(b.Handle, m); err != nil {
		return err
	}
	b.Matrix = m
	if err := r.eng.SetLinearVelocity(b.Handle, mgl32.Vec3{}); err != nil {
		return err
	}
	return r.eng.SetAngularVelocity(b.Handle, mgl32.Vec3{})
}

func (r *Registry) ActivateBody(id string) error {
	b, err := r.body(id)
	if err != nil {
		return err
	}
	return r.eng.Activate(b.Handle)
}

func (r *Registry) ApplyForce(id string, force, offset mgl32.Vec3) error {
	b, err := r.body(id)
	if err != nil {
		return err
	}
	return r.eng.ApplyForce(b.Handle, force, offset)
}

func (r *Registry) ApplyImpulse(id string, impulse, offset mgl32.Vec3) error {
	b, err := r.body(id)
	if err != nil {
		return err
	}
	return r.eng.ApplyImpulse(b.Handle, impulse, offset)
}

func (r *Registry) SetLinearVelocity(id string, v mgl32.Vec3) error {
	b, err := r.body(id)
	if err != nil {
		return err
	}
	return r.eng.SetLinearVelocity(b.Handle, v)
}

func (r *Registry) SetAngularVelocity(id string, v mgl32.Vec3) error {
	b, err := r.body(id)
	if err != nil {
		return err
	}
	return r.eng.SetAngularVelocity(b.Handle, v)
}

func (r *Registry) body(id string) (*Body, error) {
	b, ok := r.bodies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBody, id)
	}
	return b, nil
}

// usable rejects transforms the consumer never wrote.
func usable(m mgl32.Mat4) bool {
	return m != (mgl32.Mat4{}) && common.Finite(m)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
