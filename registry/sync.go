package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/milk9111/physsync/buffer"
	"github.com/milk9111/physsync/engine"
)

// Sync moves state between the engine and buf for every live body, in slot
// order. Dynamic bodies publish their simulated transform; kinematic and
// static bodies adopt whatever the consumer left in their slot.
func (r *Registry) Sync(buf *buffer.Buffer) {
	if buf == nil {
		return
	}
	limit := min(len(r.bySlot), buf.Capacity())
	for s := 0; s < limit; s++ {
		b := r.bySlot[s]
		if b == nil {
			continue
		}

		if b.Type == engine.BodyDynamic {
			if m, err := r.eng.Transform(b.Handle); err == nil {
				b.Matrix = m
			} else {
				r.logger.Printf("Registry: read transform of %s: %v", b.ID, err)
			}
		} else if in := buf.Matrix(s); usable(in) {
			if err := r.eng.SetTransform(b.Handle, in); err == nil {
				b.Matrix = in
			} else {
				r.logger.Printf("Registry: write transform of %s: %v", b.ID, err)
			}
		}
		buf.SetMatrix(s, b.Matrix)

		lin, ang, err := r.eng.Velocities(b.Handle)
		if err != nil {
			lin, ang = 0, 0
		}
		buf.SetSpeeds(s, lin, ang)

		r.partners = r.eng.Collisions(b.Handle, r.partners[:0])
		r.hits = r.hits[:0]
		for _, p := range r.partners {
			if len(r.hits) == buffer.MaxCollisions {
				break
			}
			if ps, ok := r.handleToSlot[p]; ok {
				r.hits = append(r.hits, int32(ps))
			}
		}
		buf.SetCollisions(s, r.hits)
	}
}

// Body returns a copy of the body record.
func (r *Registry) Body(id string) (Body, bool) {
	b, ok := r.bodies[id]
	if !ok {
		return Body{}, false
	}
	out := *b
	out.Groups = append([]string(nil), b.Groups...)
	out.Constraints = append([]string(nil), b.Constraints...)
	return out, true
}

// Bodies lists live bodies in slot order.
func (r *Registry) Bodies() []Body {
	out := make([]Body, 0, len(r.bodies))
	for _, b := range r.bySlot {
		if b != nil {
			body, _ := r.Body(b.ID)
			out = append(out, body)
		}
	}
	return out
}

func (r *Registry) ShapeGroup(id string) (ShapeGroup, bool) {
	g, ok := r.groups[id]
	if !ok {
		return ShapeGroup{}, false
	}
	return *g, true
}

func (r *Registry) Constraint(id string) (Constraint, bool) {
	c, ok := r.constraints[id]
	if !ok {
		return Constraint{}, false
	}
	return *c, true
}

// Slot returns the slot of a live body.
func (r *Registry) Slot(id string) (int, bool) {
	b, ok := r.bodies[id]
	if !ok {
		return 0, false
	}
	return b.Slot, true
}

func (r *Registry) Len() int {
	return len(r.bodies)
}

func (r *Registry) Capacity() int {
	return r.slots.Cap()
}

// CheckInvariants verifies slot ownership, referential integrity and the
// shape of the free list.
func (r *Registry) CheckInvariants() error {
	var errs []error

	seen := make(map[int]string, len(r.bodies))
	ids := make([]string, 0, len(r.bodies))
	for id := range r.bodies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		b := r.bodies[id]
		if other, dup := seen[b.Slot]; dup {
			errs = append(errs, fmt.Errorf("slot %d held by %s and %s", b.Slot, other, id))
		}
		seen[b.Slot] = id
		if b.Slot < 0 || b.Slot >= len(r.bySlot) || r.bySlot[b.Slot] != b {
			errs = append(errs, fmt.Errorf("body %s not indexed at slot %d", id, b.Slot))
		}
		if !r.slots.InUse(b.Slot) {
			errs = append(errs, fmt.Errorf("body %s slot %d is on the free list", id, b.Slot))
		}
		if s, ok := r.handleToSlot[b.Handle]; !ok || s != b.Slot {
			errs = append(errs, fmt.Errorf("body %s handle maps to slot %d", id, s))
		}
	}
	if len(r.handleToSlot) != len(r.bodies) {
		errs = append(errs, fmt.Errorf("%d handles mapped for %d bodies", len(r.handleToSlot), len(r.bodies)))
	}

	for id, g := range r.groups {
		if _, ok := r.bodies[g.BodyID]; !ok {
			errs = append(errs, fmt.Errorf("shape group %s references missing body %s", id, g.BodyID))
		}
	}
	for id, c := range r.constraints {
		for _, bid := range []string{c.BodyID, c.TargetID} {
			if _, ok := r.bodies[bid]; !ok {
				errs = append(errs, fmt.Errorf("constraint %s references missing body %s", id, bid))
			}
		}
	}

	free := 0
	if !r.slots.Walk(func(int) bool { free++; return true }) {
		errs = append(errs, errors.New("free list is corrupt or cyclic"))
	}
	if want := r.slots.Cap() - len(r.bodies); free != want {
		errs = append(errs, fmt.Errorf("free list has %d entries, want %d", free, want))
	}
	return errors.Join(errs...)
}
