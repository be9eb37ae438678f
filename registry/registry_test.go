package registry

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/milk9111/physsync/buffer"
	"github.com/milk9111/physsync/engine"
	"github.com/milk9111/physsync/engine/chipmunk"
)

func newTestRegistry(capacity int) (*Registry, *chipmunk.World) {
	opts := chipmunk.DefaultOptions()
	opts.Gravity = mgl32.Vec3{}
	w := chipmunk.New(opts)
	return New(w, capacity), w
}

func unitBox() engine.Geometry {
	return engine.Geometry{Vertices: []float32{
		-0.5, -0.5, 0,
		0.5, -0.5, 0,
		0.5, 0.5, 0,
		-0.5, 0.5, 0,
	}}
}

func mustAdd(t *testing.T, r *Registry, buf *buffer.Buffer, id string, x, y float32, opts engine.BodyOptions) int {
	t.Helper()
	s, err := r.AddBody(buf, id, mgl32.Translate3D(x, y, 0), opts)
	if err != nil {
		t.Fatalf("add %s: %v", id, err)
	}
	if err := r.AddShapeGroup(id, id+"-shape", unitBox(), engine.ShapeOptions{Type: engine.ShapeBox}); err != nil {
		t.Fatalf("shape %s: %v", id, err)
	}
	return s
}

func checkInvariants(t *testing.T, r *Registry) {
	t.Helper()
	if err := r.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestCapacityScenario(t *testing.T) {
	r, _ := newTestRegistry(4)
	buf := buffer.New(4)

	slots := make(map[string]int)
	for i, id := range []string{"A", "B", "C", "D"} {
		slots[id] = mustAdd(t, r, buf, id, float32(i*10), 0, engine.BodyOptions{})
	}
	checkInvariants(t, r)

	if _, err := r.AddBody(buf, "E", mgl32.Ident4(), engine.BodyOptions{}); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	checkInvariants(t, r)

	if err := r.RemoveBody("A"); err != nil {
		t.Fatal(err)
	}
	s, err := r.AddBody(buf, "E", mgl32.Ident4(), engine.BodyOptions{})
	if err != nil {
		t.Fatalf("add after removal: %v", err)
	}
	if s != slots["A"] {
		t.Fatalf("expected reused slot %d, got %d", slots["A"], s)
	}
	checkInvariants(t, r)
}

func TestDuplicateBody(t *testing.T) {
	r, _ := newTestRegistry(2)
	mustAdd(t, r, nil, "A", 0, 0, engine.BodyOptions{})
	if _, err := r.AddBody(nil, "A", mgl32.Ident4(), engine.BodyOptions{}); !errors.Is(err, ErrDuplicateBody) {
		t.Fatalf("expected ErrDuplicateBody, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("duplicate must not consume a slot")
	}
	checkInvariants(t, r)
}

func TestRemovalCleanup(t *testing.T) {
	r, _ := newTestRegistry(4)
	mustAdd(t, r, nil, "A", 0, 0, engine.BodyOptions{})
	mustAdd(t, r, nil, "B", 5, 0, engine.BodyOptions{})
	if err := r.AddShapeGroup("A", "extra", engine.Geometry{}, engine.ShapeOptions{Type: engine.ShapeSphere, Radius: 1}); err != nil {
		t.Fatal(err)
	}
	if err := r.AddConstraint("joint", "A", "B", engine.ConstraintOptions{}); err != nil {
		t.Fatal(err)
	}
	if c, _ := r.Constraint("joint"); c.Handle == 0 {
		t.Fatalf("constraint not recorded")
	}

	if err := r.RemoveBody("A"); err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, r)

	for _, gid := range []string{"A-shape", "extra"} {
		if _, ok := r.ShapeGroup(gid); ok {
			t.Fatalf("shape group %s survived its body", gid)
		}
	}
	if _, ok := r.Constraint("joint"); ok {
		t.Fatalf("constraint survived its body")
	}
	if b, _ := r.Body("B"); len(b.Constraints) != 0 {
		t.Fatalf("target still lists the constraint: %v", b.Constraints)
	}

	unknown := []struct {
		name string
		err  error
	}{
		{"update", r.UpdateBody("A", engine.BodyOptions{})},
		{"remove", r.RemoveBody("A")},
		{"add shapes", r.AddShapeGroup("A", "late", unitBox(), engine.ShapeOptions{})},
		{"remove shapes", r.RemoveShapeGroup("A", "A-shape")},
		{"add constraint", r.AddConstraint("late", "A", "B", engine.ConstraintOptions{})},
		{"reset", r.ResetBody(nil, "A")},
		{"activate", r.ActivateBody("A")},
		{"impulse", r.ApplyImpulse("A", mgl32.Vec3{1}, mgl32.Vec3{})},
	}
	for _, c := range unknown {
		if !errors.Is(c.err, ErrUnknownBody) {
			t.Fatalf("%s: expected ErrUnknownBody, got %v", c.name, c.err)
		}
	}
}

func TestRemoveShapeGroupOwnership(t *testing.T) {
	r, _ := newTestRegistry(2)
	mustAdd(t, r, nil, "A", 0, 0, engine.BodyOptions{})
	mustAdd(t, r, nil, "B", 5, 0, engine.BodyOptions{})

	if err := r.RemoveShapeGroup("B", "A-shape"); !errors.Is(err, ErrUnknownShapeGroup) {
		t.Fatalf("expected ErrUnknownShapeGroup, got %v", err)
	}
	if err := r.RemoveShapeGroup("A", "missing"); !errors.Is(err, ErrUnknownShapeGroup) {
		t.Fatalf("expected ErrUnknownShapeGroup, got %v", err)
	}
	if err := r.RemoveShapeGroup("A", "A-shape"); err != nil {
		t.Fatal(err)
	}
	if b, _ := r.Body("A"); len(b.Groups) != 0 {
		t.Fatalf("group still listed: %v", b.Groups)
	}
	if err := r.RemoveConstraint("missing"); !errors.Is(err, ErrUnknownConstraint) {
		t.Fatalf("expected ErrUnknownConstraint, got %v", err)
	}
}

func TestMalformedGeometryIsReported(t *testing.T) {
	r, _ := newTestRegistry(1)
	mustAdd(t, r, nil, "A", 0, 0, engine.BodyOptions{})
	err := r.AddShapeGroup("A", "bad", engine.Geometry{}, engine.ShapeOptions{Type: engine.ShapeHull})
	if !errors.Is(err, engine.ErrMalformedGeometry) {
		t.Fatalf("expected ErrMalformedGeometry, got %v", err)
	}
	if _, ok := r.ShapeGroup("bad"); ok {
		t.Fatalf("failed group must not be recorded")
	}
}

func TestKinematicAuthority(t *testing.T) {
	r, w := newTestRegistry(2)
	buf := buffer.New(2)
	kin := engine.BodyKinematic
	s := mustAdd(t, r, buf, "K", 0, 0, engine.BodyOptions{Type: &kin})

	target := mgl32.Translate3D(4, -2, 1).Mul4(mgl32.HomogRotate3DZ(0.25))
	buf.SetMatrix(s, target)
	w.Step(1.0 / 60.0)
	r.Sync(buf)

	b, _ := r.Body("K")
	if b.Matrix != target {
		t.Fatalf("registry did not adopt the consumer transform")
	}
	m, err := w.Transform(b.Handle)
	if err != nil {
		t.Fatal(err)
	}
	if !m.ApproxEqualThreshold(target, 1e-4) {
		t.Fatalf("engine transform %v, want %v", m, target)
	}
	if got := buf.Matrix(s); got != target {
		t.Fatalf("buffer overwritten with stale transform")
	}
}

func TestDynamicAuthority(t *testing.T) {
	r, w := newTestRegistry(1)
	buf := buffer.New(1)
	s := mustAdd(t, r, buf, "D", 0, 0, engine.BodyOptions{})
	if err := r.SetLinearVelocity("D", mgl32.Vec3{6, 0, 0}); err != nil {
		t.Fatal(err)
	}

	buf.SetMatrix(s, mgl32.Translate3D(100, 100, 0))
	w.Step(0.1)
	r.Sync(buf)

	m := buf.Matrix(s)
	if m[12] <= 0 || m[12] >= 100 {
		t.Fatalf("dynamic body should report simulated x, got %v", m[12])
	}
	if buf.LinearSpeed(s) != 6 {
		t.Fatalf("expected speed 6, got %v", buf.LinearSpeed(s))
	}
}

func TestCollisionSlots(t *testing.T) {
	r, w := newTestRegistry(4)
	buf := buffer.New(4)
	a := mustAdd(t, r, buf, "A", 0, 0, engine.BodyOptions{})
	b := mustAdd(t, r, buf, "B", 0.5, 0, engine.BodyOptions{})
	far := mustAdd(t, r, buf, "far", 40, 40, engine.BodyOptions{})

	w.Step(1.0 / 60.0)
	r.Sync(buf)

	if got := buf.Collisions(a, nil); len(got) != 1 || got[0] != int32(b) {
		t.Fatalf("A partners %v, want [%d]", got, b)
	}
	if got := buf.Collisions(b, nil); len(got) != 1 || got[0] != int32(a) {
		t.Fatalf("B partners %v, want [%d]", got, a)
	}
	for i := 0; i < buffer.MaxCollisions; i++ {
		if buf.Collision(far, i) != buffer.NoCollision {
			t.Fatalf("far body collision word %d = %d", i, buf.Collision(far, i))
		}
	}
}

func TestSyncWritesConsistentRecords(t *testing.T) {
	r, w := newTestRegistry(8)
	buf := buffer.New(8)
	for i := 0; i < 5; i++ {
		mustAdd(t, r, buf, fmt.Sprintf("b%d", i), float32(i)*3, 0, engine.BodyOptions{})
	}
	_ = r.SetAngularVelocity("b2", mgl32.Vec3{0, 0, -3})
	for i := 0; i < 10; i++ {
		w.Step(0.02)
		r.Sync(buf)
	}
	for _, b := range r.Bodies() {
		m := buf.Matrix(b.Slot)
		for _, v := range m {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatalf("body %s has non-finite transform %v", b.ID, m)
			}
		}
		if buf.LinearSpeed(b.Slot) < 0 || buf.AngularSpeed(b.Slot) < 0 {
			t.Fatalf("body %s has negative speed", b.ID)
		}
	}
}

func requireFiniteRecords(t *testing.T, r *Registry, buf *buffer.Buffer) {
	t.Helper()
	for _, b := range r.Bodies() {
		m := buf.Matrix(b.Slot)
		for _, v := range m {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatalf("body %s has non-finite transform %v", b.ID, m)
			}
		}
		lin, ang := buf.LinearSpeed(b.Slot), buf.AngularSpeed(b.Slot)
		if !(lin >= 0) || !(ang >= 0) {
			t.Fatalf("body %s has bad speeds %v %v", b.ID, lin, ang)
		}
	}
}

func TestSelfConstraintRejected(t *testing.T) {
	r, w := newTestRegistry(2)
	buf := buffer.New(2)
	mustAdd(t, r, buf, "A", 0, 0, engine.BodyOptions{})

	if err := r.AddConstraint("j", "A", "A", engine.ConstraintOptions{}); !errors.Is(err, engine.ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
	if _, ok := r.Constraint("j"); ok {
		t.Fatalf("rejected constraint must not be recorded")
	}
	w.Step(0.02)
	r.Sync(buf)
	if err := r.RemoveBody("A"); err != nil {
		t.Fatal(err)
	}
	checkInvariants(t, r)
}

func TestConstraintBetweenNonDynamicBodies(t *testing.T) {
	r, w := newTestRegistry(3)
	buf := buffer.New(3)
	kin, static := engine.BodyKinematic, engine.BodyStatic
	mustAdd(t, r, buf, "K", 0, 0, engine.BodyOptions{Type: &kin})
	mustAdd(t, r, buf, "S", 3, 0, engine.BodyOptions{Type: &static})
	mustAdd(t, r, buf, "D", 0.9, 0, engine.BodyOptions{})

	if err := r.AddConstraint("lock", "K", "S", engine.ConstraintOptions{}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		w.Step(1.0 / 60.0)
		r.Sync(buf)
		requireFiniteRecords(t, r, buf)
	}

	dyn := engine.BodyDynamic
	if err := r.UpdateBody("K", engine.BodyOptions{Type: &dyn}); err != nil {
		t.Fatal(err)
	}
	w.Step(1.0 / 60.0)
	r.Sync(buf)
	requireFiniteRecords(t, r, buf)

	if err := r.UpdateBody("K", engine.BodyOptions{Type: &kin}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		w.Step(1.0 / 60.0)
		r.Sync(buf)
		requireFiniteRecords(t, r, buf)
	}

	if err := r.RemoveBody("K"); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Constraint("lock"); ok {
		t.Fatalf("constraint should go with its body")
	}
	checkInvariants(t, r)
}

func TestResetBody(t *testing.T) {
	r, w := newTestRegistry(1)
	buf := buffer.New(1)
	s := mustAdd(t, r, buf, "D", 0, 0, engine.BodyOptions{})
	_ = r.SetLinearVelocity("D", mgl32.Vec3{3, 3, 0})
	w.Step(0.05)

	teleport := mgl32.Translate3D(-7, 2, 0)
	buf.SetMatrix(s, teleport)
	if err := r.ResetBody(buf, "D"); err != nil {
		t.Fatal(err)
	}
	b, _ := r.Body("D")
	lin, ang, err := w.Velocities(b.Handle)
	if err != nil {
		t.Fatal(err)
	}
	if lin != 0 || ang != 0 {
		t.Fatalf("reset should stop the body, got %v %v", lin, ang)
	}
	m, _ := w.Transform(b.Handle)
	if !m.ApproxEqualThreshold(teleport, 1e-5) {
		t.Fatalf("reset transform %v, want %v", m, teleport)
	}
}

type failingEngine struct {
	engine.Engine
}

func (failingEngine) CreateBody(mgl32.Mat4, engine.BodyOptions) (engine.Handle, error) {
	return 0, engine.ErrInvalidOption
}

func TestEngineFailureReleasesSlot(t *testing.T) {
	r := New(failingEngine{}, 2)
	if _, err := r.AddBody(nil, "A", mgl32.Ident4(), engine.BodyOptions{}); !errors.Is(err, engine.ErrInvalidOption) {
		t.Fatalf("expected engine error, got %v", err)
	}
	if r.slots.Free() != 2 {
		t.Fatalf("slot leaked: %d free", r.slots.Free())
	}
	checkInvariants(t, r)
}

func TestRandomLifecycleKeepsInvariants(t *testing.T) {
	const capacity = 6
	r, _ := newTestRegistry(capacity)
	rng := rand.New(rand.NewSource(7))
	live := map[string]bool{}
	next := 0

	for step := 0; step < 300; step++ {
		if rng.Intn(3) > 0 {
			id := fmt.Sprintf("b%d", next)
			next++
			_, err := r.AddBody(nil, id, mgl32.Translate3D(float32(step), 0, 0), engine.BodyOptions{})
			switch {
			case len(live) == capacity && !errors.Is(err, ErrCapacityExceeded):
				t.Fatalf("step %d: expected capacity error, got %v", step, err)
			case len(live) < capacity && err != nil:
				t.Fatalf("step %d: add failed: %v", step, err)
			case err == nil:
				live[id] = true
			}
		} else {
			for id := range live {
				if err := r.RemoveBody(id); err != nil {
					t.Fatalf("step %d: remove %s: %v", step, id, err)
				}
				delete(live, id)
				break
			}
		}
		checkInvariants(t, r)
		if r.Len() != len(live) {
			t.Fatalf("step %d: %d bodies, want %d", step, r.Len(), len(live))
		}
	}
}
