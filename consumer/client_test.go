package consumer

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	. "github.com/onsi/gomega"

	"github.com/milk9111/physsync/buffer"
	"github.com/milk9111/physsync/config"
	"github.com/milk9111/physsync/engine"
	"github.com/milk9111/physsync/worker"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.World.Gravity = [3]float32{}
	cfg.Buffer.MaxBodies = 8
	return cfg
}

// tickClock advances 20ms per read so every tick runs at least one step.
func tickClock() func() time.Time {
	now := time.Unix(0, 0)
	return func() time.Time {
		now = now.Add(20 * time.Millisecond)
		return now
	}
}

func sharedPair(t *testing.T) (*Client, *worker.Worker) {
	t.Helper()
	region := buffer.NewShared(8)
	c := New(buffer.ModeShared, region)
	w, err := worker.New(testConfig(), worker.Init{Shared: region},
		worker.WithEventHandler(c.HandleEvent), worker.WithClock(tickClock()))
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	c.Attach(w)
	return c, w
}

var unitBox = engine.ShapeOptions{Type: engine.ShapeBox, HalfExtents: mgl32.Vec3{0.5, 0.5, 0.5}}

func TestSharedFrameRequiresPublish(t *testing.T) {
	g := NewWithT(t)
	c, w := sharedPair(t)
	g.Expect(c.Ready()).To(BeTrue())

	ran, err := c.Frame(nil)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ran).To(BeFalse())

	g.Expect(w.RunOnce()).To(BeTrue())
	ran, err = c.Frame(nil)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ran).To(BeTrue())

	ran, _ = c.Frame(nil)
	g.Expect(ran).To(BeFalse())
}

func TestKinematicTransformRoundTrip(t *testing.T) {
	g := NewWithT(t)
	c, w := sharedPair(t)

	kinematic := engine.BodyKinematic
	g.Expect(c.AddBody("k", mgl32.Ident4(), engine.BodyOptions{Type: &kinematic})).To(Succeed())
	g.Expect(c.AddShapes("k", "k-box", engine.Geometry{}, unitBox)).To(Succeed())
	w.RunOnce()

	slot, ok := c.Slot("k")
	g.Expect(ok).To(BeTrue())
	g.Expect(slot).To(Equal(0))

	target := mgl32.Translate3D(5, -1, 0)
	ran, err := c.Frame(func(buf *buffer.Buffer) {
		g.Expect(c.WriteTransform(buf, "k", target)).To(Succeed())
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ran).To(BeTrue())

	w.RunOnce()
	c.Frame(func(buf *buffer.Buffer) {
		m, err := c.Transform(buf, "k")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(m[12]).To(BeNumerically("~", 5, 1e-4))
		g.Expect(m[13]).To(BeNumerically("~", -1, 1e-4))
	})
}

func TestCollisionsResolveToIDs(t *testing.T) {
	g := NewWithT(t)
	c, w := sharedPair(t)

	for i, id := range []string{"a", "b"} {
		g.Expect(c.AddBody(id, mgl32.Translate3D(float32(i)*0.5, 0, 0), engine.BodyOptions{})).To(Succeed())
		g.Expect(c.AddShapes(id, id+"-box", engine.Geometry{}, unitBox)).To(Succeed())
	}
	w.RunOnce()
	c.Frame(nil)
	w.RunOnce()

	var partners []string
	c.Frame(func(buf *buffer.Buffer) {
		var err error
		partners, err = c.Collisions(buf, "a")
		g.Expect(err).NotTo(HaveOccurred())
	})
	g.Expect(partners).To(ConsistOf("b"))
}

func TestCapacityFailureRecorded(t *testing.T) {
	g := NewWithT(t)
	region := buffer.NewShared(1)
	c := New(buffer.ModeShared, region)
	cfg := testConfig()
	cfg.Buffer.MaxBodies = 1
	w, err := worker.New(cfg, worker.Init{Shared: region}, worker.WithEventHandler(c.HandleEvent))
	g.Expect(err).NotTo(HaveOccurred())
	c.Attach(w)

	g.Expect(c.AddBody("a", mgl32.Ident4(), engine.BodyOptions{})).To(Succeed())
	g.Expect(c.AddBody("b", mgl32.Ident4(), engine.BodyOptions{})).To(Succeed())
	w.RunOnce()

	g.Expect(c.Failure("a")).To(BeNil())
	g.Expect(c.Failure("b")).To(HaveOccurred())
	g.Expect(c.Bodies()).To(Equal(map[int]string{0: "a"}))
}

func TestRemoveBodyForgetsSlot(t *testing.T) {
	g := NewWithT(t)
	c, w := sharedPair(t)
	g.Expect(c.AddBody("a", mgl32.Ident4(), engine.BodyOptions{})).To(Succeed())
	w.RunOnce()
	_, ok := c.Slot("a")
	g.Expect(ok).To(BeTrue())

	g.Expect(c.RemoveBody("a")).To(Succeed())
	_, ok = c.Slot("a")
	g.Expect(ok).To(BeFalse())

	c.Frame(func(buf *buffer.Buffer) {
		_, err := c.Transform(buf, "a")
		g.Expect(err).To(MatchError(ErrUnknownBody))
	})
}

func TestTransferFrames(t *testing.T) {
	g := NewWithT(t)
	c := New(buffer.ModeTransfer, nil)
	w, err := worker.New(testConfig(), worker.Init{Transfer: buffer.New(8)}, worker.WithEventHandler(c.HandleEvent))
	g.Expect(err).NotTo(HaveOccurred())
	c.Attach(w)

	ran, err := c.Frame(nil)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ran).To(BeFalse())

	g.Expect(c.AddBody("a", mgl32.Translate3D(1, 1, 0), engine.BodyOptions{})).To(Succeed())
	g.Expect(w.RunOnce()).To(BeTrue())
	g.Expect(w.RunOnce()).To(BeFalse())

	ran, err = c.Frame(func(buf *buffer.Buffer) {
		m, err := c.Transform(buf, "a")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(m[12]).To(BeNumerically("~", 1, 1e-4))
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ran).To(BeTrue())

	g.Expect(w.RunOnce()).To(BeTrue())
}

func TestNotAttached(t *testing.T) {
	g := NewWithT(t)
	c := New(buffer.ModeShared, buffer.NewShared(1))
	g.Expect(c.AddBody("a", mgl32.Ident4(), engine.BodyOptions{})).To(MatchError(ErrNotAttached))

	c = New(buffer.ModeTransfer, nil)
	c.HandleEvent(worker.EventTransfer{Buffer: buffer.New(1)})
	_, err := c.Frame(nil)
	g.Expect(err).To(MatchError(ErrNotAttached))
}
