package record

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/milk9111/physsync/buffer"
)

func openTemp(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "run.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRowsReadsBuffer(t *testing.T) {
	buf := buffer.New(4)
	buf.SetMatrix(2, mgl32.Translate3D(1, 2, 3).Mul4(mgl32.HomogRotate3DZ(0.5)))
	buf.SetSpeeds(2, 4, 0.25)
	buf.SetCollisions(2, []int32{0})

	rows := Rows(buf, map[int]string{2: "crate", 0: "floor", 9: "outside"})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Body != "floor" || rows[1].Body != "crate" {
		t.Fatalf("rows not in slot order: %+v", rows)
	}
	r := rows[1]
	if r.Pose.X != 1 || r.Pose.Y != 2 || r.Z != 3 {
		t.Fatalf("unexpected position %+v z=%v", r.Pose, r.Z)
	}
	if math.Abs(r.Pose.Angle-0.5) > 1e-5 {
		t.Fatalf("unexpected angle %v", r.Pose.Angle)
	}
	if r.LinearSpeed != 4 || r.AngularSpeed != 0.25 || r.Contacts != 1 {
		t.Fatalf("unexpected speeds or contacts %+v", r)
	}
}

func TestWriteAndTrace(t *testing.T) {
	r := openTemp(t)
	buf := buffer.New(2)
	ids := map[int]string{0: "a", 1: "b"}

	for frame := int64(0); frame < 5; frame++ {
		buf.SetMatrix(0, mgl32.Translate3D(float32(frame), 0, 0))
		buf.SetMatrix(1, mgl32.Translate3D(0, -float32(frame), 0))
		if err := r.WriteFrame(frame, Rows(buf, ids)); err != nil {
			t.Fatalf("write frame %d: %v", frame, err)
		}
	}

	trace, err := r.Trace("a")
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if len(trace) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(trace))
	}
	for i, s := range trace {
		if s.Frame != int64(i) || s.Pose.X != float64(i) || s.Slot != 0 {
			t.Fatalf("sample %d: %+v", i, s)
		}
	}

	bodies, err := r.Bodies()
	if err != nil {
		t.Fatalf("bodies: %v", err)
	}
	if len(bodies) != 2 || bodies[0] != "a" || bodies[1] != "b" {
		t.Fatalf("unexpected bodies %v", bodies)
	}
	n, err := r.Frames()
	if err != nil || n != 5 {
		t.Fatalf("expected 5 frames, got %d (%v)", n, err)
	}

	// Rewriting a frame replaces its rows.
	buf.SetMatrix(0, mgl32.Translate3D(100, 0, 0))
	if err := r.WriteFrame(2, Rows(buf, ids)); err != nil {
		t.Fatal(err)
	}
	trace, _ = r.Trace("a")
	if len(trace) != 5 || trace[2].Pose.X != 100 {
		t.Fatalf("frame 2 not replaced: %+v", trace)
	}
}

func TestSnapshots(t *testing.T) {
	r := openTemp(t)
	buf := buffer.New(3)
	buf.SetMatrix(1, mgl32.Translate3D(7, 8, 9))
	buf.SetCollisions(1, []int32{2})

	if err := r.WriteSnapshot(10, buf); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	got, err := r.Snapshot(10)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if got.Capacity() != 3 || got.Matrix(1) != buf.Matrix(1) || got.Collision(1, 0) != 2 {
		t.Fatal("snapshot does not match buffer")
	}
	if _, err := r.Snapshot(11); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("expected ErrNoFrame, got %v", err)
	}
}
