package buffer

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestRecordLayout(t *testing.T) {
	if BodyDataSize != 26 {
		t.Fatalf("expected 26 words per record, got %d", BodyDataSize)
	}
	b := New(3)
	if b.Capacity() != 3 || len(b.Words()) != 78 {
		t.Fatalf("unexpected payload size: cap=%d words=%d", b.Capacity(), len(b.Words()))
	}

	m := mgl32.Translate3D(1, 2, 3)
	b.SetMatrix(1, m)
	b.SetSpeeds(1, 4.5, 0.25)
	b.SetCollisions(1, []int32{0, 2})

	words := b.Words()
	base := 1 * BodyDataSize
	if got := b.float(base + 12); got != 1 {
		t.Fatalf("translation x should sit in word 12, got %v", got)
	}
	if got := b.float(base + LinearVelocityOffset); got != 4.5 {
		t.Fatalf("linear speed word: got %v", got)
	}
	if int32(words[base+18]) != 0 || int32(words[base+19]) != 2 {
		t.Fatalf("collision words: got %d %d", int32(words[base+18]), int32(words[base+19]))
	}
	for i := 20; i < BodyDataSize; i++ {
		if int32(words[base+i]) != -1 {
			t.Fatalf("word %d should be -1, got %d", i, int32(words[base+i]))
		}
	}
	if b.Matrix(1) != m {
		t.Fatalf("matrix round trip mismatch")
	}
	if got := b.Collisions(1, nil); len(got) != 2 {
		t.Fatalf("expected 2 partners, got %v", got)
	}
}

func TestSetCollisionsTruncates(t *testing.T) {
	b := New(1)
	partners := []int32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	b.SetCollisions(0, partners)
	got := b.Collisions(0, nil)
	if len(got) != MaxCollisions {
		t.Fatalf("expected %d partners kept, got %d", MaxCollisions, len(got))
	}
	if b.Collision(0, MaxCollisions) != NoCollision {
		t.Fatalf("out of range collision index should read as empty")
	}
}

func TestMarshalLittleEndian(t *testing.T) {
	b := New(1)
	b.SetMatrix(0, mgl32.Ident4())
	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 4*BodyDataSize {
		t.Fatalf("expected %d bytes, got %d", 4*BodyDataSize, len(data))
	}
	// 1.0f is 0x3f800000.
	if data[0] != 0x00 || data[1] != 0x00 || data[2] != 0x80 || data[3] != 0x3f {
		t.Fatalf("unexpected encoding of m[0]: % x", data[:4])
	}

	var back Buffer
	if err := back.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if back.Matrix(0) != mgl32.Ident4() {
		t.Fatalf("decoded matrix mismatch")
	}
	if err := back.UnmarshalBinary(data[:10]); !errors.Is(err, ErrBadLength) {
		t.Fatalf("expected ErrBadLength, got %v", err)
	}
}

func TestWrapRejectsPartialRecords(t *testing.T) {
	if _, err := Wrap(make([]uint32, BodyDataSize+1)); !errors.Is(err, ErrBadLength) {
		t.Fatalf("expected ErrBadLength, got %v", err)
	}
	if _, err := WrapShared(nil); !errors.Is(err, ErrBadLength) {
		t.Fatalf("expected ErrBadLength for empty region, got %v", err)
	}
}

func TestClearSlot(t *testing.T) {
	b := New(2)
	b.SetMatrix(1, mgl32.Translate3D(5, 5, 5))
	b.SetSpeeds(1, 1, 1)
	b.ClearSlot(1)
	if b.Matrix(1) != (mgl32.Mat4{}) || b.LinearSpeed(1) != 0 {
		t.Fatalf("slot not cleared")
	}
	if len(b.Collisions(1, nil)) != 0 {
		t.Fatalf("collisions not cleared")
	}
}
