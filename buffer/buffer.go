package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrBadLength = errors.New("buffer: length is not a whole number of records")
	ErrSlot      = errors.New("buffer: slot out of range")
)

// Buffer is a view over the body payload words. Float and int fields share
// the same words, mirroring the Float32Array/Int32Array pair a browser
// consumer lays over the same memory.
type Buffer struct {
	words []uint32
}

// New allocates a zeroed payload for maxBodies records.
func New(maxBodies int) *Buffer {
	if maxBodies < 0 {
		maxBodies = 0
	}
	return &Buffer{words: make([]uint32, PayloadWords(maxBodies))}
}

// Wrap uses words as the payload without copying.
func Wrap(words []uint32) (*Buffer, error) {
	if len(words)%BodyDataSize != 0 {
		return nil, fmt.Errorf("%w: %d words", ErrBadLength, len(words))
	}
	return &Buffer{words: words}, nil
}

// Capacity is the number of body records the payload holds.
func (b *Buffer) Capacity() int {
	if b == nil {
		return 0
	}
	return len(b.words) / BodyDataSize
}

// Words exposes the raw payload.
func (b *Buffer) Words() []uint32 {
	if b == nil {
		return nil
	}
	return b.words
}

func (b *Buffer) base(slot int) int {
	if slot < 0 || slot >= b.Capacity() {
		panic(fmt.Sprintf("%v: %d", ErrSlot, slot))
	}
	return slot * BodyDataSize
}

func (b *Buffer) float(i int) float32 {
	return math.Float32frombits(b.words[i])
}

func (b *Buffer) setFloat(i int, v float32) {
	b.words[i] = math.Float32bits(v)
}

// Matrix reads the transform stored in slot.
func (b *Buffer) Matrix(slot int) mgl32.Mat4 {
	base := b.base(slot) + MatrixOffset
	var m mgl32.Mat4
	for i := range m {
		m[i] = b.float(base + i)
	}
	return m
}

// SetMatrix writes the transform for slot.
func (b *Buffer) SetMatrix(slot int, m mgl32.Mat4) {
	base := b.base(slot) + MatrixOffset
	for i, v := range m {
		b.setFloat(base+i, v)
	}
}

func (b *Buffer) LinearSpeed(slot int) float32 {
	return b.float(b.base(slot) + LinearVelocityOffset)
}

func (b *Buffer) AngularSpeed(slot int) float32 {
	return b.float(b.base(slot) + AngularVelocityOffset)
}

// SetSpeeds writes the linear and angular velocity magnitudes for slot.
func (b *Buffer) SetSpeeds(slot int, linear, angular float32) {
	base := b.base(slot)
	b.setFloat(base+LinearVelocityOffset, linear)
	b.setFloat(base+AngularVelocityOffset, angular)
}

// Collision returns the i-th collision word of slot.
func (b *Buffer) Collision(slot, i int) int32 {
	if i < 0 || i >= MaxCollisions {
		return NoCollision
	}
	return int32(b.words[b.base(slot)+CollisionsOffset+i])
}

// Collisions appends the partner slots recorded for slot to dst, skipping
// empty words.
func (b *Buffer) Collisions(slot int, dst []int32) []int32 {
	base := b.base(slot) + CollisionsOffset
	for i := 0; i < MaxCollisions; i++ {
		v := int32(b.words[base+i])
		if v != NoCollision {
			dst = append(dst, v)
		}
	}
	return dst
}

// SetCollisions records up to MaxCollisions partner slots and fills the rest
// with NoCollision.
func (b *Buffer) SetCollisions(slot int, partners []int32) {
	base := b.base(slot) + CollisionsOffset
	for i := 0; i < MaxCollisions; i++ {
		v := NoCollision
		if i < len(partners) {
			v = partners[i]
		}
		b.words[base+i] = uint32(v)
	}
}

// ClearSlot zeroes a record and empties its collision words.
func (b *Buffer) ClearSlot(slot int) {
	base := b.base(slot)
	for i := 0; i < CollisionsOffset; i++ {
		b.words[base+i] = 0
	}
	b.SetCollisions(slot, nil)
}

// CopyFrom copies src's payload into b. Both must have the same capacity.
func (b *Buffer) CopyFrom(src *Buffer) error {
	if b.Capacity() != src.Capacity() {
		return fmt.Errorf("%w: capacity %d != %d", ErrBadLength, b.Capacity(), src.Capacity())
	}
	copy(b.words, src.words)
	return nil
}

// MarshalBinary encodes the payload little-endian, word by word.
func (b *Buffer) MarshalBinary() ([]byte, error) {
	out := make([]byte, 4*len(b.words))
	for i, w := range b.words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out, nil
}

// UnmarshalBinary replaces the payload with little-endian words from data.
func (b *Buffer) UnmarshalBinary(data []byte) error {
	if len(data)%4 != 0 || (len(data)/4)%BodyDataSize != 0 {
		return fmt.Errorf("%w: %d bytes", ErrBadLength, len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[4*i:])
	}
	b.words = words
	return nil
}
