// Package debugdraw is the line buffer the simulation fills with shape
// outlines when debug drawing is enabled.
//
// Layout, in 32-bit words: one vertex count, then size floats of xyz vertex
// positions, then size floats of rgb vertex colours. Every two vertices form
// a line. All words are accessed atomically so the consumer may read while
// the simulation writes; the count is stored last.
package debugdraw

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
)

var ErrBadLength = errors.New("debugdraw: bad buffer length")

type Buffer struct {
	words   []uint32
	size    int
	cursor  int
	dropped int
}

// New allocates a buffer with size floats per region. size is rounded down
// to whole lines.
func New(size int) *Buffer {
	size -= size % 6
	if size < 0 {
		size = 0
	}
	return &Buffer{words: make([]uint32, 1+2*size), size: size}
}

// Wrap lays a buffer over words, which must hold the count word and two
// equal regions.
func Wrap(words []uint32) (*Buffer, error) {
	if len(words) < 1 || (len(words)-1)%2 != 0 {
		return nil, fmt.Errorf("%w: %d words", ErrBadLength, len(words))
	}
	size := (len(words) - 1) / 2
	return &Buffer{words: words, size: size - size%6}, nil
}

func (b *Buffer) Words() []uint32 {
	return b.words
}

func (b *Buffer) MaxVertices() int {
	return b.size / 3
}

// Begin starts a new frame of lines.
func (b *Buffer) Begin() {
	b.cursor = 0
	b.dropped = 0
}

// DrawLine appends one segment. Lines past capacity are counted and dropped.
func (b *Buffer) DrawLine(from, to, color mgl32.Vec3) {
	if b.cursor+2 > b.MaxVertices() {
		b.dropped++
		return
	}
	b.put(b.cursor, from, color)
	b.put(b.cursor+1, to, color)
	b.cursor += 2
}

// End publishes the frame's vertex count.
func (b *Buffer) End() {
	atomic.StoreUint32(&b.words[0], uint32(b.cursor))
}

// Dropped is the number of lines that did not fit in the last frame.
func (b *Buffer) Dropped() int {
	return b.dropped
}

// Clear publishes an empty frame.
func (b *Buffer) Clear() {
	b.Begin()
	b.End()
}

// Count is the number of vertices in the last published frame.
func (b *Buffer) Count() int {
	return int(atomic.LoadUint32(&b.words[0]))
}

// Vertex reads the i-th published vertex.
func (b *Buffer) Vertex(i int) (pos, color mgl32.Vec3) {
	base := 1 + 3*i
	for k := 0; k < 3; k++ {
		pos[k] = b.load(base + k)
		color[k] = b.load(base + b.size + k)
	}
	return pos, color
}

// Lines visits every published line.
func (b *Buffer) Lines(fn func(from, to, color mgl32.Vec3)) {
	n := min(b.Count(), b.MaxVertices())
	for i := 0; i+1 < n; i += 2 {
		from, color := b.Vertex(i)
		to, _ := b.Vertex(i + 1)
		fn(from, to, color)
	}
}

func (b *Buffer) put(i int, pos, color mgl32.Vec3) {
	base := 1 + 3*i
	for k := 0; k < 3; k++ {
		b.store(base+k, pos[k])
		b.store(base+b.size+k, color[k])
	}
}

func (b *Buffer) store(i int, v float32) {
	atomic.StoreUint32(&b.words[i], math.Float32bits(v))
}

func (b *Buffer) load(i int) float32 {
	return math.Float32frombits(atomic.LoadUint32(&b.words[i]))
}
