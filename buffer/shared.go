package buffer

import (
	"fmt"
	"sync/atomic"
)

// Shared is a header word followed by a body payload in one contiguous
// region. Both sides keep a reference to the same Shared; the header decides
// who may touch the payload.
type Shared struct {
	words   []uint32
	payload *Buffer
}

// NewShared allocates a region for maxBodies records.
func NewShared(maxBodies int) *Shared {
	if maxBodies < 0 {
		maxBodies = 0
	}
	s, _ := WrapShared(make([]uint32, HeaderLength+PayloadWords(maxBodies)))
	return s
}

// WrapShared lays the header and payload over an existing region.
func WrapShared(words []uint32) (*Shared, error) {
	if len(words) < HeaderLength {
		return nil, fmt.Errorf("%w: missing header", ErrBadLength)
	}
	payload, err := Wrap(words[HeaderLength:])
	if err != nil {
		return nil, err
	}
	return &Shared{words: words, payload: payload}, nil
}

// Words returns the whole region, header included.
func (s *Shared) Words() []uint32 {
	return s.words
}

// Payload is the body buffer behind the header. Only the side currently
// holding write permission may touch it.
func (s *Shared) Payload() *Buffer {
	return s.payload
}

func (s *Shared) State() State {
	return State(atomic.LoadUint32(&s.words[0]))
}

func (s *Shared) setState(st State) {
	atomic.StoreUint32(&s.words[0], uint32(st))
}

// ConsumerAcquire reports whether the consumer may read and write the
// payload now, i.e. the simulation has published a frame.
func (s *Shared) ConsumerAcquire() bool {
	return s.State() == StateReady
}

// ConsumerRelease hands the payload back to the simulation. It fails if the
// consumer did not hold it.
func (s *Shared) ConsumerRelease() error {
	if !atomic.CompareAndSwapUint32(&s.words[0], uint32(StateReady), uint32(StateConsumed)) {
		return fmt.Errorf("buffer: consumer release in state %s", s.State())
	}
	return nil
}
