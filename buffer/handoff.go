package buffer

import (
	"errors"
	"sync"
)

// Mode selects the handoff strategy at initialization.
type Mode int

const (
	ModeShared Mode = iota
	ModeTransfer
)

func (m Mode) String() string {
	switch m {
	case ModeShared:
		return "shared"
	case ModeTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// ParseMode maps a config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "shared":
		return ModeShared, nil
	case "transfer":
		return ModeTransfer, nil
	default:
		return ModeShared, errors.New("buffer: unknown mode " + s)
	}
}

var (
	ErrAlreadyHeld = errors.New("buffer: simulation already holds the buffer")
	ErrNotHeld     = errors.New("buffer: simulation does not hold the buffer")
)

// Handoff is the simulation side of the buffer ownership protocol.
// Acquire reports whether the simulation may write the buffer right now;
// Release gives it to the consumer. A Release without a successful Acquire
// is an error.
type Handoff interface {
	Acquire() (*Buffer, bool)
	Release() error
	Mode() Mode
}

// SharedHandoff coordinates through the atomic header of a Shared region.
type SharedHandoff struct {
	region *Shared
	held   bool
}

func NewSharedHandoff(region *Shared) *SharedHandoff {
	return &SharedHandoff{region: region}
}

func (h *SharedHandoff) Mode() Mode { return ModeShared }

// Acquire succeeds whenever the header is not Ready: either nothing has been
// published yet or the consumer marked the last frame consumed.
func (h *SharedHandoff) Acquire() (*Buffer, bool) {
	if h.region == nil {
		return nil, false
	}
	if h.region.State() == StateReady {
		return nil, false
	}
	h.held = true
	return h.region.Payload(), true
}

func (h *SharedHandoff) Release() error {
	if !h.held {
		return ErrNotHeld
	}
	h.held = false
	h.region.setState(StateReady)
	return nil
}

// TransferHandoff moves a single Buffer back and forth. Availability is
// whether the simulation currently holds the reference.
type TransferHandoff struct {
	mu   sync.Mutex
	buf  *Buffer
	send func(*Buffer)
}

// NewTransferHandoff starts out holding buf. send ships a released buffer
// to the consumer; after it returns the simulation no longer references it.
func NewTransferHandoff(buf *Buffer, send func(*Buffer)) *TransferHandoff {
	return &TransferHandoff{buf: buf, send: send}
}

func (h *TransferHandoff) Mode() Mode { return ModeTransfer }

func (h *TransferHandoff) Acquire() (*Buffer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf, h.buf != nil
}

func (h *TransferHandoff) Release() error {
	h.mu.Lock()
	buf := h.buf
	h.buf = nil
	h.mu.Unlock()
	if buf == nil {
		return ErrNotHeld
	}
	if h.send != nil {
		h.send(buf)
	}
	return nil
}

// Receive takes a buffer shipped back by the consumer.
func (h *TransferHandoff) Receive(buf *Buffer) error {
	if buf == nil {
		return ErrNotHeld
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.buf != nil {
		return ErrAlreadyHeld
	}
	h.buf = buf
	return nil
}

// Held reports whether the simulation currently owns the buffer.
func (h *TransferHandoff) Held() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf != nil
}
