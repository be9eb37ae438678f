// Package consumer is the render side of the protocol: it tracks which slot
// each body landed in and reads or writes the buffer only while it owns it.
package consumer

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/milk9111/physsync/buffer"
	"github.com/milk9111/physsync/engine"
	"github.com/milk9111/physsync/worker"
)

var (
	ErrNotAttached = errors.New("consumer: no worker attached")
	ErrUnknownBody = errors.New("consumer: unknown body")
)

// Poster is the request side of a worker.
type Poster interface {
	Post(worker.Message)
}

// Client is safe for concurrent use. HandleEvent is typically called on the
// simulation goroutine while Frame runs on the render goroutine.
type Client struct {
	mode   buffer.Mode
	shared *buffer.Shared
	poster Poster
	logger *log.Logger

	mu     sync.Mutex
	held   *buffer.Buffer
	ready  bool
	slots  map[string]int
	ids    map[int]string
	failed map[string]error
}

// New creates a client. region is required in shared mode and ignored in
// transfer mode.
func New(mode buffer.Mode, region *buffer.Shared) *Client {
	return &Client{
		mode:   mode,
		shared: region,
		logger: log.Default(),
		slots:  make(map[string]int),
		ids:    make(map[int]string),
		failed: make(map[string]error),
	}
}

func (c *Client) SetLogger(l *log.Logger) {
	if l != nil {
		c.logger = l
	}
}

func (c *Client) Attach(p Poster) {
	c.mu.Lock()
	c.poster = p
	c.mu.Unlock()
}

// HandleEvent updates the client from a worker event.
func (c *Client) HandleEvent(ev worker.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch e := ev.(type) {
	case worker.EventReady:
		c.ready = true
	case worker.EventBodyReady:
		c.slots[e.ID] = e.Slot
		c.ids[e.Slot] = e.ID
		delete(c.failed, e.ID)
	case worker.EventBodyFailed:
		c.failed[e.ID] = e.Err
		c.logger.Printf("Consumer: body %s failed: %v", e.ID, e.Err)
	case worker.EventRequestFailed:
		c.logger.Printf("Consumer: %s failed: %v", e.Message.Type(), e.Err)
	case worker.EventTransfer:
		c.held = e.Buffer
	}
}

func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Slot is the buffer slot of a body the worker confirmed.
func (c *Client) Slot(id string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[id]
	return s, ok
}

// Failure is the error an AddBody for id failed with, if any.
func (c *Client) Failure(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed[id]
}

// Bodies returns the confirmed ids by slot.
func (c *Client) Bodies() map[int]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]string, len(c.ids))
	for s, id := range c.ids {
		out[s] = id
	}
	return out
}

// Frame runs fn with the buffer if the consumer owns it right now, then
// hands it back to the simulation. It reports whether fn ran.
func (c *Client) Frame(fn func(*buffer.Buffer)) (bool, error) {
	switch c.mode {
	case buffer.ModeShared:
		if c.shared == nil || !c.shared.ConsumerAcquire() {
			return false, nil
		}
		if fn != nil {
			fn(c.shared.Payload())
		}
		return true, c.shared.ConsumerRelease()
	case buffer.ModeTransfer:
		c.mu.Lock()
		buf, p := c.held, c.poster
		if buf != nil && p == nil {
			c.mu.Unlock()
			return false, ErrNotAttached
		}
		c.held = nil
		c.mu.Unlock()
		if buf == nil {
			return false, nil
		}
		if fn != nil {
			fn(buf)
		}
		p.Post(worker.TransferData{Buffer: buf})
		return true, nil
	default:
		return false, fmt.Errorf("consumer: unknown mode %s", c.mode)
	}
}

// Transform reads the published transform of a body.
func (c *Client) Transform(buf *buffer.Buffer, id string) (mgl32.Mat4, error) {
	s, ok := c.Slot(id)
	if !ok {
		return mgl32.Mat4{}, fmt.Errorf("%w: %s", ErrUnknownBody, id)
	}
	if s >= buf.Capacity() {
		return mgl32.Mat4{}, fmt.Errorf("%w: %d", buffer.ErrSlot, s)
	}
	return buf.Matrix(s), nil
}

// WriteTransform sets the transform the simulation reads for a kinematic or
// static body on its next sync.
func (c *Client) WriteTransform(buf *buffer.Buffer, id string, m mgl32.Mat4) error {
	s, ok := c.Slot(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBody, id)
	}
	if s >= buf.Capacity() {
		return fmt.Errorf("%w: %d", buffer.ErrSlot, s)
	}
	buf.SetMatrix(s, m)
	return nil
}

// Collisions resolves the partner slots of a body back to ids.
func (c *Client) Collisions(buf *buffer.Buffer, id string) ([]string, error) {
	s, ok := c.Slot(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBody, id)
	}
	slots := buf.Collisions(s, nil)
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, p := range slots {
		if other, ok := c.ids[int(p)]; ok {
			out = append(out, other)
		}
	}
	return out, nil
}

func (c *Client) post(msg worker.Message) error {
	c.mu.Lock()
	p := c.poster
	c.mu.Unlock()
	if p == nil {
		return ErrNotAttached
	}
	p.Post(msg)
	return nil
}

func (c *Client) AddBody(id string, m mgl32.Mat4, opts engine.BodyOptions) error {
	return c.post(worker.AddBody{ID: id, Matrix: m, Options: opts})
}

func (c *Client) UpdateBody(id string, opts engine.BodyOptions) error {
	return c.post(worker.UpdateBody{ID: id, Options: opts})
}

// RemoveBody forgets the slot immediately; the consumer must not read it
// after posting the removal.
func (c *Client) RemoveBody(id string) error {
	if err := c.post(worker.RemoveBody{ID: id}); err != nil {
		return err
	}
	c.mu.Lock()
	if s, ok := c.slots[id]; ok {
		delete(c.ids, s)
		delete(c.slots, id)
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) AddShapes(bodyID, groupID string, geom engine.Geometry, opts engine.ShapeOptions) error {
	return c.post(worker.AddShapes{BodyID: bodyID, GroupID: groupID, Geometry: geom, Options: opts})
}

func (c *Client) RemoveShapes(bodyID, groupID string) error {
	return c.post(worker.RemoveShapes{BodyID: bodyID, GroupID: groupID})
}

func (c *Client) AddConstraint(id, bodyID, targetID string, opts engine.ConstraintOptions) error {
	return c.post(worker.AddConstraint{ID: id, BodyID: bodyID, TargetID: targetID, Options: opts})
}

func (c *Client) RemoveConstraint(id string) error {
	return c.post(worker.RemoveConstraint{ID: id})
}

func (c *Client) ResetBody(id string) error {
	return c.post(worker.ResetBody{ID: id})
}

func (c *Client) ActivateBody(id string) error {
	return c.post(worker.ActivateBody{ID: id})
}

func (c *Client) ApplyImpulse(id string, impulse, offset mgl32.Vec3) error {
	return c.post(worker.ApplyImpulse{ID: id, Impulse: impulse, Offset: offset})
}

func (c *Client) SetLinearVelocity(id string, v mgl32.Vec3) error {
	return c.post(worker.SetLinearVelocity{ID: id, Velocity: v})
}

func (c *Client) EnableDebug(enabled bool) error {
	return c.post(worker.EnableDebug{Enabled: enabled})
}
