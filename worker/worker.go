// Package worker runs the simulation side of the protocol: it owns the
// engine and registry, takes requests from the consumer, and publishes a
// frame into the shared buffer each time the consumer hands it back.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/milk9111/physsync/buffer"
	"github.com/milk9111/physsync/config"
	"github.com/milk9111/physsync/debugdraw"
	"github.com/milk9111/physsync/engine"
	"github.com/milk9111/physsync/engine/chipmunk"
	"github.com/milk9111/physsync/registry"
)

var (
	ErrNoBuffer             = errors.New("worker: no shared or transfer buffer supplied")
	ErrUnresolvedDependency = errors.New("worker: dependency never became available")
)

// State is where the worker is in its tick.
type State int32

const (
	StateWaitingForBuffer State = iota
	StateStepping
	StateDrainingQueue
	StateSynchronizing
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateWaitingForBuffer:
		return "waiting"
	case StateStepping:
		return "stepping"
	case StateDrainingQueue:
		return "draining"
	case StateSynchronizing:
		return "synchronizing"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Init selects the buffer the worker publishes into. Shared takes
// precedence when both are set.
type Init struct {
	Shared   *buffer.Shared
	Transfer *buffer.Buffer
}

// Stats are counters safe to read from any goroutine.
type Stats struct {
	Ticks    int64
	Skipped  int64
	Applied  int64
	Deferred int64
	Failed   int64
	Queued   int
	LastStep time.Duration
}

type Option func(*Worker)

// WithEventHandler receives every event. It runs on the simulation goroutine.
func WithEventHandler(fn func(Event)) Option {
	return func(w *Worker) {
		w.onEvent = fn
	}
}

func WithLogger(l *log.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithClock replaces time.Now for measuring tick deltas.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithEngine replaces the chipmunk engine built from the config.
func WithEngine(eng engine.Engine) Option {
	return func(w *Worker) {
		w.eng = eng
	}
}

type pending struct {
	msg     Message
	retries int
}

// Worker is driven by a single goroutine calling ProcessInbox and Tick, or
// by Run. Post may be called from anywhere.
type Worker struct {
	cfg     *config.Config
	eng     engine.Engine
	reg     *registry.Registry
	handoff buffer.Handoff
	shared  *buffer.Shared

	inboxMu sync.Mutex
	inbox   []Message

	queue Queue[pending]

	debug        *debugdraw.Buffer
	debugEnabled bool

	now     func() time.Time
	last    time.Time
	onEvent func(Event)
	logger  *log.Logger

	state    atomic.Int32
	ticks    atomic.Int64
	skipped  atomic.Int64
	applied  atomic.Int64
	deferred atomic.Int64
	failed   atomic.Int64
	queued   atomic.Int64
	lastStep atomic.Int64
}

// New builds the world from cfg and emits EventReady.
func New(cfg *config.Config, init Init, opts ...Option) (*Worker, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	w := &Worker{
		cfg:    cfg,
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	var capacity int
	switch {
	case init.Shared != nil:
		w.shared = init.Shared
		w.handoff = buffer.NewSharedHandoff(init.Shared)
		capacity = init.Shared.Payload().Capacity()
	case init.Transfer != nil:
		w.handoff = buffer.NewTransferHandoff(init.Transfer, func(b *buffer.Buffer) {
			w.emit(EventTransfer{Buffer: b})
		})
		capacity = init.Transfer.Capacity()
	default:
		return nil, ErrNoBuffer
	}
	if cfg.Buffer.MaxBodies > 0 && cfg.Buffer.MaxBodies < capacity {
		capacity = cfg.Buffer.MaxBodies
	}

	if w.eng == nil {
		world := chipmunk.New(EngineOptions(cfg.World))
		world.SetLogger(w.logger)
		w.eng = world
	}
	w.reg = registry.New(w.eng, capacity, registry.WithLogger(w.logger))

	if cfg.Debug.Enabled {
		w.debug = debugdraw.New(cfg.Debug.BufferSize)
		w.debugEnabled = true
	}

	w.last = w.now()
	w.logger.Printf("Worker: ready (%s, %d slots)", w.handoff.Mode(), capacity)
	w.emit(EventReady{})
	return w, nil
}

// EngineOptions maps the world config onto the chipmunk space.
func EngineOptions(c config.WorldConfig) chipmunk.Options {
	return chipmunk.Options{
		Gravity:            mgl32.Vec3(c.Gravity),
		Iterations:         c.Iterations,
		Damping:            c.Damping,
		FixedTimeStep:      c.FixedTimeStep,
		MaxSubSteps:        c.MaxSubSteps,
		SleepTimeThreshold: c.SleepTimeThreshold,
	}
}

// Post enqueues a request. It never blocks on the simulation.
func (w *Worker) Post(msg Message) {
	if w == nil || msg == nil {
		return
	}
	w.inboxMu.Lock()
	w.inbox = append(w.inbox, msg)
	w.inboxMu.Unlock()
}

// ProcessInbox applies arrival rules to everything posted since the last
// call. Requests that only touch existing objects run now; the rest wait
// for the next tick.
func (w *Worker) ProcessInbox() {
	w.inboxMu.Lock()
	msgs := w.inbox
	w.inbox = nil
	w.inboxMu.Unlock()

	for _, msg := range msgs {
		w.receive(msg)
	}
	w.queued.Store(int64(w.queue.Len()))
}

func (w *Worker) receive(msg Message) {
	switch m := msg.(type) {
	case TransferData:
		t, ok := w.handoff.(*buffer.TransferHandoff)
		if !ok {
			w.logger.Printf("Worker: transferData ignored in %s mode", w.handoff.Mode())
			return
		}
		if err := t.Receive(m.Buffer); err != nil {
			w.logger.Printf("Worker: transferData: %v", err)
		}
	case EnableDebug:
		w.setDebug(m)
	case RemoveShapes, RemoveConstraint:
		w.apply(nil, msg)
	case AddShapes:
		if _, ok := w.reg.Body(m.BodyID); ok {
			w.apply(nil, msg)
			return
		}
		w.queue.Push(pending{msg: msg})
	case AddConstraint:
		_, okBody := w.reg.Body(m.BodyID)
		_, okTarget := w.reg.Body(m.TargetID)
		if okBody && okTarget {
			w.apply(nil, msg)
			return
		}
		w.queue.Push(pending{msg: msg})
	default:
		w.queue.Push(pending{msg: msg})
	}
}

func (w *Worker) setDebug(m EnableDebug) {
	if m.Buffer != nil {
		w.debug = m.Buffer
	}
	if m.Enabled && w.debug == nil {
		w.debug = debugdraw.New(w.cfg.Debug.BufferSize)
	}
	w.debugEnabled = m.Enabled
	if !m.Enabled && w.debug != nil {
		w.debug.Clear()
	}
}

// Tick runs one simulation frame if the buffer is available and reports
// whether it did.
func (w *Worker) Tick() bool {
	buf, ok := w.handoff.Acquire()
	if !ok {
		w.setState(StateWaitingForBuffer)
		w.skipped.Add(1)
		return false
	}

	w.setState(StateStepping)
	now := w.now()
	dt := now.Sub(w.last)
	w.last = now
	w.eng.Step(dt.Seconds())
	w.lastStep.Store(int64(dt))

	w.setState(StateDrainingQueue)
	w.drain(buf)

	w.setState(StateSynchronizing)
	w.reg.Sync(buf)
	if w.debugEnabled && w.debug != nil {
		w.debug.Begin()
		w.eng.DebugDraw(w.debug)
		w.debug.End()
	}

	if err := w.handoff.Release(); err != nil {
		w.logger.Printf("Worker: release: %v", err)
	}
	w.setState(StateReleased)
	w.ticks.Add(1)
	return true
}

// RunOnce processes the inbox and attempts a tick.
func (w *Worker) RunOnce() bool {
	w.ProcessInbox()
	return w.Tick()
}

// Run ticks on the configured interval until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	loop := NewLoop(w.cfg.Loop.Interval, func() { w.RunOnce() })
	err := loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) drain(buf *buffer.Buffer) {
	items := w.queue.Drain()
	var retry []pending
	for _, p := range items {
		if w.apply(buf, p.msg) {
			continue
		}
		p.retries++
		if limit := w.cfg.Queue.MaxRetries; limit > 0 && p.retries > limit {
			w.failed.Add(1)
			w.logger.Printf("Worker: %s dropped after %d retries", p.msg.Type(), limit)
			w.emit(EventRequestFailed{Message: p.msg, Err: ErrUnresolvedDependency})
			continue
		}
		w.deferred.Add(1)
		retry = append(retry, p)
	}
	w.queue.Requeue(retry)
	w.queued.Store(int64(w.queue.Len()))
}

// apply runs msg against the registry. It returns false only when the
// request is waiting on a body that does not exist yet.
func (w *Worker) apply(buf *buffer.Buffer, msg Message) bool {
	var err error
	switch m := msg.(type) {
	case AddBody:
		slot, err := w.reg.AddBody(buf, m.ID, m.Matrix, m.Options)
		if err != nil {
			w.failed.Add(1)
			w.logger.Printf("Worker: add body %s: %v", m.ID, err)
			w.emit(EventBodyFailed{ID: m.ID, Err: err})
			return true
		}
		w.applied.Add(1)
		w.emit(EventBodyReady{ID: m.ID, Slot: slot})
		return true
	case UpdateBody:
		err = w.reg.UpdateBody(m.ID, m.Options)
	case RemoveBody:
		err = w.reg.RemoveBody(m.ID)
	case AddShapes:
		err = w.reg.AddShapeGroup(m.BodyID, m.GroupID, m.Geometry, m.Options)
		if errors.Is(err, registry.ErrUnknownBody) {
			return false
		}
	case RemoveShapes:
		err = w.reg.RemoveShapeGroup(m.BodyID, m.GroupID)
	case AddConstraint:
		err = w.reg.AddConstraint(m.ID, m.BodyID, m.TargetID, m.Options)
		if errors.Is(err, registry.ErrUnknownBody) {
			return false
		}
	case RemoveConstraint:
		err = w.reg.RemoveConstraint(m.ID)
	case ResetBody:
		err = w.reg.ResetBody(buf, m.ID)
	case ActivateBody:
		err = w.reg.ActivateBody(m.ID)
	case ApplyForce:
		err = w.reg.ApplyForce(m.ID, m.Force, m.Offset)
	case ApplyImpulse:
		err = w.reg.ApplyImpulse(m.ID, m.Impulse, m.Offset)
	case SetLinearVelocity:
		err = w.reg.SetLinearVelocity(m.ID, m.Velocity)
	case SetAngularVelocity:
		err = w.reg.SetAngularVelocity(m.ID, m.Velocity)
	case TransferData, EnableDebug:
		w.receive(msg)
		return true
	default:
		err = fmt.Errorf("worker: unhandled message %T", msg)
	}

	switch {
	case err == nil:
		w.applied.Add(1)
	case isUnknown(err):
		// Unknown ids are ignored.
		w.logger.Printf("Worker: %s: %v", msg.Type(), err)
	default:
		w.failed.Add(1)
		w.logger.Printf("Worker: %s: %v", msg.Type(), err)
		w.emit(EventRequestFailed{Message: msg, Err: err})
	}
	return true
}

func isUnknown(err error) bool {
	return errors.Is(err, registry.ErrUnknownBody) ||
		errors.Is(err, registry.ErrUnknownShapeGroup) ||
		errors.Is(err, registry.ErrUnknownConstraint)
}

func (w *Worker) emit(ev Event) {
	if w.onEvent != nil {
		w.onEvent(ev)
	}
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) Stats() Stats {
	return Stats{
		Ticks:    w.ticks.Load(),
		Skipped:  w.skipped.Load(),
		Applied:  w.applied.Load(),
		Deferred: w.deferred.Load(),
		Failed:   w.failed.Load(),
		Queued:   int(w.queued.Load()),
		LastStep: time.Duration(w.lastStep.Load()),
	}
}

// Registry is only safe to use from the goroutine driving the worker.
func (w *Worker) Registry() *registry.Registry {
	return w.reg
}

func (w *Worker) Mode() buffer.Mode {
	return w.handoff.Mode()
}

// Shared is the region in shared mode, nil otherwise.
func (w *Worker) Shared() *buffer.Shared {
	return w.shared
}

// DebugBuffer is the line buffer debug drawing writes into, if any.
func (w *Worker) DebugBuffer() *debugdraw.Buffer {
	return w.debug
}
