// Package wire is the JSON-lines encoding of worker messages and events used
// by `physsync serve`. Field names follow the browser worker protocol
// (uuid, bodyUuid, shapesUuid, constraintId, targetUuid).
package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/sugawarayuuta/sonnet"

	"github.com/milk9111/physsync/buffer"
	"github.com/milk9111/physsync/engine"
	"github.com/milk9111/physsync/worker"
)

var (
	ErrUnknownType = errors.New("wire: unknown message type")
	ErrMalformed   = errors.New("wire: malformed message")
)

// MaxLine bounds a single encoded message.
const MaxLine = 16 << 20

type message struct {
	Type         string       `json:"type"`
	UUID         string       `json:"uuid,omitempty"`
	BodyUUID     string       `json:"bodyUuid,omitempty"`
	ShapesUUID   string       `json:"shapesUuid,omitempty"`
	ConstraintID string       `json:"constraintId,omitempty"`
	TargetUUID   string       `json:"targetUuid,omitempty"`
	Matrix       *[16]float32 `json:"matrix,omitempty"`
	Vertices     []float32    `json:"vertices,omitempty"`
	Indexes      []int        `json:"indexes,omitempty"`
	Force        *[3]float32  `json:"force,omitempty"`
	Impulse      *[3]float32  `json:"impulse,omitempty"`
	Offset       *[3]float32  `json:"offset,omitempty"`
	Velocity     *[3]float32  `json:"velocity,omitempty"`
	Enable       *bool        `json:"enable,omitempty"`
	Data         []byte       `json:"data,omitempty"`
	Options      *options     `json:"options,omitempty"`
}

// options holds the union of body, shape and constraint options;
// which fields apply depends on the message type.
type options struct {
	Type string `json:"type,omitempty"`

	Mass                 *float64    `json:"mass,omitempty"`
	Friction             *float64    `json:"friction,omitempty"`
	Restitution          *float64    `json:"restitution,omitempty"`
	LinearDamping        *float64    `json:"linearDamping,omitempty"`
	AngularDamping       *float64    `json:"angularDamping,omitempty"`
	Gravity              *[3]float32 `json:"gravity,omitempty"`
	CollisionFilterGroup *uint32     `json:"collisionFilterGroup,omitempty"`
	CollisionFilterMask  *uint32     `json:"collisionFilterMask,omitempty"`
	DisableCollision     *bool       `json:"disableCollision,omitempty"`

	HalfExtents *[3]float32 `json:"halfExtents,omitempty"`
	Radius      float32     `json:"radius,omitempty"`
	Height      float32     `json:"height,omitempty"`
	Margin      float32     `json:"margin,omitempty"`

	Pivot             *[3]float32 `json:"pivot,omitempty"`
	TargetPivot       *[3]float32 `json:"targetPivot,omitempty"`
	Axis              *[3]float32 `json:"axis,omitempty"`
	RestLength        float64     `json:"restLength,omitempty"`
	Stiffness         float64     `json:"stiffness,omitempty"`
	Damping           float64     `json:"damping,omitempty"`
	Min               float64     `json:"min,omitempty"`
	Max               float64     `json:"max,omitempty"`
	MaxForce          float64     `json:"maxForce,omitempty"`
	DisableCollisions bool        `json:"disableCollisions,omitempty"`

	ShapeOffset *[3]float32 `json:"offset,omitempty"`
}

// DecodeMessage parses one JSON message.
func DecodeMessage(data []byte) (worker.Message, error) {
	var m message
	if err := sonnet.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	opts := m.Options
	if opts == nil {
		opts = &options{}
	}

	switch m.Type {
	case "addBody":
		bo, err := opts.body()
		if err != nil {
			return nil, err
		}
		return worker.AddBody{ID: m.UUID, Matrix: matrix(m.Matrix), Options: bo}, nil
	case "updateBody":
		bo, err := opts.body()
		if err != nil {
			return nil, err
		}
		return worker.UpdateBody{ID: m.UUID, Options: bo}, nil
	case "removeBody":
		return worker.RemoveBody{ID: m.UUID}, nil
	case "addShapes":
		so, err := opts.shape()
		if err != nil {
			return nil, err
		}
		geom := engine.Geometry{Vertices: m.Vertices, Indexes: m.Indexes}
		if m.Matrix != nil {
			geom.Matrix = mgl32.Mat4(*m.Matrix)
		}
		return worker.AddShapes{BodyID: m.BodyUUID, GroupID: m.ShapesUUID, Geometry: geom, Options: so}, nil
	case "removeShapes":
		return worker.RemoveShapes{BodyID: m.BodyUUID, GroupID: m.ShapesUUID}, nil
	case "addConstraint":
		co, err := opts.constraint()
		if err != nil {
			return nil, err
		}
		return worker.AddConstraint{ID: m.ConstraintID, BodyID: m.BodyUUID, TargetID: m.TargetUUID, Options: co}, nil
	case "removeConstraint":
		return worker.RemoveConstraint{ID: m.ConstraintID}, nil
	case "resetDynamicBody":
		return worker.ResetBody{ID: m.UUID}, nil
	case "activateBody":
		return worker.ActivateBody{ID: m.UUID}, nil
	case "enableDebug":
		return worker.EnableDebug{Enabled: m.Enable != nil && *m.Enable}, nil
	case "applyForce":
		return worker.ApplyForce{ID: m.UUID, Force: vec(m.Force), Offset: vec(m.Offset)}, nil
	case "applyImpulse":
		return worker.ApplyImpulse{ID: m.UUID, Impulse: vec(m.Impulse), Offset: vec(m.Offset)}, nil
	case "setLinearVelocity":
		return worker.SetLinearVelocity{ID: m.UUID, Velocity: vec(m.Velocity)}, nil
	case "setAngularVelocity":
		return worker.SetAngularVelocity{ID: m.UUID, Velocity: vec(m.Velocity)}, nil
	case "transferData":
		buf := &buffer.Buffer{}
		if err := buf.UnmarshalBinary(m.Data); err != nil {
			return nil, fmt.Errorf("%w: transferData: %v", ErrMalformed, err)
		}
		return worker.TransferData{Buffer: buf}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}

type event struct {
	Type    string `json:"type"`
	UUID    string `json:"uuid,omitempty"`
	Index   *int   `json:"index,omitempty"`
	Request string `json:"request,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    []byte `json:"data,omitempty"`
}

// EncodeEvent renders ev as one JSON object without a trailing newline.
func EncodeEvent(ev worker.Event) ([]byte, error) {
	out := event{Type: ev.Type()}
	switch e := ev.(type) {
	case worker.EventReady:
	case worker.EventBodyReady:
		slot := e.Slot
		out.UUID, out.Index = e.ID, &slot
	case worker.EventBodyFailed:
		out.UUID, out.Error = e.ID, errString(e.Err)
	case worker.EventRequestFailed:
		if e.Message != nil {
			out.Request = e.Message.Type()
		}
		out.Error = errString(e.Err)
	case worker.EventTransfer:
		if e.Buffer != nil {
			data, err := e.Buffer.MarshalBinary()
			if err != nil {
				return nil, err
			}
			out.Data = data
		}
	default:
		return nil, fmt.Errorf("%w: event %T", ErrUnknownType, ev)
	}
	return sonnet.Marshal(out)
}

// Reader splits a stream into messages, one per line.
type Reader struct {
	scanner *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64<<10), MaxLine)
	return &Reader{scanner: s}
}

// Next returns the next message, skipping blank lines. It returns io.EOF at
// the end of the stream.
func (r *Reader) Next() (worker.Message, error) {
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		return DecodeMessage(line)
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Writer writes events one per line.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Write(ev worker.Event) error {
	data, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	_, err = w.w.Write(append(data, '\n'))
	return err
}

func (o *options) body() (engine.BodyOptions, error) {
	bo := engine.BodyOptions{
		Mass:             o.Mass,
		Friction:         o.Friction,
		Restitution:      o.Restitution,
		LinearDamping:    o.LinearDamping,
		AngularDamping:   o.AngularDamping,
		CollisionGroup:   o.CollisionFilterGroup,
		CollisionMask:    o.CollisionFilterMask,
		DisableCollision: o.DisableCollision,
	}
	if o.Type != "" {
		typ, err := engine.ParseBodyType(o.Type)
		if err != nil {
			return bo, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		bo.Type = &typ
	}
	if o.Gravity != nil {
		g := mgl32.Vec3(*o.Gravity)
		bo.Gravity = &g
	}
	return bo, nil
}

func (o *options) shape() (engine.ShapeOptions, error) {
	typ, err := engine.ParseShapeType(o.Type)
	if err != nil {
		return engine.ShapeOptions{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return engine.ShapeOptions{
		Type:        typ,
		HalfExtents: vec(o.HalfExtents),
		Radius:      o.Radius,
		Height:      o.Height,
		Offset:      vec(o.ShapeOffset),
		Margin:      o.Margin,
	}, nil
}

func (o *options) constraint() (engine.ConstraintOptions, error) {
	typ, err := engine.ParseConstraintType(o.Type)
	if err != nil {
		return engine.ConstraintOptions{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return engine.ConstraintOptions{
		Type:              typ,
		Pivot:             vec(o.Pivot),
		TargetPivot:       vec(o.TargetPivot),
		Axis:              vec(o.Axis),
		RestLength:        o.RestLength,
		Stiffness:         o.Stiffness,
		Damping:           o.Damping,
		Min:               o.Min,
		Max:               o.Max,
		MaxForce:          o.MaxForce,
		DisableCollisions: o.DisableCollisions,
	}, nil
}

func matrix(m *[16]float32) mgl32.Mat4 {
	if m == nil {
		return mgl32.Ident4()
	}
	return mgl32.Mat4(*m)
}

func vec(v *[3]float32) mgl32.Vec3 {
	if v == nil {
		return mgl32.Vec3{}
	}
	return mgl32.Vec3(*v)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
