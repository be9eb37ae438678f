package worker

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/milk9111/physsync/buffer"
	"github.com/milk9111/physsync/debugdraw"
	"github.com/milk9111/physsync/engine"
)

// Message is a request from the consumer. Type is the wire name.
type Message interface {
	Type() string
}

type AddBody struct {
	ID      string
	Matrix  mgl32.Mat4
	Options engine.BodyOptions
}

type UpdateBody struct {
	ID      string
	Options engine.BodyOptions
}

type RemoveBody struct {
	ID string
}

type AddShapes struct {
	BodyID   string
	GroupID  string
	Geometry engine.Geometry
	Options  engine.ShapeOptions
}

type RemoveShapes struct {
	BodyID  string
	GroupID string
}

type AddConstraint struct {
	ID       string
	BodyID   string
	TargetID string
	Options  engine.ConstraintOptions
}

type RemoveConstraint struct {
	ID string
}

// ResetBody snaps a body to the transform in its buffer slot and stops it.
type ResetBody struct {
	ID string
}

type ActivateBody struct {
	ID string
}

// EnableDebug toggles debug drawing. Buffer, when set, replaces the line
// buffer the simulation draws into.
type EnableDebug struct {
	Enabled bool
	Buffer  *debugdraw.Buffer
}

type ApplyForce struct {
	ID     string
	Force  mgl32.Vec3
	Offset mgl32.Vec3
}

type ApplyImpulse struct {
	ID      string
	Impulse mgl32.Vec3
	Offset  mgl32.Vec3
}

type SetLinearVelocity struct {
	ID       string
	Velocity mgl32.Vec3
}

type SetAngularVelocity struct {
	ID       string
	Velocity mgl32.Vec3
}

// TransferData returns the buffer to the simulation in transfer mode.
type TransferData struct {
	Buffer *buffer.Buffer
}

func (AddBody) Type() string            { return "addBody" }
func (UpdateBody) Type() string         { return "updateBody" }
func (RemoveBody) Type() string         { return "removeBody" }
func (AddShapes) Type() string          { return "addShapes" }
func (RemoveShapes) Type() string       { return "removeShapes" }
func (AddConstraint) Type() string      { return "addConstraint" }
func (RemoveConstraint) Type() string   { return "removeConstraint" }
func (ResetBody) Type() string          { return "resetDynamicBody" }
func (ActivateBody) Type() string       { return "activateBody" }
func (EnableDebug) Type() string        { return "enableDebug" }
func (ApplyForce) Type() string         { return "applyForce" }
func (ApplyImpulse) Type() string       { return "applyImpulse" }
func (SetLinearVelocity) Type() string  { return "setLinearVelocity" }
func (SetAngularVelocity) Type() string { return "setAngularVelocity" }
func (TransferData) Type() string       { return "transferData" }
