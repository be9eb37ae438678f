// Package buffer implements the fixed-layout body buffer shared between the
// simulation and its consumer, and the handoff rules deciding which side may
// touch it.
//
// Every live body owns one record of BodyDataSize 32-bit words, addressed by
// slot*BodyDataSize:
//
//	0-15   transform matrix, column-major float32
//	16     linear speed, float32
//	17     angular speed, float32
//	18-25  collision partner slots, int32, -1 when empty
//
// In shared mode the payload is preceded by HeaderLength words holding the
// atomic buffer state.
package buffer

const (
	HeaderLength = 1

	MatrixOffset          = 0
	LinearVelocityOffset  = 16
	AngularVelocityOffset = 17
	CollisionsOffset      = 18
	MaxCollisions         = 8
	BodyDataSize          = CollisionsOffset + MaxCollisions

	DefaultMaxBodies = 10000
)

// State is the value stored in the shared header word.
type State int32

const (
	StateUninitialized State = 0
	StateReady         State = 1
	StateConsumed      State = 2
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateConsumed:
		return "consumed"
	default:
		return "unknown"
	}
}

// NoCollision fills unused collision words.
const NoCollision int32 = -1

// PayloadWords is the number of payload words needed for maxBodies records.
func PayloadWords(maxBodies int) int {
	return maxBodies * BodyDataSize
}
