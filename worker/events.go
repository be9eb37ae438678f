package worker

import "github.com/milk9111/physsync/buffer"

// Event is a notification to the consumer. Type is the wire name.
type Event interface {
	Type() string
}

// EventReady is sent once the worker is initialized.
type EventReady struct{}

// EventBodyReady carries the slot assigned to a new body.
type EventBodyReady struct {
	ID   string
	Slot int
}

// EventBodyFailed reports an AddBody that could not be honoured.
type EventBodyFailed struct {
	ID  string
	Err error
}

// EventRequestFailed reports a request dropped for a reason other than an
// unknown id.
type EventRequestFailed struct {
	Message Message
	Err     error
}

// EventTransfer hands the buffer to the consumer in transfer mode.
type EventTransfer struct {
	Buffer *buffer.Buffer
}

func (EventReady) Type() string         { return "ready" }
func (EventBodyReady) Type() string     { return "bodyReady" }
func (EventBodyFailed) Type() string    { return "bodyFailed" }
func (EventRequestFailed) Type() string { return "requestFailed" }
func (EventTransfer) Type() string      { return "transferData" }
