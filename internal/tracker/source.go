package tracker

// RawEventKind classifies a source-level event drained on each poll.
type RawEventKind int

const (
	RawOther RawEventKind = iota
	// RawQuit means the device (or the whole input subsystem) is gone.
	RawQuit
)

// RawEvent is an event pulled from the input source's queue. The tracker only
// looks for RawQuit; everything else is drained and dropped.
type RawEvent struct {
	Kind   RawEventKind
	Detail string
}

// Source enumerates and opens controllers.
type Source interface {
	DeviceCount() int
	Open(index int) (Device, error)
}

// Device is one open controller. Counts are fixed for the lifetime of the
// handle. Reads return the value sampled at the most recent PollEvents call.
type Device interface {
	Name() string
	AxisCount() int
	ButtonCount() int
	HatCount() int

	// Axis returns a value in [-1, 1].
	Axis(i int) float64
	Button(i int) bool
	// Hat returns (horz, vert), each in {-1, 0, 1}; vert = 1 is up.
	Hat(i int) (horz, vert int)

	// PollEvents drains pending source events without blocking.
	PollEvents() []RawEvent
	Close() error
}
