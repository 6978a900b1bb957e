package input

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Change events
// ============================================================================
// A tracker turns raw controller samples into named change events. They are
// also the payload accepted over IPC, so they carry a JSON envelope with a
// type discriminator.
// ============================================================================

// Event is a marker interface for named change events.
type Event interface {
	eventMarker()
}

// AxisChanged reports a bound axis whose value differs from the previous poll.
type AxisChanged struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func (AxisChanged) eventMarker() {}

// ButtonChanged reports a bound button (physical or synthesized from a hat)
// whose pressed state differs from the previous poll.
type ButtonChanged struct {
	Name  string `json:"name"`
	State bool   `json:"state"`
}

func (ButtonChanged) eventMarker() {}

const (
	TypeAxisChanged   = "axis_changed"
	TypeButtonChanged = "button_changed"
)

// Envelope wraps an event with a type discriminator for JSON marshaling.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON envelope into a concrete Event.
func UnmarshalEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case TypeAxisChanged:
		var e AxisChanged
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal AxisChanged: %w", err)
		}
		if e.Name == "" {
			return nil, fmt.Errorf("axis_changed: name is empty")
		}
		if e.Value < -1 || e.Value > 1 {
			return nil, fmt.Errorf("axis_changed: value %v outside [-1, 1]", e.Value)
		}
		return e, nil

	case TypeButtonChanged:
		var e ButtonChanged
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal ButtonChanged: %w", err)
		}
		if e.Name == "" {
			return nil, fmt.Errorf("button_changed: name is empty")
		}
		return e, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope.
func MarshalEvent(e Event) ([]byte, error) {
	var env Envelope

	switch e := e.(type) {
	case AxisChanged:
		env.Type = TypeAxisChanged
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal AxisChanged: %w", err)
		}
		env.Data = data

	case ButtonChanged:
		env.Type = TypeButtonChanged
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal ButtonChanged: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}

// Latest is the most recent button and axis change seen in a batch of
// events. It is what a single-value consumer (a status line, the state
// snapshot) reports; the dispatcher always gets the full batch.
type Latest struct {
	Button      string  `json:"button,omitempty"`
	ButtonState bool    `json:"button_state"`
	Axis        string  `json:"axis,omitempty"`
	AxisValue   float64 `json:"axis_value"`
}

// LatestOf folds events into prev, keeping the last change of each kind.
func LatestOf(prev Latest, events []Event) Latest {
	out := prev
	for _, ev := range events {
		switch e := ev.(type) {
		case AxisChanged:
			out.Axis = e.Name
			out.AxisValue = e.Value
		case ButtonChanged:
			out.Button = e.Name
			out.ButtonState = e.State
		}
	}
	return out
}
