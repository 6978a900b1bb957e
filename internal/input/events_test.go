package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalEvent(t *testing.T) {
	ev, err := UnmarshalEvent([]byte(`{"type":"button_changed","data":{"name":"A","state":true}}`))
	require.NoError(t, err)
	assert.Equal(t, ButtonChanged{Name: "A", State: true}, ev)

	ev, err = UnmarshalEvent([]byte(`{"type":"axis_changed","data":{"name":"trigger","value":-0.75}}`))
	require.NoError(t, err)
	assert.Equal(t, AxisChanged{Name: "trigger", Value: -0.75}, ev)
}

func TestUnmarshalEvent_Rejects(t *testing.T) {
	for _, in := range []string{
		`not json`,
		`{"type":"volume_held"}`,
		`{"type":"axis_changed","data":{"name":"x","value":1.5}}`,
		`{"type":"axis_changed","data":{"value":0.1}}`,
		`{"type":"button_changed","data":{"state":true}}`,
	} {
		_, err := UnmarshalEvent([]byte(in))
		assert.Error(t, err, in)
	}
}

func TestMarshalEvent(t *testing.T) {
	b, err := MarshalEvent(ButtonChanged{Name: "dpad_up", State: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"button_changed","data":{"name":"dpad_up","state":true}}`, string(b))

	_, err = MarshalEvent(nil)
	assert.Error(t, err)
}

func TestLatestOf(t *testing.T) {
	got := LatestOf(Latest{}, []Event{
		AxisChanged{Name: LeftStickHorz, Value: 0.1},
		ButtonChanged{Name: ButtonA, State: true},
		AxisChanged{Name: RightStickVert, Value: -0.4},
		ButtonChanged{Name: DpadUp, State: false},
	})
	assert.Equal(t, Latest{Button: DpadUp, ButtonState: false, Axis: RightStickVert, AxisValue: -0.4}, got)

	// An empty batch keeps the previous values.
	assert.Equal(t, got, LatestOf(got, nil))
}
