package main

import "testing"

func TestFormatMessage(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{
			`{"type":"control_state","data":{"connected":true,"state":{"steering":0.25,"throttle":-0.5,"mode":"user","recording":true,"max_throttle":0.8,"chaos":0}}}`,
			"[STATE] steering=+0.25 throttle=-0.50 mode=user rec=true max=0.80 const=false chaos=0 halted=false",
		},
		{
			`{"type":"state_init","data":{"connected":false,"state":{"mode":"local","halted":true}}}`,
			"[INIT] no controller; mode=local halted=true",
		},
		{`{"type":"erase_records","data":{"count":100}}`, "[ERASE] last 100 records"},
		{`{"type":"emergency_stop"}`, "[E-STOP] vehicle halted"},
		{`{"type":"mode_changed","data":{"mode":"local_angle"}}`, "[MODE] local_angle"},
		{`{"type":"device_disconnected","data":{"device":"pad","reason":"unplugged"}}`, `[DISCONNECTED] "pad" (unplugged)`},
		{`not json`, "[TEXT] not json"},
	}
	for _, tc := range cases {
		if got := formatMessage([]byte(tc.in)); got != tc.want {
			t.Fatalf("formatMessage(%s)\n got %q\nwant %q", tc.in, got, tc.want)
		}
	}
}
