package monitor

import "testing"

func TestParseSensor(t *testing.T) {
	state, ok := parseSensor([]byte(`{"type":"sensor","payload":{"angle":12.5,"rep":7,"running":true,"deviceStatus":"Ready"}}`))
	if !ok {
		t.Fatal("expected sensor frame to parse")
	}
	if state.Angle != 12.5 || state.Rep != 7 || !state.Running || state.DeviceStatus != "Ready" {
		t.Errorf("state: %+v", state)
	}
}

func TestParseSensorRejectsOtherFrames(t *testing.T) {
	cases := [][]byte{
		[]byte(`{"type":"control","reset":true}`),
		[]byte(`not json`),
		[]byte(`{}`),
	}
	for _, raw := range cases {
		if _, ok := parseSensor(raw); ok {
			t.Errorf("parsed non-sensor frame: %s", raw)
		}
	}
}
