package main

import (
	"testing"

	evdev "github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalEvent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Event
	}{
		{"key defaults coordinates", `{"type":"key","data":{"code":30,"pressed":true}}`,
			KeyInput{Code: evdev.KEY_A, Row: -1, Col: -1, Pressed: true}},
		{"key with matrix position", `{"type":"key","data":{"code":17,"row":2,"col":2}}`,
			KeyInput{Code: evdev.KEY_W, Row: 2, Col: 2}},
		{"encoder", `{"type":"encoder_turn","data":{"steps":-3}}`, EncoderTurn{Steps: -3}},
		{"op by wire name", `{"type":"op","data":{"op":"game_mode"}}`, InvokeOp{Op: "game_mode"}},
		{"op by keycode name", `{"type":"op","data":{"op":"NKRO_MODE_TOG"}}`, InvokeOp{Op: "NKRO_MODE_TOG"}},
		{"alchemy", `{"type":"alchemy_add","data":{"word":"tm","replacement":"™"}}`,
			AddAlchemyMapping{Word: "tm", Replacement: "™"}},
		{"audio", `{"type":"audio_frame","data":{"bands":[1,2,3]}}`, AudioFrame{Bands: []int{1, 2, 3}}},
		{"night colour", `{"type":"night_color","data":{"hsv":{"h":10,"s":20,"v":30}}}`,
			SetNightColor{HSV: HSV{H: 10, S: 20, V: 30}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalEvent([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnmarshalEvent_Rejects(t *testing.T) {
	for name, in := range map[string]string{
		"not json":       `nope`,
		"unknown type":   `{"type":"tick"}`,
		"unknown op":     `{"type":"op","data":{"op":"format_disk"}}`,
		"bad word":       `{"type":"alchemy_add","data":{"word":"two words","replacement":"x"}}`,
		"empty word":     `{"type":"alchemy_add","data":{"replacement":"x"}}`,
		"wrong key data": `{"type":"key","data":{"code":"A"}}`,
		"hsv overflow":   `{"type":"night_color","data":{"hsv":{"h":300}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalEvent([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestMarshalEvent_RoundTrip(t *testing.T) {
	for _, ev := range []Event{
		KeyInput{Code: evdev.KEY_D, Row: -1, Col: -1, Pressed: true},
		InvokeOp{Op: "winlock"},
		AddAlchemyMapping{Word: "deg", Replacement: "°"},
	} {
		b, err := MarshalEvent(ev)
		require.NoError(t, err)
		got, err := UnmarshalEvent(b)
		require.NoError(t, err)
		assert.Equal(t, ev, got)
	}

	_, err := MarshalEvent(Tick{})
	assert.Error(t, err, "internal events have no wire form")
}
