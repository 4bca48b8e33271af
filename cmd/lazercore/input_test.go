package main

import (
	"testing"

	evdev "github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
)

func TestTranslateInput(t *testing.T) {
	tests := []struct {
		name string
		in   evdev.InputEvent
		want Event
		ok   bool
	}{
		{"press", evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_W, Value: evValuePress},
			KeyInput{Code: evdev.KEY_W, Row: -1, Col: -1, Pressed: true}, true},
		{"release", evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_W, Value: evValueRelease},
			KeyInput{Code: evdev.KEY_W, Row: -1, Col: -1}, true},
		{"autorepeat dropped", evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_W, Value: evValueRepeat}, nil, false},
		{"dial", evdev.InputEvent{Type: evdev.EV_REL, Code: evdev.REL_DIAL, Value: -2}, EncoderTurn{Steps: -2}, true},
		{"wheel", evdev.InputEvent{Type: evdev.EV_REL, Code: evdev.REL_WHEEL, Value: 1}, EncoderTurn{Steps: 1}, true},
		{"zero movement", evdev.InputEvent{Type: evdev.EV_REL, Code: evdev.REL_DIAL}, nil, false},
		{"pointer motion", evdev.InputEvent{Type: evdev.EV_REL, Code: evdev.REL_X, Value: 5}, nil, false},
		{"sync", evdev.InputEvent{Type: evdev.EV_SYN, Code: evdev.SYN_REPORT}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := translateInput(&tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsKeyboard(t *testing.T) {
	assert.True(t, isKeyboard([]evdev.EvCode{evdev.KEY_ESC, evdev.KEY_A, evdev.KEY_ENTER}))
	assert.False(t, isKeyboard([]evdev.EvCode{evdev.BTN_LEFT, evdev.BTN_RIGHT}))
	assert.False(t, isKeyboard(nil))
}
