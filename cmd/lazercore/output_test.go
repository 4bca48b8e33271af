package main

import (
	"testing"

	evdev "github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
)

func TestTextToKeys_Layout(t *testing.T) {
	assert.Equal(t, []KeyAction{
		press(evdev.KEY_H), release(evdev.KEY_H),
		press(evdev.KEY_LEFTSHIFT), press(evdev.KEY_1), release(evdev.KEY_1), release(evdev.KEY_LEFTSHIFT),
	}, textToKeys("h!"))

	// Space maps to itself unshifted even though it is listed in both columns.
	assert.Equal(t, []KeyAction{press(evdev.KEY_SPACE), release(evdev.KEY_SPACE)}, textToKeys(" "))
}

func TestTextToKeys_UnicodeEntry(t *testing.T) {
	got := textToKeys("π") // U+03C0
	want := []KeyAction{
		press(evdev.KEY_LEFTCTRL), press(evdev.KEY_LEFTSHIFT),
		press(evdev.KEY_U), release(evdev.KEY_U),
		release(evdev.KEY_LEFTSHIFT), release(evdev.KEY_LEFTCTRL),
		press(evdev.KEY_3), release(evdev.KEY_3),
		press(evdev.KEY_C), release(evdev.KEY_C),
		press(evdev.KEY_0), release(evdev.KEY_0),
		press(evdev.KEY_SPACE), release(evdev.KEY_SPACE),
	}
	assert.Equal(t, want, got)
}

func TestTextToKeys_BalancedTransitions(t *testing.T) {
	held := map[evdev.EvCode]bool{}
	for _, a := range textToKeys(`¯\_(ツ)_/¯ A→b`) {
		assert.NotEqual(t, a.Pressed, held[a.Code], "double transition for %s", keyName(a.Code))
		held[a.Code] = a.Pressed
	}
	for code, down := range held {
		assert.False(t, down, "%s left held", keyName(code))
	}
}
