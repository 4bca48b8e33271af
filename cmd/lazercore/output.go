package main

import (
	"fmt"
	"sync"

	evdev "github.com/holoplot/go-evdev"
)

// VirtualKeyboard is the uinput device every resolved key is written to.
type VirtualKeyboard struct {
	mu  sync.Mutex
	dev *evdev.InputDevice
}

// virtualKeyboardID identifies the device to the host as a USB keyboard.
var virtualKeyboardID = evdev.InputID{
	BusType: 0x03,
	Vendor:  0x258a,
	Product: 0x0049,
	Version: 1,
}

func NewVirtualKeyboard(name string) (*VirtualKeyboard, error) {
	seen := make(map[evdev.EvCode]bool)
	var keys []evdev.EvCode
	for _, code := range evdev.KEYFromString {
		if code == 0 || code > evdev.KEY_MAX || seen[code] {
			continue
		}
		seen[code] = true
		keys = append(keys, code)
	}

	dev, err := evdev.CreateDevice(name, virtualKeyboardID, map[evdev.EvType][]evdev.EvCode{
		evdev.EV_KEY: keys,
	})
	if err != nil {
		return nil, fmt.Errorf("create uinput device %q: %w", name, err)
	}
	return &VirtualKeyboard{dev: dev}, nil
}

func (k *VirtualKeyboard) EmitKey(code evdev.EvCode, pressed bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.write(KeyAction{Code: code, Pressed: pressed})
}

// TypeText types text key by key. Characters missing from the US layout go
// through the ctrl+shift+u unicode entry sequence understood by GTK and IBus.
func (k *VirtualKeyboard) TypeText(text string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, a := range textToKeys(text) {
		if err := k.write(a); err != nil {
			return err
		}
	}
	return nil
}

func (k *VirtualKeyboard) write(a KeyAction) error {
	var v int32
	if a.Pressed {
		v = evValuePress
	}
	if err := k.dev.WriteOne(&evdev.InputEvent{Type: evdev.EV_KEY, Code: a.Code, Value: v}); err != nil {
		return fmt.Errorf("write %s: %w", keyName(a.Code), err)
	}
	if err := k.dev.WriteOne(&evdev.InputEvent{Type: evdev.EV_SYN, Code: evdev.SYN_REPORT}); err != nil {
		return fmt.Errorf("write sync: %w", err)
	}
	return nil
}

func (k *VirtualKeyboard) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.dev.Close()
}

type charKey struct {
	code  evdev.EvCode
	shift bool
}

var (
	charKeysOnce sync.Once
	charKeys     map[rune]charKey
)

func keyForChar(r rune) (charKey, bool) {
	charKeysOnce.Do(func() {
		charKeys = make(map[rune]charKey, 2*len(keyChars))
		for code, kc := range keyChars {
			charKeys[kc.Normal] = charKey{code: code}
		}
		for code, kc := range keyChars {
			if _, ok := charKeys[kc.Shifted]; !ok {
				charKeys[kc.Shifted] = charKey{code: code, shift: true}
			}
		}
	})
	ck, ok := charKeys[r]
	return ck, ok
}

// textToKeys expands text into the key transitions that type it.
func textToKeys(text string) []KeyAction {
	var out []KeyAction
	tap := func(code evdev.EvCode) {
		out = append(out, KeyAction{Code: code, Pressed: true}, KeyAction{Code: code, Pressed: false})
	}
	typeChar := func(ck charKey) {
		if ck.shift {
			out = append(out, KeyAction{Code: evdev.KEY_LEFTSHIFT, Pressed: true})
		}
		tap(ck.code)
		if ck.shift {
			out = append(out, KeyAction{Code: evdev.KEY_LEFTSHIFT, Pressed: false})
		}
	}

	for _, r := range text {
		if ck, ok := keyForChar(r); ok {
			typeChar(ck)
			continue
		}

		out = append(out,
			KeyAction{Code: evdev.KEY_LEFTCTRL, Pressed: true},
			KeyAction{Code: evdev.KEY_LEFTSHIFT, Pressed: true},
		)
		tap(evdev.KEY_U)
		out = append(out,
			KeyAction{Code: evdev.KEY_LEFTSHIFT, Pressed: false},
			KeyAction{Code: evdev.KEY_LEFTCTRL, Pressed: false},
		)
		for _, h := range fmt.Sprintf("%x", r) {
			ck, _ := keyForChar(h)
			tap(ck.code)
		}
		tap(evdev.KEY_SPACE)
	}
	return out
}
