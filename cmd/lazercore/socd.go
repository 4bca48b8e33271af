package main

import (
	"fmt"
	"strings"

	evdev "github.com/holoplot/go-evdev"
)

// SocdMode is the resolution policy for two opposing keys held at once.
type SocdMode uint8

const (
	SocdLastWins SocdMode = iota
	SocdNeutral
	SocdFirstWins
)

func (m SocdMode) String() string {
	switch m {
	case SocdLastWins:
		return "last"
	case SocdNeutral:
		return "neutral"
	case SocdFirstWins:
		return "first"
	default:
		return fmt.Sprintf("SocdMode(%d)", uint8(m))
	}
}

// Next advances through the mode cycle, wrapping FirstWins back to LastWins.
func (m SocdMode) Next() SocdMode {
	if m >= SocdFirstWins {
		return SocdLastWins
	}
	return m + 1
}

func ParseSocdMode(s string) (SocdMode, error) {
	switch strings.ToLower(s) {
	case "last", "last_wins":
		return SocdLastWins, nil
	case "neutral":
		return SocdNeutral, nil
	case "first", "first_wins":
		return SocdFirstWins, nil
	default:
		return 0, fmt.Errorf("invalid socd mode %q (must be last, neutral or first)", s)
	}
}

// KeyAction is a synthetic key transition to send to the output device.
type KeyAction struct {
	Code    evdev.EvCode
	Pressed bool
}

const socdNone = -1

// SocdAxis resolves one pair of opposing keys (W/S or A/D).
//
// Held is the physical state. Reported is what the output device has been told;
// every synthetic transition goes through it so nothing is sent twice.
type SocdAxis struct {
	Name     string
	Keys     [2]evdev.EvCode
	Mode     SocdMode
	Held     [2]bool
	Reported [2]bool

	// First is the key that went down while the other was up (FirstWins only).
	First int
	// Last is the most recently pressed key.
	Last int
}

func NewSocdAxis(name string, negative, positive evdev.EvCode, mode SocdMode) SocdAxis {
	return SocdAxis{
		Name:  name,
		Keys:  [2]evdev.EvCode{negative, positive},
		Mode:  mode,
		First: socdNone,
		Last:  socdNone,
	}
}

func (a *SocdAxis) index(code evdev.EvCode) int {
	switch code {
	case a.Keys[0]:
		return 0
	case a.Keys[1]:
		return 1
	}
	return socdNone
}

// Resolve applies the axis policy to one key transition.
//
// Keys not bound to the axis pass through untouched. For bound keys, synth holds
// replacement transitions to emit in order; when passThrough is true the
// original event is emitted after them.
func (a *SocdAxis) Resolve(code evdev.EvCode, pressed bool) (passThrough bool, synth []KeyAction) {
	idx := a.index(code)
	if idx == socdNone {
		return true, nil
	}
	if pressed {
		return a.press(idx)
	}
	return a.release(idx)
}

func (a *SocdAxis) press(idx int) (bool, []KeyAction) {
	other := 1 - idx
	if a.Held[idx] {
		// Already down (duplicate press); nothing new to report.
		return false, nil
	}
	a.Held[idx] = true
	a.Last = idx

	switch a.Mode {
	case SocdNeutral:
		if a.Held[other] {
			return false, a.releaseReported(other, nil)
		}
		a.Reported[idx] = true
		return true, nil

	case SocdFirstWins:
		if a.Held[other] {
			return false, nil
		}
		a.First = idx
		a.Reported[idx] = true
		return true, nil

	default: // SocdLastWins
		synth := a.releaseReported(other, nil)
		a.Reported[idx] = true
		return true, synth
	}
}

func (a *SocdAxis) release(idx int) (bool, []KeyAction) {
	other := 1 - idx
	if !a.Held[idx] {
		// Release without a tracked press (held before we started). Let it through.
		return true, nil
	}
	a.Held[idx] = false
	wasReported := a.Reported[idx]
	a.Reported[idx] = false

	var extra []KeyAction
	switch a.Mode {
	case SocdFirstWins:
		switch {
		case !a.Held[other]:
			a.First = socdNone
		case a.First == idx, a.First == socdNone:
			// Activity moves to the remaining key. First is none here when
			// the mode switched to FirstWins with both keys down. Reported
			// guards against sending it twice.
			a.First = other
			if !a.Reported[other] {
				a.Reported[other] = true
				extra = append(extra, KeyAction{Code: a.Keys[other], Pressed: true})
			}
		}
	default: // SocdLastWins, SocdNeutral
		if a.Held[other] && !a.Reported[other] {
			a.Reported[other] = true
			extra = append(extra, KeyAction{Code: a.Keys[other], Pressed: true})
		}
	}

	if !wasReported {
		return false, extra
	}
	if len(extra) == 0 {
		return true, nil
	}
	return false, append([]KeyAction{{Code: a.Keys[idx], Pressed: false}}, extra...)
}

func (a *SocdAxis) releaseReported(idx int, synth []KeyAction) []KeyAction {
	if !a.Reported[idx] {
		return synth
	}
	a.Reported[idx] = false
	return append(synth, KeyAction{Code: a.Keys[idx], Pressed: false})
}

// SetMode switches the policy live without leaving First stale. The returned
// transitions bring the output in line with the new policy: keys it no longer
// allows are released, then the newly active key is pressed.
func (a *SocdAxis) SetMode(m SocdMode) []KeyAction {
	a.Mode = m
	if m == SocdFirstWins {
		a.First = a.solo()
	} else {
		a.First = socdNone
	}

	active := a.active()
	var synth []KeyAction
	for i := range a.Keys {
		if i != active {
			synth = a.releaseReported(i, synth)
		}
	}
	if active != socdNone && !a.Reported[active] {
		a.Reported[active] = true
		synth = append(synth, KeyAction{Code: a.Keys[active], Pressed: true})
	}
	return synth
}

// Active reports the direction the axis currently resolves to.
func (a *SocdAxis) Active() (evdev.EvCode, bool) {
	idx := a.active()
	if idx == socdNone {
		return 0, false
	}
	return a.Keys[idx], true
}

func (a *SocdAxis) active() int {
	switch a.Mode {
	case SocdNeutral:
		return a.solo()
	case SocdFirstWins:
		return a.First
	default:
		if a.Last != socdNone && a.Held[a.Last] {
			return a.Last
		}
		return a.solo()
	}
}

func (a *SocdAxis) solo() int {
	switch {
	case a.Held[0] && !a.Held[1]:
		return 0
	case a.Held[1] && !a.Held[0]:
		return 1
	}
	return socdNone
}

// Reset forgets all held state. Used when the output device is cleared.
func (a *SocdAxis) Reset() {
	a.Held = [2]bool{}
	a.Reported = [2]bool{}
	a.First = socdNone
	a.Last = socdNone
}
