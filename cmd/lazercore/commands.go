package main

import (
	"fmt"
	"strconv"

	evdev "github.com/holoplot/go-evdev"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop:
// key output, LED frames, persistence and host control.
type Command interface {
	commandMarker()
	String() string
}

// CmdEmitKey sends one key transition through the virtual keyboard.
type CmdEmitKey struct {
	Code    evdev.EvCode
	Pressed bool
}

func (CmdEmitKey) commandMarker() {}
func (c CmdEmitKey) String() string {
	return fmt.Sprintf("CmdEmitKey(code=%s, pressed=%v)", keyName(c.Code), c.Pressed)
}

// CmdTypeText types arbitrary unicode text (type alchemy replacements).
type CmdTypeText struct {
	Text string
}

func (CmdTypeText) commandMarker() {}
func (c CmdTypeText) String() string {
	return "CmdTypeText(text=" + strconv.Quote(c.Text) + ")"
}

// CmdSetLEDs pushes one rendered indicator frame.
type CmdSetLEDs struct {
	Frame []LEDColor
}

func (CmdSetLEDs) commandMarker() {}
func (c CmdSetLEDs) String() string { return fmt.Sprintf("CmdSetLEDs(leds=%d)", len(c.Frame)) }

// CmdPersist writes the settings blob.
type CmdPersist struct {
	Settings Settings
}

func (CmdPersist) commandMarker() {}
func (c CmdPersist) String() string { return fmt.Sprintf("CmdPersist(%+v)", c.Settings) }

// CmdSetNKRO tells the host which rollover mode to report.
type CmdSetNKRO struct {
	Enabled bool
}

func (CmdSetNKRO) commandMarker() {}
func (c CmdSetNKRO) String() string { return fmt.Sprintf("CmdSetNKRO(enabled=%v)", c.Enabled) }

// CmdRebootBootloader commits a pending bootloader jump.
type CmdRebootBootloader struct{}

func (CmdRebootBootloader) commandMarker() {}
func (CmdRebootBootloader) String() string { return "CmdRebootBootloader()" }

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Snapshot StateSnapshot
	Reply    chan StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }
