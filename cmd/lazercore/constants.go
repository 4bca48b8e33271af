package main

import "time"

// Input event value constants (struct input_event.value for EV_KEY)
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Daemon loop defaults
const (
	defaultTickHz        = 50
	defaultEventQueueLen = 128
	defaultIPCSocketPath = "/tmp/lazercore.sock"
	defaultHTTPListen    = "127.0.0.1:3001"
)

// Keymap geometry
const (
	numLayers = 6

	// Fn layers render the "control panel" indicator set.
	fnLayerA = 1
	fnLayerB = 4

	matrixRows = 6
	matrixCols = 15
)

// Type alchemy limits
const (
	maxAlchemyMappings = 64
	alchemyBufferSize  = 16
)

// Deferred destructive actions (bootloader jump, configuration erase)
const defaultDeferredDelay = 500 * time.Millisecond

// Feedback flash durations, measured from the moment the feedback was triggered.
const (
	feedbackDFUDuration   = 500 * time.Millisecond
	feedbackClearDuration = 500 * time.Millisecond
	feedbackNKRODuration  = 1000 * time.Millisecond

	// SOCD LastWins uses a two-phase flash: F1-F4 first, then F9-F12.
	socdLastPhase1   = 5 * time.Second
	socdLastPhase2   = 10 * time.Second
	socdShortFlash   = 1 * time.Second
	socdFirstSplitAt = 500 * time.Millisecond
)

// LED layout defaults (RK75 RGB matrix)
const (
	defaultLEDCount        = 82
	defaultNightBrightness = 0.4
)

// Indicator colours
var (
	colorOff    = RGB{}
	colorRed    = RGB{R: 0xFF}
	colorGreen  = RGB{G: 0xFF, B: 0x66}
	colorBlue   = RGB{R: 0x4D, G: 0xA6, B: 0xFF}
	colorPurple = RGB{R: 0x9B, G: 0x59, B: 0xFF}
	colorOrange = RGB{R: 0xFF, G: 0xA5}
)
