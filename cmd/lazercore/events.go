package main

import (
	"encoding/json"
	"fmt"
	"time"

	evdev "github.com/holoplot/go-evdev"
)

// ============================================================================
// Events - inputs to the reducer
// ============================================================================
//
// Payload events (key transitions, encoder turns, IPC requests) are plain
// structs. The daemon loop stamps them with TimedEvent on arrival; the reducer
// uses that timestamp as "now" for feedback and deferred deadlines.
//
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// TimedEvent wraps a payload event with its arrival time.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// Tick is emitted by the daemon loop at a fixed cadence.
// Dt is wall-clock delta in seconds between ticks.
type Tick struct {
	Now time.Time
	Dt  float64
}

func (Tick) eventMarker() {}

// KeyInput is one physical key transition. Row and Col are optional matrix
// coordinates (-1 when unknown). They travel with the event for scripted
// clients; indicators address LEDs through LEDLayout instead.
type KeyInput struct {
	Code    evdev.EvCode `json:"code"`
	Row     int          `json:"row"`
	Col     int          `json:"col"`
	Pressed bool         `json:"pressed"`
}

func (KeyInput) eventMarker() {}

// EncoderTurn is a rotary encoder movement in detents (positive = clockwise).
type EncoderTurn struct {
	Steps int `json:"steps"`
}

func (EncoderTurn) eventMarker() {}

// InvokeOp triggers a custom operation by name, as if its key had been pressed.
type InvokeOp struct {
	Op string `json:"op"`
}

func (InvokeOp) eventMarker() {}

// AddAlchemyMapping appends a type alchemy mapping at runtime.
type AddAlchemyMapping struct {
	Word        string `json:"word"`
	Replacement string `json:"replacement"`
}

func (AddAlchemyMapping) eventMarker() {}

// AudioFrame carries visualiser band levels (rows lit per band).
type AudioFrame struct {
	Bands []int `json:"bands"`
}

func (AudioFrame) eventMarker() {}

// SetNightColor changes the night mode colour.
type SetNightColor struct {
	HSV HSV `json:"hsv"`
}

func (SetNightColor) eventMarker() {}

// SettingsLoaded is emitted once the persisted blob has been read at startup.
// Valid is false when the blob was absent or corrupt and defaults were used.
type SettingsLoaded struct {
	Settings Settings
	Valid    bool
}

func (SettingsLoaded) eventMarker() {}

// RequestStateSnapshot asks the reducer to publish a snapshot on Reply.
type RequestStateSnapshot struct {
	Reply chan StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// CommandFailed is emitted when executing a Command fails.
type CommandFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (CommandFailed) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// Only payload events travel over IPC. Internal events (ticks, observations,
// snapshot requests) have no wire form.
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "key":
		a := KeyInput{Row: -1, Col: -1}
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal KeyInput: %w", err)
		}
		return a, nil

	case "encoder_turn":
		var a EncoderTurn
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal EncoderTurn: %w", err)
		}
		return a, nil

	case "op":
		var a InvokeOp
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal InvokeOp: %w", err)
		}
		if _, ok := ParseCustomOp(a.Op); !ok {
			return nil, fmt.Errorf("unknown op %q", a.Op)
		}
		return a, nil

	case "alchemy_add":
		var a AddAlchemyMapping
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal AddAlchemyMapping: %w", err)
		}
		if err := validateAlchemyWord(a.Word); err != nil {
			return nil, fmt.Errorf("word %q: %w", a.Word, err)
		}
		return a, nil

	case "audio_frame":
		var a AudioFrame
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal AudioFrame: %w", err)
		}
		return a, nil

	case "night_color":
		var a SetNightColor
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetNightColor: %w", err)
		}
		return a, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case KeyInput:
		env.Type = "key"
	case EncoderTurn:
		env.Type = "encoder_turn"
	case InvokeOp:
		env.Type = "op"
	case AddAlchemyMapping:
		env.Type = "alchemy_add"
	case AudioFrame:
		env.Type = "audio_frame"
	case SetNightColor:
		env.Type = "night_color"
	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", env.Type, err)
	}
	env.Data = data

	return json.Marshal(env)
}
