package main

import (
	"time"

	evdev "github.com/holoplot/go-evdev"
)

// DaemonState is the top-level, daemon-owned state container.
//
// Everything the key pipeline, the toggles and the indicator renderer read or
// write lives here. Only the daemon goroutine touches it; other goroutines get
// a StateSnapshot through the event loop.
type DaemonState struct {
	Layers LayerState

	// PressedAs remembers the keycode each physical key resolved to when it
	// went down, so its release is routed the same way even if layers changed.
	PressedAs map[evdev.EvCode]Keycode

	// Output is the set of keys the virtual keyboard currently has down.
	Output map[evdev.EvCode]bool

	SocdV    SocdAxis
	SocdH    SocdAxis
	SocdMode SocdMode

	Alchemy      *Alchemy
	SentenceCase SentenceCase

	Winlock   bool
	NKRO      bool
	NightMode bool
	NightHSV  HSV
	GameMode  bool

	AudioViz   bool
	AudioBands [audioBands]uint8

	Feedback []FeedbackEvent

	Bootloader  Deferred
	ClearConfig Deferred

	// SettingsLoaded is set once the persisted blob has been applied.
	SettingsLoaded bool
}

// NewDaemonState builds the initial state. Settings are applied later when the
// store has been read (SettingsLoaded event).
func NewDaemonState(vertical, horizontal SocdAxis, alchemy *Alchemy) *DaemonState {
	if alchemy == nil {
		alchemy = &Alchemy{}
	}
	return &DaemonState{
		PressedAs: make(map[evdev.EvCode]Keycode),
		Output:    make(map[evdev.EvCode]bool),
		SocdV:     vertical,
		SocdH:     horizontal,
		SocdMode:  vertical.Mode,
		Alchemy:   alchemy,
	}
}

// Settings returns the persisted subset of the current state.
func (s *DaemonState) Settings() Settings {
	return Settings{
		NKRO:        s.NKRO,
		NightMode:   s.NightMode,
		TypeAlchemy: s.Alchemy != nil && s.Alchemy.Active,
		GameMode:    s.GameMode,
		NightHSV:    s.NightHSV,
	}
}

func (s *DaemonState) shiftHeld() bool {
	return s.Output[evdev.KEY_LEFTSHIFT] || s.Output[evdev.KEY_RIGHTSHIFT]
}

// shortcutHeld reports whether a non-shift modifier is down; text features
// ignore chords like ctrl+c.
func (s *DaemonState) shortcutHeld() bool {
	return s.Output[evdev.KEY_LEFTCTRL] || s.Output[evdev.KEY_RIGHTCTRL] ||
		s.Output[evdev.KEY_LEFTALT] || s.Output[evdev.KEY_RIGHTALT] ||
		s.Output[evdev.KEY_LEFTMETA] || s.Output[evdev.KEY_RIGHTMETA]
}

// ============================================================================
// Feedback events
// ============================================================================

type FeedbackKind uint8

const (
	FeedbackDFU FeedbackKind = iota + 1
	FeedbackClear
	FeedbackNKRO
	FeedbackSocd
)

func (k FeedbackKind) String() string {
	switch k {
	case FeedbackDFU:
		return "dfu"
	case FeedbackClear:
		return "clear"
	case FeedbackNKRO:
		return "nkro"
	case FeedbackSocd:
		return "socd"
	default:
		return "unknown"
	}
}

// FeedbackEvent is a timed LED flash. Payload is kind-specific: the new NKRO
// state (0/1) or the new SocdMode.
type FeedbackEvent struct {
	Kind    FeedbackKind
	Start   time.Time
	Payload uint8
}

// Duration is how long the flash stays visible after Start.
func (f FeedbackEvent) Duration() time.Duration {
	switch f.Kind {
	case FeedbackDFU:
		return feedbackDFUDuration
	case FeedbackClear:
		return feedbackClearDuration
	case FeedbackNKRO:
		return feedbackNKRODuration
	case FeedbackSocd:
		if SocdMode(f.Payload) == SocdLastWins {
			return socdLastPhase2
		}
		return socdShortFlash
	default:
		return 0
	}
}

// Elapsed is the time since the flash started; Active while Elapsed <= Duration.
func (f FeedbackEvent) Elapsed(now time.Time) time.Duration { return now.Sub(f.Start) }

func (f FeedbackEvent) Active(now time.Time) bool { return f.Elapsed(now) <= f.Duration() }

// triggerFeedback starts a flash, restarting any flash of the same kind.
func (s *DaemonState) triggerFeedback(kind FeedbackKind, now time.Time, payload uint8) {
	ev := FeedbackEvent{Kind: kind, Start: now, Payload: payload}
	for i := range s.Feedback {
		if s.Feedback[i].Kind == kind {
			s.Feedback[i] = ev
			return
		}
	}
	s.Feedback = append(s.Feedback, ev)
}

// activeFeedback returns the unexpired flash of kind, if any.
func (s *DaemonState) activeFeedback(kind FeedbackKind, now time.Time) (FeedbackEvent, bool) {
	for _, f := range s.Feedback {
		if f.Kind == kind && f.Active(now) {
			return f, true
		}
	}
	return FeedbackEvent{}, false
}

// expireFeedback drops flashes whose timer has run out.
func (s *DaemonState) expireFeedback(now time.Time) {
	kept := s.Feedback[:0]
	for _, f := range s.Feedback {
		if f.Active(now) {
			kept = append(kept, f)
		}
	}
	s.Feedback = kept
}

// ============================================================================
// Snapshot
// ============================================================================

// StateSnapshot is the externally visible view of DaemonState.
type StateSnapshot struct {
	Layer        int    `json:"layer"`
	SentenceCase bool   `json:"sentence_case"`
	Winlock      bool   `json:"winlock"`
	NKRO         bool   `json:"nkro"`
	NightMode    bool   `json:"night_mode"`
	NightHSV     HSV    `json:"night_hsv"`
	GameMode     bool   `json:"game_mode"`
	TypeAlchemy  bool   `json:"type_alchemy"`
	AudioViz     bool   `json:"audio_viz"`
	SocdMode     string `json:"socd_mode"`

	SocdVertical   string `json:"socd_vertical,omitempty"`
	SocdHorizontal string `json:"socd_horizontal,omitempty"`

	AlchemyMappings int `json:"alchemy_mappings"`

	BootloaderPending  bool `json:"bootloader_pending"`
	ClearConfigPending bool `json:"clear_config_pending"`

	Feedback []string `json:"feedback,omitempty"`
}

func (s *DaemonState) Snapshot(now time.Time) StateSnapshot {
	snap := StateSnapshot{
		Layer:              s.Layers.Highest(),
		SentenceCase:       s.SentenceCase.Enabled,
		Winlock:            s.Winlock,
		NKRO:               s.NKRO,
		NightMode:          s.NightMode,
		NightHSV:           s.NightHSV,
		GameMode:           s.GameMode,
		TypeAlchemy:        s.Alchemy.Active,
		AudioViz:           s.AudioViz,
		SocdMode:           s.SocdMode.String(),
		AlchemyMappings:    len(s.Alchemy.mappings),
		BootloaderPending:  s.Bootloader.Pending,
		ClearConfigPending: s.ClearConfig.Pending,
	}
	if code, ok := s.SocdV.Active(); ok {
		snap.SocdVertical = keyName(code)
	}
	if code, ok := s.SocdH.Active(); ok {
		snap.SocdHorizontal = keyName(code)
	}
	for _, f := range s.Feedback {
		if f.Active(now) {
			snap.Feedback = append(snap.Feedback, f.Kind.String())
		}
	}
	return snap
}
