package main

import (
	"maps"
	"slices"
	"time"

	evdev "github.com/holoplot/go-evdev"
)

// This file implements the reducer:
//
//   - Events: inputs (key transitions, encoder turns, ticks, IPC requests, observations)
//   - Commands: side effects requested by the reducer (key output, LEDs, persistence, host control)
//   - Broadcasts: externally visible state changes for WS clients
//
// Reduce mutates only the DaemonState it is given and performs no I/O. The
// daemon loop executes Commands and feeds observations back as Events.
//
// Key pipeline for a basic keycode, in order:
//
//	SOCD (vertical, horizontal) -> win-lock -> sentence case -> type alchemy -> output

// ReducerConfig is the static configuration the reducer consults.
type ReducerConfig struct {
	Keymap        Keymap
	LEDs          LEDLayout
	DeferredDelay time.Duration

	// Defaults are restored by a configuration erase.
	Defaults Settings

	// SocdMode is applied at startup and after an erase.
	SocdMode SocdMode
}

// ==============================
// Broadcasts
// ==============================

// StateBroadcast is an externally visible state change, fanned out to WS clients.
type StateBroadcast interface {
	broadcastMarker()
}

type BroadcastToggleChanged struct {
	Name    string
	Enabled bool
	At      time.Time
}

func (BroadcastToggleChanged) broadcastMarker() {}

type BroadcastLayerChanged struct {
	Layer int
	At    time.Time
}

func (BroadcastLayerChanged) broadcastMarker() {}

type BroadcastSocdModeChanged struct {
	Mode SocdMode
	At   time.Time
}

func (BroadcastSocdModeChanged) broadcastMarker() {}

// BroadcastDeferred reports a destructive action being armed or committed.
type BroadcastDeferred struct {
	Action   string
	Pending  bool
	Deadline time.Time
	At       time.Time
}

func (BroadcastDeferred) broadcastMarker() {}

type BroadcastSettingsReset struct {
	At time.Time
}

func (BroadcastSettingsReset) broadcastMarker() {}

type BroadcastAlchemyMappingAdded struct {
	Word string
	At   time.Time
}

func (BroadcastAlchemyMappingAdded) broadcastMarker() {}

// ==============================
// Reducer input/output
// ==============================

// ReduceResult is the output of Reduce(): next state, commands to execute and
// broadcasts to publish.
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// reducer accumulates the output of a single Reduce call.
type reducer struct {
	s      *DaemonState
	cfg    *ReducerConfig
	now    time.Time
	cmds   []Command
	bcasts []StateBroadcast
}

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate anything outside the given state
func Reduce(s *DaemonState, e Event, cfg ReducerConfig) ReduceResult {
	if s == nil {
		s = NewDaemonState(
			NewSocdAxis("vertical", evdev.KEY_W, evdev.KEY_S, cfg.SocdMode),
			NewSocdAxis("horizontal", evdev.KEY_A, evdev.KEY_D, cfg.SocdMode),
			nil,
		)
	}

	r := &reducer{s: s, cfg: &cfg, now: time.Now()}
	if te, ok := e.(TimedEvent); ok {
		e = te.Event
		if !te.At.IsZero() {
			r.now = te.At
		}
	}

	switch ev := e.(type) {
	case Tick:
		r.now = ev.Now
		r.tick()

	case KeyInput:
		r.key(ev)

	case EncoderTurn:
		r.encoder(ev.Steps)

	case InvokeOp:
		if op, ok := ParseCustomOp(ev.Op); ok {
			r.applyOp(op)
		}

	case AddAlchemyMapping:
		if err := s.Alchemy.Add(ev.Word, ev.Replacement); err == nil {
			r.broadcast(BroadcastAlchemyMappingAdded{Word: ev.Word, At: r.now})
		}

	case AudioFrame:
		if s.AudioViz {
			var bands [audioBands]uint8
			for i := 0; i < audioBands && i < len(ev.Bands); i++ {
				bands[i] = uint8(min(max(ev.Bands[i], 0), matrixRows))
			}
			s.AudioBands = bands
		}

	case SetNightColor:
		s.NightHSV = ev.HSV
		r.persist()

	case SettingsLoaded:
		r.applySettings(ev)

	case RequestStateSnapshot:
		r.emit(CmdPublishStateSnapshot{Snapshot: s.Snapshot(r.now), Reply: ev.Reply})

	case CommandFailed:
		// State stays as-is; the effect already logged the failure.

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{
		State:      s,
		Commands:   r.cmds,
		Broadcasts: r.bcasts,
	}
}

func (r *reducer) emit(c Command)               { r.cmds = append(r.cmds, c) }
func (r *reducer) broadcast(b StateBroadcast)   { r.bcasts = append(r.bcasts, b) }
func (r *reducer) toggled(name string, on bool) { r.broadcast(BroadcastToggleChanged{Name: name, Enabled: on, At: r.now}) }

// emitKey sends a transition unless the output already has the key in that state.
func (r *reducer) emitKey(code evdev.EvCode, pressed bool) {
	if r.s.Output[code] == pressed {
		return
	}
	if pressed {
		r.s.Output[code] = true
	} else {
		delete(r.s.Output, code)
	}
	r.emit(CmdEmitKey{Code: code, Pressed: pressed})
}

func (r *reducer) tap(code evdev.EvCode) {
	r.emitKey(code, true)
	r.emitKey(code, false)
}

func (r *reducer) persist() {
	if !r.s.SettingsLoaded {
		return
	}
	r.emit(CmdPersist{Settings: r.s.Settings()})
}

// ============================================================================
// Keys
// ============================================================================

func (r *reducer) key(ev KeyInput) {
	s := r.s
	var kc Keycode
	if ev.Pressed {
		if _, down := s.PressedAs[ev.Code]; down {
			return
		}
		kc = r.cfg.Keymap.Lookup(s.Layers, ev.Code)
		s.PressedAs[ev.Code] = kc
	} else {
		var ok bool
		kc, ok = s.PressedAs[ev.Code]
		if !ok {
			kc = r.cfg.Keymap.Lookup(s.Layers, ev.Code)
		}
		delete(s.PressedAs, ev.Code)
	}
	r.keycode(kc, ev.Pressed)
}

func (r *reducer) keycode(kc Keycode, pressed bool) {
	s := r.s
	switch kc.Kind {
	case KindNone, KindTransparent:
		// nothing bound

	case KindBasic:
		r.basic(kc.Code(), pressed)

	case KindMomentary:
		prev := s.Layers.Highest()
		if pressed {
			s.Layers = s.Layers.On(int(kc.Value))
		} else {
			s.Layers = s.Layers.Off(int(kc.Value))
		}
		r.layerChanged(prev)

	case KindToLayer:
		if pressed {
			prev := s.Layers.Highest()
			s.Layers = moveTo(int(kc.Value))
			r.layerChanged(prev)
		}

	case KindCustom:
		if pressed {
			r.applyOp(kc.Op())
		}
	}
}

func (r *reducer) layerChanged(prev int) {
	if cur := r.s.Layers.Highest(); cur != prev {
		r.broadcast(BroadcastLayerChanged{Layer: cur, At: r.now})
	}
}

func (r *reducer) basic(code evdev.EvCode, pressed bool) {
	s := r.s
	for _, axis := range []*SocdAxis{&s.SocdV, &s.SocdH} {
		pass, synth := axis.Resolve(code, pressed)
		for _, k := range synth {
			r.emitKey(k.Code, k.Pressed)
		}
		if !pass {
			return
		}
	}

	if !pressed {
		r.emitKey(code, false)
		return
	}

	if s.Winlock && isGUIKey(code) {
		return
	}

	if !isModifierKey(code) && !s.GameMode && !s.shortcutHeld() && r.text(code) {
		return
	}
	r.emitKey(code, true)
}

// text runs sentence case and type alchemy for a printable keypress. It
// returns true when it has taken over the output for this press.
func (r *reducer) text(code evdev.EvCode) bool {
	s := r.s
	shifted := s.shiftHeld()
	ch, known := charFor(code, shifted)

	shift := s.SentenceCase.Feed(ch, known, shifted)
	if shift {
		ch, _ = charFor(code, true)
	}

	if pass, out := s.Alchemy.Feed(ch, true); !pass {
		// The replacement is typed with its own modifiers; a held shift
		// would otherwise leak into it and be dropped afterwards.
		held := r.liftModifiers()
		for i := 0; i < out.Backspaces; i++ {
			r.tap(evdev.KEY_BACKSPACE)
		}
		if out.Text != "" {
			r.emit(CmdTypeText{Text: out.Text})
		}
		for _, code := range held {
			r.emitKey(code, true)
		}
		return true
	}

	if shift {
		r.emitKey(evdev.KEY_LEFTSHIFT, true)
		r.emitKey(code, true)
		r.emitKey(evdev.KEY_LEFTSHIFT, false)
		return true
	}
	return false
}

// liftModifiers releases every modifier the output holds and returns them so
// the caller can press them again.
func (r *reducer) liftModifiers() []evdev.EvCode {
	var held []evdev.EvCode
	for _, code := range slices.Sorted(maps.Keys(r.s.Output)) {
		if isModifierKey(code) {
			held = append(held, code)
			r.emitKey(code, false)
		}
	}
	return held
}

func (r *reducer) encoder(steps int) {
	const maxSteps = 32
	if steps == 0 {
		return
	}
	cw := steps > 0
	n := min(max(steps, -steps), maxSteps)

	kc := r.cfg.Keymap.EncoderLookup(r.s.Layers, cw)
	for i := 0; i < n; i++ {
		switch kc.Kind {
		case KindBasic:
			r.tap(kc.Code())
		case KindCustom:
			r.applyOp(kc.Op())
		default:
			return
		}
	}
}

// ============================================================================
// Toggles
// ============================================================================

func (r *reducer) applyOp(op CustomOp) {
	s := r.s
	switch op {
	case OpSentenceCase:
		s.SentenceCase.Toggle()
		r.toggled(op.Name(), s.SentenceCase.Enabled)

	case OpWinlock:
		r.setWinlock(!s.Winlock)

	case OpSocdMode:
		r.applySocdMode(s.SocdMode.Next(), true)

	case OpNKRO:
		r.setNKRO(!s.NKRO, true)
		r.persist()

	case OpBootloader:
		s.triggerFeedback(FeedbackDFU, r.now, 0)
		s.Bootloader.Arm(r.now, r.cfg.DeferredDelay)
		r.broadcast(BroadcastDeferred{Action: op.Name(), Pending: true, Deadline: s.Bootloader.Deadline, At: r.now})

	case OpClearConfig:
		s.triggerFeedback(FeedbackClear, r.now, 0)
		s.ClearConfig.Arm(r.now, r.cfg.DeferredDelay)
		r.broadcast(BroadcastDeferred{Action: op.Name(), Pending: true, Deadline: s.ClearConfig.Deadline, At: r.now})

	case OpAlchemy:
		s.Alchemy.Active = !s.Alchemy.Active
		s.Alchemy.Reset()
		r.toggled(op.Name(), s.Alchemy.Active)
		r.persist()

	case OpNightMode:
		s.NightMode = !s.NightMode
		r.toggled(op.Name(), s.NightMode)
		r.persist()

	case OpGameMode:
		r.setGameMode(!s.GameMode)
		r.persist()

	case OpAudioViz:
		s.AudioViz = !s.AudioViz
		if !s.AudioViz {
			s.AudioBands = [audioBands]uint8{}
		}
		r.toggled(op.Name(), s.AudioViz)
	}
}

// setWinlock blocks GUI keys. Enabling it also releases every held non-modifier
// key so nothing stays stuck behind the lock.
func (r *reducer) setWinlock(enabled bool) {
	r.s.Winlock = enabled
	if enabled {
		for _, code := range slices.Sorted(maps.Keys(r.s.Output)) {
			if !isModifierKey(code) {
				r.emitKey(code, false)
			}
		}
	}
	r.toggled(OpWinlock.Name(), enabled)
}

func (r *reducer) setNKRO(enabled, feedback bool) {
	r.s.NKRO = enabled
	r.emit(CmdSetNKRO{Enabled: enabled})
	if feedback {
		var payload uint8
		if enabled {
			payload = 1
		}
		r.s.triggerFeedback(FeedbackNKRO, r.now, payload)
	}
	r.toggled(OpNKRO.Name(), enabled)
}

func (r *reducer) applySocdMode(mode SocdMode, feedback bool) {
	s := r.s
	s.SocdMode = mode
	for _, axis := range []*SocdAxis{&s.SocdV, &s.SocdH} {
		for _, k := range axis.SetMode(mode) {
			r.emitKey(k.Code, k.Pressed)
		}
	}
	if feedback {
		s.triggerFeedback(FeedbackSocd, r.now, uint8(mode))
	}
	r.broadcast(BroadcastSocdModeChanged{Mode: mode, At: r.now})
}

func (r *reducer) setGameMode(on bool) {
	s := r.s
	s.GameMode = on
	prev := s.Layers.Highest()
	s.Layers = moveTo(0)
	r.layerChanged(prev)
	s.Alchemy.Reset()
	r.toggled(OpGameMode.Name(), on)
}

// applySettings runs once at startup with the persisted (or default) settings.
func (r *reducer) applySettings(ev SettingsLoaded) {
	s := r.s
	st := ev.Settings

	s.SentenceCase.Off()
	s.Winlock = false
	r.setNKRO(st.NKRO, false)
	r.applySocdMode(r.cfg.SocdMode, false)
	s.NightMode = st.NightMode
	s.NightHSV = st.NightHSV
	s.GameMode = st.GameMode
	s.Alchemy.Active = st.TypeAlchemy
	s.Alchemy.Reset()
	s.SettingsLoaded = true

	if !ev.Valid {
		r.emit(CmdPersist{Settings: st})
	}
}

// ============================================================================
// Tick
// ============================================================================

func (r *reducer) tick() {
	s := r.s
	s.expireFeedback(r.now)

	if s.Bootloader.Fire(r.now) {
		r.emit(CmdRebootBootloader{})
		r.broadcast(BroadcastDeferred{Action: OpBootloader.Name(), Pending: false, At: r.now})
	}
	if s.ClearConfig.Fire(r.now) {
		r.resetToDefaults()
		r.broadcast(BroadcastDeferred{Action: OpClearConfig.Name(), Pending: false, At: r.now})
	}

	r.emit(CmdSetLEDs{Frame: Render(s, &r.cfg.LEDs, 0, r.cfg.LEDs.Count, r.now)})
}

// resetToDefaults is the committed configuration erase.
func (r *reducer) resetToDefaults() {
	s := r.s
	d := r.cfg.Defaults

	s.SentenceCase.Off()
	r.toggled(OpSentenceCase.Name(), false)
	r.setWinlock(false)
	r.setNKRO(d.NKRO, false)
	r.applySocdMode(r.cfg.SocdMode, false)

	prev := s.Layers.Highest()
	s.Layers = moveTo(0)
	r.layerChanged(prev)

	s.NightMode = d.NightMode
	s.NightHSV = d.NightHSV
	s.GameMode = d.GameMode
	s.Alchemy.Active = d.TypeAlchemy
	s.Alchemy.Reset()
	s.AudioViz = false
	s.AudioBands = [audioBands]uint8{}

	r.emit(CmdPersist{Settings: d})
	r.broadcast(BroadcastSettingsReset{At: r.now})
}
