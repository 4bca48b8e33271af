package main

import (
	"fmt"

	evdev "github.com/holoplot/go-evdev"
)

// Layer maps physical keys to keycodes. On layer 0 a missing entry means the
// key is itself; on higher layers a missing entry is transparent.
type Layer map[evdev.EvCode]Keycode

// EncoderBinding is the keycode pair for one layer: counter-clockwise, clockwise.
type EncoderBinding struct {
	CCW Keycode `yaml:"ccw"`
	CW  Keycode `yaml:"cw"`
}

// Keymap is the full layer stack plus the rotary encoder map.
type Keymap struct {
	Layers  [numLayers]Layer
	Encoder [numLayers]EncoderBinding
}

// LayerState is a bitmask of active layers. Layer 0 is the default layer and is
// always consulted last.
type LayerState uint32

func (l LayerState) IsOn(layer int) bool {
	return layer == 0 || l&(1<<uint(layer)) != 0
}

func (l LayerState) On(layer int) LayerState  { return l | 1<<uint(layer) }
func (l LayerState) Off(layer int) LayerState { return l &^ (1 << uint(layer)) }

// Highest returns the highest active layer.
func (l LayerState) Highest() int {
	for i := numLayers - 1; i > 0; i-- {
		if l&(1<<uint(i)) != 0 {
			return i
		}
	}
	return 0
}

// moveTo clears every layer and activates only layer.
func moveTo(layer int) LayerState {
	if layer <= 0 {
		return 0
	}
	return LayerState(1) << uint(layer)
}

// Lookup resolves code against the active layers, highest first, falling
// through transparent entries.
func (m *Keymap) Lookup(layers LayerState, code evdev.EvCode) Keycode {
	for i := layers.Highest(); i >= 0; i-- {
		if !layers.IsOn(i) {
			continue
		}
		kc, ok := m.Layers[i][code]
		if !ok || kc.Kind == KindTransparent {
			continue
		}
		return kc
	}
	return Basic(code)
}

// EncoderLookup resolves an encoder detent the same way Lookup resolves keys.
func (m *Keymap) EncoderLookup(layers LayerState, clockwise bool) Keycode {
	for i := layers.Highest(); i >= 0; i-- {
		if !layers.IsOn(i) {
			continue
		}
		b := m.Encoder[i]
		kc := b.CCW
		if clockwise {
			kc = b.CW
		}
		if kc.Kind == KindTransparent || (kc == Keycode{}) {
			continue
		}
		return kc
	}
	return KcNo
}

// DefaultKeymap mirrors the RK75 layout: three base layers cycled by TO(n) on
// the print-screen position, a momentary Fn layer, and two control layers
// reachable from Fn.
func DefaultKeymap() Keymap {
	base := func(next int) Layer {
		return Layer{
			evdev.KEY_SYSRQ:     TO(next),
			evdev.KEY_RIGHTCTRL: MO(3),
		}
	}

	var m Keymap
	m.Layers[0] = base(1)
	m.Layers[1] = base(2)
	m.Layers[2] = base(0)

	m.Layers[3] = Layer{
		evdev.KEY_CAPSLOCK:   Custom(OpSentenceCase),
		evdev.KEY_ENTER:      MO(5),
		evdev.KEY_RIGHTSHIFT: MO(4),
		evdev.KEY_LEFTMETA:   Custom(OpWinlock),
	}
	m.Layers[4] = Layer{
		evdev.KEY_S: Custom(OpSocdMode),
		evdev.KEY_N: Custom(OpNKRO),
		evdev.KEY_T: Custom(OpAlchemy),
		evdev.KEY_M: Custom(OpNightMode),
		evdev.KEY_G: Custom(OpGameMode),
		evdev.KEY_V: Custom(OpAudioViz),
	}
	m.Layers[5] = Layer{
		evdev.KEY_ESC: Custom(OpBootloader),
		evdev.KEY_E:   Custom(OpClearConfig),
	}

	volume := EncoderBinding{CCW: Basic(evdev.KEY_VOLUMEDOWN), CW: Basic(evdev.KEY_VOLUMEUP)}
	trns := EncoderBinding{CCW: KcTrns, CW: KcTrns}
	m.Encoder = [numLayers]EncoderBinding{volume, volume, volume, trns, trns, trns}
	return m
}

// KeymapOverrides is the YAML form of keymap customisation. Each listed layer
// entry replaces (or adds) a single key binding on top of DefaultKeymap.
type KeymapOverrides struct {
	Layers  map[int]map[string]Keycode `yaml:"layers,omitempty"`
	Encoder map[int]EncoderBinding     `yaml:"encoder,omitempty"`
}

// Build applies the overrides to the default keymap.
func (o KeymapOverrides) Build() (Keymap, error) {
	m := DefaultKeymap()
	for layer, binds := range o.Layers {
		if layer < 0 || layer >= numLayers {
			return Keymap{}, fmt.Errorf("keymap.layers: layer %d out of range [0,%d)", layer, numLayers)
		}
		if m.Layers[layer] == nil {
			m.Layers[layer] = Layer{}
		}
		for name, kc := range binds {
			code, err := ParseKeyCode(name)
			if err != nil {
				return Keymap{}, fmt.Errorf("keymap.layers[%d]: %w", layer, err)
			}
			m.Layers[layer][code] = kc
		}
	}
	for layer, b := range o.Encoder {
		if layer < 0 || layer >= numLayers {
			return Keymap{}, fmt.Errorf("keymap.encoder: layer %d out of range [0,%d)", layer, numLayers)
		}
		m.Encoder[layer] = b
	}
	return m, nil
}
