package main

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	evdev "github.com/holoplot/go-evdev"
)

// ============================================================================
// Keycodes
// ============================================================================
//
// A Keycode is what a physical key means on the active layer. It is a small
// comparable tagged union so keymap tables can be plain maps and every handler
// can switch exhaustively on Kind.
//
// ============================================================================

// KeycodeKind discriminates the Keycode union.
type KeycodeKind uint8

const (
	KindNone KeycodeKind = iota
	KindTransparent
	KindBasic     // Value is an evdev key code
	KindMomentary // Value is a layer index
	KindToLayer   // Value is a layer index
	KindCustom    // Value is a CustomOp
)

type Keycode struct {
	Kind  KeycodeKind
	Value uint16
}

var (
	KcNo   = Keycode{Kind: KindNone}
	KcTrns = Keycode{Kind: KindTransparent}
)

func Basic(code evdev.EvCode) Keycode { return Keycode{Kind: KindBasic, Value: uint16(code)} }
func MO(layer int) Keycode            { return Keycode{Kind: KindMomentary, Value: uint16(layer)} }
func TO(layer int) Keycode            { return Keycode{Kind: KindToLayer, Value: uint16(layer)} }
func Custom(op CustomOp) Keycode      { return Keycode{Kind: KindCustom, Value: uint16(op)} }

// Code returns the evdev code of a basic keycode.
func (k Keycode) Code() evdev.EvCode { return evdev.EvCode(k.Value) }

// Op returns the operation of a custom keycode.
func (k Keycode) Op() CustomOp { return CustomOp(k.Value) }

func (k Keycode) String() string {
	switch k.Kind {
	case KindNone:
		return "XXXXXXX"
	case KindTransparent:
		return "_______"
	case KindBasic:
		return keyName(k.Code())
	case KindMomentary:
		return fmt.Sprintf("MO(%d)", k.Value)
	case KindToLayer:
		return fmt.Sprintf("TO(%d)", k.Value)
	case KindCustom:
		return k.Op().String()
	default:
		return fmt.Sprintf("Keycode(%d,%d)", k.Kind, k.Value)
	}
}

// MarshalText lets keycodes appear as names in YAML and JSON.
func (k Keycode) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Keycode) UnmarshalText(b []byte) error {
	kc, err := ParseKeycode(string(b))
	if err != nil {
		return err
	}
	*k = kc
	return nil
}

// ============================================================================
// Custom operations
// ============================================================================

// CustomOp is a keymap-level operation bound to a custom keycode. The same
// operations can be invoked over IPC.
type CustomOp uint16

const (
	OpNone CustomOp = iota
	OpSentenceCase
	OpWinlock
	OpSocdMode
	OpNKRO
	OpBootloader
	OpClearConfig
	OpAlchemy
	OpNightMode
	OpGameMode
	OpAudioViz
)

type customOpInfo struct {
	keycode string // name used in keymaps
	ipc     string // name used over IPC and in broadcasts
}

var customOps = map[CustomOp]customOpInfo{
	OpSentenceCase: {"SENT_CASE_TG", "sentence_case"},
	OpWinlock:      {"WINLOCK_TG", "winlock"},
	OpSocdMode:     {"SOCD_MODE_TOG", "socd_mode"},
	OpNKRO:         {"NKRO_MODE_TOG", "nkro"},
	OpBootloader:   {"DFU_MODE_KEY", "bootloader"},
	OpClearConfig:  {"CLEAR_EEPROM_KEY", "clear_config"},
	OpAlchemy:      {"ALCHEMY_TG", "type_alchemy"},
	OpNightMode:    {"NIGHT_MODE_TG", "night_mode"},
	OpGameMode:     {"GAME_MODE_TG", "game_mode"},
	OpAudioViz:     {"AUDIO_VIZ_TG", "audio_viz"},
}

func (o CustomOp) String() string {
	if info, ok := customOps[o]; ok {
		return info.keycode
	}
	return fmt.Sprintf("CustomOp(%d)", uint16(o))
}

// Name is the lower-case operation name used on the wire.
func (o CustomOp) Name() string {
	if info, ok := customOps[o]; ok {
		return info.ipc
	}
	return ""
}

// ParseCustomOp accepts either the keycode name or the wire name.
func ParseCustomOp(s string) (CustomOp, bool) {
	for op, info := range customOps {
		if s == info.keycode || s == info.ipc {
			return op, true
		}
	}
	return OpNone, false
}

// ============================================================================
// Parsing
// ============================================================================

// qmkAliases maps the QMK short names used in keymap tables to evdev names.
// KC_<X> names without an entry fall back to KEY_<X>.
var qmkAliases = map[string]string{
	"KC_ESC":  "KEY_ESC",
	"KC_GRV":  "KEY_GRAVE",
	"KC_MINS": "KEY_MINUS",
	"KC_EQL":  "KEY_EQUAL",
	"KC_BSPC": "KEY_BACKSPACE",
	"KC_DEL":  "KEY_DELETE",
	"KC_LBRC": "KEY_LEFTBRACE",
	"KC_RBRC": "KEY_RIGHTBRACE",
	"KC_BSLS": "KEY_BACKSLASH",
	"KC_PGUP": "KEY_PAGEUP",
	"KC_PGDN": "KEY_PAGEDOWN",
	"KC_CAPS": "KEY_CAPSLOCK",
	"KC_SCLN": "KEY_SEMICOLON",
	"KC_QUOT": "KEY_APOSTROPHE",
	"KC_ENT":  "KEY_ENTER",
	"KC_LSFT": "KEY_LEFTSHIFT",
	"KC_RSFT": "KEY_RIGHTSHIFT",
	"KC_COMM": "KEY_COMMA",
	"KC_SLSH": "KEY_SLASH",
	"KC_LCTL": "KEY_LEFTCTRL",
	"KC_RCTL": "KEY_RIGHTCTRL",
	"KC_LCMD": "KEY_LEFTMETA",
	"KC_LGUI": "KEY_LEFTMETA",
	"KC_RCMD": "KEY_RIGHTMETA",
	"KC_RGUI": "KEY_RIGHTMETA",
	"KC_LALT": "KEY_LEFTALT",
	"KC_RALT": "KEY_RIGHTALT",
	"KC_SPC":  "KEY_SPACE",
	"KC_RGHT": "KEY_RIGHT",
	"KC_VOLU": "KEY_VOLUMEUP",
	"KC_VOLD": "KEY_VOLUMEDOWN",
	"KC_PSCR": "KEY_SYSRQ",
}

// ParseKeycode parses keymap notation: evdev names (KEY_A), QMK names (KC_A,
// KC_BSPC), MO(n), TO(n), transparency/none markers and custom keycode names.
func ParseKeycode(s string) (Keycode, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "_______", "KC_TRNS", "TRNS":
		return KcTrns, nil
	case "XXXXXXX", "KC_NO", "NO":
		return KcNo, nil
	}

	if layer, ok, err := parseLayerFn(s, "MO"); ok {
		if err != nil {
			return Keycode{}, err
		}
		return MO(layer), nil
	}
	if layer, ok, err := parseLayerFn(s, "TO"); ok {
		if err != nil {
			return Keycode{}, err
		}
		return TO(layer), nil
	}

	if op, ok := ParseCustomOp(s); ok {
		return Custom(op), nil
	}

	name := s
	if alias, ok := qmkAliases[s]; ok {
		name = alias
	} else if strings.HasPrefix(s, "KC_") {
		name = "KEY_" + strings.TrimPrefix(s, "KC_")
	}
	code, ok := evdev.KEYFromString[name]
	if !ok {
		return Keycode{}, fmt.Errorf("unknown keycode %q", s)
	}
	return Basic(code), nil
}

func parseLayerFn(s, fn string) (layer int, matched bool, err error) {
	if !strings.HasPrefix(s, fn+"(") || !strings.HasSuffix(s, ")") {
		return 0, false, nil
	}
	inner := s[len(fn)+1 : len(s)-1]
	n, err := strconv.Atoi(strings.TrimSpace(inner))
	if err != nil {
		return 0, true, fmt.Errorf("parse %s layer %q: %w", fn, inner, err)
	}
	if n < 0 || n >= numLayers {
		return 0, true, fmt.Errorf("%s layer %d out of range [0,%d)", fn, n, numLayers)
	}
	return n, true, nil
}

// ParseKeyCode resolves a key name (KEY_A or KC_A) to an evdev code.
func ParseKeyCode(s string) (evdev.EvCode, error) {
	kc, err := ParseKeycode(s)
	if err != nil {
		return 0, err
	}
	if kc.Kind != KindBasic {
		return 0, fmt.Errorf("%q is not a basic key", s)
	}
	return kc.Code(), nil
}

var (
	keyNamesOnce sync.Once
	keyNames     map[evdev.EvCode]string
)

// keyName returns a stable evdev name for code. Several names share a code
// (KEY_MUTE and KEY_MIN_INTERESTING); range markers lose to real keys, then
// the shortest name wins.
func keyName(code evdev.EvCode) string {
	keyNamesOnce.Do(func() {
		keyNames = make(map[evdev.EvCode]string, len(evdev.KEYFromString))
		for name, c := range evdev.KEYFromString {
			if cur, ok := keyNames[c]; ok && !betterKeyName(name, cur) {
				continue
			}
			keyNames[c] = name
		}
	})
	if name, ok := keyNames[code]; ok {
		return name
	}
	return fmt.Sprintf("KEY_%d", uint16(code))
}

func betterKeyName(candidate, current string) bool {
	cm, km := isRangeMarker(candidate), isRangeMarker(current)
	if cm != km {
		return km
	}
	if len(candidate) != len(current) {
		return len(candidate) < len(current)
	}
	return candidate < current
}

func isRangeMarker(name string) bool {
	return strings.Contains(name, "_MIN_") || strings.HasSuffix(name, "_MAX") || strings.HasSuffix(name, "_CNT")
}

// ============================================================================
// Characters
// ============================================================================

// keyChar maps an evdev keycode to its unshifted and shifted characters on a
// US layout. Only keys that produce printable characters are listed.
type keyChar struct {
	Normal  rune
	Shifted rune
}

var keyChars = map[evdev.EvCode]keyChar{
	evdev.KEY_A: {'a', 'A'}, evdev.KEY_B: {'b', 'B'},
	evdev.KEY_C: {'c', 'C'}, evdev.KEY_D: {'d', 'D'},
	evdev.KEY_E: {'e', 'E'}, evdev.KEY_F: {'f', 'F'},
	evdev.KEY_G: {'g', 'G'}, evdev.KEY_H: {'h', 'H'},
	evdev.KEY_I: {'i', 'I'}, evdev.KEY_J: {'j', 'J'},
	evdev.KEY_K: {'k', 'K'}, evdev.KEY_L: {'l', 'L'},
	evdev.KEY_M: {'m', 'M'}, evdev.KEY_N: {'n', 'N'},
	evdev.KEY_O: {'o', 'O'}, evdev.KEY_P: {'p', 'P'},
	evdev.KEY_Q: {'q', 'Q'}, evdev.KEY_R: {'r', 'R'},
	evdev.KEY_S: {'s', 'S'}, evdev.KEY_T: {'t', 'T'},
	evdev.KEY_U: {'u', 'U'}, evdev.KEY_V: {'v', 'V'},
	evdev.KEY_W: {'w', 'W'}, evdev.KEY_X: {'x', 'X'},
	evdev.KEY_Y: {'y', 'Y'}, evdev.KEY_Z: {'z', 'Z'},

	evdev.KEY_1: {'1', '!'}, evdev.KEY_2: {'2', '@'},
	evdev.KEY_3: {'3', '#'}, evdev.KEY_4: {'4', '$'},
	evdev.KEY_5: {'5', '%'}, evdev.KEY_6: {'6', '^'},
	evdev.KEY_7: {'7', '&'}, evdev.KEY_8: {'8', '*'},
	evdev.KEY_9: {'9', '('}, evdev.KEY_0: {'0', ')'},

	evdev.KEY_MINUS:      {'-', '_'},
	evdev.KEY_EQUAL:      {'=', '+'},
	evdev.KEY_LEFTBRACE:  {'[', '{'},
	evdev.KEY_RIGHTBRACE: {']', '}'},
	evdev.KEY_SEMICOLON:  {';', ':'},
	evdev.KEY_APOSTROPHE: {'\'', '"'},
	evdev.KEY_GRAVE:      {'`', '~'},
	evdev.KEY_BACKSLASH:  {'\\', '|'},
	evdev.KEY_COMMA:      {',', '<'},
	evdev.KEY_DOT:        {'.', '>'},
	evdev.KEY_SLASH:      {'/', '?'},
	evdev.KEY_SPACE:      {' ', ' '},
	evdev.KEY_TAB:        {'\t', '\t'},
	evdev.KEY_ENTER:      {'\n', '\n'},
}

// charFor returns the character code produces with the given shift state.
func charFor(code evdev.EvCode, shifted bool) (rune, bool) {
	kc, ok := keyChars[code]
	if !ok {
		return 0, false
	}
	if shifted {
		return kc.Shifted, true
	}
	return kc.Normal, true
}

func isShiftKey(code evdev.EvCode) bool {
	return code == evdev.KEY_LEFTSHIFT || code == evdev.KEY_RIGHTSHIFT
}

func isGUIKey(code evdev.EvCode) bool {
	return code == evdev.KEY_LEFTMETA || code == evdev.KEY_RIGHTMETA
}

func isModifierKey(code evdev.EvCode) bool {
	switch code {
	case evdev.KEY_LEFTSHIFT, evdev.KEY_RIGHTSHIFT,
		evdev.KEY_LEFTCTRL, evdev.KEY_RIGHTCTRL,
		evdev.KEY_LEFTALT, evdev.KEY_RIGHTALT,
		evdev.KEY_LEFTMETA, evdev.KEY_RIGHTMETA:
		return true
	}
	return false
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
