package main

import (
	"encoding/binary"
	"hash/crc32"
)

// ============================================================================
// Persisted settings blob
// ============================================================================
//
// Layout (12 bytes):
//
//	0-1  magic 'L' 'Z'
//	2    version
//	3    flags (bit0 nkro, bit1 night mode, bit2 type alchemy, bit3 game mode)
//	4-6  night mode colour H, S, V
//	7    reserved
//	8-11 CRC-32 (IEEE, big endian) over bytes 0-7
//
// ============================================================================

const (
	settingsBlobSize = 12
	settingsVersion  = 1

	settingsFlagNKRO        = 1 << 0
	settingsFlagNightMode   = 1 << 1
	settingsFlagTypeAlchemy = 1 << 2
	settingsFlagGameMode    = 1 << 3
)

var settingsMagic = [2]byte{'L', 'Z'}

// HSV is an 8-bit hue/saturation/value triple as stored by the keyboard.
type HSV struct {
	H uint8 `yaml:"h" json:"h"`
	S uint8 `yaml:"s" json:"s"`
	V uint8 `yaml:"v" json:"v"`
}

// Settings is everything that survives a restart.
type Settings struct {
	NKRO        bool `yaml:"nkro" json:"nkro"`
	NightMode   bool `yaml:"night_mode" json:"night_mode"`
	TypeAlchemy bool `yaml:"type_alchemy" json:"type_alchemy"`
	GameMode    bool `yaml:"game_mode" json:"game_mode"`
	NightHSV    HSV  `yaml:"night_hsv" json:"night_hsv"`
}

// DefaultSettings are the compiled-in defaults used on first boot, on an
// invalid blob and after a configuration erase.
func DefaultSettings() Settings {
	return Settings{
		NKRO:     true,
		NightHSV: HSV{H: 21, S: 255, V: 96}, // warm amber
	}
}

// Encode serialises s into the fixed-size blob.
func (s Settings) Encode() []byte {
	b := make([]byte, settingsBlobSize)
	b[0], b[1] = settingsMagic[0], settingsMagic[1]
	b[2] = settingsVersion

	var flags byte
	if s.NKRO {
		flags |= settingsFlagNKRO
	}
	if s.NightMode {
		flags |= settingsFlagNightMode
	}
	if s.TypeAlchemy {
		flags |= settingsFlagTypeAlchemy
	}
	if s.GameMode {
		flags |= settingsFlagGameMode
	}
	b[3] = flags
	b[4], b[5], b[6] = s.NightHSV.H, s.NightHSV.S, s.NightHSV.V

	binary.BigEndian.PutUint32(b[8:], crc32.ChecksumIEEE(b[:8]))
	return b
}

// DecodeSettings parses a blob. Anything malformed yields the defaults and
// ok=false; callers never see an error.
func DecodeSettings(b []byte, defaults Settings) (Settings, bool) {
	if len(b) != settingsBlobSize {
		return defaults, false
	}
	if b[0] != settingsMagic[0] || b[1] != settingsMagic[1] || b[2] != settingsVersion {
		return defaults, false
	}
	if binary.BigEndian.Uint32(b[8:]) != crc32.ChecksumIEEE(b[:8]) {
		return defaults, false
	}

	flags := b[3]
	const known = settingsFlagNKRO | settingsFlagNightMode | settingsFlagTypeAlchemy | settingsFlagGameMode
	if flags&^known != 0 {
		return defaults, false
	}
	return Settings{
		NKRO:        flags&settingsFlagNKRO != 0,
		NightMode:   flags&settingsFlagNightMode != 0,
		TypeAlchemy: flags&settingsFlagTypeAlchemy != 0,
		GameMode:    flags&settingsFlagGameMode != 0,
		NightHSV:    HSV{H: b[4], S: b[5], V: b[6]},
	}, true
}
