package main

import (
	"encoding/binary"
	"hash/crc32"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_EncodeDecode(t *testing.T) {
	s := Settings{NKRO: false, NightMode: true, TypeAlchemy: true, GameMode: true, NightHSV: HSV{H: 1, S: 2, V: 3}}

	b := s.Encode()
	require.Len(t, b, settingsBlobSize)

	got, ok := DecodeSettings(b, DefaultSettings())
	assert.True(t, ok)
	assert.Equal(t, s, got)
}

func TestDecodeSettings_Corrupt(t *testing.T) {
	good := DefaultSettings().Encode()
	defaults := Settings{NightHSV: HSV{H: 9}}

	cases := map[string]func([]byte) []byte{
		"short":       func(b []byte) []byte { return b[:8] },
		"bad magic":   func(b []byte) []byte { b[0] = 'X'; return b },
		"bad version": func(b []byte) []byte { b[2] = 99; return b },
		"bad crc":     func(b []byte) []byte { b[4] ^= 0xFF; return b },
		"empty":       func([]byte) []byte { return nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			b := append([]byte(nil), good...)
			got, ok := DecodeSettings(mutate(b), defaults)
			assert.False(t, ok)
			assert.Equal(t, defaults, got)
		})
	}
}

func TestDecodeSettings_UnknownFlags(t *testing.T) {
	b := DefaultSettings().Encode()
	b[3] |= 0x80
	// Re-sign so only the flag check can reject it.
	binary.BigEndian.PutUint32(b[8:], crc32.ChecksumIEEE(b[:8]))

	_, ok := DecodeSettings(b, DefaultSettings())
	assert.False(t, ok)
}

func TestDeferred(t *testing.T) {
	now := time.Unix(1000, 0)
	var d Deferred

	assert.False(t, d.Fire(now))

	d.Arm(now, 500*time.Millisecond)
	assert.False(t, d.Fire(now.Add(499*time.Millisecond)))

	// Re-arming pushes the deadline out; there is still one commit.
	d.Arm(now.Add(400*time.Millisecond), 500*time.Millisecond)
	assert.False(t, d.Fire(now.Add(600*time.Millisecond)))
	assert.True(t, d.Fire(now.Add(900*time.Millisecond)))
	assert.False(t, d.Fire(now.Add(2*time.Second)))

	d.Arm(now, time.Second)
	d.Cancel()
	assert.False(t, d.Fire(now.Add(time.Hour)))
}
