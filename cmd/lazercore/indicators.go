package main

import (
	"fmt"
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// ============================================================================
// Indicator rendering
// ============================================================================
//
// Render projects DaemonState onto LED colours. It reads state and unexpired
// feedback only; expiry itself happens on Tick. LEDs the indicators do not
// care about are left out of the frame so the controller keeps its own effect
// on them.
//
// ============================================================================

const audioBands = 6

// audioColumnGroups maps each visualiser band to an inclusive column range.
var audioColumnGroups = [audioBands][2]int{
	{0, 2}, {3, 4}, {5, 7}, {8, 9}, {10, 11}, {12, 14},
}

type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

func (c RGB) scale(f float64) RGB {
	return RGB{R: uint8(float64(c.R) * f), G: uint8(float64(c.G) * f), B: uint8(float64(c.B) * f)}
}

// LEDColor is one entry of a rendered frame.
type LEDColor struct {
	Index int `json:"i"`
	RGB
}

// LEDLayout names the LED indices the indicators use.
type LEDLayout struct {
	Count int `yaml:"count"`

	Esc    int `yaml:"esc"`
	Caps   int `yaml:"caps"`
	Win    int `yaml:"win"`
	Enter  int `yaml:"enter"`
	RShift int `yaml:"rshift"`
	W      int `yaml:"w"`
	A      int `yaml:"a"`
	S      int `yaml:"s"`
	D      int `yaml:"d"`
	E      int `yaml:"e"`
	N      int `yaml:"n"`

	// FKeys lists F1 through F12.
	FKeys []int `yaml:"f_keys"`

	// ClearFeedback is lit while a configuration erase is pending.
	ClearFeedback []int `yaml:"clear_feedback"`

	// AudioMatrix maps [row][col] of the key matrix to an LED index (-1 = none).
	AudioMatrix [][]int `yaml:"audio_matrix"`

	NightBrightness float64 `yaml:"night_brightness"`
}

func DefaultLEDLayout() LEDLayout {
	return LEDLayout{
		Count:           defaultLEDCount,
		Esc:             21,
		Caps:            50,
		Win:             77,
		Enter:           62,
		RShift:          64,
		W:               45,
		A:               51,
		S:               52,
		D:               53,
		E:               46,
		N:               69,
		FKeys:           []int{20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 9},
		ClearFeedback:   []int{25, 26, 45, 54, 72, 73, 52, 47},
		AudioMatrix:     defaultAudioMatrix(),
		NightBrightness: defaultNightBrightness,
	}
}

// defaultAudioMatrix approximates the RK75 wiring: the F-row runs right to
// left from Esc (21) and the rows below snake back and forth from 22.
func defaultAudioMatrix() [][]int {
	m := make([][]int, matrixRows)
	for r := range m {
		m[r] = make([]int, matrixCols)
		for c := range m[r] {
			switch {
			case r == 0:
				m[r][c] = 21 - c
			case r%2 == 1:
				m[r][c] = 22 + (r-1)*matrixCols + c
			default:
				m[r][c] = 22 + r*matrixCols - 1 - c
			}
			if m[r][c] >= defaultLEDCount {
				m[r][c] = -1
			}
		}
	}
	return m
}

func (l *LEDLayout) Validate() error {
	if l.Count <= 0 || l.Count > 255 {
		return fmt.Errorf("leds.count must be between 1 and 255")
	}
	if len(l.FKeys) != 12 {
		return fmt.Errorf("leds.f_keys must list exactly 12 indices, got %d", len(l.FKeys))
	}
	if len(l.AudioMatrix) > matrixRows {
		return fmt.Errorf("leds.audio_matrix has %d rows, max %d", len(l.AudioMatrix), matrixRows)
	}
	for r, row := range l.AudioMatrix {
		if len(row) > matrixCols {
			return fmt.Errorf("leds.audio_matrix[%d] has %d columns, max %d", r, len(row), matrixCols)
		}
	}
	if l.NightBrightness < 0 || l.NightBrightness > 1 {
		return fmt.Errorf("leds.night_brightness must be within [0,1]")
	}
	return nil
}

func (l *LEDLayout) fGroup(start int) []int { return l.FKeys[start : start+4] }

// frame is the LED range being rendered. Writes outside [min,max) are dropped.
type frame struct {
	min, max int
	rgb      []RGB
	set      []bool
}

func newFrame(ledMin, ledMax int) *frame {
	if ledMin < 0 {
		ledMin = 0
	}
	if ledMax < ledMin {
		ledMax = ledMin
	}
	n := ledMax - ledMin
	return &frame{min: ledMin, max: ledMax, rgb: make([]RGB, n), set: make([]bool, n)}
}

func (f *frame) setColor(i int, c RGB) {
	if i < f.min || i >= f.max {
		return
	}
	f.rgb[i-f.min] = c
	f.set[i-f.min] = true
}

func (f *frame) setList(idx []int, c RGB) {
	for _, i := range idx {
		f.setColor(i, c)
	}
}

func (f *frame) fill(c RGB) {
	for i := f.min; i < f.max; i++ {
		f.setColor(i, c)
	}
}

func (f *frame) colors() []LEDColor {
	var out []LEDColor
	for i, ok := range f.set {
		if ok {
			out = append(out, LEDColor{Index: f.min + i, RGB: f.rgb[i]})
		}
	}
	return out
}

// Render computes the indicator colours for LEDs in [ledMin, ledMax).
func Render(s *DaemonState, l *LEDLayout, ledMin, ledMax int, now time.Time) []LEDColor {
	if ledMax > l.Count {
		ledMax = l.Count
	}
	f := newFrame(ledMin, ledMax)

	// A pending bootloader jump owns the whole board.
	if _, ok := s.activeFeedback(FeedbackDFU, now); ok {
		f.fill(colorRed)
		return f.colors()
	}

	if s.GameMode {
		f.setList([]int{l.W, l.A, l.S, l.D}, colorRed)
	}

	layer := s.Layers.Highest()
	if layer == fnLayerA || layer == fnLayerB {
		f.fill(colorOff)
		f.setColor(l.Enter, colorBlue)
		f.setColor(l.RShift, colorBlue)
		f.setColor(l.Caps, onOff(s.SentenceCase.Enabled))
		f.setColor(l.Win, onOff(s.Winlock))
	} else {
		switch layer {
		case 0:
			if s.SentenceCase.Enabled {
				f.setColor(l.Caps, colorGreen)
			}
			if s.Winlock {
				f.setColor(l.Win, colorRed)
			}
		case 2:
			f.setColor(l.S, colorPurple)
			f.setColor(l.N, colorOrange)
		case 3:
			f.setColor(l.Esc, colorRed)
			f.setColor(l.E, colorRed)
		}
	}

	if _, ok := s.activeFeedback(FeedbackClear, now); ok {
		f.setList(l.ClearFeedback, colorRed)
	}

	if fb, ok := s.activeFeedback(FeedbackNKRO, now); ok {
		if fb.Payload != 0 {
			f.setList(l.fGroup(4), colorOrange)
		} else {
			f.setList(l.FKeys, colorOrange)
		}
	}

	if fb, ok := s.activeFeedback(FeedbackSocd, now); ok {
		renderSocdFeedback(f, l, fb, now)
	}

	if s.AudioViz {
		renderAudioViz(f, l, s.AudioBands)
	}

	if s.NightMode {
		renderNightMode(f, s.NightHSV, l.NightBrightness)
	}

	return f.colors()
}

func onOff(on bool) RGB {
	if on {
		return colorGreen
	}
	return colorRed
}

func renderSocdFeedback(f *frame, l *LEDLayout, fb FeedbackEvent, now time.Time) {
	elapsed := fb.Elapsed(now)
	switch SocdMode(fb.Payload) {
	case SocdLastWins:
		if elapsed <= socdLastPhase1 {
			f.setList(l.fGroup(0), colorPurple)
		} else {
			f.setList(l.fGroup(8), colorPurple)
		}
	case SocdNeutral:
		f.setList(l.fGroup(4), colorPurple)
	case SocdFirstWins:
		f.setList(l.fGroup(0), colorPurple)
		if elapsed >= socdFirstSplitAt {
			f.setList(l.fGroup(8), colorPurple)
		}
	}
}

func renderAudioViz(f *frame, l *LEDLayout, bands [audioBands]uint8) {
	for band, cols := range audioColumnGroups {
		level := int(bands[band])
		for col := cols[0]; col <= cols[1]; col++ {
			for row := 0; row < len(l.AudioMatrix); row++ {
				if col >= len(l.AudioMatrix[row]) || l.AudioMatrix[row][col] < 0 {
					continue
				}
				c := colorOff
				if row < level {
					c = colorRed
				}
				f.setColor(l.AudioMatrix[row][col], c)
			}
		}
	}
}

// renderNightMode dims whatever the indicators set and paints the rest of the
// range with the stored night colour.
func renderNightMode(f *frame, hsv HSV, brightness float64) {
	base := hsvToRGB(hsv)
	for i := range f.set {
		if f.set[i] {
			f.rgb[i] = f.rgb[i].scale(brightness)
			continue
		}
		f.rgb[i] = base
		f.set[i] = true
	}
}

// hsvToRGB converts the keyboard's 8-bit HSV (hue 0-255 covers the full wheel).
func hsvToRGB(c HSV) RGB {
	h := float64(c.H) * 360.0 / 256.0
	r, g, b := colorful.Hsv(h, float64(c.S)/255.0, float64(c.V)/255.0).RGB255()
	return RGB{R: r, G: g, B: b}
}
