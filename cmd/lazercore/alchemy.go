package main

import (
	"errors"
	"fmt"
)

// ============================================================================
// Type Alchemy - word-to-symbol expansion
// ============================================================================
//
// While active, every run of typed ASCII letters is collected in a small
// buffer. When the buffer exactly equals a mapped word, the word already on
// screen is erased and the replacement is typed instead.
//
// Matching is first-match in table order, not longest-match.
//
// ============================================================================

var (
	ErrMappingFull   = errors.New("type alchemy: mapping table full")
	ErrMappingExists = errors.New("type alchemy: word already mapped")
	ErrInvalidWord   = errors.New("type alchemy: word must be ASCII letters only")
)

// AlchemyMapping is one word/replacement pair. Words are case-sensitive.
type AlchemyMapping struct {
	Word        string `yaml:"word" json:"word"`
	Replacement string `yaml:"replacement" json:"replacement"`
}

// AlchemyOutput is what a successful match asks the output device to type.
type AlchemyOutput struct {
	Backspaces int
	Text       string
}

type Alchemy struct {
	Active bool

	mappings []AlchemyMapping
	buf      [alchemyBufferSize]byte
	n        int
}

// NewAlchemy builds an inactive expander loaded with mappings.
func NewAlchemy(mappings []AlchemyMapping) (*Alchemy, error) {
	a := &Alchemy{}
	for _, m := range mappings {
		if err := a.Add(m.Word, m.Replacement); err != nil {
			return nil, fmt.Errorf("add %q: %w", m.Word, err)
		}
	}
	return a, nil
}

// Add appends a mapping at the end of the table.
func (a *Alchemy) Add(word, replacement string) error {
	if err := validateAlchemyWord(word); err != nil {
		return err
	}
	for _, m := range a.mappings {
		if m.Word == word {
			return ErrMappingExists
		}
	}
	if len(a.mappings) >= maxAlchemyMappings {
		return ErrMappingFull
	}
	a.mappings = append(a.mappings, AlchemyMapping{Word: word, Replacement: replacement})
	return nil
}

func validateAlchemyWord(word string) error {
	if word == "" || len(word) > alchemyBufferSize {
		return ErrInvalidWord
	}
	for _, r := range word {
		if !isASCIILetter(r) {
			return ErrInvalidWord
		}
	}
	return nil
}

// Feed processes one typed character. It returns false when the keypress must
// be suppressed because it completed a word; out then describes the rewrite.
func (a *Alchemy) Feed(ch rune, pressed bool) (passThrough bool, out AlchemyOutput) {
	if !a.Active || !pressed {
		return true, AlchemyOutput{}
	}
	if !isASCIILetter(ch) {
		a.Reset()
		return true, AlchemyOutput{}
	}

	if a.n < len(a.buf) {
		a.buf[a.n] = byte(ch)
		a.n++
	}

	typed := string(a.buf[:a.n])
	for _, m := range a.mappings {
		if m.Word != typed {
			continue
		}
		a.Reset()
		// The triggering letter is swallowed, so only the letters already
		// echoed need erasing.
		return false, AlchemyOutput{Backspaces: len(m.Word) - 1, Text: m.Replacement}
	}
	return true, AlchemyOutput{}
}

func (a *Alchemy) Reset() { a.n = 0 }

// Buffer returns the current run of buffered letters.
func (a *Alchemy) Buffer() string { return string(a.buf[:a.n]) }

// Mappings returns a copy of the table in match order.
func (a *Alchemy) Mappings() []AlchemyMapping {
	out := make([]AlchemyMapping, len(a.mappings))
	copy(out, a.mappings)
	return out
}

// DefaultAlchemyMappings is the built-in table. Multi-word names are written
// without separators since only letters can be buffered.
func DefaultAlchemyMappings() []AlchemyMapping {
	return []AlchemyMapping{
		{"aum", "ॐ"},
		{"inr", "₹"},
		{"pi", "π"},
		{"degree", "°"},
		{"micro", "µ"},
		{"integral", "∫"},
		{"infinity", "∞"},
		{"sigma", "Σ"},
		{"delta", "Δ"},
		{"theta", "θ"},
		{"alpha", "α"},
		{"beta", "β"},
		{"gamma", "γ"},
		{"lambda", "λ"},
		{"omega", "Ω"},
		{"sqrt", "√"},
		{"notequal", "≠"},
		{"lessequal", "≤"},
		{"greaterequal", "≥"},
		{"approx", "≈"},
		{"arrowright", "→"},
		{"arrowleft", "←"},
		{"arrowup", "↑"},
		{"arrowdown", "↓"},
		{"percent", "%"},
		{"times", "×"},
		{"divide", "÷"},
		{"ellipsis", "…"},
		{"caret", "^"},
		{"logicaland", "∧"},
		{"logicalor", "∨"},
		{"perpendicular", "⊥"},
		{"parallel", "∥"},
		{"smile", "😊"},
		{"heart", "❤️"},
		{"thumbsup", "👍"},
		{"fire", "🔥"},
	}
}
