package main

// sentenceState tracks where in a sentence the typist is.
type sentenceState uint8

const (
	sentenceInit   sentenceState = iota // nothing useful typed yet
	sentenceWord                        // inside a word
	sentenceEnding                      // just typed . ! or ?
	sentencePrimed                      // ending followed by space; next letter is capitalised
)

// SentenceCase capitalises the first letter after a sentence ending.
type SentenceCase struct {
	Enabled bool
	state   sentenceState
}

func (s *SentenceCase) Toggle() {
	s.Enabled = !s.Enabled
	s.state = sentenceInit
}

func (s *SentenceCase) Off() {
	s.Enabled = false
	s.state = sentenceInit
}

// Primed reports whether the next letter will be capitalised.
func (s *SentenceCase) Primed() bool { return s.Enabled && s.state == sentencePrimed }

// Feed advances the state machine with one typed character. When the character
// is a letter that opens a sentence and shift is not already held, it returns
// shift=true: the caller replaces the keypress with a shifted one.
func (s *SentenceCase) Feed(ch rune, known, shiftHeld bool) (shift bool) {
	if !s.Enabled {
		return false
	}
	if !known {
		s.state = sentenceInit
		return false
	}

	switch {
	case isASCIILetter(ch):
		shift = s.state == sentencePrimed && !shiftHeld
		s.state = sentenceWord
	case ch == '.' || ch == '!' || ch == '?':
		if s.state == sentenceWord || s.state == sentenceEnding {
			s.state = sentenceEnding
		} else {
			s.state = sentenceInit
		}
	case ch == ' ':
		switch s.state {
		case sentenceEnding, sentencePrimed:
			s.state = sentencePrimed
		default:
			s.state = sentenceInit
		}
	case ch == '\n':
		if s.state == sentenceEnding || s.state == sentencePrimed {
			s.state = sentencePrimed
		} else {
			s.state = sentenceInit
		}
	case ch == '"' || ch == '\'' || ch == ')':
		// Closing quotes and brackets keep a pending ending alive.
	default:
		s.state = sentenceInit
	}
	return shift
}
