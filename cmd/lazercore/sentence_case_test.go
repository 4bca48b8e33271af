package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// typeSentence feeds s and returns the indices of characters that were shifted.
func typeSentence(sc *SentenceCase, s string) []int {
	var shifted []int
	for i, r := range s {
		if sc.Feed(r, true, false) {
			shifted = append(shifted, i)
		}
	}
	return shifted
}

func TestSentenceCase_CapitalisesAfterEnding(t *testing.T) {
	sc := &SentenceCase{}
	sc.Toggle()

	got := typeSentence(sc, "hello. world! ok? yes")
	assert.Equal(t, []int{7, 14, 18}, got)
}

func TestSentenceCase_FirstLetterAfterEnableNotShifted(t *testing.T) {
	sc := &SentenceCase{}
	sc.Toggle()
	assert.Empty(t, typeSentence(sc, "hello"))
}

func TestSentenceCase_Disabled(t *testing.T) {
	sc := &SentenceCase{}
	assert.Empty(t, typeSentence(sc, "a. b"))
}

func TestSentenceCase_ClosingQuoteKeepsEnding(t *testing.T) {
	sc := &SentenceCase{}
	sc.Toggle()
	assert.Equal(t, []int{8}, typeSentence(sc, `"done." next`))
}

func TestSentenceCase_NewlineAndMultipleSpaces(t *testing.T) {
	sc := &SentenceCase{}
	sc.Toggle()
	assert.Equal(t, []int{5}, typeSentence(sc, "end.\nnew"))
	assert.Equal(t, []int{5}, typeSentence(sc, "a.   b"))
}

func TestSentenceCase_AbbreviationNeedsSpace(t *testing.T) {
	sc := &SentenceCase{}
	sc.Toggle()
	assert.Empty(t, typeSentence(sc, "e.g.x"))
}

func TestSentenceCase_HeldShiftNotDoubled(t *testing.T) {
	sc := &SentenceCase{}
	sc.Toggle()
	typeSentence(sc, "a. ")
	assert.True(t, sc.Primed())

	assert.False(t, sc.Feed('B', true, true))
	assert.False(t, sc.Primed())
}

func TestSentenceCase_UnknownKeyResets(t *testing.T) {
	sc := &SentenceCase{}
	sc.Toggle()
	typeSentence(sc, "a. ")
	sc.Feed(0, false, false)
	assert.False(t, sc.Primed())
}
