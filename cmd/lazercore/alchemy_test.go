package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedWord(a *Alchemy, word string) (bool, AlchemyOutput) {
	pass, out := true, AlchemyOutput{}
	for _, r := range word {
		pass, out = a.Feed(r, true)
	}
	return pass, out
}

func TestAlchemy_InactivePassesEverything(t *testing.T) {
	a, err := NewAlchemy([]AlchemyMapping{{"pi", "π"}})
	require.NoError(t, err)

	pass, out := feedWord(a, "pi")
	assert.True(t, pass)
	assert.Zero(t, out)
	assert.Empty(t, a.Buffer())
}

func TestAlchemy_MatchRewrites(t *testing.T) {
	a, err := NewAlchemy(DefaultAlchemyMappings())
	require.NoError(t, err)
	a.Active = true

	pass, out := feedWord(a, "alpha")
	assert.False(t, pass)
	assert.Equal(t, AlchemyOutput{Backspaces: 4, Text: "α"}, out)
	assert.Empty(t, a.Buffer())
}

func TestAlchemy_NonLetterResetsBuffer(t *testing.T) {
	a, _ := NewAlchemy([]AlchemyMapping{{"pi", "π"}})
	a.Active = true

	a.Feed('p', true)
	pass, _ := a.Feed(' ', true)
	assert.True(t, pass)
	assert.Empty(t, a.Buffer())

	pass, _ = a.Feed('i', true)
	assert.True(t, pass, "i alone does not match")
}

func TestAlchemy_ReleasesIgnored(t *testing.T) {
	a, _ := NewAlchemy([]AlchemyMapping{{"pi", "π"}})
	a.Active = true

	a.Feed('p', true)
	pass, _ := a.Feed('p', false)
	assert.True(t, pass)
	assert.Equal(t, "p", a.Buffer())
}

func TestAlchemy_FirstMatchWins(t *testing.T) {
	a, _ := NewAlchemy([]AlchemyMapping{{"ab", "1"}, {"abc", "2"}})
	a.Active = true

	pass, out := feedWord(a, "ab")
	assert.False(t, pass)
	assert.Equal(t, "1", out.Text)

	// "abc" can never fire: "ab" matches first and clears the buffer.
	pass, _ = feedWord(a, "abc")
	assert.True(t, pass)
}

func TestAlchemy_CaseSensitive(t *testing.T) {
	a, _ := NewAlchemy([]AlchemyMapping{{"pi", "π"}})
	a.Active = true

	pass, _ := feedWord(a, "Pi")
	assert.True(t, pass)
}

func TestAlchemy_FullBufferDropsQuietly(t *testing.T) {
	a, _ := NewAlchemy(nil)
	a.Active = true

	long := strings.Repeat("x", alchemyBufferSize+5)
	pass, _ := feedWord(a, long)
	assert.True(t, pass)
	assert.Len(t, a.Buffer(), alchemyBufferSize)
}

func TestAlchemy_Add(t *testing.T) {
	a, _ := NewAlchemy(nil)

	require.NoError(t, a.Add("shrug", `¯\_(ツ)_/¯`))
	assert.ErrorIs(t, a.Add("shrug", "x"), ErrMappingExists)
	assert.ErrorIs(t, a.Add("snake_case", "x"), ErrInvalidWord)
	assert.ErrorIs(t, a.Add("", "x"), ErrInvalidWord)
	assert.ErrorIs(t, a.Add(strings.Repeat("a", alchemyBufferSize+1), "x"), ErrInvalidWord)

	a.Active = true
	pass, out := feedWord(a, "shrug")
	assert.False(t, pass)
	assert.Equal(t, 4, out.Backspaces)
}

func TestAlchemy_TableFull(t *testing.T) {
	a, _ := NewAlchemy(nil)
	for i := 0; i < maxAlchemyMappings; i++ {
		word := string(rune('a'+i/26)) + string(rune('a'+i%26))
		require.NoError(t, a.Add(word, "x"))
	}
	assert.ErrorIs(t, a.Add("zzzz", "x"), ErrMappingFull)
	assert.Len(t, a.Mappings(), maxAlchemyMappings)
}

func TestAlchemy_DefaultTableIsLoadable(t *testing.T) {
	a, err := NewAlchemy(DefaultAlchemyMappings())
	require.NoError(t, err)
	assert.Len(t, a.Mappings(), len(DefaultAlchemyMappings()))
}
