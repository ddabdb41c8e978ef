package main

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/gwillem/roverpanel/pkg/input"
)

func TestKeyName(t *testing.T) {
	tests := []struct {
		msg  tea.KeyMsg
		want string
	}{
		{tea.KeyMsg{Type: tea.KeyUp}, "ArrowUp"},
		{tea.KeyMsg{Type: tea.KeyDown}, "ArrowDown"},
		{tea.KeyMsg{Type: tea.KeyLeft}, "ArrowLeft"},
		{tea.KeyMsg{Type: tea.KeyRight}, "ArrowRight"},
		{tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}, " "},
		{tea.KeyMsg{Type: tea.KeyEsc}, "Escape"},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'W'}}, "W"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, keyName(tt.msg))
	}
	assert.Equal(t, input.KeyW, input.NormalizeKey(keyName(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'W'}})))
}

func TestKeyReleaser(t *testing.T) {
	k := newKeyReleaser()

	first, tok1 := k.Press(input.KeyW)
	assert.True(t, first)

	// auto-repeat
	first, tok2 := k.Press(input.KeyW)
	assert.False(t, first)

	assert.False(t, k.Expire(input.KeyW, tok1), "superseded by the repeat")
	assert.True(t, k.Expire(input.KeyW, tok2))
	assert.False(t, k.Expire(input.KeyW, tok2), "already released")

	first, _ = k.Press(input.KeyW)
	assert.True(t, first, "new hold after release")
}

func TestKeyReleaser_Independent(t *testing.T) {
	k := newKeyReleaser()
	_, w := k.Press(input.KeyW)
	_, a := k.Press(input.KeyA)
	assert.Equal(t, 2, k.Held())

	assert.True(t, k.Expire(input.KeyA, a))
	assert.Equal(t, 1, k.Held())

	k.Reset()
	assert.False(t, k.Expire(input.KeyW, w))
	assert.Zero(t, k.Held())
}
