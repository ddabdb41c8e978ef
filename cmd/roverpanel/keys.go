package main

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/gwillem/roverpanel/pkg/input"
)

// keyName maps a terminal key to the key names the input normalizer
// understands.
func keyName(msg tea.KeyMsg) string {
	switch msg.Type {
	case tea.KeyUp:
		return string(input.KeyArrowUp)
	case tea.KeyDown:
		return string(input.KeyArrowDown)
	case tea.KeyLeft:
		return string(input.KeyArrowLeft)
	case tea.KeyRight:
		return string(input.KeyArrowRight)
	case tea.KeySpace:
		return " "
	case tea.KeyEsc:
		return "Escape"
	case tea.KeyRunes:
		return string(msg.Runes)
	}
	return msg.String()
}

// keyReleaser synthesizes key releases. Terminals only report presses, and
// a held key auto-repeats; a movement key counts as released once it has
// not repeated for the release window. Each press bumps a token, and a
// release check only fires if no newer press arrived.
type keyReleaser struct {
	seq  uint64
	held map[input.ID]uint64
}

func newKeyReleaser() *keyReleaser {
	return &keyReleaser{held: make(map[input.ID]uint64)}
}

// Press records a press of id. It reports whether this is a new hold and
// returns the token to check on expiry.
func (k *keyReleaser) Press(id input.ID) (first bool, token uint64) {
	_, already := k.held[id]
	k.seq++
	k.held[id] = k.seq
	return !already, k.seq
}

// Expire reports whether id should be released: it is still held and has
// not been pressed again since token was issued.
func (k *keyReleaser) Expire(id input.ID, token uint64) bool {
	if cur, ok := k.held[id]; !ok || cur != token {
		return false
	}
	delete(k.held, id)
	return true
}

// Reset forgets every held key.
func (k *keyReleaser) Reset() {
	clear(k.held)
}

func (k *keyReleaser) Held() int {
	return len(k.held)
}
