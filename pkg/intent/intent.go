// Package intent reduces the held inputs to a single drive direction.
package intent

import (
	"strings"

	"github.com/gwillem/roverpanel/pkg/input"
	"github.com/gwillem/roverpanel/pkg/protocol"
)

type keyPair [2]input.ID

type combo struct {
	direction protocol.Direction
	arrows    keyPair
	letters   keyPair
}

// Checked in this order; the first match wins.
var combos = []combo{
	{protocol.DirectionForwardLeft, keyPair{input.KeyArrowUp, input.KeyArrowLeft}, keyPair{input.KeyW, input.KeyA}},
	{protocol.DirectionForwardRight, keyPair{input.KeyArrowUp, input.KeyArrowRight}, keyPair{input.KeyW, input.KeyD}},
	{protocol.DirectionBackwardLeft, keyPair{input.KeyArrowDown, input.KeyArrowLeft}, keyPair{input.KeyS, input.KeyA}},
	{protocol.DirectionBackwardRight, keyPair{input.KeyArrowDown, input.KeyArrowRight}, keyPair{input.KeyS, input.KeyD}},
}

var keyDirections = map[input.ID]protocol.Direction{
	input.KeyArrowUp:    protocol.DirectionForward,
	input.KeyW:          protocol.DirectionForward,
	input.KeyArrowDown:  protocol.DirectionBackward,
	input.KeyS:          protocol.DirectionBackward,
	input.KeyArrowLeft:  protocol.DirectionLeft,
	input.KeyA:          protocol.DirectionLeft,
	input.KeyArrowRight: protocol.DirectionRight,
	input.KeyD:          protocol.DirectionRight,
}

// Resolve returns the drive direction for the held ids, given in insertion
// order. Diagonal key combinations take priority over single keys; otherwise
// the earliest held direction key wins. An empty or direction-less set
// resolves to DirectionNone.
func Resolve(ids []input.ID) protocol.Direction {
	if len(ids) == 0 {
		return protocol.DirectionNone
	}

	held := make(map[input.ID]bool, len(ids))
	letters := make(map[input.ID]bool, len(ids))
	for _, id := range ids {
		held[id] = true
		letters[input.ID(strings.ToLower(string(id)))] = true
	}

	for _, c := range combos {
		if held[c.arrows[0]] && held[c.arrows[1]] {
			return c.direction
		}
		if letters[c.letters[0]] && letters[c.letters[1]] {
			return c.direction
		}
	}

	for _, id := range ids {
		if d, ok := Direction(id); ok {
			return d
		}
	}
	return protocol.DirectionNone
}

// Direction returns the direction mapped to a single id.
func Direction(id input.ID) (protocol.Direction, bool) {
	if d, ok := keyDirections[id]; ok {
		return d, true
	}
	if len(id) == 1 {
		if d, ok := keyDirections[input.ID(strings.ToLower(string(id)))]; ok {
			return d, true
		}
	}
	return input.PadDirection(id)
}
