// Package auth tracks whether the panel may command the robot.
package auth

// Phase is the gate state.
type Phase int

const (
	Locked Phase = iota
	Verifying
	Unlocked
)

func (p Phase) String() string {
	switch p {
	case Locked:
		return "locked"
	case Verifying:
		return "verifying"
	case Unlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// Messages surfaced to the user.
const (
	MsgPasswordRequired = "Password required."
	MsgRejected         = "Incorrect password."
)

// Gate is the session unlock state machine. Transitions only move toward
// Unlocked, except a rejected challenge which returns to Locked. Nothing
// re-locks an unlocked gate.
//
// Gate is not safe for concurrent use; the owning session serializes access.
type Gate struct {
	phase Phase
	err   string
}

// Submit starts a challenge. It reports whether an authenticate message
// should be sent. A second submission while verifying restarts the check.
func (g *Gate) Submit(password string) bool {
	if g.phase == Unlocked {
		return false
	}
	if password == "" {
		g.phase = Locked
		g.err = MsgPasswordRequired
		return false
	}
	g.phase = Verifying
	g.err = ""
	return true
}

// HandleResult applies an auth_result reply.
func (g *Gate) HandleResult(success bool, message string) {
	if g.phase == Unlocked {
		return
	}
	if success {
		g.phase = Unlocked
		g.err = ""
		return
	}
	if message == "" {
		message = MsgRejected
	}
	g.phase = Locked
	g.err = message
}

// HandleState applies an auth_state notification. Only a positive state
// changes anything.
func (g *Gate) HandleState(authenticated bool) {
	if authenticated {
		g.phase = Unlocked
		g.err = ""
	}
}

// Unlocked reports whether commands may be sent.
func (g *Gate) Unlocked() bool {
	return g.phase == Unlocked
}

func (g *Gate) Phase() Phase {
	return g.phase
}

// Err returns the last rejection message, if any.
func (g *Gate) Err() string {
	return g.err
}
