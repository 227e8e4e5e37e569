package core

import "fmt"

// Role is the side of the link a manager instance plays.
type Role string

const (
	// RoleSource originates audio and assigns the session parameters ("tx").
	RoleSource Role = "tx"
	// RoleSink consumes audio and learns the parameters from the store ("rx").
	RoleSink Role = "rx"
)

// ParseRole accepts "tx"/"source" and "rx"/"sink".
func ParseRole(s string) (Role, error) {
	switch s {
	case "tx", "source":
		return RoleSource, nil
	case "rx", "sink":
		return RoleSink, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q (must be tx or rx)", ErrConfigInvalid, s)
	}
}

// Phase is the manager's position in the round state machine.
type Phase string

const (
	PhaseConnectingStore Phase = "connecting_store"
	PhaseNegotiating     Phase = "negotiating"
	PhaseRunning         Phase = "running"
	PhaseFailed          Phase = "failed"
	// PhaseStopped is entered only when the manager's context is cancelled.
	PhaseStopped Phase = "stopped"
)

// Phases lists every phase in state machine order.
var Phases = []Phase{PhaseConnectingStore, PhaseNegotiating, PhaseRunning, PhaseFailed, PhaseStopped}
