package session

import "pathlet/internal/identity"

// State is the client's current belief about who is signed in.
type State struct {
	Principal       *identity.Principal `json:"principal"`
	IsAuthenticated bool                `json:"is_authenticated"`
	// IsLoading is true until the first resolution arrives. While it is true,
	// IsAuthenticated is provisional and must not drive access control.
	IsLoading bool `json:"is_loading"`
}

// Phase names the guard's state machine states.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseAuthenticated
	PhaseAnonymous
)

func (p Phase) String() string {
	switch p {
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Phase derives the state machine state from s.
func (s State) Phase() Phase {
	switch {
	case s.IsLoading:
		return PhaseUnknown
	case s.IsAuthenticated:
		return PhaseAuthenticated
	default:
		return PhaseAnonymous
	}
}

func unknownState() State {
	return State{IsLoading: true}
}

func resolvedState(p *identity.Principal) State {
	return State{Principal: p, IsAuthenticated: p != nil}
}
