package session

// Outcome is what an access-controlled boundary should do right now.
type Outcome int

const (
	// OutcomePending: the session is still resolving. Show a neutral indicator, do not navigate.
	OutcomePending Outcome = iota
	// OutcomeDeny: resolved and anonymous. Send the user to the entry screen.
	OutcomeDeny
	// OutcomeAllow: resolved and authenticated. Render the guarded content.
	OutcomeAllow
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDeny:
		return "deny"
	case OutcomeAllow:
		return "allow"
	default:
		return "pending"
	}
}

// Decide is the whole access rule as a pure function of the session flags.
func Decide(isLoading, isAuthenticated bool) Outcome {
	switch {
	case isLoading:
		return OutcomePending
	case !isAuthenticated:
		return OutcomeDeny
	default:
		return OutcomeAllow
	}
}

// Decision is the result of evaluating the guard once.
type Decision int

const (
	// Pending mirrors OutcomePending.
	Pending Decision = iota
	// Redirected means the redirect effect ran during this evaluation.
	Redirected
	// Denied means the user is anonymous and the redirect already ran for this period.
	Denied
	// Allowed mirrors OutcomeAllow.
	Allowed
)

func (d Decision) String() string {
	switch d {
	case Redirected:
		return "redirected"
	case Denied:
		return "denied"
	case Allowed:
		return "allowed"
	default:
		return "pending"
	}
}
