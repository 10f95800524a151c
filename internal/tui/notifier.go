package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"pathlet/internal/session"
)

// sessionChangedMsg tells the model to re-read the guard.
type sessionChangedMsg struct{}

// Notifier bridges guard listener calls into the bubbletea loop. Wake-ups are
// coalesced: the model always reads the latest state itself, so one pending
// signal is enough no matter how many updates arrived.
type Notifier struct {
	ch chan struct{}
}

// NewNotifier creates a Notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Listen is a session.WithListener callback. It never blocks.
func (n *Notifier) Listen(session.State) {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

func (n *Notifier) wait() tea.Cmd {
	return func() tea.Msg {
		<-n.ch
		return sessionChangedMsg{}
	}
}
