package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"pathlet/internal/session"
)

// View renders the current screen
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Pathlet"))
	b.WriteString("\n")
	b.WriteString(m.renderBody())
	b.WriteString("\n")

	if m.busy {
		b.WriteString(m.spinner.View() + " Working...\n")
	}
	if m.lastErr != "" {
		b.WriteString(m.styles.Error.Render(m.lastErr) + "\n")
	}
	if m.notice != "" {
		b.WriteString(m.styles.Notice.Render(m.notice) + "\n")
	}
	if help := m.help(); help != "" {
		b.WriteString(m.styles.Help.Render(help))
	}
	return b.String()
}

func (m *Model) renderBody() string {
	if m.screen.protected() {
		switch m.decision {
		case session.Pending:
			return m.spinner.View() + " Checking your session..."
		case session.Denied, session.Redirected:
			// The guarded content never renders for an anonymous user.
			return m.styles.Muted.Render("Sign in to continue.")
		}
	}

	switch m.screen {
	case screenAuth:
		if m.authForm == nil {
			return ""
		}
		return m.authForm.View()
	case screenHome:
		return m.renderHome()
	case screenBirth:
		if m.birthForm == nil {
			return ""
		}
		return m.birthForm.View()
	case screenReading:
		return m.renderReading()
	case screenChat:
		return m.transcript.View() + "\n" + m.question.View()
	}
	return ""
}

func (m *Model) renderHome() string {
	name := "friend"
	if p := m.guard.State().Principal; p != nil {
		name = p.Username()
		if name == "" {
			name = p.Email
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Welcome back, %s.\n\n", m.styles.Value.Render(name))
	if m.reading == nil {
		b.WriteString("Discover your personal insights through astrology, human design and numerology.\n")
	} else {
		b.WriteString(fmt.Sprintf("Your %s sun sign reading is ready.\n",
			m.styles.Value.Render(m.reading.Astrology.SunSign)))
	}
	return b.String()
}

func (m *Model) renderReading() string {
	if m.reading == nil {
		return m.styles.Muted.Render("No reading yet.")
	}
	ins := m.reading

	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, m.styles.Label.Render(label), m.styles.Value.Render(value))
	}
	card := func(title string, rows ...string) string {
		return m.styles.Card.Render(lipgloss.JoinVertical(lipgloss.Left,
			append([]string{m.styles.Title.Render(title)}, rows...)...))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		card("Astrology",
			row("Sun sign", ins.Astrology.SunSign),
			row("Moon sign", ins.Astrology.MoonSign),
			row("Rising sign", ins.Astrology.RisingSign),
		),
		card("Human Design",
			row("Energy type", ins.HumanDesign.EnergyType),
			row("Strategy", ins.HumanDesign.Strategy),
			row("Authority", ins.HumanDesign.Authority),
		),
		card("Numerology",
			row("Life path", fmt.Sprint(ins.Numerology.LifePath)),
			row("Destiny", fmt.Sprint(ins.Numerology.DestinyNumber)),
			row("Soul urge", fmt.Sprint(ins.Numerology.SoulUrgeNumber)),
		),
	)
}

func (m *Model) help() string {
	if m.screen.protected() && m.decision != session.Allowed {
		return "ctrl+c quit"
	}
	switch m.screen {
	case screenHome:
		if m.reading != nil {
			return "n new reading • r view reading • c chat • o sign out • q quit"
		}
		return "n new reading • o sign out • q quit"
	case screenBirth:
		return "enter next • esc back"
	case screenReading:
		return "c chat • n new reading • esc home"
	case screenChat:
		return "enter send • pgup/pgdown scroll • esc home"
	}
	return ""
}
