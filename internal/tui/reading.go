package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"pathlet/internal/insights"
	"pathlet/internal/validation"
)

const messageGenerateFailed = "Failed to generate insights"

type readingMsg struct {
	insights *insights.Insights
	err      error
}

// birthValidator checks one field of the details with v as its value, using the
// same rules the API applies.
func birthValidator(in *insights.BirthDetails, field string) func(string) error {
	return func(v string) error {
		d := *in
		switch field {
		case "date":
			d.Date = v
		case "time":
			d.Time = v
		case "city":
			d.City = v
		case "country":
			d.Country = v
		}

		var verr *validation.Error
		if errors.As(insights.Validate(&d), &verr) {
			if msg, ok := verr.Fields[field]; ok {
				return errors.New(msg)
			}
		}
		return nil
	}
}

func newBirthForm(in *insights.BirthDetails) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("date").
				Title("Date of birth").
				Placeholder("1990-08-15").
				Value(&in.Date).
				Validate(birthValidator(in, "date")),
			huh.NewInput().
				Key("time").
				Title("Time of birth").
				Placeholder("14:30").
				Value(&in.Time).
				Validate(birthValidator(in, "time")),
			huh.NewInput().
				Key("city").
				Title("City of birth").
				Value(&in.City).
				Validate(birthValidator(in, "city")),
			huh.NewInput().
				Key("country").
				Title("Country of birth").
				Value(&in.Country).
				Validate(birthValidator(in, "country")),
		).Title("Enter your birth details"),
	).WithShowHelp(true)
}

func (m *Model) showBirth() tea.Cmd {
	m.birthInput = &insights.BirthDetails{}
	m.birthForm = newBirthForm(m.birthInput)
	if cmd := m.navigate(screenBirth); cmd != nil {
		return cmd
	}
	return m.birthForm.Init()
}

func (m *Model) updateBirth(msg tea.Msg) tea.Cmd {
	if m.busy || m.birthForm == nil {
		return nil
	}
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		return m.navigate(screenHome)
	}

	form, cmd := m.birthForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.birthForm = f
	}

	switch m.birthForm.State {
	case huh.StateCompleted:
		m.busy = true
		return tea.Batch(m.spinner.Tick, m.generate(*m.birthInput))
	case huh.StateAborted:
		return m.navigate(screenHome)
	}
	return cmd
}

func (m *Model) generate(details insights.BirthDetails) tea.Cmd {
	gen := m.generator
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		ins, err := gen.Generate(ctx, &details)
		return readingMsg{insights: ins, err: err}
	}
}

func (m *Model) readingDone(msg readingMsg) tea.Cmd {
	m.busy = false
	if msg.err != nil {
		m.logger.Error("Failed to generate insights", "error", msg.err)
		cmd := m.showBirth()
		m.lastErr = messageGenerateFailed
		return cmd
	}
	m.reading = msg.insights
	m.conversation = nil
	return m.navigate(screenReading)
}
