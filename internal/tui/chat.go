package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"pathlet/internal/chat"
	"pathlet/internal/result"
)

type answerMsg struct {
	failure *result.Failure
}

func (m *Model) openChat() tea.Cmd {
	if m.conversation == nil {
		m.conversation = chat.NewConversation(m.reading, m.inferer, m.logger.With("component", "chat"))
	}
	m.question.Reset()
	m.refreshTranscript()
	if cmd := m.navigate(screenChat); cmd != nil {
		return cmd
	}
	return tea.Batch(m.question.Focus(), textinput.Blink)
}

func (m *Model) updateChat(msg tea.Msg) tea.Cmd {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc":
			m.question.Blur()
			return m.navigate(screenHome)
		case "enter":
			if m.busy {
				return nil
			}
			q := m.question.Value()
			m.question.Reset()
			m.busy = true
			return tea.Batch(m.spinner.Tick, m.ask(q))
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.transcript, cmd = m.transcript.Update(msg)
			return cmd
		}
	}

	var cmd tea.Cmd
	m.question, cmd = m.question.Update(msg)
	return cmd
}

func (m *Model) ask(question string) tea.Cmd {
	conv := m.conversation
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return answerMsg{failure: conv.Ask(ctx, question).Err}
	}
}

func (m *Model) refreshTranscript() {
	if m.conversation == nil {
		m.transcript.SetContent("")
		return
	}

	width := m.transcript.Width
	var b strings.Builder
	for _, msg := range m.conversation.Messages() {
		style, who := m.styles.Guide, "Guide"
		if msg.Sender == chat.SenderUser {
			style, who = m.styles.User, "You"
		}
		b.WriteString(style.Width(width).Render(who + ": " + msg.Text))
		b.WriteString("\n\n")
	}
	m.transcript.SetContent(b.String())
	m.transcript.GotoBottom()
}
