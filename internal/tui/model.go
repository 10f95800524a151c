// Package tui is the Pathlet terminal client. Screens behind sign-in are gated by
// a session.Guard exactly like a route guard: a spinner while the session is
// resolving, one switch to the auth screen per signed-out period.
package tui

import (
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"pathlet/internal/auth"
	"pathlet/internal/chat"
	"pathlet/internal/insights"
	"pathlet/internal/session"
)

const requestTimeout = 15 * time.Second

type screen int

const (
	screenAuth screen = iota
	screenHome
	screenBirth
	screenReading
	screenChat
)

// protected reports whether the screen needs a signed-in user.
func (s screen) protected() bool {
	return s != screenAuth
}

func (s screen) String() string {
	switch s {
	case screenAuth:
		return "auth"
	case screenHome:
		return "home"
	case screenBirth:
		return "birth-details"
	case screenReading:
		return "reading"
	case screenChat:
		return "chat"
	default:
		return "unknown"
	}
}

// Deps are the collaborators of the terminal client.
type Deps struct {
	Guard     *session.Guard
	Notifier  *Notifier
	Identity  auth.Identity
	Generator insights.Generator
	Inferer   chat.Inferer
	Logger    *slog.Logger
}

// Model is the bubbletea model of the terminal client
type Model struct {
	guard     *session.Guard
	notifier  *Notifier
	auth      *auth.Service
	generator insights.Generator
	inferer   chat.Inferer
	logger    *slog.Logger

	screen   screen
	decision session.Decision
	userID   string
	busy     bool
	notice   string
	lastErr  string
	width    int
	height   int
	quitting bool

	authInput  *authInput
	authForm   *huh.Form
	birthInput *insights.BirthDetails
	birthForm  *huh.Form

	reading      *insights.Insights
	conversation *chat.Conversation
	question     textinput.Model
	transcript   viewport.Model

	spinner spinner.Model
	styles  Styles
}

// NewModel creates the client model. It opens on the home screen, which is guarded.
func NewModel(deps Deps) *Model {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = NewNotifier()
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	q := textinput.New()
	q.Placeholder = "Ask about your insights..."
	q.CharLimit = 500
	q.Width = 60

	return &Model{
		guard:      deps.Guard,
		notifier:   deps.Notifier,
		auth:       auth.NewService(deps.Identity, logger.With("component", "auth")),
		generator:  deps.Generator,
		inferer:    deps.Inferer,
		logger:     logger,
		screen:     screenHome,
		decision:   session.Pending,
		question:   q,
		transcript: viewport.New(80, 16),
		spinner:    sp,
		styles:     DefaultStyles(),
	}
}

// Init starts the spinner and begins listening for session changes
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.notifier.wait(), m.enforce())
}

// Update handles messages and updates the model state
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.transcript.Width = msg.Width
		m.transcript.Height = max(5, msg.Height-10)
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sessionChangedMsg:
		return m, tea.Batch(m.sessionChanged(), m.notifier.wait())

	case authDoneMsg:
		return m, m.authDone(msg)

	case logoutDoneMsg:
		m.busy = false
		if msg.failure != nil {
			m.lastErr = msg.failure.Message
		}
		return m, nil

	case readingMsg:
		return m, m.readingDone(msg)

	case answerMsg:
		m.busy = false
		if msg.failure != nil {
			m.lastErr = msg.failure.Message
		} else {
			m.lastErr = ""
		}
		m.refreshTranscript()
		return m, nil
	}

	// Guarded screens take no input until the guard lets them through.
	if m.screen.protected() && m.decision != session.Allowed {
		return m, nil
	}

	switch m.screen {
	case screenAuth:
		return m, m.updateAuth(msg)
	case screenHome:
		return m, m.updateHome(msg)
	case screenBirth:
		return m, m.updateBirth(msg)
	case screenReading:
		return m, m.updateReading(msg)
	case screenChat:
		return m, m.updateChat(msg)
	}
	return m, nil
}

// sessionChanged reacts to a guard update: a different user drops the previous
// user's reading, and the current screen is re-checked.
func (m *Model) sessionChanged() tea.Cmd {
	st := m.guard.State()
	if p := st.Principal; p != nil && p.ID != m.userID {
		m.userID = p.ID
		m.reading = nil
		m.conversation = nil
	}
	return m.enforce()
}

// enforce evaluates the guard for the current screen. The redirect switches to
// the auth screen; the guard makes sure that happens once per signed-out period.
func (m *Model) enforce() tea.Cmd {
	if !m.screen.protected() {
		return nil
	}
	var cmd tea.Cmd
	m.decision = m.guard.Check(func() {
		cmd = m.showAuth(authInput{mode: modeLogin}, "")
	})
	m.logger.Debug("Guard evaluated", "screen", m.screen, "decision", m.decision)
	return cmd
}

// navigate moves to s and re-checks the guard.
func (m *Model) navigate(s screen) tea.Cmd {
	m.screen = s
	m.lastErr = ""
	return m.enforce()
}

func (m *Model) updateHome(msg tea.Msg) tea.Cmd {
	key, ok := msg.(tea.KeyMsg)
	if !ok || m.busy {
		return nil
	}
	switch key.String() {
	case "n":
		return m.showBirth()
	case "r":
		if m.reading != nil {
			return m.navigate(screenReading)
		}
	case "c":
		if m.reading != nil {
			return m.openChat()
		}
	case "o":
		m.busy = true
		m.notice = ""
		return tea.Batch(m.spinner.Tick, m.logout())
	case "q":
		m.quitting = true
		return tea.Quit
	}
	return nil
}

func (m *Model) updateReading(msg tea.Msg) tea.Cmd {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	switch key.String() {
	case "c":
		return m.openChat()
	case "n":
		return m.showBirth()
	case "esc", "h":
		return m.navigate(screenHome)
	}
	return nil
}

// Screen reports the screen being shown, for logging by the caller.
func (m *Model) Screen() string {
	return m.screen.String()
}
