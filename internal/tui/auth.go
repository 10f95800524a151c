package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"pathlet/internal/auth"
	"pathlet/internal/result"
)

type authMode string

const (
	modeLogin     authMode = "login"
	modeRegister  authMode = "register"
	modeMagicLink authMode = "magic-link"
)

const (
	noticeConfirmEmail = "Check your email to confirm your account, then sign in."
	noticeMagicLink    = "Check your email for a sign-in link."
)

type authInput struct {
	mode     authMode
	username string
	email    string
	password string
}

type authDoneMsg struct {
	mode    authMode
	user    *auth.UserResponse
	confirm bool
	failure *result.Failure
}

type logoutDoneMsg struct {
	failure *result.Failure
}

func newAuthForm(in *authInput) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[authMode]().
				Key("mode").
				Title("Welcome to Pathlet").
				Options(
					huh.NewOption("Sign in", modeLogin),
					huh.NewOption("Create an account", modeRegister),
					huh.NewOption("Email me a sign-in link", modeMagicLink),
				).
				Value(&in.mode),
		),
		huh.NewGroup(
			huh.NewInput().
				Key("username").
				Title("Username").
				Value(&in.username),
		).WithHideFunc(func() bool { return in.mode != modeRegister }),
		huh.NewGroup(
			huh.NewInput().
				Key("email").
				Title("Email").
				Placeholder("you@example.com").
				Value(&in.email),
		),
		huh.NewGroup(
			huh.NewInput().
				Key("password").
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&in.password),
		).WithHideFunc(func() bool { return in.mode == modeMagicLink }),
	).WithShowHelp(true)
}

// showAuth switches to the auth screen with a fresh form prefilled from in.
func (m *Model) showAuth(in authInput, notice string) tea.Cmd {
	in.password = ""
	m.screen = screenAuth
	m.busy = false
	m.notice = notice
	m.authInput = &in
	m.authForm = newAuthForm(m.authInput)
	return m.authForm.Init()
}

func (m *Model) updateAuth(msg tea.Msg) tea.Cmd {
	if m.busy || m.authForm == nil {
		return nil
	}

	form, cmd := m.authForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.authForm = f
	}

	switch m.authForm.State {
	case huh.StateCompleted:
		m.busy = true
		m.lastErr = ""
		return tea.Batch(m.spinner.Tick, m.submitAuth())
	case huh.StateAborted:
		m.quitting = true
		return tea.Quit
	}
	return cmd
}

// submitAuth runs the chosen auth mutation off the UI loop.
func (m *Model) submitAuth() tea.Cmd {
	in := *m.authInput
	svc := m.auth
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		switch in.mode {
		case modeRegister:
			r := svc.Register(ctx, auth.RegisterRequest{Username: in.username, Email: in.email, Password: in.password})
			if !r.OK() {
				return authDoneMsg{mode: in.mode, failure: r.Err}
			}
			return authDoneMsg{mode: in.mode, user: r.Value.User, confirm: r.Value.ConfirmationRequired}
		case modeMagicLink:
			r := svc.SendMagicLink(ctx, in.email)
			return authDoneMsg{mode: in.mode, failure: r.Err}
		default:
			r := svc.Login(ctx, auth.LoginRequest{Email: in.email, Password: in.password})
			return authDoneMsg{mode: in.mode, user: r.Value, failure: r.Err}
		}
	}
}

func (m *Model) authDone(msg authDoneMsg) tea.Cmd {
	m.busy = false
	prefill := authInput{mode: msg.mode}
	if m.authInput != nil {
		prefill = *m.authInput
	}

	if msg.failure != nil {
		cmd := m.showAuth(prefill, "")
		m.lastErr = msg.failure.Message
		return cmd
	}

	switch {
	case msg.mode == modeMagicLink:
		return m.showAuth(authInput{mode: modeLogin, email: prefill.email}, noticeMagicLink)
	case msg.confirm:
		return m.showAuth(authInput{mode: modeLogin, email: prefill.email}, noticeConfirmEmail)
	}

	m.notice = ""
	if msg.user != nil {
		m.logger.Info("Signed in", "user_id", msg.user.ID)
	}
	return m.navigate(screenHome)
}

func (m *Model) logout() tea.Cmd {
	svc := m.auth
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return logoutDoneMsg{failure: svc.Logout(ctx).Err}
	}
}
