package tui

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pathlet/internal/auth"
	"pathlet/internal/chat"
	"pathlet/internal/identity"
	"pathlet/internal/insights"
	"pathlet/internal/logger"
	"pathlet/internal/session"
)

// fakeIdentity is both the guard's source and the auth service's identity handle,
// so mutations push notifications the way the real client does.
type fakeIdentity struct {
	events  *identity.Broadcaster
	initial chan *identity.Session

	signInFunc  func(identity.Credentials) (*identity.Session, error)
	signUpFunc  func(identity.SignUpParams) (*identity.SignUpResult, error)
	signOutFunc func() error
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		events:  identity.NewBroadcaster(),
		initial: make(chan *identity.Session, 1),
	}
}

func (f *fakeIdentity) GetSession(ctx context.Context) (*identity.Session, error) {
	select {
	case s := <-f.initial:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeIdentity) OnSessionChange(fn func(identity.Event)) identity.Subscription {
	return f.events.Subscribe(fn)
}

func (f *fakeIdentity) SignIn(_ context.Context, creds identity.Credentials) (*identity.Session, error) {
	if f.signInFunc == nil {
		return nil, errors.New("not implemented")
	}
	s, err := f.signInFunc(creds)
	if err == nil {
		f.events.Emit(identity.Event{Type: identity.EventSignedIn, Session: s})
	}
	return s, err
}

func (f *fakeIdentity) SignUp(_ context.Context, params identity.SignUpParams) (*identity.SignUpResult, error) {
	if f.signUpFunc == nil {
		return nil, errors.New("not implemented")
	}
	return f.signUpFunc(params)
}

func (f *fakeIdentity) SignOut(context.Context) error {
	if f.signOutFunc != nil {
		if err := f.signOutFunc(); err != nil {
			return err
		}
	}
	f.events.Emit(identity.Event{Type: identity.EventSignedOut})
	return nil
}

func (f *fakeIdentity) SendMagicLink(context.Context, string) error { return nil }

func (f *fakeIdentity) ResetPassword(context.Context, string) error { return nil }

func (f *fakeIdentity) AuthorizeURL(string) (string, error) { return "", nil }

func (f *fakeIdentity) GetUser(context.Context) (*identity.Principal, error) { return nil, nil }

type fakeInferer struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
}

func (f *fakeInferer) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, *insights.BirthDetails) (*insights.Insights, error) {
	return nil, errors.New("generator down")
}

func userSession() *identity.Session {
	return &identity.Session{
		AccessToken: "token",
		User: &identity.Principal{
			ID:       "u1",
			Email:    "luna@example.com",
			Metadata: map[string]any{"username": "luna"},
		},
	}
}

type harness struct {
	model    *Model
	identity *fakeIdentity
	guard    *session.Guard
	inferer  *fakeInferer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	id := newFakeIdentity()
	notifier := NewNotifier()
	g := session.New(id, session.WithLogger(logger.Discard()), session.WithListener(notifier.Listen))
	g.Initialize(context.Background())
	t.Cleanup(g.Teardown)

	inf := &fakeInferer{answer: "Trust your sacral response."}
	m := NewModel(Deps{
		Guard:     g,
		Notifier:  notifier,
		Identity:  id,
		Generator: insights.NewStaticGenerator(),
		Inferer:   inf,
		Logger:    logger.Discard(),
	})
	return &harness{model: m, identity: id, guard: g, inferer: inf}
}

// resolve answers the guard's initial query and delivers the change to the model.
func (h *harness) resolve(t *testing.T, s *identity.Session) {
	t.Helper()
	h.identity.initial <- s
	select {
	case <-h.guard.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("guard did not resolve")
	}
	h.model.Update(sessionChangedMsg{})
}

func (h *harness) push(typ identity.EventType, s *identity.Session) {
	h.identity.events.Emit(identity.Event{Type: typ, Session: s})
	h.model.Update(sessionChangedMsg{})
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_StartsPendingOnHome(t *testing.T) {
	h := newHarness(t)
	h.model.Init()

	assert.Equal(t, screenHome, h.model.screen)
	assert.Equal(t, session.Pending, h.model.decision)
	assert.Contains(t, h.model.View(), "Checking your session")
	assert.NotContains(t, h.model.View(), "Welcome back")
}

func TestModel_PendingIgnoresInput(t *testing.T) {
	h := newHarness(t)
	h.model.Init()

	h.model.Update(key("n"))

	assert.Equal(t, screenHome, h.model.screen)
}

func TestModel_AnonymousRedirectsToAuthOnce(t *testing.T) {
	h := newHarness(t)
	h.model.Init()

	h.resolve(t, nil)

	assert.Equal(t, screenAuth, h.model.screen)
	assert.Equal(t, session.Redirected, h.model.decision)
	require.NotNil(t, h.model.authForm)
	form := h.model.authForm

	// Further anonymous updates in the same period do not rebuild the auth screen.
	h.push(identity.EventSignedOut, nil)
	assert.Same(t, form, h.model.authForm)
}

func TestModel_AuthenticatedShowsHome(t *testing.T) {
	h := newHarness(t)
	h.model.Init()

	h.resolve(t, userSession())

	assert.Equal(t, screenHome, h.model.screen)
	assert.Equal(t, session.Allowed, h.model.decision)
	assert.Contains(t, h.model.View(), "Welcome back, luna.")
}

func TestModel_LoginSuccessNavigatesHome(t *testing.T) {
	h := newHarness(t)
	h.identity.signInFunc = func(creds identity.Credentials) (*identity.Session, error) {
		assert.Equal(t, "luna@example.com", creds.Email)
		return userSession(), nil
	}
	h.model.Init()
	h.resolve(t, nil)

	h.model.authInput = &authInput{mode: modeLogin, email: "luna@example.com", password: "secret123"}
	msg := h.model.submitAuth()()
	h.model.Update(sessionChangedMsg{})
	h.model.Update(msg)

	assert.Equal(t, screenHome, h.model.screen)
	assert.Equal(t, session.Allowed, h.model.decision)
	assert.Empty(t, h.model.lastErr)
}

func TestModel_LoginFailureStaysOnAuth(t *testing.T) {
	h := newHarness(t)
	h.identity.signInFunc = func(identity.Credentials) (*identity.Session, error) {
		return nil, &identity.AuthError{Status: http.StatusBadRequest, Code: identity.CodeInvalidCredentials}
	}
	h.model.Init()
	h.resolve(t, nil)

	h.model.authInput = &authInput{mode: modeLogin, email: "luna@example.com", password: "wrong-pass"}
	h.model.Update(h.model.submitAuth()())

	assert.Equal(t, screenAuth, h.model.screen)
	assert.Equal(t, auth.MessageIncorrectCredentials, h.model.lastErr)
	assert.Equal(t, "luna@example.com", h.model.authInput.email, "email is kept for the retry")
	assert.Empty(t, h.model.authInput.password)
}

func TestModel_LoginValidationFailure(t *testing.T) {
	h := newHarness(t)
	h.model.Init()
	h.resolve(t, nil)

	h.model.authInput = &authInput{mode: modeLogin, email: "not-an-email", password: "secret123"}
	h.model.Update(h.model.submitAuth()())

	assert.Equal(t, screenAuth, h.model.screen)
	assert.Equal(t, "Invalid email address", h.model.lastErr)
}

func TestModel_RegisterRequiringConfirmation(t *testing.T) {
	h := newHarness(t)
	h.identity.signUpFunc = func(params identity.SignUpParams) (*identity.SignUpResult, error) {
		assert.Equal(t, "luna", params.Metadata["username"])
		return &identity.SignUpResult{User: userSession().User}, nil
	}
	h.model.Init()
	h.resolve(t, nil)

	h.model.authInput = &authInput{mode: modeRegister, username: "luna", email: "luna@example.com", password: "secret123"}
	h.model.Update(h.model.submitAuth()())

	assert.Equal(t, screenAuth, h.model.screen)
	assert.Equal(t, noticeConfirmEmail, h.model.notice)
	assert.Equal(t, modeLogin, h.model.authInput.mode)
}

func TestModel_SignOutReturnsToAuth(t *testing.T) {
	h := newHarness(t)
	h.model.Init()
	h.resolve(t, userSession())
	require.Equal(t, screenHome, h.model.screen)

	msg := h.model.logout()()
	h.model.Update(msg)
	h.model.Update(sessionChangedMsg{})

	assert.Equal(t, screenAuth, h.model.screen)
	assert.Equal(t, session.Redirected, h.model.decision)
}

func TestModel_ReadingFlow(t *testing.T) {
	h := newHarness(t)
	h.model.Init()
	h.resolve(t, userSession())

	h.model.Update(key("n"))
	require.Equal(t, screenBirth, h.model.screen)

	details := insights.BirthDetails{Date: "1990-08-15", Time: "14:30", City: "Lisbon", Country: "Portugal"}
	h.model.Update(h.model.generate(details)())

	assert.Equal(t, screenReading, h.model.screen)
	require.NotNil(t, h.model.reading)
	view := h.model.View()
	assert.Contains(t, view, "Leo")
	assert.Contains(t, view, "Generator")

	h.model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, screenHome, h.model.screen)
	assert.Contains(t, h.model.View(), "reading is ready")
}

func TestModel_ReadingFailureKeepsBirthForm(t *testing.T) {
	h := newHarness(t)
	h.model.generator = failingGenerator{}
	h.model.Init()
	h.resolve(t, userSession())
	h.model.Update(key("n"))

	h.model.Update(h.model.generate(insights.BirthDetails{})())

	assert.Equal(t, screenBirth, h.model.screen)
	assert.Equal(t, messageGenerateFailed, h.model.lastErr)
	assert.Nil(t, h.model.reading)
}

func TestModel_ChatFlow(t *testing.T) {
	h := newHarness(t)
	h.model.Init()
	h.resolve(t, userSession())
	h.model.Update(h.model.generate(insights.BirthDetails{
		Date: "1990-08-15", Time: "14:30", City: "Lisbon", Country: "Portugal",
	})())

	h.model.Update(key("c"))
	require.Equal(t, screenChat, h.model.screen)
	require.NotNil(t, h.model.conversation)
	assert.Len(t, h.model.conversation.Messages(), 1, "greeting only")

	h.model.Update(h.model.ask("What is my strategy?")())

	msgs := h.model.conversation.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, chat.SenderUser, msgs[1].Sender)
	assert.Equal(t, "Trust your sacral response.", msgs[2].Text)
	assert.False(t, h.model.busy)
	assert.Empty(t, h.model.lastErr)
}

func TestModel_ChatInferenceFailure(t *testing.T) {
	h := newHarness(t)
	h.inferer.err = errors.New("model unavailable")
	h.model.Init()
	h.resolve(t, userSession())
	h.model.Update(h.model.generate(insights.BirthDetails{
		Date: "1990-08-15", Time: "14:30", City: "Lisbon", Country: "Portugal",
	})())
	h.model.Update(key("c"))

	h.model.Update(h.model.ask("Hello?")())

	assert.Equal(t, chat.MessageAskFailed, h.model.lastErr)
	assert.Len(t, h.model.conversation.Messages(), 2, "the question stays in the history")
}

func TestModel_NewUserDropsPreviousReading(t *testing.T) {
	h := newHarness(t)
	h.model.Init()
	h.resolve(t, userSession())
	h.model.Update(h.model.generate(insights.BirthDetails{
		Date: "1990-08-15", Time: "14:30", City: "Lisbon", Country: "Portugal",
	})())
	require.NotNil(t, h.model.reading)

	other := &identity.Session{AccessToken: "t2", User: &identity.Principal{ID: "u2", Email: "sol@example.com"}}
	h.push(identity.EventSignedIn, other)

	assert.Nil(t, h.model.reading)
	assert.Equal(t, "u2", h.model.userID)
}

func TestModel_CtrlCQuits(t *testing.T) {
	h := newHarness(t)

	_, cmd := h.model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, h.model.View())
}

func TestNotifier_Coalesces(t *testing.T) {
	n := NewNotifier()
	n.Listen(session.State{})
	n.Listen(session.State{})
	n.Listen(session.State{})

	assert.Equal(t, sessionChangedMsg{}, n.wait()())
	select {
	case <-n.ch:
		t.Fatal("only one wake-up should be pending")
	default:
	}
}

func TestBirthValidator(t *testing.T) {
	in := &insights.BirthDetails{Date: "1990-08-15", Time: "14:30", City: "Lisbon", Country: "Portugal"}

	assert.NoError(t, birthValidator(in, "date")("2000-01-31"))
	assert.EqualError(t, birthValidator(in, "date")("31/01/2000"), "Invalid date")
	assert.EqualError(t, birthValidator(in, "time")("25:99"), "Invalid time format")
	assert.EqualError(t, birthValidator(in, "city")("L"), "City must be at least 2 characters")
	assert.NoError(t, birthValidator(in, "country")("PT"))
}
