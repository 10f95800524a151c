package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pathlet/internal/logger"
	"pathlet/internal/store"
)

const testAnonKey = "anon-key"

// fakeGoTrue records requests and answers with canned handlers per path.
type fakeGoTrue struct {
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
}

func newFakeGoTrue(t *testing.T) (*fakeGoTrue, *httptest.Server) {
	f := &fakeGoTrue{t: t, handlers: map[string]http.HandlerFunc{}, calls: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testAnonKey, r.Header.Get("apikey"))
		f.mu.Lock()
		f.calls[r.URL.Path]++
		h, ok := f.handlers[r.URL.Path]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGoTrue) handle(path string, h http.HandlerFunc) {
	f.mu.Lock()
	f.handlers[path] = h
	f.mu.Unlock()
}

func (f *fakeGoTrue) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func tokenBody(access string, expiresAt time.Time) map[string]any {
	return map[string]any{
		"access_token":  access,
		"token_type":    "bearer",
		"expires_in":    3600,
		"expires_at":    expiresAt.Unix(),
		"refresh_token": "refresh-" + access,
		"user": map[string]any{
			"id":                 "u1",
			"email":              "a@b.com",
			"email_confirmed_at": "2024-01-01T00:00:00Z",
			"user_metadata":      map[string]any{"username": "ada"},
		},
	}
}

func newTestClient(srvURL string, st store.Store) *Client {
	return NewClient(Options{
		URL:           srvURL,
		AnonKey:       testAnonKey,
		RedirectURL:   "https://app.example/welcome",
		Store:         st,
		StorageKey:    "test",
		RefreshMargin: time.Minute,
		Logger:        logger.Discard(),
	})
}

func recordEvents(c *Client) (*[]Event, *sync.Mutex) {
	var mu sync.Mutex
	var events []Event
	c.OnSessionChange(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	return &events, &mu
}

func TestSignIn_StoresSessionAndEmits(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	f.handle("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.com", body["email"])
		assert.Equal(t, "secret1", body["password"])
		writeJSON(w, http.StatusOK, tokenBody("tok1", expires))
	})

	st := store.NewMemoryStore()
	c := newTestClient(srv.URL, st)
	events, mu := recordEvents(c)

	s, err := c.SignIn(context.Background(), Credentials{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "tok1", s.AccessToken)
	assert.Equal(t, "u1", s.User.ID)
	assert.True(t, s.User.EmailVerified)
	assert.Equal(t, "ada", s.User.Username())
	assert.True(t, s.ExpiresAt.Equal(expires))

	got, err := c.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tok1", got.AccessToken)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *events, 1)
	assert.Equal(t, EventSignedIn, (*events)[0].Type)
}

func TestSignIn_DecodesErrorShapes(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       map[string]any
		wantCode   string
		wantMsg    string
		rateLimits bool
	}{
		{
			name:     "legacy invalid grant",
			status:   http.StatusBadRequest,
			body:     map[string]any{"error": "invalid_grant", "error_description": "Invalid login credentials"},
			wantCode: CodeInvalidCredentials,
			wantMsg:  MessageInvalidCredentials,
		},
		{
			name:     "current error code",
			status:   http.StatusBadRequest,
			body:     map[string]any{"code": 400, "error_code": "email_not_confirmed", "msg": "Email not confirmed"},
			wantCode: CodeEmailNotConfirmed,
			wantMsg:  MessageEmailNotConfirmed,
		},
		{
			name:       "rate limited without code",
			status:     http.StatusTooManyRequests,
			body:       map[string]any{"msg": "For security purposes, you can only request this once every 60 seconds"},
			wantCode:   CodeRateLimited,
			wantMsg:    "For security purposes, you can only request this once every 60 seconds",
			rateLimits: true,
		},
		{
			name:     "bare status",
			status:   http.StatusInternalServerError,
			body:     map[string]any{},
			wantCode: CodeUnknown,
			wantMsg:  "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, srv := newFakeGoTrue(t)
			f.handle("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			c := newTestClient(srv.URL, store.NewMemoryStore())

			_, err := c.SignIn(context.Background(), Credentials{Email: "a@b.com", Password: "x"})
			require.Error(t, err)

			var ae *AuthError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, tt.wantCode, ae.Code)
			assert.Equal(t, tt.wantMsg, ae.Message)
			assert.Equal(t, tt.status, ae.Status)
			assert.Equal(t, tt.rateLimits, ae.RateLimited())
		})
	}
}

func TestSignIn_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := newTestClient(srv.URL, store.NewMemoryStore())
	_, err := c.SignIn(context.Background(), Credentials{Email: "a@b.com", Password: "x"})

	var ae *AuthError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, CodeNetwork, ae.Code)
}

func TestGetSession_Empty(t *testing.T) {
	_, srv := newFakeGoTrue(t)
	c := newTestClient(srv.URL, store.NewMemoryStore())

	s, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestGetSession_RefreshesNearExpiry(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.handle("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("grant_type") {
		case "password":
			writeJSON(w, http.StatusOK, tokenBody("old", time.Now().Add(30*time.Second)))
		case "refresh_token":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "refresh-old", body["refresh_token"])
			writeJSON(w, http.StatusOK, tokenBody("new", time.Now().Add(time.Hour)))
		}
	})

	c := newTestClient(srv.URL, store.NewMemoryStore())
	_, err := c.SignIn(context.Background(), Credentials{Email: "a@b.com", Password: "x"})
	require.NoError(t, err)
	events, mu := recordEvents(c)

	s, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", s.AccessToken)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *events, 1)
	assert.Equal(t, EventTokenRefreshed, (*events)[0].Type)
	assert.Equal(t, "new", (*events)[0].Session.AccessToken)
}

func TestRefresh_RejectedTokenSignsOut(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.handle("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") == "password" {
			writeJSON(w, http.StatusOK, tokenBody("old", time.Now().Add(10*time.Second)))
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error_code": "refresh_token_not_found", "msg": "Invalid Refresh Token"})
	})

	c := newTestClient(srv.URL, store.NewMemoryStore())
	_, err := c.SignIn(context.Background(), Credentials{Email: "a@b.com", Password: "x"})
	require.NoError(t, err)
	events, mu := recordEvents(c)

	_, err = c.GetSession(context.Background())
	require.Error(t, err)

	s, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s, "rejected refresh clears the stored session")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *events, 1)
	assert.Equal(t, EventSignedOut, (*events)[0].Type)
}

func TestSignUp_ConfirmationRequired(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.handle("/auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"username": "ada"}, body["data"])
		writeJSON(w, http.StatusOK, map[string]any{
			"id":                 "u2",
			"email":              "new@b.com",
			"email_confirmed_at": nil,
			"user_metadata":      map[string]any{"username": "ada"},
		})
	})

	c := newTestClient(srv.URL, store.NewMemoryStore())
	events, mu := recordEvents(c)

	res, err := c.SignUp(context.Background(), SignUpParams{
		Email:    "new@b.com",
		Password: "longenough",
		Metadata: map[string]any{"username": "ada"},
	})
	require.NoError(t, err)
	assert.Nil(t, res.Session)
	require.NotNil(t, res.User)
	assert.Equal(t, "u2", res.User.ID)
	assert.False(t, res.User.EmailVerified)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, *events)
}

func TestSignUp_AutoConfirmed(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.handle("/auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, tokenBody("tok", time.Now().Add(time.Hour)))
	})

	c := newTestClient(srv.URL, store.NewMemoryStore())
	res, err := c.SignUp(context.Background(), SignUpParams{Email: "a@b.com", Password: "longenough"})
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.Equal(t, "tok", res.Session.AccessToken)
}

func TestSignOut(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   bool
		wantClear bool
	}{
		{name: "success", status: http.StatusNoContent, wantClear: true},
		{name: "already revoked", status: http.StatusUnauthorized, wantClear: true},
		{name: "server failure", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, srv := newFakeGoTrue(t)
			f.handle("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tokenBody("tok", time.Now().Add(time.Hour)))
			})
			f.handle("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				if tt.status == http.StatusNoContent {
					w.WriteHeader(tt.status)
					return
				}
				writeJSON(w, tt.status, map[string]any{"msg": "nope"})
			})

			c := newTestClient(srv.URL, store.NewMemoryStore())
			_, err := c.SignIn(context.Background(), Credentials{Email: "a@b.com", Password: "x"})
			require.NoError(t, err)
			events, mu := recordEvents(c)

			err = c.SignOut(context.Background())
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			s, _ := c.GetSession(context.Background())
			assert.Equal(t, tt.wantClear, s == nil)

			mu.Lock()
			defer mu.Unlock()
			if tt.wantClear {
				require.Len(t, *events, 1)
				assert.Equal(t, EventSignedOut, (*events)[0].Type)
			} else {
				assert.Empty(t, *events)
			}
		})
	}
}

func TestSendMagicLinkAndReset(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.handle("/auth/v1/otp", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://app.example/welcome", r.URL.Query().Get("redirect_to"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["create_user"])
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	f.handle("/auth/v1/recover", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"msg": "Email rate limit exceeded"})
	})

	c := newTestClient(srv.URL, store.NewMemoryStore())
	require.NoError(t, c.SendMagicLink(context.Background(), "a@b.com"))

	err := c.ResetPassword(context.Background(), "a@b.com")
	require.Error(t, err)
	assert.True(t, AsAuthError(err).RateLimited())
	assert.Equal(t, 1, f.count("/auth/v1/otp"))
}

func TestAuthorizeURL(t *testing.T) {
	c := newTestClient("https://xyz.supabase.co", store.NewMemoryStore())

	raw, err := c.AuthorizeURL("github")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/auth/v1/authorize", u.Path)
	assert.Equal(t, "github", u.Query().Get("provider"))
	assert.Equal(t, "https://app.example/welcome", u.Query().Get("redirect_to"))

	_, err = c.AuthorizeURL("myspace")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestGetUser(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.handle("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, tokenBody("tok", time.Now().Add(time.Hour)))
	})
	f.handle("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"id": "u1", "email": "a@b.com"})
	})

	c := newTestClient(srv.URL, store.NewMemoryStore())
	_, err := c.GetUser(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = c.SignIn(context.Background(), Credentials{Email: "a@b.com", Password: "x"})
	require.NoError(t, err)

	p, err := c.GetUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.False(t, p.EmailVerified)
}

func TestRefresher_RunOnce(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	f.handle("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") == "password" {
			writeJSON(w, http.StatusOK, tokenBody("old", time.Now().Add(5*time.Second)))
			return
		}
		writeJSON(w, http.StatusOK, tokenBody("new", time.Now().Add(time.Hour)))
	})

	c := newTestClient(srv.URL, store.NewMemoryStore())
	_, err := c.SignIn(context.Background(), Credentials{Email: "a@b.com", Password: "x"})
	require.NoError(t, err)

	r := NewRefresher(time.Hour, logger.Discard())
	r.Track(c)
	r.RunOnce()

	s, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", s.AccessToken)

	r.Untrack(c)
	r.RunOnce()
	assert.Equal(t, 2, f.count("/auth/v1/token"), "untracked clients are left alone")
}

func seedSession(t *testing.T, c *Client, s *Session) {
	t.Helper()
	require.NoError(t, c.saveSession(context.Background(), s))
}

func TestGetSession_ExpiredWithoutRefreshTokenSignsOut(t *testing.T) {
	_, srv := newFakeGoTrue(t)
	st := store.NewMemoryStore()
	c := newTestClient(srv.URL, st)
	seedSession(t, c, &Session{
		AccessToken: "dead",
		ExpiresAt:   time.Now().Add(-time.Minute),
		User:        &Principal{ID: "u1", Email: "a@b.com"},
	})
	events, mu := recordEvents(c)

	s, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)

	mu.Lock()
	require.Len(t, *events, 1)
	assert.Equal(t, EventSignedOut, (*events)[0].Type)
	mu.Unlock()

	_, err = st.Get(context.Background(), "pathlet:auth:test")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetSession_NearExpiryWithoutRefreshTokenIsKept(t *testing.T) {
	_, srv := newFakeGoTrue(t)
	c := newTestClient(srv.URL, store.NewMemoryStore())
	seedSession(t, c, &Session{
		AccessToken: "short",
		ExpiresAt:   time.Now().Add(30 * time.Second),
		User:        &Principal{ID: "u1"},
	})
	events, mu := recordEvents(c)

	s, err := c.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "short", s.AccessToken)

	mu.Lock()
	assert.Empty(t, *events)
	mu.Unlock()
}

func TestRefreshIfNeeded_ExpiredWithoutRefreshTokenSignsOut(t *testing.T) {
	f, srv := newFakeGoTrue(t)
	c := newTestClient(srv.URL, store.NewMemoryStore())
	seedSession(t, c, &Session{
		AccessToken: "dead",
		ExpiresAt:   time.Now().Add(-time.Second),
		User:        &Principal{ID: "u1"},
	})
	events, mu := recordEvents(c)

	require.NoError(t, c.RefreshIfNeeded(context.Background()))

	mu.Lock()
	require.Len(t, *events, 1)
	assert.Equal(t, EventSignedOut, (*events)[0].Type)
	mu.Unlock()
	assert.Equal(t, 0, f.count("/auth/v1/token"))

	// Nothing left to expire.
	require.NoError(t, c.RefreshIfNeeded(context.Background()))
	mu.Lock()
	assert.Len(t, *events, 1)
	mu.Unlock()
}

// deleteFailingStore serves a corrupt session and cannot delete it.
type deleteFailingStore struct {
	*store.MemoryStore
}

func (deleteFailingStore) Delete(context.Context, string) error {
	return errors.New("read-only replica")
}

func TestGetSession_UnreadableSessionLogsFailedRemoval(t *testing.T) {
	_, srv := newFakeGoTrue(t)
	st := deleteFailingStore{store.NewMemoryStore()}
	require.NoError(t, st.Set(context.Background(), "pathlet:auth:test", "{not json", time.Hour))

	var logs strings.Builder
	c := NewClient(Options{
		URL:        srv.URL,
		AnonKey:    testAnonKey,
		Store:      st,
		StorageKey: "test",
		Logger:     logger.NewWithWriter(&logs, "identity"),
	})

	s, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Contains(t, logs.String(), "Failed to remove stored session")
	assert.Contains(t, logs.String(), "read-only replica")
}
