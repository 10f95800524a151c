// Package identity talks to the identity collaborator: a GoTrue compatible auth API
// (the one Supabase exposes under /auth/v1). It persists the issued session in a
// store, keeps it fresh, and pushes session changes to subscribers.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"pathlet/internal/store"
)

const (
	authPath         = "/auth/v1"
	sessionRetention = 30 * 24 * time.Hour
	requestTimeout   = 10 * time.Second
)

// OAuthProviders lists the social providers the authorize URL may name.
var OAuthProviders = []string{"google", "github", "apple"}

// ErrUnsupportedProvider is returned by AuthorizeURL for unknown providers.
var ErrUnsupportedProvider = errors.New("unsupported oauth provider")

// Options configures a Client.
type Options struct {
	// URL is the project base URL, e.g. https://xyz.supabase.co
	URL     string
	AnonKey string
	// RedirectURL is where magic links, password resets and OAuth land.
	RedirectURL string
	// Store keeps the session between calls and restarts.
	Store store.Store
	// StorageKey distinguishes clients sharing one store.
	StorageKey string
	// RefreshMargin refreshes tokens this long before they expire.
	RefreshMargin time.Duration
	Logger        *slog.Logger
}

// Client is the GoTrue REST client. One Client holds one user's session.
type Client struct {
	http    *resty.Client
	opts    Options
	events  *Broadcaster
	refresh singleflight.Group
	logger  *slog.Logger
	now     func() time.Time
}

// NewClient creates a client for the given project.
func NewClient(opts Options) *Client {
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.StorageKey == "" {
		opts.StorageKey = "default"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := resty.New().
		SetBaseURL(opts.URL+authPath).
		SetTimeout(requestTimeout).
		SetHeader("apikey", opts.AnonKey).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(opts.AnonKey)

	return &Client{
		http:   httpClient,
		opts:   opts,
		events: NewBroadcaster(),
		logger: logger.With("storage_key", opts.StorageKey),
		now:    time.Now,
	}
}

// wire types

type userResponse struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

func (u *userResponse) principal() *Principal {
	if u == nil || u.ID == "" {
		return nil
	}
	return &Principal{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailConfirmedAt != nil,
		Metadata:      u.UserMetadata,
	}
}

type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`
}

// signup answers with a session when accounts are auto-confirmed and with a bare
// user object otherwise.
type signupResponse struct {
	tokenResponse
	userResponse
}

type apiError struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

func (c *Client) session(tr *tokenResponse) *Session {
	expiresAt := time.Time{}
	switch {
	case tr.ExpiresAt > 0:
		expiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		expiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return &Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		ExpiresAt:    expiresAt,
		User:         tr.User.principal(),
	}
}

func decodeError(res *resty.Response) *AuthError {
	status := res.StatusCode()
	ae := &AuthError{Status: status}

	var body apiError
	if e, ok := res.Error().(*apiError); ok && e != nil {
		body = *e
	} else {
		_ = json.Unmarshal(res.Body(), &body)
	}

	switch {
	case body.ErrorCode != "":
		ae.Code = body.ErrorCode
	case body.Error != "":
		ae.Code = body.Error
	default:
		if s, ok := body.Code.(string); ok {
			ae.Code = s
		}
	}

	for _, m := range []string{body.Msg, body.ErrorDescription, body.Message} {
		if m != "" {
			ae.Message = m
			break
		}
	}
	if ae.Message == "" {
		ae.Message = http.StatusText(status)
	}

	switch {
	case status == http.StatusTooManyRequests && ae.Code == "":
		ae.Code = CodeRateLimited
	case ae.Message == MessageInvalidCredentials && (ae.Code == "" || ae.Code == "invalid_grant"):
		ae.Code = CodeInvalidCredentials
	case ae.Message == MessageEmailNotConfirmed && (ae.Code == "" || ae.Code == "invalid_grant"):
		ae.Code = CodeEmailNotConfirmed
	case ae.Code == "":
		ae.Code = CodeUnknown
	}
	return ae
}

// do runs req against path and maps transport and API failures to *AuthError.
func (c *Client) do(req *resty.Request, method, path string) (*resty.Response, error) {
	res, err := req.SetError(&apiError{}).Execute(method, path)
	if err != nil {
		return nil, networkError(err)
	}
	if res.IsError() {
		return res, decodeError(res)
	}
	return res, nil
}

func (c *Client) storageKey() string {
	return "pathlet:auth:" + c.opts.StorageKey
}

func (c *Client) loadSession(ctx context.Context) (*Session, error) {
	raw, err := c.opts.Store.Get(ctx, c.storageKey())
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		c.logger.Warn("Discarding unreadable stored session", "error", err)
		c.clearSession(ctx)
		return nil, nil
	}
	return &s, nil
}

func (c *Client) saveSession(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := c.opts.Store.Set(ctx, c.storageKey(), string(data), sessionRetention); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (c *Client) clearSession(ctx context.Context) {
	if err := c.opts.Store.Delete(ctx, c.storageKey()); err != nil {
		c.logger.Error("Failed to remove stored session", "error", err)
	}
}

// expire drops a session that has run out with nothing to refresh it and tells
// subscribers the user is signed out.
func (c *Client) expire(ctx context.Context, s *Session) {
	c.logger.Info("Stored session expired, signing out", "expires_at", s.ExpiresAt)
	c.clearSession(ctx)
	c.events.Emit(Event{Type: EventSignedOut})
}

// OnSessionChange subscribes fn to session change notifications.
func (c *Client) OnSessionChange(fn func(Event)) Subscription {
	return c.events.Subscribe(fn)
}

// GetSession returns the stored session, refreshing it first when it is about to
// expire. A nil session with a nil error means nobody is signed in.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	s, err := c.loadSession(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	if !s.ExpiresWithin(c.now(), c.opts.RefreshMargin) {
		return s, nil
	}
	if s.RefreshToken == "" {
		if s.ExpiresWithin(c.now(), 0) {
			c.expire(ctx, s)
			return nil, nil
		}
		return s, nil
	}
	return c.Refresh(ctx)
}

// Refresh exchanges the stored refresh token for a new session. Concurrent callers
// share one request. A rejected refresh token signs the user out.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	v, err, _ := c.refresh.Do("refresh", func() (any, error) {
		current, err := c.loadSession(ctx)
		if err != nil {
			return nil, err
		}
		if current == nil || current.RefreshToken == "" {
			return nil, ErrNoSession
		}

		res, err := c.do(c.http.R().
			SetContext(ctx).
			SetQueryParam("grant_type", "refresh_token").
			SetBody(map[string]string{"refresh_token": current.RefreshToken}).
			SetResult(&tokenResponse{}), http.MethodPost, "/token")
		if err != nil {
			var ae *AuthError
			if errors.As(err, &ae) && ae.Code != CodeNetwork {
				c.logger.Warn("Refresh token rejected, signing out", "error", err)
				c.clearSession(ctx)
				c.events.Emit(Event{Type: EventSignedOut})
			}
			return nil, err
		}

		s := c.session(res.Result().(*tokenResponse))
		if s.User == nil {
			s.User = current.User
		}
		if err := c.saveSession(ctx, s); err != nil {
			return nil, err
		}
		c.logger.Debug("Session refreshed", "expires_at", s.ExpiresAt)
		c.events.Emit(Event{Type: EventTokenRefreshed, Session: s})
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// RefreshIfNeeded refreshes the stored session when it is within the refresh margin.
// It is the body of the auto-refresh job.
func (c *Client) RefreshIfNeeded(ctx context.Context) error {
	s, err := c.loadSession(ctx)
	if err != nil || s == nil {
		return err
	}
	if s.RefreshToken == "" {
		if s.ExpiresWithin(c.now(), 0) {
			c.expire(ctx, s)
		}
		return nil
	}
	if !s.ExpiresWithin(c.now(), c.opts.RefreshMargin) {
		return nil
	}
	_, err = c.Refresh(ctx)
	return err
}

// SignIn signs in with email and password.
func (c *Client) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	res, err := c.do(c.http.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "password").
		SetBody(map[string]string{"email": creds.Email, "password": creds.Password}).
		SetResult(&tokenResponse{}), http.MethodPost, "/token")
	if err != nil {
		return nil, err
	}

	s := c.session(res.Result().(*tokenResponse))
	if err := c.saveSession(ctx, s); err != nil {
		return nil, err
	}
	c.events.Emit(Event{Type: EventSignedIn, Session: s})
	return s, nil
}

// SignUp registers a new account.
func (c *Client) SignUp(ctx context.Context, params SignUpParams) (*SignUpResult, error) {
	body := map[string]any{
		"email":    params.Email,
		"password": params.Password,
	}
	if len(params.Metadata) > 0 {
		body["data"] = params.Metadata
	}

	res, err := c.do(c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&signupResponse{}), http.MethodPost, "/signup")
	if err != nil {
		return nil, err
	}

	sr := res.Result().(*signupResponse)
	if sr.AccessToken == "" {
		return &SignUpResult{User: sr.userResponse.principal()}, nil
	}

	s := c.session(&sr.tokenResponse)
	if err := c.saveSession(ctx, s); err != nil {
		return nil, err
	}
	c.events.Emit(Event{Type: EventSignedIn, Session: s})
	return &SignUpResult{User: s.User, Session: s}, nil
}

// SignOut revokes the session remotely and clears it locally. A session the
// service no longer knows about counts as signed out.
func (c *Client) SignOut(ctx context.Context) error {
	s, err := c.loadSession(ctx)
	if err != nil {
		return err
	}

	if s != nil && s.AccessToken != "" {
		_, err := c.do(c.http.R().
			SetContext(ctx).
			SetAuthToken(s.AccessToken), http.MethodPost, "/logout")
		if err != nil {
			var ae *AuthError
			ignorable := errors.As(err, &ae) && slices.Contains(
				[]int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound}, ae.Status)
			if !ignorable {
				return err
			}
		}
	}

	c.clearSession(ctx)
	c.events.Emit(Event{Type: EventSignedOut})
	return nil
}

// SendMagicLink emails a one-time sign-in link, creating the user if needed.
func (c *Client) SendMagicLink(ctx context.Context, email string) error {
	_, err := c.do(c.http.R().
		SetContext(ctx).
		SetQueryParam("redirect_to", c.opts.RedirectURL).
		SetBody(map[string]any{"email": email, "create_user": true}), http.MethodPost, "/otp")
	return err
}

// ResetPassword emails a password recovery link.
func (c *Client) ResetPassword(ctx context.Context, email string) error {
	_, err := c.do(c.http.R().
		SetContext(ctx).
		SetQueryParam("redirect_to", c.opts.RedirectURL).
		SetBody(map[string]string{"email": email}), http.MethodPost, "/recover")
	return err
}

// AuthorizeURL builds the URL a browser is sent to for social sign-in.
func (c *Client) AuthorizeURL(provider string) (string, error) {
	if !slices.Contains(OAuthProviders, provider) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	q := url.Values{"provider": {provider}}
	if c.opts.RedirectURL != "" {
		q.Set("redirect_to", c.opts.RedirectURL)
	}
	return fmt.Sprintf("%s%s/authorize?%s", c.opts.URL, authPath, q.Encode()), nil
}

// GetUser fetches the current user from the identity service.
func (c *Client) GetUser(ctx context.Context) (*Principal, error) {
	s, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}

	res, err := c.do(c.http.R().
		SetContext(ctx).
		SetAuthToken(s.AccessToken).
		SetResult(&userResponse{}), http.MethodGet, "/user")
	if err != nil {
		return nil, err
	}
	return res.Result().(*userResponse).principal(), nil
}
