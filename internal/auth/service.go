// Package auth exposes the sign-in, sign-up and account recovery mutations. Every
// mutation returns a Result whose failure carries a message meant for the user.
package auth

import (
	"context"
	"errors"
	"log/slog"

	"pathlet/internal/identity"
	"pathlet/internal/result"
	"pathlet/internal/validation"
)

// Messages shown to users in place of the identity service's own wording.
const (
	MessageIncorrectCredentials = "Incorrect email or password"
	MessageConfirmEmail         = "Please confirm your email before logging in"
	MessageRateLimited          = "Too many requests. Please try again later."
	MessageMagicLinkRateLimited = "Too many magic link requests. Please try again later."
	MessageUnsupportedProvider  = "This sign-in provider is not supported"
)

// Identity is the part of the identity collaborator the mutations need.
type Identity interface {
	SignIn(ctx context.Context, creds identity.Credentials) (*identity.Session, error)
	SignUp(ctx context.Context, params identity.SignUpParams) (*identity.SignUpResult, error)
	SignOut(ctx context.Context) error
	SendMagicLink(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email string) error
	AuthorizeURL(provider string) (string, error)
	GetUser(ctx context.Context) (*identity.Principal, error)
}

// Service runs auth mutations against one client's identity handle.
type Service struct {
	identity Identity
	logger   *slog.Logger
}

// NewService creates a Service for id.
func NewService(id Identity, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{identity: id, logger: logger}
}

// Login signs in with email and password.
func (s *Service) Login(ctx context.Context, req LoginRequest) result.Result[*UserResponse] {
	if f := s.validate("login", req); f != nil {
		return result.Fail[*UserResponse](f)
	}

	sess, err := s.identity.SignIn(ctx, identity.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		return result.Fail[*UserResponse](s.failure("login", err, MessageRateLimited))
	}
	return result.Ok(userResponse(sess.Principal()))
}

// Register creates an account, storing the username as user metadata.
func (s *Service) Register(ctx context.Context, req RegisterRequest) result.Result[*RegisterResponse] {
	if f := s.validate("register", req); f != nil {
		return result.Fail[*RegisterResponse](f)
	}

	res, err := s.identity.SignUp(ctx, identity.SignUpParams{
		Email:    req.Email,
		Password: req.Password,
		Metadata: map[string]any{"username": req.Username},
	})
	if err != nil {
		return result.Fail[*RegisterResponse](s.failure("register", err, MessageRateLimited))
	}
	return result.Ok(&RegisterResponse{
		User:                 userResponse(res.User),
		ConfirmationRequired: res.Session == nil,
	})
}

// Logout signs the client out.
func (s *Service) Logout(ctx context.Context) result.Result[struct{}] {
	if err := s.identity.SignOut(ctx); err != nil {
		return result.Fail[struct{}](s.failure("logout", err, MessageRateLimited))
	}
	return result.Ok(struct{}{})
}

// SendMagicLink emails a one-time sign-in link.
func (s *Service) SendMagicLink(ctx context.Context, email string) result.Result[struct{}] {
	req := EmailRequest{Email: email}
	if f := s.validate("magic_link", req); f != nil {
		return result.Fail[struct{}](f)
	}
	if err := s.identity.SendMagicLink(ctx, req.Email); err != nil {
		return result.Fail[struct{}](s.failure("magic_link", err, MessageMagicLinkRateLimited))
	}
	return result.Ok(struct{}{})
}

// ResetPassword emails a password recovery link.
func (s *Service) ResetPassword(ctx context.Context, email string) result.Result[struct{}] {
	req := EmailRequest{Email: email}
	if f := s.validate("reset_password", req); f != nil {
		return result.Fail[struct{}](f)
	}
	if err := s.identity.ResetPassword(ctx, req.Email); err != nil {
		return result.Fail[struct{}](s.failure("reset_password", err, MessageRateLimited))
	}
	return result.Ok(struct{}{})
}

// ProviderURL returns where to send the user for social sign-in with provider.
func (s *Service) ProviderURL(provider string) result.Result[string] {
	u, err := s.identity.AuthorizeURL(provider)
	if err != nil {
		if errors.Is(err, identity.ErrUnsupportedProvider) {
			s.logger.Warn("Rejected sign-in provider", "provider", provider)
			return result.Fail[string](&result.Failure{Message: MessageUnsupportedProvider, Cause: err})
		}
		return result.Fail[string](s.failure("oauth", err, MessageRateLimited))
	}
	return result.Ok(u)
}

// CurrentUser fetches the signed-in user from the identity service.
func (s *Service) CurrentUser(ctx context.Context) result.Result[*UserResponse] {
	p, err := s.identity.GetUser(ctx)
	if err != nil {
		return result.Fail[*UserResponse](s.failure("current_user", err, MessageRateLimited))
	}
	return result.Ok(userResponse(p))
}

func (s *Service) validate(op string, req any) *result.Failure {
	err := validation.Struct(req)
	if err == nil {
		return nil
	}
	var verr *validation.Error
	if errors.As(err, &verr) {
		s.logger.Debug("Auth form rejected", "op", op, "fields", verr.Fields)
		return &result.Failure{Message: verr.First(), Fields: verr.Fields, Cause: err}
	}
	s.logger.Error("Auth form validation failed", "op", op, "error", err)
	return &result.Failure{Message: err.Error(), Cause: err}
}

func (s *Service) failure(op string, err error, rateLimited string) *result.Failure {
	msg := UserMessage(err, rateLimited)
	s.logger.Warn("Auth mutation failed", "op", op, "error", err, "message", msg)
	return &result.Failure{Message: msg, Cause: err}
}

// UserMessage maps an identity failure to the text shown to the user. rateLimited
// is used when the identity service throttled the request.
func UserMessage(err error, rateLimited string) string {
	ae := identity.AsAuthError(err)
	switch {
	case ae == nil:
		return ""
	case ae.InvalidCredentials():
		return MessageIncorrectCredentials
	case ae.EmailNotConfirmed():
		return MessageConfirmEmail
	case ae.RateLimited():
		return rateLimited
	default:
		return ae.Message
	}
}
