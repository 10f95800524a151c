package auth

import "pathlet/internal/identity"

// LoginRequest is the payload of the login form
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" message:"Invalid email address"`
	Password string `json:"password" binding:"required,min=6" message:"Password must be at least 6 characters"`
}

// RegisterRequest is the payload of the registration form
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=2" message:"Username must be at least 2 characters"`
	Email    string `json:"email" binding:"required,email" message:"Invalid email address"`
	Password string `json:"password" binding:"required,min=8" message:"Password must be at least 8 characters"`
}

// EmailRequest is the payload of the magic link and password reset forms
type EmailRequest struct {
	Email string `json:"email" binding:"required,email" message:"Invalid email address"`
}

// UserResponse describes the signed-in user
type UserResponse struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	Username      string         `json:"username,omitempty"`
	EmailVerified bool           `json:"email_verified"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// RegisterResponse is the outcome of a registration. ConfirmationRequired is set when
// the account exists but must be confirmed by email before the first login.
type RegisterResponse struct {
	User                 *UserResponse `json:"user"`
	ConfirmationRequired bool          `json:"confirmation_required"`
}

func userResponse(p *identity.Principal) *UserResponse {
	if p == nil {
		return nil
	}
	return &UserResponse{
		ID:            p.ID,
		Email:         p.Email,
		Username:      p.Username(),
		EmailVerified: p.EmailVerified,
		Metadata:      p.Metadata,
	}
}
