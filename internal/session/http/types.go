package http

import (
	"time"

	"github.com/aussiebroadwan/sessionguard/internal/session/domain"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type RegisterResponse struct {
	User UserView `json:"user"`

	// MFAProvisioningURI is the otpauth:// URI for admins under enforced
	// MFA. It is only ever returned here.
	MFAProvisioningURI string `json:"mfa_provisioning_uri,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTP     string `json:"totp,omitempty"`
}

type RefreshRequest struct {
	UserID       string `json:"user_id"`
	RefreshToken string `json:"refresh_token"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

// UserView is the public shape of a user record.
type UserView struct {
	ID         string      `json:"id"`
	Username   string      `json:"username"`
	Email      string      `json:"email"`
	Role       domain.Role `json:"role"`
	MFAEnabled bool        `json:"mfa_enabled"`
	CreatedAt  time.Time   `json:"created_at"`
}

func newUserView(u domain.User) UserView {
	return UserView{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       u.Role,
		MFAEnabled: u.MFASecret != nil && *u.MFASecret != "",
		CreatedAt:  u.CreatedAt,
	}
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}
