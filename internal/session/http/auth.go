package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/sessionguard/internal/session/service"
	"github.com/aussiebroadwan/sessionguard/pkg/httpx"
	"github.com/aussiebroadwan/sessionguard/pkg/slogx"
)

// AuthHandler serves the /v1/auth endpoints.
type AuthHandler struct {
	Sessions *service.SessionService
}

// HandleRegister godoc
//
//	@Summary		Register a user
//	@Description	Creates a user with the given role (default observer).
//	@Description	The admin role is refused unless admin signup is enabled.
//	@Description	Admins registered while MFA is enforced receive a one-time TOTP provisioning URI.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RegisterRequest		true	"New user"
//	@Success		201		{object}	RegisterResponse
//	@Failure		400		{object}	httpx.APIError	"invalid_request, weak_password, invalid_role"
//	@Failure		403		{object}	httpx.APIError	"role_not_allowed"
//	@Failure		409		{object}	httpx.APIError	"user_exists"
//	@Failure		429		{object}	httpx.APIError	"rate_limit_exceeded"
//	@Router			/v1/auth/register [post]
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, httpx.ErrBadRequest)
		return
	}

	reg, err := h.Sessions.Register(r.Context(), req.Username, req.Email, req.Password, req.Role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, RegisterResponse{
		User:               newUserView(reg.User),
		MFAProvisioningURI: reg.MFAProvisioningURI,
	})
}

// HandleLogin godoc
//
//	@Summary		Log in
//	@Description	Exchanges credentials for an access token and a single-use refresh token.
//	@Description	Admins must include a TOTP code when MFA is enforced.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LoginRequest	true	"Credentials"
//	@Success		200		{object}	domain.TokenPair
//	@Failure		400		{object}	httpx.APIError	"invalid_request"
//	@Failure		401		{object}	httpx.APIError	"invalid_credentials, mfa_required, invalid_totp"
//	@Failure		403		{object}	httpx.APIError	"mfa_not_provisioned"
//	@Failure		429		{object}	httpx.APIError	"rate_limit_exceeded"
//	@Header			200		{string}	Cache-Control	"no-store"
//	@Router			/v1/auth/login [post]
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.Username == "" || req.Password == "" {
		httpx.WriteError(w, httpx.ErrBadRequest)
		return
	}

	pair, err := h.Sessions.Login(r.Context(), req.Username, req.Password, req.TOTP)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// HandleRefresh godoc
//
//	@Summary		Rotate a refresh token
//	@Description	Each refresh token works once. Presenting a superseded token revokes every refresh token of the user.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RefreshRequest	true	"User id and current refresh token"
//	@Success		200		{object}	domain.TokenPair
//	@Failure		400		{object}	httpx.APIError	"invalid_request"
//	@Failure		401		{object}	httpx.APIError	"invalid_grant"
//	@Failure		503		{object}	httpx.APIError	"unavailable"
//	@Header			200		{string}	Cache-Control	"no-store"
//	@Router			/v1/auth/refresh [post]
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.UserID == "" || req.RefreshToken == "" {
		httpx.WriteError(w, httpx.ErrBadRequest)
		return
	}

	pair, err := h.Sessions.Refresh(r.Context(), req.UserID, req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// HandleLogout godoc
//
//	@Summary		Log out
//	@Description	Revokes the presented access token for the rest of its lifetime.
//	@Description	Always answers 200 so the endpoint cannot be used to probe tokens.
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	OKResponse
//	@Router			/v1/auth/logout [post]
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, err := service.BearerToken(r.Header.Get("Authorization"))
	if err == nil && strings.Count(token, ".") == 2 {
		if err := h.Sessions.Logout(ctx, token); err != nil {
			slogx.FromContext(ctx).Warn("logout failed", "error", err)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, OKResponse{OK: true})
}

// HandleLogoutAll godoc
//
//	@Summary		Log out everywhere
//	@Description	Revokes every refresh token of the caller and the access token used for this call.
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	OKResponse
//	@Failure		401	{object}	httpx.APIError	"invalid_token"
//	@Failure		503	{object}	httpx.APIError	"unavailable"
//	@Router			/v1/auth/logout-all [post]
func (h *AuthHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := httpx.PrincipalFromContext(ctx)

	if err := h.Sessions.LogoutAll(ctx, p, httpx.TokenFromContext(ctx)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, OKResponse{OK: true})
}

// HandleChangePassword godoc
//
//	@Summary		Change password
//	@Description	Replaces the caller's password and revokes all of their refresh tokens.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			body	body		ChangePasswordRequest	true	"Current and new password"
//	@Success		200		{object}	OKResponse
//	@Failure		400		{object}	httpx.APIError	"invalid_request, weak_password"
//	@Failure		401		{object}	httpx.APIError	"invalid_token, invalid_credentials"
//	@Router			/v1/auth/change-password [post]
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		httpx.WriteError(w, httpx.ErrBadRequest)
		return
	}

	ctx := r.Context()
	p, _ := httpx.PrincipalFromContext(ctx)
	if err := h.Sessions.ChangePassword(ctx, p, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, OKResponse{OK: true})
}
