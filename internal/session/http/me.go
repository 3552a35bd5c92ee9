package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/sessionguard/internal/session/service"
	"github.com/aussiebroadwan/sessionguard/internal/session/store"
	"github.com/aussiebroadwan/sessionguard/pkg/httpx"
)

// MeHandler serves GET /v1/me.
type MeHandler struct {
	Users *service.UserService
}

// ServeHTTP godoc
//
//	@Summary		Current user
//	@Description	Returns the user the bearer token belongs to.
//	@Tags			Users
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	UserView
//	@Failure		401	{object}	httpx.APIError	"invalid_token"
//	@Router			/v1/me [get]
func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, _ := httpx.PrincipalFromContext(r.Context())

	u, err := h.Users.GetUserByID(r.Context(), p.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, httpx.ErrUnauthorized)
			return
		}
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newUserView(u))
}
