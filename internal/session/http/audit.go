package http

import (
	"net/http"

	"github.com/aussiebroadwan/sessionguard/internal/session/service"
	"github.com/aussiebroadwan/sessionguard/pkg/httpx"
	"github.com/aussiebroadwan/sessionguard/pkg/slogx"
)

// AuditVerifyHandler serves GET /v1/audit/verify.
type AuditVerifyHandler struct {
	Audit *service.AuditLog
}

// ServeHTTP godoc
//
//	@Summary		Verify the audit chain
//	@Description	Recomputes every audit entry hash and prev_hash link in append order.
//	@Description	divergence is the index of the first broken entry, or -1 when the chain is intact.
//	@Tags			Audit
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	domain.ChainReport
//	@Failure		401	{object}	httpx.APIError	"invalid_token"
//	@Failure		403	{object}	httpx.APIError	"forbidden"
//	@Failure		503	{object}	httpx.APIError	"unavailable"
//	@Router			/v1/audit/verify [get]
func (h *AuditVerifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, err := h.Audit.Verify(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !report.Valid {
		slogx.FromContext(r.Context()).Error("audit chain divergence",
			"index", report.Divergence, "entry_id", report.EntryID, "reason", report.Reason)
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}
