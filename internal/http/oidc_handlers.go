package httpapi

import (
	"net/http"
	"strings"

	"redux-portal/internal/service"

	"go.uber.org/zap"
)

// OidcHandler serves the browser-navigated federated sign-in legs:
//
//	GET /api/oidc/{tenant}/{site}/start?portal_session_id=...
//	GET /api/oidc/callback/{tenant}/{site}?state=...&code=...
//
// Both always answer with a 302; errors travel back to the portal
// page as a query parameter, never as a JSON body.
type OidcHandler struct {
	svc    *service.OidcService
	logger *zap.Logger
}

func NewOidcHandler(svc *service.OidcService, logger *zap.Logger) *OidcHandler {
	return &OidcHandler{svc: svc, logger: logger}
}

func (h *OidcHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/oidc/"), "/")

	switch {
	case len(parts) == 3 && parts[0] == "callback" && parts[1] != "" && parts[2] != "":
		h.callback(w, r, parts[1], parts[2])
	case len(parts) == 3 && parts[2] == "start" && parts[0] != "" && parts[1] != "":
		h.start(w, r, parts[0], parts[1])
	default:
		http.NotFound(w, r)
	}
}

func (h *OidcHandler) start(w http.ResponseWriter, r *http.Request, tenantSlug, siteSlug string) {
	sessionID := r.URL.Query().Get("portal_session_id")
	redirect, err := h.svc.Start(r.Context(), tenantSlug, siteSlug, sessionID)
	if err != nil {
		h.logger.Error("oidc start failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *OidcHandler) callback(w http.ResponseWriter, r *http.Request, tenantSlug, siteSlug string) {
	q := r.URL.Query()
	redirect, err := h.svc.Callback(r.Context(), tenantSlug, siteSlug, service.CallbackParams{
		State:         q.Get("state"),
		Code:          q.Get("code"),
		ProviderError: q.Get("error"),
	})
	if err != nil {
		h.logger.Error("oidc callback failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}
