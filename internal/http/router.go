package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router wraps the standard library ServeMux; the guest surface is
// small enough that no third-party router pays its way.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterHealthRoutes exposes liveness and readiness probes.
func (r *Router) RegisterHealthRoutes(h *HealthHandler) {
	r.Handle("/healthz", h.Healthz)
	r.Handle("/readyz", h.Readyz)
}

// RegisterGuestRoutes mounts the guest API under /api/guest/.
func (r *Router) RegisterGuestRoutes(h *GuestHandler) {
	r.Handle("/api/guest/", h.ServeHTTP)
}

// RegisterOidcRoutes mounts the browser-navigated federated sign-in
// legs.
func (r *Router) RegisterOidcRoutes(h *OidcHandler) {
	r.Handle("/api/oidc/", h.ServeHTTP)
}
