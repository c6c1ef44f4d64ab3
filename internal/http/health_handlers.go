package httpapi

import (
	"database/sql"
	"net/http"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// HealthHandler answers liveness and readiness probes. Nil backends
// are skipped so DB-less demo runs still report ready.
type HealthHandler struct {
	db     *sql.DB
	rdb    *redis.Client
	logger *zap.Logger
}

func NewHealthHandler(db *sql.DB, rdb *redis.Client, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb, logger: logger}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			h.logger.Warn("readiness: database ping failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, Fail("NOT_READY", "database unavailable"))
			return
		}
	}
	if h.rdb != nil {
		if err := h.rdb.Ping(r.Context()).Err(); err != nil {
			h.logger.Warn("readiness: redis ping failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, Fail("NOT_READY", "cache unavailable"))
			return
		}
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ready"}))
}
