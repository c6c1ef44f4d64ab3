package httpapi

import (
	"net/http"
	"strings"

	"redux-portal/internal/service"

	"go.uber.org/zap"
)

// GuestHandler serves the JSON guest API:
//
//	GET  /api/guest/{tenant}/{site}/config
//	POST /api/guest/{tenant}/{site}/session/init
//	POST /api/guest/{tenant}/{site}/voucher
//	POST /api/guest/{tenant}/{site}/otp/start
//	POST /api/guest/{tenant}/{site}/otp/verify
//	POST /api/guest/{tenant}/{site}/tos/accept
type GuestHandler struct {
	svc    *service.GuestService
	logger *zap.Logger
}

func NewGuestHandler(svc *service.GuestService, logger *zap.Logger) *GuestHandler {
	return &GuestHandler{svc: svc, logger: logger}
}

func (h *GuestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/guest/"), "/")
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" {
		writeJSON(w, http.StatusNotFound, Fail("NOT_FOUND", "unknown route"))
		return
	}
	tenantSlug, siteSlug := parts[0], parts[1]
	op := strings.Join(parts[2:], "/")

	switch {
	case op == "config" && r.Method == http.MethodGet:
		h.config(w, r, tenantSlug, siteSlug)
	case op == "session/init" && r.Method == http.MethodPost:
		h.sessionInit(w, r, tenantSlug, siteSlug)
	case op == "voucher" && r.Method == http.MethodPost:
		h.voucher(w, r, tenantSlug, siteSlug)
	case op == "otp/start" && r.Method == http.MethodPost:
		h.otpStart(w, r, tenantSlug, siteSlug)
	case op == "otp/verify" && r.Method == http.MethodPost:
		h.otpVerify(w, r, tenantSlug, siteSlug)
	case op == "tos/accept" && r.Method == http.MethodPost:
		h.tosAccept(w, r, tenantSlug, siteSlug)
	case op == "config" || op == "session/init" || op == "voucher" ||
		op == "otp/start" || op == "otp/verify" || op == "tos/accept":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		writeJSON(w, http.StatusNotFound, Fail("NOT_FOUND", "unknown route"))
	}
}

// writeError renders guest-visible denials with their status and
// reason code; anything else is an opaque 500.
func (h *GuestHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if se, ok := service.AsError(err); ok {
		writeJSON(w, se.Status, Fail(string(se.Code), se.Message))
		return
	}
	h.logger.Error("guest request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, Fail("INTERNAL", "internal error"))
}

func (h *GuestHandler) config(w http.ResponseWriter, r *http.Request, tenantSlug, siteSlug string) {
	payload, err := h.svc.SiteConfig(r.Context(), tenantSlug, siteSlug)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(payload))
}

type sessionInitRequest struct {
	ID   string `json:"id"` // client MAC, as the AP redirect names it
	AP   string `json:"ap,omitempty"`
	SSID string `json:"ssid,omitempty"`
	URL  string `json:"url,omitempty"`
}

type sessionInitResponse struct {
	PortalSessionID string `json:"portal_session_id"`
	Status          string `json:"status"`
}

func (h *GuestHandler) sessionInit(w http.ResponseWriter, r *http.Request, tenantSlug, siteSlug string) {
	var req sessionInitRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("INVALID_BODY", "malformed request body"))
		return
	}
	sess, err := h.svc.InitSession(r.Context(), tenantSlug, siteSlug, service.InitParams{
		ClientMAC: req.ID,
		APMAC:     req.AP,
		SSID:      req.SSID,
		OrigURL:   req.URL,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(sessionInitResponse{
		PortalSessionID: sess.ID,
		Status:          string(sess.Status),
	}))
}

type authorizedResponse struct {
	Authorized      bool   `json:"authorized"`
	ContinuationURL string `json:"continuation_url,omitempty"`
}

type voucherRequest struct {
	PortalSessionID string `json:"portal_session_id"`
	Code            string `json:"code"`
}

func (h *GuestHandler) voucher(w http.ResponseWriter, r *http.Request, tenantSlug, siteSlug string) {
	var req voucherRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("INVALID_BODY", "malformed request body"))
		return
	}
	outcome, err := h.svc.SubmitVoucher(r.Context(), tenantSlug, siteSlug, service.SubmitVoucherParams{
		SessionID: req.PortalSessionID,
		Code:      req.Code,
		IP:        clientIP(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(authorizedResponse{
		Authorized:      true,
		ContinuationURL: outcome.ContinuationURL,
	}))
}

type otpStartRequest struct {
	PortalSessionID string `json:"portal_session_id"`
	Email           string `json:"email"`
}

func (h *GuestHandler) otpStart(w http.ResponseWriter, r *http.Request, tenantSlug, siteSlug string) {
	var req otpStartRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("INVALID_BODY", "malformed request body"))
		return
	}
	err := h.svc.StartOTP(r.Context(), tenantSlug, siteSlug, service.StartOTPParams{
		SessionID: req.PortalSessionID,
		Email:     req.Email,
		IP:        clientIP(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "sent"}))
}

type otpVerifyRequest struct {
	PortalSessionID string `json:"portal_session_id"`
	Email           string `json:"email"`
	Code            string `json:"code"`
}

func (h *GuestHandler) otpVerify(w http.ResponseWriter, r *http.Request, tenantSlug, siteSlug string) {
	var req otpVerifyRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("INVALID_BODY", "malformed request body"))
		return
	}
	outcome, err := h.svc.VerifyOTP(r.Context(), tenantSlug, siteSlug, service.VerifyOTPParams{
		SessionID: req.PortalSessionID,
		Email:     req.Email,
		Code:      req.Code,
		IP:        clientIP(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(authorizedResponse{
		Authorized:      true,
		ContinuationURL: outcome.ContinuationURL,
	}))
}

type tosAcceptRequest struct {
	PortalSessionID string `json:"portal_session_id"`
}

func (h *GuestHandler) tosAccept(w http.ResponseWriter, r *http.Request, tenantSlug, siteSlug string) {
	var req tosAcceptRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("INVALID_BODY", "malformed request body"))
		return
	}
	outcome, err := h.svc.AcceptTos(r.Context(), tenantSlug, siteSlug, service.AcceptTosParams{
		SessionID: req.PortalSessionID,
		IP:        clientIP(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(authorizedResponse{
		Authorized:      true,
		ContinuationURL: outcome.ContinuationURL,
	}))
}
