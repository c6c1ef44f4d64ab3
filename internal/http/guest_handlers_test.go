package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuestConfig(t *testing.T) {
	env := newHandlerEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/guest/demo/lobby/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	resp := decodeEnvelope(t, w)
	require.True(t, resp.OK)
	var payload struct {
		TenantSlug  string   `json:"tenant_slug"`
		SiteSlug    string   `json:"site_slug"`
		DisplayName string   `json:"display_name"`
		Methods     []string `json:"methods"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &payload))
	require.Equal(t, "demo", payload.TenantSlug)
	require.Equal(t, "lobby", payload.SiteSlug)
	require.Equal(t, "Lobby WiFi", payload.DisplayName)
	require.Contains(t, payload.Methods, "voucher")
	require.Contains(t, payload.Methods, "email_otp")
}

func TestGuestConfigUnknownSite(t *testing.T) {
	env := newHandlerEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/guest/demo/garage/config", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeEnvelope(t, w)
	require.False(t, resp.OK)
	require.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestGuestRouteDispatch(t *testing.T) {
	env := newHandlerEnv(t, nil)

	// Known op, wrong method.
	w := env.do(t, http.MethodPost, "/api/guest/demo/lobby/config", nil)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = env.do(t, http.MethodGet, "/api/guest/demo/lobby/voucher", nil)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)

	// Unknown op.
	w = env.do(t, http.MethodPost, "/api/guest/demo/lobby/frobnicate", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "NOT_FOUND", decodeEnvelope(t, w).Error.Code)

	// Missing slugs.
	w = env.do(t, http.MethodGet, "/api/guest/demo", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionInit(t *testing.T) {
	env := newHandlerEnv(t, nil)

	id := env.initSession(t)

	// The same client re-hitting the portal reuses the session.
	w := env.do(t, http.MethodPost, "/api/guest/demo/lobby/session/init", map[string]string{
		"id": "AA-BB-CC-DD-EE-FF",
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w)
	var again struct {
		PortalSessionID string `json:"portal_session_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &again))
	require.Equal(t, id, again.PortalSessionID)
}

func TestSessionInitBadMAC(t *testing.T) {
	env := newHandlerEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/guest/demo/lobby/session/init", map[string]string{
		"id": "not-a-mac",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "INVALID_MAC", decodeEnvelope(t, w).Error.Code)
}

func TestSessionInitMalformedBody(t *testing.T) {
	env := newHandlerEnv(t, nil)

	w := env.doRaw(t, http.MethodPost, "/api/guest/demo/lobby/session/init", "{not json")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "INVALID_BODY", decodeEnvelope(t, w).Error.Code)
}

func TestVoucherSubmit(t *testing.T) {
	env := newHandlerEnv(t, nil)
	env.addVoucher(t, "ABC123", 1)
	id := env.initSession(t)

	w := env.do(t, http.MethodPost, "/api/guest/demo/lobby/voucher", map[string]string{
		"portal_session_id": id,
		"code":              "abc123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w)
	require.True(t, resp.OK)
	var out struct {
		Authorized      bool   `json:"authorized"`
		ContinuationURL string `json:"continuation_url"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	require.True(t, out.Authorized)
	require.Equal(t, "http://connectivity.example.com/check", out.ContinuationURL)

	// Single-use voucher: the second submit maps to a conflict.
	w = env.do(t, http.MethodPost, "/api/guest/demo/lobby/voucher", map[string]string{
		"portal_session_id": id,
		"code":              "ABC123",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	resp = decodeEnvelope(t, w)
	require.False(t, resp.OK)
	require.Equal(t, "VOUCHER_EXHAUSTED", resp.Error.Code)
	require.NotEmpty(t, resp.Error.Message)
}

func TestVoucherMalformedSessionID(t *testing.T) {
	env := newHandlerEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/guest/demo/lobby/voucher", map[string]string{
		"portal_session_id": "abc",
		"code":              "ABC123",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "INVALID_SESSION", decodeEnvelope(t, w).Error.Code)
}

func TestVoucherUnknownCode(t *testing.T) {
	env := newHandlerEnv(t, nil)
	id := env.initSession(t)

	w := env.do(t, http.MethodPost, "/api/guest/demo/lobby/voucher", map[string]string{
		"portal_session_id": id,
		"code":              "NOPE99",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "VOUCHER_NOT_FOUND", decodeEnvelope(t, w).Error.Code)
}

func TestOtpStart(t *testing.T) {
	env := newHandlerEnv(t, nil)
	id := env.initSession(t)

	w := env.do(t, http.MethodPost, "/api/guest/demo/lobby/otp/start", map[string]string{
		"portal_session_id": id,
		"email":             "guest@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w)
	require.True(t, resp.OK)
	require.True(t, strings.Contains(string(resp.Data), `"sent"`))
}

func TestOtpStartBadEmail(t *testing.T) {
	env := newHandlerEnv(t, nil)
	id := env.initSession(t)

	w := env.do(t, http.MethodPost, "/api/guest/demo/lobby/otp/start", map[string]string{
		"portal_session_id": id,
		"email":             "not-an-address",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "INVALID_EMAIL", decodeEnvelope(t, w).Error.Code)
}

func TestTosAcceptDisabled(t *testing.T) {
	env := newHandlerEnv(t, nil)
	id := env.initSession(t)

	w := env.do(t, http.MethodPost, "/api/guest/demo/lobby/tos/accept", map[string]string{
		"portal_session_id": id,
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "TOS_ONLY_DISABLED", decodeEnvelope(t, w).Error.Code)
}

func TestTosAcceptEnabled(t *testing.T) {
	env := newHandlerEnv(t, nil)
	env.site.EnableTosOnly = true
	env.sites.AddSite(env.site)
	id := env.initSession(t)

	w := env.do(t, http.MethodPost, "/api/guest/demo/lobby/tos/accept", map[string]string{
		"portal_session_id": id,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, decodeEnvelope(t, w).OK)
}
