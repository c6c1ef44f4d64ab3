package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"redux-portal/internal/domain"
	"redux-portal/internal/notify"
	"redux-portal/internal/oidcflow"
	"redux-portal/internal/otp"
	"redux-portal/internal/ratelimit"
	"redux-portal/internal/repository"
	"redux-portal/internal/service"
	"redux-portal/internal/session"
	"redux-portal/internal/store"
	"redux-portal/internal/unifi"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubController struct {
	client *unifi.WifiClient
}

func (c *stubController) FindClientByMAC(context.Context, string) (*unifi.WifiClient, error) {
	return c.client, nil
}

func (c *stubController) AuthorizeGuest(context.Context, string, domain.Policy) error {
	return nil
}

type sinkSender struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (s *sinkSender) Send(m notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

type handlerEnv struct {
	router   *Router
	site     *domain.Site
	sites    *repository.MemorySitesRepo
	vouchers *repository.MemoryVouchersRepo
	oidc     *repository.MemoryOidcRepo
	states   *oidcflow.StateStore
}

func newHandlerEnv(t *testing.T, exchanger oidcflow.Exchanger) *handlerEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	kv := store.NewRedisKV(client)
	logger := zap.NewNop()

	env := &handlerEnv{
		sites:    repository.NewMemorySitesRepo(),
		vouchers: repository.NewMemoryVouchersRepo(),
		oidc:     repository.NewMemoryOidcRepo(),
	}
	sessionRepo := repository.NewMemorySessionsRepo()
	identities := repository.NewMemoryIdentitiesRepo()
	events := repository.NewMemoryAuthEventsRepo()
	sessions := session.NewStore(kv, sessionRepo, session.DefaultTTL, logger)
	env.states = oidcflow.NewStateStore(kv, oidcflow.DefaultStateTTL)

	mailer := notify.NewDispatcher(&sinkSender{}, 16, logger)
	t.Cleanup(mailer.Close)

	factory := service.ControllerFactory(func(_ *domain.Site) service.Controller {
		return &stubController{client: &unifi.WifiClient{ID: "ctl-1"}}
	})
	auth := service.NewAuthorizer(sessions, events, factory, "https://portal.example.com/welcome", logger)

	limits := service.RateLimits{
		Window:          time.Minute,
		VoucherPerIP:    100,
		VoucherPerMAC:   100,
		OtpStartPerIP:   100,
		OtpStartPerMAC:  100,
		OtpVerifyPerIP:  100,
		OtpVerifyPerMAC: 100,
	}
	guest := service.NewGuestService(
		env.sites, sessions, sessionRepo, env.vouchers, identities, env.oidc,
		ratelimit.NewLimiter(kv, logger),
		otp.NewEngine(kv, "test-secret", otp.DefaultTTL, otp.DefaultMaxAttempts, logger),
		mailer, auth, limits, logger,
	)
	oidcSvc := service.NewOidcService(
		env.sites, sessionRepo, env.oidc, identities, events,
		env.states, exchanger, auth, "https://portal.example.com", logger,
	)

	env.router = NewRouter(logger)
	env.router.RegisterHealthRoutes(NewHealthHandler(nil, nil, logger))
	env.router.RegisterGuestRoutes(NewGuestHandler(guest, logger))
	env.router.RegisterOidcRoutes(NewOidcHandler(oidcSvc, logger))

	env.site = &domain.Site{
		TenantID:      "11111111-1111-1111-1111-111111111111",
		Slug:          "lobby",
		DisplayName:   "Lobby WiFi",
		Enabled:       true,
		UnifiBaseURL:  "https://unifi.local",
		UnifiSiteID:   "default",
		DefaultPolicy: domain.Policy{TimeLimitMinutes: 120},
		TenantSlug:    "demo",
		TenantStatus:  domain.TenantStatusActive,
	}
	env.sites.AddSite(env.site)
	return env
}

func (e *handlerEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.9:52110"
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *handlerEnv) doRaw(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.9:52110"
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *ErrorBody      `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

// initSession runs session/init over HTTP and returns the session id.
func (e *handlerEnv) initSession(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/guest/demo/lobby/session/init", map[string]string{
		"id":   "aa:bb:cc:dd:ee:ff",
		"ssid": "Guest",
		"url":  "http://connectivity.example.com/check",
	})
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	require.True(t, env.OK)
	var resp struct {
		PortalSessionID string `json:"portal_session_id"`
		Status          string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.NotEmpty(t, resp.PortalSessionID)
	return resp.PortalSessionID
}

func (e *handlerEnv) addVoucher(t *testing.T, code string, maxUses int) {
	t.Helper()
	batch := &domain.VoucherBatch{
		TenantID:       e.site.TenantID,
		SiteID:         e.site.ID,
		Name:           "test",
		MaxUsesPerCode: maxUses,
	}
	require.NoError(t, e.vouchers.CreateBatch(context.Background(), batch))
	require.NoError(t, e.vouchers.CreateVoucher(context.Background(), &domain.Voucher{
		BatchID: batch.ID,
		Code:    code,
	}))
}
