package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"redux-portal/internal/domain"
	"redux-portal/internal/notify"
	"redux-portal/internal/oidcflow"
	"redux-portal/internal/otp"
	"redux-portal/internal/ratelimit"
	"redux-portal/internal/repository"
	"redux-portal/internal/session"
	"redux-portal/internal/store"
	"redux-portal/internal/unifi"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeController scripts the network controller for tests.
type fakeController struct {
	mu         sync.Mutex
	client     *unifi.WifiClient
	findErr    error
	authErr    error
	authorized []string
}

func (f *fakeController) FindClientByMAC(_ context.Context, mac string) (*unifi.WifiClient, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.client, nil
}

func (f *fakeController) AuthorizeGuest(_ context.Context, clientID string, _ domain.Policy) error {
	if f.authErr != nil {
		return f.authErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authorized = append(f.authorized, clientID)
	return nil
}

// captureMail records queued messages for assertion.
type captureMail struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (c *captureMail) Send(msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureMail) messages() []notify.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notify.Message, len(c.sent))
	copy(out, c.sent)
	return out
}

// testEnv wires the full service stack over memory repos, miniredis
// and a scripted controller.
type testEnv struct {
	sites       *repository.MemorySitesRepo
	sessionRepo *repository.MemorySessionsRepo
	vouchers    *repository.MemoryVouchersRepo
	identities  *repository.MemoryIdentitiesRepo
	events      *repository.MemoryAuthEventsRepo
	oidc        *repository.MemoryOidcRepo
	sessions    *session.Store
	controller  *fakeController
	mail        *captureMail
	mailer      *notify.Dispatcher
	states      *oidcflow.StateStore
	auth        *Authorizer
	guest       *GuestService
	mr          *miniredis.Miniredis
	site        *domain.Site
}

func defaultLimits() RateLimits {
	return RateLimits{
		Window:          time.Minute,
		VoucherPerIP:    100,
		VoucherPerMAC:   100,
		OtpStartPerIP:   100,
		OtpStartPerMAC:  100,
		OtpVerifyPerIP:  100,
		OtpVerifyPerMAC: 100,
	}
}

func newTestEnv(t *testing.T, limits RateLimits) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	kv := store.NewRedisKV(client)
	logger := zap.NewNop()

	env := &testEnv{
		sites:       repository.NewMemorySitesRepo(),
		sessionRepo: repository.NewMemorySessionsRepo(),
		vouchers:    repository.NewMemoryVouchersRepo(),
		identities:  repository.NewMemoryIdentitiesRepo(),
		events:      repository.NewMemoryAuthEventsRepo(),
		oidc:        repository.NewMemoryOidcRepo(),
		controller:  &fakeController{client: &unifi.WifiClient{ID: "ctl-1", MacAddress: "AA:BB:CC:DD:EE:FF"}},
		mail:        &captureMail{},
		mr:          mr,
	}
	env.sessions = session.NewStore(kv, env.sessionRepo, session.DefaultTTL, logger)
	env.mailer = notify.NewDispatcher(env.mail, 16, logger)
	t.Cleanup(env.mailer.Close)
	env.states = oidcflow.NewStateStore(kv, oidcflow.DefaultStateTTL)

	factory := ControllerFactory(func(_ *domain.Site) Controller { return env.controller })
	env.auth = NewAuthorizer(env.sessions, env.events, factory, "https://portal.example.com/welcome", logger)

	limiter := ratelimit.NewLimiter(kv, logger)
	otpEngine := otp.NewEngine(kv, "test-secret", otp.DefaultTTL, otp.DefaultMaxAttempts, logger)
	env.guest = NewGuestService(
		env.sites, env.sessions, env.sessionRepo, env.vouchers, env.identities, env.oidc,
		limiter, otpEngine, env.mailer, env.auth, limits, logger,
	)

	env.site = &domain.Site{
		TenantID:      "11111111-1111-1111-1111-111111111111",
		Slug:          "lobby",
		DisplayName:   "Lobby WiFi",
		Enabled:       true,
		UnifiBaseURL:  "https://unifi.local",
		UnifiSiteID:   "default",
		DefaultPolicy: domain.Policy{TimeLimitMinutes: 120},
		SuccessURL:    "https://example.com/success",
		TenantSlug:    "demo",
		TenantStatus:  domain.TenantStatusActive,
	}
	env.sites.AddSite(env.site)
	return env
}

func (e *testEnv) newSession(t *testing.T, origURL string) *domain.PortalSession {
	t.Helper()
	sess, err := e.guest.InitSession(context.Background(), "demo", "lobby", InitParams{
		ClientMAC: "aa:bb:cc:dd:ee:ff",
		SSID:      "Guest",
		OrigURL:   origURL,
		IP:        "203.0.113.9",
	})
	require.NoError(t, err)
	return sess
}

func (e *testEnv) addVoucher(t *testing.T, code string, maxUses int) {
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

func (e *testEnv) eventsBySite(t *testing.T) []*domain.AuthEvent {
	t.Helper()
	events, err := e.events.ListBySite(context.Background(), e.site.ID, 100)
	require.NoError(t, err)
	return events
}
