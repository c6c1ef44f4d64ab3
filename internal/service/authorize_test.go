package service

import (
	"context"
	"testing"

	"redux-portal/internal/domain"
	"redux-portal/internal/unifi"

	"github.com/stretchr/testify/require"
)

func TestAuthorizeSuccess(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	ctx := context.Background()
	sess := env.newSession(t, "http://example.com/landing")

	outcome, err := env.auth.Authorize(ctx, env.site, sess, TosProof{})
	require.NoError(t, err)
	require.True(t, outcome.Authorized)
	require.Equal(t, "ctl-1", outcome.UnifiClientID)
	require.Equal(t, "http://example.com/landing", outcome.ContinuationURL)

	row, err := env.sessionRepo.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionAuthorized, row.Status)

	events := env.eventsBySite(t)
	require.Len(t, events, 1)
	require.Equal(t, domain.ResultSuccess, events[0].Result)
	require.Equal(t, domain.MethodTosOnly, events[0].Method)
	require.Equal(t, "ctl-1", events[0].UnifiClientID)
	require.Equal(t, sess.ID, events[0].PortalSessionID)
}

func TestAuthorizeClientNotFound(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	env.controller.client = nil
	ctx := context.Background()
	sess := env.newSession(t, "")

	outcome, err := env.auth.Authorize(ctx, env.site, sess, TosProof{})
	require.NoError(t, err)
	require.False(t, outcome.Authorized)
	require.Equal(t, domain.ReasonClientNotFound, outcome.Reason)

	row, err := env.sessionRepo.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionFailed, row.Status)

	events := env.eventsBySite(t)
	require.Len(t, events, 1)
	require.Equal(t, domain.ResultFail, events[0].Result)
	require.Equal(t, domain.ReasonClientNotFound, events[0].Reason)
}

func TestAuthorizeControllerError(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	env.controller.authErr = unifi.ErrController
	ctx := context.Background()
	sess := env.newSession(t, "")

	outcome, err := env.auth.Authorize(ctx, env.site, sess, VoucherProof{RedemptionID: "r1"})
	require.NoError(t, err)
	require.False(t, outcome.Authorized)
	require.Equal(t, domain.ReasonUnifiError, outcome.Reason)

	events := env.eventsBySite(t)
	require.Len(t, events, 1)
	require.Equal(t, domain.MethodVoucher, events[0].Method)
	require.Equal(t, domain.ReasonUnifiError, events[0].Reason)
}

func TestAuthorizeIdentityOnEvent(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	ctx := context.Background()
	sess := env.newSession(t, "")

	identity, err := env.identities.UpsertEmail(ctx, env.site.TenantID, "guest@example.com")
	require.NoError(t, err)

	outcome, err := env.auth.Authorize(ctx, env.site, sess, OtpProof{Identity: identity})
	require.NoError(t, err)
	require.True(t, outcome.Authorized)

	events := env.eventsBySite(t)
	require.Len(t, events, 1)
	require.Equal(t, identity.ID, events[0].GuestIdentityID)
	require.Equal(t, domain.MethodEmailOTP, events[0].Method)
}

func TestContinuationURLFallbacks(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	ctx := context.Background()

	// No original URL: the site success URL wins.
	sess := env.newSession(t, "")
	outcome, err := env.auth.Authorize(ctx, env.site, sess, TosProof{})
	require.NoError(t, err)
	require.Equal(t, "https://example.com/success", outcome.ContinuationURL)

	// No site success URL either: platform default.
	env.site.SuccessURL = ""
	env.sites.AddSite(env.site)
	outcome, err = env.auth.Authorize(ctx, env.site, sess, TosProof{})
	require.NoError(t, err)
	require.Equal(t, "https://portal.example.com/welcome", outcome.ContinuationURL)
}

func TestFailedSessionCanRetryToAuthorized(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	ctx := context.Background()
	sess := env.newSession(t, "")

	env.controller.client = nil
	outcome, err := env.auth.Authorize(ctx, env.site, sess, TosProof{})
	require.NoError(t, err)
	require.False(t, outcome.Authorized)

	env.controller.client = &unifi.WifiClient{ID: "ctl-2", MacAddress: sess.ClientMAC}
	outcome, err = env.auth.Authorize(ctx, env.site, sess, TosProof{})
	require.NoError(t, err)
	require.True(t, outcome.Authorized)

	row, err := env.sessionRepo.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionAuthorized, row.Status)
	require.Len(t, env.eventsBySite(t), 2)
}
