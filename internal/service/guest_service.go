package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"redux-portal/internal/domain"
	"redux-portal/internal/netid"
	"redux-portal/internal/notify"
	"redux-portal/internal/otp"
	"redux-portal/internal/ratelimit"
	"redux-portal/internal/repository"
	"redux-portal/internal/session"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RateLimits holds the per-route fixed-window budgets. IP and device
// scopes are enforced independently; both must pass.
type RateLimits struct {
	Window          time.Duration
	VoucherPerIP    int
	VoucherPerMAC   int
	OtpStartPerIP   int
	OtpStartPerMAC  int
	OtpVerifyPerIP  int
	OtpVerifyPerMAC int
}

// GuestService carries the guest-facing flows: site config, session
// init, voucher redemption, OTP start/verify and ToS-only accept.
type GuestService struct {
	sites       repository.SitesRepo
	sessions    *session.Store
	sessionRepo repository.SessionsRepo
	vouchers    repository.VouchersRepo
	identities  repository.IdentitiesRepo
	oidc        repository.OidcRepo
	limiter     *ratelimit.Limiter
	otp         *otp.Engine
	mail        *notify.Dispatcher
	auth        *Authorizer
	limits      RateLimits
	logger      *zap.Logger
}

func NewGuestService(
	sites repository.SitesRepo,
	sessions *session.Store,
	sessionRepo repository.SessionsRepo,
	vouchers repository.VouchersRepo,
	identities repository.IdentitiesRepo,
	oidc repository.OidcRepo,
	limiter *ratelimit.Limiter,
	otpEngine *otp.Engine,
	mailer *notify.Dispatcher,
	auth *Authorizer,
	limits RateLimits,
	logger *zap.Logger,
) *GuestService {
	return &GuestService{
		sites:       sites,
		sessions:    sessions,
		sessionRepo: sessionRepo,
		vouchers:    vouchers,
		identities:  identities,
		oidc:        oidc,
		limiter:     limiter,
		otp:         otpEngine,
		mail:        mailer,
		auth:        auth,
		limits:      limits,
		logger:      logger,
	}
}

// loadSite resolves the slugs to an enabled site of an active tenant.
// Disabled sites and suspended tenants are indistinguishable from
// unknown ones to the guest.
func (g *GuestService) loadSite(ctx context.Context, tenantSlug, siteSlug string) (*domain.Site, error) {
	site, err := g.sites.GetSiteBySlugs(ctx, tenantSlug, siteSlug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errNotFound("unknown portal")
		}
		return nil, err
	}
	if !site.Enabled || site.TenantStatus != domain.TenantStatusActive {
		return nil, errNotFound("unknown portal")
	}
	return site, nil
}

func (g *GuestService) loadSession(ctx context.Context, site *domain.Site, sessionID string) (*domain.PortalSession, error) {
	if sessionID == "" {
		return nil, errBadRequest(domain.ReasonInvalidSession, "portal_session_id is required")
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, errBadRequest(domain.ReasonInvalidSession, "malformed portal_session_id")
	}
	sess, err := g.sessionRepo.GetBySiteAndID(ctx, site.ID, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &Error{Status: http.StatusNotFound, Code: domain.ReasonInvalidSession, Message: "unknown portal session"}
		}
		return nil, err
	}
	return sess, nil
}

// gate enforces the IP-scoped and device-scoped budgets for a route.
func (g *GuestService) gate(ctx context.Context, route, ip, siteID, clientMAC string, perIP, perMAC int) error {
	if ip != "" {
		ok, err := g.limiter.Allow(ctx, ratelimit.IPKey(route, ip), perIP, g.limits.Window)
		if err != nil {
			return err
		}
		if !ok {
			return errRateLimited()
		}
	}
	ok, err := g.limiter.Allow(ctx, ratelimit.MACKey(route, siteID, clientMAC), perMAC, g.limits.Window)
	if err != nil {
		return err
	}
	if !ok {
		return errRateLimited()
	}
	return nil
}

// SiteConfigPayload is the branding/config blob the portal page loads
// before rendering.
type SiteConfigPayload struct {
	TenantSlug     string        `json:"tenant_slug"`
	SiteSlug       string        `json:"site_slug"`
	DisplayName    string        `json:"display_name"`
	LogoURL        string        `json:"logo_url,omitempty"`
	PrimaryColor   string        `json:"primary_color,omitempty"`
	TermsHTML      string        `json:"terms_html,omitempty"`
	SupportContact string        `json:"support_contact,omitempty"`
	Methods        []string      `json:"methods"`
	DefaultPolicy  domain.Policy `json:"default_policy"`
}

func (g *GuestService) SiteConfig(ctx context.Context, tenantSlug, siteSlug string) (*SiteConfigPayload, error) {
	site, err := g.loadSite(ctx, tenantSlug, siteSlug)
	if err != nil {
		return nil, err
	}

	methods := []string{"voucher", "email_otp"}
	if _, _, err := g.oidc.GetEnabledSetting(ctx, site.ID); err == nil {
		methods = append(methods, "oidc")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if site.EnableTosOnly {
		methods = append(methods, "tos")
	}

	return &SiteConfigPayload{
		TenantSlug:     site.TenantSlug,
		SiteSlug:       site.Slug,
		DisplayName:    site.DisplayName,
		LogoURL:        site.LogoURL,
		PrimaryColor:   site.PrimaryColor,
		TermsHTML:      site.TermsHTML,
		SupportContact: site.SupportContact,
		Methods:        methods,
		DefaultPolicy:  site.DefaultPolicy,
	}, nil
}

// InitParams are the access-point redirect parameters.
type InitParams struct {
	ClientMAC string
	APMAC     string
	SSID      string
	OrigURL   string
	IP        string
	UserAgent string
}

func (g *GuestService) InitSession(ctx context.Context, tenantSlug, siteSlug string, p InitParams) (*domain.PortalSession, error) {
	site, err := g.loadSite(ctx, tenantSlug, siteSlug)
	if err != nil {
		return nil, err
	}
	sess, err := g.sessions.CreateOrReuse(ctx, session.CreateParams{
		TenantID:  site.TenantID,
		SiteID:    site.ID,
		ClientMAC: p.ClientMAC,
		APMAC:     p.APMAC,
		SSID:      p.SSID,
		OrigURL:   p.OrigURL,
		IP:        p.IP,
		UserAgent: p.UserAgent,
	})
	if err != nil {
		if errors.Is(err, netid.ErrInvalidMAC) {
			return nil, errBadRequest(domain.ReasonInvalidMAC, "client MAC address is malformed")
		}
		return nil, err
	}
	return sess, nil
}

// SubmitVoucherParams carries one voucher attempt.
type SubmitVoucherParams struct {
	SessionID string
	Code      string
	IP        string
}

func (g *GuestService) SubmitVoucher(ctx context.Context, tenantSlug, siteSlug string, p SubmitVoucherParams) (*Outcome, error) {
	site, err := g.loadSite(ctx, tenantSlug, siteSlug)
	if err != nil {
		return nil, err
	}
	sess, err := g.loadSession(ctx, site, p.SessionID)
	if err != nil {
		return nil, err
	}
	if err := g.gate(ctx, "voucher", p.IP, site.ID, sess.ClientMAC, g.limits.VoucherPerIP, g.limits.VoucherPerMAC); err != nil {
		return nil, err
	}

	code := strings.ToUpper(strings.TrimSpace(p.Code))
	if code == "" {
		return nil, errFromReason(domain.ReasonVoucherNotFound, reasonMessage(domain.ReasonVoucherNotFound))
	}

	redemption, reason, err := g.vouchers.Redeem(ctx, repository.RedeemParams{
		TenantID:        site.TenantID,
		SiteID:          site.ID,
		PortalSessionID: sess.ID,
		Code:            code,
		ClientMAC:       sess.ClientMAC,
	})
	if err != nil {
		return nil, fmt.Errorf("voucher redemption failed: %w", err)
	}
	if reason != domain.ReasonNone {
		if err := g.auth.RecordFailure(ctx, site, sess, domain.MethodVoucher, "", reason); err != nil {
			return nil, err
		}
		return nil, errFromReason(reason, reasonMessage(reason))
	}

	outcome, err := g.auth.Authorize(ctx, site, sess, VoucherProof{RedemptionID: redemption.ID})
	if err != nil {
		return nil, err
	}
	if !outcome.Authorized {
		return nil, errFromReason(outcome.Reason, reasonMessage(outcome.Reason))
	}
	return outcome, nil
}

// StartOTPParams carries one challenge request.
type StartOTPParams struct {
	SessionID string
	Email     string
	IP        string
}

// StartOTP issues a challenge and queues the code mail. The response
// carries no hint whether the address is known; the code is the only
// proof channel.
func (g *GuestService) StartOTP(ctx context.Context, tenantSlug, siteSlug string, p StartOTPParams) error {
	site, err := g.loadSite(ctx, tenantSlug, siteSlug)
	if err != nil {
		return err
	}
	sess, err := g.loadSession(ctx, site, p.SessionID)
	if err != nil {
		return err
	}
	if err := g.gate(ctx, "otp_start", p.IP, site.ID, sess.ClientMAC, g.limits.OtpStartPerIP, g.limits.OtpStartPerMAC); err != nil {
		return err
	}

	email := strings.TrimSpace(p.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return errBadRequest(domain.ReasonInvalidEmail, "email address is malformed")
	}

	code, err := g.otp.Start(ctx, site.ID, sess.ClientMAC, email)
	if err != nil {
		return err
	}
	g.mail.EnqueueOTP(email, code, site.DisplayName)

	g.logger.Info("otp challenge issued",
		zap.String("site_id", site.ID),
		zap.String("client_mac", sess.ClientMAC),
	)
	return nil
}

// VerifyOTPParams carries one code submission.
type VerifyOTPParams struct {
	SessionID string
	Email     string
	Code      string
	IP        string
}

func (g *GuestService) VerifyOTP(ctx context.Context, tenantSlug, siteSlug string, p VerifyOTPParams) (*Outcome, error) {
	site, err := g.loadSite(ctx, tenantSlug, siteSlug)
	if err != nil {
		return nil, err
	}
	sess, err := g.loadSession(ctx, site, p.SessionID)
	if err != nil {
		return nil, err
	}
	if err := g.gate(ctx, "otp_verify", p.IP, site.ID, sess.ClientMAC, g.limits.OtpVerifyPerIP, g.limits.OtpVerifyPerMAC); err != nil {
		return nil, err
	}

	ok, reason, err := g.otp.Verify(ctx, site.ID, sess.ClientMAC, p.Email, p.Code)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := g.auth.RecordFailure(ctx, site, sess, domain.MethodEmailOTP, "", reason); err != nil {
			return nil, err
		}
		return nil, errFromReason(reason, reasonMessage(reason))
	}

	identity, err := g.identities.UpsertEmail(ctx, site.TenantID, strings.ToLower(strings.TrimSpace(p.Email)))
	if err != nil {
		return nil, err
	}

	outcome, err := g.auth.Authorize(ctx, site, sess, OtpProof{Identity: identity})
	if err != nil {
		return nil, err
	}
	if !outcome.Authorized {
		return nil, errFromReason(outcome.Reason, reasonMessage(outcome.Reason))
	}
	return outcome, nil
}

// AcceptTosParams carries one terms-only acceptance.
type AcceptTosParams struct {
	SessionID string
	IP        string
}

// AcceptTos authorizes with no identity proof. Re-submitting for an
// already-AUTHORIZED session is a no-op success with no new audit
// event.
func (g *GuestService) AcceptTos(ctx context.Context, tenantSlug, siteSlug string, p AcceptTosParams) (*Outcome, error) {
	site, err := g.loadSite(ctx, tenantSlug, siteSlug)
	if err != nil {
		return nil, err
	}
	if !site.EnableTosOnly {
		return nil, errFromReason(domain.ReasonTosOnlyDisabled, reasonMessage(domain.ReasonTosOnlyDisabled))
	}
	sess, err := g.loadSession(ctx, site, p.SessionID)
	if err != nil {
		return nil, err
	}
	if err := g.gate(ctx, "voucher", p.IP, site.ID, sess.ClientMAC, g.limits.VoucherPerIP, g.limits.VoucherPerMAC); err != nil {
		return nil, err
	}

	if sess.Status == domain.SessionAuthorized {
		return &Outcome{
			Authorized:      true,
			ContinuationURL: g.auth.continuationURL(site, sess),
		}, nil
	}

	outcome, err := g.auth.Authorize(ctx, site, sess, TosProof{})
	if err != nil {
		return nil, err
	}
	if !outcome.Authorized {
		return nil, errFromReason(outcome.Reason, reasonMessage(outcome.Reason))
	}
	return outcome, nil
}
