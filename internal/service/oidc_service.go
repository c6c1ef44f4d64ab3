package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"redux-portal/internal/domain"
	"redux-portal/internal/oidcflow"
	"redux-portal/internal/repository"
	"redux-portal/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OidcService drives the browser-navigated federated sign-in legs.
// Both legs answer with a redirect URL, never a JSON error: failures
// send the guest back to the portal page with an error code in the
// query string.
type OidcService struct {
	sites       repository.SitesRepo
	sessionRepo repository.SessionsRepo
	oidc        repository.OidcRepo
	identities  repository.IdentitiesRepo
	events      repository.AuthEventsRepo
	states      *oidcflow.StateStore
	exchanger   oidcflow.Exchanger
	auth        *Authorizer
	baseURL     string
	logger      *zap.Logger
}

func NewOidcService(
	sites repository.SitesRepo,
	sessionRepo repository.SessionsRepo,
	oidc repository.OidcRepo,
	identities repository.IdentitiesRepo,
	events repository.AuthEventsRepo,
	states *oidcflow.StateStore,
	exchanger oidcflow.Exchanger,
	auth *Authorizer,
	baseURL string,
	logger *zap.Logger,
) *OidcService {
	return &OidcService{
		sites:       sites,
		sessionRepo: sessionRepo,
		oidc:        oidc,
		identities:  identities,
		events:      events,
		states:      states,
		exchanger:   exchanger,
		auth:        auth,
		baseURL:     strings.TrimRight(baseURL, "/"),
		logger:      logger,
	}
}

// portalURL is where both legs send the browser back to: the portal
// page for the site, carrying the session id and an error code on
// failure.
func (s *OidcService) portalURL(tenantSlug, siteSlug, sessionID string, reason domain.Reason) string {
	q := url.Values{}
	if sessionID != "" {
		q.Set("portal_session_id", sessionID)
	}
	if reason != domain.ReasonNone {
		q.Set("error", string(reason))
	}
	u := fmt.Sprintf("%s/guest/s/%s/%s/", s.baseURL, tenantSlug, siteSlug)
	if encoded := q.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

func (s *OidcService) callbackURL(tenantSlug, siteSlug string) string {
	return fmt.Sprintf("%s/api/oidc/callback/%s/%s", s.baseURL, tenantSlug, siteSlug)
}

// appendFailEvent records a FAIL event for failures with no resolved
// portal session (bad state token, provider error before correlation).
func (s *OidcService) appendFailEvent(ctx context.Context, site *domain.Site, sessionID string, reason domain.Reason) {
	if err := s.events.Append(ctx, &domain.AuthEvent{
		TenantID:        site.TenantID,
		SiteID:          site.ID,
		PortalSessionID: sessionID,
		Method:          domain.MethodOIDC,
		Result:          domain.ResultFail,
		Reason:          reason,
	}); err != nil {
		s.logger.Error("audit append failed",
			zap.String("site_id", site.ID),
			zap.Error(err),
		)
	}
}

// Start begins the redirect flow for a session. The returned URL is
// either the provider's authorization endpoint or the portal page
// with an error code.
func (s *OidcService) Start(ctx context.Context, tenantSlug, siteSlug, sessionID string) (string, error) {
	site, err := s.sites.GetSiteBySlugs(ctx, tenantSlug, siteSlug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.portalURL(tenantSlug, siteSlug, sessionID, domain.ReasonNotFound), nil
		}
		return "", err
	}
	if !site.Enabled || site.TenantStatus != domain.TenantStatusActive {
		return s.portalURL(tenantSlug, siteSlug, sessionID, domain.ReasonNotFound), nil
	}

	if _, err := uuid.Parse(sessionID); err != nil {
		return s.portalURL(tenantSlug, siteSlug, "", domain.ReasonInvalidSession), nil
	}
	sess, err := s.sessionRepo.GetBySiteAndID(ctx, site.ID, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.portalURL(tenantSlug, siteSlug, sessionID, domain.ReasonInvalidSession), nil
		}
		return "", err
	}

	_, provider, err := s.oidc.GetEnabledSetting(ctx, site.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.appendFailEvent(ctx, site, sess.ID, domain.ReasonOidcDisabled)
			return s.portalURL(tenantSlug, siteSlug, sessionID, domain.ReasonOidcDisabled), nil
		}
		return "", err
	}

	stateToken, err := oidcflow.GenerateStateToken(sess.ID)
	if err != nil {
		return "", err
	}
	nonce, err := oidcflow.NewNonce()
	if err != nil {
		return "", err
	}

	begin, reason, err := s.exchanger.Begin(ctx, provider, s.callbackURL(tenantSlug, siteSlug), stateToken, nonce)
	if err != nil {
		return "", err
	}
	if reason != domain.ReasonNone {
		s.appendFailEvent(ctx, site, sess.ID, reason)
		return s.portalURL(tenantSlug, siteSlug, sessionID, reason), nil
	}

	if err := s.states.Put(ctx, sess.ID, oidcflow.State{
		State:        stateToken,
		Nonce:        nonce,
		CodeVerifier: begin.CodeVerifier,
		ProviderID:   provider.ID,
	}); err != nil {
		return "", err
	}

	return begin.AuthURL, nil
}

// CallbackParams are the provider's redirect query parameters.
type CallbackParams struct {
	State         string
	Code          string
	ProviderError string
}

// Callback completes the flow. It always returns a portal redirect
// URL; every failure path also leaves a FAIL audit event.
func (s *OidcService) Callback(ctx context.Context, tenantSlug, siteSlug string, p CallbackParams) (string, error) {
	site, err := s.sites.GetSiteBySlugs(ctx, tenantSlug, siteSlug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.portalURL(tenantSlug, siteSlug, "", domain.ReasonNotFound), nil
		}
		return "", err
	}
	if !site.Enabled || site.TenantStatus != domain.TenantStatusActive {
		return s.portalURL(tenantSlug, siteSlug, "", domain.ReasonNotFound), nil
	}

	// Best-effort session correlation for audit rows; the state
	// checks below decide whether the flow is actually valid.
	sessionID, parseErr := oidcflow.ParseSessionFromState(p.State)

	if p.ProviderError != "" {
		s.logger.Warn("provider returned error",
			zap.String("site_id", site.ID),
			zap.String("provider_error", p.ProviderError),
		)
		s.appendFailEvent(ctx, site, sessionID, domain.ReasonOidcProviderError)
		return s.portalURL(tenantSlug, siteSlug, sessionID, domain.ReasonOidcProviderError), nil
	}

	if parseErr != nil {
		s.appendFailEvent(ctx, site, "", domain.ReasonOidcStateInvalid)
		return s.portalURL(tenantSlug, siteSlug, "", domain.ReasonOidcStateInvalid), nil
	}

	st, err := s.states.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			s.appendFailEvent(ctx, site, sessionID, domain.ReasonOidcStateInvalid)
			return s.portalURL(tenantSlug, siteSlug, sessionID, domain.ReasonOidcStateInvalid), nil
		}
		return "", err
	}
	// A state token is single-use regardless of how the rest of the
	// callback goes.
	if err := s.states.Clear(ctx, sessionID); err != nil {
		s.logger.Warn("oidc state clear failed", zap.Error(err))
	}
	if st.State != p.State {
		s.appendFailEvent(ctx, site, sessionID, domain.ReasonOidcStateInvalid)
		return s.portalURL(tenantSlug, siteSlug, sessionID, domain.ReasonOidcStateInvalid), nil
	}

	sess, err := s.sessionRepo.GetBySiteAndID(ctx, site.ID, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.appendFailEvent(ctx, site, sessionID, domain.ReasonInvalidSession)
			return s.portalURL(tenantSlug, siteSlug, sessionID, domain.ReasonInvalidSession), nil
		}
		return "", err
	}

	setting, provider, err := s.oidc.GetEnabledSetting(ctx, site.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.appendFailEvent(ctx, site, sess.ID, domain.ReasonOidcDisabled)
			return s.portalURL(tenantSlug, siteSlug, sessionID, domain.ReasonOidcDisabled), nil
		}
		return "", err
	}
	if provider.ID != st.ProviderID {
		s.appendFailEvent(ctx, site, sess.ID, domain.ReasonOidcProviderMismatch)
		return s.portalURL(tenantSlug, siteSlug, sessionID, domain.ReasonOidcProviderMismatch), nil
	}

	claims, reason, err := s.exchanger.Complete(ctx, provider, s.callbackURL(tenantSlug, siteSlug), p.Code, st.CodeVerifier, st.Nonce)
	if err != nil {
		return "", err
	}
	if reason != domain.ReasonNone {
		if failErr := s.auth.RecordFailure(ctx, site, sess, domain.MethodOIDC, "", reason); failErr != nil {
			return "", failErr
		}
		return s.portalURL(tenantSlug, siteSlug, sessionID, reason), nil
	}

	if !domainAllowed(claims.Email, setting.AllowedDomains) {
		if failErr := s.auth.RecordFailure(ctx, site, sess, domain.MethodOIDC, "", domain.ReasonOidcDomainDenied); failErr != nil {
			return "", failErr
		}
		return s.portalURL(tenantSlug, siteSlug, sessionID, domain.ReasonOidcDomainDenied), nil
	}

	identity, err := s.identities.UpsertSubject(ctx, site.TenantID, claims.Subject, claims.Email, claims.DisplayName)
	if err != nil {
		return "", err
	}

	outcome, err := s.auth.Authorize(ctx, site, sess, FederatedProof{Identity: identity})
	if err != nil {
		return "", err
	}
	if !outcome.Authorized {
		return s.portalURL(tenantSlug, siteSlug, sessionID, outcome.Reason), nil
	}
	return s.portalURL(tenantSlug, siteSlug, sessionID, domain.ReasonNone), nil
}

// domainAllowed checks the email's domain against the comma-separated
// allow-set. An empty set allows any domain; an email without a
// domain part never passes a non-empty set.
func domainAllowed(email, allowedDomains string) bool {
	allowed := strings.TrimSpace(allowedDomains)
	if allowed == "" {
		return true
	}
	_, emailDomain, ok := strings.Cut(email, "@")
	if !ok || emailDomain == "" {
		return false
	}
	emailDomain = strings.ToLower(emailDomain)
	for _, d := range strings.Split(allowed, ",") {
		if strings.ToLower(strings.TrimSpace(d)) == emailDomain {
			return true
		}
	}
	return false
}
