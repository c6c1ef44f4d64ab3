package service

import (
	"context"

	"redux-portal/internal/domain"
	"redux-portal/internal/repository"
	"redux-portal/internal/session"
	"redux-portal/internal/unifi"

	"go.uber.org/zap"
)

// Proof is the tagged union of "how the guest proved themselves".
// Every auth method builds one and hands it to the orchestrator;
// the orchestrator is the only code path that flips a session to
// AUTHORIZED.
type Proof interface {
	Method() domain.AuthMethod
	// IdentityID is the proven guest identity, empty for methods
	// that carry none.
	IdentityID() string
}

type VoucherProof struct {
	RedemptionID string
}

func (VoucherProof) Method() domain.AuthMethod { return domain.MethodVoucher }
func (VoucherProof) IdentityID() string        { return "" }

type OtpProof struct {
	Identity *domain.GuestIdentity
}

func (OtpProof) Method() domain.AuthMethod { return domain.MethodEmailOTP }
func (p OtpProof) IdentityID() string {
	if p.Identity == nil {
		return ""
	}
	return p.Identity.ID
}

type FederatedProof struct {
	Identity *domain.GuestIdentity
}

func (FederatedProof) Method() domain.AuthMethod { return domain.MethodOIDC }
func (p FederatedProof) IdentityID() string {
	if p.Identity == nil {
		return ""
	}
	return p.Identity.ID
}

type TosProof struct{}

func (TosProof) Method() domain.AuthMethod { return domain.MethodTosOnly }
func (TosProof) IdentityID() string        { return "" }

// Controller is what the orchestrator needs from the network
// controller adapter.
type Controller interface {
	FindClientByMAC(ctx context.Context, mac string) (*unifi.WifiClient, error)
	AuthorizeGuest(ctx context.Context, clientID string, policy domain.Policy) error
}

// ControllerFactory builds the controller client for a site. The
// factory resolves the site's API key reference; tests inject fakes
// here.
type ControllerFactory func(site *domain.Site) Controller

// Outcome is what the orchestrator reports back to the handler.
type Outcome struct {
	Authorized      bool
	Reason          domain.Reason
	UnifiClientID   string
	ContinuationURL string
}

// Authorizer is the shared tail of every auth method: locate the
// device on the controller, grant it access under the site policy,
// record the session transition and exactly one audit event.
type Authorizer struct {
	sessions    *session.Store
	events      repository.AuthEventsRepo
	controllers ControllerFactory
	defaultURL  string
	logger      *zap.Logger
}

func NewAuthorizer(sessions *session.Store, events repository.AuthEventsRepo, controllers ControllerFactory, defaultURL string, logger *zap.Logger) *Authorizer {
	return &Authorizer{
		sessions:    sessions,
		events:      events,
		controllers: controllers,
		defaultURL:  defaultURL,
		logger:      logger,
	}
}

// Authorize converts a proven identity into network access for the
// session's device. Controller failures never escape as errors; they
// become a FAILED transition plus a FAIL audit event, reported in the
// Outcome. The error return is reserved for store faults.
func (a *Authorizer) Authorize(ctx context.Context, site *domain.Site, sess *domain.PortalSession, proof Proof) (*Outcome, error) {
	controller := a.controllers(site)

	client, err := controller.FindClientByMAC(ctx, sess.ClientMAC)
	if err != nil {
		a.logger.Error("controller lookup failed",
			zap.String("site_id", site.ID),
			zap.String("client_mac", sess.ClientMAC),
			zap.Error(err),
		)
		return a.fail(ctx, site, sess, proof, domain.ReasonUnifiError)
	}
	if client == nil {
		return a.fail(ctx, site, sess, proof, domain.ReasonClientNotFound)
	}
	if client.ID == "" {
		return a.fail(ctx, site, sess, proof, domain.ReasonClientIDMissing)
	}

	if err := controller.AuthorizeGuest(ctx, client.ID, site.DefaultPolicy); err != nil {
		a.logger.Error("controller authorize failed",
			zap.String("site_id", site.ID),
			zap.String("unifi_client_id", client.ID),
			zap.Error(err),
		)
		return a.fail(ctx, site, sess, proof, domain.ReasonUnifiError)
	}

	if err := a.sessions.SetStatus(ctx, site.ID, sess.ClientMAC, domain.SessionAuthorized); err != nil {
		return nil, err
	}
	if err := a.events.Append(ctx, &domain.AuthEvent{
		TenantID:        site.TenantID,
		SiteID:          site.ID,
		PortalSessionID: sess.ID,
		GuestIdentityID: proof.IdentityID(),
		Method:          proof.Method(),
		Result:          domain.ResultSuccess,
		UnifiClientID:   client.ID,
	}); err != nil {
		return nil, err
	}

	a.logger.Info("guest authorized",
		zap.String("site_id", site.ID),
		zap.String("client_mac", sess.ClientMAC),
		zap.String("method", string(proof.Method())),
		zap.String("unifi_client_id", client.ID),
	)

	return &Outcome{
		Authorized:      true,
		UnifiClientID:   client.ID,
		ContinuationURL: a.continuationURL(site, sess),
	}, nil
}

// RecordFailure writes the FAILED transition and FAIL audit event for
// a method-level denial (bad voucher, wrong code) that never reached
// the controller.
func (a *Authorizer) RecordFailure(ctx context.Context, site *domain.Site, sess *domain.PortalSession, method domain.AuthMethod, identityID string, reason domain.Reason) error {
	if sessErr := a.sessions.SetStatus(ctx, site.ID, sess.ClientMAC, domain.SessionFailed); sessErr != nil {
		a.logger.Error("session transition failed",
			zap.String("site_id", site.ID),
			zap.Error(sessErr),
		)
	}
	return a.events.Append(ctx, &domain.AuthEvent{
		TenantID:        site.TenantID,
		SiteID:          site.ID,
		PortalSessionID: sess.ID,
		GuestIdentityID: identityID,
		Method:          method,
		Result:          domain.ResultFail,
		Reason:          reason,
	})
}

func (a *Authorizer) fail(ctx context.Context, site *domain.Site, sess *domain.PortalSession, proof Proof, reason domain.Reason) (*Outcome, error) {
	if err := a.RecordFailure(ctx, site, sess, proof.Method(), proof.IdentityID(), reason); err != nil {
		return nil, err
	}
	return &Outcome{Authorized: false, Reason: reason}, nil
}

func (a *Authorizer) continuationURL(site *domain.Site, sess *domain.PortalSession) string {
	if sess.OrigURL != "" {
		return sess.OrigURL
	}
	if site.SuccessURL != "" {
		return site.SuccessURL
	}
	return a.defaultURL
}
