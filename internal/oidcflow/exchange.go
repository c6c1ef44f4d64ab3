package oidcflow

import (
	"context"
	"os"
	"strings"

	"redux-portal/internal/domain"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const defaultScopes = "openid email profile"

// Claims is what the portal keeps from a verified ID token.
type Claims struct {
	Subject     string
	Email       string
	DisplayName string
}

// BeginResult carries what the start leg produced: the provider
// redirect URL plus the PKCE verifier to stash in the state record.
type BeginResult struct {
	AuthURL      string
	CodeVerifier string
}

// Exchanger performs the provider-facing legs of the flow. Business
// failures come back as reasons, not errors; err is reserved for
// internal faults.
type Exchanger interface {
	Begin(ctx context.Context, provider *domain.OidcProvider, redirectURL, state, nonce string) (*BeginResult, domain.Reason, error)
	Complete(ctx context.Context, provider *domain.OidcProvider, redirectURL, code, codeVerifier, nonce string) (*Claims, domain.Reason, error)
}

// ProviderExchanger is the real Exchanger: issuer discovery, PKCE
// authorization-code exchange and local ID-token verification.
type ProviderExchanger struct {
	logger *zap.Logger

	// resolveSecret maps a client_secret_ref to the secret value.
	// Defaults to the process environment.
	resolveSecret func(ref string) string
}

func NewProviderExchanger(logger *zap.Logger) *ProviderExchanger {
	return &ProviderExchanger{logger: logger, resolveSecret: os.Getenv}
}

var _ Exchanger = (*ProviderExchanger)(nil)

func (e *ProviderExchanger) oauthConfig(ctx context.Context, p *domain.OidcProvider, redirectURL string) (*oauth2.Config, *oidc.Provider, domain.Reason, error) {
	secret := e.resolveSecret(p.ClientSecretRef)
	if secret == "" {
		e.logger.Error("oidc client secret unresolved",
			zap.String("provider_id", p.ID),
			zap.String("secret_ref", p.ClientSecretRef),
		)
		return nil, nil, domain.ReasonOidcSecretMissing, nil
	}

	provider, err := oidc.NewProvider(ctx, p.Issuer)
	if err != nil {
		e.logger.Error("oidc discovery failed",
			zap.String("issuer", p.Issuer),
			zap.Error(err),
		)
		return nil, nil, domain.ReasonOidcDiscoveryFailed, nil
	}

	scopes := strings.Fields(p.Scopes)
	if len(scopes) == 0 {
		scopes = strings.Fields(defaultScopes)
	}

	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: secret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	}, provider, domain.ReasonNone, nil
}

func (e *ProviderExchanger) Begin(ctx context.Context, p *domain.OidcProvider, redirectURL, state, nonce string) (*BeginResult, domain.Reason, error) {
	conf, _, reason, err := e.oauthConfig(ctx, p, redirectURL)
	if err != nil || reason != domain.ReasonNone {
		return nil, reason, err
	}

	verifier := oauth2.GenerateVerifier()
	authURL := conf.AuthCodeURL(state,
		oidc.Nonce(nonce),
		oauth2.S256ChallengeOption(verifier),
	)
	return &BeginResult{AuthURL: authURL, CodeVerifier: verifier}, domain.ReasonNone, nil
}

func (e *ProviderExchanger) Complete(ctx context.Context, p *domain.OidcProvider, redirectURL, code, codeVerifier, nonce string) (*Claims, domain.Reason, error) {
	conf, provider, reason, err := e.oauthConfig(ctx, p, redirectURL)
	if err != nil || reason != domain.ReasonNone {
		return nil, reason, err
	}

	token, err := conf.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		e.logger.Warn("oidc token exchange failed",
			zap.String("issuer", p.Issuer),
			zap.Error(err),
		)
		return nil, domain.ReasonOidcTokenFailed, nil
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, domain.ReasonOidcIDTokenMissing, nil
	}

	idToken, err := provider.Verifier(&oidc.Config{ClientID: p.ClientID}).Verify(ctx, rawIDToken)
	if err != nil {
		e.logger.Warn("oidc id token rejected",
			zap.String("issuer", p.Issuer),
			zap.Error(err),
		)
		return nil, domain.ReasonOidcIDTokenInvalid, nil
	}
	if idToken.Nonce != nonce {
		return nil, domain.ReasonOidcIDTokenInvalid, nil
	}
	if idToken.Subject == "" {
		return nil, domain.ReasonOidcSubMissing, nil
	}

	var raw struct {
		Email             string `json:"email"`
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&raw); err != nil {
		return nil, domain.ReasonOidcIDTokenInvalid, nil
	}

	display := raw.Name
	if display == "" {
		display = raw.PreferredUsername
	}
	return &Claims{
		Subject:     idToken.Subject,
		Email:       strings.ToLower(strings.TrimSpace(raw.Email)),
		DisplayName: display,
	}, domain.ReasonNone, nil
}
