package domain

// OidcProvider holds a tenant's issuer and client credentials for one
// external identity provider. The client secret is referenced by env
// var name, never stored directly.
type OidcProvider struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	Issuer          string `json:"issuer"`
	ClientID        string `json:"client_id"`
	ClientSecretRef string `json:"client_secret_ref"`
	Scopes          string `json:"scopes"`
}

// SiteOidcSetting enables a provider for one site, optionally
// restricting the email domains allowed to sign in. AllowedDomains is
// a comma-separated list; empty means any domain.
type SiteOidcSetting struct {
	ID             string `json:"id"`
	SiteID         string `json:"site_id"`
	ProviderID     string `json:"provider_id"`
	Enabled        bool   `json:"enabled"`
	AllowedDomains string `json:"allowed_domains,omitempty"`
}
