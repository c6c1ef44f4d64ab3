package domain

import "time"

// Policy is the guest access policy a site grants on successful
// authorization. TimeLimitMinutes is mandatory; the rest are optional
// caps passed through to the controller.
type Policy struct {
	TimeLimitMinutes int  `json:"time_limit_minutes"`
	DataLimitMB      *int `json:"data_limit_mb,omitempty"`
	RxKbps           *int `json:"rx_kbps,omitempty"`
	TxKbps           *int `json:"tx_kbps,omitempty"`
}

// Site is one physical location/network. It owns the UniFi connection
// details, the default policy and the portal branding. Unique per
// (tenant_id, slug).
type Site struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	Slug        string `json:"slug"`
	DisplayName string `json:"display_name"`
	Enabled     bool   `json:"enabled"`

	UnifiBaseURL   string `json:"unifi_base_url"`
	UnifiSiteID    string `json:"unifi_site_id"`
	UnifiAPIKeyRef string `json:"unifi_api_key_ref"`

	DefaultPolicy Policy `json:"default_policy"`

	LogoURL        string `json:"logo_url,omitempty"`
	PrimaryColor   string `json:"primary_color,omitempty"`
	TermsHTML      string `json:"terms_html,omitempty"`
	SupportContact string `json:"support_contact,omitempty"`
	SuccessURL     string `json:"success_url,omitempty"`
	EnableTosOnly  bool   `json:"enable_tos_only"`

	// Denormalized from the owning tenant on lookup.
	TenantSlug   string `json:"tenant_slug"`
	TenantStatus string `json:"tenant_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
