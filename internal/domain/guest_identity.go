package domain

import "time"

// GuestIdentity is a tenant-scoped proven identity, unique by
// (tenant_id, email) and separately by (tenant_id, oidc_sub).
// Upserted on every successful proof, never deleted by the core.
type GuestIdentity struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Email       string    `json:"email,omitempty"`
	OidcSub     string    `json:"oidc_sub,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
