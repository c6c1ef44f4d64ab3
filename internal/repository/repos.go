package repository

import (
	"context"
	"errors"

	"redux-portal/internal/domain"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("not found")

// SitesRepo resolves portal sites by their public slugs.
type SitesRepo interface {
	// GetSiteBySlugs loads the site identified by (tenant slug, site
	// slug), with tenant slug/status denormalized onto the result.
	GetSiteBySlugs(ctx context.Context, tenantSlug, siteSlug string) (*domain.Site, error)
}

// SessionsRepo is the durable side of the portal-session store. The
// dual-backed store in internal/session owns the cache side.
type SessionsRepo interface {
	Create(ctx context.Context, s *domain.PortalSession) error
	GetByID(ctx context.Context, id string) (*domain.PortalSession, error)
	GetBySiteAndID(ctx context.Context, siteID, id string) (*domain.PortalSession, error)
	// SetStatus updates the row(s) for (site, client MAC). MAC must
	// already be normalized.
	SetStatus(ctx context.Context, siteID, clientMAC string, status domain.SessionStatus) error
}

// RedeemParams carries one voucher redemption attempt.
type RedeemParams struct {
	TenantID        string
	SiteID          string
	PortalSessionID string
	Code            string
	ClientMAC       string
}

// VouchersRepo provides the exactly-once voucher ledger. Redeem runs
// as one transaction holding an exclusive lock on the voucher row for
// the whole check-and-increment, so concurrent attempts for the same
// code serialize and at most max-uses succeed.
type VouchersRepo interface {
	// Redeem returns the redemption on success, or a non-empty
	// business reason (VOUCHER_NOT_FOUND/DISABLED/EXPIRED/EXHAUSTED).
	// The error return is reserved for infrastructure failures.
	Redeem(ctx context.Context, p RedeemParams) (*domain.VoucherRedemption, domain.Reason, error)
	CreateBatch(ctx context.Context, b *domain.VoucherBatch) error
	CreateVoucher(ctx context.Context, v *domain.Voucher) error
	GetVoucherByCode(ctx context.Context, code string) (*domain.Voucher, error)
}

// IdentitiesRepo upserts tenant-scoped guest identities. Identities
// are never deleted by the core.
type IdentitiesRepo interface {
	// UpsertEmail proves control of an email address (OTP flow).
	UpsertEmail(ctx context.Context, tenantID, email string) (*domain.GuestIdentity, error)
	// UpsertSubject proves a federated subject; email and display
	// name are refreshed on every login.
	UpsertSubject(ctx context.Context, tenantID, sub, email, displayName string) (*domain.GuestIdentity, error)
}

// AuthEventsRepo is the append-only audit trail. Rows are never
// updated or deleted.
type AuthEventsRepo interface {
	Append(ctx context.Context, e *domain.AuthEvent) error
	ListBySite(ctx context.Context, siteID string, limit int) ([]*domain.AuthEvent, error)
}

// OidcRepo resolves a site's enabled federated-identity provider.
type OidcRepo interface {
	// GetEnabledSetting returns ErrNotFound when the site has no
	// enabled provider.
	GetEnabledSetting(ctx context.Context, siteID string) (*domain.SiteOidcSetting, *domain.OidcProvider, error)
}
