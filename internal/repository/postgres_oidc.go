package repository

import (
	"context"
	"database/sql"
	"fmt"

	"redux-portal/internal/domain"
)

// PostgresOidcRepo resolves the enabled provider configuration for a
// site.
type PostgresOidcRepo struct {
	db *sql.DB
}

func NewPostgresOidcRepo(db *sql.DB) *PostgresOidcRepo {
	return &PostgresOidcRepo{db: db}
}

var _ OidcRepo = (*PostgresOidcRepo)(nil)

func (r *PostgresOidcRepo) GetEnabledSetting(ctx context.Context, siteID string) (*domain.SiteOidcSetting, *domain.OidcProvider, error) {
	var setting domain.SiteOidcSetting
	var provider domain.OidcProvider
	var allowedDomains sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT
			st.id::text,
			st.site_id::text,
			st.provider_id::text,
			st.enabled,
			st.allowed_domains,
			p.id::text,
			p.tenant_id::text,
			p.issuer,
			p.client_id,
			p.client_secret_ref,
			p.scopes
		 FROM site_oidc_settings st
		 JOIN oidc_providers p ON p.id = st.provider_id
		 WHERE st.site_id = $1::uuid AND st.enabled = true`,
		siteID,
	).Scan(
		&setting.ID,
		&setting.SiteID,
		&setting.ProviderID,
		&setting.Enabled,
		&allowedDomains,
		&provider.ID,
		&provider.TenantID,
		&provider.Issuer,
		&provider.ClientID,
		&provider.ClientSecretRef,
		&provider.Scopes,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to get oidc setting: %w", err)
	}
	setting.AllowedDomains = allowedDomains.String
	return &setting, &provider, nil
}
