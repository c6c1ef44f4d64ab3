package repository

import (
	"context"
	"database/sql"
	"fmt"

	"redux-portal/internal/domain"
)

// PostgresSitesRepo loads sites joined to their owning tenant.
type PostgresSitesRepo struct {
	db *sql.DB
}

func NewPostgresSitesRepo(db *sql.DB) *PostgresSitesRepo {
	return &PostgresSitesRepo{db: db}
}

var _ SitesRepo = (*PostgresSitesRepo)(nil)

func (r *PostgresSitesRepo) GetSiteBySlugs(ctx context.Context, tenantSlug, siteSlug string) (*domain.Site, error) {
	if tenantSlug == "" || siteSlug == "" {
		return nil, ErrNotFound
	}

	query := `
		SELECT
			s.id::text,
			s.tenant_id::text,
			s.slug,
			s.display_name,
			s.enabled,
			s.unifi_base_url,
			s.unifi_site_id,
			s.unifi_api_key_ref,
			s.default_time_limit_minutes,
			s.default_data_limit_mb,
			s.default_rx_kbps,
			s.default_tx_kbps,
			COALESCE(s.logo_url, '') AS logo_url,
			COALESCE(s.primary_color, '') AS primary_color,
			COALESCE(s.terms_html, '') AS terms_html,
			COALESCE(s.support_contact, '') AS support_contact,
			COALESCE(s.success_url, '') AS success_url,
			s.enable_tos_only,
			t.slug AS tenant_slug,
			t.status AS tenant_status
		FROM sites s
		JOIN tenants t ON t.id = s.tenant_id
		WHERE t.slug = $1 AND s.slug = $2
	`

	var site domain.Site
	var dataLimit, rxKbps, txKbps sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, tenantSlug, siteSlug).Scan(
		&site.ID,
		&site.TenantID,
		&site.Slug,
		&site.DisplayName,
		&site.Enabled,
		&site.UnifiBaseURL,
		&site.UnifiSiteID,
		&site.UnifiAPIKeyRef,
		&site.DefaultPolicy.TimeLimitMinutes,
		&dataLimit,
		&rxKbps,
		&txKbps,
		&site.LogoURL,
		&site.PrimaryColor,
		&site.TermsHTML,
		&site.SupportContact,
		&site.SuccessURL,
		&site.EnableTosOnly,
		&site.TenantSlug,
		&site.TenantStatus,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get site: %w", err)
	}

	site.DefaultPolicy.DataLimitMB = nullableInt(dataLimit)
	site.DefaultPolicy.RxKbps = nullableInt(rxKbps)
	site.DefaultPolicy.TxKbps = nullableInt(txKbps)
	return &site, nil
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
