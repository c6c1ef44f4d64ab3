package repository

import (
	"context"
	"database/sql"
	"fmt"

	"redux-portal/internal/domain"
)

// PostgresSessionsRepo stores the durable portal-session rows.
type PostgresSessionsRepo struct {
	db *sql.DB
}

func NewPostgresSessionsRepo(db *sql.DB) *PostgresSessionsRepo {
	return &PostgresSessionsRepo{db: db}
}

var _ SessionsRepo = (*PostgresSessionsRepo)(nil)

const sessionColumns = `
	id::text,
	tenant_id::text,
	site_id::text,
	client_mac,
	COALESCE(ap_mac, '') AS ap_mac,
	COALESCE(ssid, '') AS ssid,
	COALESCE(orig_url, '') AS orig_url,
	COALESCE(ip, '') AS ip,
	COALESCE(user_agent, '') AS user_agent,
	status,
	created_at,
	updated_at
`

func (r *PostgresSessionsRepo) Create(ctx context.Context, s *domain.PortalSession) error {
	if s.TenantID == "" || s.SiteID == "" || s.ClientMAC == "" {
		return fmt.Errorf("tenant_id, site_id and client_mac are required")
	}
	status := s.Status
	if status == "" {
		status = domain.SessionStarted
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO portal_sessions
			(tenant_id, site_id, client_mac, ap_mac, ssid, orig_url, ip, user_agent, status)
		 VALUES ($1::uuid, $2::uuid, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9)
		 RETURNING id::text, created_at, updated_at`,
		s.TenantID,
		s.SiteID,
		s.ClientMAC,
		s.APMAC,
		s.SSID,
		s.OrigURL,
		s.IP,
		s.UserAgent,
		string(status),
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create portal session: %w", err)
	}
	s.Status = status
	return nil
}

func (r *PostgresSessionsRepo) GetByID(ctx context.Context, id string) (*domain.PortalSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM portal_sessions WHERE id = $1::uuid`, sessionColumns)
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresSessionsRepo) GetBySiteAndID(ctx context.Context, siteID, id string) (*domain.PortalSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM portal_sessions WHERE site_id = $1::uuid AND id = $2::uuid`, sessionColumns)
	return r.scanOne(r.db.QueryRowContext(ctx, query, siteID, id))
}

func (r *PostgresSessionsRepo) SetStatus(ctx context.Context, siteID, clientMAC string, status domain.SessionStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE portal_sessions
		 SET status = $3, updated_at = now()
		 WHERE site_id = $1::uuid AND client_mac = $2`,
		siteID, clientMAC, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to set session status: %w", err)
	}
	return nil
}

func (r *PostgresSessionsRepo) scanOne(row *sql.Row) (*domain.PortalSession, error) {
	var s domain.PortalSession
	var status string
	err := row.Scan(
		&s.ID,
		&s.TenantID,
		&s.SiteID,
		&s.ClientMAC,
		&s.APMAC,
		&s.SSID,
		&s.OrigURL,
		&s.IP,
		&s.UserAgent,
		&status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get portal session: %w", err)
	}
	s.Status = domain.SessionStatus(status)
	return &s, nil
}
