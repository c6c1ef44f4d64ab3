package repository

import (
	"context"
	"database/sql"
	"fmt"

	"redux-portal/internal/domain"
)

// PostgresAuthEventsRepo is the append-only audit trail. There is no
// update or delete path on purpose.
type PostgresAuthEventsRepo struct {
	db *sql.DB
}

func NewPostgresAuthEventsRepo(db *sql.DB) *PostgresAuthEventsRepo {
	return &PostgresAuthEventsRepo{db: db}
}

var _ AuthEventsRepo = (*PostgresAuthEventsRepo)(nil)

func (r *PostgresAuthEventsRepo) Append(ctx context.Context, e *domain.AuthEvent) error {
	if e.TenantID == "" || e.SiteID == "" {
		return fmt.Errorf("tenant_id and site_id are required")
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO auth_events
			(tenant_id, site_id, portal_session_id, guest_identity_id, method, result, reason, unifi_client_id)
		 VALUES ($1::uuid, $2::uuid, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
		 RETURNING id::text, created_at`,
		e.TenantID,
		e.SiteID,
		e.PortalSessionID,
		e.GuestIdentityID,
		string(e.Method),
		string(e.Result),
		string(e.Reason),
		e.UnifiClientID,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append auth event: %w", err)
	}
	return nil
}

func (r *PostgresAuthEventsRepo) ListBySite(ctx context.Context, siteID string, limit int) ([]*domain.AuthEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT
			id::text,
			tenant_id::text,
			site_id::text,
			COALESCE(portal_session_id::text, ''),
			COALESCE(guest_identity_id::text, ''),
			method,
			result,
			COALESCE(reason, ''),
			COALESCE(unifi_client_id, ''),
			created_at
		 FROM auth_events
		 WHERE site_id = $1::uuid
		 ORDER BY created_at DESC
		 LIMIT $2`,
		siteID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list auth events: %w", err)
	}
	defer rows.Close()

	events := []*domain.AuthEvent{}
	for rows.Next() {
		var e domain.AuthEvent
		var method, result, reason string
		if err := rows.Scan(
			&e.ID,
			&e.TenantID,
			&e.SiteID,
			&e.PortalSessionID,
			&e.GuestIdentityID,
			&method,
			&result,
			&reason,
			&e.UnifiClientID,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan auth event: %w", err)
		}
		e.Method = domain.AuthMethod(method)
		e.Result = domain.AuthResult(result)
		e.Reason = domain.Reason(reason)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate auth events: %w", err)
	}
	return events, nil
}
