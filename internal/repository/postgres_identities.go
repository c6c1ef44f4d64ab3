package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"redux-portal/internal/domain"
)

// PostgresIdentitiesRepo upserts guest identities. Uniqueness is per
// tenant on email and on federated subject (partial unique indexes).
type PostgresIdentitiesRepo struct {
	db *sql.DB
}

func NewPostgresIdentitiesRepo(db *sql.DB) *PostgresIdentitiesRepo {
	return &PostgresIdentitiesRepo{db: db}
}

var _ IdentitiesRepo = (*PostgresIdentitiesRepo)(nil)

func (r *PostgresIdentitiesRepo) UpsertEmail(ctx context.Context, tenantID, email string) (*domain.GuestIdentity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	var identity domain.GuestIdentity
	var sub, displayName sql.NullString
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO guest_identities (tenant_id, email)
		 VALUES ($1::uuid, $2)
		 ON CONFLICT (tenant_id, email) WHERE email IS NOT NULL
		 DO UPDATE SET updated_at = now()
		 RETURNING id::text, tenant_id::text, COALESCE(email, ''), oidc_sub, display_name, created_at, updated_at`,
		tenantID, email,
	).Scan(&identity.ID, &identity.TenantID, &identity.Email, &sub, &displayName, &identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert identity by email: %w", err)
	}
	identity.OidcSub = sub.String
	identity.DisplayName = displayName.String
	return &identity, nil
}

func (r *PostgresIdentitiesRepo) UpsertSubject(ctx context.Context, tenantID, sub, email, displayName string) (*domain.GuestIdentity, error) {
	if sub == "" {
		return nil, fmt.Errorf("oidc_sub is required")
	}
	email = strings.ToLower(strings.TrimSpace(email))

	var identity domain.GuestIdentity
	var gotEmail, gotName sql.NullString
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO guest_identities (tenant_id, oidc_sub, email, display_name)
		 VALUES ($1::uuid, $2, NULLIF($3, ''), NULLIF($4, ''))
		 ON CONFLICT (tenant_id, oidc_sub) WHERE oidc_sub IS NOT NULL
		 DO UPDATE SET email = NULLIF($3, ''), display_name = NULLIF($4, ''), updated_at = now()
		 RETURNING id::text, tenant_id::text, COALESCE(oidc_sub, ''), email, display_name, created_at, updated_at`,
		tenantID, sub, email, displayName,
	).Scan(&identity.ID, &identity.TenantID, &identity.OidcSub, &gotEmail, &gotName, &identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert identity by subject: %w", err)
	}
	identity.Email = gotEmail.String
	identity.DisplayName = gotName.String
	return &identity, nil
}
