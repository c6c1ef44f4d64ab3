package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"redux-portal/internal/domain"
)

// PostgresVouchersRepo implements the voucher ledger. Redeem holds a
// row lock on the voucher for the whole check-and-increment so two
// concurrent attempts for the last use of a code cannot both succeed.
type PostgresVouchersRepo struct {
	db *sql.DB
}

func NewPostgresVouchersRepo(db *sql.DB) *PostgresVouchersRepo {
	return &PostgresVouchersRepo{db: db}
}

var _ VouchersRepo = (*PostgresVouchersRepo)(nil)

func (r *PostgresVouchersRepo) Redeem(ctx context.Context, p RedeemParams) (*domain.VoucherRedemption, domain.Reason, error) {
	code := strings.ToUpper(strings.TrimSpace(p.Code))
	if code == "" {
		return nil, domain.ReasonVoucherNotFound, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.ReasonNone, fmt.Errorf("failed to begin redeem tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		voucherID string
		uses      int
		disabled  bool
		maxUses   int
		expiresAt sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		`SELECT v.id::text, v.uses, v.disabled, b.max_uses_per_code, b.expires_at
		 FROM vouchers v
		 JOIN voucher_batches b ON b.id = v.batch_id
		 WHERE v.code = $1 AND b.site_id = $2::uuid
		 FOR UPDATE OF v`,
		code, p.SiteID,
	).Scan(&voucherID, &uses, &disabled, &maxUses, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ReasonVoucherNotFound, nil
		}
		return nil, domain.ReasonNone, fmt.Errorf("failed to lock voucher: %w", err)
	}

	if disabled {
		return nil, domain.ReasonVoucherDisabled, nil
	}
	if expiresAt.Valid && !expiresAt.Time.After(time.Now()) {
		return nil, domain.ReasonVoucherExpired, nil
	}
	if uses >= maxUses {
		return nil, domain.ReasonVoucherExhausted, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE vouchers SET uses = uses + 1 WHERE id = $1::uuid`,
		voucherID,
	); err != nil {
		return nil, domain.ReasonNone, fmt.Errorf("failed to increment voucher uses: %w", err)
	}

	redemption := &domain.VoucherRedemption{
		TenantID:        p.TenantID,
		SiteID:          p.SiteID,
		VoucherID:       voucherID,
		PortalSessionID: p.PortalSessionID,
		ClientMAC:       p.ClientMAC,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO voucher_redemptions
			(tenant_id, site_id, voucher_id, portal_session_id, client_mac)
		 VALUES ($1::uuid, $2::uuid, $3::uuid, NULLIF($4, '')::uuid, $5)
		 RETURNING id::text, redeemed_at`,
		p.TenantID, p.SiteID, voucherID, p.PortalSessionID, p.ClientMAC,
	).Scan(&redemption.ID, &redemption.RedeemedAt)
	if err != nil {
		return nil, domain.ReasonNone, fmt.Errorf("failed to insert redemption: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.ReasonNone, fmt.Errorf("failed to commit redeem tx: %w", err)
	}
	return redemption, domain.ReasonNone, nil
}

func (r *PostgresVouchersRepo) CreateBatch(ctx context.Context, b *domain.VoucherBatch) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO voucher_batches (tenant_id, site_id, name, expires_at, max_uses_per_code)
		 VALUES ($1::uuid, $2::uuid, $3, $4, $5)
		 RETURNING id::text, created_at`,
		b.TenantID, b.SiteID, b.Name, b.ExpiresAt, b.MaxUsesPerCode,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create voucher batch: %w", err)
	}
	return nil
}

func (r *PostgresVouchersRepo) CreateVoucher(ctx context.Context, v *domain.Voucher) error {
	code := strings.ToUpper(strings.TrimSpace(v.Code))
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO vouchers (batch_id, code, uses, disabled)
		 VALUES ($1::uuid, $2, $3, $4)
		 RETURNING id::text, created_at`,
		v.BatchID, code, v.Uses, v.Disabled,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create voucher: %w", err)
	}
	v.Code = code
	return nil
}

func (r *PostgresVouchersRepo) GetVoucherByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	var v domain.Voucher
	err := r.db.QueryRowContext(ctx,
		`SELECT id::text, batch_id::text, code, uses, disabled, created_at
		 FROM vouchers WHERE code = $1`,
		strings.ToUpper(strings.TrimSpace(code)),
	).Scan(&v.ID, &v.BatchID, &v.Code, &v.Uses, &v.Disabled, &v.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}
	return &v, nil
}
