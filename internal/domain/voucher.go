package domain

import "time"

// VoucherBatch is a named group of codes for one site, with an
// optional expiry and a per-code use limit.
type VoucherBatch struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	SiteID         string     `json:"site_id"`
	Name           string     `json:"name"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	MaxUsesPerCode int        `json:"max_uses_per_code"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Voucher is a single code in a batch. Codes are globally unique and
// stored uppercase. Uses never exceeds the batch's MaxUsesPerCode.
type Voucher struct {
	ID        string    `json:"id"`
	BatchID   string    `json:"batch_id"`
	Code      string    `json:"code"`
	Uses      int       `json:"uses"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
}

// VoucherRedemption is the append-only record of one successful
// voucher consumption.
type VoucherRedemption struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	SiteID          string    `json:"site_id"`
	VoucherID       string    `json:"voucher_id"`
	PortalSessionID string    `json:"portal_session_id,omitempty"`
	ClientMAC       string    `json:"client_mac"`
	RedeemedAt      time.Time `json:"redeemed_at"`
}
