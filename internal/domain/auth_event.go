package domain

import "time"

// AuthMethod identifies which proof a guest presented.
type AuthMethod string

const (
	MethodVoucher  AuthMethod = "VOUCHER"
	MethodEmailOTP AuthMethod = "EMAIL_OTP"
	MethodOIDC     AuthMethod = "OIDC"
	MethodTosOnly  AuthMethod = "TOS_ONLY"
)

// AuthResult is the outcome of one authorization attempt.
type AuthResult string

const (
	ResultSuccess AuthResult = "SUCCESS"
	ResultFail    AuthResult = "FAIL"
)

// AuthEvent is one immutable audit row per authorization attempt.
// Rows are append-only; they are never updated or deleted.
type AuthEvent struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	SiteID          string     `json:"site_id"`
	PortalSessionID string     `json:"portal_session_id,omitempty"`
	GuestIdentityID string     `json:"guest_identity_id,omitempty"`
	Method          AuthMethod `json:"method"`
	Result          AuthResult `json:"result"`
	Reason          Reason     `json:"reason,omitempty"`
	UnifiClientID   string     `json:"unifi_client_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
