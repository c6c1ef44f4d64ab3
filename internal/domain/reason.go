package domain

// Reason is a machine-readable failure (or denial) code. Reasons are
// propagated by value from the component that detected them, persisted
// on the audit trail, and rendered to guests in the error envelope.
type Reason string

const (
	ReasonNone Reason = ""

	// Validation / lookup.
	ReasonInvalidMAC     Reason = "INVALID_MAC"
	ReasonInvalidEmail   Reason = "INVALID_EMAIL"
	ReasonInvalidSession Reason = "INVALID_SESSION"
	ReasonNotFound       Reason = "NOT_FOUND"
	ReasonRateLimited    Reason = "RATE_LIMITED"

	// Voucher ledger.
	ReasonVoucherNotFound  Reason = "VOUCHER_NOT_FOUND"
	ReasonVoucherDisabled  Reason = "VOUCHER_DISABLED"
	ReasonVoucherExpired   Reason = "VOUCHER_EXPIRED"
	ReasonVoucherExhausted Reason = "VOUCHER_EXHAUSTED"

	// OTP challenges.
	ReasonOtpExpired Reason = "OTP_EXPIRED"
	ReasonOtpInvalid Reason = "OTP_INVALID"
	ReasonOtpLocked  Reason = "OTP_LOCKED"

	// Federated identity.
	ReasonOidcDisabled         Reason = "OIDC_DISABLED"
	ReasonOidcStateInvalid     Reason = "OIDC_STATE_INVALID"
	ReasonOidcProviderMismatch Reason = "OIDC_PROVIDER_MISMATCH"
	ReasonOidcProviderError    Reason = "OIDC_PROVIDER_ERROR"
	ReasonOidcDiscoveryFailed  Reason = "OIDC_DISCOVERY_FAILED"
	ReasonOidcSecretMissing    Reason = "OIDC_SECRET_MISSING"
	ReasonOidcTokenFailed      Reason = "OIDC_TOKEN_FAILED"
	ReasonOidcIDTokenMissing   Reason = "OIDC_ID_TOKEN_MISSING"
	ReasonOidcIDTokenInvalid   Reason = "OIDC_ID_TOKEN_INVALID"
	ReasonOidcSubMissing       Reason = "OIDC_SUB_MISSING"
	ReasonOidcDomainDenied     Reason = "OIDC_DOMAIN_DENIED"

	// ToS-only method.
	ReasonTosOnlyDisabled Reason = "TOS_ONLY_DISABLED"

	// Controller adapter / orchestrator.
	ReasonClientNotFound  Reason = "CLIENT_NOT_FOUND"
	ReasonClientIDMissing Reason = "CLIENT_ID_MISSING"
	ReasonUnifiError      Reason = "UNIFI_ERROR"
)
