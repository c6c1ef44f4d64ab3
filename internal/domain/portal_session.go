package domain

import "time"

// SessionStatus is the portal session lifecycle state.
// STARTED -> AUTHED (reserved) -> AUTHORIZED | FAILED; EXPIRED is
// assigned by external cleanup. A FAILED session may still reach
// AUTHORIZED on a later attempt; transitions are last-write-wins.
type SessionStatus string

const (
	SessionStarted    SessionStatus = "STARTED"
	SessionAuthed     SessionStatus = "AUTHED"
	SessionAuthorized SessionStatus = "AUTHORIZED"
	SessionFailed     SessionStatus = "FAILED"
	SessionExpired    SessionStatus = "EXPIRED"
)

// PortalSession is one guest captive-portal attempt for one device at
// one site. At most one active record exists per (site_id, client_mac);
// client_mac is always in canonical normalized form.
type PortalSession struct {
	ID        string        `json:"id"`
	TenantID  string        `json:"tenant_id"`
	SiteID    string        `json:"site_id"`
	ClientMAC string        `json:"client_mac"`
	APMAC     string        `json:"ap_mac,omitempty"`
	SSID      string        `json:"ssid,omitempty"`
	OrigURL   string        `json:"orig_url,omitempty"`
	IP        string        `json:"ip,omitempty"`
	UserAgent string        `json:"user_agent,omitempty"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
