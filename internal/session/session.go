// Package session implements the dual-backed portal-session store: a
// durable row per session plus a fast cache entry keyed by
// (site, device) that drives the reuse-vs-create decision.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"redux-portal/internal/domain"
	"redux-portal/internal/netid"
	"redux-portal/internal/repository"
	"redux-portal/internal/store"

	"go.uber.org/zap"
)

// DefaultTTL is how long a cache entry lives. The durable row is the
// record of truth; the cache only answers "does this device already
// have an in-flight session" cheaply during the request's lifetime.
const DefaultTTL = 30 * time.Minute

// cacheEntry is the JSON payload mirrored into the cache.
type cacheEntry struct {
	PortalSessionID string               `json:"portal_session_id"`
	ClientMAC       string               `json:"client_mac"`
	APMAC           string               `json:"ap_mac,omitempty"`
	SSID            string               `json:"ssid,omitempty"`
	OrigURL         string               `json:"orig_url,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	Status          domain.SessionStatus `json:"status"`
}

func cacheKey(siteID, clientMAC string) string {
	return "ps:" + siteID + ":" + clientMAC
}

// Store coordinates the cache and the durable repository.
type Store struct {
	kv     store.KV
	repo   repository.SessionsRepo
	ttl    time.Duration
	logger *zap.Logger
}

func NewStore(kv store.KV, repo repository.SessionsRepo, ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: kv, repo: repo, ttl: ttl, logger: logger}
}

// CreateParams carries one session-init request. MACs may arrive in
// any separator convention; they are normalized here.
type CreateParams struct {
	TenantID  string
	SiteID    string
	ClientMAC string
	APMAC     string
	SSID      string
	OrigURL   string
	IP        string
	UserAgent string
}

// CreateOrReuse returns the cached session for (site, device) when the
// cache holds one whose durable row still exists; otherwise it creates
// a new STARTED row and mirrors it into the cache. Re-entry from a
// browser retry or captive-portal re-probe is therefore idempotent.
func (s *Store) CreateOrReuse(ctx context.Context, p CreateParams) (*domain.PortalSession, error) {
	clientMAC, err := netid.NormalizeMAC(p.ClientMAC)
	if err != nil {
		return nil, err
	}
	apMAC := ""
	if p.APMAC != "" {
		apMAC, err = netid.NormalizeMAC(p.APMAC)
		if err != nil {
			return nil, err
		}
	}
	origURL := netid.SanitizeOrigURL(p.OrigURL)

	if cached := s.getCached(ctx, p.SiteID, clientMAC); cached != nil {
		if row, err := s.repo.GetByID(ctx, cached.PortalSessionID); err == nil {
			return row, nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to check cached session: %w", err)
		}
		// Cache points at a row that no longer exists; fall through
		// and create a fresh session.
	}

	sess := &domain.PortalSession{
		TenantID:  p.TenantID,
		SiteID:    p.SiteID,
		ClientMAC: clientMAC,
		APMAC:     apMAC,
		SSID:      p.SSID,
		OrigURL:   origURL,
		IP:        p.IP,
		UserAgent: p.UserAgent,
		Status:    domain.SessionStarted,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.putCached(ctx, p.SiteID, sess)
	return sess, nil
}

// SetStatus updates the cache entry (when present) and the durable
// row. The durable write always proceeds; the cache is advisory and a
// miss there is not an error.
func (s *Store) SetStatus(ctx context.Context, siteID, rawMAC string, status domain.SessionStatus) error {
	clientMAC, err := netid.NormalizeMAC(rawMAC)
	if err != nil {
		return err
	}

	if cached := s.getCached(ctx, siteID, clientMAC); cached != nil {
		cached.Status = status
		if raw, err := json.Marshal(cached); err == nil {
			if err := s.kv.Set(ctx, cacheKey(siteID, clientMAC), string(raw), s.ttl); err != nil {
				s.logger.Warn("session cache update failed",
					zap.String("site_id", siteID),
					zap.Error(err),
				)
			}
		}
	}

	return s.repo.SetStatus(ctx, siteID, clientMAC, status)
}

func (s *Store) getCached(ctx context.Context, siteID, clientMAC string) *cacheEntry {
	raw, err := s.kv.Get(ctx, cacheKey(siteID, clientMAC))
	if err != nil {
		if !errors.Is(err, store.ErrMiss) {
			s.logger.Warn("session cache read failed",
				zap.String("site_id", siteID),
				zap.Error(err),
			)
		}
		return nil
	}
	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.PortalSessionID == "" {
		s.logger.Warn("session cache entry corrupt",
			zap.String("site_id", siteID),
			zap.String("client_mac", clientMAC),
		)
		return nil
	}
	return &entry
}

func (s *Store) putCached(ctx context.Context, siteID string, sess *domain.PortalSession) {
	entry := cacheEntry{
		PortalSessionID: sess.ID,
		ClientMAC:       sess.ClientMAC,
		APMAC:           sess.APMAC,
		SSID:            sess.SSID,
		OrigURL:         sess.OrigURL,
		CreatedAt:       sess.CreatedAt,
		Status:          sess.Status,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.kv.Set(ctx, cacheKey(siteID, sess.ClientMAC), string(raw), s.ttl); err != nil {
		s.logger.Warn("session cache write failed",
			zap.String("site_id", siteID),
			zap.Error(err),
		)
	}
}
