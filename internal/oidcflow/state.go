// Package oidcflow runs the authorization-code leg of federated guest
// sign-in: per-session state/nonce/PKCE bookkeeping plus the token
// exchange and ID-token verification against the provider.
package oidcflow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"redux-portal/internal/store"

	"github.com/google/uuid"
)

const DefaultStateTTL = 10 * time.Minute

var ErrStateInvalid = errors.New("invalid oidc state token")

// State is the server-side record for one in-flight sign-in. It lives
// only for the redirect round trip.
type State struct {
	State        string `json:"state"`
	Nonce        string `json:"nonce"`
	CodeVerifier string `json:"code_verifier"`
	ProviderID   string `json:"provider_id"`
}

// StateStore keeps at most one in-flight sign-in per portal session.
type StateStore struct {
	kv  store.KV
	ttl time.Duration
}

func NewStateStore(kv store.KV, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{kv: kv, ttl: ttl}
}

func stateKey(sessionID string) string { return "oidc:" + sessionID }

// GenerateStateToken builds the `state` value round-tripped through
// the provider: the portal session id plus a random suffix, so the
// callback can recover the session without a cookie.
func GenerateStateToken(sessionID string) (string, error) {
	suffix, err := randomToken(16)
	if err != nil {
		return "", err
	}
	return sessionID + "." + suffix, nil
}

// ParseSessionFromState recovers the portal session id from a state
// token received on the callback. The prefix must be a UUID; anything
// else is an attacker-crafted token and must never reach storage.
func ParseSessionFromState(token string) (string, error) {
	sessionID, suffix, ok := strings.Cut(token, ".")
	if !ok || suffix == "" {
		return "", ErrStateInvalid
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return "", ErrStateInvalid
	}
	return sessionID, nil
}

// Put stores the state record, replacing any previous in-flight
// sign-in for the session.
func (s *StateStore) Put(ctx context.Context, sessionID string, st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, stateKey(sessionID), string(raw), s.ttl); err != nil {
		return fmt.Errorf("failed to store oidc state: %w", err)
	}
	return nil
}

// Get returns the stored state or store.ErrMiss when none is live.
func (s *StateStore) Get(ctx context.Context, sessionID string) (*State, error) {
	raw, err := s.kv.Get(ctx, stateKey(sessionID))
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("corrupt oidc state: %w", err)
	}
	return &st, nil
}

// Clear removes the state; called after a callback regardless of
// outcome so a state token is single-use.
func (s *StateStore) Clear(ctx context.Context, sessionID string) error {
	return s.kv.Del(ctx, stateKey(sessionID))
}

// NewNonce returns a fresh random nonce.
func NewNonce() (string, error) { return randomToken(16) }

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
