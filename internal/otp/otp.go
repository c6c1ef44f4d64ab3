// Package otp issues and verifies short-lived email one-time codes.
// Only an HMAC of the code ever reaches the store; the plaintext code
// exists in the mail message and nowhere else.
package otp

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"redux-portal/internal/domain"
	"redux-portal/internal/store"

	"go.uber.org/zap"
)

const (
	DefaultTTL         = 10 * time.Minute
	DefaultMaxAttempts = 5

	codeDigits = 6
)

// challenge is the stored state for one outstanding code.
type challenge struct {
	CodeHash  string    `json:"code_hash"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// Engine issues at most one live challenge per (site, device, email);
// starting a new one overwrites any previous challenge for the triple.
type Engine struct {
	kv          store.KV
	secret      []byte
	ttl         time.Duration
	maxAttempts int
	logger      *zap.Logger
}

func NewEngine(kv store.KV, secret string, ttl time.Duration, maxAttempts int, logger *zap.Logger) *Engine {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Engine{
		kv:          kv,
		secret:      []byte(secret),
		ttl:         ttl,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// challengeKey hashes the email so addresses never appear in store
// keys. Email matching is case-insensitive.
func challengeKey(siteID, clientMAC, email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("otp:%s:%s:%s", siteID, clientMAC, hex.EncodeToString(sum[:]))
}

func (e *Engine) hashCode(code string) string {
	mac := hmac.New(sha256.New, e.secret)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// Start generates a fresh zero-padded numeric code, stores its hash
// with a zeroed attempt counter, and returns the plaintext code for
// delivery.
func (e *Engine) Start(ctx context.Context, siteID, clientMAC, email string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	raw, err := json.Marshal(challenge{
		CodeHash:  e.hashCode(code),
		Attempts:  0,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	if err := e.kv.Set(ctx, challengeKey(siteID, clientMAC, email), string(raw), e.ttl); err != nil {
		return "", fmt.Errorf("failed to store challenge: %w", err)
	}
	return code, nil
}

// Verify checks a submitted code. A missing or expired challenge
// reports OTP_EXPIRED; exhausting the attempt budget deletes the
// challenge and reports OTP_LOCKED; a successful match deletes the
// challenge so the code is single-use.
func (e *Engine) Verify(ctx context.Context, siteID, clientMAC, email, code string) (bool, domain.Reason, error) {
	key := challengeKey(siteID, clientMAC, email)

	raw, err := e.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return false, domain.ReasonOtpExpired, nil
		}
		return false, domain.ReasonNone, err
	}
	var ch challenge
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		e.logger.Warn("otp challenge corrupt", zap.String("site_id", siteID))
		if err := e.kv.Del(ctx, key); err != nil {
			return false, domain.ReasonNone, err
		}
		return false, domain.ReasonOtpExpired, nil
	}

	if ch.Attempts >= e.maxAttempts {
		if err := e.kv.Del(ctx, key); err != nil {
			return false, domain.ReasonNone, err
		}
		return false, domain.ReasonOtpLocked, nil
	}

	if subtle.ConstantTimeCompare([]byte(e.hashCode(strings.TrimSpace(code))), []byte(ch.CodeHash)) != 1 {
		ch.Attempts++
		if ch.Attempts >= e.maxAttempts {
			if err := e.kv.Del(ctx, key); err != nil {
				return false, domain.ReasonNone, err
			}
			return false, domain.ReasonOtpLocked, nil
		}
		updated, err := json.Marshal(ch)
		if err != nil {
			return false, domain.ReasonNone, err
		}
		if err := e.kv.Set(ctx, key, string(updated), e.ttl); err != nil {
			return false, domain.ReasonNone, err
		}
		return false, domain.ReasonOtpInvalid, nil
	}

	if err := e.kv.Del(ctx, key); err != nil {
		return false, domain.ReasonNone, err
	}
	return true, domain.ReasonNone, nil
}

func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}
