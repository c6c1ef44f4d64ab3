// Package netid canonicalizes the identifiers guests arrive with:
// device MAC addresses and the originally requested URL.
package netid

import (
	"errors"
	"strings"
)

// ErrInvalidMAC is returned when an input does not contain exactly
// twelve hex digits once separators are stripped.
var ErrInvalidMAC = errors.New("invalid mac address")

// MaxOrigURLLen caps the stored original-URL length.
const MaxOrigURLLen = 2048

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// NormalizeMAC strips every non-hex character from raw and formats the
// remaining digits as uppercase colon-separated pairs. Every session
// lookup, mutation and cache key goes through this first, so the cache
// and durable keys agree regardless of the caller's formatting.
func NormalizeMAC(raw string) (string, error) {
	var hex strings.Builder
	for i := 0; i < len(raw); i++ {
		if isHexDigit(raw[i]) {
			hex.WriteByte(raw[i])
		}
	}
	digits := hex.String()
	if len(digits) != 12 {
		return "", ErrInvalidMAC
	}

	var out strings.Builder
	out.Grow(17)
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			out.WriteByte(':')
		}
		out.WriteString(strings.ToUpper(digits[i : i+2]))
	}
	return out.String(), nil
}

// SanitizeOrigURL strips control characters and truncates to
// MaxOrigURLLen. Empty input stays empty.
func SanitizeOrigURL(url string) string {
	if url == "" {
		return ""
	}
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, url)
	if len(cleaned) > MaxOrigURLLen {
		cleaned = cleaned[:MaxOrigURLLen]
	}
	return cleaned
}
