// Package hwid normalizes and compares hardware identifiers.
//
// The server treats an HWID as an opaque case-sensitive string; clients
// typically send the derived browser fingerprint (see Fingerprint), but
// nothing here depends on that shape.
package hwid

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// MaxLen caps stored identifiers at 128 bytes.
const MaxLen = 128

var (
	// ErrMismatch is returned when a presented HWID does not match the
	// bound one under the active policy.
	ErrMismatch = errors.New("hwid mismatch")

	// ErrTooLong is returned for identifiers over MaxLen bytes.
	ErrTooLong = errors.New("hwid exceeds 128 bytes")
)

// Normalize trims surrounding whitespace. Case is preserved; HWIDs are
// compared byte for byte.
func Normalize(id string) (string, error) {
	id = strings.TrimSpace(id)
	if len(id) > MaxLen {
		return "", ErrTooLong
	}
	return id, nil
}

// Policy carries the two settings that govern binding decisions.
type Policy struct {
	// Strict rejects any mismatch against the bound HWID.
	Strict bool
	// AllowMultiple permits additional devices: mismatches are
	// bound-compatible without mutating the stored HWID, and the
	// already-bound rejection on activation is disabled.
	AllowMultiple bool
}

// Match decides whether a presented HWID is acceptable against the bound
// one. Both inputs are assumed normalized. An empty bound value always
// matches (nothing is bound yet).
func (p Policy) Match(bound, presented string) error {
	if bound == "" || bound == presented {
		return nil
	}
	if p.Strict {
		return ErrMismatch
	}
	if p.AllowMultiple {
		return nil
	}
	return ErrMismatch
}

// Fingerprint derives the reference client identifier from browser
// entropy: SHA-256 over the '|'-joined components, first 8 hex chars
// uppercased and grouped in pairs (e.g. A3-7F-10-22). Provided for
// non-browser clients and for test vectors; the server never derives
// HWIDs itself.
func Fingerprint(screen, timezone, language, platform, userAgent string) string {
	raw := strings.Join([]string{screen, timezone, language, platform, userAgent}, "|")
	sum := sha256.Sum256([]byte(raw))
	hexed := strings.ToUpper(hex.EncodeToString(sum[:4]))
	return fmt.Sprintf("%s-%s-%s-%s", hexed[0:2], hexed[2:4], hexed[4:6], hexed[6:8])
}
