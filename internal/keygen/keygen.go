// Package keygen mints and validates license keys.
//
// A canonical key is PREFIX-G1-G2-…-Gk where the random body is drawn from
// the 36-symbol uppercase alphanumeric alphabet and split into 4-character
// groups. With the default policy (prefix PRUDA, length 16) keys look like
// PRUDA-XXXX-XXXX-XXXX-XXXX.
package keygen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	alphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	groupSize = 4

	// MaxGenerateRetries bounds collision regeneration before the
	// authority gives up with ErrKeyExhaustion.
	MaxGenerateRetries = 8
)

// ErrKeyExhaustion is returned when repeated generation keeps colliding
// with existing keys.
var ErrKeyExhaustion = errors.New("license key space exhausted after retries")

var (
	prefixPattern = regexp.MustCompile(`^[A-Z0-9]{1,8}$`)
	lengthChoices = map[int]bool{12: true, 16: true, 20: true, 24: true}
)

// Codec formats and validates keys under a prefix/length policy.
type Codec struct {
	Prefix string
	Length int

	// Rand overrides the entropy source; nil means crypto/rand.
	Rand io.Reader
}

// New returns a Codec after validating the policy knobs.
func New(prefix string, length int) (Codec, error) {
	if !prefixPattern.MatchString(prefix) {
		return Codec{}, fmt.Errorf("license prefix %q: must be 1-8 uppercase alphanumerics", prefix)
	}
	if !lengthChoices[length] {
		return Codec{}, fmt.Errorf("license length %d: must be one of 12, 16, 20, 24", length)
	}
	return Codec{Prefix: prefix, Length: length}, nil
}

// Generate draws a fresh key using rejection sampling so every alphabet
// symbol is equally likely.
func (c Codec) Generate() (string, error) {
	src := c.Rand
	if src == nil {
		src = rand.Reader
	}

	body := make([]byte, 0, c.Length)
	buf := make([]byte, 1)
	// 252 is the largest multiple of 36 below 256; bytes at or above it
	// would bias the low symbols and are redrawn.
	const limit = byte(252)
	for len(body) < c.Length {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", fmt.Errorf("read entropy: %w", err)
		}
		if buf[0] >= limit {
			continue
		}
		body = append(body, alphabet[int(buf[0])%len(alphabet)])
	}

	return c.format(string(body)), nil
}

// format splits the body into 4-character groups behind the prefix.
func (c Codec) format(body string) string {
	var sb strings.Builder
	sb.Grow(len(c.Prefix) + len(body) + len(body)/groupSize)
	sb.WriteString(c.Prefix)
	for i := 0; i < len(body); i += groupSize {
		sb.WriteByte('-')
		sb.WriteString(body[i : i+groupSize])
	}
	return sb.String()
}

// Canonicalize strips whitespace and uppercases the input. It is
// idempotent; pass the result to Validate.
func (c Codec) Canonicalize(key string) string {
	key = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, key)
	return strings.ToUpper(key)
}

// Validate reports whether key is a canonical key under this policy.
func (c Codec) Validate(key string) bool {
	return c.Pattern().MatchString(key)
}

// Pattern returns the canonical-key regexp for this policy.
func (c Codec) Pattern() *regexp.Regexp {
	groups := c.Length / groupSize
	return regexp.MustCompile(fmt.Sprintf(`^%s(-[A-Z0-9]{%d}){%d}$`,
		regexp.QuoteMeta(c.Prefix), groupSize, groups))
}
