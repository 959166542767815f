package hwid

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	got, err := Normalize("  A3-7F-10-22  ")
	require.NoError(t, err)
	assert.Equal(t, "A3-7F-10-22", got)

	// Case is preserved, not folded.
	got, err = Normalize("a3-7f-10-22")
	require.NoError(t, err)
	assert.Equal(t, "a3-7f-10-22", got)

	_, err = Normalize(strings.Repeat("x", MaxLen+1))
	assert.ErrorIs(t, err, ErrTooLong)

	got, err = Normalize(strings.Repeat("x", MaxLen))
	require.NoError(t, err)
	assert.Len(t, got, MaxLen)
}

func TestPolicy_Match(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		bound     string
		presented string
		wantErr   bool
	}{
		{name: "unbound always matches", policy: Policy{Strict: true}, bound: "", presented: "A3-7F-10-22"},
		{name: "exact match strict", policy: Policy{Strict: true}, bound: "A3-7F-10-22", presented: "A3-7F-10-22"},
		{name: "mismatch strict", policy: Policy{Strict: true}, bound: "A3-7F-10-22", presented: "FF-FF-FF-FF", wantErr: true},
		{name: "case difference is a mismatch", policy: Policy{Strict: true}, bound: "A3-7F-10-22", presented: "a3-7f-10-22", wantErr: true},
		{name: "lenient without multi-device still rejects", policy: Policy{}, bound: "A3-7F-10-22", presented: "FF-FF-FF-FF", wantErr: true},
		{name: "lenient with multi-device accepts", policy: Policy{AllowMultiple: true}, bound: "A3-7F-10-22", presented: "FF-FF-FF-FF"},
		{name: "strict overrides multi-device on mismatch", policy: Policy{Strict: true, AllowMultiple: true}, bound: "A3-7F-10-22", presented: "FF-FF-FF-FF", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Match(tt.bound, tt.presented)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMismatch)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("1920x1080x24", "America/New_York", "en-US", "MacIntel",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)")

	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{2}(-[0-9A-F]{2}){3}$`), fp)

	// Deterministic for identical inputs.
	again := Fingerprint("1920x1080x24", "America/New_York", "en-US", "MacIntel",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)")
	assert.Equal(t, fp, again)

	// Any component change moves the hash.
	other := Fingerprint("2560x1440x24", "America/New_York", "en-US", "MacIntel",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)")
	assert.NotEqual(t, fp, other)
}
