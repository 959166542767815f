package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeaturesPreserveUnknownKeys(t *testing.T) {
	in := []byte(`{"scriptAccess":true,"prioritySupport":false,"betaFeatures":true,"futureFlag":{"nested":1}}`)

	var f Features
	require.NoError(t, json.Unmarshal(in, &f))
	assert.True(t, f.ScriptAccess)
	assert.False(t, f.PrioritySupport)
	assert.True(t, f.BetaFeatures)
	require.Contains(t, f.Extra, "futureFlag")

	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, string(in), string(out))
}

func TestFeaturesEmptyRoundTrip(t *testing.T) {
	var f Features
	require.NoError(t, json.Unmarshal([]byte(`{}`), &f))
	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"scriptAccess":false,"prioritySupport":false,"betaFeatures":false}`, string(out))
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		status  Status
		expires *time.Time
		want    Status
	}{
		{"active before expiry", StatusActive, &future, StatusActive},
		{"active past expiry", StatusActive, &past, StatusExpired},
		{"active at expiry", StatusActive, &now, StatusExpired},
		{"pending past expiry", StatusPending, &past, StatusExpired},
		{"active without expiry", StatusActive, nil, StatusActive},
		{"revoked past expiry stays revoked", StatusRevoked, &past, StatusRevoked},
		{"expired stays expired", StatusExpired, &future, StatusExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := License{Status: tt.status, ExpiresAt: tt.expires}
			assert.Equal(t, tt.want, l.EffectiveStatus(now))
		})
	}
}

func TestStatusAndPolicyValidity(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusActive, StatusExpired, StatusRevoked} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("frozen").Valid())

	for _, p := range []HwidPolicy{HwidRequired, HwidOptional, HwidNone} {
		assert.True(t, p.Valid(), p)
	}
	assert.False(t, HwidPolicy("mandatory").Valid())
}
