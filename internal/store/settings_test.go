package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prudad/internal/database"
	"prudad/internal/model"
)

func setupSettingsRegistry(t *testing.T) *SettingsRegistry {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err, "open test db")
	t.Cleanup(func() { db.Close() })
	return NewSettingsRegistry(db)
}

func TestSettingsDefaults(t *testing.T) {
	r := setupSettingsRegistry(t)
	ctx := context.Background()

	prefix, err := r.LicensePrefix(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PRUDA", prefix)

	length, err := r.LicenseLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16, length)

	duration, err := r.DefaultLicenseDuration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, duration)

	strict, err := r.StrictHwidCheck(ctx)
	require.NoError(t, err)
	assert.True(t, strict)

	multi, err := r.AllowMultipleDevices(ctx)
	require.NoError(t, err)
	assert.False(t, multi)
}

func TestSettingsWriteThrough(t *testing.T) {
	r := setupSettingsRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, model.SettingLicensePrefix, "ACME"))
	require.NoError(t, r.Set(ctx, model.SettingLicenseLength, "20"))
	require.NoError(t, r.Set(ctx, model.SettingStrictHwidCheck, "false"))

	prefix, err := r.LicensePrefix(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ACME", prefix)

	length, err := r.LicenseLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, length)

	strict, err := r.StrictHwidCheck(ctx)
	require.NoError(t, err)
	assert.False(t, strict)

	// Overwrite invalidates the cached value.
	require.NoError(t, r.Set(ctx, model.SettingLicensePrefix, "ZETA"))
	prefix, err = r.LicensePrefix(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ZETA", prefix)
}

func TestSettingsMalformedValuesFallBack(t *testing.T) {
	r := setupSettingsRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, model.SettingLicenseLength, "banana"))
	length, err := r.LicenseLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16, length)

	require.NoError(t, r.Set(ctx, model.SettingDefaultLicenseDuration, "0"))
	days, err := r.DefaultLicenseDuration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, days)

	require.NoError(t, r.Set(ctx, model.SettingAllowMultipleDevices, "maybe"))
	multi, err := r.AllowMultipleDevices(ctx)
	require.NoError(t, err)
	assert.False(t, multi)
}

func TestSettingsAll(t *testing.T) {
	r := setupSettingsRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, model.SettingLicensePrefix, "ACME"))
	require.NoError(t, r.Set(ctx, "customKnob", "42"))

	all, err := r.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		model.SettingLicensePrefix: "ACME",
		"customKnob":               "42",
	}, all)
}
