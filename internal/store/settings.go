package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"

	"prudad/internal/model"
)

// Defaults for operational settings absent from the settings table.
const (
	defaultLicensePrefix       = "PRUDA"
	defaultLicenseLength       = 16
	defaultLicenseDurationDays = 30
)

// SettingsRegistry is a read-through cache over the settings table.
// Values are cached until written through Set, which invalidates the
// cached entry so subsequent reads observe the new value.
type SettingsRegistry struct {
	db *sql.DB

	mu    sync.RWMutex
	cache map[string]string
}

func NewSettingsRegistry(db *sql.DB) *SettingsRegistry {
	return &SettingsRegistry{
		db:    db,
		cache: make(map[string]string),
	}
}

// Get returns the raw value for key, or ok=false when unset.
func (r *SettingsRegistry) Get(ctx context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	if v, hit := r.cache[key]; hit {
		r.mu.RUnlock()
		return v, true, nil
	}
	r.mu.RUnlock()

	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}

	r.mu.Lock()
	r.cache[key] = value
	r.mu.Unlock()
	return value, true, nil
}

// Set writes a setting through to the database and refreshes the cache.
func (r *SettingsRegistry) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`, key, value)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}

	r.mu.Lock()
	r.cache[key] = value
	r.mu.Unlock()
	return nil
}

// All returns every stored setting, bypassing the cache.
func (r *SettingsRegistry) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// LicensePrefix returns the configured key prefix.
func (r *SettingsRegistry) LicensePrefix(ctx context.Context) (string, error) {
	v, ok, err := r.Get(ctx, model.SettingLicensePrefix)
	if err != nil || !ok {
		return defaultLicensePrefix, err
	}
	return v, nil
}

// LicenseLength returns the configured random-symbol count.
func (r *SettingsRegistry) LicenseLength(ctx context.Context) (int, error) {
	v, ok, err := r.Get(ctx, model.SettingLicenseLength)
	if err != nil || !ok {
		return defaultLicenseLength, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultLicenseLength, nil
	}
	return n, nil
}

// DefaultLicenseDuration returns the validity in days applied when an
// issue request names no duration.
func (r *SettingsRegistry) DefaultLicenseDuration(ctx context.Context) (int, error) {
	v, ok, err := r.Get(ctx, model.SettingDefaultLicenseDuration)
	if err != nil || !ok {
		return defaultLicenseDurationDays, err
	}
	days, err := strconv.Atoi(v)
	if err != nil || days < 1 {
		return defaultLicenseDurationDays, nil
	}
	return days, nil
}

// StrictHwidCheck reports whether hardware binding rejects any mismatch.
func (r *SettingsRegistry) StrictHwidCheck(ctx context.Context) (bool, error) {
	return r.boolSetting(ctx, model.SettingStrictHwidCheck, true)
}

// AllowMultipleDevices reports whether a key may verify from devices
// other than the one it is bound to.
func (r *SettingsRegistry) AllowMultipleDevices(ctx context.Context) (bool, error) {
	return r.boolSetting(ctx, model.SettingAllowMultipleDevices, false)
}

func (r *SettingsRegistry) boolSetting(ctx context.Context, key string, fallback bool) (bool, error) {
	v, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return fallback, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, nil
	}
	return b, nil
}
