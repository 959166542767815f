package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prudad/internal/database"
	apperrors "prudad/internal/errors"
	"prudad/internal/model"
)

func setupLicenseStore(t *testing.T) *LicenseStore {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err, "open test db")
	t.Cleanup(func() { db.Close() })
	return NewLicenseStore(db)
}

func newTestLicense(key string) *model.License {
	return &model.License{
		Key:        key,
		Status:     model.StatusPending,
		Features:   model.Features{ScriptAccess: true},
		HwidPolicy: model.HwidRequired,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

func TestLicenseInsertAndGet(t *testing.T) {
	s := setupLicenseStore(t)
	ctx := context.Background()

	lic := newTestLicense("PRUDA-AAAA-BBBB-CCCC-DDDD")
	require.NoError(t, s.Insert(ctx, lic))
	assert.NotZero(t, lic.ID)

	byID, err := s.GetByID(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, lic.Key, byID.Key)
	assert.Equal(t, model.StatusPending, byID.Status)
	assert.True(t, byID.Features.ScriptAccess)
	assert.Nil(t, byID.Hwid)
	assert.Nil(t, byID.ExpiresAt)

	byKey, err := s.GetByKey(ctx, lic.Key)
	require.NoError(t, err)
	assert.Equal(t, lic.ID, byKey.ID)
}

func TestLicenseInsertDuplicateKey(t *testing.T) {
	s := setupLicenseStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, newTestLicense("PRUDA-AAAA-AAAA-AAAA-AAAA")))
	err := s.Insert(ctx, newTestLicense("PRUDA-AAAA-AAAA-AAAA-AAAA"))
	assert.ErrorIs(t, err, apperrors.ErrDuplicateKey)
}

func TestLicenseGetNotFound(t *testing.T) {
	s := setupLicenseStore(t)
	ctx := context.Background()

	_, err := s.GetByID(ctx, 999)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = s.GetByKey(ctx, "PRUDA-ZZZZ-ZZZZ-ZZZZ-ZZZZ")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLicenseList(t *testing.T) {
	s := setupLicenseStore(t)
	ctx := context.Background()

	a := newTestLicense("PRUDA-AAAA-1111-1111-1111")
	b := newTestLicense("PRUDA-BBBB-2222-2222-2222")
	b.Status = model.StatusActive
	require.NoError(t, s.Insert(ctx, a))
	require.NoError(t, s.Insert(ctx, b))

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := s.List(ctx, Filter{Status: model.StatusActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, b.Key, active[0].Key)

	matched, err := s.List(ctx, Filter{KeySubstring: "AAAA"})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, a.Key, matched[0].Key)
}

func TestLicenseUpdate(t *testing.T) {
	s := setupLicenseStore(t)
	ctx := context.Background()

	lic := newTestLicense("PRUDA-CCCC-3333-3333-3333")
	require.NoError(t, s.Insert(ctx, lic))

	now := time.Now().UTC().Truncate(time.Second)
	expires := now.Add(30 * 24 * time.Hour)
	hwid := "device-fingerprint-1"
	active := model.StatusActive
	require.NoError(t, s.Update(ctx, lic.ID, Patch{
		Status:      &active,
		Hwid:        &hwid,
		ActivatedAt: &now,
		ExpiresAt:   &expires,
	}))

	got, err := s.GetByID(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
	require.NotNil(t, got.Hwid)
	assert.Equal(t, hwid, *got.Hwid)
	require.NotNil(t, got.ActivatedAt)
	assert.True(t, got.ActivatedAt.Equal(now))
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(expires))

	// Empty patch is a no-op, not an error.
	assert.NoError(t, s.Update(ctx, lic.ID, Patch{}))

	err = s.Update(ctx, 999, Patch{Status: &active})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLicenseDelete(t *testing.T) {
	s := setupLicenseStore(t)
	ctx := context.Background()

	lic := newTestLicense("PRUDA-DDDD-4444-4444-4444")
	require.NoError(t, s.Insert(ctx, lic))
	require.NoError(t, s.Delete(ctx, lic.ID))

	_, err := s.GetByID(ctx, lic.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, lic.ID), apperrors.ErrNotFound)
}

func TestLicenseCountByStatus(t *testing.T) {
	s := setupLicenseStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	pending := newTestLicense("PRUDA-0000-0000-0000-0001")
	require.NoError(t, s.Insert(ctx, pending))

	active := newTestLicense("PRUDA-0000-0000-0000-0002")
	active.Status = model.StatusActive
	future := now.Add(24 * time.Hour)
	active.ExpiresAt = &future
	require.NoError(t, s.Insert(ctx, active))

	// Stored active but past its expiry: counts as expired.
	stale := newTestLicense("PRUDA-0000-0000-0000-0003")
	stale.Status = model.StatusActive
	past := now.Add(-time.Hour)
	stale.ExpiresAt = &past
	require.NoError(t, s.Insert(ctx, stale))

	revoked := newTestLicense("PRUDA-0000-0000-0000-0004")
	revoked.Status = model.StatusRevoked
	require.NoError(t, s.Insert(ctx, revoked))

	counts, err := s.CountByStatus(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, StatusCounts{Total: 4, Active: 1, Pending: 1, Expired: 1, Revoked: 1}, counts)
}

func TestLicenseExpireDue(t *testing.T) {
	s := setupLicenseStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := newTestLicense("PRUDA-EEEE-5555-5555-5555")
	due.Status = model.StatusActive
	past := now.Add(-time.Minute)
	due.ExpiresAt = &past
	require.NoError(t, s.Insert(ctx, due))

	fresh := newTestLicense("PRUDA-FFFF-6666-6666-6666")
	fresh.Status = model.StatusActive
	future := now.Add(time.Hour)
	fresh.ExpiresAt = &future
	require.NoError(t, s.Insert(ctx, fresh))

	expired, err := s.ExpireDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, due.Key, expired[0].Key)
	assert.Equal(t, model.StatusExpired, expired[0].Status)

	got, err := s.GetByID(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)

	// Second sweep finds nothing; each record flips once.
	expired, err = s.ExpireDue(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestLicenseListExpiringSoon(t *testing.T) {
	s := setupLicenseStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	soon := newTestLicense("PRUDA-1111-7777-7777-7777")
	soon.Status = model.StatusActive
	in2d := now.Add(48 * time.Hour)
	soon.ExpiresAt = &in2d
	require.NoError(t, s.Insert(ctx, soon))

	far := newTestLicense("PRUDA-2222-8888-8888-8888")
	far.Status = model.StatusActive
	in10d := now.Add(240 * time.Hour)
	far.ExpiresAt = &in10d
	require.NoError(t, s.Insert(ctx, far))

	got, err := s.ListExpiringSoon(ctx, now, 72*time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, soon.Key, got[0].Key)
}
