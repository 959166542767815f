package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"prudad/internal/database"
	apperrors "prudad/internal/errors"
	"prudad/internal/model"
)

func setupUserStore(t *testing.T) *UserStore {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err, "open test db")
	t.Cleanup(func() { db.Close() })
	return NewUserStore(db)
}

func TestUserCreateHashesPassword(t *testing.T) {
	s := setupUserStore(t)
	ctx := context.Background()

	u := &model.User{Username: "alice", IsAdmin: true}
	require.NoError(t, s.Create(ctx, u, "s3cret"))
	assert.NotZero(t, u.ID)
	assert.NotEqual(t, "s3cret", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret")))
}

func TestUserCreateDuplicateUsername(t *testing.T) {
	s := setupUserStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &model.User{Username: "alice"}, "pw"))
	err := s.Create(ctx, &model.User{Username: "alice"}, "pw")
	assert.ErrorIs(t, err, apperrors.ErrDuplicateKey)
}

func TestUserAuthenticate(t *testing.T) {
	s := setupUserStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &model.User{Username: "alice"}, "s3cret"))

	u, err := s.Authenticate(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = s.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = s.Authenticate(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserSetPassword(t *testing.T) {
	s := setupUserStore(t)
	ctx := context.Background()

	u := &model.User{Username: "alice"}
	require.NoError(t, s.Create(ctx, u, "old"))
	require.NoError(t, s.SetPassword(ctx, u.ID, "new"))

	_, err := s.Authenticate(ctx, "alice", "old")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = s.Authenticate(ctx, "alice", "new")
	assert.NoError(t, err)

	assert.ErrorIs(t, s.SetPassword(ctx, 999, "x"), apperrors.ErrNotFound)
}

func TestUserListAndDelete(t *testing.T) {
	s := setupUserStore(t)
	ctx := context.Background()

	a := &model.User{Username: "alice"}
	b := &model.User{Username: "bob"}
	require.NoError(t, s.Create(ctx, a, "pw"))
	require.NoError(t, s.Create(ctx, b, "pw"))

	users, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)

	require.NoError(t, s.Delete(ctx, a.ID))
	users, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	assert.ErrorIs(t, s.Delete(ctx, a.ID), apperrors.ErrNotFound)
}
