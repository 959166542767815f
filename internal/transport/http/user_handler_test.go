package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prudad/internal/model"
)

func TestUserCreateListDelete(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/users/", CreateUserRequest{
		Username: "alice", Password: "correcthorse", IsAdmin: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.User](t, rec)
	assert.Equal(t, "alice", created.Username)
	assert.True(t, created.IsAdmin)
	assert.NotContains(t, rec.Body.String(), "passwordHash")

	rec = f.do(t, http.MethodGet, "/api/users/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]model.User](t, rec)
	require.Len(t, users, 1)

	rec = f.do(t, http.MethodDelete, "/api/users/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/users/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]model.User](t, rec))
}

func TestUserCreateValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/users/", CreateUserRequest{Password: "longenough"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/users/", CreateUserRequest{Username: "bob", Password: "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserDuplicateUsername(t *testing.T) {
	f := newAPIFixture(t)

	body := CreateUserRequest{Username: "alice", Password: "correcthorse"}
	rec := f.do(t, http.MethodPost, "/api/users/", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/users/", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
