package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "prudad/internal/errors"
	"prudad/internal/model"
	"prudad/internal/store"
)

// UserHandler serves the /api/users admin endpoints.
type UserHandler struct {
	users  *store.UserStore
	logger *slog.Logger
}

func NewUserHandler(users *store.UserStore, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger.With(slog.String("handler", "users")),
	}
}

func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Delete("/{id}", h.Delete)
	return r
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		render.Render(w, r, apperrors.Map(err))
		return
	}
	if users == nil {
		users = []model.User{}
	}
	render.JSON(w, r, users)
}

// CreateUserRequest carries the new account fields. The password is
// hashed by the store and never echoed back.
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
	Password string `json:"password" validate:"required,min=8"`
	IsAdmin  bool   `json:"isAdmin"`
}

func (c *CreateUserRequest) Bind(r *http.Request) error {
	return validate.Struct(c)
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	req := &CreateUserRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apperrors.Map(apperrors.Validationf("%v", err)))
		return
	}

	user := &model.User{Username: req.Username, IsAdmin: req.IsAdmin}
	if err := h.users.Create(r.Context(), user, req.Password); err != nil {
		render.Render(w, r, apperrors.Map(err))
		return
	}

	h.logger.InfoContext(r.Context(), "user created",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, user)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		render.Render(w, r, apperrors.Map(apperrors.Validationf("malformed user id")))
		return
	}
	if err := h.users.Delete(r.Context(), id); err != nil {
		render.Render(w, r, apperrors.Map(err))
		return
	}
	render.NoContent(w, r)
}
