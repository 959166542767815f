// Package http adapts the HTTP surface to authority and store calls.
// Admin endpoints render plain APIError payloads; the client-facing
// verify and activate endpoints speak RFC 7807.
package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"prudad/internal/authority"
	apperrors "prudad/internal/errors"
	"prudad/internal/model"
	"prudad/internal/store"
)

// validate checks the struct tags on request payloads.
var validate = validator.New()

// LicenseHandler serves the /api/licenses endpoints.
type LicenseHandler struct {
	authority *authority.Authority
	logger    *slog.Logger
}

func NewLicenseHandler(a *authority.Authority, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		authority: a,
		logger:    logger.With(slog.String("handler", "license")),
	}
}

// Routes mounts the license endpoints. Verify and activate stay open
// for clients; the rest sits behind adminOnly when one is given.
func (h *LicenseHandler) Routes(adminOnly func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/verify", h.Verify)
	r.Post("/activate", h.Activate)
	r.Group(func(admin chi.Router) {
		if adminOnly != nil {
			admin.Use(adminOnly)
		}
		admin.Post("/generate", h.Generate)
		admin.Get("/", h.List)
		admin.Get("/stats", h.Stats)
		admin.Put("/{id}", h.Update)
		admin.Delete("/{id}", h.Delete)
	})
	return r
}

// GenerateRequest is the POST /api/licenses/generate payload.
type GenerateRequest struct {
	LicenseType     string         `json:"licenseType" validate:"omitempty,oneof=standard premium annual custom"`
	Duration        int            `json:"duration,omitempty" validate:"omitempty,min=1"`
	DurationType    string         `json:"durationType,omitempty" validate:"omitempty,oneof=days months years"`
	DiscordUsername string         `json:"discordUsername,omitempty" validate:"omitempty,max=64"`
	HwidLock        string         `json:"hwidLock,omitempty" validate:"omitempty,oneof=required optional none"`
	Features        model.Features `json:"features"`
	UserID          *int64         `json:"userId,omitempty"`
}

// Bind implements render.Binder. Deep validation happens in the
// authority; this rejects only shapes that can never be valid.
func (g *GenerateRequest) Bind(r *http.Request) error {
	return validate.Struct(g)
}

// LicenseResponse wraps a single license.
type LicenseResponse struct {
	License *model.License `json:"license"`
}

func (h *LicenseHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &GenerateRequest{}
	if err := render.Bind(r, req); err != nil {
		h.renderError(w, r, apperrors.Validationf("%v", err))
		return
	}

	lic, err := h.authority.Issue(ctx, authority.IssueRequest{
		LicenseType:     req.LicenseType,
		Duration:        req.Duration,
		DurationType:    req.DurationType,
		DiscordUsername: req.DiscordUsername,
		HwidPolicy:      model.HwidPolicy(req.HwidLock),
		Features:        req.Features,
		UserID:          req.UserID,
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, LicenseResponse{License: lic})
}

func (h *LicenseHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{
		Status:       model.Status(r.URL.Query().Get("status")),
		KeySubstring: r.URL.Query().Get("search"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		h.renderError(w, r, apperrors.Validationf("unknown status %q", filter.Status))
		return
	}

	out, err := h.authority.List(r.Context(), filter)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if out == nil {
		out = []model.License{}
	}
	render.JSON(w, r, out)
}

func (h *LicenseHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.authority.Stats(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, counts)
}

// UpdateRequest is the PUT /api/licenses/{id} partial patch.
type UpdateRequest struct {
	Status    *model.Status `json:"status,omitempty"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
}

func (u *UpdateRequest) Bind(r *http.Request) error {
	if u.Status == nil && u.ExpiresAt == nil {
		return apperrors.Validationf("patch must set status or expiresAt")
	}
	return nil
}

func (h *LicenseHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.renderError(w, r, apperrors.Validationf("malformed license id"))
		return
	}

	req := &UpdateRequest{}
	if err := render.Bind(r, req); err != nil {
		h.renderError(w, r, apperrors.Validationf("%v", err))
		return
	}

	lic, err := h.authority.ApplyPatch(r.Context(), id, authority.PatchRequest{
		Status:    req.Status,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, LicenseResponse{License: lic})
}

func (h *LicenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.renderError(w, r, apperrors.Validationf("malformed license id"))
		return
	}
	if err := h.authority.Delete(r.Context(), id); err != nil {
		h.renderError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

// ClientRequest is the verify/activate payload sent by clients.
type ClientRequest struct {
	LicenseKey string `json:"licenseKey" validate:"required"`
	Hwid       string `json:"hwid" validate:"max=128"`
}

func (c *ClientRequest) Bind(r *http.Request) error {
	return validate.Struct(c)
}

func (h *LicenseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	req := &ClientRequest{}
	if err := render.Bind(r, req); err != nil {
		h.renderProblem(w, r, apperrors.Validationf("%v", err))
		return
	}

	result, err := h.authority.Verify(r.Context(), req.LicenseKey, req.Hwid)
	if err != nil {
		h.renderProblem(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// ActivationResponse is the POST /api/licenses/activate result.
type ActivationResponse struct {
	Success bool           `json:"success"`
	License *model.License `json:"license"`
}

func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	req := &ClientRequest{}
	if err := render.Bind(r, req); err != nil {
		h.renderProblem(w, r, apperrors.Validationf("%v", err))
		return
	}

	result, err := h.authority.Activate(r.Context(), req.LicenseKey, req.Hwid)
	if err != nil {
		h.renderProblem(w, r, err)
		return
	}
	render.JSON(w, r, ActivationResponse{Success: true, License: result.License})
}

func (h *LicenseHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	h.logFailure(r, err)
	render.Render(w, r, apperrors.Map(err))
}

// renderProblem maps the same error taxonomy onto RFC 7807 for the
// client-facing endpoints.
func (h *LicenseHandler) renderProblem(w http.ResponseWriter, r *http.Request, err error) {
	h.logFailure(r, err)
	apiErr := apperrors.Map(err)
	pd := apperrors.NewProblemDetails(
		apiErr.StatusCode,
		"about:blank",
		apiErr.Message,
		err.Error(),
		r.URL.Path,
	).WithExtension("code", apiErr.ErrorCode)
	render.Render(w, r, pd)
}

func (h *LicenseHandler) logFailure(r *http.Request, err error) {
	level := slog.LevelWarn
	if apperrors.Map(err).StatusCode >= 500 {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "license request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))
}
