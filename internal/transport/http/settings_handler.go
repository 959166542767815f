package http

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "prudad/internal/errors"
	"prudad/internal/store"
)

// SettingsHandler serves the /api/settings endpoints.
type SettingsHandler struct {
	settings *store.SettingsRegistry
	logger   *slog.Logger
}

func NewSettingsHandler(settings *store.SettingsRegistry, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		logger:   logger.With(slog.String("handler", "settings")),
	}
}

func (h *SettingsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Save)
	r.Get("/{key}", h.Get)
	r.Post("/{key}", h.SaveOne)
	return r
}

// SettingPayload is one key/value pair on the wire.
type SettingPayload struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *SettingPayload) Bind(r *http.Request) error {
	if s.Key == "" {
		return apperrors.Validationf("key is required")
	}
	return nil
}

func (h *SettingsHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.settings.All(r.Context())
	if err != nil {
		render.Render(w, r, apperrors.Map(err))
		return
	}
	out := make([]SettingPayload, 0, len(all))
	for k, v := range all {
		out = append(out, SettingPayload{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	render.JSON(w, r, out)
}

// Save upserts one setting given as a {key, value} body. The dashboard
// saves its form one setting at a time.
func (h *SettingsHandler) Save(w http.ResponseWriter, r *http.Request) {
	req := &SettingPayload{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apperrors.Map(apperrors.Validationf("%v", err)))
		return
	}
	if err := h.settings.Set(r.Context(), req.Key, req.Value); err != nil {
		render.Render(w, r, apperrors.Map(err))
		return
	}
	render.JSON(w, r, req)
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, ok, err := h.settings.Get(r.Context(), key)
	if err != nil {
		render.Render(w, r, apperrors.Map(err))
		return
	}
	if !ok {
		render.Render(w, r, apperrors.Map(apperrors.ErrNotFound))
		return
	}
	render.JSON(w, r, SettingPayload{Key: key, Value: value})
}

// ValuePayload is the body for POST /api/settings/{key}.
type ValuePayload struct {
	Value string `json:"value"`
}

func (v *ValuePayload) Bind(r *http.Request) error { return nil }

func (h *SettingsHandler) SaveOne(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	req := &ValuePayload{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apperrors.Map(apperrors.Validationf("%v", err)))
		return
	}
	if err := h.settings.Set(r.Context(), key, req.Value); err != nil {
		render.Render(w, r, apperrors.Map(err))
		return
	}
	render.JSON(w, r, SettingPayload{Key: key, Value: req.Value})
}
