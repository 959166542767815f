package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "prudad/internal/errors"
	"prudad/internal/events"
	"prudad/internal/model"
	"prudad/internal/store"
)

// DiscordHandler serves the /api/discord integration config endpoints.
type DiscordHandler struct {
	config *store.DiscordStore
	sink   *events.DiscordSink
	logger *slog.Logger
}

func NewDiscordHandler(config *store.DiscordStore, sink *events.DiscordSink, logger *slog.Logger) *DiscordHandler {
	return &DiscordHandler{
		config: config,
		sink:   sink,
		logger: logger.With(slog.String("handler", "discord")),
	}
}

func (h *DiscordHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Get)
	// The dashboard calls POST on first save and PUT afterwards; both
	// upsert the singleton row.
	r.Post("/", h.Save)
	r.Put("/", h.Save)
	r.Post("/test", h.Test)
	return r
}

func (h *DiscordHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.config.Get(r.Context())
	if err != nil {
		render.Render(w, r, apperrors.Map(err))
		return
	}
	render.JSON(w, r, cfg)
}

// DiscordConfigRequest is the integration config payload.
type DiscordConfigRequest struct {
	BotToken      string `json:"botToken"`
	WebhookURL    string `json:"webhookUrl" validate:"omitempty,url"`
	ServerID      string `json:"serverId"`
	LicenseRoleID string `json:"licenseRoleId"`
	AdminRoleID   string `json:"adminRoleId"`
	IsEnabled     bool   `json:"isEnabled"`
}

func (d *DiscordConfigRequest) Bind(r *http.Request) error {
	if err := validate.Struct(d); err != nil {
		return err
	}
	if d.IsEnabled && d.WebhookURL == "" {
		return apperrors.Validationf("webhookUrl is required when the integration is enabled")
	}
	return nil
}

func (h *DiscordHandler) Save(w http.ResponseWriter, r *http.Request) {
	req := &DiscordConfigRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apperrors.Map(apperrors.Validationf("%v", err)))
		return
	}

	cfg := &model.DiscordConfig{
		BotToken:      req.BotToken,
		WebhookURL:    req.WebhookURL,
		ServerID:      req.ServerID,
		LicenseRoleID: req.LicenseRoleID,
		AdminRoleID:   req.AdminRoleID,
		IsEnabled:     req.IsEnabled,
	}
	if err := h.config.Save(r.Context(), cfg); err != nil {
		render.Render(w, r, apperrors.Map(err))
		return
	}

	h.logger.InfoContext(r.Context(), "integration config saved",
		slog.Bool("enabled", cfg.IsEnabled))
	render.JSON(w, r, cfg)
}

// Test fires a test embed at the configured webhook.
func (h *DiscordHandler) Test(w http.ResponseWriter, r *http.Request) {
	if err := h.sink.SendTest(r.Context()); err != nil {
		render.Render(w, r, apperrors.Map(apperrors.Validationf("%v", err)))
		return
	}
	render.JSON(w, r, map[string]bool{"success": true})
}
