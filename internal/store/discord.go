package store

import (
	"context"
	"database/sql"
	"fmt"

	"prudad/internal/model"
)

// DiscordStore holds the single chat integration config row.
type DiscordStore struct {
	db *sql.DB
}

func NewDiscordStore(db *sql.DB) *DiscordStore {
	return &DiscordStore{db: db}
}

// Get returns the integration config, or a zeroed disabled config when
// none has been saved yet.
func (s *DiscordStore) Get(ctx context.Context) (*model.DiscordConfig, error) {
	var cfg model.DiscordConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT id, bot_token, webhook_url, server_id, license_role_id, admin_role_id, is_enabled, updated_at
		 FROM integration_config WHERE id = 1`).Scan(
		&cfg.ID, &cfg.BotToken, &cfg.WebhookURL, &cfg.ServerID,
		&cfg.LicenseRoleID, &cfg.AdminRoleID, &cfg.IsEnabled, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return &model.DiscordConfig{ID: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read integration config: %w", err)
	}
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return &cfg, nil
}

// Save upserts the singleton config row.
func (s *DiscordStore) Save(ctx context.Context, cfg *model.DiscordConfig) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO integration_config (id, bot_token, webhook_url, server_id, license_role_id, admin_role_id, is_enabled)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			bot_token = excluded.bot_token,
			webhook_url = excluded.webhook_url,
			server_id = excluded.server_id,
			license_role_id = excluded.license_role_id,
			admin_role_id = excluded.admin_role_id,
			is_enabled = excluded.is_enabled,
			updated_at = CURRENT_TIMESTAMP`,
		cfg.BotToken, cfg.WebhookURL, cfg.ServerID, cfg.LicenseRoleID, cfg.AdminRoleID, cfg.IsEnabled)
	if err != nil {
		return fmt.Errorf("save integration config: %w", err)
	}
	cfg.ID = 1
	return nil
}
