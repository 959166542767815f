package model

import "time"

// DiscordConfig is the chat integration row. A single row is upserted by
// the dashboard; the event bus reads WebhookURL and IsEnabled, the rest
// is carried for the bot.
type DiscordConfig struct {
	ID            int64     `json:"id"`
	BotToken      string    `json:"botToken"`
	WebhookURL    string    `json:"webhookUrl"`
	ServerID      string    `json:"serverId"`
	LicenseRoleID string    `json:"licenseRoleId"`
	AdminRoleID   string    `json:"adminRoleId"`
	IsEnabled     bool      `json:"isEnabled"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
