package events

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prudad/internal/database"
	"prudad/internal/model"
	"prudad/internal/store"
)

func setupDiscordSink(t *testing.T) (*DiscordSink, *store.DiscordStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err, "open test db")
	t.Cleanup(func() { db.Close() })
	ds := store.NewDiscordStore(db)
	return NewDiscordSink(ds, discardLogger()), ds
}

func TestDiscordSinkPostsEmbed(t *testing.T) {
	sink, ds := setupDiscordSink(t)
	ctx := context.Background()

	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, ds.Save(ctx, &model.DiscordConfig{WebhookURL: srv.URL, IsEnabled: true}))

	expires := time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)
	sink.Consume(ctx, Event{
		Kind:            KindActivated,
		LicenseID:       7,
		Key:             "PRUDA-AAAA-BBBB-CCCC-DDDD",
		DiscordUsername: "ruby#0001",
		ExpiresAt:       &expires,
		At:              time.Now().UTC(),
	})

	require.Len(t, got.Embeds, 1)
	embed := got.Embeds[0]
	assert.Equal(t, "License Activated", embed.Title)
	assert.Equal(t, colorActivated, embed.Color)
	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "PRUDA-AAAA-BBBB-CCCC-DDDD", embed.Fields[0].Value)
	assert.Equal(t, "ruby#0001", embed.Fields[1].Value)
}

func TestDiscordSinkDisabledIsNoOp(t *testing.T) {
	sink, ds := setupDiscordSink(t)
	ctx := context.Background()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	require.NoError(t, ds.Save(ctx, &model.DiscordConfig{WebhookURL: srv.URL, IsEnabled: false}))
	sink.Consume(ctx, Event{Kind: KindIssued, Key: "PRUDA-EEEE"})
	assert.Zero(t, calls)
}

func TestDiscordSinkDeliveryFailureIsSwallowed(t *testing.T) {
	sink, ds := setupDiscordSink(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	require.NoError(t, ds.Save(ctx, &model.DiscordConfig{WebhookURL: srv.URL, IsEnabled: true}))
	// Consume must not panic or retry; the failure is only logged.
	sink.Consume(ctx, Event{Kind: KindRevoked, Key: "PRUDA-FFFF"})
}

func TestDiscordSendTest(t *testing.T) {
	sink, ds := setupDiscordSink(t)
	ctx := context.Background()

	err := sink.SendTest(ctx)
	assert.Error(t, err, "no webhook configured")

	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	require.NoError(t, ds.Save(ctx, &model.DiscordConfig{WebhookURL: srv.URL, IsEnabled: true}))
	require.NoError(t, sink.SendTest(ctx))
	require.Len(t, got.Embeds, 1)
	assert.Contains(t, got.Embeds[0].Description, "test message")
}
