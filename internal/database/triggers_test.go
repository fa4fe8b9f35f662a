package database

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-site/internal/models"
)

// maxNotifyPayload is the largest payload Postgres accepts for NOTIFY.
const maxNotifyPayload = 7999

func TestNotifyFunction_CarriesOnlyKeyColumns(t *testing.T) {
	assert.NotContains(t, notifyFunction, "row_to_json")
	for _, col := range NotifiedColumns {
		assert.Contains(t, notifyFunction, "'"+col+"', doc->'"+col+"'")
	}
	for _, col := range []string{"caption", "content", "media_url", "location"} {
		assert.NotContains(t, notifyFunction, col)
	}

	// Widest event the trigger can build: every column filled at its
	// declared size.
	record := map[string]string{}
	for _, col := range NotifiedColumns {
		record[col] = strings.Repeat("x", 36)
	}
	payload, err := json.Marshal(map[string]any{
		"table":  "story_reactions",
		"op":     "DELETE",
		"record": record,
	})
	require.NoError(t, err)
	assert.Less(t, len(payload), 512)
}

func TestChangeTriggers_LargeCaption(t *testing.T) {
	dsn := os.Getenv("WEDDING_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("WEDDING_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.InstallChangeTriggers(ctx))

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer conn.Close(context.Background())
	_, err = conn.Exec(ctx, "LISTEN "+pgx.Identifier{ChangeChannel}.Sanitize())
	require.NoError(t, err)

	g := seedGuest(t, s, "Ana", "ana-"+newID()+"@example.com")
	caption := strings.Repeat("so much joy ", 1000)
	post := &models.Post{GuestID: g.ID, MediaURL: "https://cdn.example.com/p.jpg", MediaType: models.MediaImage, Caption: &caption}
	require.NoError(t, s.InsertPost(ctx, post))
	t.Cleanup(func() {
		s.DB().Delete(&models.Post{}, "id = ?", post.ID)
		s.DB().Delete(&models.Guest{}, "id = ?", g.ID)
	})

	n, err := conn.WaitForNotification(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(n.Payload), maxNotifyPayload)

	var ev struct {
		Table  string            `json:"table"`
		Op     string            `json:"op"`
		Record map[string]string `json:"record"`
	}
	require.NoError(t, json.Unmarshal([]byte(n.Payload), &ev))
	assert.Equal(t, "posts", ev.Table)
	assert.Equal(t, "INSERT", ev.Op)
	assert.Equal(t, post.ID, ev.Record["id"])
	assert.Equal(t, g.ID, ev.Record["guest_id"])
	assert.NotContains(t, ev.Record, "caption")
}
