package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "Привет, ...", truncateString("Привет, мир и все", 11))
	assert.Equal(t, "...", truncateString("abcdef", 2))
}

func TestTelegramMiddleware(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, "info", true)

	called := false
	h := Middleware(log)(func(context.Context, *bot.Bot, *models.Update) { called = true })
	h(context.Background(), nil, &models.Update{
		ID: 9,
		Message: &models.Message{
			ID:           3,
			Chat:         models.Chat{ID: 100},
			From:         &models.User{ID: 200},
			Caption:      "photo caption",
			MediaGroupID: "g1",
		},
	})
	require.True(t, called)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "Processing update", first["msg"])
	assert.Equal(t, "message", first["update_type"])
	assert.EqualValues(t, 100, first["chat_id"])
	assert.EqualValues(t, 200, first["user_id"])
	assert.Equal(t, "g1", first["media_group_id"])
	assert.Equal(t, "photo caption", first["text_preview"])
}

func TestEchoMiddleware(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	e := echo.New()
	e.Use(EchoMiddleware(New(&buf, "info", true)))
	e.POST("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.POST("/bad", func(echo.Context) error { return echo.NewHTTPError(http.StatusBadRequest, "nope") })

	for path, want := range map[string]int{"/ok": http.StatusOK, "/bad": http.StatusBadRequest} {
		buf.Reset()
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, want, rec.Code)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.EqualValues(t, want, entry["status"])
		assert.Equal(t, path, entry["path"])
	}
}
