// Package logger builds the process slog logger and the request logging
// middleware for the Telegram poller and the webhook HTTP server.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/labstack/echo/v4"
)

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates the process logger writing to stdout and installs it as the slog default.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	log := New(os.Stdout, levelStr, jsonOutput)
	slog.SetDefault(log)
	return log
}

// New creates a logger writing to w.
func New(w io.Writer, levelStr string, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(levelStr)}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Middleware logs every Telegram update with its sender, chat and duration.
func Middleware(log *slog.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			startTime := time.Now()
			entry := log.With(updateAttrs(update)...)

			entry.InfoContext(ctx, "Processing update")
			next(ctx, b, update)
			entry.InfoContext(ctx, "Finished processing update", "duration", time.Since(startTime))
		}
	}
}

func updateAttrs(update *models.Update) []any {
	attrs := []any{"update_id", update.ID}

	switch {
	case update.Message != nil:
		msg := update.Message
		attrs = append(attrs,
			"update_type", "message",
			"message_id", msg.ID,
			"chat_id", msg.Chat.ID,
		)
		if msg.From != nil {
			attrs = append(attrs, "user_id", msg.From.ID)
		}
		if msg.MediaGroupID != "" {
			attrs = append(attrs, "media_group_id", msg.MediaGroupID)
		}
		text := msg.Text
		if text == "" {
			text = msg.Caption
		}
		attrs = append(attrs, "text_preview", truncateString(text, 50))
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		attrs = append(attrs,
			"update_type", "callback_query",
			"callback_query_id", cq.ID,
			"user_id", cq.From.ID,
			"data", cq.Data,
		)
		if cq.Message.Message != nil {
			attrs = append(attrs, "chat_id", cq.Message.Message.Chat.ID)
		} else if cq.Message.InaccessibleMessage != nil {
			attrs = append(attrs, "chat_id", cq.Message.InaccessibleMessage.Chat.ID)
		}
	default:
		attrs = append(attrs, "update_type", "other")
	}
	return attrs
}

// EchoMiddleware logs each HTTP request handled by the webhook server.
func EchoMiddleware(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let echo write the error response so the logged status is final.
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"remote_ip", c.RealIP(),
				"latency", time.Since(start),
			}
			switch {
			case status >= 500:
				log.ErrorContext(req.Context(), "HTTP request", append(attrs, "error", err)...)
			case status >= 400:
				log.WarnContext(req.Context(), "HTTP request", attrs...)
			default:
				log.InfoContext(req.Context(), "HTTP request", attrs...)
			}
			return nil
		}
	}
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
