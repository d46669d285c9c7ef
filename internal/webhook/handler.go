// Package webhook accepts Pyrus task webhooks, queues them, and relays new
// Telegram-channel comments back to the user's chat.
package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	HeaderSignature = "X-Pyrus-Sig"
	HeaderRetry     = "X-Pyrus-Retry"

	DefaultUserAgentPrefix = "Pyrus-Bot-"
	DefaultMaxBodyBytes    = 10 << 20
)

// HandlerConfig configures request validation.
type HandlerConfig struct {
	Secret          []byte
	UserAgentPrefix string
	MaxBodyBytes    int64
}

// Handler validates webhook requests and enqueues them. Processing is deferred to Queue.Run.
type Handler struct {
	queue  *Queue
	cfg    HandlerConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewHandler creates the webhook endpoint that verifies deliveries and enqueues them.
func NewHandler(queue *Queue, cfg HandlerConfig, logger *slog.Logger) *Handler {
	if cfg.UserAgentPrefix == "" {
		cfg.UserAgentPrefix = DefaultUserAgentPrefix
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		queue:  queue,
		cfg:    cfg,
		logger: logger.With("component", "webhook_handler"),
		now:    time.Now,
	}
}

// Register mounts the handler on e at path.
func (h *Handler) Register(e *echo.Echo, path string) {
	e.POST(path, h.Handle)
}

// Handle checks the sender, verifies the signature and enqueues the body.
func (h *Handler) Handle(c echo.Context) error {
	req := c.Request()
	ua := req.UserAgent()
	if !strings.HasPrefix(ua, h.cfg.UserAgentPrefix) {
		h.logger.Warn("Unexpected User-Agent", "user_agent", ua, "remote_ip", c.RealIP())
		return echo.NewHTTPError(http.StatusBadRequest, "Bad User-Agent")
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, h.cfg.MaxBodyBytes+1))
	if err != nil {
		h.logger.Error("Failed to read webhook body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read body")
	}
	if int64(len(body)) > h.cfg.MaxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Body too large")
	}

	sig := req.Header.Get(HeaderSignature)
	if !VerifySignature(h.cfg.Secret, sig, body) {
		h.logger.Error("Invalid or missing signature", "header_present", sig != "")
		return echo.NewHTTPError(http.StatusInternalServerError, "Invalid signature")
	}

	ev := Event{
		ID:         uuid.NewString(),
		Body:       body,
		Signature:  sig,
		Retry:      req.Header.Get(HeaderRetry),
		UserAgent:  ua,
		ReceivedAt: h.now(),
	}
	if err := h.queue.Enqueue(ev); err != nil {
		if errors.Is(err, ErrQueueSaturated) {
			h.logger.Error("Webhook queue is full, rejecting delivery", "capacity", h.queue.Cap())
			return echo.NewHTTPError(http.StatusServiceUnavailable, "Queue is full")
		}
		return err
	}

	h.logger.Info("Webhook received and queued for processing", "event_id", ev.ID, "retry", ev.Retry, "queued", h.queue.Len())
	return c.NoContent(http.StatusOK)
}
