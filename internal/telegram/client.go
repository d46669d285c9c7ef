package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/pyrusbridge/tgbridge/internal/media"
)

const (
	// MediaGroupLimit is the largest batch sendMediaGroup accepts.
	MediaGroupLimit = 10

	DefaultDownloadTimeout = 30 * time.Second
	defaultFileBaseURL     = "https://api.telegram.org/file/bot"
	maxDownloadBytes       = 50 << 20
)

// API is the subset of *bot.Bot used by Client.
type API interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
	SendMediaGroup(ctx context.Context, params *bot.SendMediaGroupParams) ([]*models.Message, error)
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Client sends messages and fetches files on behalf of the bridge.
type Client struct {
	api         API
	token       string
	fileBaseURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient wraps api. token is needed to build file download URLs.
func NewClient(api API, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		api:         api,
		token:       token,
		fileBaseURL: defaultFileBaseURL,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger.With("component", "telegram_client"),
	}
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := c.api.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("send message to chat %d: %w", chatID, err)
	}
	c.logger.DebugContext(ctx, "Sent message", "chat_id", chatID, "length", len(text))
	return nil
}

// SendKeyboard sends text with an inline keyboard.
func (c *Client) SendKeyboard(ctx context.Context, chatID int64, text string, rows [][]models.InlineKeyboardButton) error {
	_, err := c.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: rows},
	})
	if err != nil {
		return fmt.Errorf("send keyboard to chat %d: %w", chatID, err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query so the client stops its spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	if _, err := c.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: callbackID}); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}
	return nil
}

// SendDocuments sends docs in batches of MediaGroupLimit. A failed batch is
// logged and the remaining batches are still sent; the joined error is returned.
func (c *Client) SendDocuments(ctx context.Context, chatID int64, docs []media.Document) error {
	var errs []error
	for start := 0; start < len(docs); start += MediaGroupLimit {
		end := min(start+MediaGroupLimit, len(docs))
		chunk := docs[start:end]

		if err := c.sendChunk(ctx, chatID, chunk); err != nil {
			c.logger.ErrorContext(ctx, "Failed to send media chunk", "chat_id", chatID, "offset", start, "size", len(chunk), "error", err)
			errs = append(errs, err)
			continue
		}
		c.logger.InfoContext(ctx, "Media chunk sent", "chat_id", chatID, "offset", start, "size", len(chunk))
	}
	return errors.Join(errs...)
}

func (c *Client) sendChunk(ctx context.Context, chatID int64, chunk []media.Document) error {
	// sendMediaGroup rejects single-item groups.
	if len(chunk) == 1 {
		_, err := c.api.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID:   chatID,
			Document: &models.InputFileUpload{Filename: chunk[0].Name, Data: bytes.NewReader(chunk[0].Content)},
		})
		return err
	}

	names := attachNames(chunk)
	group := make([]models.InputMedia, 0, len(chunk))
	for i, d := range chunk {
		group = append(group, &models.InputMediaDocument{
			Media:           "attach://" + names[i],
			MediaAttachment: bytes.NewReader(d.Content),
		})
	}
	_, err := c.api.SendMediaGroup(ctx, &bot.SendMediaGroupParams{ChatID: chatID, Media: group})
	return err
}

// attachNames returns one multipart field name per document. The name doubles
// as the filename Telegram shows, so it stays close to the original but must
// be unique within the request.
func attachNames(chunk []media.Document) []string {
	names := make([]string, len(chunk))
	seen := make(map[string]bool, len(chunk))
	for i, d := range chunk {
		base := safeAttachName(d.Name)
		name := base
		ext := path.Ext(base)
		stem := strings.TrimSuffix(base, ext)
		for n := 2; seen[name]; n++ {
			name = fmt.Sprintf("%s-%d%s", stem, n, ext)
		}
		seen[name] = true
		names[i] = name
	}
	return names
}

func safeAttachName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '"' || r == '\\' || r == '/' || r == ':':
			return '_'
		case unicode.IsSpace(r) || unicode.IsControl(r):
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		return "file"
	}
	return name
}

// DownloadFile resolves fileID with getFile and fetches its content.
func (c *Client) DownloadFile(ctx context.Context, fileID string) (data []byte, err error) {
	if fileID == "" {
		return nil, fmt.Errorf("empty fileID provided")
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("context cancelled before file download: %w", ctx.Err())
	}

	fileObj, err := c.api.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	if fileObj == nil || fileObj.FilePath == "" {
		return nil, fmt.Errorf("empty file path returned from Telegram")
	}

	url := c.fileBaseURL + c.token + "/" + fileObj.FilePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	data, err = io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read file data: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("received empty file data")
	}
	c.logger.DebugContext(ctx, "Downloaded file", "file_id", fileID, "bytes", len(data))
	return data, nil
}
