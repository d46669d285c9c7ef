package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pyrusbridge/tgbridge/internal/media"
	"github.com/pyrusbridge/tgbridge/internal/pyrus"
)

// DefaultDownloadConcurrency caps parallel attachment downloads per event.
const DefaultDownloadConcurrency = 50

// CRM is the part of the Pyrus API used while processing events.
type CRM interface {
	OpenChat(ctx context.Context, taskID int, text string) error
	DownloadFile(ctx context.Context, fileID int) ([]byte, error)
}

// Messenger delivers relayed comments to a Telegram chat.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendDocuments(ctx context.Context, chatID int64, docs []media.Document) error
}

// ProcessorConfig holds the values the processor needs from configuration.
type ProcessorConfig struct {
	// ChatIDField is the appeal form field holding the user's Telegram id.
	ChatIDField         int
	MaxFileSize         int64
	DownloadConcurrency int
	OpenChatText        string
	// DumpPath, when set, receives the last parsed payload pretty-printed.
	DumpPath string
}

// Processor turns a webhook event into either an "open chat" comment or a Telegram message.
type Processor struct {
	crm       CRM
	messenger Messenger
	cfg       ProcessorConfig
	logger    *slog.Logger
}

// NewProcessor creates the processor that forwards CRM comments to Telegram.
func NewProcessor(crm CRM, messenger Messenger, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if cfg.DownloadConcurrency <= 0 {
		cfg.DownloadConcurrency = DefaultDownloadConcurrency
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Processor{
		crm:       crm,
		messenger: messenger,
		cfg:       cfg,
		logger:    logger.With("component", "webhook_processor"),
	}
}

type payload struct {
	Event       string      `json:"event"`
	AccessToken string      `json:"access_token"`
	TaskID      int         `json:"task_id"`
	Task        *pyrus.Task `json:"task"`
}

func parsePayload(body []byte) (*payload, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, invalid(http.StatusInternalServerError, "empty body")
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, invalid(http.StatusUnprocessableEntity, "incorrect JSON: "+err.Error())
	}

	switch {
	case p.Task == nil:
		return nil, invalid(http.StatusInternalServerError, "task not found")
	case p.AccessToken == "":
		return nil, invalid(http.StatusInternalServerError, "access_token not found")
	case len(p.Task.Fields) == 0:
		return nil, invalid(http.StatusInternalServerError, "fields not found")
	case len(p.Task.Comments) == 0:
		return nil, invalid(http.StatusInternalServerError, "no comments in task")
	case p.Event == "":
		return nil, invalid(http.StatusInternalServerError, "no event field in payload")
	case p.TaskID == 0:
		return nil, invalid(http.StatusInternalServerError, "no task_id field in payload")
	case p.Task.CreateDate == "":
		return nil, invalid(http.StatusInternalServerError, "no create_date field in payload")
	}
	return &p, nil
}

// Process handles one event. A nil error means the event needs no further action.
func (p *Processor) Process(ctx context.Context, ev Event) error {
	data, err := parsePayload(ev.Body)
	if err != nil {
		return err
	}
	p.dump(ev.Body)

	log := p.logger.With("event_id", ev.ID, "task_id", data.TaskID, "event", data.Event)
	log.Info("Received webhook for task")

	last, _ := data.Task.LastComment()
	if last.CreateDate == data.Task.CreateDate {
		if err := p.crm.OpenChat(ctx, data.TaskID, p.cfg.OpenChatText); err != nil {
			return fmt.Errorf("open chat for task %d: %w", data.TaskID, err)
		}
		log.Info("Chat was opened for new task")
		return nil
	}

	if last.ChannelType() != pyrus.ChannelTelegram {
		log.Info("Last comment is not from the Telegram channel, nothing to forward", "channel", last.ChannelType())
		return nil
	}

	chatID, ok := p.chatID(data.Task.Fields)
	if !ok {
		log.Error("Chat ID not found in task fields", "field_id", p.cfg.ChatIDField)
		return nil
	}

	var docs []media.Document
	if len(last.Attachments) > 0 {
		docs = p.download(ctx, log, last.Attachments)
	}

	if last.Text != "" {
		if err := p.messenger.SendText(ctx, chatID, last.Text); err != nil {
			return fmt.Errorf("send text to chat %d: %w", chatID, err)
		}
	}
	if len(docs) == 0 {
		if len(last.Attachments) > 0 {
			log.Warn("No valid files found to send", "chat_id", chatID, "attachments", len(last.Attachments))
		}
		return nil
	}
	if err := p.messenger.SendDocuments(ctx, chatID, docs); err != nil {
		return fmt.Errorf("send documents to chat %d: %w", chatID, err)
	}

	log.Info("Comment forwarded to Telegram", "chat_id", chatID, "documents", len(docs))
	return nil
}

func (p *Processor) chatID(fields []pyrus.Field) (int64, bool) {
	raw := strings.TrimSpace(pyrus.FieldString(fields, p.cfg.ChatIDField))
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// download fetches attachments in parallel. Failed or skipped attachments are
// logged and dropped; the order of the rest is preserved.
func (p *Processor) download(ctx context.Context, log *slog.Logger, attachments []pyrus.Attachment) []media.Document {
	results := make([]*media.Document, len(attachments))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.DownloadConcurrency)

	for i, att := range attachments {
		if reason := p.skipReason(att); reason != "" {
			log.Warn("Skipping attachment", "name", att.Name, "attachment_id", att.ID, "reason", reason)
			continue
		}
		g.Go(func() error {
			content, err := p.crm.DownloadFile(gCtx, att.ID)
			if err != nil {
				// Isolated: the other downloads keep running.
				log.Error("Failed to download attachment", "name", att.Name, "attachment_id", att.ID, "error", err)
				return nil
			}
			results[i] = &media.Document{Name: att.Name, Content: content}
			log.Debug("Downloaded attachment", "name", att.Name, "bytes", len(content))
			return nil
		})
	}
	_ = g.Wait()

	docs := make([]media.Document, 0, len(results))
	for _, d := range results {
		if d != nil {
			docs = append(docs, *d)
		}
	}
	return docs
}

func (p *Processor) skipReason(att pyrus.Attachment) string {
	switch {
	case att.Name == "":
		return "no filename"
	case att.URL == "" || att.Size == 0:
		return "no url or size"
	case p.cfg.MaxFileSize > 0 && att.Size > p.cfg.MaxFileSize:
		return "file too large"
	}
	return ""
}

func (p *Processor) dump(body []byte) {
	if p.cfg.DumpPath == "" {
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		p.logger.Warn("Failed to format payload dump", "error", err)
		return
	}
	if err := os.WriteFile(p.cfg.DumpPath, buf.Bytes(), 0o600); err != nil {
		p.logger.Warn("Failed to write payload dump", "path", p.cfg.DumpPath, "error", err)
	}
}
