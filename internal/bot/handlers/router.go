package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/pyrusbridge/tgbridge/internal/config"
	"github.com/pyrusbridge/tgbridge/internal/keyedmutex"
	"github.com/pyrusbridge/tgbridge/internal/media"
	"github.com/pyrusbridge/tgbridge/internal/mediagroup"
	"github.com/pyrusbridge/tgbridge/internal/pyrus"
)

// RegisterCallbackData is the callback payload of the registration button.
const RegisterCallbackData = "register"

// pendingMessage is a media group member waiting for its burst to complete.
type pendingMessage struct {
	msg    *models.Message
	taskID int
}

// Router relays user messages into the user's appeal task, creating the task
// on first contact and running the registration conversation for unknown users.
type Router struct {
	deps   HandlerDeps
	log    *slog.Logger
	locks  keyedmutex.KeyedMutex[int64]
	groups *mediagroup.Aggregator[pendingMessage]
}

// NewRouter creates the router for messages that are not commands.
func NewRouter(deps HandlerDeps) *Router {
	r := &Router{
		deps: deps,
		log:  deps.Logger.With("handler", "router"),
	}
	r.groups = mediagroup.New(deps.Config.MediaGroup.Window, r.flushGroup, deps.Logger)
	return r
}

// Handle is the default update handler.
func (r *Router) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	r.HandleMessage(ctx, update.Message)
}

// Close waits for pending media groups to be flushed.
func (r *Router) Close() {
	r.groups.Close()
}

// HandleMessage routes one incoming message.
func (r *Router) HandleMessage(ctx context.Context, msg *models.Message) {
	if msg == nil || msg.From == nil {
		r.log.WarnContext(ctx, "Message without sender, ignoring")
		return
	}
	log := r.log.With("user_id", msg.From.ID, "chat_id", msg.Chat.ID, "message_id", msg.ID)

	taskID, ok := r.resolveTask(ctx, log, msg)
	if !ok {
		return
	}

	if msg.MediaGroupID != "" {
		log.InfoContext(ctx, "Buffering media group message", "media_group_id", msg.MediaGroupID, "task_id", taskID)
		r.groups.Add(msg.MediaGroupID, pendingMessage{msg: msg, taskID: taskID})
		return
	}

	log.InfoContext(ctx, "Processing message", "task_id", taskID)
	r.processSingle(ctx, log, msg, taskID)
}

// resolveTask runs under the user's lock: registration steps, client lookup and
// appeal creation must not race for the same user. ok is false when the message
// was fully handled here.
func (r *Router) resolveTask(ctx context.Context, log *slog.Logger, msg *models.Message) (taskID int, ok bool) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	unlock := r.locks.Lock(userID)
	defer unlock()

	state, err := r.deps.Store.GetState(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load registration state", "error", err)
		r.reply(ctx, log, chatID, r.deps.Config.Messages.GeneralError)
		return 0, false
	}
	if state != nil {
		r.continueRegistration(ctx, log, msg, state)
		return 0, false
	}

	client, err := r.findClient(ctx, log, userID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up client task", "error", err)
		r.reply(ctx, log, chatID, r.deps.Config.Messages.GeneralError)
		return 0, false
	}
	if client == nil {
		r.promptRegistration(ctx, log, chatID)
		return 0, false
	}

	taskID, err = r.ensureAppeal(ctx, log, userID, client)
	if err != nil {
		log.ErrorContext(ctx, "Failed to get or create appeal task", "error", err)
		r.reply(ctx, log, chatID, r.deps.Config.Messages.AppealError)
		return 0, false
	}
	return taskID, true
}

// findClient returns the user's registration task, or nil if the user is not registered.
// A 403 from the lookup means the same as no match.
func (r *Router) findClient(ctx context.Context, log *slog.Logger, userID int64) (*pyrus.Task, error) {
	form := r.deps.Config.Forms.Client
	task, err := r.deps.CRM.FindTask(ctx, form.ID, form.Fields.TgID, strconv.FormatInt(userID, 10))
	if err != nil {
		if pyrus.IsForbidden(err) {
			log.WarnContext(ctx, "Access denied on client lookup, treating user as unregistered", "error", err)
			return nil, nil
		}
		return nil, err
	}
	if task == nil || task.ID == 0 {
		return nil, nil
	}
	log.DebugContext(ctx, "User found in the system", "client_task_id", task.ID)
	return task, nil
}

// ensureAppeal returns the user's appeal task id, creating the task from the
// client's registration data when none exists.
func (r *Router) ensureAppeal(ctx context.Context, log *slog.Logger, userID int64, client *pyrus.Task) (int, error) {
	cfg := r.deps.Config
	appeal, err := r.deps.CRM.FindTask(ctx, cfg.Forms.Appeal.ID, cfg.Forms.Appeal.Fields.TgID, strconv.FormatInt(userID, 10))
	if err != nil {
		return 0, fmt.Errorf("find appeal task: %w", err)
	}
	if appeal != nil && appeal.ID != 0 {
		return appeal.ID, nil
	}

	log.WarnContext(ctx, "No existing appeal task, creating a new one")

	cf := cfg.Forms.Client.Fields
	fullName := orDefault(pyrus.FieldString(client.Fields, cf.FullName), cfg.Messages.DefaultFullName)
	phone := orDefault(pyrus.FieldString(client.Fields, cf.Telephone), cfg.Messages.DefaultUnknown)
	account := orDefault(pyrus.FieldString(client.Fields, cf.TgAccount), cfg.Messages.DefaultUnknown)

	return r.createAppeal(ctx, log, userID, fullName, phone, account)
}

func (r *Router) createAppeal(ctx context.Context, log *slog.Logger, userID int64, fullName, phone, account string) (int, error) {
	form := r.deps.Config.Forms.Appeal
	task, err := r.deps.CRM.CreateTask(ctx, pyrus.NewTask{
		FormID: form.ID,
		Fields: formFields(form.Fields, fullName, phone, account, userID),
	})
	if err != nil {
		return 0, fmt.Errorf("create appeal task: %w", err)
	}
	if task == nil || task.ID == 0 {
		return 0, errors.New("create appeal task: response has no task id")
	}
	log.InfoContext(ctx, "Created appeal task", "task_id", task.ID)

	if err := r.deps.CRM.OpenChat(ctx, task.ID, r.deps.Config.Messages.ChatOpened); err != nil {
		log.ErrorContext(ctx, "Failed to open chat for new appeal task", "task_id", task.ID, "error", err)
	}
	return task.ID, nil
}

func (r *Router) processSingle(ctx context.Context, log *slog.Logger, msg *models.Message, taskID int) {
	kind, file := media.Classify(msg)
	text := media.Caption(msg)

	var attachments []string
	switch kind {
	case media.KindUnsupported:
		log.WarnContext(ctx, "Unsupported message type")
		r.replyFileError(ctx, log, msg.Chat.ID, media.ErrUnsupportedFile)
		return
	case media.KindText:
	default:
		guid, err := r.deps.Files.Resolve(ctx, file)
		if err != nil {
			r.replyFileError(ctx, log, msg.Chat.ID, err)
			return
		}
		attachments = []string{guid}
	}

	if err := r.deps.CRM.AddComment(ctx, taskID, pyrus.NewCommentPayload(text, attachments)); err != nil {
		log.ErrorContext(ctx, "Failed to add comment", "task_id", taskID, "kind", kind, "error", err)
		if kind == media.KindText {
			r.reply(ctx, log, msg.Chat.ID, r.deps.Config.Messages.GeneralError)
		} else {
			r.reply(ctx, log, msg.Chat.ID, r.deps.Config.Messages.FileError)
		}
		return
	}
	log.InfoContext(ctx, "Comment added", "task_id", taskID, "kind", kind, "attachments", len(attachments))
}

// flushGroup sends one comment for a whole media group: the first message's
// caption plus every file that could be transferred.
func (r *Router) flushGroup(ctx context.Context, groupID string, items []pendingMessage) {
	first := items[0]
	log := r.log.With("media_group_id", groupID, "task_id", first.taskID, "chat_id", first.msg.Chat.ID)

	guids := make([]string, 0, len(items))
	for _, it := range items {
		_, file := media.Classify(it.msg)
		if file == nil {
			log.WarnContext(ctx, "Media group message without a file, skipping", "message_id", it.msg.ID)
			continue
		}
		guid, err := r.deps.Files.Resolve(ctx, file)
		if err != nil {
			r.replyFileError(ctx, log.With("message_id", it.msg.ID), it.msg.Chat.ID, err)
			continue
		}
		guids = append(guids, guid)
	}

	caption := first.msg.Caption
	if caption == "" && len(guids) == 0 {
		log.WarnContext(ctx, "Nothing to send for media group", "messages", len(items))
		return
	}

	if err := r.deps.CRM.AddComment(ctx, first.taskID, pyrus.NewCommentPayload(caption, guids)); err != nil {
		log.ErrorContext(ctx, "Failed to add media group comment", "error", err)
		r.reply(ctx, log, first.msg.Chat.ID, r.deps.Config.Messages.GeneralError)
		return
	}
	log.InfoContext(ctx, "Media group comment added", "messages", len(items), "attachments", len(guids))
}

func (r *Router) replyFileError(ctx context.Context, log *slog.Logger, chatID int64, err error) {
	msgs := r.deps.Config.Messages
	if errors.Is(err, media.ErrFileTooLarge) {
		limit := humanize.Bytes(uint64(r.deps.Files.MaxSize()))
		log.WarnContext(ctx, "File rejected", "limit", limit, "error", err)
		r.reply(ctx, log, chatID, strings.ReplaceAll(msgs.FileTooLarge, "{max}", limit))
		return
	}
	log.ErrorContext(ctx, "Failed to process file", "error", err)
	r.reply(ctx, log, chatID, msgs.FileError)
}

func (r *Router) reply(ctx context.Context, log *slog.Logger, chatID int64, text string) {
	if err := r.deps.Messenger.SendText(ctx, chatID, text); err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err)
	}
}

func formFields(f config.FormFields, fullName, phone, account string, userID int64) []pyrus.Field {
	return []pyrus.Field{
		{ID: f.FullName, Value: fullName},
		{ID: f.Telephone, Value: phone},
		{ID: f.TgAccount, Value: account},
		{ID: f.TgID, Value: userID},
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
