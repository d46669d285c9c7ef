package handlers

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot/models"

	"github.com/pyrusbridge/tgbridge/internal/config"
	"github.com/pyrusbridge/tgbridge/internal/database"
	"github.com/pyrusbridge/tgbridge/internal/media"
	"github.com/pyrusbridge/tgbridge/internal/pyrus"
)

// CRM is the part of the Pyrus API used by the handlers.
type CRM interface {
	FindTask(ctx context.Context, formID, fieldID int, value string) (*pyrus.Task, error)
	CreateTask(ctx context.Context, task pyrus.NewTask) (*pyrus.Task, error)
	AddComment(ctx context.Context, taskID int, payload pyrus.CommentPayload) error
	OpenChat(ctx context.Context, taskID int, text string) error
}

// Messenger sends replies to Telegram users.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendKeyboard(ctx context.Context, chatID int64, text string, rows [][]models.InlineKeyboardButton) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// FileResolver turns a Telegram file into a Pyrus attachment GUID.
type FileResolver interface {
	Resolve(ctx context.Context, f *media.File) (string, error)
	MaxSize() int64
}

// HandlerDeps provides dependencies for Telegram handlers.
type HandlerDeps struct {
	Logger    *slog.Logger
	Config    *config.Config
	Store     database.Store
	CRM       CRM
	Messenger Messenger
	Files     FileResolver
}
