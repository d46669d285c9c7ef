package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(router *Router) bot.HandlerFunc {
	return startHandler{router}.Handle
}

// startHandler greets the user and runs the registration check without
// treating the command text as a message for the appeal task.
type startHandler struct {
	r *Router
}

func (h startHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	r := h.r
	log := r.deps.Logger.With("handler", "start")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Start handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID
	log = log.With("chat_id", chatID, "user_id", userID)
	log.InfoContext(ctx, "Handling /start command")

	unlock := r.locks.Lock(userID)
	defer unlock()

	msgs := r.deps.Config.Messages

	state, err := r.deps.Store.GetState(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load registration state", "error", err)
		r.reply(ctx, log, chatID, msgs.GeneralError)
		return
	}
	if state != nil {
		r.repeatPendingQuestion(ctx, log, chatID, state)
		return
	}

	client, err := r.findClient(ctx, log, userID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up client task", "error", err)
		r.reply(ctx, log, chatID, msgs.GeneralError)
		return
	}
	if client == nil {
		r.promptRegistration(ctx, log, chatID)
		return
	}

	if _, err := r.ensureAppeal(ctx, log, userID, client); err != nil {
		log.ErrorContext(ctx, "Failed to get or create appeal task", "error", err)
		r.reply(ctx, log, chatID, msgs.AppealError)
		return
	}
	r.reply(ctx, log, chatID, msgs.Welcome)
}
