package handlers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/pyrusbridge/tgbridge/internal/database"
	"github.com/pyrusbridge/tgbridge/internal/pyrus"
)

// HandleRegisterCallback starts the registration conversation from the inline button.
// Pressing it again mid-conversation only repeats the pending question.
func (r *Router) HandleRegisterCallback(ctx context.Context, _ *bot.Bot, update *models.Update) {
	cq := update.CallbackQuery
	if cq == nil {
		return
	}
	userID := cq.From.ID
	chatID := callbackChatID(cq)
	log := r.log.With("user_id", userID, "chat_id", chatID, "callback_query_id", cq.ID)

	defer func() {
		if err := r.deps.Messenger.AnswerCallback(ctx, cq.ID); err != nil {
			log.WarnContext(ctx, "Failed to answer callback query", "error", err)
		}
	}()

	unlock := r.locks.Lock(userID)
	defer unlock()

	state, err := r.deps.Store.GetState(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load registration state", "error", err)
		r.reply(ctx, log, chatID, r.deps.Config.Messages.GeneralError)
		return
	}
	if state != nil {
		log.InfoContext(ctx, "Registration already in progress", "step", state.Step)
		r.repeatPendingQuestion(ctx, log, chatID, state)
		return
	}

	err = r.deps.Store.SaveState(ctx, &database.RegistrationState{
		TelegramID: userID,
		Step:       database.StepAwaitingName,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to save registration state", "error", err)
		r.reply(ctx, log, chatID, r.deps.Config.Messages.GeneralError)
		return
	}

	log.InfoContext(ctx, "Registration started")
	r.reply(ctx, log, chatID, r.deps.Config.Messages.AskFullName)
}

func (r *Router) repeatPendingQuestion(ctx context.Context, log *slog.Logger, chatID int64, state *database.RegistrationState) {
	if state.Step == database.StepAwaitingPhone {
		r.reply(ctx, log, chatID, r.deps.Config.Messages.AskTelephone)
		return
	}
	r.reply(ctx, log, chatID, r.deps.Config.Messages.AskFullName)
}

// promptRegistration tells an unknown user to register and offers the button.
func (r *Router) promptRegistration(ctx context.Context, log *slog.Logger, chatID int64) {
	msgs := r.deps.Config.Messages
	rows := [][]models.InlineKeyboardButton{{
		{Text: msgs.RegisterButton, CallbackData: RegisterCallbackData},
	}}
	log.InfoContext(ctx, "User is not registered, offering registration")
	if err := r.deps.Messenger.SendKeyboard(ctx, chatID, msgs.NotRegistered, rows); err != nil {
		log.ErrorContext(ctx, "Failed to send registration prompt", "error", err)
	}
}

// continueRegistration advances the conversation by one step. Called with the user's lock held.
func (r *Router) continueRegistration(ctx context.Context, log *slog.Logger, msg *models.Message, state *database.RegistrationState) {
	msgs := r.deps.Config.Messages
	chatID := msg.Chat.ID
	log = log.With("step", state.Step)

	switch state.Step {
	case database.StepAwaitingName:
		name := strings.TrimSpace(msg.Text)
		if name == "" {
			r.reply(ctx, log, chatID, msgs.AskFullNameRetry)
			return
		}
		state.FullName = name
		state.Step = database.StepAwaitingPhone
		if err := r.deps.Store.SaveState(ctx, state); err != nil {
			log.ErrorContext(ctx, "Failed to save registration state", "error", err)
			r.reply(ctx, log, chatID, msgs.GeneralError)
			return
		}
		r.reply(ctx, log, chatID, msgs.AskTelephone)

	case database.StepAwaitingPhone:
		phone := strings.TrimSpace(msg.Text)
		if phone == "" && msg.Contact != nil {
			phone = msg.Contact.PhoneNumber
		}
		if phone == "" {
			r.reply(ctx, log, chatID, msgs.AskTelephoneRetry)
			return
		}
		r.completeRegistration(ctx, log, msg, state.FullName, phone)

	default:
		log.WarnContext(ctx, "Unknown registration step, resetting")
		r.clearState(ctx, log, msg.From.ID)
		r.promptRegistration(ctx, log, chatID)
	}
}

// completeRegistration creates the client and appeal tasks. The state is cleared
// whatever the outcome so a failed attempt restarts from the button.
func (r *Router) completeRegistration(ctx context.Context, log *slog.Logger, msg *models.Message, fullName, phone string) {
	cfg := r.deps.Config
	userID := msg.From.ID
	chatID := msg.Chat.ID
	defer r.clearState(ctx, log, userID)

	account := orDefault(msg.From.Username, cfg.Messages.DefaultUnknown)

	client, err := r.deps.CRM.CreateTask(ctx, pyrus.NewTask{
		FormID: cfg.Forms.Client.ID,
		Fields: formFields(cfg.Forms.Client.Fields, fullName, phone, account, userID),
	})
	if err != nil || client == nil || client.ID == 0 {
		log.ErrorContext(ctx, "Failed to create client task", "error", err)
		r.reply(ctx, log, chatID, cfg.Messages.RegistrationError)
		return
	}
	log.InfoContext(ctx, "Client registered", "client_task_id", client.ID)
	r.reply(ctx, log, chatID, strings.ReplaceAll(cfg.Messages.RegistrationThanks, "{name}", fullName))

	if _, err := r.createAppeal(ctx, log, userID, fullName, phone, account); err != nil {
		log.ErrorContext(ctx, "Failed to create appeal task after registration", "error", err)
		r.reply(ctx, log, chatID, cfg.Messages.RegistrationError)
	}
}

func (r *Router) clearState(ctx context.Context, log *slog.Logger, userID int64) {
	if err := r.deps.Store.DeleteState(ctx, userID); err != nil {
		log.ErrorContext(ctx, "Failed to clear registration state", "error", err)
	}
}

func callbackChatID(cq *models.CallbackQuery) int64 {
	switch {
	case cq.Message.Message != nil:
		return cq.Message.Message.Chat.ID
	case cq.Message.InaccessibleMessage != nil:
		return cq.Message.InaccessibleMessage.Chat.ID
	default:
		// private chat ids equal user ids
		return cq.From.ID
	}
}
