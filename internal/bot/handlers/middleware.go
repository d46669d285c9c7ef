// Package handlers contains the Telegram update handlers that relay user
// messages into Pyrus, the registration conversation, and their registration logic.
package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// PrivateChatOnly drops messages from groups and channels. Appeals are
// one-to-one, so only private chats are relayed.
func PrivateChatOnly(deps HandlerDeps) tgbot.Middleware {
	log := deps.Logger.With("middleware", "PrivateChatOnly")
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			if update.Message == nil {
				next(ctx, bot, update)
				return
			}

			if update.Message.Chat.Type != "" && update.Message.Chat.Type != "private" {
				log.DebugContext(ctx, "Ignoring message from non-private chat",
					"chat_id", update.Message.Chat.ID, "chat_type", update.Message.Chat.Type)
				return
			}

			next(ctx, bot, update)
		}
	}
}
