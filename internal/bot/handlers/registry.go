package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler describes one handler to register on the bot.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands returns the command and callback handlers. Plain messages
// go to router.Handle, which is installed as the bot's default handler.
func RegisterAllCommands(deps HandlerDeps, router *Router) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	private := []tgbot.Middleware{PrivateChatOnly(deps)}

	handlers["/start"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "start",
		Handler:     NewStartHandler(router),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  private,
	}
	handlers[RegisterCallbackData] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeCallbackQueryData,
		Pattern:     RegisterCallbackData,
		Handler:     router.HandleRegisterCallback,
		MatchType:   tgbot.MatchTypeExact,
	}

	return handlers
}
