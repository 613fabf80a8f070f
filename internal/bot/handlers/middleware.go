// Package handlers contains Telegram bot command and message handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const adminOnlyText = "Только администраторы могут изменять частоту ответов."

// ChatAdminOnly creates a middleware that lets a command through only when
// the sender is an administrator or the owner of the chat. Everyone else
// gets a refusal and processing stops.
func ChatAdminOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			if update.Message == nil || update.Message.From == nil {
				next(ctx, b, update)
				return
			}

			msg := update.Message
			log := deps.Logger.With("middleware", "ChatAdminOnly")

			// Private chats have no admins; the sender rules their own chat.
			if !isGroupChat(msg.Chat) {
				next(ctx, b, update)
				return
			}

			member, err := b.GetChatMember(ctx, &tgbot.GetChatMemberParams{
				ChatID: msg.Chat.ID,
				UserID: msg.From.ID,
			})
			if err != nil {
				log.ErrorContext(ctx, "Failed to check chat member status", "error", err, "chat_id", msg.Chat.ID, "user_id", msg.From.ID)
				return
			}

			if member.Type != models.ChatMemberTypeAdministrator && member.Type != models.ChatMemberTypeOwner {
				log.WarnContext(ctx, "Non-admin tried an admin command", "chat_id", msg.Chat.ID, "user_id", msg.From.ID)
				sendReply(ctx, b, log, msg.Chat.ID, msg.ID, adminOnlyText, "")
				return
			}

			next(ctx, b, update)
		}
	}
}
