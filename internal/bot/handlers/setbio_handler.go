package handlers

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	setBioUsageText   = "Использование: /setbio <ваше досье>\nПример: /setbio Программист, люблю шахматы и квантовую физику."
	setBioConfirmText = "Досье обновлено. Теперь я знаю о тебе больше, чем тебе хотелось бы. Данные активированы для будущих атак иронией."
)

// setBioHandler implements /setbio, letting a user write their own dossier
// instead of answering the bot's onboarding question.
type setBioHandler struct {
	deps HandlerDeps
}

// NewSetBioHandler creates a handler for the /setbio command.
func NewSetBioHandler(deps HandlerDeps) tgbot.HandlerFunc {
	return setBioHandler{deps: deps}.Handle
}

func (h setBioHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "setbio")

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	parts := strings.SplitN(msg.Text, " ", 2)
	bio := ""
	if len(parts) == 2 {
		bio = strings.TrimSpace(parts[1])
	}
	if bio == "" {
		sendReply(ctx, b, log, msg.Chat.ID, msg.ID, setBioUsageText, "")
		return
	}

	if err := h.deps.Store.UpsertUser(ctx, msg.From.ID, msg.From.Username); err != nil {
		log.ErrorContext(ctx, "Failed to upsert user", "error", err, "user_id", msg.From.ID)
		return
	}
	if err := h.deps.Store.SetUserBio(ctx, msg.From.ID, bio); err != nil {
		log.ErrorContext(ctx, "Failed to store dossier", "error", err, "user_id", msg.From.ID)
		return
	}

	log.InfoContext(ctx, "Dossier updated via command", "user_id", msg.From.ID)
	sendReply(ctx, b, log, msg.Chat.ID, msg.ID, setBioConfirmText, "")
}
