package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	frequencyUsageText   = "Использование: /frequency <число>. Например: /frequency 10"
	frequencyMinText     = "Частота должна быть не менее 1."
	frequencyConfirmText = "Алгоритм скорректирован. Буду отвечать каждые %d сообщений. Можете расслабиться."
)

// frequencyHandler implements /frequency, setting how many messages pass
// between ambient replies. Registration wraps it in ChatAdminOnly.
type frequencyHandler struct {
	deps HandlerDeps
}

// NewFrequencyHandler creates a handler for the /frequency command.
func NewFrequencyHandler(deps HandlerDeps) tgbot.HandlerFunc {
	return frequencyHandler{deps: deps}.Handle
}

func (h frequencyHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "frequency")

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	fields := strings.Fields(msg.Text)
	if len(fields) < 2 {
		sendReply(ctx, b, log, msg.Chat.ID, msg.ID, frequencyUsageText, "")
		return
	}

	freq, err := strconv.Atoi(fields[1])
	if err != nil {
		sendReply(ctx, b, log, msg.Chat.ID, msg.ID, frequencyUsageText, "")
		return
	}
	if freq < 1 {
		sendReply(ctx, b, log, msg.Chat.ID, msg.ID, frequencyMinText, "")
		return
	}

	if err := h.deps.Store.SetReplyFrequency(ctx, msg.Chat.ID, freq); err != nil {
		log.ErrorContext(ctx, "Failed to set reply frequency", "error", err, "chat_id", msg.Chat.ID)
		return
	}

	log.InfoContext(ctx, "Reply frequency set", "chat_id", msg.Chat.ID, "frequency", freq)
	sendReply(ctx, b, log, msg.Chat.ID, msg.ID, fmt.Sprintf(frequencyConfirmText, freq), "")
}
