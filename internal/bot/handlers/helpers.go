package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/sheldonbot/internal/database"
)

const (
	fileDownloadTimeout = 30 * time.Second
	aiProcessingTimeout = 2 * time.Minute
	sendMessageTimeout  = 10 * time.Second
	dbSaveTimeout       = 5 * time.Second

	maxDownloadSize = 10 * 1024 * 1024

	replyHistoryLimit  = 50
	visionHistoryLimit = 20
)

// isDirectMention reports whether the message addresses the bot directly,
// either by replying to one of the bot's messages or by an @username mention
// in the text or caption. Bare first-name matches do not count.
func isDirectMention(msg *models.Message, botID int64, botUsername string) bool {
	if msg == nil {
		return false
	}
	if reply := msg.ReplyToMessage; reply != nil && reply.From != nil && reply.From.ID == botID {
		return true
	}
	if botUsername == "" {
		return false
	}
	mention := "@" + strings.ToLower(botUsername)

	text := msg.Text
	entities := msg.Entities
	if text == "" {
		text = msg.Caption
		entities = msg.CaptionEntities
	}
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)

	for _, entity := range entities {
		if entity.Type != models.MessageEntityTypeMention {
			continue
		}
		end := entity.Offset + entity.Length
		if entity.Offset < 0 || end > len(lower) {
			continue
		}
		if lower[entity.Offset:end] == mention {
			return true
		}
	}

	// Entity offsets count UTF-16 code units, so the slice above can miss
	// mentions that follow non-ASCII text. Token scan catches those.
	for _, word := range strings.Fields(lower) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return unicode.IsPunct(r) && r != '@'
		})
		if word == mention {
			return true
		}
	}

	return false
}

// downloadTelegramFile fetches a file (photo, voice note) from the Telegram
// file API and sniffs its MIME type from the content.
func downloadTelegramFile(ctx context.Context, b *tgbot.Bot, token, fileID string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("context cancelled before download: %w", err)
	}

	dlCtx, cancel := context.WithTimeout(ctx, fileDownloadTimeout)
	defer cancel()

	file, err := b.GetFile(dlCtx, &tgbot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get file info: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", token, file.FilePath)

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, "", fmt.Errorf("unexpected status %d downloading file: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file body: %w", err)
	}

	return data, http.DetectContentType(data), nil
}

// saveMessageWithRetry persists a chat message, retrying transient database
// errors with a short backoff. Failures are logged and swallowed so that
// message handling continues even when history cannot be written.
func saveMessageWithRetry(ctx context.Context, deps HandlerDeps, log *slog.Logger, userID, chatID int64, text string) {
	const maxRetries = 3

	var err error
	for i := range [maxRetries]struct{}{} {
		if ctx.Err() != nil {
			log.WarnContext(ctx, "Context cancelled, aborting message save", "chat_id", chatID)
			return
		}

		dbCtx, cancel := context.WithTimeout(ctx, dbSaveTimeout)
		err = deps.Store.SaveMessage(dbCtx, userID, chatID, text)
		cancel()
		if err == nil {
			return
		}

		log.WarnContext(ctx, "Failed to save message, retrying", "error", err, "attempt", i+1, "chat_id", chatID)
		time.Sleep(time.Duration(500*(i+1)) * time.Millisecond)
	}

	log.ErrorContext(ctx, "Giving up on message save", "error", err, "chat_id", chatID)
}

// fetchHistory loads recent chat history, returning an empty slice when the
// store fails so that callers can still produce a reply.
func fetchHistory(ctx context.Context, deps HandlerDeps, log *slog.Logger, chatID int64, limit int) []database.HistoryEntry {
	history, err := deps.Store.GetRecentMessages(ctx, chatID, limit)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load chat history", "error", err, "chat_id", chatID)
		return nil
	}
	return history
}

// sendReply sends text as a quoted reply to the given message.
func sendReply(ctx context.Context, b *tgbot.Bot, log *slog.Logger, chatID int64, replyTo int, text string, parseMode models.ParseMode) {
	sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()

	_, err := b.SendMessage(sendCtx, &tgbot.SendMessageParams{
		ChatID:          chatID,
		Text:            text,
		ParseMode:       parseMode,
		ReplyParameters: &models.ReplyParameters{MessageID: replyTo},
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", chatID)
	}
}

// replyWithAI shows a typing indicator, runs generate under the AI timeout,
// and sends the result as a quoted reply. Generation errors fall back to the
// provided canned line so the bot never answers a direct prompt with silence.
func replyWithAI(ctx context.Context, b *tgbot.Bot, log *slog.Logger, chatID int64, replyTo int, fallback string, generate func(context.Context) (string, error)) {
	_, _ = b.SendChatAction(ctx, &tgbot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping})

	aiCtx, cancel := context.WithTimeout(ctx, aiProcessingTimeout)
	defer cancel()

	text, err := generate(aiCtx)
	if err != nil {
		log.ErrorContext(ctx, "AI generation failed, using fallback", "error", err, "chat_id", chatID)
		text = fallback
	}

	sendReply(ctx, b, log, chatID, replyTo, text, "")
}

func isGroupChat(chat models.Chat) bool {
	return chat.Type == models.ChatTypeGroup || chat.Type == models.ChatTypeSupergroup
}
