package handlers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/sheldonbot/internal/gemini"
)

const (
	greetingTemplate = "Оповещение: к нашему социальному эксперименту присоединился %s. Надеюсь, твой IQ выше среднего — хотя статистика не на твоей стороне.\n\nДля каталогизации: кто ты, чем занимаешься, каковы хобби? Данные будут занесены в базу для последующих иронических атак."

	bioSavedText = "Досье занесено. Теперь я знаю о тебе достаточно для качественных подколок. Добро пожаловать в базу данных."

	voiceWhiteNoiseText = "Я расслышал лишь белый шум. Возможно, твой микрофон столь же некомпетентен, как и твои аргументы."
	voiceReplyTemplate  = "🎙 <i>«%s»</i>\n\n%s"

	imageLimitTemplate   = "🚫 Лимит исчерпан. За сегодня сгенерировано %d/%d изображений. Мои вычислительные мощности не бесконечны — приходите завтра."
	imageWaitTemplate    = "🎨 Активирую генерацию изображений... Обрабатываю запрос: <i>%s</i>\n⏳ Генерация занимает ~15 секунд. Осталось попыток сегодня: %d из %d."
	imageSuccessTemplate = "✅ Готово. Применил: «%s»\nИспользовано сегодня: %d/%d."
	imageFailureText     = "Что-то пошло не так в моих нейросетевых цепях. Нейросеть отказала в сотрудничестве. Попробуйте позже."
)

// messageHandler is the default handler for everything that is not a
// registered command: plain text, photos, voice notes, and service messages
// about new chat members.
type messageHandler struct {
	deps     HandlerDeps
	trigger  *triggerEvaluator
	settings *settingsParser
}

// NewMessageHandler creates the catch-all message handler. Group messages
// feed the ambient reply counter and the natural-language settings parser;
// private messages always get a reply.
func NewMessageHandler(deps HandlerDeps) tgbot.HandlerFunc {
	h := messageHandler{
		deps:     deps,
		trigger:  newTriggerEvaluator(deps.Store, deps.Logger),
		settings: newSettingsParser(deps.Store, deps.Logger),
	}
	return h.Handle
}

// Handle routes an incoming update to the matching pipeline.
func (h messageHandler) Handle(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "message")

	msg := update.Message
	if msg == nil {
		return
	}

	if len(msg.NewChatMembers) > 0 {
		h.handleNewMembers(ctx, b, log, msg)
		return
	}

	// Never count or answer other bots, including ourselves.
	if msg.From == nil || msg.From.IsBot {
		return
	}

	switch {
	case msg.Voice != nil:
		h.handleVoice(ctx, b, log, msg)
	case len(msg.Photo) > 0:
		h.handlePhoto(ctx, b, log, msg)
	case msg.Text != "":
		if isGroupChat(msg.Chat) {
			h.handleGroupText(ctx, b, log, msg)
		} else {
			h.handlePrivateText(ctx, b, log, msg)
		}
	}
}

// recordActivity registers the sender and, for group chats, marks the chat as
// recently active so the proactive scheduler leaves it alone.
func (h messageHandler) recordActivity(ctx context.Context, log *slog.Logger, msg *models.Message, group bool) {
	if err := h.deps.Store.UpsertUser(ctx, msg.From.ID, msg.From.Username); err != nil {
		log.ErrorContext(ctx, "Failed to upsert user", "error", err, "user_id", msg.From.ID)
	}
	if !group {
		return
	}
	if err := h.deps.Store.AddChatMember(ctx, msg.Chat.ID, msg.From.ID); err != nil {
		log.ErrorContext(ctx, "Failed to record chat membership", "error", err, "chat_id", msg.Chat.ID, "user_id", msg.From.ID)
	}
	if err := h.deps.Store.TouchLastActivity(ctx, msg.Chat.ID); err != nil {
		log.ErrorContext(ctx, "Failed to touch chat activity", "error", err, "chat_id", msg.Chat.ID)
	}
}

// sendPersonaReply answers the given message in persona, using the chat's
// humor and length policy plus recent history as context.
func (h messageHandler) sendPersonaReply(ctx context.Context, b *tgbot.Bot, log *slog.Logger, chatID int64, replyTo int, trigger string) {
	policy, err := h.deps.Store.GetChatPolicy(ctx, chatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load chat policy", "error", err, "chat_id", chatID)
		return
	}
	history := fetchHistory(ctx, h.deps, log, chatID, replyHistoryLimit)

	replyWithAI(ctx, b, log, chatID, replyTo, gemini.FallbackReply, func(aiCtx context.Context) (string, error) {
		return h.deps.GeminiClient.GenerateReply(aiCtx, policy.HumorLevel, policy.MaxResponseLines, history, trigger)
	})
}

func (h messageHandler) handleNewMembers(ctx context.Context, b *tgbot.Bot, log *slog.Logger, msg *models.Message) {
	chatID := msg.Chat.ID

	for _, user := range msg.NewChatMembers {
		if user.IsBot {
			continue
		}

		if err := h.deps.Store.UpsertUser(ctx, user.ID, user.Username); err != nil {
			log.ErrorContext(ctx, "Failed to upsert new member", "error", err, "user_id", user.ID)
		}
		if err := h.deps.Store.AddChatMember(ctx, chatID, user.ID); err != nil {
			log.ErrorContext(ctx, "Failed to record new member", "error", err, "chat_id", chatID, "user_id", user.ID)
		}
		if err := h.deps.Store.TouchLastActivity(ctx, chatID); err != nil {
			log.ErrorContext(ctx, "Failed to touch chat activity", "error", err, "chat_id", chatID)
		}

		tag := "@" + user.Username
		if user.Username == "" {
			firstName := user.FirstName
			if firstName == "" {
				firstName = "Незнакомец"
			}
			tag = fmt.Sprintf("<b>%s</b>", firstName)
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
		_, err := b.SendMessage(sendCtx, &tgbot.SendMessageParams{
			ChatID:    chatID,
			Text:      fmt.Sprintf(greetingTemplate, tag),
			ParseMode: models.ParseModeHTML,
		})
		cancel()
		if err != nil {
			log.ErrorContext(ctx, "Failed to greet new member", "error", err, "chat_id", chatID, "user_id", user.ID)
		} else {
			log.InfoContext(ctx, "Greeted new member", "chat_id", chatID, "user_id", user.ID)
		}
	}
}

func (h messageHandler) handleGroupText(ctx context.Context, b *tgbot.Bot, log *slog.Logger, msg *models.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID
	text := msg.Text

	h.recordActivity(ctx, log, msg, true)
	saveMessageWithRetry(ctx, h.deps, log, userID, chatID, text)

	botInfo := h.deps.Config.Telegram.BotInfo

	// A reply to the bot's dossier question stores the answer as the
	// author's bio.
	if reply := msg.ReplyToMessage; reply != nil && reply.From != nil &&
		reply.From.ID == botInfo.ID && strings.Contains(strings.ToLower(reply.Text), "досье") {
		if err := h.deps.Store.SetUserBio(ctx, userID, text); err != nil {
			log.ErrorContext(ctx, "Failed to store dossier", "error", err, "chat_id", chatID, "user_id", userID)
			return
		}
		log.InfoContext(ctx, "Stored dossier from reply", "chat_id", chatID, "user_id", userID)
		sendReply(ctx, b, log, chatID, msg.ID, bioSavedText, "")
		return
	}

	if ack, matched := h.settings.Apply(ctx, chatID, userID, text); matched {
		sendReply(ctx, b, log, chatID, msg.ID, ack, "")
		return
	}

	if isDirectMention(msg, botInfo.ID, botInfo.Username) {
		h.sendPersonaReply(ctx, b, log, chatID, msg.ID, "")
		h.trigger.NoteDirectReply(ctx, chatID)
		return
	}

	fire, err := h.trigger.EvaluateAmbient(ctx, chatID)
	if err != nil {
		log.ErrorContext(ctx, "Ambient trigger evaluation failed", "error", err, "chat_id", chatID)
		return
	}
	if fire {
		h.sendPersonaReply(ctx, b, log, chatID, msg.ID, "")
	}
}

func (h messageHandler) handlePrivateText(ctx context.Context, b *tgbot.Bot, log *slog.Logger, msg *models.Message) {
	h.recordActivity(ctx, log, msg, false)
	saveMessageWithRetry(ctx, h.deps, log, msg.From.ID, msg.Chat.ID, msg.Text)
	h.sendPersonaReply(ctx, b, log, msg.Chat.ID, msg.ID, "")
}

func (h messageHandler) handleVoice(ctx context.Context, b *tgbot.Bot, log *slog.Logger, msg *models.Message) {
	chatID := msg.Chat.ID
	group := isGroupChat(msg.Chat)

	h.recordActivity(ctx, log, msg, group)

	botInfo := h.deps.Config.Telegram.BotInfo
	mentioned := isDirectMention(msg, botInfo.ID, botInfo.Username)

	data, mimeType, err := downloadTelegramFile(ctx, b, h.deps.Config.Telegram.Token, msg.Voice.FileID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to download voice note", "error", err, "chat_id", chatID)
		return
	}
	if msg.Voice.MimeType != "" {
		mimeType = msg.Voice.MimeType
	}

	aiCtx, cancel := context.WithTimeout(ctx, aiProcessingTimeout)
	transcript := h.deps.GeminiClient.TranscribeVoice(aiCtx, data, mimeType)
	cancel()

	if transcript == "" {
		if mentioned {
			sendReply(ctx, b, log, chatID, msg.ID, voiceWhiteNoiseText, "")
		}
		return
	}

	saveMessageWithRetry(ctx, h.deps, log, msg.From.ID, chatID, fmt.Sprintf("[голос]: %s", transcript))

	if group && !mentioned {
		fire, evalErr := h.trigger.EvaluateAmbient(ctx, chatID)
		if evalErr != nil {
			log.ErrorContext(ctx, "Ambient trigger evaluation failed", "error", evalErr, "chat_id", chatID)
			return
		}
		if !fire {
			return
		}
	}

	policy, err := h.deps.Store.GetChatPolicy(ctx, chatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load chat policy", "error", err, "chat_id", chatID)
		return
	}
	history := fetchHistory(ctx, h.deps, log, chatID, replyHistoryLimit)

	speaker := msg.From.FirstName
	if speaker == "" {
		speaker = msg.From.Username
	}
	trigger := fmt.Sprintf("[Участник %s сказал голосом]: %s", speaker, transcript)

	_, _ = b.SendChatAction(ctx, &tgbot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping})

	genCtx, cancelGen := context.WithTimeout(ctx, aiProcessingTimeout)
	reply, err := h.deps.GeminiClient.GenerateReply(genCtx, policy.HumorLevel, policy.MaxResponseLines, history, trigger)
	cancelGen()
	if err != nil {
		log.ErrorContext(ctx, "AI generation failed, using fallback", "error", err, "chat_id", chatID)
		reply = gemini.FallbackReply
	}

	sendReply(ctx, b, log, chatID, msg.ID, fmt.Sprintf(voiceReplyTemplate, transcript, reply), models.ParseModeHTML)

	if mentioned {
		h.trigger.NoteDirectReply(ctx, chatID)
	}
}

func (h messageHandler) handlePhoto(ctx context.Context, b *tgbot.Bot, log *slog.Logger, msg *models.Message) {
	chatID := msg.Chat.ID
	group := isGroupChat(msg.Chat)
	caption := msg.Caption

	h.recordActivity(ctx, log, msg, group)

	if caption != "" {
		saveMessageWithRetry(ctx, h.deps, log, msg.From.ID, chatID, fmt.Sprintf("[фото] %s", caption))
	}

	botInfo := h.deps.Config.Telegram.BotInfo
	mentioned := isDirectMention(msg, botInfo.ID, botInfo.Username)

	if group && !mentioned {
		fire, err := h.trigger.EvaluateAmbient(ctx, chatID)
		if err != nil {
			log.ErrorContext(ctx, "Ambient trigger evaluation failed", "error", err, "chat_id", chatID)
			return
		}
		if !fire {
			return
		}
	}

	var best models.PhotoSize
	for _, p := range msg.Photo {
		if p.Width*p.Height >= best.Width*best.Height {
			best = p
		}
	}

	data, mimeType, err := downloadTelegramFile(ctx, b, h.deps.Config.Telegram.Token, best.FileID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to download photo", "error", err, "chat_id", chatID)
		return
	}

	if caption != "" && h.detectEditIntent(ctx, caption) {
		h.handleImageEdit(ctx, b, log, msg, data, mimeType, caption)
	} else {
		h.handleVisionComment(ctx, b, log, msg, data, mimeType, caption)
	}

	if mentioned {
		h.trigger.NoteDirectReply(ctx, chatID)
	}
}

func (h messageHandler) detectEditIntent(ctx context.Context, caption string) bool {
	aiCtx, cancel := context.WithTimeout(ctx, aiProcessingTimeout)
	defer cancel()
	return h.deps.GeminiClient.DetectEditIntent(aiCtx, caption)
}

// handleVisionComment answers a photo with a persona remark about what is on
// it, folding the caption and recent chat context into the prompt.
func (h messageHandler) handleVisionComment(ctx context.Context, b *tgbot.Bot, log *slog.Logger, msg *models.Message, data []byte, mimeType, caption string) {
	chatID := msg.Chat.ID
	history := fetchHistory(ctx, h.deps, log, chatID, visionHistoryLimit)

	replyWithAI(ctx, b, log, chatID, msg.ID, gemini.FallbackVision, func(aiCtx context.Context) (string, error) {
		return h.deps.GeminiClient.GenerateImageComment(aiCtx, history, caption, mimeType, data)
	})
}

// handleImageEdit runs the image generation flow: check the daily limit,
// announce the attempt, build an English prompt from the photo and the edit
// request, generate, and send the result back as a new photo. The counter is
// only consumed after a successful generation.
func (h messageHandler) handleImageEdit(ctx context.Context, b *tgbot.Bot, log *slog.Logger, msg *models.Message, data []byte, mimeType, caption string) {
	chatID := msg.Chat.ID
	limit := h.deps.Config.Engagement.ImageDailyLimit

	used, err := h.deps.Store.ImageGenCountToday(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read image generation count", "error", err, "chat_id", chatID)
		return
	}
	if used >= limit {
		sendReply(ctx, b, log, chatID, msg.ID, fmt.Sprintf(imageLimitTemplate, used, limit), "")
		return
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, sendMessageTimeout)
	waitMsg, err := b.SendMessage(waitCtx, &tgbot.SendMessageParams{
		ChatID:          chatID,
		Text:            fmt.Sprintf(imageWaitTemplate, caption, limit-used-1, limit),
		ParseMode:       models.ParseModeHTML,
		ReplyParameters: &models.ReplyParameters{MessageID: msg.ID},
	})
	cancelWait()
	if err != nil {
		log.ErrorContext(ctx, "Failed to send generation notice", "error", err, "chat_id", chatID)
	}

	aiCtx, cancel := context.WithTimeout(ctx, aiProcessingTimeout)
	defer cancel()

	prompt := h.deps.GeminiClient.BuildImagePrompt(aiCtx, data, mimeType, caption)
	imageBytes, genErr := h.deps.GeminiClient.GenerateImage(aiCtx, prompt)

	// The notice is transient either way.
	if waitMsg != nil {
		_, _ = b.DeleteMessage(ctx, &tgbot.DeleteMessageParams{ChatID: chatID, MessageID: waitMsg.ID})
	}

	if genErr != nil {
		log.ErrorContext(ctx, "Image generation failed", "error", genErr, "chat_id", chatID)
		sendReply(ctx, b, log, chatID, msg.ID, imageFailureText, "")
		return
	}

	countNow, err := h.deps.Store.IncrementImageGenCount(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to record image generation", "error", err)
		countNow = used + 1
	}

	sendCtx, cancelSend := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancelSend()
	_, err = b.SendPhoto(sendCtx, &tgbot.SendPhotoParams{
		ChatID:          chatID,
		Photo:           &models.InputFileUpload{Filename: "result.png", Data: bytes.NewReader(imageBytes)},
		Caption:         fmt.Sprintf(imageSuccessTemplate, caption, countNow, limit),
		ReplyParameters: &models.ReplyParameters{MessageID: msg.ID},
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send generated image", "error", err, "chat_id", chatID)
	} else {
		log.InfoContext(ctx, "Sent generated image", "chat_id", chatID, "used_today", countNow, "limit", limit)
	}
}
