package gemini

import (
	"fmt"
	"strings"

	"github.com/edgard/sheldonbot/internal/database"
)

// sheldonSystemPrompt is the base persona. A settings suffix with the current
// humor level and reply length is appended per request.
const sheldonSystemPrompt = `Ты — Шелдон Купер в Telegram-чате. Гений, сноб, но обаятельный зануда.

СТИЛЬ:
- Отвечай КОРОТКО — 1-3 предложения максимум. Никаких простыней текста.
- Юмор — твой главный инструмент. Шути ЧАСТО, остро, но без злобы.
- Иронизируй над хобби и занятиями участников — это твоя фишка.
- Используй снисходительный тон: ты умнее всех, но не агрессивен.
- Иногда вставляй "Базара нет", "Бинго!", "Как интересно... нет, погоди, совсем не интересно."
- Можешь процитировать науку или поп-культуру к месту.

ЖЁСТКИЕ ЛИМИТЫ:
1. НИКАКИХ шуток про религию.
2. НИКАКИХ тем 18+ и пошлости.
3. НИКАКОГО мата.
4. Организационные вопросы, логистика, поездки — отвечай сухо и по делу, без шуток.

ОБУЧАЕМОСТЬ:
Если пишут «пиши реже», «плохая шутка», «заткнись» — извинись занудно, пообещай «скорректировать алгоритмы».

Отвечай на языке последнего сообщения. По умолчанию — русский.`

const (
	humorDescriptionMax = "Сейчас РЕЖИМ МАКСИМАЛЬНОГО ЮМОРА — каждый ответ должен быть смешным, острым, с приколом."
	humorDescriptionMid = "Сейчас режим умеренного юмора — шути, но не перегибай."
	humorDescriptionMin = "Сейчас МИНИМАЛЬНЫЙ ЮМОР — отвечай почти серьёзно, редкие сухие замечания."
)

// Fallback texts sent when an AI call fails, so failures stay in character.
const (
	// FallbackReply substitutes a failed chat reply.
	FallbackReply = "Мои нейронные цепи дали сбой. Вероятно, виной тому квантовая флуктуация."

	// FallbackVision substitutes a failed photo comment.
	FallbackVision = "Я попытался проанализировать это изображение, но мои фотонные рецепторы отказали."

	// FallbackQuestion substitutes a failed personal question; takes the
	// target's username.
	FallbackQuestion = "@%s, давно хотел спросить: чем ты вообще занимаешься в жизни?"

	// FallbackSilence substitutes a failed silence breaker.
	FallbackSilence = "Господа, тишина в чате нарушает мой алгоритм социального взаимодействия. Кто-нибудь жив?"

	// FallbackDeploy substitutes a failed restart announcement.
	FallbackDeploy = "Обновление завершено. Мои алгоритмы стали острее. Берегитесь."
)

// deployAnnouncementEmpty is the restart announcement for chats where no
// member has filled in a dossier yet. No AI call is made for those.
const deployAnnouncementEmpty = "Обновление системы завершено. К сожалению, моя база данных на участников этого чата практически пуста. Вы все — белые пятна на карте моего интеллекта. Это неприемлемо."

const editIntentSystemPrompt = "Ты определяешь намерение. Если текст — просьба изменить, перерисовать, отредактировать изображение (например: 'сделай фон космосом', 'добавь шляпу', 'в стиле аниме', 'убери человека', 'перекрась в синий') — ответь ТОЛЬКО словом YES. Если это просто комментарий или вопрос — ответь ТОЛЬКО словом NO."

const imagePromptSystemPrompt = "Ты готовишь промпт для нейросети, генерирующей изображения. Посмотри на исходное изображение, опиши его, затем примени запрошенное изменение. Верни ТОЛЬКО готовый промпт на английском языке, без пояснений."

const transcribePrompt = "Расшифруй это голосовое сообщение. Верни только текст расшифровки, без пояснений."

const (
	visionCaptionTemplate = "Участник прислал фото с подписью: %s"
	visionNoCaption       = "Участник прислал фото. Прокомментируй."
)

const memberQuestionTemplate = `Обратись лично к участнику @%s. %s
История чата:
%s

Задай ему один конкретный, остроумный вопрос о его жизни, хобби или характере — чтобы лучше его узнать и пополнить базу данных. Обязательно упомяни его @username в тексте. Коротко — 1-2 предложения.`

const silenceBreakerTemplate = `В чате давно тишина. Участники: %s.
Последняя тема была: %s

Напиши провокационное, остроумное сообщение чтобы расшевелить чат. Можешь упомянуть кого-то из участников через @username. 1-2 предложения максимум.`

const deployAnnouncementTemplate = `Напиши короткое объявление в стиле Шелдона: что ты узнал об участниках чата. Вот их досье:
%s

Кратко, с иронией, упомяни 1-2 участников по @username. Можешь пошутить на основе их хобби. 2-3 предложения.`

// systemInstruction builds the full system prompt for chat replies: the base
// persona plus the chat's current humor and length settings.
func systemInstruction(humorLevel, maxLines int) string {
	var humorDesc string
	switch {
	case humorLevel >= 8:
		humorDesc = humorDescriptionMax
	case humorLevel >= 5:
		humorDesc = humorDescriptionMid
	default:
		humorDesc = humorDescriptionMin
	}

	lengthDesc := fmt.Sprintf("Максимальная длина ответа: %d предложени%s.", maxLines, sentenceEnding(maxLines))

	return sheldonSystemPrompt + "\n\nТЕКУЩИЕ НАСТРОЙКИ:\n" + humorDesc + "\n" + lengthDesc
}

// sentenceEnding returns the Russian plural ending for "предложение".
// The count is always in [1, 10], so the teens case never comes up.
func sentenceEnding(n int) string {
	switch {
	case n == 1:
		return "е"
	case n >= 2 && n <= 4:
		return "я"
	default:
		return "й"
	}
}

// displayName returns the author's username or a numeric placeholder.
func displayName(e database.HistoryEntry) string {
	if e.Username != "" {
		return e.Username
	}
	return fmt.Sprintf("user_%d", e.UserID)
}

// historyLineWithBio renders one history entry with the author's dossier
// attached, for reply context.
func historyLineWithBio(e database.HistoryEntry) string {
	if e.Bio != "" {
		return fmt.Sprintf("%s (досье: %s): %s", displayName(e), e.Bio, e.Text)
	}
	return fmt.Sprintf("%s: %s", displayName(e), e.Text)
}

// formatHistory renders history entries as plain "author: text" lines for
// prompt embedding.
func formatHistory(history []database.HistoryEntry) string {
	if len(history) == 0 {
		return "Чат пока молчит."
	}
	lines := make([]string, 0, len(history))
	for _, e := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", displayName(e), e.Text))
	}
	return strings.Join(lines, "\n")
}

// lastTopic returns the newest history text, for the silence breaker prompt.
func lastTopic(history []database.HistoryEntry) string {
	if len(history) == 0 {
		return "ничего интересного"
	}
	return history[len(history)-1].Text
}

// formatMemberList renders chat members for the silence breaker prompt.
// Members without a username cannot be @-mentioned and are skipped.
func formatMemberList(members []database.MemberProfile) string {
	parts := make([]string, 0, len(members))
	for _, m := range members {
		if m.Username == "" {
			continue
		}
		bio := m.Bio
		if bio == "" {
			bio = "досье не заполнено"
		}
		parts = append(parts, fmt.Sprintf("@%s (%s)", m.Username, bio))
	}
	if len(parts) == 0 {
		return "группа загадочных незнакомцев"
	}
	return strings.Join(parts, ", ")
}

// formatBioSummary renders the dossiers of members that have one, for the
// deploy announcement prompt. Empty result means nobody has a dossier.
func formatBioSummary(members []database.MemberProfile) string {
	lines := make([]string, 0, len(members))
	for _, m := range members {
		if m.Bio == "" {
			continue
		}
		name := m.Username
		if name == "" {
			name = fmt.Sprintf("user_%d", m.UserID)
		}
		lines = append(lines, fmt.Sprintf("- @%s: %s", name, m.Bio))
	}
	return strings.Join(lines, "\n")
}

// bioNote renders the dossier note for the member question prompt.
func bioNote(bio string) string {
	if bio == "" {
		return "Досье пока пустое — человек-загадка."
	}
	return fmt.Sprintf("Досье: %s", bio)
}
