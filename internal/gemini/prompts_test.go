package gemini

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgard/sheldonbot/internal/database"
)

func TestSystemInstructionHumorTiers(t *testing.T) {
	tests := []struct {
		name       string
		humorLevel int
		want       string
	}{
		{"minimal at 1", 1, humorDescriptionMin},
		{"minimal at 4", 4, humorDescriptionMin},
		{"moderate at 5", 5, humorDescriptionMid},
		{"moderate at 7", 7, humorDescriptionMid},
		{"maximum at 8", 8, humorDescriptionMax},
		{"maximum at 10", 10, humorDescriptionMax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := systemInstruction(tt.humorLevel, 3)
			assert.Contains(t, got, tt.want)
			assert.True(t, strings.HasPrefix(got, sheldonSystemPrompt))
		})
	}
}

func TestSystemInstructionLengthLine(t *testing.T) {
	assert.Contains(t, systemInstruction(5, 1), "Максимальная длина ответа: 1 предложение.")
	assert.Contains(t, systemInstruction(5, 3), "Максимальная длина ответа: 3 предложения.")
	assert.Contains(t, systemInstruction(5, 10), "Максимальная длина ответа: 10 предложений.")
}

func TestSentenceEnding(t *testing.T) {
	assert.Equal(t, "е", sentenceEnding(1))
	assert.Equal(t, "я", sentenceEnding(2))
	assert.Equal(t, "я", sentenceEnding(4))
	assert.Equal(t, "й", sentenceEnding(5))
	assert.Equal(t, "й", sentenceEnding(10))
}

func TestReplyTemperature(t *testing.T) {
	assert.InDelta(t, 0.73, replyTemperature(1), 0.001)
	assert.InDelta(t, 0.85, replyTemperature(5), 0.001)
	assert.InDelta(t, 1.0, replyTemperature(10), 0.001)
}

func TestReplyTokenLimit(t *testing.T) {
	assert.Equal(t, int32(80), replyTokenLimit(1))
	assert.Equal(t, int32(240), replyTokenLimit(3))
	assert.Equal(t, int32(800), replyTokenLimit(10))
	assert.Equal(t, int32(60), replyTokenLimit(0))
}

func TestHistoryLineWithBio(t *testing.T) {
	withBio := database.HistoryEntry{UserID: 1, Username: "alice", Bio: "играет в шахматы", Text: "привет"}
	assert.Equal(t, "alice (досье: играет в шахматы): привет", historyLineWithBio(withBio))

	noBio := database.HistoryEntry{UserID: 2, Username: "bob", Text: "здарова"}
	assert.Equal(t, "bob: здарова", historyLineWithBio(noBio))

	noName := database.HistoryEntry{UserID: 3, Text: "ку"}
	assert.Equal(t, "user_3: ку", historyLineWithBio(noName))
}

func TestFormatHistory(t *testing.T) {
	assert.Equal(t, "Чат пока молчит.", formatHistory(nil))

	history := []database.HistoryEntry{
		{UserID: 1, Username: "alice", Text: "раз"},
		{UserID: 2, Text: "два"},
	}
	assert.Equal(t, "alice: раз\nuser_2: два", formatHistory(history))
}

func TestLastTopic(t *testing.T) {
	assert.Equal(t, "ничего интересного", lastTopic(nil))

	history := []database.HistoryEntry{
		{Text: "старое"},
		{Text: "свежее"},
	}
	assert.Equal(t, "свежее", lastTopic(history))
}

func TestFormatMemberList(t *testing.T) {
	members := []database.MemberProfile{
		{UserID: 1, Username: "alice", Bio: "шахматы"},
		{UserID: 2, Username: "bob"},
		{UserID: 3},
	}
	assert.Equal(t, "@alice (шахматы), @bob (досье не заполнено)", formatMemberList(members))

	// Nobody mentionable.
	assert.Equal(t, "группа загадочных незнакомцев", formatMemberList([]database.MemberProfile{{UserID: 3}}))
	assert.Equal(t, "группа загадочных незнакомцев", formatMemberList(nil))
}

func TestFormatBioSummary(t *testing.T) {
	members := []database.MemberProfile{
		{UserID: 1, Username: "alice", Bio: "шахматы"},
		{UserID: 2, Username: "bob"},
		{UserID: 3, Bio: "рыбалка"},
	}
	assert.Equal(t, "- @alice: шахматы\n- @user_3: рыбалка", formatBioSummary(members))

	assert.Empty(t, formatBioSummary([]database.MemberProfile{{UserID: 2, Username: "bob"}}))
}

func TestBioNote(t *testing.T) {
	assert.Equal(t, "Досье: шахматы", bioNote("шахматы"))
	assert.Equal(t, "Досье пока пустое — человек-загадка.", bioNote(""))
}
