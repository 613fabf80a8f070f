package handlers

import (
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
)

func TestIsDirectMention(t *testing.T) {
	const botID int64 = 99
	const botUsername = "SheldonBot"

	otherUser := &models.User{ID: 7, Username: "somebody"}
	botUser := &models.User{ID: botID, Username: botUsername, IsBot: true}

	tests := []struct {
		name string
		msg  *models.Message
		want bool
	}{
		{
			name: "nil message",
			msg:  nil,
			want: false,
		},
		{
			name: "entity mention at start",
			msg: &models.Message{
				Text: "@sheldonbot привет",
				Entities: []models.MessageEntity{
					{Type: models.MessageEntityTypeMention, Offset: 0, Length: 11},
				},
			},
			want: true,
		},
		{
			name: "entity mention of another bot",
			msg: &models.Message{
				Text: "@otherbot привет",
				Entities: []models.MessageEntity{
					{Type: models.MessageEntityTypeMention, Offset: 0, Length: 9},
				},
			},
			want: false,
		},
		{
			name: "mention after cyrillic text without entities",
			msg:  &models.Message{Text: "привет @sheldonbot"},
			want: true,
		},
		{
			name: "mention with trailing punctuation",
			msg:  &models.Message{Text: "эй @sheldonbot, ты тут?"},
			want: true,
		},
		{
			name: "mention uppercased",
			msg:  &models.Message{Text: "@SHELDONBOT что скажешь"},
			want: true,
		},
		{
			name: "bare name does not count",
			msg:  &models.Message{Text: "шелдон, привет"},
			want: false,
		},
		{
			name: "username as substring of longer handle",
			msg:  &models.Message{Text: "@sheldonbot2000 привет"},
			want: false,
		},
		{
			name: "mention in caption",
			msg:  &models.Message{Caption: "@sheldonbot глянь на это"},
			want: true,
		},
		{
			name: "reply to the bot",
			msg: &models.Message{
				Text:           "ну и что ты думаешь",
				ReplyToMessage: &models.Message{From: botUser},
			},
			want: true,
		},
		{
			name: "reply to another user",
			msg: &models.Message{
				Text:           "согласен",
				ReplyToMessage: &models.Message{From: otherUser},
			},
			want: false,
		},
		{
			name: "plain text without mention",
			msg:  &models.Message{Text: "обычное сообщение"},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isDirectMention(tc.msg, botID, botUsername))
		})
	}
}

func TestIsDirectMentionWithoutUsername(t *testing.T) {
	msg := &models.Message{Text: "@sheldonbot привет"}
	assert.False(t, isDirectMention(msg, 99, ""))
}
