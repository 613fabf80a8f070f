package handlers

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/sheldonbot/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSettingsParserNoMatch(t *testing.T) {
	p := newSettingsParser(newTestStore(t), discardLogger())

	ack, matched := p.Apply(context.Background(), -100, 1, "привет, как дела?")
	assert.False(t, matched)
	assert.Empty(t, ack)
}

func TestSettingsParserRuleTable(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"humor up", "шути чаще", "уровень юмора → 7/10"},
		{"humor up more jokes", "давай больше шуток", "уровень юмора → 7/10"},
		{"humor up be funnier", "будь смешнее", "уровень юмора → 7/10"},
		{"humor down", "шути реже", "уровень юмора → 3/10"},
		{"humor down less jokes", "меньше юмора пожалуйста", "уровень юмора → 3/10"},
		{"humor down bad joke", "плохая шутка", "уровень юмора → 4/10"},
		{"humor down not funny", "не смешно", "уровень юмора → 4/10"},
		{"reply more often", "пиши чаще", "частота ответов → каждые 2 сообщений"},
		{"answer more often", "отвечай чаще", "частота ответов → каждые 2 сообщений"},
		{"reply less often", "пиши реже", "частота ответов → каждые 10 сообщений"},
		{"shut up", "заткнись уже", "частота ответов → каждые 10 сообщений"},
		{"tired of you", "устал от тебя", "частота ответов → каждые 10 сообщений"},
		{"shorter", "пиши короче", "длина ответа → 2 предл."},
		{"too long", "слишком длинно", "длина ответа → 2 предл."},
		{"longer", "пиши подробнее", "длина ответа → 4 предл."},
		{"answer in detail", "отвечай развёрнуто", "длина ответа → 4 предл."},
		{"ignore me", "игнорируй меня 3 дня", "не буду обращаться к тебе 3 дн."},
		{"leave me alone", "оставь меня в покое 5 дней", "не буду обращаться к тебе 5 дн."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newSettingsParser(newTestStore(t), discardLogger())

			ack, matched := p.Apply(context.Background(), -100, 1, tc.text)
			require.True(t, matched)
			assert.Contains(t, ack, tc.want)
			assert.Contains(t, ack, "Принято. Скорректировал алгоритмы:")
		})
	}
}

func TestSettingsParserCaseInsensitive(t *testing.T) {
	p := newSettingsParser(newTestStore(t), discardLogger())

	_, matched := p.Apply(context.Background(), -100, 1, "ШУТИ ЧАЩЕ")
	assert.True(t, matched)
}

func TestSettingsParserMultipleEffectsInOneMessage(t *testing.T) {
	p := newSettingsParser(newTestStore(t), discardLogger())

	ack, matched := p.Apply(context.Background(), -100, 1, "шути чаще и пиши короче")
	require.True(t, matched)
	assert.Contains(t, ack, "уровень юмора → 7/10")
	assert.Contains(t, ack, "длина ответа → 2 предл.")
}

func TestSettingsParserRepeatedEffectStacks(t *testing.T) {
	// Two humor rules match the same message, so the delta lands twice and
	// the acknowledgement reports both intermediate values.
	p := newSettingsParser(newTestStore(t), discardLogger())

	ack, matched := p.Apply(context.Background(), -100, 1, "шути чаще, больше юмора")
	require.True(t, matched)
	assert.Contains(t, ack, "уровень юмора → 7/10")
	assert.Contains(t, ack, "уровень юмора → 9/10")
}

func TestSettingsParserHumorClampsAtCeiling(t *testing.T) {
	store := newTestStore(t)
	p := newSettingsParser(store, discardLogger())
	ctx := context.Background()

	for range [4]struct{}{} {
		_, matched := p.Apply(ctx, -100, 1, "шути чаще")
		require.True(t, matched)
	}

	policy, err := store.GetChatPolicy(ctx, -100)
	require.NoError(t, err)
	assert.Equal(t, 10, policy.HumorLevel)
}

func TestSettingsParserIgnoreClampsDays(t *testing.T) {
	store := newTestStore(t)
	p := newSettingsParser(store, discardLogger())

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }

	ack, matched := p.Apply(context.Background(), -100, 7, "игнорируй меня 99 дней")
	require.True(t, matched)
	assert.Contains(t, ack, "не буду обращаться к тебе 30 дн.")

	ignored, err := store.IsUserIgnored(context.Background(), -100, 7, base.Add(29*24*time.Hour))
	require.NoError(t, err)
	assert.True(t, ignored)

	ignored, err = store.IsUserIgnored(context.Background(), -100, 7, base.Add(31*24*time.Hour))
	require.NoError(t, err)
	assert.False(t, ignored)
}

func TestSettingsParserIgnoreFloorsAtOneDay(t *testing.T) {
	p := newSettingsParser(newTestStore(t), discardLogger())

	ack, matched := p.Apply(context.Background(), -100, 7, "не трогай меня 0 дней")
	require.True(t, matched)
	assert.Contains(t, ack, "не буду обращаться к тебе 1 дн.")
}
