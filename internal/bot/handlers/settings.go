package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/edgard/sheldonbot/internal/database"
)

const (
	settingsAckTemplate = "Принято. Скорректировал алгоритмы: %s. Надеюсь, это удовлетворит ваши социальные требования."

	defaultIgnoreDays = 1
	maxIgnoreDays     = 30
)

type settingsEffect int

const (
	effectHumor settingsEffect = iota
	effectFrequency
	effectLength
	effectIgnore
)

// settingsRule maps one natural-language request onto a policy adjustment.
// Frequency deltas are inverted relative to intuition: "answer more often"
// lowers the message count needed between replies.
type settingsRule struct {
	re     *regexp.Regexp
	effect settingsEffect
	delta  int
}

var settingsRules = []settingsRule{
	{regexp.MustCompile(`(?i)шути\s+(чаще|больше|активнее|веселее|смешнее|лучше)`), effectHumor, 2},
	{regexp.MustCompile(`(?i)больше\s+(юмора|шуток|приколов)`), effectHumor, 2},
	{regexp.MustCompile(`(?i)будь\s+(смешнее|веселее|прикольнее)`), effectHumor, 2},
	{regexp.MustCompile(`(?i)шути\s+(реже|меньше|потише|потиш)`), effectHumor, -2},
	{regexp.MustCompile(`(?i)меньше\s+(юмора|шуток|приколов)`), effectHumor, -2},
	{regexp.MustCompile(`(?i)(плохая|не смешная|несмешная)\s+шутка`), effectHumor, -1},
	{regexp.MustCompile(`(?i)не\s+смешно`), effectHumor, -1},
	{regexp.MustCompile(`(?i)пиши\s+(чаще|активнее|больше)`), effectFrequency, -3},
	{regexp.MustCompile(`(?i)отвечай\s+(чаще|активнее)`), effectFrequency, -3},
	{regexp.MustCompile(`(?i)пиши\s+реже`), effectFrequency, 5},
	{regexp.MustCompile(`(?i)заткнись|помолчи|замолчи`), effectFrequency, 5},
	{regexp.MustCompile(`(?i)устал\s+от\s+тебя`), effectFrequency, 5},
	{regexp.MustCompile(`(?i)отвечай\s+реже`), effectFrequency, 5},
	{regexp.MustCompile(`(?i)пиши\s+(короче|меньше|кратче|лаконичнее)`), effectLength, -1},
	{regexp.MustCompile(`(?i)отвечай\s+(короче|кратко|меньше)`), effectLength, -1},
	{regexp.MustCompile(`(?i)(слишком\s+длинно|много\s+текста|много\s+букв)`), effectLength, -1},
	{regexp.MustCompile(`(?i)пиши\s+(подробнее|больше|развёрнуто|развернуто)`), effectLength, 1},
	{regexp.MustCompile(`(?i)отвечай\s+(подробнее|развёрнуто)`), effectLength, 1},
	{regexp.MustCompile(`(?i)не\s+обращайся\s+ко\s+мне\s+(\d+)\s+дн`), effectIgnore, 0},
	{regexp.MustCompile(`(?i)игнорируй\s+меня\s+(\d+)\s+дн`), effectIgnore, 0},
	{regexp.MustCompile(`(?i)не\s+трогай\s+меня\s+(\d+)\s+дн`), effectIgnore, 0},
	{regexp.MustCompile(`(?i)оставь\s+меня\s+в\s+покое\s+(\d+)\s+дн`), effectIgnore, 0},
}

// settingsParser turns free-form chat requests like "шути чаще" or "пиши
// короче" into policy adjustments, without any explicit command syntax.
type settingsParser struct {
	store database.Store
	log   *slog.Logger
	now   func() time.Time
}

func newSettingsParser(store database.Store, log *slog.Logger) *settingsParser {
	return &settingsParser{
		store: store,
		log:   log.With("component", "settings_parser"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Apply tests the message against every rule in order and applies each match.
// One message may carry several requests ("шути чаще и пиши короче"), so a
// single acknowledgement summarises all resulting changes. It returns false
// when nothing matched or every matched adjustment failed, in which case the
// message continues through the normal reply pipeline.
func (p *settingsParser) Apply(ctx context.Context, chatID, userID int64, text string) (string, bool) {
	var descriptions []string
	seen := make(map[string]struct{})

	for _, rule := range settingsRules {
		match := rule.re.FindStringSubmatch(text)
		if match == nil {
			continue
		}

		desc, err := p.applyRule(ctx, chatID, userID, rule, match)
		if err != nil {
			p.log.ErrorContext(ctx, "Failed to apply settings adjustment", "error", err, "chat_id", chatID, "pattern", rule.re.String())
			continue
		}

		if _, dup := seen[desc]; dup {
			continue
		}
		seen[desc] = struct{}{}
		descriptions = append(descriptions, desc)
	}

	if len(descriptions) == 0 {
		return "", false
	}

	p.log.InfoContext(ctx, "Applied settings adjustments", "chat_id", chatID, "user_id", userID, "changes", len(descriptions))
	return fmt.Sprintf(settingsAckTemplate, strings.Join(descriptions, ", ")), true
}

func (p *settingsParser) applyRule(ctx context.Context, chatID, userID int64, rule settingsRule, match []string) (string, error) {
	switch rule.effect {
	case effectHumor:
		level, err := p.store.AdjustHumorLevel(ctx, chatID, rule.delta)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("уровень юмора → %d/10", level), nil

	case effectFrequency:
		freq, err := p.store.AdjustReplyFrequency(ctx, chatID, rule.delta)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("частота ответов → каждые %d сообщений", freq), nil

	case effectLength:
		lines, err := p.store.AdjustMaxResponseLines(ctx, chatID, rule.delta)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("длина ответа → %d предл.", lines), nil

	case effectIgnore:
		days := defaultIgnoreDays
		if len(match) > 1 && match[1] != "" {
			if parsed, err := strconv.Atoi(match[1]); err == nil {
				days = parsed
			}
		}
		if days < 1 {
			days = 1
		}
		if days > maxIgnoreDays {
			days = maxIgnoreDays
		}

		until := p.now().Add(time.Duration(days) * 24 * time.Hour)
		if err := p.store.SetUserIgnore(ctx, chatID, userID, until); err != nil {
			return "", err
		}
		return fmt.Sprintf("не буду обращаться к тебе %d дн.", days), nil
	}

	return "", fmt.Errorf("unknown settings effect %d", rule.effect)
}
