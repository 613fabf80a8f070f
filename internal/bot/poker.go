package bot

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/sheldonbot/internal/config"
	"github.com/edgard/sheldonbot/internal/database"
	"github.com/edgard/sheldonbot/internal/gemini"
)

const (
	deployPrefix = "🔄 <b>Перезагрузка завершена.</b>\n\n"

	pokeNoBioChance    = 0.6
	pokeQuestionChance = 0.55

	pokeQuestionHistoryLimit = 20
	pokeSilenceHistoryLimit  = 10
)

// Sender is the slice of the Telegram API the poker needs. *bot.Bot from
// go-telegram satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
}

// Poker revives quiet group chats. Every chat carries a poke deadline; once
// it passes without anyone talking, the poker either asks a member about
// themselves or drops a conversation starter, then rolls a new random
// deadline. It also announces restarts shortly after the bot comes up.
type Poker struct {
	log   *slog.Logger
	cfg   *config.EngagementConfig
	store database.Store
	ai    gemini.Client
	tg    Sender

	rng *rand.Rand
	now func() time.Time
}

// NewPoker creates a poker with its own seeded random source.
func NewPoker(log *slog.Logger, cfg *config.EngagementConfig, store database.Store, ai gemini.Client, tg Sender) *Poker {
	return &Poker{
		log:   log.With("component", "poker"),
		cfg:   cfg,
		store: store,
		ai:    ai,
		tg:    tg,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled. After a startup grace period it
// announces the restart to every known group, then polls for chats whose
// poke deadline has passed.
func (p *Poker) Run(ctx context.Context) error {
	grace := time.Duration(p.cfg.StartupGraceSeconds) * time.Second
	interval := time.Duration(p.cfg.CheckIntervalSeconds) * time.Second

	p.log.InfoContext(ctx, "Proactive poker starting", "grace", grace, "check_interval", interval)

	select {
	case <-ctx.Done():
		return nil
	case <-time.After(grace):
	}

	p.announceRestart(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.InfoContext(ctx, "Proactive poker stopping")
			return nil
		case <-ticker.C:
			p.scanOnce(ctx)
		}
	}
}

// announceRestart tells every known group chat that the bot is back and
// schedules the first poke deadline. The announcement is sent once per
// process start; a failed send still schedules, so one noisy chat cannot
// cause repeated announcements.
func (p *Poker) announceRestart(ctx context.Context) {
	chats, err := p.store.ListGroupChatIDs(ctx)
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to list group chats for restart announcement", "error", err)
		return
	}

	for _, chatID := range chats {
		if ctx.Err() != nil {
			return
		}

		members, err := p.store.GetChatMembers(ctx, chatID)
		if err != nil {
			p.log.ErrorContext(ctx, "Failed to load members for announcement", "error", err, "chat_id", chatID)
			members = nil
		}

		text, err := p.ai.GenerateDeployAnnouncement(ctx, members)
		if err != nil {
			p.log.ErrorContext(ctx, "Deploy announcement generation failed, using fallback", "error", err, "chat_id", chatID)
			text = gemini.FallbackDeploy
		}

		_, err = p.tg.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID:    chatID,
			Text:      deployPrefix + text,
			ParseMode: models.ParseModeHTML,
		})
		if err != nil {
			p.log.ErrorContext(ctx, "Failed to send restart announcement", "error", err, "chat_id", chatID)
		} else {
			p.log.InfoContext(ctx, "Announced restart", "chat_id", chatID)
		}

		if err := p.store.ScheduleNextPoke(ctx, chatID, p.now().Add(p.randomPokeDelay())); err != nil {
			p.log.ErrorContext(ctx, "Failed to schedule poke after announcement", "error", err, "chat_id", chatID)
		}
	}
}

// scanOnce pokes every chat whose deadline has passed. Failures are isolated
// per chat so one broken chat does not starve the rest.
func (p *Poker) scanOnce(ctx context.Context) {
	due, err := p.store.ListPokeDueChats(ctx, p.now())
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to list chats due for a poke", "error", err)
		return
	}

	for _, chatID := range due {
		if ctx.Err() != nil {
			return
		}
		if err := p.pokeChat(ctx, chatID); err != nil {
			p.log.ErrorContext(ctx, "Poke failed", "error", err, "chat_id", chatID)
		}
	}
}

// pokeChat picks a poke style for one quiet chat and sends it. The deadline
// is rescheduled only after a successful send, so a failed delivery leaves
// the chat due and the next scan retries it.
func (p *Poker) pokeChat(ctx context.Context, chatID int64) error {
	members, err := p.store.GetChatMembers(ctx, chatID)
	if err != nil {
		return fmt.Errorf("failed to load chat members: %w", err)
	}

	active := make([]database.MemberProfile, 0, len(members))
	for _, m := range members {
		ignored, err := p.store.IsUserIgnored(ctx, chatID, m.UserID, p.now())
		if err != nil {
			return fmt.Errorf("failed to check ignore status: %w", err)
		}
		if !ignored {
			active = append(active, m)
		}
	}

	text := p.composePoke(ctx, chatID, active)

	if _, err := p.tg.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		return fmt.Errorf("failed to send poke: %w", err)
	}

	next := p.now().Add(p.randomPokeDelay())
	if err := p.store.ScheduleNextPoke(ctx, chatID, next); err != nil {
		return fmt.Errorf("failed to schedule next poke: %w", err)
	}
	if err := p.store.TouchLastActivity(ctx, chatID); err != nil {
		return fmt.Errorf("failed to touch chat activity: %w", err)
	}

	p.log.InfoContext(ctx, "Poked chat", "chat_id", chatID, "next_poke_at", next)
	return nil
}

// composePoke chooses between a personal question and a general conversation
// starter. Members without a dossier are preferred targets, so pokes double
// as data collection. A no-dossier pick without a username cannot be
// addressed and falls through to the next pool.
func (p *Poker) composePoke(ctx context.Context, chatID int64, members []database.MemberProfile) string {
	var noBio, withUsername []database.MemberProfile
	for _, m := range members {
		if m.Bio == "" {
			noBio = append(noBio, m)
		}
		if m.Username != "" {
			withUsername = append(withUsername, m)
		}
	}

	if len(noBio) > 0 && p.rng.Float64() < pokeNoBioChance {
		if target := noBio[p.rng.Intn(len(noBio))]; target.Username != "" {
			return p.memberQuestion(ctx, chatID, target)
		}
	}
	if len(withUsername) > 0 && p.rng.Float64() < pokeQuestionChance {
		return p.memberQuestion(ctx, chatID, withUsername[p.rng.Intn(len(withUsername))])
	}

	history := p.history(ctx, chatID, pokeSilenceHistoryLimit)
	text, err := p.ai.GenerateSilenceBreaker(ctx, members, history)
	if err != nil {
		p.log.ErrorContext(ctx, "Silence breaker generation failed, using fallback", "error", err, "chat_id", chatID)
		return gemini.FallbackSilence
	}
	return text
}

func (p *Poker) memberQuestion(ctx context.Context, chatID int64, target database.MemberProfile) string {
	history := p.history(ctx, chatID, pokeQuestionHistoryLimit)
	text, err := p.ai.GenerateMemberQuestion(ctx, target.Username, target.Bio, history)
	if err != nil {
		p.log.ErrorContext(ctx, "Member question generation failed, using fallback", "error", err, "chat_id", chatID, "user_id", target.UserID)
		return fmt.Sprintf(gemini.FallbackQuestion, target.Username)
	}
	return text
}

func (p *Poker) history(ctx context.Context, chatID int64, limit int) []database.HistoryEntry {
	history, err := p.store.GetRecentMessages(ctx, chatID, limit)
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to load history for poke", "error", err, "chat_id", chatID)
		return nil
	}
	return history
}

// randomPokeDelay returns a uniform random delay within the configured poke
// window, minute granularity.
func (p *Poker) randomPokeDelay() time.Duration {
	low := p.cfg.PokeMinMinutes
	high := p.cfg.PokeMaxMinutes
	if high <= low {
		return time.Duration(low) * time.Minute
	}
	return time.Duration(low+p.rng.Intn(high-low+1)) * time.Minute
}
