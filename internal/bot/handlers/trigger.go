package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/sheldonbot/internal/database"
)

// triggerEvaluator decides when the bot interjects into group conversation
// it was not addressed in. Each chat carries a message counter and a reply
// frequency; the counter advances on every counted message and a reply fires
// once it reaches the frequency.
type triggerEvaluator struct {
	store database.Store
	log   *slog.Logger
}

func newTriggerEvaluator(store database.Store, log *slog.Logger) *triggerEvaluator {
	return &triggerEvaluator{store: store, log: log.With("component", "trigger")}
}

// EvaluateAmbient counts one group message and reports whether an ambient
// reply is due. On a hit the counter is reset before returning, so the next
// cycle starts from zero even if the reply itself later fails to send.
func (t *triggerEvaluator) EvaluateAmbient(ctx context.Context, chatID int64) (bool, error) {
	count, frequency, err := t.store.IncrementAndGetCount(ctx, chatID)
	if err != nil {
		return false, err
	}
	if count < frequency {
		return false, nil
	}

	if err := t.store.ResetMessageCount(ctx, chatID); err != nil {
		t.log.ErrorContext(ctx, "Failed to reset message count after ambient trigger", "error", err, "chat_id", chatID)
	}
	return true, nil
}

// NoteDirectReply resets the chat's counter after the bot answered a direct
// mention, postponing the next ambient interjection by a full cycle.
func (t *triggerEvaluator) NoteDirectReply(ctx context.Context, chatID int64) {
	if err := t.store.ResetMessageCount(ctx, chatID); err != nil {
		t.log.ErrorContext(ctx, "Failed to reset message count after direct reply", "error", err, "chat_id", chatID)
	}
}
