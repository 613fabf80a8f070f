package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	// historyKeep is how many messages are retained per chat; older rows are
	// pruned on every save.
	historyKeep = 100

	dateLayout = "2006-01-02"
)

// Store defines the interface for all persistence used by the engagement
// engine. Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// UpsertUser inserts a user or refreshes their username. The bio is
	// never overwritten here.
	UpsertUser(ctx context.Context, userID int64, username string) error

	// SetUserBio replaces the user's dossier text.
	SetUserBio(ctx context.Context, userID int64, bio string) error

	// GetUser retrieves a user by ID. Returns nil, nil if not found.
	GetUser(ctx context.Context, userID int64) (*User, error)

	// SaveMessage stores a chat message and prunes the chat's history to the
	// newest rows.
	SaveMessage(ctx context.Context, userID, chatID int64, text string) error

	// GetRecentMessages returns up to limit messages for a chat in
	// chronological order, joined with author profiles.
	GetRecentMessages(ctx context.Context, chatID int64, limit int) ([]HistoryEntry, error)

	// EnsureChatPolicy creates the chat's policy row with defaults if it
	// does not exist yet.
	EnsureChatPolicy(ctx context.Context, chatID int64) error

	// GetChatPolicy returns the chat's policy, creating it first if needed.
	GetChatPolicy(ctx context.Context, chatID int64) (*ChatPolicy, error)

	// IncrementAndGetCount atomically increments the chat's ambient message
	// counter and returns the new count together with the reply frequency.
	IncrementAndGetCount(ctx context.Context, chatID int64) (count, frequency int, err error)

	// ResetMessageCount sets the chat's ambient message counter back to zero.
	ResetMessageCount(ctx context.Context, chatID int64) error

	// AdjustHumorLevel shifts the humor level by delta, clamped to [1, 10],
	// and returns the new value.
	AdjustHumorLevel(ctx context.Context, chatID int64, delta int) (int, error)

	// AdjustMaxResponseLines shifts the reply length limit by delta, clamped
	// to [1, 10], and returns the new value.
	AdjustMaxResponseLines(ctx context.Context, chatID int64, delta int) (int, error)

	// AdjustReplyFrequency shifts the reply frequency by delta with a floor
	// of 1 and returns the new value. Negative delta means reply more often.
	AdjustReplyFrequency(ctx context.Context, chatID int64, delta int) (int, error)

	// SetReplyFrequency sets the reply frequency to an absolute value.
	SetReplyFrequency(ctx context.Context, chatID int64, frequency int) error

	// TouchLastActivity records that the chat just saw activity.
	TouchLastActivity(ctx context.Context, chatID int64) error

	// ScheduleNextPoke sets the instant of the chat's next proactive poke.
	ScheduleNextPoke(ctx context.Context, chatID int64, at time.Time) error

	// ListPokeDueChats returns group chats whose poke deadline has passed
	// and whose last activity predates the deadline.
	ListPokeDueChats(ctx context.Context, now time.Time) ([]int64, error)

	// ListGroupChatIDs returns all known group chats.
	ListGroupChatIDs(ctx context.Context) ([]int64, error)

	// AddChatMember records that a user has been seen in a chat.
	AddChatMember(ctx context.Context, chatID, userID int64) error

	// GetChatMembers returns all members of a chat with their profiles.
	GetChatMembers(ctx context.Context, chatID int64) ([]MemberProfile, error)

	// SetUserIgnore marks the user as off-limits for pokes in the chat until
	// the given instant. Re-issuing replaces the previous expiry.
	SetUserIgnore(ctx context.Context, chatID, userID int64, until time.Time) error

	// IsUserIgnored reports whether the user's ignore period in the chat is
	// still active at now.
	IsUserIgnored(ctx context.Context, chatID, userID int64, now time.Time) (bool, error)

	// ImageGenCountToday returns today's (UTC) global image generation count.
	ImageGenCountToday(ctx context.Context) (int, error)

	// IncrementImageGenCount atomically bumps today's (UTC) global image
	// generation count and returns the new value.
	IncrementImageGenCount(ctx context.Context) (int, error)

	// PruneImageGenLog deletes daily counter rows older than keepDays.
	PruneImageGenLog(ctx context.Context, keepDays int) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertUser inserts a user or refreshes their username, preserving any
// existing bio.
func (s *sqlxStore) UpsertUser(ctx context.Context, userID int64, username string) error {
	if userID == 0 {
		return fmt.Errorf("user_id cannot be zero")
	}

	query := `
        INSERT INTO users (user_id, username, bio)
        VALUES (?, ?, '')
        ON CONFLICT (user_id) DO UPDATE SET username = excluded.username;
    `
	if _, err := s.db.ExecContext(ctx, query, userID, username); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting user", "user_id", userID, "error", err)
		return fmt.Errorf("failed to upsert user %d: %w", userID, err)
	}
	return nil
}

// SetUserBio replaces the user's dossier text.
func (s *sqlxStore) SetUserBio(ctx context.Context, userID int64, bio string) error {
	if userID == 0 {
		return fmt.Errorf("user_id cannot be zero")
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE users SET bio = ? WHERE user_id = ?`, bio, userID); err != nil {
		s.logger.ErrorContext(ctx, "Error setting user bio", "user_id", userID, "error", err)
		return fmt.Errorf("failed to set bio for user %d: %w", userID, err)
	}

	s.logger.DebugContext(ctx, "User bio updated", "user_id", userID)
	return nil
}

// GetUser retrieves a user by ID. Returns nil, nil if not found.
func (s *sqlxStore) GetUser(ctx context.Context, userID int64) (*User, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user_id cannot be zero")
	}

	var user User
	err := s.db.GetContext(ctx, &user, `SELECT user_id, username, bio FROM users WHERE user_id = ?`, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting user", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	return &user, nil
}

// SaveMessage stores a chat message and prunes the chat's history to the
// newest historyKeep rows.
func (s *sqlxStore) SaveMessage(ctx context.Context, userID, chatID int64, text string) error {
	if chatID == 0 {
		return fmt.Errorf("chat_id cannot be zero")
	}
	if userID == 0 {
		return fmt.Errorf("user_id cannot be zero")
	}
	if text == "" {
		return fmt.Errorf("message text cannot be empty")
	}

	insert := `INSERT INTO messages (user_id, chat_id, text, timestamp) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, insert, userID, chatID, text, s.now().Unix()); err != nil {
		s.logger.ErrorContext(ctx, "Error saving message", "chat_id", chatID, "user_id", userID, "error", err)
		return fmt.Errorf("failed to save message (chat %d, user %d): %w", chatID, userID, err)
	}

	prune := `
        DELETE FROM messages
        WHERE chat_id = ?
          AND id NOT IN (
              SELECT id FROM messages
              WHERE chat_id = ?
              ORDER BY timestamp DESC, id DESC
              LIMIT ?
          );
    `
	if _, err := s.db.ExecContext(ctx, prune, chatID, chatID, historyKeep); err != nil {
		s.logger.WarnContext(ctx, "Error pruning chat history", "chat_id", chatID, "error", err)
	}

	return nil
}

// GetRecentMessages returns up to limit messages for a chat in chronological
// order, each joined with the author's username and bio.
func (s *sqlxStore) GetRecentMessages(ctx context.Context, chatID int64, limit int) ([]HistoryEntry, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("chat_id cannot be zero")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
        SELECT m.user_id,
               COALESCE(u.username, '') AS username,
               COALESCE(u.bio, '') AS bio,
               m.text,
               m.timestamp
        FROM messages m
        LEFT JOIN users u ON u.user_id = m.user_id
        WHERE m.chat_id = ?
        ORDER BY m.timestamp DESC, m.id DESC
        LIMIT ?;
    `

	var entries []HistoryEntry
	if err := s.db.SelectContext(ctx, &entries, query, chatID, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error getting recent messages", "chat_id", chatID, "limit", limit, "error", err)
		return nil, fmt.Errorf("failed to get recent messages for chat %d: %w", chatID, err)
	}

	// Newest-first from the query; callers want chronological order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// ensureChatPolicy creates the chat's policy row with defaults if missing.
// Both activity and poke instants start at now, so a brand-new chat is not
// immediately poke-due.
func (s *sqlxStore) ensureChatPolicy(ctx context.Context, chatID int64) error {
	now := s.now().Unix()
	query := `
        INSERT INTO chat_policies (chat_id, message_count, reply_frequency, humor_level, max_response_lines, last_activity_at, next_poke_at)
        VALUES (?, 0, 5, 5, 3, ?, ?)
        ON CONFLICT (chat_id) DO NOTHING;
    `
	if _, err := s.db.ExecContext(ctx, query, chatID, now, now); err != nil {
		return fmt.Errorf("failed to ensure chat policy for chat %d: %w", chatID, err)
	}
	return nil
}

// EnsureChatPolicy creates the chat's policy row with defaults if it does not
// exist yet.
func (s *sqlxStore) EnsureChatPolicy(ctx context.Context, chatID int64) error {
	if chatID == 0 {
		return fmt.Errorf("chat_id cannot be zero")
	}
	if err := s.ensureChatPolicy(ctx, chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error ensuring chat policy", "chat_id", chatID, "error", err)
		return err
	}
	return nil
}

// GetChatPolicy returns the chat's policy, creating it first if needed.
func (s *sqlxStore) GetChatPolicy(ctx context.Context, chatID int64) (*ChatPolicy, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("chat_id cannot be zero")
	}
	if err := s.ensureChatPolicy(ctx, chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error ensuring chat policy", "chat_id", chatID, "error", err)
		return nil, err
	}

	var policy ChatPolicy
	query := `
        SELECT chat_id, message_count, reply_frequency, humor_level, max_response_lines, last_activity_at, next_poke_at
        FROM chat_policies WHERE chat_id = ?;
    `
	if err := s.db.GetContext(ctx, &policy, query, chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error getting chat policy", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to get chat policy for chat %d: %w", chatID, err)
	}
	return &policy, nil
}

// IncrementAndGetCount atomically increments the chat's ambient message
// counter and returns the new count together with the reply frequency.
// Concurrent callers observe distinct counts.
func (s *sqlxStore) IncrementAndGetCount(ctx context.Context, chatID int64) (int, int, error) {
	if chatID == 0 {
		return 0, 0, fmt.Errorf("chat_id cannot be zero")
	}
	if err := s.ensureChatPolicy(ctx, chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error ensuring chat policy", "chat_id", chatID, "error", err)
		return 0, 0, err
	}

	query := `
        UPDATE chat_policies
        SET message_count = message_count + 1
        WHERE chat_id = ?
        RETURNING message_count, reply_frequency;
    `
	var count, frequency int
	if err := s.db.QueryRowxContext(ctx, query, chatID).Scan(&count, &frequency); err != nil {
		s.logger.ErrorContext(ctx, "Error incrementing message count", "chat_id", chatID, "error", err)
		return 0, 0, fmt.Errorf("failed to increment message count for chat %d: %w", chatID, err)
	}
	return count, frequency, nil
}

// ResetMessageCount sets the chat's ambient message counter back to zero.
func (s *sqlxStore) ResetMessageCount(ctx context.Context, chatID int64) error {
	if chatID == 0 {
		return fmt.Errorf("chat_id cannot be zero")
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE chat_policies SET message_count = 0 WHERE chat_id = ?`, chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error resetting message count", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to reset message count for chat %d: %w", chatID, err)
	}
	return nil
}

// adjustClamped applies a clamped delta to a policy column in a single
// statement and returns the new value.
func (s *sqlxStore) adjustClamped(ctx context.Context, chatID int64, column string, delta int) (int, error) {
	if chatID == 0 {
		return 0, fmt.Errorf("chat_id cannot be zero")
	}
	if err := s.ensureChatPolicy(ctx, chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error ensuring chat policy", "chat_id", chatID, "error", err)
		return 0, err
	}

	// column comes from a fixed caller set, never from input.
	query := fmt.Sprintf(`
        UPDATE chat_policies
        SET %[1]s = MAX(1, MIN(10, %[1]s + ?))
        WHERE chat_id = ?
        RETURNING %[1]s;
    `, column)

	var value int
	if err := s.db.QueryRowxContext(ctx, query, delta, chatID).Scan(&value); err != nil {
		s.logger.ErrorContext(ctx, "Error adjusting chat policy", "chat_id", chatID, "column", column, "delta", delta, "error", err)
		return 0, fmt.Errorf("failed to adjust %s for chat %d: %w", column, chatID, err)
	}

	s.logger.DebugContext(ctx, "Chat policy adjusted", "chat_id", chatID, "column", column, "delta", delta, "value", value)
	return value, nil
}

// AdjustHumorLevel shifts the humor level by delta, clamped to [1, 10].
func (s *sqlxStore) AdjustHumorLevel(ctx context.Context, chatID int64, delta int) (int, error) {
	return s.adjustClamped(ctx, chatID, "humor_level", delta)
}

// AdjustMaxResponseLines shifts the reply length limit by delta, clamped to [1, 10].
func (s *sqlxStore) AdjustMaxResponseLines(ctx context.Context, chatID int64, delta int) (int, error) {
	return s.adjustClamped(ctx, chatID, "max_response_lines", delta)
}

// AdjustReplyFrequency shifts the reply frequency by delta with a floor of 1
// and returns the new value.
func (s *sqlxStore) AdjustReplyFrequency(ctx context.Context, chatID int64, delta int) (int, error) {
	if chatID == 0 {
		return 0, fmt.Errorf("chat_id cannot be zero")
	}
	if err := s.ensureChatPolicy(ctx, chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error ensuring chat policy", "chat_id", chatID, "error", err)
		return 0, err
	}

	query := `
        UPDATE chat_policies
        SET reply_frequency = MAX(1, reply_frequency + ?)
        WHERE chat_id = ?
        RETURNING reply_frequency;
    `
	var frequency int
	if err := s.db.QueryRowxContext(ctx, query, delta, chatID).Scan(&frequency); err != nil {
		s.logger.ErrorContext(ctx, "Error adjusting reply frequency", "chat_id", chatID, "delta", delta, "error", err)
		return 0, fmt.Errorf("failed to adjust reply frequency for chat %d: %w", chatID, err)
	}

	s.logger.DebugContext(ctx, "Reply frequency adjusted", "chat_id", chatID, "delta", delta, "frequency", frequency)
	return frequency, nil
}

// SetReplyFrequency sets the reply frequency to an absolute value.
func (s *sqlxStore) SetReplyFrequency(ctx context.Context, chatID int64, frequency int) error {
	if chatID == 0 {
		return fmt.Errorf("chat_id cannot be zero")
	}
	if frequency < 1 {
		return fmt.Errorf("reply frequency must be at least 1, got %d", frequency)
	}
	if err := s.ensureChatPolicy(ctx, chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error ensuring chat policy", "chat_id", chatID, "error", err)
		return err
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE chat_policies SET reply_frequency = ? WHERE chat_id = ?`, frequency, chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error setting reply frequency", "chat_id", chatID, "frequency", frequency, "error", err)
		return fmt.Errorf("failed to set reply frequency for chat %d: %w", chatID, err)
	}

	s.logger.InfoContext(ctx, "Reply frequency set", "chat_id", chatID, "frequency", frequency)
	return nil
}

// TouchLastActivity records that the chat just saw activity.
func (s *sqlxStore) TouchLastActivity(ctx context.Context, chatID int64) error {
	if chatID == 0 {
		return fmt.Errorf("chat_id cannot be zero")
	}
	if err := s.ensureChatPolicy(ctx, chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error ensuring chat policy", "chat_id", chatID, "error", err)
		return err
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE chat_policies SET last_activity_at = ? WHERE chat_id = ?`, s.now().Unix(), chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error touching last activity", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to touch last activity for chat %d: %w", chatID, err)
	}
	return nil
}

// ScheduleNextPoke sets the instant of the chat's next proactive poke.
func (s *sqlxStore) ScheduleNextPoke(ctx context.Context, chatID int64, at time.Time) error {
	if chatID == 0 {
		return fmt.Errorf("chat_id cannot be zero")
	}
	if err := s.ensureChatPolicy(ctx, chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error ensuring chat policy", "chat_id", chatID, "error", err)
		return err
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE chat_policies SET next_poke_at = ? WHERE chat_id = ?`, at.Unix(), chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error scheduling next poke", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to schedule next poke for chat %d: %w", chatID, err)
	}

	s.logger.DebugContext(ctx, "Next poke scheduled", "chat_id", chatID, "at", at.Unix())
	return nil
}

// ListPokeDueChats returns group chats whose poke deadline has passed and
// whose last activity predates the deadline. Activity recorded after the
// deadline suppresses the chat until something reschedules it.
func (s *sqlxStore) ListPokeDueChats(ctx context.Context, now time.Time) ([]int64, error) {
	query := `
        SELECT chat_id FROM chat_policies
        WHERE chat_id < 0
          AND next_poke_at <= ?
          AND last_activity_at < next_poke_at
        ORDER BY chat_id;
    `
	var chatIDs []int64
	if err := s.db.SelectContext(ctx, &chatIDs, query, now.Unix()); err != nil {
		s.logger.ErrorContext(ctx, "Error listing poke-due chats", "error", err)
		return nil, fmt.Errorf("failed to list poke-due chats: %w", err)
	}
	return chatIDs, nil
}

// ListGroupChatIDs returns all known group chats.
func (s *sqlxStore) ListGroupChatIDs(ctx context.Context) ([]int64, error) {
	var chatIDs []int64
	if err := s.db.SelectContext(ctx, &chatIDs, `SELECT chat_id FROM chat_policies WHERE chat_id < 0 ORDER BY chat_id`); err != nil {
		s.logger.ErrorContext(ctx, "Error listing group chats", "error", err)
		return nil, fmt.Errorf("failed to list group chats: %w", err)
	}
	return chatIDs, nil
}

// AddChatMember records that a user has been seen in a chat.
func (s *sqlxStore) AddChatMember(ctx context.Context, chatID, userID int64) error {
	if chatID == 0 || userID == 0 {
		return fmt.Errorf("chat_id and user_id cannot be zero")
	}

	query := `INSERT INTO chat_members (chat_id, user_id) VALUES (?, ?) ON CONFLICT (chat_id, user_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, chatID, userID); err != nil {
		s.logger.ErrorContext(ctx, "Error adding chat member", "chat_id", chatID, "user_id", userID, "error", err)
		return fmt.Errorf("failed to add member %d to chat %d: %w", userID, chatID, err)
	}
	return nil
}

// GetChatMembers returns all members of a chat with their profiles.
func (s *sqlxStore) GetChatMembers(ctx context.Context, chatID int64) ([]MemberProfile, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("chat_id cannot be zero")
	}

	query := `
        SELECT cm.user_id,
               COALESCE(u.username, '') AS username,
               COALESCE(u.bio, '') AS bio
        FROM chat_members cm
        LEFT JOIN users u ON u.user_id = cm.user_id
        WHERE cm.chat_id = ?
        ORDER BY cm.user_id;
    `
	var members []MemberProfile
	if err := s.db.SelectContext(ctx, &members, query, chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error getting chat members", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to get members of chat %d: %w", chatID, err)
	}
	return members, nil
}

// SetUserIgnore marks the user as off-limits for pokes in the chat until the
// given instant.
func (s *sqlxStore) SetUserIgnore(ctx context.Context, chatID, userID int64, until time.Time) error {
	if chatID == 0 || userID == 0 {
		return fmt.Errorf("chat_id and user_id cannot be zero")
	}

	query := `
        INSERT INTO user_ignores (chat_id, user_id, ignore_until)
        VALUES (?, ?, ?)
        ON CONFLICT (chat_id, user_id) DO UPDATE SET ignore_until = excluded.ignore_until;
    `
	if _, err := s.db.ExecContext(ctx, query, chatID, userID, until.Unix()); err != nil {
		s.logger.ErrorContext(ctx, "Error setting user ignore", "chat_id", chatID, "user_id", userID, "error", err)
		return fmt.Errorf("failed to set ignore for user %d in chat %d: %w", userID, chatID, err)
	}

	s.logger.InfoContext(ctx, "User ignore set", "chat_id", chatID, "user_id", userID, "until", until.Unix())
	return nil
}

// IsUserIgnored reports whether the user's ignore period in the chat is still
// active at now. Expired entries simply stop matching.
func (s *sqlxStore) IsUserIgnored(ctx context.Context, chatID, userID int64, now time.Time) (bool, error) {
	if chatID == 0 || userID == 0 {
		return false, fmt.Errorf("chat_id and user_id cannot be zero")
	}

	var ignored bool
	query := `SELECT EXISTS(SELECT 1 FROM user_ignores WHERE chat_id = ? AND user_id = ? AND ignore_until > ?)`
	if err := s.db.GetContext(ctx, &ignored, query, chatID, userID, now.Unix()); err != nil {
		s.logger.ErrorContext(ctx, "Error checking user ignore", "chat_id", chatID, "user_id", userID, "error", err)
		return false, fmt.Errorf("failed to check ignore for user %d in chat %d: %w", userID, chatID, err)
	}
	return ignored, nil
}

// ImageGenCountToday returns today's (UTC) global image generation count.
// A date with no row counts as zero.
func (s *sqlxStore) ImageGenCountToday(ctx context.Context) (int, error) {
	day := s.now().Format(dateLayout)

	var count int
	err := s.db.GetContext(ctx, &count, `SELECT count FROM image_gen_log WHERE gen_date = ?`, day)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting image generation count", "gen_date", day, "error", err)
		return 0, fmt.Errorf("failed to get image generation count for %s: %w", day, err)
	}
	return count, nil
}

// IncrementImageGenCount atomically bumps today's (UTC) global image
// generation count and returns the new value. A fresh date starts at 1.
func (s *sqlxStore) IncrementImageGenCount(ctx context.Context) (int, error) {
	day := s.now().Format(dateLayout)

	query := `
        INSERT INTO image_gen_log (gen_date, count)
        VALUES (?, 1)
        ON CONFLICT (gen_date) DO UPDATE SET count = image_gen_log.count + 1
        RETURNING count;
    `
	var count int
	if err := s.db.QueryRowxContext(ctx, query, day).Scan(&count); err != nil {
		s.logger.ErrorContext(ctx, "Error incrementing image generation count", "gen_date", day, "error", err)
		return 0, fmt.Errorf("failed to increment image generation count for %s: %w", day, err)
	}

	s.logger.DebugContext(ctx, "Image generation count incremented", "gen_date", day, "count", count)
	return count, nil
}

// PruneImageGenLog deletes daily counter rows older than keepDays.
func (s *sqlxStore) PruneImageGenLog(ctx context.Context, keepDays int) (int64, error) {
	if keepDays < 1 {
		return 0, fmt.Errorf("keepDays must be at least 1, got %d", keepDays)
	}
	cutoff := s.now().AddDate(0, 0, -keepDays).Format(dateLayout)

	result, err := s.db.ExecContext(ctx, `DELETE FROM image_gen_log WHERE gen_date < ?`, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error pruning image generation log", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to prune image generation log: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		s.logger.InfoContext(ctx, "Pruned image generation log", "cutoff", cutoff, "deleted", deleted)
	}
	return deleted, nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}
