package database

// User is a Telegram user known to the bot. Bio is the free-text dossier
// collected in chat; it is empty until the user provides one.
type User struct {
	UserID   int64  `db:"user_id"`
	Username string `db:"username"`
	Bio      string `db:"bio"`
}

// Message is one stored chat message. Timestamp is unix seconds (UTC).
type Message struct {
	ID        int64  `db:"id"`
	UserID    int64  `db:"user_id"`
	ChatID    int64  `db:"chat_id"`
	Text      string `db:"text"`
	Timestamp int64  `db:"timestamp"`
}

// HistoryEntry is a stored message joined with its author's profile,
// as consumed by prompt building.
type HistoryEntry struct {
	UserID    int64  `db:"user_id"`
	Username  string `db:"username"`
	Bio       string `db:"bio"`
	Text      string `db:"text"`
	Timestamp int64  `db:"timestamp"`
}

// ChatPolicy holds the per-chat engagement knobs. LastActivityAt and
// NextPokeAt are unix seconds (UTC).
type ChatPolicy struct {
	ChatID           int64 `db:"chat_id"`
	MessageCount     int   `db:"message_count"`
	ReplyFrequency   int   `db:"reply_frequency"`
	HumorLevel       int   `db:"humor_level"`
	MaxResponseLines int   `db:"max_response_lines"`
	LastActivityAt   int64 `db:"last_activity_at"`
	NextPokeAt       int64 `db:"next_poke_at"`
}

// MemberProfile is a chat member joined with their profile, used for
// poke targeting and announcements.
type MemberProfile struct {
	UserID   int64  `db:"user_id"`
	Username string `db:"username"`
	Bio      string `db:"bio"`
}
