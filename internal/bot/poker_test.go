package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/sheldonbot/internal/config"
	"github.com/edgard/sheldonbot/internal/database"
	"github.com/edgard/sheldonbot/internal/gemini"
)

// constSource pins every random draw, making pool selection deterministic.
// Zero always takes the first probability branch and the first member; a
// source yielding 0.75 misses both probability gates and falls through to
// the silence breaker.
type constSource struct{ v int64 }

func (s constSource) Int63() int64 { return s.v }
func (s constSource) Seed(int64)   {}

func alwaysLowRand() *rand.Rand  { return rand.New(constSource{0}) }
func alwaysHighRand() *rand.Rand { return rand.New(constSource{3 << 61}) }

type fakeAI struct {
	gemini.Client

	questionErr error
	silenceErr  error
	deployErr   error

	questionTargets []string
	questionBios    []string
	silenceCalls    int
	deployCalls     int
}

func (f *fakeAI) GenerateMemberQuestion(_ context.Context, username, bio string, _ []database.HistoryEntry) (string, error) {
	f.questionTargets = append(f.questionTargets, username)
	f.questionBios = append(f.questionBios, bio)
	if f.questionErr != nil {
		return "", f.questionErr
	}
	return "q:" + username, nil
}

func (f *fakeAI) GenerateSilenceBreaker(_ context.Context, _ []database.MemberProfile, _ []database.HistoryEntry) (string, error) {
	f.silenceCalls++
	if f.silenceErr != nil {
		return "", f.silenceErr
	}
	return "silence", nil
}

func (f *fakeAI) GenerateDeployAnnouncement(_ context.Context, members []database.MemberProfile) (string, error) {
	f.deployCalls++
	if f.deployErr != nil {
		return "", f.deployErr
	}
	return fmt.Sprintf("deploy:%d", len(members)), nil
}

type fakeSender struct {
	sent    []tgbot.SendMessageParams
	failFor map[int64]error
}

func (f *fakeSender) SendMessage(_ context.Context, params *tgbot.SendMessageParams) (*models.Message, error) {
	if chatID, ok := params.ChatID.(int64); ok {
		if err := f.failFor[chatID]; err != nil {
			return nil, err
		}
	}
	f.sent = append(f.sent, *params)
	return &models.Message{ID: len(f.sent)}, nil
}

type pokerFixture struct {
	poker  *Poker
	store  database.Store
	ai     *fakeAI
	sender *fakeSender
	now    time.Time
}

func newPokerFixture(t *testing.T) *pokerFixture {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, nil)

	cfg := &config.EngagementConfig{
		CheckIntervalSeconds: 60,
		StartupGraceSeconds:  0,
		PokeMinMinutes:       90,
		PokeMaxMinutes:       2880,
		ImageDailyLimit:      10,
	}

	ai := &fakeAI{}
	sender := &fakeSender{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := NewPoker(log, cfg, store, ai, sender)
	now := time.Now().UTC().Add(5 * time.Minute)
	p.now = func() time.Time { return now }

	return &pokerFixture{poker: p, store: store, ai: ai, sender: sender, now: now}
}

// makeDue schedules a poke deadline that is quiet and already past.
func (f *pokerFixture) makeDue(t *testing.T, chatID int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.EnsureChatPolicy(ctx, chatID))
	require.NoError(t, f.store.ScheduleNextPoke(ctx, chatID, f.now.Add(-time.Minute)))
}

func (f *pokerFixture) addMember(t *testing.T, chatID, userID int64, username, bio string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.UpsertUser(ctx, userID, username))
	if bio != "" {
		require.NoError(t, f.store.SetUserBio(ctx, userID, bio))
	}
	require.NoError(t, f.store.AddChatMember(ctx, chatID, userID))
}

func TestComposePokePrefersMembersWithoutDossier(t *testing.T) {
	f := newPokerFixture(t)
	f.poker.rng = alwaysLowRand()

	members := []database.MemberProfile{
		{UserID: 1, Username: "alice"},
		{UserID: 2, Username: "bob", Bio: "физик"},
	}

	text := f.poker.composePoke(context.Background(), -100, members)
	assert.Equal(t, "q:alice", text)
	assert.Equal(t, []string{"alice"}, f.ai.questionTargets)
}

func TestComposePokeNoUsernamePickFallsThrough(t *testing.T) {
	f := newPokerFixture(t)
	f.poker.rng = alwaysLowRand()

	members := []database.MemberProfile{
		{UserID: 1},
		{UserID: 2, Username: "bob", Bio: "физик"},
	}

	text := f.poker.composePoke(context.Background(), -100, members)
	assert.Equal(t, "q:bob", text, "unaddressable pick should fall to the username pool")
}

func TestComposePokeQuestionsDossieredMemberWhenAllHaveBios(t *testing.T) {
	f := newPokerFixture(t)
	f.poker.rng = alwaysLowRand()

	members := []database.MemberProfile{
		{UserID: 1, Username: "alice", Bio: "химик"},
		{UserID: 2, Username: "bob", Bio: "физик"},
	}

	text := f.poker.composePoke(context.Background(), -100, members)
	assert.Equal(t, "q:alice", text)
	assert.Equal(t, []string{"химик"}, f.ai.questionBios)
}

func TestComposePokeFallsThroughToSilenceBreaker(t *testing.T) {
	f := newPokerFixture(t)
	f.poker.rng = alwaysHighRand()

	members := []database.MemberProfile{
		{UserID: 1, Username: "alice"},
		{UserID: 2, Username: "bob", Bio: "физик"},
	}

	text := f.poker.composePoke(context.Background(), -100, members)
	assert.Equal(t, "silence", text)
	assert.Empty(t, f.ai.questionTargets)
	assert.Equal(t, 1, f.ai.silenceCalls)
}

func TestComposePokeWithoutUsernamesAlwaysBreaksSilence(t *testing.T) {
	f := newPokerFixture(t)
	f.poker.rng = alwaysLowRand()

	members := mustMembers(3)

	text := f.poker.composePoke(context.Background(), -100, members)
	assert.Equal(t, "silence", text)
	assert.Empty(t, f.ai.questionTargets)
}

func mustMembers(n int) []database.MemberProfile {
	members := make([]database.MemberProfile, 0, n)
	for i := range n {
		members = append(members, database.MemberProfile{UserID: int64(i + 1)})
	}
	return members
}

func TestComposePokeQuestionFallbackOnAIError(t *testing.T) {
	f := newPokerFixture(t)
	f.poker.rng = alwaysLowRand()
	f.ai.questionErr = errors.New("model overloaded")

	members := []database.MemberProfile{{UserID: 1, Username: "alice"}}

	text := f.poker.composePoke(context.Background(), -100, members)
	assert.Equal(t, fmt.Sprintf(gemini.FallbackQuestion, "alice"), text)
}

func TestPokeChatSkipsIgnoredMembers(t *testing.T) {
	f := newPokerFixture(t)
	f.poker.rng = alwaysLowRand()
	ctx := context.Background()

	f.makeDue(t, -100)
	f.addMember(t, -100, 1, "alice", "")
	f.addMember(t, -100, 2, "bob", "")
	require.NoError(t, f.store.SetUserIgnore(ctx, -100, 1, f.now.Add(24*time.Hour)))

	require.NoError(t, f.poker.pokeChat(ctx, -100))

	assert.Equal(t, []string{"bob"}, f.ai.questionTargets)
}

func TestPokeChatReschedulesAfterSuccess(t *testing.T) {
	f := newPokerFixture(t)
	ctx := context.Background()

	f.makeDue(t, -100)
	f.addMember(t, -100, 1, "alice", "")

	due, err := f.store.ListPokeDueChats(ctx, f.now)
	require.NoError(t, err)
	require.Equal(t, []int64{-100}, due)

	require.NoError(t, f.poker.pokeChat(ctx, -100))
	require.Len(t, f.sender.sent, 1)

	policy, err := f.store.GetChatPolicy(ctx, -100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, policy.NextPokeAt, f.now.Add(90*time.Minute).Unix())
	assert.LessOrEqual(t, policy.NextPokeAt, f.now.Add(2880*time.Minute).Unix())

	due, err = f.store.ListPokeDueChats(ctx, f.now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestPokeChatLeavesChatDueWhenSendFails(t *testing.T) {
	f := newPokerFixture(t)
	ctx := context.Background()

	f.makeDue(t, -100)
	f.addMember(t, -100, 1, "alice", "")
	f.sender.failFor = map[int64]error{-100: errors.New("telegram down")}

	err := f.poker.pokeChat(ctx, -100)
	require.Error(t, err)

	due, listErr := f.store.ListPokeDueChats(ctx, f.now)
	require.NoError(t, listErr)
	assert.Equal(t, []int64{-100}, due, "failed delivery should leave the chat due for retry")
}

func TestScanOnceIsolatesChatFailures(t *testing.T) {
	f := newPokerFixture(t)
	ctx := context.Background()

	f.makeDue(t, -100)
	f.makeDue(t, -200)
	f.addMember(t, -100, 1, "alice", "")
	f.addMember(t, -200, 2, "bob", "")
	f.sender.failFor = map[int64]error{-200: errors.New("kicked from chat")}

	f.poker.scanOnce(ctx)

	due, err := f.store.ListPokeDueChats(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, []int64{-200}, due, "healthy chat should be poked and rescheduled despite the broken one")
}

func TestAnnounceRestartSchedulesEveryGroup(t *testing.T) {
	f := newPokerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.EnsureChatPolicy(ctx, -100))
	require.NoError(t, f.store.EnsureChatPolicy(ctx, -200))
	require.NoError(t, f.store.EnsureChatPolicy(ctx, 55))

	f.poker.announceRestart(ctx)

	require.Len(t, f.sender.sent, 2, "announcement goes to groups only")
	for _, sent := range f.sender.sent {
		assert.Contains(t, sent.Text, "Перезагрузка завершена")
		assert.Equal(t, models.ParseModeHTML, sent.ParseMode)
	}
	assert.Equal(t, 2, f.ai.deployCalls)

	for _, chatID := range []int64{-100, -200} {
		policy, err := f.store.GetChatPolicy(ctx, chatID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, policy.NextPokeAt, f.now.Add(90*time.Minute).Unix())
	}
}

func TestAnnounceRestartFallsBackOnAIError(t *testing.T) {
	f := newPokerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.EnsureChatPolicy(ctx, -100))
	f.ai.deployErr = errors.New("model offline")

	f.poker.announceRestart(ctx)

	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0].Text, gemini.FallbackDeploy)
}

func TestAnnounceRestartSchedulesEvenWhenSendFails(t *testing.T) {
	f := newPokerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.EnsureChatPolicy(ctx, -100))
	f.sender.failFor = map[int64]error{-100: errors.New("telegram down")}

	f.poker.announceRestart(ctx)

	policy, err := f.store.GetChatPolicy(ctx, -100)
	require.NoError(t, err)
	assert.Greater(t, policy.NextPokeAt, f.now.Unix(), "schedule must advance so the announcement is not retried as a poke storm")
}

func TestRandomPokeDelayStaysWithinWindow(t *testing.T) {
	f := newPokerFixture(t)
	f.poker.rng = rand.New(rand.NewSource(42))

	for range 500 {
		delay := f.poker.randomPokeDelay()
		assert.GreaterOrEqual(t, delay, 90*time.Minute)
		assert.LessOrEqual(t, delay, 2880*time.Minute)
	}
}

func TestRandomPokeDelayDegenerateWindow(t *testing.T) {
	f := newPokerFixture(t)
	f.poker.cfg.PokeMinMinutes = 120
	f.poker.cfg.PokeMaxMinutes = 120

	assert.Equal(t, 120*time.Minute, f.poker.randomPokeDelay())
}
