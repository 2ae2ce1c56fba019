package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tchudometro/internal/database"
	"tchudometro/internal/models"
)

type memoryStore struct {
	saved models.Guilds
	saves int
}

func (m *memoryStore) Load(_ context.Context) (models.Guilds, error) {
	return models.Guilds{}, nil
}

func (m *memoryStore) Save(_ context.Context, guilds models.Guilds) error {
	m.saves++
	m.saved = guilds.Clone()
	return nil
}

func newTracker(t *testing.T) (*Tracker, *memoryStore) {
	t.Helper()
	store := &memoryStore{}
	repo, err := database.NewRepository(context.Background(), store, zerolog.Nop())
	require.NoError(t, err)
	return New(repo, zerolog.Nop()), store
}

var t0 = time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)

func joinAt(at time.Time) PresenceChange {
	return PresenceChange{GuildID: "g", UserID: "u", WasInCall: false, IsInCall: true, At: at}
}

func leaveAt(at time.Time) PresenceChange {
	return PresenceChange{GuildID: "g", UserID: "u", WasInCall: true, IsInCall: false, At: at}
}

func TestXPGain(t *testing.T) {
	tests := []struct {
		seconds float64
		want    int64
	}{
		{0, 0},
		{-30, 0},
		{599, 0},
		{599.99, 0},
		{600, 10},
		{1199, 10},
		{1200, 20},
		{3599, 50},
		{3600, 60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, XPGain(tt.seconds), "XPGain(%v)", tt.seconds)
	}
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, int64(0), LevelFor(0))
	assert.Equal(t, int64(0), LevelFor(99))
	assert.Equal(t, int64(1), LevelFor(100))
	assert.Equal(t, int64(2), LevelFor(250))
	assert.Equal(t, LevelFor(LevelFor(1000)*XPPerLevel), LevelFor(1000))
}

func TestJoinThenLeaveAccumulates(t *testing.T) {
	ctx := context.Background()
	tr, store := newTracker(t)

	_, err := tr.OnPresenceChange(ctx, joinAt(t0))
	require.NoError(t, err)
	assert.True(t, store.saved["g"].Users["u"].InCall())

	lu, err := tr.OnPresenceChange(ctx, leaveAt(t0.Add(1250*time.Second)))
	require.NoError(t, err)
	assert.Nil(t, lu)

	u := store.saved["g"].Users["u"]
	assert.False(t, u.InCall())
	assert.Equal(t, 1250.0, u.Stats.TotalCallSeconds)
	assert.Equal(t, int64(20), u.Stats.XP)
	assert.Equal(t, int64(0), u.Stats.Level)
	assert.Equal(t, 2, store.saves)
}

func TestLeaveWithoutJoinIsDiscarded(t *testing.T) {
	ctx := context.Background()
	tr, store := newTracker(t)

	lu, err := tr.OnPresenceChange(ctx, leaveAt(t0))
	require.NoError(t, err)
	assert.Nil(t, lu)
	assert.Equal(t, 0, store.saves)

	xp, level := tr.Level("g", "u")
	assert.Zero(t, xp)
	assert.Zero(t, level)
}

func TestDuplicateJoinKeepsFirstTimestamp(t *testing.T) {
	ctx := context.Background()
	tr, store := newTracker(t)

	_, err := tr.OnPresenceChange(ctx, joinAt(t0))
	require.NoError(t, err)
	_, err = tr.OnPresenceChange(ctx, joinAt(t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)

	_, err = tr.OnPresenceChange(ctx, leaveAt(t0.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, 7200.0, store.saved["g"].Users["u"].Stats.TotalCallSeconds)
}

func TestLeaveSettlesWhenPreviousStateUnknown(t *testing.T) {
	ctx := context.Background()
	tr, store := newTracker(t)

	_, err := tr.OnPresenceChange(ctx, joinAt(t0))
	require.NoError(t, err)

	// a leave delivered without cached state reports WasInCall=false
	_, err = tr.OnPresenceChange(ctx, PresenceChange{GuildID: "g", UserID: "u", At: t0.Add(30 * time.Minute)})
	require.NoError(t, err)

	u := store.saved["g"].Users["u"]
	assert.False(t, u.InCall())
	assert.Equal(t, 1800.0, u.Stats.TotalCallSeconds)

	// the next join starts fresh instead of reusing the old timestamp
	_, err = tr.OnPresenceChange(ctx, joinAt(t0.Add(5*time.Hour)))
	require.NoError(t, err)
	_, err = tr.OnPresenceChange(ctx, leaveAt(t0.Add(5*time.Hour+10*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, 2400.0, store.saved["g"].Users["u"].Stats.TotalCallSeconds)
}

func TestNoOpTransitions(t *testing.T) {
	ctx := context.Background()
	tr, store := newTracker(t)

	_, err := tr.OnPresenceChange(ctx, PresenceChange{GuildID: "g", UserID: "u", At: t0})
	require.NoError(t, err)
	_, err = tr.OnPresenceChange(ctx, PresenceChange{GuildID: "g", UserID: "u", WasInCall: true, IsInCall: true, At: t0})
	require.NoError(t, err)
	assert.Equal(t, 0, store.saves)
}

func TestNegativeDurationClampsToZero(t *testing.T) {
	ctx := context.Background()
	tr, store := newTracker(t)

	_, err := tr.OnPresenceChange(ctx, joinAt(t0))
	require.NoError(t, err)
	_, err = tr.OnPresenceChange(ctx, leaveAt(t0.Add(-5*time.Minute)))
	require.NoError(t, err)

	u := store.saved["g"].Users["u"]
	assert.False(t, u.InCall())
	assert.Zero(t, u.Stats.TotalCallSeconds)
	assert.Zero(t, u.Stats.XP)
}

func TestLevelUpEmitted(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t)

	// 9 blocks = 90 XP, still level 0
	_, err := tr.OnPresenceChange(ctx, joinAt(t0))
	require.NoError(t, err)
	lu, err := tr.OnPresenceChange(ctx, leaveAt(t0.Add(90*time.Minute)))
	require.NoError(t, err)
	assert.Nil(t, lu)

	// one more block crosses 100 XP
	start := t0.Add(2 * time.Hour)
	_, err = tr.OnPresenceChange(ctx, joinAt(start))
	require.NoError(t, err)
	lu, err = tr.OnPresenceChange(ctx, leaveAt(start.Add(10*time.Minute)))
	require.NoError(t, err)
	require.NotNil(t, lu)
	assert.Equal(t, models.LevelUp{GuildID: "g", UserID: "u", Level: 1}, *lu)

	xp, level := tr.Level("g", "u")
	assert.Equal(t, int64(100), xp)
	assert.Equal(t, int64(1), level)
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	tr, store := newTracker(t)

	_, err := tr.OnPresenceChange(ctx, PresenceChange{GuildID: "g", UserID: "gone", IsInCall: true, At: t0})
	require.NoError(t, err)

	require.NoError(t, tr.Reconcile(ctx, "g", []string{"here"}, t0.Add(time.Minute)))

	users := store.saved["g"].Users
	assert.False(t, users["gone"].InCall())
	require.True(t, users["here"].InCall())
	assert.Equal(t, t0.Add(time.Minute), *users["here"].JoinedAt)

	saves := store.saves
	require.NoError(t, tr.Reconcile(ctx, "g", []string{"here"}, t0.Add(time.Hour)))
	assert.Equal(t, saves, store.saves)
}

func TestRanking(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t)

	durations := map[string]time.Duration{
		"a": 10 * time.Minute,
		"b": 30 * time.Minute,
		"c": 20 * time.Minute,
		"d": 30 * time.Minute,
	}
	for id, d := range durations {
		_, err := tr.OnPresenceChange(ctx, PresenceChange{GuildID: "g", UserID: id, IsInCall: true, At: t0})
		require.NoError(t, err)
		_, err = tr.OnPresenceChange(ctx, PresenceChange{GuildID: "g", UserID: id, WasInCall: true, At: t0.Add(d)})
		require.NoError(t, err)
	}

	ranking := tr.Ranking("g", RankingSize)
	require.Len(t, ranking, 4)
	ids := []string{ranking[0].UserID, ranking[1].UserID, ranking[2].UserID, ranking[3].UserID}
	assert.Equal(t, []string{"b", "d", "c", "a"}, ids)

	assert.Len(t, tr.Ranking("g", 2), 2)
	assert.Empty(t, tr.Ranking("unknown", RankingSize))
}
