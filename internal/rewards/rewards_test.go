package rewards

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tchudometro/internal/database"
	"tchudometro/internal/models"
)

type memoryStore struct {
	initial models.Guilds
	saved   models.Guilds
}

func (m *memoryStore) Load(_ context.Context) (models.Guilds, error) {
	return m.initial.Clone(), nil
}

func (m *memoryStore) Save(_ context.Context, guilds models.Guilds) error {
	m.saved = guilds.Clone()
	return nil
}

// fakeRoles keeps role holders in memory and logs every call in order
type fakeRoles struct {
	roles   map[string]bool
	members map[string]bool
	holders []string
	calls   []string
	addErr  error
}

func (f *fakeRoles) HasRole(_ context.Context, _, roleID string) bool { return f.roles[roleID] }

func (f *fakeRoles) HasMember(_ context.Context, _, userID string) bool { return f.members[userID] }

func (f *fakeRoles) RoleHolders(_ context.Context, _, _ string) ([]string, error) {
	return append([]string(nil), f.holders...), nil
}

func (f *fakeRoles) RemoveRole(_ context.Context, _, userID, _ string) error {
	f.calls = append(f.calls, "remove:"+userID)
	for i, h := range f.holders {
		if h == userID {
			f.holders = append(f.holders[:i], f.holders[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeRoles) AddRole(_ context.Context, _, userID, _ string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.calls = append(f.calls, "add:"+userID)
	f.holders = append(f.holders, userID)
	return nil
}

func guildWithTotals(totals map[string]float64) *models.GuildRecord {
	g := models.NewGuildRecord()
	g.Config = &models.GuildConfig{
		ChannelID:          "chan",
		RoleID:             "role",
		MinCallTime:        models.DefaultMinCallTime,
		WeeklyRequiredTime: models.DefaultWeeklyRequiredTime,
	}
	for id, total := range totals {
		g.Users[id] = &models.UserRecord{Stats: models.UserStats{TotalCallSeconds: total, Sessions: 1}}
	}
	return g
}

func newEngine(t *testing.T, g *models.GuildRecord, reset bool) (*Engine, *memoryStore) {
	t.Helper()
	store := &memoryStore{initial: models.Guilds{"g": g}}
	repo, err := database.NewRepository(context.Background(), store, zerolog.Nop())
	require.NoError(t, err)
	return New(repo, reset, zerolog.Nop()), store
}

var firstOfMonth = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

func TestSummarize(t *testing.T) {
	g := guildWithTotals(map[string]float64{"A": 0, "B": 1800, "C": 3600})

	assert.Equal(t, Summary{Active: 1, Inactive: 1}, Summarize(g))
}

func TestSummarizeUsesConfiguredMinimum(t *testing.T) {
	g := guildWithTotals(map[string]float64{"A": 100, "B": 1800, "C": 3600})
	g.Config.MinCallTime = 1800

	assert.Equal(t, Summary{Active: 2, Inactive: 1}, Summarize(g))
}

func TestDailySummaryUnknownGuild(t *testing.T) {
	e, _ := newEngine(t, guildWithTotals(nil), false)

	assert.Equal(t, Summary{}, e.DailySummary("nope"))
}

func TestLeastActive(t *testing.T) {
	id, total, ok := LeastActive(guildWithTotals(map[string]float64{"A": 100, "B": 50, "C": 200}))
	require.True(t, ok)
	assert.Equal(t, "B", id)
	assert.Equal(t, 50.0, total)

	id, _, ok = LeastActive(guildWithTotals(map[string]float64{"9": 10, "3": 10, "5": 10}))
	require.True(t, ok)
	assert.Equal(t, "3", id)

	_, _, ok = LeastActive(guildWithTotals(nil))
	assert.False(t, ok)
}

func TestLeastActiveIgnoresUntrackedMembers(t *testing.T) {
	g := guildWithTotals(map[string]float64{"A": 100})
	g.Users["B"] = &models.UserRecord{}

	id, _, ok := LeastActive(g)
	require.True(t, ok)
	assert.Equal(t, "A", id)
}

func TestMonthlyAwardMovesRole(t *testing.T) {
	e, store := newEngine(t, guildWithTotals(map[string]float64{"A": 100, "B": 50, "C": 200}), false)
	roles := &fakeRoles{
		roles:   map[string]bool{"role": true},
		members: map[string]bool{"A": true, "B": true, "C": true},
		holders: []string{"A", "C"},
	}

	award, ok, err := e.MonthlyAward(context.Background(), "g", roles, firstOfMonth)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "B", award.UserID)
	assert.Equal(t, []string{"A", "C"}, award.Removed)
	assert.Equal(t, []string{"remove:A", "remove:C", "add:B"}, roles.calls)
	assert.Equal(t, []string{"B"}, roles.holders)

	assert.Equal(t, "B", store.saved["g"].AwardedTo)
	assert.Equal(t, 100.0, store.saved["g"].Users["A"].Stats.TotalCallSeconds)
}

func TestMonthlyAwardOncePerDay(t *testing.T) {
	e, _ := newEngine(t, guildWithTotals(map[string]float64{"A": 100}), false)
	roles := &fakeRoles{roles: map[string]bool{"role": true}, members: map[string]bool{"A": true}}

	_, ok, err := e.MonthlyAward(context.Background(), "g", roles, firstOfMonth)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = e.MonthlyAward(context.Background(), "g", roles, firstOfMonth.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, roles.calls, 1)
}

func TestMonthlyAwardResetsTotals(t *testing.T) {
	e, store := newEngine(t, guildWithTotals(map[string]float64{"A": 100, "B": 50}), true)
	roles := &fakeRoles{roles: map[string]bool{"role": true}, members: map[string]bool{"A": true, "B": true}}

	_, ok, err := e.MonthlyAward(context.Background(), "g", roles, firstOfMonth)
	require.NoError(t, err)
	require.True(t, ok)

	for _, u := range store.saved["g"].Users {
		assert.Zero(t, u.Stats.TotalCallSeconds)
		assert.Equal(t, int64(1), u.Stats.Sessions)
	}
}

func TestMonthlyAwardNoOps(t *testing.T) {
	tests := []struct {
		name  string
		guild *models.GuildRecord
		roles *fakeRoles
	}{
		{
			name:  "no tracked members",
			guild: guildWithTotals(nil),
			roles: &fakeRoles{roles: map[string]bool{"role": true}},
		},
		{
			name:  "role missing",
			guild: guildWithTotals(map[string]float64{"A": 1}),
			roles: &fakeRoles{members: map[string]bool{"A": true}},
		},
		{
			name:  "member missing",
			guild: guildWithTotals(map[string]float64{"A": 1}),
			roles: &fakeRoles{roles: map[string]bool{"role": true}, holders: []string{"X"}},
		},
		{
			name:  "not configured",
			guild: &models.GuildRecord{Users: map[string]*models.UserRecord{"A": {Stats: models.UserStats{Sessions: 1}}}},
			roles: &fakeRoles{roles: map[string]bool{"role": true}, members: map[string]bool{"A": true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, store := newEngine(t, tt.guild, false)

			award, ok, err := e.MonthlyAward(context.Background(), "g", tt.roles, firstOfMonth)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, award)
			assert.Empty(t, tt.roles.calls)
			assert.Nil(t, store.saved)
		})
	}
}

func TestMonthlyAwardGrantFailure(t *testing.T) {
	e, store := newEngine(t, guildWithTotals(map[string]float64{"A": 1}), false)
	roles := &fakeRoles{
		roles:   map[string]bool{"role": true},
		members: map[string]bool{"A": true},
		addErr:  errors.New("missing permissions"),
	}

	_, ok, err := e.MonthlyAward(context.Background(), "g", roles, firstOfMonth)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Nil(t, store.saved)
}

func TestIsAwardDay(t *testing.T) {
	assert.True(t, IsAwardDay(firstOfMonth))
	assert.False(t, IsAwardDay(firstOfMonth.AddDate(0, 0, 1)))
}
