package models

import "time"

// Defaults applied to a guild configured through the setup flow
const (
	DefaultMinCallTime        = 3600
	DefaultWeeklyRequiredTime = 7200
)

// GuildConfig is the static per-guild configuration chosen at setup
type GuildConfig struct {
	ChannelID          string `json:"channel_id"`
	RoleID             string `json:"role_id"`
	MinCallTime        int64  `json:"min_call_time"`
	WeeklyRequiredTime int64  `json:"weekly_required_time"`
}

// UserStats holds the accumulated voice time and experience of a member.
// Sessions counts settled calls; a member is tracked once it is non-zero.
type UserStats struct {
	TotalCallSeconds float64 `json:"total_call_seconds"`
	XP               int64   `json:"xp"`
	Level            int64   `json:"level"`
	Sessions         int64   `json:"sessions"`
}

// Tracked reports whether at least one call has been settled
func (s UserStats) Tracked() bool {
	return s.Sessions > 0
}

// UserRecord is everything tracked for one member of a guild.
// A nil JoinedAt means the member is idle; otherwise they are in a call.
type UserRecord struct {
	Stats    UserStats  `json:"stats"`
	JoinedAt *time.Time `json:"joined_at,omitempty"`
}

// InCall reports whether a join has been recorded for the member
func (u *UserRecord) InCall() bool {
	return u.JoinedAt != nil
}

// Clone returns a deep copy of the record
func (u *UserRecord) Clone() *UserRecord {
	c := &UserRecord{Stats: u.Stats}
	if u.JoinedAt != nil {
		t := *u.JoinedAt
		c.JoinedAt = &t
	}
	return c
}

// GuildRecord is the persisted state of a single guild
type GuildRecord struct {
	Config    *GuildConfig           `json:"config,omitempty"`
	Users     map[string]*UserRecord `json:"users"`
	LastAward *time.Time             `json:"last_award,omitempty"`
	AwardedTo string                 `json:"awarded_to,omitempty"`
}

// NewGuildRecord creates an empty guild record
func NewGuildRecord() *GuildRecord {
	return &GuildRecord{Users: make(map[string]*UserRecord)}
}

// Configured reports whether the setup flow has completed for the guild
func (g *GuildRecord) Configured() bool {
	return g.Config != nil
}

// User returns the record of a member, creating it when absent
func (g *GuildRecord) User(userID string) *UserRecord {
	if g.Users == nil {
		g.Users = make(map[string]*UserRecord)
	}
	u, ok := g.Users[userID]
	if !ok {
		u = &UserRecord{}
		g.Users[userID] = u
	}
	return u
}

// Clone returns a deep copy of the guild record
func (g *GuildRecord) Clone() *GuildRecord {
	c := &GuildRecord{
		Users:     make(map[string]*UserRecord, len(g.Users)),
		AwardedTo: g.AwardedTo,
	}
	if g.Config != nil {
		cfg := *g.Config
		c.Config = &cfg
	}
	if g.LastAward != nil {
		t := *g.LastAward
		c.LastAward = &t
	}
	for id, u := range g.Users {
		c.Users[id] = u.Clone()
	}
	return c
}

// Guilds maps guild IDs to their records. It is the unit of persistence.
type Guilds map[string]*GuildRecord

// Clone returns a deep copy of every guild record
func (gs Guilds) Clone() Guilds {
	c := make(Guilds, len(gs))
	for id, g := range gs {
		c[id] = g.Clone()
	}
	return c
}

// LevelUp is emitted when a member reaches a higher level
type LevelUp struct {
	GuildID string
	UserID  string
	Level   int64
}

// RankingEntry is one line of the voice time ranking
type RankingEntry struct {
	UserID       string
	TotalSeconds float64
}
