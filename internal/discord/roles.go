package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const membersPageSize = 1000

// roleManager implements rewards.RoleManager over the Discord API
type roleManager struct {
	session *discordgo.Session
}

func (r *roleManager) HasRole(_ context.Context, guildID, roleID string) bool {
	if roleID == "" {
		return false
	}
	if role, err := r.session.State.Role(guildID, roleID); err == nil && role != nil {
		return true
	}
	roles, err := r.session.GuildRoles(guildID)
	if err != nil {
		return false
	}
	for _, role := range roles {
		if role.ID == roleID {
			return true
		}
	}
	return false
}

func (r *roleManager) HasMember(_ context.Context, guildID, userID string) bool {
	if m, err := r.session.State.Member(guildID, userID); err == nil && m != nil {
		return true
	}
	m, err := r.session.GuildMember(guildID, userID)
	return err == nil && m != nil
}

// RoleHolders pages through every guild member and returns those with the role
func (r *roleManager) RoleHolders(ctx context.Context, guildID, roleID string) ([]string, error) {
	var holders []string
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		members, err := r.session.GuildMembers(guildID, after, membersPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list members of %s: %w", guildID, err)
		}
		for _, m := range members {
			if m.User == nil {
				continue
			}
			for _, id := range m.Roles {
				if id == roleID {
					holders = append(holders, m.User.ID)
					break
				}
			}
		}
		if len(members) < membersPageSize || members[len(members)-1].User == nil {
			return holders, nil
		}
		after = members[len(members)-1].User.ID
	}
}

func (r *roleManager) RemoveRole(_ context.Context, guildID, userID, roleID string) error {
	return r.session.GuildMemberRoleRemove(guildID, userID, roleID)
}

func (r *roleManager) AddRole(_ context.Context, guildID, userID, roleID string) error {
	return r.session.GuildMemberRoleAdd(guildID, userID, roleID)
}
