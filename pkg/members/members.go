// Package members resolves guild members, roles and users through the
// Discord REST API.
package members

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	userCacheSize = 5000
	userCacheTTL  = time.Hour
)

// Client is the subset of rest.Rest used here.
type Client interface {
	GetMember(guildID snowflake.ID, userID snowflake.ID, opts ...rest.RequestOpt) (*discord.Member, error)
	GetRoles(guildID snowflake.ID, opts ...rest.RequestOpt) ([]discord.Role, error)
	AddMemberRole(guildID snowflake.ID, userID snowflake.ID, roleID snowflake.ID, opts ...rest.RequestOpt) error
	RemoveMemberRole(guildID snowflake.ID, userID snowflake.ID, roleID snowflake.ID, opts ...rest.RequestOpt) error
	GetUser(userID snowflake.ID, opts ...rest.RequestOpt) (*discord.User, error)
}

// Service looks members and roles up fresh on every call. Only user lookups,
// which are used for display, are cached.
type Service struct {
	rest  Client
	users *expirable.LRU[snowflake.ID, discord.User]
	log   *slog.Logger
}

func New(client Client, log *slog.Logger) *Service {
	return &Service{
		rest:  client,
		users: expirable.NewLRU[snowflake.ID, discord.User](userCacheSize, nil, userCacheTTL),
		log:   log,
	}
}

func isNotFound(err error) bool {
	var rErr *rest.Error
	return errors.As(err, &rErr) && rErr.Response != nil && rErr.Response.StatusCode == http.StatusNotFound
}

// ResolveRole finds a role of a guild by id.
func (s *Service) ResolveRole(ctx context.Context, guildID, roleID snowflake.ID) (discord.Role, bool, error) {
	roles, err := s.rest.GetRoles(guildID, rest.WithCtx(ctx))
	if err != nil {
		if isNotFound(err) {
			return discord.Role{}, false, nil
		}
		return discord.Role{}, false, fmt.Errorf("fetching roles of guild %d: %w", guildID, err)
	}
	for _, r := range roles {
		if r.ID == roleID {
			return r, true, nil
		}
	}
	return discord.Role{}, false, nil
}

// ResolveMember fetches a member of a guild. A user who is not on the guild
// is reported with ok == false.
func (s *Service) ResolveMember(ctx context.Context, guildID, userID snowflake.ID) (discord.Member, bool, error) {
	m, err := s.rest.GetMember(guildID, userID, rest.WithCtx(ctx))
	if err != nil {
		if isNotFound(err) {
			return discord.Member{}, false, nil
		}
		return discord.Member{}, false, fmt.Errorf("fetching member %d: %w", userID, err)
	}
	m.GuildID = guildID
	s.users.Add(m.User.ID, m.User)
	return *m, true, nil
}

func (s *Service) AddRole(ctx context.Context, member discord.Member, role discord.Role) error {
	if err := s.rest.AddMemberRole(member.GuildID, member.User.ID, role.ID, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("adding role %d to %d: %w", role.ID, member.User.ID, err)
	}
	s.log.Info("Added role", "guild_id", member.GuildID, "user_id", member.User.ID, "role_id", role.ID)
	return nil
}

func (s *Service) RemoveRole(ctx context.Context, member discord.Member, role discord.Role) error {
	if err := s.rest.RemoveMemberRole(member.GuildID, member.User.ID, role.ID, rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("removing role %d from %d: %w", role.ID, member.User.ID, err)
	}
	s.log.Info("Removed role", "guild_id", member.GuildID, "user_id", member.User.ID, "role_id", role.ID)
	return nil
}

// User returns a Discord user, from cache when possible. Unknown users are
// reported with ok == false.
func (s *Service) User(ctx context.Context, userID snowflake.ID) (discord.User, bool, error) {
	if u, ok := s.users.Get(userID); ok {
		return u, true, nil
	}
	u, err := s.rest.GetUser(userID, rest.WithCtx(ctx))
	if err != nil {
		if isNotFound(err) {
			return discord.User{}, false, nil
		}
		return discord.User{}, false, fmt.Errorf("fetching user %d: %w", userID, err)
	}
	s.users.Add(userID, *u)
	return *u, true, nil
}

// UserLabel renders a user as "`name` (`id`)", falling back to
// "unknown user (`id`)" when the user cannot be fetched.
func (s *Service) UserLabel(ctx context.Context, userID snowflake.ID) string {
	u, ok, err := s.User(ctx, userID)
	if err != nil {
		s.log.Warn("Failed to look up user", "user_id", userID, "error", err)
	}
	if !ok {
		return fmt.Sprintf("unknown user (`%d`)", userID)
	}
	return fmt.Sprintf("`%s` (`%d`)", u.Username, userID)
}
