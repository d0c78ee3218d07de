package mutes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"

	"github.com/sadbox/boltbot/pkg/store"
)

// Service applies and lifts mutes on behalf of moderators.
type Service struct {
	store     Store
	members   Members
	scheduler Restarter
	log       *slog.Logger
	now       func() time.Time
}

func NewService(st Store, members Members, scheduler Restarter, log *slog.Logger) *Service {
	return &Service{
		store:     st,
		members:   members,
		scheduler: scheduler,
		log:       log,
		now:       time.Now,
	}
}

type MuteRequest struct {
	GuildID     snowflake.ID
	UserID      snowflake.ID
	ModeratorID snowflake.ID
	Reason      string
	Expiry      time.Time
}

// Mute gives the member the guild's mute role and records the mute. It
// returns the id of the new infraction.
func (s *Service) Mute(ctx context.Context, req MuteRequest) (int64, error) {
	if !req.Expiry.After(s.now()) {
		return 0, ErrExpiryNotInFuture
	}

	role, err := s.muteRole(ctx, req.GuildID)
	if err != nil {
		return 0, err
	}
	member, ok, err := s.members.ResolveMember(ctx, req.GuildID, req.UserID)
	if err != nil {
		return 0, fmt.Errorf("resolving member: %w", err)
	}
	if !ok {
		return 0, ErrMemberNotFound
	}
	if slices.Contains(member.RoleIDs, role.ID) {
		return 0, ErrAlreadyMuted
	}

	existing, ok, err := s.store.ActiveMute(ctx, req.GuildID, req.UserID)
	if err != nil {
		return 0, err
	}
	if ok {
		return 0, &ActiveMuteError{InfractionID: existing.InfractionID, Expiry: existing.Expiry}
	}

	if err := s.members.AddRole(ctx, member, role); err != nil {
		return 0, fmt.Errorf("adding mute role: %w", err)
	}
	id, err := s.store.CreateInfractionAndMute(ctx, store.NewMute{
		GuildID:     req.GuildID,
		UserID:      req.UserID,
		ModeratorID: req.ModeratorID,
		Reason:      req.Reason,
		Expiry:      req.Expiry,
	})
	if err != nil {
		if rmErr := s.members.RemoveRole(ctx, member, role); rmErr != nil {
			s.log.Error("Failed to take back mute role after store error", "user_id", req.UserID, "guild_id", req.GuildID, "error", rmErr)
		}
		return 0, err
	}

	s.scheduler.Restart()
	s.log.Info("Member muted", "infraction_id", id, "guild_id", req.GuildID, "user_id", req.UserID,
		"moderator_user_id", req.ModeratorID, "expiry", req.Expiry.UTC())
	return id, nil
}

// Unmute lifts the active mute of a member ahead of its expiry and returns
// the mute that was lifted.
func (s *Service) Unmute(ctx context.Context, guildID, userID snowflake.ID) (store.Mute, error) {
	m, ok, err := s.store.ActiveMute(ctx, guildID, userID)
	if err != nil {
		return store.Mute{}, err
	}
	if !ok {
		return store.Mute{}, ErrNotMuted
	}
	if err := s.lift(ctx, m); err != nil {
		return store.Mute{}, err
	}
	s.log.Info("Member unmuted", "infraction_id", m.InfractionID, "guild_id", guildID, "user_id", userID)
	return m, nil
}

// DeleteResult describes what DeleteInfraction removed.
type DeleteResult struct {
	Infraction store.Infraction
	// LiftedMute is set when the infraction had an active mute that was
	// lifted along with it.
	LiftedMute *store.Mute
}

// DeleteInfraction deletes an infraction. For a mute infraction whose mute
// is still active, the member is unmuted first. A member who already left
// the guild does not block the delete.
func (s *Service) DeleteInfraction(ctx context.Context, guildID snowflake.ID, id int64) (DeleteResult, error) {
	inf, ok, err := s.store.GetInfraction(ctx, guildID, id)
	if err != nil {
		return DeleteResult{}, err
	}
	if !ok {
		return DeleteResult{}, ErrInfractionNotFound
	}
	res := DeleteResult{Infraction: inf}

	if inf.Type == store.InfractionMute {
		m, ok, err := s.store.GetMute(ctx, id)
		if err != nil {
			return res, err
		}
		if ok && m.Active {
			if err := s.lift(ctx, m); err != nil && !errors.Is(err, ErrMemberNotFound) {
				return res, fmt.Errorf("unmuting: %w", err)
			}
			res.LiftedMute = &m
		}
	}

	deleted, err := s.store.DeleteInfraction(ctx, guildID, id)
	if err != nil {
		return res, err
	}
	if !deleted {
		return res, ErrInfractionNotFound
	}
	s.log.Info("Infraction deleted", "infraction_id", id, "guild_id", guildID, "lifted_mute", res.LiftedMute != nil)
	return res, nil
}

// lift removes the mute role from the member and deactivates the mute.
// Unlike the scheduler, any missing piece is reported as an error.
func (s *Service) lift(ctx context.Context, m store.Mute) error {
	role, err := s.muteRole(ctx, m.GuildID)
	if err != nil {
		return err
	}
	member, ok, err := s.members.ResolveMember(ctx, m.GuildID, m.UserID)
	if err != nil {
		return fmt.Errorf("resolving member: %w", err)
	}
	if !ok {
		return ErrMemberNotFound
	}
	if err := s.members.RemoveRole(ctx, member, role); err != nil {
		return fmt.Errorf("removing mute role: %w", err)
	}
	return s.store.DeactivateMute(ctx, m.InfractionID)
}

func (s *Service) muteRole(ctx context.Context, guildID snowflake.ID) (discord.Role, error) {
	roleID, ok, err := s.store.GetMuteRole(ctx, guildID)
	if err != nil {
		return discord.Role{}, err
	}
	if !ok {
		return discord.Role{}, ErrNoMuteRole
	}
	role, ok, err := s.members.ResolveRole(ctx, guildID, roleID)
	if err != nil {
		return discord.Role{}, fmt.Errorf("resolving mute role: %w", err)
	}
	if !ok {
		return discord.Role{}, ErrMuteRoleMissing
	}
	return role, nil
}
