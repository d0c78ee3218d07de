// Package mutes implements timed mutes: the command-side service that applies
// and lifts them, and the scheduler that expires them.
package mutes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"

	"github.com/sadbox/boltbot/pkg/store"
)

// SweepStore is the persistence the scheduler needs.
type SweepStore interface {
	ActiveMutesOrderedByExpiry(ctx context.Context) ([]store.Mute, error)
	DeactivateMute(ctx context.Context, infractionID int64) error
	GetMuteRole(ctx context.Context, guildID snowflake.ID) (snowflake.ID, bool, error)
}

// Store is the persistence the mute service needs.
type Store interface {
	SweepStore
	CreateInfractionAndMute(ctx context.Context, in store.NewMute) (int64, error)
	ActiveMute(ctx context.Context, guildID, userID snowflake.ID) (store.Mute, bool, error)
	GetMute(ctx context.Context, infractionID int64) (store.Mute, bool, error)
	GetInfraction(ctx context.Context, guildID snowflake.ID, id int64) (store.Infraction, bool, error)
	DeleteInfraction(ctx context.Context, guildID snowflake.ID, id int64) (bool, error)
}

// Members resolves and edits guild members and roles. A role or member that
// does not exist is reported with ok == false and a nil error.
type Members interface {
	ResolveRole(ctx context.Context, guildID, roleID snowflake.ID) (discord.Role, bool, error)
	ResolveMember(ctx context.Context, guildID, userID snowflake.ID) (discord.Member, bool, error)
	AddRole(ctx context.Context, member discord.Member, role discord.Role) error
	RemoveRole(ctx context.Context, member discord.Member, role discord.Role) error
}

// Restarter is implemented by Scheduler.
type Restarter interface {
	Restart()
}

var (
	ErrNoMuteRole         = errors.New("no mute role is configured for this guild")
	ErrMuteRoleMissing    = errors.New("the configured mute role no longer exists on this guild, set it again")
	ErrAlreadyMuted       = errors.New("member already appears to be muted")
	ErrMemberNotFound     = errors.New("member is not on this guild")
	ErrNotMuted           = errors.New("member has no active mute")
	ErrExpiryNotInFuture  = errors.New("mute expiry must be in the future")
	ErrInfractionNotFound = errors.New("infraction not found on this guild")
)

// ActiveMuteError is returned when a member already has an active mute.
type ActiveMuteError struct {
	InfractionID int64
	Expiry       time.Time
}

func (e *ActiveMuteError) Error() string {
	return fmt.Sprintf("member is already muted by infraction #%d until %s",
		e.InfractionID, e.Expiry.UTC().Format("2006-01-02 15:04 MST"))
}
