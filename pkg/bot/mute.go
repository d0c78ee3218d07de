package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"

	"github.com/sadbox/boltbot/pkg/mutes"
)

func (b *Bot) handleMute(ctx context.Context, inv invocation, data discord.SlashCommandInteractionData) reply {
	return b.mute(ctx, inv, data.User(optUser), data.String(optExpiry), data.String(optReason))
}

func (b *Bot) mute(ctx context.Context, inv invocation, target discord.User, expiryArg, reason string) reply {
	if target.ID == inv.User.ID {
		return failure("Failed to mute:", "You cannot mute yourself.")
	}
	now := b.now()
	expiry, err := mutes.ParseExpiry(expiryArg, now)
	if err != nil {
		return failure("Failed to mute:", fmt.Sprintf("Couldn't read `%s` as a duration or a date: %v", expiryArg, err))
	}

	id, err := b.mutes.Mute(ctx, mutes.MuteRequest{
		GuildID:     inv.GuildID,
		UserID:      target.ID,
		ModeratorID: inv.User.ID,
		Reason:      reason,
		Expiry:      expiry,
	})
	if err != nil {
		return b.errorReply("Failed to mute:", err, "user_id", target.ID)
	}

	until := fmt.Sprintf("%s UTC (in %s)", formatTimestamp(expiry), naturalDelta(expiry.Sub(now)))
	embed := discord.Embed{
		Title:       fmt.Sprintf("Muted %s", userTag(target)),
		Color:       colorGreen,
		Description: "Expires " + until + ".",
		Footer:      moderatorFooter("Muted", inv.User),
	}
	if reason != "" {
		embed.Fields = []discord.EmbedField{{Name: "Reason", Value: truncate(reason, maxFieldLen)}}
	}

	logEmbed := moderationLogEntry{
		Title:        "Member Muted",
		Color:        colorDarkRed,
		InfractionID: id,
		Target:       target,
		ModeratorID:  inv.User.ID,
		ChannelID:    inv.ChannelID,
		Reason:       reason,
		Extra:        []discord.EmbedField{{Name: "Expires", Value: until}},
	}.embed()
	return reply{msg: embedMessage(embed), eventLog: &logEmbed}
}

func (b *Bot) handleUnmute(ctx context.Context, inv invocation, data discord.SlashCommandInteractionData) reply {
	return b.unmute(ctx, inv, data.User(optUser))
}

func (b *Bot) unmute(ctx context.Context, inv invocation, target discord.User) reply {
	m, err := b.mutes.Unmute(ctx, inv.GuildID, target.ID)
	if err != nil {
		return b.errorReply("Failed to unmute:", err, "user_id", target.ID)
	}
	embed := discord.Embed{
		Title: fmt.Sprintf("Unmuted %s", userTag(target)),
		Color: colorGreen,
		Description: fmt.Sprintf("Lifted the mute from infraction #`%d`, which would have expired in %s.",
			m.InfractionID, naturalDelta(m.Expiry.Sub(b.now()))),
		Footer: moderatorFooter("Unmuted", inv.User),
	}
	logEmbed := moderationLogEntry{
		Title:        "Member Unmuted",
		Color:        colorGreen,
		InfractionID: m.InfractionID,
		Target:       target,
		ModeratorID:  inv.User.ID,
		ChannelID:    inv.ChannelID,
	}.embed()
	return reply{msg: embedMessage(embed), eventLog: &logEmbed}
}

func (b *Bot) handleMuteRoleSet(ctx context.Context, inv invocation, data discord.SlashCommandInteractionData) reply {
	return b.setMuteRole(ctx, inv, data.Role(optRole))
}

func (b *Bot) setMuteRole(ctx context.Context, inv invocation, role discord.Role) reply {
	switch {
	case role.ID == inv.GuildID:
		return failure("Failed to set mute role:", "The @everyone role cannot be the mute role.")
	case role.Managed:
		return failure("Failed to set mute role:", "That role is managed by an integration and cannot be assigned.")
	}
	if err := b.store.SetMuteRole(ctx, inv.GuildID, role.ID); err != nil {
		return b.errorReply("Failed to set mute role:", err, "role_id", role.ID)
	}
	// Mutes skipped for a missing role can expire now.
	b.scheduler.Restart()
	b.Log.Info("Mute role set", "guild_id", inv.GuildID, "role_id", role.ID, "moderator_user_id", inv.User.ID)
	return embedReply(discord.Embed{
		Title:       "Mute role updated",
		Color:       colorGreen,
		Description: fmt.Sprintf("Muted members will now get %s.", roleMention(role.ID)),
	})
}

func (b *Bot) handleMuteRoleShow(ctx context.Context, inv invocation, _ discord.SlashCommandInteractionData) reply {
	roleID, ok, err := b.store.GetMuteRole(ctx, inv.GuildID)
	if err != nil {
		return b.errorReply("Failed to look up the mute role:", err)
	}
	if !ok {
		return embedReply(discord.Embed{
			Title:       "No mute role configured",
			Color:       colorBlue,
			Description: "Set one with `/muterole set`.",
		})
	}
	return embedReply(discord.Embed{
		Title:       "Mute role",
		Color:       colorBlue,
		Description: fmt.Sprintf("Muted members get %s.", roleMention(roleID)),
	})
}

// userError returns the message shown to a moderator for an error caused by
// the command's arguments or the guild's setup. ok is false for internal
// errors.
func (b *Bot) userError(err error) (msg string, ok bool) {
	var active *mutes.ActiveMuteError
	switch {
	case errors.As(err, &active):
		return fmt.Sprintf("That user is already muted by infraction #`%d`, expiring in %s.",
			active.InfractionID, naturalDelta(active.Expiry.Sub(b.now()))), true
	case errors.Is(err, mutes.ErrNoMuteRole):
		return "No mute role is configured on this server. Set one with `/muterole set`.", true
	case errors.Is(err, mutes.ErrMuteRoleMissing):
		return "The configured mute role no longer exists on this server. Set it again with `/muterole set`.", true
	case errors.Is(err, mutes.ErrAlreadyMuted):
		return "That member already has the mute role.", true
	case errors.Is(err, mutes.ErrMemberNotFound):
		return "That user is not a member of this server.", true
	case errors.Is(err, mutes.ErrNotMuted):
		return "That user has no active mute.", true
	case errors.Is(err, mutes.ErrExpiryNotInFuture):
		return "The mute expiry must lie in the future.", true
	case errors.Is(err, mutes.ErrInfractionNotFound):
		return "There is no infraction with that ID on this server.", true
	}
	return "", false
}

func (b *Bot) errorReply(title string, err error, args ...any) reply {
	if msg, ok := b.userError(err); ok {
		return failure(title, msg)
	}
	b.Log.Error(title, append(args, "error", err)...)
	return failure(title, "Oops! Something went wrong.")
}

func failure(title, description string) reply {
	return embedReply(discord.Embed{Title: title, Description: description, Color: colorRed})
}

func embedMessage(embed discord.Embed) discord.MessageCreate {
	return discord.MessageCreate{Embeds: []discord.Embed{embed}}
}

func embedReply(embed discord.Embed) reply {
	return reply{msg: embedMessage(embed)}
}

func moderatorFooter(verb string, moderator discord.User) *discord.EmbedFooter {
	return &discord.EmbedFooter{
		Text:    fmt.Sprintf("%s by %s (%d)", verb, moderator.Username, moderator.ID),
		IconURL: moderator.EffectiveAvatarURL(),
	}
}

func userTag(u discord.User) string {
	return fmt.Sprintf("`%s` (`%d`)", u.Username, u.ID)
}

func roleMention(id snowflake.ID) string { return fmt.Sprintf("<@&%d>", id) }
