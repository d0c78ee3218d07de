package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"

	"github.com/sadbox/boltbot/pkg/mutes"
	"github.com/sadbox/boltbot/pkg/store"
)

// maxListed bounds how many infractions /infraction list resolves user
// names for. The rest are only counted.
const maxListed = 60

func notFoundReply(id int64) reply {
	return failure(fmt.Sprintf("Failed to find infraction #`%d` on this server.", id), "")
}

func (b *Bot) handleInfractionReason(ctx context.Context, inv invocation, data discord.SlashCommandInteractionData) reply {
	return b.editReason(ctx, inv, int64(data.Int(optID)), data.String(optReason))
}

func (b *Bot) editReason(ctx context.Context, inv invocation, id int64, newReason string) reply {
	ok, err := b.store.UpdateReason(ctx, inv.GuildID, id, newReason)
	if err != nil {
		return b.errorReply("Failed to edit infraction:", err, "infraction_id", id)
	}
	if !ok {
		return notFoundReply(id)
	}
	b.Log.Info("Infraction reason edited", "infraction_id", id, "guild_id", inv.GuildID, "moderator_user_id", inv.User.ID)
	return embedReply(discord.Embed{
		Title:     fmt.Sprintf("Successfully edited infraction #`%d`.", id),
		Color:     colorGreen,
		Timestamp: timePtr(b.now()),
		Fields:    []discord.EmbedField{{Name: "New reason", Value: truncate(newReason, maxFieldLen)}},
		Footer:    moderatorFooter("Authored", inv.User),
	})
}

func (b *Bot) handleInfractionDelete(ctx context.Context, inv invocation, data discord.SlashCommandInteractionData) reply {
	return b.deleteInfraction(ctx, inv, int64(data.Int(optID)))
}

func (b *Bot) deleteInfraction(ctx context.Context, inv invocation, id int64) reply {
	res, err := b.mutes.DeleteInfraction(ctx, inv.GuildID, id)
	if errors.Is(err, mutes.ErrInfractionNotFound) {
		return notFoundReply(id)
	}
	if err != nil {
		return b.errorReply(fmt.Sprintf("Failed to delete infraction #%d:", id), err, "infraction_id", id)
	}
	embed := discord.Embed{
		Title: fmt.Sprintf("Successfully deleted infraction #`%d`.", id),
		Color: colorGreen,
	}
	if res.LiftedMute != nil {
		embed.Description = fmt.Sprintf("The accompanying mute expiring in %s was also deleted, and the user was unmuted.",
			naturalDelta(res.LiftedMute.Expiry.Sub(b.now())))
	}

	target, _, err := b.members.User(ctx, res.Infraction.UserID)
	if err != nil {
		b.Log.Warn("Failed to look up user of deleted infraction", "user_id", res.Infraction.UserID, "error", err)
	}
	if target.ID == 0 {
		target.ID = res.Infraction.UserID
	}
	logEmbed := moderationLogEntry{
		Title:       "Infraction Deleted",
		Color:       colorGrey,
		Target:      target,
		ModeratorID: inv.User.ID,
		Extra: []discord.EmbedField{
			{Name: "Infraction", Value: fmt.Sprintf("#`%d` %s", id, typeLabel(res.Infraction.Type)), Inline: boolPtr(true)},
		},
		Reason: res.Infraction.ReasonText(),
	}.embed()
	return reply{msg: embedMessage(embed), eventLog: &logEmbed}
}

func (b *Bot) handleInfractionDetail(ctx context.Context, inv invocation, data discord.SlashCommandInteractionData) reply {
	return b.infractionDetail(ctx, inv, int64(data.Int(optID)))
}

func (b *Bot) infractionDetail(ctx context.Context, inv invocation, id int64) reply {
	inf, ok, err := b.store.GetInfraction(ctx, inv.GuildID, id)
	if err != nil {
		return b.errorReply("Failed to look up infraction:", err, "infraction_id", id)
	}
	if !ok {
		return notFoundReply(id)
	}
	var mute *store.Mute
	if inf.Type == store.InfractionMute {
		m, ok, err := b.store.GetMute(ctx, id)
		if err != nil {
			return b.errorReply("Failed to look up infraction:", err, "infraction_id", id)
		}
		if ok {
			mute = &m
		}
	}
	embed := infractionDetailEmbed(inf, mute,
		b.members.UserLabel(ctx, inf.UserID),
		b.members.UserLabel(ctx, inf.ModeratorID),
		b.now())
	return embedReply(embed)
}

func (b *Bot) handleInfractionList(ctx context.Context, inv invocation, data discord.SlashCommandInteractionData) reply {
	var types []store.InfractionType
	if v, ok := data.OptString(optType); ok {
		t, ok := store.ParseInfractionType(v)
		if !ok {
			return failure("Failed to list infractions:", fmt.Sprintf("Unknown infraction type `%s`.", v))
		}
		types = append(types, t)
	}
	return b.listInfractions(ctx, inv, types...)
}

func (b *Bot) listInfractions(ctx context.Context, inv invocation, types ...store.InfractionType) reply {
	infractions, err := b.store.ListInfractions(ctx, inv.GuildID, types...)
	if err != nil {
		return b.errorReply("Failed to list infractions:", err)
	}
	title := "All infractions on this server"
	if len(types) > 0 {
		title = fmt.Sprintf("Infractions with type `%s` on this server", types[0])
	}
	labels := make(map[snowflake.ID]string)
	label := func(inf store.Infraction) string {
		if l, ok := labels[inf.UserID]; ok {
			return l
		}
		l := b.members.UserLabel(ctx, inf.UserID)
		labels[inf.UserID] = l
		return l
	}
	return embedReply(infractionListEmbed(title, infractions, maxListed, label))
}

func (b *Bot) handleInfractionUser(ctx context.Context, inv invocation, data discord.SlashCommandInteractionData) reply {
	return b.userInfractions(ctx, inv, data.User(optUser))
}

func (b *Bot) userInfractions(ctx context.Context, inv invocation, user discord.User) reply {
	infractions, err := b.store.UserInfractions(ctx, inv.GuildID, user.ID)
	if err != nil {
		return b.errorReply("Failed to look up infractions:", err, "user_id", user.ID)
	}
	embed := userInfractionsEmbed(userTag(user), infractions, b.now())
	if embed.Footer != nil {
		embed.Footer.IconURL = user.EffectiveAvatarURL()
	}
	return embedReply(embed)
}
