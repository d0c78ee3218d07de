package bot

import (
	"cmp"
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/sadbox/boltbot/pkg/store"
)

const defaultPruneDays = 1

func (b *Bot) handleWarn(ctx context.Context, inv invocation, data discord.SlashCommandInteractionData) reply {
	return b.warn(ctx, inv, data.User(optUser), data.String(optReason))
}

func (b *Bot) warn(ctx context.Context, inv invocation, target discord.User, reason string) reply {
	inf, err := b.record(ctx, inv, store.InfractionWarning, target, reason)
	if err != nil {
		return b.errorReply("Failed to warn:", err, "user_id", target.ID)
	}

	// The warning itself is public and pings the member.
	msg := discord.MessageCreate{
		Content: userMention(target.ID),
		Embeds: []discord.Embed{{
			Title:       "Warning",
			Color:       colorOrange,
			Description: fmt.Sprintf("You have been warned and this has been saved to your permanent record.\n\n**Reason:** %s", reason),
			Footer: &discord.EmbedFooter{
				Text:    fmt.Sprintf("Issued by @%s, infraction #%d", inv.User.Username, inf.ID),
				IconURL: inv.User.EffectiveAvatarURL(),
			},
		}},
		AllowedMentions: &discord.AllowedMentions{Users: []snowflake.ID{target.ID}},
	}
	logEmbed := moderationLogEntry{
		Title:        "Member Warned",
		Color:        colorOrange,
		InfractionID: inf.ID,
		Target:       target,
		ModeratorID:  inv.User.ID,
		ChannelID:    inv.ChannelID,
		Reason:       reason,
	}.embed()
	return reply{msg: msg, eventLog: &logEmbed}
}

func (b *Bot) handleNote(ctx context.Context, inv invocation, data discord.SlashCommandInteractionData) reply {
	return b.note(ctx, inv, data.User(optUser), data.String(optNote))
}

func (b *Bot) note(ctx context.Context, inv invocation, target discord.User, note string) reply {
	inf, err := b.record(ctx, inv, store.InfractionNote, target, note)
	if err != nil {
		return b.errorReply("Failed to add note:", err, "user_id", target.ID)
	}
	return embedReply(discord.Embed{
		Title:       fmt.Sprintf("Added note #`%d` for %s", inf.ID, userTag(target)),
		Color:       colorGreen,
		Description: truncate(note, maxDescriptionLen),
	})
}

func (b *Bot) handleKick(ctx context.Context, inv invocation, data discord.SlashCommandInteractionData) reply {
	return b.kick(ctx, inv, data.User(optUser), data.String(optReason))
}

func (b *Bot) kick(ctx context.Context, inv invocation, target discord.User, reason string) reply {
	if target.ID == inv.User.ID {
		return failure("Failed to kick:", "You cannot kick yourself.")
	}
	if err := b.rest.RemoveMember(inv.GuildID, target.ID, rest.WithCtx(ctx), rest.WithReason(auditReason(inv.User, reason))); err != nil {
		b.Log.Error("Failed to kick member", "guild_id", inv.GuildID, "user_id", target.ID, "error", err)
		return failure("Failed to kick:", "Discord refused the kick. Check that my role is above the member's highest role.")
	}
	inf, err := b.record(ctx, inv, store.InfractionKick, target, reason)
	if err != nil {
		b.Log.Error("Kicked member but failed to record the infraction", "guild_id", inv.GuildID, "user_id", target.ID, "error", err)
		return failure("Kicked, but failed to record the infraction:", "Oops! Something went wrong.")
	}
	return b.removalReply("Kicked", "Member Kicked", colorRed, inv, inf, target)
}

func (b *Bot) handleBan(ctx context.Context, inv invocation, data discord.SlashCommandInteractionData) reply {
	pruneDays := defaultPruneDays
	if v, ok := data.OptInt(optPruneDays); ok {
		pruneDays = v
	}
	return b.ban(ctx, inv, data.User(optUser), data.String(optReason), pruneDays)
}

func (b *Bot) ban(ctx context.Context, inv invocation, target discord.User, reason string, pruneDays int) reply {
	if target.ID == inv.User.ID {
		return failure("Failed to ban:", "You cannot ban yourself.")
	}
	if pruneDays < 0 || pruneDays > 7 {
		return failure("Failed to ban:", "The amount of days to prune messages for must be within 0 and 7.")
	}
	prune := time.Duration(pruneDays) * 24 * time.Hour
	if err := b.rest.AddBan(inv.GuildID, target.ID, prune, rest.WithCtx(ctx), rest.WithReason(auditReason(inv.User, reason))); err != nil {
		b.Log.Error("Failed to ban user", "guild_id", inv.GuildID, "user_id", target.ID, "error", err)
		return failure("Failed to ban:", "Discord refused the ban. Check that my role is above the member's highest role.")
	}
	inf, err := b.record(ctx, inv, store.InfractionBan, target, reason)
	if err != nil {
		b.Log.Error("Banned user but failed to record the infraction", "guild_id", inv.GuildID, "user_id", target.ID, "error", err)
		return failure("Banned, but failed to record the infraction:", "Oops! Something went wrong.")
	}
	return b.removalReply("Banned", "Member Banned", colorDarkRed, inv, inf, target)
}

func (b *Bot) removalReply(verb, logTitle string, color int, inv invocation, inf store.Infraction, target discord.User) reply {
	embed := discord.Embed{
		Title:  fmt.Sprintf("%s %s", verb, userTag(target)),
		Color:  colorGreen,
		Footer: moderatorFooter(verb, inv.User),
	}
	if r := inf.ReasonText(); r != "" {
		embed.Description = fmt.Sprintf("**Reason**: %s", truncate(r, maxDescriptionLen-12))
	}
	logEmbed := moderationLogEntry{
		Title:        logTitle,
		Color:        color,
		InfractionID: inf.ID,
		Target:       target,
		ModeratorID:  inv.User.ID,
		ChannelID:    inv.ChannelID,
		Reason:       inf.ReasonText(),
	}.embed()
	return reply{msg: embedMessage(embed), eventLog: &logEmbed}
}

func (b *Bot) record(ctx context.Context, inv invocation, t store.InfractionType, target discord.User, reason string) (store.Infraction, error) {
	inf, err := b.store.CreateInfraction(ctx, store.NewInfraction{
		GuildID:     inv.GuildID,
		Type:        t,
		UserID:      target.ID,
		ModeratorID: inv.User.ID,
		Reason:      reason,
	})
	if err != nil {
		return store.Infraction{}, err
	}
	b.Log.Info("Infraction recorded",
		"infraction_id", inf.ID,
		"type", t,
		"target_user_id", target.ID,
		"moderator_user_id", inv.User.ID,
		"guild_id", inv.GuildID,
	)
	return inf, nil
}

func auditReason(moderator discord.User, reason string) string {
	return fmt.Sprintf("Command invoked by %s, reason: %s.", moderator.Username, cmp.Or(reason, "No reason specified"))
}
