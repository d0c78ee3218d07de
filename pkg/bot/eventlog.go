package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"

	"github.com/sadbox/boltbot/pkg/botutil"
)

// Embed colors for event log entries and replies.
const (
	colorRed     = 0xED4245
	colorGreen   = 0x57F287
	colorOrange  = 0xE67E22
	colorBlue    = 0x3498DB
	colorDarkRed = 0x992D22
	colorGrey    = 0x95A5A6
)

type eventLogChannelConfig struct {
	ChannelID snowflake.ID
}

func getEventLogConfig(env string) map[snowflake.ID]eventLogChannelConfig {
	switch env {
	case "prod":
		return map[snowflake.ID]eventLogChannelConfig{
			726985544038612993: {ChannelID: 835704010161258526},
		}
	case "dev":
		return map[snowflake.ID]eventLogChannelConfig{
			1013566342345019512: {ChannelID: 1015659489610960987},
		}
	default:
		return nil
	}
}

func (b *Bot) postEventLog(ctx context.Context, guildID snowflake.ID, embed discord.Embed) {
	cfg, ok := b.eventLogConfig[guildID]
	if !ok || cfg.ChannelID == 0 {
		return
	}
	embed.Timestamp = timePtr(b.now())
	if _, err := botutil.PostWithRetry(ctx, b.rest, cfg.ChannelID, discord.MessageCreate{
		Embeds: []discord.Embed{embed},
	}, b.Log); err != nil {
		b.Log.Error("Failed to post event log", "guild_id", guildID, "error", err)
	}
}

// moderationLogEntry describes a moderation action for the event log.
type moderationLogEntry struct {
	Title        string
	Color        int
	InfractionID int64
	Target       discord.User
	ModeratorID  snowflake.ID
	ChannelID    snowflake.ID
	Reason       string
	Extra        []discord.EmbedField
}

func (m moderationLogEntry) embed() discord.Embed {
	embed := discord.Embed{
		Title: m.Title,
		Color: m.Color,
		Author: &discord.EmbedAuthor{
			Name:    m.Target.Username,
			IconURL: m.Target.EffectiveAvatarURL(),
		},
		Fields: []discord.EmbedField{
			{Name: "User", Value: fmt.Sprintf("%s (`%d`)", userMention(m.Target.ID), m.Target.ID)},
			{Name: "Moderator", Value: userMention(m.ModeratorID), Inline: boolPtr(true)},
		},
	}
	if m.ChannelID != 0 {
		embed.Fields = append(embed.Fields, discord.EmbedField{
			Name: "Channel", Value: channelMention(m.ChannelID), Inline: boolPtr(true),
		})
	}
	if m.InfractionID != 0 {
		embed.Fields = append(embed.Fields, discord.EmbedField{
			Name: "Infraction", Value: fmt.Sprintf("#`%d`", m.InfractionID), Inline: boolPtr(true),
		})
	}
	embed.Fields = append(embed.Fields, m.Extra...)
	if m.Reason != "" {
		embed.Fields = append(embed.Fields, discord.EmbedField{Name: "Reason", Value: truncate(m.Reason, maxFieldLen)})
	}
	return embed
}

func timePtr(t time.Time) *time.Time { return &t }

func boolPtr(v bool) *bool { return &v }

func channelMention(id snowflake.ID) string { return fmt.Sprintf("<#%d>", id) }
func userMention(id snowflake.ID) string    { return fmt.Sprintf("<@%d>", id) }

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
