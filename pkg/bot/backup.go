package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"

	"github.com/sadbox/boltbot/pkg/s3client"
	"github.com/sadbox/boltbot/pkg/store"
)

// infractionSnapshot is the JSON document written to S3 for a guild.
type infractionSnapshot struct {
	GuildID     snowflake.ID       `json:"guild_id"`
	ExportedAt  time.Time          `json:"exported_at,omitzero"`
	Infractions []store.Infraction `json:"infractions"`
}

func (b *Bot) snapshot(ctx context.Context, guildID snowflake.ID, exportedAt time.Time) ([]byte, int, error) {
	infractions, err := b.store.ListInfractions(ctx, guildID)
	if err != nil {
		return nil, 0, err
	}
	data, err := json.MarshalIndent(infractionSnapshot{
		GuildID:     guildID,
		ExportedAt:  exportedAt,
		Infractions: infractions,
	}, "", "  ")
	if err != nil {
		return nil, 0, fmt.Errorf("encoding infractions of guild %d: %w", guildID, err)
	}
	return data, len(infractions), nil
}

// backupInfractions uploads a snapshot of every guild's infractions. Guilds
// whose snapshot has not changed since the last upload are skipped.
func (b *Bot) backupInfractions(ctx context.Context) {
	if b.S3 == nil {
		return
	}
	guilds, err := b.store.GuildsWithInfractions(ctx)
	if err != nil {
		b.Log.Error("Failed to list guilds for backup", "error", err)
		return
	}
	for _, guildID := range guilds {
		data, n, err := b.snapshot(ctx, guildID, time.Time{})
		if err != nil {
			b.Log.Error("Failed to snapshot infractions", "guild_id", guildID, "error", err)
			continue
		}
		saved, err := b.S3.SaveInfractionBackup(ctx, guildID.String(), data)
		if err != nil {
			b.Log.Error("Failed to back up infractions", "guild_id", guildID, "error", err)
			continue
		}
		if saved {
			b.Log.Info("Backed up infractions", "guild_id", guildID, "count", n)
		}
	}
}

// seedBackupHashes loads the snapshots already in S3 so the first backup
// after a restart skips guilds that did not change while the bot was down.
func (b *Bot) seedBackupHashes(ctx context.Context) {
	if b.S3 == nil {
		return
	}
	guilds, err := b.store.GuildsWithInfractions(ctx)
	if err != nil {
		b.Log.Error("Failed to list guilds for backup seeding", "error", err)
		return
	}
	seeded := 0
	for _, guildID := range guilds {
		err := b.S3.SeedInfractionBackup(ctx, guildID.String())
		switch {
		case errors.Is(err, s3client.ErrNotFound):
		case err != nil:
			b.Log.Warn("Failed to load previous backup", "guild_id", guildID, "error", err)
		default:
			seeded++
		}
	}
	b.Log.Info("Loaded previous infraction backups", "guilds", len(guilds), "found", seeded)
}

func (b *Bot) handleInfractionExport(ctx context.Context, inv invocation, _ discord.SlashCommandInteractionData) reply {
	return b.exportInfractions(ctx, inv)
}

func (b *Bot) exportInfractions(ctx context.Context, inv invocation) reply {
	if b.S3 == nil {
		return failure("Export unavailable:", "Infraction exports are disabled because S3 is not configured.")
	}
	now := b.now()
	data, n, err := b.snapshot(ctx, inv.GuildID, now)
	if err != nil {
		return b.errorReply("Failed to export infractions:", err)
	}
	key, err := b.S3.SaveInfractionExport(ctx, inv.GuildID.String(), data, now)
	if err != nil {
		return b.errorReply("Failed to export infractions:", err)
	}
	b.Log.Info("Exported infractions", "guild_id", inv.GuildID, "count", n, "key", key, "moderator_user_id", inv.User.ID)
	return embedReply(discord.Embed{
		Title:       fmt.Sprintf("Exported %d infractions", n),
		Color:       colorGreen,
		Description: fmt.Sprintf("Saved to `%s` in bucket `%s`.", key, b.S3.Bucket()),
	})
}
