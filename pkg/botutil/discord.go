package botutil

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

// GetGuildIDs returns the guilds the bot serves in the given env.
func GetGuildIDs(env string) []snowflake.ID {
	if env == "prod" {
		return []snowflake.ID{726985544038612993}
	}
	return []snowflake.ID{1013566342345019512}
}

type MessageResponder interface {
	CreateMessage(discord.MessageCreate, ...rest.RequestOpt) error
}

func RespondEphemeral(e MessageResponder, content string) {
	if err := e.CreateMessage(discord.MessageCreate{
		Content: content,
		Flags:   discord.MessageFlagEphemeral,
	}); err != nil {
		slog.Error("Failed to send ephemeral response", "error", err)
	}
}

// MessagePoster is the subset of rest.Rest used to post to channels.
type MessagePoster interface {
	CreateMessage(channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
}

var retryDelay = 2 * time.Second

// PostWithRetry attempts to create a message up to 3 times with linear backoff.
func PostWithRetry(ctx context.Context, poster MessagePoster, channelID snowflake.ID, msg discord.MessageCreate, log *slog.Logger) (*discord.Message, error) {
	var sent *discord.Message
	var err error
	for attempt := range 3 {
		sent, err = poster.CreateMessage(channelID, msg, rest.WithCtx(ctx))
		if err == nil {
			return sent, nil
		}
		log.Warn("Post attempt failed", "channel_id", channelID, "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * retryDelay):
		}
	}
	return nil, err
}

// RegisterGuildCommands registers the given commands for each guild matching the env.
func RegisterGuildCommands(client *bot.Client, env string, commands []discord.ApplicationCommandCreate, log *slog.Logger) error {
	for _, guildID := range GetGuildIDs(env) {
		if _, err := client.Rest.SetGuildCommands(client.ApplicationID, guildID, commands); err != nil {
			return fmt.Errorf("registering guild commands for %d: %w", guildID, err)
		}
		log.Info("Registered guild commands", "guild_id", guildID, "count", len(commands))
	}
	return nil
}
