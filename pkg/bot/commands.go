package bot

import (
	"context"
	"strconv"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"

	"github.com/sadbox/boltbot/pkg/botutil"
	"github.com/sadbox/boltbot/pkg/store"
)

const (
	cmdMute       = "mute"
	cmdUnmute     = "unmute"
	cmdMuteRole   = "muterole"
	cmdWarn       = "warn"
	cmdNote       = "note"
	cmdKick       = "kick"
	cmdBan        = "ban"
	cmdInfraction = "infraction"
	cmdStats      = "stats"

	subSet    = "set"
	subShow   = "show"
	subReason = "reason"
	subDelete = "delete"
	subDetail = "detail"
	subList   = "list"
	subUser   = "user"
	subExport = "export"

	optUser      = "user"
	optReason    = "reason"
	optExpiry    = "expiry"
	optRole      = "role"
	optNote      = "note"
	optID        = "id"
	optType      = "type"
	optPruneDays = "prune_days"
)

func intPtr(v int) *int { return &v }

// invocation is who ran a command, and where.
type invocation struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	User      discord.User
}

// reply is the response to a command, plus an optional event log entry
// posted after the response is sent.
type reply struct {
	msg      discord.MessageCreate
	eventLog *discord.Embed
}

type command struct {
	ephemeral bool
	run       func(ctx context.Context, inv invocation, data discord.SlashCommandInteractionData) reply
}

func (b *Bot) commands() map[string]command {
	return map[string]command{
		cmdMute:                         {run: b.handleMute},
		cmdUnmute:                       {run: b.handleUnmute},
		cmdMuteRole + " " + subSet:      {ephemeral: true, run: b.handleMuteRoleSet},
		cmdMuteRole + " " + subShow:     {ephemeral: true, run: b.handleMuteRoleShow},
		cmdWarn:                         {run: b.handleWarn},
		cmdNote:                         {ephemeral: true, run: b.handleNote},
		cmdKick:                         {run: b.handleKick},
		cmdBan:                          {run: b.handleBan},
		cmdInfraction + " " + subReason: {run: b.handleInfractionReason},
		cmdInfraction + " " + subDelete: {run: b.handleInfractionDelete},
		cmdInfraction + " " + subDetail: {run: b.handleInfractionDetail},
		cmdInfraction + " " + subList:   {run: b.handleInfractionList},
		cmdInfraction + " " + subUser:   {run: b.handleInfractionUser},
		cmdInfraction + " " + subExport: {ephemeral: true, run: b.handleInfractionExport},
		cmdStats:                        {run: b.handleStats},
	}
}

func commandKey(data discord.SlashCommandInteractionData) string {
	if data.SubCommandName != nil {
		return data.CommandName() + " " + *data.SubCommandName
	}
	return data.CommandName()
}

func commandDefinitions() []discord.ApplicationCommandCreate {
	moderate := discord.PermissionModerateMembers
	manageRoles := discord.PermissionManageRoles
	kick := discord.PermissionKickMembers
	ban := discord.PermissionBanMembers
	manageMessages := discord.PermissionManageMessages

	userOpt := func(desc string) discord.ApplicationCommandOption {
		return discord.ApplicationCommandOptionUser{Name: optUser, Description: desc, Required: true}
	}
	reasonOpt := func(required bool) discord.ApplicationCommandOption {
		return discord.ApplicationCommandOptionString{
			Name:        optReason,
			Description: "Reason, recorded in the infraction",
			Required:    required,
			MaxLength:   intPtr(1000),
		}
	}
	idOpt := discord.ApplicationCommandOptionInt{
		Name:        optID,
		Description: "Infraction ID",
		Required:    true,
		MinValue:    intPtr(1),
	}

	typeChoices := make([]discord.ApplicationCommandOptionChoiceString, 0, len(store.InfractionTypes))
	for _, t := range store.InfractionTypes {
		typeChoices = append(typeChoices, discord.ApplicationCommandOptionChoiceString{Name: string(t), Value: string(t)})
	}

	return []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:                     cmdMute,
			Description:              "Temporarily mute a member",
			DefaultMemberPermissions: omit.NewPtr(moderate),
			Options: []discord.ApplicationCommandOption{
				userOpt("Member to mute"),
				discord.ApplicationCommandOptionString{
					Name:        optExpiry,
					Description: "Duration like 90m, 2h30m, 3d, or a UTC date like 2006-01-02 15:04",
					Required:    true,
				},
				reasonOpt(false),
			},
		},
		discord.SlashCommandCreate{
			Name:                     cmdUnmute,
			Description:              "Lift a member's mute before it expires",
			DefaultMemberPermissions: omit.NewPtr(moderate),
			Options:                  []discord.ApplicationCommandOption{userOpt("Member to unmute")},
		},
		discord.SlashCommandCreate{
			Name:                     cmdMuteRole,
			Description:              "Configure the role given to muted members",
			DefaultMemberPermissions: omit.NewPtr(manageRoles),
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionSubCommand{
					Name:        subSet,
					Description: "Set the mute role",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionRole{Name: optRole, Description: "Role to give muted members", Required: true},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        subShow,
					Description: "Show the mute role",
				},
			},
		},
		discord.SlashCommandCreate{
			Name:                     cmdWarn,
			Description:              "Warn a member",
			DefaultMemberPermissions: omit.NewPtr(moderate),
			Options:                  []discord.ApplicationCommandOption{userOpt("Member to warn"), reasonOpt(true)},
		},
		discord.SlashCommandCreate{
			Name:                     cmdNote,
			Description:              "Add a private note to a user's record",
			DefaultMemberPermissions: omit.NewPtr(moderate),
			Options: []discord.ApplicationCommandOption{
				userOpt("User the note is about"),
				discord.ApplicationCommandOptionString{Name: optNote, Description: "Note", Required: true, MaxLength: intPtr(1000)},
			},
		},
		discord.SlashCommandCreate{
			Name:                     cmdKick,
			Description:              "Kick a member",
			DefaultMemberPermissions: omit.NewPtr(kick),
			Options:                  []discord.ApplicationCommandOption{userOpt("Member to kick"), reasonOpt(false)},
		},
		discord.SlashCommandCreate{
			Name:                     cmdBan,
			Description:              "Ban a user",
			DefaultMemberPermissions: omit.NewPtr(ban),
			Options: []discord.ApplicationCommandOption{
				userOpt("User to ban"),
				reasonOpt(false),
				discord.ApplicationCommandOptionInt{
					Name:        optPruneDays,
					Description: "Days of messages to delete (default 1)",
					MinValue:    intPtr(0),
					MaxValue:    intPtr(7),
				},
			},
		},
		discord.SlashCommandCreate{
			Name:                     cmdInfraction,
			Description:              "Infraction management",
			DefaultMemberPermissions: omit.NewPtr(manageMessages),
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionSubCommand{
					Name:        subReason,
					Description: "Change the reason of an infraction (administrators)",
					Options: []discord.ApplicationCommandOption{
						idOpt,
						discord.ApplicationCommandOptionString{Name: optReason, Description: "New reason", Required: true, MaxLength: intPtr(1000)},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        subDelete,
					Description: "Delete an infraction, lifting its mute (administrators)",
					Options:     []discord.ApplicationCommandOption{idOpt},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        subDetail,
					Description: "Look up an infraction",
					Options:     []discord.ApplicationCommandOption{idOpt},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        subList,
					Description: "List infractions on this server, newest first",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionString{Name: optType, Description: "Only show this type", Choices: typeChoices},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        subUser,
					Description: "Look up a user's infractions",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionUser{Name: optUser, Description: "User to look up", Required: true},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        subExport,
					Description: "Export this server's infractions as JSON (administrators)",
				},
			},
		},
		discord.SlashCommandCreate{
			Name:        cmdStats,
			Description: "Show bot and host statistics",
		},
	}
}

func (b *Bot) registerAllCommands() error {
	return botutil.RegisterGuildCommands(b.Client, b.Env, commandDefinitions(), b.Log)
}

func (b *Bot) onCommand(e *events.ApplicationCommandInteractionCreate) {
	guildID := e.GuildID()
	if guildID == nil {
		return
	}
	data, ok := e.Data.(discord.SlashCommandInteractionData)
	if !ok {
		return
	}
	cmd, ok := b.commands()[commandKey(data)]
	if !ok {
		return
	}
	if adminOnly(data) && !isAdmin(e.Member()) {
		botutil.RespondEphemeral(e, "You need the **Administrator** permission to use this command.")
		return
	}

	if err := e.DeferCreateMessage(cmd.ephemeral); err != nil {
		b.Log.Error("Failed to defer command response", "command", commandKey(data), "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	inv := invocation{GuildID: *guildID, ChannelID: e.Channel().ID(), User: e.User()}
	r := cmd.run(ctx, inv, data)
	if cmd.ephemeral {
		r.msg.Flags |= discord.MessageFlagEphemeral
	}
	if _, err := b.Client.Rest.CreateFollowupMessage(b.Client.ApplicationID, e.Token(), r.msg); err != nil {
		b.Log.Error("Failed to send command response", "command", commandKey(data), "guild_id", guildIDStr(e), "error", err)
	}
	if r.eventLog != nil {
		b.postEventLog(ctx, inv.GuildID, *r.eventLog)
	}
}

// adminOnly reports whether a subcommand is restricted beyond the parent
// command's default permission.
func adminOnly(data discord.SlashCommandInteractionData) bool {
	if data.CommandName() != cmdInfraction || data.SubCommandName == nil {
		return false
	}
	switch *data.SubCommandName {
	case subReason, subDelete, subExport:
		return true
	}
	return false
}

func isAdmin(m *discord.ResolvedMember) bool {
	return m != nil && m.Permissions.Has(discord.PermissionAdministrator)
}

func guildIDStr(e interface{ GuildID() *snowflake.ID }) string {
	if id := e.GuildID(); id != nil {
		return strconv.FormatInt(int64(*id), 10)
	}
	return ""
}
