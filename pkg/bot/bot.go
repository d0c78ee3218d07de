package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/sadbox/boltbot/pkg/botutil"
	"github.com/sadbox/boltbot/pkg/members"
	"github.com/sadbox/boltbot/pkg/mutes"
	"github.com/sadbox/boltbot/pkg/store"
)

const (
	backupInterval      = 30 * time.Minute
	healthcheckInterval = 30 * time.Second
	commandTimeout      = 30 * time.Second
)

// discordRest is the subset of rest.Rest the bot calls.
type discordRest interface {
	members.Client
	botutil.MessagePoster
	RemoveMember(guildID snowflake.ID, userID snowflake.ID, opts ...rest.RequestOpt) error
	AddBan(guildID snowflake.ID, userID snowflake.ID, deleteMessageDuration time.Duration, opts ...rest.RequestOpt) error
}

type Bot struct {
	*botutil.BaseBot
	store          *store.DB
	rest           discordRest
	members        *members.Service
	scheduler      *mutes.Scheduler
	mutes          *mutes.Service
	eventLogConfig map[snowflake.ID]eventLogChannelConfig
	now            func() time.Time
	started        time.Time
}

func New(token string) (*Bot, error) {
	base := botutil.NewBaseBot("BOLTBOT_ENV")

	db, err := store.Open(base.DBPath, base.Log)
	if err != nil {
		return nil, err
	}

	b := &Bot{
		BaseBot:        base,
		store:          db,
		eventLogConfig: getEventLogConfig(base.Env),
		now:            time.Now,
		started:        time.Now(),
	}

	client, err := disgo.New(token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(gateway.IntentGuilds),
		),
		bot.WithEventListenerFunc(b.OnReady),
		bot.WithEventListenerFunc(b.onCommand),
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	b.Client = client
	b.wire(client.Rest)
	return b, nil
}

// wire builds the mute machinery on top of a REST client.
func (b *Bot) wire(r discordRest) {
	b.rest = r
	b.members = members.New(r, b.Log)
	b.scheduler = mutes.NewScheduler(b.store, b.members, b.Log)
	b.mutes = mutes.NewService(b.store, b.members, b.scheduler, b.Log)
}

func (b *Bot) Run() error {
	defer b.store.Close()

	ctx, stop := botutil.ShutdownContext(context.Background(), b.Log, "Bot")
	defer stop()

	b.Log.Info(fmt.Sprintf("Invite: https://discord.com/oauth2/authorize?client_id=%d&scope=bot%%20applications.commands&permissions=1099780082694", b.Client.ApplicationID))

	if err := b.Client.OpenGateway(ctx); err != nil {
		return err
	}
	defer b.Client.Close(context.Background())

	if err := b.registerAllCommands(); err != nil {
		return fmt.Errorf("registering commands: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if botutil.WaitForReady(ctx, &b.Ready) {
			b.scheduler.Run(ctx)
		}
	}()
	go func() {
		defer wg.Done()
		if botutil.WaitForReady(ctx, &b.Ready) {
			b.seedBackupHashes(ctx)
		}
		botutil.RunLoop(ctx, &b.Ready, backupInterval, "backup", b.backupInfractions)
	}()
	go func() {
		defer wg.Done()
		botutil.RunLoop(ctx, &b.Ready, healthcheckInterval, "healthcheck", b.PingHealthcheck)
	}()

	<-ctx.Done()
	b.Log.Info("Shutting down.")
	wg.Wait()

	final, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	b.backupInfractions(final)
	return nil
}
