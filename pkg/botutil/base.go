package botutil

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"

	"github.com/sadbox/boltbot/pkg/s3client"
)

const defaultDBPath = "data/boltbot.db"

// BaseBot holds the configuration and clients shared by the bot's components.
type BaseBot struct {
	Client *bot.Client
	// S3 is nil when the S3_* variables are not set.
	S3                  *s3client.Client
	Env                 string
	DBPath              string
	Log                 *slog.Logger
	Ready               atomic.Bool
	healthcheckEndpoint string
	httpClient          *http.Client
}

// NewBaseBot reads the bot's configuration from the environment. envVar names
// the env variable (e.g. "BOLTBOT_ENV"); the other variables share its prefix:
// {PREFIX}_DB_PATH and {PREFIX}_HEALTHCHECK_ENDPOINT.
func NewBaseBot(envVar string) *BaseBot {
	log := slog.Default()
	prefix := strings.TrimSuffix(envVar, "_ENV")

	s3, err := s3client.New()
	if err != nil {
		log.Warn("S3 is not configured, infraction backups and exports are disabled", "error", err)
		s3 = nil
	}

	dbPath := os.Getenv(prefix + "_DB_PATH")
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	return &BaseBot{
		S3:                  s3,
		Env:                 os.Getenv(envVar),
		DBPath:              dbPath,
		Log:                 log,
		healthcheckEndpoint: os.Getenv(prefix + "_HEALTHCHECK_ENDPOINT"),
		httpClient:          &http.Client{Timeout: 10 * time.Second},
	}
}

// PingHealthcheck sends a GET to the configured healthcheck endpoint.
// It is a no-op in dev or if no endpoint is configured.
func (b *BaseBot) PingHealthcheck(ctx context.Context) {
	if b.Env != "prod" || b.healthcheckEndpoint == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.healthcheckEndpoint, nil)
	if err != nil {
		b.Log.Error("Bad healthcheck endpoint", "error", err)
		return
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.Log.Info("Healthcheck ping failed", "error", err)
		return
	}
	resp.Body.Close()
}

func (b *BaseBot) OnReady(_ *events.Ready) {
	b.Log.Info("Logged in")
	b.Ready.Store(true)
}
