// Confsync keeps a local copy of a conference and the user's schedule in sync
// with the conference API, and serves it to the rendering layer.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	_ "golang.org/x/crypto/x509roots/fallback"
	"golang.org/x/oauth2"
	_ "modernc.org/sqlite"

	"github.com/jdholdren/confsync/internal/bookmarks"
	"github.com/jdholdren/confsync/internal/confapi"
	"github.com/jdholdren/confsync/internal/confsync"
	"github.com/jdholdren/confsync/internal/logger"
	"github.com/jdholdren/confsync/internal/migrations"
	"github.com/jdholdren/confsync/internal/notify"
	"github.com/jdholdren/confsync/internal/refresh"
	"github.com/jdholdren/confsync/internal/securestore"
	"github.com/jdholdren/confsync/internal/server"
	cssqlite "github.com/jdholdren/confsync/internal/sqlite"
	"github.com/jdholdren/confsync/internal/store"
)

type config struct {
	APIBaseURL string `env:"API_BASE_URL, required"`
	Acronym    string `env:"ACRONYM, default=sfscon-latest"`
	AppVersion string `env:"APP_VERSION, default=dev"`
	Device     string `env:"DEVICE, default=desktop"`
	UserID     string `env:"USER_ID"`
	// Bearer token of the logged in user; session questions need it
	AccessToken string `env:"ACCESS_TOKEN"`

	Database       string `env:"DATABASE, default=confsync.db"`
	CookieHashKey  string `env:"COOKIE_HASH_KEY, required"`
	CookieBlockKey string `env:"COOKIE_BLOCK_KEY"`

	Port       int    `env:"PORT, default=4545"`
	CorsOrigin string `env:"CORS_ORIGIN, default=*"`

	OptimisticBookmarks bool          `env:"OPTIMISTIC_BOOKMARKS, default=true"`
	RequestTimeout      time.Duration `env:"REQUEST_TIMEOUT, default=10s"`
	RefreshTimeout      time.Duration `env:"REFRESH_TIMEOUT, default=30s"`
	RefreshInterval     time.Duration `env:"REFRESH_INTERVAL, default=5m"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`
	LoggerLevel  string `env:"LOGGER_LEVEL, default=info"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	slog.SetDefault(logger.New(os.Stderr, cfg.LoggerFormat, cfg.LoggerLevel))

	// Connect to the sqlite db
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_txlock=immediate&_journal_mode=WAL&_busy_timeout=5000", cfg.Database))
	if err != nil {
		log.Fatalf("error opening database: %s", err)
	}
	defer dbx.Close()

	// Migrate, always
	if err := migrations.Run(dbx); err != nil {
		log.Fatalf("error running migrations: %s", err)
	}

	var tokens oauth2.TokenSource
	if cfg.AccessToken != "" {
		tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
	}

	secrets := securestore.New(cssqlite.New(dbx), []byte(cfg.CookieHashKey), []byte(cfg.CookieBlockKey))

	// Start the application
	fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.SlogLogger{Logger: slog.Default()}
		}),
		fx.Supply(
			confapi.Config{
				BaseURL:    cfg.APIBaseURL,
				AppVersion: cfg.AppVersion,
				Device:     cfg.Device,
				Timeout:    cfg.RequestTimeout,
				Tokens:     tokens,
			},
			confsync.FetcherConfig{
				Acronym: cfg.Acronym,
				UserID:  cfg.UserID,
			},
			refresh.Config{
				Timeout:         cfg.RefreshTimeout,
				DefaultInterval: cfg.RefreshInterval,
			},
			bookmarks.Options{
				Optimistic: cfg.OptimisticBookmarks,
			},
			server.Config{
				Port:       cfg.Port,
				CorsOrigin: cfg.CorsOrigin,
			},
			secrets,
			fx.Annotate(ctx, fx.As(new(context.Context))),
		),
		store.Module,
		notify.Module,
		confapi.Module,
		bookmarks.Module,
		confsync.Module,
		server.Module,
		fx.Invoke(func(*server.Server) {}), // Start serving and syncing
	).Run()
}
