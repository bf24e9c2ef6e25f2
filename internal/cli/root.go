package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/gluco-guardian/internal/config"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/credentials"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/monitor"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/notify"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/providers"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/scheduler"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/storage"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/synclock"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "glucoguard",
	Short: "Gluco Guardian - glucose monitoring and care-network alerts",
	Long: `Gluco Guardian pulls glucose readings from Dexcom Share, the Dexcom OAuth API
and Nightscout sites, deduplicates them, evaluates alert rules and notifies
the owner's care network.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.glucoguard/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// app is the fully wired service graph shared by the commands.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *storage.SQLite
	fanout     *notify.FanOut
	alerts     *monitor.AlertManager
	tracker    *monitor.ReadingTracker
	share      *providers.ShareClient
	oauth      *providers.OAuthClient
	nightscout *providers.NightscoutClient
	registry   *providers.Registry
	scheduler  *scheduler.Scheduler
	redis      *redis.Client
}

// Close waits for in-flight pushes and releases connections.
func (a *app) Close() error {
	a.fanout.Wait()
	if a.redis != nil {
		a.redis.Close()
	}
	return a.store.Close()
}

// initNotifiers creates push channels from config.
func initNotifiers(cfg *config.Config) []alerts.Notifier {
	var notifiers []alerts.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alerts.NewSlackNotifier(
			cfg.Alerts.Slack.WebhookURL,
			cfg.Alerts.Slack.Channel,
		))
	}

	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(
			cfg.Alerts.Webhook.URL,
			cfg.Alerts.Webhook.Secret,
		))
	}

	return notifiers
}

// initLocker returns a Redis lock when an address is configured and an
// in-process lock otherwise.
func initLocker(cfg *config.Config) (synclock.Locker, *redis.Client) {
	if cfg.Lock.Redis.Addr == "" {
		return synclock.NewMemory(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Lock.Redis.Addr,
		Password: cfg.Lock.Redis.Password,
		DB:       cfg.Lock.Redis.DB,
	})
	return synclock.NewRedis(client, cfg.Lock.Redis.Prefix), client
}

// initApp wires storage, notification, monitoring, providers and the scheduler.
func initApp(cfg *config.Config) (*app, error) {
	logger := newLogger(cfg)

	store, err := storage.NewSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	// A missing secret only disables the Share provider.
	cipher, err := credentials.NewCipher(cfg.Credentials.Secret)
	if err != nil {
		logger.Warn("credential encryption unavailable", "error", err)
	}

	pusher := notify.NewFilteredPusher(store, logger, initNotifiers(cfg)...)
	fanout := notify.New(store, store, pusher, logger)
	alertMgr := monitor.NewAlertManager(store, fanout, logger)
	tracker := monitor.NewReadingTracker(store, alertMgr, logger)

	pc := cfg.Providers
	share := providers.NewShareClient(providers.ShareConfig{
		ApplicationID: pc.Share.ApplicationID,
		DefaultRegion: pc.Share.DefaultRegion,
		Timeout:       pc.Share.Timeout,
	}, store, cipher, tracker, logger)
	oauth := providers.NewOAuthClient(providers.OAuthConfig{
		BaseURL:           pc.OAuth.BaseURL,
		ClientID:          pc.OAuth.ClientID,
		ClientSecret:      pc.OAuth.ClientSecret,
		RedirectURI:       pc.OAuth.RedirectURI,
		RequestsPerMinute: pc.OAuth.RequestsPerMinute,
		Timeout:           pc.OAuth.Timeout,
	}, store, tracker, logger)
	nightscout := providers.NewNightscoutClient(providers.NightscoutConfig{
		MaxEntries: pc.Nightscout.MaxEntries,
		Timeout:    pc.Nightscout.Timeout,
	}, store, tracker, logger)

	registry := providers.NewRegistry()
	for _, p := range []providers.Provider{share, oauth, nightscout} {
		if err := registry.Register(p); err != nil {
			store.Close()
			return nil, err
		}
	}

	locker, redisClient := initLocker(cfg)
	sched, err := scheduler.New(scheduler.Config{
		PollInterval:  cfg.Scheduler.PollInterval,
		Concurrency:   cfg.Scheduler.Concurrency,
		SummaryAt:     cfg.Scheduler.SummaryAt,
		RetentionAt:   cfg.Scheduler.RetentionAt,
		RetentionDays: cfg.Storage.RetentionDays,
		LockTTL:       cfg.Lock.TTL,
	}, registry, store, locker, logger)
	if err != nil {
		store.Close()
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, err
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		fanout:     fanout,
		alerts:     alertMgr,
		tracker:    tracker,
		share:      share,
		oauth:      oauth,
		nightscout: nightscout,
		registry:   registry,
		scheduler:  sched,
		redis:      redisClient,
	}, nil
}

// setup loads config and wires the app in one step.
func setup() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return initApp(cfg)
}
