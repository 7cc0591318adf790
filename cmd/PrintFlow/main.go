package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BTreeMap/PrintFlow/internal/api"
	"github.com/BTreeMap/PrintFlow/internal/flow"
	"github.com/BTreeMap/PrintFlow/internal/lockfile"
	"github.com/BTreeMap/PrintFlow/internal/messaging"
	"github.com/BTreeMap/PrintFlow/internal/notify"
	"github.com/BTreeMap/PrintFlow/internal/scheduler"
	"github.com/BTreeMap/PrintFlow/internal/store"
	"github.com/BTreeMap/PrintFlow/internal/twilioalert"
	"github.com/BTreeMap/PrintFlow/internal/util"
	"github.com/BTreeMap/PrintFlow/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for PrintFlow state data
	DefaultStateDir = "/var/lib/printflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "printflow.db"
	// DefaultBusinessName is used in customer-facing chat text
	DefaultBusinessName = "PrintFlow"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	if err := run(config, flags); err != nil {
		slog.Error("PrintFlow failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("PrintFlow exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir       string
	DatabaseURL    string
	WhatsAppDSN    string
	APIAddr        string
	OwnerContact   string
	BusinessName   string
	DigestCron     string
	SessionTimeout time.Duration
	ChatEnabled    bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput     *string
	numeric      *bool
	stateDir     *string
	dbDSN        *string
	apiAddr      *string
	ownerContact *string
	digestCron   *string
}

// initializeLogger sets up structured logging
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("PRINTFLOW_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:       os.Getenv("PRINTFLOW_STATE_DIR"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		WhatsAppDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		APIAddr:        os.Getenv("PRINTFLOW_API_ADDR"),
		OwnerContact:   os.Getenv("PRINTFLOW_OWNER_CONTACT"),
		BusinessName:   os.Getenv("PRINTFLOW_BUSINESS_NAME"),
		DigestCron:     os.Getenv("PRINTFLOW_DIGEST_CRON"),
		SessionTimeout: util.ParseDurationEnv("PRINTFLOW_SESSION_TIMEOUT", flow.DefaultSessionTimeout),
		ChatEnabled:    util.ParseBoolEnv("PRINTFLOW_CHAT_ENABLED", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No PRINTFLOW_STATE_DIR set, using default", "stateDir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL set, defaulting to SQLite", "path", config.DatabaseURL)
	}
	if config.BusinessName == "" {
		config.BusinessName = DefaultBusinessName
	}
	if config.DigestCron == "" {
		config.DigestCron = notify.DefaultDigestCron
	}

	slog.Debug("environment variables loaded",
		"PRINTFLOW_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"PRINTFLOW_API_ADDR", config.APIAddr,
		"PRINTFLOW_OWNER_CONTACT_SET", config.OwnerContact != "",
		"PRINTFLOW_CHAT_ENABLED", config.ChatEnabled,
		"sessionTimeout", config.SessionTimeout)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:     flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:      flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for PrintFlow data (overrides $PRINTFLOW_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN for the record store (overrides $DATABASE_URL)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $PRINTFLOW_API_ADDR)"),
		ownerContact: flag.String("owner-contact", config.OwnerContact, "contact receiving owner notifications (overrides $PRINTFLOW_OWNER_CONTACT)"),
		digestCron:   flag.String("digest-cron", config.DigestCron, "cron schedule for the daily intake digest (overrides $PRINTFLOW_DIGEST_CRON)"),
	}

	flag.Parse()

	// Follow the state directory when the DSN was defaulted from it.
	if *flags.dbDSN == config.DatabaseURL &&
		config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) &&
		*flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated db-dsn based on state directory", "stateDir", *flags.stateDir)
	}

	return flags
}

// openStore selects the store backend from the DSN.
func openStore(dsn string) (store.Store, store.OutboxRepo, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Info("Opening PostgreSQL record store")
		st, err := store.NewPostgresStore(store.WithDSN(dsn))
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	}
	slog.Info("Opening SQLite record store", "path", dsn)
	if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
		return nil, nil, err
	}
	st, err := store.NewSQLiteStore(store.WithDSN(dsn))
	if err != nil {
		return nil, nil, err
	}
	return st, st, nil
}

// buildAlertSender wires the Twilio client, or a mock when credentials
// are absent so the rest of the pipeline keeps working in development.
func buildAlertSender() notify.AlertSender {
	client, err := twilioalert.NewClient()
	if err != nil {
		slog.Warn("Twilio credentials not configured, using mock alert sender", "error", err)
		return twilioalert.NewMockClient()
	}
	return client
}

func run(config Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, outbox, err := openStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	alert := buildAlertSender()

	var notifier flow.Notifier
	if *flags.ownerContact != "" {
		notifier = notify.NewDispatcher(outbox, *flags.ownerContact)
	} else {
		slog.Warn("No owner contact configured, completions will not be announced")
	}

	engine := flow.NewEngine(st, notifier, flow.WithSessionTimeout(config.SessionTimeout))
	go engine.Run(ctx)

	if *flags.ownerContact != "" {
		sender := notify.NewSender(outbox, alert)
		if err := sender.RecoverStaleNotifications(); err != nil {
			slog.Error("Failed to recover stale notifications", "error", err)
		}
		go sender.Run(ctx)

		sched := scheduler.NewScheduler()
		defer sched.Stop()
		digest := notify.NewDigest(st, outbox, alert, *flags.ownerContact)
		if err := sched.AddJob(*flags.digestCron, func() {
			if err := digest.Send(ctx); err != nil {
				slog.Error("Daily digest failed", "error", err)
			}
		}); err != nil {
			return err
		}
	}

	if config.ChatEnabled {
		if err := startChat(ctx, config, flags, engine); err != nil {
			return err
		}
	} else {
		slog.Info("Chat intake disabled, serving HTTP API only")
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(engine, st, outbox, apiOpts...)
	return server.Run(ctx)
}

// startChat connects the WhatsApp client and starts the conversational
// intake loop.
func startChat(ctx context.Context, config Config, flags Flags, engine *flow.Engine) error {
	var waOpts []whatsapp.Option
	if config.WhatsAppDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(config.WhatsAppDSN))
	} else {
		waOpts = append(waOpts, whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, "whatsmeow.db")))
	}
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}

	client, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		return err
	}

	service := messaging.NewWhatsAppService(client)
	if err := service.Start(ctx); err != nil {
		return err
	}

	handler := messaging.NewResponseHandler(service, engine, config.BusinessName)
	go handler.Run(ctx)
	go func() {
		<-ctx.Done()
		service.Stop()
		client.Disconnect()
	}()

	slog.Info("Chat intake started", "business", config.BusinessName)
	return nil
}
