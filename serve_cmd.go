package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/civichero/civichero/internal/audit"
	"github.com/civichero/civichero/internal/otp"
	"github.com/civichero/civichero/internal/server"
	"github.com/civichero/civichero/internal/sms"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const auditPruneInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the phone verification service",
	Long: paragraph(fmt.Sprintf(
		"\nServe %s and %s. Codes are sent by SMS through Twilio when TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_PHONE_NUMBER are set.",
		keyword("POST /otp/send"), keyword("POST /otp/verify"),
	)),
	Example: paragraph("civichero serve\ncivichero serve --addr :9000 --store redis --redis-url redis://localhost:6379/0"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		watchLogLevel()
		return runServe(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", cfg.Server.Addr, "address to listen on")
	serveCmd.Flags().String("env", cfg.Server.Environment, `environment; "production" never echoes codes`)
	serveCmd.Flags().String("store", cfg.OTP.Store, "code store: memory or redis")
	serveCmd.Flags().String("redis-url", "", "redis URL for the redis store")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.environment", serveCmd.Flags().Lookup("env"))
	_ = viper.BindPFlag("otp.store", serveCmd.Flags().Lookup("store"))
	_ = viper.BindPFlag("otp.redis_url", serveCmd.Flags().Lookup("redis-url"))
}

func runServe(ctx context.Context) error {
	logger := log.Default()

	store, err := otp.NewStore(ctx, otp.StoreType(cfg.OTP.Store), cfg.OTP.RedisURL)
	if err != nil {
		return fmt.Errorf("unable to open %s code store: %w", cfg.OTP.Store, err)
	}
	defer store.Close() //nolint:errcheck

	trail, err := audit.Open(ctx, cfg.Audit.Path, logger)
	if err != nil {
		return fmt.Errorf("unable to open audit trail: %w", err)
	}
	defer trail.Close() //nolint:errcheck
	go pruneAudit(ctx, trail, cfg.Audit.Retention.Std())

	registry := otp.NewRegistry(store,
		otp.WithTTL(cfg.OTP.TTL.Std()),
		otp.WithLogger(logger),
	)

	srv := server.New(server.Config{
		Addr:        cfg.Server.Addr,
		Environment: cfg.Server.Environment,
	}, registry, newSender(logger), trail, logger)

	logger.Info("Serving",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"store", cfg.OTP.Store,
		"audit", trail.Enabled(),
	)
	return srv.ListenAndServe(ctx)
}

// newSender picks Twilio when it is configured and the logging sender
// otherwise.
func newSender(logger *log.Logger) sms.Sender {
	twilio, err := sms.ConfigFromEnv()
	if err != nil {
		logger.Warn("Could not read Twilio settings", "err", err)
	}
	if err == nil && twilio.Configured() {
		return sms.NewTwilioSender(twilio, sms.WithSenderLogger(logger))
	}
	logger.Warn("Twilio is not configured, codes will not be delivered by SMS")
	return sms.NewLogSender(logger)
}

func pruneAudit(ctx context.Context, trail *audit.Store, retention time.Duration) {
	if !trail.Enabled() || retention <= 0 {
		return
	}
	ticker := time.NewTicker(auditPruneInterval)
	defer ticker.Stop()

	for {
		if n, err := trail.Prune(ctx, retention); err != nil {
			log.Warn("Could not prune audit trail", "err", err)
		} else if n > 0 {
			log.Debug("Pruned audit trail", "events", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// watchLogLevel applies log level changes from the config file while the
// service runs.
func watchLogLevel() {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level := viper.GetString("log.level")
		if err := applyLogLevel(level); err != nil {
			log.Warn("Ignoring config change", "file", e.Name, "err", err)
			return
		}
		log.Info("Reloaded log level", "file", e.Name, "level", level)
	})
	viper.WatchConfig()
}
