package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/shaharia-lab/pushcast/internal/api"
	"github.com/shaharia-lab/pushcast/internal/build"
	"github.com/shaharia-lab/pushcast/internal/config"
	"github.com/shaharia-lab/pushcast/internal/logger"
	"github.com/shaharia-lab/pushcast/internal/media"
	"github.com/shaharia-lab/pushcast/internal/notification"
	"github.com/shaharia-lab/pushcast/internal/push"
	"github.com/shaharia-lab/pushcast/internal/sanitize"
	"github.com/shaharia-lab/pushcast/internal/scheduler"
	"github.com/shaharia-lab/pushcast/internal/server"
	"github.com/shaharia-lab/pushcast/internal/service"
	"github.com/shaharia-lab/pushcast/internal/storage"
)

const reminderTimeout = 2 * time.Minute

// NewServeCmd returns the "serve" subcommand that starts the HTTP server.
func NewServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the push notification API server",
		Long: `Start the pushcast HTTP server. Clients register push subscriptions on
/subscribe and operators send notifications on /send-notification.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// CLI flags override env config.
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			logFile := "stderr"
			if !cfg.LogStderr {
				logFile = filepath.Join(cfg.LogDir(), "system.log")
			}
			printBanner(cmd.OutOrStdout(), build.Version, cfg.Port, logFile)

			if err := runServe(cfg); err != nil {
				return fmt.Errorf("%w (logs: %s)", err, logFile)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 3000, "HTTP server port (overrides PORT env var)")
	return cmd
}

func runServe(cfg *config.AppConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sysLogger, logCloser, err := newSystemLogger(cfg)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	sysLogger.Info("pushcast starting",
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
		slog.String("store", cfg.StoreDriver),
		slog.String("version", build.Version),
		slog.String("commit", build.CommitSHA),
		slog.String("build_date", build.BuildDate),
	)

	stores, err := openStores(ctx, cfg, sysLogger)
	if err != nil {
		return err
	}
	defer stores.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sched, err := scheduler.New(sysLogger, scheduler.WithLocation(cfg.Location()))
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			sysLogger.Warn("scheduler shutdown failed", "error", err)
		}
	}()

	transport, err := push.NewWebPush(push.VAPIDConfig{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subject:    cfg.VAPIDSubject,
	})
	if err != nil {
		return fmt.Errorf("configuring web push (run \"pushcast vapid\" to generate keys): %w", err)
	}

	mediaStore, err := openMediaStore(ctx, cfg, sysLogger)
	if err != nil {
		return err
	}

	cleaner := sanitize.NewWordFilter(nil, cfg.ProfanityWords...)
	subscriptionSvc := service.NewSubscriptionService(stores.subscriptions, cleaner, sysLogger)

	engine, err := notification.NewEngine(notification.Config{
		Recipients:      subscriptionSvc,
		Transport:       transport,
		Cleaner:         cleaner,
		Media:           mediaStore,
		Deferrer:        sched,
		Metrics:         notification.NewMetrics(reg),
		Logger:          sysLogger,
		PurgeDelay:      cfg.MediaPurgeDelay,
		TTL:             cfg.PushTTL,
		DeliveryTimeout: cfg.PushTimeout,
		MaxConcurrency:  cfg.PushMaxConcurrency,
		Limiter:         newDeliveryLimiter(cfg.PushRatePerSec),
	})
	if err != nil {
		return fmt.Errorf("creating notification engine: %w", err)
	}

	notificationSvc := service.NewNotificationService(engine, service.NotificationConfig{
		TriggerSecret:  cfg.TriggerSecret,
		TriggerTitle:   cfg.TriggerTitle,
		TriggerBody:    cfg.TriggerBody,
		VAPIDPublicKey: cfg.VAPIDPublicKey,
	}, sysLogger)
	responseSvc := service.NewResponseService(stores.responses, reg, sysLogger)

	if cfg.TriggerSecret == "" {
		sysLogger.Warn("TRIGGER_SECRET is not set, /trigger-push is disabled")
	}
	if cfg.TriggerCron != "" {
		err := sched.Cron("reminder", cfg.TriggerCron, func() {
			rctx, rcancel := context.WithTimeout(context.Background(), reminderTimeout)
			defer rcancel()
			if _, err := notificationSvc.Reminder(rctx); err != nil {
				sysLogger.Error("scheduled reminder failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("scheduling reminder %q: %w", cfg.TriggerCron, err)
		}
		sysLogger.Info("scheduled reminder enabled", "cron", cfg.TriggerCron, "timezone", cfg.TriggerTimezone)
	}

	apiSrv := api.New(subscriptionSvc, notificationSvc, responseSvc, sysLogger,
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)
	srv := server.New(apiSrv, cfg.Port, sysLogger,
		server.WithCORSOrigins(cfg.CORSOrigins),
		server.WithMetrics(reg),
	)

	sysLogger.Info("server ready", "url", fmt.Sprintf("http://localhost:%d", cfg.Port))
	return srv.Run(ctx)
}

func newSystemLogger(cfg *config.AppConfig) (*slog.Logger, io.Closer, error) {
	if cfg.LogStderr {
		return logger.New(os.Stderr, cfg.SlogLevel()), nopCloser{}, nil
	}
	return logger.NewSystemLogger(cfg.LogDir(), cfg.SlogLevel())
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// storeSet is the subscription and response stores for the configured driver.
type storeSet struct {
	subscriptions storage.SubscriptionStore
	responses     storage.ResponseStore
	close         func()
}

func openStores(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*storeSet, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory store, subscriptions are lost on restart")
		m := storage.NewMemoryStore()
		return &storeSet{subscriptions: m, responses: m, close: func() {}}, nil

	case config.StoreDriverPostgres:
		pool, err := storage.NewPostgresPool(ctx, storage.PostgresConfig{
			URL:           cfg.DatabaseURL,
			RetryAttempts: 5,
			RetryInterval: 2 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		pg := storage.NewPostgresStore(pool)
		return &storeSet{subscriptions: pg, responses: pg, close: pool.Close}, nil

	default:
		db, fresh, err := storage.NewSQLiteDB(cfg.DBPath())
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		if fresh {
			log.Info("created new database", "path", cfg.DBPath())
		}
		return &storeSet{
			subscriptions: storage.NewSQLiteSubscriptionStore(db),
			responses:     storage.NewSQLiteResponseStore(db),
			close: func() {
				if err := db.Close(); err != nil {
					log.Warn("closing database failed", "error", err)
				}
			},
		}, nil
	}
}

// openMediaStore returns nil when no bucket is configured; images are then
// dropped from notifications.
func openMediaStore(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (media.Store, error) {
	if !cfg.MediaEnabled() {
		log.Info("MEDIA_BUCKET is not set, image attachments are disabled")
		return nil, nil
	}
	store, err := media.NewS3Store(ctx, media.S3Config{
		Bucket:         cfg.MediaBucket,
		Region:         cfg.MediaRegion,
		AccessKeyID:    cfg.MediaAccessKeyID,
		SecretKey:      cfg.MediaSecretAccessKey,
		Endpoint:       cfg.MediaEndpoint,
		PublicURL:      cfg.MediaPublicURL,
		ForcePathStyle: cfg.MediaEndpoint != "",
	}, media.WithUploadTimeout(cfg.MediaUploadTimeout))
	if err != nil {
		if errors.Is(err, media.ErrInvalidConfig) {
			return nil, fmt.Errorf("invalid media configuration: %w", err)
		}
		return nil, fmt.Errorf("creating media store: %w", err)
	}
	return store, nil
}

// newDeliveryLimiter returns nil for a non-positive rate.
func newDeliveryLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSec), max(1, int(math.Ceil(perSec))))
}

// printBanner writes the startup banner. All structured logs go to the log
// file or stderr instead.
func printBanner(w io.Writer, version string, port int, logFile string) {
	fmt.Fprintf(w, "pushcast %s listening on http://localhost:%d\n", version, port)
	fmt.Fprintf(w, "Logs: %s\n\n", logFile)
}
