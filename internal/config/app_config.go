package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store drivers accepted in STORE_DRIVER.
const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// AppConfig holds all application-level configuration loaded from environment variables.
type AppConfig struct {
	// Port is the HTTP server port. Defaults to 3000.
	Port int `envconfig:"PORT" default:"3000"`

	// DataDir is the root data directory. Defaults to ~/.pushcast.
	DataDir string `envconfig:"PUSHCAST_DATA_DIR"`

	// LogLevel sets the minimum log level (debug, info, warn, error). Defaults to info.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// LogStderr writes logs to stderr instead of <DataDir>/logs/system.log.
	LogStderr bool `envconfig:"PUSHCAST_LOG_STDERR" default:"false"`

	// VAPID key pair and contact subject used to sign push requests.
	VAPIDPublicKey  string `envconfig:"PUBLIC_VAPID_KEY"`
	VAPIDPrivateKey string `envconfig:"PRIVATE_VAPID_KEY"`
	VAPIDSubject    string `envconfig:"VAPID_SUBJECT" default:"mailto:admin@example.com"`

	// StoreDriver selects the subscription store: sqlite, postgres or memory.
	StoreDriver string `envconfig:"STORE_DRIVER" default:"sqlite"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// TriggerSecret gates /trigger-push. Empty disables the endpoint.
	TriggerSecret string `envconfig:"TRIGGER_SECRET"`
	// TriggerCron schedules the reminder broadcast in-process, e.g. "20 15 * * 1-5".
	TriggerCron     string `envconfig:"TRIGGER_CRON"`
	TriggerTimezone string `envconfig:"TRIGGER_TIMEZONE" default:"UTC"`
	TriggerTitle    string `envconfig:"TRIGGER_TITLE"`
	TriggerBody     string `envconfig:"TRIGGER_BODY"`

	// Media storage for image attachments. Images are dropped when MediaBucket is empty.
	MediaBucket          string        `envconfig:"MEDIA_BUCKET"`
	MediaRegion          string        `envconfig:"MEDIA_REGION" default:"us-east-1"`
	MediaEndpoint        string        `envconfig:"MEDIA_ENDPOINT"`
	MediaAccessKeyID     string        `envconfig:"MEDIA_ACCESS_KEY_ID"`
	MediaSecretAccessKey string        `envconfig:"MEDIA_SECRET_ACCESS_KEY"`
	MediaPublicURL       string        `envconfig:"MEDIA_PUBLIC_URL"`
	MediaPurgeDelay      time.Duration `envconfig:"MEDIA_PURGE_DELAY" default:"5m"`
	MediaUploadTimeout   time.Duration `envconfig:"MEDIA_UPLOAD_TIMEOUT" default:"30s"`

	// Push delivery tuning.
	PushTTL     time.Duration `envconfig:"PUSH_TTL" default:"60s"`
	PushTimeout time.Duration `envconfig:"PUSH_TIMEOUT" default:"15s"`
	// PushMaxConcurrency caps in-flight deliveries per send. Zero fans out to
	// every recipient at once.
	PushMaxConcurrency int `envconfig:"PUSH_MAX_CONCURRENCY" default:"0"`
	// PushRatePerSec paces deliveries. Zero disables pacing.
	PushRatePerSec float64 `envconfig:"PUSH_RATE_PER_SEC" default:"0"`

	// ProfanityWords extends the built-in profanity list.
	ProfanityWords []string `envconfig:"PROFANITY_WORDS"`

	// CORSOrigins lists allowed origins. Empty allows any origin.
	CORSOrigins []string `envconfig:"CORS_ORIGINS"`

	// MaxBodyBytes caps JSON request bodies, including base64 images.
	MaxBodyBytes int64 `envconfig:"MAX_BODY_BYTES" default:"8388608"`
}

// LoadDotEnv loads variables from path into the environment when the file
// exists. Variables already set are not overridden.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads AppConfig from environment variables using envconfig.
// DataDir defaults to ~/.pushcast if not set.
func Load() (*AppConfig, error) {
	var c AppConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".pushcast")
	}
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values that envconfig cannot.
func (c *AppConfig) Validate() error {
	switch c.StoreDriver {
	case StoreDriverSQLite, StoreDriverMemory:
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.PushMaxConcurrency < 0 {
		return fmt.Errorf("PUSH_MAX_CONCURRENCY must not be negative, got %d", c.PushMaxConcurrency)
	}
	if c.PushRatePerSec < 0 {
		return fmt.Errorf("PUSH_RATE_PER_SEC must not be negative, got %v", c.PushRatePerSec)
	}
	if _, err := time.LoadLocation(c.TriggerTimezone); err != nil {
		return fmt.Errorf("invalid TRIGGER_TIMEZONE %q: %w", c.TriggerTimezone, err)
	}
	return nil
}

// SlogLevel converts the LogLevel string to a slog.Level.
// Unknown values default to slog.LevelInfo.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogDir returns the path to the log directory (~/.pushcast/logs).
func (c *AppConfig) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// DBPath returns the path to the SQLite database file.
func (c *AppConfig) DBPath() string {
	return filepath.Join(c.DataDir, "pushcast.db")
}

// MediaEnabled reports whether image attachments can be stored.
func (c *AppConfig) MediaEnabled() bool {
	return c.MediaBucket != ""
}

// Location returns the time zone for the scheduled reminder.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TriggerTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
