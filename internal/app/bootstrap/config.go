// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for BloodBridge.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, redis_url, etc.
//   - Environment variables: BLOODBRIDGE_MONGO_URI, BLOODBRIDGE_REDIS_URL, etc.
//   - Command-line flags: --mongo_uri, --redis_url, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "blood_bridge", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Real-time channel
	{Name: "redis_url", Default: "", Desc: "Redis URL for real-time pub/sub (blank disables the channel)"},

	// Email/SMTP configuration
	{Name: "mail_smtp_host", Default: "localhost", Desc: "SMTP server host"},
	{Name: "mail_smtp_port", Default: 1025, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@bloodbridge.org", Desc: "From email address"},
	{Name: "mail_from_name", Default: "BloodBridge", Desc: "From display name"},

	// Notification dispatcher
	{Name: "dispatch_workers", Default: 8, Desc: "Notification dispatcher worker count"},
	{Name: "dispatch_queue_size", Default: 1024, Desc: "Notification dispatcher queue capacity"},

	// Emergency expiry sweeper
	{Name: "sweep_interval", Default: "1m", Desc: "How often to close overdue emergency requests (e.g., 30s, 1m)"},

	// Daily submission limit window
	{Name: "quota_timezone", Default: "Local", Desc: "IANA timezone for the daily request limit window (e.g., Asia/Kolkata)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// It is called early in startup so that both WAFFLE and the app have
// access to configuration before any backends or handlers are built.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, BLOODBRIDGE_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "BLOODBRIDGE", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		RedisURL: appValues.String("redis_url"),

		// Email/SMTP
		MailSMTPHost: appValues.String("mail_smtp_host"),
		MailSMTPPort: appValues.Int("mail_smtp_port"),
		MailSMTPUser: appValues.String("mail_smtp_user"),
		MailSMTPPass: appValues.String("mail_smtp_pass"),
		MailFrom:     appValues.String("mail_from"),
		MailFromName: appValues.String("mail_from_name"),

		// Dispatcher
		DispatchWorkers:   appValues.Int("dispatch_workers"),
		DispatchQueueSize: appValues.Int("dispatch_queue_size"),

		// Sweeper
		SweepInterval: appValues.Duration("sweep_interval", time.Minute),

		// Quota window
		QuotaTimeZone: appValues.String("quota_timezone"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// BloodBridge validates the MongoDB URI format and the quota timezone to
// catch configuration errors early, before attempting to connect.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if _, err := time.LoadLocation(appCfg.QuotaTimeZone); err != nil {
		return fmt.Errorf("invalid quota_timezone %q: %w", appCfg.QuotaTimeZone, err)
	}

	if appCfg.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %s", appCfg.SweepInterval)
	}

	return nil
}
