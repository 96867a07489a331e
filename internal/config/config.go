// Package config loads runtime settings from the environment. A .env file
// in the working directory is read first when present.
package config

import (
	"errors"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")
	// ErrInvalidConfig is returned when parsed values fail validation.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config holds every tunable of the bot and its companion functions.
// Credentials are not here; see package secrets.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"json"`

	HashSalt        string        `env:"HASH_SALT" envDefault:"default-salt"`
	RateLimit       int           `env:"RATE_LIMIT" envDefault:"10"`
	RateWindow      time.Duration `env:"RATE_WINDOW" envDefault:"60s"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1m"`
	MessageTTL      time.Duration `env:"MESSAGE_TTL" envDefault:"5m"`
	MaxTextLen      int           `env:"MAX_TEXT_LEN" envDefault:"2000"`

	AdminChatIDs []int64 `env:"ADMIN_CHAT_IDS" envSeparator:","`
	AlertChatID  int64   `env:"ALERT_CHAT_ID"`

	TelegramAPIURL     string `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
	ExpectedWebhookURL string `env:"EXPECTED_WEBHOOK_URL"`

	MongoURL      string `env:"MONGODB_URL"`
	MongoDatabase string `env:"MONGODB_DATABASE" envDefault:"dirty_launderer"`
	RedisURL      string `env:"REDIS_URL"`

	ProxiesFile          string `env:"PROXIES_FILE" envDefault:"proxies_validated.json"`
	GitHubProxyJSONURL   string `env:"GITHUB_PROXY_JSON_URL"`
	BucketName           string `env:"BUCKET_NAME"`
	BucketDestPath       string `env:"BUCKET_DEST_PATH" envDefault:"proxies.json"`
	BucketEndpoint       string `env:"BUCKET_ENDPOINT"`
	BucketRegion         string `env:"BUCKET_REGION" envDefault:"auto"`
	PendingDeletionsFile string `env:"PENDING_DELETIONS_FILE"`
}

var dotenvOnce sync.Once

// Load reads the configuration from the environment.
func Load() (Config, error) {
	dotenvOnce.Do(func() {
		// A missing .env file is normal outside development.
		_ = godotenv.Load()
	})

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, errors.Join(ErrInvalidConfig, err)
	}
	return cfg, nil
}

// IsAdmin reports whether chatID may run admin commands.
func (c Config) IsAdmin(chatID int64) bool {
	for _, id := range c.AdminChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

func (c Config) validate() error {
	var errs []error
	if c.RateLimit <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT must be positive"))
	}
	if c.RateWindow <= 0 {
		errs = append(errs, errors.New("RATE_WINDOW must be positive"))
	}
	if c.MaxTextLen <= 0 {
		errs = append(errs, errors.New("MAX_TEXT_LEN must be positive"))
	}
	if c.MessageTTL < 0 {
		errs = append(errs, errors.New("MESSAGE_TTL must not be negative"))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, errors.New("LOG_FORMAT must be json or text"))
	}
	return errors.Join(errs...)
}
