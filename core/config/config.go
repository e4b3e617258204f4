package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" toml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" toml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" toml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" toml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// DropPending discards updates queued while the bot was offline.
	DropPending bool `yaml:"drop_pending" toml:"drop_pending" envconfig:"TELEGRAM_DROP_PENDING"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" toml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" toml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" toml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" toml:"level"`
	Format      string `yaml:"format" toml:"format"`
	KeysOrder   string `yaml:"keys_order" toml:"keys_order"`
	DebugSample string `yaml:"debug_sample" toml:"debug_sample"`
	Dir         string `yaml:"dir" toml:"dir"`
	BotFile     string `yaml:"bot_file" toml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file" toml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" toml:"profile"`
}

// QuizConfig describes where quiz content lives and how long idle sessions survive.
type QuizConfig struct {
	ContentDir         string   `yaml:"content_dir" toml:"content_dir" envconfig:"QUIZ_CONTENT_DIR"`
	Levels             []string `yaml:"levels" toml:"levels" envconfig:"QUIZ_LEVELS"`
	SessionIdleMinutes int      `yaml:"session_idle_minutes" toml:"session_idle_minutes" envconfig:"QUIZ_SESSION_IDLE_MINUTES"`
	SweepIntervalSec   int      `yaml:"sweep_interval_seconds" toml:"sweep_interval_seconds" envconfig:"QUIZ_SWEEP_INTERVAL_SECONDS"`
}

// IdleTimeout returns the session idle timeout as a duration.
func (q QuizConfig) IdleTimeout() time.Duration {
	return time.Duration(q.SessionIdleMinutes) * time.Minute
}

// SweepInterval returns how often idle sessions are swept.
func (q QuizConfig) SweepInterval() time.Duration {
	return time.Duration(q.SweepIntervalSec) * time.Second
}

// PostgresConfig holds database connection settings for the postgres progress store.
type PostgresConfig struct {
	Host           string `yaml:"host" toml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" toml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" toml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" toml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" toml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" toml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" toml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// RedisConfig holds settings for the redis progress store.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" toml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" toml:"db" envconfig:"REDIS_DB"`
	Key      string `yaml:"key" toml:"key" envconfig:"REDIS_KEY"`
}

// StorageConfig selects and configures the progress store backend.
type StorageConfig struct {
	Driver   string         `yaml:"driver" toml:"driver" envconfig:"STORAGE_DRIVER"`
	Path     string         `yaml:"path" toml:"path" envconfig:"STORAGE_PATH"`
	Postgres PostgresConfig `yaml:"postgres" toml:"postgres"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

const (
	// StorageFile keeps the progress table in a JSON file.
	StorageFile = "file"
	// StorageSQLite keeps the progress table in an embedded SQLite database.
	StorageSQLite = "sqlite"
	// StoragePostgres keeps the progress table in PostgreSQL.
	StoragePostgres = "postgres"
	// StorageRedis keeps the progress table in a Redis hash.
	StorageRedis = "redis"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" toml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" toml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the whole bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram" toml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook" toml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Quiz      QuizConfig      `yaml:"quiz" toml:"quiz"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
}

// Load reads configuration from a YAML or TOML file and environment variables.
// The format is picked by file extension; anything but .toml is parsed as YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs validation of configuration fields and fills defaults.
// The Telegram token is checked separately by ValidateTelegram so offline
// commands can run without one.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook, RunModeLongpoll:
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	if cfg.Telegram.LongPollTimeoutSeconds < 0 {
		return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if err := normalizeQuiz(&cfg.Quiz); err != nil {
		return err
	}
	return normalizeStorage(&cfg.Storage)
}

// ValidateTelegram checks settings required to talk to the Bot API.
func ValidateTelegram(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Telegram.RunMode == RunModeWebhook {
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	}
	return nil
}

func normalizeQuiz(q *QuizConfig) error {
	if strings.TrimSpace(q.ContentDir) == "" {
		q.ContentDir = "content"
	}
	levels := make([]string, 0, len(q.Levels))
	seen := make(map[string]struct{}, len(q.Levels))
	for _, lvl := range q.Levels {
		lvl = strings.TrimSpace(lvl)
		if lvl == "" {
			continue
		}
		if strings.ContainsAny(lvl, `/\|`) {
			return fmt.Errorf("invalid quiz.levels value %q", lvl)
		}
		if _, dup := seen[lvl]; dup {
			continue
		}
		seen[lvl] = struct{}{}
		levels = append(levels, lvl)
	}
	if len(levels) == 0 {
		levels = []string{"A1", "A2", "B1", "B2"}
	}
	q.Levels = levels

	if q.SessionIdleMinutes < 0 {
		return fmt.Errorf("quiz.session_idle_minutes must be >= 0")
	}
	if q.SessionIdleMinutes == 0 {
		q.SessionIdleMinutes = 30
	}
	if q.SweepIntervalSec < 0 {
		return fmt.Errorf("quiz.sweep_interval_seconds must be >= 0")
	}
	if q.SweepIntervalSec == 0 {
		q.SweepIntervalSec = 60
	}
	return nil
}

func normalizeStorage(s *StorageConfig) error {
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	if driver == "" {
		driver = StorageFile
	}
	switch driver {
	case StorageFile:
		if strings.TrimSpace(s.Path) == "" {
			s.Path = filepath.Join("data", "user_stats.json")
		}
	case StorageSQLite:
		if strings.TrimSpace(s.Path) == "" {
			s.Path = filepath.Join("data", "quizbot.db")
		}
	case StoragePostgres:
		if strings.TrimSpace(s.Postgres.Host) == "" || strings.TrimSpace(s.Postgres.Name) == "" {
			return fmt.Errorf("storage.postgres.host and storage.postgres.name are required for the postgres driver")
		}
		if s.Postgres.Port == "" {
			s.Postgres.Port = "5432"
		}
		if s.Postgres.SSLMode == "" {
			s.Postgres.SSLMode = "disable"
		}
		if s.Postgres.MaxConnections <= 0 {
			s.Postgres.MaxConnections = 5
		}
	case StorageRedis:
		if strings.TrimSpace(s.Redis.Addr) == "" {
			s.Redis.Addr = "localhost:6379"
		}
		if strings.TrimSpace(s.Redis.Key) == "" {
			s.Redis.Key = "quizbot:stats"
		}
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: file, sqlite, postgres, redis", s.Driver)
	}
	s.Driver = driver
	return nil
}
