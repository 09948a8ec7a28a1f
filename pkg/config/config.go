package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"

	defaultMongoDatabase = "telegram_bot"
)

type Config struct {
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Completion   CompletionConfig   `mapstructure:"completion"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Media        MediaConfig        `mapstructure:"media"`
	Events       EventsConfig       `mapstructure:"events"`
	Log          LogConfig          `mapstructure:"log"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
	// WebhookURL is the public base URL; the webhook path is appended to it.
	WebhookURL      string        `mapstructure:"webhook_url"`
	APITimeout      time.Duration `mapstructure:"api_timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	Driver        string `mapstructure:"driver"`
	URL           string `mapstructure:"url"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	DBName        string `mapstructure:"dbname"`
	SSLMode       string `mapstructure:"sslmode"`
	MongoDatabase string `mapstructure:"mongo_database"`
}

type CompletionConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	VisionModel  string        `mapstructure:"vision_model"`
	ProviderName string        `mapstructure:"provider_name"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float64       `mapstructure:"temperature"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type ConversationConfig struct {
	HistoryLimit    int `mapstructure:"history_limit"`
	ContextMessages int `mapstructure:"context_messages"`
}

type MediaConfig struct {
	MaxDocumentBytes int64  `mapstructure:"max_document_bytes"`
	TextCharBudget   int    `mapstructure:"text_char_budget"`
	TempDir          string `mapstructure:"temp_dir"`
}

type EventsConfig struct {
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// envBindings lists the environment variables read for each key, in
// precedence order.
var envBindings = map[string][]string{
	"telegram.token":       {"TELEGRAM_BOT_TOKEN", "TELEGRAM_TOKEN"},
	"telegram.webhook_url": {"TELEGRAM_WEBHOOK_URL", "RENDER_EXTERNAL_URL"},
	"server.port":          {"PORT"},
	"database.url":         {"DATABASE_URL"},
	"completion.api_key":   {"OPENAI_API_KEY", "GEMINI_API_KEY"},
	"completion.base_url":  {"COMPLETION_BASE_URL"},
	"events.nats_url":      {"NATS_URL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.api_timeout", 10*time.Second)
	v.SetDefault("telegram.download_timeout", 30*time.Second)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("completion.base_url", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("completion.model", "gemini-2.5-flash")
	v.SetDefault("completion.vision_model", "gemini-2.5-pro")
	v.SetDefault("completion.provider_name", "Google Gemini AI")
	v.SetDefault("completion.max_tokens", 1024)
	v.SetDefault("completion.temperature", 0.7)
	v.SetDefault("completion.timeout", 60*time.Second)
	v.SetDefault("conversation.history_limit", 20)
	v.SetDefault("conversation.context_messages", 10)
	v.SetDefault("media.max_document_bytes", 20*1024*1024)
	v.SetDefault("media.text_char_budget", 4000)
	v.SetDefault("events.subject", "chatgateway.exchanges")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig reads the YAML file at path, if it exists, then applies
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv would read TELEGRAM_TOKEN for telegram.token ahead of any
	// bound name, so the listed names are resolved here and set as overrides.
	for key, envs := range envBindings {
		if val, ok := lookupEnv(envs); ok {
			v.Set(key, val)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := config.Database.resolve(); err != nil {
		return nil, err
	}
	return &config, nil
}

// lookupEnv returns the first non-empty variable among names.
func lookupEnv(names []string) (string, bool) {
	for _, name := range names {
		if val := os.Getenv(name); val != "" {
			return val, true
		}
	}
	return "", false
}

// resolve picks the driver from the DATABASE_URL scheme when none is set and
// fills the individual fields from the URL.
func (c *DatabaseConfig) resolve() error {
	if c.URL == "" {
		if c.Driver == "" {
			c.Driver = DriverMemory
		}
		return nil
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if c.Driver == "" {
		switch scheme {
		case "mongodb", "mongodb+srv":
			c.Driver = DriverMongo
		case "postgres", "postgresql":
			c.Driver = DriverPostgres
		default:
			return fmt.Errorf("unsupported DATABASE_URL scheme %q", u.Scheme)
		}
	}

	switch c.Driver {
	case DriverMongo:
		if c.MongoDatabase == "" {
			c.MongoDatabase = strings.TrimPrefix(u.Path, "/")
		}
		if c.MongoDatabase == "" {
			c.MongoDatabase = defaultMongoDatabase
		}
	case DriverPostgres:
		parsePostgresURL(c, u)
	}
	return nil
}

func parsePostgresURL(c *DatabaseConfig, u *url.URL) {
	if host := u.Hostname(); host != "" {
		c.Host = host
	}
	if port, err := strconv.Atoi(u.Port()); err == nil {
		c.Port = port
	}
	if u.User != nil {
		c.User = u.User.Username()
		if password, ok := u.User.Password(); ok {
			c.Password = password
		}
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		c.DBName = name
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.SSLMode = mode
	}
}

// Validate reports every missing or inconsistent value at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN environment variable is required"))
	}
	if c.Completion.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY or GEMINI_API_KEY environment variable is required"))
	}
	switch c.Database.Driver {
	case DriverMemory, DriverMongo:
	case DriverPostgres:
		if c.Database.URL == "" && c.Database.DBName == "" {
			errs = append(errs, errors.New("database.dbname is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Database.Driver == DriverMongo && c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for mongo"))
	}
	if c.Media.MaxDocumentBytes <= 0 {
		errs = append(errs, errors.New("media.max_document_bytes must be positive"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %w", errors.Join(errs...))
	}
	return nil
}

// WebhookURL joins the public base URL with path. It returns "" when no base
// URL is configured.
func (c *Config) WebhookURL(path string) string {
	if c.Telegram.WebhookURL == "" {
		return ""
	}
	return strings.TrimRight(c.Telegram.WebhookURL, "/") + path
}
