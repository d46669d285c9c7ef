// Package config loads and validates tgbridge configuration from an optional
// YAML file, an optional .env file and TGBRIDGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. TGBRIDGE_PYRUS_LOGIN.
const EnvPrefix = "TGBRIDGE"

// Config is the complete application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Pyrus      PyrusConfig      `mapstructure:"pyrus"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Files      FilesConfig      `mapstructure:"files"`
	MediaGroup MediaGroupConfig `mapstructure:"media_group"`
	Forms      FormsConfig      `mapstructure:"forms"`
	Database   DatabaseConfig   `mapstructure:"database"`
	State      StateConfig      `mapstructure:"state"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Messages   MessagesConfig   `mapstructure:"messages"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

type TelegramConfig struct {
	Token          string        `mapstructure:"token"           validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=1s"`
}

type PyrusConfig struct {
	BaseURL        string        `mapstructure:"base_url"        validate:"required,url"`
	FilesURL       string        `mapstructure:"files_url"       validate:"required,url"`
	Login          string        `mapstructure:"login"           validate:"required"`
	SecurityKey    string        `mapstructure:"security_key"    validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=1s"`
	Retry          RetryConfig   `mapstructure:"retry"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
}

type RetryConfig struct {
	Attempts     uint          `mapstructure:"attempts"      validate:"min=1,max=10"`
	InitialDelay time.Duration `mapstructure:"initial_delay" validate:"min=0"`
	MaxDelay     time.Duration `mapstructure:"max_delay"     validate:"gtefield=InitialDelay"`
}

// BreakerConfig sets when Pyrus calls stop being attempted. MaxFailures 0 disables the breaker.
type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures" validate:"max=100"`
	OpenTimeout time.Duration `mapstructure:"open_timeout" validate:"min=0"`
}

type WebhookConfig struct {
	Addr                string `mapstructure:"addr"                 validate:"required"`
	Path                string `mapstructure:"path"                 validate:"required,startswith=/"`
	UserAgentPrefix     string `mapstructure:"user_agent_prefix"    validate:"required"`
	QueueSize           int    `mapstructure:"queue_size"           validate:"min=1"`
	MaxBodyBytes        int64  `mapstructure:"max_body_bytes"       validate:"min=1"`
	DownloadConcurrency int    `mapstructure:"download_concurrency" validate:"min=1,max=200"`
	DumpPath            string `mapstructure:"dump_path"`
}

type FilesConfig struct {
	MaxSize int64 `mapstructure:"max_size" validate:"gt=0"`
}

type MediaGroupConfig struct {
	Window time.Duration `mapstructure:"window" validate:"min=100ms,max=1m"`
}

type FormsConfig struct {
	Client FormConfig `mapstructure:"client"`
	Appeal FormConfig `mapstructure:"appeal"`
}

// FormConfig maps logical fields to the field ids of one Pyrus form.
type FormConfig struct {
	ID     int        `mapstructure:"id"     validate:"gt=0"`
	Fields FormFields `mapstructure:"fields"`
}

type FormFields struct {
	FullName  int `mapstructure:"full_name"  validate:"gt=0"`
	Telephone int `mapstructure:"telephone"  validate:"gt=0"`
	TgAccount int `mapstructure:"tg_account" validate:"gt=0"`
	TgID      int `mapstructure:"tg_id"      validate:"gt=0"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type StateConfig struct {
	Backend string        `mapstructure:"backend" validate:"oneof=sqlite valkey"`
	TTL     time.Duration `mapstructure:"ttl"     validate:"min=1m"`
	Valkey  ValkeyConfig  `mapstructure:"valkey"`
}

type ValkeyConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"         validate:"min=0"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// MessagesConfig holds every user-facing string.
type MessagesConfig struct {
	Welcome            string `mapstructure:"welcome"             validate:"required"`
	NotRegistered      string `mapstructure:"not_registered"      validate:"required"`
	RegisterButton     string `mapstructure:"register_button"     validate:"required"`
	AskFullName        string `mapstructure:"ask_full_name"       validate:"required"`
	AskFullNameRetry   string `mapstructure:"ask_full_name_retry" validate:"required"`
	AskTelephone       string `mapstructure:"ask_telephone"       validate:"required"`
	AskTelephoneRetry  string `mapstructure:"ask_telephone_retry" validate:"required"`
	RegistrationThanks string `mapstructure:"registration_thanks" validate:"required"`
	RegistrationError  string `mapstructure:"registration_error"  validate:"required"`
	AppealError        string `mapstructure:"appeal_error"        validate:"required"`
	GeneralError       string `mapstructure:"general_error"       validate:"required"`
	FileError          string `mapstructure:"file_error"          validate:"required"`
	FileTooLarge       string `mapstructure:"file_too_large"      validate:"required"`
	ChatOpened         string `mapstructure:"chat_opened"         validate:"required"`
	DefaultFullName    string `mapstructure:"default_full_name"   validate:"required"`
	DefaultUnknown     string `mapstructure:"default_unknown"     validate:"required"`
}

// LoadConfig reads configPath (missing file is fine), .env and the environment,
// then validates the result.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
			slog.Info("Configuration file not found, using defaults and environment", "path", configPath)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("Configuration loaded",
		"pyrus_base_url", cfg.Pyrus.BaseURL,
		"webhook_addr", cfg.Webhook.Addr,
		"state_backend", cfg.State.Backend,
		"client_form", cfg.Forms.Client.ID,
		"appeal_form", cfg.Forms.Appeal.ID)
	return cfg, nil
}

// Validate checks struct constraints and the rules that span fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.State.Backend == "valkey" && c.State.Valkey.Addr == "" {
		return fmt.Errorf("invalid configuration: state.valkey.addr is required when state.backend is valkey")
	}
	for name, task := range c.Scheduler.Tasks {
		if task.Enabled && task.Schedule == "" {
			return fmt.Errorf("invalid configuration: scheduler task %q is enabled without a schedule", name)
		}
	}
	return nil
}
