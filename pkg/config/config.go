// Package config loads the configuration surface enumerated in spec.md
// §6 from a YAML file, environment variables, and an optional .env file,
// following the teacher pack's viper+godotenv convention (grounded on
// 88lin-divinesense's cmd/divinesense/main.go).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nicdavidson/homestead/pkg/modeltags"
)

// ModelBinding is the on-disk shape of one model-tag binding, decoded
// from the `model_tags` config section.
type ModelBinding struct {
	Tag             string `mapstructure:"tag"`
	Backend         string `mapstructure:"backend"`
	BackendModelRef string `mapstructure:"backend_model_ref"`
}

// Config is the fully-resolved configuration surface spec.md §6
// enumerates.
type Config struct {
	// Paths.
	DataRoot     string `mapstructure:"data_root"`
	AgentRoot    string `mapstructure:"agent_root"`
	NotesRoot    string `mapstructure:"notes_root"`
	DatabasePath string `mapstructure:"database_path"`

	// Allow-list.
	AllowedChatIDs []int64 `mapstructure:"allowed_chat_ids"`

	// Timeouts and windows.
	TurnTimeoutSeconds        int `mapstructure:"turn_timeout_seconds"`
	JobActionTimeoutSeconds   int `mapstructure:"job_action_timeout_seconds"`
	OutboxPollIntervalSeconds int `mapstructure:"outbox_poll_interval_seconds"`
	SessionInactivityHours    int `mapstructure:"session_inactivity_hours"`
	TurnQueueCapacity         int `mapstructure:"turn_queue_capacity"`

	// Model tags.
	ModelTags       []ModelBinding `mapstructure:"model_tags"`
	DefaultModelTag string         `mapstructure:"default_model_tag"`

	// Backend credentials.
	SubprocessBinary string   `mapstructure:"subprocess_binary"`
	SubprocessArgs   []string `mapstructure:"subprocess_args"`
	HTTPBaseURL      string   `mapstructure:"http_base_url"`
	HTTPAPIKey       string   `mapstructure:"http_api_key"`
	HTTPSystemPrompt string   `mapstructure:"http_system_prompt"`

	// Telegram.
	TelegramToken string `mapstructure:"telegram_token"`

	// Logging.
	LogLevel    string `mapstructure:"log_level"`
	LogPretty   bool   `mapstructure:"log_pretty"`
	LogFilePath string `mapstructure:"log_file_path"`
}

// TurnTimeout is TurnTimeoutSeconds as a time.Duration.
func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.TurnTimeoutSeconds) * time.Second
}

// JobActionTimeout is JobActionTimeoutSeconds as a time.Duration.
func (c *Config) JobActionTimeout() time.Duration {
	return time.Duration(c.JobActionTimeoutSeconds) * time.Second
}

// OutboxPollInterval is OutboxPollIntervalSeconds as a time.Duration.
func (c *Config) OutboxPollInterval() time.Duration {
	return time.Duration(c.OutboxPollIntervalSeconds) * time.Second
}

// SessionInactivityWindow is SessionInactivityHours as a time.Duration.
func (c *Config) SessionInactivityWindow() time.Duration {
	return time.Duration(c.SessionInactivityHours) * time.Hour
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_root", "./data")
	v.SetDefault("agent_root", "./data/agents")
	v.SetDefault("notes_root", "./data/notes")
	v.SetDefault("database_path", "./data/homestead.db")
	v.SetDefault("turn_timeout_seconds", 300)
	v.SetDefault("job_action_timeout_seconds", 60)
	v.SetDefault("outbox_poll_interval_seconds", 2)
	v.SetDefault("session_inactivity_hours", 4)
	v.SetDefault("turn_queue_capacity", 5)
	v.SetDefault("default_model_tag", "claude-cli-default")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("log_file_path", "")
	v.SetDefault("telegram_token", "")
	v.SetDefault("subprocess_binary", "")
	v.SetDefault("http_base_url", "")
	v.SetDefault("http_api_key", "")
	v.SetDefault("http_system_prompt", "")
}

// Load reads configuration from path (a YAML file, optional — defaults
// and environment variables fill in when absent), merging in any .env
// file found in the working directory. Environment variables are read
// with a HOMESTEAD_ prefix, e.g. HOMESTEAD_TELEGRAM_TOKEN.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("homestead")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ModelTagRegistry builds the dispatcher's tag registry from the
// configured bindings.
func (c *Config) ModelTagRegistry() (*modeltags.Registry, error) {
	bindings := make([]modeltags.Binding, 0, len(c.ModelTags))
	for _, mb := range c.ModelTags {
		kind, err := parseBackendKind(mb.Backend)
		if err != nil {
			return nil, fmt.Errorf("model tag %q: %w", mb.Tag, err)
		}
		bindings = append(bindings, modeltags.Binding{
			Tag:             mb.Tag,
			Backend:         kind,
			BackendModelRef: mb.BackendModelRef,
		})
	}
	return modeltags.NewRegistry(bindings), nil
}

func parseBackendKind(s string) (modeltags.BackendKind, error) {
	switch modeltags.BackendKind(s) {
	case modeltags.BackendSubprocess, modeltags.BackendHTTP:
		return modeltags.BackendKind(s), nil
	default:
		return "", fmt.Errorf("unknown backend kind %q", s)
	}
}
