package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/ppiankov/governor/internal/alert"
	"github.com/ppiankov/governor/internal/judge"
	"github.com/ppiankov/governor/internal/ledger"
)

// Config is the governor service configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Ledger LedgerConfig `mapstructure:"ledger"`
	Policy PolicyConfig `mapstructure:"policy"`
	Judge  judge.Config `mapstructure:"judge"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Alerts alert.Config `mapstructure:"alerts"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig holds listener settings. GRPCPort 0 disables the health server.
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	GRPCPort int    `mapstructure:"grpc_port"`
}

// LedgerConfig selects the audit store.
type LedgerConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// PolicyConfig locates the policy file.
type PolicyConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

// AuthConfig lists API keys as "role=key" entries. Empty disables auth.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	dir := ConfigDir()
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 4000,
		},
		Ledger: LedgerConfig{
			Driver: string(ledger.DriverSQLite),
			DSN:    filepath.Join(dir, "governor.db"),
		},
		Policy: PolicyConfig{
			Path:  filepath.Join(dir, "policy.yaml"),
			Watch: true,
		},
		Judge: judge.Config{
			Provider: judge.ProviderGemini,
			Model:    "gemini-1.5-flash",
			Timeout:  judge.DefaultTimeout,
		},
		Auth: AuthConfig{APIKeys: []string{}},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ConfigDir returns the governor config directory.
func ConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("failed to resolve home directory, using current directory as fallback", "error", err)
		homeDir = "."
	}
	return filepath.Join(homeDir, ".governor")
}

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// envAliases are environment variables accepted in addition to the
// GOVERNOR_<SECTION>_<KEY> form.
var envAliases = map[string][]string{
	"server.port":    {"GOVERNOR_PORT"},
	"auth.api_keys":  {"GOVERNOR_API_KEYS"},
	"judge.api_key":  {"GEMINI_API_KEY"},
	"judge.model":    {"GEMINI_MODEL"},
	"judge.mock":     {"GEMINI_MOCK"},
	"ledger.dsn":     {"GOVERNOR_DB"},
	"log.level":      {"GOVERNOR_LOG_LEVEL"},
	"policy.path":    {"GOVERNOR_POLICY"},
	"judge.base_url": {"GOVERNOR_JUDGE_BASE_URL"},
}

// Load reads the config file at path (ConfigPath when empty), applies
// GOVERNOR_* environment overrides and validates the result.
// A missing file is not an error: defaults and environment apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = ConfigPath()
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("GOVERNOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)
	for key, names := range envAliases {
		args := append([]string{key, "GOVERNOR_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return cfg, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("stat config %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.Auth.APIKeys = splitList(cfg.Auth.APIKeys)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override
// keys the config file does not mention.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.grpc_port", cfg.Server.GRPCPort)
	v.SetDefault("ledger.driver", cfg.Ledger.Driver)
	v.SetDefault("ledger.dsn", cfg.Ledger.DSN)
	v.SetDefault("policy.path", cfg.Policy.Path)
	v.SetDefault("policy.watch", cfg.Policy.Watch)
	v.SetDefault("judge.provider", cfg.Judge.Provider)
	v.SetDefault("judge.model", cfg.Judge.Model)
	v.SetDefault("judge.api_key", cfg.Judge.APIKey)
	v.SetDefault("judge.base_url", cfg.Judge.BaseURL)
	v.SetDefault("judge.mock", cfg.Judge.Mock)
	v.SetDefault("judge.timeout", cfg.Judge.Timeout)
	v.SetDefault("judge.temperature", cfg.Judge.Temperature)
	v.SetDefault("judge.max_tokens", cfg.Judge.MaxTokens)
	v.SetDefault("auth.api_keys", cfg.Auth.APIKeys)
	v.SetDefault("alerts.redis.addr", "")
	v.SetDefault("alerts.redis.password", "")
	v.SetDefault("alerts.redis.db", 0)
	v.SetDefault("alerts.redis.channel", "")
	v.SetDefault("alerts.kafka.brokers", []string{})
	v.SetDefault("alerts.kafka.topic", "")
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
}

// splitList flattens comma-separated entries, which is how list values
// arrive from the environment.
func splitList(in []string) []string {
	out := []string{}
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port must be between 0 and 65535, got %d", c.Server.GRPCPort))
	}
	if c.Server.GRPCPort != 0 && c.Server.GRPCPort == c.Server.Port {
		errs = append(errs, errors.New("server.grpc_port must differ from server.port"))
	}

	switch ledger.Driver(strings.ToLower(c.Ledger.Driver)) {
	case ledger.DriverSQLite, ledger.DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("ledger.driver must be %q or %q, got %q", ledger.DriverSQLite, ledger.DriverPostgres, c.Ledger.Driver))
	}
	if strings.TrimSpace(c.Ledger.DSN) == "" {
		errs = append(errs, errors.New("ledger.dsn is required"))
	}

	if c.Judge.Timeout < 0 {
		errs = append(errs, fmt.Errorf("judge.timeout must be >= 0, got %s", c.Judge.Timeout))
	}
	if c.Judge.Timeout > 5*time.Minute {
		errs = append(errs, fmt.Errorf("judge.timeout must be at most 5m, got %s", c.Judge.Timeout))
	}
	if c.Judge.Temperature < 0 || c.Judge.Temperature > 2 {
		errs = append(errs, fmt.Errorf("judge.temperature must be between 0 and 2, got %v", c.Judge.Temperature))
	}
	if c.Judge.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("judge.max_tokens must be >= 0, got %d", c.Judge.MaxTokens))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level))
	}

	for i, w := range c.Alerts.Webhooks {
		if strings.TrimSpace(w.URL) == "" {
			errs = append(errs, fmt.Errorf("alerts.webhooks[%d].url is required", i))
		}
		switch w.Format {
		case "", "generic", "slack", "pagerduty":
		default:
			errs = append(errs, fmt.Errorf("alerts.webhooks[%d].format %q is not supported", i, w.Format))
		}
	}

	return errors.Join(errs...)
}

// DefaultConfigYAML returns a commented config file for `governor init`.
func DefaultConfigYAML() string {
	return `# governor configuration
# Every key can be overridden by GOVERNOR_<SECTION>_<KEY>, e.g.
# GOVERNOR_SERVER_PORT=4100 or GOVERNOR_LEDGER_DRIVER=postgres.

server:
  host: 127.0.0.1
  port: 4000
  # gRPC health endpoint, 0 disables it.
  grpc_port: 0

ledger:
  # sqlite or postgres
  driver: sqlite
  # dsn: postgres://governor@localhost:5432/governor?sslmode=disable

policy:
  watch: true

judge:
  # gemini, openai, openrouter, deepseek or ollama. Without an api_key the
  # deterministic fallback judge is used.
  provider: gemini
  model: gemini-1.5-flash
  timeout: 8s
  mock: false

auth:
  # "role=key" entries; roles are admin, operator and auditor.
  # Leave empty to disable authentication.
  api_keys: []

alerts:
  webhooks: []
  #  - url: https://hooks.slack.com/services/...
  #    format: slack
  #    events: [DENY, REQUIRE_CONFIRMATION]
  redis:
    addr: ""
    channel: "governor:decisions"
  kafka:
    brokers: []
    topic: governor.decisions

log:
  level: info
`
}
