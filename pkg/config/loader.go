package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
}

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"database-url":   "database.url",
	"database-name":  "database.database_name",
	"query-timeout":  "database.query_timeout",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"metrics-file":   "metrics.textfile_path",
	"case-fold":      "criteria.case_insensitive_operators",
	"legacy-folding": "criteria.legacy_case_folding",
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "CRITERIA")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	if envPrefix == "" {
		envPrefix = DefaultEnvPrefix
	}
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// WithFlags makes explicitly set flags override every other source. Only flags
// listed in flagKeys are consulted.
func (l *ViperLoader) WithFlags(flags *pflag.FlagSet) *ViperLoader {
	l.flags = flags
	return l
}

// Load loads configuration with precedence: flags > ENV > secrets file > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()

	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	if err := l.mergeSecrets(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)

	if err := l.bindFlags(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// Database
	v.BindEnv("database.url", l.prefixedEnv("DB_URL"), l.prefixedEnv("DATABASE_URL"))
	v.BindEnv("database.database_name", l.prefixedEnv("DB_NAME"), l.prefixedEnv("DATABASE_NAME"))
	v.BindEnv("database.connect_timeout", l.prefixedEnv("DB_CONNECT_TIMEOUT"))
	v.BindEnv("database.query_timeout", l.prefixedEnv("DB_QUERY_TIMEOUT"))

	// Criteria
	v.BindEnv("criteria.case_insensitive_operators", l.prefixedEnv("CASE_INSENSITIVE_OPERATORS"))
	v.BindEnv("criteria.legacy_case_folding", l.prefixedEnv("LEGACY_CASE_FOLDING"))

	// Observability
	v.BindEnv("log.level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("log.format", l.prefixedEnv("LOG_FORMAT"))
	v.BindEnv("tracing.enabled", l.prefixedEnv("TRACING_ENABLED"))
	v.BindEnv("tracing.endpoint", l.prefixedEnv("TRACING_ENDPOINT"))
	v.BindEnv("tracing.insecure", l.prefixedEnv("TRACING_INSECURE"))
	v.BindEnv("tracing.sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))
	v.BindEnv("metrics.textfile_path", l.prefixedEnv("METRICS_TEXTFILE_PATH"))
}

func (l *ViperLoader) bindFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	var bindErr error
	l.flags.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("failed to bind flag --%s: %w", f.Name, err)
		}
	})
	return bindErr
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	return strings.ToUpper(l.envPrefix) + "_" + suffix
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("database.url", cfg.Database.URL)
	v.SetDefault("database.database_name", cfg.Database.DatabaseName)
	v.SetDefault("database.connect_timeout", cfg.Database.ConnectTimeout)
	v.SetDefault("database.query_timeout", cfg.Database.QueryTimeout)

	v.SetDefault("criteria.case_insensitive_operators", cfg.Criteria.CaseInsensitiveOperators)
	v.SetDefault("criteria.legacy_case_folding", cfg.Criteria.LegacyCaseFolding)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", cfg.Tracing.Endpoint)
	v.SetDefault("tracing.insecure", cfg.Tracing.Insecure)
	v.SetDefault("tracing.sample_rate", cfg.Tracing.SampleRate)
	v.SetDefault("metrics.textfile_path", cfg.Metrics.TextfilePath)
}

// Validate validates the configuration and returns detailed errors.
// It normalizes the criteria operator list in place.
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	cfg.Criteria.CaseInsensitiveOperators = normalizeStringSlice(cfg.Criteria.CaseInsensitiveOperators)

	if strings.TrimSpace(cfg.Service.Name) == "" {
		errs = append(errs, errors.New("service.name is required"))
	}

	if cfg.Database.URL != "" {
		if u, err := url.Parse(cfg.Database.URL); err != nil || (u.Scheme != "mongodb" && u.Scheme != "mongodb+srv") {
			errs = append(errs, fmt.Errorf("invalid database.url: must be a mongodb:// or mongodb+srv:// URL"))
		}
		if cfg.Database.DatabaseName == "" {
			errs = append(errs, errors.New("database.database_name is required when database.url is set"))
		}
	}
	if cfg.Database.ConnectTimeout < 0 {
		errs = append(errs, errors.New("database.connect_timeout cannot be negative"))
	}
	if cfg.Database.QueryTimeout < 0 {
		errs = append(errs, errors.New("database.query_timeout cannot be negative"))
	}

	if _, err := cfg.Criteria.CompileOptions(); err != nil {
		errs = append(errs, err)
	}

	if _, err := cfg.Log.LoggerConfig(); err != nil {
		errs = append(errs, fmt.Errorf("invalid log configuration: %w", err))
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing.endpoint is required when tracing is enabled"))
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("invalid tracing.sample_rate: %v (must be between 0 and 1)", cfg.Tracing.SampleRate))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// normalizeStringSlice removes empty strings and trims whitespace. A single
// comma-separated entry, as environment variables deliver, is split.
func normalizeStringSlice(values []string) []string {
	if len(values) == 1 && strings.Contains(values[0], ",") {
		values = strings.Split(values[0], ",")
	}
	result := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
