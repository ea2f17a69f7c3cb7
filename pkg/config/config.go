// Package config loads criteriactl configuration from defaults, files, secrets
// files and environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/nimburion/mongocriteria/pkg/criteria"
	criteriamongo "github.com/nimburion/mongocriteria/pkg/criteria/mongodb"
	"github.com/nimburion/mongocriteria/pkg/observability/logger"
	"github.com/nimburion/mongocriteria/pkg/observability/tracing"
	mongostore "github.com/nimburion/mongocriteria/pkg/store/mongodb"
)

// DefaultEnvPrefix is the environment variable prefix used by criteriactl.
const DefaultEnvPrefix = "CRITERIA"

// Config is the root configuration structure
type Config struct {
	Service  ServiceConfig  `mapstructure:"service" yaml:"service"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Criteria CriteriaConfig `mapstructure:"criteria" yaml:"criteria"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// DatabaseConfig configures the MongoDB connection
type DatabaseConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	DatabaseName   string        `mapstructure:"database_name" yaml:"database_name"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
}

// CriteriaConfig configures filter compilation.
type CriteriaConfig struct {
	// CaseInsensitiveOperators lists operator tokens ("=", "!=", "in", "nin", "like")
	// whose string operands compare case-insensitively.
	CaseInsensitiveOperators []string `mapstructure:"case_insensitive_operators" yaml:"case_insensitive_operators"`
	// LegacyCaseFolding folds case for every string comparison that supports it.
	LegacyCaseFolding bool `mapstructure:"legacy_case_folding" yaml:"legacy_case_folding"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // json, text
}

// TracingConfig configures OTLP trace export
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig configures the metrics textfile written after each command.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "criteriactl",
			Environment: "development",
		},
		Database: DatabaseConfig{
			ConnectTimeout: 10 * time.Second,
			QueryTimeout:   5 * time.Second,
		},
		Criteria: CriteriaConfig{
			CaseInsensitiveOperators: []string{},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			SampleRate: 0.1,
		},
	}
}

// CompileOptions maps the criteria settings onto compiler options.
func (c CriteriaConfig) CompileOptions() ([]criteriamongo.Option, error) {
	var opts []criteriamongo.Option
	if c.LegacyCaseFolding {
		opts = append(opts, criteriamongo.WithLegacyCaseFolding())
	}
	if len(c.CaseInsensitiveOperators) == 0 {
		return opts, nil
	}
	ops := make([]criteria.Operator, 0, len(c.CaseInsensitiveOperators))
	for _, token := range c.CaseInsensitiveOperators {
		op, err := criteria.ParseOperator(token)
		if err != nil {
			return nil, fmt.Errorf("criteria.case_insensitive_operators: %w", err)
		}
		switch op {
		case criteria.Eq, criteria.Ne, criteria.In, criteria.NotIn, criteria.Like:
		default:
			return nil, fmt.Errorf("criteria.case_insensitive_operators: operator %q cannot fold case", token)
		}
		ops = append(ops, op)
	}
	return append(opts, criteriamongo.WithCaseInsensitive(ops...)), nil
}

// AdapterConfig returns the store adapter settings.
func (c DatabaseConfig) AdapterConfig() mongostore.Config {
	return mongostore.Config{
		URL:              c.URL,
		Database:         c.DatabaseName,
		ConnectTimeout:   c.ConnectTimeout,
		OperationTimeout: c.QueryTimeout,
	}
}

// LoggerConfig returns the logger settings.
func (c LogConfig) LoggerConfig() (logger.Config, error) {
	level, err := logger.ParseLogLevel(c.Level)
	if err != nil {
		return logger.Config{}, err
	}
	format, err := logger.ParseLogFormat(c.Format)
	if err != nil {
		return logger.Config{}, err
	}
	return logger.Config{Level: level, Format: format}, nil
}

// TracerConfig returns the tracer provider settings for service.
func (c *Config) TracerConfig(serviceVersion string) tracing.TracerConfig {
	return tracing.TracerConfig{
		ServiceName:    c.Service.Name,
		ServiceVersion: serviceVersion,
		Environment:    c.Service.Environment,
		Endpoint:       c.Tracing.Endpoint,
		Insecure:       c.Tracing.Insecure,
		SampleRate:     c.Tracing.SampleRate,
		Enabled:        c.Tracing.Enabled,
	}
}
