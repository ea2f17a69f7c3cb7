// Package cli builds the criteriactl command tree: compiling criteria files to
// MongoDB filters, running them against a database, and inspecting configuration.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nimburion/mongocriteria/pkg/config"
	"github.com/nimburion/mongocriteria/pkg/criteria"
	criteriamongo "github.com/nimburion/mongocriteria/pkg/criteria/mongodb"
	"github.com/nimburion/mongocriteria/pkg/health"
	"github.com/nimburion/mongocriteria/pkg/observability/logger"
	"github.com/nimburion/mongocriteria/pkg/observability/metrics"
	"github.com/nimburion/mongocriteria/pkg/observability/tracing"
	"github.com/nimburion/mongocriteria/pkg/repository/document"
	mongostore "github.com/nimburion/mongocriteria/pkg/store/mongodb"
	"github.com/nimburion/mongocriteria/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.mongodb.org/mongo-driver/bson"
	"gopkg.in/yaml.v3"
)

const defaultServiceName = "criteriactl"

// Options configures the command tree.
type Options struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string
}

// NewRootCommand creates the criteriactl CLI with compile, find, count, healthcheck,
// config and version subcommands.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Name == "" {
		opts.Name = defaultServiceName
	}
	opts.EnvPrefix = resolveEnvPrefix(opts.EnvPrefix)

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	var secretFilePath string
	var serviceNameOverride string
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	pf.StringVar(&secretFilePath, "secret-file", "", fmt.Sprintf("path to secrets file (sets %s_SECRETS_FILE)", opts.EnvPrefix))
	pf.StringVar(&serviceNameOverride, "service-name", "", "service name override")
	registerConfigFlags(pf)

	loadConfig := func(flags *pflag.FlagSet) (*config.Config, error) {
		if err := applySecretFileFlag(opts.EnvPrefix, secretFilePath); err != nil {
			return nil, err
		}
		cfg, err := config.NewViperLoader(cfgPath, opts.EnvPrefix).WithFlags(flags).Load()
		if err != nil {
			return nil, err
		}
		cfg.Service.Name = resolveServiceNameValue(cfg.Service.Name, opts.Name, serviceNameOverride)
		return cfg, nil
	}

	rootCmd.AddCommand(
		newVersionCommand(opts.Name),
		newCompileCommand(loadConfig),
		newFindCommand(loadConfig),
		newCountCommand(loadConfig),
		newHealthcheckCommand(loadConfig),
		newConfigCommand(loadConfig),
	)
	return rootCmd
}

func registerConfigFlags(pf *pflag.FlagSet) {
	pf.String("database-url", "", "MongoDB connection URL")
	pf.String("database-name", "", "MongoDB database name")
	pf.Duration("query-timeout", 0, "per-operation timeout")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (json, text)")
	pf.String("metrics-file", "", "write Prometheus metrics to this textfile on exit")
	pf.StringSlice("case-fold", nil, "operators compared case-insensitively (=, !=, in, nin, like)")
	pf.Bool("legacy-folding", false, "fold case for every string comparison")
}

type configLoader func(flags *pflag.FlagSet) (*config.Config, error)

func newVersionCommand(name string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Current(name)
			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}
			fmt.Fprintf(out, "Service:      %s\n", info.Service)
			fmt.Fprintf(out, "Version:      %s\n", info.Version)
			fmt.Fprintf(out, "Commit:       %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time:   %s\n", info.BuildTime)
			fmt.Fprintf(out, "Go:           %s\n", info.GoVersion)
			fmt.Fprintf(out, "Mongo Driver: %s\n", info.Driver)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

// criteriaFiles holds the --model and --query flags shared by compile, find and count.
type criteriaFiles struct {
	modelPath string
	queryPath string
}

func (f *criteriaFiles) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.modelPath, "model", "m", "", "model description (YAML)")
	cmd.Flags().StringVarP(&f.queryPath, "query", "q", "", "criteria file (YAML or JSON); stdin when omitted")
	_ = cmd.MarkFlagRequired("model")
}

func (f *criteriaFiles) load(stdin io.Reader) (*criteria.Model, criteria.Query, error) {
	mf, err := os.Open(f.modelPath)
	if err != nil {
		return nil, criteria.Query{}, fmt.Errorf("open model: %w", err)
	}
	defer mf.Close()
	model, err := criteria.LoadModel(mf)
	if err != nil {
		return nil, criteria.Query{}, err
	}

	in := stdin
	if f.queryPath != "" && f.queryPath != "-" {
		qf, err := os.Open(f.queryPath)
		if err != nil {
			return nil, criteria.Query{}, fmt.Errorf("open query: %w", err)
		}
		defer qf.Close()
		in = qf
	}
	q, err := criteria.DecodeQuery(model, in)
	if err != nil {
		return nil, criteria.Query{}, err
	}
	return model, q, nil
}

func newCompileCommand(loadConfig configLoader) *cobra.Command {
	var files criteriaFiles
	var canonical bool
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a criteria file to a MongoDB filter",
		Long: "Compile a criteria file to a MongoDB filter and read directives, printed as\n" +
			"MongoDB extended JSON. No database connection is made.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			compileOpts, err := cfg.Criteria.CompileOptions()
			if err != nil {
				return err
			}
			_, q, err := files.load(cmd.InOrStdin())
			if err != nil {
				return err
			}
			bundle, err := criteriamongo.CompileQuery(q, compileOpts...)
			if err != nil {
				return err
			}
			data, err := bson.MarshalExtJSON(bundleDocument(bundle), canonical, false)
			if err != nil {
				return fmt.Errorf("failed to render bundle: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	files.register(cmd)
	cmd.Flags().BoolVar(&canonical, "canonical", false, "print canonical extended JSON")
	return cmd
}

// bundleDocument lays a compiled bundle out as the arguments of a find command.
func bundleDocument(b criteriamongo.Bundle) bson.D {
	doc := bson.D{{Key: "filter", Value: b.Filter}}
	if b.Projection != nil {
		doc = append(doc, bson.E{Key: "projection", Value: b.Projection})
	}
	if b.Sort != nil {
		doc = append(doc, bson.E{Key: "sort", Value: b.Sort})
	}
	if b.Limit != nil {
		doc = append(doc, bson.E{Key: "limit", Value: *b.Limit})
	}
	if b.Skip != nil {
		doc = append(doc, bson.E{Key: "skip", Value: *b.Skip})
	}
	return doc
}

func newFindCommand(loadConfig configLoader) *cobra.Command {
	var files criteriaFiles
	var collection string
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Run a criteria file against the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, loadConfig)
			if err != nil {
				return err
			}
			defer rt.close()

			model, q, err := files.load(cmd.InOrStdin())
			if err != nil {
				return err
			}
			repo, err := rt.repository(model, collection)
			if err != nil {
				return err
			}
			records, err := repo.Find(rt.ctx, q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, record := range records {
				data, err := bson.MarshalExtJSON(record, false, false)
				if err != nil {
					return fmt.Errorf("failed to render record: %w", err)
				}
				fmt.Fprintln(out, string(data))
			}
			rt.log.WithContext(rt.ctx).Info("find completed", "collection", repo.Collection(), "records", len(records))
			return nil
		},
	}
	files.register(cmd)
	cmd.Flags().StringVar(&collection, "collection", "", "collection name (defaults to the model identity)")
	return cmd
}

func newCountCommand(loadConfig configLoader) *cobra.Command {
	var files criteriaFiles
	var collection string
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count the documents matching a criteria file",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, loadConfig)
			if err != nil {
				return err
			}
			defer rt.close()

			model, q, err := files.load(cmd.InOrStdin())
			if err != nil {
				return err
			}
			repo, err := rt.repository(model, collection)
			if err != nil {
				return err
			}
			n, err := repo.Count(rt.ctx, q.Where)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
	files.register(cmd)
	cmd.Flags().StringVar(&collection, "collection", "", "collection name (defaults to the model identity)")
	return cmd
}

func newHealthcheckCommand(loadConfig configLoader) *cobra.Command {
	var probe criteriaFiles
	var minCount int64
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check connectivity to the configured database",
		Long: "Check connectivity to the configured database. With --model and --query the\n" +
			"criteria are compiled and counted as a probe; fewer than --min-count matches\n" +
			"reports the probe as degraded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, loadConfig)
			if err != nil {
				return err
			}
			defer rt.close()

			registry := health.NewRegistry()
			registry.Register(health.NewAdapterChecker("mongodb", rt.adapter, rt.cfg.Database.QueryTimeout))
			if probe.modelPath != "" {
				model, q, err := probe.load(cmd.InOrStdin())
				if err != nil {
					return err
				}
				repo, err := rt.repository(model, "")
				if err != nil {
					return err
				}
				count := func(ctx context.Context) (int64, error) { return repo.Count(ctx, q.Where) }
				registry.Register(health.NewQueryChecker("probe:"+repo.Collection(), count, minCount, rt.cfg.Database.QueryTimeout))
			}

			result := registry.Check(rt.ctx)
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			if result.Status == health.StatusUnhealthy {
				return errors.New("healthcheck failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&probe.modelPath, "model", "m", "", "model description for the probe query (YAML)")
	cmd.Flags().StringVarP(&probe.queryPath, "query", "q", "", "probe criteria file (YAML or JSON)")
	cmd.Flags().Int64Var(&minCount, "min-count", 0, "minimum documents the probe must match")
	return cmd
}

func newConfigCommand(loadConfig configLoader) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd.Flags()); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return err
		},
	})

	var showSecrets bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if !showSecrets {
				cfg.Database.URL = cfg.Database.RedactedURL()
			}
			formatted, err := formatSettings(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), formatted)
			return err
		},
	}
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "show secret values")
	configCmd.AddCommand(showCmd)

	return configCmd
}

// runtime is everything a database command needs, built from the loaded configuration.
type runtime struct {
	ctx      context.Context
	cfg      *config.Config
	log      *logger.ZapLogger
	registry *metrics.Registry
	tracer   *tracing.TracerProvider
	adapter  *mongostore.Adapter
	stop     context.CancelFunc
}

func newRuntime(cmd *cobra.Command, loadConfig configLoader) (*runtime, error) {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return nil, err
	}
	logCfg, err := cfg.Log.LoggerConfig()
	if err != nil {
		return nil, err
	}
	logCfg.Output = cmd.ErrOrStderr()
	log, err := logger.NewZapLogger(logCfg)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	ctx = logger.ContextWithRequestID(ctx, uuid.NewString())
	rt := &runtime{ctx: ctx, cfg: cfg, log: log, registry: metrics.NewRegistry(), stop: stop}

	rt.tracer, err = tracing.NewTracerProvider(ctx, cfg.TracerConfig(version.Current(cfg.Service.Name).Version))
	if err != nil {
		stop()
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.URL) == "" {
		rt.close()
		return nil, errors.New("database.url is required")
	}
	log.WithContext(ctx).Debug("connecting", "url", cfg.Database.RedactedURL(), "database", cfg.Database.DatabaseName)
	rt.adapter, err = mongostore.NewAdapter(cfg.Database.AdapterConfig(), log)
	if err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) repository(model *criteria.Model, collection string) (*document.Repository, error) {
	compileOpts, err := rt.cfg.Criteria.CompileOptions()
	if err != nil {
		return nil, err
	}
	exec, err := document.NewMongoDBExecutor(rt.adapter)
	if err != nil {
		return nil, err
	}
	return document.NewRepository(model, exec,
		document.WithLogger(rt.log),
		document.WithMetrics(rt.registry.Gateway()),
		document.WithCompileOptions(compileOpts...),
		document.WithCollection(collection),
		document.WithDatabaseName(rt.adapter.DatabaseName()),
	)
}

// close releases the connection, flushes spans and writes the metrics textfile.
func (rt *runtime) close() {
	defer rt.stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if rt.adapter != nil {
		if err := rt.adapter.Close(); err != nil {
			rt.log.Warn("failed to close database connection", "error", err)
		}
	}
	if rt.tracer != nil {
		if err := rt.tracer.Shutdown(ctx); err != nil {
			rt.log.Warn("failed to shut down tracer provider", "error", err)
		}
	}
	if path := rt.cfg.Metrics.TextfilePath; path != "" {
		if err := rt.registry.WriteToTextfile(path); err != nil {
			rt.log.Warn("failed to write metrics textfile", "path", path, "error", err)
		}
	}
	_ = rt.log.Sync()
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func applySecretFileFlag(envPrefix, secretFilePath string) error {
	secretFilePath = strings.TrimSpace(secretFilePath)
	if secretFilePath == "" {
		return nil
	}
	key := resolveEnvPrefix(envPrefix) + "_SECRETS_FILE"
	if err := os.Setenv(key, secretFilePath); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func formatSettings(cfg *config.Config) (string, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to format configuration: %w", err)
	}
	return string(out), nil
}

func resolveEnvPrefix(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return config.DefaultEnvPrefix
	}
	return strings.ToUpper(trimmed)
}

func resolveServiceNameValue(currentConfigName, defaultServiceName, serviceNameOverride string) string {
	if override := strings.TrimSpace(serviceNameOverride); override != "" {
		return override
	}
	if configured := strings.TrimSpace(currentConfigName); configured != "" {
		return configured
	}
	if fallback := strings.TrimSpace(defaultServiceName); fallback != "" {
		return fallback
	}
	return defaultServiceName
}
