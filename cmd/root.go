package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/datapipes/nyc-taxi-ingest/internal"
	"github.com/datapipes/nyc-taxi-ingest/internal/config"
	"github.com/datapipes/nyc-taxi-ingest/internal/telemetry"
)

var (
	cfgFile  string
	cfg      config.Config
	logger   *zap.SugaredLogger
	tracer   trace.Tracer
	meter    metric.Meter
	shutdown func(context.Context) error
	services *internal.Services
	Version  = "dev" // Set at build time: go build -ldflags "-X github.com/datapipes/nyc-taxi-ingest/cmd.Version=v1.0.0"

	// viper key -> flag name, filled by init; Load binds these so flags
	// override file and env values.
	flagKeys = map[string]string{}
)

func flagBinds(pf *pflag.FlagSet) map[string]*pflag.Flag {
	binds := make(map[string]*pflag.Flag, len(flagKeys))
	for key, name := range flagKeys {
		binds[key] = pf.Lookup(name)
	}
	return binds
}

var RootCmd = &cobra.Command{
	Use:   "taxi-ingest",
	Short: "NYC taxi trip-data ingestion CLI",
	Long: "Downloads monthly NYC taxi trip archives for a date range, parses them " +
		"and appends the rows to the configured warehouse destination.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgFile, flagBinds(cmd.Root().PersistentFlags()))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if dir := filepath.Dir(cfg.Log.LogFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create log directory: %w", err)
			}
		}

		teleCfg := telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Exporter:    cfg.Telemetry.Exporter,
			Endpoint:    cfg.Telemetry.Endpoint,
			Protocol:    cfg.Telemetry.Protocol,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     cfg.Telemetry.Headers,
			LogFile:     cfg.Log.LogFile,
			LogLevel:    cfg.Log.LogLevel,
		}
		if !cfg.Telemetry.Enabled {
			teleCfg.Exporter = "none"
		}
		tracer, meter, logger, shutdown, err = telemetry.Init(teleCfg)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		services, err = internal.InitServices(cfg, tracer, logger, meter)
		if err != nil {
			return fmt.Errorf("init services: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdown != nil {
			if err := shutdown(context.Background()); err != nil {
				logger.Errorw("shutdown error", "err", err)
				return err
			}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		logger.Info("Starting pipeline run...")
		summary, err := services.Runner.Run(ctx, services.Resource)
		if err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
		logger.Infof("All files processed and uploaded successfully! (%d files, %d rows)",
			summary.FilesLoaded, summary.RowsLoaded)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of taxi-ingest",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config operations",
}

var printConfigCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the current loaded configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "Path to config file (yaml/json/toml)")

	pf := RootCmd.PersistentFlags()

	// Flag name -> viper key; string flags declared in one map to avoid
	// repetition, typed flags below it.
	stringFlags := []struct {
		name, key, def, usage string
	}{
		{"taxi_type", "source.taxi_type", "", "Type of taxi (e.g. 'green', 'yellow', 'fhv')"},
		{"start_date", "source.start_date", "", "Start date in format YYYY-MM"},
		{"end_date", "source.end_date", "", "End date in format YYYY-MM"},
		{"log-level", "log.log_level", "info", "Log level (debug/info/warn/error)"},
		{"log-file", "log.log_file", "logs/app.log", "Run log path"},
		{"telemetry.exporter", "telemetry.exporter", "none", "Telemetry exporter (otlp|stdout|none)"},
		{"telemetry.endpoint", "telemetry.endpoint", "localhost:4317", "OTLP endpoint (host:port)"},
		{"telemetry.protocol", "telemetry.protocol", "grpc", "OTLP protocol (grpc|http)"},
		{"telemetry.service-name", "telemetry.service_name", "nyc-taxi-ingest", "Service name for telemetry"},
		{"pipeline.name", "pipeline.name", "nyc_taxi_pipeline", "Pipeline name"},
		{"pipeline.destination", "pipeline.destination", "discard", "Destination (postgres|object_store|discard)"},
		{"pipeline.postgres.dsn", "pipeline.postgres.dsn", "", "Postgres DSN"},
		{"pipeline.object-store.endpoint", "pipeline.object_store.endpoint", "", "Object store endpoint (host:port)"},
		{"pipeline.object-store.access-key", "pipeline.object_store.access_key", "", "Object store access key"},
		{"pipeline.object-store.secret-key", "pipeline.object_store.secret_key", "", "Object store secret key"},
		{"pipeline.object-store.bucket", "pipeline.object_store.bucket", "", "Object store bucket"},
		{"pipeline.object-store.prefix", "pipeline.object_store.prefix", "nyc_taxi_data", "Object key prefix"},
		{"pipeline.object-store.region", "pipeline.object_store.region", "", "Object store region"},
	}
	for _, f := range stringFlags {
		pf.String(f.name, f.def, f.usage)
		flagKeys[f.key] = f.name
	}

	pf.Duration("timeout", 60*time.Second, "Per-request timeout")
	flagKeys["source.timeout"] = "timeout"
	pf.Bool("telemetry.enabled", false, "Enable OpenTelemetry")
	flagKeys["telemetry.enabled"] = "telemetry.enabled"
	pf.Bool("telemetry.insecure", true, "Allow insecure OTLP connection")
	flagKeys["telemetry.insecure"] = "telemetry.insecure"
	pf.Bool("pipeline.object-store.use-ssl", false, "Use TLS for the object store")
	flagKeys["pipeline.object_store.use_ssl"] = "pipeline.object-store.use-ssl"
	pf.Int("pipeline.object-store.uploads", 4, "Concurrent part uploads")
	flagKeys["pipeline.object_store.uploads"] = "pipeline.object-store.uploads"

	configCmd.AddCommand(printConfigCmd)

	RootCmd.AddCommand(listCmd)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(configCmd)
}
