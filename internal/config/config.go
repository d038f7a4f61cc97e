package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Log       Log       `mapstructure:"log"       validate:"required"`
	Telemetry Telemetry `mapstructure:"telemetry" validate:"required"`
	Source    Source    `mapstructure:"source"    validate:"required"`
	Pipeline  Pipeline  `mapstructure:"pipeline"  validate:"required"`
}

type Log struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFile  string `mapstructure:"log_file"  validate:"required"`
}

type Telemetry struct {
	Enabled     bool              `mapstructure:"enabled"`
	Exporter    string            `mapstructure:"exporter" validate:"omitempty,oneof=otlp stdout none"`
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol" validate:"omitempty,oneof=grpc http"`
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	ServiceName string            `mapstructure:"service_name"`
}

type Source struct {
	TaxiType  string        `mapstructure:"taxi_type"  validate:"required"`
	StartDate string        `mapstructure:"start_date" validate:"required,datetime=2006-01"`
	EndDate   string        `mapstructure:"end_date"   validate:"required,datetime=2006-01"`
	Timeout   time.Duration `mapstructure:"timeout"    validate:"required,gt=0"`
}

type Pipeline struct {
	Name        string      `mapstructure:"name"        validate:"required"`
	Destination string      `mapstructure:"destination" validate:"required,oneof=postgres object_store discard"`
	Postgres    Postgres    `mapstructure:"postgres"`
	ObjectStore ObjectStore `mapstructure:"object_store"`
}

type Postgres struct {
	DSN string `mapstructure:"dsn"`
}

type ObjectStore struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Uploads   int    `mapstructure:"uploads" validate:"min=0,max=16"`
}

// Load reads config from file, TAXI_* environment variables and the given
// CLI flag bindings (viper key -> flag), in ascending precedence.
func Load(cfgFile string, binds map[string]*pflag.Flag) (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvPrefix("TAXI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	// Flexible file loading
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.taxi-ingest")
		v.AddConfigPath("/etc/taxi-ingest")
		v.SetConfigType("yaml")
	}

	// Defaults
	v.SetDefault("log.log_level", "info")
	v.SetDefault("log.log_file", "logs/app.log")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "nyc-taxi-ingest")
	v.SetDefault("source.taxi_type", "")
	v.SetDefault("source.start_date", "")
	v.SetDefault("source.end_date", "")
	v.SetDefault("source.timeout", time.Duration(60)*time.Second)
	v.SetDefault("pipeline.name", "nyc_taxi_pipeline")
	v.SetDefault("pipeline.destination", "discard")
	v.SetDefault("pipeline.object_store.uploads", 4)

	for key, flag := range binds {
		if err := v.BindPFlag(key, flag); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", key, err)
		}
	}

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config read error: %w", err)
		}
		// Not found is ok, use defaults/env
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal error: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("validation failed: %w", err)
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Exporter == "otlp" && cfg.Telemetry.Endpoint == "" {
		return Config{}, fmt.Errorf("telemetry.endpoint is required when using otlp exporter")
	}
	switch cfg.Pipeline.Destination {
	case "postgres":
		if cfg.Pipeline.Postgres.DSN == "" {
			return Config{}, fmt.Errorf("pipeline.postgres.dsn is required for the postgres destination")
		}
	case "object_store":
		os := cfg.Pipeline.ObjectStore
		if os.Endpoint == "" || os.Bucket == "" {
			return Config{}, fmt.Errorf("pipeline.object_store.endpoint and bucket are required for the object_store destination")
		}
	}
	return cfg, nil
}
