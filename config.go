package asyncmanager

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Swind/go-async-manager/core"
	promexporter "github.com/Swind/go-async-manager/observability/prometheus"
)

var (
	ErrLoadEnvFile   = errors.New("asyncmanager: failed to load env file")
	ErrParsingConfig = errors.New("asyncmanager: failed to parse config")
)

// Config is the environment-driven configuration for the global Manager.
type Config struct {
	MaxParallel        int           `env:"ASYNC_MAX_PARALLEL" envDefault:"2"`
	DefaultDeadline    time.Duration `env:"ASYNC_DEFAULT_DEADLINE" envDefault:"30s"`
	MaxPending         int           `env:"ASYNC_MAX_PENDING" envDefault:"0"`
	SubmitRetries      int           `env:"ASYNC_SUBMIT_RETRIES" envDefault:"3"`
	SubmitBackoff      time.Duration `env:"ASYNC_SUBMIT_BACKOFF" envDefault:"50ms"`
	ParallelismCeiling int           `env:"ASYNC_PARALLELISM_CEILING" envDefault:"0"`
	Name               string        `env:"ASYNC_NAME" envDefault:"asyncmanager"`

	LogLevel  string `env:"ASYNC_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"ASYNC_LOG_FORMAT" envDefault:"text"`

	MetricsEnabled   bool   `env:"ASYNC_METRICS_ENABLED" envDefault:"false"`
	MetricsNamespace string `env:"ASYNC_METRICS_NAMESPACE" envDefault:"asyncmanager"`
}

// LoadConfig reads Config from the environment. files are loaded with
// godotenv first; without files a ./.env is loaded if it exists. Variables
// already set in the environment win over file values.
func LoadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, errors.Join(ErrLoadEnvFile, err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// Options converts cfg into Manager options. When metrics are enabled the
// exporter registers on the default Prometheus registerer.
func (c Config) Options() ([]Option, error) {
	logger, err := NewLogger(c.LogLevel, c.LogFormat, nil)
	if err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}

	retry := core.DefaultRetryPolicy()
	retry.MaxRetries = c.SubmitRetries
	retry.InitialDelay = c.SubmitBackoff
	if retry.MaxDelay < c.SubmitBackoff {
		retry.MaxDelay = c.SubmitBackoff
	}

	opts := []Option{
		WithName(c.Name),
		WithLogger(logger),
		WithDefaultDeadline(c.DefaultDeadline),
		WithMaxPending(c.MaxPending),
		WithSubmitRetry(retry),
		WithParallelismCeiling(c.ParallelismCeiling),
	}

	if c.MetricsEnabled {
		exporter, err := promexporter.NewMetricsExporter(c.MetricsNamespace, nil, promexporter.ExporterOptions{})
		if err != nil {
			return nil, fmt.Errorf("register metrics exporter: %w", err)
		}
		opts = append(opts, WithMetrics(exporter))
	}
	return opts, nil
}
