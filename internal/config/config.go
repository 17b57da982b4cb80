package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/raiser-uploader/internal/logging"
)

type Config struct {
	Logging  logging.Config `yaml:"logging"`
	API      APIConfig      `yaml:"api"`
	Upload   UploadConfig   `yaml:"upload"`
	JobStore JobStoreConfig `yaml:"jobstore"`
	Notify   NotifyConfig   `yaml:"notify"`
	Report   ReportConfig   `yaml:"report"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Server   ServerConfig   `yaml:"server"`
}

// APIConfig points at the backend that owns the raiser table.
type APIConfig struct {
	BaseURL string        `env:"API_BASE_URL" yaml:"base_url" validate:"required,url"`
	Token   string        `env:"API_TOKEN" yaml:"token"`
	Timeout time.Duration `env:"API_TIMEOUT" envDefault:"30s" yaml:"timeout" validate:"gt=0"`
}

type UploadConfig struct {
	BatchSize    int           `env:"UPLOAD_BATCH_SIZE" envDefault:"200" yaml:"batch_size" validate:"gt=0,lte=10000"`
	BatchDelay   time.Duration `env:"UPLOAD_BATCH_DELAY" envDefault:"200ms" yaml:"batch_delay" validate:"gte=0"`
	BatchTimeout time.Duration `env:"UPLOAD_BATCH_TIMEOUT" envDefault:"30s" yaml:"batch_timeout" validate:"gt=0"`
	AutoStart    bool          `env:"UPLOAD_AUTO_START" envDefault:"true" yaml:"auto_start"`
	PollInterval time.Duration `env:"UPLOAD_POLL_INTERVAL" envDefault:"15s" yaml:"poll_interval" validate:"gte=0"`
}

type JobStoreConfig struct {
	Backend     string `env:"JOBSTORE_BACKEND" envDefault:"file" yaml:"backend" validate:"oneof=memory file blob postgres redis"`
	Name        string `env:"JOBSTORE_NAME" envDefault:"ktech-raisers" yaml:"name" validate:"required"`
	Dir         string `env:"JOBSTORE_DIR" envDefault:"./state" yaml:"dir"`
	BucketURL   string `env:"JOBSTORE_BUCKET_URL" yaml:"bucket_url"`
	PostgresDSN string `env:"JOBSTORE_POSTGRES_DSN" yaml:"postgres_dsn"`
	RedisURL    string `env:"JOBSTORE_REDIS_URL" yaml:"redis_url"`
}

// Validate checks backend specific settings.
func (j *JobStoreConfig) Validate() error {
	switch j.Backend {
	case "file":
		if j.Dir == "" {
			return fmt.Errorf("jobstore Dir is required for the file backend")
		}
	case "blob":
		if j.BucketURL == "" {
			return fmt.Errorf("jobstore BucketURL is required for the blob backend")
		}
	case "postgres":
		if j.PostgresDSN == "" {
			return fmt.Errorf("jobstore PostgresDSN is required for the postgres backend")
		}
	case "redis":
		if j.RedisURL == "" {
			return fmt.Errorf("jobstore RedisURL is required for the redis backend")
		}
	}
	return nil
}

type NotifyConfig struct {
	WebhookURL     string        `env:"NOTIFY_WEBHOOK_URL" yaml:"webhook_url" validate:"omitempty,url"`
	WebhookRetries int           `env:"NOTIFY_WEBHOOK_RETRIES" envDefault:"3" yaml:"webhook_retries" validate:"gte=1"`
	WebhookTimeout time.Duration `env:"NOTIFY_WEBHOOK_TIMEOUT" envDefault:"10s" yaml:"webhook_timeout"`
	JournalDir     string        `env:"NOTIFY_JOURNAL_DIR" yaml:"journal_dir"`
}

type ReportConfig struct {
	Enabled    bool   `env:"REPORT_ENABLED" envDefault:"false" yaml:"enabled"`
	Backend    string `env:"REPORT_BACKEND" envDefault:"local" yaml:"backend" validate:"oneof=local gcs s3"`
	LocalDir   string `env:"REPORT_LOCAL_DIR" envDefault:"./data" yaml:"local_dir"`
	Bucket     string `env:"REPORT_BUCKET" yaml:"bucket"`
	S3Endpoint string `env:"REPORT_S3_ENDPOINT" yaml:"s3_endpoint"`
	S3Region   string `env:"REPORT_S3_REGION" yaml:"s3_region"`
	Prefix     string `env:"REPORT_PREFIX" envDefault:"reports/" yaml:"prefix"`
}

type MetricsConfig struct {
	Enabled   bool   `env:"METRICS_ENABLED" envDefault:"true" yaml:"enabled"`
	Namespace string `env:"METRICS_NAMESPACE" envDefault:"raiser_uploader" yaml:"namespace"`
}

type ServerConfig struct {
	Address string `env:"SERVER_ADDRESS" envDefault:":8080" yaml:"address"`
}

// Load reads .env files, environment variables and the optional YAML file
// named by CONFIG_FILE. Values from the YAML file take precedence.
func Load() (Config, error) {
	if err := loadDotEnv(".env", ".env.local"); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustLoad calls Load and exits the process on error.
func MustLoad() Config {
	slog.Info("loading configuration", "component", "config")
	cfg, err := Load()
	if err != nil {
		slog.Error("invalid configuration", "component", "config", "error", err)
		os.Exit(1)
	}
	return cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct tag validation followed by cross-field checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if err := c.JobStore.Validate(); err != nil {
		return err
	}
	if c.Report.Enabled && c.Report.Backend != "local" && c.Report.Bucket == "" {
		return fmt.Errorf("report Bucket is required for the %s backend", c.Report.Backend)
	}
	return nil
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func loadDotEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", f, err)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}
