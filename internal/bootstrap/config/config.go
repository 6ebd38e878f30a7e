package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/errs"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type SyncConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	MaxRetries     uint          `mapstructure:"max_retries"`
}

// NotifyConfig selects the transport delivering "something changed" signals.
// Driver is one of none, nats or fswatch.
type NotifyConfig struct {
	Driver   string        `mapstructure:"driver"`
	NATSURL  string        `mapstructure:"nats_url"`
	Subject  string        `mapstructure:"subject"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

const (
	NotifyDriverNone    = "none"
	NotifyDriverNATS    = "nats"
	NotifyDriverFSWatch = "fswatch"
)

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithComponent(ctx, "bootstrap.config")

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("notify_driver", cfg.Notify.Driver),
	)

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if c.Sync.PollInterval <= 0 {
		return errors.New("sync.poll_interval must be positive")
	}
	if c.Sync.BackoffInitial <= 0 || c.Sync.BackoffMax < c.Sync.BackoffInitial {
		return errors.New("sync.backoff_initial must be positive and not exceed sync.backoff_max")
	}

	c.Notify.Driver = strings.ToLower(strings.TrimSpace(c.Notify.Driver))
	switch c.Notify.Driver {
	case "", NotifyDriverNone:
		c.Notify.Driver = NotifyDriverNone
	case NotifyDriverNATS:
		if strings.TrimSpace(c.Notify.NATSURL) == "" {
			return errors.New("notify.nats_url is required for the nats driver")
		}
		if strings.TrimSpace(c.Notify.Subject) == "" {
			return errors.New("notify.subject is required for the nats driver")
		}
	case NotifyDriverFSWatch:
	default:
		return fmt.Errorf("unsupported notify driver %q", c.Notify.Driver)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "hazardsync")
	v.SetDefault("app.env", "local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".hazardsync/hazards.sqlite")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("sync.poll_interval", 30*time.Second)
	v.SetDefault("sync.backoff_initial", 500*time.Millisecond)
	v.SetDefault("sync.backoff_max", 30*time.Second)
	v.SetDefault("sync.max_retries", 5)
	v.SetDefault("notify.driver", NotifyDriverNone)
	v.SetDefault("notify.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("notify.subject", "hazards.changed")
	v.SetDefault("notify.debounce", 250*time.Millisecond)
	v.SetDefault("http.addr", "127.0.0.1:8088")
}
