package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName                 string        `mapstructure:"app_name"`
	Env                     string        `mapstructure:"app_env"`
	LogLevel                string        `mapstructure:"log_level"`
	CallsFile               string        `mapstructure:"calls_file"`
	PublishersFile          string        `mapstructure:"publishers_file"`
	DispatchIntervalSeconds int64         `mapstructure:"dispatch_interval"`
	DispatchInterval        time.Duration `mapstructure:"-"`
	HTTPTimeoutSeconds      int64         `mapstructure:"http_timeout_seconds"`
	HTTPTimeout             time.Duration `mapstructure:"-"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	StorageTTLSeconds      int64         `mapstructure:"storage_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "samvad-relay")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("calls_file", "./configs/calls.yaml")
	v.SetDefault("publishers_file", "./configs/publishers.yaml")
	v.SetDefault("dispatch_interval", 300) // seconds
	v.SetDefault("http_timeout_seconds", 15)
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/deliveries.db")
	v.SetDefault("storage_ttl_seconds", int64((24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64((6*time.Hour)/time.Second))
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DispatchIntervalSeconds <= 0 {
		return nil, fmt.Errorf("invalid dispatch_interval (must be positive seconds)")
	}
	cfg.DispatchInterval = time.Duration(cfg.DispatchIntervalSeconds) * time.Second

	if cfg.HTTPTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid http_timeout_seconds (must be positive seconds)")
	}
	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second

	if cfg.StorageTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid storage_ttl_seconds (must be positive seconds)")
	}
	if cfg.StorageCleanupSeconds <= 0 {
		return nil, fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.StorageTTL = time.Duration(cfg.StorageTTLSeconds) * time.Second
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupSeconds) * time.Second

	return &cfg, nil
}
