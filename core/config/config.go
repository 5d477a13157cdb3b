package config

import (
	"fmt"
	"strings"
	"sync"

	"riq-studio-api/core/constants"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type GoogleAPIConfig struct {
	APIKey            string `mapstructure:"api_key"`
	StudioCCalendarID string `mapstructure:"studio_c_calendar_id"`
	StudioDCalendarID string `mapstructure:"studio_d_calendar_id"`
}

type RecordCoConfig struct {
	GridURL  string `mapstructure:"grid_url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type SyncConfig struct {
	IntervalSeconds       int `mapstructure:"interval_seconds"`
	CooldownSeconds       int `mapstructure:"cooldown_seconds"`
	StalenessSeconds      int `mapstructure:"staleness_seconds"`
	AdapterTimeoutSeconds int `mapstructure:"adapter_timeout_seconds"`
	WindowDays            int `mapstructure:"window_days"`
}

type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	GoogleAPI GoogleAPIConfig `mapstructure:"google_api"`
	RecordCo  RecordCoConfig  `mapstructure:"recordco"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

var (
	mu       sync.RWMutex
	instance *Config
)

// Load reads config.yaml (if present) and RIQ_-prefixed environment
// variables into the package-level Config.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("RIQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env + defaults are enough.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	mu.Lock()
	instance = &cfg
	mu.Unlock()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 4567)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "riq_availability")
	v.SetDefault("database.ssl_mode", constants.DatabaseSSLMode)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", false)

	v.SetDefault("recordco.grid_url", "https://therecordco.org/reserve-space/")

	v.SetDefault("sync.interval_seconds", constants.DefaultSyncIntervalSeconds)
	v.SetDefault("sync.cooldown_seconds", constants.DefaultSyncCooldownSeconds)
	v.SetDefault("sync.staleness_seconds", constants.DefaultStalenessSeconds)
	v.SetDefault("sync.adapter_timeout_seconds", constants.DefaultAdapterTimeoutSeconds)
	v.SetDefault("sync.window_days", constants.DefaultSyncWindowDays)
}

// Get returns the loaded config. Panics if Load has not run.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		panic("config not loaded")
	}
	return instance
}

// GetSafe returns the loaded config and whether it has been initialized.
func GetSafe() (*Config, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return instance, instance != nil
}
