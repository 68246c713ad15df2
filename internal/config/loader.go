package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rpattn/propspec/internal/db"
	"github.com/rpattn/propspec/internal/domain"
)

// Config is the service configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Log      LogConfig
	Search   SearchConfig
}

type ServerConfig struct {
	Addr            string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// SearchConfig controls how request parameters become property filters.
type SearchConfig struct {
	FilterPrefix string
	DefaultLimit int
	MaxLimit     int
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"http://localhost:3000"},
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Search: SearchConfig{
			FilterPrefix: "filter_",
			DefaultLimit: 25,
			MaxLimit:     1000,
		},
	}
}

// Load reads config.yaml from configPath (if present) and applies
// PROPSPEC_-prefixed environment overrides such as PROPSPEC_DATABASE_HOST.
// The boolean result reports whether a config file was found.
func Load(configPath string) (Config, bool, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("PROPSPEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range []string{
		"database.host", "database.port", "database.user", "database.password",
		"database.dbname", "database.sslmode", "database.max_conns",
		"server.addr", "server.allowed_origins", "server.read_timeout",
		"server.write_timeout", "server.shutdown_timeout",
		"log.level", "log.format",
		"search.filter_prefix", "search.default_limit", "search.max_limit",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, false, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, false, fmt.Errorf("read config: %w", err)
		}
		found = false
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.max_conns") {
		cfg.Database.MaxConns = v.GetInt32("database.max_conns")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("server.read_timeout") {
		cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	}
	if v.IsSet("server.write_timeout") {
		cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	}
	if v.IsSet("server.shutdown_timeout") {
		cfg.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")
	}

	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.format") {
		cfg.Log.Format = v.GetString("log.format")
	}

	if v.IsSet("search.filter_prefix") {
		cfg.Search.FilterPrefix = v.GetString("search.filter_prefix")
	}
	if v.IsSet("search.default_limit") {
		cfg.Search.DefaultLimit = v.GetInt("search.default_limit")
	}
	if v.IsSet("search.max_limit") {
		cfg.Search.MaxLimit = v.GetInt("search.max_limit")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, found, err
	}
	return cfg, found, nil
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port %d", c.Database.Port)
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server address is required")
	}
	if c.Search.FilterPrefix == "" {
		return errors.New("search filter prefix is required")
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("invalid search limits: default %d, max %d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.MaxLimit > domain.MaxPageLimit {
		return fmt.Errorf("invalid search limits: max %d exceeds %d", c.Search.MaxLimit, domain.MaxPageLimit)
	}
	return nil
}
