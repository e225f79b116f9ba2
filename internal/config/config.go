// Package config loads fluentsql settings from .fluentsql.yaml, .env files
// and FLUENTSQL_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/satishbabariya/fluentsql/internal/adapters/database"
)

// AppFs is the filesystem configuration is read from and written to.
var AppFs = afero.NewOsFs()

const (
	// FileName is the config file name without extension.
	FileName  = ".fluentsql"
	envPrefix = "FLUENTSQL"
)

// Config holds the application configuration.
type Config struct {
	Provider       string
	DatabaseURL    string
	SchemaPath     string
	MySQLVersion   string
	AliasStart     string
	PlanCacheSize  int
	PlanCacheTTL   time.Duration
	Debug          bool
	MaxConnections int
	ConnectTimeout int
}

// Load reads configuration from the working directory and the home directory.
func Load() (*Config, error) {
	return LoadDir(".")
}

// LoadDir reads configuration from dir and the home directory.
func LoadDir(dir string) (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}
	return load(AppFs, dir, home)
}

func load(fs afero.Fs, dir, home string) (*Config, error) {
	// .env.local overrides .env; neither overrides the real environment.
	if err := loadEnv(fs, filepath.Join(dir, ".env"), false); err != nil {
		return nil, err
	}
	if err := loadEnv(fs, filepath.Join(dir, ".env.local"), true); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if home != "" {
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", "fluentsql"))
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("provider", "postgresql")
	v.SetDefault("schema_path", "schema.yaml")
	v.SetDefault("alias_start", "a")
	v.SetDefault("plan_cache_size", 256)
	v.SetDefault("plan_cache_ttl", "0s")
	v.SetDefault("debug", false)
	v.SetDefault("max_connections", 10)
	v.SetDefault("connect_timeout", 5)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Provider:       v.GetString("provider"),
		DatabaseURL:    v.GetString("database_url"),
		SchemaPath:     v.GetString("schema_path"),
		MySQLVersion:   v.GetString("mysql_version"),
		AliasStart:     v.GetString("alias_start"),
		PlanCacheSize:  v.GetInt("plan_cache_size"),
		PlanCacheTTL:   v.GetDuration("plan_cache_ttl"),
		Debug:          v.GetBool("debug"),
		MaxConnections: v.GetInt("max_connections"),
		ConnectTimeout: v.GetInt("connect_timeout"),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnv(fs afero.Fs, path string, override bool) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil
	}
	vars, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for k, val := range vars {
		if _, exists := os.LookupEnv(k); exists && !override {
			continue
		}
		os.Setenv(k, val)
	}
	return nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if r, size := utf8.DecodeRuneInString(c.AliasStart); size != len(c.AliasStart) || r < 'a' || r > 'z' {
		return fmt.Errorf("alias_start must be a single lowercase letter, got %q", c.AliasStart)
	}
	if c.PlanCacheSize < 0 {
		return fmt.Errorf("plan_cache_size must not be negative")
	}
	return nil
}

// AliasRune returns the first table alias letter.
func (c *Config) AliasRune() rune {
	r, _ := utf8.DecodeRuneInString(c.AliasStart)
	return r
}

// Database returns the adapter configuration.
func (c *Config) Database() database.Config {
	return database.Config{
		Provider:       c.Provider,
		URL:            c.DatabaseURL,
		MaxConnections: c.MaxConnections,
		ConnectTimeout: c.ConnectTimeout,
		MySQLVersion:   c.MySQLVersion,
	}
}

// Save writes cfg to path as YAML. The database URL is only written when
// keepURL is set so credentials stay in the environment by default.
func Save(cfg *Config, path string, keepURL bool) error {
	v := viper.New()
	v.SetFs(AppFs)
	v.Set("provider", cfg.Provider)
	v.Set("schema_path", cfg.SchemaPath)
	v.Set("alias_start", cfg.AliasStart)
	v.Set("plan_cache_size", cfg.PlanCacheSize)
	v.Set("debug", cfg.Debug)
	if cfg.MySQLVersion != "" {
		v.Set("mysql_version", cfg.MySQLVersion)
	}
	if keepURL && cfg.DatabaseURL != "" {
		v.Set("database_url", cfg.DatabaseURL)
	}

	if err := AppFs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return v.WriteConfigAs(path)
}
