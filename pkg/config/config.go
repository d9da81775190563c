package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is the prefix for environment variable overrides,
	// e.g. DROPWATCH_WATCH_ROOT overrides watch.root.
	EnvPrefix = "DROPWATCH"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultQuietPeriod is how long a file must stay unmodified before it
	// is considered finalized.
	DefaultQuietPeriod = "2s"

	// DefaultConcurrency is the default number of parallel uploads.
	DefaultConcurrency = 1

	// DefaultUploadMethod is the default upload backend.
	DefaultUploadMethod = "s3"

	// DefaultS3Prefix is the default key prefix for uploaded objects.
	DefaultS3Prefix = "uploads"

	// DefaultDatabasePath is the default SQLite state database.
	DefaultDatabasePath = "./dropwatch.db"

	// DefaultListen is the default API listen address.
	DefaultListen = "127.0.0.1:8547"

	// DefaultNotifyBuffer is the default notifier queue size.
	DefaultNotifyBuffer = 64

	// DefaultNotifyHistory is the default number of statuses kept for the API.
	DefaultNotifyHistory = 100

	// DefaultRequestsPerMinute is the default per-IP API rate limit.
	DefaultRequestsPerMinute = 120
)

// Config is the root configuration for dropwatch.
type Config struct {
	Global GlobalConfig `yaml:"global" mapstructure:"global"`
	Watch  WatchConfig  `yaml:"watch" mapstructure:"watch"`
	Upload UploadConfig `yaml:"upload" mapstructure:"upload"`
	State  StateConfig  `yaml:"state" mapstructure:"state"`
	API    APIConfig    `yaml:"api" mapstructure:"api"`
	Notify NotifyConfig `yaml:"notify" mapstructure:"notify"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel      string `yaml:"log_level" mapstructure:"log_level"`
	LogFile       string `yaml:"log_file,omitempty" mapstructure:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb,omitempty" mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups,omitempty" mapstructure:"log_max_backups"`
}

// WatchConfig controls the folder watcher and the upload worker.
type WatchConfig struct {
	Root             string  `yaml:"root" mapstructure:"root"`
	QuietPeriod      string  `yaml:"quiet_period" mapstructure:"quiet_period"`
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	UploadsPerSecond float64 `yaml:"uploads_per_second,omitempty" mapstructure:"uploads_per_second"`
	MaxFileSize      string  `yaml:"max_file_size,omitempty" mapstructure:"max_file_size"`
}

// UploadConfig selects and configures the upload backend.
type UploadConfig struct {
	Method string            `yaml:"method" mapstructure:"method"`
	S3     S3UploadConfig    `yaml:"s3,omitempty" mapstructure:"s3"`
	Local  LocalUploadConfig `yaml:"local,omitempty" mapstructure:"local"`
}

// S3UploadConfig contains settings for S3-compatible uploads.
type S3UploadConfig struct {
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
	PresignExpiry   string `yaml:"presign_expiry,omitempty" mapstructure:"presign_expiry"`
}

// LocalUploadConfig mirrors uploads into a local directory.
type LocalUploadConfig struct {
	Dir   string `yaml:"dir" mapstructure:"dir"`
	Owner string `yaml:"owner,omitempty" mapstructure:"owner"`
}

// StateConfig contains persistence settings.
type StateConfig struct {
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// APIConfig contains the control API settings.
type APIConfig struct {
	Enabled bool            `yaml:"enabled" mapstructure:"enabled"`
	Server  APIServerConfig `yaml:"server" mapstructure:"server"`
	Auth    APIAuthConfig   `yaml:"auth,omitempty" mapstructure:"auth"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// APIAuthConfig contains authentication settings.
type APIAuthConfig struct {
	Basic BasicAuthConfig `yaml:"basic,omitempty" mapstructure:"basic"`
}

// BasicAuthConfig configures username/password authentication.
type BasicAuthConfig struct {
	Enabled bool            `yaml:"enabled" mapstructure:"enabled"`
	Users   []BasicAuthUser `yaml:"users,omitempty" mapstructure:"users"`
}

// BasicAuthUser defines a basic auth user. PasswordHash is a bcrypt hash.
type BasicAuthUser struct {
	Username     string `yaml:"username" mapstructure:"username"`
	PasswordHash string `yaml:"password_hash" mapstructure:"password_hash"`
}

// NotifyConfig controls status delivery.
type NotifyConfig struct {
	Buffer  int `yaml:"buffer" mapstructure:"buffer"`
	History int `yaml:"history" mapstructure:"history"`
}

// Load reads and merges the configuration files in order, applies
// environment overrides and defaults. With no paths only defaults and
// environment variables are used.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for i, path := range paths {
		v.SetConfigFile(path)

		var err error
		if i == 0 {
			err = v.ReadInConfig()
		} else {
			err = v.MergeInConfig()
		}

		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// setDefaults registers every leaf key so environment overrides work even
// when the key is absent from all config files.
func setDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"global.log_level":                          DefaultLogLevel,
		"global.log_file":                           "",
		"global.log_max_size_mb":                    100,
		"global.log_max_backups":                    3,
		"watch.root":                                "",
		"watch.quiet_period":                        DefaultQuietPeriod,
		"watch.concurrency":                         DefaultConcurrency,
		"watch.uploads_per_second":                  0,
		"watch.max_file_size":                       "",
		"upload.method":                             DefaultUploadMethod,
		"upload.s3.endpoint_url":                    "",
		"upload.s3.region":                          "",
		"upload.s3.bucket":                          "",
		"upload.s3.access_key_id":                   "",
		"upload.s3.secret_access_key":               "",
		"upload.s3.force_path_style":                false,
		"upload.s3.prefix":                          DefaultS3Prefix,
		"upload.s3.storage_class":                   "",
		"upload.s3.acl":                             "",
		"upload.s3.presign_expiry":                  "",
		"upload.local.dir":                          "",
		"upload.local.owner":                        "",
		"state.database.driver":                     "sqlite",
		"state.database.sqlite.path":                DefaultDatabasePath,
		"state.database.postgres.host":              "",
		"state.database.postgres.port":              5432,
		"state.database.postgres.user":              "",
		"state.database.postgres.password":          "",
		"state.database.postgres.database":          "",
		"state.database.postgres.ssl_mode":          "disable",
		"api.enabled":                               true,
		"api.server.listen":                         DefaultListen,
		"api.server.cors_origins":                   []string{},
		"api.server.rate_limit.enabled":             false,
		"api.server.rate_limit.requests_per_minute": DefaultRequestsPerMinute,
		"api.auth.basic.enabled":                    false,
		"notify.buffer":                             DefaultNotifyBuffer,
		"notify.history":                            DefaultNotifyHistory,
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// applyDefaults sets default values for options left empty in the files.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Watch.QuietPeriod == "" {
		c.Watch.QuietPeriod = DefaultQuietPeriod
	}

	if c.Watch.Concurrency <= 0 {
		c.Watch.Concurrency = DefaultConcurrency
	}

	if c.Upload.Method == "" {
		c.Upload.Method = DefaultUploadMethod
	}

	if c.Upload.S3.Prefix == "" {
		c.Upload.S3.Prefix = DefaultS3Prefix
	}

	if c.State.Database.Driver == "" {
		c.State.Database.Driver = "sqlite"
	}

	if c.State.Database.Driver == "sqlite" && c.State.Database.SQLite.Path == "" {
		c.State.Database.SQLite.Path = DefaultDatabasePath
	}

	if c.API.Server.Listen == "" {
		c.API.Server.Listen = DefaultListen
	}

	if c.API.Server.RateLimit.RequestsPerMinute <= 0 {
		c.API.Server.RateLimit.RequestsPerMinute = DefaultRequestsPerMinute
	}

	if c.Notify.Buffer <= 0 {
		c.Notify.Buffer = DefaultNotifyBuffer
	}

	if c.Notify.History <= 0 {
		c.Notify.History = DefaultNotifyHistory
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Global.LogLevel); err != nil {
		return fmt.Errorf("global.log_level: %w", err)
	}

	if _, err := c.Watch.QuietPeriodDuration(); err != nil {
		return err
	}

	if _, err := c.Watch.MaxFileSizeBytes(); err != nil {
		return err
	}

	if c.Watch.UploadsPerSecond < 0 {
		return fmt.Errorf("watch.uploads_per_second must not be negative")
	}

	if err := c.Upload.validate(); err != nil {
		return err
	}

	if err := c.State.Database.validate(); err != nil {
		return err
	}

	if c.API.Enabled {
		if c.API.Server.Listen == "" {
			return fmt.Errorf("api.server.listen is required when the api is enabled")
		}

		if c.API.Auth.Basic.Enabled {
			if len(c.API.Auth.Basic.Users) == 0 {
				return fmt.Errorf("api.auth.basic.users must not be empty when basic auth is enabled")
			}

			for i, u := range c.API.Auth.Basic.Users {
				if u.Username == "" || u.PasswordHash == "" {
					return fmt.Errorf("api.auth.basic.users[%d]: username and password_hash are required", i)
				}
			}
		}
	}

	return nil
}

func (u *UploadConfig) validate() error {
	switch u.Method {
	case "s3":
		if u.S3.Bucket == "" {
			return fmt.Errorf("upload.s3.bucket is required for the s3 method")
		}

		if _, err := u.S3.PresignExpiryDuration(); err != nil {
			return err
		}
	case "local":
		if u.Local.Dir == "" {
			return fmt.Errorf("upload.local.dir is required for the local method")
		}
	default:
		return fmt.Errorf("upload.method: unsupported method %q (expected \"s3\" or \"local\")", u.Method)
	}

	return nil
}

func (d *DatabaseConfig) validate() error {
	switch d.Driver {
	case "sqlite":
		if d.SQLite.Path == "" {
			return fmt.Errorf("state.database.sqlite.path is required")
		}
	case "postgres":
		if d.Postgres.Host == "" || d.Postgres.Database == "" {
			return fmt.Errorf("state.database.postgres host and database are required")
		}
	default:
		return fmt.Errorf("state.database.driver: unsupported driver %q", d.Driver)
	}

	return nil
}

// QuietPeriodDuration parses watch.quiet_period.
func (w *WatchConfig) QuietPeriodDuration() (time.Duration, error) {
	d, err := time.ParseDuration(w.QuietPeriod)
	if err != nil {
		return 0, fmt.Errorf("parsing watch.quiet_period: %w", err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("watch.quiet_period must be positive")
	}

	return d, nil
}

// MaxFileSizeBytes parses watch.max_file_size. Zero means no limit.
func (w *WatchConfig) MaxFileSizeBytes() (int64, error) {
	if w.MaxFileSize == "" {
		return 0, nil
	}

	size, err := units.FromHumanSize(w.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("parsing watch.max_file_size: %w", err)
	}

	return size, nil
}

// PresignExpiryDuration parses upload.s3.presign_expiry. Zero disables
// presigned links.
func (s *S3UploadConfig) PresignExpiryDuration() (time.Duration, error) {
	if s.PresignExpiry == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s.PresignExpiry)
	if err != nil {
		return 0, fmt.Errorf("parsing upload.s3.presign_expiry: %w", err)
	}

	return d, nil
}

// Redacted returns a copy of the config with secrets masked.
func (c *Config) Redacted() *Config {
	out := *c

	if out.Upload.S3.SecretAccessKey != "" {
		out.Upload.S3.SecretAccessKey = "********"
	}

	if out.State.Database.Postgres.Password != "" {
		out.State.Database.Postgres.Password = "********"
	}

	out.API.Auth.Basic.Users = make([]BasicAuthUser, len(c.API.Auth.Basic.Users))
	for i, u := range c.API.Auth.Basic.Users {
		out.API.Auth.Basic.Users[i] = BasicAuthUser{Username: u.Username, PasswordHash: "********"}
	}

	return &out
}

// YAML renders the config as YAML.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	return data, nil
}
